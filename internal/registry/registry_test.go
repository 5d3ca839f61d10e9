package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inoka/clash-server/internal/session"
)

var errNoSuchPlayer = errors.New("no such player")

type fakeDirectory struct {
	mu       sync.Mutex
	names    map[string]string
	assigned map[string]string
}

func newFakeDirectory(names map[string]string) *fakeDirectory {
	return &fakeDirectory{names: names, assigned: make(map[string]string)}
}

func (d *fakeDirectory) Resolve(_ context.Context, id string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.names[id]
	if !ok {
		return "", errNoSuchPlayer
	}
	return name, nil
}

func (d *fakeDirectory) Assign(_ context.Context, playerID, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.assigned[playerID] = sessionID
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	marks []string
}

func (n *fakeNotifier) MarkDirty(sessionID string) {
	n.mu.Lock()
	n.marks = append(n.marks, sessionID)
	n.mu.Unlock()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.marks)
}

func newTestRegistry(names map[string]string) (*Registry, *fakeDirectory, *fakeNotifier) {
	dir := newFakeDirectory(names)
	notify := &fakeNotifier{}
	return New(dir, notify, zap.NewNop().Sugar()), dir, notify
}

func TestCreateOrJoin_SamePasscodeConverges(t *testing.T) {
	reg, dir, _ := newTestRegistry(map[string]string{"p1": "Alice", "p2": "Bob"})
	ctx := context.Background()

	id1, err := reg.CreateOrJoin(ctx, "abc", "p1")
	require.NoError(t, err)
	id2, err := reg.CreateOrJoin(ctx, "abc", "p2")
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "one passcode, one lobby")
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, id1, dir.assigned["p1"])
	assert.Equal(t, id1, dir.assigned["p2"])
}

func TestCreateOrJoin_ConcurrentSamePasscode(t *testing.T) {
	names := make(map[string]string)
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = string(rune('a' + i))
		names[ids[i]] = "Player"
	}
	reg, _, _ := newTestRegistry(names)

	results := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, pid := range ids {
		wg.Add(1)
		go func(i int, pid string) {
			defer wg.Done()
			id, err := reg.CreateOrJoin(context.Background(), "abc", pid)
			assert.NoError(t, err)
			results[i] = id
		}(i, pid)
	}
	wg.Wait()

	for _, id := range results[1:] {
		assert.Equal(t, results[0], id, "all callers must land in the same lobby")
	}
	assert.Equal(t, 1, reg.Len())
}

func TestCreateOrJoin_PasscodeSeparatesLobbies(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{"p1": "A", "p2": "B", "p3": "C"})
	ctx := context.Background()

	public, err := reg.CreateOrJoin(ctx, "", "p1")
	require.NoError(t, err)
	private, err := reg.CreateOrJoin(ctx, "xyz", "p2")
	require.NoError(t, err)
	assert.NotEqual(t, public, private)

	// A second public caller matches the open public lobby.
	again, err := reg.CreateOrJoin(ctx, "", "p3")
	require.NoError(t, err)
	assert.Equal(t, public, again)
}

func TestCreateOrJoin_StartedSessionNotJoinable(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{"p1": "A", "p2": "B", "p3": "C"})
	ctx := context.Background()

	id, err := reg.CreateOrJoin(ctx, "abc", "p1")
	require.NoError(t, err)
	_, err = reg.CreateOrJoin(ctx, "abc", "p2")
	require.NoError(t, err)

	require.NoError(t, reg.SetReady("p1"))
	require.NoError(t, reg.SetReady("p2"))
	require.NoError(t, reg.StartGame(id))

	// Same passcode now yields a fresh lobby.
	other, err := reg.CreateOrJoin(ctx, "abc", "p3")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, reg.Len())
}

func TestCreateOrJoin_UnknownPlayer(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{})
	_, err := reg.CreateOrJoin(context.Background(), "", "ghost")
	assert.ErrorIs(t, err, errNoSuchPlayer)
	assert.Equal(t, 0, reg.Len())
}

func TestMutate_UnknownSession(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{})
	err := reg.Mutate("nope", func(*session.Session) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestOps_PlayerNotInSession(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{"p1": "A"})
	assert.ErrorIs(t, reg.SetReady("p1"), ErrPlayerNotInSession)
	_, err := reg.RollInitiative("p1")
	assert.ErrorIs(t, err, ErrPlayerNotInSession)
}

func TestGuardRejectionLeavesNoDirtyMark(t *testing.T) {
	reg, _, notify := newTestRegistry(map[string]string{"p1": "A"})
	id, err := reg.CreateOrJoin(context.Background(), "", "p1")
	require.NoError(t, err)

	before := notify.count()
	err = reg.StartClash(id) // lobby still waiting, guard rejects
	assert.ErrorIs(t, err, session.ErrWrongState)
	assert.Equal(t, before, notify.count(), "rejected mutation must not mark dirty")

	require.NoError(t, reg.SetReady("p1"))
	assert.Equal(t, before+1, notify.count())
}

func TestFullMatchThroughRegistry(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{"p1": "Alice", "p2": "Bob"})
	ctx := context.Background()

	id, err := reg.CreateOrJoin(ctx, "abc", "p1")
	require.NoError(t, err)
	_, err = reg.CreateOrJoin(ctx, "abc", "p2")
	require.NoError(t, err)

	view, err := reg.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, session.StateWaitingForPlayers, view.State)

	require.NoError(t, reg.SetReady("p1"))
	require.NoError(t, reg.SetReady("p2"))
	require.NoError(t, reg.StartGame(id))

	// Both draw a card from their private hands.
	for _, pid := range []string{"p1", "p2"} {
		hand, err := reg.Hand(pid)
		require.NoError(t, err)
		require.Len(t, hand, session.HandSize)
		require.NoError(t, reg.PlayCard(pid, hand[0].ID))
	}

	view, err = reg.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, session.StateCountDown, view.State)

	require.NoError(t, reg.StartClash(id))
	r1, err := reg.RollInitiative("p1")
	require.NoError(t, err)
	r2, err := reg.RollInitiative("p2")
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)

	view, err = reg.Snapshot(id)
	require.NoError(t, err)
	require.Equal(t, session.StateClashPlayerTurn, view.State)
	require.NotNil(t, view.CurrentPlayerSeat)

	// Whoever holds the turn skips.
	actorSeat := *view.CurrentPlayerSeat
	actor := "p1"
	if seat, err := reg.Seat("p2"); err == nil && seat == actorSeat {
		actor = "p2"
	}
	dmg, err := reg.ResolveClashAction(actor, SkipTarget)
	require.NoError(t, err)
	assert.Equal(t, session.SkipDamage, dmg)

	require.NoError(t, reg.ClashProcessed(id))
	view, err = reg.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateClashPlayerTurn, view.State)
}

func TestReap_RemovesIdleSessions(t *testing.T) {
	reg, _, _ := newTestRegistry(map[string]string{"p1": "A"})
	_, err := reg.CreateOrJoin(context.Background(), "", "p1")
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Reap(time.Hour), "fresh session must survive")
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 1, reg.Reap(time.Millisecond))
	assert.Equal(t, 0, reg.Len())

	_, err = reg.SessionFor("p1")
	assert.ErrorIs(t, err, ErrPlayerNotInSession)
}
