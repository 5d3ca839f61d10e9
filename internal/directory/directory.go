// Package directory is the player directory: durable identity (id and
// display name) backed by Postgres. Everything game-related about a
// player is session-scoped and never touches this store.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("player not found")

// Player is the persisted player row. GameID tracks the session the
// player last joined, purely for reconnect lookups.
type Player struct {
	ID     string `gorm:"column:play_id;primaryKey;size:128" json:"id"`
	Name   string `gorm:"column:play_name;size:255" json:"name"`
	GameID string `gorm:"column:game_id;size:128" json:"gameId"`
}

func (Player) TableName() string { return "players" }

type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the players table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Player{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing gorm handle.
func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// Create registers a new player and returns the persisted row.
func (s *Store) Create(ctx context.Context, name string) (Player, error) {
	p := Player{ID: uuid.NewString(), Name: name}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return Player{}, err
	}
	return p, nil
}

// Find returns the player row for an id.
func (s *Store) Find(ctx context.Context, id string) (Player, error) {
	var p Player
	err := s.db.WithContext(ctx).First(&p, "play_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, err
	}
	return p, nil
}

// Resolve satisfies the registry's Directory collaborator: id in,
// display name out.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	p, err := s.Find(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Name, nil
}

// Assign records which session the player joined.
func (s *Store) Assign(ctx context.Context, playerID, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&Player{}).
		Where("play_id = ?", playerID).
		Update("game_id", sessionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Rename updates the display name.
func (s *Store) Rename(ctx context.Context, id, name string) error {
	res := s.db.WithContext(ctx).Model(&Player{}).
		Where("play_id = ?", id).
		Update("play_name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the player row.
func (s *Store) Remove(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Player{}, "play_id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
