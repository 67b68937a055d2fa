// Package repository persists game sessions, statistics, game definitions and
// lesson links. Two implementations are provided: an in-memory store used by
// tests and single-node development, and a PostgreSQL store built on gorm.
package repository

import (
	"context"
	"errors"
	"time"

	"sharedplay/models"
)

var (
	// ErrNotFound is returned when a session, game or link does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned when a lesson already links the maximum number of games.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDuplicateLink is returned when a game is already linked to the lesson.
	ErrDuplicateLink = errors.New("game already linked to lesson")
)

// MutateFunc changes a session in place. Returning an error aborts the write.
type MutateFunc func(sess *models.GameSession) error

// SessionStore persists game sessions. Update is the only way to change an
// existing session and runs fn as an atomic read-modify-write.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, sess *models.GameSession) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*models.GameSession, error)

	// FindByToken returns the most recently created session holding token.
	FindByToken(ctx context.Context, token string) (*models.GameSession, error)

	// TokenInUse reports whether a session holds token with an expiry after now.
	TokenInUse(ctx context.Context, token string, now time.Time) (bool, error)

	// Update applies fn to the current session and stores the result.
	Update(ctx context.Context, id string, fn MutateFunc) (*models.GameSession, error)

	// ListByGame returns every session of a game.
	ListByGame(ctx context.Context, gameID string) ([]*models.GameSession, error)

	// ListOpen returns sessions that are waiting or in progress.
	ListOpen(ctx context.Context) ([]*models.GameSession, error)
}

// StatsStore persists per-game aggregates.
type StatsStore interface {
	SaveStats(ctx context.Context, stats *models.GameStats) error
	GetStats(ctx context.Context, gameID string) (*models.GameStats, error)

	// WithStatsLock runs fn while holding the recompute lock of gameID.
	// Recomputes of the same game never overlap.
	WithStatsLock(ctx context.Context, gameID string, fn func() error) error
}

// GameCatalog reads game definitions owned by the content catalog.
type GameCatalog interface {
	GetGame(ctx context.Context, id string) (*models.Game, error)
	ListGames(ctx context.Context, ids []string) ([]*models.Game, error)
}

// LessonStore persists lesson-to-game links.
type LessonStore interface {
	// Link adds a link unless the lesson already holds max links or the game.
	Link(ctx context.Context, link *models.LessonGame, max int) error

	// Unlink removes the link between lessonID and gameID.
	Unlink(ctx context.Context, lessonID, gameID string) error

	// ListLinks returns the links of a lesson ordered by Order.
	ListLinks(ctx context.Context, lessonID string) ([]models.LessonGame, error)
}
