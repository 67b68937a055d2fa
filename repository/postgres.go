package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharedplay/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore implements the repository interfaces on top of gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore wraps an open gorm connection.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates or updates the tables this package uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Game{},
		&models.GameSession{},
		&models.GameStats{},
		&models.LessonGame{},
	)
}

// Create persists a new session.
func (s *PostgresStore) Create(ctx context.Context, sess *models.GameSession) error {
	if err := s.db.WithContext(ctx).Create(sess).Error; err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.GameSession, error) {
	var sess models.GameSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, notFound(err, "getting session")
	}
	return &sess, nil
}

// FindByToken returns the most recently created session holding token.
func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*models.GameSession, error) {
	var sess models.GameSession
	err := s.db.WithContext(ctx).
		Where("share_token = ?", token).
		Order("created_at DESC").
		First(&sess).Error
	if err != nil {
		return nil, notFound(err, "finding session by token")
	}
	return &sess, nil
}

// TokenInUse reports whether a live session holds token.
func (s *PostgresStore) TokenInUse(ctx context.Context, token string, now time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("share_token = ? AND token_expires_at > ?", token, now).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking token: %w", err)
	}
	return count > 0, nil
}

// Update locks the session row for the duration of fn and saves the result.
func (s *PostgresStore) Update(ctx context.Context, id string, fn MutateFunc) (*models.GameSession, error) {
	var sess models.GameSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&sess).Error; err != nil {
			return notFound(err, "locking session")
		}
		if err := fn(&sess); err != nil {
			return err
		}
		if err := tx.Save(&sess).Error; err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListByGame returns every session of a game ordered by creation time.
func (s *PostgresStore) ListByGame(ctx context.Context, gameID string) ([]*models.GameSession, error) {
	var sessions []*models.GameSession
	err := s.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("created_at").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("listing sessions of game %s: %w", gameID, err)
	}
	return sessions, nil
}

// ListOpen returns sessions that are waiting or in progress.
func (s *PostgresStore) ListOpen(ctx context.Context) ([]*models.GameSession, error) {
	var sessions []*models.GameSession
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.SessionStatus{models.StatusWaiting, models.StatusInProgress}).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("listing open sessions: %w", err)
	}
	return sessions, nil
}

// SaveStats upserts the stats row of a game.
func (s *PostgresStore) SaveStats(ctx context.Context, stats *models.GameStats) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(stats).Error
	if err != nil {
		return fmt.Errorf("saving stats of game %s: %w", stats.GameID, err)
	}
	return nil
}

// GetStats returns the stats row of a game.
func (s *PostgresStore) GetStats(ctx context.Context, gameID string) (*models.GameStats, error) {
	var stats models.GameStats
	if err := s.db.WithContext(ctx).Where("game_id = ?", gameID).First(&stats).Error; err != nil {
		return nil, notFound(err, "getting stats")
	}
	return &stats, nil
}

// WithStatsLock holds a transaction-scoped advisory lock on the game while fn
// runs, so recomputes of one game are serialized across instances.
func (s *PostgresStore) WithStatsLock(ctx context.Context, gameID string, fn func() error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := advisoryLock(tx, "game_stats:"+gameID); err != nil {
			return err
		}
		return fn()
	})
}

// GetGame returns a game definition.
func (s *PostgresStore) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&game).Error; err != nil {
		return nil, notFound(err, "getting game")
	}
	return &game, nil
}

// ListGames returns the known games among ids, in the order of ids.
func (s *PostgresStore) ListGames(ctx context.Context, ids []string) ([]*models.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var games []*models.Game
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&games).Error; err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}

	byID := make(map[string]*models.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}
	ordered := make([]*models.Game, 0, len(games))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
		}
	}
	return ordered, nil
}

// Link adds a lesson link. Links of one lesson are serialized with an
// advisory lock; the partial unique index on (lesson_id, game_id) backs the
// duplicate check.
func (s *PostgresStore) Link(ctx context.Context, link *models.LessonGame, max int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := advisoryLock(tx, "lesson_games:"+link.LessonID); err != nil {
			return err
		}

		var existing []models.LessonGame
		if err := tx.Where("lesson_id = ?", link.LessonID).Find(&existing).Error; err != nil {
			return fmt.Errorf("loading lesson links: %w", err)
		}
		for _, l := range existing {
			if l.GameID == link.GameID {
				return ErrDuplicateLink
			}
		}
		if len(existing) >= max {
			return ErrCapacityExceeded
		}
		if link.Order == 0 {
			link.Order = len(existing) + 1
		}
		if err := tx.Create(link).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateLink
			}
			return fmt.Errorf("inserting lesson link: %w", err)
		}
		return nil
	})
}

// Unlink soft-deletes a lesson link.
func (s *PostgresStore) Unlink(ctx context.Context, lessonID, gameID string) error {
	result := s.db.WithContext(ctx).
		Where("lesson_id = ? AND game_id = ?", lessonID, gameID).
		Delete(&models.LessonGame{})
	if result.Error != nil {
		return fmt.Errorf("deleting lesson link: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLinks returns the links of a lesson ordered by Order.
func (s *PostgresStore) ListLinks(ctx context.Context, lessonID string) ([]models.LessonGame, error) {
	var links []models.LessonGame
	err := s.db.WithContext(ctx).
		Where("lesson_id = ?", lessonID).
		Order(`"order"`).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("listing lesson links: %w", err)
	}
	return links, nil
}

// advisoryLock takes a lock released when tx ends.
func advisoryLock(tx *gorm.DB, key string) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error; err != nil {
		return fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Verify interface compliance.
var (
	_ SessionStore = (*PostgresStore)(nil)
	_ StatsStore   = (*PostgresStore)(nil)
	_ GameCatalog  = (*PostgresStore)(nil)
	_ LessonStore  = (*PostgresStore)(nil)
)
