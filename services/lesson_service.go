package services

import (
	"context"
	"fmt"
	"strings"

	"sharedplay/models"
	"sharedplay/repository"

	"github.com/samber/lo"
	"gorm.io/datatypes"
)

type LessonService struct {
	links   repository.LessonStore
	catalog repository.GameCatalog
}

func NewLessonService(links repository.LessonStore, catalog repository.GameCatalog) *LessonService {
	return &LessonService{links: links, catalog: catalog}
}

type LinkGameRequest struct {
	LessonID      string         `json:"-"`
	GameID        string         `json:"game_id" binding:"required"`
	Order         int            `json:"order" binding:"min=0"`
	TriggerType   string         `json:"trigger_type"`
	TriggerConfig datatypes.JSON `json:"trigger_config"`
	IsRequired    bool           `json:"is_required"`
}

// LessonGameOffer is a linked game that can be played in the lesson.
type LessonGameOffer struct {
	Link models.LessonGame `json:"link"`
	Game *models.Game      `json:"game"`
}

// LinkGameToLesson adds a game to a lesson. A lesson holds at most
// models.MaxGamesPerLesson games and each game at most once.
func (s *LessonService) LinkGameToLesson(ctx context.Context, req *LinkGameRequest) (*models.LessonGame, error) {
	if strings.TrimSpace(req.LessonID) == "" || strings.TrimSpace(req.GameID) == "" {
		return nil, fmt.Errorf("lesson and game required: %w", ErrInvalidInput)
	}
	trigger := req.TriggerType
	switch trigger {
	case "":
		trigger = models.TriggerManual
	case models.TriggerManual, models.TriggerAfterSlide, models.TriggerOnKeyword, models.TriggerEndOfLesson:
	default:
		return nil, fmt.Errorf("trigger type %q: %w", trigger, ErrInvalidInput)
	}

	if _, err := s.catalog.GetGame(ctx, req.GameID); err != nil {
		return nil, fmt.Errorf("game %s: %w", req.GameID, err)
	}

	link := &models.LessonGame{
		LessonID:      req.LessonID,
		GameID:        req.GameID,
		Order:         req.Order,
		TriggerType:   trigger,
		TriggerConfig: req.TriggerConfig,
		IsRequired:    req.IsRequired,
	}
	if err := s.links.Link(ctx, link, models.MaxGamesPerLesson); err != nil {
		return nil, err
	}
	return link, nil
}

// UnlinkGame removes a game from a lesson.
func (s *LessonService) UnlinkGame(ctx context.Context, lessonID, gameID string) error {
	return s.links.Unlink(ctx, lessonID, gameID)
}

// ListLessonGames returns the lesson's links in order.
func (s *LessonService) ListLessonGames(ctx context.Context, lessonID string) ([]models.LessonGame, error) {
	return s.links.ListLinks(ctx, lessonID)
}

// GamesForLesson returns the published games linked to a lesson, in link order.
func (s *LessonService) GamesForLesson(ctx context.Context, lessonID string) ([]LessonGameOffer, error) {
	links, err := s.links.ListLinks(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	games, err := s.catalog.ListGames(ctx, lo.Map(links, func(l models.LessonGame, _ int) string { return l.GameID }))
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(games, func(g *models.Game) string { return g.ID })

	return lo.FilterMap(links, func(l models.LessonGame, _ int) (LessonGameOffer, bool) {
		game, ok := byID[l.GameID]
		if !ok || game.Status != models.GameStatusPublished {
			return LessonGameOffer{}, false
		}
		return LessonGameOffer{Link: l, Game: game}, true
	}), nil
}
