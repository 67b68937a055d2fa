package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"sharedplay/models"
	"sharedplay/repository"

	"github.com/google/uuid"
)

const (
	DefaultExpiryHours     = 24.0
	DefaultMaxParticipants = 50
)

type SessionService struct {
	sessions repository.SessionStore
	catalog  repository.GameCatalog
	tokens   *TokenService
	stats    *StatsService
	notifier Notifier

	maxParticipants int
	expiryHours     float64
	now             func() time.Time
}

// SessionOptions tunes SessionService. Zero values pick the defaults.
type SessionOptions struct {
	MaxParticipants    int
	DefaultExpiryHours float64
}

func NewSessionService(
	sessions repository.SessionStore,
	catalog repository.GameCatalog,
	tokens *TokenService,
	stats *StatsService,
	notifier Notifier,
	opts SessionOptions,
) *SessionService {
	if opts.MaxParticipants <= 0 {
		opts.MaxParticipants = DefaultMaxParticipants
	}
	if opts.DefaultExpiryHours <= 0 {
		opts.DefaultExpiryHours = DefaultExpiryHours
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionService{
		sessions:        sessions,
		catalog:         catalog,
		tokens:          tokens,
		stats:           stats,
		notifier:        notifier,
		maxParticipants: opts.MaxParticipants,
		expiryHours:     opts.DefaultExpiryHours,
		now:             time.Now,
	}
}

type CreateSessionRequest struct {
	GameID          string           `json:"game_id" binding:"required"`
	HostUserID      string           `json:"-"`
	HostDisplayName string           `json:"host_display_name" binding:"required"`
	GameMode        *models.GameMode `json:"game_mode"`
	ExpiresInHours  *float64         `json:"expires_in_hours"`
	AllowSelfStart  *bool            `json:"allow_self_start"`
}

// CreateSessionResponse identifies the new session and its host. The HTTP
// layer fills ParticipantToken.
type CreateSessionResponse struct {
	SessionID         string    `json:"session_id"`
	HostParticipantID string    `json:"host_participant_id"`
	ParticipantToken  string    `json:"participant_token,omitempty"`
	ShareToken        string    `json:"share_token"`
	ShareURL          string    `json:"share_url"`
	ExpiresAt         time.Time `json:"expires_at"`
}

type JoinRequest struct {
	ShareToken  string  `json:"-"`
	DisplayName string  `json:"display_name" binding:"required"`
	UserID      *string `json:"-"`
}

type JoinResponse struct {
	SessionID        string `json:"session_id"`
	ParticipantID    string `json:"participant_id"`
	ParticipantToken string `json:"participant_token,omitempty"`
	IsRejoining      bool   `json:"is_rejoining"`
}

// ResolveResult is a session together with its game definition.
type ResolveResult struct {
	Session *models.GameSession `json:"session"`
	Game    *models.Game        `json:"game,omitempty"`
}

// CompletionState carries the client's final counters and answers.
type CompletionState struct {
	CurrentItemIndex *int           `json:"current_item_index"`
	CorrectAnswers   *int           `json:"correct_answers"`
	IncorrectAnswers *int           `json:"incorrect_answers"`
	HintsUsed        *int           `json:"hints_used"`
	Answers          map[string]any `json:"answers"`
}

type CompleteRequest struct {
	Stars        int              `json:"stars" binding:"min=0,max=5"`
	ScorePercent float64          `json:"score_percent" binding:"min=0,max=100"`
	FinalState   *CompletionState `json:"final_state"`
}

// ProgressUpdate records one step of play.
type ProgressUpdate struct {
	ItemIndex *int  `json:"item_index"`
	Correct   *bool `json:"correct"`
	HintUsed  bool  `json:"hint_used"`
}

// Create opens a new shareable session hosted by req.HostUserID.
func (s *SessionService) Create(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	if strings.TrimSpace(req.HostDisplayName) == "" {
		return nil, fmt.Errorf("host display name required: %w", ErrInvalidInput)
	}

	game, err := s.catalog.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, fmt.Errorf("game %s: %w", req.GameID, err)
	}

	mode := models.ModeCollaborative
	if req.GameMode != nil {
		if !req.GameMode.Valid() {
			return nil, fmt.Errorf("game mode %q: %w", *req.GameMode, ErrInvalidInput)
		}
		mode = *req.GameMode
	}
	hours := s.expiryHours
	if req.ExpiresInHours != nil {
		if *req.ExpiresInHours <= 0 {
			return nil, fmt.Errorf("expires_in_hours must be positive: %w", ErrInvalidInput)
		}
		hours = *req.ExpiresInHours
	}
	allowSelfStart := true
	if req.AllowSelfStart != nil {
		allowSelfStart = *req.AllowSelfStart
	}

	token, err := s.tokens.Generate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := s.tokens.ExpiresAt(now, hours)
	hostUserID := req.HostUserID
	host := models.Participant{
		ParticipantID: uuid.NewString(),
		DisplayName:   strings.TrimSpace(req.HostDisplayName),
		UserID:        &hostUserID,
		JoinedAt:      now,
		IsHost:        true,
		IsActive:      true,
		LastSeenAt:    now,
	}

	sess := &models.GameSession{
		ID:             uuid.NewString(),
		GameID:         game.ID,
		Status:         models.StatusWaiting,
		IsMultiplayer:  true,
		ShareToken:     &token,
		TokenExpiresAt: &expiresAt,
		HostUserID:     &hostUserID,
		AllowSelfStart: allowSelfStart,
		Participants:   []models.Participant{host},
		SharedState:    models.NewSharedState(mode),
		TotalItems:     game.TotalItems(),
		StartedAt:      now,
		CreatedAt:      now,
	}
	sess.AppendEvent(models.EventSessionCreated, now, map[string]any{
		"host_participant_id": host.ParticipantID,
		"game_mode":           mode,
		"expires_at":          expiresAt,
	})

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	log.Printf("Session %s created for game %s by user %s (token expires %s)", sess.ID, game.ID, hostUserID, expiresAt.Format(time.RFC3339))

	return &CreateSessionResponse{
		SessionID:         sess.ID,
		HostParticipantID: host.ParticipantID,
		ShareToken:        token,
		ShareURL:          s.tokens.ShareURL(token),
		ExpiresAt:         expiresAt,
	}, nil
}

// Resolve looks a session up by share token. For expired tokens and ended
// sessions the result is returned together with the error.
func (s *SessionService) Resolve(ctx context.Context, token string) (*ResolveResult, error) {
	sess, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	result := &ResolveResult{Session: sess}

	if err := s.tokens.Validate(sess, s.now()); err != nil {
		return result, err
	}
	if sess.Status.IsTerminal() {
		return result, ErrSessionEnded
	}

	game, err := s.catalog.GetGame(ctx, sess.GameID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	result.Game = game
	return result, nil
}

// Join adds a participant through a share token, or reactivates the matching
// one. Authenticated callers match on UserID; anonymous callers match on the
// exact display name of another anonymous participant.
func (s *SessionService) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("display name required: %w", ErrInvalidInput)
	}

	found, err := s.sessions.FindByToken(ctx, req.ShareToken)
	if err != nil {
		return nil, err
	}

	var resp JoinResponse
	updated, err := s.sessions.Update(ctx, found.ID, func(sess *models.GameSession) error {
		now := s.now()
		if err := s.tokens.Validate(sess, now); err != nil {
			return err
		}
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}

		if p := matchParticipant(sess, name, req.UserID); p != nil {
			p.IsActive = true
			p.LastSeenAt = now
			resp = JoinResponse{SessionID: sess.ID, ParticipantID: p.ParticipantID, IsRejoining: true}
			sess.AppendEvent(models.EventParticipantRejoined, now, map[string]any{
				"participant_id": p.ParticipantID,
				"display_name":   p.DisplayName,
			})
			return nil
		}

		if len(sess.Participants) >= s.maxParticipants {
			return ErrSessionFull
		}

		p := models.Participant{
			ParticipantID: uuid.NewString(),
			DisplayName:   name,
			UserID:        req.UserID,
			JoinedAt:      now,
			IsActive:      true,
			LastSeenAt:    now,
		}
		sess.Participants = append(sess.Participants, p)
		resp = JoinResponse{SessionID: sess.ID, ParticipantID: p.ParticipantID}
		sess.AppendEvent(models.EventParticipantJoined, now, map[string]any{
			"participant_id": p.ParticipantID,
			"display_name":   p.DisplayName,
			"authenticated":  p.UserID != nil,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Participant %s joined session %s (rejoin=%v)", resp.ParticipantID, updated.ID, resp.IsRejoining)
	s.notifier.Publish(ctx, updated.ID, MessageParticipantUpdate, updated.Participants)
	return &resp, nil
}

func matchParticipant(sess *models.GameSession, name string, userID *string) *models.Participant {
	for i := range sess.Participants {
		p := &sess.Participants[i]
		if userID != nil {
			if p.UserID != nil && *p.UserID == *userID {
				return p
			}
			continue
		}
		if p.UserID == nil && p.DisplayName == name {
			return p
		}
	}
	return nil
}

// StartAsHost starts a waiting session. userID must be the host.
func (s *SessionService) StartAsHost(ctx context.Context, sessionID, userID string) (*models.GameSession, error) {
	return s.start(ctx, sessionID, func(sess *models.GameSession) (string, error) {
		host := sess.Host()
		if host == nil || sess.HostUserID == nil || *sess.HostUserID != userID {
			return "", fmt.Errorf("only the host can start this game: %w", ErrUnauthorized)
		}
		return host.ParticipantID, nil
	})
}

// StartAsParticipant starts a waiting session on behalf of any known
// participant, if the host allowed self-start.
func (s *SessionService) StartAsParticipant(ctx context.Context, sessionID, participantID string) (*models.GameSession, error) {
	return s.start(ctx, sessionID, func(sess *models.GameSession) (string, error) {
		if !sess.AllowSelfStart {
			return "", fmt.Errorf("self-start is disabled: %w", ErrUnauthorized)
		}
		if sess.Participant(participantID) == nil {
			return "", fmt.Errorf("participant %s is not in this session: %w", participantID, ErrUnauthorized)
		}
		return participantID, nil
	})
}

func (s *SessionService) start(ctx context.Context, sessionID string, authorize func(*models.GameSession) (string, error)) (*models.GameSession, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		actor, err := authorize(sess)
		if err != nil {
			return err
		}
		if err := requireStatus(sess, models.StatusWaiting, "start"); err != nil {
			return err
		}

		now := s.now()
		sess.Status = models.StatusInProgress
		sess.StartedAt = now
		sess.Touch(actor, now)
		sess.AppendEvent(models.EventGameStarted, now, map[string]any{"started_by": actor})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Session %s started", sess.ID)
	s.notifier.Publish(ctx, sess.ID, MessageGameStarted, sess)
	return sess, nil
}

// Leave deactivates a participant. The host leaving abandons the session.
func (s *SessionService) Leave(ctx context.Context, sessionID, participantID string) (*models.GameSession, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}
		p := sess.Participant(participantID)
		if p == nil {
			return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
		}

		now := s.now()
		p.IsActive = false
		p.LastSeenAt = now
		if p.IsHost {
			s.finish(sess, models.StatusAbandoned, now)
			sess.AppendEvent(models.EventGameAbandoned, now, map[string]any{
				"reason":           "host_left",
				"percent_complete": sess.PercentComplete(),
			})
			return nil
		}
		sess.AppendEvent(models.EventParticipantLeft, now, map[string]any{"participant_id": participantID})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sess.Status == models.StatusAbandoned {
		log.Printf("Host left session %s, session abandoned", sess.ID)
		s.notifier.Publish(ctx, sess.ID, MessageSessionEnded, sess)
		s.recomputeStats(ctx, sess.GameID)
	} else {
		s.notifier.Publish(ctx, sess.ID, MessageParticipantUpdate, sess.Participants)
	}
	return sess, nil
}

// End completes the session on the host's request.
func (s *SessionService) End(ctx context.Context, sessionID, hostUserID, reason string) (*models.GameSession, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.HostUserID == nil || *sess.HostUserID != hostUserID {
			return fmt.Errorf("only the host can end this game: %w", ErrUnauthorized)
		}
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}

		now := s.now()
		s.finish(sess, models.StatusCompleted, now)
		data := map[string]any{"total_time_seconds": *sess.TotalTimeSeconds}
		if reason != "" {
			data["reason"] = reason
		}
		sess.AppendEvent(models.EventSessionEnded, now, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Session %s ended by host", sess.ID)
	s.notifier.Publish(ctx, sess.ID, MessageSessionEnded, sess)
	s.recomputeStats(ctx, sess.GameID)
	return sess, nil
}

// Complete records the final result of a single- or multiplayer session and
// recomputes the game's statistics.
func (s *SessionService) Complete(ctx context.Context, sessionID string, req *CompleteRequest) (*models.GameSession, error) {
	if req.Stars < 0 || req.Stars > 5 || req.ScorePercent < 0 || req.ScorePercent > 100 {
		return nil, fmt.Errorf("stars or score out of range: %w", ErrInvalidInput)
	}

	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}

		now := s.now()
		applyFinalState(sess, req.FinalState)
		stars, score := req.Stars, req.ScorePercent
		sess.Stars = &stars
		sess.ScorePercent = &score
		s.finish(sess, models.StatusCompleted, now)
		sess.AppendEvent(models.EventGameCompleted, now, map[string]any{
			"stars":              stars,
			"score_percent":      score,
			"total_time_seconds": *sess.TotalTimeSeconds,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Session %s completed with %d stars", sess.ID, req.Stars)
	s.notifier.Publish(ctx, sess.ID, MessageSessionEnded, sess)
	s.recomputeStats(ctx, sess.GameID)
	return sess, nil
}

func applyFinalState(sess *models.GameSession, fs *CompletionState) {
	if fs == nil {
		return
	}
	if fs.CurrentItemIndex != nil {
		sess.CurrentItemIndex = *fs.CurrentItemIndex
		sess.SharedState.SyncedItemIndex = *fs.CurrentItemIndex
	}
	if fs.CorrectAnswers != nil {
		sess.CorrectAnswers = *fs.CorrectAnswers
	}
	if fs.IncorrectAnswers != nil {
		sess.IncorrectAnswers = *fs.IncorrectAnswers
	}
	if fs.HintsUsed != nil {
		sess.HintsUsed = *fs.HintsUsed
	}
	if fs.Answers != nil {
		sess.SharedState.Answers = fs.Answers
		sess.SharedState.Bump(models.ResourceGame)
	}
}

// Abandon ends the session without a result.
func (s *SessionService) Abandon(ctx context.Context, sessionID string) (*models.GameSession, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}
		now := s.now()
		s.finish(sess, models.StatusAbandoned, now)
		sess.AppendEvent(models.EventGameAbandoned, now, map[string]any{
			"percent_complete":   sess.PercentComplete(),
			"total_time_seconds": *sess.TotalTimeSeconds,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Session %s abandoned at %.0f%%", sess.ID, sess.PercentComplete())
	s.notifier.Publish(ctx, sess.ID, MessageSessionEnded, sess)
	s.recomputeStats(ctx, sess.GameID)
	return sess, nil
}

// RecordProgress advances the item pointer and answer counters.
func (s *SessionService) RecordProgress(ctx context.Context, sessionID string, upd *ProgressUpdate) (*models.GameSession, error) {
	sess, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if err := requireStatus(sess, models.StatusInProgress, "record progress"); err != nil {
			return err
		}
		now := s.now()
		if upd.ItemIndex != nil {
			if *upd.ItemIndex < 0 || *upd.ItemIndex > sess.TotalItems {
				return fmt.Errorf("item index %d out of range: %w", *upd.ItemIndex, ErrInvalidInput)
			}
			sess.CurrentItemIndex = *upd.ItemIndex
		}
		if upd.Correct != nil {
			if *upd.Correct {
				sess.CorrectAnswers++
			} else {
				sess.IncorrectAnswers++
			}
			sess.AppendEvent(models.EventAnswerSubmitted, now, map[string]any{
				"item_index": sess.CurrentItemIndex,
				"correct":    *upd.Correct,
			})
		}
		if upd.HintUsed {
			sess.HintsUsed++
			sess.AppendEvent(models.EventHintUsed, now, map[string]any{"item_index": sess.CurrentItemIndex})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, sess.ID, MessageProgress, gameProgress(sess))
	return sess, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.GameSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

// finish moves sess into a terminal status and stamps its duration.
func (s *SessionService) finish(sess *models.GameSession, status models.SessionStatus, now time.Time) {
	elapsed := sess.Elapsed(now)
	sess.Status = status
	sess.CompletedAt = &now
	sess.TotalTimeSeconds = &elapsed
}

func (s *SessionService) recomputeStats(ctx context.Context, gameID string) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.Recompute(ctx, gameID); err != nil {
		log.Printf("Failed to recompute stats for game %s: %v", gameID, err)
	}
}

func requireStatus(sess *models.GameSession, want models.SessionStatus, op string) error {
	if sess.Status == want {
		return nil
	}
	if sess.Status.IsTerminal() {
		return ErrSessionEnded
	}
	return fmt.Errorf("cannot %s a session that is %s: %w", op, sess.Status, ErrInvalidTransition)
}

func gameProgress(sess *models.GameSession) map[string]any {
	return map[string]any{
		"current_item_index": sess.CurrentItemIndex,
		"total_items":        sess.TotalItems,
		"correct_answers":    sess.CorrectAnswers,
		"incorrect_answers":  sess.IncorrectAnswers,
		"hints_used":         sess.HintsUsed,
	}
}
