package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharedplay/models"
	"sharedplay/repository"
)

// errControlDenied aborts a store update whose write was refused by the arbiter.
var errControlDenied = errors.New("control denied")

// UpdateResult is returned by every granular shared-state write. A refused
// guarded write is reported with Success=false rather than as an error.
type UpdateResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Version int64  `json:"version,omitempty"`
}

// SharedStatePatch overwrites the named fields only. Nil fields are left alone.
type SharedStatePatch struct {
	SyncedItemIndex *int            `json:"synced_item_index"`
	Answers         *map[string]any `json:"answers"`
	CurrentTurn     *string         `json:"current_turn"`
}

// SharedStateService applies participant updates to a session's shared state.
// Each write touches a single sub-resource and refreshes the writer's presence.
type SharedStateService struct {
	sessions repository.SessionStore
	arbiter  *ControlArbiter
	notifier Notifier
	now      func() time.Time
}

func NewSharedStateService(sessions repository.SessionStore, arbiter *ControlArbiter, notifier Notifier) *SharedStateService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SharedStateService{sessions: sessions, arbiter: arbiter, notifier: notifier, now: time.Now}
}

// UpdateCursor merges the participant's cursor position.
func (s *SharedStateService) UpdateCursor(ctx context.Context, sessionID, participantID string, x, y float64) (*UpdateResult, error) {
	return s.write(ctx, sessionID, participantID, models.ResourceCursors, "", func(sess *models.GameSession, now time.Time) any {
		cursor := models.CursorState{X: x, Y: y, LastUpdate: now}
		sess.SharedState.Cursors[participantID] = cursor
		return map[string]any{"participant_id": participantID, "cursor": cursor}
	})
}

// UpdateInput merges the participant's free-text input for an item.
func (s *SharedStateService) UpdateInput(ctx context.Context, sessionID, participantID, value string, itemIndex int) (*UpdateResult, error) {
	return s.write(ctx, sessionID, participantID, models.ResourceInputs, "", func(sess *models.GameSession, now time.Time) any {
		input := models.InputState{Value: value, ItemIndex: itemIndex, LastUpdate: now}
		sess.SharedState.Inputs[participantID] = input
		return map[string]any{"participant_id": participantID, "input": input}
	})
}

// UpdateElements replaces the drag-and-drop layout, subject to the control mode.
func (s *SharedStateService) UpdateElements(ctx context.Context, sessionID, participantID string, itemIndex int, positions []models.ElementPosition) (*UpdateResult, error) {
	return s.write(ctx, sessionID, participantID, models.ResourceElements, MutationElements, func(sess *models.GameSession, now time.Time) any {
		sess.SharedState.Elements = &models.ElementsState{
			ItemIndex:  itemIndex,
			Positions:  append([]models.ElementPosition(nil), positions...),
			LastUpdate: now,
			UpdatedBy:  participantID,
		}
		return sess.SharedState.Elements
	})
}

// UpdateCrosswordGrid replaces the crossword grid, subject to the control mode.
func (s *SharedStateService) UpdateCrosswordGrid(ctx context.Context, sessionID, participantID string, itemIndex int, gridState string) (*UpdateResult, error) {
	return s.write(ctx, sessionID, participantID, models.ResourceCrosswordGrid, MutationCrosswordGrid, func(sess *models.GameSession, now time.Time) any {
		sess.SharedState.CrosswordGrid = &models.GridState{
			ItemIndex:  itemIndex,
			GridState:  gridState,
			LastUpdate: now,
			UpdatedBy:  participantID,
		}
		return sess.SharedState.CrosswordGrid
	})
}

// UpdateSharedGameState overwrites the fields set in patch.
func (s *SharedStateService) UpdateSharedGameState(ctx context.Context, sessionID, participantID string, patch *SharedStatePatch) (*UpdateResult, error) {
	if patch.SyncedItemIndex != nil && *patch.SyncedItemIndex < 0 {
		return nil, fmt.Errorf("synced item index %d: %w", *patch.SyncedItemIndex, ErrInvalidInput)
	}
	return s.write(ctx, sessionID, participantID, models.ResourceGame, "", func(sess *models.GameSession, _ time.Time) any {
		state := &sess.SharedState
		if patch.SyncedItemIndex != nil {
			state.SyncedItemIndex = *patch.SyncedItemIndex
		}
		if patch.Answers != nil {
			state.Answers = *patch.Answers
		}
		if patch.CurrentTurn != nil {
			turn := *patch.CurrentTurn
			state.CurrentTurn = &turn
		}
		return map[string]any{
			"synced_item_index": state.SyncedItemIndex,
			"answers":           state.Answers,
			"current_turn":      state.CurrentTurn,
		}
	})
}

// write runs apply inside an atomic store update. When kind is set, the
// arbiter is consulted first and a refusal rolls the update back.
func (s *SharedStateService) write(
	ctx context.Context,
	sessionID, participantID, resource string,
	kind MutationKind,
	apply func(sess *models.GameSession, now time.Time) any,
) (*UpdateResult, error) {
	var (
		decision ControlDecision
		payload  any
		version  int64
	)
	_, err := s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.Status.IsTerminal() {
			return ErrSessionEnded
		}
		if sess.Participant(participantID) == nil {
			return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
		}
		if kind != "" {
			decision = s.arbiter.Authorize(sess, participantID, kind)
			if !decision.Allowed {
				return errControlDenied
			}
		}
		if sess.SharedState.Cursors == nil {
			sess.SharedState.Cursors = make(map[string]models.CursorState)
		}
		if sess.SharedState.Inputs == nil {
			sess.SharedState.Inputs = make(map[string]models.InputState)
		}

		now := s.now()
		payload = apply(sess, now)
		version = sess.SharedState.Bump(resource)
		sess.Touch(participantID, now)
		return nil
	})
	if errors.Is(err, errControlDenied) {
		return &UpdateResult{Success: false, Error: decision.Reason}, nil
	}
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, sessionID, MessageStatePrefix+resource, map[string]any{
		"updated_by": participantID,
		"version":    version,
		"data":       payload,
	})
	return &UpdateResult{Success: true, Version: version}, nil
}
