package services

import (
	"context"
	"fmt"
	"time"

	"sharedplay/models"
	"sharedplay/repository"
)

// MutationKind names the shared-state fields guarded by the control mode.
type MutationKind string

const (
	MutationElements      MutationKind = "elements"
	MutationCrosswordGrid MutationKind = "crossword_grid"
)

// ControlDecision is the outcome of an authorization check.
type ControlDecision struct {
	Allowed bool
	Reason  string
}

// ControlArbiter decides who may write elements and crossword grids, and lets
// the host change that policy.
type ControlArbiter struct {
	sessions repository.SessionStore
	notifier Notifier
	now      func() time.Time
}

func NewControlArbiter(sessions repository.SessionStore, notifier Notifier) *ControlArbiter {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ControlArbiter{sessions: sessions, notifier: notifier, now: time.Now}
}

// Authorize checks participantID against the session's control mode.
// kind is accepted for both guarded fields; the policy is the same for each.
func (a *ControlArbiter) Authorize(sess *models.GameSession, participantID string, kind MutationKind) ControlDecision {
	state := sess.SharedState
	switch state.ControlMode {
	case models.ControlSingle:
		if state.ControlledBy != nil && *state.ControlledBy == participantID {
			return ControlDecision{Allowed: true}
		}
		return ControlDecision{Reason: ReasonNoControl}
	case models.ControlHostOnly:
		if p := sess.Participant(participantID); p != nil && p.IsHost {
			return ControlDecision{Allowed: true}
		}
		return ControlDecision{Reason: ReasonHostOnly}
	default:
		return ControlDecision{Allowed: true}
	}
}

// GrantControl hands exclusive control to target. Only the host may grant.
func (a *ControlArbiter) GrantControl(ctx context.Context, sessionID, hostParticipantID, targetParticipantID string) (*models.GameSession, error) {
	sess, err := a.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if err := requireHostParticipant(sess, hostParticipantID); err != nil {
			return err
		}
		if sess.Participant(targetParticipantID) == nil {
			return fmt.Errorf("participant %s: %w", targetParticipantID, ErrNotFound)
		}

		now := a.now()
		target := targetParticipantID
		sess.SharedState.ControlMode = models.ControlSingle
		sess.SharedState.ControlledBy = &target
		sess.SharedState.Bump(models.ResourceControl)
		sess.Touch(hostParticipantID, now)
		sess.AppendEvent(models.EventControlGranted, now, map[string]any{"controlled_by": target})
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.notifier.Publish(ctx, sess.ID, MessageControlUpdate, controlPayload(sess))
	return sess, nil
}

// SetControlMode changes the control policy. free and host_only clear the
// controlling participant; single uses controlledBy or falls back to the host.
func (a *ControlArbiter) SetControlMode(ctx context.Context, sessionID, hostParticipantID string, mode models.ControlMode, controlledBy *string) (*models.GameSession, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("control mode %q: %w", mode, ErrInvalidInput)
	}

	sess, err := a.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if err := requireHostParticipant(sess, hostParticipantID); err != nil {
			return err
		}

		state := &sess.SharedState
		state.ControlMode = mode
		switch mode {
		case models.ControlSingle:
			target := hostParticipantID
			if controlledBy != nil {
				if sess.Participant(*controlledBy) == nil {
					return fmt.Errorf("participant %s: %w", *controlledBy, ErrNotFound)
				}
				target = *controlledBy
			}
			state.ControlledBy = &target
		default:
			state.ControlledBy = nil
		}
		state.Bump(models.ResourceControl)

		now := a.now()
		sess.Touch(hostParticipantID, now)
		data := map[string]any{"control_mode": mode}
		if state.ControlledBy != nil {
			data["controlled_by"] = *state.ControlledBy
		}
		sess.AppendEvent(models.EventControlModeChanged, now, data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.notifier.Publish(ctx, sess.ID, MessageControlUpdate, controlPayload(sess))
	return sess, nil
}

func requireHostParticipant(sess *models.GameSession, participantID string) error {
	if sess.Status.IsTerminal() {
		return ErrSessionEnded
	}
	p := sess.Participant(participantID)
	if p == nil {
		return fmt.Errorf("participant %s: %w", participantID, ErrNotFound)
	}
	if !p.IsHost {
		return fmt.Errorf("only the host can change control: %w", ErrUnauthorized)
	}
	return nil
}

func controlPayload(sess *models.GameSession) map[string]any {
	return map[string]any{
		"control_mode":  sess.SharedState.ControlMode,
		"controlled_by": sess.SharedState.ControlledBy,
		"version":       sess.SharedState.Versions[models.ResourceControl],
	}
}
