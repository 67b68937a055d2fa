package services

import (
	"context"
	"testing"

	"sharedplay/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positions() []models.ElementPosition {
	slot := 1
	return []models.ElementPosition{{ID: "w1", X: 10, Y: 20, Slot: &slot}, {ID: "w2", X: 30, Y: 40}}
}

func TestGrantControl_OnlyControllerMayMoveElements(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()
	ana := env.join(t, sess, "Ana")

	got, err := env.arbiter.GrantControl(ctx, sess.ID, hostID, ana)
	require.NoError(t, err)
	assert.Equal(t, models.ControlSingle, got.SharedState.ControlMode)
	require.NotNil(t, got.SharedState.ControlledBy)
	assert.Equal(t, ana, *got.SharedState.ControlledBy)
	assert.Contains(t, eventTypes(got), models.EventControlGranted)
	assert.Contains(t, env.notifier.types(), MessageControlUpdate)

	res, err := env.state.UpdateElements(ctx, sess.ID, ana, 0, positions())
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = env.state.UpdateElements(ctx, sess.ID, hostID, 0, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoControl, res.Error)

	res, err = env.state.UpdateCrosswordGrid(ctx, sess.ID, hostID, 0, "A..B")
	require.NoError(t, err)
	assert.False(t, res.Success)

	state := env.get(t, sess.ID).SharedState
	require.NotNil(t, state.Elements)
	assert.Equal(t, ana, state.Elements.UpdatedBy)
	assert.Len(t, state.Elements.Positions, 2)
	assert.Nil(t, state.CrosswordGrid)
}

func TestSetControlMode_HostOnly(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()
	ana := env.join(t, sess, "Ana")

	got, err := env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlHostOnly, nil)
	require.NoError(t, err)
	assert.Nil(t, got.SharedState.ControlledBy)

	res, err := env.state.UpdateCrosswordGrid(ctx, sess.ID, ana, 0, "AB..")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonHostOnly, res.Error)

	res, err = env.state.UpdateCrosswordGrid(ctx, sess.ID, hostID, 0, "AB..")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1), res.Version)
}

func TestSetControlMode_FreeAllowsEveryone(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()
	ana := env.join(t, sess, "Ana")

	_, err := env.arbiter.GrantControl(ctx, sess.ID, hostID, ana)
	require.NoError(t, err)
	got, err := env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlFree, nil)
	require.NoError(t, err)
	assert.Nil(t, got.SharedState.ControlledBy)

	for _, pid := range []string{hostID, ana} {
		res, err := env.state.UpdateElements(ctx, sess.ID, pid, 0, positions())
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	assert.Equal(t, int64(2), env.get(t, sess.ID).SharedState.Versions[models.ResourceElements])
}

func TestSetControlMode_SingleDefaultsToHost(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()

	got, err := env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlSingle, nil)
	require.NoError(t, err)
	require.NotNil(t, got.SharedState.ControlledBy)
	assert.Equal(t, hostID, *got.SharedState.ControlledBy)

	_, err = env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlSingle, strPtr("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestControl_RequiresHost(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()
	ana := env.join(t, sess, "Ana")

	_, err := env.arbiter.GrantControl(ctx, sess.ID, ana, ana)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.arbiter.SetControlMode(ctx, sess.ID, ana, models.ControlFree, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.arbiter.GrantControl(ctx, sess.ID, hostID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.arbiter.SetControlMode(ctx, sess.ID, hostID, models.ControlMode("anarchy"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Equal(t, models.ControlFree, env.get(t, sess.ID).SharedState.ControlMode)
}

func TestControl_EndedSession(t *testing.T) {
	env := newTestEnv(t, SessionOptions{})
	sess, hostID := env.createSession(t, nil)
	ctx := context.Background()
	ana := env.join(t, sess, "Ana")

	_, err := env.sessions.End(ctx, sess.ID, testHostUserID, "")
	require.NoError(t, err)

	_, err = env.arbiter.GrantControl(ctx, sess.ID, hostID, ana)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestAuthorize(t *testing.T) {
	arbiter := NewControlArbiter(nil, nil)
	sess := &models.GameSession{
		Participants: []models.Participant{
			{ParticipantID: "host", IsHost: true},
			{ParticipantID: "ana"},
		},
		SharedState: models.NewSharedState(models.ModeCollaborative),
	}

	assert.True(t, arbiter.Authorize(sess, "ana", MutationElements).Allowed)

	sess.SharedState.ControlMode = models.ControlSingle
	d := arbiter.Authorize(sess, "ana", MutationElements)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoControl, d.Reason)

	sess.SharedState.ControlledBy = strPtr("ana")
	assert.True(t, arbiter.Authorize(sess, "ana", MutationCrosswordGrid).Allowed)
	assert.False(t, arbiter.Authorize(sess, "host", MutationCrosswordGrid).Allowed)

	sess.SharedState.ControlMode = models.ControlHostOnly
	assert.True(t, arbiter.Authorize(sess, "host", MutationElements).Allowed)
	d = arbiter.Authorize(sess, "ana", MutationElements)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonHostOnly, d.Reason)
}
