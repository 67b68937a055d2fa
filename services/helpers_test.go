package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"sharedplay/models"
	"sharedplay/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const (
	testGameID     = "game-1"
	testHostUserID = "user-host"
	testBaseURL    = "https://play.example.com"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type published struct {
	SessionID string
	Type      string
	Payload   any
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []published
}

func (n *recordingNotifier) Publish(_ context.Context, sessionID, msgType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, published{SessionID: sessionID, Type: msgType, Payload: payload})
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.msgs))
	for _, m := range n.msgs {
		out = append(out, m.Type)
	}
	return out
}

type testEnv struct {
	store    *repository.MemoryStore
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *TokenService
	stats    *StatsService
	sessions *SessionService
	arbiter  *ControlArbiter
	state    *SharedStateService
	presence *PresenceTracker
	lessons  *LessonService
}

func newTestEnv(t *testing.T, opts SessionOptions) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	clock := newFakeClock()
	notifier := &recordingNotifier{}

	env := &testEnv{store: store, clock: clock, notifier: notifier}
	env.tokens = NewTokenService(store, testBaseURL)
	env.tokens.now = clock.Now
	env.stats = NewStatsService(store, store)
	env.stats.now = clock.Now
	env.sessions = NewSessionService(store, store, env.tokens, env.stats, notifier, opts)
	env.sessions.now = clock.Now
	env.arbiter = NewControlArbiter(store, notifier)
	env.arbiter.now = clock.Now
	env.state = NewSharedStateService(store, env.arbiter, notifier)
	env.state.now = clock.Now
	env.presence = NewPresenceTracker(store)
	env.presence.now = clock.Now
	env.lessons = NewLessonService(store, store)

	putGame(store, testGameID, models.GameSentenceBuilder, models.GameStatusPublished,
		`{"items":[{"words":["a"]},{"words":["b"]},{"words":["c"]},{"words":["d"]}]}`)
	return env
}

func putGame(store *repository.MemoryStore, id string, typ models.GameType, status, config string) {
	store.PutGame(&models.Game{ID: id, Title: "Game " + id, Type: typ, Status: status, Config: datatypes.JSON(config)})
}

// createSession opens a session hosted by testHostUserID and returns it with
// the host's participant ID.
func (e *testEnv) createSession(t *testing.T, mutate func(*CreateSessionRequest)) (*models.GameSession, string) {
	t.Helper()

	req := &CreateSessionRequest{GameID: testGameID, HostUserID: testHostUserID, HostDisplayName: "Ms Rivera"}
	if mutate != nil {
		mutate(req)
	}
	resp, err := e.sessions.Create(context.Background(), req)
	require.NoError(t, err)

	sess, err := e.store.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	host := sess.Host()
	require.NotNil(t, host)
	return sess, host.ParticipantID
}

func (e *testEnv) join(t *testing.T, sess *models.GameSession, name string) string {
	t.Helper()

	resp, err := e.sessions.Join(context.Background(), &JoinRequest{ShareToken: *sess.ShareToken, DisplayName: name})
	require.NoError(t, err)
	return resp.ParticipantID
}

func (e *testEnv) get(t *testing.T, id string) *models.GameSession {
	t.Helper()

	sess, err := e.store.Get(context.Background(), id)
	require.NoError(t, err)
	return sess
}

func eventTypes(sess *models.GameSession) []string {
	out := make([]string, 0, len(sess.Events))
	for _, ev := range sess.Events {
		out = append(out, ev.Type)
	}
	return out
}

func strPtr(s string) *string { return &s }
