package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "s3cret"

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	return r
}

func get(r *gin.Engine, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(secret))

	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"Authorization": "Bearer garbage"}).Code)

	wrong, err := IssueToken("u1", "other-secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"Authorization": "Bearer " + wrong}).Code)

	token, err := IssueToken("u1", secret)
	require.NoError(t, err)
	w := get(r, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u1"}`, w.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	r := newRouter(OptionalAuth(secret))

	w := get(r, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":""}`, w.Body.String())

	token, err := IssueToken("u2", secret)
	require.NoError(t, err)
	w = get(r, map[string]string{"Authorization": "Bearer " + token})
	assert.JSONEq(t, `{"user_id":"u2"}`, w.Body.String())
}

func TestParseToken(t *testing.T) {
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": float64(42)})
	s, err := legacy.SignedString([]byte(secret))
	require.NoError(t, err)
	id, err := ParseToken(s, secret)
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	s, err = expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = ParseToken(s, secret)
	assert.Error(t, err)

	empty := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "x"})
	s, err = empty.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = ParseToken(s, secret)
	assert.Error(t, err)
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())

	w := get(r, nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = get(r, map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestCORS_Preflight(t *testing.T) {
	r := newRouter(CORS())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2)
	r := newRouter(limiter.Middleware())

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, nil).Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(10, 10)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.get("1.1.1.1")
	now = now.Add(time.Hour)
	limiter.get("2.2.2.2")

	assert.Equal(t, 1, limiter.Cleanup(30*time.Minute))
	assert.Len(t, limiter.clients, 1)
}

func TestParticipantToken_RoundTripAndKinds(t *testing.T) {
	token, err := IssueParticipantToken("s1", "p1", secret)
	require.NoError(t, err)

	sid, pid, err := ParseParticipantToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "s1", sid)
	assert.Equal(t, "p1", pid)

	_, _, err = ParseParticipantToken(token, "other-secret")
	assert.Error(t, err)

	// User and participant tokens are not interchangeable.
	_, err = ParseToken(token, secret)
	assert.Error(t, err)
	user, err := IssueToken("u1", secret)
	require.NoError(t, err)
	_, _, err = ParseParticipantToken(user, secret)
	assert.ErrorIs(t, err, errNotParticipantToken)

	noSession, err := IssueParticipantToken("", "p1", secret)
	require.NoError(t, err)
	_, _, err = ParseParticipantToken(noSession, secret)
	assert.ErrorIs(t, err, errNotParticipantToken)
}

func TestParticipantAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sessions/:id/leave", ParticipantAuth(secret, "id"), func(c *gin.Context) {
		id, _ := ParticipantID(c)
		c.JSON(http.StatusOK, gin.H{"participant_id": id})
	})
	send := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if header != "" {
			req.Header.Set(ParticipantTokenHeader, header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	token, err := IssueParticipantToken("s1", "p1", secret)
	require.NoError(t, err)
	user, err := IssueToken("u1", secret)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, send("/sessions/s1/leave", "").Code)
	assert.Equal(t, http.StatusUnauthorized, send("/sessions/s1/leave", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, send("/sessions/s1/leave", user).Code)
	assert.Equal(t, http.StatusForbidden, send("/sessions/s2/leave", token).Code)

	w := send("/sessions/s1/leave", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"participant_id":"p1"}`, w.Body.String())

	w = send("/sessions/s1/leave?"+ParticipantTokenQuery+"="+token, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
