package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"sharedplay/models"
	"sharedplay/repository"
)

const (
	// TokenAlphabet leaves out 0, O, o, 1, I and l.
	TokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"
	TokenLength   = 12

	maxTokenAttempts = 5
)

// TokenService issues, validates and revokes share tokens.
type TokenService struct {
	sessions repository.SessionStore
	baseURL  string
	now      func() time.Time
	random   func() (string, error)
}

// NewTokenService creates a token service. baseURL prefixes share URLs.
func NewTokenService(sessions repository.SessionStore, baseURL string) *TokenService {
	return &TokenService{
		sessions: sessions,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
		random:   randomToken,
	}
}

// Generate returns a token that no live session holds.
func (s *TokenService) Generate(ctx context.Context) (string, error) {
	now := s.now()
	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := s.random()
		if err != nil {
			return "", fmt.Errorf("reading random token: %w", err)
		}

		inUse, err := s.sessions.TokenInUse(ctx, token, now)
		if err != nil {
			return "", err
		}
		if !inUse {
			return token, nil
		}
		log.Printf("Share token collision on attempt %d", attempt)
	}

	log.Printf("ALERT: share token generation failed after %d attempts", maxTokenAttempts)
	return "", ErrTokenGenerationFailed
}

// ExpiresAt returns the absolute expiry for a token issued at now.
func (s *TokenService) ExpiresAt(now time.Time, hours float64) time.Time {
	return now.Add(time.Duration(hours * float64(time.Hour)))
}

// Validate fails with ErrTokenExpired when the session's token is past its expiry.
func (s *TokenService) Validate(sess *models.GameSession, now time.Time) error {
	if sess.TokenExpiresAt != nil && sess.TokenExpiresAt.Before(now) {
		return ErrTokenExpired
	}
	return nil
}

// ShareURL is the public play link for token.
func (s *TokenService) ShareURL(token string) string {
	return s.baseURL + "/games/play/" + token
}

// Revoke expires the session's token immediately. Only the host may revoke.
func (s *TokenService) Revoke(ctx context.Context, sessionID, hostUserID string) (*models.GameSession, error) {
	return s.sessions.Update(ctx, sessionID, func(sess *models.GameSession) error {
		if sess.HostUserID == nil || *sess.HostUserID != hostUserID {
			return fmt.Errorf("revoking token: %w", ErrUnauthorized)
		}
		now := s.now()
		sess.TokenExpiresAt = &now
		sess.AppendEvent(models.EventTokenRevoked, now, nil)
		return nil
	})
}

func randomToken() (string, error) {
	max := big.NewInt(int64(len(TokenAlphabet)))
	var b strings.Builder
	b.Grow(TokenLength)
	for i := 0; i < TokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(TokenAlphabet[n.Int64()])
	}
	return b.String(), nil
}
