package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ParticipantTokenHeader carries the token returned by create and join.
	ParticipantTokenHeader = "X-Participant-Token"

	// ParticipantTokenQuery carries the token on websocket upgrades, where
	// browsers cannot set headers.
	ParticipantTokenQuery = "token"

	// ParticipantIDKey is the gin context key holding the verified participant.
	ParticipantIDKey = "participant_id"

	participantTokenType = "participant"
)

var errNotParticipantToken = errors.New("not a participant token")

type participantClaims struct {
	SessionID     string `json:"sid"`
	ParticipantID string `json:"pid"`
	Type          string `json:"typ"`
	jwt.RegisteredClaims
}

// IssueParticipantToken signs a token binding participantID to sessionID.
func IssueParticipantToken(sessionID, participantID, jwtSecret string) (string, error) {
	claims := participantClaims{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Type:          participantTokenType,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}

// ParseParticipantToken validates a participant token and returns the
// session and participant it was issued for.
func ParseParticipantToken(tokenString, jwtSecret string) (sessionID, participantID string, err error) {
	var claims participantClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", "", err
	}
	if claims.Type != participantTokenType || claims.SessionID == "" || claims.ParticipantID == "" {
		return "", "", errNotParticipantToken
	}
	return claims.SessionID, claims.ParticipantID, nil
}

// ParticipantAuth requires a participant token issued for the session named
// by the sessionParam route parameter.
func ParticipantAuth(jwtSecret, sessionParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader(ParticipantTokenHeader)
		if tokenString == "" {
			tokenString = c.Query(ParticipantTokenQuery)
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Participant token required"})
			return
		}

		sessionID, participantID, err := ParseParticipantToken(tokenString, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid participant token"})
			return
		}
		if sessionID != c.Param(sessionParam) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Participant token is for another session"})
			return
		}

		c.Set(ParticipantIDKey, participantID)
		c.Next()
	}
}

// ParticipantID returns the verified participant, if any.
func ParticipantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ParticipantIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
