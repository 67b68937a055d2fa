package handlers

import (
	"errors"
	"log"
	"net/http"

	"sharedplay/middleware"
	"sharedplay/services"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

type ShareHandler struct {
	sessions  *services.SessionService
	tokens    *services.TokenService
	jwtSecret string
}

func NewShareHandler(sessions *services.SessionService, tokens *services.TokenService, jwtSecret string) *ShareHandler {
	return &ShareHandler{sessions: sessions, tokens: tokens, jwtSecret: jwtSecret}
}

// ResolveShare always answers 200 for a known token. The "error" field is
// null, "expired" or "ended".
func (h *ShareHandler) ResolveShare(c *gin.Context) {
	result, err := h.sessions.Resolve(c.Request.Context(), c.Param("token"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"error": nil, "session": result.Session, "game": result.Game})
	case errors.Is(err, services.ErrTokenExpired):
		c.JSON(http.StatusOK, gin.H{"error": "expired", "session": result.Session})
	case errors.Is(err, services.ErrSessionEnded):
		c.JSON(http.StatusOK, gin.H{"error": "ended", "session": result.Session})
	default:
		respondError(c, err)
	}
}

func (h *ShareHandler) JoinShare(c *gin.Context) {
	var req services.JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ShareToken = c.Param("token")
	if userID, ok := middleware.UserID(c); ok {
		req.UserID = &userID
	}

	resp, err := h.sessions.Join(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp.ParticipantToken, err = middleware.IssueParticipantToken(resp.SessionID, resp.ParticipantID, h.jwtSecret)
	if err != nil {
		log.Printf("Error signing participant token for session %s: %v", resp.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue participant token"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ShareQRCode renders the share URL of a live token as a PNG.
func (h *ShareHandler) ShareQRCode(c *gin.Context) {
	token := c.Param("token")
	if _, err := h.sessions.Resolve(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}

	png, err := qrcode.Encode(h.tokens.ShareURL(token), qrcode.Medium, qrSize)
	if err != nil {
		log.Printf("Error encoding QR code for token %s: %v", token, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}
