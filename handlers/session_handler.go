package handlers

import (
	"log"
	"net/http"

	"sharedplay/middleware"
	"sharedplay/services"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessions  *services.SessionService
	tokens    *services.TokenService
	jwtSecret string
}

func NewSessionHandler(sessions *services.SessionService, tokens *services.TokenService, jwtSecret string) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens, jwtSecret: jwtSecret}
}

type endRequest struct {
	Reason string `json:"reason"`
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.HostUserID = userID

	resp, err := h.sessions.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	resp.ParticipantToken, err = middleware.IssueParticipantToken(resp.SessionID, resp.HostParticipantID, h.jwtSecret)
	if err != nil {
		log.Printf("Error signing host token for session %s: %v", resp.SessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue participant token"})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sess, err := h.sessions.StartAsHost(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) SelfStartSession(c *gin.Context) {
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	sess, err := h.sessions.StartAsParticipant(c.Request.Context(), c.Param("id"), participantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) LeaveSession(c *gin.Context) {
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	sess, err := h.sessions.Leave(c.Request.Context(), c.Param("id"), participantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": sess.Status})
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req endRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sess, err := h.sessions.End(c.Request.Context(), c.Param("id"), userID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) CompleteSession(c *gin.Context) {
	var req services.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.Complete(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) AbandonSession(c *gin.Context) {
	sess, err := h.sessions.Abandon(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) RecordProgress(c *gin.Context) {
	var req services.ProgressUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.sessions.RecordProgress(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"current_item_index": sess.CurrentItemIndex,
		"total_items":        sess.TotalItems,
		"correct_answers":    sess.CorrectAnswers,
		"incorrect_answers":  sess.IncorrectAnswers,
		"hints_used":         sess.HintsUsed,
	})
}

func (h *SessionHandler) RevokeToken(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sess, err := h.tokens.Revoke(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token_expires_at": sess.TokenExpiresAt})
}

// participantFrom returns the participant verified by middleware.ParticipantAuth.
func participantFrom(c *gin.Context) (string, bool) {
	id, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Participant token required"})
	}
	return id, ok
}
