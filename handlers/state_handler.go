package handlers

import (
	"net/http"

	"sharedplay/models"
	"sharedplay/services"

	"github.com/gin-gonic/gin"
)

// StateHandler exposes presence, shared-state and control writes over HTTP.
// The same operations are reachable over the session websocket.
type StateHandler struct {
	state    *services.SharedStateService
	presence *services.PresenceTracker
	control  *services.ControlArbiter
}

func NewStateHandler(state *services.SharedStateService, presence *services.PresenceTracker, control *services.ControlArbiter) *StateHandler {
	return &StateHandler{state: state, presence: presence, control: control}
}

type cursorRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type inputRequest struct {
	Value     string `json:"value"`
	ItemIndex int    `json:"item_index" binding:"min=0"`
}

type elementsRequest struct {
	ItemIndex int                      `json:"item_index" binding:"min=0"`
	Positions []models.ElementPosition `json:"positions"`
}

type crosswordRequest struct {
	ItemIndex int    `json:"item_index" binding:"min=0"`
	GridState string `json:"grid_state"`
}

type sharedStateRequest struct {
	services.SharedStatePatch
}

type grantControlRequest struct {
	TargetParticipantID string `json:"target_participant_id" binding:"required"`
}

type controlModeRequest struct {
	ControlMode  models.ControlMode `json:"control_mode" binding:"required"`
	ControlledBy *string            `json:"controlled_by"`
}

func (h *StateHandler) Heartbeat(c *gin.Context) {
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	if err := h.presence.Heartbeat(c.Request.Context(), c.Param("id"), participantID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *StateHandler) UpdateCursor(c *gin.Context) {
	var req cursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	result, err := h.state.UpdateCursor(c.Request.Context(), c.Param("id"), participantID, req.X, req.Y)
	respondUpdate(c, result, err)
}

func (h *StateHandler) UpdateInput(c *gin.Context) {
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	result, err := h.state.UpdateInput(c.Request.Context(), c.Param("id"), participantID, req.Value, req.ItemIndex)
	respondUpdate(c, result, err)
}

func (h *StateHandler) UpdateElements(c *gin.Context) {
	var req elementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	result, err := h.state.UpdateElements(c.Request.Context(), c.Param("id"), participantID, req.ItemIndex, req.Positions)
	respondUpdate(c, result, err)
}

func (h *StateHandler) UpdateCrossword(c *gin.Context) {
	var req crosswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	result, err := h.state.UpdateCrosswordGrid(c.Request.Context(), c.Param("id"), participantID, req.ItemIndex, req.GridState)
	respondUpdate(c, result, err)
}

func (h *StateHandler) UpdateSharedState(c *gin.Context) {
	var req sharedStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	result, err := h.state.UpdateSharedGameState(c.Request.Context(), c.Param("id"), participantID, &req.SharedStatePatch)
	respondUpdate(c, result, err)
}

func (h *StateHandler) GrantControl(c *gin.Context) {
	var req grantControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	sess, err := h.control.GrantControl(c.Request.Context(), c.Param("id"), participantID, req.TargetParticipantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"control_mode":  sess.SharedState.ControlMode,
		"controlled_by": sess.SharedState.ControlledBy,
	})
}

func (h *StateHandler) SetControlMode(c *gin.Context) {
	var req controlModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	participantID, ok := participantFrom(c)
	if !ok {
		return
	}

	sess, err := h.control.SetControlMode(c.Request.Context(), c.Param("id"), participantID, req.ControlMode, req.ControlledBy)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"control_mode":  sess.SharedState.ControlMode,
		"controlled_by": sess.SharedState.ControlledBy,
	})
}
