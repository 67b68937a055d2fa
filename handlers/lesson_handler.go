package handlers

import (
	"errors"
	"net/http"

	"sharedplay/models"
	"sharedplay/services"

	"github.com/gin-gonic/gin"
)

type LessonHandler struct {
	lessons *services.LessonService
	stats   *services.StatsService
}

func NewLessonHandler(lessons *services.LessonService, stats *services.StatsService) *LessonHandler {
	return &LessonHandler{lessons: lessons, stats: stats}
}

func (h *LessonHandler) ListLessonGames(c *gin.Context) {
	offers, err := h.lessons.GamesForLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, offers)
}

func (h *LessonHandler) LinkGame(c *gin.Context) {
	var req services.LinkGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.LessonID = c.Param("id")

	link, err := h.lessons.LinkGameToLesson(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *LessonHandler) UnlinkGame(c *gin.Context) {
	if err := h.lessons.UnlinkGame(c.Request.Context(), c.Param("id"), c.Param("gameId")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Game unlinked from lesson"})
}

// GetGameStats returns the game's aggregates. A game never played yet gets
// zeroed statistics.
func (h *LessonHandler) GetGameStats(c *gin.Context) {
	gameID := c.Param("id")
	stats, err := h.stats.Get(c.Request.Context(), gameID)
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusOK, &models.GameStats{GameID: gameID})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
