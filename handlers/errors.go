package handlers

import (
	"errors"
	"log"
	"net/http"

	"sharedplay/services"

	"github.com/gin-gonic/gin"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTokenExpired):
		return http.StatusGone
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrSessionEnded),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrSessionFull),
		errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrDuplicateLink):
		return http.StatusConflict
	case errors.Is(err, services.ErrTokenGenerationFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondUpdate writes a shared-state write result. Denied writes get 403
// with the same body shape.
func respondUpdate(c *gin.Context, result *services.UpdateResult, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusForbidden, result)
		return
	}
	c.JSON(http.StatusOK, result)
}
