package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"sharedplay/services"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("game g1: %w", services.ErrNotFound), http.StatusNotFound},
		{services.ErrTokenExpired, http.StatusGone},
		{services.ErrUnauthorized, http.StatusForbidden},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrSessionEnded, http.StatusConflict},
		{services.ErrInvalidTransition, http.StatusConflict},
		{services.ErrSessionFull, http.StatusConflict},
		{services.ErrCapacityExceeded, http.StatusConflict},
		{services.ErrDuplicateLink, http.StatusConflict},
		{services.ErrTokenGenerationFailed, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
