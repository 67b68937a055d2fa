package routes

import (
	"fmt"
	"log"
	"net/http"

	"sharedplay/handlers"
	"sharedplay/middleware"
	"sharedplay/services"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	cachecontrol "go.eigsys.de/gin-cachecontrol/v2"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handlers struct {
	Sessions *handlers.SessionHandler
	Share    *handlers.ShareHandler
	State    *handlers.StateHandler
	Lessons  *handlers.LessonHandler
}

func SetupRoutes(
	router *gin.Engine,
	h Handlers,
	hub *services.Hub,
	sessionService *services.SessionService,
	jwtSecret string,
) {
	api := router.Group("/api")
	api.Use(
		gzip.Gzip(gzip.DefaultCompression),
		cachecontrol.New(cachecontrol.Config{
			NoStore:        true,
			NoCache:        true,
			MustRevalidate: true,
		}),
	)
	{
		// Share links are public; joining picks up the user when logged in.
		share := api.Group("/share/:token")
		{
			share.GET("", h.Share.ResolveShare)
			share.GET("/qr", h.Share.ShareQRCode)
			share.POST("/join", middleware.OptionalAuth(jwtSecret), h.Share.JoinShare)
		}

		sessions := api.Group("/sessions")
		{
			sessions.POST("", middleware.AuthMiddleware(jwtSecret), h.Sessions.CreateSession)
			sessions.GET("/:id", h.Sessions.GetSession)

			sessions.POST("/:id/start", middleware.AuthMiddleware(jwtSecret), h.Sessions.StartSession)
			sessions.POST("/:id/end", middleware.AuthMiddleware(jwtSecret), h.Sessions.EndSession)
			sessions.POST("/:id/revoke", middleware.AuthMiddleware(jwtSecret), h.Sessions.RevokeToken)

			// Participant-scoped writes act as the participant named in the
			// token returned by create or join, never one named in the body.
			member := middleware.ParticipantAuth(jwtSecret, "id")
			sessions.POST("/:id/self-start", member, h.Sessions.SelfStartSession)
			sessions.POST("/:id/leave", member, h.Sessions.LeaveSession)
			sessions.POST("/:id/complete", member, h.Sessions.CompleteSession)
			sessions.POST("/:id/abandon", member, h.Sessions.AbandonSession)
			sessions.POST("/:id/progress", member, h.Sessions.RecordProgress)

			sessions.POST("/:id/heartbeat", member, h.State.Heartbeat)
			sessions.POST("/:id/cursor", member, h.State.UpdateCursor)
			sessions.POST("/:id/input", member, h.State.UpdateInput)
			sessions.POST("/:id/elements", member, h.State.UpdateElements)
			sessions.POST("/:id/crossword", member, h.State.UpdateCrossword)
			sessions.POST("/:id/state", member, h.State.UpdateSharedState)
			sessions.POST("/:id/control/grant", member, h.State.GrantControl)
			sessions.POST("/:id/control/mode", member, h.State.SetControlMode)
		}

		api.GET("/games/:id/stats", h.Lessons.GetGameStats)

		lessons := api.Group("/lessons/:id/games")
		{
			lessons.GET("", h.Lessons.ListLessonGames)
			lessons.POST("", middleware.AuthMiddleware(jwtSecret), h.Lessons.LinkGame)
			lessons.DELETE("/:gameId", middleware.AuthMiddleware(jwtSecret), h.Lessons.UnlinkGame)
		}
	}

	// WebSocket endpoint for a session room. Browsers pass the participant
	// token as ?token= since they cannot set upgrade headers.
	router.GET("/ws/:sessionId/:participantId", middleware.ParticipantAuth(jwtSecret, "sessionId"), func(c *gin.Context) {
		sessionID := c.Param("sessionId")
		participantID := c.Param("participantId")

		if verified, _ := middleware.ParticipantID(c); verified != participantID {
			log.Printf("Participant token for %s used to connect as %s in session %s", verified, participantID, sessionID)
			c.JSON(http.StatusForbidden, gin.H{"error": "Participant token is for another participant"})
			return
		}

		if err := validateParticipantAccess(c, sessionService, sessionID, participantID); err != nil {
			log.Printf("Participant access validation failed for session %s, participant %s: %v", sessionID, participantID, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Participant not found in session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for session %s, participant %s: %v", sessionID, participantID, err)
			return
		}

		log.Printf("WebSocket connection established for session %s, participant %s", sessionID, participantID)
		hub.RegisterClient(conn, sessionID, participantID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// validateParticipantAccess checks that the participant belongs to a session
// that is still open.
func validateParticipantAccess(c *gin.Context, sessionService *services.SessionService, sessionID, participantID string) error {
	sess, err := sessionService.Get(c.Request.Context(), sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}
	if sess.Status.IsTerminal() {
		return services.ErrSessionEnded
	}
	if sess.Participant(participantID) == nil {
		return fmt.Errorf("participant %s not found in session %s", participantID, sessionID)
	}
	return nil
}
