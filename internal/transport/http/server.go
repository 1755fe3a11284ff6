package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/auth"
	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/config"
	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/hub"
	"github.com/vovakirdan/pchat/internal/store"
)

// Chat is the part of the connection manager the control API drives.
type Chat interface {
	Send(command string) error
	Status() client.Status
	Roster() []core.User
}

// NewServer builds the control API server. presence may be nil.
func NewServer(chat Chat, events *hub.Hub, authService *auth.Service, presence store.PresenceStore, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(chat, authService, presence, logger)
	ws := NewWSHandler(chat, events, logger)

	router.GET("/health", healthHandler)
	router.POST("/api/token", api.Token)

	authed := router.Group("/", AuthMiddleware(authService, logger))
	authed.GET("/api/status", api.Status)
	authed.GET("/api/roster", api.Roster)
	authed.POST("/api/send", api.Send)
	authed.GET("/api/users", api.Users)
	authed.GET("/api/users/:name", api.User)
	authed.GET("/ws", ws.Serve)

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
