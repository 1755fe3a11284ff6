package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/auth"
	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/store"
)

// APIHandlers provides HTTP handlers for the control API.
type APIHandlers struct {
	chat        Chat
	authService *auth.Service
	presence    store.PresenceStore
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance. presence may be nil.
func NewAPIHandlers(chat Chat, authService *auth.Service, presence store.PresenceStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		chat:        chat,
		authService: authService,
		presence:    presence,
		log:         logger,
	}
}

// TokenRequest represents the token request body.
type TokenRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenResponse represents the token response body.
type TokenResponse struct {
	Token string `json:"token"`
}

// SendRequest represents a raw command to send to the chat server.
type SendRequest struct {
	Command string `json:"command" binding:"required"`
}

// RosterResponse represents the current roster.
type RosterResponse struct {
	Channel string `json:"channel"`
	Users   any    `json:"users"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Token exchanges the control password for a JWT.
// POST /api/token
func (h *APIHandlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, auth.ErrLoginDisabled):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "password login disabled"})
		default:
			h.log.Error().Err(err).Msg("failed to issue token")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Msg("control token issued")
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Status reports the connection state.
// GET /api/status
func (h *APIHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.chat.Status())
}

// Roster returns the current roster snapshot.
// GET /api/roster
func (h *APIHandlers) Roster(c *gin.Context) {
	c.JSON(http.StatusOK, RosterResponse{
		Channel: h.chat.Status().Channel,
		Users:   usersToResponse(h.chat.Roster()),
	})
}

// Send forwards a raw command line to the chat server.
// POST /api/send
func (h *APIHandlers) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Command) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.chat.Send(strings.TrimSpace(req.Command)); err != nil {
		if errors.Is(err, client.ErrNotRunning) || errors.Is(err, client.ErrNotConnected) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		h.log.Warn().Err(err).Msg("send failed")
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "send failed"})
		return
	}
	c.Status(http.StatusAccepted)
}

// User looks up a user in the presence directory.
// GET /api/users/:name
func (h *APIHandlers) User(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "presence directory disabled"})
		return
	}

	sg, err := h.presence.GetSighting(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("name", c.Param("name")).Msg("failed to look up user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, sightingToResponse(sg))
}

// Users lists recently seen users.
// GET /api/users?limit=N
func (h *APIHandlers) Users(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "presence directory disabled"})
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	sightings, err := h.presence.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]SightingResponse, 0, len(sightings))
	for _, sg := range sightings {
		out = append(out, sightingToResponse(sg))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}
