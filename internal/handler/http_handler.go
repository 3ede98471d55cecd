package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/domain"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/registry"
	"github.com/ga-techcraft/Online-Chat-Messenger/internal/service"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/middleware"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/response"
)

// RoomLocator resolves a room to the control address of its relay.
type RoomLocator interface {
	Lookup(ctx context.Context, roomName string) (string, error)
}

// Handler serves the admin HTTP API.
type Handler struct {
	roomService    service.RoomService
	relayService   service.RelayService
	directory      RoomLocator
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler. directory may be nil when the room
// directory is disabled.
func NewHandler(roomService service.RoomService, relayService service.RelayService, directory RoomLocator, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		roomService:    roomService,
		relayService:   relayService,
		directory:      directory,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.ListRooms)
			rooms.GET("/:name", h.GetRoom)

			// Protected routes
			rooms.DELETE("/:name", h.authMiddleware.RequireAuth(), h.CloseRoom)
		}

		api.GET("/directory/:name", h.LookupRoom)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// ListRooms returns a summary of every room.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms := h.roomService.Snapshot(c.Request.Context())
	response.Success(c, gin.H{
		"rooms": rooms,
		"total": len(rooms),
	})
}

// GetRoom returns one room.
func (h *Handler) GetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	name := c.Param("name")
	room, err := h.roomService.GetRoom(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, name).Msg("failed to get room")
		response.InternalError(c, "failed to get room")
		return
	}

	response.Success(c, room)
}

// CloseRoom force-closes a room. Every member receives CLOSE.
func (h *Handler) CloseRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	name := c.Param("name")
	n, err := h.relayService.CloseRoom(ctx, name, pubsub.CloseReasonAdmin)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			response.NotFound(c, "room not found")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, name).Msg("failed to close room")
		response.InternalError(c, "failed to close room")
		return
	}

	l.Info().Str(log.FieldRoom, name).Int("members", n).Msg("room closed by admin")
	response.Success(c, gin.H{
		"room":     name,
		"notified": n,
	})
}

// LookupRoom reports which relay hosts a room, across every instance that
// shares the directory.
func (h *Handler) LookupRoom(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	if h.directory == nil {
		response.ServiceUnavailable(c, "room directory disabled")
		return
	}

	name := c.Param("name")
	addr, err := h.directory.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, registry.ErrRoomNotRegistered) {
			response.NotFound(c, "room not registered")
			return
		}
		l.Error().Err(err).Str(log.FieldRoom, name).Msg("failed to lookup room")
		response.InternalError(c, "failed to lookup room")
		return
	}

	response.Success(c, gin.H{
		"room":    name,
		"address": addr,
	})
}
