// Package httpapi exposes the queue over HTTP: join/leave/status routes,
// a server-sent-events stream of broadcast events, and the operational
// endpoints (metrics, health).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kynortleon/TableHop/internal/broadcast"
	"github.com/kynortleon/TableHop/internal/queue"
)

// userHeader carries the participant identity. Authentication happens
// upstream; this layer trusts the header.
const userHeader = "X-User-ID"

// API bundles the queue routes and their dependencies.
type API struct {
	echo   *echo.Echo
	queues queue.QueueStore
	events *broadcast.Broadcaster
	hub    *broadcast.Hub
	// kick requests an extra match cycle after a join. May be nil.
	kick func()
	// health pings the backing store. May be nil (always healthy).
	health func(ctx context.Context) error
	logger *zap.Logger
}

// New creates the API and registers all routes.
//
// Precondition: queues, events, hub, and logger must be non-nil.
func New(queues queue.QueueStore, events *broadcast.Broadcaster, hub *broadcast.Hub, kick func(), health func(ctx context.Context) error, logger *zap.Logger) *API {
	a := &API{
		echo:   echo.New(),
		queues: queues,
		events: events,
		hub:    hub,
		kick:   kick,
		health: health,
		logger: logger,
	}

	a.echo.POST("/api/queue/join", a.joinQueue)
	a.echo.POST("/api/queue/leave", a.leaveQueue)
	a.echo.GET("/api/queue/status", a.queueStatus)
	a.echo.GET("/api/queue/events", a.streamEvents)
	a.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	a.echo.GET("/health", a.healthCheck)

	return a
}

// Handler returns the API as an http.Handler.
func (a *API) Handler() http.Handler {
	return a.echo
}

type joinRequest struct {
	// DM keeps the client protocol's field name for hosts.
	DM           bool   `json:"dm"`
	ScenarioCode string `json:"scenarioCode"`
	CharacterID  string `json:"characterId"`
}

func (a *API) joinQueue(c echo.Context) error {
	userID := c.Request().Header.Get(userHeader)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": "missing user identity"})
	}

	var req joinRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	role := queue.RolePlayer
	scenarioCode := ""
	characterRef := req.CharacterID
	if req.DM {
		role = queue.RoleHost
		scenarioCode = req.ScenarioCode
		characterRef = ""
		if scenarioCode == "" {
			return c.JSON(http.StatusBadRequest, map[string]any{"error": "scenario code is required for hosts"})
		}
	} else if characterRef == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "character is required for players"})
	}

	ctx := c.Request().Context()
	entry, err := a.queues.UpsertEntry(ctx, userID, role, scenarioCode, characterRef)
	if err != nil {
		a.logger.Error("joining queue", zap.String("participant", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not join queue"})
	}

	a.events.PublishJoined(entry)
	a.events.PublishQueueCounts(ctx)
	if a.kick != nil {
		a.kick()
	}

	return c.JSON(http.StatusOK, map[string]any{"entry": entry})
}

func (a *API) leaveQueue(c echo.Context) error {
	userID := c.Request().Header.Get(userHeader)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]any{"error": "missing user identity"})
	}

	ctx := c.Request().Context()
	entry, err := a.queues.FindByParticipant(ctx, userID)
	if err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
		a.logger.Error("leaving queue", zap.String("participant", userID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not leave queue"})
	}

	// Terminal entries are left untouched; leaving twice is fine.
	if entry != nil && entry.IsWaiting() {
		if err := a.queues.MarkStatus(ctx, []string{entry.ID}, queue.StatusLeft); err != nil {
			a.logger.Error("marking entry left", zap.String("participant", userID), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not leave queue"})
		}
	}

	a.events.PublishQueueCounts(ctx)
	return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) queueStatus(c echo.Context) error {
	ctx := c.Request().Context()

	players, err := a.queues.CountWaiting(ctx, queue.RolePlayer)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not read queue"})
	}
	hosts, err := a.queues.CountWaiting(ctx, queue.RoleHost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not read queue"})
	}

	var entry *queue.QueueEntry
	if userID := c.Request().Header.Get(userHeader); userID != "" {
		entry, err = a.queues.FindByParticipant(ctx, userID)
		if err != nil && !errors.Is(err, queue.ErrEntryNotFound) {
			return c.JSON(http.StatusInternalServerError, map[string]any{"error": "could not read queue"})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"waitingPlayers": players,
		"waitingDMs":     hosts,
		"entry":          entry,
	})
}

// streamEvents pushes broadcast events to the client as server-sent
// events until the client disconnects.
func (a *API) streamEvents(c echo.Context) error {
	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	ch, cancel := a.hub.Subscribe(32)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev.Payload)
			if err != nil {
				a.logger.Warn("encoding event payload", zap.String("kind", string(ev.Kind)), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

func (a *API) healthCheck(c echo.Context) error {
	if a.health != nil {
		if err := a.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
