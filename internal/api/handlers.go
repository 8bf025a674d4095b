package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"ebibot/internal/embeds"
	"ebibot/internal/eventbus"
	"ebibot/internal/notification"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

type notifyRequest struct {
	Message string  `json:"message" validate:"required"`
	Title   *string `json:"title"`
	Color   *int64  `json:"color"`
}

type scheduleRequest struct {
	Message     string  `json:"message" validate:"required"`
	ScheduledAt string  `json:"scheduled_at" validate:"required"`
	Title       *string `json:"title"`
	Color       *int64  `json:"color"`
}

type statusResponse struct {
	Status    string `json:"status"`
	ID        int64  `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type listResponse struct {
	Notifications []notification.Notification `json:"notifications"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{Status: "ok", Timestamp: s.now().Format(time.RFC3339)})
}

// notify posts an embed to the default channel right away. Nothing is stored.
func (s *Server) notify(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if s.cfg.DefaultChannelID == 0 {
		return withStatus(http.StatusInternalServerError, errNoDefaultChannel)
	}

	ctx := c.Request().Context()
	ch, err := transport.Resolve(ctx, s.channels, s.cfg.DefaultChannelID)
	if err != nil {
		return withStatus(http.StatusInternalServerError, err)
	}
	var color int
	if req.Color != nil {
		color = int(*req.Color)
	}
	if err := ch.SendEmbed(ctx, embeds.Notify(req.Message, deref(req.Title), color)); err != nil {
		return withStatus(http.StatusInternalServerError, err)
	}

	s.bus.Publish(eventbus.Event{Type: eventbus.NotifyPosted})
	return c.JSON(http.StatusOK, statusResponse{Status: "sent"})
}

func (s *Server) schedule(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	at, err := notification.ParseScheduledAt(req.ScheduledAt, s.cfg.Location)
	if err != nil {
		return err
	}

	id, err := s.store.Create(c.Request().Context(), notification.NewNotification{
		Message:     req.Message,
		ScheduledAt: at,
		Title:       req.Title,
		Color:       req.Color,
		Source:      notification.SourceAPI,
	})
	if err != nil {
		return err
	}

	s.log.Info("notification scheduled", logx.Int64("id", id), logx.String("at", at))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.NotificationScheduled,
		Data: eventbus.NotificationData{ID: id, Source: notification.SourceAPI},
	})
	return c.JSON(http.StatusOK, statusResponse{Status: "scheduled", ID: id})
}

func (s *Server) listScheduled(c echo.Context) error {
	rows, err := s.store.AllPending(c.Request().Context())
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []notification.Notification{}
	}
	return c.JSON(http.StatusOK, listResponse{Notifications: rows})
}

func (s *Server) cancelScheduled(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return withStatus(http.StatusBadRequest, errBadID)
	}
	ok, err := s.store.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !ok {
		return withStatus(http.StatusNotFound, errNotCancellable)
	}

	s.log.Info("notification cancelled", logx.Int64("id", id))
	s.bus.Publish(eventbus.Event{
		Type: eventbus.NotificationCancelled,
		Data: eventbus.NotificationData{ID: id},
	})
	return c.JSON(http.StatusOK, statusResponse{Status: "cancelled"})
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
