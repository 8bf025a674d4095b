// Package api is the local REST surface for pushing and scheduling
// notifications from other processes on the host.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"ebibot/internal/eventbus"
	"ebibot/internal/notification"
	"ebibot/internal/transport"
	logx "ebibot/pkg/logx"
)

// Store is the subset of notification.Repository the API uses.
type Store interface {
	Create(ctx context.Context, n notification.NewNotification) (int64, error)
	AllPending(ctx context.Context) ([]notification.Notification, error)
	Cancel(ctx context.Context, id int64) (bool, error)
}

type Config struct {
	Addr string
	// Pprof mounts net/http/pprof under /debug/pprof.
	Pprof            bool
	DefaultChannelID int64
	// Location interprets naive scheduled_at values. Nil means Local.
	Location *time.Location
}

type Option func(*Server)

func WithLogger(log logx.Logger) Option { return func(s *Server) { s.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(s *Server) { s.bus = bus } }

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

type Server struct {
	cfg      Config
	store    Store
	channels transport.Channels
	log      logx.Logger
	bus      eventbus.Bus
	metrics  http.Handler
	now      func() time.Time

	e *echo.Echo
}

func New(cfg Config, store Store, channels transport.Channels, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		channels: channels,
		log:      logx.Nop(),
		bus:      eventbus.Nop{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Location == nil {
		s.cfg.Location = time.Local
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = errorHandler(s.log)
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(requestLogger(s.log))
	e.Use(middleware.Recover())

	g := e.Group("/api")
	g.GET("/health", s.health)
	g.POST("/notify", s.notify)
	g.POST("/schedule", s.schedule)
	g.GET("/scheduled", s.listScheduled)
	g.DELETE("/scheduled/:id", s.cancelScheduled)

	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
	if cfg.Pprof {
		mountPprof(e)
	}
	s.e = e
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.e }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Addr)
	if !isLoopbackAddr(addr) {
		s.log.Warn("api listening on a non-loopback address without auth", logx.String("addr", addr))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	s.log.Info("api listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		s.log.Info("api stopped")
		return nil
	}
	return err
}

func requestLogger(log logx.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the status before logging it
				c.Error(err)
			}
			log.Info("http request",
				logx.String("method", c.Request().Method),
				logx.String("path", c.Request().URL.Path),
				logx.Int("status", c.Response().Status),
				logx.Duration("latency", time.Since(start)),
				logx.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}

func mountPprof(e *echo.Echo) {
	g := e.Group("/debug/pprof")
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(pprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(pprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	g.POST("/symbol", echo.WrapHandler(http.HandlerFunc(pprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(pprof.Trace)))
	// Index also serves the named profiles (heap, goroutine, ...)
	g.GET("/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || strings.TrimSpace(h) == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
