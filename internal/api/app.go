// Package api serves the sources and the resolution pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"anistream/internal/media"
	"anistream/internal/pipeline"
	"anistream/internal/provider"
)

// Server exposes a registry and a pipeline as a JSON API.
type Server struct {
	registry *provider.Registry
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	app      *fiber.App
}

// Options configures a Server.
type Options struct {
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// New builds the fiber app and its routes.
func New(reg *provider.Registry, pl *pipeline.Pipeline, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{registry: reg, pipeline: pl, logger: logger}

	s.app = fiber.New(fiber.Config{
		AppName:               "anistream",
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)

	origins := "*"
	if len(opts.AllowedOrigins) > 0 {
		origins = strings.Join(opts.AllowedOrigins, ", ")
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET,HEAD",
	}))

	s.routes()
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is done.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() { errc <- s.app.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down api server")
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("api request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"elapsed", time.Since(start),
	)
	return err
}

type errorJSON struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusOf maps error kinds to HTTP statuses: the caller's mistakes are 4xx,
// upstream sites misbehaving is 502.
func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, media.ErrUnknownSource):
		return fiber.StatusNotFound
	case errors.Is(err, errInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return fiber.StatusRequestTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusBadGateway
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	body := errorJSON{Error: pipeline.Message(err), Detail: err.Error()}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		body = errorJSON{Error: fe.Message}
	}
	if status >= 500 {
		s.logger.Warn("api request failed", "path", c.Path(), "status", status, "err", err)
	}
	return c.Status(status).JSON(body)
}
