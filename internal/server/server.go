// Package server exposes the proposal agent over HTTP.
package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/rfplab/proposal-agent/internal/agent"
	"github.com/rfplab/proposal-agent/internal/health"
	"github.com/rfplab/proposal-agent/internal/memory"
	"github.com/rfplab/proposal-agent/internal/metrics"
	"github.com/rfplab/proposal-agent/internal/requestid"
)

// Config holds configuration for the HTTP server.
type Config struct {
	ListenAddr string
}

// Deps bundles everything the server needs.
type Deps struct {
	Agent    *agent.Agent
	Memory   *memory.Context
	Sessions memory.SessionStore
	Checker  *health.Checker
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Server is the agent's Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   Config
}

// New creates and configures the HTTP server.
func New(cfg Config, deps Deps) *Server {
	logger := deps.Logger

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	handlers := NewHandlers(deps)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(logger)
	s.setupRoutes(handlers, deps.Metrics)

	return s
}

func (s *Server) setupMiddleware(logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		id := c.Get(requestid.Header)
		if id == "" {
			_, id = requestid.New(c.Context())
		}
		c.Set(requestid.Header, id)
		c.Locals("request_id", id)
		return c.Next()
	})

	// Request logging, skipping noisy probes
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", c.Locals("request_id").(string)).
			Msg("api request")

		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, collector *metrics.Metrics) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	promHandler := fasthttpadaptor.NewFastHTTPHandler(collector.Handler())
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		promHandler(c.Context())
		return nil
	})

	v1 := s.app.Group("/api/v1")
	v1.Post("/classify", h.Classify)
	v1.Post("/decompose", h.Decompose)
	v1.Post("/outline", h.Outline)

	conv := v1.Group("/conversation")
	conv.Post("/analyze", h.Analyze)
	conv.Post("/continue", h.Continue)
	conv.Post("/question", h.Question)

	sessions := v1.Group("/sessions")
	sessions.Post("/:id/save", h.SaveSession)
	sessions.Post("/:id/restore", h.RestoreSession)
	sessions.Delete("/:id", h.DeleteSession)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	s.logger.Info().Str("addr", addr).Msg("http server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("http server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   err.Error(),
			Instance: c.Path(),
		})
	}
}
