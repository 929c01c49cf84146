package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/metrics"
	"chat-relay/internal/ratelimit"
	"chat-relay/internal/router"
	"chat-relay/internal/translator"
)

const shutdownGracePeriod = 10 * time.Second

type Server struct {
	cfg     config.Config
	router  *router.Router
	limiter ratelimit.Limiter
	metrics *metrics.Metrics
	limits  translator.Limits
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, rt *router.Router, limiter ratelimit.Limiter, m *metrics.Metrics) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}
	if limiter == nil {
		return nil, errors.New("rate limiter must not be nil")
	}
	if m == nil {
		return nil, errors.New("metrics must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		limiter: limiter,
		metrics: m,
		limits: translator.Limits{
			MaxBodyChars:    cfg.Limits.MaxBodyChars,
			MaxMessageChars: cfg.Limits.MaxMessageChars,
			MaxHistoryItems: cfg.Limits.MaxHistoryItems,
		},
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.jsonErrorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.WithLevel(levelForStatus(v.Status))
			if v.Error != nil {
				event = event.Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Int64("latency_ms", v.Latency.Milliseconds()).
				Str("request_id", v.RequestID).
				Str("client", ratelimit.ClientKey(c.Request().Header)).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv.app = e
	srv.registerRoutes()

	return srv, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	log.Info().Str("addr", s.address).Msg("starting server")

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Std(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Std(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info().Msg("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/health", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	s.app.POST("/chat", s.handleChat, s.rateLimitMiddleware())
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(c echo.Context) error {
	raw, err := readBody(c, s.limits.MaxBodyBytes())
	if err != nil {
		return err
	}

	req, err := translator.DecodeChatRequest(raw, s.limits)
	if err != nil {
		return toHTTPError(err)
	}

	reply, err := s.router.Chat(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}

	if reply.Handoff {
		s.metrics.ObserveRequest(metrics.OutcomeHandoff)
	} else {
		s.metrics.ObserveRequest(metrics.OutcomeReply)
	}
	return c.JSON(http.StatusOK, translator.ChatResponse{Reply: reply.Text})
}

// readBody reads at most limit+1 bytes so oversized bodies are detected without
// buffering them whole.
func readBody(c echo.Context, limit int64) ([]byte, error) {
	body := c.Request().Body
	if body == nil {
		return nil, nil
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, requestError{
			Status:  http.StatusBadRequest,
			Message: msgUnreadableBody,
			Outcome: metrics.OutcomeInvalid,
		}
	}
	return raw, nil
}

func levelForStatus(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("chat-relay ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /metrics")
	fmt.Println("  POST /chat")
	fmt.Printf("Example:\n  curl http://%s:%d/chat -H 'Content-Type: application/json' -d '{\"message\":\"How do I join a club?\",\"history\":[]}'\n\n", host, port)
}
