package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/metrics"
	"chat-relay/internal/ratelimit"
)

// deniedError carries a limiter denial from the store to the deny handler.
type deniedError struct {
	decision ratelimit.Decision
}

func (e *deniedError) Error() string {
	return "rate limit exceeded"
}

// limiterStore adapts a ratelimit.Limiter to echo's RateLimiterStore.
type limiterStore struct {
	limiter ratelimit.Limiter
}

func (s limiterStore) Allow(identifier string) (bool, error) {
	decision, err := s.limiter.Admit(context.Background(), identifier)
	if err != nil {
		return false, err
	}
	if !decision.Allowed {
		return false, &deniedError{decision: decision}
	}
	return true, nil
}

// rateLimitMiddleware runs before the body is read, so every request counts,
// including ones that later fail validation.
func (s *Server) rateLimitMiddleware() echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: limiterStore{limiter: s.limiter},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return ratelimit.ClientKey(c.Request().Header), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return requestError{Status: http.StatusInternalServerError, Message: msgInternal, Outcome: metrics.OutcomeInternal}
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			var denied *deniedError
			if errors.As(err, &denied) {
				log.Debug().
					Str("client", identifier).
					Dur("retry_after", denied.decision.RetryAfter).
					Msg("rate limit exceeded")
				return rateLimitedError(c, retryAfterSeconds(denied.decision.RetryAfter))
			}
			log.Error().Err(err).Str("client", identifier).Msg("rate limiter failed")
			return requestError{Status: http.StatusInternalServerError, Message: msgInternal, Outcome: metrics.OutcomeInternal}
		},
	})
}
