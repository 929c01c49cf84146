package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"chat-relay/internal/credential"
	"chat-relay/internal/metrics"
	"chat-relay/internal/provider"
	"chat-relay/internal/translator"
)

const (
	msgTooLarge       = "Request body is too large."
	msgMalformedJSON  = "Invalid JSON body."
	msgUnreadableBody = "Could not read request body."
	msgRequired       = "Message is required."
	msgTooLongFmt     = "Message is too long (max %d characters)."
	msgNotConfigured  = "The assistant is not configured. Please contact the site administrator."
	msgUpstream       = "The assistant is unavailable right now. Please try again later."
	msgInternal       = "Something went wrong. Please try again later."
	msgRateLimitedFmt = "Too many requests. Please wait %d seconds and try again."
)

// requestError is an error that already knows its HTTP status and public message.
type requestError struct {
	Status  int
	Message string
	Outcome string
}

func (e requestError) Error() string {
	return e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

// jsonErrorHandler renders every failure as {"error": "..."}.
func (s *Server) jsonErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if !errors.As(err, &reqErr) {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			reqErr = requestError{Status: he.Code, Message: http.StatusText(he.Code)}
			if msg, ok := he.Message.(string); ok && msg != "" {
				reqErr.Message = msg
			}
		} else {
			log.Error().Err(err).Msg("unhandled error")
			reqErr = requestError{Status: http.StatusInternalServerError, Message: msgInternal, Outcome: metrics.OutcomeInternal}
		}
	}

	if reqErr.Outcome != "" {
		s.metrics.ObserveRequest(reqErr.Outcome)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(reqErr.Status)
	} else {
		writeErr = c.JSON(reqErr.Status, errorBody{Error: reqErr.Message})
	}
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("failed to write error response")
	}
}

// toHTTPError maps pipeline failures to status codes and public messages.
func toHTTPError(err error) error {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var lengthErr *translator.LengthError
	var upErr *provider.UpstreamError

	switch {
	case errors.Is(err, translator.ErrBodyTooLarge):
		return requestError{Status: http.StatusRequestEntityTooLarge, Message: msgTooLarge, Outcome: metrics.OutcomeTooLarge}
	case errors.Is(err, translator.ErrMalformedJSON):
		return requestError{Status: http.StatusBadRequest, Message: msgMalformedJSON, Outcome: metrics.OutcomeInvalid}
	case errors.Is(err, translator.ErrMessageRequired):
		return requestError{Status: http.StatusBadRequest, Message: msgRequired, Outcome: metrics.OutcomeInvalid}
	case errors.Is(err, translator.ErrMessageTooLong) && errors.As(err, &lengthErr):
		return requestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(msgTooLongFmt, lengthErr.Limit), Outcome: metrics.OutcomeInvalid}
	case errors.Is(err, credential.ErrMissingCredential):
		log.Error().Err(err).Msg("upstream credential missing; set the api key env var or the fallback secrets file")
		return requestError{Status: http.StatusInternalServerError, Message: msgNotConfigured, Outcome: metrics.OutcomeConfiguration}
	case errors.As(err, &upErr):
		log.Warn().Err(err).Int("upstream_status", upErr.StatusCode).Bool("timeout", upErr.Timeout).Msg("upstream call failed")
		message := upErr.Message
		if message == "" {
			message = msgUpstream
		}
		return requestError{Status: http.StatusInternalServerError, Message: message, Outcome: metrics.OutcomeUpstream}
	}

	log.Error().Err(err).Msg("unexpected chat error")
	return requestError{Status: http.StatusInternalServerError, Message: msgInternal, Outcome: metrics.OutcomeInternal}
}

// retryAfterSeconds rounds up so a client never retries early.
func retryAfterSeconds(d time.Duration) int {
	secs := d.Seconds()
	whole := int(secs)
	if float64(whole) < secs {
		whole++
	}
	return max(whole, 1)
}

func rateLimitedError(c echo.Context, retryAfter int) requestError {
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return requestError{
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf(msgRateLimitedFmt, retryAfter),
		Outcome: metrics.OutcomeRateLimited,
	}
}
