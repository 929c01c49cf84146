package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"chat-relay/internal/models"
)

var (
	// ErrBodyTooLarge indicates the raw body exceeded the configured character limit.
	ErrBodyTooLarge = errors.New("request body too large")
	// ErrMalformedJSON indicates the body could not be parsed as JSON.
	ErrMalformedJSON = errors.New("malformed JSON body")
	// ErrMessageRequired indicates an empty message after trimming.
	ErrMessageRequired = errors.New("message is required")
	// ErrMessageTooLong indicates a message longer than the configured limit.
	ErrMessageTooLong = errors.New("message too long")
)

// Limits bounds the accepted request shape. Lengths are counted in characters (runes).
type Limits struct {
	MaxBodyChars    int
	MaxMessageChars int
	MaxHistoryItems int
}

// LengthError reports a field that exceeded its limit.
type LengthError struct {
	Field string
	Limit int
	Err   error
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s exceeds %d characters", e.Field, e.Limit)
}

func (e *LengthError) Unwrap() error {
	return e.Err
}

// ChatRequest models the POST /chat body as sent by the web client.
type ChatRequest struct {
	Message json.RawMessage `json:"message"`
	History json.RawMessage `json:"history"`
}

type historyEntry struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ChatResponse is the success envelope for POST /chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// MaxBodyBytes is the most bytes a body within limits can occupy.
func (l Limits) MaxBodyBytes() int64 {
	return int64(l.MaxBodyChars) * utf8.UTFMax
}

// DecodeChatRequest validates a raw body and normalises it into a ConversationRequest.
func DecodeChatRequest(raw []byte, limits Limits) (models.ConversationRequest, error) {
	if int64(len(raw)) > limits.MaxBodyBytes() || utf8.RuneCount(raw) > limits.MaxBodyChars {
		return models.ConversationRequest{}, &LengthError{Field: "body", Limit: limits.MaxBodyChars, Err: ErrBodyTooLarge}
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return models.ConversationRequest{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	// Valid JSON that is not an object carries no fields.
	var req ChatRequest
	if _, ok := body.(map[string]any); ok {
		if err := json.Unmarshal(raw, &req); err != nil {
			return models.ConversationRequest{}, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
		}
	}

	message := strings.TrimSpace(rawString(req.Message))
	if message == "" {
		return models.ConversationRequest{}, ErrMessageRequired
	}
	if utf8.RuneCountInString(message) > limits.MaxMessageChars {
		return models.ConversationRequest{}, &LengthError{Field: "message", Limit: limits.MaxMessageChars, Err: ErrMessageTooLong}
	}

	return models.ConversationRequest{
		Message: message,
		History: normaliseHistory(req.History, limits),
	}, nil
}

func normaliseHistory(raw json.RawMessage, limits Limits) []models.HistoryItem {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	items := make([]models.HistoryItem, 0, len(entries))
	for _, rawEntry := range entries {
		var entry historyEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			// non-object entries have no content and are dropped
			continue
		}

		content := truncateRunes(strings.TrimSpace(rawString(entry.Content)), limits.MaxMessageChars)
		if content == "" {
			continue
		}

		role := models.RoleUser
		if rawString(entry.Role) == models.RoleAssistant {
			role = models.RoleAssistant
		}
		items = append(items, models.HistoryItem{Role: role, Content: content})
	}

	if len(items) > limits.MaxHistoryItems {
		items = items[len(items)-limits.MaxHistoryItems:]
	}
	return items
}

// rawString returns the value of a JSON string, or "" for any other JSON type.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
