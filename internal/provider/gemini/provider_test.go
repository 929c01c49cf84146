package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-relay/internal/config"
	"chat-relay/internal/conversation"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
)

func newTestProvider(t *testing.T, baseURL string, client *http.Client) *Provider {
	t.Helper()
	cfg := config.Default().Upstream
	cfg.BaseURL = baseURL
	cfg.Model = "gemini-test"
	if client == nil {
		client = &http.Client{}
	}
	p, err := New("gemini", cfg, client)
	require.NoError(t, err)
	return p
}

func candidateBody(parts ...string) map[string]any {
	ps := make([]map[string]any, 0, len(parts))
	for _, p := range parts {
		ps = append(ps, map[string]any{"text": p})
	}
	return map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"role": "model", "parts": ps}},
		},
	}
}

var testPayload = models.UpstreamPayload{
	SystemInstruction: "be brief",
	Contents: []models.Content{
		{Role: "user", Text: "hi"},
		{Role: "model", Text: "hello"},
		{Role: "user", Text: "what now?"},
	},
}

func TestNew_Validation(t *testing.T) {
	cfg := config.Default().Upstream

	_, err := New("gemini", cfg, nil)
	assert.Error(t, err)

	cfg.BaseURL = ""
	_, err = New("gemini", cfg, &http.Client{})
	assert.Error(t, err)

	cfg = config.Default().Upstream
	cfg.Model = " "
	_, err = New("gemini", cfg, &http.Client{})
	assert.Error(t, err)
}

func TestGenerate_RequestShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req generatePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "be brief", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)
		assert.Equal(t, "what now?", req.Contents[2].Parts[0].Text)
		assert.Equal(t, 0.3, req.GenerationConfig.Temperature)
		assert.Equal(t, 512, req.GenerationConfig.MaxOutputTokens)

		_ = json.NewEncoder(w).Encode(candidateBody("X"))
	}))
	defer server.Close()

	reply, err := newTestProvider(t, server.URL, nil).Generate(context.Background(), testPayload, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, "X", reply)
}

func TestGenerate_ConcatenatesParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(candidateBody("  Hello, ", "world!  "))
	}))
	defer server.Close()

	reply, err := newTestProvider(t, server.URL, nil).Generate(context.Background(), testPayload, "k")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", reply)
}

func TestGenerate_EmptyAnswerFallsBack(t *testing.T) {
	bodies := map[string]any{
		"no candidates": map[string]any{"candidates": []any{}},
		"no parts":      candidateBody(),
		"blank text":    candidateBody("   "),
		"empty object":  map[string]any{},
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(body)
			}))
			defer server.Close()

			reply, err := newTestProvider(t, server.URL, nil).Generate(context.Background(), testPayload, "k")
			require.NoError(t, err)
			assert.Equal(t, conversation.FallbackReply, reply)
		})
	}
}

func TestGenerate_ErrorShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"nested error", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid."}}`, "API key not valid."},
		{"top level message", http.StatusForbidden, `{"message":"quota exhausted"}`, "quota exhausted"},
		{"string error", http.StatusTooManyRequests, `{"error":"nope"}`, "request failed (HTTP 429)"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "request failed (HTTP 502)"},
		{"empty", http.StatusServiceUnavailable, ``, "request failed (HTTP 503)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestProvider(t, server.URL, nil).Generate(context.Background(), testPayload, "k")
			require.Error(t, err)

			var upErr *provider.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.status, upErr.StatusCode)
			assert.Equal(t, tt.wantMsg, upErr.Message)
			assert.False(t, upErr.Timeout)
		})
	}
}

func TestGenerate_UnreadableSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := newTestProvider(t, server.URL, nil).Generate(context.Background(), testPayload, "k")

	var upErr *provider.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, msgUnreadable, upErr.Message)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestProvider(t, server.URL, nil).Generate(ctx, testPayload, "secret-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUpstreamTimeout)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestGenerate_ClientTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	p := newTestProvider(t, server.URL, &http.Client{Timeout: 50 * time.Millisecond})
	_, err := p.Generate(context.Background(), testPayload, "k")
	assert.ErrorIs(t, err, provider.ErrUpstreamTimeout)
}

func TestGenerate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	_, err := newTestProvider(t, baseURL, nil).Generate(context.Background(), testPayload, "secret-key")

	var upErr *provider.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, msgUnreachable, upErr.Message)
	assert.False(t, strings.Contains(upErr.Error(), "secret-key"))
}
