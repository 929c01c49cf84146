package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"chat-relay/internal/config"
	"chat-relay/internal/conversation"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
)

const (
	contentTypeJSON   = "application/json"
	userAgent         = "chat-relay/0.1"
	maxResponseBytes  = 10 << 20
	maxErrorBodyBytes = 64 << 10
)

const (
	msgTimeout     = "The assistant took too long to respond. Please try again."
	msgUnreachable = "Could not reach the assistant service."
	msgUnreadable  = "The assistant returned an unreadable response."
)

// Provider calls the Gemini generateContent API.
type Provider struct {
	name       string
	baseURL    string
	model      string
	client     *http.Client
	generation generationConfig
}

// New constructs a Gemini provider instance.
func New(name string, cfg config.UpstreamConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("model must not be empty")
	}

	return &Provider{
		name:    name,
		baseURL: baseURL,
		model:   model,
		client:  client,
		generation: generationConfig{
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		},
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Generate performs one generateContent call. An empty answer is replaced by
// conversation.FallbackReply so success never carries an empty reply.
func (p *Provider) Generate(ctx context.Context, payload models.UpstreamPayload, credential string) (string, error) {
	httpReq, err := p.newRequest(ctx, credential, buildGeneratePayload(payload, p.generation))
	if err != nil {
		return "", err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", transportError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", parseAPIError(httpResp)
	}

	var resp generateResponse
	if err := decodeJSON(io.LimitReader(httpResp.Body, maxResponseBytes), &resp); err != nil {
		if upErr := transportError(err); upErr.Timeout {
			return "", upErr
		}
		return "", &provider.UpstreamError{StatusCode: httpResp.StatusCode, Message: msgUnreadable, Err: err}
	}

	text := resp.text()
	if text == "" {
		return conversation.FallbackReply, nil
	}
	return text, nil
}

func (p *Provider) endpoint(credential string) string {
	query := url.Values{}
	query.Set("key", credential)
	return p.baseURL + "/v1beta/models/" + url.PathEscape(p.model) + ":generateContent?" + query.Encode()
}

func (p *Provider) newRequest(ctx context.Context, credential string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(credential), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generatePayload struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

func buildGeneratePayload(payload models.UpstreamPayload, generation generationConfig) generatePayload {
	contents := make([]content, 0, len(payload.Contents))
	for _, c := range payload.Contents {
		contents = append(contents, content{Role: c.Role, Parts: []part{{Text: c.Text}}})
	}

	out := generatePayload{
		Contents:         contents,
		GenerationConfig: generation,
	}
	if payload.SystemInstruction != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: payload.SystemInstruction}}}
	}
	return out
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// text joins the parts of the first candidate.
func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// parseAPIError reads either {"error":{"message":...}} or {"message":...}.
func parseAPIError(resp *http.Response) error {
	upErr := &provider.UpstreamError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("request failed (HTTP %d)", resp.StatusCode),
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		upErr.Err = err
		return upErr
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return upErr
	}
	if nested, ok := parsed["error"].(map[string]any); ok {
		if msg, ok := nested["message"].(string); ok && strings.TrimSpace(msg) != "" {
			upErr.Message = strings.TrimSpace(msg)
			return upErr
		}
	}
	if msg, ok := parsed["message"].(string); ok && strings.TrimSpace(msg) != "" {
		upErr.Message = strings.TrimSpace(msg)
	}
	return upErr
}

// transportError classifies a failed round trip. The *url.Error wrapper is
// dropped because its text contains the request URL and therefore the key.
func transportError(err error) *provider.UpstreamError {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &provider.UpstreamError{Message: msgTimeout, Timeout: true, Err: err}
	}
	return &provider.UpstreamError{Message: msgUnreachable, Err: err}
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
