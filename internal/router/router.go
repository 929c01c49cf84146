package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/conversation"
	"chat-relay/internal/metrics"
	"chat-relay/internal/models"
	"chat-relay/internal/provider"
)

// CredentialResolver yields the upstream API key.
type CredentialResolver interface {
	Resolve() (string, error)
}

// Options wires a Router.
type Options struct {
	Provider          provider.Provider
	Credentials       CredentialResolver
	Classifier        *conversation.Classifier
	Metrics           *metrics.Metrics
	Timeout           time.Duration
	SystemInstruction string
}

// Router sends a validated request either to the handoff reply or to the upstream provider.
type Router struct {
	provider          provider.Provider
	credentials       CredentialResolver
	classifier        *conversation.Classifier
	metrics           *metrics.Metrics
	timeout           time.Duration
	systemInstruction string
}

// New constructs a router from opts.
func New(opts Options) (*Router, error) {
	if opts.Provider == nil {
		return nil, errors.New("provider must not be nil")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credential resolver must not be nil")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("upstream timeout must be positive")
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = conversation.NewClassifier()
	}
	instruction := opts.SystemInstruction
	if instruction == "" {
		instruction = conversation.SystemInstruction
	}

	return &Router{
		provider:          opts.Provider,
		credentials:       opts.Credentials,
		classifier:        classifier,
		metrics:           opts.Metrics,
		timeout:           opts.Timeout,
		systemInstruction: instruction,
	}, nil
}

// Chat answers one conversation request. Handoff requests never reach the provider,
// and a missing credential is reported before any network call.
func (r *Router) Chat(ctx context.Context, req models.ConversationRequest) (models.Reply, error) {
	if phrase, ok := r.classifier.Match(req.Message); ok {
		log.Debug().Str("phrase", phrase).Msg("handoff requested")
		r.metrics.ObserveHandoff()
		return models.Reply{Text: conversation.HandoffReply, Handoff: true}, nil
	}

	credential, err := r.credentials.Resolve()
	if err != nil {
		return models.Reply{}, fmt.Errorf("resolve upstream credential: %w", err)
	}

	payload := conversation.Compose(req, r.systemInstruction)

	// The upstream call runs to completion even if the caller goes away.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.provider.Generate(callCtx, payload, credential)
	r.metrics.ObserveUpstream(upstreamResult(err), time.Since(start))
	if err != nil {
		return models.Reply{}, fmt.Errorf("provider %s generate: %w", r.provider.Name(), err)
	}

	return models.Reply{Text: text}, nil
}

func upstreamResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, provider.ErrUpstreamTimeout):
		return "timeout"
	default:
		return "error"
	}
}
