package factory

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/provider"
	geminiProvider "chat-relay/internal/provider/gemini"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewConfiguredProvider constructs the upstream provider described by the configuration.
func NewConfiguredProvider(cfg config.Config) (provider.Provider, error) {
	client := newHTTPClient(cfg.Upstream.ClientTimeout())
	p, err := geminiProvider.New("gemini", cfg.Upstream, client)
	if err != nil {
		return nil, fmt.Errorf("initialise gemini provider: %w", err)
	}
	return p, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
