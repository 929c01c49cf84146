package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"chat-relay/internal/config"
	"chat-relay/internal/credential"
	"chat-relay/internal/metrics"
	providerfactory "chat-relay/internal/provider/factory"
	"chat-relay/internal/ratelimit"
	"chat-relay/internal/router"
	"chat-relay/internal/server"
)

const serveUsage = `Usage:
  chat-relay serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (defaults are used when omitted)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	if err := setupLogging(cfg.Log, os.Stdout); err != nil {
		return err
	}

	credentials := credentialChain(cfg.Upstream)
	if _, err := credentials.Resolve(); err != nil {
		// Not fatal: handoff replies still work, and the key may be added later.
		log.Warn().Strs("sources", credentials.Names()).Msg("no upstream api key found; chat requests will fail until one is set")
	}

	upstream, err := providerfactory.NewConfiguredProvider(cfg)
	if err != nil {
		return err
	}

	m := metrics.New()

	limiter := ratelimit.NewFixedWindow(cfg.RateLimit.Window.Std(), cfg.RateLimit.MaxRequests)
	go limiter.Run(ctx, cfg.RateLimit.SweepInterval.Std())

	rt, err := router.New(router.Options{
		Provider:    upstream,
		Credentials: credentials,
		Metrics:     m,
		Timeout:     cfg.Upstream.Timeout.Std(),
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt, limiter, m)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// credentialChain checks the environment first, then the config file, then the
// local secrets file.
func credentialChain(cfg config.UpstreamConfig) credential.Chain {
	return credential.Chain{
		credential.FromEnv(cfg.APIKeyEnv),
		credential.FromStatic(cfg.APIKey),
		credential.FromDotenvFile(cfg.SecretsFile, cfg.APIKeyEnv),
	}
}
