package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/yamadatarousan/slack-clone/config"
	"github.com/yamadatarousan/slack-clone/src/auth"
	"github.com/yamadatarousan/slack-clone/src/bridge"
	"github.com/yamadatarousan/slack-clone/src/directory"
	"github.com/yamadatarousan/slack-clone/src/gateway"
	"github.com/yamadatarousan/slack-clone/src/monitor"
	"github.com/yamadatarousan/slack-clone/src/registry"
	"github.com/yamadatarousan/slack-clone/src/router"
	"github.com/yamadatarousan/slack-clone/src/service"
	"github.com/yamadatarousan/slack-clone/src/session"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, membership := buildDirectory(ctx, cfg, logger)
	reg := registry.New(logger)
	rt := router.New(reg, buildResolver(cfg, reg, membership, logger), logger)
	svc := service.New(reg, rt, dir, logger)

	b := connectBridge(cfg, rt, logger)
	if b != nil {
		rt.SetBridge(b)
		defer func() {
			if err := b.Stop(); err != nil {
				logger.Error().Err(err).Msg("bridge stop error")
			}
		}()
	}

	sweep := monitor.New(reg, rt, monitor.Config{
		Interval:    cfg.SweepInterval,
		Staleness:   cfg.SweepStaleness,
		PingTimeout: cfg.PingTimeout,
	}, logger)
	go sweep.Run(ctx)

	sessionCfg := session.Config{
		ReadTimeout:     cfg.ReadTimeout,
		PingInterval:    cfg.PingInterval,
		PingTimeout:     cfg.PingTimeout,
		Staleness:       cfg.Staleness,
		MaxPingFailures: cfg.MaxPingFailures,
		WriteTimeout:    cfg.WriteTimeout,
	}
	gw := gateway.New(reg, rt, svc, dir, auth.NewTokenVerifier(cfg.JWTSecret), sessionCfg, logger)

	server := &fasthttp.Server{
		Handler: gw.Handler(),
		Name:    "slack-clone-gateway",
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("gateway listening")
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}
}

// buildDirectory wires the persistence collaborator: Postgres when a
// database URL is configured, otherwise an empty in-memory directory.
func buildDirectory(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (directory.UserDirectory, directory.MembershipChecker) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("no DATABASE_URL, running with in-memory directory")
		s := directory.NewStatic()
		return s, s
	}

	pg, err := directory.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("directory connection failed")
	}
	logger.Info().Msg("postgres directory connected")
	return pg, pg
}

// buildResolver selects the recipient policy. Broadcast-to-all is the
// degraded default the REST backend currently relies on.
func buildResolver(cfg *config.Config, reg *registry.Registry, membership directory.MembershipChecker, logger zerolog.Logger) router.RecipientResolver {
	if cfg.RecipientPolicy == config.PolicyMembers {
		logger.Info().Msg("recipient policy: channel members")
		return router.ChannelMembers{Registry: reg, Membership: membership, Logger: logger}
	}
	logger.Info().Msg("recipient policy: broadcast to all (degraded)")
	return router.BroadcastAll{Registry: reg}
}

// connectBridge starts the configured cross-instance bridge, retrying with
// exponential backoff for a bounded window. An unreachable bridge is not
// fatal; the gateway runs standalone.
func connectBridge(cfg *config.Config, rt *router.Router, logger zerolog.Logger) bridge.Bridge {
	var b bridge.Bridge
	switch cfg.Bridge {
	case config.BridgeRedis:
		b = bridge.NewRedisBridge(bridge.RedisConfigFromEnv(), rt, logger)
	case config.BridgeNATS:
		b = bridge.NewNATSBridge(bridge.NATSConfigFromEnv(), rt, logger)
	default:
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(b.Start, policy); err != nil {
		logger.Warn().Err(err).Str("bridge", cfg.Bridge).Msg("bridge unavailable, running standalone")
		return nil
	}
	logger.Info().Str("bridge", cfg.Bridge).Msg("bridge connected")
	return b
}
