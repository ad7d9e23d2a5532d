package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephascord"
	"github.com/luciancaetano/kephascord/gateway"
	"github.com/luciancaetano/kephascord/internal/config"
	"github.com/luciancaetano/kephascord/internal/logx"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and serve events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func loadConfig(opts *rootOptions) (config.BotConfig, error) {
	if opts.token != "" {
		if err := os.Setenv(config.EnvToken, opts.token); err != nil {
			return config.BotConfig{}, err
		}
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return config.BotConfig{}, err
	}
	if opts.debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// sessionConfig translates the bot configuration into a gateway configuration.
func sessionConfig(cfg config.BotConfig, reg prometheus.Registerer) (*gateway.Config, error) {
	intents, err := cfg.ParsedIntents()
	if err != nil {
		return nil, err
	}

	gc := gateway.NewConfig(cfg.Token, intents)
	if cfg.GatewayURL != "" {
		gc.URL = cfg.GatewayURL
	}
	gc.Metrics = reg

	switch {
	case cfg.RateLimit.Disabled:
		gc.RateLimitConfig = gateway.NoRateLimit()
	case cfg.RateLimit.PerMinute > 0:
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = 1
		}
		gc.RateLimitConfig = &gateway.RateLimitConfig{
			MessagesPerSecond: rate.Every(time.Minute / time.Duration(cfg.RateLimit.PerMinute)),
			Burst:             burst,
			Enabled:           true,
		}
	}

	if cfg.Presence.Status != "" {
		presence := kephascord.NewPresenceUpdate(kephascord.Status(cfg.Presence.Status), presenceActivities(cfg))
		gc.Presence = &presence
	}
	return gc, nil
}

func presenceActivities(cfg config.BotConfig) []kephascord.Activity {
	if cfg.Presence.Activity == "" {
		return nil
	}
	return []kephascord.Activity{{Name: cfg.Presence.Activity, Type: kephascord.ActivityGame}}
}

func run(ctx context.Context, cfg config.BotConfig) error {
	logx.SetLevel(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gc, err := sessionConfig(cfg, reg)
	if err != nil {
		return err
	}
	session := gateway.New(gc)
	registerHandlers(ctx, session, cfg)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logx.Log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Reconnect {
		err = gateway.RunWithReconnect(ctx, session, nil)
	} else {
		err = session.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		logx.Log.Info().Msg("shutting down")
		return nil
	}
	return err
}

const statusCommand = "!status "

func registerHandlers(ctx context.Context, session kephascord.Session, cfg config.BotConfig) {
	session.OnReady(func() {
		logx.Log.Info().Str("self_id", session.SelfID()).Msg("bot ready")
	})

	session.OnMessageCreate(func(msg *kephascord.Message) {
		logx.Log.Info().
			Str("channel", msg.ChannelID).
			Str("author", msg.Author.Username).
			Str("content", msg.Content).
			Msg("message")

		// "!status idle" switches the bot's presence.
		if status, ok := strings.CutPrefix(msg.Content, statusCommand); ok {
			go updatePresence(ctx, session, kephascord.Status(strings.TrimSpace(status)), presenceActivities(cfg))
		}
	})

	session.OnMessageDelete(func(event *kephascord.MessageDelete) {
		logx.Log.Debug().Str("channel", event.ChannelID).Str("message", event.ID).Msg("message deleted")
	})

	session.OnReactionAdd(func(reaction *kephascord.Reaction) {
		logx.Log.Debug().Str("message", reaction.MessageID).Str("emoji", reaction.Emoji.Name).Msg("reaction added")
	})

	session.OnTyping(func(typing *kephascord.TypingStart) {
		logx.Log.Debug().Str("user", typing.UserID).Str("channel", typing.ChannelID).Msg("typing")
	})

	session.OnInteraction("ping", func(ic *kephascord.InteractionContext, options map[string]any) {
		logx.Log.Info().
			Str("user", ic.User.Username).
			Dur("latency", session.Latency()).
			Interface("options", options).
			Msg("pong")
	})
}

// updatePresence runs off the receive goroutine since the send limiter may block.
func updatePresence(ctx context.Context, session kephascord.Session, status kephascord.Status, activities []kephascord.Activity) {
	err := session.SendPresenceUpdate(ctx, status, activities)
	switch {
	case err == nil:
		logx.Log.Info().Str("status", string(status)).Msg("presence updated")
	case errors.Is(err, kephascord.ErrSessionClosed):
	default:
		logx.Log.Warn().Err(err).Msg("presence update failed")
	}
}
