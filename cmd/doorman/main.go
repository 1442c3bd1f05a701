// Command doorman runs the join-verification bot. It wires the chat client,
// the Redis-backed settings store, the audit pipeline, and an ops HTTP
// server, then long-polls for updates until interrupted.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"doorman/internal/audit"
	"doorman/internal/command"
	"doorman/internal/group"
	"doorman/internal/i18n"
	"doorman/internal/kv"
	"doorman/internal/platform/config"
	"doorman/internal/platform/httpserver"
	"doorman/internal/platform/logger"
	"doorman/internal/platform/metrics"
	redisplatform "doorman/internal/platform/redis"
	"doorman/internal/roles"
	"doorman/internal/settings"
	"doorman/internal/telegram"
	httptransport "doorman/internal/transport/http"
	"doorman/internal/verify"
	"doorman/pkg/domain"
)

func main() {
	// local dev convenience; production relies on real env
	_ = godotenv.Load()

	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("doorman exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bundle, err := i18n.Load()
	if err != nil {
		return err
	}

	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	backend := kv.NewRedisStore(redisClient.Client)

	chat, err := telegram.New(cfg.BotToken, telegram.WithLogger(log))
	if err != nil {
		return err
	}

	m := metrics.New()

	// Audit pipeline: an in-process worker persists events; Kafka, when
	// configured, gets a copy of each event.
	var trail audit.Store = audit.NewMemoryStore()
	if cfg.DatabaseURL != "" {
		pg, err := audit.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		trail = pg
	}
	channelPub := audit.NewChannelPublisher(cfg.AuditBuffer, log)
	worker := audit.NewWorker(trail, channelPub.Inbox(), log)

	var publisher audit.Publisher = channelPub
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPub, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return err
		}
		defer kafkaPub.Close()
		publisher = audit.MultiPublisher{channelPub, kafkaPub}
	}

	registry := group.NewRegistry(func(id domain.GroupID) *group.Group {
		glog := log.With("group", id)
		store := settings.New(backend, id, bundle)
		resolver := roles.New(id, store, chat,
			roles.WithLogger(glog),
			roles.WithMetrics(m),
		)
		engine := verify.New(id, chat, store, resolver,
			verify.WithLogger(glog),
			verify.WithMetrics(m),
			verify.WithAudit(publisher),
		)
		dispatcher := command.New(id, chat, store, resolver, engine, bundle,
			command.WithLogger(glog),
			command.WithMetrics(m),
			command.WithAudit(publisher),
		)
		return group.New(id, chat, store, resolver, engine, dispatcher,
			group.WithLogger(glog),
		)
	})

	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(redisClient))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(ctx)
	})

	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return httpserver.Shutdown(srv)
	})

	g.Go(func() error {
		log.Info("update loop starting")
		return chat.Run(ctx, func(id domain.GroupID) telegram.Handler {
			return registry.Get(id)
		})
	})

	return g.Wait()
}
