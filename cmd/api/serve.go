package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/connector"
	"github.com/spec-kit/helpdesk/internal/connector/whatsapp"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/persistence"
	"github.com/spec-kit/helpdesk/internal/realtime"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type transport interface {
	connector.Transport
	SetHandler(h connector.Handler)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Pinger{}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	var repos repository.Set
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(cfg.Postgres.DSN, logger); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		repos = repository.NewPostgresSet(pool)
		checks["postgres"] = pg
	} else {
		repos = memory.NewStore().Set()
	}

	metrics := observability.NewMetrics()
	group, gctx := errgroup.WithContext(ctx)

	var dispatcher events.Dispatcher
	if cfg.Realtime.UseRedis {
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer rdb.Close()
		checks["redis"] = rdb

		backplane := events.NewRedisDispatcher(rdb.Client, cfg.Realtime.RedisChannel, logger.Named("bus"))
		group.Go(func() error { return backplane.Start(gctx) })
		dispatcher = backplane
	} else {
		dispatcher = events.NewInMemoryDispatcher(logger.Named("bus"))
	}

	hub := realtime.NewHub(cfg.Realtime.SessionBuffer, logger.Named("realtime"), metrics)
	hub.Attach(dispatcher)

	var messaging transport
	if cfg.Whatsapp.Enabled {
		manager, err := whatsapp.NewManager(ctx, cfg.Whatsapp, repos.Whatsapps, logger.Named("whatsapp"))
		if err != nil {
			return err
		}
		defer manager.Close()
		messaging = manager
	} else {
		logger.Warn("WHATSAPP_ENABLED is false; using loopback transport")
		messaging = connector.NewLoopback(logger.Named("loopback"))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL())
	authService := service.NewAuthService(repos.Users, tokens, cfg.Auth.BcryptCost, logger)
	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminName, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	tickets := service.NewTicketService(service.TicketDependencies{
		Repos:        repos,
		Dispatcher:   dispatcher,
		Logger:       logger,
		ReopenWindow: cfg.Ticket.ReopenWindow(),
	})
	contacts := service.NewContactService(repos.Contacts, messaging, dispatcher, logger)
	messages := service.NewMessageService(service.MessageDependencies{
		Repos:      repos,
		Tickets:    tickets,
		Contacts:   contacts,
		Sender:     messaging,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	connections := service.NewConnectionService(repos.Whatsapps, messaging, dispatcher, logger)
	messaging.SetHandler(service.NewTransportHandler(messages, connections))

	var exporter service.EventWriter
	if writer := service.NewKafkaWriter(cfg.Notification); writer != nil {
		defer writer.Close() //nolint:errcheck
		exporter = writer
		logger.Info("exporting ticket events to kafka", zap.String("topic", cfg.Notification.KafkaTopic))
	}
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, exporter, metrics, logger))

	if cfg.Worker.ReconnectSchedule != "" {
		reconnect, err := worker.NewReconnectWorker(connections, cfg.Worker.ReconnectSchedule, logger)
		if err != nil {
			return err
		}
		group.Go(func() error { return reconnect.Run(gctx) })
	}

	group.Go(func() error {
		connections.StartAll(gctx)
		return nil
	})

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Messages:       handlers.NewMessagesHandler(messages),
		Connections:    handlers.NewConnectionsHandler(connections, contacts),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Users),
		Hub:            hub,
		PingInterval:   cfg.Realtime.PingInterval(),
	})

	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
