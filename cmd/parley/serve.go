// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/auth"
	authmem "github.com/parleyhq/parley/internal/auth/memory"
	authpg "github.com/parleyhq/parley/internal/auth/postgres"
	"github.com/parleyhq/parley/internal/chat"
	chatmem "github.com/parleyhq/parley/internal/chat/memory"
	chatpg "github.com/parleyhq/parley/internal/chat/postgres"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/logging"
	"github.com/parleyhq/parley/internal/notify"
	"github.com/parleyhq/parley/internal/observability"
	"github.com/parleyhq/parley/internal/store"
	"github.com/parleyhq/parley/internal/web"
	"github.com/parleyhq/parley/internal/xdg"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Parley API server, applying any pending database
migrations first. With no database.url configured the server runs on
in-memory storage, which is for development only.`,
		RunE: runServe,
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.String("server.addr", defaults.Server.Addr, "API listen address")
	flags.String("server.base_url", defaults.Server.BaseURL, "external base URL used in emailed links")
	flags.Bool("server.secure_cookies", defaults.Server.SecureCookies, "mark session cookies Secure")
	flags.String("database.url", defaults.Database.URL, "PostgreSQL connection string")
	flags.Bool("observability.enabled", defaults.Observability.Enabled, "serve metrics and health probes")
	flags.String("observability.addr", defaults.Observability.Addr, "observability listen address")
	flags.String("logging.format", defaults.Logging.Format, "log format: json or text")
	flags.String("notify.approver", defaults.Notify.Approver, "recipient of admin elevation requests")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	path := configFile
	if path == "" {
		path = filepath.Join(xdg.ConfigDir(), "config.yaml")
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("parley", version, cfg.Logging.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		users         auth.UserRepository
		sessionsRepo  auth.SessionRepository
		tokensRepo    auth.TokenRepository
		elevations    auth.ElevationRepository
		conversations chat.ConversationRepository
	)

	if cfg.Database.URL != "" {
		migrator, err := store.NewMigrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		if err := migrator.Up(); err != nil {
			_ = migrator.Close() //nolint:errcheck // migration error takes precedence
			return err
		}
		if err := migrator.Close(); err != nil {
			return err
		}

		pool, err := store.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		users = authpg.NewUserRepository(pool)
		sessionsRepo = authpg.NewSessionRepository(pool)
		tokensRepo = authpg.NewTokenRepository(pool)
		elevations = authpg.NewElevationRepository(pool)
		conversations = chatpg.NewConversationRepository(pool)
	} else {
		logger.Warn("no database configured; using in-memory storage")
		users = authmem.NewUserRepository()
		sessionsRepo = authmem.NewSessionRepository()
		tokensRepo = authmem.NewTokenRepository()
		elevations = authmem.NewElevationRepository()
		conversations = chatmem.NewConversationRepository()
	}

	hasher := auth.NewArgon2idHasher()

	sessions, err := auth.NewSessionManager(users, sessionsRepo, logger)
	if err != nil {
		return err
	}
	issuer, err := auth.NewTokenIssuer(tokensRepo)
	if err != nil {
		return err
	}
	authSvc, err := auth.NewService(users, sessions, issuer, hasher, logger)
	if err != nil {
		return err
	}

	sink, err := notify.NewRetryingSink(notify.NewLogSink(logger))
	if err != nil {
		return err
	}
	resetSvc, err := auth.NewPasswordResetService(users, issuer, sessions, hasher, sink, cfg.Server.BaseURL, logger)
	if err != nil {
		return err
	}
	elevationSvc, err := auth.NewElevationService(users, elevations, sink, cfg.Notify.Approver, cfg.Server.BaseURL, logger)
	if err != nil {
		return err
	}

	var ready atomic.Bool
	var metrics *observability.Metrics
	var obsErrCh <-chan error

	if cfg.Observability.Enabled {
		obs := observability.NewServer(cfg.Observability.Addr, ready.Load)
		obsErrCh, err = obs.Start()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if stopErr := obs.Stop(shutdownCtx); stopErr != nil {
				logger.Error("failed to stop observability server", "error", stopErr)
			}
		}()
		metrics = obs.Metrics()
	}

	api, err := web.NewServer(cfg.Server.Addr, web.Deps{
		Auth:          authSvc,
		Sessions:      sessions,
		Reset:         resetSvc,
		Elevation:     elevationSvc,
		Users:         users,
		Conversations: conversations,
		Metrics:       metrics,
		Logger:        logger,
		SecureCookies: cfg.Server.SecureCookies,
	})
	if err != nil {
		return err
	}

	apiErrCh, err := api.Start()
	if err != nil {
		return err
	}
	ready.Store(true)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr := <-apiErrCh:
		if serveErr != nil {
			return oops.With("component", "api").Wrap(serveErr)
		}
	case obsErr := <-obsErrCh:
		if obsErr != nil {
			return oops.With("component", "observability").Wrap(obsErr)
		}
	}

	ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return api.Stop(shutdownCtx)
}
