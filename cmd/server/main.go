package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angola031/ecoswap-session/internal/activity"
	"github.com/angola031/ecoswap-session/internal/backend"
	"github.com/angola031/ecoswap-session/internal/backoff"
	"github.com/angola031/ecoswap-session/internal/coordination"
	"github.com/angola031/ecoswap-session/internal/crypto"
	"github.com/angola031/ecoswap-session/internal/domain"
	"github.com/angola031/ecoswap-session/internal/platform/config"
	"github.com/angola031/ecoswap-session/internal/platform/logging"
	"github.com/angola031/ecoswap-session/internal/platform/retry"
	"github.com/angola031/ecoswap-session/internal/server"
	"github.com/angola031/ecoswap-session/internal/session"
	"github.com/angola031/ecoswap-session/internal/storage"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStorage(cfg *config.Config) (domain.CredentialStore, *goredis.Client) {
	if cfg.RedisURL == "" {
		slog.Info("No REDIS_URL configured, keeping credentials in memory")
		return storage.NewMemoryStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	var cipher crypto.Cipher = crypto.Plaintext{}
	if cfg.TokenEncryptionKey != "" {
		cipher, err = crypto.NewAESGCM(cfg.TokenEncryptionKey)
		if err != nil {
			slog.Error("Failed to create credential cipher", "error", err)
			os.Exit(1)
		}
	}

	return storage.NewRedisStore(client, cfg.AuthNamespace, cipher), client
}

func runGracefulShutdown(srv *server.Server, store *session.Store, monitor *activity.Monitor, terminator *activity.Terminator, bus *activity.Bus) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		terminator.Stop()
		monitor.Stop()
		bus.Close()
		store.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	persist, redisClient := setupStorage(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	authClient, err := backend.NewClient(cfg.AuthBaseURL, cfg.AuthAPIKey, clock)
	if err != nil {
		slog.Error("Failed to create auth client", "error", err)
		os.Exit(1)
	}

	ledger := backoff.NewLedger(clock)
	invoker := retry.NewInvoker(ledger, clock, retry.Policy{})

	store := session.NewStore(authClient, persist, invoker, clock, session.Options{
		RenewalThreshold: cfg.RenewalThreshold,
		RefreshTick:      cfg.RefreshTick,
	})
	if err := store.LoadPersisted(context.Background()); err != nil {
		slog.Warn("Failed to load persisted credential", "error", err)
	}
	store.Start()

	// Auth lifecycle events from the backend keep the store in sync.
	eventCtx, cancelEvents := context.WithCancel(context.Background())
	defer cancelEvents()
	events := backend.NewEventStream(cfg.AuthBaseURL, cfg.AuthAPIKey, invoker, clock, func(ev domain.AuthEvent) {
		store.HandleEvent(eventCtx, ev)
	})
	go events.Run(eventCtx)

	// Cross-instance invalidation: another instance ending the session
	// clears this one too.
	var invalidator *coordination.Invalidator
	if redisClient != nil {
		invalidator = coordination.NewInvalidator(redisClient, cfg.AuthNamespace)
		sub := invalidator.Subscribe(eventCtx, func(reason string) {
			slog.Info("Session invalidated by another instance", "reason", reason)
			store.Clear(context.Background())
		})
		defer sub.Close()
	}

	bus := activity.NewBus()

	terminator := activity.NewTerminator(clock, activity.TerminatorOptions{
		HardTimeout:  cfg.InactivityTimeout,
		AdminSurface: cfg.AdminSurface,
	}, activity.TerminationHooks{
		SignOut: store.SignOut,
		EraseCredentials: func(ctx context.Context) {
			store.Terminate(ctx)
		},
		OnTimeout: func(redirect string) {
			if invalidator != nil {
				if err := invalidator.Publish(context.Background(), "timeout"); err != nil {
					slog.Warn("Failed to publish invalidation", "error", err)
				}
			}
			slog.Info("Session terminated after inactivity", "redirect", redirect)
		},
	})
	terminator.Start()

	monitor := activity.NewMonitor(clock, activity.MonitorOptions{
		IdleAfter: cfg.ActivityIdleAfter,
	}, func(domain.ActivityEvent) {
		terminator.Touch()
	}, func() {
		slog.Info("User idle", "after", cfg.ActivityIdleAfter)
	})
	monitor.Start()
	monitor.Attach(bus)

	srv := server.New(cfg, store, bus, terminator, server.Options{
		Ready: func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		},
		OnSessionEnd: func(ctx context.Context, reason string) {
			if invalidator != nil {
				if err := invalidator.Publish(ctx, reason); err != nil {
					slog.Warn("Failed to publish invalidation", "error", err)
				}
			}
		},
	})

	done := runGracefulShutdown(srv, store, monitor, terminator, bus)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
