// Command api serves the bookstore order engine: checkout, payment callbacks, seller
// settlement views and the admin order console.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boibabu/api/internal/di"
	"github.com/boibabu/api/internal/platform/auth"
	"github.com/boibabu/api/internal/platform/config"
	"github.com/boibabu/api/internal/platform/idempotency"
	"github.com/boibabu/api/internal/platform/observability"
	firestoreRepo "github.com/boibabu/api/internal/repositories/firestore"
)

const shutdownGrace = 10 * time.Second

func main() {
	base, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, base.Named("api"))
	stop()
	if err != nil {
		base.Error("api stopped", zap.Error(err))
	}
	_ = base.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	startedAt := time.Now().UTC()
	ctx = observability.WithLogger(ctx, logger)

	env, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		return fmt.Errorf("secret fetcher: %w", err)
	}
	defer closeLogged(logger, "secret fetcher", fetcher.Close)

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(env)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("required secrets did not resolve", zap.Strings("secrets", missing.RedactedNames()))
		}
		return fmt.Errorf("load config: %w", err)
	}

	be, err := openBackends(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	build := buildInfoFromEnv(env, cfg, startedAt)
	registry, err := firestoreRepo.NewRegistry(be.firestore, be.healthChecks(fetcher, cfg, logger))
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}
	ext, err := be.externals(logger, cfg)
	if err != nil {
		return err
	}
	ext.Build = build
	ext.Logger = logger
	container, err := di.NewContainer(ctx, cfg, registry, ext)
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}

	idemStore, err := be.idempotencyStore(cfg)
	if err != nil {
		return err
	}
	firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return fmt.Errorf("firebase verifier: %w", err)
	}

	router := newRouter(routerDeps{
		logger:        logger,
		cfg:           cfg,
		build:         build,
		services:      container.Services,
		authenticator: auth.NewAuthenticator(firebase),
		idempotency:   idemStore,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("boibabu api listening", zap.String("addr", server.Addr), zap.String("version", build.Version))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Idempotency.Backend != "redis" {
		g.Go(func() error {
			return idempotency.Sweep(gctx, idemStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("draining requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return errors.Join(server.Shutdown(shutdownCtx), container.Close(shutdownCtx))
	})
	return g.Wait()
}

func closeLogged(logger *zap.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("close failed", zap.String("resource", what), zap.Error(err))
	}
}
