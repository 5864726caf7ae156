package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/catalog"
	"coursedesk.org/internal/config"
	"coursedesk.org/internal/httpapi"
	"coursedesk.org/internal/identity"
	"coursedesk.org/internal/obs"
	"coursedesk.org/internal/ratelimit"
	"coursedesk.org/internal/storage"
	"coursedesk.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("COURSEDESK_CONFIG"), "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obs.Error("service_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	obs.Info("service_stopped", nil)
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	var idp auth.IdentityProvider
	switch cfg.Identity.Mode {
	case "local":
		idp = identity.NewLocal(store.DB())
	default:
		idp, err = identity.NewGoTrue(cfg.Identity.URL, cfg.Identity.AnonKey, cfg.Identity.ServiceKey, cfg.Identity.Timeout)
		if err != nil {
			return err
		}
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	sessions, err := auth.NewService(idp, store, tokens)
	if err != nil {
		return err
	}
	cat, err := catalog.NewService(store, store)
	if err != nil {
		return err
	}

	var files *storage.Service
	if cfg.StorageEnabled() {
		files, err = newStorage(ctx, cfg.Storage)
		if err != nil {
			return err
		}
	} else {
		obs.Warn("storage_disabled", map[string]any{"reason": "storage.bucket or storage.cloudfront_domain not set"})
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeLimiter()

	api, err := httpapi.New(httpapi.Deps{
		Sessions:       sessions,
		Catalog:        cat,
		Storage:        files,
		Limiter:        limiter,
		Ready:          store,
		Version:        version,
		MaxUploadBytes: cfg.Storage.UploadMaxBytes,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewHealthReporter(grpcSrv, api.Probe())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		obs.Info("http_listening", map[string]any{"addr": srv.Addr, "version": version, "identity": cfg.Identity.Mode})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return err
		}
		obs.Info("grpc_listening", map[string]any{"addr": cfg.GRPC.Addr})
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		health.Run(gctx, cfg.GRPC.HealthInterval)
		return nil
	})

	// graceful shutdown: сигнал или падение одного из серверов
	g.Go(func() error {
		<-gctx.Done()
		obs.Info("shutting_down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Service, error) {
	blobs, err := storage.NewS3Store(ctx, cfg.Bucket, cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	signer, err := storage.NewCloudFrontSigner(cfg.CloudFrontKeyPairID, cfg.CloudFrontPrivateKey)
	if err != nil {
		return nil, err
	}
	return storage.NewService(blobs, signer, cfg.CloudFrontDomain, storage.WithSignedURLTTL(cfg.SignedURLTTL))
}

// newLimiter prefers Redis so every replica shares the login budget; without
// it each process keeps its own buckets.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig) (ratelimit.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(cfg.PerSecond, cfg.Burst), func() {}, nil
	}
	lim, err := ratelimit.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Burst, cfg.Window)
	if err != nil {
		return nil, nil, err
	}
	if err := lim.Ping(ctx); err != nil {
		// не фатально: RateLimit пропускает запросы, пока Redis недоступен
		obs.Warn("ratelimit_redis_unreachable", map[string]any{"addr": cfg.RedisAddr, "error": err.Error()})
	}
	return lim, func() { _ = lim.Close() }, nil
}
