package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/httpserver"
	"storefront/internal/remote"
	productsvc "storefront/internal/service/product"
	"storefront/internal/service/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()
	storage, closeStorage, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open %s storage: %v", cfg.StorageDriver, err)
	}
	defer closeStorage()

	api := remote.New(remote.Config{
		BaseURL:                 cfg.APIBaseURL,
		Timeout:                 cfg.RemoteTimeout,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
	}, logger)
	productService := productsvc.New(api, cfg.ProductCacheSize, cfg.ProductCacheTTL, logger)
	sessions := session.New(storage, api, productService, session.Config{
		TTL:     cfg.SessionTTL,
		TaxRate: cfg.TaxRate,
	}, logger)
	defer sessions.Close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sessions.Run(sweepCtx, time.Minute)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Sessions:       sessions,
		Products:       productService,
		Storage:        storage,
		CORSOrigins:    cfg.CORSOrigins,
		SecureCookies:  cfg.SecureCookies,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s api=%s storage=%s", cfg.HTTPAddr, cfg.APIBaseURL, cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}
