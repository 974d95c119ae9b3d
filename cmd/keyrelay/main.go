package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/sealed"
	"github.com/ericfisherdev/keyrelay/internal/adapter/driven/store"
	httphandler "github.com/ericfisherdev/keyrelay/internal/adapter/driving/http"
	"github.com/ericfisherdev/keyrelay/internal/application"
	"github.com/ericfisherdev/keyrelay/internal/config"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration. Missing store settings are reported per request.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	logger.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"allowed_origin", cfg.AllowedOrigin,
		"store_host", storeHost(cfg.StoreURL),
		"store_table", cfg.StoreTable,
		"store_configured", cfg.HasStoreSettings(),
		"identity_binding", cfg.JWTSecret != "",
		"sealing", cfg.SecretKey != nil,
	)
	if !cfg.HasStoreSettings() {
		logger.Warn("SUPABASE_URL or SUPABASE_SERVICE_ROLE_KEY not set, every store request will fail until configured")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Wire the store dialer stack.
	storeDialer := store.NewDialer(&http.Client{}, cfg.StoreTable, logger)
	defer func() {
		if closeErr := storeDialer.Close(); closeErr != nil {
			logger.Error("error closing credential store", "error", closeErr)
		}
	}()

	var dialer driven.StoreDialer = storeDialer
	if cfg.SecretKey != nil {
		sealedDialer, err := sealed.NewDialer(storeDialer, cfg.SecretKey)
		if err != nil {
			return err
		}
		dialer = sealedDialer
	}

	// 4. Create the credential service.
	svc := application.NewCredentialService(dialer, application.StoreSettings{
		Endpoint: cfg.StoreURL,
		Token:    cfg.StoreToken,
	}, logger)

	// 5. Create HTTP handler and apply middleware.
	var verifier *httphandler.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier = httphandler.NewTokenVerifier(cfg.JWTSecret)
	}
	handler := httphandler.NewServeMux(httphandler.NewHandler(svc, verifier, logger), cfg.AllowedOrigin, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// 6. Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// storeHost returns the host part of the store endpoint for logging, without
// credentials or path.
func storeHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}
