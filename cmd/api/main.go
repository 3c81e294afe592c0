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

    "storefront/internal/api"
    "storefront/internal/config"
    "storefront/internal/logging"
    "storefront/internal/metrics"
)

func main() {
    // A missing .env is normal outside local development.
    _ = godotenv.Load()

    cfg, err := config.Load()
    if err != nil {
        slog.Error("invalid configuration", "err", err)
        os.Exit(1)
    }
    log := logging.Setup(cfg)
    metrics.RegisterDefault()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg, log)
    if err != nil {
        log.Error("failed to init server", "err", err)
        os.Exit(1)
    }
    defer srvDeps.Close()

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           srvDeps.Routes(),
        ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
    }

    errCh := make(chan error, 1)
    go func() {
        log.Info("API listening", "addr", srv.Addr, "env", cfg.Env)
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            errCh <- err
        }
        close(errCh)
    }()

    select {
    case err := <-errCh:
        if err != nil {
            log.Error("server error", "err", err)
        }
    case <-ctx.Done():
        log.Info("shutting down")
    }

    shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error("graceful shutdown failed", "err", err)
    }
}
