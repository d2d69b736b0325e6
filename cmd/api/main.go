package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrJamesThe3rd/farmabudget/internal/backend"
	"github.com/MrJamesThe3rd/farmabudget/internal/config"
	budgetHttp "github.com/MrJamesThe3rd/farmabudget/internal/http"
	budgetHandler "github.com/MrJamesThe3rd/farmabudget/internal/http/budget"
	paymentHandler "github.com/MrJamesThe3rd/farmabudget/internal/http/payment"
	"github.com/MrJamesThe3rd/farmabudget/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(cfg.Logger().With("app", cfg.App.Name))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := backend.Open(ctx, cfg)
	if err != nil {
		slog.Error("failed to open backend", "backend", cfg.DB.Backend, "error", err)
		os.Exit(1)
	}
	defer be.Close()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		slog.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	var (
		paymentsH = paymentHandler.NewHandler(be.Service)
		budgetH   = budgetHandler.NewHandler(be.Service)
	)

	router := budgetHttp.New(paymentsH, budgetH, budgetHttp.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       prometheus.DefaultGatherer,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting server", "port", server.Addr, "backend", cfg.DB.Backend)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
}
