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

	"github.com/ALCHACAS2/Dots-Boxes/internal/config"
	"github.com/ALCHACAS2/Dots-Boxes/internal/httpapi"
	"github.com/ALCHACAS2/Dots-Boxes/internal/hub"
	"github.com/ALCHACAS2/Dots-Boxes/internal/logging"
	"github.com/ALCHACAS2/Dots-Boxes/internal/store"
	"github.com/ALCHACAS2/Dots-Boxes/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, st, log.Named("hub"))
	defer h.Shutdown()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, ws.Options{
			OriginPatterns:    cfg.AllowedOrigins,
			MessagesPerSecond: cfg.MessagesPerSecond,
			Burst:             cfg.MessageBurst,
			Logger:            log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(cfg config.Server, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("no DATABASE_URL, keeping rooms in memory")
		return store.NewMemory(), nil
	}
	st, err := store.NewGorm(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
