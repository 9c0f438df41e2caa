package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openalpha/spotex/account"
	"github.com/openalpha/spotex/api"
	"github.com/openalpha/spotex/api/websocket"
	"github.com/openalpha/spotex/config"
	"github.com/openalpha/spotex/engine"
	"github.com/openalpha/spotex/ledger"
	"github.com/openalpha/spotex/metrics"
	"github.com/openalpha/spotex/projection"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := ledger.Open(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Bootstrap(ctx); err != nil {
		return err
	}

	col := metrics.NewCollector()
	hub := websocket.NewHub(log, col)

	feeds := engine.MultiFeed{hub}
	var pub *projection.Publisher
	if cfg.RedisAddr != "" {
		pub = projection.NewPublisher(cfg.RedisAddr, log)
		if err := pub.Ping(ctx); err != nil {
			return err
		}
		feeds = append(feeds, pub)
		go pub.Run()
		defer pub.Close() //nolint:errcheck
		log.Info("projection enabled", zap.String("redis", cfg.RedisAddr))
	}

	eng := engine.New(store, log, col, feeds)
	accounts := account.NewService(store, eng, log)
	if err := accounts.EnsureQuoteInstrument(ctx); err != nil {
		return err
	}
	if err := eng.RebuildBooks(ctx); err != nil {
		return err
	}

	hubStop := make(chan struct{})
	go hub.Run(hubStop)
	defer close(hubStop)

	srv := api.NewServer(cfg, eng, accounts, hub, col, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
