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

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittynight/naughty-kitty/internal/config"
	"github.com/kittynight/naughty-kitty/internal/coordinator"
	"github.com/kittynight/naughty-kitty/internal/httpapi"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/store"
)

const releaseVersion = "0.1.0"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cobra.CheckErr(newCmd().Execute())
}

func newCmd() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "naughty-kitty",
		Short:         "Game server for naughty kitties, a social deduction party game.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cfg = config.RegisterFlags(cmd.Flags())

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("naughty-kitty v{{.Version}}\n")

	return cmd
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level())
	return zc.Build()
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Store == config.StorePostgres {
		return store.NewPostgres(ctx, cfg.PostgresDSN, log.Named("store"))
	}
	return store.NewMemory(ctx, log.Named("store")), nil
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	rooms := room.NewService(st, log.Named("rooms"), room.WithCodeAttempts(cfg.CodeAttempts))
	coord := coordinator.New(st, cfg.Timings(), log.Named("coordinator"))
	watches := coordinator.NewManager(ctx, coord, log.Named("watch"))

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Store:     st,
			Rooms:     rooms,
			Coord:     coord,
			Watches:   watches,
			Log:       log.Named("http"),
			PublicURL: cfg.PublicURL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		// Watches follow ctx, which is already done when a signal arrived.
		stop()
		watches.Wait()
		log.Info("stopped")
		return err
	})
	return g.Wait()
}
