package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swgate/internal/swgate"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "swgate",
		Short:         "Offline-first caching and push worker in front of a web app",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", getenvDefault("SWGATE_CONFIG", "/swgate.yaml"), "path to swgate.yaml")

	root.AddCommand(
		newServeCmd(&configPath),
		newCachesCmd(&configPath),
		newPurgeCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the worker and its HTTP front",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := swgate.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg swgate.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := swgate.NewService(cfg, swgate.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer svc.Close()

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	err = svc.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("swgate listening",
			zap.String("addr", addr),
			zap.String("origin", cfg.Server.Origin),
			zap.String("generation", cfg.Cache.Generation),
		)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCachesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "caches",
		Short: "List cache generations in the disk store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := swgate.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := swgate.NewDiskStorage(cfg.Storage.Path, 0)
			if err != nil {
				return err
			}
			defer st.Close()

			names, err := st.Keys(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				marker := " "
				if name == cfg.Cache.Generation {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\t%d entries\n", marker, name, st.EntryCount(name))
			}
			return nil
		},
	}
}

func newPurgeCmd(configPath *string) *cobra.Command {
	var keep string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every cache generation except one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := swgate.LoadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if keep == "" {
				keep = cfg.Cache.Generation
			}
			st, err := swgate.NewDiskStorage(cfg.Storage.Path, 0)
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := swgate.PurgeStale(cmd.Context(), st, keep)
			if err != nil {
				return err
			}
			for _, name := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keep, "keep", "", "generation to keep (default: cache.generation)")
	return cmd
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func getenvDefault(name, def string) string {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	return v
}
