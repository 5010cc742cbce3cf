package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/progression-engine/internal/app"
	httpMW "github.com/yungbote/progression-engine/internal/http/middleware"
	"github.com/yungbote/progression-engine/internal/platform/logger"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "progression-engine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          appName,
		Short:        "Learning plan progression engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event forwarder and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the progression schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath)
		},
	})

	cmd.AddCommand(tokenCmd(&configPath))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

func tokenCmd(configPath *string) *cobra.Command {
	var (
		learner string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a learner bearer token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET_KEY is not set")
			}
			id := uuid.New()
			if learner != "" {
				if id, err = uuid.Parse(learner); err != nil {
					return fmt.Errorf("invalid learner id: %w", err)
				}
			}
			tok, err := httpMW.IssueToken(cfg.Auth.JWTSecret, id, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "learner: %s\ntoken: %s\n", id, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&learner, "learner", "", "Learner id (random when empty)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func serve(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	select {
	case err = <-errCh:
		if err != nil {
			a.Log.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		a.Log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if serr := a.Shutdown(shutdownCtx); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

func migrate(configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	theDB, err := app.OpenDB(log, cfg.DB)
	if err != nil {
		return err
	}
	if sqlDB, err := theDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	log.Info("Schema migrated", "driver", cfg.DB.Driver)
	return nil
}
