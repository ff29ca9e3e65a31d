package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/config"
	"github.com/udisondev/gunnet/internal/db"
	"github.com/udisondev/gunnet/internal/login"
	"github.com/udisondev/gunnet/internal/network"
)

const (
	ConfigPath        = "config/gunserver.yaml"
	sessionJanitor    = time.Minute
	defaultSessionTTL = 10 * time.Minute
)

func main() {
	cfgPath, err := configPath(os.Args[1:], os.Getenv("GUNNET_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfgPath); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// configPath picks the config file: -config wins over env, env over ConfigPath.
func configPath(args []string, env string) (string, error) {
	fs := flag.NewFlagSet("gunserver", flag.ContinueOnError)
	path := fs.String("config", "", "path to the yaml config (default $GUNNET_CONFIG or "+ConfigPath+")")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	switch {
	case *path != "":
		return *path, nil
	case env != "":
		return env, nil
	default:
		return ConfigPath, nil
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
	slog.Info("config loaded", "path", cfgPath, "bind", cfg.BindAddress, "port", cfg.Port,
		"role", cfg.Crypto.Role, "auto_create", cfg.AutoCreateAccounts)

	handshake, err := cfg.Crypto.Handshake()
	if err != nil {
		return fmt.Errorf("handshake config: %w", err)
	}
	codec, err := auth.NewCodec(handshake)
	if err != nil {
		return err
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	sessions := login.NewSessionManager()
	handler := login.NewHandler(codec, db.NewPostgresAccountRepository(database.Pool()),
		login.WithAutoCreate(cfg.AutoCreateAccounts),
		login.WithSessionManager(sessions),
	)

	server, err := network.NewServer(cfg, handler)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(gctx); err != nil {
			return fmt.Errorf("%s server: %w", cfg.Crypto.Role, err)
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionJanitor)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sessions.CleanExpired(sessionTTL); n > 0 {
					slog.Debug("expired sessions removed", "count", n, "active", sessions.Count())
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
