// Command actorsd runs the reference actor coordination service.
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

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autoeyes/compass/internal/actors"
	"github.com/autoeyes/compass/internal/app"
	"github.com/autoeyes/compass/internal/config"
	"github.com/autoeyes/compass/internal/database"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run serves until ctx is done. ready, if set, receives the bound address.
func run(ctx context.Context, args []string, ready chan<- string) error {
	fs := pflag.NewFlagSet("actorsd", pflag.ContinueOnError)
	configDir := fs.StringP("config", "c", ".", "directory containing "+config.FileName)
	fs.String("listen", "", "address to serve on")
	fs.String("db", "", "SQLite file; empty keeps actors in memory")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configErr := config.Load(*configDir)
	for key, flag := range map[string]string{
		"server.listen": "listen",
		"server.dbPath": "db",
		"logLevel":      "log-level",
	} {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}

	session, err := app.Start("actorsd")
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		session.Close(ctx)
	}()

	logger := session.Logger
	if configErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", configErr)
	}

	serverCfg := config.GetServerConfig()
	db := database.NewManager(logger.With("component", "database"))
	if err := db.Connect(serverCfg.DBPath); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	if err := db.Setup(actors.Models...); err != nil {
		return err
	}

	store := actors.NewStore(db.DB)
	router := actors.NewRouter(store, config.GetAPIConfig().Version, logger.With("component", "http"))

	listener, err := net.Listen("tcp", serverCfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", serverCfg.Listen, err)
	}
	httpServer := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.Info("Serving actor API", "addr", listener.Addr().String())
	if ready != nil {
		ready <- listener.Addr().String()
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		logger.Warn("Server shutdown failed", "error", err)
	}

	if db.InMemory && serverCfg.SnapshotPath != "" {
		if err := db.DumpMemoryToDisk(serverCfg.SnapshotPath); err != nil {
			logger.Error("Failed to write snapshot", "error", err, "path", serverCfg.SnapshotPath)
		} else {
			logger.Info("Wrote snapshot", "path", serverCfg.SnapshotPath)
		}
	}
	return nil
}
