package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"termhub/internal/config"
	"termhub/internal/control"
	"termhub/internal/logging"
	"termhub/internal/realtime"
	"termhub/internal/session"
	"termhub/internal/workspace"

	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Flags override the environment.
	listen := pflag.String("listen", "", "listen address (host:port), overrides TERMHUB_HOST/TERMHUB_PORT")
	workspaceRoot := pflag.String("workspace-root", "", "workspace root directory, overrides TERMHUB_WORKSPACE_ROOT")
	pflag.Parse()
	if *workspaceRoot != "" {
		cfg.WorkspaceRoot = *workspaceRoot
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if *listen != "" {
		addr = *listen
	}

	logging.Init(cfg.LogPath)

	mirror := session.NewMetadataStore()
	registry := session.NewRegistry(session.Limits{
		MaxSessions:    cfg.MaxSessions,
		DefaultCommand: cfg.CommandPath,
	}, cfg, mirror)
	dispatcher := control.NewDispatcher(registry, cfg.ControlQueueDepth)

	ws, err := workspace.NewWatcher(cfg.WorkspaceRoot)
	if err != nil {
		log.Printf("workspace watcher disabled: %v", err)
		ws = nil
	}

	srv := realtime.New(dispatcher, registry, mirror, ws, cfg.StaticDir)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		httpServer.Shutdown(ctx)

		dispatcher.Stop()
		registry.Shutdown()
		if ws != nil {
			ws.Shutdown()
		}
	}()

	log.Printf("termhub listening on http://%s", addr)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}
