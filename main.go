package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cfilipov/containerdeck/internal/batch"
	"github.com/cfilipov/containerdeck/internal/config"
	"github.com/cfilipov/containerdeck/internal/db"
	"github.com/cfilipov/containerdeck/internal/handlers"
	"github.com/cfilipov/containerdeck/internal/models"
	"github.com/cfilipov/containerdeck/internal/runner"
	"github.com/cfilipov/containerdeck/internal/scheduler"
	"github.com/cfilipov/containerdeck/internal/store"
	"github.com/cfilipov/containerdeck/internal/terminal"
	"github.com/cfilipov/containerdeck/internal/tool"
	"github.com/cfilipov/containerdeck/internal/update"
	"github.com/cfilipov/containerdeck/internal/ws"
)

// version is set at build time via -ldflags="-X main.version=..."
var version = "0.1.0"

func main() {
	// Quick healthcheck mode: hit /healthz and exit without starting anything.
	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		port := "5002"
		if v := os.Getenv("CONTAINERDECK_PORT"); v != "" {
			port = v
		}
		resp, err := http.Get("http://127.0.0.1:" + port + "/healthz")
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	slog.Info("starting containerdeck",
		"version", version,
		"port", cfg.Port,
		"dataDir", cfg.DataDir,
		"cliPath", cfg.CLIPath,
		"pollInterval", cfg.PollInterval,
		"logLevel", cfg.LogLevel,
		"noAuth", cfg.NoAuth,
	)

	// Open database
	database, err := db.Open(cfg.DataDir)
	if err != nil {
		slog.Error("database", "err", err)
		os.Exit(1)
	}
	defer database.Close()

	// Models
	settings := models.NewSettingStore(database)
	prefs := models.NewPreferences(settings)
	releases := models.NewReleaseStore(database)

	// JWT secret (auto-generated on first run)
	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		slog.Error("jwt secret", "err", err)
		os.Exit(1)
	}
	if cfg.NoAuth {
		slog.Warn("authentication disabled (--no-auth)")
	} else {
		token, err := models.CreateSessionToken(jwtSecret)
		if err != nil {
			slog.Error("session token", "err", err)
			os.Exit(1)
		}
		path, err := models.WriteTokenFile(cfg.DataDir, token)
		if err != nil {
			slog.Error("session token", "err", err)
			os.Exit(1)
		}
		slog.Info("session token written", "path", path)
	}

	// Container CLI
	run := runner.Exec{}
	cliPath := cfg.CLIPath
	if _, err := os.Stat(cliPath); err != nil {
		if found := tool.Discover(run); found != "" {
			slog.Info("container CLI not at configured path, using PATH lookup", "configured", cliPath, "found", found)
			cliPath = found
		}
	}
	cli := tool.New(run, cliPath)
	st := store.New(cli)

	// Operation log terminal receives every batch entry as it completes
	terms := terminal.NewManager()
	exec := batch.New(cli, st)
	exec.Progress = terms.Create(handlers.OperationsTerminal)

	wss := ws.NewServer()

	// Wire up handlers
	app := &handlers.App{
		Tool:          cli,
		Store:         st,
		Batch:         exec,
		Settings:      settings,
		Prefs:         prefs,
		Releases:      releases,
		WS:            wss,
		Terms:         terms,
		NoAuth:        cfg.NoAuth,
		JWTSecret:     jwtSecret,
		Version:       version,
		MinCLIVersion: cfg.MinCLIVersion,
	}
	app.Checker = update.NewChecker(update.NewGitHubSource(nil), releases, prefs,
		update.Target{Product: "cli", Repo: cfg.CLIRepo, Current: app.CLIVersion},
		update.Target{Product: "daemon", Repo: cfg.AppRepo, Current: func() string { return version }, Dismissible: true},
	)
	if err := app.Checker.Restore(releases); err != nil {
		slog.Warn("update history", "err", err)
	}
	app.Scheduler = scheduler.New(st, app,
		scheduler.WithInterval(cfg.PollInterval),
		scheduler.WithCooldown(cfg.UpdateCooldown),
	)

	app.InitBroadcast()
	handlers.RegisterAll(app)

	// HTTP mux
	mux := http.NewServeMux()
	mux.Handle("/ws", wss.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Start background tasks
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		app.Scheduler.Run(ctx)
		close(schedDone)
	}()
	app.StartBroadcastWatcher(ctx)
	app.Startup()

	if cfg.WatchCLI {
		if err := tool.WatchBinary(ctx, cli.Path(), app.ProbeCLI); err != nil {
			slog.Warn("cli watcher failed to start", "err", err)
		}
	}

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	wss.CloseAll()

	cancel()
	<-schedDone
	app.Shutdown()
}
