package handlers

import (
	"log/slog"

	"github.com/cfilipov/containerdeck/internal/batch"
	"github.com/cfilipov/containerdeck/internal/version"
)

// ProbeCLI re-reads the CLI version and checks it against MinCLIVersion.
// Called at startup and whenever the binary changes on disk.
func (app *App) ProbeCLI() {
	raw, v, ok := app.Tool.Version()
	ci := &cliInfo{Raw: raw, Version: v, Found: ok}

	switch {
	case !ok:
		slog.Warn("container CLI not found", "path", app.Tool.Path())
	case v == "":
		slog.Warn("container CLI version unreadable", "output", raw)
	default:
		sat, err := version.Satisfies(v, app.MinCLIVersion)
		if err != nil {
			slog.Warn("container CLI version check", "version", v, "constraint", app.MinCLIVersion, "err", err)
		} else if !sat {
			slog.Warn("container CLI is older than supported", "version", v, "constraint", app.MinCLIVersion)
		}
		ci.Supported = sat && err == nil
		slog.Info("container CLI", "path", app.Tool.Path(), "version", v, "supported", ci.Supported)
	}

	app.cli.Store(ci)
	app.TriggerInfoBroadcast()
}

// CLIVersion returns the last probed CLI version, "" when unknown.
func (app *App) CLIVersion() string {
	if ci := app.cli.Load(); ci != nil {
		return ci.Version
	}
	return ""
}

// Startup probes the CLI, loads the initial state and starts the system
// service when the user asked for that.
func (app *App) Startup() {
	app.ProbeCLI()
	app.Store.RefreshRunningStatus()
	app.Store.Refresh()

	launch, err := app.Prefs.LaunchOnStart()
	if err != nil {
		slog.Warn("read launch preference", "err", err)
		return
	}
	if launch && !app.Store.Running() {
		slog.Info("starting container system on launch")
		res := app.Batch.Run(batch.SystemStart, nil)
		slog.Debug("system start", "output", res.Message)
	}
}

// Shutdown stops the system service when the user asked for that.
func (app *App) Shutdown() {
	stop, err := app.Prefs.StopOnQuit()
	if err != nil {
		slog.Warn("read quit preference", "err", err)
		return
	}
	if !stop {
		return
	}
	app.Store.RefreshRunningStatus()
	if !app.Store.Running() {
		return
	}
	slog.Info("stopping container system on quit")
	res := app.Batch.Run(batch.SystemStop, nil)
	slog.Debug("system stop", "output", res.Message)
}
