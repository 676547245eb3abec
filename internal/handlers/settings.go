package handlers

import (
	"log/slog"

	"github.com/cfilipov/containerdeck/internal/models"
	"github.com/cfilipov/containerdeck/internal/ws"
)

func RegisterSettingsHandlers(app *App) {
	app.WS.Handle("getSettings", app.handleGetSettings)
	app.WS.Handle("setSettings", app.handleSetSettings)
}

// SettingsResponse is the getSettings/setSettings ack.
type SettingsResponse struct {
	OK   bool                    `json:"ok"`
	Data models.PreferenceValues `json:"data"`
}

func (app *App) handleGetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}
	vals, err := app.Prefs.Values()
	if err != nil {
		slog.Error("get settings", "err", err)
		ackError(c, msg, "Failed to load settings")
		return
	}
	ack(c, msg, SettingsResponse{OK: true, Data: vals})
}

// handleSetSettings merges the given keys into the stored preferences. Keys
// absent from the object keep their current value; an explicit null clears
// an optional version.
func (app *App) handleSetSettings(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}

	args := parseArgs(msg)
	vals, err := app.Prefs.Values()
	if err != nil {
		slog.Error("set settings: read", "err", err)
		ackError(c, msg, "Failed to load settings")
		return
	}
	if !argObject(args, 0, &vals) {
		ackError(c, msg, "Invalid settings")
		return
	}

	if err := app.Prefs.Apply(vals); err != nil {
		slog.Error("set settings", "err", err)
		ackError(c, msg, "Failed to save settings")
		return
	}

	// Bookmarks feed the update prompt.
	if app.Checker != nil {
		app.Checker.RefreshPrompts()
	}
	app.TriggerInfoBroadcast()

	slog.Info("settings saved",
		"launchOnStart", vals.LaunchOnStart,
		"stopOnQuit", vals.StopOnQuit)
	ack(c, msg, SettingsResponse{OK: true, Data: vals})
}
