package handlers

import (
	"context"
	"log/slog"

	"github.com/cfilipov/containerdeck/internal/ws"
)

func RegisterUpdateHandlers(app *App) {
	app.WS.Handle("checkUpdates", app.handleCheckUpdates)
	app.WS.Handle("skipUpdate", app.handleSkipUpdate)
	app.WS.Handle("remindUpdateLater", app.handleRemindUpdateLater)
}

// CheckForUpdates runs one update check and pushes the result. The scheduler
// calls it, subject to its cooldown. It reports false when no product had a
// known installed version.
func (app *App) CheckForUpdates(ctx context.Context) bool {
	if app.Checker == nil {
		return false
	}
	results := app.Checker.Check(ctx)
	app.TriggerInfoBroadcast()
	return len(results) > 0
}

// handleCheckUpdates asks the scheduler for a check. A check inside the
// cooldown window is silently skipped; the client sees the result through
// the next info push.
func (app *App) handleCheckUpdates(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}
	if app.Scheduler != nil {
		app.Scheduler.RequestUpdateCheck()
	}
	ack(c, msg, ws.OkResponse{OK: true})
}

func (app *App) handleSkipUpdate(c *ws.Conn, msg *ws.ClientMessage) {
	app.bookmark(c, msg, "skip")
}

func (app *App) handleRemindUpdateLater(c *ws.Conn, msg *ws.ClientMessage) {
	app.bookmark(c, msg, "remind")
}

func (app *App) bookmark(c *ws.Conn, msg *ws.ClientMessage, kind string) {
	if !checkLogin(c, msg) {
		return
	}
	v := argString(parseArgs(msg), 0)
	if v == "" {
		ackError(c, msg, "Version required")
		return
	}
	if app.Checker == nil {
		ackError(c, msg, "Update checks are disabled")
		return
	}

	var err error
	if kind == "skip" {
		err = app.Checker.Skip(v)
	} else {
		err = app.Checker.RemindLater(v)
	}
	if err != nil {
		slog.Error("update bookmark", "kind", kind, "version", v, "err", err)
		ackError(c, msg, "Failed to save")
		return
	}

	slog.Info("update bookmark", "kind", kind, "version", v)
	app.TriggerInfoBroadcast()
	ack(c, msg, ws.OkResponse{OK: true})
}
