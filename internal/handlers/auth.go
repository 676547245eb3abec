package handlers

import (
	"log/slog"

	"github.com/cfilipov/containerdeck/internal/models"
	"github.com/cfilipov/containerdeck/internal/ws"
)

func RegisterAuthHandlers(app *App) {
	app.WS.Handle("loginByToken", app.handleLoginByToken)
	app.WS.Handle("logout", app.handleLogout)
	app.WS.Handle("setVisible", app.handleSetVisible)
	app.WS.Handle("getSnapshot", app.handleGetSnapshot)

	app.WS.HandleConnect(func(c *ws.Conn) {
		if app.NoAuth {
			c.Authenticate()
			ws.SendEvent(c, "autoLogin", struct{}{})
			app.afterLogin(c)
		}
	})

	app.WS.OnDisconnect(func(c *ws.Conn) {
		app.Terms.RemoveWriterFromAll(c.ID())
	})

	// The scheduler polls only while somebody is looking.
	app.WS.OnPresenceChange(func(watching bool) {
		slog.Debug("presence changed", "watching", watching)
		if app.Scheduler != nil {
			app.Scheduler.SetActive(watching)
		}
	})
}

func (app *App) handleLoginByToken(c *ws.Conn, msg *ws.ClientMessage) {
	args := parseArgs(msg)
	token := argString(args, 0)
	if token == "" {
		ackError(c, msg, "authInvalidToken")
		return
	}

	if _, err := models.VerifySessionToken(token, app.JWTSecret); err != nil {
		slog.Debug("token verify failed", "err", err)
		ackError(c, msg, "authInvalidToken")
		return
	}

	c.Authenticate()
	app.afterLogin(c)
	ack(c, msg, ws.OkResponse{OK: true})

	slog.Debug("token login", "conn", c.ID())
}

func (app *App) handleLogout(c *ws.Conn, msg *ws.ClientMessage) {
	ack(c, msg, ws.OkResponse{OK: true})
	c.Close()
}

// handleSetVisible records whether the client's window is in the foreground.
func (app *App) handleSetVisible(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}
	args := parseArgs(msg)
	c.SetVisible(argBool(args, 0))
	ack(c, msg, ws.OkResponse{OK: true})
}

// SnapshotResponse is the getSnapshot ack.
type SnapshotResponse struct {
	OK      bool         `json:"ok"`
	Running bool         `json:"running"`
	Units   []UnitEntry  `json:"units"`
	Images  []ImageEntry `json:"images"`
	Info    InfoEntry    `json:"info"`
}

func (app *App) handleGetSnapshot(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}
	snap := app.Store.Snapshot()
	ack(c, msg, SnapshotResponse{
		OK:      true,
		Running: snap.Running,
		Units:   unitEntries(snap.Units),
		Images:  imageEntries(snap.Images),
		Info:    app.info(),
	})
}

// afterLogin sends initial data to a freshly authenticated connection.
func (app *App) afterLogin(c *ws.Conn) {
	// Broadcasts were skipped while nobody was listening, so the remembered
	// hashes may be stale.
	app.bcastState.forget()
	app.sendAllBroadcastsTo(c)
}
