package handlers

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/cfilipov/containerdeck/internal/batch"
	"github.com/cfilipov/containerdeck/internal/models"
	"github.com/cfilipov/containerdeck/internal/scheduler"
	"github.com/cfilipov/containerdeck/internal/store"
	"github.com/cfilipov/containerdeck/internal/terminal"
	"github.com/cfilipov/containerdeck/internal/tool"
	"github.com/cfilipov/containerdeck/internal/update"
	"github.com/cfilipov/containerdeck/internal/ws"
)

// App holds shared dependencies for all handlers.
type App struct {
	Tool      *tool.Tool
	Store     *store.Store
	Batch     *batch.Executor
	Scheduler *scheduler.Scheduler
	Checker   *update.Checker
	Settings  *models.SettingStore
	Prefs     *models.Preferences
	Releases  *models.ReleaseStore
	WS        *ws.Server
	Terms     *terminal.Manager
	NoAuth    bool // Authenticate every connection on connect

	JWTSecret     string
	Version       string
	MinCLIVersion string

	// cli is the last probed CLI version. Written by the startup probe and
	// the binary watcher, read by every info push.
	cli atomic.Pointer[cliInfo]

	bcastState *broadcastState
	debouncer  *channelDebouncer
}

type cliInfo struct {
	Raw       string
	Version   string
	Found     bool
	Supported bool
}

// RegisterAll wires every event handler onto app.WS.
func RegisterAll(app *App) {
	RegisterAuthHandlers(app)
	RegisterBatchHandlers(app)
	RegisterSettingsHandlers(app)
	RegisterUpdateHandlers(app)
	RegisterTerminalHandlers(app)
}

// checkLogin verifies that the connection is authenticated, sending an error
// ack when it is not. With --no-auth connections are authenticated at connect
// time so this always passes.
func checkLogin(c *ws.Conn, msg *ws.ClientMessage) bool {
	if c.Authenticated() {
		return true
	}
	if msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, ws.ErrorResponse{OK: false, Msg: "Not logged in"})
	}
	return false
}

// ack sends data when the message carries an ID.
func ack[T any](c *ws.Conn, msg *ws.ClientMessage, data T) {
	if msg != nil && msg.ID != nil {
		ws.SendAck(c, *msg.ID, data)
	}
}

// ackError sends a failed ack when the message carries an ID.
func ackError(c *ws.Conn, msg *ws.ClientMessage, text string) {
	ack(c, msg, ws.ErrorResponse{OK: false, Msg: text})
}

// parseArgs unmarshals the Args JSON array into a slice of json.RawMessage.
func parseArgs(msg *ws.ClientMessage) []json.RawMessage {
	if msg == nil || len(msg.Args) == 0 {
		return nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(msg.Args, &args); err != nil {
		slog.Warn("parse args", "err", err)
		return nil
	}
	return args
}

// argString extracts a string from args at the given index.
func argString(args []json.RawMessage, index int) string {
	if index >= len(args) {
		return ""
	}
	var s string
	if err := json.Unmarshal(args[index], &s); err != nil {
		return ""
	}
	return s
}

// argStrings extracts a string list from args at the given index. A single
// string is accepted as a one-element list.
func argStrings(args []json.RawMessage, index int) []string {
	if index >= len(args) {
		return nil
	}
	var list []string
	if err := json.Unmarshal(args[index], &list); err == nil {
		return list
	}
	var s string
	if err := json.Unmarshal(args[index], &s); err == nil && s != "" {
		return []string{s}
	}
	return nil
}

// argObject extracts a JSON object from args at the given index into dst.
func argObject(args []json.RawMessage, index int, dst any) bool {
	if index >= len(args) {
		return false
	}
	return json.Unmarshal(args[index], dst) == nil
}

// argBool extracts a bool from args at the given index.
func argBool(args []json.RawMessage, index int) bool {
	if index >= len(args) {
		return false
	}
	var b bool
	if err := json.Unmarshal(args[index], &b); err != nil {
		return false
	}
	return b
}

// argInt extracts an integer from args at the given index.
func argInt(args []json.RawMessage, index int) int {
	if index >= len(args) {
		return 0
	}
	var n float64 // JSON numbers decode as float64
	if err := json.Unmarshal(args[index], &n); err != nil {
		return 0
	}
	return int(n)
}
