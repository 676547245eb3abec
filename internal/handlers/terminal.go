package handlers

import (
	"github.com/cfilipov/containerdeck/internal/terminal"
	"github.com/cfilipov/containerdeck/internal/ws"
)

func RegisterTerminalHandlers(app *App) {
	app.WS.Handle("terminalJoin", app.handleTerminalJoin)
	app.WS.Handle("terminalLeave", app.handleTerminalLeave)
}

// TerminalJoinResponse carries the buffered output at join time.
type TerminalJoinResponse struct {
	OK     bool   `json:"ok"`
	Buffer string `json:"buffer"`
}

// handleTerminalJoin registers the client for live output and returns what
// the terminal has buffered so far. An optional second argument limits the
// returned buffer to its last N bytes.
func (app *App) handleTerminalJoin(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}

	args := parseArgs(msg)
	name := argString(args, 0)
	if name == "" {
		ackError(c, msg, "Terminal name required")
		return
	}

	term := app.Terms.Get(name)
	if term == nil {
		ackError(c, msg, "Terminal not found")
		return
	}

	// Register the writer and read the buffer atomically so no output is
	// duplicated or dropped between the two.
	buf := term.JoinAndGetBuffer(c.ID(), makeTermWriter(c, name))
	if limit := argInt(args, 1); limit > 0 && len(buf) > limit {
		buf = buf[len(buf)-limit:]
	}

	ack(c, msg, TerminalJoinResponse{OK: true, Buffer: buf})
}

func (app *App) handleTerminalLeave(c *ws.Conn, msg *ws.ClientMessage) {
	if !checkLogin(c, msg) {
		return
	}
	name := argString(parseArgs(msg), 0)
	if term := app.Terms.Get(name); term != nil {
		term.RemoveWriter(c.ID())
	}
	ack(c, msg, ws.OkResponse{OK: true})
}

// TerminalWrite is the terminalWrite push payload.
type TerminalWrite struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func makeTermWriter(c *ws.Conn, name string) terminal.WriteFunc {
	return func(data string) {
		ws.SendEvent(c, "terminalWrite", TerminalWrite{Name: name, Data: data})
	}
}
