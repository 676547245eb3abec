package handlers

import (
	"github.com/cfilipov/containerdeck/internal/batch"
	"github.com/cfilipov/containerdeck/internal/ws"
)

// OperationsTerminal is the terminal that receives batch output as it runs.
const OperationsTerminal = "operations"

// BatchResponse is the ack for every batch event.
type BatchResponse struct {
	OK bool `json:"ok"`
	batch.Result
}

func RegisterBatchHandlers(app *App) {
	// Verbs that take a target list as their first argument.
	for _, v := range []batch.Verb{
		batch.StartUnits,
		batch.StopUnits,
		batch.KillUnits,
		batch.DeleteUnits,
		batch.DeleteImages,
	} {
		app.WS.Handle(string(v), app.batchHandler(v, true))
	}

	// Whole-collection and system verbs take no arguments.
	for _, v := range []batch.Verb{
		batch.DeleteAllUnits,
		batch.DeleteAllImages,
		batch.PruneImages,
		batch.SystemStart,
		batch.SystemStop,
	} {
		app.WS.Handle(string(v), app.batchHandler(v, false))
	}
}

func (app *App) batchHandler(verb batch.Verb, targeted bool) ws.HandlerFunc {
	return func(c *ws.Conn, msg *ws.ClientMessage) {
		if !checkLogin(c, msg) {
			return
		}

		var targets []string
		if targeted {
			targets = argStrings(parseArgs(msg), 0)
		}

		res := app.Batch.Run(verb, targets)
		ack(c, msg, BatchResponse{OK: true, Result: res})
	}
}
