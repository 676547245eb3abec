package handlers

import (
	"context"
	"encoding/json"
	"hash"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/cfilipov/containerdeck/internal/store"
	"github.com/cfilipov/containerdeck/internal/tool"
	"github.com/cfilipov/containerdeck/internal/update"
	"github.com/cfilipov/containerdeck/internal/ws"
)

// Broadcast channel names.
const (
	chanUnits  = "units"
	chanImages = "images"
	chanSystem = "system"
	chanInfo   = "info"
)

const debounceDelay = 200 * time.Millisecond

// UnitEntry is one unit as sent to clients.
type UnitEntry struct {
	ID      string `json:"id"`
	Image   string `json:"image"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	State   string `json:"state"`
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
}

// ImageEntry is one stored image as sent to clients.
type ImageEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FamiliarName string `json:"familiarName"`
	Tag          string `json:"tag"`
	Digest       string `json:"digest"`
	ShortDigest  string `json:"shortDigest"`
}

// SystemEntry is the system channel payload.
type SystemEntry struct {
	Running bool `json:"running"`
}

// InfoEntry describes the daemon, the CLI it drives and available updates.
type InfoEntry struct {
	Version       string          `json:"version"`
	CLIPath       string          `json:"cliPath"`
	CLIFound      bool            `json:"cliFound"`
	CLIVersion    string          `json:"cliVersion"`
	CLIVersionRaw string          `json:"cliVersionRaw"`
	CLISupported  bool            `json:"cliSupported"`
	MinCLIVersion string          `json:"minCliVersion"`
	Updates       []update.Result `json:"updates"`
}

func unitEntries(units []tool.Unit) []UnitEntry {
	out := make([]UnitEntry, len(units))
	for i, u := range units {
		out[i] = UnitEntry{
			ID:      u.ID,
			Image:   u.Image,
			OS:      u.OS,
			Arch:    u.Arch,
			State:   string(u.State),
			Addr:    u.Addr,
			Running: u.Running(),
		}
	}
	return out
}

func imageEntries(images []tool.Image) []ImageEntry {
	out := make([]ImageEntry, len(images))
	for i, img := range images {
		out[i] = ImageEntry{
			ID:           img.ID(),
			Name:         img.Name,
			FamiliarName: img.FamiliarName(),
			Tag:          img.Tag,
			Digest:       img.Digest,
			ShortDigest:  img.ShortDigest(),
		}
	}
	return out
}

// channelDebouncer manages per-channel trailing-edge debounce timers.
// Each channel resets its own timer; the timer fires 200ms after the last
// trigger of that channel.
type channelDebouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newChannelDebouncer() *channelDebouncer {
	return &channelDebouncer{timers: make(map[string]*time.Timer)}
}

// trigger resets the timer for the given channel. When the timer fires it
// calls fn in a new goroutine.
func (d *channelDebouncer) trigger(channel string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[channel]; ok {
		t.Stop()
	}
	d.timers[channel] = time.AfterFunc(debounceDelay, fn)
}

// stop cancels all pending timers.
func (d *channelDebouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.timers {
		t.Stop()
	}
}

// broadcastState holds per-channel FNV hashes for deduplication.
type broadcastState struct {
	mu       sync.Mutex
	lastHash map[string]uint64
	hasher   hash.Hash64
}

func newBroadcastState() *broadcastState {
	return &broadcastState{
		lastHash: make(map[string]uint64),
		hasher:   fnv.New64a(),
	}
}

// broadcastIfChanged marshals data, computes its FNV-1a hash, and broadcasts
// to all authenticated connections only if the hash differs from the last
// broadcast on this channel. Returns true if a broadcast was sent.
func (bs *broadcastState) broadcastIfChanged(wss *ws.Server, channel string, data any) bool {
	msg, err := json.Marshal(ws.ServerMessage[any]{Event: channel, Data: data})
	if err != nil {
		slog.Error("broadcast marshal", "channel", channel, "err", err)
		return false
	}

	bs.mu.Lock()
	bs.hasher.Reset()
	bs.hasher.Write(msg)
	sum := bs.hasher.Sum64()
	changed := sum != bs.lastHash[channel]
	if changed {
		bs.lastHash[channel] = sum
	}
	bs.mu.Unlock()

	if !changed {
		slog.Debug("broadcast skipped (unchanged)", "channel", channel)
		return false
	}

	wss.BroadcastAuthenticatedBytes(msg)
	slog.Debug("broadcast sent", "channel", channel, "bytes", len(msg))
	return true
}

// forget drops every remembered hash so the next broadcast on each channel
// is sent even if unchanged. Used when a client authenticates after a period
// with nobody listening.
func (bs *broadcastState) forget() {
	bs.mu.Lock()
	clear(bs.lastHash)
	bs.mu.Unlock()
}

func (app *App) broadcastUnits() {
	app.bcastState.broadcastIfChanged(app.WS, chanUnits, unitEntries(app.Store.Units()))
}

func (app *App) broadcastImages() {
	app.bcastState.broadcastIfChanged(app.WS, chanImages, imageEntries(app.Store.Images()))
}

func (app *App) broadcastSystem() {
	app.bcastState.broadcastIfChanged(app.WS, chanSystem, SystemEntry{Running: app.Store.Running()})
}

func (app *App) broadcastInfo() {
	app.bcastState.broadcastIfChanged(app.WS, chanInfo, app.info())
}

// sendAllBroadcastsTo sends the current state of every channel to one
// connection. Used right after a connection authenticates.
func (app *App) sendAllBroadcastsTo(c *ws.Conn) {
	snap := app.Store.Snapshot()
	ws.SendEvent(c, chanSystem, SystemEntry{Running: snap.Running})
	ws.SendEvent(c, chanUnits, unitEntries(snap.Units))
	ws.SendEvent(c, chanImages, imageEntries(snap.Images))
	ws.SendEvent(c, chanInfo, app.info())
}

// info assembles the info payload from the cached CLI probe and the last
// update check.
func (app *App) info() InfoEntry {
	out := InfoEntry{
		Version:       app.Version,
		MinCLIVersion: app.MinCLIVersion,
		Updates:       []update.Result{},
	}
	if app.Tool != nil {
		out.CLIPath = app.Tool.Path()
	}
	if ci := app.cli.Load(); ci != nil {
		out.CLIFound = ci.Found
		out.CLIVersion = ci.Version
		out.CLIVersionRaw = ci.Raw
		out.CLISupported = ci.Supported
	}
	if app.Checker != nil {
		if last := app.Checker.Last(); len(last) > 0 {
			out.Updates = last
		}
	}
	return out
}

// InitBroadcast initializes the broadcast state. Must be called before
// StartBroadcastWatcher or any broadcast trigger methods.
func (app *App) InitBroadcast() {
	app.bcastState = newBroadcastState()
	app.debouncer = newChannelDebouncer()
}

// StartBroadcastWatcher subscribes to store changes and turns them into
// debounced channel broadcasts until ctx is done.
func (app *App) StartBroadcastWatcher(ctx context.Context) {
	cancel := app.Store.Subscribe(func(ch store.Change) {
		if !app.WS.HasAuthenticatedConns() {
			return
		}
		switch ch.Kind {
		case store.KindUnits:
			app.debouncer.trigger(chanUnits, app.broadcastUnits)
		case store.KindImages:
			app.debouncer.trigger(chanImages, app.broadcastImages)
		case store.KindSystem:
			app.debouncer.trigger(chanSystem, app.broadcastSystem)
		}
	})

	go func() {
		<-ctx.Done()
		cancel()
		app.debouncer.stop()
	}()
}

// TriggerInfoBroadcast triggers a debounced info broadcast.
func (app *App) TriggerInfoBroadcast() {
	if app.debouncer != nil && app.WS.HasAuthenticatedConns() {
		app.debouncer.trigger(chanInfo, app.broadcastInfo)
	}
}
