package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/cfilipov/containerdeck/internal/batch"
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

const (
	CLIPath    = "/usr/local/bin/container"
	CLIVersion = "0.4.1"

	UnitsHeader  = "ID          IMAGE                           OS     ARCH   STATE    ADDR\n"
	ImagesHeader = "NAME                     TAG      DIGEST\n"

	DefaultUnits = UnitsHeader +
		"web         docker.io/library/nginx:latest  linux  arm64  running  192.168.64.3\n" +
		"db          docker.io/library/postgres:16   linux  arm64  stopped\n"

	DefaultImages = ImagesHeader +
		"docker.io/library/nginx  latest   sha256:4f5a7b2c9d1e8f3a6b0c7d2e9f1a4b8c\n" +
		"alpine                   3.20     sha256:9e8d7c6b5a4f3e2d1c0b9a8f7e6d5c4b\n"
)

var msgIDCounter int64

// StaticSource is an update.Source with canned tags.
type StaticSource struct {
	mu   sync.Mutex
	Tags map[string]string
}

func (s *StaticSource) LatestTag(_ context.Context, repo string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Tags[repo], nil
}

// Set replaces the tag for repo.
func (s *StaticSource) Set(repo, tag string) {
	s.mu.Lock()
	s.Tags[repo] = tag
	s.mu.Unlock()
}

// TestEnv holds a fully wired test application with a temp DB and a fake CLI.
type TestEnv struct {
	App      *handlers.App
	Server   *httptest.Server
	WSServer *ws.Server
	DataDir  string
	CLI      *runner.Fake
	Releases *StaticSource
	Token    string
	cancel   context.CancelFunc
}

// Option adjusts the environment before it starts.
type Option func(*envOptions)

type envOptions struct {
	noAuth       bool
	pollInterval time.Duration
	prefs        func(*models.Preferences)
	cli          func(*runner.Fake)
	history      []models.ReleaseRecord
}

// WithNoAuth authenticates every connection on connect.
func WithNoAuth() Option { return func(o *envOptions) { o.noAuth = true } }

// WithPollInterval overrides the scheduler tick.
func WithPollInterval(d time.Duration) Option {
	return func(o *envOptions) { o.pollInterval = d }
}

// WithPreferences runs fn against the preference store before Startup.
func WithPreferences(fn func(*models.Preferences)) Option {
	return func(o *envOptions) { o.prefs = fn }
}

// WithCLI adjusts the fake CLI after the default outputs are registered and
// before Startup runs.
func WithCLI(fn func(*runner.Fake)) Option {
	return func(o *envOptions) { o.cli = fn }
}

// WithReleaseHistory stores update check results as if a previous run had
// recorded them.
func WithReleaseHistory(recs ...models.ReleaseRecord) Option {
	return func(o *envOptions) { o.history = append(o.history, recs...) }
}

// Setup creates a test environment with a real HTTP server, BoltDB and a
// fake CLI primed with DefaultUnits and DefaultImages.
func Setup(t testing.TB, opts ...Option) *TestEnv {
	t.Helper()

	o := envOptions{pollInterval: 50 * time.Millisecond}
	for _, fn := range opts {
		fn(&o)
	}

	dataDir := t.TempDir()
	database, err := db.Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}

	settings := models.NewSettingStore(database)
	prefs := models.NewPreferences(settings)
	releases := models.NewReleaseStore(database)

	jwtSecret, err := settings.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}
	token, err := models.CreateSessionToken(jwtSecret)
	if err != nil {
		t.Fatal(err)
	}

	if o.prefs != nil {
		o.prefs(prefs)
	}
	for _, rec := range o.history {
		if err := releases.Upsert(rec); err != nil {
			t.Fatal(err)
		}
	}

	fake := runner.NewFake()
	fake.SetOutput("container CLI version "+CLIVersion+" (build: release, commit: 0fd8692)", "--version")
	fake.SetOutput(UnitsHeader, "list")
	fake.SetOutput(DefaultUnits, "list", "--all")
	fake.SetOutput(DefaultImages, "images", "list")
	if o.cli != nil {
		o.cli(fake)
	}

	cli := tool.New(fake, CLIPath)
	st := store.New(cli)
	exec := batch.New(cli, st)
	terms := terminal.NewManager()
	exec.Progress = terms.Create(handlers.OperationsTerminal)

	src := &StaticSource{Tags: map[string]string{}}
	wss := ws.NewServer()

	app := &handlers.App{
		Tool:          cli,
		Store:         st,
		Batch:         exec,
		Settings:      settings,
		Prefs:         prefs,
		Releases:      releases,
		WS:            wss,
		Terms:         terms,
		NoAuth:        o.noAuth,
		JWTSecret:     jwtSecret,
		Version:       "1.0.0",
		MinCLIVersion: ">= 0.1.0",
	}
	app.Checker = update.NewChecker(src, releases, prefs,
		update.Target{Product: "cli", Repo: "apple/container", Current: app.CLIVersion},
		update.Target{Product: "daemon", Repo: "cfilipov/containerdeck", Current: func() string { return app.Version }, Dismissible: true},
	)
	if err := app.Checker.Restore(releases); err != nil {
		t.Fatal(err)
	}
	app.Scheduler = scheduler.New(st, app, scheduler.WithInterval(o.pollInterval))

	app.InitBroadcast()
	handlers.RegisterAll(app)

	mux := http.NewServeMux()
	mux.Handle("/ws", wss.UpgradeHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	ctx, cancel := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		app.Scheduler.Run(ctx)
		close(schedDone)
	}()
	app.StartBroadcastWatcher(ctx)
	app.Startup()

	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		wss.CloseAll()
		cancel()
		<-schedDone
		database.Close()
	})

	return &TestEnv{
		App:      app,
		Server:   server,
		WSServer: wss,
		DataDir:  dataDir,
		CLI:      fake,
		Releases: src,
		Token:    token,
		cancel:   cancel,
	}
}

// DialWS opens a WebSocket connection to the test server.
func (e *TestEnv) DialWS(t testing.TB) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + e.Server.URL[4:] + "/ws" // http -> ws
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatal("dial ws:", err)
	}
	conn.SetReadLimit(1 << 20)

	t.Cleanup(func() {
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

// Login authenticates conn with the session token.
func (e *TestEnv) Login(t testing.TB, conn *websocket.Conn) {
	t.Helper()
	resp := e.SendAndReceive(t, conn, "loginByToken", e.Token)
	if ok, _ := resp["ok"].(bool); !ok {
		t.Fatalf("login failed: %v", resp)
	}
}

// SendAndReceive sends a WS event with an ack ID and returns the parsed ack
// data. Push messages that arrive first are skipped.
func (e *TestEnv) SendAndReceive(t testing.TB, conn *websocket.Conn, event string, args ...any) map[string]any {
	t.Helper()

	id := atomic.AddInt64(&msgIDCounter, 1)
	e.write(t, conn, map[string]any{"id": id, "event": event, "args": args})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		_, respData, err := conn.Read(ctx)
		if err != nil {
			t.Fatal("read:", err)
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(respData, &raw); err != nil {
			t.Fatal("unmarshal response:", err)
		}

		if idRaw, ok := raw["id"]; ok {
			var ackID int64
			if err := json.Unmarshal(idRaw, &ackID); err == nil && ackID == id {
				var ack struct {
					Data map[string]any `json:"data"`
				}
				if err := json.Unmarshal(respData, &ack); err != nil {
					t.Fatal("unmarshal ack:", err)
				}
				return ack.Data
			}
		}
	}
}

// SendEvent sends a WS event without waiting for an ack.
func (e *TestEnv) SendEvent(t testing.TB, conn *websocket.Conn, event string, args ...any) {
	t.Helper()
	e.write(t, conn, map[string]any{"event": event, "args": args})
}

// WaitEvent reads until a push named event arrives and returns its raw data.
func (e *TestEnv) WaitEvent(t testing.TB, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		var msg struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal("unmarshal push:", err)
		}
		if msg.Event == event {
			return msg.Data
		}
	}
}

func (e *TestEnv) write(t testing.TB, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal("marshal msg:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatal("write:", err)
	}
}
