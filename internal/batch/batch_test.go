package batch

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfilipov/containerdeck/internal/runner"
	"github.com/cfilipov/containerdeck/internal/store"
	"github.com/cfilipov/containerdeck/internal/tool"
)

const imagesOut = "NAME TAG DIGEST\n" +
	"alpine latest sha256:1\n" +
	"nginx 1.27 sha256:2\n"

func newExecutor(t *testing.T) (*Executor, *runner.Fake, *store.Store) {
	t.Helper()
	f := runner.NewFake()
	f.SetOutput("ID IMAGE OS ARCH STATE ADDR\n", "list")
	f.SetOutput("ID IMAGE OS ARCH STATE ADDR\na img linux arm64 running\n", "list", "--all")
	f.SetOutput(imagesOut, "images", "list")
	tl := tool.New(f, "/usr/local/bin/container")
	st := store.New(tl)
	return New(tl, st), f, st
}

func TestTitles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		verb    Verb
		targets []string
		want    string
	}{
		{DeleteUnits, []string{"a"}, "Container Deleted"},
		{DeleteUnits, []string{"a", "b", "c"}, "3 Containers Deleted"},
		{StartUnits, []string{"a"}, "Container Started"},
		{StartUnits, []string{"a", "b"}, "2 Containers Started"},
		{StopUnits, []string{"a"}, "Container Stopped"},
		{StopUnits, []string{"a", "b"}, "2 Containers Stopped"},
		{KillUnits, []string{"a"}, "Container Killed"},
		{KillUnits, []string{"a", "b", "c", "d"}, "4 Containers Killed"},
		{DeleteAllUnits, nil, "All Containers Deleted"},
		{DeleteAllImages, nil, "All Images Deleted"},
		{PruneImages, nil, "Images Pruned"},
		{SystemStart, nil, "System Started"},
		{SystemStop, nil, "System Stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			e, _, _ := newExecutor(t)
			assert.Equal(t, tt.want, e.Run(tt.verb, tt.targets).Title)
		})
	}
}

func TestDeleteUnitsSequentialWithRefresh(t *testing.T) {
	t.Parallel()
	e, f, st := newExecutor(t)

	f.SetOutput("a\n", "delete", "a")
	f.SetOutput("b\n", "delete", "b")

	res := e.Run(DeleteUnits, []string{"a", "b", "a"})
	assert.Equal(t, "2 Containers Deleted", res.Title)
	assert.Equal(t, []Entry{{"a", "a\n"}, {"b", "b\n"}}, res.Entries)
	assert.Equal(t, "a\n\nb", res.Message)
	assert.Equal(t, []string{"delete a", "delete b", "list --all"}, f.CallStrings())
	assert.Len(t, st.Units(), 1)
}

func TestPartialFailureStillCompletes(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	f.SetOutput("Error: not found: ghost\n", "stop", "ghost")
	f.SetOutput("web\n", "stop", "web")

	res := e.Run(StopUnits, []string{"ghost", "web"})
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "Error: not found: ghost\n", res.Entries[0].Output)
	assert.Equal(t, "Error: not found: ghost\n\nweb", res.Message)
}

func TestLaunchFailureStillRefreshes(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	f.SetLaunchFailure(true)
	res := e.Run(KillUnits, []string{"a"})
	assert.Equal(t, []Entry{{Target: "a", Output: ""}}, res.Entries)
	assert.Equal(t, []string{"kill a", "list --all"}, f.CallStrings())
}

func TestEmptyTargetsIsNoop(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	res := e.Run(StartUnits, nil)
	assert.Empty(t, res.Entries)
	assert.Empty(t, res.Title)
	assert.Empty(t, f.Calls())

	res = e.Run(DeleteImages, []string{})
	assert.Empty(t, res.Entries)
	assert.Empty(t, f.Calls())
}

func TestDeleteAllCannedMessages(t *testing.T) {
	t.Parallel()

	t.Run("units", func(t *testing.T) {
		t.Parallel()
		e, f, _ := newExecutor(t)
		res := e.Run(DeleteAllUnits, nil)
		assert.Equal(t, "All containers have been deleted.", res.Message)
		assert.Equal(t, []string{"delete --all", "list --all"}, f.CallStrings())
	})

	t.Run("images", func(t *testing.T) {
		t.Parallel()
		e, f, _ := newExecutor(t)
		res := e.Run(DeleteAllImages, nil)
		assert.Equal(t, "All images have been deleted.", res.Message)
		assert.Equal(t, []string{"image delete --all", "images list"}, f.CallStrings())
	})

	t.Run("non-empty output kept", func(t *testing.T) {
		t.Parallel()
		e, f, _ := newExecutor(t)
		f.SetOutput("removed 3\n", "image", "delete", "--all")
		res := e.Run(DeleteAllImages, nil)
		assert.Equal(t, "removed 3", res.Message)
	})

	t.Run("prune has no canned text", func(t *testing.T) {
		t.Parallel()
		e, _, _ := newExecutor(t)
		res := e.Run(PruneImages, nil)
		assert.Equal(t, "", res.Message)
	})
}

func TestDeleteImagesResolvesReferences(t *testing.T) {
	t.Parallel()
	e, f, st := newExecutor(t)
	st.RefreshImages()
	f.Reset()

	f.SetOutput("alpine:latest\n", "image", "delete", "alpine:latest")
	res := e.Run(DeleteImages, []string{
		"alpine:latest@sha256:1",
		"gone:1@sha256:9",
		"nginx:1.27@sha256:2",
	})

	assert.Equal(t, "3 Images Deleted", res.Title, "titles count the selection, not the resolved images")
	assert.Equal(t, []string{
		"image delete alpine:latest",
		"image delete nginx:1.27",
		"images list",
	}, f.CallStrings())
	assert.Equal(t, "alpine:latest", res.Entries[0].Target)
}

func TestSingleImageTitle(t *testing.T) {
	t.Parallel()
	e, _, st := newExecutor(t)
	st.RefreshImages()

	res := e.Run(DeleteImages, []string{"nginx:1.27@sha256:2"})
	assert.Equal(t, "Image Deleted", res.Title)
}

func TestImageTitleCountsUnknownTargets(t *testing.T) {
	t.Parallel()
	e, f, st := newExecutor(t)
	st.RefreshImages()

	res := e.Run(DeleteImages, []string{"alpine:latest@sha256:1", "gone:1@sha256:9"})
	assert.Equal(t, "2 Images Deleted", res.Title)
	assert.Len(t, res.Entries, 1)

	f.Reset()
	res = e.Run(DeleteImages, []string{"gone:1@sha256:9"})
	assert.Equal(t, "Image Deleted", res.Title)
	assert.Empty(t, res.Entries)
	assert.Equal(t, []string{"images list"}, f.CallStrings(), "refresh runs even when nothing resolved")
}

func TestSystemVerbsRefreshEverything(t *testing.T) {
	t.Parallel()
	e, f, st := newExecutor(t)

	e.Run(SystemStart, nil)
	assert.Equal(t, []string{"system start", "list", "list --all", "images list"}, f.CallStrings())
	assert.True(t, st.Running())
}

func TestProgressWriter(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	var buf bytes.Buffer
	e.Progress = &buf
	f.SetOutput("a", "start", "a")
	f.SetOutput("b", "start", "b")

	e.Run(StartUnits, []string{"a", "b"})
	assert.Equal(t, "a\nb\n", buf.String())
}

func TestUnknownVerb(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	res := e.Run(Verb("explode"), []string{"a"})
	assert.Empty(t, res.Title)
	assert.Empty(t, f.Calls())
}

func TestBatchesDoNotOverlap(t *testing.T) {
	t.Parallel()
	e, f, _ := newExecutor(t)

	var mu sync.Mutex
	active, maxActive := 0, 0
	release := make(chan struct{})
	f.OnRun(func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		<-release
		mu.Lock()
		active--
		mu.Unlock()
	}, "start")

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Run(StartUnits, []string{id})
		}()
	}

	for range 3 {
		select {
		case release <- struct{}{}:
		case <-time.After(5 * time.Second):
			t.Fatal("batch never ran")
		}
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
}
