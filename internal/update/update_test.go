package update

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfilipov/containerdeck/internal/models"
)

type fakeSource struct {
	mu    sync.Mutex
	tags  map[string]string
	fail  map[string]bool
	calls []string
}

func (f *fakeSource) LatestTag(_ context.Context, repo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, repo)
	if f.fail[repo] {
		return "", errors.New("network down")
	}
	return f.tags[repo], nil
}

type memBookmarks struct {
	skipped, reminded *string
}

func (m *memBookmarks) SkippedVersion() (string, bool, error) {
	if m.skipped == nil {
		return "", false, nil
	}
	return *m.skipped, true, nil
}

func (m *memBookmarks) RemindedVersion() (string, bool, error) {
	if m.reminded == nil {
		return "", false, nil
	}
	return *m.reminded, true, nil
}

func (m *memBookmarks) SetSkippedVersion(v *string) error  { m.skipped = v; return nil }
func (m *memBookmarks) SetRemindedVersion(v *string) error { m.reminded = v; return nil }

type memRecorder struct {
	recs []models.ReleaseRecord
}

func (m *memRecorder) Upsert(rec models.ReleaseRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) All() ([]models.ReleaseRecord, error) {
	return m.recs, nil
}

func fixed(v string) func() string { return func() string { return v } }

func TestCheckDetectsNewerRelease(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tags: map[string]string{
		"apple/container":       "0.5.0",
		"cfilipov/containerdeck": "v1.0.0",
	}}
	rec := &memRecorder{}
	c := NewChecker(src, rec, &memBookmarks{},
		Target{Product: "cli", Repo: "apple/container", Current: fixed("0.4.1")},
		Target{Product: "daemon", Repo: "cfilipov/containerdeck", Current: fixed("1.0.0"), Dismissible: true},
	)

	results := c.Check(context.Background())
	require.Len(t, results, 2)

	assert.Equal(t, Result{Product: "cli", Repo: "apple/container", Current: "0.4.1", Latest: "0.5.0", Available: true, Prompt: true}, results[0])
	assert.Equal(t, "1.0.0", results[1].Latest, "leading v is stripped")
	assert.False(t, results[1].Available)
	assert.False(t, results[1].Prompt)

	require.Len(t, rec.recs, 2)
	assert.Equal(t, "cli", rec.recs[0].Product)
	assert.Equal(t, results, c.Last())
}

func TestCheckOlderRemoteIsNotAnUpdate(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tags: map[string]string{"a/b": "0.9.0"}}
	c := NewChecker(src, nil, nil, Target{Product: "cli", Repo: "a/b", Current: fixed("1.0.0")})

	r := c.Check(context.Background())
	require.Len(t, r, 1)
	assert.False(t, r[0].Available)
}

func TestCheckNetworkFailureLeavesLatestUnset(t *testing.T) {
	t.Parallel()

	src := &fakeSource{fail: map[string]bool{"a/b": true}}
	rec := &memRecorder{}
	c := NewChecker(src, rec, nil, Target{Product: "cli", Repo: "a/b", Current: fixed("1.0.0")})

	r := c.Check(context.Background())
	require.Len(t, r, 1)
	assert.Empty(t, r[0].Latest)
	assert.False(t, r[0].Available)
	assert.Empty(t, rec.recs, "failed lookups are not recorded")
}

func TestCheckSkipsUnknownCurrentVersion(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tags: map[string]string{"a/b": "1.0.0"}}
	c := NewChecker(src, nil, nil,
		Target{Product: "cli", Repo: "a/b", Current: fixed("")},
		Target{Product: "nil", Repo: "a/b"},
	)

	assert.Empty(t, c.Check(context.Background()))
	assert.Empty(t, src.calls, "no fetch without a local version")
}

func TestCheckWithoutKnownVersionKeepsLast(t *testing.T) {
	t.Parallel()

	current := "1.0.0"
	src := &fakeSource{tags: map[string]string{"a/b": "1.1.0"}}
	c := NewChecker(src, nil, nil, Target{Product: "cli", Repo: "a/b", Current: func() string { return current }})

	require.Len(t, c.Check(context.Background()), 1)
	current = ""
	assert.Empty(t, c.Check(context.Background()))
	require.Len(t, c.Last(), 1)
	assert.Equal(t, "1.1.0", c.Last()[0].Latest)
}

func TestRestoreSeedsLastFromHistory(t *testing.T) {
	t.Parallel()

	skipped := "2.0.0"
	marks := &memBookmarks{skipped: &skipped}
	history := &memRecorder{recs: []models.ReleaseRecord{
		{Product: "daemon", Repo: "cfilipov/containerdeck", Current: "1.0.0", Latest: "2.0.0", Available: true},
		{Product: "cli", Repo: "apple/container", Current: "0.4.1", Latest: "0.5.0", Available: true},
		{Product: "cli", Repo: "someone/else", Current: "0.1.0", Latest: "9.0.0", Available: true},
		{Product: "retired", Repo: "x/y", Current: "1.0.0", Latest: "1.0.0"},
	}}
	src := &fakeSource{tags: map[string]string{}}
	c := NewChecker(src, nil, marks,
		Target{Product: "cli", Repo: "apple/container", Current: fixed("0.4.1")},
		Target{Product: "daemon", Repo: "cfilipov/containerdeck", Current: fixed("1.0.0"), Dismissible: true},
	)

	require.NoError(t, c.Restore(history))
	last := c.Last()
	require.Len(t, last, 2, "only configured product/repo pairs are restored")
	assert.Equal(t, "cli", last[0].Product)
	assert.Equal(t, "0.5.0", last[0].Latest)
	assert.True(t, last[0].Prompt)
	assert.Equal(t, "daemon", last[1].Product)
	assert.True(t, last[1].Available)
	assert.False(t, last[1].Prompt, "skipped version does not prompt")
	assert.Empty(t, src.calls, "restoring does not fetch")
}

func TestRestoreAfterCheckIsNoop(t *testing.T) {
	t.Parallel()

	src := &fakeSource{tags: map[string]string{"a/b": "1.1.0"}}
	c := NewChecker(src, nil, nil, Target{Product: "cli", Repo: "a/b", Current: fixed("1.0.0")})
	c.Check(context.Background())

	history := &memRecorder{recs: []models.ReleaseRecord{{Product: "cli", Repo: "a/b", Current: "1.0.0", Latest: "0.9.0"}}}
	require.NoError(t, c.Restore(history))
	assert.Equal(t, "1.1.0", c.Last()[0].Latest)
}

func TestPromptBookmarks(t *testing.T) {
	t.Parallel()

	marks := &memBookmarks{}
	src := &fakeSource{tags: map[string]string{"a/b": "1.5.0"}}
	c := NewChecker(src, nil, marks, Target{Product: "daemon", Repo: "a/b", Current: fixed("1.4.0"), Dismissible: true})

	// First sighting prompts.
	assert.True(t, c.ShouldPrompt("1.4.0", "1.5.0"))
	r := c.Check(context.Background())
	require.Len(t, r, 1)
	assert.True(t, r[0].Prompt)

	// Skipped: no prompt, cached result updated.
	require.NoError(t, c.Skip("1.5.0"))
	assert.False(t, c.ShouldPrompt("1.4.0", "1.5.0"))
	assert.False(t, c.Last()[0].Prompt)
	assert.True(t, c.Last()[0].Available)

	// A newer release prompts again.
	assert.True(t, c.ShouldPrompt("1.4.0", "1.6.0"))

	// Reminded: no prompt for that version.
	marks.skipped = nil
	require.NoError(t, c.RemindLater("1.5.0"))
	assert.False(t, c.ShouldPrompt("1.4.0", "1.5.0"))
	assert.True(t, c.ShouldPrompt("1.4.0", "1.6.0"))

	// Nothing newer, nothing to prompt.
	assert.False(t, c.ShouldPrompt("1.6.0", "1.6.0"))
	assert.False(t, c.ShouldPrompt("1.6.0", ""))
}

func TestNonDismissibleIgnoresBookmarks(t *testing.T) {
	t.Parallel()

	v := "0.5.0"
	marks := &memBookmarks{skipped: &v}
	src := &fakeSource{tags: map[string]string{"apple/container": "0.5.0"}}
	c := NewChecker(src, nil, marks, Target{Product: "cli", Repo: "apple/container", Current: fixed("0.4.0")})

	r := c.Check(context.Background())
	require.Len(t, r, 1)
	assert.True(t, r[0].Prompt)
}

func TestGitHubSourceLatestTag(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/apple/container/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tag_name":"0.5.0","name":"0.5.0"}`)
	})
	mux.HandleFunc("/repos/empty/tag/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"untagged"}`)
	})
	mux.HandleFunc("/repos/broken/json/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tag_name":`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := NewGitHubSource(srv.Client())
	require.NoError(t, g.SetBaseURL(srv.URL))

	tag, err := g.LatestTag(context.Background(), "apple/container")
	require.NoError(t, err)
	assert.Equal(t, "0.5.0", tag)

	_, err = g.LatestTag(context.Background(), "missing/repo")
	assert.Error(t, err, "404 is a failure")

	_, err = g.LatestTag(context.Background(), "empty/tag")
	assert.Error(t, err)

	_, err = g.LatestTag(context.Background(), "broken/json")
	assert.Error(t, err)
}

func TestSplitRepo(t *testing.T) {
	t.Parallel()

	owner, name, err := splitRepo("apple/container")
	require.NoError(t, err)
	assert.Equal(t, "apple", owner)
	assert.Equal(t, "container", name)

	for _, bad := range []string{"", "single", "/", "a/b/c", "owner/"} {
		_, _, err := splitRepo(bad)
		assert.Error(t, err, bad)
	}
}
