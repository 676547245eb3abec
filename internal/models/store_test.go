package models

import (
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/cfilipov/containerdeck/internal/db"
)

func openTestSettingStore(t *testing.T) *SettingStore {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSettingStore(database)
}

func openTestReleaseStore(t *testing.T) *ReleaseStore {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return NewReleaseStore(database)
}

// --- SettingStore ---

func TestSettingStoreGetSet(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)

	// Get nonexistent returns empty
	val, err := store.Get("missing")
	if err != nil {
		t.Fatal(err)
	}
	if val != "" {
		t.Errorf("expected empty for missing key, got %q", val)
	}

	if err := store.Set("cliPath", "/usr/local/bin/container"); err != nil {
		t.Fatal(err)
	}
	val, err = store.Get("cliPath")
	if err != nil {
		t.Fatal(err)
	}
	if val != "/usr/local/bin/container" {
		t.Errorf("val = %q, want /usr/local/bin/container", val)
	}

	// Overwrite
	if err := store.Set("cliPath", "/opt/bin/container"); err != nil {
		t.Fatal(err)
	}
	val, _ = store.Get("cliPath")
	if val != "/opt/bin/container" {
		t.Errorf("val = %q, want /opt/bin/container", val)
	}
}

func TestSettingStoreLookupDistinguishesEmpty(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)

	if _, found, _ := store.Lookup("k"); found {
		t.Error("missing key reported found")
	}

	store.Set("k", "")
	v, found, err := store.Lookup("k")
	if err != nil {
		t.Fatal(err)
	}
	if !found || v != "" {
		t.Errorf("Lookup = (%q, %v), want (\"\", true)", v, found)
	}
}

func TestSettingStoreDelete(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)

	store.Set("k", "v")
	if err := store.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Lookup("k"); found {
		t.Error("deleted key still found (cached)")
	}
	if _, found, _ := NewSettingStore(store.db).Lookup("k"); found {
		t.Error("deleted key still found (db)")
	}

	if err := store.Delete("never-set"); err != nil {
		t.Errorf("delete missing key: %v", err)
	}
}

func TestSettingStoreEnsureJWTSecret(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)

	secret1, err := store.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}
	if secret1 == "" {
		t.Fatal("expected non-empty secret")
	}

	// Second call returns the same secret
	secret2, err := store.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}
	if secret1 != secret2 {
		t.Error("EnsureJWTSecret generated a new secret on second call")
	}
}

func TestSettingStoreCachesReads(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)

	store.Set("k", "v1")
	store.Get("k") // populate cache

	// Write directly, bypassing the cache
	store.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketSettings).Put([]byte("k"), []byte("v2"))
	})

	if v, _ := store.Get("k"); v != "v1" {
		t.Errorf("cached value = %q, want v1", v)
	}
	if v, _ := NewSettingStore(store.db).Get("k"); v != "v2" {
		t.Errorf("uncached value = %q, want v2", v)
	}
}

// --- Preferences ---

func TestPreferencesDefaults(t *testing.T) {
	t.Parallel()
	prefs := NewPreferences(openTestSettingStore(t))

	vals, err := prefs.Values()
	if err != nil {
		t.Fatal(err)
	}
	if vals.LaunchOnStart || vals.StopOnQuit {
		t.Errorf("bool defaults should be false: %+v", vals)
	}
	if vals.SkippedVersion != nil || vals.RemindedVersion != nil {
		t.Errorf("optional defaults should be nil: %+v", vals)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)
	prefs := NewPreferences(store)

	if err := prefs.SetLaunchOnStart(true); err != nil {
		t.Fatal(err)
	}
	if err := prefs.SetStopOnQuit(true); err != nil {
		t.Fatal(err)
	}
	v := "1.5.0"
	if err := prefs.SetSkippedVersion(&v); err != nil {
		t.Fatal(err)
	}

	// Keys are persisted under their stable names.
	if v, _ := store.Get("launchContainersOnAppLaunch"); v != "true" {
		t.Errorf("launch key = %q", v)
	}
	if v, _ := store.Get("lastSkippedUpdateVersion"); v != "1.5.0" {
		t.Errorf("skipped key = %q", v)
	}

	got, ok, err := prefs.SkippedVersion()
	if err != nil || !ok || got != "1.5.0" {
		t.Errorf("SkippedVersion = (%q, %v, %v)", got, ok, err)
	}

	if err := prefs.SetSkippedVersion(nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := prefs.SkippedVersion(); ok {
		t.Error("nil should clear the skipped version")
	}

	r := "1.6.0"
	if err := prefs.Apply(PreferenceValues{StopOnQuit: false, LaunchOnStart: true, RemindedVersion: &r}); err != nil {
		t.Fatal(err)
	}
	vals, _ := prefs.Values()
	if !vals.LaunchOnStart || vals.StopOnQuit {
		t.Errorf("after Apply: %+v", vals)
	}
	if vals.RemindedVersion == nil || *vals.RemindedVersion != "1.6.0" {
		t.Errorf("reminded = %v", vals.RemindedVersion)
	}
}

func TestPreferencesBadBool(t *testing.T) {
	t.Parallel()
	store := openTestSettingStore(t)
	store.Set(PrefStopOnQuit, "maybe")

	if _, err := NewPreferences(store).StopOnQuit(); err == nil {
		t.Error("expected parse error for non-bool value")
	}
}

// --- ReleaseStore ---

func TestReleaseStoreUpsert(t *testing.T) {
	t.Parallel()
	store := openTestReleaseStore(t)

	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no records, got %+v", all)
	}

	err = store.Upsert(ReleaseRecord{Product: "cli", Repo: "apple/container", Current: "0.1.0", Latest: "0.2.0", Available: true})
	if err != nil {
		t.Fatal(err)
	}

	all, err = store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("All = %+v", all)
	}
	rec := all[0]
	if rec.Latest != "0.2.0" || !rec.Available {
		t.Fatalf("record = %+v", rec)
	}
	if rec.LastChecked == 0 {
		t.Error("LastChecked should be stamped")
	}
}

func TestReleaseStoreAllSortedAndCached(t *testing.T) {
	t.Parallel()
	store := openTestReleaseStore(t)

	store.Upsert(ReleaseRecord{Product: "daemon", Current: "1.0.0"})
	store.Upsert(ReleaseRecord{Product: "cli", Current: "0.1.0"})

	all, err := store.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Product != "cli" || all[1].Product != "daemon" {
		t.Fatalf("All = %+v", all)
	}

	// Writes invalidate the cache.
	store.Upsert(ReleaseRecord{Product: "cli", Current: "0.2.0"})
	all, _ = store.All()
	if all[0].Current != "0.2.0" {
		t.Errorf("stale cache: %+v", all[0])
	}
}
