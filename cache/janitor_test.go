package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cctv-replay/archive"
	"cctv-replay/config"
)

// newJanitorStore builds a store with a tiny size budget so eviction is easy
// to trigger with kilobyte-sized files. No archive calls happen here.
func newJanitorStore(t *testing.T, maxBytes, thresholdBytes int64) *Store {
	t.Helper()
	cfg := config.Config{
		ArchiveBaseURL:        "http://127.0.0.1:1", // never dialed
		ArchiveTimeout:        time.Second,
		TokenLifetime:         time.Minute,
		CacheDir:              t.TempDir(),
		CacheMaxSizeBytes:     maxBytes,
		CacheCleanupThreshold: thresholdBytes,
		MetadataCapacity:      100,
		MetadataTTL:           time.Hour,
	}
	store, err := NewStore(archive.NewSession(cfg), cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

// seedFile writes a cache file of the given size with the given age.
func seedFile(t *testing.T, store *Store, camera int, ts int64, size int, age time.Duration) string {
	t.Helper()
	seg := archive.RemoteSegment{
		CameraID:  camera,
		Filename:  fmt.Sprintf("CH%03d_%d.mp4", camera, ts),
		Timestamp: ts,
	}
	key := Key(seg)
	path := filepath.Join(store.Dir(), key)
	if err := os.WriteFile(path, bytes.Repeat([]byte("v"), size), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	store.index.Put(Entry{Key: key, Segment: seg, DiskPath: path, SizeBytes: int64(size)})
	return key
}

func TestCleanupBelowThresholdIsNoOp(t *testing.T) {
	store := newJanitorStore(t, 100*1024, 80*1024)
	key := seedFile(t, store, 1, 1000, 10*1024, time.Hour)

	store.Cleanup()

	if _, err := os.Stat(filepath.Join(store.Dir(), key)); err != nil {
		t.Errorf("file below threshold must survive: %v", err)
	}
}

func TestCleanupEvictsOldestToTarget(t *testing.T) {
	// Capacity 100KB, threshold 80KB, target 70KB. Five 20KB files put the
	// cache at 100KB; eviction must drop the two oldest to reach 60KB.
	store := newJanitorStore(t, 100*1024, 80*1024)

	oldest := seedFile(t, store, 1, 1000, 20*1024, 5*time.Hour)
	older := seedFile(t, store, 1, 2000, 20*1024, 4*time.Hour)
	var fresh []string
	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Hour} {
		fresh = append(fresh, seedFile(t, store, 1, int64(3000+i*1000), 20*1024, age))
	}

	store.Cleanup()

	for _, key := range []string{oldest, older} {
		if _, err := os.Stat(filepath.Join(store.Dir(), key)); !os.IsNotExist(err) {
			t.Errorf("expected %s evicted, stat err = %v", key, err)
		}
		if _, ok := store.index.Get(key); ok {
			t.Errorf("expected metadata for %s dropped with the file", key)
		}
	}
	for _, key := range fresh {
		if _, err := os.Stat(filepath.Join(store.Dir(), key)); err != nil {
			t.Errorf("expected %s to survive: %v", key, err)
		}
	}

	size, err := store.DiskSize()
	if err != nil {
		t.Fatal(err)
	}
	if size > 70*1024 {
		t.Errorf("cache size after cleanup = %d, want <= %d", size, 70*1024)
	}
}

// A recently served file outlives an older download because serving bumps
// the mtime eviction sorts on.
func TestCleanupSparesRecentlyServedFile(t *testing.T) {
	store := newJanitorStore(t, 100*1024, 80*1024)

	served := seedFile(t, store, 1, 1000, 30*1024, 6*time.Hour)
	evicted := seedFile(t, store, 1, 2000, 30*1024, 3*time.Hour)
	seedFile(t, store, 1, 3000, 30*1024, time.Hour)

	// Serve the oldest file; its eviction age resets.
	if _, ok := store.Lookup(served); !ok {
		t.Fatal("expected hit")
	}

	store.Cleanup()

	if _, err := os.Stat(filepath.Join(store.Dir(), served)); err != nil {
		t.Errorf("served file must survive eviction: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), evicted)); !os.IsNotExist(err) {
		t.Errorf("expected the stale file evicted, stat err = %v", err)
	}
}

// Files that do not follow the cache naming convention are never evicted.
func TestCleanupIgnoresForeignFiles(t *testing.T) {
	store := newJanitorStore(t, 40*1024, 20*1024)

	foreign := filepath.Join(store.Dir(), "notes.txt")
	if err := os.WriteFile(foreign, bytes.Repeat([]byte("x"), 30*1024), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-24 * time.Hour)
	if err := os.Chtimes(foreign, old, old); err != nil {
		t.Fatal(err)
	}
	seedFile(t, store, 1, 1000, 20*1024, time.Hour)

	store.Cleanup()

	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("foreign file must not be evicted: %v", err)
	}
}

// Download temps orphaned by a crash are swept once old enough; a temp
// young enough to belong to an in-flight download is left alone.
func TestCleanupSweepsStaleTempFiles(t *testing.T) {
	store := newJanitorStore(t, 100*1024, 80*1024)

	stale := filepath.Join(store.Dir(), ".download-123456")
	if err := os.WriteFile(stale, []byte("half a download"), 0600); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	inflight := filepath.Join(store.Dir(), ".download-654321")
	if err := os.WriteFile(inflight, []byte("still writing"), 0600); err != nil {
		t.Fatal(err)
	}

	// The cache is under its threshold; the sweep must run regardless.
	store.Cleanup()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale temp removed, stat err = %v", err)
	}
	if _, err := os.Stat(inflight); err != nil {
		t.Errorf("in-flight temp must survive: %v", err)
	}
}

func TestJanitorStartStop(t *testing.T) {
	store := newJanitorStore(t, 100*1024, 80*1024)
	j := NewJanitor(store, time.Minute)
	if err := j.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	j.Stop()
}
