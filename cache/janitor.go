package cache

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor keeps the disk cache under its size budget by periodically evicting
// the oldest files. A pass also runs shortly after startup to recover from
// whatever the previous process left behind.
type Janitor struct {
	store    *Store
	interval time.Duration
	cron     *cron.Cron
}

// NewJanitor creates a janitor for the given store.
func NewJanitor(store *Store, interval time.Duration) *Janitor {
	return &Janitor{
		store:    store,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start schedules the periodic eviction pass and kicks off the initial one
// after a short delay.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), func() {
		j.store.Cleanup()
	})
	if err != nil {
		return fmt.Errorf("scheduling cache cleanup: %w", err)
	}
	j.cron.Start()

	go func() {
		time.Sleep(10 * time.Second)
		j.store.Cleanup()
	}()

	log.Printf("janitor: cache cleanup scheduled every %s", j.interval)
	return nil
}

// Stop halts the schedule; a pass already running finishes on its own.
func (j *Janitor) Stop() {
	j.cron.Stop()
}

// Temp files this old cannot belong to an in-flight download anymore; they
// were left behind by a crash mid-download.
const staleTempAge = time.Hour

// sweepTempFiles deletes crash-orphaned download temp files. They fail the
// cache naming check so regular eviction never touches them, yet they count
// toward the disk budget until removed.
func (s *Store) sweepTempFiles() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), ".download-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < staleTempAge {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			log.Printf("janitor: removing stale temp %s: %v", entry.Name(), err)
			continue
		}
		log.Printf("janitor: removed stale temp %s", entry.Name())
	}
}

// Cleanup runs one eviction pass: if the cache is over the cleanup threshold,
// delete files oldest-first until the total falls to the target fraction of
// the hard capacity. Overlapping passes are skipped, and individual delete
// failures are logged without aborting the pass.
func (s *Store) Cleanup() {
	if !s.cleanupMu.TryLock() {
		log.Printf("janitor: cleanup already running, skipping pass")
		return
	}
	defer s.cleanupMu.Unlock()

	s.sweepTempFiles()

	currentSize, err := s.DiskSize()
	if err != nil {
		log.Printf("janitor: %v", err)
		return
	}
	log.Printf("janitor: cache size %dMB / %dMB", currentSize/(1024*1024), s.maxSizeBytes/(1024*1024))
	if currentSize <= s.cleanupThreshold {
		return
	}

	type cacheFile struct {
		name  string
		path  string
		size  int64
		mtime time.Time
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("janitor: reading cache directory: %v", err)
		return
	}
	var files []cacheFile
	for _, entry := range entries {
		if entry.IsDir() || !ValidKey(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Printf("janitor: stat %s: %v", entry.Name(), err)
			continue
		}
		files = append(files, cacheFile{
			name:  entry.Name(),
			path:  filepath.Join(s.dir, entry.Name()),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
	}

	// Oldest first. Access bumps mtime, so age here is time since last serve.
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	targetSize := int64(float64(s.maxSizeBytes) * s.targetFraction)
	var freed int64
	var removed int
	for _, f := range files {
		if currentSize-freed <= targetSize {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Printf("janitor: removing %s: %v", f.name, err)
			continue
		}
		s.index.Delete(f.name)
		freed += f.size
		removed++
	}

	if removed > 0 {
		log.Printf("janitor: removed %d files (%dMB), cache now %dMB",
			removed, freed/(1024*1024), (currentSize-freed)/(1024*1024))
	}
}
