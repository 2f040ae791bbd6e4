package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cctv-replay/archive"
	"cctv-replay/config"

	"golang.org/x/sync/singleflight"
)

// ErrDownloadFailed indicates the archive did not deliver the segment bytes.
// The caller sees a cache miss with a reason; no partial file is left behind.
var ErrDownloadFailed = errors.New("segment download failed")

// Store maps remote segments to files in a size-bounded on-disk cache,
// downloading through the archive session on first access. Concurrent
// requests for the same segment share one download.
type Store struct {
	session *archive.Session
	dir     string
	index   *Index

	maxSizeBytes     int64
	cleanupThreshold int64
	targetFraction   float64

	flight    singleflight.Group
	cleanupMu sync.Mutex
}

// NewStore creates a cache store over cfg.CacheDir. The directory is created
// if missing.
func NewStore(session *archive.Session, cfg config.Config) (*Store, error) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", cfg.CacheDir, err)
	}
	return &Store{
		session:          session,
		dir:              cfg.CacheDir,
		index:            NewIndex(cfg.MetadataCapacity, cfg.MetadataTTL),
		maxSizeBytes:     cfg.CacheMaxSizeBytes,
		cleanupThreshold: cfg.CacheCleanupThreshold,
		targetFraction:   0.7,
	}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Register records segment metadata under its cache key before any download
// happens, so a later request for the cache URL can be fetched through. The
// index is bounded and time-expiring; a dropped registration just means the
// client has to re-resolve.
func (s *Store) Register(seg archive.RemoteSegment) string {
	key := Key(seg)
	s.index.Put(Entry{
		Key:      key,
		Segment:  seg,
		DiskPath: filepath.Join(s.dir, key),
	})
	return key
}

// Segment returns the registered segment descriptor for a cache key.
func (s *Store) Segment(key string) (archive.RemoteSegment, bool) {
	entry, ok := s.index.Get(key)
	if !ok {
		return archive.RemoteSegment{}, false
	}
	return entry.Segment, true
}

// Lookup returns the cached file path for a cache key without fetching.
// Metadata whose file has not arrived yet (or vanished) is a miss but is
// kept, since it is what allows the miss to be repaired by a fetch; a file
// that outlived its metadata is still served.
func (s *Store) Lookup(key string) (string, bool) {
	s.index.Get(key) // bump access order if registered
	path := filepath.Join(s.dir, key)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	s.touch(path)
	return path, true
}

// GetOrFetch returns the local path of the cached file for seg, downloading
// it on miss. N concurrent calls for the same segment perform one download.
func (s *Store) GetOrFetch(ctx context.Context, seg archive.RemoteSegment) (string, error) {
	key := Key(seg)
	if path, ok := s.Lookup(key); ok {
		return path, nil
	}

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		if path, ok := s.Lookup(key); ok {
			return path, nil
		}

		diskPath := filepath.Join(s.dir, key)

		// Under sustained miss load the janitor interval alone cannot bound
		// growth; evict synchronously before adding more bytes.
		if size, err := s.DiskSize(); err == nil && size > s.cleanupThreshold {
			s.Cleanup()
		}

		return s.download(ctx, seg, key, diskPath)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// download fetches the segment bytes through the session and places them in
// the cache. The bytes land in a temp file first and are renamed into place
// only once fully written, so a failed download never leaves a servable
// half-written cache file.
func (s *Store) download(ctx context.Context, seg archive.RemoteSegment, key, diskPath string) (string, error) {
	params := url.Values{}
	params.Set("func", "get_viewer")
	params.Set("source_path", seg.RemotePath)
	params.Set("source_file", seg.Filename)

	resp, err := s.session.AuthorizedGet(ctx, "/cgi-bin/filemanager/utilRequest.cgi", params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d for %s", ErrDownloadFailed, resp.StatusCode, seg.Filename)
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file: %v", ErrDownloadFailed, err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: writing %s: %v", ErrDownloadFailed, seg.Filename, err)
	}

	if err := os.Rename(tmpName, diskPath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: placing %s: %v", ErrDownloadFailed, key, err)
	}

	s.index.Put(Entry{Key: key, Segment: seg, DiskPath: diskPath, SizeBytes: written})
	log.Printf("cache: downloaded %s (%d bytes) as %s", seg.Filename, written, key)
	return diskPath, nil
}

// touch bumps the file's mtime so eviction age tracks last access, not
// download time.
func (s *Store) touch(path string) {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		log.Printf("cache: touching %s: %v", path, err)
	}
}

// DiskSize returns the total size in bytes of the cached video files.
func (s *Store) DiskSize() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading cache directory: %w", err)
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

// Stats describes the cache for the management endpoint.
type Stats struct {
	SizeBytes      int64 `json:"sizeBytes"`
	MaxSizeBytes   int64 `json:"maxSizeBytes"`
	ThresholdBytes int64 `json:"thresholdBytes"`
	Files          int   `json:"files"`
	MetadataItems  int   `json:"metadataItems"`
}

// CurrentStats reports cache size, file count, and metadata occupancy.
func (s *Store) CurrentStats() Stats {
	stats := Stats{
		MaxSizeBytes:   s.maxSizeBytes,
		ThresholdBytes: s.cleanupThreshold,
		MetadataItems:  s.index.Len(),
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			stats.SizeBytes += info.Size()
			stats.Files++
		}
	}
	return stats
}

// Erase unconditionally deletes every cached file and clears the metadata
// index. This is the operator-triggered wipe, distinct from eviction.
func (s *Store) Erase() (filesDeleted int, bytesFreed int64, err error) {
	s.cleanupMu.Lock()
	defer s.cleanupMu.Unlock()

	// Metadata first: a concurrent lookup must not serve a file that is
	// about to disappear under it.
	s.index.Clear()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		info, statErr := entry.Info()
		if rmErr := os.Remove(path); rmErr != nil {
			log.Printf("cache: erase: removing %s: %v", path, rmErr)
			continue
		}
		filesDeleted++
		if statErr == nil {
			bytesFreed += info.Size()
		}
	}
	log.Printf("cache: erased %d files (%.2f MB)", filesDeleted, float64(bytesFreed)/(1024*1024))
	return filesDeleted, bytesFreed, nil
}
