package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"cctv-replay/archive"
	"cctv-replay/cache"
	"cctv-replay/config"
	"cctv-replay/database"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeDB is an in-memory Database for handler tests.
type fakeDB struct {
	items []database.Item
	err   error
}

func (f *fakeDB) ListItems() ([]database.Item, error) { return f.items, f.err }
func (f *fakeDB) Close() error                        { return nil }

// fakeArchive is an NVR double serving login, one hour folder listing, and
// segment downloads.
type fakeArchive struct {
	srv       *httptest.Server
	folders   map[string][]string // hour folder -> filenames
	payload   string
	downloads int32
	failDL    int32
}

func newFakeArchive() *fakeArchive {
	f := &fakeArchive{
		folders: make(map[string][]string),
		payload: "mp4 bytes",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/authLogin.cgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<QDocRoot><authSid>apisid</authSid></QDocRoot>`)
	})
	mux.HandleFunc("/cgi-bin/filemanager/utilRequest.cgi", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("func") {
		case "get_list":
			path := r.URL.Query().Get("path")
			for folder, files := range f.folders {
				if strings.Contains(path, folder) {
					var entries []string
					for _, name := range files {
						entries = append(entries, fmt.Sprintf(`{"filename":%q}`, name))
					}
					fmt.Fprintf(w, `{"success":true,"has_datas":true,"datas":[%s]}`, strings.Join(entries, ","))
					return
				}
			}
			fmt.Fprint(w, `{"success":true,"has_datas":false,"datas":[]}`)
		case "get_viewer":
			atomic.AddInt32(&f.downloads, 1)
			if atomic.LoadInt32(&f.failDL) != 0 {
				http.Error(w, "archive exploded", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, f.payload)
		default:
			http.Error(w, "unexpected func", http.StatusBadRequest)
		}
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func newTestServer(t *testing.T, nvr *fakeArchive, db database.Database) *Server {
	t.Helper()
	cfg := config.Config{
		ServerPort:            "0",
		ArchiveBaseURL:        nvr.srv.URL,
		ArchiveLogin:          "CCTV",
		ArchivePassword:       "secret",
		ArchiveTimeout:        5 * time.Second,
		TokenLifetime:         50 * time.Minute,
		CameraPaths:           map[int]string{1: "/CCTV/CH001/Regular"},
		CacheDir:              t.TempDir(),
		CacheMaxSizeBytes:     1024 * 1024,
		CacheCleanupThreshold: 800 * 1024,
		MetadataCapacity:      100,
		MetadataTTL:           time.Hour,
		ClipDuration:          120,
	}
	session := archive.NewSession(cfg)
	store, err := cache.NewStore(session, cfg)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewServer(cfg, db, archive.NewResolver(session, cfg), store)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.buildRouter().ServeHTTP(w, req)
	return w
}

type videosResponse struct {
	Segments []struct {
		URL       string `json:"url"`
		Filename  string `json:"filename"`
		Timestamp int64  `json:"timestamp"`
	} `json:"segments"`
	ClosestIndex    int    `json:"closestIndex"`
	OffsetSeconds   int64  `json:"offsetSeconds"`
	CameraAvailable bool   `json:"cameraAvailable"`
	CameraError     string `json:"cameraError"`
}

func TestGetVideosParameterValidation(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	s := newTestServer(t, nvr, &fakeDB{})

	for _, target := range []string{
		"/api/cctv/videos",
		"/api/cctv/videos?target=123",
		"/api/cctv/videos?camera=1",
		"/api/cctv/videos?target=abc&camera=1",
		"/api/cctv/videos?target=123&camera=xyz",
		"/api/cctv/videos?target=123&camera=42", // unknown camera id
	} {
		if w := doRequest(s, http.MethodGet, target); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", target, w.Code)
		}
	}
}

func TestGetVideosResolvesSegments(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()

	target := time.Date(2025, 6, 14, 15, 30, 0, 0, time.Local)
	hourFolder := target.Format("2006-01-02") + "/" + target.Format("15")
	nvr.folders[hourFolder] = []string{
		"CH001_20250614_150000.mp4",
		"CH001_20250614_153200.mp4",
	}
	s := newTestServer(t, nvr, &fakeDB{})

	w := doRequest(s, http.MethodGet,
		fmt.Sprintf("/api/cctv/videos?target=%d&camera=1", target.Unix()))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp videosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.CameraAvailable {
		t.Fatalf("camera unavailable: %s", resp.CameraError)
	}
	if len(resp.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(resp.Segments))
	}
	if resp.Segments[resp.ClosestIndex].Filename != "CH001_20250614_153200.mp4" {
		t.Errorf("closest = %s, want the 15:32 clip", resp.Segments[resp.ClosestIndex].Filename)
	}
	if resp.OffsetSeconds != 120 {
		t.Errorf("offsetSeconds = %d, want 120", resp.OffsetSeconds)
	}
	for _, seg := range resp.Segments {
		if !strings.HasPrefix(seg.URL, "/static/cache/videos/cam1_") {
			t.Errorf("segment URL %s not under the cache route", seg.URL)
		}
	}
}

func TestGetVideosNoFootage(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	s := newTestServer(t, nvr, &fakeDB{})

	w := doRequest(s, http.MethodGet, "/api/cctv/videos?target=1749907800&camera=1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp videosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.CameraAvailable {
		t.Error("no footage is not an availability failure")
	}
	if resp.CameraError != archive.NoVideosMessage {
		t.Errorf("cameraError = %q, want %q", resp.CameraError, archive.NoVideosMessage)
	}
}

// The full fetch-through path: resolve registers the segment, then a request
// for its cache URL downloads and serves it; the second request is a hit.
func TestServeVideoFetchThrough(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()

	target := time.Date(2025, 6, 14, 15, 30, 0, 0, time.Local)
	hourFolder := target.Format("2006-01-02") + "/" + target.Format("15")
	nvr.folders[hourFolder] = []string{"CH001_20250614_153000.mp4"}
	s := newTestServer(t, nvr, &fakeDB{})

	w := doRequest(s, http.MethodGet,
		fmt.Sprintf("/api/cctv/videos?target=%d&camera=1", target.Unix()))
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", w.Code)
	}
	var resp videosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	videoURL := resp.Segments[0].URL

	w = doRequest(s, http.MethodGet, videoURL)
	if w.Code != http.StatusOK {
		t.Fatalf("video status = %d, body %s", w.Code, w.Body.String())
	}
	if w.Body.String() != nvr.payload {
		t.Errorf("served %q, want archive payload", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %s, want video/mp4", ct)
	}
	if atomic.LoadInt32(&nvr.downloads) != 1 {
		t.Fatalf("expected 1 download, got %d", nvr.downloads)
	}

	// Second request serves from disk.
	w = doRequest(s, http.MethodGet, videoURL)
	if w.Code != http.StatusOK || w.Body.String() != nvr.payload {
		t.Fatalf("cache hit failed: %d %q", w.Code, w.Body.String())
	}
	if atomic.LoadInt32(&nvr.downloads) != 1 {
		t.Errorf("cache hit must not re-download, got %d", nvr.downloads)
	}
}

func TestServeVideoUnknownNames(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	s := newTestServer(t, nvr, &fakeDB{})

	// Malformed name and well-formed but unregistered name are both 404.
	for _, name := range []string{"evil..name.mp4", "cam1_1749907800_abc123.mp4"} {
		if w := doRequest(s, http.MethodGet, "/static/cache/videos/"+name); w.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", name, w.Code)
		}
	}
}

func TestServeVideoArchiveFailure(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()

	target := time.Date(2025, 6, 14, 15, 30, 0, 0, time.Local)
	hourFolder := target.Format("2006-01-02") + "/" + target.Format("15")
	nvr.folders[hourFolder] = []string{"CH001_20250614_153000.mp4"}
	s := newTestServer(t, nvr, &fakeDB{})

	w := doRequest(s, http.MethodGet,
		fmt.Sprintf("/api/cctv/videos?target=%d&camera=1", target.Unix()))
	var resp videosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	atomic.StoreInt32(&nvr.failDL, 1)
	w = doRequest(s, http.MethodGet, resp.Segments[0].URL)
	if w.Code != http.StatusBadGateway {
		t.Errorf("failed download status = %d, want 502", w.Code)
	}

	// No partial file may be servable afterwards.
	atomic.StoreInt32(&nvr.failDL, 0)
	w = doRequest(s, http.MethodGet, resp.Segments[0].URL)
	if w.Code != http.StatusOK || w.Body.String() != nvr.payload {
		t.Errorf("recovery fetch: %d %q", w.Code, w.Body.String())
	}
}

func TestGetItems(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	db := &fakeDB{items: []database.Item{
		{MacAddress: "aa:bb", Designation: "drill", Group: "warehouse"},
	}}
	s := newTestServer(t, nvr, db)

	w := doRequest(s, http.MethodGet, "/api/items")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var items []database.Item
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decoding items: %v", err)
	}
	if len(items) != 1 || items[0].Designation != "drill" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestGetItemsDatabaseError(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	s := newTestServer(t, nvr, &fakeDB{err: errors.New("disk on fire")})

	if w := doRequest(s, http.MethodGet, "/api/items"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()
	s := newTestServer(t, nvr, &fakeDB{})

	w := doRequest(s, http.MethodGet, "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", health["status"])
	}

	// A broken database flips the verdict.
	s2 := newTestServer(t, nvr, &fakeDB{err: errors.New("gone")})
	if w := doRequest(s2, http.MethodGet, "/api/health"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", w.Code)
	}
}

func TestCacheStatsAndErase(t *testing.T) {
	nvr := newFakeArchive()
	defer nvr.srv.Close()

	target := time.Date(2025, 6, 14, 15, 30, 0, 0, time.Local)
	hourFolder := target.Format("2006-01-02") + "/" + target.Format("15")
	nvr.folders[hourFolder] = []string{"CH001_20250614_153000.mp4"}
	s := newTestServer(t, nvr, &fakeDB{})

	// Seed the cache through the public surface.
	w := doRequest(s, http.MethodGet,
		fmt.Sprintf("/api/cctv/videos?target=%d&camera=1", target.Unix()))
	var resp videosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	doRequest(s, http.MethodGet, resp.Segments[0].URL)

	w = doRequest(s, http.MethodGet, "/api/cache/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats struct {
		Cache struct {
			Files     int   `json:"files"`
			SizeBytes int64 `json:"sizeBytes"`
		} `json:"cache"`
		Counters map[string]int64 `json:"counters"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Cache.Files != 1 {
		t.Errorf("files = %d, want 1", stats.Cache.Files)
	}

	w = doRequest(s, http.MethodDelete, "/api/cache")
	if w.Code != http.StatusOK {
		t.Fatalf("erase status = %d", w.Code)
	}
	var erase struct {
		Success      bool `json:"success"`
		FilesDeleted int  `json:"filesDeleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &erase); err != nil {
		t.Fatal(err)
	}
	if !erase.Success || erase.FilesDeleted != 1 {
		t.Errorf("erase = %+v, want success with 1 file", erase)
	}

	// The cache directory is empty afterwards.
	entries, err := os.ReadDir(s.cache.Dir())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("cache dir still holds %d files after erase", len(entries))
	}
}
