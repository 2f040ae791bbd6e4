package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"cctv-replay/config"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidCamera is returned when a camera id has no configured archive path.
var ErrInvalidCamera = errors.New("invalid camera id")

// NoVideosMessage is the verdict for a camera whose listings succeeded but
// held no segments around the target time.
const NoVideosMessage = "No videos in this time period"

// RemoteSegment describes one recorded video file on the archive.
// Immutable once resolved.
type RemoteSegment struct {
	CameraID   int    `json:"cameraId"`
	Filename   string `json:"filename"`
	Timestamp  int64  `json:"timestamp"`
	RemotePath string `json:"remotePath"`
}

// SegmentSet is the result of one resolution request: segments in ascending
// timestamp order, unique by filename, plus the index of the segment closest
// to the requested time.
type SegmentSet struct {
	Segments        []RemoteSegment `json:"segments"`
	ClosestIndex    int             `json:"closestIndex"`
	CameraAvailable bool            `json:"cameraAvailable"`
	CameraError     string          `json:"cameraError,omitempty"`
}

// Resolver locates the archive segments recorded around a target timestamp.
// For each request it searches a three-hour window (one hour either side of
// the target) and falls back to the archive's overflow hour folders when the
// canonical ones are empty.
type Resolver struct {
	session     *Session
	cameraPaths map[int]string
	listLimit   int
}

// NewResolver builds a resolver over the given session and camera map.
func NewResolver(session *Session, cfg config.Config) *Resolver {
	return &Resolver{
		session:     session,
		cameraPaths: cfg.CameraPaths,
		listLimit:   200,
	}
}

// listReply is the JSON document returned by the archive's folder listing
// call. The archive is not consistent about emptiness: canonical hour folders
// report success=true with has_datas=false when empty, while overflow folders
// omit success entirely and rely on has_datas. Both fields are pointers so
// absence is distinguishable from false.
type listReply struct {
	Success  *bool       `json:"success"`
	HasDatas *bool       `json:"has_datas"`
	Datas    []listEntry `json:"datas"`
}

type listEntry struct {
	Filename string `json:"filename"`
}

// Resolve returns the segment set for (cameraID, target). An unknown camera
// id is a caller error; every other failure degrades into the returned set's
// availability verdict rather than an error.
func (r *Resolver) Resolve(ctx context.Context, cameraID int, target time.Time) (SegmentSet, error) {
	cameraPath, ok := r.cameraPaths[cameraID]
	if !ok {
		return SegmentSet{}, fmt.Errorf("%w: %d", ErrInvalidCamera, cameraID)
	}

	// The three hour-offset searches are independent; run them concurrently
	// and merge deterministically by offset order afterwards.
	offsets := []int{-1, 0, 1}
	results := make([][]RemoteSegment, len(offsets))

	var g errgroup.Group
	for i, off := range offsets {
		i, off := i, off
		g.Go(func() error {
			hour := target.Add(time.Duration(off) * time.Hour)
			segs, err := r.searchHour(ctx, cameraID, cameraPath, hour)
			if err != nil {
				log.Printf("resolver: camera %d hour offset %+d: %v", cameraID, off, err)
				return err
			}
			results[i] = segs
			return nil
		})
	}
	// A failed offset must not abort the others; Wait collects the first
	// failure while every search still runs to completion.
	listErr := g.Wait()

	seen := make(map[string]bool)
	var all []RemoteSegment
	for _, segs := range results {
		for _, seg := range segs {
			if seen[seg.Filename] {
				continue
			}
			seen[seg.Filename] = true
			all = append(all, seg)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })

	if len(all) == 0 {
		if listErr != nil {
			// Connectivity failure somewhere and nothing found elsewhere:
			// the camera is unavailable, with the failure as the reason.
			return SegmentSet{
				CameraAvailable: false,
				CameraError:     fmt.Sprintf("Camera unreachable: %v", listErr),
			}, nil
		}
		return SegmentSet{
			CameraAvailable: true,
			CameraError:     NoVideosMessage,
		}, nil
	}

	closest := 0
	minDiff := int64(-1)
	targetUnix := target.Unix()
	for i, seg := range all {
		diff := seg.Timestamp - targetUnix
		if diff < 0 {
			diff = -diff
		}
		if minDiff < 0 || diff < minDiff {
			minDiff = diff
			closest = i
		}
	}

	return SegmentSet{
		Segments:        all,
		ClosestIndex:    closest,
		CameraAvailable: true,
	}, nil
}

// searchHour lists one hour bucket, trying the canonical folder first and the
// overflow variant only when the canonical one yields nothing. The overflow
// is a sibling folder the archive starts once the primary bucket is full, so
// the first variant with entries settles the hour.
func (r *Resolver) searchHour(ctx context.Context, cameraID int, cameraPath string, hour time.Time) ([]RemoteSegment, error) {
	var lastErr error
	for _, suffix := range []string{"", "D"} {
		datePath := hour.Format("2006-01-02") + "/" + hour.Format("15") + suffix
		segs, err := r.listFolder(ctx, cameraID, cameraPath, datePath)
		if err != nil {
			lastErr = err
			continue
		}
		if len(segs) > 0 {
			return segs, nil
		}
	}
	return nil, lastErr
}

// listFolder fetches one folder listing and converts its usable entries to
// segments. A listing that reports explicit failure yields no segments but is
// not an error; transport and decode problems are.
func (r *Resolver) listFolder(ctx context.Context, cameraID int, cameraPath, datePath string) ([]RemoteSegment, error) {
	params := url.Values{}
	params.Set("func", "get_list")
	params.Set("is_iso", "0")
	params.Set("list_mode", "all")
	params.Set("path", cameraPath+"/"+datePath+"/")
	params.Set("hidden_file", "0")
	params.Set("dir", "ASC")
	params.Set("limit", fmt.Sprintf("%d", r.listLimit))
	params.Set("sort", "filename")
	params.Set("start", "0")

	resp, err := r.session.AuthorizedGet(ctx, "/cgi-bin/filemanager/utilRequest.cgi", params)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", datePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing %s: status %d", datePath, resp.StatusCode)
	}

	var reply listReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4*1024*1024)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("listing %s: decoding response: %w", datePath, err)
	}

	if reply.Success != nil && !*reply.Success {
		return nil, nil
	}
	hasData := (reply.HasDatas != nil && *reply.HasDatas) || len(reply.Datas) > 0
	if !hasData {
		return nil, nil
	}

	var segs []RemoteSegment
	for _, entry := range reply.Datas {
		if !strings.HasSuffix(entry.Filename, ".mp4") {
			continue
		}
		ts, ok := ParseFilenameTimestamp(entry.Filename)
		if !ok {
			log.Printf("resolver: dropping %s: no timestamp in filename", entry.Filename)
			continue
		}
		segs = append(segs, RemoteSegment{
			CameraID:   cameraID,
			Filename:   entry.Filename,
			Timestamp:  ts.Unix(),
			RemotePath: cameraPath + "/" + datePath,
		})
	}
	return segs, nil
}
