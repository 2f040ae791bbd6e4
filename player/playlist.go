package player

import (
	"sort"

	"cctv-replay/archive"
)

// Clip is one playable cache-backed video in a camera's playlist.
type Clip struct {
	URL            string `json:"url"`
	StartTimestamp int64  `json:"startTimestamp"`
	Duration       int    `json:"durationSeconds"`
}

// Playlist is the ordered, gap-aware clip sequence for a single camera.
// Clips carry absolute start timestamps; cameras are not aligned to each
// other except through those timestamps.
type Playlist struct {
	CameraID int    `json:"cameraId"`
	Clips    []Clip `json:"clips"`
}

// Position locates a cursor value within a playlist.
type Position struct {
	ClipIndex     int
	OffsetSeconds int
}

// BuildPlaylist converts a resolver segment set into a playlist. Durations
// are the fixed nominal segment length; the actual media duration becomes
// authoritative once a clip is loaded. urlFor maps a segment to the URL its
// cached bytes are served from.
func BuildPlaylist(cameraID int, set archive.SegmentSet, nominalDuration int, urlFor func(archive.RemoteSegment) string) Playlist {
	clips := make([]Clip, 0, len(set.Segments))
	for _, seg := range set.Segments {
		clips = append(clips, Clip{
			URL:            urlFor(seg),
			StartTimestamp: seg.Timestamp,
			Duration:       nominalDuration,
		})
	}
	// The resolver already sorts ascending; re-assert the invariant since the
	// playlist outlives the response it came from.
	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartTimestamp < clips[j].StartTimestamp })
	return Playlist{CameraID: cameraID, Clips: clips}
}

// CursorPosition maps a global timeline value to a clip index and
// intra-clip offset. It is total over non-empty playlists:
//   - before the first clip it clamps to clip 0 at offset 0,
//   - inside a recording hole it parks at the end of the preceding clip,
//   - at or past the last clip's end it clamps to the last clip's end.
//
// Returns false only for an empty playlist. Pure; never mutates the playlist.
func CursorPosition(p Playlist, cursor int64) (Position, bool) {
	if len(p.Clips) == 0 {
		return Position{}, false
	}
	for i, clip := range p.Clips {
		start := clip.StartTimestamp
		end := start + int64(clip.Duration)
		if cursor < start {
			if i == 0 {
				return Position{ClipIndex: 0, OffsetSeconds: 0}, true
			}
			prev := p.Clips[i-1]
			return Position{ClipIndex: i - 1, OffsetSeconds: prev.Duration - 1}, true
		}
		if cursor < end {
			return Position{ClipIndex: i, OffsetSeconds: int(cursor - start)}, true
		}
	}
	last := len(p.Clips) - 1
	return Position{ClipIndex: last, OffsetSeconds: p.Clips[last].Duration - 1}, true
}
