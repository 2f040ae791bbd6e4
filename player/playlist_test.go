package player

import (
	"testing"

	"cctv-replay/archive"
)

func testClips(starts ...int64) Playlist {
	clips := make([]Clip, len(starts))
	for i, s := range starts {
		clips[i] = Clip{
			URL:            "/static/cache/videos/clip.mp4",
			StartTimestamp: s,
			Duration:       120,
		}
	}
	return Playlist{CameraID: 1, Clips: clips}
}

func TestBuildPlaylist(t *testing.T) {
	set := archive.SegmentSet{
		Segments: []archive.RemoteSegment{
			{CameraID: 2, Filename: "a.mp4", Timestamp: 1000},
			{CameraID: 2, Filename: "b.mp4", Timestamp: 1130},
		},
		ClosestIndex:    0,
		CameraAvailable: true,
	}
	p := BuildPlaylist(2, set, 120, func(seg archive.RemoteSegment) string {
		return "/videos/" + seg.Filename
	})
	if p.CameraID != 2 {
		t.Errorf("CameraID = %d, want 2", p.CameraID)
	}
	if len(p.Clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(p.Clips))
	}
	if p.Clips[0].URL != "/videos/a.mp4" || p.Clips[0].StartTimestamp != 1000 {
		t.Errorf("clip 0 = %+v", p.Clips[0])
	}
	if p.Clips[1].Duration != 120 {
		t.Errorf("clip duration = %d, want 120", p.Clips[1].Duration)
	}
}

func TestBuildPlaylistSortsByStart(t *testing.T) {
	set := archive.SegmentSet{
		Segments: []archive.RemoteSegment{
			{Filename: "late.mp4", Timestamp: 2000},
			{Filename: "early.mp4", Timestamp: 1000},
		},
	}
	p := BuildPlaylist(1, set, 120, func(seg archive.RemoteSegment) string { return seg.Filename })
	if p.Clips[0].URL != "early.mp4" {
		t.Errorf("clips not sorted by start timestamp: %+v", p.Clips)
	}
}

func TestCursorPosition(t *testing.T) {
	// Two clips: [1000,1120) and a 10-second recording hole before [1130,1250).
	p := testClips(1000, 1130)

	tests := []struct {
		name   string
		cursor int64
		want   Position
	}{
		{"inside first clip", 1050, Position{ClipIndex: 0, OffsetSeconds: 50}},
		{"start of first clip", 1000, Position{ClipIndex: 0, OffsetSeconds: 0}},
		{"last second of first clip", 1119, Position{ClipIndex: 0, OffsetSeconds: 119}},
		{"inside the hole parks at end of preceding clip", 1125, Position{ClipIndex: 0, OffsetSeconds: 119}},
		{"start of second clip", 1130, Position{ClipIndex: 1, OffsetSeconds: 0}},
		{"before first clip clamps to its start", 900, Position{ClipIndex: 0, OffsetSeconds: 0}},
		{"past the end clamps to last clip end", 1260, Position{ClipIndex: 1, OffsetSeconds: 119}},
		{"exactly at last clip end clamps", 1250, Position{ClipIndex: 1, OffsetSeconds: 119}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CursorPosition(p, tt.cursor)
			if !ok {
				t.Fatal("expected a position for a non-empty playlist")
			}
			if got != tt.want {
				t.Errorf("CursorPosition(%d) = %+v, want %+v", tt.cursor, got, tt.want)
			}
		})
	}
}

func TestCursorPositionEmptyPlaylist(t *testing.T) {
	if _, ok := CursorPosition(Playlist{}, 1000); ok {
		t.Error("empty playlist has no position")
	}
}
