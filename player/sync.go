package player

import (
	"log"
	"sort"
	"sync"
	"time"
)

// SinkState is the lifecycle state of one camera's video sink.
type SinkState int

const (
	StateIdle SinkState = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
)

func (s SinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Sink is the video element a camera plays through. The synchronizer owns
// its sinks: it is the only caller of these methods. The sink owner reports
// events back via OnSeekable and OnEnded.
type Sink interface {
	Load(url string)
	Seek(offsetSeconds int)
	Play()
	Pause()
	Seekable() bool
	// Duration reports the loaded media's length in seconds, 0 until known.
	Duration() int
}

// clips closer than this to the previous clip's expected end still count as
// contiguous; larger gaps stop that camera's advancement.
const contiguityTolerance = 5

// Synchronizer drives up to six per-camera playlists as one logical
// transport. A single virtual cursor is shared by all cameras; each camera
// derives its own clip index and offset from it independently.
type Synchronizer struct {
	mu              sync.Mutex
	cameras         map[int]*cameraState
	cursor          int64
	playing         bool
	nominalDuration int
	settleDelay     time.Duration
	debounce        time.Duration
	seekTimer       *time.Timer
}

type cameraState struct {
	playlist      Playlist
	sink          Sink
	state         SinkState
	clipIndex     int
	pendingOffset int
}

// NewSynchronizer creates a synchronizer with the given nominal clip
// duration in seconds. settleDelay spaces out sequential sink starts,
// debounce coalesces rapid cursor changes into one settled update.
func NewSynchronizer(nominalDuration int, settleDelay, debounce time.Duration) *Synchronizer {
	return &Synchronizer{
		cameras:         make(map[int]*cameraState),
		nominalDuration: nominalDuration,
		settleDelay:     settleDelay,
		debounce:        debounce,
	}
}

// AddCamera registers a camera's playlist and sink. Cameras the resolver
// marked unavailable must not be added; they get no sink and no transport
// control. An empty playlist is likewise ignored.
func (y *Synchronizer) AddCamera(id int, playlist Playlist, sink Sink) {
	if len(playlist.Clips) == 0 {
		log.Printf("player: camera %d has no clips, not adding to group", id)
		return
	}
	y.mu.Lock()
	y.cameras[id] = &cameraState{
		playlist: playlist,
		sink:     sink,
		state:    StateIdle,
	}
	y.mu.Unlock()
}

// RemoveCamera drops a camera from the synchronized group.
func (y *Synchronizer) RemoveCamera(id int) {
	y.mu.Lock()
	delete(y.cameras, id)
	y.mu.Unlock()
}

// Cursor returns the current virtual timeline value.
func (y *Synchronizer) Cursor() int64 {
	y.mu.Lock()
	defer y.mu.Unlock()
	return y.cursor
}

// CameraState reports the sink state for a camera.
func (y *Synchronizer) CameraState(id int) (SinkState, bool) {
	y.mu.Lock()
	defer y.mu.Unlock()
	cam, ok := y.cameras[id]
	if !ok {
		return StateIdle, false
	}
	return cam.state, true
}

// Seek moves the shared cursor. Rapid successive calls (drag scrubbing)
// are debounced: only the last value within the window is applied, so every
// camera observes the same settled cursor.
func (y *Synchronizer) Seek(cursor int64) {
	y.mu.Lock()
	y.cursor = cursor
	if y.debounce <= 0 {
		y.mu.Unlock()
		y.applyCursor()
		return
	}
	if y.seekTimer != nil {
		y.seekTimer.Stop()
	}
	y.seekTimer = time.AfterFunc(y.debounce, y.applyCursor)
	y.mu.Unlock()
}

// sinkCall is a deferred sink operation, executed outside the lock so sinks
// that report events synchronously cannot deadlock the synchronizer.
type sinkCall struct {
	sink Sink
	run  func(Sink)
}

// applyCursor positions every camera at the current cursor value. Cameras
// staying within their current clip are seeked in place; cameras crossing a
// clip boundary get a source swap and seek once the new source is seekable.
func (y *Synchronizer) applyCursor() {
	y.mu.Lock()
	cursor := y.cursor
	var calls []sinkCall
	for id, cam := range y.cameras {
		pos, ok := CursorPosition(cam.playlist, cursor)
		if !ok {
			continue
		}
		if pos.ClipIndex == cam.clipIndex && cam.state != StateIdle && cam.state != StateLoading {
			// Scrubbing back into the clip a camera ran out of footage on
			// makes it playable again.
			if cam.state == StateEnded {
				cam.state = StateReady
			}
			offset := pos.OffsetSeconds
			calls = append(calls, sinkCall{cam.sink, func(s Sink) { s.Seek(offset) }})
			continue
		}
		clip := cam.playlist.Clips[pos.ClipIndex]
		cam.clipIndex = pos.ClipIndex
		cam.pendingOffset = pos.OffsetSeconds
		cam.state = StateLoading
		url := clip.URL
		calls = append(calls, sinkCall{cam.sink, func(s Sink) { s.Load(url) }})
		log.Printf("player: camera %d loading clip %d at offset %ds", id, pos.ClipIndex, pos.OffsetSeconds)
	}
	y.mu.Unlock()

	for _, c := range calls {
		c.run(c.sink)
	}
}

// OnSeekable is reported by the sink owner once a loaded source can be
// seeked. The pending offset from the navigation that triggered the load is
// applied, and playback resumes if the transport is playing.
func (y *Synchronizer) OnSeekable(id int) {
	y.mu.Lock()
	cam, ok := y.cameras[id]
	if !ok || cam.state != StateLoading {
		y.mu.Unlock()
		return
	}
	offset := cam.pendingOffset
	resume := y.playing
	if resume {
		cam.state = StatePlaying
	} else {
		cam.state = StateReady
	}
	sink := cam.sink
	clipIndex := cam.clipIndex
	y.mu.Unlock()

	// The loaded media's real length supersedes the nominal duration for
	// end-of-clip and cursor math.
	if d := sink.Duration(); d > 0 {
		y.mu.Lock()
		if cam, ok := y.cameras[id]; ok && cam.clipIndex == clipIndex {
			cam.playlist.Clips[clipIndex].Duration = d
		}
		y.mu.Unlock()
	}

	sink.Seek(offset)
	if resume {
		sink.Play()
	}
}

// OnEnded is reported when a camera's sink reaches the natural end of its
// clip. If the camera's playlist has a contiguous next clip it advances to
// it; otherwise only that camera stops. Other cameras are unaffected, since
// archives do not guarantee contemporaneous coverage.
func (y *Synchronizer) OnEnded(id int) {
	y.mu.Lock()
	cam, ok := y.cameras[id]
	if !ok {
		y.mu.Unlock()
		return
	}

	clip := cam.playlist.Clips[cam.clipIndex]
	next := cam.clipIndex + 1
	if next >= len(cam.playlist.Clips) {
		cam.state = StateEnded
		y.mu.Unlock()
		log.Printf("player: camera %d exhausted its playlist", id)
		return
	}
	expected := clip.StartTimestamp + int64(clip.Duration)
	if cam.playlist.Clips[next].StartTimestamp > expected+contiguityTolerance {
		cam.state = StateEnded
		y.mu.Unlock()
		log.Printf("player: camera %d has no clip at expected timestamp %d, stopping", id, expected)
		return
	}

	cam.clipIndex = next
	cam.pendingOffset = 0
	cam.state = StateLoading
	url := cam.playlist.Clips[next].URL
	sink := cam.sink
	y.mu.Unlock()

	sink.Load(url)
}

// Play starts all camera sinks as one transport. Simultaneous starts are
// unreliable in browsers, so sinks start sequentially with a settling delay
// between each; a sink whose source is not yet seekable is force-loaded
// first and started once seekable.
func (y *Synchronizer) Play() {
	y.mu.Lock()
	y.playing = true
	ids := make([]int, 0, len(y.cameras))
	for id := range y.cameras {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	y.mu.Unlock()

	for i, id := range ids {
		if i > 0 {
			time.Sleep(y.settleDelay)
		}
		y.startCamera(id)
	}
}

func (y *Synchronizer) startCamera(id int) {
	y.mu.Lock()
	cam, ok := y.cameras[id]
	if !ok || cam.state == StateEnded {
		y.mu.Unlock()
		return
	}
	sink := cam.sink
	if !sink.Seekable() {
		pos, ok := CursorPosition(cam.playlist, y.cursor)
		if !ok {
			y.mu.Unlock()
			return
		}
		cam.clipIndex = pos.ClipIndex
		cam.pendingOffset = pos.OffsetSeconds
		cam.state = StateLoading
		url := cam.playlist.Clips[pos.ClipIndex].URL
		y.mu.Unlock()
		// OnSeekable will seek and start it; playing is already set.
		sink.Load(url)
		return
	}
	cam.state = StatePlaying
	y.mu.Unlock()
	sink.Play()
}

// Pause pauses every sink immediately, regardless of individual ready state.
func (y *Synchronizer) Pause() {
	y.mu.Lock()
	y.playing = false
	var sinks []Sink
	for _, cam := range y.cameras {
		if cam.state == StatePlaying || cam.state == StateReady || cam.state == StateLoading {
			if cam.state == StatePlaying {
				cam.state = StatePaused
			}
			sinks = append(sinks, cam.sink)
		}
	}
	y.mu.Unlock()

	for _, s := range sinks {
		s.Pause()
	}
}
