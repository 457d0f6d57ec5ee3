// Package player keeps playback state for a speaker driven over DLNA:
// playlist position, interpolated progress, and automatic advance when a
// track runs out.
package player

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/dlna"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/sched"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

const (
	// tickInterval drives progress interpolation between device reports.
	tickInterval = 500 * time.Millisecond

	// endGuardMs is how close to the end counts as "track finished".
	endGuardMs = 500

	// settleDelay suppresses re-triggering the advance while the renderer
	// loads the next track and still reports the old position.
	settleDelay = time.Second

	burstInterval = 500 * time.Millisecond
	burstCount    = 10
)

// ErrNoPlaylist is returned for transport operations without a playlist.
var ErrNoPlaylist = errors.New("player: no playlist loaded")

// ErrSingleTrack is returned for next/previous on a playlist that cannot
// rotate.
var ErrSingleTrack = errors.New("player: playlist has no other track")

// Track is one playable entry: a URL the renderer can fetch, plus metadata
// and the local path when the file lives in our own library.
type Track struct {
	URL       string
	LocalPath string
	Title     string
	Artist    string
	Album     string
}

// Renderer is the transport slice of the DLNA renderer.
type Renderer interface {
	SetAVTransportURI(ctx context.Context, meta dlna.TrackMetadata) error
	Play(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StatusSource reports what the device is actually doing.
type StatusSource interface {
	GetNowPlaying(ctx context.Context) (*soundtouch.NowPlayingStatus, error)
}

// Progress is a snapshot of playback state.
type Progress struct {
	Track      Track
	Index      int
	PlayState  soundtouch.PlayState
	PositionMs int64
	DurationMs int64
}

// Tracker owns one device's playback session.
type Tracker struct {
	renderer  Renderer
	status    StatusSource
	durations *DurationChain
	now       func() time.Time

	// burst knobs, defaults overridden in tests
	burstInterval time.Duration
	burstCount    int

	mu          sync.Mutex
	playlist    []Track
	index       int
	state       soundtouch.PlayState
	positionMs  int64
	durationMs  int64
	lastTick    time.Time
	settleUntil time.Time

	ticker *sched.RepeatingTask
	burst  *sched.RepeatingTask
}

// NewTracker creates a Tracker. Start begins interpolation; the zero state
// is stopped with no playlist.
func NewTracker(renderer Renderer, status StatusSource, durations *DurationChain) *Tracker {
	return &Tracker{
		renderer:      renderer,
		status:        status,
		durations:     durations,
		now:           time.Now,
		burstInterval: burstInterval,
		burstCount:    burstCount,
		state:         soundtouch.PlayStateStop,
	}
}

// Start launches the interpolation tick.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ticker != nil {
		return
	}
	t.lastTick = t.now()
	t.ticker = sched.NewRepeatingTask(tickInterval, t.tick)
	t.ticker.Start()
}

// Stop halts interpolation and any poll burst. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	ticker, burst := t.ticker, t.burst
	t.ticker, t.burst = nil, nil
	t.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if burst != nil {
		burst.Stop()
	}
}

// SetPlaylist replaces the playlist and resets the session to index 0
// without starting playback.
func (t *Tracker) SetPlaylist(tracks []Track) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playlist = append([]Track(nil), tracks...)
	t.index = 0
	t.positionMs = 0
	t.durationMs = 0
	t.state = soundtouch.PlayStateStop
}

// Progress returns the current snapshot.
func (t *Tracker) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := Progress{
		Index:      t.index,
		PlayState:  t.state,
		PositionMs: t.positionMs,
		DurationMs: t.durationMs,
	}
	if t.index < len(t.playlist) {
		p.Track = t.playlist[t.index]
	}
	return p
}

// Play starts the track at index: load the URI with metadata, hit play,
// then fast-poll the device until it confirms.
func (t *Tracker) Play(ctx context.Context, index int) error {
	t.mu.Lock()
	if len(t.playlist) == 0 {
		t.mu.Unlock()
		return ErrNoPlaylist
	}
	if index < 0 || index >= len(t.playlist) {
		t.mu.Unlock()
		return fmt.Errorf("player: index %d out of range", index)
	}
	track := t.playlist[index]
	t.index = index
	t.positionMs = 0
	t.durationMs = 0
	t.state = soundtouch.PlayStateBuffering
	t.lastTick = t.now()
	t.mu.Unlock()

	meta := dlna.TrackMetadata{
		Title:  track.Title,
		Artist: track.Artist,
		Album:  track.Album,
		URL:    track.URL,
	}
	if err := t.renderer.SetAVTransportURI(ctx, meta); err != nil {
		t.setState(soundtouch.PlayStateStop)
		return fmt.Errorf("player: load %q: %w", track.Title, err)
	}
	if err := t.renderer.Play(ctx); err != nil {
		t.setState(soundtouch.PlayStateStop)
		return fmt.Errorf("player: play %q: %w", track.Title, err)
	}

	log.Printf("PLAYER: playing %q (%d/%d)", track.Title, index+1, t.Len())
	t.startBurst()
	return nil
}

// Next advances circularly and plays. Fails on playlists that cannot
// rotate.
func (t *Tracker) Next(ctx context.Context) error {
	index, err := t.rotate(1)
	if err != nil {
		return err
	}
	return t.Play(ctx, index)
}

// Previous rewinds circularly and plays.
func (t *Tracker) Previous(ctx context.Context) error {
	index, err := t.rotate(-1)
	if err != nil {
		return err
	}
	return t.Play(ctx, index)
}

func (t *Tracker) rotate(step int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.playlist) == 0 {
		return 0, ErrNoPlaylist
	}
	if len(t.playlist) == 1 {
		return 0, ErrSingleTrack
	}
	return (t.index + step + len(t.playlist)) % len(t.playlist), nil
}

// Halt stops the renderer and the session.
func (t *Tracker) Halt(ctx context.Context) error {
	err := t.renderer.Stop(ctx)
	t.setState(soundtouch.PlayStateStop)
	return err
}

// Len returns the playlist length.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.playlist)
}

// ApplyStatus folds a device report into the session. This is the notify
// handler's entry point and also feeds the fast-poll burst.
func (t *Tracker) ApplyStatus(status *soundtouch.NowPlayingStatus) {
	if status == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = status.PlayState
	t.positionMs = status.PositionMs
	t.lastTick = t.now()

	var localPath string
	if t.index < len(t.playlist) {
		localPath = t.playlist[t.index].LocalPath
	}
	if t.durations != nil {
		resolved := t.durations.Resolve(context.Background(), localPath, status.DurationMs)
		t.durationMs = resolved.Milliseconds()
	} else {
		t.durationMs = status.DurationMs
	}
}

func (t *Tracker) setState(state soundtouch.PlayState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// tick interpolates progress between device reports and fires the track-end
// advance at most once per track.
func (t *Tracker) tick() {
	t.mu.Lock()
	now := t.now()
	elapsed := now.Sub(t.lastTick)
	t.lastTick = now

	if t.state == soundtouch.PlayStatePlay {
		t.positionMs += elapsed.Milliseconds()
		if t.durationMs > 0 && t.positionMs > t.durationMs {
			t.positionMs = t.durationMs
		}
	}

	shouldAdvance := t.state == soundtouch.PlayStatePlay &&
		t.durationMs > 0 &&
		t.positionMs >= t.durationMs-endGuardMs &&
		len(t.playlist) > 1 &&
		now.After(t.settleUntil)
	if shouldAdvance {
		t.settleUntil = now.Add(settleDelay)
	}
	t.mu.Unlock()

	if shouldAdvance {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.Next(ctx); err != nil {
			log.Printf("PLAYER: auto-advance failed: %v", err)
		}
	}
}

// startBurst polls the device at a fast cadence right after a transport
// change, so the session converges before the regular push/poll stream
// catches up.
func (t *Tracker) startBurst() {
	t.mu.Lock()
	if t.burst != nil {
		t.burst.Stop()
	}
	remaining := t.burstCount
	var task *sched.RepeatingTask
	task = sched.NewRepeatingTask(t.burstInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.burstInterval)
		status, err := t.status.GetNowPlaying(ctx)
		cancel()
		if err == nil {
			t.ApplyStatus(status)
		}

		remaining--
		if remaining <= 0 {
			task.Stop()
		}
	})
	t.burst = task
	t.mu.Unlock()
	task.Start()
}
