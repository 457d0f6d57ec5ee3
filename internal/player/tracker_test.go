package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/dlna"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

type fakeRenderer struct {
	mu     sync.Mutex
	loaded []dlna.TrackMetadata
	plays  int
	stops  int
	fail   error
}

func (f *fakeRenderer) SetAVTransportURI(ctx context.Context, meta dlna.TrackMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.loaded = append(f.loaded, meta)
	return nil
}

func (f *fakeRenderer) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.plays++
	return nil
}

func (f *fakeRenderer) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRenderer) loadedTitles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	titles := make([]string, 0, len(f.loaded))
	for _, meta := range f.loaded {
		titles = append(titles, meta.Title)
	}
	return titles
}

type fakeStatus struct {
	mu     sync.Mutex
	status *soundtouch.NowPlayingStatus
	polls  int
}

func (f *fakeStatus) GetNowPlaying(ctx context.Context) (*soundtouch.NowPlayingStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.status == nil {
		return nil, errors.New("no status")
	}
	return f.status, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testTracker(t *testing.T, tracks []Track) (*Tracker, *fakeRenderer, *fakeStatus, *testClock) {
	t.Helper()
	renderer := &fakeRenderer{}
	status := &fakeStatus{}
	clock := &testClock{now: time.Unix(1700000000, 0)}

	tracker := NewTracker(renderer, status, nil)
	tracker.now = clock.Now
	tracker.burstInterval = time.Millisecond
	tracker.burstCount = 1
	tracker.SetPlaylist(tracks)
	t.Cleanup(tracker.Stop)
	return tracker, renderer, status, clock
}

var testTracks = []Track{
	{URL: "http://hub/media/a.mp3", Title: "A"},
	{URL: "http://hub/media/b.mp3", Title: "B"},
	{URL: "http://hub/media/c.mp3", Title: "C"},
}

func TestPlayLoadsURIThenPlays(t *testing.T) {
	tracker, renderer, status, _ := testTracker(t, testTracks)
	status.status = &soundtouch.NowPlayingStatus{PlayState: soundtouch.PlayStatePlay, DurationMs: 200000}

	require.NoError(t, tracker.Play(context.Background(), 1))

	require.Equal(t, []string{"B"}, renderer.loadedTitles())
	require.Equal(t, 1, renderer.plays)

	// The fast-poll burst converges the session onto the device report.
	require.Eventually(t, func() bool {
		p := tracker.Progress()
		return p.PlayState == soundtouch.PlayStatePlay && p.DurationMs == 200000
	}, time.Second, 5*time.Millisecond)
}

func TestPlayValidation(t *testing.T) {
	tracker, _, _, _ := testTracker(t, nil)
	require.ErrorIs(t, tracker.Play(context.Background(), 0), ErrNoPlaylist)

	tracker.SetPlaylist(testTracks)
	require.Error(t, tracker.Play(context.Background(), 7))
	require.Error(t, tracker.Play(context.Background(), -1))
}

func TestPlayFailureResetsToStopped(t *testing.T) {
	tracker, renderer, _, _ := testTracker(t, testTracks)
	renderer.fail = errors.New("renderer offline")

	require.Error(t, tracker.Play(context.Background(), 0))
	require.Equal(t, soundtouch.PlayStateStop, tracker.Progress().PlayState)
}

func TestCircularNextAndPrevious(t *testing.T) {
	tracker, renderer, _, _ := testTracker(t, testTracks)
	ctx := context.Background()

	require.NoError(t, tracker.Play(ctx, 2))
	require.NoError(t, tracker.Next(ctx)) // wraps to 0
	require.Equal(t, 0, tracker.Progress().Index)

	require.NoError(t, tracker.Previous(ctx)) // wraps back to 2
	require.Equal(t, 2, tracker.Progress().Index)

	require.Equal(t, []string{"C", "A", "C"}, renderer.loadedTitles())
}

func TestRotateFailsOnShortPlaylists(t *testing.T) {
	tracker, _, _, _ := testTracker(t, nil)
	require.ErrorIs(t, tracker.Next(context.Background()), ErrNoPlaylist)

	tracker.SetPlaylist(testTracks[:1])
	require.ErrorIs(t, tracker.Next(context.Background()), ErrSingleTrack)
	require.ErrorIs(t, tracker.Previous(context.Background()), ErrSingleTrack)
}

func TestInterpolationOnlyWhilePlaying(t *testing.T) {
	tracker, _, _, clock := testTracker(t, testTracks)

	tracker.ApplyStatus(&soundtouch.NowPlayingStatus{
		PlayState:  soundtouch.PlayStatePause,
		PositionMs: 10000,
		DurationMs: 200000,
	})
	clock.Advance(2 * time.Second)
	tracker.tick()
	require.Equal(t, int64(10000), tracker.Progress().PositionMs)

	tracker.ApplyStatus(&soundtouch.NowPlayingStatus{
		PlayState:  soundtouch.PlayStatePlay,
		PositionMs: 10000,
		DurationMs: 200000,
	})
	clock.Advance(1500 * time.Millisecond)
	tracker.tick()
	require.Equal(t, int64(11500), tracker.Progress().PositionMs)
}

func TestInterpolationClampsToDuration(t *testing.T) {
	tracker, _, _, clock := testTracker(t, testTracks[:1])

	tracker.ApplyStatus(&soundtouch.NowPlayingStatus{
		PlayState:  soundtouch.PlayStatePlay,
		PositionMs: 199000,
		DurationMs: 200000,
	})
	clock.Advance(10 * time.Second)
	tracker.tick()
	require.Equal(t, int64(200000), tracker.Progress().PositionMs)
}

func TestTrackEndAdvancesExactlyOnce(t *testing.T) {
	tracker, renderer, status, clock := testTracker(t, testTracks)
	// The device reports the track almost over; the burst poller and the
	// manual apply below agree, so there is no racing state.
	status.status = &soundtouch.NowPlayingStatus{
		PlayState:  soundtouch.PlayStatePlay,
		PositionMs: 199800,
		DurationMs: 200000,
	}
	ctx := context.Background()

	require.NoError(t, tracker.Play(ctx, 0))
	tracker.ApplyStatus(status.status)

	clock.Advance(100 * time.Millisecond)
	tracker.tick()
	require.Equal(t, 1, tracker.Progress().Index, "should have advanced to the next track")

	// Within the settle window the device may still report the old track
	// at its end; that must not advance again.
	tracker.ApplyStatus(&soundtouch.NowPlayingStatus{
		PlayState:  soundtouch.PlayStatePlay,
		PositionMs: 200000,
		DurationMs: 200000,
	})
	clock.Advance(100 * time.Millisecond)
	tracker.tick()
	require.Equal(t, 1, tracker.Progress().Index)

	require.Equal(t, []string{"A", "B"}, renderer.loadedTitles())
}

func TestHaltStopsRenderer(t *testing.T) {
	tracker, renderer, _, _ := testTracker(t, testTracks)
	require.NoError(t, tracker.Play(context.Background(), 0))
	require.NoError(t, tracker.Halt(context.Background()))
	require.Equal(t, 1, renderer.stops)
	require.Equal(t, soundtouch.PlayStateStop, tracker.Progress().PlayState)
}

func TestFastPollBurstIsBounded(t *testing.T) {
	tracker, _, status, _ := testTracker(t, testTracks)
	tracker.burstCount = 3
	status.status = &soundtouch.NowPlayingStatus{PlayState: soundtouch.PlayStatePlay}

	require.NoError(t, tracker.Play(context.Background(), 0))

	require.Eventually(t, func() bool {
		status.mu.Lock()
		defer status.mu.Unlock()
		return status.polls == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	status.mu.Lock()
	defer status.mu.Unlock()
	require.Equal(t, 3, status.polls)
}
