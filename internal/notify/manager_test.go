package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

type fakePoller struct {
	status *soundtouch.NowPlayingStatus
	volume *soundtouch.VolumeState
	err    error
}

func (f *fakePoller) GetNowPlaying(ctx context.Context) (*soundtouch.NowPlayingStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakePoller) GetVolume(ctx context.Context) (*soundtouch.VolumeState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.volume, nil
}

func TestPollOnceEmitsOnlyOnChange(t *testing.T) {
	poller := &fakePoller{
		status: &soundtouch.NowPlayingStatus{Track: "A", PlayState: soundtouch.PlayStatePlay},
		volume: &soundtouch.VolumeState{TargetVolume: 30, ActualVolume: 30},
	}
	var events []Event
	tick := pollOnce("MAC1", poller, func(event Event) { events = append(events, event) })

	tick()
	require.Len(t, events, 2)
	require.Equal(t, EventNowPlaying, events[0].Kind)
	require.Equal(t, "MAC1", events[0].DeviceID)
	require.Equal(t, EventVolume, events[1].Kind)

	// Unchanged state stays quiet.
	tick()
	require.Len(t, events, 2)

	// A track change emits one more now-playing event.
	poller.status = &soundtouch.NowPlayingStatus{Track: "B", PlayState: soundtouch.PlayStatePlay}
	tick()
	require.Len(t, events, 3)
	require.Equal(t, "B", events[2].NowPlaying.Track)
}

func TestPollOnceSwallowsErrors(t *testing.T) {
	poller := &fakePoller{err: errors.New("device offline")}
	tick := pollOnce("MAC1", poller, func(Event) { t.Fatal("no event expected") })
	tick()
}

func TestManagerFallsBackToPolling(t *testing.T) {
	manager := NewManager()
	manager.port = 1 // nothing listens here
	defer manager.Close()

	device := soundtouch.Device{Name: "Den", IPAddress: "127.0.0.1", MacAddress: "MACDEN"}
	poller := &fakePoller{err: errors.New("offline")}

	// 127.0.0.1 with no listener: the push dial fails fast and the manager
	// installs the poller instead.
	err := manager.Watch(context.Background(), device, poller, func(Event) {})
	require.NoError(t, err)

	manager.mu.Lock()
	entry := manager.entries["MACDEN"]
	manager.mu.Unlock()
	require.NotNil(t, entry)
	require.Nil(t, entry.client)
	require.NotNil(t, entry.poll)

	// Second watch is a no-op.
	require.NoError(t, manager.Watch(context.Background(), device, poller, func(Event) {}))

	manager.Unwatch("MACDEN")
	manager.Unwatch("MACDEN")
}
