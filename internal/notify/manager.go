package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/sched"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// pollInterval is the fallback cadence when no push channel is available.
const pollInterval = 10 * time.Second

// Poller is the slice of the control client the fallback needs.
type Poller interface {
	GetNowPlaying(ctx context.Context) (*soundtouch.NowPlayingStatus, error)
	GetVolume(ctx context.Context) (*soundtouch.VolumeState, error)
}

type watchEntry struct {
	client *Client
	poll   *sched.RepeatingTask
}

// Manager owns one push channel per watched device. Devices whose channel
// cannot be established are polled through the control API instead, so
// consumers see the same event stream either way.
type Manager struct {
	port int

	mu      sync.Mutex
	entries map[string]*watchEntry
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{port: NotifyPort, entries: make(map[string]*watchEntry)}
}

// Watch starts delivering events for device to handler. Push first, polling
// fallback second. Watching an already watched device is a no-op.
func (m *Manager) Watch(ctx context.Context, device soundtouch.Device, poller Poller, handler Handler) error {
	key := device.Key()

	m.mu.Lock()
	if _, exists := m.entries[key]; exists {
		m.mu.Unlock()
		return nil
	}
	// Reserve the slot before the dial so concurrent Watch calls for the
	// same device don't race.
	m.entries[key] = &watchEntry{}
	m.mu.Unlock()

	client := NewClientPort(device.IPAddress, m.port)
	client.OnEvent(func(event Event) {
		if event.DeviceID == "" {
			event.DeviceID = key
		}
		handler(event)
	})

	if err := client.Connect(ctx); err == nil {
		m.mu.Lock()
		m.entries[key].client = client
		m.mu.Unlock()
		return nil
	}

	log.Printf("NOTIFY: push channel for %s unavailable, polling every %s", device.Name, pollInterval)
	poll := sched.NewRepeatingTask(pollInterval, pollOnce(key, poller, handler))
	poll.Start()

	m.mu.Lock()
	m.entries[key].poll = poll
	m.mu.Unlock()
	return nil
}

// pollOnce synthesizes push-shaped events from the control API, emitting
// only on change so consumers cannot tell the transports apart.
func pollOnce(deviceID string, poller Poller, handler Handler) func() {
	var lastStatus *soundtouch.NowPlayingStatus
	var lastVolume *soundtouch.VolumeState

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), pollInterval/2)
		defer cancel()

		if status, err := poller.GetNowPlaying(ctx); err == nil {
			if lastStatus == nil || *status != *lastStatus {
				lastStatus = status
				handler(Event{Kind: EventNowPlaying, DeviceID: deviceID, NowPlaying: status})
			}
		}
		if volume, err := poller.GetVolume(ctx); err == nil {
			if lastVolume == nil || *volume != *lastVolume {
				lastVolume = volume
				handler(Event{Kind: EventVolume, DeviceID: deviceID, Volume: volume})
			}
		}
	}
}

// Unwatch stops delivery for one device. Idempotent.
func (m *Manager) Unwatch(deviceKey string) {
	m.mu.Lock()
	entry, exists := m.entries[deviceKey]
	if exists {
		delete(m.entries, deviceKey)
	}
	m.mu.Unlock()

	if !exists {
		return
	}
	if entry.client != nil {
		entry.client.Disconnect()
	}
	if entry.poll != nil {
		entry.poll.Stop()
	}
}

// Close stops every watch.
func (m *Manager) Close() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		m.Unwatch(key)
	}
}
