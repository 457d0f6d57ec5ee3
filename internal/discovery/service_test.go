package discovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

type memRoster struct {
	mu      sync.Mutex
	upserts [][]soundtouch.Device
}

func (m *memRoster) UpsertAll(ctx context.Context, devices []soundtouch.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, devices)
	return nil
}

func TestServiceInitialScanPersistsToRoster(t *testing.T) {
	speakers := map[string]soundtouch.Device{
		"192.168.1.40": {Name: "Kitchen", IPAddress: "192.168.1.40", MacAddress: "MAC40"},
	}
	scanner := &Scanner{probe: fakeProbe(speakers), concurrency: 16}
	roster := &memRoster{}

	svc := NewService(scanner, roster, "192.168.1", 5*time.Second, 0)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	devices := svc.Devices()
	require.Len(t, devices, 1)
	require.Equal(t, "Kitchen", devices[0].Name)

	roster.mu.Lock()
	defer roster.mu.Unlock()
	require.Len(t, roster.upserts, 1)
}

func TestServiceLookup(t *testing.T) {
	speakers := map[string]soundtouch.Device{
		"192.168.1.40": {Name: "Kitchen", IPAddress: "192.168.1.40", MacAddress: "MAC40"},
		"192.168.1.41": {Name: "Den", IPAddress: "192.168.1.41", MacAddress: "MAC41"},
	}
	scanner := &Scanner{probe: fakeProbe(speakers), concurrency: 16}

	svc := NewService(scanner, nil, "192.168.1", 5*time.Second, 0)
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	byName, ok := svc.Lookup("Den")
	require.True(t, ok)
	require.Equal(t, "192.168.1.41", byName.IPAddress)

	byKey, ok := svc.Lookup("MAC40")
	require.True(t, ok)
	require.Equal(t, "Kitchen", byKey.Name)

	_, ok = svc.Lookup("Attic")
	require.False(t, ok)
}

func TestServiceOnScanFiresAfterSweep(t *testing.T) {
	speakers := map[string]soundtouch.Device{
		"192.168.1.40": {Name: "Kitchen", IPAddress: "192.168.1.40", MacAddress: "MAC40"},
	}
	scanner := &Scanner{probe: fakeProbe(speakers), concurrency: 16}

	var seen []soundtouch.Device
	svc := NewService(scanner, nil, "192.168.1", 5*time.Second, 0)
	svc.OnScan(func(devices []soundtouch.Device) { seen = devices })
	require.NoError(t, svc.Start(context.Background()))
	defer svc.Stop()

	require.Len(t, seen, 1)
	require.Equal(t, "Kitchen", seen[0].Name)
}

func TestServiceStopIsIdempotent(t *testing.T) {
	scanner := &Scanner{probe: fakeProbe(nil), concurrency: 4}
	svc := NewService(scanner, nil, "192.168.1", time.Second, time.Minute)
	require.NoError(t, svc.Start(context.Background()))
	svc.Stop()
	svc.Stop()
}
