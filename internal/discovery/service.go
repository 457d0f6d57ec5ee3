package discovery

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// Roster is where scan results are persisted.
type Roster interface {
	UpsertAll(ctx context.Context, devices []soundtouch.Device) error
}

// Service runs an initial sweep and periodic rescans, keeping an in-memory
// snapshot and persisting every successful result to the roster.
type Service struct {
	scanner  *Scanner
	roster   Roster
	network  string
	timeout  time.Duration
	interval time.Duration

	cron   *cron.Cron
	onScan func([]soundtouch.Device)

	mu      sync.RWMutex
	devices []soundtouch.Device
}

// NewService wires a Service. roster may be nil for scan-only use. interval
// is the rescan cadence; zero disables rescans.
func NewService(scanner *Scanner, roster Roster, network string, timeout, interval time.Duration) *Service {
	return &Service{
		scanner:  scanner,
		roster:   roster,
		network:  network,
		timeout:  timeout,
		interval: interval,
	}
}

// OnScan registers a callback invoked with the result of every successful
// sweep. Must be set before Start.
func (s *Service) OnScan(fn func([]soundtouch.Device)) {
	s.onScan = fn
}

// Start performs the initial sweep synchronously, then schedules rescans.
func (s *Service) Start(ctx context.Context) error {
	if err := s.rescan(ctx); err != nil {
		return err
	}
	if s.interval <= 0 {
		return nil
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() {
		rescanCtx, cancel := context.WithTimeout(context.Background(), s.timeout+5*time.Second)
		defer cancel()
		if err := s.rescan(rescanCtx); err != nil {
			log.Printf("DISCOVERY: rescan failed: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("DISCOVERY: rescans scheduled every %s", s.interval)
	return nil
}

// Stop halts scheduled rescans. Idempotent.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// Devices returns the latest scan snapshot.
func (s *Service) Devices() []soundtouch.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]soundtouch.Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Lookup finds a device in the snapshot by identity key or name.
func (s *Service) Lookup(keyOrName string) (*soundtouch.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.Key() == keyOrName || d.Name == keyOrName {
			device := d
			return &device, true
		}
	}
	return nil, false
}

func (s *Service) rescan(ctx context.Context) error {
	devices, err := s.scanner.Scan(ctx, s.network, s.timeout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.devices = devices
	s.mu.Unlock()

	if s.roster != nil && len(devices) > 0 {
		if err := s.roster.UpsertAll(ctx, devices); err != nil {
			log.Printf("DISCOVERY: roster persist failed: %v", err)
		}
	}
	if s.onScan != nil {
		s.onScan(devices)
	}
	return nil
}
