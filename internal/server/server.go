// Package server is the hub composition root: it owns the database, the
// discovery service, the media library and the notification watchers, and
// exposes the media HTTP surface.
package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/config"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/db"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/discovery"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/media"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/notify"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/roster"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// Options controls hub wiring.
type Options struct {
	DisableDiscovery bool // skip the network sweep (for tests)
	DisableWatch     bool // skip the media filesystem watcher
}

// NewHandler builds the hub and returns its HTTP handler plus a shutdown
// function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	rosterRepo := roster.New(dbPair)
	deviceTimeout := time.Duration(cfg.DeviceTimeoutMs) * time.Millisecond

	notifyMgr := notify.NewManager()
	watch := func(devices []soundtouch.Device) {
		if cfg.DisableNotify {
			return
		}
		for _, device := range devices {
			poller := soundtouch.NewClient(device.IPAddress, deviceTimeout)
			ctx, cancel := context.WithTimeout(context.Background(), deviceTimeout)
			if err := notifyMgr.Watch(ctx, device, poller, logEvent); err != nil {
				log.Printf("NOTIFY: watch %s: %v", device.Name, err)
			}
			cancel()
		}
	}

	scanner := discovery.NewScanner(cfg.DiscoveryConcurrency)
	discoveryService := discovery.NewService(
		scanner,
		rosterRepo,
		cfg.Network,
		time.Duration(cfg.DiscoveryTimeoutMs)*time.Millisecond,
		time.Duration(cfg.RescanIntervalMs)*time.Millisecond,
	)
	discoveryService.OnScan(watch)

	if !options.DisableDiscovery {
		if err := discoveryService.Start(context.Background()); err != nil {
			log.Printf("DISCOVERY: initial sweep failed: %v", err)
		}
	}
	if len(cfg.StaticDeviceIPs) > 0 {
		watch(probeStatic(cfg.StaticDeviceIPs, deviceTimeout, rosterRepo))
	}

	if err := os.MkdirAll(cfg.MediaRoot, 0o755); err != nil {
		return nil, nil, err
	}
	library, err := media.NewLibrary(cfg.MediaRoot)
	if err != nil {
		return nil, nil, err
	}
	if !options.DisableWatch {
		if err := library.Watch(); err != nil {
			log.Printf("MEDIA: watcher unavailable, index is scan-time only: %v", err)
		}
	}
	mediaServer := media.NewServer(library)

	advertiseHost := cfg.AdvertiseHost
	if advertiseHost == "" {
		if ip, err := discovery.LocalIP(); err == nil {
			advertiseHost = ip
		}
	}
	if advertiseHost != "" {
		log.Printf("MEDIA: streams served from http://%s:%d/media/ (instance %s)",
			advertiseHost, cfg.MediaHTTPPort, mediaServer.InstanceID())
	}

	shutdown := func(ctx context.Context) error {
		discoveryService.Stop()
		notifyMgr.Close()
		library.Close()
		return dbPair.Close()
	}

	return mediaServer.Handler(), shutdown, nil
}

// probeStatic checks configured addresses directly. Devices on other subnets
// or with discovery disabled still get watched and persisted this way.
func probeStatic(ips []string, timeout time.Duration, repo *roster.Repository) []soundtouch.Device {
	var found []soundtouch.Device
	for _, ip := range ips {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		device, err := soundtouch.NewClient(ip, timeout).GetInfo(ctx)
		cancel()
		if err != nil {
			log.Printf("DISCOVERY: static device %s: %v", ip, err)
			continue
		}
		found = append(found, *device)
	}
	if len(found) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := repo.UpsertAll(ctx, found); err != nil {
			log.Printf("DISCOVERY: roster persist failed: %v", err)
		}
	}
	return found
}

func logEvent(event notify.Event) {
	log.Printf("NOTIFY: %s event from %s", event.Kind, event.DeviceID)
}
