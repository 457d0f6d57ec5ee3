package player

import (
	"context"
	"log"
	"os"
	"time"
)

// assumedBitrateKbps backs the last-resort size estimate. Compressed music
// hovers around this rate; an estimate that is off by seconds still beats a
// zero duration, which disables the track-end guard entirely.
const assumedBitrateKbps = 192

// DurationStore is the persistent duration cache slice the chain needs.
type DurationStore interface {
	Get(ctx context.Context, path string, fileSize int64) (time.Duration, error)
	Put(ctx context.Context, path string, fileSize int64, duration time.Duration) error
}

// DurationChain resolves a usable track duration: the device's own report
// wins, then the persistent cache, then a bitrate estimate from the local
// file size.
type DurationChain struct {
	store DurationStore
	stat  func(path string) (int64, error)
}

// NewDurationChain creates a chain. store may be nil; the chain then skips
// straight to the file estimate.
func NewDurationChain(store DurationStore) *DurationChain {
	return &DurationChain{store: store, stat: fileSize}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Resolve returns the best-known duration for a track. deviceMs is what the
// device reported, zero when it omitted one. localPath may be empty for
// tracks that are not local files.
func (c *DurationChain) Resolve(ctx context.Context, localPath string, deviceMs int64) time.Duration {
	if deviceMs > 0 {
		duration := time.Duration(deviceMs) * time.Millisecond
		c.remember(ctx, localPath, duration)
		return duration
	}
	if localPath == "" {
		return 0
	}

	size, err := c.stat(localPath)
	if err != nil {
		return 0
	}

	if c.store != nil {
		if cached, err := c.store.Get(ctx, localPath, size); err == nil {
			return cached
		}
	}

	// Last resort: size over assumed bitrate.
	estimate := time.Duration(size*8/assumedBitrateKbps) * time.Millisecond
	log.Printf("PLAYER: estimated duration %s for %s from file size", estimate.Round(time.Second), localPath)
	return estimate
}

// remember persists a device-reported duration so later sessions can skip
// the estimate. Best effort.
func (c *DurationChain) remember(ctx context.Context, localPath string, duration time.Duration) {
	if c.store == nil || localPath == "" {
		return
	}
	size, err := c.stat(localPath)
	if err != nil {
		return
	}
	if err := c.store.Put(ctx, localPath, size, duration); err != nil {
		log.Printf("PLAYER: duration cache write for %s failed: %v", localPath, err)
	}
}
