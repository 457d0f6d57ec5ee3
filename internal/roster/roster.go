// Package roster persists the set of known devices and the track-duration
// cache. It is plain plumbing over SQLite; discovery writes, everything else
// reads.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/db"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// ErrNotFound is returned when a lookup misses.
var ErrNotFound = errors.New("roster: not found")

// Repository stores discovered devices keyed by soundtouch.Device.Key().
type Repository struct {
	pair *db.DBPair
	now  func() time.Time
}

// New creates a Repository over an initialized database pair.
func New(pair *db.DBPair) *Repository {
	return &Repository{pair: pair, now: time.Now}
}

// Upsert inserts or refreshes a device row. The identity key never changes;
// name, address and last-seen are refreshed on every successful scan.
func (r *Repository) Upsert(ctx context.Context, device soundtouch.Device) error {
	key := device.Key()
	if key == "" {
		return errors.New("roster: device has no identity key")
	}
	now := r.now().UTC().Format(time.RFC3339)
	_, err := r.pair.Writer().ExecContext(ctx, `
		INSERT INTO devices (device_key, name, device_type, ip_address, mac_address, device_id, cloud_account_id, last_seen_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_key) DO UPDATE SET
			name = excluded.name,
			device_type = excluded.device_type,
			ip_address = excluded.ip_address,
			cloud_account_id = excluded.cloud_account_id,
			last_seen_at = excluded.last_seen_at,
			updated_at = excluded.updated_at`,
		key, device.Name, device.DeviceType, device.IPAddress, device.MacAddress,
		device.DeviceID, nullable(device.CloudAccountID), now, now, now)
	if err != nil {
		return fmt.Errorf("roster upsert %s: %w", key, err)
	}
	return nil
}

// UpsertAll stores a scan result in one write transaction.
func (r *Repository) UpsertAll(ctx context.Context, devices []soundtouch.Device) error {
	for _, device := range devices {
		if err := r.Upsert(ctx, device); err != nil {
			return err
		}
	}
	return nil
}

// Get returns one device by identity key.
func (r *Repository) Get(ctx context.Context, key string) (*soundtouch.Device, error) {
	row := r.pair.Reader().QueryRowContext(ctx, `
		SELECT device_key, name, device_type, ip_address, mac_address, device_id, COALESCE(cloud_account_id, '')
		FROM devices WHERE device_key = ?`, key)
	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("roster get %s: %w", key, err)
	}
	return device, nil
}

// List returns all known devices, most recently seen first.
func (r *Repository) List(ctx context.Context) ([]soundtouch.Device, error) {
	rows, err := r.pair.Reader().QueryContext(ctx, `
		SELECT device_key, name, device_type, ip_address, mac_address, device_id, COALESCE(cloud_account_id, '')
		FROM devices ORDER BY last_seen_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("roster list: %w", err)
	}
	defer rows.Close()

	var devices []soundtouch.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("roster list: %w", err)
		}
		devices = append(devices, *device)
	}
	return devices, rows.Err()
}

// Remove deletes one device row.
func (r *Repository) Remove(ctx context.Context, key string) error {
	_, err := r.pair.Writer().ExecContext(ctx, "DELETE FROM devices WHERE device_key = ?", key)
	if err != nil {
		return fmt.Errorf("roster remove %s: %w", key, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*soundtouch.Device, error) {
	var key string
	var device soundtouch.Device
	if err := row.Scan(&key, &device.Name, &device.DeviceType, &device.IPAddress,
		&device.MacAddress, &device.DeviceID, &device.CloudAccountID); err != nil {
		return nil, err
	}
	return &device, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// DurationCache persists per-file track durations so later sessions can skip
// re-probing files whose size has not changed.
type DurationCache struct {
	pair *db.DBPair
	now  func() time.Time
}

// NewDurationCache creates a DurationCache over an initialized database pair.
func NewDurationCache(pair *db.DBPair) *DurationCache {
	return &DurationCache{pair: pair, now: time.Now}
}

// Get returns the cached duration for path, rejecting stale entries whose
// recorded file size no longer matches.
func (c *DurationCache) Get(ctx context.Context, path string, fileSize int64) (time.Duration, error) {
	var durationMs, storedSize int64
	err := c.pair.Reader().QueryRowContext(ctx,
		"SELECT duration_ms, file_size FROM track_durations WHERE file_path = ?", path).
		Scan(&durationMs, &storedSize)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("duration cache get %s: %w", path, err)
	}
	if storedSize != 0 && fileSize != 0 && storedSize != fileSize {
		return 0, ErrNotFound
	}
	return time.Duration(durationMs) * time.Millisecond, nil
}

// Put stores or refreshes the duration for path.
func (c *DurationCache) Put(ctx context.Context, path string, fileSize int64, duration time.Duration) error {
	if duration <= 0 {
		return errors.New("duration cache: non-positive duration")
	}
	now := c.now().UTC().Format(time.RFC3339)
	_, err := c.pair.Writer().ExecContext(ctx, `
		INSERT INTO track_durations (file_path, duration_ms, file_size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			file_size = excluded.file_size,
			updated_at = excluded.updated_at`,
		path, duration.Milliseconds(), fileSize, now)
	if err != nil {
		return fmt.Errorf("duration cache put %s: %w", path, err)
	}
	return nil
}
