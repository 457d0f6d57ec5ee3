package db

const schemaSQL = `
-- ===========================================================================
-- DEVICE ROSTER
-- ===========================================================================

CREATE TABLE IF NOT EXISTS devices (
  device_key TEXT PRIMARY KEY,       -- mac address, falls back to device id
  name TEXT NOT NULL,
  device_type TEXT NOT NULL DEFAULT '',
  ip_address TEXT NOT NULL,
  mac_address TEXT NOT NULL DEFAULT '',
  device_id TEXT NOT NULL DEFAULT '',
  cloud_account_id TEXT,
  last_seen_at TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now')),
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_devices_ip ON devices(ip_address);
CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen_at);

-- ===========================================================================
-- TRACK DURATION CACHE (duration fallback for sources that omit it)
-- ===========================================================================

CREATE TABLE IF NOT EXISTS track_durations (
  file_path TEXT PRIMARY KEY,
  duration_ms INTEGER NOT NULL,
  file_size INTEGER NOT NULL DEFAULT 0,
  updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
