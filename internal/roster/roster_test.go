package roster

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/db"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

func testPair(t *testing.T) *db.DBPair {
	t.Helper()
	pair, err := db.Init(filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pair.Close() })
	return pair
}

func TestUpsertAndGet(t *testing.T) {
	repo := New(testPair(t))
	ctx := context.Background()

	device := soundtouch.Device{
		Name:       "Kitchen",
		DeviceType: "SoundTouch 20",
		IPAddress:  "192.168.1.40",
		MacAddress: "9884E3AB1234",
		DeviceID:   "9884E3AB1234",
	}
	require.NoError(t, repo.Upsert(ctx, device))

	got, err := repo.Get(ctx, "9884E3AB1234")
	require.NoError(t, err)
	require.Equal(t, "Kitchen", got.Name)
	require.Equal(t, "192.168.1.40", got.IPAddress)
}

func TestUpsertRefreshesMutableFields(t *testing.T) {
	repo := New(testPair(t))
	ctx := context.Background()

	device := soundtouch.Device{Name: "Kitchen", IPAddress: "192.168.1.40", MacAddress: "MAC1"}
	require.NoError(t, repo.Upsert(ctx, device))

	// DHCP moved the device and the owner renamed it.
	device.Name = "Pantry"
	device.IPAddress = "192.168.1.77"
	require.NoError(t, repo.Upsert(ctx, device))

	got, err := repo.Get(ctx, "MAC1")
	require.NoError(t, err)
	require.Equal(t, "Pantry", got.Name)
	require.Equal(t, "192.168.1.77", got.IPAddress)

	devices, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 1)
}

func TestUpsertRequiresIdentityKey(t *testing.T) {
	repo := New(testPair(t))
	require.Error(t, repo.Upsert(context.Background(), soundtouch.Device{Name: "Ghost"}))
}

func TestGetMissReturnsNotFound(t *testing.T) {
	repo := New(testPair(t))
	_, err := repo.Get(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	repo := New(testPair(t))
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, soundtouch.Device{Name: "Den", IPAddress: "10.0.0.2", MacAddress: "MAC2"}))
	require.NoError(t, repo.Remove(ctx, "MAC2"))

	_, err := repo.Get(ctx, "MAC2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDurationCache(t *testing.T) {
	cache := NewDurationCache(testPair(t))
	ctx := context.Background()

	_, err := cache.Get(ctx, "/music/a.mp3", 1000)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cache.Put(ctx, "/music/a.mp3", 1000, 245*time.Second))

	d, err := cache.Get(ctx, "/music/a.mp3", 1000)
	require.NoError(t, err)
	require.Equal(t, 245*time.Second, d)

	// A size change invalidates the cached entry.
	_, err = cache.Get(ctx, "/music/a.mp3", 2000)
	require.ErrorIs(t, err, ErrNotFound)

	require.Error(t, cache.Put(ctx, "/music/a.mp3", 1000, 0))
}
