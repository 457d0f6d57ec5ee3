package zone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

type call struct {
	ip   string
	op   string
	args string
}

type fakeFleet struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]error // ip -> error for every op
}

func (f *fakeFleet) record(ip, op, args string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{ip: ip, op: op, args: args})
	if err, ok := f.fail[ip]; ok {
		return err
	}
	return nil
}

type fakeController struct {
	fleet *fakeFleet
	ip    string
}

func (c *fakeController) SendKey(ctx context.Context, key string) error {
	return c.fleet.record(c.ip, "key", key)
}

func (c *fakeController) SetVolume(ctx context.Context, level int, mute bool) error {
	return c.fleet.record(c.ip, "volume", fmt.Sprintf("%d", level))
}

func (c *fakeController) SetZone(ctx context.Context, masterMac string, members []soundtouch.ZoneMember) error {
	return c.fleet.record(c.ip, "setZone", fmt.Sprintf("%s:%d", masterMac, len(members)))
}

func (c *fakeController) AddZoneSlave(ctx context.Context, masterMac string, slave soundtouch.ZoneMember) error {
	return c.fleet.record(c.ip, "addSlave", slave.MacAddress)
}

func (c *fakeController) RemoveZoneSlave(ctx context.Context, masterMac, slaveMac string) error {
	return c.fleet.record(c.ip, "removeSlave", slaveMac)
}

func (c *fakeController) GetZone(ctx context.Context) (*soundtouch.ZoneConfig, error) {
	return &soundtouch.ZoneConfig{}, nil
}

func fleetManager() (*Manager, *fakeFleet) {
	fleet := &fakeFleet{fail: map[string]error{}}
	manager := NewManager(func(ip string) Controller {
		return &fakeController{fleet: fleet, ip: ip}
	})
	return manager, fleet
}

var (
	kitchen = soundtouch.Device{Name: "Kitchen", IPAddress: "192.168.1.40", MacAddress: "MACK"}
	den     = soundtouch.Device{Name: "Den", IPAddress: "192.168.1.41", MacAddress: "MACD"}
	bedroom = soundtouch.Device{Name: "Bedroom", IPAddress: "192.168.1.42", MacAddress: "MACB"}
)

func TestCreateGroupSingleSetZoneToMaster(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	err := manager.CreateGroup(ctx, "downstairs", kitchen, []soundtouch.Device{den, bedroom})
	require.NoError(t, err)

	require.Len(t, fleet.calls, 1)
	require.Equal(t, "192.168.1.40", fleet.calls[0].ip)
	require.Equal(t, "setZone", fleet.calls[0].op)
	require.Equal(t, "MACK:3", fleet.calls[0].args) // master included in members

	group, ok := manager.Group("downstairs")
	require.True(t, ok)
	require.Equal(t, "Kitchen", group.Master.Name)
	require.Len(t, group.Slaves, 2)
}

func TestCreateGroupValidation(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	require.Error(t, manager.CreateGroup(ctx, "", kitchen, []soundtouch.Device{den}))
	require.Error(t, manager.CreateGroup(ctx, "solo", kitchen, nil))
	require.Empty(t, fleet.calls)

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den}))
	require.Error(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{bedroom}))
}

func TestCreateGroupRejectsMasterAsSlave(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	err := manager.CreateGroup(ctx, "bad", kitchen, []soundtouch.Device{kitchen, den})
	require.Error(t, err)
	require.Empty(t, fleet.calls, "no zone payload may go out for an invalid group")

	_, ok := manager.Group("bad")
	require.False(t, ok)
}

func TestCreateGroupRejectsDuplicateSlaves(t *testing.T) {
	manager, fleet := fleetManager()

	err := manager.CreateGroup(context.Background(), "bad", kitchen, []soundtouch.Device{den, den})
	require.Error(t, err)
	require.Empty(t, fleet.calls)
}

func TestDeviceBelongsToAtMostOneGroup(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()
	attic := soundtouch.Device{Name: "Attic", IPAddress: "192.168.1.43", MacAddress: "MACA"}

	require.NoError(t, manager.CreateGroup(ctx, "downstairs", kitchen, []soundtouch.Device{den}))
	setZones := len(fleet.calls)

	// A slave of one group can be neither slave nor master of another.
	require.Error(t, manager.CreateGroup(ctx, "upstairs", bedroom, []soundtouch.Device{den}))
	require.Error(t, manager.CreateGroup(ctx, "upstairs", den, []soundtouch.Device{bedroom}))
	// Same for a master.
	require.Error(t, manager.CreateGroup(ctx, "upstairs", kitchen, []soundtouch.Device{bedroom}))
	require.Len(t, fleet.calls, setZones)

	require.NoError(t, manager.CreateGroup(ctx, "upstairs", bedroom, []soundtouch.Device{attic}))

	// AddSlave enforces the same membership rules.
	require.Error(t, manager.AddSlave(ctx, "upstairs", den))
	require.Error(t, manager.AddSlave(ctx, "upstairs", kitchen))
	require.Error(t, manager.AddSlave(ctx, "upstairs", bedroom))

	group, ok := manager.Group("upstairs")
	require.True(t, ok)
	require.Len(t, group.Slaves, 1)
}

func TestCreateGroupFailureLeavesNoGroup(t *testing.T) {
	manager, fleet := fleetManager()
	fleet.fail["192.168.1.40"] = errors.New("unreachable")

	err := manager.CreateGroup(context.Background(), "g", kitchen, []soundtouch.Device{den})
	require.Error(t, err)
	_, ok := manager.Group("g")
	require.False(t, ok)
}

func TestAddAndRemoveSlaveGoThroughMaster(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den}))
	require.NoError(t, manager.AddSlave(ctx, "g", bedroom))

	// Adding an existing member is a no-op.
	require.NoError(t, manager.AddSlave(ctx, "g", bedroom))

	require.NoError(t, manager.RemoveSlave(ctx, "g", "MACB"))
	require.Error(t, manager.RemoveSlave(ctx, "g", "MACB"))

	for _, c := range fleet.calls {
		require.Equal(t, "192.168.1.40", c.ip, "all zone ops must hit the master")
	}

	group, ok := manager.Group("g")
	require.True(t, ok)
	require.Len(t, group.Slaves, 1)
}

func TestRemovingLastSlaveDisbands(t *testing.T) {
	manager, _ := fleetManager()
	ctx := context.Background()

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den}))
	require.NoError(t, manager.RemoveSlave(ctx, "g", "MACD"))

	_, ok := manager.Group("g")
	require.False(t, ok)
}

func TestSendKeyHitsMasterOnly(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den, bedroom}))
	require.NoError(t, manager.SendKey(ctx, "g", "pause"))

	var keyCalls []call
	for _, c := range fleet.calls {
		if c.op == "key" {
			keyCalls = append(keyCalls, c)
		}
	}
	require.Len(t, keyCalls, 1)
	require.Equal(t, "192.168.1.40", keyCalls[0].ip)

	require.Error(t, manager.SendKey(ctx, "nope", "pause"))
}

func TestSetVolumeFansOutToAllMembers(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den, bedroom}))
	fleet.fail["192.168.1.41"] = errors.New("deaf speaker")

	err := manager.SetVolume(ctx, "g", 25)
	require.Error(t, err)

	var volumeIPs []string
	for _, c := range fleet.calls {
		if c.op == "volume" {
			volumeIPs = append(volumeIPs, c.ip)
		}
	}
	// The failing member must not stop the fan-out.
	require.Equal(t, []string{"192.168.1.40", "192.168.1.41", "192.168.1.42"}, volumeIPs)
}

func TestDisbandBestEffort(t *testing.T) {
	manager, fleet := fleetManager()
	ctx := context.Background()

	require.NoError(t, manager.CreateGroup(ctx, "g", kitchen, []soundtouch.Device{den, bedroom}))
	fleet.fail["192.168.1.40"] = errors.New("master rebooting")

	err := manager.Disband(ctx, "g")
	require.Error(t, err)

	// The group is forgotten even when the device calls failed.
	_, ok := manager.Group("g")
	require.False(t, ok)
	require.Empty(t, manager.Groups())
}
