// Package zone manages named multi-room groups. All zone mutations go to
// the group's master; only volume fans out to every member.
package zone

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// Controller is the per-device control surface the manager drives.
type Controller interface {
	SendKey(ctx context.Context, key string) error
	SetVolume(ctx context.Context, level int, mute bool) error
	SetZone(ctx context.Context, masterMac string, members []soundtouch.ZoneMember) error
	AddZoneSlave(ctx context.Context, masterMac string, slave soundtouch.ZoneMember) error
	RemoveZoneSlave(ctx context.Context, masterMac, slaveMac string) error
	GetZone(ctx context.Context) (*soundtouch.ZoneConfig, error)
}

// ControllerFactory builds a Controller for a device address.
type ControllerFactory func(ip string) Controller

// DefaultControllerFactory wires the standard control client.
func DefaultControllerFactory(timeout time.Duration) ControllerFactory {
	return func(ip string) Controller {
		return soundtouch.NewClient(ip, timeout)
	}
}

// Group is one named multi-room group.
type Group struct {
	Name   string
	Master soundtouch.Device
	Slaves []soundtouch.Device
}

// Members returns master plus slaves in zone-payload order, master first.
func (g *Group) Members() []soundtouch.ZoneMember {
	members := make([]soundtouch.ZoneMember, 0, len(g.Slaves)+1)
	members = append(members, soundtouch.ZoneMember{
		IPAddress:  g.Master.IPAddress,
		MacAddress: g.Master.Key(),
	})
	for _, slave := range g.Slaves {
		members = append(members, soundtouch.ZoneMember{
			IPAddress:  slave.IPAddress,
			MacAddress: slave.Key(),
		})
	}
	return members
}

// Manager tracks named groups. One mutex guards the whole map; group
// operations are infrequent enough that finer locking buys nothing.
type Manager struct {
	controllers ControllerFactory

	mu     sync.Mutex
	groups map[string]*Group
}

// NewManager creates a Manager using the given controller factory.
func NewManager(controllers ControllerFactory) *Manager {
	return &Manager{
		controllers: controllers,
		groups:      make(map[string]*Group),
	}
}

// CreateGroup forms a zone with master and slaves in a single setZone call
// to the master, then records it under name. An existing group with the
// same name is an error.
func (m *Manager) CreateGroup(ctx context.Context, name string, master soundtouch.Device, slaves []soundtouch.Device) error {
	if name == "" {
		return fmt.Errorf("zone: group name is required")
	}
	if len(slaves) == 0 {
		return fmt.Errorf("zone: group %q needs at least one slave", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[name]; exists {
		return fmt.Errorf("zone: group %q already exists", name)
	}

	seen := map[string]bool{master.Key(): true}
	for _, slave := range slaves {
		if slave.Key() == master.Key() {
			return fmt.Errorf("zone: master %s cannot be its own slave in %q", master.Name, name)
		}
		if seen[slave.Key()] {
			return fmt.Errorf("zone: %s listed twice in %q", slave.Name, name)
		}
		seen[slave.Key()] = true
	}
	if owner, taken := m.enrolled(master.Key()); taken {
		return fmt.Errorf("zone: %s already belongs to group %q", master.Name, owner)
	}
	for _, slave := range slaves {
		if owner, taken := m.enrolled(slave.Key()); taken {
			return fmt.Errorf("zone: %s already belongs to group %q", slave.Name, owner)
		}
	}

	group := &Group{Name: name, Master: master, Slaves: slaves}
	if err := m.controllers(master.IPAddress).SetZone(ctx, master.Key(), group.Members()); err != nil {
		return fmt.Errorf("zone: create %q: %w", name, err)
	}

	m.groups[name] = group
	log.Printf("ZONE: created group %q with master %s and %d slaves", name, master.Name, len(slaves))
	return nil
}

// AddSlave joins one more device to an existing group via the master.
func (m *Manager) AddSlave(ctx context.Context, name string, slave soundtouch.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, exists := m.groups[name]
	if !exists {
		return fmt.Errorf("zone: no group %q", name)
	}
	for _, existing := range group.Slaves {
		if existing.Key() == slave.Key() {
			return nil
		}
	}
	if slave.Key() == group.Master.Key() {
		return fmt.Errorf("zone: %s is the master of %q", slave.Name, name)
	}
	if owner, taken := m.enrolled(slave.Key()); taken {
		return fmt.Errorf("zone: %s already belongs to group %q", slave.Name, owner)
	}

	member := soundtouch.ZoneMember{IPAddress: slave.IPAddress, MacAddress: slave.Key()}
	if err := m.controllers(group.Master.IPAddress).AddZoneSlave(ctx, group.Master.Key(), member); err != nil {
		return fmt.Errorf("zone: add %s to %q: %w", slave.Name, name, err)
	}

	group.Slaves = append(group.Slaves, slave)
	return nil
}

// enrolled reports which group, if any, already holds the device. A device
// is a member of at most one group. Caller holds the mutex.
func (m *Manager) enrolled(key string) (string, bool) {
	for name, group := range m.groups {
		if group.Master.Key() == key {
			return name, true
		}
		for _, slave := range group.Slaves {
			if slave.Key() == key {
				return name, true
			}
		}
	}
	return "", false
}

// RemoveSlave detaches one device from a group via the master. Removing the
// last slave disbands the group.
func (m *Manager) RemoveSlave(ctx context.Context, name, slaveKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, exists := m.groups[name]
	if !exists {
		return fmt.Errorf("zone: no group %q", name)
	}

	idx := -1
	for i, slave := range group.Slaves {
		if slave.Key() == slaveKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("zone: %s is not a slave of %q", slaveKey, name)
	}

	if err := m.controllers(group.Master.IPAddress).RemoveZoneSlave(ctx, group.Master.Key(), slaveKey); err != nil {
		return fmt.Errorf("zone: remove %s from %q: %w", slaveKey, name, err)
	}

	group.Slaves = append(group.Slaves[:idx], group.Slaves[idx+1:]...)
	if len(group.Slaves) == 0 {
		delete(m.groups, name)
		log.Printf("ZONE: group %q disbanded, last slave removed", name)
	}
	return nil
}

// Disband removes every slave from the master and forgets the group.
// Best effort per slave: an unreachable slave does not keep the rest
// grouped.
func (m *Manager) Disband(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, exists := m.groups[name]
	if !exists {
		return fmt.Errorf("zone: no group %q", name)
	}

	master := m.controllers(group.Master.IPAddress)
	var firstErr error
	for _, slave := range group.Slaves {
		if err := master.RemoveZoneSlave(ctx, group.Master.Key(), slave.Key()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("zone: disband %q: %w", name, err)
		}
	}

	delete(m.groups, name)
	return firstErr
}

// SendKey issues a transport key to the group's master only; the firmware
// propagates transport state to slaves itself.
func (m *Manager) SendKey(ctx context.Context, name, key string) error {
	m.mu.Lock()
	group, exists := m.groups[name]
	var masterIP string
	if exists {
		masterIP = group.Master.IPAddress
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("zone: no group %q", name)
	}
	return m.controllers(masterIP).SendKey(ctx, key)
}

// SetVolume fans the level out to every member. Per-member failures are
// collected; one deaf speaker must not keep the rest loud.
func (m *Manager) SetVolume(ctx context.Context, name string, level int) error {
	m.mu.Lock()
	group, exists := m.groups[name]
	var ips []string
	if exists {
		ips = append(ips, group.Master.IPAddress)
		for _, slave := range group.Slaves {
			ips = append(ips, slave.IPAddress)
		}
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("zone: no group %q", name)
	}

	var firstErr error
	for _, ip := range ips {
		if err := m.controllers(ip).SetVolume(ctx, level, false); err != nil {
			log.Printf("ZONE: volume for member %s failed: %v", ip, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Group returns a copy of one group.
func (m *Manager) Group(name string) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, exists := m.groups[name]
	if !exists {
		return Group{}, false
	}
	copied := *group
	copied.Slaves = append([]soundtouch.Device(nil), group.Slaves...)
	return copied, true
}

// Groups returns copies of every group.
func (m *Manager) Groups() []Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Group, 0, len(m.groups))
	for _, group := range m.groups {
		copied := *group
		copied.Slaves = append([]soundtouch.Device(nil), group.Slaves...)
		out = append(out, copied)
	}
	return out
}
