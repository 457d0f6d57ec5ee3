// Package discovery finds speakers on the local network. The primary
// mechanism is an HTTP sweep of a /24: every host gets probed on the control
// port and kept when its /info payload carries the vendor signature. An SSDP
// pass runs first to seed fast hits, but the sweep is authoritative since
// some firmware revisions answer multicast unreliably.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

const (
	// DefaultConcurrency bounds simultaneous probes during a sweep.
	DefaultConcurrency = 32

	// DefaultScanTimeout bounds one whole sweep.
	DefaultScanTimeout = 20 * time.Second

	minProbeBudget = 500 * time.Millisecond
	maxProbeBudget = 3 * time.Second
)

// probeFunc answers whether the host at ip is a speaker. Injectable for
// tests.
type probeFunc func(ctx context.Context, ip string) (*soundtouch.Device, error)

// Scanner sweeps a /24 network for devices.
type Scanner struct {
	probe       probeFunc
	ssdpSeed    func(ctx context.Context) []string
	concurrency int
}

// NewScanner creates a Scanner with the default HTTP probe.
func NewScanner(concurrency int) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scanner{
		probe:       probeInfo,
		ssdpSeed:    ssdpSeedIPs,
		concurrency: concurrency,
	}
}

func probeInfo(ctx context.Context, ip string) (*soundtouch.Device, error) {
	budget := maxProbeBudget
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	if budget < minProbeBudget {
		budget = minProbeBudget
	}
	client := soundtouch.NewClient(ip, budget)
	return client.GetInfo(ctx)
}

// Scan sweeps the given /24 network ("192.168.1" or "192.168.1.0/24") for
// devices. An empty network autodetects the local subnet. The result is
// sorted by IP and contains no duplicates.
func (s *Scanner) Scan(ctx context.Context, network string, overallTimeout time.Duration) ([]soundtouch.Device, error) {
	if overallTimeout <= 0 {
		overallTimeout = DefaultScanTimeout
	}
	prefix, err := resolvePrefix(network)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, overallTimeout)
	defer cancel()

	log.Printf("DISCOVERY: sweeping %s.0/24 (concurrency %d, timeout %s)", prefix, s.concurrency, overallTimeout)

	// SSDP hits get probed first so responsive devices surface quickly even
	// if the sweep later times out.
	candidates := make([]string, 0, 256)
	seen := make(map[string]struct{}, 256)
	if s.ssdpSeed != nil {
		for _, ip := range s.ssdpSeed(scanCtx) {
			if strings.HasPrefix(ip, prefix+".") {
				candidates = append(candidates, ip)
				seen[ip] = struct{}{}
			}
		}
		if len(candidates) > 0 {
			log.Printf("DISCOVERY: ssdp seeded %d candidates", len(candidates))
		}
	}
	for host := 1; host <= 254; host++ {
		ip := fmt.Sprintf("%s.%d", prefix, host)
		if _, ok := seen[ip]; !ok {
			candidates = append(candidates, ip)
		}
	}

	var (
		mu      sync.Mutex
		found   []soundtouch.Device
		foundBy = make(map[string]struct{})
		wg      sync.WaitGroup
		sem     = make(chan struct{}, s.concurrency)
	)

	for _, ip := range candidates {
		select {
		case <-scanCtx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(ip string) {
				defer wg.Done()
				defer func() { <-sem }()

				device, err := s.probe(scanCtx, ip)
				if err != nil || device == nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if _, dup := foundBy[device.Key()]; dup {
					return
				}
				foundBy[device.Key()] = struct{}{}
				found = append(found, *device)
				log.Printf("DISCOVERY: found %s (%s) at %s", device.Name, device.DeviceType, ip)
			}(ip)
		}
		if scanCtx.Err() != nil {
			break
		}
	}
	wg.Wait()

	sort.Slice(found, func(i, j int) bool { return ipLess(found[i].IPAddress, found[j].IPAddress) })
	log.Printf("DISCOVERY: sweep complete, %d devices", len(found))
	return found, nil
}

// resolvePrefix turns the network argument into a three-octet prefix.
func resolvePrefix(network string) (string, error) {
	network = strings.TrimSuffix(strings.TrimSpace(network), ".0/24")
	if network == "" {
		local, err := discoverLocalIP()
		if err != nil {
			return "", fmt.Errorf("autodetect subnet: %w", err)
		}
		network = local[:strings.LastIndex(local, ".")]
	}
	parts := strings.Split(strings.Trim(network, "."), ".")
	if len(parts) == 4 {
		parts = parts[:3]
	}
	if len(parts) != 3 {
		return "", fmt.Errorf("network %q is not a /24 prefix", network)
	}
	prefix := strings.Join(parts, ".")
	if net.ParseIP(prefix+".1") == nil {
		return "", fmt.Errorf("network %q is not a /24 prefix", network)
	}
	return prefix, nil
}

// LocalIP reports the address of the outbound interface, the one speakers
// on the LAN can reach back.
func LocalIP() (string, error) {
	return discoverLocalIP()
}

// discoverLocalIP finds the outbound interface address without sending any
// packets; the UDP "connection" only resolves routing.
func discoverLocalIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address %v", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

func ipLess(a, b string) bool {
	pa, pb := net.ParseIP(a).To4(), net.ParseIP(b).To4()
	if pa == nil || pb == nil {
		return a < b
	}
	for i := 0; i < 4; i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return false
}
