package discovery

import (
	"bufio"
	"context"
	"net"
	"net/url"
	"strings"
	"time"
)

const (
	ssdpAddr = "239.255.255.250:1900"
	// Speakers announce as generic media renderers.
	ssdpTarget = "urn:schemas-upnp-org:device:MediaRenderer:1"
	ssdpPasses = 2
	ssdpWindow = 2 * time.Second
	ssdpGap    = 300 * time.Millisecond
)

type ssdpResponse struct {
	Location string
	USN      string
	Headers  map[string]string
	FromIP   string
}

// ssdpSeedIPs runs a short multicast search and returns the responders'
// host IPs. Best effort: failures just mean an unseeded sweep.
func ssdpSeedIPs(ctx context.Context) []string {
	responses, err := ssdpSearch(ctx, ssdpPasses, ssdpGap, ssdpWindow)
	if err != nil {
		return nil
	}
	ips := make([]string, 0, len(responses))
	seen := make(map[string]struct{}, len(responses))
	for _, resp := range responses {
		ip := extractHost(resp.Location)
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		ips = append(ips, ip)
	}
	return ips
}

// ssdpSearch performs SSDP M-SEARCH with multi-pass behavior.
func ssdpSearch(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]ssdpResponse, error) {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp4", ssdpAddr)
	if err != nil {
		return nil, err
	}

	responses := make(map[string]ssdpResponse)

	for pass := 0; pass < passes; pass++ {
		if err := sendSearch(conn, addr); err != nil {
			return nil, err
		}
		if pass < passes-1 {
			select {
			case <-ctx.Done():
				return mapToSlice(responses), ctx.Err()
			case <-time.After(passInterval):
			}
		}
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	buf := make([]byte, 2048)
	for {
		n, raddr, err := conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return mapToSlice(responses), err
		}

		resp := parseResponse(string(buf[:n]))
		if resp.Location == "" || resp.USN == "" {
			continue
		}
		resp.FromIP = raddr.String()

		// Deduplicate by USN
		if _, exists := responses[resp.USN]; !exists {
			responses[resp.USN] = resp
		}
	}

	return mapToSlice(responses), nil
}

func sendSearch(conn net.PacketConn, addr *net.UDPAddr) error {
	msg := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + ssdpAddr,
		"MAN: \"ssdp:discover\"",
		"MX: 2",
		"ST: " + ssdpTarget,
		"",
		"",
	}, "\r\n")

	_, err := conn.WriteTo([]byte(msg), addr)
	return err
}

func parseResponse(raw string) ssdpResponse {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	headers := make(map[string]string)

	// Skip status line
	if scanner.Scan() {
		// no-op
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		headers[key] = value
	}

	return ssdpResponse{
		Location: headers["LOCATION"],
		USN:      headers["USN"],
		Headers:  headers,
	}
}

func mapToSlice(responses map[string]ssdpResponse) []ssdpResponse {
	result := make([]ssdpResponse, 0, len(responses))
	for _, r := range responses {
		result = append(result, r)
	}
	return result
}

func extractHost(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}
