package soundtouch

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultPort is the control API port every SoundTouch speaker listens on.
	DefaultPort = 8090

	// DefaultSender is the sender identifier the /key endpoint expects.
	DefaultSender = "Gabbo"

	bassMin = -9
	bassMax = 9

	// rejectedBodyLimit caps how much of an error body is kept for logging.
	rejectedBodyLimit = 200
)

// Client is a stateless request/response client for one device's control
// endpoints. One instance is bound to one device address; it is safe for
// concurrent use.
type Client struct {
	ip         string
	port       int
	baseURL    string
	sender     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a control client for the device at ip using DefaultPort.
func NewClient(ip string, timeout time.Duration) *Client {
	return NewClientPort(ip, DefaultPort, timeout)
}

// NewClientPort creates a control client with an explicit port.
// Uses connection pooling since callers issue many small requests.
func NewClientPort(ip string, port int, timeout time.Duration) *Client {
	return &Client{
		ip:      ip,
		port:    port,
		baseURL: fmt.Sprintf("http://%s:%d", ip, port),
		sender:  DefaultSender,
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// IP returns the device address the client is bound to.
func (c *Client) IP() string { return c.ip }

// GetInfo queries /info and returns the parsed device identity.
func (c *Client) GetInfo(ctx context.Context) (*Device, error) {
	payload, err := c.get(ctx, "/info")
	if err != nil {
		return nil, err
	}
	return ParseInfo(payload, c.ip)
}

// IsReachable reports whether the device answers /info within timeout.
func (c *Client) IsReachable(ctx context.Context, timeout time.Duration) bool {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.GetInfo(probeCtx)
	return err == nil
}

// SendKey models a physical button tap: a press frame followed by a release
// frame, in that order. The release is only sent after a successful press.
func (c *Client) SendKey(ctx context.Context, key string) error {
	code, ok := ResolveKey(key)
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	for _, state := range []string{"press", "release"} {
		body := fmt.Sprintf(`<key state=%q sender=%q>%s</key>`, state, c.sender, code)
		if err := c.postXML(ctx, "/key", body); err != nil {
			return fmt.Errorf("key %s %s: %w", code, state, err)
		}
	}
	return nil
}

// GetNowPlaying queries /now_playing. DurationMs is 0 when the device omits
// the total attribute.
func (c *Client) GetNowPlaying(ctx context.Context) (*NowPlayingStatus, error) {
	payload, err := c.get(ctx, "/now_playing")
	if err != nil {
		return nil, err
	}
	return ParseNowPlaying(payload)
}

// GetVolume queries /volume.
func (c *Client) GetVolume(ctx context.Context) (*VolumeState, error) {
	payload, err := c.get(ctx, "/volume")
	if err != nil {
		return nil, err
	}
	return ParseVolume(payload)
}

// SetVolume sets the target volume and mute flag. Fails fast without a
// request when level is outside 0-100.
func (c *Client) SetVolume(ctx context.Context, level int, mute bool) error {
	if level < 0 || level > 100 {
		return fmt.Errorf("volume %d out of range 0-100", level)
	}
	body := fmt.Sprintf("<volume><targetvolume>%d</targetvolume><muteenabled>%t</muteenabled></volume>", level, mute)
	return c.postXML(ctx, "/volume", body)
}

// GetBass queries /bass.
func (c *Client) GetBass(ctx context.Context) (*BassState, error) {
	payload, err := c.get(ctx, "/bass")
	if err != nil {
		return nil, err
	}
	return ParseBass(payload)
}

// SetBass sets the bass level. The accepted window varies per model; the
// client enforces the widest firmware range and fails fast outside it.
func (c *Client) SetBass(ctx context.Context, level int) error {
	if level < bassMin || level > bassMax {
		return fmt.Errorf("bass %d out of range %d..%d", level, bassMin, bassMax)
	}
	return c.postXML(ctx, "/bass", fmt.Sprintf("<bass>%d</bass>", level))
}

// GetBassCapabilities queries /bassCapabilities.
func (c *Client) GetBassCapabilities(ctx context.Context) (*BassCapabilities, error) {
	payload, err := c.get(ctx, "/bassCapabilities")
	if err != nil {
		return nil, err
	}
	return ParseBassCapabilities(payload)
}

// GetSources queries /sources.
func (c *Client) GetSources(ctx context.Context) ([]Source, error) {
	payload, err := c.get(ctx, "/sources")
	if err != nil {
		return nil, err
	}
	return ParseSources(payload)
}

// SelectSource activates a source/input via /select. location and itemName
// are optional; location carries a stream URL for INTERNET_RADIO-style
// sources.
func (c *Client) SelectSource(ctx context.Context, source, account, location, itemName string) error {
	var buf strings.Builder
	buf.WriteString(`<ContentItem source="`)
	buf.WriteString(escapeXML(source))
	buf.WriteString(`" sourceAccount="`)
	buf.WriteString(escapeXML(account))
	buf.WriteString(`"`)
	if location != "" {
		buf.WriteString(` location="`)
		buf.WriteString(escapeXML(location))
		buf.WriteString(`"`)
	}
	buf.WriteString(">")
	if itemName != "" {
		buf.WriteString("<itemName>")
		buf.WriteString(escapeXML(itemName))
		buf.WriteString("</itemName>")
	}
	buf.WriteString("</ContentItem>")
	return c.postXML(ctx, "/select", buf.String())
}

// GetPresets queries /presets.
func (c *Client) GetPresets(ctx context.Context) ([]Preset, error) {
	payload, err := c.get(ctx, "/presets")
	if err != nil {
		return nil, err
	}
	return ParsePresets(payload)
}

// GetZone queries /getZone.
func (c *Client) GetZone(ctx context.Context) (*ZoneConfig, error) {
	payload, err := c.get(ctx, "/getZone")
	if err != nil {
		return nil, err
	}
	return ParseZone(payload)
}

// SetZone creates a multi-room zone on the master with the full member list.
// Must be sent to the master device.
func (c *Client) SetZone(ctx context.Context, masterMac string, members []ZoneMember) error {
	var buf strings.Builder
	fmt.Fprintf(&buf, `<zone master="%s" senderIPAddress="%s">`, escapeXML(masterMac), c.ip)
	for _, m := range members {
		fmt.Fprintf(&buf, `<member ipaddress="%s">%s</member>`, escapeXML(m.IPAddress), escapeXML(m.MacAddress))
	}
	buf.WriteString("</zone>")
	return c.postXML(ctx, "/setZone", buf.String())
}

// AddZoneSlave adds one slave to the zone. Must be sent to the master.
func (c *Client) AddZoneSlave(ctx context.Context, masterMac string, slave ZoneMember) error {
	body := fmt.Sprintf(`<zone master="%s"><member ipaddress="%s">%s</member></zone>`,
		escapeXML(masterMac), escapeXML(slave.IPAddress), escapeXML(slave.MacAddress))
	return c.postXML(ctx, "/addZoneSlave", body)
}

// RemoveZoneSlave removes one slave from the zone. Must be sent to the master.
func (c *Client) RemoveZoneSlave(ctx context.Context, masterMac, slaveMac string) error {
	body := fmt.Sprintf(`<zone master="%s"><member>%s</member></zone>`,
		escapeXML(masterMac), escapeXML(slaveMac))
	return c.postXML(ctx, "/removeZoneSlave", body)
}

// SetDeviceName renames the device.
func (c *Client) SetDeviceName(ctx context.Context, name string) error {
	return c.postXML(ctx, "/name", fmt.Sprintf("<name>%s</name>", escapeXML(name)))
}

// SetSetupState posts a setup state change (e.g. SETUP_WIFI, SETUP_LEAVE).
// timeoutMs <= 0 omits the timeout attribute.
func (c *Client) SetSetupState(ctx context.Context, state string, timeoutMs int) error {
	var buf strings.Builder
	fmt.Fprintf(&buf, `<setupState state="%s"`, escapeXML(state))
	if timeoutMs > 0 {
		fmt.Fprintf(&buf, ` timeout="%d"`, timeoutMs)
	}
	buf.WriteString(" />")
	return c.postXML(ctx, "/setup", buf.String())
}

// AddWirelessProfile sends a WiFi profile so the speaker can join a network.
//
// A read timeout after the profile is sent counts as SUCCESS: the device
// drops into standby mid-response while applying the profile. This is a
// best-effort heuristic, not a protocol guarantee; a genuinely dropped
// request is indistinguishable without a later reachability check. Dial
// failures are not absorbed: a device that could not be reached was never
// given the profile.
func (c *Client) AddWirelessProfile(ctx context.Context, ssid, password, securityType string, timeoutSecs int) error {
	if ssid == "" {
		return errors.New("ssid is required")
	}
	security := NormalizeSecurityType(securityType)
	if security != SecurityOpen && password == "" {
		return errors.New("password is required for a secured network")
	}
	if timeoutSecs < 5 || timeoutSecs > 60 {
		timeoutSecs = 30
	}

	body := fmt.Sprintf(
		`<AddWirelessProfile timeout="%d"><profile ssid="%s" password="%s" securityType="%s" /></AddWirelessProfile>`,
		timeoutSecs, escapeXML(ssid), escapeXML(password), escapeXML(security))

	err := c.postXML(ctx, "/addWirelessProfile", body)
	if err == nil {
		return nil
	}
	var timeoutErr *DeviceTimeoutError
	if errors.As(err, &timeoutErr) {
		return nil
	}
	return err
}

// ProvisionWireless runs the full provisioning choreography the firmware
// expects after a profile is accepted: leave setup mode, then tap power to
// trigger the reboot into the new network.
func (c *Client) ProvisionWireless(ctx context.Context, ssid, password, securityType string, timeoutSecs int) error {
	if err := c.AddWirelessProfile(ctx, ssid, password, securityType, timeoutSecs); err != nil {
		return err
	}

	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}

	// The device may already be rebooting; these follow-ups are allowed to
	// fail without failing the provisioning.
	if err := c.SetSetupState(ctx, "SETUP_LEAVE", 0); err != nil {
		return nil
	}

	select {
	case <-time.After(time.Second):
	case <-ctx.Done():
		return ctx.Err()
	}
	c.SendKey(ctx, "power")
	return nil
}

// GetActiveWirelessProfile returns the SSID the device is currently joined to.
func (c *Client) GetActiveWirelessProfile(ctx context.Context) (*WirelessProfile, error) {
	payload, err := c.get(ctx, "/getActiveWirelessProfile")
	if err != nil {
		return nil, err
	}
	ssid := scanTextOrAttr(payload, "ssid")
	return &WirelessProfile{SSID: ssid}, nil
}

// PerformSiteSurvey asks the device to scan for nearby wireless networks.
func (c *Client) PerformSiteSurvey(ctx context.Context) ([]WirelessNetwork, error) {
	payload, err := c.get(ctx, "/performWirelessSiteSurvey")
	if err != nil {
		return nil, err
	}
	return parseSiteSurvey(payload)
}

// GetCapabilities queries /capabilities.
func (c *Client) GetCapabilities(ctx context.Context) ([]Capability, error) {
	payload, err := c.get(ctx, "/capabilities")
	if err != nil {
		return nil, err
	}
	var parsed capabilitiesXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse capabilities: %w", err)
	}
	caps := make([]Capability, 0, len(parsed.Capabilities))
	for _, item := range parsed.Capabilities {
		caps = append(caps, Capability{Name: item.Name, URL: item.URL, Info: item.Info})
	}
	return caps, nil
}

// ParseInfo parses an /info payload into a Device. Returns an error when the
// payload lacks a recognizable vendor signature: the type or name must
// reference the vendor, or a cloud-account marker must be present.
func ParseInfo(payload []byte, ip string) (*Device, error) {
	var parsed infoXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse info: %w", err)
	}

	if !looksLikeSoundTouch(parsed) {
		return nil, fmt.Errorf("host %s is not a SoundTouch device (type %q)", ip, parsed.Type)
	}

	device := &Device{
		Name:           parsed.Name,
		DeviceType:     parsed.Type,
		IPAddress:      ip,
		DeviceID:       parsed.DeviceID,
		CloudAccountID: parsed.MargeAcct,
	}
	if len(parsed.NetworkInfo) > 0 {
		device.MacAddress = parsed.NetworkInfo[0].MacAddress
	}
	for _, comp := range parsed.Components {
		if comp.Category == "" {
			continue
		}
		device.Components = append(device.Components, Component{
			Category:     comp.Category,
			Version:      comp.Version,
			SerialNumber: comp.SerialNumber,
		})
	}
	return device, nil
}

func looksLikeSoundTouch(parsed infoXML) bool {
	haystack := strings.ToLower(parsed.Type + " " + parsed.Name)
	if strings.Contains(haystack, "soundtouch") || strings.Contains(haystack, "bose") {
		return true
	}
	return parsed.MargeAcct != ""
}

// ParseNowPlaying parses a /now_playing payload. playStatus appears as an
// attribute on some firmware and a child element on others.
func ParseNowPlaying(payload []byte) (*NowPlayingStatus, error) {
	var parsed nowPlayingXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse now_playing: %w", err)
	}

	status := &NowPlayingStatus{
		Source:        parsed.Source,
		SourceAccount: parsed.SourceAccount,
		Track:         parsed.Track,
		Artist:        parsed.Artist,
		Album:         parsed.Album,
		Genre:         parsed.Genre,
		StationName:   parsed.StationName,
		ArtURL:        strings.TrimSpace(parsed.Art),
		PlayState:     parsePlayState(firstNonEmpty(parsed.PlayStatusAttr, parsed.PlayStatusElem)),
	}
	if parsed.Time != nil {
		if total, err := strconv.ParseInt(parsed.Time.Total, 10, 64); err == nil && total > 0 {
			status.DurationMs = total
		}
		if pos, err := strconv.ParseInt(strings.TrimSpace(parsed.Time.Position), 10, 64); err == nil && pos >= 0 {
			status.PositionMs = pos
		}
	}
	return status, nil
}

func parseSiteSurvey(payload []byte) ([]WirelessNetwork, error) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	var networks []WirelessNetwork
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "wirelessNetwork" {
			continue
		}
		var entry wirelessNetworkXML
		if err := decoder.DecodeElement(&entry, &se); err != nil {
			continue
		}
		networks = append(networks, WirelessNetwork{
			SSID:           firstNonEmpty(entry.SSIDAttr, entry.SSIDElem),
			SecurityType:   firstNonEmpty(entry.SecurityAttr, entry.SecurityElem),
			SignalStrength: firstNonEmpty(entry.SignalAttr, entry.SignalElem),
		})
	}
	return networks, nil
}

// scanTextOrAttr finds the first element or attribute with the given local
// name and returns its value.
func scanTextOrAttr(payload []byte, name string) string {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ""
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		for _, attr := range se.Attr {
			if attr.Name.Local == name && attr.Value != "" {
				return attr.Value
			}
		}
		if se.Name.Local == name {
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, path)
}

func (c *Client) postXML(ctx context.Context, path, body string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")
	_, err = c.do(req, path)
	return err
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A dial failure, timed out or not, means the device was never
		// reached and the request never went out.
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return nil, &DeviceUnreachableError{Endpoint: path, Err: err}
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, &DeviceTimeoutError{Endpoint: path}
		}
		return nil, &DeviceUnreachableError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &DeviceTimeoutError{Endpoint: path}
		}
		return nil, &DeviceUnreachableError{Endpoint: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(payload)
		if len(body) > rejectedBodyLimit {
			body = body[:rejectedBodyLimit]
		}
		return nil, &DeviceRejectedError{Endpoint: path, Status: resp.StatusCode, Body: strings.TrimSpace(body)}
	}

	return payload, nil
}

func escapeXML(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}
