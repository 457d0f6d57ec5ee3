package soundtouch

import (
	"encoding/xml"
	"strings"
)

// Device describes one speaker as reported by its /info endpoint.
// Identity key is MacAddress with DeviceID as fallback; instances are
// immutable once added to a roster.
type Device struct {
	Name           string      `json:"name"`
	DeviceType     string      `json:"deviceType"`
	IPAddress      string      `json:"ipAddress"`
	MacAddress     string      `json:"macAddress"`
	DeviceID       string      `json:"deviceID"`
	CloudAccountID string      `json:"cloudAccountID,omitempty"`
	Components     []Component `json:"components,omitempty"`
}

// Key returns the roster identity key for the device.
func (d Device) Key() string {
	if d.MacAddress != "" {
		return d.MacAddress
	}
	return d.DeviceID
}

// Component is one hardware/software component from the /info payload.
type Component struct {
	Category     string `json:"category"`
	Version      string `json:"version"`
	SerialNumber string `json:"serialNumber"`
}

// PlayState is the normalized playback state from /now_playing.
type PlayState string

const (
	PlayStatePlay      PlayState = "PLAY"
	PlayStatePause     PlayState = "PAUSE"
	PlayStateStop      PlayState = "STOP"
	PlayStateBuffering PlayState = "BUFFERING"
	PlayStateUnknown   PlayState = "UNKNOWN"
)

// parsePlayState maps the device's *_STATE strings onto PlayState.
func parsePlayState(raw string) PlayState {
	switch raw {
	case "PLAY_STATE":
		return PlayStatePlay
	case "PAUSE_STATE":
		return PlayStatePause
	case "STOP_STATE":
		return PlayStateStop
	case "BUFFERING_STATE":
		return PlayStateBuffering
	default:
		return PlayStateUnknown
	}
}

// NowPlayingStatus is the parsed /now_playing response. DurationMs may be 0
// when the device omits it (common for streaming sources); consumers resolve
// a fallback before trusting it.
type NowPlayingStatus struct {
	Source        string    `json:"source"`
	SourceAccount string    `json:"sourceAccount"`
	Track         string    `json:"track"`
	Artist        string    `json:"artist"`
	Album         string    `json:"album"`
	Genre         string    `json:"genre,omitempty"`
	StationName   string    `json:"stationName,omitempty"`
	ArtURL        string    `json:"artURL,omitempty"`
	DurationMs    int64     `json:"durationMs"`
	PositionMs    int64     `json:"positionMs"`
	PlayState     PlayState `json:"playState"`
}

// IsPlaying reports whether the device is actively playing.
func (n NowPlayingStatus) IsPlaying() bool { return n.PlayState == PlayStatePlay }

// VolumeState is the parsed /volume response. Volumes are 0-100.
type VolumeState struct {
	TargetVolume int  `json:"targetVolume"`
	ActualVolume int  `json:"actualVolume"`
	Muted        bool `json:"muted"`
}

// BassState is the parsed /bass response.
type BassState struct {
	TargetBass int `json:"targetBass"`
	ActualBass int `json:"actualBass"`
}

// BassCapabilities is the parsed /bassCapabilities response.
type BassCapabilities struct {
	Available bool `json:"available"`
	Min       int  `json:"min"`
	Max       int  `json:"max"`
	Default   int  `json:"default"`
}

// Source is one selectable input from /sources.
type Source struct {
	Source        string `json:"source"`
	SourceAccount string `json:"sourceAccount"`
	Status        string `json:"status"`
	Name          string `json:"name"`
}

// Preset is one stored preset from /presets.
type Preset struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	SourceAccount string `json:"sourceAccount"`
	ItemName      string `json:"itemName"`
}

// ZoneMember is one member entry in a zone payload.
type ZoneMember struct {
	IPAddress  string `json:"ipAddress"`
	MacAddress string `json:"macAddress"`
}

// ZoneConfig is the parsed /getZone response.
type ZoneConfig struct {
	MasterMac string       `json:"masterMac"`
	Members   []ZoneMember `json:"members"`
}

// WirelessNetwork is one survey hit from /performWirelessSiteSurvey.
type WirelessNetwork struct {
	SSID           string `json:"ssid"`
	SecurityType   string `json:"securityType"`
	SignalStrength string `json:"signalStrength,omitempty"`
}

// WirelessProfile is the parsed /getActiveWirelessProfile response.
type WirelessProfile struct {
	SSID string `json:"ssid"`
}

// Capability is one entry from /capabilities.
type Capability struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Info string `json:"info"`
}

// SecurityType values accepted by /addWirelessProfile.
const (
	SecurityOpen      = "open"
	SecurityWEP       = "wep"
	SecurityWPAOrWPA2 = "wpa_or_wpa2"
)

// NormalizeSecurityType folds user-facing spellings onto the enum the
// firmware expects. Unrecognized values default to wpa_or_wpa2.
func NormalizeSecurityType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "open", "none", "":
		if strings.TrimSpace(raw) == "" {
			return SecurityWPAOrWPA2
		}
		return SecurityOpen
	case "wep":
		return SecurityWEP
	case "wpa", "wpa2", "wpa_or_wpa2", "wpa/wpa2":
		return SecurityWPAOrWPA2
	default:
		return SecurityWPAOrWPA2
	}
}

// Wire-format structs for the device's XML bodies. Element and attribute
// names are what the firmware expects verbatim.

type infoXML struct {
	XMLName     xml.Name `xml:"info"`
	DeviceID    string   `xml:"deviceID,attr"`
	Name        string   `xml:"name"`
	Type        string   `xml:"type"`
	MargeAcct   string   `xml:"margeAccountUUID"`
	NetworkInfo []struct {
		MacAddress string `xml:"macAddress"`
	} `xml:"networkInfo"`
	Components []struct {
		Category     string `xml:"componentCategory"`
		Version      string `xml:"softwareVersion"`
		SerialNumber string `xml:"serialNumber"`
	} `xml:"components>component"`
}

type nowPlayingXML struct {
	XMLName        xml.Name `xml:"nowPlaying"`
	Source         string   `xml:"source,attr"`
	SourceAccount  string   `xml:"sourceAccount,attr"`
	PlayStatusAttr string   `xml:"playStatus,attr"`
	PlayStatusElem string   `xml:"playStatus"`
	Track          string   `xml:"track"`
	Artist         string   `xml:"artist"`
	Album          string   `xml:"album"`
	Genre          string   `xml:"genre"`
	StationName    string   `xml:"stationName"`
	Art            string   `xml:"art"`
	Time           *struct {
		Total    string `xml:"total,attr"`
		Position string `xml:",chardata"`
	} `xml:"time"`
}

type volumeXML struct {
	XMLName      xml.Name `xml:"volume"`
	TargetVolume int      `xml:"targetvolume"`
	ActualVolume int      `xml:"actualvolume"`
	MuteEnabled  bool     `xml:"muteenabled"`
}

type bassXML struct {
	XMLName    xml.Name `xml:"bass"`
	TargetBass int      `xml:"targetbass"`
	ActualBass int      `xml:"actualbass"`
}

type bassCapabilitiesXML struct {
	XMLName     xml.Name `xml:"bassCapabilities"`
	Available   bool     `xml:"bassAvailable"`
	BassMin     int      `xml:"bassMin"`
	BassMax     int      `xml:"bassMax"`
	BassDefault int      `xml:"bassDefault"`
}

type sourcesXML struct {
	XMLName xml.Name `xml:"sources"`
	Items   []struct {
		Source        string `xml:"source,attr"`
		SourceAccount string `xml:"sourceAccount,attr"`
		Status        string `xml:"status,attr"`
		Name          string `xml:",chardata"`
	} `xml:"sourceItem"`
}

type presetsXML struct {
	XMLName xml.Name `xml:"presets"`
	Presets []struct {
		ID          string `xml:"id,attr"`
		ContentItem *struct {
			Source        string `xml:"source,attr"`
			SourceAccount string `xml:"sourceAccount,attr"`
			ItemName      string `xml:"itemName"`
		} `xml:"ContentItem"`
	} `xml:"preset"`
}

type zoneXML struct {
	XMLName xml.Name `xml:"zone"`
	Master  string   `xml:"master,attr"`
	Members []struct {
		IPAddress string `xml:"ipaddress,attr"`
		Mac       string `xml:",chardata"`
	} `xml:"member"`
}

// wirelessNetworkXML tolerates both attribute and child-element spellings;
// firmware revisions differ here.
type wirelessNetworkXML struct {
	SSIDAttr     string `xml:"ssid,attr"`
	SSIDElem     string `xml:"ssid"`
	SecurityAttr string `xml:"securityType,attr"`
	SecurityElem string `xml:"securityType"`
	SignalAttr   string `xml:"signalStrength,attr"`
	SignalElem   string `xml:"signalStrength"`
}

type capabilitiesXML struct {
	XMLName      xml.Name `xml:"capabilities"`
	Capabilities []struct {
		Name string `xml:"name,attr"`
		URL  string `xml:"url,attr"`
		Info string `xml:"info,attr"`
	} `xml:"capability"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
