// Package notify maintains the push-notification channel to a speaker and
// decodes its event stream. When the channel cannot be established the
// Manager degrades to polling the control API.
package notify

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

// EventKind identifies one decoded push event.
type EventKind string

const (
	EventNowPlaying      EventKind = "now_playing"
	EventVolume          EventKind = "volume"
	EventBass            EventKind = "bass"
	EventZone            EventKind = "zone"
	EventPresets         EventKind = "presets"
	EventConnectionState EventKind = "connection_state"
	EventUserActivity    EventKind = "user_activity"
	EventSdkInfo         EventKind = "sdk_info"
)

// ConnectionState is the payload of a connectionStateUpdated event.
type ConnectionState struct {
	State  string
	Up     bool
	Signal string
}

// Event is one decoded notification. Exactly one payload field matching
// Kind is set; the rest are nil.
type Event struct {
	Kind       EventKind
	DeviceID   string
	NowPlaying *soundtouch.NowPlayingStatus
	Volume     *soundtouch.VolumeState
	Bass       *soundtouch.BassState
	Zone       *soundtouch.ZoneConfig
	Presets    []soundtouch.Preset
	Connection *ConnectionState
	SdkVersion string
}

// innerPayload captures the raw subtree of an update wrapper so the nested
// element can be re-parsed with the control-API parsers.
type innerPayload struct {
	Raw []byte `xml:",innerxml"`
}

// eventDecoders maps update element names onto their decoders. Keys are
// local names; the device is inconsistent about namespaces.
var eventDecoders = map[string]func(raw []byte, se xml.StartElement) (*Event, error){
	"nowPlayingUpdated": func(raw []byte, _ xml.StartElement) (*Event, error) {
		status, err := soundtouch.ParseNowPlaying(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventNowPlaying, NowPlaying: status}, nil
	},
	"volumeUpdated": func(raw []byte, _ xml.StartElement) (*Event, error) {
		volume, err := soundtouch.ParseVolume(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventVolume, Volume: volume}, nil
	},
	"bassUpdated": func(raw []byte, _ xml.StartElement) (*Event, error) {
		bass, err := soundtouch.ParseBass(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventBass, Bass: bass}, nil
	},
	"zoneUpdated": func(raw []byte, _ xml.StartElement) (*Event, error) {
		zone, err := soundtouch.ParseZone(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventZone, Zone: zone}, nil
	},
	"presetsUpdated": func(raw []byte, _ xml.StartElement) (*Event, error) {
		presets, err := soundtouch.ParsePresets(bytes.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		return &Event{Kind: EventPresets, Presets: presets}, nil
	},
	"connectionStateUpdated": func(_ []byte, se xml.StartElement) (*Event, error) {
		state := &ConnectionState{}
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "state":
				state.State = attr.Value
			case "up":
				state.Up = attr.Value == "true"
			case "signal":
				state.Signal = attr.Value
			}
		}
		return &Event{Kind: EventConnectionState, Connection: state}, nil
	},
	"userActivityUpdate": func(_ []byte, _ xml.StartElement) (*Event, error) {
		return &Event{Kind: EventUserActivity}, nil
	},
	"SoundTouchSdkInfo": func(_ []byte, se xml.StartElement) (*Event, error) {
		event := &Event{Kind: EventSdkInfo}
		for _, attr := range se.Attr {
			if attr.Name.Local == "serverVersion" {
				event.SdkVersion = attr.Value
			}
		}
		return event, nil
	},
}

// ParseEvents decodes one websocket frame. A frame is either a single event
// element or an `updates` wrapper fanning out several; wrapper frames tag
// every child with the wrapper's deviceID. Unrecognized elements are
// skipped, not errors: firmware adds event types freely.
func ParseEvents(frame []byte) ([]Event, error) {
	decoder := xml.NewDecoder(bytes.NewReader(frame))

	root, err := nextStart(decoder)
	if err != nil {
		return nil, fmt.Errorf("parse event frame: %w", err)
	}

	if root.Name.Local != "updates" {
		event, err := decodeOne(decoder, *root)
		if err != nil || event == nil {
			return nil, err
		}
		return []Event{*event}, nil
	}

	var deviceID string
	for _, attr := range root.Attr {
		if attr.Name.Local == "deviceID" {
			deviceID = attr.Value
		}
	}

	var events []Event
	for {
		se, err := nextStart(decoder)
		if err != nil {
			break
		}
		event, err := decodeOne(decoder, *se)
		if err != nil {
			continue
		}
		if event != nil {
			event.DeviceID = deviceID
			events = append(events, *event)
		}
	}
	return events, nil
}

func decodeOne(decoder *xml.Decoder, se xml.StartElement) (*Event, error) {
	decode, known := eventDecoders[se.Name.Local]

	// The subtree must always be consumed so the decoder stays positioned
	// at the next sibling.
	var inner innerPayload
	if err := decoder.DecodeElement(&inner, &se); err != nil {
		return nil, err
	}
	if !known {
		return nil, nil
	}
	return decode(inner.Raw, se)
}

func nextStart(decoder *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return &se, nil
		}
	}
}
