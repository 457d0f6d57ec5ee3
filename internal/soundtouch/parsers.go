package soundtouch

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Parse functions for the device's XML payloads. The control client and the
// push-notification decoder share them; push events carry the same element
// shapes nested inside update wrappers.

// ParseVolume parses a /volume payload.
func ParseVolume(payload []byte) (*VolumeState, error) {
	var parsed volumeXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}
	return &VolumeState{
		TargetVolume: parsed.TargetVolume,
		ActualVolume: parsed.ActualVolume,
		Muted:        parsed.MuteEnabled,
	}, nil
}

// ParseBass parses a /bass payload.
func ParseBass(payload []byte) (*BassState, error) {
	var parsed bassXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse bass: %w", err)
	}
	return &BassState{TargetBass: parsed.TargetBass, ActualBass: parsed.ActualBass}, nil
}

// ParseBassCapabilities parses a /bassCapabilities payload.
func ParseBassCapabilities(payload []byte) (*BassCapabilities, error) {
	var parsed bassCapabilitiesXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse bass capabilities: %w", err)
	}
	return &BassCapabilities{
		Available: parsed.Available,
		Min:       parsed.BassMin,
		Max:       parsed.BassMax,
		Default:   parsed.BassDefault,
	}, nil
}

// ParseSources parses a /sources payload.
func ParseSources(payload []byte) ([]Source, error) {
	var parsed sourcesXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	sources := make([]Source, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		sources = append(sources, Source{
			Source:        item.Source,
			SourceAccount: item.SourceAccount,
			Status:        item.Status,
			Name:          strings.TrimSpace(item.Name),
		})
	}
	return sources, nil
}

// ParsePresets parses a /presets payload. Empty preset slots are skipped.
func ParsePresets(payload []byte) ([]Preset, error) {
	var parsed presetsXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	presets := make([]Preset, 0, len(parsed.Presets))
	for _, p := range parsed.Presets {
		if p.ContentItem == nil {
			continue
		}
		presets = append(presets, Preset{
			ID:            p.ID,
			Source:        p.ContentItem.Source,
			SourceAccount: p.ContentItem.SourceAccount,
			ItemName:      p.ContentItem.ItemName,
		})
	}
	return presets, nil
}

// ParseZone parses a /getZone payload.
func ParseZone(payload []byte) (*ZoneConfig, error) {
	var parsed zoneXML
	if err := xml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse zone: %w", err)
	}
	zone := &ZoneConfig{MasterMac: parsed.Master}
	for _, m := range parsed.Members {
		zone.Members = append(zone.Members, ZoneMember{
			IPAddress:  m.IPAddress,
			MacAddress: strings.TrimSpace(m.Mac),
		})
	}
	return zone, nil
}
