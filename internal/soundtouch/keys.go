package soundtouch

import (
	"sort"
	"strings"
)

// keyCodes maps friendly key names onto the codes the /key endpoint expects.
type keyCode = string

var keyCodes = map[string]keyCode{
	"power":       "POWER",
	"play":        "PLAY",
	"pause":       "PAUSE",
	"stop":        "STOP",
	"next":        "NEXT_TRACK",
	"next_track":  "NEXT_TRACK",
	"previous":    "PREV_TRACK",
	"prev":        "PREV_TRACK",
	"prev_track":  "PREV_TRACK",
	"mute":        "MUTE",
	"volume_up":   "VOLUME_UP",
	"vol_up":      "VOLUME_UP",
	"volume_down": "VOLUME_DOWN",
	"vol_down":    "VOLUME_DOWN",
	"preset1":     "PRESET_1",
	"preset2":     "PRESET_2",
	"preset3":     "PRESET_3",
	"preset4":     "PRESET_4",
	"preset5":     "PRESET_5",
	"preset6":     "PRESET_6",
	"preset_1":    "PRESET_1",
	"preset_2":    "PRESET_2",
	"preset_3":    "PRESET_3",
	"preset_4":    "PRESET_4",
	"preset_5":    "PRESET_5",
	"preset_6":    "PRESET_6",
	"thumbsup":    "THUMBS_UP",
	"thumbsdown":  "THUMBS_DOWN",
}

// ResolveKey maps a friendly key name onto its device key code. Already-valid
// codes (e.g. "NEXT_TRACK") pass through unchanged.
func ResolveKey(name string) (string, bool) {
	if code, ok := keyCodes[strings.ToLower(name)]; ok {
		return code, true
	}
	for _, code := range keyCodes {
		if code == name {
			return name, true
		}
	}
	return "", false
}

// AvailableKeys returns the sorted list of friendly key names.
func AvailableKeys() []string {
	names := make([]string, 0, len(keyCodes))
	for name := range keyCodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
