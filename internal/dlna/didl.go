package dlna

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"mime"
	"path/filepath"
	"strings"
)

// Container is one DIDL-Lite container (a browsable folder).
type Container struct {
	ID         string
	ParentID   string
	Title      string
	ChildCount int
}

// Track is one DIDL-Lite audio item.
type Track struct {
	ID       string
	ParentID string
	Title    string
	Artist   string
	Album    string
	Class    string
	URL      string
	Duration string
}

// IsAudio reports whether the item's class marks it as audio.
func (t Track) IsAudio() bool {
	return strings.Contains(t.Class, "audioItem")
}

// didl holds one parsed DIDL-Lite document.
type didl struct {
	Containers []Container
	Tracks     []Track
}

// parseDIDL decodes a DIDL-Lite document. Matching is by local name only:
// servers disagree on namespace prefixes. A second HTML unescape handles
// servers that double-encode entities inside the Result blob.
func parseDIDL(payload string) (*didl, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return &didl{}, nil
	}
	if !strings.HasPrefix(payload, "<") {
		payload = html.UnescapeString(payload)
	}

	decoder := xml.NewDecoder(bytes.NewReader([]byte(payload)))
	result := &didl{}

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "container":
			var raw didlContainerXML
			if err := decoder.DecodeElement(&raw, &se); err != nil {
				continue
			}
			result.Containers = append(result.Containers, Container{
				ID:         raw.ID,
				ParentID:   raw.ParentID,
				Title:      raw.Title,
				ChildCount: raw.ChildCount,
			})
		case "item":
			var raw didlItemXML
			if err := decoder.DecodeElement(&raw, &se); err != nil {
				continue
			}
			track := Track{
				ID:       raw.ID,
				ParentID: raw.ParentID,
				Title:    raw.Title,
				Artist:   firstOf(raw.Artist, raw.Creator),
				Album:    raw.Album,
				Class:    raw.Class,
			}
			if len(raw.Resources) > 0 {
				track.URL = strings.TrimSpace(raw.Resources[0].URL)
				track.Duration = raw.Resources[0].Duration
			}
			result.Tracks = append(result.Tracks, track)
		}
	}

	return result, nil
}

type didlContainerXML struct {
	ID         string `xml:"id,attr"`
	ParentID   string `xml:"parentID,attr"`
	ChildCount int    `xml:"childCount,attr"`
	Title      string `xml:"title"`
}

type didlItemXML struct {
	ID        string `xml:"id,attr"`
	ParentID  string `xml:"parentID,attr"`
	Title     string `xml:"title"`
	Creator   string `xml:"creator"`
	Artist    string `xml:"artist"`
	Album     string `xml:"album"`
	Class     string `xml:"class"`
	Resources []struct {
		Duration string `xml:"duration,attr"`
		URL      string `xml:",chardata"`
	} `xml:"res"`
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// TrackMetadata describes the track a renderer is asked to play.
type TrackMetadata struct {
	Title  string
	Artist string
	Album  string
	URL    string
}

// BuildDIDLMetadata renders the metadata document for SetAVTransportURI.
// The caller embeds it as a SOAP argument, where it gets escaped a second
// time; renderers expect exactly that double encoding.
func BuildDIDLMetadata(meta TrackMetadata) string {
	var buf strings.Builder
	buf.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/"`)
	buf.WriteString(` xmlns:dc="http://purl.org/dc/elements/1.1/"`)
	buf.WriteString(` xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`)
	buf.WriteString(`<item id="0" parentID="-1" restricted="1">`)
	fmt.Fprintf(&buf, "<dc:title>%s</dc:title>", escapeXML(meta.Title))
	if meta.Artist != "" {
		fmt.Fprintf(&buf, "<dc:creator>%s</dc:creator>", escapeXML(meta.Artist))
		fmt.Fprintf(&buf, `<upnp:artist role="Performer">%s</upnp:artist>`, escapeXML(meta.Artist))
	}
	if meta.Album != "" {
		fmt.Fprintf(&buf, "<upnp:album>%s</upnp:album>", escapeXML(meta.Album))
	}
	buf.WriteString("<upnp:class>object.item.audioItem.musicTrack</upnp:class>")
	fmt.Fprintf(&buf, `<res protocolInfo="%s">%s</res>`, protocolInfoFor(meta.URL), escapeXML(meta.URL))
	buf.WriteString("</item></DIDL-Lite>")
	return buf.String()
}

// protocolInfoFor derives the http-get protocolInfo quad from the URL's
// extension. Unknown extensions fall back to audio/mpeg, which most
// renderers accept for anything they can actually decode.
func protocolInfoFor(url string) string {
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(url)))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	if !strings.HasPrefix(contentType, "audio/") {
		contentType = "audio/mpeg"
	}
	return fmt.Sprintf("http-get:*:%s:*", contentType)
}
