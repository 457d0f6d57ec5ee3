package dlna

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ContentDirectoryPort is the media server's default HTTP port.
	ContentDirectoryPort = 8200

	contentDirPath    = "/ctl/ContentDir"
	contentDirService = "urn:schemas-upnp-org:service:ContentDirectory:1"

	browsePageSize = 100

	// Recursion caps keep a runaway tree from turning one lookup into a
	// full library crawl.
	maxBrowseDepth   = 4
	maxBrowseBreadth = 8
)

// BrowseResult is one page of a ContentDirectory browse.
type BrowseResult struct {
	Containers     []Container
	Tracks         []Track
	NumberReturned int
	TotalMatches   int
}

// ContentDirectory browses one UPnP media server.
type ContentDirectory struct {
	client   *Client
	endpoint Endpoint
}

// NewContentDirectory binds a browser to the media server at host.
func NewContentDirectory(client *Client, host string, port int) *ContentDirectory {
	if port <= 0 {
		port = ContentDirectoryPort
	}
	return &ContentDirectory{
		client: client,
		endpoint: Endpoint{
			Host:        host,
			Port:        port,
			ControlPath: contentDirPath,
			ServiceType: contentDirService,
		},
	}
}

// Browse fetches one page of children (or metadata) for objectID.
// browseFlag is "BrowseDirectChildren" or "BrowseMetadata".
func (cd *ContentDirectory) Browse(ctx context.Context, objectID, browseFlag string, startingIndex int) (*BrowseResult, error) {
	payload, err := cd.client.Execute(ctx, cd.endpoint, "Browse", []Arg{
		{Name: "ObjectID", Value: objectID},
		{Name: "BrowseFlag", Value: browseFlag},
		{Name: "Filter", Value: "*"},
		{Name: "StartingIndex", Value: strconv.Itoa(startingIndex)},
		{Name: "RequestedCount", Value: strconv.Itoa(browsePageSize)},
		{Name: "SortCriteria", Value: ""},
	})
	if err != nil {
		return nil, err
	}

	resultText, numberReturned, totalMatches := parseBrowseResponse(payload)
	parsed, err := parseDIDL(resultText)
	if err != nil {
		return nil, fmt.Errorf("browse %s: %w", objectID, err)
	}

	return &BrowseResult{
		Containers:     parsed.Containers,
		Tracks:         parsed.Tracks,
		NumberReturned: numberReturned,
		TotalMatches:   totalMatches,
	}, nil
}

// BrowseChildren fetches every page of direct children for objectID.
func (cd *ContentDirectory) BrowseChildren(ctx context.Context, objectID string) (*BrowseResult, error) {
	combined := &BrowseResult{}
	for start := 0; ; {
		page, err := cd.Browse(ctx, objectID, "BrowseDirectChildren", start)
		if err != nil {
			return nil, err
		}
		combined.Containers = append(combined.Containers, page.Containers...)
		combined.Tracks = append(combined.Tracks, page.Tracks...)
		combined.NumberReturned += page.NumberReturned
		combined.TotalMatches = page.TotalMatches

		start += page.NumberReturned
		if page.NumberReturned == 0 || start >= page.TotalMatches {
			break
		}
	}
	return combined, nil
}

// Search runs a server-side query under containerID. criteria uses the UPnP
// search grammar, e.g. `dc:title contains "harvest"`. Not every server
// implements Search; callers should fall back to FindTracks on a 602 fault.
func (cd *ContentDirectory) Search(ctx context.Context, containerID, criteria string, startingIndex int) (*BrowseResult, error) {
	payload, err := cd.client.Execute(ctx, cd.endpoint, "Search", []Arg{
		{Name: "ContainerID", Value: containerID},
		{Name: "SearchCriteria", Value: criteria},
		{Name: "Filter", Value: "*"},
		{Name: "StartingIndex", Value: strconv.Itoa(startingIndex)},
		{Name: "RequestedCount", Value: strconv.Itoa(browsePageSize)},
		{Name: "SortCriteria", Value: ""},
	})
	if err != nil {
		return nil, err
	}

	resultText, numberReturned, totalMatches := parseBrowseResponse(payload)
	parsed, err := parseDIDL(resultText)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", containerID, err)
	}

	return &BrowseResult{
		Containers:     parsed.Containers,
		Tracks:         parsed.Tracks,
		NumberReturned: numberReturned,
		TotalMatches:   totalMatches,
	}, nil
}

// FindTracks walks the tree under rootID collecting audio items, bounded by
// the depth and breadth caps.
func (cd *ContentDirectory) FindTracks(ctx context.Context, rootID string) ([]Track, error) {
	var tracks []Track
	err := cd.findTracks(ctx, rootID, 0, &tracks)
	return tracks, err
}

func (cd *ContentDirectory) findTracks(ctx context.Context, objectID string, depth int, out *[]Track) error {
	if depth > maxBrowseDepth {
		return nil
	}
	result, err := cd.BrowseChildren(ctx, objectID)
	if err != nil {
		return err
	}
	for _, track := range result.Tracks {
		if track.IsAudio() {
			*out = append(*out, track)
		}
	}

	containers := result.Containers
	if len(containers) > maxBrowseBreadth {
		containers = containers[:maxBrowseBreadth]
	}
	for _, container := range containers {
		if err := cd.findTracks(ctx, container.ID, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// parseBrowseResponse pulls Result, NumberReturned and TotalMatches out of a
// Browse response by local name. The Result text comes back with one layer
// of XML escaping already removed by the decoder.
func parseBrowseResponse(payload []byte) (string, int, int) {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	var result string
	var numberReturned, totalMatches int

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
		case "Result":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				result = strings.TrimSpace(value)
			}
		case "NumberReturned":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				numberReturned, _ = strconv.Atoi(strings.TrimSpace(value))
			}
		case "TotalMatches":
			var value string
			if err := decoder.DecodeElement(&value, &se); err == nil {
				totalMatches, _ = strconv.Atoi(strings.TrimSpace(value))
			}
		}
	}

	return result, numberReturned, totalMatches
}
