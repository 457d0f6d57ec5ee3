package dlna

import "context"

const (
	// RendererPort is the AVTransport port the speakers expose.
	RendererPort = 8091

	avTransportPath    = "/AVTransport/Control"
	avTransportService = "urn:schemas-upnp-org:service:AVTransport:1"
)

// Renderer drives one speaker's AVTransport service.
type Renderer struct {
	client   *Client
	endpoint Endpoint
}

// NewRenderer binds a renderer client to the speaker at ip.
func NewRenderer(client *Client, ip string) *Renderer {
	return &Renderer{
		client: client,
		endpoint: Endpoint{
			Host:        ip,
			Port:        RendererPort,
			ControlPath: avTransportPath,
			ServiceType: avTransportService,
		},
	}
}

// SetAVTransportURI loads the track URL plus its DIDL metadata without
// starting playback.
func (r *Renderer) SetAVTransportURI(ctx context.Context, meta TrackMetadata) error {
	_, err := r.client.Execute(ctx, r.endpoint, "SetAVTransportURI", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "CurrentURI", Value: meta.URL},
		{Name: "CurrentURIMetaData", Value: BuildDIDLMetadata(meta)},
	})
	return err
}

// Play starts playback of the loaded URI.
func (r *Renderer) Play(ctx context.Context) error {
	_, err := r.client.Execute(ctx, r.endpoint, "Play", []Arg{
		{Name: "InstanceID", Value: "0"},
		{Name: "Speed", Value: "1"},
	})
	return err
}

// Stop halts playback.
func (r *Renderer) Stop(ctx context.Context) error {
	_, err := r.client.Execute(ctx, r.endpoint, "Stop", []Arg{
		{Name: "InstanceID", Value: "0"},
	})
	return err
}
