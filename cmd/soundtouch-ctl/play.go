package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/dlna"
)

var (
	flagTitle  string
	flagArtist string
	flagAlbum  string
	flagServer string
	flagPort   int
)

var playCmd = &cobra.Command{
	Use:   "play <url>",
	Short: "Stream a URL to the speaker over its renderer port.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		_, device, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		renderer := dlna.NewRenderer(dlna.NewClient(deviceTimeout()), device.IPAddress)
		meta := dlna.TrackMetadata{
			Title:  flagTitle,
			Artist: flagArtist,
			Album:  flagAlbum,
			URL:    args[0],
		}
		if meta.Title == "" {
			meta.Title = args[0]
		}
		if err := renderer.SetAVTransportURI(ctx, meta); err != nil {
			return err
		}
		return renderer.Play(ctx)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop renderer playback.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		_, device, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		renderer := dlna.NewRenderer(dlna.NewClient(deviceTimeout()), device.IPAddress)
		return renderer.Stop(ctx)
	},
}

var browseCmd = &cobra.Command{
	Use:   "browse [objectID]",
	Short: "List a media server folder over ContentDirectory.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		objectID := "0"
		if len(args) == 1 {
			objectID = args[0]
		}

		ctx, cancel := commandContext()
		defer cancel()
		directory := dlna.NewContentDirectory(dlna.NewClient(deviceTimeout()), flagServer, flagPort)
		result, err := directory.BrowseChildren(ctx, objectID)
		if err != nil {
			return err
		}

		for _, container := range result.Containers {
			fmt.Printf("%-12s [dir]  %s\n", container.ID, container.Title)
		}
		for _, track := range result.Tracks {
			fmt.Printf("%-12s %s - %s\n", track.ID, track.Artist, track.Title)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <criteria>",
	Short: "Search a media server using the UPnP search grammar.",
	Long:  `Example: soundtouch-ctl search 'dc:title contains "harvest"' --server 192.168.1.10`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		directory := dlna.NewContentDirectory(dlna.NewClient(deviceTimeout()), flagServer, flagPort)
		result, err := directory.Search(ctx, "0", args[0], 0)
		if err != nil {
			return err
		}

		for _, track := range result.Tracks {
			fmt.Printf("%-12s %s - %s\n", track.ID, track.Artist, track.Title)
		}
		fmt.Printf("%d of %d match(es)\n", len(result.Tracks), result.TotalMatches)
		return nil
	},
}

func init() {
	playCmd.Flags().StringVar(&flagTitle, "title", "", "track title for the renderer display")
	playCmd.Flags().StringVar(&flagArtist, "artist", "", "track artist")
	playCmd.Flags().StringVar(&flagAlbum, "album", "", "track album")

	for _, cmd := range []*cobra.Command{browseCmd, searchCmd} {
		cmd.Flags().StringVar(&flagServer, "server", "", "media server host")
		cmd.Flags().IntVar(&flagPort, "port", dlna.ContentDirectoryPort, "media server port")
		cmd.MarkFlagRequired("server")
	}

	rootCmd.AddCommand(playCmd, stopCmd, browseCmd, searchCmd)
}
