package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/apperrors"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/discovery"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Sweep the local network for speakers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner(discovery.DefaultConcurrency)
		ctx, cancel := context.WithTimeout(context.Background(), discovery.DefaultScanTimeout+time.Second)
		defer cancel()

		devices, err := scanner.Scan(ctx, flagNetwork, discovery.DefaultScanTimeout)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("no speakers found")
			return nil
		}
		for _, device := range devices {
			fmt.Printf("%-20s %-15s %-12s %s\n", device.Name, device.IPAddress, device.MacAddress, device.DeviceType)
		}
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <name>",
	Short: "Press a remote key (play, pause, power, preset_1...).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, ok := soundtouch.ResolveKey(args[0])
		if !ok {
			return fmt.Errorf("%w: unknown key %q (known: %s)",
				apperrors.ErrValidation, args[0], strings.Join(soundtouch.AvailableKeys(), ", "))
		}

		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		return client.SendKey(ctx, code)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the speaker is playing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, device, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		status, err := client.GetNowPlaying(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", device.Name, device.IPAddress)
		fmt.Printf("  state:  %s\n", status.PlayState)
		fmt.Printf("  source: %s\n", status.Source)
		if status.Track != "" {
			fmt.Printf("  track:  %s\n", status.Track)
			fmt.Printf("  artist: %s\n", status.Artist)
			fmt.Printf("  album:  %s\n", status.Album)
		}
		if status.StationName != "" {
			fmt.Printf("  station: %s\n", status.StationName)
		}
		if status.DurationMs > 0 {
			fmt.Printf("  position: %s / %s\n",
				(time.Duration(status.PositionMs) * time.Millisecond).Round(time.Second),
				(time.Duration(status.DurationMs) * time.Millisecond).Round(time.Second))
		}
		return nil
	},
}

var volumeCmd = &cobra.Command{
	Use:   "volume [level]",
	Short: "Get or set the volume (0-100).",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			volume, err := client.GetVolume(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("volume %d (target %d, muted %v)\n", volume.ActualVolume, volume.TargetVolume, volume.Muted)
			return nil
		}

		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: volume must be a number", apperrors.ErrValidation)
		}
		return client.SetVolume(ctx, level, false)
	},
}

var bassCmd = &cobra.Command{
	Use:   "bass [level]",
	Short: "Get or set the bass level.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			bass, err := client.GetBass(ctx)
			if err != nil {
				return err
			}
			caps, err := client.GetBassCapabilities(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("bass %d (range %d..%d)\n", bass.ActualBass, caps.Min, caps.Max)
			return nil
		}

		level, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: bass must be a number", apperrors.ErrValidation)
		}
		return client.SetBass(ctx, level)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the speaker's six preset slots.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		presets, err := client.GetPresets(ctx)
		if err != nil {
			return err
		}
		if len(presets) == 0 {
			fmt.Println("no presets stored")
			return nil
		}
		for _, preset := range presets {
			fmt.Printf("%s: %s (%s)\n", preset.ID, preset.ItemName, preset.Source)
		}
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available playback sources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		sources, err := client.GetSources(ctx)
		if err != nil {
			return err
		}
		for _, source := range sources {
			fmt.Printf("%-15s %-12s %s\n", source.Source, source.Status, source.Name)
		}
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <new-name>",
	Short: "Rename the speaker.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		return client.SetDeviceName(ctx, args[0])
	},
}

var surveyCmd = &cobra.Command{
	Use:   "survey",
	Short: "List wireless networks the speaker can see.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		networks, err := client.PerformSiteSurvey(ctx)
		if err != nil {
			return err
		}
		for _, network := range networks {
			fmt.Printf("%-30s %-10s %s\n", network.SSID, network.SecurityType, network.SignalStrength)
		}
		return nil
	},
}

var provisionCmd = &cobra.Command{
	Use:   "provision <ssid>",
	Short: "Move the speaker onto a wireless network.",
	Long: `Pushes a wireless profile to a speaker in setup mode, leaves setup
state and taps power so the speaker joins the new network.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		security, _ := cmd.Flags().GetString("security")
		timeoutSecs, _ := cmd.Flags().GetInt("join-timeout")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs+30)*time.Second)
		defer cancel()
		client, _, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		return client.ProvisionWireless(ctx, args[0], password, security, timeoutSecs)
	},
}

func init() {
	provisionCmd.Flags().String("password", "", "network password (omit for open networks)")
	provisionCmd.Flags().String("security", soundtouch.SecurityWPAOrWPA2, "security type (open, wep, wpa, wpa2)")
	provisionCmd.Flags().Int("join-timeout", 30, "seconds the speaker gets to join")

	rootCmd.AddCommand(discoverCmd, keyCmd, statusCmd, volumeCmd, bassCmd,
		presetsCmd, sourcesCmd, renameCmd, surveyCmd, provisionCmd)
}
