// soundtouch-ctl drives speakers from the command line: discovery, transport
// keys, volume, zones and direct stream playback.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/apperrors"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/discovery"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
)

var (
	flagDevice    string
	flagNetwork   string
	flagTimeoutMs int
)

var rootCmd = &cobra.Command{
	Use:           "soundtouch-ctl",
	Short:         "Control SoundTouch speakers on the local network.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "target device IP address or name")
	rootCmd.PersistentFlags().StringVar(&flagNetwork, "network", "", "/24 prefix to scan (default: autodetect)")
	rootCmd.PersistentFlags().IntVar(&flagTimeoutMs, "timeout-ms", 5000, "per-request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		code := apperrors.Classify(err)
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", code, err)
		os.Exit(apperrors.ExitCode(code))
	}
}

func deviceTimeout() time.Duration {
	return time.Duration(flagTimeoutMs) * time.Millisecond
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), deviceTimeout()+time.Second)
}

// resolveTarget turns an IP address or device name into a probed device.
// Literal IPs are probed directly; names go through a network sweep.
func resolveTarget(ctx context.Context, target string) (*soundtouch.Device, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: --device is required", apperrors.ErrValidation)
	}
	if net.ParseIP(target) != nil {
		client := soundtouch.NewClient(target, deviceTimeout())
		return client.GetInfo(ctx)
	}

	scanner := discovery.NewScanner(discovery.DefaultConcurrency)
	scanCtx, cancel := context.WithTimeout(context.Background(), discovery.DefaultScanTimeout)
	defer cancel()
	devices, err := scanner.Scan(scanCtx, flagNetwork, discovery.DefaultScanTimeout)
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if device.Name == target || device.Key() == target {
			found := device
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrDeviceNotFound, target)
}

func resolveClient(ctx context.Context) (*soundtouch.Client, *soundtouch.Device, error) {
	device, err := resolveTarget(ctx, flagDevice)
	if err != nil {
		return nil, nil, err
	}
	return soundtouch.NewClient(device.IPAddress, deviceTimeout()), device, nil
}
