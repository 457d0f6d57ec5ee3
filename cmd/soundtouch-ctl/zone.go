package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Hrzwahusa/Open-Soundtouch/internal/soundtouch"
	"github.com/Hrzwahusa/Open-Soundtouch/internal/zone"
)

var zoneCmd = &cobra.Command{
	Use:   "zone",
	Short: "Inspect and control multi-room zones.",
}

var zoneShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the zone the speaker belongs to.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, device, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		config, err := client.GetZone(ctx)
		if err != nil {
			return err
		}
		if config.MasterMac == "" {
			fmt.Printf("%s is not in a zone\n", device.Name)
			return nil
		}
		fmt.Printf("master: %s\n", config.MasterMac)
		for _, member := range config.Members {
			fmt.Printf("member: %s (%s)\n", member.MacAddress, member.IPAddress)
		}
		return nil
	},
}

var zoneCreateCmd = &cobra.Command{
	Use:   "create <slave> [slave...]",
	Short: "Group one or more slaves under the --device master.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(len(args)+1)*deviceTimeout())
		defer cancel()

		master, err := resolveTarget(ctx, flagDevice)
		if err != nil {
			return err
		}
		slaves := make([]soundtouch.Device, 0, len(args))
		for _, arg := range args {
			slave, err := resolveTarget(ctx, arg)
			if err != nil {
				return err
			}
			slaves = append(slaves, *slave)
		}

		manager := zone.NewManager(zone.DefaultControllerFactory(deviceTimeout()))
		if err := manager.CreateGroup(ctx, master.Name, *master, slaves); err != nil {
			return err
		}
		fmt.Printf("zone %s created with %d slave(s)\n", master.Name, len(slaves))
		return nil
	},
}

var zoneAddCmd = &cobra.Command{
	Use:   "add <slave>",
	Short: "Add a slave to the --device master's zone.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, master, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		slave, err := resolveTarget(ctx, args[0])
		if err != nil {
			return err
		}
		return client.AddZoneSlave(ctx, master.MacAddress, soundtouch.ZoneMember{
			IPAddress:  slave.IPAddress,
			MacAddress: slave.MacAddress,
		})
	},
}

var zoneRemoveCmd = &cobra.Command{
	Use:   "remove <slave>",
	Short: "Remove a slave from the --device master's zone.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, master, err := resolveClient(ctx)
		if err != nil {
			return err
		}
		slave, err := resolveTarget(ctx, args[0])
		if err != nil {
			return err
		}
		return client.RemoveZoneSlave(ctx, master.MacAddress, slave.MacAddress)
	},
}

var zoneDisbandCmd = &cobra.Command{
	Use:   "disband",
	Short: "Release every slave from the --device master's zone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		client, master, err := resolveClient(ctx)
		if err != nil {
			return err
		}

		config, err := client.GetZone(ctx)
		if err != nil {
			return err
		}
		for _, member := range config.Members {
			if member.MacAddress == master.MacAddress {
				continue
			}
			if err := client.RemoveZoneSlave(ctx, master.MacAddress, member.MacAddress); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	zoneCmd.AddCommand(zoneShowCmd, zoneCreateCmd, zoneAddCmd, zoneRemoveCmd, zoneDisbandCmd)
	rootCmd.AddCommand(zoneCmd)
}
