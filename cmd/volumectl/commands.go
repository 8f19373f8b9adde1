package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// fineFlag shrinks a step to a quarter. Shared by up and down; only one
// of them runs per invocation.
var fineFlag bool

func stepDivisor() int {
	if fineFlag {
		return 4
	}
	return 0
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Step the volume up",
	Long:  "Step the volume up by 1/16 of full scale (1/64 with --fine).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRequest("volume_step", stepData{Steps: 1, Divisor: stepDivisor(), Target: targetFlag})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Step the volume down",
	Long:  "Step the volume down by 1/16 of full scale (1/64 with --fine).",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRequest("volume_step", stepData{Steps: -1, Divisor: stepDivisor(), Target: targetFlag})
	},
}

var setCmd = &cobra.Command{
	Use:   "set <percent>",
	Short: "Set the volume to an absolute level",
	Long:  "Set the volume to an absolute level in percent, 0 to 100.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pct, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
		if err != nil || pct < 0 || pct > 100 {
			return fmt.Errorf("percent must be an integer between 0 and 100, got %q", args[0])
		}
		return sendRequest("set_volume_absolute", setData{
			Value:  float64(pct) / 100.0,
			Target: targetFlag,
			Origin: "cli",
		})
	},
}

var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Toggle mute",
	Long:  "Toggle mute on the current target. Unmuting restores the previous level.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRequest("toggle_mute", muteData{Target: targetFlag})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read volume state from the hardware",
	Long:  "Ask the daemon to re-read the current target's volume and mute state.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendRequest("refresh_state", nil)
	},
}

func init() {
	upCmd.Flags().BoolVar(&fineFlag, "fine", false, "use quarter-size steps")
	downCmd.Flags().BoolVar(&fineFlag, "fine", false, "use quarter-size steps")

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(muteCmd)
	rootCmd.AddCommand(refreshCmd)
}
