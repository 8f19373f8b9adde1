package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"
)

var jsonOut bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's observed volume state",
	Long:  "Show the volume, mute and target state the daemon last observed.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := fetchState()
		if err != nil {
			return err
		}
		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printState(st)
		return nil
	},
}

func printState(st volumeState) {
	if !st.VolumeKnown {
		fmt.Println("volume: unknown (no successful read yet)")
		return
	}

	vol := fmt.Sprintf("%d%%", int(math.Round(st.Volume*100)))
	if st.MuteKnown && st.Muted {
		vol += " [muted]"
	}
	fmt.Println("volume:", vol)

	target := st.Target
	if st.TargetName != "" {
		target += " (" + st.TargetName + ")"
	}
	fmt.Println("target:", target)

	if st.Backend != "" {
		fmt.Println("backend:", st.Backend)
	}
	if !st.VolumeAt.IsZero() {
		fmt.Println("observed:", st.VolumeAt.Local().Format("15:04:05"))
	}
}

func init() {
	statusCmd.Flags().BoolVar(&jsonOut, "json", false, "print the raw state snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}
