package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

// Flags shared by all subcommands.
var (
	socketPath string
	targetFlag string
)

var rootCmd = &cobra.Command{
	Use:   "volumectl [command]",
	Short: "Control the volumed daemon",
	Long: `volumectl sends volume requests to a running volumed daemon over its
Unix control socket. Bind it to multimedia keys or call it from scripts;
the daemon decides whether the request lands on an external display
(DDC/CI), the built-in output chain or the desktop scripting fallback.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath, "volumed IPC socket path")
	rootCmd.PersistentFlags().StringVar(&targetFlag, "target", "", `request target: "builtin" or "display" (default: daemon policy)`)
}

func main() {
	Execute()
}
