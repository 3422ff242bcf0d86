// Command vsyncd runs the versioned file sync server. Its command
// structure is grounded on cuemby-warren's spf13/cobra root command,
// replacing the flag-based parsing of the teacher's older
// cmd/registry/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vsyncd",
		Short: "Versioned file synchronization server",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}
