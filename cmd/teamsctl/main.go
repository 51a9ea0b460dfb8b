// Command teamsctl is the CLI surface for the leader-side coordination
// kernel. It dispatches through github.com/spf13/cobra.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ytnobody/teamsctl/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "teamsctl",
	Short: "Coordinate a team of autonomous coding agents",
}

func main() {
	logging.Init(logging.Config{Level: logging.LevelInfo})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
