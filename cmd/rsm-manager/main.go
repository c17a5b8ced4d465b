package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rsm-manager",
	Short: "RSM Agent management client",
	Long: `rsm-manager talks to the RSM Agent background service over its local
channel: query status, edit the app catalog, launch apps, and change the
remote listener configuration without restarting the service.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
