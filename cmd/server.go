package cmd

import (
	"mixdown/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the mixdown engine server",
	Long:  `Runs the engine: document model, render scheduler, asset import and the HTTP/websocket control surface.`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
