package cmd

import (
	"fmt"
	"log"

	"mixdown/auth"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret <passphrase>",
	Short: "Hash a control passphrase",
	Long:  `Prints the bcrypt hash of a control passphrase for the CONTROL_SECRET_HASH setting.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := auth.HashSecret(args[0])
		if err != nil {
			log.Fatalf("hash passphrase: %v", err)
		}
		fmt.Println(hash)
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}
