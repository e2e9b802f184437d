package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paircall",
	Short: "PairCall is a peer-to-peer video call rendezvous service.",
	Long: `PairCall pairs two clients by a short room key. The server stores offers, answers,
ICE candidates and chat messages; media flows directly between the peers.`,
	Run: func(cmd *cobra.Command, args []string) {
		runApp()
	},
}

func Execute() {
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
