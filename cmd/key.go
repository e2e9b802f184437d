package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qrave1/PairCall/internal/domain/pairing"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Print a fresh pairing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := pairing.NewGenerator(nil).Key()
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), key)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyCmd)
}
