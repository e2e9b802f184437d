package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/usecase"
)

var flagTokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <participant>",
	Short: "Issue a participant JWT signed with JWT_SECRET",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		token, err := usecase.NewTokenUsecase([]byte(cfg.JWTSecret)).Issue(args[0], flagTokenTTL)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)

		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&flagTokenTTL, "ttl", usecase.DefaultTokenTTL, "token lifetime")

	rootCmd.AddCommand(tokenCmd)
}
