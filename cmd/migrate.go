package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/infra/adapters/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <command> [args]",
	Short: "Run database migrations (goose commands: up, down, status, version, ...)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("could not load config: %w", err)
		}

		db, err := postgres.NewPostgres(cmd.Context(), cfg.Postgres.DSN())
		if err != nil {
			return err
		}
		defer db.Close()

		return postgres.Goose(cmd.Context(), db, args[0], args[1:]...)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
