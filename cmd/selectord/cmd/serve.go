package cmd

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/selectord/internal/app"
	"github.com/MrSnakeDoc/selectord/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP API",
	Long: `Start the selectord admin API.

The storage backend is chosen with SELECTORD_STORE_DRIVER
(memory, redis, sqlite, postgres, mysql). When SELECTORD_SEED_FILE is set
the file is applied at startup and reloaded on change or on demand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg := config.Load()

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	return a.Run()
}
