package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/selectord/internal/app"
	"github.com/MrSnakeDoc/selectord/internal/config"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/scheduler"
	"github.com/MrSnakeDoc/selectord/internal/utils"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply a seed file once and exit",
	Long: `Apply every selector of a seed file to the configured store.

Selectors are matched by name: existing ones are updated, missing ones
are created. Selectors absent from the file are left untouched.

Examples:
  selectord seed --file ./selectors.yaml
  SELECTORD_STORE_DRIVER=sqlite SELECTORD_STORE_DSN=./selectord.db selectord seed -f seed.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if seedFile != "" {
			cfg.SeedFile = seedFile
		}
		if cfg.SeedFile == "" {
			return errors.New("no seed file: pass --file or set SELECTORD_SEED_FILE")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log := logger.New(cfg.LogLevel, cfg.PrettyLog)
		defer func() { _ = log.Sync() }()

		c, err := app.Build(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer utils.MustClose(c.Store, c.Store.Name()+" store", log)

		sr := scheduler.NewSeedReloader(cfg.SeedFile, c.Service, c.Store, log, c.Metrics, 0, false, nil)
		if err := sr.Reload(cmd.Context()); err != nil {
			return fmt.Errorf("seed %s: %w", cfg.SeedFile, err)
		}

		st := sr.Status()
		fmt.Printf("✅ applied %d selectors from %s\n", st.Selectors, st.File)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "seed file to apply (default: $SELECTORD_SEED_FILE)")
	rootCmd.AddCommand(seedCmd)
}
