package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sita/sidang/app/plugins"
	"github.com/sita/sidang/config"
	"github.com/sita/sidang/internal/fixture"
)

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load settings, rooms, lecturers and candidates from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE:  seed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seed(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	fx, err := fixture.Load(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := plugins.NewStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	sum, err := fx.Apply(ctx, st)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), sum)
}
