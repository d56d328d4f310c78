package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sita/sidang/app"
	"github.com/sita/sidang/core/journal"
	"github.com/sita/sidang/core/sidang"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run the scheduler once and commit the result",
	Long: `Places every eligible candidate and commits the schedule. When the
inputs cannot fit every candidate nothing is committed and the structured
failure is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withApp(func(a *app.App) error {
			res, err := a.Service.Generate(ctx, journal.SourceCLI)
			var failure *sidang.SchedulingFailure
			if errors.As(err, &failure) {
				_ = printJSON(cmd.ErrOrStderr(), failure)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Estimate how long the next run would take",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()
		return withApp(func(a *app.App) error {
			f, err := a.Service.Forecast(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), f)
		})
	},
}

func init() {
	rootCmd.AddCommand(generateCmd, forecastCmd)
}
