package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sdsbook/internal/api"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

func newAvailabilityCmd(opts *rootOptions) *cobra.Command {
	var req workflow.AvailabilityRequest
	availabilityCmd := &cobra.Command{
		Use:     "availability",
		Short:   "List the free timeframes of the given days",
		Example: `  sdsbook availability --phone 5145550100 --days Monday,Tuesday --timeframe 14:00-16:00 --weeks 2`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := opts.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			res, err := components.Runner.Availability(ctx, req)
			if err != nil {
				return workflow.AsFailure(err)
			}
			return printJSON(cmd, api.ViewTimeframes(res.Timeframes))
		},
	}
	f := availabilityCmd.Flags()
	f.StringVarP(&req.Phone, "phone", "p", "", "customer phone number")
	f.StringSliceVar(&req.Days, "days", nil, "weekdays to read, e.g. Monday,Tuesday")
	f.StringVar(&req.Timeframe, "timeframe", "", "time range as HH:MM-HH:MM")
	f.IntVar(&req.Weeks, "weeks", 0, "number of weeks to read, starting with the current one (default from config)")
	f.BoolVar(&req.Persist, "persist", false, "store the grid read as the current availability snapshot")
	for _, name := range []string{"phone", "days", "timeframe"} {
		_ = availabilityCmd.MarkFlagRequired(name)
	}
	return availabilityCmd
}
