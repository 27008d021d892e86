package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

func newBookCmd(opts *rootOptions) *cobra.Command {
	var req workflow.AppointmentRequest
	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Book a service appointment",
		Example: `  sdsbook book --phone 5145550100 --car "2022 Toyota RAV4" --service 01T6CLS8FZ \
    --date 2026-05-04T15:00:00 --transport attente`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := opts.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			out, err := components.Runner.Book(ctx, req)
			if err != nil {
				return workflow.AsFailure(err)
			}
			return printJSON(cmd, out)
		},
	}
	f := bookCmd.Flags()
	f.StringVarP(&req.Phone, "phone", "p", "", "customer phone number")
	f.StringVar(&req.Vehicle, "car", "", `vehicle as "YEAR MAKER MODEL"`)
	f.StringVar(&req.ServiceCode, "service", "", "service code (default from config)")
	f.StringVar(&req.DateTime, "date", "", fmt.Sprintf("appointment start as %s, portal local time", workflow.DateTimeLayout))
	f.StringVar(&req.Transport, "transport", "", "transport mode: "+strings.Join(workflow.Transports, ", "))
	for _, name := range []string{"phone", "car", "date"} {
		_ = bookCmd.MarkFlagRequired(name)
	}
	return bookCmd
}
