package cmd

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/sdsbook/internal/observability"
	"github.com/xkilldash9x/sdsbook/internal/workflow"
)

// lookupOutput is the outcome of one phone number's lookup.
type lookupOutput struct {
	Phone  string                 `json:"telephone"`
	Result *workflow.LookupResult `json:"result,omitempty"`
	Error  *workflow.Failure      `json:"failure,omitempty"`
}

func newLookupCmd(opts *rootOptions) *cobra.Command {
	var (
		phones []string
		car    string
		tier   string
	)
	lookupCmd := &cobra.Command{
		Use:   "lookup",
		Short: "Look up the vehicles of one or more customers by phone number",
		Example: `  sdsbook lookup --phone 514-555-0100
  sdsbook lookup --phone 5145550100 --car "2022 Toyota RAV4"
  sdsbook lookup --phone 5145550100 --phone 4385550199`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			components, err := opts.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			outputs := make([]lookupOutput, len(phones))
			var (
				mu     sync.Mutex
				failed int
			)
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(opts.cfg.Browser().MaxSessions)
			for i, p := range phones {
				g.Go(func() error {
					res, err := components.Runner.Lookup(gctx, workflow.LookupRequest{Phone: p, Car: car, Tier: tier})
					out := lookupOutput{Phone: p, Result: res}
					if err != nil {
						out.Error = workflow.AsFailure(err)
						mu.Lock()
						failed++
						mu.Unlock()
						logger.Warn("Lookup failed.", zap.String("phone", p), zap.String("error", out.Error.Kind))
					}
					outputs[i] = out
					return nil
				})
			}
			_ = g.Wait()

			if len(outputs) == 1 {
				if outputs[0].Error != nil {
					return outputs[0].Error
				}
				return printJSON(cmd, outputs[0].Result)
			}
			if err := printJSON(cmd, outputs); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", failed, len(outputs))
			}
			return nil
		},
	}
	lookupCmd.Flags().StringSliceVarP(&phones, "phone", "p", nil, "customer phone number (repeatable)")
	lookupCmd.Flags().StringVar(&car, "car", "", `vehicle to select among several, as "YEAR MAKER MODEL"`)
	lookupCmd.Flags().StringVar(&tier, "tier", "", "service tier whose services are added to each vehicle")
	_ = lookupCmd.MarkFlagRequired("phone")
	return lookupCmd
}
