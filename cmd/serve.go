package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sdsbook/internal/observability"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			if cmd.Flags().Changed("addr") {
				opts.cfg.SetServerAddr(addr)
			}

			components, err := opts.components(ctx)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			logger.Info("Serving API.", zap.String("address", opts.cfg.Server().Addr))
			return components.APIServer(opts.cfg, logger).Start(ctx)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return serveCmd
}
