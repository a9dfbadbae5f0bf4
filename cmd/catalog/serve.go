package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/catalog-janitor/internal/httpapi"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve batch jobs, runs and reports over HTTP",
		Long: `Start the HTTP API and the Prometheus /metrics endpoint.

Batch requests are processed one at a time. Other processes using the same
database are kept out by the store's batch lock.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			eng, err := a.engine()
			if err != nil {
				return err
			}

			srv := httpapi.New(eng, a.store, a.metrics, a.registry)
			return srv.Run(ctx, a.cfg.Server.Addr)
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
