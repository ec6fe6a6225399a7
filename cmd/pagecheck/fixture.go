package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahrdadan/pagecheck/internal/fixture"
	"github.com/ahrdadan/pagecheck/internal/observability"
)

func newFixtureCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Serve the local imitation search site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			logger := observability.NewStderrLogger(cfg.Logger)
			defer func() { _ = logger.Sync() }()

			site := fixture.New(fixture.Options{ResultsPerPage: cfg.Fixture.ResultsPerPage}, logger)
			baseURL, err := site.Start(cfg.Fixture.Addr())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), baseURL)

			<-cmd.Context().Done()
			logger.Info("shutting down fixture site")
			if err := site.Shutdown(); err != nil {
				logger.Warn("fixture shutdown failed", zap.Error(err))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("host", "", "listen host")
	f.Int("port", 0, "listen port")
	f.Int("results", 0, "results per search")
	mustBind(c.v, "fixture.host", f.Lookup("host"))
	mustBind(c.v, "fixture.port", f.Lookup("port"))
	mustBind(c.v, "fixture.results_per_page", f.Lookup("results"))
	return cmd
}
