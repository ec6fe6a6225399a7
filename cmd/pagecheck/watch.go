package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ahrdadan/pagecheck/internal/observability"
	"github.com/ahrdadan/pagecheck/internal/report"
	"github.com/ahrdadan/pagecheck/internal/watch"
)

func newWatchCmd(c *cli) *cobra.Command {
	var opts watch.Options

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print run events published to NATS JetStream as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			logger := observability.NewStderrLogger(cfg.Logger)
			defer func() { _ = logger.Sync() }()

			w, err := watch.New(cmd.Context(), cfg.NATS, opts, logger)
			if err != nil {
				return err
			}
			defer w.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			return w.Run(cmd.Context(), func(e report.Event) error {
				return enc.Encode(e)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.RunID, "run-id", "", "only events of this run")
	f.StringVar(&opts.Consumer, "consumer", watch.DefaultConsumer, "durable consumer name")
	f.BoolVar(&opts.NewOnly, "new", false, "skip events already in the stream")
	f.BoolVar(&opts.UntilFinished, "until-finished", false, "exit when the --run-id run finishes")
	return cmd
}
