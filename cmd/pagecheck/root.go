package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrdadan/pagecheck/internal/config"
)

// cli carries what every subcommand shares.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func (c *cli) load() (*config.Config, error) {
	return config.Load(c.v, c.cfgFile)
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "End-to-end browser checks for a search page",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&c.cfgFile, "config", "c", "", "config file (default ./pagecheck.yaml)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("nats-url", "", "NATS server URL")
	mustBind(c.v, "logger.level", pf.Lookup("log-level"))
	mustBind(c.v, "nats.url", pf.Lookup("nats-url"))

	root.AddCommand(
		newRunCmd(c),
		newFixtureCmd(c),
		newWatchCmd(c),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", config.AppName, config.Version)
		},
	}
}
