package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/probecov/config"
)

var log = commonlog.GetLogger("probecov.cli")

// app is the state shared by every command of one invocation.
type app struct {
	out       io.Writer
	verbosity int
	dir       string
	cfg       *config.Config
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:   "probecov",
		Short: "Edge coverage for class files",
		Long: `probecov adds probes to compiled classes, collects the probe arrays
recorded while they run and turns them into coverage counters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			commonlog.Configure(a.verbosity, nil)
			return a.loadConfig()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", "", "directory to search for "+config.FileName)

	root.AddCommand(
		a.instrumentCmd(),
		a.mergeCmd(),
		a.infoCmd(),
		a.analyzeCmd(),
		a.archiveCmd(),
	)
	return root
}

func (a *app) loadConfig() error {
	dir := a.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dir = wd
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default(dir)
		log.Debugf("no %s found, using defaults", config.FileName)
	} else {
		log.Infof("using %s in %s", config.FileName, cfg.Dir)
	}
	a.cfg = cfg
	return nil
}

// paths returns args, or the configured paths when args is empty.
func (a *app) paths(args, configured []string) []string {
	if len(args) > 0 {
		return args
	}
	return a.cfg.Paths(configured)
}
