package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/tools"
)

func (a *app) loadExecFiles(args []string) (*tools.ExecFileLoader, error) {
	loader := tools.NewExecFileLoader()
	if err := loader.LoadAll(a.paths(args, a.cfg.Exec.Files)...); err != nil {
		return nil, err
	}
	return loader, nil
}

func (a *app) mergeCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "merge [execfiles...] --dest file",
		Short: "Merge exec files into one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			loader, err := a.loadExecFiles(args)
			if err != nil {
				return err
			}
			if err := loader.SaveFile(dest, false); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Merged %d sessions and %d classes into %s.\n",
				len(loader.Sessions.Infos()), loader.Executions.Len(), dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "merged exec file")
	return cmd
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info [execfiles...]",
		Short: "Print the sessions and classes recorded in exec files",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := a.loadExecFiles(args)
			if err != nil {
				return err
			}
			w := &infoWriter{out: a.out}
			if err := loader.Sessions.Accept(w); err != nil {
				return err
			}
			return loader.Executions.Accept(w)
		},
	}
}

// infoWriter prints exec file contents as they are visited.
type infoWriter struct {
	out     io.Writer
	classes bool
}

func (w *infoWriter) VisitSessionInfo(s data.SessionInfo) error {
	fmt.Fprintf(w.out, "Session %q: %s - %s\n", s.ID,
		s.StartTime().UTC().Format(time.RFC3339), s.DumpTime().UTC().Format(time.RFC3339))
	return nil
}

func (w *infoWriter) VisitClassExecution(d *data.ExecutionData) error {
	if !w.classes {
		fmt.Fprintf(w.out, "%-16s %5s %5s %s\n", "CLASS ID", "HITS", "PROBES", "NAME")
		w.classes = true
	}
	hits := 0
	for _, p := range d.Probes {
		if p {
			hits++
		}
	}
	fmt.Fprintf(w.out, "%016x %5d %5d %s\n", d.ID, hits, len(d.Probes), d.Name)
	return nil
}
