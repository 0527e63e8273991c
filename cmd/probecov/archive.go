package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/probecov/execdb"
	"github.com/chazu/probecov/tools"
)

func (a *app) archiveCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Accumulate execution data across runs in a database",
	}
	cmd.PersistentFlags().StringVar(&path, "db", "", "archive database (default from configuration)")
	open := func() (*execdb.Archive, error) {
		if path == "" {
			path = a.cfg.Path(a.cfg.Archive.Path)
		}
		return execdb.Open(path)
	}

	importCmd := &cobra.Command{
		Use:   "import [execfiles...]",
		Short: "Merge exec files into the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := a.loadExecFiles(args)
			if err != nil {
				return err
			}
			ar, err := open()
			if err != nil {
				return err
			}
			defer ar.Close()
			if err := ar.Import(cmd.Context(), loader.Sessions, loader.Executions); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Imported %d classes into %s.\n", loader.Executions.Len(), ar.Path())
			return nil
		},
	}

	var dest string
	var doAppend bool
	exportCmd := &cobra.Command{
		Use:   "export --dest file",
		Short: "Write the archive contents to an exec file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			ar, err := open()
			if err != nil {
				return err
			}
			defer ar.Close()
			loader := tools.NewExecFileLoader()
			if err := ar.Export(cmd.Context(), loader.Executions, loader.Sessions); err != nil {
				return err
			}
			if err := loader.SaveFile(dest, doAppend); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Exported %d classes to %s.\n", loader.Executions.Len(), dest)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&dest, "dest", "d", "", "exec file to write")
	exportCmd.Flags().BoolVar(&doAppend, "append", false, "append to an existing exec file")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all archived data",
		RunE: func(cmd *cobra.Command, args []string) error {
			ar, err := open()
			if err != nil {
				return err
			}
			defer ar.Close()
			return ar.Clear(cmd.Context())
		},
	}

	cmd.AddCommand(importCmd, exportCmd, clearCmd)
	return cmd
}
