package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chazu/probecov/analysis"
	"github.com/chazu/probecov/instr"
)

func (a *app) instrumentCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "instrument [paths...] --dest dir",
		Short: "Add probes to class files",
		Long: `Instrument copies every class file found below the given paths (or the
configured class directories) to the destination directory, adding probes on
the way. Other files are copied unchanged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				return fmt.Errorf("--dest is required")
			}
			n, err := instrumentPaths(instr.NewInstrumenter(), a.paths(args, a.cfg.Analysis.Classes), dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%d classes instrumented.\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination directory")
	return cmd
}

func instrumentPaths(in *instr.Instrumenter, paths []string, dest string) (int, error) {
	count := 0
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return count, err
		}
		base := root
		if !info.IsDir() {
			base = filepath.Dir(root)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			ok, err := instrumentFile(in, path, filepath.Join(dest, rel))
			if ok {
				count++
			}
			return err
		})
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func instrumentFile(in *instr.Instrumenter, src, dst string) (bool, error) {
	b, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	isClass := analysis.DetectContent(b) == analysis.ContentClass
	if isClass {
		if b, err = in.Instrument(b, src); err != nil {
			return false, err
		}
		log.Debugf("instrumented %s", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, err
	}
	return isClass, os.WriteFile(dst, b, 0o644)
}
