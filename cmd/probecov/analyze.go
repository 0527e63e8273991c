package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chazu/probecov/analysis"
	"github.com/chazu/probecov/analysis/filter"
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/execdb"
	"github.com/chazu/probecov/selection"
	"github.com/chazu/probecov/summary"
	"github.com/chazu/probecov/tools"
)

type analyzeOptions struct {
	execFiles   []string
	fromArchive bool
	selection   string
	diff        string
	filters     []string
	methods     bool
	lines       bool
	summary     string
	compare     string
}

func (a *app) analyzeCmd() *cobra.Command {
	var o analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [classpaths...]",
		Short: "Report coverage of classes against recorded execution data",
		Long: `Analyze matches the classes found below the given paths (directories, zip
and gzip archives, or the configured class directories) with the probes
recorded in exec files and prints their coverage counters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.analyze(cmd.Context(), args, &o)
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&o.execFiles, "exec", "e", nil, "exec files to read (default from configuration)")
	f.BoolVar(&o.fromArchive, "from-archive", false, "also read execution data from the archive")
	f.StringVar(&o.selection, "selection", "", "file listing Class#method entries to report")
	f.StringVar(&o.diff, "diff", "", "unified diff; only methods touching changed lines are reported")
	f.StringSliceVar(&o.filters, "filters", nil, "filters to apply (synthetic, finally, switch-trampoline)")
	f.BoolVarP(&o.methods, "methods", "m", false, "list methods")
	f.BoolVarP(&o.lines, "lines", "l", false, "print annotated sources")
	f.StringVar(&o.summary, "summary", "", "write a summary snapshot to this file")
	f.StringVar(&o.compare, "compare", "", "compare against a previous summary snapshot")
	return cmd
}

func (a *app) analyze(ctx context.Context, args []string, o *analyzeOptions) error {
	cfg := a.cfg
	names := o.filters
	if names == nil {
		names = cfg.Analysis.Filters
	}
	flt, err := filter.Named(names...)
	if err != nil {
		return err
	}

	loader := tools.NewExecFileLoader()
	execFiles := o.execFiles
	if len(execFiles) == 0 && !o.fromArchive {
		execFiles = cfg.Paths(cfg.Exec.Files)
	}
	if err := loader.LoadAll(execFiles...); err != nil {
		return err
	}
	if o.fromArchive {
		ar, err := execdb.Open(cfg.Path(cfg.Archive.Path))
		if err != nil {
			return err
		}
		defer ar.Close()
		if err := ar.Export(ctx, loader.Executions, loader.Sessions); err != nil {
			return err
		}
	}

	classPaths := a.paths(args, cfg.Analysis.Classes)
	builder := analysis.NewCoverageBuilder()
	an := analysis.NewAnalyzer(loader.Executions, builder)
	an.MaxDepth = cfg.Analysis.MaxDepth
	an.Filter = flt

	if an.Selection, err = a.methodSelection(o, classPaths); err != nil {
		return err
	}

	count := 0
	for _, p := range classPaths {
		n, err := an.AnalyzeAllPath(p)
		count += n
		if err != nil {
			return err
		}
	}
	log.Infof("analyzed %d classes", count)

	report := &textReport{out: a.out, methods: o.methods}
	if err := report.VisitInfo(loader.Sessions.Infos(), loader.Executions.Contents()); err != nil {
		return err
	}
	bundle := builder.Bundle(cfg.Analysis.Name)
	report.writeBundle(bundle)
	for _, c := range builder.NoMatchClasses() {
		fmt.Fprintf(a.out, "warning: execution data does not match class %s\n", c.Name())
	}
	if o.lines {
		var locators []analysis.SourceLocator
		for _, dir := range cfg.Paths(cfg.Analysis.Sources) {
			locators = append(locators, analysis.NewDirectorySourceLocator(dir, cfg.Analysis.TabWidth))
		}
		if err := report.writeSources(bundle, locators); err != nil {
			return err
		}
	}

	snap := summary.FromBundle(bundle)
	out := o.summary
	if out == "" {
		out = cfg.Path(cfg.Summary.Output)
	}
	if o.compare != "" {
		old, err := summary.ReadFile(o.compare)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out)
		for _, d := range summary.Compare(old, snap) {
			fmt.Fprintln(a.out, d)
		}
	}
	if out != "" {
		if err := summary.WriteFile(out, snap); err != nil {
			return err
		}
		log.Infof("wrote summary to %s", out)
	}
	return nil
}

// methodSelection builds the selection from an explicit list or a diff.
// The diff needs the classes themselves to map changed lines to methods.
func (a *app) methodSelection(o *analyzeOptions, classPaths []string) (analysis.MethodSelection, error) {
	selFile, diffFile := o.selection, o.diff
	if selFile == "" {
		selFile = a.cfg.Path(a.cfg.Analysis.Selection)
	}
	if diffFile == "" {
		diffFile = a.cfg.Path(a.cfg.Analysis.Diff)
	}
	switch {
	case selFile != "":
		f, err := os.Open(selFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return selection.Parse(f)
	case diffFile != "":
		b, err := os.ReadFile(diffFile)
		if err != nil {
			return nil, err
		}
		classes, err := readClasses(classPaths)
		if err != nil {
			return nil, err
		}
		sel, err := selection.FromUnifiedDiff(b, classes)
		if err == nil && len(sel) == 0 {
			log.Warningf("%s touches no analyzed method, reporting everything", diffFile)
		}
		return sel, err
	}
	return nil, nil
}

// readClasses decodes every plain class file below paths.
func readClasses(paths []string) ([]*classfile.Class, error) {
	var classes []*classfile.Class
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if analysis.DetectContent(b) != analysis.ContentClass {
				return nil
			}
			c, err := classfile.Read(b)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			classes = append(classes, c)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return classes, nil
}
