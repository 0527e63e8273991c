package analysis

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/analysis/filter"
	"github.com/chazu/probecov/classfile"
	"github.com/chazu/probecov/data"
	"github.com/chazu/probecov/flow"
)

var log = commonlog.GetLogger("probecov.analysis")

// DefaultMaxDepth is the default nesting limit for archives.
const DefaultMaxDepth = 8

var (
	// ErrNestingTooDeep is returned when archives nest deeper than
	// Analyzer.MaxDepth.
	ErrNestingTooDeep = errors.New("archive nesting too deep")

	// ErrUnsupportedContent is returned for pack-format archives.
	ErrUnsupportedContent = errors.New("unsupported content type")
)

// AnalyzerError attaches the location of the failing resource to an
// analysis error.
type AnalyzerError struct {
	Location string
	Err      error
}

func (e *AnalyzerError) Error() string {
	return fmt.Sprintf("error while analyzing %s: %v", e.Location, e.Err)
}

func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

func analyzerError(location string, err error) error {
	var ae *AnalyzerError
	if errors.As(err, &ae) {
		return err
	}
	return &AnalyzerError{Location: location, Err: err}
}

// ContentType is the detected kind of an input stream.
type ContentType int

const (
	ContentUnknown ContentType = iota
	ContentClass
	ContentZip
	ContentGzip
	ContentPack
)

// DetectContent classifies the first bytes of a stream.
func DetectContent(header []byte) ContentType {
	switch {
	case bytes.HasPrefix(header, classfile.Magic[:]):
		return ContentClass
	case bytes.HasPrefix(header, []byte("PK\x03\x04")):
		return ContentZip
	case bytes.HasPrefix(header, []byte{0x1f, 0x8b}):
		return ContentGzip
	case bytes.HasPrefix(header, []byte{0xCA, 0xFE, 0xD0, 0x0D}):
		return ContentPack
	}
	return ContentUnknown
}

// Analyzer matches classes with execution data and reports their coverage
// to a CoverageVisitor. An Analyzer is not safe for concurrent use.
type Analyzer struct {
	store   *data.ExecutionDataStore
	visitor CoverageVisitor
	pool    *StringPool

	// Selection restricts reported methods; see MethodSelection.
	Selection MethodSelection

	// Filter is applied to every method. Defaults to filter.All().
	Filter filter.Filter

	// MaxDepth limits archive nesting. Defaults to DefaultMaxDepth.
	MaxDepth int
}

// NewAnalyzer creates an Analyzer reading probes from store.
func NewAnalyzer(store *data.ExecutionDataStore, visitor CoverageVisitor) *Analyzer {
	return &Analyzer{
		store:    store,
		visitor:  visitor,
		pool:     NewStringPool(),
		Filter:   filter.All(),
		MaxDepth: DefaultMaxDepth,
	}
}

// AnalyzeClass analyzes one encoded class.
func (a *Analyzer) AnalyzeClass(b []byte, location string) error {
	if err := a.analyzeClass(b); err != nil {
		return analyzerError(location, err)
	}
	return nil
}

// AnalyzeReader reads one encoded class from r and analyzes it.
func (a *Analyzer) AnalyzeReader(r io.Reader, location string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return analyzerError(location, err)
	}
	return a.AnalyzeClass(b, location)
}

func (a *Analyzer) analyzeClass(b []byte) error {
	id := data.ClassID(b)
	access, name, err := classfile.ReadHeader(b)
	if err != nil {
		return err
	}
	if access&(classfile.AccModule|classfile.AccSynthetic) != 0 {
		log.Debugf("skipping %s", name)
		return nil
	}
	c, err := classfile.Read(b)
	if err != nil {
		return err
	}

	var probes []bool
	noMatch := false
	if d := a.store.Get(id); d != nil {
		probes = d.Probes
	} else {
		noMatch = a.store.Contains(name)
	}
	if noMatch {
		log.Warningf("execution data for class %s does not match", name)
	}

	cov := NewClassCoverage(a.pool.Get(name), id, noMatch)
	ca := newClassAnalyzer(cov, probes, a.pool, a.filter(), a.Selection)
	if err := flow.NewClassProbesAdapter(ca, false).Accept(c); err != nil {
		return err
	}
	log.Debugf("analyzed %s: %s", name, cov.InstructionCounter())
	return a.visitor.VisitCoverage(cov)
}

func (a *Analyzer) filter() filter.Filter {
	if a.Filter == nil {
		return filter.Chain()
	}
	return a.Filter
}

// AnalyzeAll analyzes every class found in r: a single class, a zip
// archive or a gzip stream, nested to any depth up to MaxDepth. Content of
// unknown type is ignored. It returns the number of classes found.
func (a *Analyzer) AnalyzeAll(r io.Reader, location string) (int, error) {
	return a.analyzeAll(r, location, 0)
}

func (a *Analyzer) analyzeAll(r io.Reader, location string, depth int) (int, error) {
	if depth > a.MaxDepth {
		return 0, analyzerError(location, fmt.Errorf("%w: more than %d levels", ErrNestingTooDeep, a.MaxDepth))
	}
	br := bufio.NewReader(r)
	header, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, analyzerError(location, err)
	}
	switch DetectContent(header) {
	case ContentClass:
		if err := a.AnalyzeReader(br, location); err != nil {
			return 0, err
		}
		return 1, nil
	case ContentZip:
		return a.analyzeZip(br, location, depth)
	case ContentGzip:
		return a.analyzeGzip(br, location, depth)
	case ContentPack:
		return 0, analyzerError(location, ErrUnsupportedContent)
	}
	return 0, nil
}

func (a *Analyzer) analyzeZip(r io.Reader, location string, depth int) (int, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, analyzerError(location, err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return 0, analyzerError(location, err)
	}
	count := 0
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		n, err := a.analyzeEntry(f, location+"@"+f.Name, depth)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func (a *Analyzer) analyzeEntry(f *zip.File, location string, depth int) (int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, analyzerError(location, err)
	}
	defer rc.Close()
	return a.analyzeAll(rc, location, depth+1)
}

func (a *Analyzer) analyzeGzip(r io.Reader, location string, depth int) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, analyzerError(location, err)
	}
	defer gz.Close()
	return a.analyzeAll(gz, location, depth+1)
}

// AnalyzeAllPath analyzes a file or, recursively, a directory.
func (a *Analyzer) AnalyzeAllPath(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, analyzerError(path, err)
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return 0, analyzerError(path, err)
		}
		count := 0
		for _, e := range entries {
			n, err := a.AnalyzeAllPath(filepath.Join(path, e.Name()))
			count += n
			if err != nil {
				return count, err
			}
		}
		return count, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, analyzerError(path, err)
	}
	defer f.Close()
	return a.AnalyzeAll(f, path)
}

// AnalyzePathList analyzes every entry of a list separated by the OS path
// list separator, resolved against basedir.
func (a *Analyzer) AnalyzePathList(list, basedir string) (int, error) {
	count := 0
	for _, p := range strings.Split(list, string(os.PathListSeparator)) {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(basedir, p)
		}
		n, err := a.AnalyzeAllPath(p)
		count += n
		if err != nil {
			return count, err
		}
	}
	return count, nil
}
