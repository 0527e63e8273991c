// Package tools loads and saves exec files.
package tools

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/probecov/data"
)

var log = commonlog.GetLogger("probecov.tools")

// ExecFileLoader accumulates the contents of any number of exec files.
// Execution data for the same class is merged.
type ExecFileLoader struct {
	Sessions   *data.SessionInfoStore
	Executions *data.ExecutionDataStore
}

// NewExecFileLoader creates an empty loader.
func NewExecFileLoader() *ExecFileLoader {
	return &ExecFileLoader{
		Sessions:   data.NewSessionInfoStore(),
		Executions: data.NewExecutionDataStore(),
	}
}

// Load reads an exec stream into the loader.
func (l *ExecFileLoader) Load(r io.Reader) error {
	rd := data.NewReader(r)
	rd.Sessions = l.Sessions
	rd.Executions = l.Executions
	return rd.Read()
}

// LoadFile reads the exec file at path.
func (l *ExecFileLoader) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := l.Load(f); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	log.Infof("loaded execution data from %s", path)
	return nil
}

// LoadAll reads every file in paths.
func (l *ExecFileLoader) LoadAll(paths ...string) error {
	for _, p := range paths {
		if err := l.LoadFile(p); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the sessions and execution data as one exec stream.
func (l *ExecFileLoader) Save(w io.Writer) error {
	ew, err := data.NewWriter(w)
	if err != nil {
		return err
	}
	if err := l.Sessions.Accept(ew); err != nil {
		return err
	}
	if err := l.Executions.Accept(ew); err != nil {
		return err
	}
	return ew.Flush()
}

// SaveFile writes the contents to path, creating parent directories. With
// doAppend the stream is added to the end of an existing file. The file is
// locked while writing so that concurrent writers do not interleave.
func (l *ExecFileLoader) SaveFile(path string, doAppend bool) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	flags := os.O_CREATE | os.O_WRONLY
	if doAppend {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return fmt.Errorf("lock %s: %w", path, err)
	}
	// Truncate only once the lock is held, a concurrent writer may still
	// be flushing its stream.
	if !doAppend {
		err = f.Truncate(0)
	}
	if err == nil {
		err = l.Save(f)
	}
	unlockFile(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	log.Infof("saved execution data to %s", path)
	return nil
}
