package data

import (
	"errors"
	"fmt"
	"io"
)

// Reader deserializes an exec stream into visitors. Set the visitors for
// the block types the stream contains; a block without a visitor is an
// error.
type Reader struct {
	in         *compactReader
	Sessions   SessionInfoVisitor
	Executions ExecutionDataVisitor
	firstBlock bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{in: newCompactReader(r), firstBlock: true}
}

// Read consumes blocks until the end of the stream. Several files may be
// concatenated; each repeats the header.
func (r *Reader) Read() error {
	for {
		tag, err := r.in.r.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if r.firstBlock && tag != BlockHeader {
			return ErrCorrupt
		}
		r.firstBlock = false
		if err := r.block(tag); err != nil {
			return err
		}
	}
}

func (r *Reader) block(tag byte) error {
	switch tag {
	case BlockHeader:
		return r.header()
	case BlockSessionInfo:
		return r.sessionInfo()
	case BlockExecutionData:
		return r.executionData()
	default:
		return fmt.Errorf("%w: unknown block type %x", ErrCorrupt, tag)
	}
}

func (r *Reader) header() error {
	magic, err := r.in.u16()
	if err != nil {
		return err
	}
	if magic != MagicNumber {
		return ErrCorrupt
	}
	version, err := r.in.u16()
	if err != nil {
		return err
	}
	if version != FormatVersion {
		return &IncompatibleVersionError{Actual: version}
	}
	return nil
}

func (r *Reader) sessionInfo() error {
	if r.Sessions == nil {
		return errors.New("data: no session info visitor")
	}
	id, err := r.in.str()
	if err != nil {
		return err
	}
	start, err := r.in.u64()
	if err != nil {
		return err
	}
	dump, err := r.in.u64()
	if err != nil {
		return err
	}
	info, err := NewSessionInfo(id, int64(start), int64(dump))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return r.Sessions.VisitSessionInfo(info)
}

func (r *Reader) executionData() error {
	if r.Executions == nil {
		return errors.New("data: no execution data visitor")
	}
	id, err := r.in.u64()
	if err != nil {
		return err
	}
	name, err := r.in.str()
	if err != nil {
		return err
	}
	probes, err := r.in.bools()
	if err != nil {
		return err
	}
	return r.Executions.VisitClassExecution(&ExecutionData{ID: id, Name: name, Probes: probes})
}
