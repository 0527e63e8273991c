package data

import "io"

// Writer serializes sessions and execution data in the exec format. The
// header is written when the Writer is created. Call Flush when done.
type Writer struct {
	out *compactWriter
}

// NewWriter writes the file header to w and returns a Writer for the
// blocks that follow.
func NewWriter(w io.Writer) (*Writer, error) {
	ew := &Writer{out: newCompactWriter(w)}
	ew.out.byte(BlockHeader)
	ew.out.u16(MagicNumber)
	ew.out.u16(FormatVersion)
	if ew.out.err != nil {
		return nil, ew.out.err
	}
	return ew, nil
}

// VisitSessionInfo writes a session block.
func (w *Writer) VisitSessionInfo(info SessionInfo) error {
	w.out.byte(BlockSessionInfo)
	w.out.str(info.ID)
	w.out.u64(uint64(info.Start))
	w.out.u64(uint64(info.Dump))
	return w.out.err
}

// VisitClassExecution writes an execution data block. Data without any
// hit is skipped.
func (w *Writer) VisitClassExecution(d *ExecutionData) error {
	if !d.HasHits() {
		return nil
	}
	w.out.byte(BlockExecutionData)
	w.out.u64(d.ID)
	w.out.str(d.Name)
	w.out.bools(d.Probes)
	return w.out.err
}

// Flush writes any buffered data.
func (w *Writer) Flush() error {
	return w.out.flush()
}

// Header returns the bytes every exec stream starts with.
func Header() []byte {
	return []byte{BlockHeader, byte(MagicNumber >> 8), byte(MagicNumber & 0xFF), byte(FormatVersion >> 8), byte(FormatVersion & 0xFF)}
}
