package data

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Block tags of the exec format.
const (
	BlockHeader        byte = 0x01
	BlockSessionInfo   byte = 0x10
	BlockExecutionData byte = 0x11
)

// Header values of the exec format.
const (
	MagicNumber   uint16 = 0xC0C0
	FormatVersion uint16 = 0x1007
)

// maxProbes bounds the probe count accepted from a stream.
const maxProbes = 1 << 26

var (
	// ErrCorrupt reports a malformed exec stream.
	ErrCorrupt = errors.New("invalid execution data file")

	// ErrIncompatibleVersion is matched by *IncompatibleVersionError.
	ErrIncompatibleVersion = errors.New("incompatible execution data version")
)

// IncompatibleVersionError reports an exec stream written with another
// format version.
type IncompatibleVersionError struct {
	Actual uint16
}

func (e *IncompatibleVersionError) Error() string {
	return fmt.Sprintf("cannot read execution data version 0x%x; this version expects 0x%x", e.Actual, FormatVersion)
}

func (e *IncompatibleVersionError) Is(target error) bool {
	return target == ErrIncompatibleVersion
}

// compactWriter writes the primitive encodings of the exec format.
type compactWriter struct {
	w   *bufio.Writer
	err error
	buf [8]byte
}

func newCompactWriter(w io.Writer) *compactWriter {
	return &compactWriter{w: bufio.NewWriter(w)}
}

func (c *compactWriter) write(b []byte) {
	if c.err == nil {
		_, c.err = c.w.Write(b)
	}
}

func (c *compactWriter) byte(b byte) {
	if c.err == nil {
		c.err = c.w.WriteByte(b)
	}
}

func (c *compactWriter) u16(v uint16) {
	binary.BigEndian.PutUint16(c.buf[:2], v)
	c.write(c.buf[:2])
}

func (c *compactWriter) u64(v uint64) {
	binary.BigEndian.PutUint64(c.buf[:8], v)
	c.write(c.buf[:8])
}

func (c *compactWriter) str(s string) {
	if len(s) > math.MaxUint16 {
		if c.err == nil {
			c.err = fmt.Errorf("data: string of %d bytes too long", len(s))
		}
		return
	}
	c.u16(uint16(len(s)))
	c.write([]byte(s))
}

// varint writes v in 7-bit groups, low group first.
func (c *compactWriter) varint(v uint32) {
	for v&^0x7F != 0 {
		c.byte(byte(v&0x7F) | 0x80)
		v >>= 7
	}
	c.byte(byte(v))
}

// bools writes the length as varint and packs the values eight per byte,
// least significant bit first.
func (c *compactWriter) bools(bs []bool) {
	c.varint(uint32(len(bs)))
	var b byte
	n := 0
	for _, v := range bs {
		if v {
			b |= 1 << n
		}
		if n++; n == 8 {
			c.byte(b)
			b, n = 0, 0
		}
	}
	if n > 0 {
		c.byte(b)
	}
}

func (c *compactWriter) flush() error {
	if c.err != nil {
		return c.err
	}
	return c.w.Flush()
}

// compactReader reads the primitive encodings of the exec format.
type compactReader struct {
	r   *bufio.Reader
	buf [8]byte
}

func newCompactReader(r io.Reader) *compactReader {
	return &compactReader{r: bufio.NewReader(r)}
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}

func (c *compactReader) byte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, truncated(err)
	}
	return b, nil
}

func (c *compactReader) u16() (uint16, error) {
	if _, err := io.ReadFull(c.r, c.buf[:2]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint16(c.buf[:2]), nil
}

func (c *compactReader) u64() (uint64, error) {
	if _, err := io.ReadFull(c.r, c.buf[:8]); err != nil {
		return 0, truncated(err)
	}
	return binary.BigEndian.Uint64(c.buf[:8]), nil
}

func (c *compactReader) str() (string, error) {
	n, err := c.u16()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(c.r, b); err != nil {
		return "", truncated(err)
	}
	return string(b), nil
}

func (c *compactReader) varint() (uint32, error) {
	var v uint32
	for shift := 0; ; shift += 7 {
		if shift > 28 {
			return 0, fmt.Errorf("%w: varint overflow", ErrCorrupt)
		}
		b, err := c.byte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

func (c *compactReader) bools() ([]bool, error) {
	n, err := c.varint()
	if err != nil {
		return nil, err
	}
	if n > maxProbes {
		return nil, fmt.Errorf("%w: probe count %d too large", ErrCorrupt, n)
	}
	out := make([]bool, n)
	var b byte
	for i := range out {
		if i%8 == 0 {
			if b, err = c.byte(); err != nil {
				return nil, err
			}
		}
		out[i] = b&1 != 0
		b >>= 1
	}
	return out, nil
}
