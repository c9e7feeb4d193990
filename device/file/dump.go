/*
DESCRIPTION
  dump.go provides reading and writing of VANC capture dumps, a record
  format holding the ancillary lines and blocks of captured frames.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// A dump is the magic followed by a version byte and a sequence of records.
// Each record is a type byte, a little endian uint32 payload length and the
// payload:
//
//	RecordFrameStart  int64 capture clock in 27MHz ticks.
//	RecordV210Line    uint16 line number, uint16 width, V210 samples.
//	RecordBlocks      block structured ancillary buffer.
//	RecordFrameEnd    empty.
const (
	magic         = "VANC"
	version       = 1
	recHeaderSize = 5
	maxRecordSize = 16 << 20
)

// RecordType identifies a dump record.
type RecordType byte

const (
	RecordFrameStart RecordType = iota + 1
	RecordV210Line
	RecordBlocks
	RecordFrameEnd
)

var (
	ErrMagic   = errors.New("not a VANC capture dump")
	ErrVersion = errors.New("unsupported dump version")
	ErrRecord  = errors.New("malformed dump record")
)

// Record is a dump record.
type Record struct {
	Type   RecordType
	Clock  int64  // RecordFrameStart only.
	LineNr int    // RecordV210Line only.
	Width  int    // RecordV210Line only.
	Data   []byte // V210 samples or block buffer.
}

// Reader reads records from a dump.
type Reader struct {
	r   *bufio.Reader
	buf []byte
}

// NewReader returns a Reader for the dump in r, having checked its header.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [len(magic) + 1]byte
	_, err := io.ReadFull(br, hdr[:])
	if err != nil {
		return nil, fmt.Errorf("could not read dump header: %w", err)
	}
	if string(hdr[:len(magic)]) != magic {
		return nil, ErrMagic
	}
	if hdr[len(magic)] != version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr[len(magic)])
	}
	return &Reader{r: br}, nil
}

// Next returns the next record. The record's Data is valid until the next
// call. io.EOF is returned at the end of the dump.
func (d *Reader) Next() (Record, error) {
	var hdr [recHeaderSize]byte
	_, err := io.ReadFull(d.r, hdr[:])
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated header: %v", ErrRecord, err)
	}
	rec := Record{Type: RecordType(hdr[0])}
	n := binary.LittleEndian.Uint32(hdr[1:])
	if n > maxRecordSize {
		return Record{}, fmt.Errorf("%w: length %d", ErrRecord, n)
	}
	if cap(d.buf) < int(n) {
		d.buf = make([]byte, n)
	}
	b := d.buf[:n]
	_, err = io.ReadFull(d.r, b)
	if err != nil {
		return Record{}, fmt.Errorf("%w: truncated payload: %v", ErrRecord, err)
	}

	switch rec.Type {
	case RecordFrameStart:
		if n != 8 {
			return Record{}, fmt.Errorf("%w: frame start length %d", ErrRecord, n)
		}
		rec.Clock = int64(binary.LittleEndian.Uint64(b))
	case RecordV210Line:
		if n < 4 {
			return Record{}, fmt.Errorf("%w: line length %d", ErrRecord, n)
		}
		rec.LineNr = int(binary.LittleEndian.Uint16(b))
		rec.Width = int(binary.LittleEndian.Uint16(b[2:]))
		rec.Data = b[4:]
	case RecordBlocks:
		rec.Data = b
	case RecordFrameEnd:
	default:
		return Record{}, fmt.Errorf("%w: type %d", ErrRecord, rec.Type)
	}
	return rec, nil
}

// Writer writes a dump.
type Writer struct {
	w   io.Writer
	hdr [recHeaderSize]byte
}

// NewWriter returns a Writer for w, having written the dump header.
func NewWriter(w io.Writer) (*Writer, error) {
	_, err := w.Write(append([]byte(magic), version))
	if err != nil {
		return nil, fmt.Errorf("could not write dump header: %w", err)
	}
	return &Writer{w: w}, nil
}

func (d *Writer) record(t RecordType, parts ...[]byte) error {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	d.hdr[0] = byte(t)
	binary.LittleEndian.PutUint32(d.hdr[1:], uint32(n))
	_, err := d.w.Write(d.hdr[:])
	for _, p := range parts {
		if err != nil {
			break
		}
		_, err = d.w.Write(p)
	}
	return err
}

// StartFrame writes a frame start record.
func (d *Writer) StartFrame(clock int64) error {
	return d.record(RecordFrameStart, binary.LittleEndian.AppendUint64(nil, uint64(clock)))
}

// WriteV210Line writes a V210 line record.
func (d *Writer) WriteV210Line(lineNr, width int, src []byte) error {
	var h [4]byte
	binary.LittleEndian.PutUint16(h[:], uint16(lineNr))
	binary.LittleEndian.PutUint16(h[2:], uint16(width))
	return d.record(RecordV210Line, h[:], src)
}

// WriteBlocks writes a block buffer record.
func (d *Writer) WriteBlocks(buf []byte) error {
	return d.record(RecordBlocks, buf)
}

// EndFrame writes a frame end record.
func (d *Writer) EndFrame() error {
	return d.record(RecordFrameEnd)
}
