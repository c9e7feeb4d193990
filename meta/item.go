/*
NAME
  item.go

DESCRIPTION
  item.go provides the Item type, a typed byte buffer record describing one
  piece of ancillary metadata (e.g. a SCTE-104 message) attached to a video
  frame.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package meta provides the per-frame metadata item store used to carry
// ancillary payloads (SCTE-104 messages, SCTE-35 sections) from the capture
// path to the downstream mux.
package meta

import (
	"errors"
	"fmt"
)

// Kind identifies the type of payload an Item holds.
type Kind int

// Item kinds.
const (
	KindUndefined Kind = iota
	KindSCTE35Section
	KindVANCSCTE104
)

// MaxItemSize is the largest buffer an Item may hold. A SMPTE 291 packet has
// at most 255 user data words plus framing, so this leaves plenty of room.
const MaxItemSize = 1 << 16

var (
	ErrAlloc                = errors.New("could not allocate item buffer")
	ErrInsufficientCapacity = errors.New("item buffer too small for write")
	ErrUnsupportedKind      = errors.New("attribute not supported for item kind")
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindSCTE35Section:
		return "SECTION_SCTE35"
	case KindVANCSCTE104:
		return "VANC_SCTE104"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// hasVANCAttributes reports whether items of kind k carry a line number and
// output stream id.
func (k Kind) hasVANCAttributes() bool {
	switch k {
	case KindVANCSCTE104:
		return true
	case KindUndefined, KindSCTE35Section:
		return false
	default:
		return false
	}
}

// Item is a single metadata record. The backing buffer has a fixed allocated
// capacity; Len reports how much of it holds valid data.
type Item struct {
	kind     Kind
	data     []byte // len(data) is the allocated capacity.
	n        int    // Logical length, always <= len(data).
	lineNr   int
	streamID int
}

// NewItem allocates an item of kind k with a buffer of size bytes.
func NewItem(size int, k Kind) (*Item, error) {
	if size < 0 || size > MaxItemSize {
		return nil, fmt.Errorf("%w: size %d", ErrAlloc, size)
	}
	return &Item{kind: k, data: make([]byte, size)}, nil
}

// Kind returns the item's kind.
func (it *Item) Kind() Kind { return it.kind }

// Cap returns the allocated size of the item's buffer.
func (it *Item) Cap() int { return len(it.data) }

// Len returns the number of valid bytes in the item's buffer.
func (it *Item) Len() int { return it.n }

// Bytes returns the valid portion of the item's buffer. The returned slice
// aliases the item.
func (it *Item) Bytes() []byte { return it.data[:it.n] }

// Write copies p into the item buffer. If p does not fit, ErrInsufficientCapacity
// is returned and the item is left untouched.
func (it *Item) Write(p []byte) error {
	if len(p) > len(it.data) {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCapacity, len(it.data), len(p))
	}
	copy(it.data, p)
	it.n = len(p)
	return nil
}

// Resize changes the allocated size of the item's buffer to n bytes. Data is
// copied into a new buffer which then replaces the old one, so on failure the
// item keeps its previous buffer. Shrinking below the current length truncates
// the valid data.
func (it *Item) Resize(n int) error {
	if n < 0 || n > MaxItemSize {
		return fmt.Errorf("%w: size %d", ErrAlloc, n)
	}
	buf := make([]byte, n)
	copy(buf, it.data[:it.n])
	it.data = buf
	if it.n > n {
		it.n = n
	}
	return nil
}

// Clone returns a deep copy of the item with the same capacity, length and
// attributes.
func (it *Item) Clone() *Item {
	c := *it
	c.data = make([]byte, len(it.data))
	copy(c.data, it.data)
	return &c
}

// Free releases the item's buffer. Free on a nil item is a no-op.
func (it *Item) Free() {
	if it == nil {
		return
	}
	it.data = nil
	it.n = 0
}

// LineNr returns the SDI line the item's payload was carried on.
func (it *Item) LineNr() (int, error) {
	if !it.kind.hasVANCAttributes() {
		return 0, ErrUnsupportedKind
	}
	return it.lineNr, nil
}

// SetLineNr sets the SDI line the item's payload was carried on.
func (it *Item) SetLineNr(l int) error {
	if !it.kind.hasVANCAttributes() {
		return ErrUnsupportedKind
	}
	it.lineNr = l
	return nil
}

// OutputStreamID returns the id of the output stream the item is destined for.
func (it *Item) OutputStreamID() (int, error) {
	if !it.kind.hasVANCAttributes() {
		return 0, ErrUnsupportedKind
	}
	return it.streamID, nil
}

// SetOutputStreamID sets the id of the output stream the item is destined for.
func (it *Item) SetOutputStreamID(id int) error {
	if !it.kind.hasVANCAttributes() {
		return ErrUnsupportedKind
	}
	it.streamID = id
	return nil
}
