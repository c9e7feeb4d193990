/*
NAME
  store.go

DESCRIPTION
  store.go provides Store, a fixed capacity collection of metadata items
  belonging to a single video frame.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package meta

import "errors"

// Capacity is the maximum number of items a Store may hold.
const Capacity = 16

var ErrStoreFull = errors.New("metadata store full")

// Store holds up to Capacity items. Slots below n are always non-nil items
// owned by the store.
type Store struct {
	items [Capacity]*Item
	n     int
}

// Add appends it to the store, taking ownership of it. If the store is full
// ErrStoreFull is returned and the existing items are untouched.
func (s *Store) Add(it *Item) error {
	if it == nil {
		return errors.New("cannot add nil item")
	}
	if s.n == Capacity {
		return ErrStoreFull
	}
	s.items[s.n] = it
	s.n++
	return nil
}

// Len returns the number of items in the store.
func (s *Store) Len() int { return s.n }

// Item returns the ith item, or nil if i is out of range.
func (s *Store) Item(i int) *Item {
	if i < 0 || i >= s.n {
		return nil
	}
	return s.items[i]
}

// Items returns the active items. The slice aliases the store and is only
// valid until the next Add or Reset.
func (s *Store) Items() []*Item { return s.items[:s.n] }

// Reset frees all items and empties the store.
func (s *Store) Reset() {
	for i := 0; i < s.n; i++ {
		s.items[i].Free()
		s.items[i] = nil
	}
	s.n = 0
}

// Clone deep copies the items of src into dst. dst is always reset first, so
// items attached to dst by a previous frame never survive a clone.
func Clone(dst, src *Store) {
	dst.Reset()
	for i := 0; i < src.n; i++ {
		dst.items[i] = src.items[i].Clone()
	}
	dst.n = src.n
}
