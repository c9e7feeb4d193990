/*
NAME
  filter.go

DESCRIPTION
  filter.go provides the SCTE-104 filter table, which maps the AS_index and
  DPI_PID_index of an incoming SCTE-104 message to the SCTE-35 output PIDs
  the message should be forwarded to.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package scte104

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// All is the wildcard index value; a rule index of All matches any message.
const All = -1

// MaxRules is the capacity of a Table.
const MaxRules = 64

var (
	ErrTableFull    = errors.New("scte104 filter table full")
	ErrInvalidIndex = errors.New("invalid message index for lookup")
)

// Rule routes messages whose indexes match to PID.
type Rule struct {
	PID         uint16
	ASIndex     int32 // All matches any AS_index.
	DPIPIDIndex int32 // All matches any DPI_PID_index.
}

func (r Rule) matches(as, dpi int32) bool {
	return (r.ASIndex == All || r.ASIndex == as) &&
		(r.DPIPIDIndex == All || r.DPIPIDIndex == dpi)
}

func (r Rule) String() string {
	return fmt.Sprintf("%d:%s:%s", r.PID, indexString(r.ASIndex), indexString(r.DPIPIDIndex))
}

func indexString(i int32) string {
	if i == All {
		return "all"
	}
	return strconv.Itoa(int(i))
}

// Indexes holds the routing keys of a message.
type Indexes struct {
	ASIndex     int32
	DPIPIDIndex int32
}

// Table is an ordered, append only set of rules. A table is populated before
// capture starts and only read afterwards; replacement at runtime goes through
// Filters.
type Table struct {
	rules   [MaxRules]Rule
	matches [MaxRules]atomic.Uint64
	n       int
}

// NewTable returns a table holding rules, or ErrTableFull if there are more
// than MaxRules of them.
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{}
	for _, r := range rules {
		if err := t.Add(r.PID, r.ASIndex, r.DPIPIDIndex); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add appends a rule to the table.
func (t *Table) Add(pid uint16, asIndex, dpiPIDIndex int32) error {
	if t.n == MaxRules {
		return ErrTableFull
	}
	t.rules[t.n] = Rule{PID: pid, ASIndex: asIndex, DPIPIDIndex: dpiPIDIndex}
	t.matches[t.n].Store(0)
	t.n++
	return nil
}

// Len returns the number of rules in the table. A nil table has no rules.
// No rules means no filtering is configured, and messages should go to the
// default output.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.n
}

// Rule returns the ith rule.
func (t *Table) Rule(i int) Rule { return t.rules[i] }

// Matches returns how many messages the ith rule has matched.
func (t *Table) Matches(i int) uint64 { return t.matches[i].Load() }

// Lookup returns the PIDs of every rule matching m, in rule order. Rules are
// not first-match; a message may fan out to several PIDs, and the same PID is
// returned more than once if several matching rules name it. An empty result
// means nothing matched. ErrInvalidIndex is returned if m itself carries a
// wildcard or out of range index, which a message from the wire never does.
func (t *Table) Lookup(m Indexes) ([]uint16, error) {
	if m.ASIndex < 0 || m.ASIndex > 0xff || m.DPIPIDIndex < 0 || m.DPIPIDIndex > 0xffff {
		return nil, fmt.Errorf("%w: as %d, dpi %d", ErrInvalidIndex, m.ASIndex, m.DPIPIDIndex)
	}
	pids := []uint16{}
	for i := 0; i < t.Len(); i++ {
		if t.rules[i].matches(m.ASIndex, m.DPIPIDIndex) {
			t.matches[i].Add(1)
			pids = append(pids, t.rules[i].PID)
		}
	}
	return pids, nil
}

// ParseRules parses rules of the form "pid:as:dpi" separated by semicolons,
// where as and dpi are integers or "all", e.g. "56:all:1;57:all:80".
func ParseRules(s string) ([]Rule, error) {
	var rules []Rule
	for _, f := range strings.Split(s, ";") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		parts := strings.Split(f, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("rule %q: expected pid:as:dpi", f)
		}
		pid, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 13)
		if err != nil {
			return nil, fmt.Errorf("rule %q: bad pid: %w", f, err)
		}
		as, err := parseIndex(parts[1], 8)
		if err != nil {
			return nil, fmt.Errorf("rule %q: bad AS_index: %w", f, err)
		}
		dpi, err := parseIndex(parts[2], 16)
		if err != nil {
			return nil, fmt.Errorf("rule %q: bad DPI_PID_index: %w", f, err)
		}
		rules = append(rules, Rule{PID: uint16(pid), ASIndex: as, DPIPIDIndex: dpi})
	}
	return rules, nil
}

func parseIndex(s string, bits int) (int32, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "all") {
		return All, nil
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// Filters publishes a Table to capture routines, allowing it to be replaced
// while capture is running.
type Filters struct {
	p atomic.Pointer[Table]
}

// NewFilters returns a Filters publishing t.
func NewFilters(t *Table) *Filters {
	f := &Filters{}
	f.Store(t)
	return f
}

// Load returns the current table. It may be nil, which has no rules.
func (f *Filters) Load() *Table { return f.p.Load() }

// Store replaces the current table with t.
func (f *Filters) Store(t *Table) { f.p.Store(t) }
