/*
NAME
  ingest.go

DESCRIPTION
  ingest.go provides the per frame coordination of ancillary data ingest:
  line reconstruction, parsing, and attachment of results to outgoing frames.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package ingest processes the vertical ancillary data of captured video
// frames, routing SCTE-104 messages to SCTE-35 outputs as frame metadata and
// producing SMPTE 2038 and teletext PES for the multiplexer.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/ccx"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/codec/v210"
	"github.com/ausocean/vanc/container/mts"
	"github.com/ausocean/vanc/container/mts/pes"
	"github.com/ausocean/vanc/container/mts/smpte2038"
	"github.com/ausocean/vanc/container/mts/teletext"
	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/meta"
	"github.com/ausocean/vanc/scte104"
)

// ClockRate is the frequency of the capture clock in Hz.
const ClockRate = 27000000

// sdWidth is the widest line carrying ancillary data multiplexed across
// luma and chroma.
const sdWidth = 720

var (
	ErrNoStream  = errors.New("no output stream for format")
	ErrQueueFull = errors.New("queue full")
	ErrPatchPair = errors.New("patch DID/SDID would route SCTE-104 twice")
)

// Queue accepts coded frames for the multiplexer. Push must not block.
type Queue interface {
	Push(mts.CodedFrame) error
}

// ChanQueue is a Queue backed by a buffered channel. Frames pushed while the
// channel is full are dropped.
type ChanQueue chan mts.CodedFrame

// Push implements Queue.
func (q ChanQueue) Push(f mts.CodedFrame) error {
	select {
	case q <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// RawFrame is the ancillary state of a captured frame handed downstream.
type RawFrame struct {
	Clock int64  // Capture clock at the frame, in 27MHz ticks.
	PTS   uint64 // Presentation timestamp derived from Clock.

	// Meta holds the frame's metadata items, owned by the frame.
	Meta *meta.Store

	// CCData holds the CEA-708 cc_data triples carried with the frame.
	CCData   []byte
	Captions []ccx.CaptionFrame
}

// Stats holds ingest counters.
type Stats struct {
	Frames         uint64
	SCTE104        uint64 // Messages routed.
	Type1Discarded uint64
	Attached       uint64 // Metadata items attached.
	Unresolved     uint64 // Destinations with no output stream.
	StoreFull      uint64
	Patched        uint64
	PESSent        uint64
	PESDropped     uint64
	CounterJumps   uint64
}

// Ingest coordinates the ancillary data processing of one capture device.
// Except for SetFilters, its methods must be called from the capture
// goroutine only.
type Ingest struct {
	cfg     config.Config
	log     logging.Logger
	streams StreamTable
	queue   Queue
	filters *scte104.Filters
	parser  *anc.Parser

	store    meta.Store
	s2038    *smpte2038.Session
	teletext []anc.TeletextLine
	ttBuf    []byte
	line     v210.Line

	clock    int64
	ccData   []byte
	captions []ccx.CaptionFrame
	cc608    [2]*ccx.CEA608Decoder
	lastCtrl [2][2]byte

	counter     uint64
	haveCounter bool
	patching    bool

	stats Stats
}

// New returns an Ingest for the device output streams, pushing PES to q.
func New(cfg config.Config, streams StreamTable, q Queue) (*Ingest, error) {
	if cfg.Logger == nil {
		return nil, errors.New("config has no logger")
	}
	if cfg.PatchDID != 0 && (cfg.PatchDID&0x80 != 0 || (cfg.PatchDID == anc.DIDSCTE104 && cfg.PatchSDID == anc.SDIDSCTE104)) {
		return nil, fmt.Errorf("%w: %#x/%#x", ErrPatchPair, cfg.PatchDID, cfg.PatchSDID)
	}
	t, err := scte104.NewTable(cfg.Filters...)
	if err != nil {
		return nil, fmt.Errorf("could not create filter table: %w", err)
	}
	in := &Ingest{
		cfg:     cfg,
		log:     cfg.Logger,
		streams: streams,
		queue:   q,
		filters: scte104.NewFilters(t),
		s2038:   smpte2038.NewSession(),
		cc608:   [2]*ccx.CEA608Decoder{ccx.NewCEA608Decoder(), ccx.NewCEA608Decoder()},
	}
	in.parser = anc.NewParser(anc.Callbacks{
		SCTE104: in.onSCTE104,
		CEA708:  in.onCEA708,
		CEA608:  in.onCEA608,
		Counter: in.onCounter,
		SDP:     in.onSDP,
		All:     in.onAll,
	}, in.log)
	in.parser.Lenient = cfg.Lenient
	return in, nil
}

// SetFilters replaces the SCTE-104 filter table. It may be called from any
// goroutine; the new table applies from the next message routed.
func (in *Ingest) SetFilters(rules []scte104.Rule) error {
	t, err := scte104.NewTable(rules...)
	if err != nil {
		return fmt.Errorf("could not create filter table: %w", err)
	}
	in.filters.Store(t)
	in.log.Info("SCTE-104 filters updated", "rules", t.Len())
	return nil
}

// Filters returns the current SCTE-104 filter table.
func (in *Ingest) Filters() *scte104.Table { return in.filters.Load() }

// Stats returns a copy of the ingest counters.
func (in *Ingest) Stats() Stats { return in.stats }

// Parser returns the ancillary packet parser, for its counters.
func (in *Ingest) Parser() *anc.Parser { return in.parser }

// StartFrame begins a frame captured at clock, in 27MHz ticks. State left
// by a frame that was never finalized is discarded.
func (in *Ingest) StartFrame(clock int64) {
	in.clock = clock
	in.store.Reset()
	in.teletext = in.teletext[:0]
	in.ccData = in.ccData[:0]
	in.captions = in.captions[:0]
	if in.cfg.SMPTE2038 {
		in.s2038.Open()
	}
}

// ProcessLine parses the ancillary packets in one channel of line lineNr.
// cNotY is true if words are chroma samples. It returns the number of
// packets found.
func (in *Ingest) ProcessLine(lineNr int, words []uint16, cNotY bool) int {
	return in.parser.Parse(lineNr, words, cNotY)
}

// ProcessV210Line decodes a V210 line of width pixels and parses it. Standard
// definition lines carry ancillary data across multiplexed luma and chroma;
// wider lines carry it separately in each.
func (in *Ingest) ProcessV210Line(lineNr int, src []byte, width int) error {
	err := v210.DecodeLine(&in.line, src, width)
	if err != nil {
		return fmt.Errorf("could not decode line %d: %w", lineNr, err)
	}
	if width <= sdWidth {
		in.parser.Parse(lineNr, in.line.Interleaved(), false)
		return nil
	}
	in.parser.Parse(lineNr, in.line.Luma, false)
	in.parser.Parse(lineNr, in.line.Chroma, true)
	return nil
}

// ProcessBlocks unpacks and parses a block structured ancillary buffer.
// Blocks before a malformed block are processed.
func (in *Ingest) ProcessBlocks(buf []byte) error {
	return anc.UnpackBlocks(buf, func(b anc.Block, words []uint16) {
		in.parser.Parse(b.LineNr, words, b.CNotY)
	})
}

// FinalizeFrame completes the frame started by StartFrame. Accumulated PES
// are pushed to the queue, and the frame's metadata and caption data are
// copied into f so the ingest state can be reused. Queue errors are returned
// after f has been filled.
func (in *Ingest) FinalizeFrame(f *RawFrame) error {
	err := errors.Join(in.flushSMPTE2038(), in.flushTeletext())

	if f.Meta == nil {
		f.Meta = &meta.Store{}
	}
	meta.Clone(f.Meta, &in.store)
	in.store.Reset()

	f.Clock = in.clock
	f.PTS = pes.PTSFromClock(in.clock)
	f.CCData = append(f.CCData[:0], in.ccData...)
	f.Captions = append(f.Captions[:0], in.captions...)
	in.stats.Frames++
	return err
}

// pesPTS returns the timestamp of PES produced for the current frame.
func (in *Ingest) pesPTS() uint64 {
	return pes.PTSFromClock(in.clock + durationTicks(in.cfg.PTSOffset))
}

func durationTicks(d time.Duration) int64 {
	return int64(d/time.Microsecond) * (ClockRate / 1000000)
}

func (in *Ingest) flushSMPTE2038() error {
	if !in.s2038.IsOpen() {
		return nil
	}
	b, err := in.s2038.Close(in.pesPTS())
	if err != nil {
		return fmt.Errorf("could not close SMPTE 2038 session: %w", err)
	}
	if b == nil {
		return nil
	}
	s, ok := in.streams.Lookup(TypeMisc, config.FormatSMPTE2038, 0)
	if !ok {
		return fmt.Errorf("%w: SMPTE 2038", ErrNoStream)
	}
	return in.push(s, append([]byte(nil), b...))
}

func (in *Ingest) flushTeletext() error {
	if len(in.teletext) == 0 {
		return nil
	}
	s, ok := in.streams.Lookup(TypeSubtitle, config.FormatDVBTeletext, 0)
	if !ok {
		return fmt.Errorf("%w: teletext", ErrNoStream)
	}
	var errs []error
	lines := in.teletext
	for len(lines) != 0 {
		n := min(len(lines), teletext.MaxLines)
		b, err := teletext.Build(in.ttBuf, lines[:n], in.pesPTS(), in.cfg.TeletextReverse)
		lines = lines[n:]
		if err != nil {
			errs = append(errs, fmt.Errorf("could not build teletext PES: %w", err))
			continue
		}
		in.ttBuf = b
		errs = append(errs, in.push(s, append([]byte(nil), b...)))
	}
	in.teletext = in.teletext[:0]
	return errors.Join(errs...)
}

func (in *Ingest) push(s OutputStream, b []byte) error {
	err := in.queue.Push(mts.CodedFrame{StreamID: s.ID, PTS: in.pesPTS(), Data: b})
	if err != nil {
		in.stats.PESDropped++
		return fmt.Errorf("could not push PES for stream %d: %w", s.ID, err)
	}
	in.stats.PESSent++
	return nil
}
