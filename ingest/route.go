/*
NAME
  route.go

DESCRIPTION
  route.go provides the ancillary packet handlers that route SCTE-104
  messages to output streams as metadata and accumulate SMPTE 2038, teletext
  and caption data for the current frame.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ingest

import (
	"errors"
	"fmt"

	"github.com/zsiec/ccx"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/container/mts/pes"
	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/meta"
	"github.com/ausocean/vanc/scte104"
)

// onSCTE104 routes a SCTE-104 message. With an empty filter table the
// message goes to the first SCTE-35 output; otherwise to the output of every
// PID the table returns. PIDs with no output are skipped.
func (in *Ingest) onSCTE104(p *anc.Packet, m *scte104.Message) error {
	if !in.cfg.SCTE104 {
		return nil
	}
	if p.Type1() {
		return nil
	}
	in.stats.SCTE104++
	in.log.Debug("SCTE-104 message", "line", p.LineNr, "op", scte104.OpName(m.OpID), "as", m.ASIndex, "dpi", m.DPIPIDIndex, "ops", len(m.Ops))

	t := in.filters.Load()
	if t.Len() == 0 {
		s, ok := in.streams.Lookup(TypeMisc, config.FormatDVBTableSection, 0)
		if !ok {
			return fmt.Errorf("%w: SCTE-35", ErrNoStream)
		}
		return in.attach(p, s.ID)
	}

	pids, err := t.Lookup(m.Indexes())
	if err != nil {
		return fmt.Errorf("could not look up SCTE-104 destinations: %w", err)
	}
	if len(pids) == 0 {
		in.log.Debug("no filter matched SCTE-104 message", "as", m.ASIndex, "dpi", m.DPIPIDIndex)
	}
	for _, pid := range pids {
		s, ok := in.streams.ByPID(config.FormatDVBTableSection, pid)
		if !ok {
			in.stats.Unresolved++
			in.log.Debug("filter PID has no output stream", "pid", pid)
			continue
		}
		err := in.attach(p, s.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

// attach adds a SCTE-104 metadata item for p destined for output stream id
// to the frame's store.
func (in *Ingest) attach(p *anc.Packet, id int) error {
	raw := p.Raw()
	it, err := meta.NewItem(len(raw), meta.KindVANCSCTE104)
	if err != nil {
		return fmt.Errorf("could not allocate metadata item: %w", err)
	}
	err = it.Write(raw)
	if err == nil {
		err = it.SetLineNr(p.LineNr)
	}
	if err == nil {
		err = it.SetOutputStreamID(id)
	}
	if err == nil {
		err = in.store.Add(it)
	}
	if err != nil {
		it.Free()
		if errors.Is(err, meta.ErrStoreFull) {
			in.stats.StoreFull++
		}
		return fmt.Errorf("could not attach SCTE-104 item for stream %d: %w", id, err)
	}
	in.stats.Attached++
	return nil
}

// onAll receives every packet. It feeds the SMPTE 2038 session and re-parses
// packets carrying SCTE-104 under the configured patch DID and SDID. Type 1
// SCTE-104 packets are counted and go nowhere.
func (in *Ingest) onAll(p *anc.Packet) error {
	if in.patching {
		return nil
	}
	if p.Type() == anc.TypeSCTE104 && p.Type1() {
		in.stats.Type1Discarded++
		in.log.Debug("discarding type 1 SCTE-104 packet", "line", p.LineNr, "did", p.DID)
		return nil
	}

	var err error
	if in.cfg.SMPTE2038 && in.s2038.IsOpen() {
		err = in.s2038.Append(p)
		if err != nil {
			err = fmt.Errorf("could not append to SMPTE 2038 session: %w", err)
		}
	}

	if in.cfg.PatchDID != 0 && p.DID == in.cfg.PatchDID && p.SDID == in.cfg.PatchSDID {
		w := append([]uint16(nil), p.Words...)
		anc.Retag(w, anc.DIDSCTE104, anc.SDIDSCTE104)
		in.stats.Patched++
		in.patching = true
		in.parser.Parse(p.LineNr, w, p.CNotY)
		in.patching = false
	}
	return err
}

// onSDP collects the teletext lines of an OP-47 packet.
func (in *Ingest) onSDP(p *anc.Packet, sdp *anc.SDP) error {
	if !in.cfg.Teletext {
		return nil
	}
	in.teletext = append(in.teletext, sdp.Lines...)
	return nil
}

// onCEA708 collects cc_data and decodes CEA-608 captions carried in it.
func (in *Ingest) onCEA708(p *anc.Packet, cdp *anc.CDP) error {
	in.ccData = append(in.ccData, cdp.CCData...)
	for _, t := range cdp.Triples() {
		if !t.Valid {
			continue
		}
		switch t.Type {
		case anc.CCTypeNTSCField1:
			in.decode608(0, t.Data)
		case anc.CCTypeNTSCField2:
			in.decode608(1, t.Data)
		}
	}
	return nil
}

// onCEA608 decodes a SMPTE 334 CEA-608 packet. Bit 7 of the first user data
// word is set for field 1.
func (in *Ingest) onCEA608(p *anc.Packet, field byte, cc [2]byte) error {
	f := 1
	if field&0x80 != 0 {
		f = 0
	}
	in.decode608(f, cc)
	return nil
}

// decode608 decodes a CEA-608 byte pair from field f (0 or 1). Repeated
// control codes are transmitted twice and decoded once.
func (in *Ingest) decode608(f int, cc [2]byte) {
	c1, c2 := cc[0]&0x7f, cc[1]&0x7f
	if c1 == 0 && c2 == 0 {
		return
	}
	pair := [2]byte{c1, c2}
	if c1 >= 0x10 && c1 <= 0x1f {
		if in.lastCtrl[f] == pair {
			in.lastCtrl[f] = [2]byte{}
			return
		}
		in.lastCtrl[f] = pair
	} else {
		in.lastCtrl[f] = [2]byte{}
	}

	text := in.cc608[f].Decode(c1, c2)
	if text == "" {
		return
	}
	ch := 1 + 2*f // CC1 or CC3.
	in.captions = append(in.captions, ccx.CaptionFrame{PTS: int64(pes.PTSFromClock(in.clock)), Text: text, Channel: ch})
	in.log.Debug("caption", "channel", ch, "text", text)
}

// onCounter checks the vendor frame counter for discontinuities.
func (in *Ingest) onCounter(p *anc.Packet, v uint64) error {
	if in.haveCounter && v != in.counter+1 {
		in.stats.CounterJumps++
		in.log.Warning("frame counter discontinuity", "expected", in.counter+1, "got", v)
	}
	in.counter = v
	in.haveCounter = true
	return nil
}
