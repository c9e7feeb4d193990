/*
NAME
  parser.go

DESCRIPTION
  parser.go provides Parser, which finds ancillary packets in unpacked sample
  arrays and dispatches them to registered callbacks.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package anc

import (
	"encoding/binary"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/scte104"
)

// Callbacks holds the handlers a Parser dispatches packets to. Nil handlers
// are skipped. For each packet at most one type specific handler is called,
// followed by All.
type Callbacks struct {
	CEA708  func(p *Packet, cdp *CDP) error
	CEA608  func(p *Packet, field byte, cc [2]byte) error
	SCTE104 func(p *Packet, m *scte104.Message) error
	Counter func(p *Packet, v uint64) error
	SDP     func(p *Packet, sdp *SDP) error
	All     func(p *Packet) error
}

// Parser parses ancillary packets. Parse is synchronous and keeps no state
// between calls, so a callback may call Parse again.
type Parser struct {
	cb  Callbacks
	log logging.Logger

	// Lenient causes packets failing checksum validation to be delivered.
	Lenient bool

	// Stats.
	Packets        uint64
	ChecksumErrors uint64
	DecodeErrors   uint64
}

// NewParser returns a Parser dispatching to cb.
func NewParser(cb Callbacks, log logging.Logger) *Parser {
	return &Parser{cb: cb, log: log}
}

// Parse finds and dispatches every ancillary packet in words, which holds
// the samples of one channel of line lineNr. It returns the number of
// packets dispatched. Malformed packets are skipped; they are not errors.
func (p *Parser) Parse(lineNr int, words []uint16, cNotY bool) int {
	var n int
	for i := 0; i+headWords < len(words); {
		if words[i] != ADF[0] || words[i+1] != ADF[1] || words[i+2] != ADF[2] {
			i++
			continue
		}
		dc := int(words[i+dcIdx] & 0xff)
		end := i + headWords + dc + 1 // One past the checksum word.
		if end > len(words) {
			p.log.Debug("truncated ancillary packet", "line", lineNr, "offset", i, "dc", dc)
			break
		}

		pkt := &Packet{
			DID:         byte(words[i+didIdx]),
			SDID:        byte(words[i+sdidIdx]),
			DataCount:   dc,
			UDW:         make([]byte, dc),
			Checksum:    words[end-1],
			LineNr:      lineNr,
			CNotY:       cNotY,
			HorizOffset: i,
			Words:       append([]uint16(nil), words[i:end]...),
		}
		for j := range pkt.UDW {
			pkt.UDW[j] = byte(words[i+udwIdx+j])
		}
		pkt.ChecksumOK = Checksum(words[i+didIdx:end-1])&0x1ff == pkt.Checksum&0x1ff
		i = end

		if !pkt.ChecksumOK {
			p.ChecksumErrors++
			p.log.Debug("ancillary packet checksum mismatch", "line", lineNr, "did", pkt.DID, "sdid", pkt.SDID)
			if !p.Lenient {
				continue
			}
		}
		p.Packets++
		p.dispatch(pkt)
		n++
	}
	return n
}

func (p *Parser) dispatch(pkt *Packet) {
	err := p.dispatchType(pkt)
	if err != nil {
		p.log.Warning("ancillary callback failed", "type", pkt.Type().String(), "line", pkt.LineNr, "error", err.Error())
	}
	if p.cb.All == nil {
		return
	}
	err = p.cb.All(pkt)
	if err != nil {
		p.log.Warning("ancillary callback failed", "type", "all", "line", pkt.LineNr, "error", err.Error())
	}
}

func (p *Parser) dispatchType(pkt *Packet) error {
	switch pkt.Type() {
	case TypeSCTE104:
		if p.cb.SCTE104 == nil {
			return nil
		}
		m, err := scte104.Decode(pkt.UDW)
		if err != nil {
			p.DecodeErrors++
			p.log.Debug("could not decode SCTE-104 message", "line", pkt.LineNr, "error", err.Error())
			return nil
		}
		return p.cb.SCTE104(pkt, m)

	case TypeCEA708:
		if p.cb.CEA708 == nil {
			return nil
		}
		cdp, err := DecodeCDP(pkt.UDW)
		if err != nil {
			p.DecodeErrors++
			p.log.Debug("could not decode CDP", "line", pkt.LineNr, "error", err.Error())
			return nil
		}
		return p.cb.CEA708(pkt, cdp)

	case TypeCEA608:
		if p.cb.CEA608 == nil || len(pkt.UDW) < 3 {
			return nil
		}
		return p.cb.CEA608(pkt, pkt.UDW[0], [2]byte{pkt.UDW[1], pkt.UDW[2]})

	case TypeCounter:
		if p.cb.Counter == nil || len(pkt.UDW) < 8 {
			return nil
		}
		return p.cb.Counter(pkt, binary.BigEndian.Uint64(pkt.UDW))

	case TypeSDP:
		if p.cb.SDP == nil {
			return nil
		}
		sdp, err := DecodeSDP(pkt.UDW)
		if err != nil {
			p.DecodeErrors++
			p.log.Debug("could not decode SDP", "line", pkt.LineNr, "error", err.Error())
			return nil
		}
		return p.cb.SDP(pkt, sdp)

	default:
		return nil
	}
}
