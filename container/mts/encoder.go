/*
NAME
  encoder.go

AUTHOR
  Saxon Nelson-Milton <saxon@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package mts

import (
	"errors"
	"fmt"
	"io"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/container/mts/psi"
)

// Default encoder configuration parameters.
const (
	defaultPSIPeriod = 25 // Frames between PSI.
)

var (
	ErrUnknownStream   = errors.New("unknown output stream")
	ErrDuplicateStream = errors.New("duplicate output stream")
	ErrEmptyFrame      = errors.New("empty coded frame")
)

// Stream describes an elementary stream of the multiplex.
type Stream struct {
	ID          int    // Output stream identifier, as used by CodedFrame.
	PID         uint16 // Packet identifier.
	Type        byte   // PMT stream type.
	Descriptors []psi.Descriptor
}

// CodedFrame is a complete PES packet destined for an output stream.
type CodedFrame struct {
	StreamID int    // Destination output stream.
	PTS      uint64 // Presentation timestamp in 90kHz units.
	Data     []byte // PES packet.
}

// Encoder multiplexes coded frames from a set of output streams into a
// single program transport stream.
type Encoder struct {
	dst io.WriteCloser

	streams    []Stream
	byID       map[int]Stream
	continuity map[uint16]byte

	psiPeriod int
	frames    int
	pcrPID    uint16

	patBytes, pmtBytes []byte
	tsSpace            [PacketSize]byte

	log logging.Logger
}

// NewEncoder returns an Encoder writing MPEG-TS packets to dst.
func NewEncoder(dst io.WriteCloser, log logging.Logger, options ...func(*Encoder) error) (*Encoder, error) {
	e := &Encoder{
		dst:        dst,
		byID:       make(map[int]Stream),
		continuity: map[uint16]byte{PatPid: 0, PmtPid: 0},
		psiPeriod:  defaultPSIPeriod,
		pcrPID:     psi.NoPCRPID,
		log:        log,
	}

	for _, option := range options {
		err := option(e)
		if err != nil {
			return nil, fmt.Errorf("option failed with error: %w", err)
		}
	}
	log.Debug("encoder options applied", "streams", len(e.streams), "psiPeriod", e.psiPeriod)

	var err error
	e.patBytes, err = psi.AddPadding(psi.NewPATPSI(PmtPid).Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not build PAT: %w", err)
	}
	es := make([]psi.StreamSpecificData, 0, len(e.streams))
	for _, s := range e.streams {
		es = append(es, psi.StreamSpecificData{StreamType: s.Type, PID: s.PID, Descriptors: s.Descriptors})
	}
	e.pmtBytes, err = psi.AddPadding(psi.NewPMTPSI(e.pcrPID, es...).Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not build PMT: %w", err)
	}

	return e, nil
}

// WriteFrame packetizes the PES packet in f onto the PID of its output
// stream. PSI is written before the first frame and every psi period frames.
func (e *Encoder) WriteFrame(f CodedFrame) error {
	s, ok := e.byID[f.StreamID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStream, f.StreamID)
	}
	if len(f.Data) == 0 {
		return ErrEmptyFrame
	}

	if e.frames%e.psiPeriod == 0 {
		err := e.writePSI()
		if err != nil {
			return fmt.Errorf("could not write psi: %w", err)
		}
	}
	e.frames++

	buf := f.Data
	pusi := true
	for len(buf) != 0 {
		pkt := Packet{
			PUSI: pusi,
			PID:  s.PID,
			CC:   e.ccFor(s.PID),
			AFC:  hasAdaptationField | hasPayload,
		}
		n := pkt.FillPayload(buf)
		buf = buf[n:]
		pusi = false

		b := pkt.Bytes(e.tsSpace[:PacketSize])
		_, err := e.dst.Write(b)
		if err != nil {
			return fmt.Errorf("could not write MTS packet to destination: %w", err)
		}
	}
	e.log.Debug("coded frame written", "stream", f.StreamID, "PID", s.PID, "PTS", f.PTS, "size", len(f.Data))
	return nil
}

// writePSI writes the PAT and PMT.
func (e *Encoder) writePSI() error {
	patPkt := Packet{
		PUSI:    true,
		PID:     PatPid,
		CC:      e.ccFor(PatPid),
		AFC:     hasPayload,
		Payload: e.patBytes,
	}
	_, err := e.dst.Write(patPkt.Bytes(e.tsSpace[:PacketSize]))
	if err != nil {
		return fmt.Errorf("could not write pat packet: %w", err)
	}

	pmtPkt := Packet{
		PUSI:    true,
		PID:     PmtPid,
		CC:      e.ccFor(PmtPid),
		AFC:     hasPayload,
		Payload: e.pmtBytes,
	}
	_, err = e.dst.Write(pmtPkt.Bytes(e.tsSpace[:PacketSize]))
	if err != nil {
		return fmt.Errorf("could not write pmt packet: %w", err)
	}

	e.log.Debug("PSI written", "PAT CC", patPkt.CC, "PMT CC", pmtPkt.CC)
	return nil
}

// ccFor returns the next continuity counter for pid.
func (e *Encoder) ccFor(pid uint16) byte {
	cc := e.continuity[pid]
	const continuityCounterMask = 0xf
	e.continuity[pid] = (cc + 1) & continuityCounterMask
	return cc
}

func (e *Encoder) Close() error {
	e.log.Debug("closing encoder")
	return e.dst.Close()
}
