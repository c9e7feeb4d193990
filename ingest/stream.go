/*
NAME
  stream.go

DESCRIPTION
  stream.go provides the output stream table used to resolve routing
  destinations to output stream IDs.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package ingest

import (
	"github.com/ausocean/vanc/container/mts"
	"github.com/ausocean/vanc/container/mts/psi"
	"github.com/ausocean/vanc/ingest/config"
)

// StreamType is the broad class of an output stream.
type StreamType int

const (
	TypeMisc StreamType = iota
	TypeSubtitle
)

// OutputStream is an output stream declared by the capture device.
type OutputStream struct {
	ID     int
	Type   StreamType
	Format uint8 // One of the config.Format values.
	PID    uint16
}

// StreamTable is the ordered set of output streams of a device.
type StreamTable []OutputStream

// NewStreamTable returns a table for the declared streams, assigning IDs
// from 1 in declaration order.
func NewStreamTable(streams []config.Stream) StreamTable {
	t := make(StreamTable, 0, len(streams))
	for i, s := range streams {
		typ := TypeMisc
		if s.Format == config.FormatDVBTeletext {
			typ = TypeSubtitle
		}
		t = append(t, OutputStream{ID: i + 1, Type: typ, Format: s.Format, PID: s.PID})
	}
	return t
}

// Lookup returns the instance'th stream, counting from 0, of the given type
// and format.
func (t StreamTable) Lookup(typ StreamType, format uint8, instance int) (OutputStream, bool) {
	for _, s := range t {
		if s.Type != typ || s.Format != format {
			continue
		}
		if instance == 0 {
			return s, true
		}
		instance--
	}
	return OutputStream{}, false
}

// ByPID returns the stream of the given format carried on pid.
func (t StreamTable) ByPID(format uint8, pid uint16) (OutputStream, bool) {
	for _, s := range t {
		if s.Format == format && s.PID == pid {
			return s, true
		}
	}
	return OutputStream{}, false
}

// MTSStreams returns the multiplexer declaration of the table's streams.
func (t StreamTable) MTSStreams() []mts.Stream {
	streams := make([]mts.Stream, 0, len(t))
	for _, s := range t {
		ms := mts.Stream{ID: s.ID, PID: s.PID, Type: psi.StreamTypePrivateData}
		switch s.Format {
		case config.FormatDVBTableSection:
			ms.Type = psi.StreamTypeSCTE35
			ms.Descriptors = []psi.Descriptor{psi.RegistrationDescriptor("CUEI")}
		case config.FormatSMPTE2038:
			ms.Descriptors = []psi.Descriptor{psi.RegistrationDescriptor("VANC")}
		case config.FormatDVBTeletext:
			ms.Descriptors = []psi.Descriptor{psi.TeletextDescriptor("eng", 1, 0x00)}
		}
		streams = append(streams, ms)
	}
	return streams
}
