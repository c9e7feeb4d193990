/*
NAME
  message.go

DESCRIPTION
  message.go provides decoding and encoding of SCTE-104 messages as carried
  in VANC according to SMPTE 2010, i.e. a payload descriptor byte followed by
  a single or multiple operation message.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package scte104 provides SCTE-104 message decoding and the filter table used
// to route SCTE-104 messages to SCTE-35 output streams.
package scte104

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Ancillary packet identifiers for SCTE-104 (SMPTE 2010).
const (
	DID  = 0x41
	SDID = 0x07
)

// multiOpID is the opID value that marks a multiple_operation_message.
const multiOpID = 0xffff

// Operation identifiers.
const (
	OpInitRequest            = 0x0001
	OpAliveRequest           = 0x0003
	OpInjectResponse         = 0x0007
	OpSpliceRequest          = 0x0101
	OpSpliceNullRequest      = 0x0102
	OpTimeSignalRequest      = 0x0104
	OpTransmitSchedule       = 0x0105
	OpComponentModeDPI       = 0x0106
	OpInsertDescriptor       = 0x0108
	OpInsertDTMFDescriptor   = 0x0109
	OpInsertAvailDescriptor  = 0x010a
	OpInsertSegmentationDesc = 0x010b
	OpProprietaryCommand     = 0x010c
	OpInsertTier             = 0x010f
	OpInsertTimeDescriptor   = 0x0110
)

var opNames = map[uint16]string{
	OpInitRequest:            "init_request",
	OpAliveRequest:           "alive_request",
	OpInjectResponse:         "inject_response",
	OpSpliceRequest:          "splice_request",
	OpSpliceNullRequest:      "splice_null",
	OpTimeSignalRequest:      "time_signal_request",
	OpTransmitSchedule:       "transmit_schedule",
	OpComponentModeDPI:       "component_mode_DPI",
	OpInsertDescriptor:       "insert_descriptor",
	OpInsertDTMFDescriptor:   "insert_DTMF_descriptor",
	OpInsertAvailDescriptor:  "insert_avail_descriptor",
	OpInsertSegmentationDesc: "insert_segmentation_descriptor",
	OpProprietaryCommand:     "proprietary_command",
	OpInsertTier:             "insert_tier",
	OpInsertTimeDescriptor:   "insert_time_descriptor",
}

// OpName returns a readable name for an operation id.
func OpName(id uint16) string {
	if n, ok := opNames[id]; ok {
		return n
	}
	return fmt.Sprintf("op(0x%04x)", id)
}

// Timestamp types of a multiple_operation_message.
const (
	TimeNone = 0
	TimeUTC  = 1
	TimeVITC = 2
	TimeGPI  = 3
)

var timestampSize = [...]int{TimeNone: 0, TimeUTC: 6, TimeVITC: 4, TimeGPI: 2}

var (
	ErrShortMessage = errors.New("scte104 message too short")
	ErrTimeType     = errors.New("unknown scte104 timestamp type")
)

// Operation is a single operation of a multiple_operation_message.
type Operation struct {
	OpID uint16
	Data []byte
}

// Message is a decoded SCTE-104 message.
type Message struct {
	// Payload descriptor fields (SMPTE 2010).
	Version   uint8
	Continued bool
	Following bool
	Duplicate bool

	Multi           bool   // Multiple operation message.
	OpID            uint16 // Single operation messages only.
	Result          uint16 // Single operation messages only.
	ResultExt       uint16 // Single operation messages only.
	ProtocolVersion uint8
	ASIndex         uint8
	MessageNumber   uint8
	DPIPIDIndex     uint16
	SCTE35Version   uint8 // Multiple operation messages only.
	TimeType        uint8
	Time            []byte
	Ops             []Operation
	Data            []byte // Single operation message data.
}

// Indexes returns the routing keys of m.
func (m *Message) Indexes() Indexes {
	return Indexes{ASIndex: int32(m.ASIndex), DPIPIDIndex: int32(m.DPIPIDIndex)}
}

// Decode decodes a message from the user data words of a SCTE-104 ancillary
// packet, given as bytes.
func Decode(udw []byte) (*Message, error) {
	if len(udw) < 3 {
		return nil, ErrShortMessage
	}
	pd := udw[0]
	m := &Message{
		Version:   (pd >> 3) & 0x03,
		Continued: pd&0x04 != 0,
		Following: pd&0x02 != 0,
		Duplicate: pd&0x01 != 0,
	}
	b := udw[1:]

	if binary.BigEndian.Uint16(b) == multiOpID {
		m.Multi = true
		return m, errors.Wrap(m.decodeMulti(b), "could not decode multiple_operation_message")
	}
	return m, errors.Wrap(m.decodeSingle(b), "could not decode single_operation_message")
}

func (m *Message) decodeSingle(b []byte) error {
	const headSize = 13
	if len(b) < headSize {
		return ErrShortMessage
	}
	m.OpID = binary.BigEndian.Uint16(b[0:])
	size := int(binary.BigEndian.Uint16(b[2:]))
	m.Result = binary.BigEndian.Uint16(b[4:])
	m.ResultExt = binary.BigEndian.Uint16(b[6:])
	m.ProtocolVersion = b[8]
	m.ASIndex = b[9]
	m.MessageNumber = b[10]
	m.DPIPIDIndex = binary.BigEndian.Uint16(b[11:])
	if size < headSize || size > len(b) {
		return fmt.Errorf("%w: message size %d, have %d", ErrShortMessage, size, len(b))
	}
	m.Data = b[headSize:size]
	return nil
}

func (m *Message) decodeMulti(b []byte) error {
	const headSize = 11
	if len(b) < headSize {
		return ErrShortMessage
	}
	size := int(binary.BigEndian.Uint16(b[2:]))
	if size > len(b) {
		return fmt.Errorf("%w: message size %d, have %d", ErrShortMessage, size, len(b))
	}
	b = b[:size]
	if len(b) < headSize {
		return ErrShortMessage
	}
	m.ProtocolVersion = b[4]
	m.ASIndex = b[5]
	m.MessageNumber = b[6]
	m.DPIPIDIndex = binary.BigEndian.Uint16(b[7:])
	m.SCTE35Version = b[9]
	m.TimeType = b[10]
	if int(m.TimeType) >= len(timestampSize) {
		return fmt.Errorf("%w: %d", ErrTimeType, m.TimeType)
	}
	off := headSize
	n := timestampSize[m.TimeType]
	if len(b) < off+n+1 {
		return ErrShortMessage
	}
	m.Time = b[off : off+n]
	off += n

	numOps := int(b[off])
	off++
	for i := 0; i < numOps; i++ {
		if len(b) < off+4 {
			return fmt.Errorf("%w: op %d header", ErrShortMessage, i)
		}
		op := Operation{OpID: binary.BigEndian.Uint16(b[off:])}
		l := int(binary.BigEndian.Uint16(b[off+2:]))
		off += 4
		if len(b) < off+l {
			return fmt.Errorf("%w: op %d data", ErrShortMessage, i)
		}
		op.Data = b[off : off+l]
		off += l
		m.Ops = append(m.Ops, op)
	}
	return nil
}

// Encode returns m encoded as user data word bytes, including the payload
// descriptor byte.
func (m *Message) Encode() []byte {
	pd := (m.Version&0x03)<<3 | boolBit(m.Continued)<<2 | boolBit(m.Following)<<1 | boolBit(m.Duplicate)
	b := []byte{pd}
	if !m.Multi {
		size := 13 + len(m.Data)
		b = binary.BigEndian.AppendUint16(b, m.OpID)
		b = binary.BigEndian.AppendUint16(b, uint16(size))
		b = binary.BigEndian.AppendUint16(b, m.Result)
		b = binary.BigEndian.AppendUint16(b, m.ResultExt)
		b = append(b, m.ProtocolVersion, m.ASIndex, m.MessageNumber)
		b = binary.BigEndian.AppendUint16(b, m.DPIPIDIndex)
		return append(b, m.Data...)
	}

	start := len(b)
	b = binary.BigEndian.AppendUint16(b, multiOpID)
	b = append(b, 0, 0) // Size, filled below.
	b = append(b, m.ProtocolVersion, m.ASIndex, m.MessageNumber)
	b = binary.BigEndian.AppendUint16(b, m.DPIPIDIndex)
	b = append(b, m.SCTE35Version, m.TimeType)
	b = append(b, m.Time...)
	b = append(b, byte(len(m.Ops)))
	for _, op := range m.Ops {
		b = binary.BigEndian.AppendUint16(b, op.OpID)
		b = binary.BigEndian.AppendUint16(b, uint16(len(op.Data)))
		b = append(b, op.Data...)
	}
	binary.BigEndian.PutUint16(b[start+2:], uint16(len(b)-start))
	return b
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}
