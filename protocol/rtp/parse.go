/*
NAME
  parse.go

DESCRIPTION
  parse.go provides functions for reading the fields of RTP packets.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"encoding/binary"
	"errors"
)

var (
	ErrShortPacket = errors.New("invalid RTP packet length")
	ErrVersion     = errors.New("incompatible RTP version")
)

// Payload returns the payload from an RTP packet, skipping any CSRCs and
// header extension.
func Payload(d []byte) ([]byte, error) {
	err := checkPacket(d)
	if err != nil {
		return nil, err
	}
	idx := headSize + 4*csrcCount(d)
	if hasExt(d) {
		if len(d) < idx+4 {
			return nil, ErrShortPacket
		}
		idx += 4 + 4*int(binary.BigEndian.Uint16(d[idx+2:]))
	}
	if len(d) < idx {
		return nil, ErrShortPacket
	}
	return d[idx:], nil
}

// PayloadType returns the payload type of an RTP packet.
func PayloadType(d []byte) (uint8, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return d[1] & 0x7f, nil
}

// SSRC returns the source identifier from an RTP packet.
func SSRC(d []byte) (uint32, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d[8:]), nil
}

// Sequence returns the sequence number of an RTP packet.
func Sequence(d []byte) (uint16, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(d[2:]), nil
}

// Timestamp returns the RTP timestamp of an RTP packet.
func Timestamp(d []byte) (uint32, error) {
	err := checkPacket(d)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(d[4:]), nil
}

// checkPacket checks the validity of the packet, firstly by checking size and
// then also checking that version is compatible with these utilities.
func checkPacket(d []byte) error {
	if len(d) < headSize {
		return ErrShortPacket
	}
	if version(d) != rtpVer {
		return ErrVersion
	}
	return nil
}

// hasExt returns true if an extension is present in the RTP packet.
func hasExt(d []byte) bool {
	return d[0]&0x10 != 0
}

// csrcCount returns the number of CSRC fields.
func csrcCount(d []byte) int {
	return int(d[0] & 0x0f)
}

// version returns the version of the RTP packet.
func version(d []byte) int {
	return int(d[0] & 0xc0 >> 6)
}
