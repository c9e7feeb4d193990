/*
NAME
  encoder.go

DESCRIPTION
  encoder.go provides an io.Writer that packetizes MPEG-TS into RTP.

AUTHOR
  Saxon Nelson-Milton (saxon@ausocean.org)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"io"
	"math/rand"
	"time"
)

const (
	PayloadTypeMP2T = 33    // RFC 3551 payload type for MPEG-TS.
	timestampFreq   = 90000 // Hz
	mtsSize         = 188
	sendSize        = 7 * mtsSize
)

// Encoder implements io.Writer and wraps whole MPEG-TS packets into RTP
// packets of up to seven TS packets. Timestamps advance with the time since
// the encoder was created, at 90kHz.
type Encoder struct {
	dst      io.Writer
	ssrc     uint32
	seqNo    uint16
	start    time.Time
	now      func() time.Time
	buffer   []byte
	pktSpace [maxPktSize]byte
}

// NewEncoder returns a new Encoder writing RTP packets to dst.
func NewEncoder(dst io.Writer) *Encoder {
	e := &Encoder{
		dst:  dst,
		ssrc: rand.Uint32(),
		now:  time.Now,
	}
	e.start = e.now()
	return e
}

// Write buffers data and sends an RTP packet for each whole seven TS packets
// held. Call Flush to send a partial remainder.
func (e *Encoder) Write(data []byte) (int, error) {
	e.buffer = append(e.buffer, data...)
	buf := e.buffer
	for len(buf) >= sendSize {
		err := e.Encode(buf[:sendSize])
		if err != nil {
			return len(data), err
		}
		buf = buf[sendSize:]
	}
	e.buffer = append(e.buffer[:0], buf...)
	return len(data), nil
}

// Flush sends any buffered TS packets.
func (e *Encoder) Flush() error {
	if len(e.buffer) == 0 {
		return nil
	}
	err := e.Encode(e.buffer)
	e.buffer = e.buffer[:0]
	return err
}

// Encode writes payload as a single RTP packet.
func (e *Encoder) Encode(payload []byte) error {
	pkt := Packet{
		PayloadType: PayloadTypeMP2T,
		Sequence:    e.nxtSeqNo(),
		Timestamp:   e.nxtTimestamp(),
		SSRC:        e.ssrc,
		Payload:     payload,
	}
	_, err := e.dst.Write(pkt.Bytes(e.pktSpace[:0]))
	return err
}

// nxtTimestamp gets the next timestamp.
func (e *Encoder) nxtTimestamp() uint32 {
	return uint32(e.now().Sub(e.start).Seconds() * timestampFreq)
}

// nxtSeqNo gets the next rtp packet sequence number.
func (e *Encoder) nxtSeqNo() uint16 {
	e.seqNo++
	return e.seqNo - 1
}
