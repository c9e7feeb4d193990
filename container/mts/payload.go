/*
NAME
  payload.go

DESCRIPTION
  payload.go provides functionality for extracting the PES payloads carried
  by each elementary stream of an MPEG-TS clip.

AUTHOR
  Saxon A. Nelson-Milton <saxon@ausocean.org>

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

	"github.com/Comcast/gots/packet"
	"github.com/Comcast/gots/pes"
)

// Extract extracts the PES data, PTS and stream ID of every frame on every
// elementary stream of an MPEG-TS clip given by p. PSI packets are skipped.
// The MPEG-TS must contain only complete packets. The resultant data is a
// copy of the original.
func Extract(p []byte) (*Clip, error) {
	l := len(p)
	if l%PacketSize != 0 {
		return nil, errors.New("MTS clip is not of valid size")
	}

	var (
		clip    = &Clip{}
		open    = make(map[int]int) // PID to index of its current frame.
		lastCC  = make(map[int]int)
		pkt     packet.Packet
		payload []byte
		err     error
	)
	for i := 0; i < l; i += PacketSize {
		copy(pkt[:], p[i:i+PacketSize])

		pid := pkt.PID()
		if pid == PatPid || pid == PmtPid {
			continue
		}

		cc := int(pkt[3] & 0x0f)
		if last, ok := lastCC[pid]; ok && cc != (last+1)&0xf {
			clip.Discontinuities++
		}
		lastCC[pid] = cc

		payload, err = pkt.Payload()
		if err != nil {
			return nil, fmt.Errorf("could not extract payload: %w", err)
		}

		// If PUSI is true then we know it's the start of a new frame, and we have
		// a PES header in the MTS payload.
		if pkt.PayloadUnitStartIndicator() {
			hdr, err := pes.NewPESHeader(payload)
			if err != nil {
				return nil, fmt.Errorf("could not parse PES: %w", err)
			}
			clip.frames = append(clip.frames, Frame{
				PTS:   hdr.PTS(),
				ID:    hdr.StreamId(),
				PID:   uint16(pid),
				Media: append([]byte(nil), hdr.Data()...),
			})
			open[pid] = len(clip.frames) - 1
			continue
		}

		idx, ok := open[pid]
		if !ok {
			// Continuation of a frame that began before the clip.
			continue
		}
		clip.frames[idx].Media = append(clip.frames[idx].Media, payload...)
	}
	return clip, nil
}

// Clip represents a sequence of frames extracted from MPEG-TS.
type Clip struct {
	frames []Frame

	// Discontinuities is the number of continuity counter errors seen.
	Discontinuities int
}

// Frame describes a frame that may be extracted from a PES packet.
type Frame struct {
	Media []byte // PES payload.
	PTS   uint64 // PTS from PES packet.
	ID    uint8  // StreamID from the PES packet.
	PID   uint16 // PID the frame was carried on.
}

// Frames returns the frames of the clip in order of their first packet.
func (c *Clip) Frames() []Frame {
	return c.frames
}

// FramesFor returns the frames carried on pid.
func (c *Clip) FramesFor(pid uint16) []Frame {
	var f []Frame
	for _, fr := range c.frames {
		if fr.PID == pid {
			f = append(f, fr)
		}
	}
	return f
}
