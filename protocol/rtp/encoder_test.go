/*
NAME
  encoder_test.go

DESCRIPTION
  encoder_test.go tests RTP packetization of MPEG-TS.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtp

import (
	"bytes"
	"testing"
	"time"
)

// packets records each write as a separate packet.
type packets [][]byte

func (p *packets) Write(b []byte) (int, error) {
	*p = append(*p, append([]byte(nil), b...))
	return len(b), nil
}

func TestEncoder(t *testing.T) {
	var dst packets
	e := NewEncoder(&dst)
	start := e.start
	var calls int
	e.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls) * 10 * time.Millisecond)
	}

	ts := make([]byte, 10*mtsSize)
	for i := range ts {
		ts[i] = byte(i / mtsSize)
	}
	for i := 0; i < 10; i++ {
		_, err := e.Write(ts[i*mtsSize : (i+1)*mtsSize])
		if err != nil {
			t.Fatalf("did not expect error: %v", err)
		}
	}
	if len(dst) != 1 {
		t.Fatalf("unexpected packet count before flush: got: %d, want: 1", len(dst))
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(dst) != 2 {
		t.Fatalf("unexpected packet count after flush: got: %d, want: 2", len(dst))
	}

	var got []byte
	for i, p := range dst {
		seq, _ := Sequence(p)
		if seq != uint16(i) {
			t.Errorf("unexpected sequence for packet %d: %d", i, seq)
		}
		stamp, _ := Timestamp(p)
		if want := uint32(i+1) * 900; stamp != want {
			t.Errorf("unexpected timestamp for packet %d: got: %d, want: %d", i, stamp, want)
		}
		pt, _ := PayloadType(p)
		if pt != PayloadTypeMP2T {
			t.Errorf("unexpected payload type: %d", pt)
		}
		payload, err := Payload(p)
		if err != nil {
			t.Fatalf("could not get payload: %v", err)
		}
		got = append(got, payload...)
	}
	if !bytes.Equal(got, ts) {
		t.Error("payloads do not reassemble the transport stream")
	}
}
