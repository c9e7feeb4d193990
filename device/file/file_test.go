/*
DESCRIPTION
  file_test.go tests the capture dump Replayer.

AUTHORS
  Scott Barnard <scott@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/codec/v210"
	"github.com/ausocean/vanc/device"
	"github.com/ausocean/vanc/ingest"
	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/scte104"
)

// recorder is a device.Handler recording the calls made to it.
type recorder struct {
	calls []string
}

func (r *recorder) StartFrame(clock int64) { r.calls = append(r.calls, fmt.Sprintf("start %d", clock)) }

func (r *recorder) ProcessV210Line(lineNr int, src []byte, width int) error {
	r.calls = append(r.calls, fmt.Sprintf("line %d %d %d", lineNr, width, len(src)))
	return nil
}

func (r *recorder) ProcessBlocks(buf []byte) error {
	r.calls = append(r.calls, fmt.Sprintf("blocks %d", len(buf)))
	return nil
}

func (r *recorder) FinalizeFrame(f *ingest.RawFrame) error {
	r.calls = append(r.calls, "finalize")
	return nil
}

func writeDump(t *testing.T, frames func(w *Writer) error) string {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatalf("could not create writer: %v", err)
	}
	err = frames(w)
	if err != nil {
		t.Fatalf("could not write dump: %v", err)
	}
	path := filepath.Join(t.TempDir(), "capture.vanc")
	err = os.WriteFile(path, buf.Bytes(), 0o644)
	if err != nil {
		t.Fatalf("could not write dump file: %v", err)
	}
	return path
}

func TestReplay(t *testing.T) {
	path := writeDump(t, func(w *Writer) error {
		return errors.Join(
			w.StartFrame(100),
			w.WriteV210Line(10, 1920, make([]byte, 32)),
			w.WriteBlocks(make([]byte, 12)),
			w.EndFrame(),
			w.StartFrame(200),
			w.WriteV210Line(11, 720, make([]byte, 16)),
		)
	})

	rec := &recorder{}
	var frames int
	d := NewWith((*logging.TestLogger)(t), path, false, 0)
	err := d.Start(context.Background(), rec, func(f *ingest.RawFrame) { frames++ })
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	want := []string{
		"start 100", "line 10 1920 32", "blocks 12", "finalize",
		"start 200", "line 11 720 16", "finalize",
	}
	if !cmp.Equal(rec.calls, want) {
		t.Errorf("unexpected calls\n%s", cmp.Diff(want, rec.calls))
	}
	if frames != 2 {
		t.Errorf("unexpected frame count: got: %d, want: 2", frames)
	}
	if d.IsRunning() {
		t.Error("device is running, when it should not be")
	}
}

func TestReplayLoop(t *testing.T) {
	path := writeDump(t, func(w *Writer) error {
		return errors.Join(w.StartFrame(0), w.EndFrame(), w.StartFrame(1080000), w.EndFrame())
	})

	rec := &recorder{}
	d := NewWith((*logging.TestLogger)(t), path, true, 0)
	var frames int
	err := d.Start(context.Background(), rec, func(f *ingest.RawFrame) {
		frames++
		if frames == 5 {
			d.Stop()
		}
	})
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	// The clock continues across loops, one frame period at 25Hz apart.
	want := []string{"start 0", "start 1080000", "start 2160000", "start 3240000", "start 4320000"}
	var got []string
	for _, c := range rec.calls {
		if c != "finalize" {
			got = append(got, c)
		}
	}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected frame starts\n%s", cmp.Diff(want, got))
	}
}

func TestIsRunning(t *testing.T) {
	path := writeDump(t, func(w *Writer) error {
		return errors.Join(w.StartFrame(0), w.EndFrame())
	})

	d := New((*logging.TestLogger)(t))
	err := d.Set(config.Config{InputPath: path, Loop: true, FrameRate: 100})
	if err != nil {
		t.Fatalf("could not set device: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- d.Start(ctx, &recorder{}, nil) }()

	const dur = 100 * time.Millisecond
	time.Sleep(dur)
	if !d.IsRunning() {
		t.Error("device isn't running, when it should be")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("did not expect error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("replay did not stop")
	}
	if d.IsRunning() {
		t.Error("device is running, when it should not be")
	}
}

func TestSet(t *testing.T) {
	d := New((*logging.TestLogger)(t))
	err := d.Set(config.Config{})
	if !errors.Is(err, errNoInputPath) {
		t.Errorf("unexpected error for missing path: got: %v, want: %v", err, errNoInputPath)
	}

	err = d.Set(config.Config{InputPath: "dump.vanc", FrameRate: maxRate + 1})
	errs, ok := err.(device.MultiError)
	if !ok {
		t.Fatalf("expected device.MultiError, got: %v", err)
	}
	if len(errs) != 1 || !errors.Is(errs[0], errBadFrameRate) {
		t.Errorf("unexpected errors: %v", errs)
	}
	if d.rate != defaultRate {
		t.Errorf("frame rate not defaulted: got: %d, want: %d", d.rate, defaultRate)
	}

	err = d.Set(config.Config{InputPath: "dump.vanc", FrameRate: 30})
	if err != nil {
		t.Errorf("did not expect error: %v", err)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "bad magic", data: []byte("TSTS\x01"), want: ErrMagic},
		{name: "bad version", data: []byte("VANC\x02"), want: ErrVersion},
		{name: "bad type", data: []byte("VANC\x01\x09\x00\x00\x00\x00"), want: ErrRecord},
		{name: "short clock", data: []byte("VANC\x01\x01\x02\x00\x00\x00\x00\x00"), want: ErrRecord},
		{name: "truncated", data: []byte("VANC\x01\x03\x10\x00\x00\x00\x00"), want: ErrRecord},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r, err := NewReader(bytes.NewReader(test.data))
			if err == nil {
				_, err = r.Next()
			}
			if !errors.Is(err, test.want) {
				t.Errorf("unexpected error: got: %v, want: %v", err, test.want)
			}
		})
	}
}

// TestReplayIngest replays a dump carrying a SCTE-104 packet through an
// ingest instance.
func TestReplayIngest(t *testing.T) {
	m := &scte104.Message{Multi: true, ASIndex: 5, DPIPIDIndex: 80}
	pkt := anc.Encode(anc.DIDSCTE104, anc.SDIDSCTE104, m.Encode())
	luma := make([]uint16, 1920)
	copy(luma[8:], pkt)
	src, err := v210.Encode(luma, make([]uint16, 1920))
	if err != nil {
		t.Fatalf("could not encode line: %v", err)
	}
	path := writeDump(t, func(w *Writer) error {
		return errors.Join(w.StartFrame(0), w.WriteV210Line(10, 1920, src), w.EndFrame())
	})

	cfg := config.Config{
		Logger:  (*logging.TestLogger)(t),
		SCTE104: true,
		Streams: []config.Stream{{Format: config.FormatDVBTableSection, PID: 0x102}},
	}
	in, err := ingest.New(cfg, ingest.NewStreamTable(cfg.Streams), make(ingest.ChanQueue, 1))
	if err != nil {
		t.Fatalf("could not create ingest: %v", err)
	}

	var got []*ingest.RawFrame
	d := NewWith((*logging.TestLogger)(t), path, false, 0)
	err = d.Start(context.Background(), in, func(f *ingest.RawFrame) { got = append(got, f) })
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	if len(got) != 1 || got[0].Meta.Len() != 1 {
		t.Fatalf("expected one frame with one metadata item")
	}
	line, _ := got[0].Meta.Item(0).LineNr()
	if line != 10 {
		t.Errorf("unexpected line: got: %d, want: 10", line)
	}
}
