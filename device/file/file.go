/*
DESCRIPTION
  file.go provides an implementation of the Capturer interface that replays
  VANC capture dumps.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package file provides an implementation of Capturer for capture dumps.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/device"
	"github.com/ausocean/vanc/ingest"
	"github.com/ausocean/vanc/ingest/config"
)

// defaultRate is used to advance the clock across loops when no frame rate
// is set, and in place of an out of range rate.
const (
	defaultRate = 25
	maxRate     = 120
)

// Configuration errors.
var (
	errNoInputPath  = errors.New("no input path")
	errBadFrameRate = errors.New("frame rate bad or unset, defaulting")
)

// Replayer is an implementation of the Capturer interface for a file
// containing a capture dump. Frames are delivered at the configured frame
// rate, or as fast as possible if the rate is zero.
type Replayer struct {
	path      string
	loop      bool
	rate      uint
	isRunning bool
	log       logging.Logger
	set       bool
	cancel    context.CancelFunc
	mu        sync.Mutex
}

// New returns a new Replayer.
func New(l logging.Logger) *Replayer { return &Replayer{log: l} }

// NewWith returns a new Replayer with required params provided i.e. the Set
// method does not need to be called.
func NewWith(l logging.Logger, path string, loop bool, rate uint) *Replayer {
	return &Replayer{log: l, path: path, loop: loop, rate: rate, set: true}
}

// Name returns the name of the device.
func (r *Replayer) Name() string {
	return "File"
}

// Set uses the InputPath, Loop and FrameRate fields of c. A bad frame rate is
// replaced by the default and reported in a device.MultiError; a missing
// input path is fatal.
func (r *Replayer) Set(c config.Config) error {
	if c.InputPath == "" {
		return errNoInputPath
	}
	var errs device.MultiError
	if c.FrameRate > maxRate {
		errs = append(errs, errBadFrameRate)
		c.FrameRate = defaultRate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.path = c.InputPath
	r.loop = c.Loop
	r.rate = c.FrameRate
	r.set = true
	if len(errs) != 0 {
		return errs
	}
	return nil
}

// Start replays the dump, passing each frame to h and then to out. It
// returns when the dump ends, unless looping, or when ctx is cancelled or
// Stop is called.
func (r *Replayer) Start(ctx context.Context, h device.Handler, out device.FrameFunc) error {
	r.mu.Lock()
	if !r.set {
		r.mu.Unlock()
		return errors.New("Replayer has not been set with config")
	}
	if r.isRunning {
		r.mu.Unlock()
		return errors.New("Replayer already running")
	}
	f, err := os.Open(r.path)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("could not open capture dump: %w", err)
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.isRunning = true
	r.mu.Unlock()

	defer func() {
		f.Close()
		r.mu.Lock()
		r.isRunning = false
		r.cancel()
		r.mu.Unlock()
	}()
	return r.replay(ctx, f, h, out)
}

func (r *Replayer) replay(ctx context.Context, f *os.File, h device.Handler, out device.FrameFunc) error {
	rd, err := NewReader(f)
	if err != nil {
		return err
	}

	var tick <-chan time.Time
	rate := r.rate
	if rate != 0 {
		t := time.NewTicker(time.Second / time.Duration(rate))
		defer t.Stop()
		tick = t.C
	} else {
		rate = defaultRate
	}
	period := int64(ingest.ClockRate / rate)

	var (
		inFrame       bool
		haveFirst     bool
		first, last   int64
		offset        int64
		frames, loops int
		passStart     int
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		rec, err := rd.Next()
		if err == io.EOF {
			if inFrame {
				r.finish(h, out)
				inFrame = false
			}
			if !r.loop {
				r.log.Info("end of capture dump", "frames", frames)
				return nil
			}
			if frames == passStart {
				return errors.New("capture dump holds no frames")
			}
			passStart = frames
			r.log.Info("looping input file", "loops", loops)
			loops++
			_, err = f.Seek(0, io.SeekStart)
			if err != nil {
				return fmt.Errorf("could not seek to start of file for input loop: %w", err)
			}
			rd, err = NewReader(f)
			if err != nil {
				return err
			}
			offset += last - first + period
			continue
		}
		if err != nil {
			return err
		}

		switch rec.Type {
		case RecordFrameStart:
			if inFrame {
				r.finish(h, out)
			}
			if tick != nil {
				select {
				case <-ctx.Done():
					return nil
				case <-tick:
				}
			}
			if !haveFirst {
				first, haveFirst = rec.Clock, true
			}
			last = rec.Clock
			h.StartFrame(rec.Clock + offset)
			inFrame = true
			frames++
		case RecordV210Line:
			if !inFrame {
				continue
			}
			err := h.ProcessV210Line(rec.LineNr, rec.Data, rec.Width)
			if err != nil {
				r.log.Warning("could not process line", "line", rec.LineNr, "error", err.Error())
			}
		case RecordBlocks:
			if !inFrame {
				continue
			}
			err := h.ProcessBlocks(rec.Data)
			if err != nil {
				r.log.Warning("could not process ancillary blocks", "error", err.Error())
			}
		case RecordFrameEnd:
			if inFrame {
				r.finish(h, out)
				inFrame = false
			}
		}
	}
}

// finish finalizes the current frame and hands it to out.
func (r *Replayer) finish(h device.Handler, out device.FrameFunc) {
	f := &ingest.RawFrame{}
	err := h.FinalizeFrame(f)
	if err != nil {
		r.log.Warning("frame finalized with errors", "error", err.Error())
	}
	if out != nil {
		out(f)
	}
}

// Stop stops a running replay.
func (r *Replayer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

// IsRunning is used to determine if the Replayer is running.
func (r *Replayer) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning
}
