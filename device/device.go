/*
DESCRIPTION
  device.go provides Capturer, an interface that describes a configurable
  capture device that can be started and stopped and that delivers the
  ancillary data of captured frames to a Handler.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package device provides an interface and implementations for capture
// devices that can be started and stopped and from which the ancillary data
// of video frames can be obtained.
package device

import (
	"context"
	"fmt"

	"github.com/ausocean/vanc/ingest"
	"github.com/ausocean/vanc/ingest/config"
)

// Handler processes the ancillary data of captured frames. For each frame a
// Capturer calls StartFrame, then any number of ProcessV210Line and
// ProcessBlocks, then FinalizeFrame. *ingest.Ingest is a Handler.
type Handler interface {
	StartFrame(clock int64)
	ProcessV210Line(lineNr int, src []byte, width int) error
	ProcessBlocks(buf []byte) error
	FinalizeFrame(f *ingest.RawFrame) error
}

// FrameFunc receives each finalized frame. The frame is owned by the callee.
type FrameFunc func(f *ingest.RawFrame)

// Capturer describes a configurable capture device from which the ancillary
// data of frames can be obtained.
type Capturer interface {
	// Name returns the name of the Capturer.
	Name() string

	// Set allows for configuration of the Capturer using a Config struct. All,
	// some or none of the fields of the Config struct may be used for
	// configuration by an implementation. An implementation should specify
	// what fields are considered.
	Set(c config.Config) error

	// Start captures frames, passing each to h and then to out, until ctx is
	// cancelled, Stop is called or the input ends. Start blocks; it returns
	// nil when capture ended normally.
	Start(ctx context.Context, h Handler, out FrameFunc) error

	// Stop stops a running capture.
	Stop() error

	// IsRunning is used to determine if the device is running.
	IsRunning() bool
}

// MultiError implements the built in error interface. MultiError is used here
// to collect multiple errors during validation of configuration parameters
// for Capturers.
type MultiError []error

func (me MultiError) Error() string {
	if len(me) == 0 {
		panic("device: invalid use of MultiError")
	}
	return fmt.Sprintf("%v", []error(me))
}
