/*
NAME
  config.go

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Trek Hopton <trek@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package config contains the configuration settings for VANC ingest.
package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/scte104"
)

// Enums to define inputs and outputs.
const (
	// Indicates no option has been set.
	NothingDefined = iota

	// Inputs.
	InputFile

	// Outputs.
	OutputFile
	OutputUDP
	OutputRTP
)

// Output stream formats.
const (
	FormatDVBTableSection = iota + 1 // SCTE-35 sections.
	FormatSMPTE2038                  // SMPTE 2038 VANC PES.
	FormatDVBTeletext                // EN 300 472 teletext PES.
)

// Stream declares an output stream of the capture device.
type Stream struct {
	Format uint8
	PID    uint16
}

// Config provides parameters relevant to an ingest instance.
type Config struct {
	// Input defines the capture source. Only InputFile is supported, which
	// replays a VANC capture dump found at InputPath.
	Input     uint8
	InputPath string
	Loop      bool // If true will restart reading of input after an io.EOF.

	// FrameRate is the rate at which captured frames are delivered and the
	// rate used to advance the capture clock.
	FrameRate uint

	// Logger holds an implementation of the Logger interface.
	// This must be set for ingest to work correctly.
	Logger logging.Logger

	// LogLevel is the logging verbosity level.
	// Valid values are defined by enums from the logger package: logging.Debug,
	// logging.Info, logging.Warning logging.Error, logging.Fatal.
	LogLevel int8
	Suppress bool // Holds logger suppression state.

	// Output defines where the multiplexed MPEG-TS is written. OutputFile
	// writes to OutputPath, OutputUDP sends packets to OutputAddress and
	// OutputRTP sends them to OutputAddress in RTP.
	Output        uint8
	OutputPath    string
	OutputAddress string

	// Streams is the device's declared output stream table, in order. Output
	// stream IDs are assigned from 1 in declaration order.
	Streams []Stream

	// SCTE104 enables routing of SCTE-104 messages to SCTE-35 outputs.
	SCTE104 bool

	// Filters holds the SCTE-104 routing rules. With no rules every message
	// goes to the first DVB table section stream.
	Filters []scte104.Rule

	SMPTE2038 bool // SMPTE2038 enables SMPTE 2038 PES output of all VANC.
	Teletext  bool // Teletext enables OP-47 to DVB teletext conversion.

	// TeletextReverse bit reverses teletext data, for sources that deliver
	// bytes MSB first.
	TeletextReverse bool

	// PTSOffset is added to the frame clock when stamping SMPTE 2038 and
	// teletext PES, accounting for downstream encoder delay.
	PTSOffset time.Duration

	// Lenient delivers ancillary packets that fail their checksum.
	Lenient bool

	// PatchDID and PatchSDID, if PatchDID is non-zero, identify packets that
	// carry SCTE-104 under a non-standard DID/SDID. They are re-tagged and
	// parsed again.
	PatchDID  uint8
	PatchSDID uint8

	PSIPeriod            uint // Coded frames between PAT/PMT insertion.
	PoolCapacity         uint // The number of bytes the pool buffer will occupy.
	PoolStartElementSize uint // The starting element size of the pool buffer.
	PoolWriteTimeout     uint // The pool buffer write timeout in seconds.
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and converting into correct type, and then
// sets the config struct fields as appropriate.
func (c *Config) Update(vars map[string]string) {
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

// ReadVars reads configuration variables from r, one key=value pair per
// line. Blank lines and lines starting with # are ignored.
func ReadVars(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	s := bufio.NewScanner(r)
	for n := 1; s.Scan(); n++ {
		l := strings.TrimSpace(s.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected key=value: %q", n, l)
		}
		vars[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return vars, nil
}
