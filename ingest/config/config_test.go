/*
DESCRIPTION
  config_test.go provides testing for the Config struct methods (Validate and Update).

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/scte104"
)

type dumbLogger struct{}

func (dl *dumbLogger) Log(l int8, m string, a ...interface{})  {}
func (dl *dumbLogger) SetLevel(l int8)                         {}
func (dl *dumbLogger) Debug(msg string, args ...interface{})   {}
func (dl *dumbLogger) Info(msg string, args ...interface{})    {}
func (dl *dumbLogger) Warning(msg string, args ...interface{}) {}
func (dl *dumbLogger) Error(msg string, args ...interface{})   {}
func (dl *dumbLogger) Fatal(msg string, args ...interface{})   {}

func TestValidate(t *testing.T) {
	dl := &dumbLogger{}

	want := Config{
		Logger:               dl,
		Input:                defaultInput,
		FrameRate:            defaultFrameRate,
		Output:               defaultOutput,
		OutputPath:           defaultOutputPath,
		Streams:              DefaultStreams,
		SCTE104:              true,
		PTSOffset:            defaultPTSOffset,
		PSIPeriod:            defaultPSIPeriod,
		PoolCapacity:         defaultPoolCapacity,
		PoolStartElementSize: defaultPoolStartElementSize,
		PoolWriteTimeout:     defaultPoolWriteTimeout,
	}

	got := Config{Logger: dl}
	err := (&got).Validate()
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}

	if !cmp.Equal(got, want) {
		t.Errorf("configs not equal\n%s", cmp.Diff(want, got))
	}
}

func TestValidateUDP(t *testing.T) {
	c := Config{Logger: &dumbLogger{}, Output: OutputUDP, SMPTE2038: true}
	c.Validate()
	if c.OutputAddress != defaultOutputAddress {
		t.Errorf("unexpected output address: %q", c.OutputAddress)
	}
	if c.OutputPath != "" {
		t.Errorf("did not expect output path for UDP output: %q", c.OutputPath)
	}
	if c.SCTE104 {
		t.Error("did not expect SCTE104 to be defaulted on when SMPTE2038 is enabled")
	}
}

func TestUpdate(t *testing.T) {
	updateMap := map[string]string{
		"Filters":              "258:5:all; 259:all:80",
		"FrameRate":            "30",
		"Input":                "file",
		"InputPath":            "/capture/vanc.dump",
		"Lenient":              "true",
		"logging":              "Debug",
		"Loop":                 "true",
		"Output":               "udp",
		"OutputAddress":        "239.0.0.1:5000",
		"PatchDID":             "0x62",
		"PatchSDID":            "1",
		"PoolCapacity":         "100000",
		"PoolStartElementSize": "2000",
		"PoolWriteTimeout":     "3",
		"PSIPeriod":            "10",
		"PTSOffset":            "2500",
		"SCTE104":              "true",
		"SMPTE2038":            "true",
		"Streams":              "scte35:258, scte35:0x103,smpte2038:257",
		"Suppress":             "true",
		"Teletext":             "false",
		"TeletextReverse":      "true",
	}

	dl := &dumbLogger{}
	want := Config{
		Logger: dl,
		Filters: []scte104.Rule{
			{PID: 258, ASIndex: 5, DPIPIDIndex: scte104.All},
			{PID: 259, ASIndex: scte104.All, DPIPIDIndex: 80},
		},
		FrameRate:            30,
		Input:                InputFile,
		InputPath:            "/capture/vanc.dump",
		Lenient:              true,
		LogLevel:             logging.Debug,
		Loop:                 true,
		Output:               OutputUDP,
		OutputAddress:        "239.0.0.1:5000",
		PatchDID:             0x62,
		PatchSDID:            1,
		PoolCapacity:         100000,
		PoolStartElementSize: 2000,
		PoolWriteTimeout:     3,
		PSIPeriod:            10,
		PTSOffset:            2500 * time.Millisecond,
		SCTE104:              true,
		SMPTE2038:            true,
		Streams: []Stream{
			{Format: FormatDVBTableSection, PID: 258},
			{Format: FormatDVBTableSection, PID: 0x103},
			{Format: FormatSMPTE2038, PID: 257},
		},
		Suppress:        true,
		TeletextReverse: true,
	}

	got := Config{Logger: dl}
	got.Update(updateMap)
	if !cmp.Equal(want, got) {
		t.Errorf("configs not equal\n%s", cmp.Diff(want, got))
	}
}

func TestUpdateInvalid(t *testing.T) {
	c := Config{Logger: &dumbLogger{}}
	c.Update(map[string]string{
		"Filters": "258:5",
		"Streams": "audio:100",
	})
	if c.Filters != nil {
		t.Errorf("did not expect filters from invalid rules: %v", c.Filters)
	}
	if c.Streams != nil {
		t.Errorf("did not expect streams from invalid declaration: %v", c.Streams)
	}
}

func TestValidatePatch(t *testing.T) {
	tests := []struct {
		did, sdid         uint8
		wantDID, wantSDID uint8
	}{
		{did: 0x51, sdid: 0x07, wantDID: 0x51, wantSDID: 0x07},
		{did: 0x41, sdid: 0x08, wantDID: 0x41, wantSDID: 0x08},
		{did: 0x41, sdid: 0x07},
		{did: 0xc1, sdid: 0x07},
		{did: 0x91, sdid: 0x01},
		{sdid: 0x07, wantSDID: 0x07},
	}

	for i, test := range tests {
		c := Config{Logger: &dumbLogger{}, PatchDID: test.did, PatchSDID: test.sdid}
		c.Validate()
		if c.PatchDID != test.wantDID || c.PatchSDID != test.wantSDID {
			t.Errorf("did not get expected patch pair for test %d: got: %#x/%#x, want: %#x/%#x", i, c.PatchDID, c.PatchSDID, test.wantDID, test.wantSDID)
		}
	}
}

func TestReadVars(t *testing.T) {
	const in = `
# Routing.
Filters = 258:5:all
SMPTE2038=true

PTSOffset=10000
`
	got, err := ReadVars(strings.NewReader(in))
	if err != nil {
		t.Fatalf("did not expect error: %v", err)
	}
	want := map[string]string{
		"Filters":   "258:5:all",
		"SMPTE2038": "true",
		"PTSOffset": "10000",
	}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected vars\n%s", cmp.Diff(want, got))
	}

	_, err = ReadVars(strings.NewReader("Filters\n"))
	if err == nil {
		t.Error("expected error for line without '='")
	}
}
