/*
DESCRIPTION
  variables.go contains a list of structs that provide a variable Name, type in
  a string format, a function for updating the variable in the Config struct
  from a string, and finally, a validation function to check the validity of the
  corresponding field value in the Config.

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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/anc"
	"github.com/ausocean/vanc/scte104"
)

// Config map Keys.
const (
	KeyFilters              = "Filters"
	KeyFrameRate            = "FrameRate"
	KeyInput                = "Input"
	KeyInputPath            = "InputPath"
	KeyLenient              = "Lenient"
	KeyLogging              = "logging"
	KeyLoop                 = "Loop"
	KeyOutput               = "Output"
	KeyOutputAddress        = "OutputAddress"
	KeyOutputPath           = "OutputPath"
	KeyPatchDID             = "PatchDID"
	KeyPatchSDID            = "PatchSDID"
	KeyPoolCapacity         = "PoolCapacity"
	KeyPoolStartElementSize = "PoolStartElementSize"
	KeyPoolWriteTimeout     = "PoolWriteTimeout"
	KeyPSIPeriod            = "PSIPeriod"
	KeyPTSOffset            = "PTSOffset"
	KeySCTE104              = "SCTE104"
	KeySMPTE2038            = "SMPTE2038"
	KeyStreams              = "Streams"
	KeySuppress             = "Suppress"
	KeyTeletext             = "Teletext"
	KeyTeletextReverse      = "TeletextReverse"
)

// Config map parameter types.
const (
	typeString = "string"
	typeUint   = "uint"
	typeBool   = "bool"
)

// Default variable values.
const (
	defaultInput         = InputFile
	defaultOutput        = OutputFile
	defaultOutputPath    = "vanc.ts"
	defaultOutputAddress = "localhost:1234"
	defaultVerbosity     = logging.Error
	defaultFrameRate     = 25
	defaultPSIPeriod     = 25
	defaultPTSOffset     = 10 * time.Second

	// Ring buffer defaults.
	defaultPoolCapacity         = 10000000 // => 10MB
	defaultPoolStartElementSize = 1000     // bytes
	defaultPoolWriteTimeout     = 5        // Seconds.
)

// Default output stream PIDs.
const (
	defaultSMPTE2038PID = 0x101
	defaultSCTE35PID    = 0x102
	defaultTeletextPID  = 0x103
)

// DefaultStreams is the output stream table used when none is configured.
var DefaultStreams = []Stream{
	{Format: FormatDVBTableSection, PID: defaultSCTE35PID},
	{Format: FormatSMPTE2038, PID: defaultSMPTE2038PID},
	{Format: FormatDVBTeletext, PID: defaultTeletextPID},
}

var formats = map[string]uint8{
	"scte35":    FormatDVBTableSection,
	"smpte2038": FormatSMPTE2038,
	"teletext":  FormatDVBTeletext,
}

// Variables describes the variables that can be used for ingest control.
// These structs provide the name and type of variable, a function for updating
// this variable in a Config, and a function for validating the value of the variable.
var Variables = []struct {
	Name     string
	Type     string
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name: KeyFilters,
		Type: typeString,
		Update: func(c *Config, v string) {
			rules, err := scte104.ParseRules(v)
			if err != nil {
				c.Logger.Warning("invalid Filters param", "value", v, "error", err)
				return
			}
			if len(rules) > scte104.MaxRules {
				c.Logger.Warning("too many filter rules, truncating", "rules", len(rules), "max", scte104.MaxRules)
				rules = rules[:scte104.MaxRules]
			}
			c.Filters = rules
		},
	},
	{
		Name:     KeyFrameRate,
		Type:     typeUint,
		Update:   func(c *Config, v string) { c.FrameRate = parseUint(KeyFrameRate, v, c) },
		Validate: func(c *Config) { c.FrameRate = lessThanOrEqual(KeyFrameRate, c.FrameRate, 0, c, defaultFrameRate) },
	},
	{
		Name: KeyInput,
		Type: "enum:file",
		Update: func(c *Config, v string) {
			c.Input = parseEnum(KeyInput, v, map[string]uint8{"file": InputFile}, c)
		},
		Validate: func(c *Config) {
			switch c.Input {
			case InputFile:
			default:
				c.LogInvalidField(KeyInput, defaultInput)
				c.Input = defaultInput
			}
		},
	},
	{
		Name:   KeyInputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.InputPath = v },
	},
	{
		Name:   KeyLenient,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Lenient = parseBool(KeyLenient, v, c) },
	},
	{
		Name: KeyLogging,
		Type: "enum:Debug,Info,Warning,Error,Fatal",
		Update: func(c *Config, v string) {
			switch v {
			case "Debug":
				c.LogLevel = logging.Debug
			case "Info":
				c.LogLevel = logging.Info
			case "Warning":
				c.LogLevel = logging.Warning
			case "Error":
				c.LogLevel = logging.Error
			case "Fatal":
				c.LogLevel = logging.Fatal
			default:
				c.Logger.Warning("invalid Logging param", "value", v)
			}
		},
		Validate: func(c *Config) {
			switch c.LogLevel {
			case logging.Debug, logging.Info, logging.Warning, logging.Error, logging.Fatal:
			default:
				c.LogInvalidField("LogLevel", defaultVerbosity)
				c.LogLevel = defaultVerbosity
			}
		},
	},
	{
		Name:   KeyLoop,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Loop = parseBool(KeyLoop, v, c) },
	},
	{
		Name: KeyOutput,
		Type: "enum:file,udp,rtp",
		Update: func(c *Config, v string) {
			c.Output = parseEnum(KeyOutput, v, map[string]uint8{"file": OutputFile, "udp": OutputUDP, "rtp": OutputRTP}, c)
		},
		Validate: func(c *Config) {
			switch c.Output {
			case OutputFile, OutputUDP, OutputRTP:
			default:
				c.LogInvalidField(KeyOutput, defaultOutput)
				c.Output = defaultOutput
			}
		},
	},
	{
		Name:   KeyOutputAddress,
		Type:   typeString,
		Update: func(c *Config, v string) { c.OutputAddress = v },
		Validate: func(c *Config) {
			if (c.Output == OutputUDP || c.Output == OutputRTP) && c.OutputAddress == "" {
				c.LogInvalidField(KeyOutputAddress, defaultOutputAddress)
				c.OutputAddress = defaultOutputAddress
			}
		},
	},
	{
		Name:   KeyOutputPath,
		Type:   typeString,
		Update: func(c *Config, v string) { c.OutputPath = v },
		Validate: func(c *Config) {
			if c.Output == OutputFile && c.OutputPath == "" {
				c.LogInvalidField(KeyOutputPath, defaultOutputPath)
				c.OutputPath = defaultOutputPath
			}
		},
	},
	{
		Name:   KeyPatchDID,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PatchDID = parseByte(KeyPatchDID, v, c) },
		Validate: func(c *Config) {
			if c.PatchDID == 0 {
				return
			}
			// A type 1 DID or the standard SCTE-104 pair would route messages twice.
			if c.PatchDID&0x80 != 0 || (c.PatchDID == anc.DIDSCTE104 && c.PatchSDID == anc.SDIDSCTE104) {
				c.LogInvalidField(KeyPatchDID, 0)
				c.PatchDID, c.PatchSDID = 0, 0
			}
		},
	},
	{
		Name:   KeyPatchSDID,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PatchSDID = parseByte(KeyPatchSDID, v, c) },
	},
	{
		Name:   KeyPoolCapacity,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PoolCapacity = parseUint(KeyPoolCapacity, v, c) },
		Validate: func(c *Config) {
			c.PoolCapacity = lessThanOrEqual(KeyPoolCapacity, c.PoolCapacity, 0, c, defaultPoolCapacity)
		},
	},
	{
		Name:   KeyPoolStartElementSize,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PoolStartElementSize = parseUint(KeyPoolStartElementSize, v, c) },
		Validate: func(c *Config) {
			c.PoolStartElementSize = lessThanOrEqual(KeyPoolStartElementSize, c.PoolStartElementSize, 0, c, defaultPoolStartElementSize)
		},
	},
	{
		Name:   KeyPoolWriteTimeout,
		Type:   typeUint,
		Update: func(c *Config, v string) { c.PoolWriteTimeout = parseUint(KeyPoolWriteTimeout, v, c) },
		Validate: func(c *Config) {
			c.PoolWriteTimeout = lessThanOrEqual(KeyPoolWriteTimeout, c.PoolWriteTimeout, 0, c, defaultPoolWriteTimeout)
		},
	},
	{
		Name:     KeyPSIPeriod,
		Type:     typeUint,
		Update:   func(c *Config, v string) { c.PSIPeriod = parseUint(KeyPSIPeriod, v, c) },
		Validate: func(c *Config) { c.PSIPeriod = lessThanOrEqual(KeyPSIPeriod, c.PSIPeriod, 0, c, defaultPSIPeriod) },
	},
	{
		Name: KeyPTSOffset,
		Type: typeUint,
		Update: func(c *Config, v string) {
			_v, err := strconv.Atoi(v)
			if err != nil {
				c.Logger.Warning("invalid PTSOffset param", "value", v)
			}
			c.PTSOffset = time.Duration(_v) * time.Millisecond
		},
		Validate: func(c *Config) {
			if c.PTSOffset <= 0 {
				c.LogInvalidField(KeyPTSOffset, defaultPTSOffset)
				c.PTSOffset = defaultPTSOffset
			}
		},
	},
	{
		Name:   KeySCTE104,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.SCTE104 = parseBool(KeySCTE104, v, c) },
		Validate: func(c *Config) {
			if !c.SCTE104 && !c.SMPTE2038 && !c.Teletext {
				c.LogInvalidField(KeySCTE104, true)
				c.SCTE104 = true
			}
		},
	},
	{
		Name:   KeySMPTE2038,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.SMPTE2038 = parseBool(KeySMPTE2038, v, c) },
	},
	{
		Name: KeyStreams,
		Type: "enums:scte35,smpte2038,teletext",
		Update: func(c *Config, v string) {
			streams, err := parseStreams(v)
			if err != nil {
				c.Logger.Warning("invalid Streams param", "value", v, "error", err)
				return
			}
			c.Streams = streams
		},
		Validate: func(c *Config) {
			if len(c.Streams) == 0 {
				c.LogInvalidField(KeyStreams, DefaultStreams)
				c.Streams = append([]Stream(nil), DefaultStreams...)
			}
		},
	},
	{
		Name:   KeySuppress,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Suppress = parseBool(KeySuppress, v, c) },
	},
	{
		Name:   KeyTeletext,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.Teletext = parseBool(KeyTeletext, v, c) },
	},
	{
		Name:   KeyTeletextReverse,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.TeletextReverse = parseBool(KeyTeletextReverse, v, c) },
	},
}

// parseStreams parses a comma separated list of format:pid stream
// declarations, e.g. "scte35:258,smpte2038:0x101".
func parseStreams(v string) ([]Stream, error) {
	var streams []Stream
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f, p, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("stream %q: expected format:pid", s)
		}
		format, ok := formats[strings.ToLower(strings.TrimSpace(f))]
		if !ok {
			return nil, fmt.Errorf("stream %q: unknown format", s)
		}
		pid, err := strconv.ParseUint(strings.TrimSpace(p), 0, 13)
		if err != nil {
			return nil, fmt.Errorf("stream %q: bad pid: %w", s, err)
		}
		streams = append(streams, Stream{Format: format, PID: uint16(pid)})
	}
	return streams, nil
}

func parseUint(n, v string, c *Config) uint {
	_v, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected unsigned int for param %s", n), "value", v)
	}
	return uint(_v)
}

// parseByte parses a decimal or 0x prefixed hexadecimal byte.
func parseByte(n, v string, c *Config) uint8 {
	_v, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected byte for param %s", n), "value", v)
	}
	return uint8(_v)
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

func parseEnum(n, v string, enums map[string]uint8, c *Config) uint8 {
	_v, ok := enums[strings.ToLower(v)]
	if !ok {
		c.Logger.Warning(fmt.Sprintf("invalid value for %s param", n), "value", v)
	}
	return _v
}

func lessThanOrEqual(n string, v, cmp uint, c *Config, def uint) uint {
	if v <= cmp {
		c.LogInvalidField(n, def)
		return def
	}
	return v
}
