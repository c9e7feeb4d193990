/*
DESCRIPTION
  vancd captures the vertical ancillary data of SDI video, routes SCTE-104
  messages to SCTE-35 outputs as frame metadata, and multiplexes SMPTE 2038
  and teletext PES into an MPEG-TS written to a file or UDP destination.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>
  Dan Kortschak <dan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package vancd is the VANC ingest daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/vanc/device"
	"github.com/ausocean/vanc/device/file"
	"github.com/ausocean/vanc/ingest"
	"github.com/ausocean/vanc/ingest/config"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Misc constants.
const (
	defaultConfigPath = "/etc/vancd/vancd.conf"
	defaultLogPath    = "/var/log/vancd/vancd.log"
	queueLen          = 64 // Coded frames buffered between capture and mux.
	pkg               = "vancd: "
)

func main() {
	showVersion := flag.Bool("version", false, "show version")
	configPath := flag.String("config", defaultConfigPath, "path to the key=value configuration file")
	logPath := flag.String("log", defaultLogPath, "path to the log file")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(logVerbosity, io.MultiWriter(fileLog, os.Stderr), logSuppress)

	session := uuid.New().String()
	log.Info("starting vancd", "version", version, "session", session)

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		log.Fatal(pkg+"could not load config", "error", err.Error())
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, *configPath)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		log.Fatal(pkg+"ingest failed", "error", err.Error(), "session", session)
	}
	log.Info("vancd stopped", "session", session)
}

// loadConfig reads the configuration file at path and returns the validated
// config.
func loadConfig(path string, log logging.Logger) (config.Config, error) {
	vars, err := readVars(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.Config{Logger: log}
	cfg.Update(vars)
	err = cfg.Validate()
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readVars(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()
	return config.ReadVars(f)
}

// run wires the capture device, ingest, multiplexer and sender together and
// runs them until the input ends or ctx is cancelled.
func run(ctx context.Context, cfg config.Config, configPath string) error {
	log := cfg.Logger
	streams := ingest.NewStreamTable(cfg.Streams)
	q := make(ingest.ChanQueue, queueLen)

	in, err := ingest.New(cfg, streams, q)
	if err != nil {
		return fmt.Errorf("could not create ingest: %w", err)
	}

	enc, err := newEncoder(cfg, streams)
	if err != nil {
		return err
	}

	dev := file.New(log)
	err = dev.Set(cfg)
	switch err := err.(type) {
	case nil:
		// Do nothing.
	case device.MultiError:
		log.Warning("errors from configuring input device", "errors", err)
	default:
		return fmt.Errorf("could not set %s device: %w", dev.Name(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		defer close(q)
		err := dev.Start(ctx, in, frameSink(log))
		logStats(log, in)
		return err
	})

	g.Go(func() error {
		for f := range q {
			err := enc.WriteFrame(f)
			if err != nil {
				log.Error("could not write coded frame", "stream", f.StreamID, "error", err.Error())
			}
		}
		return enc.Close()
	})

	g.Go(func() error {
		return watchConfig(ctx, configPath, in, log)
	})

	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warning("could not notify systemd", "error", err.Error())
	}
	log.Info("ingest running", "device", dev.Name(), "streams", len(streams), "systemd", sent)

	return g.Wait()
}

// frameSink returns the consumer of finalized frames. The video path this
// daemon feeds is external, so frames are logged and their metadata freed.
func frameSink(log logging.Logger) func(f *ingest.RawFrame) {
	return func(f *ingest.RawFrame) {
		for _, it := range f.Meta.Items() {
			id, _ := it.OutputStreamID()
			line, _ := it.LineNr()
			log.Debug("frame metadata", "pts", f.PTS, "kind", it.Kind().String(), "stream", id, "line", line, "size", it.Len())
		}
		for _, c := range f.Captions {
			log.Info("caption", "pts", c.PTS, "channel", c.Channel, "text", c.Text)
		}
		f.Meta.Reset()
	}
}

func logStats(log logging.Logger, in *ingest.Ingest) {
	s := in.Stats()
	p := in.Parser()
	log.Info("ingest stats",
		"frames", s.Frames,
		"packets", p.Packets,
		"checksumErrors", p.ChecksumErrors,
		"decodeErrors", p.DecodeErrors,
		"scte104", s.SCTE104,
		"attached", s.Attached,
		"type1Discarded", s.Type1Discarded,
		"unresolved", s.Unresolved,
		"storeFull", s.StoreFull,
		"patched", s.Patched,
		"pesSent", s.PESSent,
		"pesDropped", s.PESDropped,
		"counterJumps", s.CounterJumps,
	)
	t := in.Filters()
	for i := 0; i < t.Len(); i++ {
		log.Info("filter matches", "rule", t.Rule(i).String(), "matches", t.Matches(i))
	}
}
