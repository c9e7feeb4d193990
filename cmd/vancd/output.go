/*
DESCRIPTION
  output.go sets up the MPEG-TS encoder and the sender it writes to.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/ausocean/utils/pool"

	"github.com/ausocean/vanc/container/mts"
	"github.com/ausocean/vanc/ingest"
	"github.com/ausocean/vanc/ingest/config"
	"github.com/ausocean/vanc/sender"
)

// newEncoder returns an encoder for streams writing through a pool buffered
// sender to the configured output.
func newEncoder(cfg config.Config, streams ingest.StreamTable) (*mts.Encoder, error) {
	var (
		dst io.WriteCloser
		err error
	)
	switch cfg.Output {
	case config.OutputFile:
		dst = sender.NewFileSender(cfg.Logger, cfg.OutputPath)
	case config.OutputUDP:
		dst, err = sender.NewUDPSender(cfg.Logger, cfg.OutputAddress)
		if err != nil {
			return nil, fmt.Errorf("could not create UDP sender: %w", err)
		}
	case config.OutputRTP:
		dst, err = sender.NewRTPSender(cfg.Logger, cfg.OutputAddress)
		if err != nil {
			return nil, fmt.Errorf("could not create RTP sender: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output: %d", cfg.Output)
	}

	nElements := cfg.PoolCapacity / cfg.PoolStartElementSize
	writeTimeout := time.Duration(cfg.PoolWriteTimeout) * time.Second
	rb := pool.NewBuffer(int(nElements), int(cfg.PoolStartElementSize), writeTimeout)
	s := sender.NewMTSSender(dst, cfg.Logger, rb)

	enc, err := mts.NewEncoder(s, cfg.Logger,
		mts.PSIPeriod(int(cfg.PSIPeriod)),
		mts.Streams(streams.MTSStreams()...),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("could not create MTS encoder: %w", err)
	}
	return enc, nil
}
