/*
NAME
  options.go

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
)

var (
	ErrInvalidPeriod = errors.New("invalid PSI period")
	ErrInvalidPID    = errors.New("invalid PID")
)

// PSIPeriod is an option that can be passed to NewEncoder to set the number
// of coded frames between PAT/PMT insertions.
func PSIPeriod(n int) func(*Encoder) error {
	return func(e *Encoder) error {
		if n < 1 {
			return ErrInvalidPeriod
		}
		e.psiPeriod = n
		e.log.Debug("configured PSI period", "frames", n)
		return nil
	}
}

// Streams is an option that can be passed to NewEncoder to declare the
// elementary streams of the multiplex. Stream IDs and PIDs must be unique,
// and PIDs must not collide with the PSI PIDs.
func Streams(streams ...Stream) func(*Encoder) error {
	return func(e *Encoder) error {
		for _, s := range streams {
			if s.PID == PatPid || s.PID == PmtPid || s.PID >= 0x1fff {
				return fmt.Errorf("%w: %d", ErrInvalidPID, s.PID)
			}
			if _, ok := e.byID[s.ID]; ok {
				return fmt.Errorf("%w: id %d", ErrDuplicateStream, s.ID)
			}
			if _, ok := e.continuity[s.PID]; ok {
				return fmt.Errorf("%w: PID %d", ErrDuplicateStream, s.PID)
			}
			e.byID[s.ID] = s
			e.continuity[s.PID] = 0
			e.streams = append(e.streams, s)
			e.log.Debug("added output stream", "id", s.ID, "PID", s.PID, "type", s.Type)
		}
		return nil
	}
}
