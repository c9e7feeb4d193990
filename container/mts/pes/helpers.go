/*
DESCRIPTIONS
  helpers.go provides PES stream IDs and related helpers.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package pes

// Stream IDs as per ITU-T Rec. H.222.0 / ISO/IEC 13818-1, table 2-22.
const PrivateStream1SID = 0xbd

// PTSFrequency is the PTS clock rate in Hz.
const PTSFrequency = 90000

// MaxPTS is the largest PTS value (i.e., for a 33-bit unsigned integer).
const MaxPTS = (1 << 33) - 1

// PTSFromClock converts a time in 27 MHz system clock ticks to a 33-bit PTS.
func PTSFromClock(ticks int64) uint64 {
	return uint64(ticks/300) & MaxPTS
}
