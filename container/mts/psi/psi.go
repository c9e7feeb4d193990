/*
NAME
  psi.go

DESCRIPTION
  psi.go provides encoding of the program association and program map tables
  for a single program carrying ancillary data streams.

AUTHOR
  Saxon Milton <saxon@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package psi provides encoding of MPEG-TS program specific information.
package psi

import "errors"

// PacketSize of psi (without MPEG-TS header)
const PacketSize = 184

// Lengths of section definitions.
const (
	ESSDataLen = 5
	DescDefLen = 2
	PMTDefLen  = 4
	PATLen     = 4
	TSSDefLen  = 5
	PSIDefLen  = 4 // Pointer field, table ID and section length.
	crcSize    = 4
)

// Table Type IDs.
const (
	patID = 0x00
	pmtID = 0x02
)

// Stream types used in the PMT.
const (
	StreamTypePrivateData = 0x06 // PES private data; SMPTE 2038 and teletext.
	StreamTypeSCTE35      = 0x86
)

// Descriptor tags.
const (
	RegistrationTag = 0x05
	TeletextTag     = 0x56
)

// NoPCRPID is the PCR PID of a program without a clock reference.
const NoPCRPID = 0x1fff

// ErrTooLarge is returned when a table does not fit in a single packet.
var ErrTooLarge = errors.New("psi table too large for one packet")

// NewPATPSI provides a PAT carrying program 1 with the given PMT PID.
func NewPATPSI(pmtPID uint16) *PSI {
	return &PSI{
		TableID:         patID,
		SyntaxIndicator: true,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			CurrentNext: true,
			SpecificData: &PAT{
				Program:       0x01,
				ProgramMapPID: pmtPID,
			},
		},
	}
}

// NewPMTPSI provides a PMT for program 1 with the given elementary streams.
func NewPMTPSI(pcrPID uint16, streams ...StreamSpecificData) *PSI {
	return &PSI{
		TableID:         pmtID,
		SyntaxIndicator: true,
		SyntaxSection: &SyntaxSection{
			TableIDExt:  0x01,
			CurrentNext: true,
			SpecificData: &PMT{
				ProgramClockPID: pcrPID,
				Streams:         streams,
			},
		},
	}
}

// Program specific information
type PSI struct {
	PointerField    byte           // Point field
	TableID         byte           // Table ID
	SyntaxIndicator bool           // Section syntax indicator (1 for PAT, PMT, CAT)
	PrivateBit      bool           // Private bit (0 for PAT, PMT, CAT)
	SyntaxSection   *SyntaxSection // Table syntax section
}

// Table syntax section
type SyntaxSection struct {
	TableIDExt   uint16       // Table ID extension
	Version      byte         // Version number
	CurrentNext  bool         // Current/next indicator
	Section      byte         // Section number
	LastSection  byte         // Last section number
	SpecificData SpecificData // Specific data PAT/PMT
}

// Specific Data, (could be PAT or PMT)
type SpecificData interface {
	Bytes() []byte
}

// Program association table, implements SpecificData
type PAT struct {
	Program       uint16 // Program Number
	ProgramMapPID uint16 // Program map PID
}

// Program mapping table, implements SpecificData
type PMT struct {
	ProgramClockPID uint16               // Program clock reference PID.
	Descriptors     []Descriptor         // Program descriptors.
	Streams         []StreamSpecificData // Elementary streams.
}

// Elementary stream specific data
type StreamSpecificData struct {
	StreamType  byte         // Stream type.
	PID         uint16       // Elementary PID.
	Descriptors []Descriptor // Elementary stream desriptors
}

// Descriptor
type Descriptor struct {
	Tag  byte   // Descriptor tag
	Data []byte // Descriptor data
}

// Bytes outputs a byte slice representation of the PSI. The section length
// and CRC are computed.
func (p *PSI) Bytes() []byte {
	if p.PointerField != 0 {
		panic("No support for pointer filler bytes")
	}
	syn := p.SyntaxSection.Bytes()
	sectionLen := len(syn) + crcSize

	out := make([]byte, PSIDefLen, PSIDefLen+sectionLen)
	out[0] = p.PointerField
	out[1] = p.TableID
	out[2] = asByte(p.SyntaxIndicator)<<7 | asByte(p.PrivateBit)<<6 | 0x30 | (0x03 & byte(sectionLen>>8))
	out[3] = byte(sectionLen)
	out = append(out, syn...)
	return AddCRC(out)
}

// Bytes outputs a byte slice representation of the SyntaxSection
func (t *SyntaxSection) Bytes() []byte {
	out := make([]byte, TSSDefLen)
	out[0] = byte(t.TableIDExt >> 8)
	out[1] = byte(t.TableIDExt)
	out[2] = 0xc0 | (0x3e & (t.Version << 1)) | (0x01 & asByte(t.CurrentNext))
	out[3] = t.Section
	out[4] = t.LastSection
	return append(out, t.SpecificData.Bytes()...)
}

// Bytes outputs a byte slice representation of the PAT
func (p *PAT) Bytes() []byte {
	out := make([]byte, PATLen)
	out[0] = byte(p.Program >> 8)
	out[1] = byte(p.Program)
	out[2] = 0xe0 | (0x1f & byte(p.ProgramMapPID>>8))
	out[3] = byte(p.ProgramMapPID)
	return out
}

// Bytes outputs a byte slice representation of the PMT
func (p *PMT) Bytes() []byte {
	var desc []byte
	for _, d := range p.Descriptors {
		desc = append(desc, d.Bytes()...)
	}
	out := make([]byte, PMTDefLen, PMTDefLen+len(desc))
	out[0] = 0xe0 | (0x1f & byte(p.ProgramClockPID>>8))
	out[1] = byte(p.ProgramClockPID)
	out[2] = 0xf0 | (0x03 & byte(len(desc)>>8))
	out[3] = byte(len(desc))
	out = append(out, desc...)
	for _, s := range p.Streams {
		out = append(out, s.Bytes()...)
	}
	return out
}

// Bytes outputs a byte slice representation of the Desc
func (d *Descriptor) Bytes() []byte {
	out := make([]byte, DescDefLen, DescDefLen+len(d.Data))
	out[0] = d.Tag
	out[1] = byte(len(d.Data))
	return append(out, d.Data...)
}

// Bytes outputs a byte slice representation of the StreamSpecificData
func (e *StreamSpecificData) Bytes() []byte {
	var desc []byte
	for _, d := range e.Descriptors {
		desc = append(desc, d.Bytes()...)
	}
	out := make([]byte, ESSDataLen, ESSDataLen+len(desc))
	out[0] = e.StreamType
	out[1] = 0xe0 | (0x1f & byte(e.PID>>8))
	out[2] = byte(e.PID)
	out[3] = 0xf0 | (0x03 & byte(len(desc)>>8))
	out[4] = byte(len(desc))
	return append(out, desc...)
}

// AddPadding pads a pat or pmt table with 0xff to fill an MPEG-TS packet
// payload. ErrTooLarge is returned if d does not fit.
func AddPadding(d []byte) ([]byte, error) {
	if len(d) > PacketSize {
		return nil, ErrTooLarge
	}
	t := make([]byte, PacketSize)
	copy(t, d)
	padding := t[len(d):]
	for i := range padding {
		padding[i] = 0xff
	}
	return t, nil
}

// RegistrationDescriptor returns a registration descriptor carrying the
// four character format identifier id, e.g. "VANC" for SMPTE 2038.
func RegistrationDescriptor(id string) Descriptor {
	return Descriptor{Tag: RegistrationTag, Data: []byte(id)}
}

// TeletextDescriptor returns a teletext descriptor for an initial page with
// the given ISO 639 language code, magazine and page.
func TeletextDescriptor(lang string, magazine, page byte) Descriptor {
	const initialPage = 0x01
	d := make([]byte, 5)
	copy(d, lang)
	d[3] = initialPage<<3 | magazine&0x07
	d[4] = page
	return Descriptor{Tag: TeletextTag, Data: d}
}

func asByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}
