// Package artifact implements the LMA bundle format.
//
// LMA is a single-file, memory-mappable container holding everything a
// runtime needs to serve a converted model: model metadata, the quantized
// weight index and payloads, and optionally the embedded vocabulary model.
// The layout is a fixed header, aligned section payloads, and a trailing
// section directory that the header points at.
package artifact

import (
	"encoding/binary"
	"errors"
)

const (
	// Magic is the file magic for all LMA bundles, encoded as "LMA\0".
	Magic = "LMA\x00"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1

	// CurrentMinor may add new optional sections or fields.
	CurrentMinor uint16 = 0
)

type SectionType uint32

const (
	SectionModelInfo   SectionType = 0x0001
	SectionWeightIndex SectionType = 0x0002
	SectionWeightData  SectionType = 0x0003
	SectionVocabModel  SectionType = 0x0004
)

const (
	headerSize   = 40
	sectionSize  = 24
	sectionAlign = 8
)

var (
	ErrInvalidMagic     = errors.New("invalid LMA magic")
	ErrUnsupportedMajor = errors.New("unsupported LMA major version")
	ErrCorruptFile      = errors.New("corrupt LMA file")
)

type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

func (h *Header) Valid() bool {
	if string(h.Magic[:]) != Magic {
		return false
	}
	if h.HeaderSize < headerSize {
		return false
	}
	if h.SectionCount == 0 {
		return false
	}
	return true
}

func (h *Header) Compatible() bool {
	return h.Major == CurrentMajor
}

type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

func (s *Section) End() uint64 {
	return s.Offset + s.Size
}

// encodeHeader serialises h into buf using explicit little-endian fields.
func encodeHeader(buf []byte, h Header) bool {
	if len(buf) < headerSize {
		return false
	}
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.SectionCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.SectionDirOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.FileSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.Flags)
	return true
}

func decodeHeader(buf []byte) (Header, bool) {
	var h Header
	if len(buf) < headerSize {
		return h, false
	}
	copy(h.Magic[:], buf[0:4])
	h.Major = binary.LittleEndian.Uint16(buf[4:6])
	h.Minor = binary.LittleEndian.Uint16(buf[6:8])
	h.HeaderSize = binary.LittleEndian.Uint32(buf[8:12])
	h.SectionCount = binary.LittleEndian.Uint32(buf[12:16])
	h.SectionDirOffset = binary.LittleEndian.Uint64(buf[16:24])
	h.FileSize = binary.LittleEndian.Uint64(buf[24:32])
	h.Flags = binary.LittleEndian.Uint64(buf[32:40])
	return h, true
}

func encodeSection(buf []byte, s Section) bool {
	if len(buf) < sectionSize {
		return false
	}
	binary.LittleEndian.PutUint32(buf[0:4], s.Type)
	binary.LittleEndian.PutUint32(buf[4:8], s.Version)
	binary.LittleEndian.PutUint64(buf[8:16], s.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], s.Size)
	return true
}

func decodeSection(buf []byte) (Section, bool) {
	var s Section
	if len(buf) < sectionSize {
		return s, false
	}
	s.Type = binary.LittleEndian.Uint32(buf[0:4])
	s.Version = binary.LittleEndian.Uint32(buf[4:8])
	s.Offset = binary.LittleEndian.Uint64(buf[8:16])
	s.Size = binary.LittleEndian.Uint64(buf[16:24])
	return s, true
}
