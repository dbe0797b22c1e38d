package artifact

import (
	"errors"
	"io"
	"os"
	"sort"
)

const writerPadBufSize = 4096

// Writer builds an LMA bundle in a streaming fashion.
//
// The writer reserves space for the header up-front and patches it during
// Finalise. Use BeginSection for large payloads (weight data) to avoid
// buffering the whole section in memory.
type Writer struct {
	f        *os.File
	sections []Section
	seen     map[SectionType]struct{}
	open     *SectionWriter
	closed   bool

	padBuf []byte
}

// SectionWriter streams a section payload directly to the underlying file.
// It must be ended before any other section can be written; padding added
// via Align counts towards the recorded section size.
type SectionWriter struct {
	w     *Writer
	typ   SectionType
	start int64
	ended bool
}

// NewWriter creates a new LMA writer targeting the given file.
// It truncates the file and reserves space for the header.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("artifact: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	w := &Writer{
		f:      f,
		seen:   make(map[SectionType]struct{}),
		padBuf: make([]byte, writerPadBufSize),
	}
	if err := w.writeZeros(headerSize); err != nil {
		return nil, err
	}
	if err := w.alignTo(sectionAlign); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteSection writes a section payload and records it in the directory.
// A section type may only be written once.
func (w *Writer) WriteSection(typ SectionType, data []byte) error {
	if w.closed {
		return errors.New("artifact: writer already finalised")
	}
	if w.open != nil {
		return errors.New("artifact: section write in progress")
	}
	if _, ok := w.seen[typ]; ok {
		return errors.New("artifact: duplicate section type")
	}

	if err := w.alignTo(sectionAlign); err != nil {
		return err
	}
	offset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := writeFull(w.f, data); err != nil {
			return err
		}
	}

	w.sections = append(w.sections, Section{
		Type:   uint32(typ),
		Offset: uint64(offset),
		Size:   uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return nil
}

// BeginSection begins streaming a section payload directly to the file.
// The returned SectionWriter must be Ended (or Closed) before writing any
// other section.
func (w *Writer) BeginSection(typ SectionType) (*SectionWriter, error) {
	if w.closed {
		return nil, errors.New("artifact: writer already finalised")
	}
	if w.open != nil {
		return nil, errors.New("artifact: section write in progress")
	}
	if _, ok := w.seen[typ]; ok {
		return nil, errors.New("artifact: duplicate section type")
	}

	if err := w.alignTo(sectionAlign); err != nil {
		return nil, err
	}
	start, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	sw := &SectionWriter{w: w, typ: typ, start: start}
	w.open = sw
	w.seen[typ] = struct{}{}
	return sw, nil
}

// Write streams p into the underlying file.
func (sw *SectionWriter) Write(p []byte) (int, error) {
	if sw.ended {
		return 0, errors.New("artifact: section writer ended")
	}
	if sw.w.open != sw {
		return 0, errors.New("artifact: section writer not active")
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := writeFull(sw.w.f, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Align writes zero padding until the file position is aligned to n bytes.
// Useful for aligning individual tensor payloads within the weight data
// section.
func (sw *SectionWriter) Align(n int) error {
	if sw.ended {
		return errors.New("artifact: section writer ended")
	}
	if sw.w.open != sw {
		return errors.New("artifact: section writer not active")
	}
	return sw.w.alignTo(int64(n))
}

// BytesWritten returns the number of bytes written in this section so far.
func (sw *SectionWriter) BytesWritten() (uint64, error) {
	if sw.ended {
		return 0, errors.New("artifact: section writer ended")
	}
	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if pos < sw.start {
		return 0, errors.New("artifact: invalid file position")
	}
	return uint64(pos - sw.start), nil
}

// End finalises the section and records it in the section directory.
func (sw *SectionWriter) End() error {
	if sw.ended {
		return errors.New("artifact: section writer already ended")
	}
	if sw.w.open != sw {
		return errors.New("artifact: section writer not active")
	}

	pos, err := sw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if pos < sw.start {
		return errors.New("artifact: invalid file position")
	}

	sw.w.sections = append(sw.w.sections, Section{
		Type:   uint32(sw.typ),
		Offset: uint64(sw.start),
		Size:   uint64(pos - sw.start),
	})
	sw.w.open = nil
	sw.ended = true
	return nil
}

// Close is an alias for End, allowing use with defer.
func (sw *SectionWriter) Close() error { return sw.End() }

// Finalise writes the section directory and patches the header.
// After Finalise, the writer must not be used again.
func (w *Writer) Finalise() error {
	if w.closed {
		return errors.New("artifact: writer already finalised")
	}
	if w.open != nil {
		return errors.New("artifact: section write in progress")
	}
	w.closed = true

	// Deterministic directory ordering.
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Type < w.sections[j].Type
	})

	if err := w.alignTo(sectionAlign); err != nil {
		return err
	}
	sectionDirOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	var secBuf [sectionSize]byte
	for i := range w.sections {
		if !encodeSection(secBuf[:], w.sections[i]) {
			return errors.New("artifact: encode section failed")
		}
		if err := writeFull(w.f, secBuf[:]); err != nil {
			return err
		}
	}

	// Truncate in case the target file was reused.
	fileSize, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.f.Truncate(fileSize); err != nil {
		return err
	}

	var header Header
	copy(header.Magic[:], Magic)
	header.Major = CurrentMajor
	header.Minor = CurrentMinor
	header.HeaderSize = headerSize
	header.SectionCount = uint32(len(w.sections))
	header.SectionDirOffset = uint64(sectionDirOffset)
	header.FileSize = uint64(fileSize)

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var hdrBuf [headerSize]byte
	if !encodeHeader(hdrBuf[:], header) {
		return errors.New("artifact: encode header failed")
	}
	if err := writeFull(w.f, hdrBuf[:]); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) alignTo(n int64) error {
	if n <= 1 {
		return nil
	}
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	mod := pos % n
	if mod == 0 {
		return nil
	}
	return w.writeZeros(int(n - mod))
}

func (w *Writer) writeZeros(n int) error {
	if n <= 0 {
		return nil
	}
	buf := w.padBuf
	for n > 0 {
		chunk := n
		if chunk > len(buf) {
			chunk = len(buf)
		}
		if err := writeFull(w.f, buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
