package classfmt

import (
	"encoding/binary"
	"errors"
)

var (
	ErrStreamEOF     = errors.New("classfmt: unexpected end of data")
	ErrStreamOverrun = errors.New("classfmt: length exceeds remaining data")
)

// Stream is a cursor over class-file bytes. Integers are big-endian, named
// after their JVMS widths (u1, u2, u4).
type Stream struct {
	data []byte
	pos  int
}

func NewStream(data []byte) *Stream { return &Stream{data: data} }

func (s *Stream) Position() int  { return s.pos }
func (s *Stream) Remaining() int { return len(s.data) - s.pos }

// SetPosition moves the cursor, clamped to the end of the data.
func (s *Stream) SetPosition(pos int) { s.pos = min(max(pos, 0), len(s.data)) }

// has reports whether n more bytes can be read.
func (s *Stream) has(n int) bool { return n >= 0 && n <= s.Remaining() }

func (s *Stream) ReadByte() (byte, error) {
	if !s.has(1) {
		return 0, ErrStreamEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadBytes returns a copy of the next n bytes.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	b, err := s.next(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// next consumes n bytes and returns them without copying.
func (s *Stream) next(n int) ([]byte, error) {
	if !s.has(n) {
		return nil, ErrStreamEOF
	}
	b := s.data[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *Stream) ReadU1() (uint8, error) { return s.ReadByte() }

func (s *Stream) ReadU2() (uint16, error) {
	b, err := s.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (s *Stream) ReadU4() (uint32, error) {
	b, err := s.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU8 reads the high_bytes/low_bytes pair of a CONSTANT_Long or
// CONSTANT_Double as one value.
func (s *Stream) ReadU8() (uint64, error) {
	b, err := s.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadS4 reads a big-endian signed 32-bit value.
func (s *Stream) ReadS4() (int32, error) {
	v, err := s.ReadU4()
	return int32(v), err
}

// ReadU4Len reads a u4 length prefix and checks that many bytes remain.
func (s *Stream) ReadU4Len() (int, error) {
	n, err := s.ReadU4()
	if err != nil {
		return 0, err
	}
	if int64(n) > int64(s.Remaining()) {
		return 0, ErrStreamOverrun
	}
	return int(n), nil
}

// Skip advances the position by n bytes.
func (s *Stream) Skip(n int) error {
	if !s.has(n) {
		return ErrStreamEOF
	}
	s.pos += n
	return nil
}

// Writer accumulates big-endian class-file data.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given capacity hint.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) PutU1(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) PutU2(v uint16) { w.buf = binary.BigEndian.AppendUint16(w.buf, v) }

func (w *Writer) PutU4(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }

func (w *Writer) PutU8(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }

func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the accumulated data. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }
