// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package nidas

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
)

var (
	// ErrTypeMismatch is returned when a typed accessor is called against a
	// Sample whose Type does not match.
	ErrTypeMismatch = fmt.Errorf("nidas: sample type mismatch")

	// ErrSampleTypeUnknown is returned when a Type byte does not correspond
	// to any of the known variants, and by SetBytes when the byte count is
	// not a whole number of elements of the Sample's Type.
	ErrSampleTypeUnknown = fmt.Errorf("nidas: unknown sample type")

	// ErrPayloadTooLarge is returned by SetLength when the requested
	// element count does not fit the Sample's allocated capacity.
	ErrPayloadTooLarge = fmt.Errorf("nidas: length exceeds allocated capacity")
)

// Type is the tagged variant of a Sample's payload, carried in the top 6
// bits of its Id.
type Type uint8

const (
	// TypeChar is a buffer of raw bytes, interpreted as text or opaque data.
	TypeChar Type = iota
	TypeUint8
	TypeUint16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeFloat64
)

// Size returns the number of bytes occupied by a single element of this
// Type. Returns 0 for an unknown Type.
func (t Type) Size() int {
	switch t {
	case TypeChar, TypeUint8:
		return 1
	case TypeUint16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 0
	}
}

// String returns a human readable name for the Type.
func (t Type) String() string {
	switch t {
	case TypeChar:
		return "char"
	case TypeUint8:
		return "uint8"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the known Sample variants.
func (t Type) Valid() bool {
	return t <= TypeFloat64
}

// Id is the 32-bit composite identifier of a sample stream: 6 bits of
// Type, 10 bits of DSM (station) id, and 16 bits of sensor+sample index.
//
//	bit 31 ........ 26 25 .......... 16 15 .................. 0
//	[      type      ][     dsm id     ][      short id        ]
type Id uint32

const (
	idShortBits = 16
	idDsmBits   = 10
	idTypeBits  = 6

	idShortMask = (1 << idShortBits) - 1
	idDsmMask   = (1 << idDsmBits) - 1
	idTypeMask  = (1 << idTypeBits) - 1
)

// NewId packs a Type, DSM id, and short (sensor+sample) id into an Id.
func NewId(t Type, dsmId uint16, shortId uint16) Id {
	return Id(uint32(t&idTypeMask)<<(idDsmBits+idShortBits) |
		uint32(dsmId&idDsmMask)<<idShortBits |
		uint32(shortId&idShortMask))
}

// Type returns the 6-bit type tag carried in the Id.
func (id Id) Type() Type {
	return Type((uint32(id) >> (idDsmBits + idShortBits)) & idTypeMask)
}

// DSMId returns the 10-bit DSM (station) id carried in the Id.
func (id Id) DSMId() uint16 {
	return uint16((uint32(id) >> idShortBits) & idDsmMask)
}

// ShortId returns the flat 16-bit sensor+sample index carried in the Id.
func (id Id) ShortId() uint16 {
	return uint16(uint32(id) & idShortMask)
}

// WithShortId returns a copy of id with a new ShortId, preserving Type and
// DSMId. Useful for a sensor with several sub-samples sharing one stream.
func (id Id) WithShortId(shortId uint16) Id {
	return NewId(id.Type(), id.DSMId(), shortId)
}

// Sample is the unit of data flow: an immutable, time-tagged, typed,
// reference-counted record produced by one source and consumed by zero or
// more clients.
//
// Once distributed, a Sample's header fields and payload bytes must never
// be mutated by a receiver. A Sample is only safe to write to between
// allocation from a SamplePool and the first call to distribute it.
type Sample struct {
	timeTag int64 // microseconds since 1970-01-01 UTC
	id      Id
	typ     Type
	length  uint32 // element count, not byte count
	refs    atomic.Int32

	payload []byte // len(payload) is the allocated capacity in bytes

	pool      *SamplePool
	sizeClass sizeClass
	indirect  int // index into the pool's bounded arena; -1 if overflow-allocated
}

// TimeTag returns the sample's absolute timestamp, in microseconds since
// 1970-01-01 UTC.
func (s *Sample) TimeTag() int64 { return s.timeTag }

// SetTimeTag sets the sample's absolute timestamp. Only valid before the
// sample has been distributed to any client.
func (s *Sample) SetTimeTag(t int64) { s.timeTag = t }

// Id returns the sample's stream identifier.
func (s *Sample) Id() Id { return s.id }

// SetId sets the sample's stream identifier. Only valid before the sample
// has been distributed to any client.
func (s *Sample) SetId(id Id) { s.id = id }

// Type returns the tagged variant of the sample's payload.
func (s *Sample) Type() Type { return s.typ }

// SetType sets the tagged variant of the sample's payload. Only valid
// before the sample has been distributed to any client.
func (s *Sample) SetType(t Type) { s.typ = t }

// Length returns the number of elements (not bytes) in the payload.
func (s *Sample) Length() int { return int(s.length) }

// Capacity returns the allocated payload capacity, in bytes. Capacity may
// exceed Length()*Type().Size() when the sample was reused from a pool.
func (s *Sample) Capacity() int { return len(s.payload) }

// SetLength sets the element count of the payload. It fails if the
// requested length does not fit the sample's allocated capacity.
func (s *Sample) SetLength(n int) error {
	if n < 0 || n*s.typ.Size() > len(s.payload) {
		return ErrPayloadTooLarge
	}
	s.length = uint32(n)
	return nil
}

// Bytes returns the logical payload (the first Length()*Type().Size()
// bytes of the allocated capacity) as a byte slice. The returned slice
// aliases the sample's storage and must be treated as read-only once the
// sample has been distributed.
func (s *Sample) Bytes() []byte {
	return s.payload[:int(s.length)*s.typ.Size()]
}

// SetBytes copies b into the sample's payload, failing if it doesn't fit
// the allocated capacity, and sets Length from Type().Size().
func (s *Sample) SetBytes(b []byte) error {
	if len(b) > len(s.payload) {
		return ErrPayloadTooLarge
	}
	sz := s.typ.Size()
	if sz == 0 || len(b)%sz != 0 {
		return ErrSampleTypeUnknown
	}
	copy(s.payload, b)
	s.length = uint32(len(b) / sz)
	return nil
}

// Float32At returns the i'th float32 element of the payload. Panics if the
// Sample's Type is not TypeFloat32 or i is out of range, mirroring slice
// indexing semantics.
func (s *Sample) Float32At(i int) float32 {
	if s.typ != TypeFloat32 {
		panic(ErrTypeMismatch)
	}
	off := i * 4
	return math.Float32frombits(binary.LittleEndian.Uint32(s.payload[off : off+4]))
}

// SetFloat32At sets the i'th float32 element of the payload.
func (s *Sample) SetFloat32At(i int, v float32) {
	if s.typ != TypeFloat32 {
		panic(ErrTypeMismatch)
	}
	off := i * 4
	binary.LittleEndian.PutUint32(s.payload[off:off+4], math.Float32bits(v))
}

// Float64At returns the i'th float64 element of the payload.
func (s *Sample) Float64At(i int) float64 {
	if s.typ != TypeFloat64 {
		panic(ErrTypeMismatch)
	}
	off := i * 8
	return math.Float64frombits(binary.LittleEndian.Uint64(s.payload[off : off+8]))
}

// SetFloat64At sets the i'th float64 element of the payload.
func (s *Sample) SetFloat64At(i int, v float64) {
	if s.typ != TypeFloat64 {
		panic(ErrTypeMismatch)
	}
	off := i * 8
	binary.LittleEndian.PutUint64(s.payload[off:off+8], math.Float64bits(v))
}

// HoldReference increments the sample's reference count. It is mandatory
// before queuing a sample into any buffered or deferred stage (a sorter,
// an output stream's write-behind buffer): distribute() always calls
// FreeReference exactly once after fanning out to clients, so a receiver
// that wants to retain a Sample past its receive() call must HoldReference
// first.
func (s *Sample) HoldReference() {
	s.refs.Add(1)
}

// FreeReference decrements the sample's reference count. When the count
// reaches zero the Sample is returned to its originating pool (if any);
// it is never deleted out from under a pool that might reuse it.
func (s *Sample) FreeReference() {
	if s.refs.Add(-1) == 0 && s.pool != nil {
		s.pool.putSample(s)
	}
}

// RefCount returns the current reference count. Intended for tests and
// diagnostics; not meant to be used for control flow racing with other
// goroutines' HoldReference/FreeReference calls.
func (s *Sample) RefCount() int32 {
	return s.refs.Load()
}

// vim: foldmethod=marker
