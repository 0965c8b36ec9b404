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

package iostream

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	nidas "go.nidas.dev/core"
)

// ErrBadMagic is returned by NewInputStream when the peer's first line
// isn't the expected header magic.
var ErrBadMagic = fmt.Errorf("iostream: %s", "bad header magic")

// InputStreamOptions configures an InputStream.
type InputStreamOptions struct {
	// Pool is where Samples are allocated from as frames are read off
	// the wire.
	Pool *nidas.SamplePool

	// Filter, if non-nil, validates every decoded header before its
	// payload is read, per §4.7.
	Filter *BadSampleFilter

	// Logger receives resynchronization diagnostics.
	Logger zerolog.Logger
}

// InputStream deserializes Samples from an IOStream: it reads the text
// Header once at construction, then loops decoding wire frames
// (timetag/id/length header + payload, §6) and distributing each
// completed Sample to its SampleClientList.
//
// InputStream implements nidas.SampleSource.
type InputStream struct {
	stream  *IOStream
	pool    *nidas.SamplePool
	filter  *BadSampleFilter
	log     zerolog.Logger
	clients *nidas.SampleClientList

	Header Header
}

// NewInputStream constructs an InputStream over stream, reading and
// validating the text header before returning.
func NewInputStream(stream *IOStream, opts InputStreamOptions) (*InputStream, error) {
	h, err := ReadHeader(stream)
	if err != nil {
		return nil, err
	}

	return &InputStream{
		stream:  stream,
		pool:    opts.Pool,
		filter:  opts.Filter,
		log:     opts.Logger,
		clients: nidas.NewSampleClientList(),
		Header:  h,
	}, nil
}

// AddSampleClient registers c to receive every Sample this stream reads.
func (in *InputStream) AddSampleClient(c nidas.SampleClient) { in.clients.Add(c) }

// RemoveSampleClient unregisters c.
func (in *InputStream) RemoveSampleClient(c nidas.SampleClient) { in.clients.Remove(c) }

// ReadSamples runs the read loop until the underlying Channel reports a
// fatal error or is closed, distributing every successfully decoded
// Sample to this stream's SampleClients. It returns the error that ended
// the loop — ioc.ErrClosed and ioc.ErrHangup are the expected, non-fatal
// ways this returns when the peer end simply goes away.
func (in *InputStream) ReadSamples() error {
	for {
		if err := in.readOne(); err != nil {
			return err
		}
	}
}

// readOne reads exactly one sample frame, resynchronizing forward on a
// validation failure as §4.7 describes, and distributes it on success.
func (in *InputStream) readOne() error {
	var hdr [frameHeaderSize]byte
	for {
		raw, err := in.stream.Next(frameHeaderSize)
		if err != nil {
			return err
		}
		if len(raw) < frameHeaderSize {
			return fmt.Errorf("iostream: short header read (%d bytes)", len(raw))
		}
		copy(hdr[:], raw)

		timeTag := int64(binary.LittleEndian.Uint64(hdr[0:8]))
		id := nidas.Id(binary.LittleEndian.Uint32(hdr[8:12]))
		length := int(binary.LittleEndian.Uint32(hdr[12:16]))

		typ := id.Type()
		if !typ.Valid() {
			in.resyncAfterReject(raw, "type")
			continue
		}

		if in.filter != nil {
			if reason := in.filter.Check(length, int(id.DSMId()), timeTag); reason != RejectNone {
				in.resyncAfterReject(raw, string(reason))
				continue
			}
		}

		payloadLen := length * typ.Size()
		payload, err := in.stream.Next(payloadLen)
		if err != nil {
			return err
		}
		if len(payload) < payloadLen {
			return fmt.Errorf("iostream: short payload read (%d of %d bytes)", len(payload), payloadLen)
		}

		s := in.pool.GetSample(payloadLen, typ, id)
		s.SetTimeTag(timeTag)
		if payloadLen > 0 {
			if err := s.SetBytes(payload); err != nil {
				s.FreeReference()
				in.resyncAfterReject(raw, "decode")
				continue
			}
		} else {
			_ = s.SetLength(0)
		}

		nidas.Distribute(in.clients, s)
		return nil
	}
}

// resyncAfterReject logs the rejection and slides the read window
// forward by exactly one byte: it puts back every byte of the rejected
// header except the first, so the next readOne iteration re-reads a
// header starting one byte later. Repeating this scans forward byte by
// byte until a plausible header is found, matching §4.7's
// "resynchronizes by scanning forward for a plausible next header".
func (in *InputStream) resyncAfterReject(rejectedHeader []byte, reason string) {
	in.log.Warn().Str("reason", reason).Msg("iostream: resynchronizing after bad sample header")
	if len(rejectedHeader) > 1 {
		in.stream.PutBack(rejectedHeader[1:])
	}
}

// Close closes the underlying IOStream (and its Channel).
func (in *InputStream) Close() error {
	return in.stream.Close()
}

// vim: foldmethod=marker
