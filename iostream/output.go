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
	"sync"
	"time"

	nidas "go.nidas.dev/core"
)

// frameHeaderSize is the fixed, packed, little-endian size of the
// timetag/id/length triplet preceding every sample's payload on the wire
// (§6: offsets 0, 8, 12).
const frameHeaderSize = 16

// OutputStream serializes Samples to an IOStream: it writes the text
// Header once, at construction, then each Sample as a packed
// timetag/id/length header followed by its raw payload bytes (§6).
//
// OutputStream implements nidas.SampleClient, so it can be registered
// directly on any SampleSource (a Sorter, a raw sensor SampleSource, a
// SampleIOProcessor) to have that source's output serialized to this
// stream.
type OutputStream struct {
	mu     sync.Mutex
	stream *IOStream

	done chan struct{}
}

// NewOutputStream constructs an OutputStream over stream and immediately
// writes header, per §6's connection-open sequence. It also starts a
// background goroutine that flushes the stream every FlushInterval, so a
// low-rate SampleClient (one sample every few seconds) doesn't sit
// buffered in user space indefinitely between samples large enough to
// fill the write buffer on their own.
func NewOutputStream(stream *IOStream, header Header) (*OutputStream, error) {
	if _, err := stream.Write(header.Encode()); err != nil {
		return nil, err
	}
	if err := stream.Flush(); err != nil {
		return nil, err
	}
	o := &OutputStream{stream: stream, done: make(chan struct{})}
	go o.flushLoop()
	return o, nil
}

// flushLoop periodically flushes the underlying stream until Close stops
// it, matching §4.6's "typical 250-1000ms" flush cadence for a stream
// whose writer isn't itself calling Flush after every sample.
func (o *OutputStream) flushLoop() {
	interval := o.stream.FlushInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.mu.Lock()
			o.stream.Flush()
			o.mu.Unlock()
		case <-o.done:
			return
		}
	}
}

// Receive implements nidas.SampleClient: it serializes s to the wire and
// returns true, or false (without erroring) if the write fails, since a
// SampleClient's Receive has no error channel back to its source — a
// caller wanting write errors to be observable should use WriteSample
// directly or check Err after the fact via a wrapping type.
func (o *OutputStream) Receive(s *nidas.Sample) bool {
	return o.WriteSample(s) == nil
}

// WriteSample encodes one Sample as its wire frame and writes it to the
// underlying IOStream's buffer (which may defer the actual Channel write
// until the next flush).
func (o *OutputStream) WriteSample(s *nidas.Sample) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var hdr [frameHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(s.TimeTag()))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(s.Id()))
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(s.Length()))

	if _, err := o.stream.Write(hdr[:]); err != nil {
		return err
	}
	if s.Length() > 0 {
		if _, err := o.stream.Write(s.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces any buffered bytes out to the underlying Channel.
func (o *OutputStream) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream.Flush()
}

// Close stops the background flusher, then flushes and closes the
// underlying IOStream (and its Channel). Close must not be called more
// than once.
func (o *OutputStream) Close() error {
	close(o.done)
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream.Close()
}

// vim: foldmethod=marker
