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

// Package iostream is the user-space buffering layer on top of an
// ioc.Channel (IOStream, §4.6), and the Sample framing/serialization on
// top of that (SampleInputStream/SampleOutputStream, §4.7), including the
// text header handshake and the BadSampleFilter validation rules.
package iostream

import (
	"time"

	"go.nidas.dev/core/ioc"
)

// defaultBufferSize is the suggested internal buffer size when none is
// given; the original typically sizes this a few times the expected
// per-flush-interval byte volume of one sensor's stream.
const defaultBufferSize = 16 * 1024

// IOStream buffers reads and writes over a single ioc.Channel. It is not
// safe for concurrent use: a producer (goroutine writing samples) and a
// consumer (goroutine reading them back) must each own a different
// IOStream instance, even over the same logical connection.
//
// Write path: Write appends to an internal buffer and flushes it to the
// underlying Channel when the buffer is full, when FlushInterval has
// elapsed since the last flush, or when Flush is called explicitly. This
// bounds a low-rate sample stream's tail latency without a syscall per
// sample.
//
// Read path: Next and NextTimeout pull from the underlying Channel into an
// internal buffer on demand; Available reports how many buffered bytes remain
// unread. PutBack pushes a small prefix back onto the front of the read
// buffer, which the header parser in this package uses when it
// encounters a byte sequence that isn't a known header tag.
type IOStream struct {
	channel ioc.Channel

	writeBuf      []byte
	flushInterval time.Duration
	lastFlush     time.Time

	readBuf []byte
	readOff int
}

// IOStreamOptions configures an IOStream.
type IOStreamOptions struct {
	// BufferSize is the capacity of the write buffer before a flush is
	// forced. A zero value selects defaultBufferSize.
	BufferSize int

	// FlushInterval bounds how long buffered writes may sit before being
	// flushed even if BufferSize hasn't been reached. §4.6 calls out a
	// typical range of 250-1000ms; a zero value defaults to 250ms.
	FlushInterval time.Duration
}

func (o IOStreamOptions) withDefaults() IOStreamOptions {
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 250 * time.Millisecond
	}
	return o
}

// New constructs an IOStream over channel, which it takes ownership of:
// Close on the IOStream closes the underlying Channel.
func New(channel ioc.Channel, opts IOStreamOptions) *IOStream {
	opts = opts.withDefaults()
	return &IOStream{
		channel:       channel,
		writeBuf:      make([]byte, 0, opts.BufferSize),
		flushInterval: opts.FlushInterval,
		lastFlush:     time.Now(),
	}
}

// Write appends p to the internal write buffer, flushing first if p would
// overflow it and flushing after if the buffer is now full or
// FlushInterval has elapsed since the last flush.
func (s *IOStream) Write(p []byte) (int, error) {
	if len(s.writeBuf)+len(p) > cap(s.writeBuf) && len(s.writeBuf) > 0 {
		if err := s.Flush(); err != nil {
			return 0, err
		}
	}

	if len(p) >= cap(s.writeBuf) {
		// Larger than the whole buffer: write straight through rather
		// than growing the buffer to fit one oversized sample.
		n, err := s.channel.Write(p)
		s.lastFlush = time.Now()
		return n, err
	}

	s.writeBuf = append(s.writeBuf, p...)

	if len(s.writeBuf) >= cap(s.writeBuf) || time.Since(s.lastFlush) >= s.flushInterval {
		if err := s.Flush(); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush writes any buffered bytes to the underlying Channel.
func (s *IOStream) Flush() error {
	if len(s.writeBuf) == 0 {
		s.lastFlush = time.Now()
		return nil
	}
	_, err := s.channel.Write(s.writeBuf)
	s.writeBuf = s.writeBuf[:0]
	s.lastFlush = time.Now()
	return err
}

// ShouldFlush reports whether FlushInterval has elapsed since the last
// flush, for a caller driving periodic flush ticks itself (an output
// stream writer goroutine idle-polling between samples).
func (s *IOStream) ShouldFlush() bool {
	return len(s.writeBuf) > 0 && time.Since(s.lastFlush) >= s.flushInterval
}

// FlushInterval returns the configured auto-flush interval, so a caller
// driving its own periodic flush ticker (OutputStream's background
// flusher, in particular) can match the buffering policy it was built
// with instead of hardcoding a second constant.
func (s *IOStream) FlushInterval() time.Duration {
	return s.flushInterval
}

// Available returns the number of buffered, unread bytes.
func (s *IOStream) Available() int {
	return len(s.readBuf) - s.readOff
}

// fill reads more bytes from the underlying Channel into the read buffer,
// compacting already-consumed bytes out first.
func (s *IOStream) fill() error {
	if s.readOff > 0 {
		copy(s.readBuf, s.readBuf[s.readOff:])
		s.readBuf = s.readBuf[:len(s.readBuf)-s.readOff]
		s.readOff = 0
	}

	buf := make([]byte, 8192)
	n, err := s.channel.Read(buf)
	if n > 0 {
		s.readBuf = append(s.readBuf, buf[:n]...)
	}
	return err
}

// fillTimeout is like fill but bounds the underlying read with a
// deadline, used while scanning for the initial header where an
// unresponsive peer must not hang the caller forever.
func (s *IOStream) fillTimeout(d time.Duration) error {
	if s.readOff > 0 {
		copy(s.readBuf, s.readBuf[s.readOff:])
		s.readBuf = s.readBuf[:len(s.readBuf)-s.readOff]
		s.readOff = 0
	}

	buf := make([]byte, 8192)
	n, err := s.channel.ReadTimeout(buf, d)
	if n > 0 {
		s.readBuf = append(s.readBuf, buf[:n]...)
	}
	return err
}

// Next returns up to n unread bytes, reading more from the underlying
// Channel if the buffer doesn't already have them. The returned slice
// aliases the internal buffer and is only valid until the next call to
// Next, NextTimeout, or PutBack.
func (s *IOStream) Next(n int) ([]byte, error) {
	for s.Available() < n {
		if err := s.fill(); err != nil {
			if s.Available() > 0 {
				break
			}
			return nil, err
		}
	}
	avail := s.Available()
	if avail < n {
		n = avail
	}
	out := s.readBuf[s.readOff : s.readOff+n]
	s.readOff += n
	return out, nil
}

// NextTimeout is like Next but bounds each underlying read with a
// deadline.
func (s *IOStream) NextTimeout(n int, d time.Duration) ([]byte, error) {
	for s.Available() < n {
		if err := s.fillTimeout(d); err != nil {
			if s.Available() > 0 {
				break
			}
			return nil, err
		}
	}
	avail := s.Available()
	if avail < n {
		n = avail
	}
	out := s.readBuf[s.readOff : s.readOff+n]
	s.readOff += n
	return out, nil
}

// PutBack pushes p back onto the front of the unread buffer, so a
// subsequent Next/NextTimeout sees it again. Used by the header parser when it
// reads a byte sequence that turns out not to be a recognized header tag.
func (s *IOStream) PutBack(p []byte) {
	if s.readOff >= len(p) {
		s.readOff -= len(p)
		copy(s.readBuf[s.readOff:], p)
		return
	}
	s.readBuf = append(append([]byte{}, p...), s.readBuf[s.readOff:]...)
	s.readOff = 0
}

// Close flushes any pending writes and closes the underlying Channel.
func (s *IOStream) Close() error {
	flushErr := s.Flush()
	closeErr := s.channel.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// vim: foldmethod=marker
