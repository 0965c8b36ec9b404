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

package ioc

import (
	"context"
	"errors"
	"time"
)

// ErrBufferOverrun is returned by Pipe.Write when the buffered queue
// between the two ends is full. The pipe is closed as a side effect,
// matching the original bufpipe's policy that a slow reader closes the
// pipe rather than stalling the writer indefinitely.
var ErrBufferOverrun = errors.New("ioc: pipe buffer overrun")

// Pipe is an in-process, in-memory Channel pair: bytes written to one end
// (via Write) become readable from the other (via Read/ReadTimeout), with
// writes queued onto a bounded, non-blocking buffer rather than
// rendezvousing directly with a reader. It's the Channel used to test the
// rest of this package and the iostream/processor layers above it without
// a real file, socket, or device.
//
// RequestConnection completes inline: a Pipe end is always already
// "connected" to its peer.
type Pipe struct {
	baseRequestType

	ctx    context.Context
	cancel context.CancelFunc

	buf    chan []byte
	pend   []byte
	peer   *Pipe
	closed bool
}

// NewPipe returns two connected Pipe ends: bytes written to a are readable
// from b and vice versa. capacity bounds how many pending Writes may queue
// on each direction before Write starts returning ErrBufferOverrun.
func NewPipe(capacity int) (a, b *Pipe) {
	ctx, cancel := context.WithCancel(context.Background())
	a = &Pipe{ctx: ctx, cancel: cancel, buf: make(chan []byte, capacity)}
	b = &Pipe{ctx: ctx, cancel: cancel, buf: make(chan []byte, capacity)}
	a.peer, b.peer = b, a
	return a, b
}

// RequestConnection calls r.Connected(p) immediately: a Pipe end has no
// handshake to perform.
func (p *Pipe) RequestConnection(r ConnectionRequester) error {
	r.Connected(p)
	return nil
}

// Write queues a copy of p for the peer end to Read, without blocking. If
// the peer's queue is full, the pipe is closed and ErrBufferOverrun is
// returned, matching the original bufpipe's overrun behavior: a slow
// reader closes the pipe rather than stalling the writer indefinitely.
func (p *Pipe) Write(b []byte) (int, error) {
	if p.closed || p.ctx.Err() != nil {
		return 0, ErrClosed
	}
	cp := append([]byte(nil), b...)
	select {
	case p.peer.buf <- cp:
		return len(b), nil
	default:
		p.Close()
		return 0, ErrBufferOverrun
	}
}

// Read reads from whatever the peer has written, blocking until at least
// one byte is available or the pipe is closed.
func (p *Pipe) Read(b []byte) (int, error) {
	return p.ReadTimeout(b, 0)
}

// ReadTimeout behaves like Read, returning ErrTimeout if d elapses (d <= 0
// means wait forever) with nothing available.
func (p *Pipe) ReadTimeout(b []byte, d time.Duration) (int, error) {
	if len(p.pend) == 0 {
		var timeout <-chan time.Time
		if d > 0 {
			t := time.NewTimer(d)
			defer t.Stop()
			timeout = t.C
		}
		select {
		case chunk, ok := <-p.buf:
			if !ok {
				return 0, ErrHangup
			}
			p.pend = chunk
		case <-p.ctx.Done():
			return 0, ErrClosed
		case <-timeout:
			return 0, ErrTimeout
		}
	}
	n := copy(b, p.pend)
	p.pend = p.pend[n:]
	return n, nil
}

// Close closes both ends of the pipe pair.
func (p *Pipe) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.cancel()
	return nil
}

// Clone returns ErrNotCloneable: a Pipe end is already connected to a
// specific peer and has nothing to template a new pair from.
func (p *Pipe) Clone() (Channel, error) {
	return nil, ErrNotCloneable
}

// vim: foldmethod=marker
