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

// Package ioc is the capability-based endpoint abstraction underneath the
// core pipeline's I/O: a uniform Channel interface implemented by a plain
// file, a time-rolled FileSet, a TCP socket, a UDP socket, a multicast
// rendezvous socket, a Unix domain socket, and a Bluetooth RFCOMM socket.
// The same SampleInputStream/SampleOutputStream code (see the iostream
// package) runs unchanged over any of them: endpoint lifecycle and framing
// are deliberately kept separate, matching the original IOChannel family's
// virtual-dispatch split.
package ioc

import (
	"errors"
	"time"
)

// Sentinel errors a Channel's Read/Write/RequestConnection may return.
// Following this repo's own convention (see sample.go's ErrTypeMismatch
// family) these are compared with errors.Is, not matched as a sum type:
// §9's "exception to sum type" redesign is realized this way rather than
// as a generic Result[T] type, which would not be idiomatic Go.
var (
	// ErrClosed is returned by any operation on a Channel after Close has
	// been called.
	ErrClosed = errors.New("ioc: channel closed")

	// ErrTimeout is returned by ReadTimeout when the deadline elapses
	// before any bytes are available.
	ErrTimeout = errors.New("ioc: read timeout")

	// ErrHangup is returned by Read when the peer has cleanly closed its
	// end (a POLLHUP-equivalent condition) with no more data pending.
	ErrHangup = errors.New("ioc: peer hung up")

	// ErrNotCloneable is returned by Clone on a Channel variant that does
	// not support producing an unconnected duplicate of itself.
	ErrNotCloneable = errors.New("ioc: channel is not cloneable")

	// ErrNoPeer is returned by UDPSocket.Write when no fixed remote
	// address was configured and no datagram has been received yet to
	// learn a reply target from.
	ErrNoPeer = errors.New("ioc: no destination address known")
)

// RequestType tags a connection request so a multicast-discovered server
// can distinguish which service a requester is looking for (see McSocket).
// Channel variants that don't need rendezvous disambiguation ignore it.
type RequestType int

// ConnectionRequester is notified asynchronously once a Channel finishes
// whatever handshake its RequestConnection call kicked off. Connected is
// invoked on whatever goroutine completes the handshake (inline, for a
// synchronous Channel like a plain File); implementations must not block
// in it. Disconnected is invoked when an established Channel's underlying
// transport reports a fatal failure.
//
// This is the core's SampleConnectionRequester (§4.9): a
// SampleIOProcessor wanting an output calls output.RequestConnection(this)
// and waits for the callback rather than blocking its own goroutine on
// the handshake.
type ConnectionRequester interface {
	Connected(c Channel)
	Disconnected(c Channel)
}

// ConnectionRequesterFunc adapts two plain functions to a
// ConnectionRequester.
type ConnectionRequesterFunc struct {
	OnConnected    func(Channel)
	OnDisconnected func(Channel)
}

// Connected calls f.OnConnected(c) if set.
func (f ConnectionRequesterFunc) Connected(c Channel) {
	if f.OnConnected != nil {
		f.OnConnected(c)
	}
}

// Disconnected calls f.OnDisconnected(c) if set.
func (f ConnectionRequesterFunc) Disconnected(c Channel) {
	if f.OnDisconnected != nil {
		f.OnDisconnected(c)
	}
}

// Channel is the uniform endpoint abstraction every I/O variant in this
// package implements: a file, a FileSet, a TCP or UDP socket, a multicast
// rendezvous socket, a Unix domain socket, or a Bluetooth RFCOMM socket.
//
// Read and Write behave like io.Reader/io.Writer: a short read is normal,
// not an error. ReadTimeout additionally bounds how long Read may block,
// returning ErrTimeout on expiry. Close is idempotent; every other method
// called after Close returns ErrClosed.
type Channel interface {
	// Read reads up to len(p) bytes into p, blocking until at least one
	// byte is available or the Channel is closed.
	Read(p []byte) (int, error)

	// ReadTimeout behaves like Read but returns ErrTimeout if no data
	// becomes available within d.
	ReadTimeout(p []byte, d time.Duration) (int, error)

	// Write writes p, blocking until all of it is accepted by the
	// underlying transport or an error occurs.
	Write(p []byte) (int, error)

	// Close releases the Channel's resources. Idempotent.
	Close() error

	// RequestConnection begins (or, for a synchronous Channel, completes
	// inline) whatever handshake this Channel variant needs, and arranges
	// for r.Connected to be called once the Channel is ready for Read/
	// Write, or r.Disconnected if the attempt fails terminally.
	RequestConnection(r ConnectionRequester) error

	// Clone returns a new, unconnected Channel with the same
	// configuration as this one, or ErrNotCloneable if the variant
	// doesn't support it. Used by a server-style Channel (TCP listener,
	// McSocket) to produce a fresh per-client Channel from one template.
	Clone() (Channel, error)

	// RequestType returns the tag used to disambiguate this Channel's
	// intended service during a multicast rendezvous handshake.
	RequestType() RequestType

	// SetRequestType sets the tag returned by RequestType.
	SetRequestType(RequestType)
}

// baseRequestType is embedded by every Channel implementation in this
// package to provide the RequestType/SetRequestType pair without
// repeating the same two trivial methods in each variant.
type baseRequestType struct {
	requestType RequestType
}

func (b *baseRequestType) RequestType() RequestType     { return b.requestType }
func (b *baseRequestType) SetRequestType(t RequestType) { b.requestType = t }

// vim: foldmethod=marker
