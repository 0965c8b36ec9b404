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
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// TCPSocket is a stream-socket Channel: either a client that connects out
// to Addr, or a server that Accepts one connection per RequestConnection
// call on a shared net.Listener. Constructed via DialTCP (client) or
// ListenTCP (server).
type TCPSocket struct {
	baseRequestType

	addr     string
	listener net.Listener

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// DialTCP constructs a client-side TCPSocket that connects to addr when
// RequestConnection is called.
func DialTCP(addr string) *TCPSocket {
	return &TCPSocket{addr: addr}
}

// ListenTCP constructs a server-side TCPSocket template: RequestConnection
// blocks (in its own goroutine) until a client connects, then calls
// Connected with a Channel wrapping that one connection. Calling
// RequestConnection again (or cloning and requesting on the clone) accepts
// the next client from the same listener — the pattern used by an
// archiver server accepting one ground-station connection after another.
func ListenTCP(addr string) (*TCPSocket, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCPSocket{addr: addr, listener: l}, nil
}

// Addr returns the server-mode listener's bound address, or nil for a
// client-mode TCPSocket. Useful when constructed with a ":0" port and the
// operating-system-assigned port needs to be discovered afterward.
func (t *TCPSocket) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// RequestConnection dials out (client mode) or accepts the next connection
// (server mode), then calls r.Connected once established. In server mode
// this runs in its own goroutine since Accept blocks; in client mode it
// also runs asynchronously, matching the "returns immediately" contract of
// §4.5's requestConnection.
func (t *TCPSocket) RequestConnection(r ConnectionRequester) error {
	go func() {
		if t.listener != nil {
			conn, err := t.listener.Accept()
			if err != nil {
				r.Disconnected(t)
				return
			}
			t.setConn(conn)
			r.Connected(t)
			return
		}

		conn, err := net.DialTimeout("tcp", t.addr, 10*time.Second)
		if err != nil {
			r.Disconnected(t)
			return
		}
		t.setConn(conn)
		r.Connected(t)
	}()
	return nil
}

func (t *TCPSocket) setConn(c net.Conn) {
	t.mu.Lock()
	t.conn = c
	t.mu.Unlock()
}

// Read reads from the established connection.
func (t *TCPSocket) Read(p []byte) (int, error) {
	conn, closed := t.connState()
	if closed {
		return 0, ErrClosed
	}
	n, err := conn.Read(p)
	return n, translateNetErr(err)
}

// ReadTimeout reads with a deadline, returning ErrTimeout on expiry —
// the Go net package's SetReadDeadline stands in for the original's
// ppoll/pselect-with-unblocked-signal-mask pattern (§4.5/§5): both give a
// bounded wait on an otherwise-blocking read.
func (t *TCPSocket) ReadTimeout(p []byte, d time.Duration) (int, error) {
	conn, closed := t.connState()
	if closed {
		return 0, ErrClosed
	}
	_ = conn.SetReadDeadline(time.Now().Add(d))
	n, err := conn.Read(p)
	_ = conn.SetReadDeadline(time.Time{})
	if os.IsTimeout(err) {
		return n, ErrTimeout
	}
	return n, translateNetErr(err)
}

// Write writes to the established connection.
func (t *TCPSocket) Write(p []byte) (int, error) {
	conn, closed := t.connState()
	if closed {
		return 0, ErrClosed
	}
	n, err := conn.Write(p)
	return n, translateNetErr(err)
}

func (t *TCPSocket) connState() (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.closed
}

// Close closes the established connection (and, in server mode, the
// listener). Idempotent.
func (t *TCPSocket) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	if t.listener != nil {
		if lerr := t.listener.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// Clone returns a new, unconnected TCPSocket for the same address/
// listener, letting a server hand out another client slot while the
// original keeps accepting.
func (t *TCPSocket) Clone() (Channel, error) {
	return &TCPSocket{addr: t.addr, listener: t.listener}, nil
}

// translateNetErr maps net.Conn error conditions onto this package's
// sentinel errors where a caller cares about the distinction (a clean
// close vs. any other failure); everything else passes through unchanged.
func translateNetErr(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return ErrHangup
	}
	var ne net.Error
	if ok := asNetError(err, &ne); ok && ne.Timeout() {
		return ErrTimeout
	}
	return err
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

// vim: foldmethod=marker
