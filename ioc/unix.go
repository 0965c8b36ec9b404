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
	"net"
	"os"
	"sync"
	"time"
)

// UnixSocket is a Unix domain stream-socket Channel — the local-host
// analog of TCPSocket, used for a DSM's sensors to reach its own
// concentrating daemon over a socket path instead of a network port.
type UnixSocket struct {
	baseRequestType

	path     string
	listener net.Listener

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// DialUnix constructs a client-side UnixSocket that connects to path when
// RequestConnection is called.
func DialUnix(path string) *UnixSocket {
	return &UnixSocket{path: path}
}

// ListenUnix constructs a server-side UnixSocket template, removing any
// stale socket file at path before binding.
func ListenUnix(path string) (*UnixSocket, error) {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &UnixSocket{path: path, listener: l}, nil
}

// RequestConnection dials out or accepts the next client, as TCPSocket
// does.
func (u *UnixSocket) RequestConnection(r ConnectionRequester) error {
	go func() {
		if u.listener != nil {
			conn, err := u.listener.Accept()
			if err != nil {
				r.Disconnected(u)
				return
			}
			u.setConn(conn)
			r.Connected(u)
			return
		}

		conn, err := net.DialTimeout("unix", u.path, 10*time.Second)
		if err != nil {
			r.Disconnected(u)
			return
		}
		u.setConn(conn)
		r.Connected(u)
	}()
	return nil
}

func (u *UnixSocket) setConn(c net.Conn) {
	u.mu.Lock()
	u.conn = c
	u.mu.Unlock()
}

// Read reads from the established connection.
func (u *UnixSocket) Read(p []byte) (int, error) {
	conn, closed := u.connState()
	if closed {
		return 0, ErrClosed
	}
	n, err := conn.Read(p)
	return n, translateNetErr(err)
}

// ReadTimeout reads with a deadline.
func (u *UnixSocket) ReadTimeout(p []byte, d time.Duration) (int, error) {
	conn, closed := u.connState()
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
func (u *UnixSocket) Write(p []byte) (int, error) {
	conn, closed := u.connState()
	if closed {
		return 0, ErrClosed
	}
	n, err := conn.Write(p)
	return n, translateNetErr(err)
}

func (u *UnixSocket) connState() (net.Conn, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn, u.closed
}

// Close closes the established connection (and, in server mode, the
// listener, unlinking the socket path). Idempotent.
func (u *UnixSocket) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	var err error
	if u.conn != nil {
		err = u.conn.Close()
	}
	if u.listener != nil {
		if lerr := u.listener.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// Clone returns a new, unconnected UnixSocket for the same path/listener.
func (u *UnixSocket) Clone() (Channel, error) {
	return &UnixSocket{path: u.path, listener: u.listener}, nil
}

// vim: foldmethod=marker
