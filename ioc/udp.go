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

// UDPSocket is a datagram-socket Channel: bind-and-go, no handshake.
// RequestConnection completes synchronously (§4.5's "UDPSocketIODevice:
// bind-and-go") since there is no connection to establish, only a local
// socket to open.
type UDPSocket struct {
	baseRequestType

	localAddr  string
	remoteAddr string // empty for a pure listener that replies to whoever sent last

	mu     sync.Mutex
	conn   *net.UDPConn
	peer   net.Addr
	closed bool
}

// NewUDPSocket constructs a UDPSocket bound to localAddr. If remoteAddr is
// non-empty, Write always targets it (a fixed peer, as a sensor sending
// status datagrams to one collector); if empty, Write targets whichever
// peer last appeared in a Read (a listener replying to its last sender).
func NewUDPSocket(localAddr, remoteAddr string) *UDPSocket {
	return &UDPSocket{localAddr: localAddr, remoteAddr: remoteAddr}
}

// RequestConnection opens the local UDP socket and calls r.Connected
// inline.
func (u *UDPSocket) RequestConnection(r ConnectionRequester) error {
	laddr, err := net.ResolveUDPAddr("udp", u.localAddr)
	if err != nil {
		r.Disconnected(u)
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		r.Disconnected(u)
		return err
	}

	u.mu.Lock()
	u.conn = conn
	if u.remoteAddr != "" {
		if raddr, rerr := net.ResolveUDPAddr("udp", u.remoteAddr); rerr == nil {
			u.peer = raddr
		}
	}
	u.mu.Unlock()

	r.Connected(u)
	return nil
}

// LocalAddr returns the bound local address, or nil if RequestConnection
// hasn't completed yet. Useful when constructed with a ":0" port and the
// operating-system-assigned port needs to be discovered afterward.
func (u *UDPSocket) LocalAddr() net.Addr {
	conn, _ := u.connState()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr()
}

// Read reads the next datagram, recording its source as the reply target
// for a subsequent Write when no fixed remoteAddr was configured.
func (u *UDPSocket) Read(p []byte) (int, error) {
	conn, closed := u.connState()
	if closed {
		return 0, ErrClosed
	}
	n, addr, err := conn.ReadFrom(p)
	if err == nil && u.remoteAddr == "" {
		u.mu.Lock()
		u.peer = addr
		u.mu.Unlock()
	}
	return n, err
}

// ReadTimeout reads the next datagram with a deadline.
func (u *UDPSocket) ReadTimeout(p []byte, d time.Duration) (int, error) {
	conn, closed := u.connState()
	if closed {
		return 0, ErrClosed
	}
	_ = conn.SetReadDeadline(time.Now().Add(d))
	n, addr, err := conn.ReadFrom(p)
	_ = conn.SetReadDeadline(time.Time{})
	if os.IsTimeout(err) {
		return n, ErrTimeout
	}
	if err == nil && u.remoteAddr == "" {
		u.mu.Lock()
		u.peer = addr
		u.mu.Unlock()
	}
	return n, err
}

// Write sends p as one datagram to the configured (or last-seen) peer.
func (u *UDPSocket) Write(p []byte) (int, error) {
	conn, closed := u.connState()
	if closed {
		return 0, ErrClosed
	}
	u.mu.Lock()
	peer := u.peer
	u.mu.Unlock()
	if peer == nil {
		return 0, ErrNoPeer
	}
	return conn.WriteTo(p, peer)
}

func (u *UDPSocket) connState() (*net.UDPConn, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.conn, u.closed
}

// Close closes the underlying socket. Idempotent.
func (u *UDPSocket) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true
	if u.conn != nil {
		return u.conn.Close()
	}
	return nil
}

// Clone returns a new, unconnected UDPSocket with the same addresses.
func (u *UDPSocket) Clone() (Channel, error) {
	return NewUDPSocket(u.localAddr, u.remoteAddr), nil
}

// vim: foldmethod=marker
