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
	"encoding/binary"
	"net"
	"time"
)

// McSocket implements the multicast request/reply rendezvous described in
// §4.5 and §6: a requester multicasts a small datagram carrying its own
// unicast endpoint and a RequestType tag to a well-known group/port; a
// listening server replies by dialing a TCP connection back to that
// endpoint. The Channel returned to the caller's ConnectionRequester is
// the resulting TCP connection, not the multicast socket itself — McSocket
// is purely the rendezvous step.
type McSocket struct {
	baseRequestType

	// Group is the multicast group/port requests are sent to (requester
	// side) or listened on (server side), e.g. "239.0.0.1:9000".
	Group string

	// ListenAddr, if non-empty, makes this McSocket a server: it listens
	// on the multicast Group and, on seeing a request whose RequestType
	// matches, dials back to the requester's advertised unicast address.
	// If empty, this McSocket is a requester: it multicasts one request
	// datagram and accepts the reply connection.
	ListenAddr string

	// UnicastAddr is the requester's own address to advertise in its
	// request datagram, so the server knows where to dial back to.
	UnicastAddr string

	// Timeout bounds how long a requester waits for the reply TCP
	// connection before giving up.
	Timeout time.Duration
}

// mcRequest is the wire format of the small multicast request datagram:
// a RequestType tag followed by the requester's unicast endpoint as a
// length-prefixed string, all little-endian.
type mcRequest struct {
	typ  RequestType
	addr string
}

func encodeMcRequest(r mcRequest) []byte {
	buf := make([]byte, 4+4+len(r.addr))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.typ))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.addr)))
	copy(buf[8:], r.addr)
	return buf
}

func decodeMcRequest(buf []byte) (mcRequest, bool) {
	if len(buf) < 8 {
		return mcRequest{}, false
	}
	typ := RequestType(binary.LittleEndian.Uint32(buf[0:4]))
	n := int(binary.LittleEndian.Uint32(buf[4:8]))
	if len(buf) < 8+n {
		return mcRequest{}, false
	}
	return mcRequest{typ: typ, addr: string(buf[8 : 8+n])}, true
}

// RequestConnection runs the handshake (requester or server side,
// depending on which fields are set) in its own goroutine and calls
// r.Connected with the resulting TCP Channel, or r.Disconnected on
// failure or timeout.
func (m *McSocket) RequestConnection(r ConnectionRequester) error {
	if m.ListenAddr != "" {
		go m.serveOnce(r)
	} else {
		go m.requestOnce(r)
	}
	return nil
}

// requestOnce is the requester side: multicast one request datagram
// carrying UnicastAddr and RequestType, then accept the reply TCP
// connection on a listener bound to UnicastAddr.
func (m *McSocket) requestOnce(r ConnectionRequester) {
	listener, err := net.Listen("tcp", m.UnicastAddr)
	if err != nil {
		r.Disconnected(nil)
		return
	}
	defer listener.Close()

	groupAddr, err := net.ResolveUDPAddr("udp", m.Group)
	if err != nil {
		r.Disconnected(nil)
		return
	}
	conn, err := net.DialUDP("udp", nil, groupAddr)
	if err != nil {
		r.Disconnected(nil)
		return
	}
	defer conn.Close()

	req := encodeMcRequest(mcRequest{typ: m.requestType, addr: listener.Addr().String()})
	if _, err := conn.Write(req); err != nil {
		r.Disconnected(nil)
		return
	}

	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tl, ok := listener.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(timeout))
	}

	replyConn, err := listener.Accept()
	if err != nil {
		r.Disconnected(nil)
		return
	}

	r.Connected(&TCPSocket{conn: replyConn})
}

// serveOnce is the server side: listen for multicast requests whose
// RequestType matches this McSocket's, then dial back to the requester's
// advertised unicast endpoint.
func (m *McSocket) serveOnce(r ConnectionRequester) {
	groupAddr, err := net.ResolveUDPAddr("udp", m.Group)
	if err != nil {
		r.Disconnected(nil)
		return
	}
	conn, err := net.ListenMulticastUDP("udp", nil, groupAddr)
	if err != nil {
		r.Disconnected(nil)
		return
	}
	defer conn.Close()

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			r.Disconnected(nil)
			return
		}
		req, ok := decodeMcRequest(buf[:n])
		if !ok || req.typ != m.requestType {
			continue
		}

		replyConn, err := net.DialTimeout("tcp", req.addr, 10*time.Second)
		if err != nil {
			continue
		}
		r.Connected(&TCPSocket{conn: replyConn})
		return
	}
}

// Read/Write/Close/ReadTimeout are not meaningful on the rendezvous
// socket itself — the usable Channel is the one handed to Connected.
func (m *McSocket) Read(p []byte) (int, error)                    { return 0, ErrNotCloneable }
func (m *McSocket) ReadTimeout(p []byte, d time.Duration) (int, error) { return 0, ErrNotCloneable }
func (m *McSocket) Write(p []byte) (int, error)                   { return 0, ErrNotCloneable }
func (m *McSocket) Close() error                                  { return nil }

// Clone returns a new, unconnected McSocket with the same configuration.
func (m *McSocket) Clone() (Channel, error) {
	c := *m
	return &c, nil
}

// vim: foldmethod=marker
