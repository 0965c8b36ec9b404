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

//go:build linux

package ioc

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	afBluetooth   = 31 // AF_BLUETOOTH, as defined by <bluetooth/bluetooth.h>
	btProtoRFCOMM = 3  // BTPROTO_RFCOMM
)

// BluetoothRFCommSocket is a Channel over a Linux AF_BLUETOOTH/BTPROTO_RFCOMM
// socket (§4.5's BluetoothRFCommSocketIODevice): an HCI device bind
// followed by an RFCOMM connect, used by sensors that expose themselves
// over Bluetooth serial profile rather than a wired port.
type BluetoothRFCommSocket struct {
	baseRequestType

	bdaddr  [6]byte
	channel uint8

	mu     sync.Mutex
	fd     int
	closed bool
}

// NewBluetoothRFCommSocket constructs a Channel that connects to the RFCOMM
// channel on the device with the given Bluetooth address when
// RequestConnection is called.
func NewBluetoothRFCommSocket(bdaddr [6]byte, channel uint8) *BluetoothRFCommSocket {
	return &BluetoothRFCommSocket{bdaddr: bdaddr, channel: channel}
}

// RequestConnection opens an AF_BLUETOOTH/BTPROTO_RFCOMM socket and
// connects it to the configured device/channel, running the syscalls in
// their own goroutine since Connect can block for the duration of a
// Bluetooth inquiry/pairing round trip.
func (b *BluetoothRFCommSocket) RequestConnection(r ConnectionRequester) error {
	go func() {
		fd, err := unix.Socket(afBluetooth, unix.SOCK_STREAM, btProtoRFCOMM)
		if err != nil {
			r.Disconnected(b)
			return
		}

		sa := &unix.SockaddrRFCOMM{Channel: b.channel, Addr: b.bdaddr}
		if err := unix.Connect(fd, sa); err != nil {
			unix.Close(fd)
			r.Disconnected(b)
			return
		}

		b.mu.Lock()
		b.fd = fd
		b.mu.Unlock()

		r.Connected(b)
	}()
	return nil
}

// Read reads from the RFCOMM socket.
func (b *BluetoothRFCommSocket) Read(p []byte) (int, error) {
	fd, closed := b.fdState()
	if closed {
		return 0, ErrClosed
	}
	n, err := unix.Read(fd, p)
	if n == 0 && err == nil {
		return 0, ErrHangup
	}
	return n, err
}

// ReadTimeout reads from the RFCOMM socket with a poll-based deadline,
// the same ppoll-with-timeout pattern §4.5/§5 describes for every
// IOChannel variant's timed read.
func (b *BluetoothRFCommSocket) ReadTimeout(p []byte, d time.Duration) (int, error) {
	fd, closed := b.fdState()
	if closed {
		return 0, ErrClosed
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(d.Milliseconds()))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimeout
	}
	if fds[0].Revents&unix.POLLHUP != 0 {
		return 0, ErrHangup
	}
	if fds[0].Revents&unix.POLLERR != 0 {
		return 0, ErrClosed
	}
	return b.Read(p)
}

// Write writes to the RFCOMM socket.
func (b *BluetoothRFCommSocket) Write(p []byte) (int, error) {
	fd, closed := b.fdState()
	if closed {
		return 0, ErrClosed
	}
	return unix.Write(fd, p)
}

func (b *BluetoothRFCommSocket) fdState() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fd, b.closed
}

// Close closes the RFCOMM socket. Idempotent.
func (b *BluetoothRFCommSocket) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.fd != 0 {
		return unix.Close(b.fd)
	}
	return nil
}

// Clone returns a new, unconnected BluetoothRFCommSocket for the same
// device address/channel.
func (b *BluetoothRFCommSocket) Clone() (Channel, error) {
	return NewBluetoothRFCommSocket(b.bdaddr, b.channel), nil
}

// vim: foldmethod=marker
