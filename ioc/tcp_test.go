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

package ioc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nidas.dev/core/ioc"
)

func TestTCPSocketRoundTrip(t *testing.T) {
	server, err := ioc.ListenTCP("127.0.0.1:0")
	require.NoError(t, err)
	defer server.Close()

	addr := server.Addr().String()

	type result struct {
		c   ioc.Channel
		err error
	}
	serverCh := make(chan result, 1)
	require.NoError(t, server.RequestConnection(ioc.ConnectionRequesterFunc{
		OnConnected:    func(c ioc.Channel) { serverCh <- result{c: c} },
		OnDisconnected: func(c ioc.Channel) { serverCh <- result{err: assert.AnError} },
	}))

	client := ioc.DialTCP(addr)
	clientCh := make(chan result, 1)
	require.NoError(t, client.RequestConnection(ioc.ConnectionRequesterFunc{
		OnConnected:    func(c ioc.Channel) { clientCh <- result{c: c} },
		OnDisconnected: func(c ioc.Channel) { clientCh <- result{err: assert.AnError} },
	}))

	var sc, cc ioc.Channel
	select {
	case r := <-serverCh:
		require.NoError(t, r.err)
		sc = r.c
	case <-time.After(2 * time.Second):
		t.Fatal("server side never connected")
	}
	select {
	case r := <-clientCh:
		require.NoError(t, r.err)
		cc = r.c
	case <-time.After(2 * time.Second):
		t.Fatal("client side never connected")
	}
	defer sc.Close()
	defer cc.Close()

	_, err = cc.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := sc.ReadTimeout(buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestTCPSocketReadAfterCloseReturnsErrClosed(t *testing.T) {
	client := ioc.DialTCP("127.0.0.1:1")
	require.NoError(t, client.Close())
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ioc.ErrClosed)
}

// vim: foldmethod=marker
