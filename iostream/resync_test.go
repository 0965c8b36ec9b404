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

package iostream_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nidas "go.nidas.dev/core"
	"go.nidas.dev/core/ioc"
	"go.nidas.dev/core/iostream"
)

// TestInputStreamResyncsPastBadHeader reproduces §8 scenario 6: a header
// declaring an implausible length is rejected by the BadSampleFilter, and
// the stream scans forward byte by byte until the next plausible header
// is found and the sample after it is delivered intact.
func TestInputStreamResyncsPastBadHeader(t *testing.T) {
	a, b := ioc.NewPipe(256)
	defer a.Close()
	defer b.Close()

	wStream := iostream.New(a, iostream.IOStreamOptions{})
	out, err := iostream.NewOutputStream(wStream, iostream.Header{})
	require.NoError(t, err)
	defer out.Close()

	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	id := nidas.NewId(nidas.TypeChar, 1, 2)

	// A bogus frame header declaring an implausible length (1,000,000
	// elements), matching §8 scenario 6's literal input, with no payload
	// actually following it on the wire — exactly the kind of corrupted
	// header the resync path exists to scan past.
	var badHdr [16]byte
	binary.LittleEndian.PutUint64(badHdr[0:8], 1)
	binary.LittleEndian.PutUint32(badHdr[8:12], uint32(id))
	binary.LittleEndian.PutUint32(badHdr[12:16], 1_000_000)
	_, err = wStream.Write(badHdr[:])
	require.NoError(t, err)

	good := pool.GetSample(5, nidas.TypeChar, id)
	require.NoError(t, good.SetBytes([]byte("hello")))
	good.SetTimeTag(42)
	require.NoError(t, out.WriteSample(good))
	good.FreeReference()
	require.NoError(t, out.Flush())

	rStream := iostream.New(b, iostream.IOStreamOptions{})
	filter := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{MaxLength: 4096})
	in, err := iostream.NewInputStream(rStream, iostream.InputStreamOptions{
		Pool:   pool,
		Filter: filter,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	recvCh := make(chan *nidas.Sample, 1)
	in.AddSampleClient(nidas.SampleClientFunc(func(s *nidas.Sample) bool {
		s.HoldReference()
		recvCh <- s
		return true
	}))

	readErr := make(chan error, 1)
	go func() { readErr <- in.ReadSamples() }()

	var received *nidas.Sample
	select {
	case received = <-recvCh:
	case <-time.After(time.Second):
		t.Fatal("resync never delivered the valid sample after the bad header")
	}

	a.Close()
	select {
	case <-readErr:
	case <-time.After(time.Second):
		t.Fatal("ReadSamples did not return after Close")
	}

	assert.Equal(t, []byte("hello"), received.Bytes())
	assert.Equal(t, int64(42), received.TimeTag())
}

// vim: foldmethod=marker
