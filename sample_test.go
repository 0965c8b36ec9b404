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

package nidas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	nidas "go.nidas.dev/core"
)

func TestSampleBytesRoundTrip(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(16, nidas.TypeUint8, nidas.NewId(nidas.TypeUint8, 1, 2))

	assert.NoError(t, s.SetBytes([]byte("hello")))
	assert.Equal(t, []byte("hello"), s.Bytes())
	assert.Equal(t, 5, s.Length())
}

func TestSampleFloat32RoundTrip(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	id := nidas.NewId(nidas.TypeFloat32, 1, 2)
	s := pool.GetSample(4*4, nidas.TypeFloat32, id)
	assert.NoError(t, s.SetLength(4))

	for i, v := range []float32{1.5, -2.25, 0, 100} {
		s.SetFloat32At(i, v)
	}
	for i, want := range []float32{1.5, -2.25, 0, 100} {
		assert.Equal(t, want, s.Float32At(i))
	}
}

func TestSampleFloat64TypeMismatchPanics(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(8, nidas.TypeFloat32, nidas.NewId(nidas.TypeFloat32, 0, 0))
	assert.Panics(t, func() { s.Float64At(0) })
}

func TestIdRoundTrip(t *testing.T) {
	id := nidas.NewId(nidas.TypeFloat64, 731, 42)
	assert.Equal(t, nidas.TypeFloat64, id.Type())
	assert.Equal(t, uint16(731), id.DSMId())
	assert.Equal(t, uint16(42), id.ShortId())

	id2 := id.WithShortId(7)
	assert.Equal(t, uint16(7), id2.ShortId())
	assert.Equal(t, uint16(731), id2.DSMId())
	assert.Equal(t, nidas.TypeFloat64, id2.Type())
}

func TestRefCountReturnsSampleToPool(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(16, nidas.TypeChar, nidas.NewId(nidas.TypeChar, 0, 0))

	assert.Equal(t, int32(1), s.RefCount())
	s.HoldReference()
	assert.Equal(t, int32(2), s.RefCount())
	s.FreeReference()
	assert.Equal(t, int32(1), s.RefCount())
	s.FreeReference()
	assert.Equal(t, int32(0), s.RefCount())
}

// vim: foldmethod=marker
