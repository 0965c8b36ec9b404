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

func TestSamplePoolGetSampleGrantsRequestedCapacity(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(100, nidas.TypeUint8, nidas.NewId(nidas.TypeUint8, 0, 0))
	assert.GreaterOrEqual(t, s.Capacity(), 100)
}

func TestSamplePoolReusesReturnedSample(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{SmallCount: 1})
	id := nidas.NewId(nidas.TypeUint8, 0, 0)

	s1 := pool.GetSample(10, nidas.TypeUint8, id)
	s1.FreeReference()

	s2 := pool.GetSample(10, nidas.TypeUint8, id)
	assert.Equal(t, int32(1), s2.RefCount())
}

func TestSamplePoolOverflowFallsBackToHeap(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{SmallCount: 1, MediumCount: 1, LargeCount: 1})
	id := nidas.NewId(nidas.TypeUint8, 0, 0)

	// Exhaust the large class's single slot, then request one more: it
	// must still succeed via a direct heap allocation rather than
	// blocking or failing.
	held := pool.GetSample(8000, nidas.TypeUint8, id)
	overflow := pool.GetSample(8000, nidas.TypeUint8, id)

	assert.NotNil(t, held)
	assert.NotNil(t, overflow)
	assert.GreaterOrEqual(t, overflow.Capacity(), 8000)
}

// vim: foldmethod=marker
