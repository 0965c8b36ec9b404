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

// recvFunc is a pointer-identity SampleClient used in these tests in place
// of nidas.SampleClientFunc: SampleClientList compares clients with ==,
// and two distinct closures converted to the same func type are not
// comparable, so tests exercising Add/Remove dedup need an identity that
// is (a struct pointer, unlike a bare func value).
type recvFunc struct {
	fn func(*nidas.Sample) bool
}

func (r *recvFunc) Receive(s *nidas.Sample) bool { return r.fn(s) }

func TestSampleClientListAddIsIdempotent(t *testing.T) {
	l := nidas.NewSampleClientList()
	c := &recvFunc{fn: func(*nidas.Sample) bool { return true }}

	l.Add(c)
	l.Add(c)
	assert.Equal(t, 1, l.Len())

	l.Remove(c)
	assert.Equal(t, 0, l.Len())
}

func TestDistributeFreesReferenceExactlyOnce(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(0, nidas.TypeChar, nidas.NewId(nidas.TypeChar, 0, 0))

	l := nidas.NewSampleClientList()
	calls := 0
	l.Add(nidas.SampleClientFunc(func(*nidas.Sample) bool {
		calls++
		return true
	}))

	nidas.Distribute(l, s)

	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(0), s.RefCount())
}

func TestDistributeSurvivesPanickingClient(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(0, nidas.TypeChar, nidas.NewId(nidas.TypeChar, 0, 0))

	l := nidas.NewSampleClientList()
	secondCalled := false
	l.Add(nidas.SampleClientFunc(func(*nidas.Sample) bool {
		panic("boom")
	}))
	l.Add(nidas.SampleClientFunc(func(*nidas.Sample) bool {
		secondCalled = true
		return true
	}))

	assert.NotPanics(t, func() { nidas.Distribute(l, s) })
	assert.True(t, secondCalled)
}

func TestSampleClientListSnapshotAllowsSelfRemoval(t *testing.T) {
	l := nidas.NewSampleClientList()

	var self *recvFunc
	self = &recvFunc{fn: func(*nidas.Sample) bool {
		l.Remove(self)
		return true
	}}
	l.Add(self)

	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	s := pool.GetSample(0, nidas.TypeChar, nidas.NewId(nidas.TypeChar, 0, 0))

	assert.NotPanics(t, func() { nidas.Distribute(l, s) })
	assert.Equal(t, 0, l.Len())
}

// vim: foldmethod=marker
