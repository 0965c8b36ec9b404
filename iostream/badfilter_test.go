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
	"testing"

	"github.com/stretchr/testify/assert"

	"go.nidas.dev/core/iostream"
)

func TestBadSampleFilterDisabledRulesPassAnything(t *testing.T) {
	f := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{})
	assert.Equal(t, iostream.RejectNone, f.Check(999999, 999, 0))
}

func TestBadSampleFilterLengthBounds(t *testing.T) {
	f := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{MinLength: 1, MaxLength: 10})
	assert.Equal(t, iostream.RejectNone, f.Check(5, 0, 0))
	assert.Equal(t, iostream.RejectLength, f.Check(0, 0, 0))
	assert.Equal(t, iostream.RejectLength, f.Check(11, 0, 0))
}

func TestBadSampleFilterDsmIdBounds(t *testing.T) {
	f := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{MinDsmId: 1, MaxDsmId: 100})
	assert.Equal(t, iostream.RejectNone, f.Check(1, 50, 0))
	assert.Equal(t, iostream.RejectDsmId, f.Check(1, 0, 0))
	assert.Equal(t, iostream.RejectDsmId, f.Check(1, 200, 0))
}

func TestBadSampleFilterTimeBounds(t *testing.T) {
	f := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{MinTime: 1000, MaxTime: 2000})
	assert.Equal(t, iostream.RejectNone, f.Check(1, 0, 1500))
	assert.Equal(t, iostream.RejectTime, f.Check(1, 0, 500))
	assert.Equal(t, iostream.RejectTime, f.Check(1, 0, 9999))
}

func TestBadSampleFilterSetLengthBoundsAtRuntime(t *testing.T) {
	f := iostream.NewBadSampleFilter(iostream.BadSampleFilterOptions{MaxLength: 10})
	assert.Equal(t, iostream.RejectLength, f.Check(20, 0, 0))

	f.SetLengthBounds(0, 30)
	assert.Equal(t, iostream.RejectNone, f.Check(20, 0, 0))
}

// vim: foldmethod=marker
