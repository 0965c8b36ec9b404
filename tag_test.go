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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	nidas "go.nidas.dev/core"
)

func TestVariableConverterLinear(t *testing.T) {
	c := &nidas.VariableConverter{
		Kind:         nidas.ConverterLinear,
		Coefficients: []float64{2, 3},
	}
	assert.InDelta(t, 2+3*4, c.Convert(4), 1e-9)
}

func TestVariableConverterPolynomial(t *testing.T) {
	c := &nidas.VariableConverter{
		Kind:         nidas.ConverterPolynomial,
		Coefficients: []float64{1, 0, 2}, // 1 + 2*x^2
	}
	assert.InDelta(t, 1+2*9, c.Convert(3), 1e-9)
}

func TestVariableConverterPiecewiseClamps(t *testing.T) {
	c := &nidas.VariableConverter{
		Kind: nidas.ConverterPiecewise,
		Points: []nidas.PiecewisePoint{
			{X: 0, Y: 0},
			{X: 10, Y: 100},
		},
	}
	assert.InDelta(t, 50, c.Convert(5), 1e-9)
	assert.InDelta(t, 0, c.Convert(-5), 1e-9)
	assert.InDelta(t, 100, c.Convert(50), 1e-9)
}

func TestVariableConverterNilPassesThrough(t *testing.T) {
	var c *nidas.VariableConverter
	assert.Equal(t, 42.0, c.Convert(42))
}

func TestVariableInRange(t *testing.T) {
	v := nidas.Variable{Min: 0, Max: 10}
	assert.True(t, v.InRange(5))
	assert.False(t, v.InRange(-1))
	assert.False(t, v.InRange(11))

	unlimited := nidas.Variable{Min: math.NaN(), Max: math.NaN()}
	assert.True(t, unlimited.InRange(1e9))
}

func TestSampleTagVariableOffsets(t *testing.T) {
	tag := nidas.SampleTag{
		Variables: []nidas.Variable{{Name: "a"}, {Name: "b"}, {Name: "c"}},
	}
	assert.Equal(t, []int{0, 1, 2}, tag.VariableOffsets())
}

// vim: foldmethod=marker
