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

package nidas

// ConverterKind selects the shape of a VariableConverter.
type ConverterKind int

const (
	// ConverterNone performs no conversion; the raw sample value is the
	// engineering value.
	ConverterNone ConverterKind = iota
	// ConverterLinear applies Coefficients[0] + Coefficients[1]*raw.
	ConverterLinear
	// ConverterPolynomial applies sum(Coefficients[i] * raw^i).
	ConverterPolynomial
	// ConverterPiecewise applies a piecewise-linear interpolation over
	// Points, sorted by X.
	ConverterPiecewise
)

// PiecewisePoint is one (raw, engineering) pair of a piecewise-linear
// VariableConverter.
type PiecewisePoint struct {
	X float64 // raw sample value
	Y float64 // converted engineering value
}

// VariableConverter maps a raw sample value to an engineering unit value.
// This is metadata only, consumed by processors that care about
// engineering units (not this core pipeline, which moves typed payloads
// without interpreting them); it is carried here because it is fixed at
// configuration time alongside the rest of a Variable's description.
type VariableConverter struct {
	Kind         ConverterKind
	Coefficients []float64        // for Linear, Polynomial
	Points       []PiecewisePoint // for Piecewise, sorted by X ascending
}

// Convert applies the converter to a raw value. Piecewise interpolation
// clamps to the first/last point outside the configured range rather than
// extrapolating, since sensor plausibility limits are usually defined only
// within the calibrated range.
func (c *VariableConverter) Convert(raw float64) float64 {
	if c == nil {
		return raw
	}
	switch c.Kind {
	case ConverterLinear, ConverterPolynomial:
		var out, pow float64
		pow = 1
		for _, coeff := range c.Coefficients {
			out += coeff * pow
			pow *= raw
		}
		return out
	case ConverterPiecewise:
		return interpolatePiecewise(c.Points, raw)
	default:
		return raw
	}
}

func interpolatePiecewise(points []PiecewisePoint, x float64) float64 {
	if len(points) == 0 {
		return x
	}
	if x <= points[0].X {
		return points[0].Y
	}
	last := points[len(points)-1]
	if x >= last.X {
		return last.Y
	}
	for i := 1; i < len(points); i++ {
		if x <= points[i].X {
			p0, p1 := points[i-1], points[i]
			frac := (x - p0.X) / (p1.X - p0.X)
			return p0.Y + frac*(p1.Y-p0.Y)
		}
	}
	return last.Y
}

// Variable describes one named, unit-tagged value carried within a sample
// stream — one element of a SampleTag's Variables list.
type Variable struct {
	Name  string
	Units string
	Min   float64 // plausibility floor; NaN disables the check
	Max   float64 // plausibility ceiling; NaN disables the check
	Rate  float64 // Hz, for variables whose rate can differ from their SampleTag's

	Converter *VariableConverter
}

// InRange reports whether v is within [Min, Max], treating a NaN bound as
// "no limit configured" rather than "always false".
func (va Variable) InRange(v float64) bool {
	if !isNaN(va.Min) && v < va.Min {
		return false
	}
	if !isNaN(va.Max) && v > va.Max {
		return false
	}
	return true
}

func isNaN(f float64) bool {
	return f != f
}

// SampleTag is metadata describing one output sample stream: its Id, rate,
// and the Variables it carries. A SampleTag is not itself a runtime
// Sample; it is fixed at configuration time and consulted by processors
// (the sync-record builder, in particular) to size records and map a
// sample's Id to an offset within them.
type SampleTag struct {
	Id        Id
	Rate      float64 // Hz
	Variables []Variable
}

// VariableOffsets returns, for each Variable in order, the cumulative
// element offset it would occupy in a dense per-record float buffer built
// from this tag (used by the sync-record builder to size and address its
// per-second buffers).
func (t SampleTag) VariableOffsets() []int {
	offsets := make([]int, len(t.Variables))
	off := 0
	for i := range t.Variables {
		offsets[i] = off
		off++
	}
	return offsets
}

// vim: foldmethod=marker
