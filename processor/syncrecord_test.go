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

package processor_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nidas "go.nidas.dev/core"
	"go.nidas.dev/core/processor"
)

func TestSyncRecordGeneratorEmitsOnePerSecond(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	inputId := nidas.NewId(nidas.TypeFloat32, 1, 1)
	syncId := nidas.NewId(nidas.TypeFloat64, 1, 0xffff)

	gen := processor.NewSyncRecordGenerator(pool, syncId)
	gen.AddSampleTag(nidas.SampleTag{
		Id:   inputId,
		Rate: 1,
		Variables: []nidas.Variable{
			{Name: "TEMP", Units: "degC"},
		},
	})

	var records []*nidas.Sample
	gen.AddSampleClient(nidas.SampleClientFunc(func(s *nidas.Sample) bool {
		s.HoldReference()
		records = append(records, s)
		return true
	}))

	s1 := pool.GetSample(4, nidas.TypeFloat32, inputId)
	require.NoError(t, s1.SetLength(1))
	s1.SetFloat32At(0, 12.5)
	s1.SetTimeTag(1_000_000) // second 1
	assert.True(t, gen.Receive(s1))
	s1.FreeReference()

	// A sample landing in second 2 forces second 1's record to emit.
	s2 := pool.GetSample(4, nidas.TypeFloat32, inputId)
	require.NoError(t, s2.SetLength(1))
	s2.SetFloat32At(0, 13.0)
	s2.SetTimeTag(2_000_000)
	assert.True(t, gen.Receive(s2))
	s2.FreeReference()

	require.Len(t, records, 1)
	assert.Equal(t, int64(1_000_000), records[0].TimeTag())
	assert.Equal(t, syncId, records[0].Id())
	assert.InDelta(t, 12.5, records[0].Float64At(0), 1e-6)

	gen.Flush()
	require.Len(t, records, 2)
	assert.Equal(t, int64(2_000_000), records[1].TimeTag())
	assert.InDelta(t, 13.0, records[1].Float64At(0), 1e-6)
}

func TestSyncRecordGeneratorUnknownIdRejected(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	gen := processor.NewSyncRecordGenerator(pool, nidas.NewId(nidas.TypeFloat64, 1, 0xffff))

	s := pool.GetSample(4, nidas.TypeFloat32, nidas.NewId(nidas.TypeFloat32, 1, 9))
	require.NoError(t, s.SetLength(1))
	assert.False(t, gen.Receive(s))
	s.FreeReference()
}

func TestSyncRecordGeneratorMissingSlotIsNaN(t *testing.T) {
	pool := nidas.NewSamplePool(nidas.SamplePoolOptions{})
	inputId := nidas.NewId(nidas.TypeFloat32, 1, 1)
	syncId := nidas.NewId(nidas.TypeFloat64, 1, 0xffff)

	gen := processor.NewSyncRecordGenerator(pool, syncId)
	gen.AddSampleTag(nidas.SampleTag{
		Id:        inputId,
		Rate:      2,
		Variables: []nidas.Variable{{Name: "TEMP"}},
	})

	var record *nidas.Sample
	gen.AddSampleClient(nidas.SampleClientFunc(func(s *nidas.Sample) bool {
		s.HoldReference()
		record = s
		return true
	}))

	s := pool.GetSample(4, nidas.TypeFloat32, inputId)
	require.NoError(t, s.SetLength(1))
	s.SetFloat32At(0, 1.0)
	s.SetTimeTag(0) // slot 0 of second 0
	gen.Receive(s)
	s.FreeReference()

	gen.Flush()
	require.NotNil(t, record)
	assert.InDelta(t, 1.0, record.Float64At(0), 1e-6)
	assert.True(t, math.IsNaN(record.Float64At(1)))
}

// vim: foldmethod=marker
