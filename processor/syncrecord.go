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

package processor

import (
	"math"
	"sync"

	nidas "go.nidas.dev/core"
)

// rateGroup is one rate's worth of a SyncRecordGenerator's per-second
// buffer: the variables at that rate, their packed offsets, and the
// number of sub-second slots a one-second record holds for them (Rate
// samples per second, one float64 slot per Variable per slot).
type rateGroup struct {
	tag     nidas.SampleTag
	offsets []int
	slots   int // samples per second at this tag's rate
	width   int // len(tag.Variables)
}

// SyncRecordGenerator packs incoming Samples into dense, one-second
// "sync records" (§4.8): for each configured SampleTag it maintains a
// per-second float64 buffer and drops each arriving sample's values into
// the slot addressed by (timetag mod one second) at the tag's rate. For
// each elapsed second it emits one sync-record Sample per registered
// SampleTag; all of them carry the same syncId and time tag, so tags are
// not combined into a single record.
//
// SyncRecordGenerator implements nidas.SampleClient (it subscribes to
// whatever source feeds it raw variable samples) and nidas.SampleSource
// (downstream stages subscribe to receive the generated sync records).
type SyncRecordGenerator struct {
	clients *nidas.SampleClientList
	pool    *nidas.SamplePool
	syncId  nidas.Id

	mu      sync.Mutex
	groups  map[nidas.Id]*rateGroup
	buffers map[nidas.Id][]float64
	curSec  int64 // current record's UTC second, or -1 if none started yet
}

// NewSyncRecordGenerator constructs a generator that emits sync records
// tagged with syncId, drawing their Samples from pool.
func NewSyncRecordGenerator(pool *nidas.SamplePool, syncId nidas.Id) *SyncRecordGenerator {
	return &SyncRecordGenerator{
		clients: nidas.NewSampleClientList(),
		pool:    pool,
		syncId:  syncId,
		groups:  make(map[nidas.Id]*rateGroup),
		buffers: make(map[nidas.Id][]float64),
		curSec:  -1,
	}
}

// AddSampleTag registers one input SampleTag: the generator will look for
// samples whose Id matches tag.Id and file their payload values into a
// buffer sized by tag.Rate and len(tag.Variables).
func (g *SyncRecordGenerator) AddSampleTag(tag nidas.SampleTag) {
	g.mu.Lock()
	defer g.mu.Unlock()

	slots := int(tag.Rate)
	if slots < 1 {
		slots = 1
	}
	rg := &rateGroup{
		tag:     tag,
		offsets: tag.VariableOffsets(),
		slots:   slots,
		width:   len(tag.Variables),
	}
	g.groups[tag.Id] = rg
	g.buffers[tag.Id] = make([]float64, slots*rg.width)
	for i := range g.buffers[tag.Id] {
		g.buffers[tag.Id][i] = math.NaN()
	}
}

// AddSampleClient registers c to receive generated sync-record Samples.
func (g *SyncRecordGenerator) AddSampleClient(c nidas.SampleClient) { g.clients.Add(c) }

// RemoveSampleClient unregisters c.
func (g *SyncRecordGenerator) RemoveSampleClient(c nidas.SampleClient) { g.clients.Remove(c) }

// Receive implements nidas.SampleClient: it drops s's float64 values into
// the correct slot of its rate group's buffer, and if s's timetag crosses
// into a new UTC second, emits (and resets) the prior second's record
// first.
func (g *SyncRecordGenerator) Receive(s *nidas.Sample) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	rg, ok := g.groups[s.Id()]
	if !ok {
		return false
	}

	sec := s.TimeTag() / 1_000_000
	if g.curSec == -1 {
		g.curSec = sec
	} else if sec > g.curSec {
		g.emitLocked()
		g.curSec = sec
	} else if sec < g.curSec {
		// Late-arriving sample for an already-emitted second: dropped,
		// matching §1's "does not attempt lossless re-ordering of
		// arbitrarily late data" non-goal.
		return false
	}

	usecIntoSecond := s.TimeTag() % 1_000_000
	slot := int(float64(usecIntoSecond) / 1_000_000 * float64(rg.slots))
	if slot >= rg.slots {
		slot = rg.slots - 1
	}

	buf := g.buffers[s.Id()]
	for i := 0; i < rg.width && i < s.Length(); i++ {
		switch s.Type() {
		case nidas.TypeFloat32:
			buf[slot*rg.width+rg.offsets[i]] = float64(s.Float32At(i))
		case nidas.TypeFloat64:
			buf[slot*rg.width+rg.offsets[i]] = s.Float64At(i)
		}
	}
	return true
}

// emitLocked builds one sync-record Sample per rate group from its
// current buffer contents, distributes them, and resets every buffer to
// all-missing for the next second. Must be called with g.mu held.
func (g *SyncRecordGenerator) emitLocked() {
	for id, buf := range g.buffers {
		rec := g.pool.GetSample(len(buf)*8, nidas.TypeFloat64, g.syncId)
		rec.SetTimeTag(g.curSec * 1_000_000)
		_ = rec.SetLength(len(buf))
		for i, v := range buf {
			rec.SetFloat64At(i, v)
		}
		nidas.Distribute(g.clients, rec)

		for i := range g.buffers[id] {
			g.buffers[id][i] = math.NaN()
		}
	}
}

// Flush emits whatever partial record is currently buffered, regardless
// of whether the second it covers has fully elapsed. Intended for a clean
// shutdown so the last partial second of data isn't silently discarded.
func (g *SyncRecordGenerator) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.curSec != -1 {
		g.emitLocked()
	}
}

// vim: foldmethod=marker
