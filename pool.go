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

import (
	"code.hybscloud.com/iobuf"

	"go.nidas.dev/core/stats"
)

// sizeClass identifies which of the pool's three arenas a Sample's payload
// was drawn from, or whether it bypassed the pool entirely.
type sizeClass int

const (
	sizeClassSmall sizeClass = iota
	sizeClassMedium
	sizeClassLarge
	sizeClassOverflow
)

// Byte capacities of the pool's three size classes. These are the payload
// capacities a Sample drawn from that class is guaranteed to have, matching
// the three-class discipline of the original SamplePool (small/medium/big):
// getSample picks the smallest class that covers the request, and putSample
// returns an arena-drawn sample to the class it was drawn from. A sample
// allocated outside the arenas is not added to any class on return.
const (
	smallCapacity  = iobuf.BufferSizeMicro  // 512 B
	mediumCapacity = iobuf.BufferSizeSmall  // 2 KiB
	largeCapacity  = iobuf.BufferSizeMedium // 8 KiB
)

// SamplePoolOptions configures the per-class capacity of a SamplePool, in
// number of samples (not bytes). Each class is independently bounded and
// independently backed by a lock-free MPMC arena.
type SamplePoolOptions struct {
	// SmallCount, MediumCount, and LargeCount are the number of samples
	// held in each size class's bounded arena. A zero value selects a
	// small default suitable for tests and single-sensor pipelines.
	SmallCount  int
	MediumCount int
	LargeCount  int

	// Stats, if non-nil, receives pool exhaustion and overflow-allocation
	// counts. A nil Stats is valid and simply disables the counters.
	Stats *stats.Pool
}

func (o SamplePoolOptions) withDefaults() SamplePoolOptions {
	if o.SmallCount <= 0 {
		o.SmallCount = 64
	}
	if o.MediumCount <= 0 {
		o.MediumCount = 64
	}
	if o.LargeCount <= 0 {
		o.LargeCount = 16
	}
	return o
}

// SamplePool is a fixed set of bounded, lock-free arenas that Samples are
// drawn from and returned to, avoiding an allocation on every sample in the
// common case. It never blocks a caller: when a class's arena is exhausted,
// GetSample falls back to a fresh heap allocation rather than waiting for a
// sample to be returned, since the producer side of a data-acquisition
// pipeline must never stall behind a slow consumer.
//
// A SamplePool is safe for concurrent use by any number of goroutines.
type SamplePool struct {
	small  *iobuf.MicroBufferBoundedPool
	medium *iobuf.SmallBufferBoundedPool
	large  *iobuf.MediumBufferBoundedPool

	stats *stats.Pool
}

// NewSamplePool constructs a SamplePool with the given per-class arena
// sizes.
func NewSamplePool(opts SamplePoolOptions) *SamplePool {
	opts = opts.withDefaults()

	small := iobuf.NewMicroBufferPool(opts.SmallCount)
	small.Fill(iobuf.NewMicroBuffer)
	small.SetNonblock(true)

	medium := iobuf.NewSmallBufferPool(opts.MediumCount)
	medium.Fill(iobuf.NewSmallBuffer)
	medium.SetNonblock(true)

	large := iobuf.NewMediumBufferPool(opts.LargeCount)
	large.Fill(iobuf.NewMediumBuffer)
	large.SetNonblock(true)

	return &SamplePool{
		small:  small,
		medium: medium,
		large:  large,
		stats:  opts.Stats,
	}
}

// classFor returns the smallest size class whose capacity covers n bytes,
// or sizeClassOverflow if n exceeds even the large class.
func classFor(n int) sizeClass {
	switch {
	case n <= smallCapacity:
		return sizeClassSmall
	case n <= mediumCapacity:
		return sizeClassMedium
	case n <= largeCapacity:
		return sizeClassLarge
	default:
		return sizeClassOverflow
	}
}

// GetSample returns a Sample with at least capacityBytes of payload
// capacity, tagged with the given Type and Id and an unset Length. The
// returned Sample has a reference count of one; the caller owns it until
// it calls FreeReference or hands it to a distribute() call that does so
// on its behalf.
//
// GetSample never blocks: if the size class's arena is exhausted it
// allocates a fresh buffer and marks the sample as not poolable, so a burst
// of traffic degrades to ordinary GC pressure instead of stalling a
// producer.
func (p *SamplePool) GetSample(capacityBytes int, typ Type, id Id) *Sample {
	class := classFor(capacityBytes)

	s := &Sample{
		typ:       typ,
		id:        id,
		pool:      p,
		sizeClass: class,
		indirect:  -1,
	}
	s.refs.Store(1)

	switch class {
	case sizeClassSmall:
		if idx, err := p.small.Get(); err == nil {
			buf := p.small.Value(idx)
			s.payload = buf[:]
			s.indirect = idx
			return s
		}
	case sizeClassMedium:
		if idx, err := p.medium.Get(); err == nil {
			buf := p.medium.Value(idx)
			s.payload = buf[:]
			s.indirect = idx
			return s
		}
	case sizeClassLarge:
		if idx, err := p.large.Get(); err == nil {
			buf := p.large.Value(idx)
			s.payload = buf[:]
			s.indirect = idx
			return s
		}
	}

	// Pool exhausted for this class, or the request is larger than any
	// class covers: fall back to a direct allocation. putSample does not
	// add this sample to any arena when it comes back; its buffer is left
	// to the GC.
	if p.stats != nil {
		p.stats.Overflows.Inc()
	}
	s.sizeClass = sizeClassOverflow
	s.payload = make([]byte, capacityBytes)
	return s
}

// putSample returns a Sample's storage to the pool it was allocated from.
// Called by Sample.FreeReference once the reference count reaches zero;
// never called directly by pipeline code.
func (p *SamplePool) putSample(s *Sample) {
	s.length = 0

	if s.indirect < 0 {
		// Overflow-allocated: nothing to return, let the GC reclaim it.
		return
	}

	switch s.sizeClass {
	case sizeClassSmall:
		var buf iobuf.MicroBuffer
		copy(buf[:], s.payload)
		p.small.SetValue(s.indirect, buf)
		if err := p.small.Put(s.indirect); err != nil && p.stats != nil {
			p.stats.PutFailures.Inc()
		}
	case sizeClassMedium:
		var buf iobuf.SmallBuffer
		copy(buf[:], s.payload)
		p.medium.SetValue(s.indirect, buf)
		if err := p.medium.Put(s.indirect); err != nil && p.stats != nil {
			p.stats.PutFailures.Inc()
		}
	case sizeClassLarge:
		var buf iobuf.MediumBuffer
		copy(buf[:], s.payload)
		p.large.SetValue(s.indirect, buf)
		if err := p.large.Put(s.indirect); err != nil && p.stats != nil {
			p.stats.PutFailures.Inc()
		}
	}
}

// vim: foldmethod=marker
