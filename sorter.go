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
	"sort"
	"sync"
	"time"

	"code.hybscloud.com/lfq"
	"github.com/rs/zerolog"

	"go.nidas.dev/core/stats"
)

// threadSignalFactor is the number of successful enqueues between wake
// signals sent to the sorter's worker goroutine. Matching the original's
// cadence avoids waking the worker (and taking its lock) on every single
// sample, since sorting only needs to happen once per horizon-sized
// window, not once per arrival.
const threadSignalFactor = 10

// BackpressurePolicy selects what SampleSorter.Receive does when its
// backlog (bounded by SorterOptions.MaxBacklog) is full.
type BackpressurePolicy int

const (
	// DropNewest discards the incoming sample immediately, bumping the
	// sorter's dropped-sample counter. This is the sorter's default: a
	// producer on the hot path must never stall behind a slow downstream
	// consumer.
	DropNewest BackpressurePolicy = iota

	// Block retries enqueuing with a short backoff, up to a bounded
	// number of attempts, before giving up and falling back to
	// DropNewest behavior. Use this only when an occasional stall on the
	// producer side is acceptable in exchange for never silently
	// dropping data.
	Block
)

// SorterOptions configures a SampleSorter.
type SorterOptions struct {
	// Horizon is the maximum time a sample is held before being released
	// downstream, regardless of whether later, still-unsorted samples
	// might arrive. Samples are released once (now - Horizon) passes
	// their time tag.
	Horizon time.Duration

	// MaxBacklog bounds the number of samples the sorter may hold
	// in-flight (enqueued but not yet released). Once reached, Policy
	// determines Receive's behavior.
	MaxBacklog int

	// Policy selects the backpressure behavior once MaxBacklog is
	// reached.
	Policy BackpressurePolicy

	// Stats, if non-nil, receives backlog and dropped-sample counts.
	Stats *stats.Sorter

	// Logger receives diagnostic events. The zero value discards them.
	Logger zerolog.Logger
}

func (o SorterOptions) withDefaults() SorterOptions {
	if o.Horizon <= 0 {
		o.Horizon = 2 * time.Second
	}
	if o.MaxBacklog <= 0 {
		o.MaxBacklog = 4096
	}
	return o
}

// Sorter is a bounded-latency time-ordering stage: it accepts Samples in
// arbitrary arrival order via Receive and, once Options.Horizon has
// elapsed since a sample's time tag, releases it to its own SampleClients
// in non-decreasing time-tag order. Sorter itself implements SampleClient
// (so it can sit downstream of a SampleSource) and SampleSource (so other
// stages can subscribe to its output).
//
// Internally, Receive enqueues onto a lock-free MPSC queue bounded at
// Options.MaxBacklog; the worker goroutine drains that queue into a sorted
// slice under a mutex, which is where the horizon-based release logic
// runs. Receive holds that mutex only long enough to advance the
// wake-signal counter; the sorted backlog itself is touched only by the
// worker goroutine and by Flush.
type Sorter struct {
	clients *SampleClientList

	queue *lfq.MPSC[*Sample]

	mu           sync.Mutex
	cond         *sync.Cond
	set          []*Sample
	sampleCtr    uint32
	interrupt    bool
	done         chan struct{}
	lastReleased int64 // time tag of the most recently distributed sample
	haveReleased bool

	horizon time.Duration
	policy  BackpressurePolicy
	stats   *stats.Sorter
	log     zerolog.Logger

	now func() time.Time
}

// NewSorter constructs a Sorter and starts its worker goroutine.
func NewSorter(opts SorterOptions) *Sorter {
	opts = opts.withDefaults()

	s := &Sorter{
		clients: NewSampleClientList(),
		queue:   lfq.NewMPSC[*Sample](opts.MaxBacklog),
		done:    make(chan struct{}),
		horizon: opts.Horizon,
		policy:  opts.Policy,
		stats:   opts.Stats,
		log:     opts.Logger,
		now:     time.Now,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	// Also wake the worker periodically, so samples are released once
	// their horizon passes even if fewer than threadSignalFactor arrive.
	go func() {
		tick := time.NewTicker(s.horizon/4 + time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-tick.C:
				s.cond.Signal()
			}
		}
	}()
	return s
}

// AddSampleClient registers c to receive samples this Sorter releases.
func (s *Sorter) AddSampleClient(c SampleClient) { s.clients.Add(c) }

// RemoveSampleClient unregisters c.
func (s *Sorter) RemoveSampleClient(c SampleClient) { s.clients.Remove(c) }

// Receive is the producer-side entry point: it holds a reference to the
// sample, enqueues it for sorting, and signals the worker every
// threadSignalFactor'th successful enqueue. It returns true unless the
// backlog is full (under Block: still full after its bounded retries), in
// which case it frees its reference and returns false.
func (s *Sorter) Receive(sample *Sample) bool {
	sample.HoldReference()

	if !s.enqueue(sample) {
		if s.stats != nil {
			s.stats.Dropped.Inc()
		}
		sample.FreeReference()
		return false
	}

	s.mu.Lock()
	s.sampleCtr = (s.sampleCtr + 1) % threadSignalFactor
	signal := s.sampleCtr == 0
	s.mu.Unlock()

	if signal {
		s.cond.Signal()
	}
	return true
}

// enqueue applies the configured BackpressurePolicy when the bounded queue
// is full, returning false if the sample was ultimately dropped.
func (s *Sorter) enqueue(sample *Sample) bool {
	if err := s.queue.Enqueue(&sample); err == nil {
		return true
	}

	if s.policy == Block {
		const maxAttempts = 64
		for i := 0; i < maxAttempts; i++ {
			time.Sleep(time.Microsecond)
			if err := s.queue.Enqueue(&sample); err == nil {
				return true
			}
		}
		s.log.Warn().Msg("sorter backlog full, giving up after blocking retries")
	}
	return false
}

// run is the worker goroutine body: it wakes on every threadSignalFactor'th
// Receive and on the periodic tick started by NewSorter, drains the
// handoff queue into the sorted backlog, and releases
// everything at or before the current horizon.
func (s *Sorter) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if s.interrupt {
			s.mu.Unlock()
			s.drainRemaining()
			return
		}
		s.cond.Wait()
		if s.interrupt {
			s.mu.Unlock()
			s.drainRemaining()
			return
		}
		s.mu.Unlock()

		aged := s.collectAged()
		for _, sample := range aged {
			Distribute(s.clients, sample)
		}
	}
}

// collectAged drains the handoff queue into the sorted backlog, then
// removes and returns every sample at or before (now - horizon), in
// increasing time-tag order.
func (s *Sorter) collectAged() []*Sample {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainQueueLocked()

	horizon := s.now().Add(-s.horizon).UnixMicro()
	idx := sort.Search(len(s.set), func(i int) bool {
		return s.set[i].timeTag >= horizon
	})

	aged := make([]*Sample, idx)
	copy(aged, s.set[:idx])
	s.set = s.set[idx:]

	if len(aged) > 0 {
		s.lastReleased = aged[len(aged)-1].timeTag
		s.haveReleased = true
	}

	if s.stats != nil {
		s.stats.Backlog.Set(float64(len(s.set)))
	}
	return aged
}

// drainQueueLocked moves every sample currently sitting in the handoff
// queue into the sorted backlog, dropping any whose time tag is earlier
// than the most recently released sample: per §4.3 such a sample arrived
// too late to be placed in order without violating the monotonic-release
// invariant on samples already handed to clients, so it is dropped with a
// counter bump rather than forced into the backlog out of order. Must be
// called with mu held.
func (s *Sorter) drainQueueLocked() {
	for {
		sample, err := s.queue.Dequeue()
		if err != nil {
			return
		}
		if s.haveReleased && sample.timeTag < s.lastReleased {
			if s.stats != nil {
				s.stats.LateArrivals.Inc()
			}
			sample.FreeReference()
			continue
		}
		s.insertSortedLocked(sample)
	}
}

// insertSortedLocked inserts sample into s.set keeping it ordered by
// (timeTag, id), stable with respect to arrival order among equal keys.
// Must be called with mu held.
func (s *Sorter) insertSortedLocked(sample *Sample) {
	idx := sort.Search(len(s.set), func(i int) bool {
		return sampleLess(sample, s.set[i])
	})
	s.set = append(s.set, nil)
	copy(s.set[idx+1:], s.set[idx:])
	s.set[idx] = sample
}

func sampleLess(a, b *Sample) bool {
	if a.timeTag != b.timeTag {
		return a.timeTag < b.timeTag
	}
	return a.id < b.id
}

// Flush releases every sample currently held by the sorter, regardless of
// horizon, in sorted order. Intended for a clean, ordered shutdown.
func (s *Sorter) Flush() {
	s.mu.Lock()
	s.drainQueueLocked()
	aged := s.set
	s.set = nil
	if len(aged) > 0 {
		s.lastReleased = aged[len(aged)-1].timeTag
		s.haveReleased = true
	}
	s.mu.Unlock()

	for _, sample := range aged {
		Distribute(s.clients, sample)
	}
}

// Interrupt signals the worker goroutine to exit. Any samples still held
// (queued or in the sorted backlog) have their references freed without
// being distributed. Interrupt does not block; call Wait to block until
// the worker has actually exited.
func (s *Sorter) Interrupt() {
	s.mu.Lock()
	s.interrupt = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Wait blocks until the worker goroutine started by NewSorter has exited,
// which only happens after Interrupt.
func (s *Sorter) Wait() {
	<-s.done
}

// drainRemaining frees the reference on every sample left in the queue or
// backlog at interrupt time, without distributing them.
func (s *Sorter) drainRemaining() {
	s.mu.Lock()
	s.drainQueueLocked()
	remaining := s.set
	s.set = nil
	s.mu.Unlock()

	for _, sample := range remaining {
		sample.FreeReference()
	}
}

// vim: foldmethod=marker
