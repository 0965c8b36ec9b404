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

// Package stats exposes the visible counters the pipeline's components are
// required to maintain: pool exhaustion, sorter backpressure drops,
// BadSampleFilter rejects, and SampleDater clock-skew excursions. Each
// struct here is a small bundle of prometheus.Counter/prometheus.Gauge
// values, registered by the caller against whatever prometheus.Registerer
// the owning process uses.
package stats

import "github.com/prometheus/client_golang/prometheus"

// Pool holds the counters for a single SamplePool.
type Pool struct {
	// Overflows counts GetSample calls that missed their size class's
	// arena and fell back to a direct heap allocation.
	Overflows prometheus.Counter

	// PutFailures counts putSample calls that could not return a buffer
	// to its arena (the arena was unexpectedly full), which discards the
	// buffer back to the GC rather than leaking the Sample.
	PutFailures prometheus.Counter
}

// NewPool constructs a Pool's counters under the given name prefix. Pass
// the result to a prometheus.Registerer to export it.
func NewPool(namespace, subsystem string) *Pool {
	return &Pool{
		Overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_overflow_allocations_total",
			Help:      "Samples allocated directly from the heap because a SamplePool size class was exhausted.",
		}),
		PutFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_put_failures_total",
			Help:      "Samples whose buffer could not be returned to its SamplePool arena.",
		}),
	}
}

// Collectors returns the counters as a slice of prometheus.Collector, for
// bulk registration.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.Overflows, p.PutFailures}
}

// Sorter holds the counters for a single SampleSorter.
type Sorter struct {
	// Dropped counts samples discarded under backpressure because the
	// sorter's backlog exceeded its configured bound.
	Dropped prometheus.Counter

	// Backlog is the current number of samples held in the sorter,
	// sampled on demand.
	Backlog prometheus.Gauge

	// LateArrivals counts samples received with a time tag earlier than
	// the most recently released sample: they arrived after their own
	// horizon had already elapsed and release order had moved past them.
	// Per §4.3 this module's policy is to drop them rather than force a
	// reorder, so the monotonic-order invariant on released samples always
	// holds.
	LateArrivals prometheus.Counter
}

// NewSorter constructs a Sorter's counters under the given name prefix.
func NewSorter(namespace, subsystem string) *Sorter {
	return &Sorter{
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sorter_dropped_samples_total",
			Help:      "Samples discarded by a SampleSorter under backpressure.",
		}),
		Backlog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sorter_backlog_samples",
			Help:      "Samples currently held by a SampleSorter awaiting their reordering horizon.",
		}),
		LateArrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sorter_late_arrivals_total",
			Help:      "Samples dropped because they arrived with a time tag earlier than the most recently released sample.",
		}),
	}
}

// Collectors returns the counters as a slice of prometheus.Collector, for
// bulk registration.
func (s *Sorter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.Dropped, s.Backlog, s.LateArrivals}
}

// Dater holds the counters for a single SampleDater.
type Dater struct {
	// SkewExcursions counts SetSampleTime calls whose derived sample time
	// disagreed with the reference clock by more than the configured
	// bound (the DaterOutOfSpec result).
	SkewExcursions prometheus.Counter

	// MidnightRollovers counts setSampleTime calls that detected a
	// time-of-day wraparound across midnight, in either direction.
	MidnightRollovers prometheus.Counter
}

// NewDater constructs a Dater's counters under the given name prefix.
func NewDater(namespace, subsystem string) *Dater {
	return &Dater{
		SkewExcursions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dater_clock_skew_excursions_total",
			Help:      "setSampleTime calls where the derived sample time disagreed with the reference clock by more than the configured bound.",
		}),
		MidnightRollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dater_midnight_rollovers_total",
			Help:      "setSampleTime calls that detected a time-of-day wraparound across midnight.",
		}),
	}
}

// Collectors returns the counters as a slice of prometheus.Collector, for
// bulk registration.
func (d *Dater) Collectors() []prometheus.Collector {
	return []prometheus.Collector{d.SkewExcursions, d.MidnightRollovers}
}

// Filter holds the counters for a single BadSampleFilter.
type Filter struct {
	// Rejected counts samples the filter refused to pass, labeled by the
	// rule that rejected them.
	Rejected *prometheus.CounterVec
}

// NewFilter constructs a Filter's counters under the given name prefix.
func NewFilter(namespace, subsystem string) *Filter {
	return &Filter{
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "filter_rejected_samples_total",
			Help:      "Samples rejected by a BadSampleFilter, labeled by the violated rule.",
		}, []string{"rule"}),
	}
}

// Collectors returns the counters as a slice of prometheus.Collector, for
// bulk registration.
func (f *Filter) Collectors() []prometheus.Collector {
	return []prometheus.Collector{f.Rejected}
}

// vim: foldmethod=marker
