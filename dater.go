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
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go.nidas.dev/core/stats"
)

// UsecsPerDay is the number of microseconds in a UTC day, used to convert
// a driver's time-of-day tag into an absolute timestamp and to detect
// midnight rollover.
const UsecsPerDay = int64(24 * time.Hour / time.Microsecond)

// DaterStatus reports the outcome of SampleDater.SetSampleTime.
type DaterStatus int

const (
	// DaterOK means the sample's time-of-day was within maxClockDiff of the
	// dater's current clock (possibly after a midnight rollover
	// adjustment), and its TimeTag has been set.
	DaterOK DaterStatus = iota

	// DaterOutOfSpec means the sample's time-of-day disagreed with the
	// dater's clock by more than maxClockDiff, even after accounting for a
	// possible midnight crossing. The sample's TimeTag is left unset.
	DaterOutOfSpec

	// DaterNoClock means the dater has never been synchronized (SetTime
	// has never been called), so there is no t0day to measure against.
	DaterNoClock
)

// String returns a human-readable name for the status.
func (s DaterStatus) String() string {
	switch s {
	case DaterOK:
		return "ok"
	case DaterOutOfSpec:
		return "out-of-spec"
	case DaterNoClock:
		return "no-clock"
	default:
		return "unknown"
	}
}

// DaterOptions configures a SampleDater.
type DaterOptions struct {
	// MaxClockDiff bounds how far a sample's derived absolute time may
	// disagree with the dater's most recent synchronization tick before
	// it is rejected as DaterOutOfSpec. Unified to microseconds
	// throughout (see SPEC_FULL.md on the SampleClock/SampleDater unit
	// ambiguity in the original sources).
	MaxClockDiff time.Duration

	// SkewLogInterval is how many out-of-spec excursions are skipped
	// between warning log lines, matching the original's exponential
	// backoff on a noisy clock source.
	SkewLogInterval int

	// Stats, if non-nil, receives skew-excursion and midnight-rollover
	// counts.
	Stats *stats.Dater

	// Logger receives diagnostic events. The zero value discards them.
	Logger zerolog.Logger
}

func (o DaterOptions) withDefaults() DaterOptions {
	if o.MaxClockDiff <= 0 {
		o.MaxClockDiff = 5 * time.Second
	}
	if o.SkewLogInterval <= 0 {
		o.SkewLogInterval = 60
	}
	return o
}

// Dater promotes a driver's time-of-day microsecond tag (0..UsecsPerDay)
// into a fully qualified absolute UTC timestamp, tracking the current UTC
// day boundary (t0day) and the most recent clock synchronization tick
// (clockTime), and detecting midnight rollover and out-of-spec clock
// disagreement.
//
// A Dater is safe for concurrent use: SetTime is called from whatever
// goroutine owns the synchronizing clock source (an IRIG card, the OS
// clock), while SetSampleTime is called from the hot path of every sensor
// goroutine feeding samples through it.
type Dater struct {
	mu sync.Mutex

	t0day     int64 // absolute UTC microseconds at the start of the current day
	clockTime int64 // absolute UTC microseconds of the last synchronization tick

	maxClockDiff    int64
	skewLogInterval int
	skewExcursions  int

	stats *stats.Dater
	log   zerolog.Logger
}

// NewDater constructs a Dater with no clock synchronization yet performed;
// SetSampleTime returns DaterNoClock until the first SetTime call.
func NewDater(opts DaterOptions) *Dater {
	opts = opts.withDefaults()
	return &Dater{
		maxClockDiff:    int64(opts.MaxClockDiff / time.Microsecond),
		skewLogInterval: opts.SkewLogInterval,
		stats:           opts.Stats,
		log:             opts.Logger,
	}
}

// SetTime records a new absolute UTC synchronization tick, updating t0day
// (the floor of abs to the start of its UTC day) and clockTime (abs
// itself). Called once per tick from whatever source the pipeline trusts
// for absolute time (an IRIG card, the OS clock at startup).
func (d *Dater) SetTime(abs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	prevT0day := d.t0day
	d.t0day = floorDiv(abs, UsecsPerDay) * UsecsPerDay
	d.clockTime = abs

	if prevT0day != 0 && d.t0day != prevT0day {
		d.log.Info().
			Int64("t0day_us", d.t0day).
			Msg("dater: UTC day boundary advanced")
	}
}

// SetSampleTime computes the sample's absolute timetag from its
// time-of-day tag (tod, microseconds since the start of the UTC day the
// sensor believes it's in) and the dater's current t0day/clockTime,
// detecting a midnight rollover in either direction. On DaterOK it sets
// s.TimeTag; on DaterOutOfSpec or DaterNoClock the sample's TimeTag is
// left unchanged and the caller should drop or flag the sample.
//
// SetSampleTime is idempotent: calling it twice with the same tod against
// an unchanged dater state produces the same TimeTag both times, since it
// only reads d.t0day/d.clockTime; the only dater state it changes is the
// out-of-spec excursion counter used to throttle skew warnings.
func (d *Dater) SetSampleTime(tod int64, s *Sample) DaterStatus {
	d.mu.Lock()
	t0day := d.t0day
	clockTime := d.clockTime
	maxDiff := d.maxClockDiff
	d.mu.Unlock()

	if t0day == 0 && clockTime == 0 {
		return DaterNoClock
	}

	abs := t0day + tod
	delta := abs - clockTime

	switch {
	case abs2(delta) <= maxDiff:
		s.SetTimeTag(abs)
		return DaterOK

	case abs2(delta+UsecsPerDay) <= maxDiff:
		// The sample's tod wrapped forward across midnight before
		// clockTime did: add a day.
		abs += UsecsPerDay
		s.SetTimeTag(abs)
		d.bumpRollover()
		return DaterOK

	case abs2(delta-UsecsPerDay) <= maxDiff:
		// clockTime has already wrapped past midnight but this sample's
		// tod is still relative to the previous day: subtract a day.
		abs -= UsecsPerDay
		s.SetTimeTag(abs)
		d.bumpRollover()
		return DaterOK

	case t0day == 0:
		return DaterNoClock

	default:
		d.bumpSkew(abs, clockTime)
		return DaterOutOfSpec
	}
}

func (d *Dater) bumpRollover() {
	if d.stats != nil {
		d.stats.MidnightRollovers.Inc()
	}
}

func (d *Dater) bumpSkew(abs, clockTime int64) {
	if d.stats != nil {
		d.stats.SkewExcursions.Inc()
	}

	d.mu.Lock()
	d.skewExcursions++
	n := d.skewExcursions
	d.mu.Unlock()

	if n%d.skewLogInterval == 1 {
		d.log.Warn().
			Int64("derived_us", abs).
			Int64("clock_us", clockTime).
			Int("excursion_count", n).
			Msg("dater: sample time out of spec with reference clock")
	}
}

// floorDiv performs integer floor division, matching C++'s truncating
// division only for non-negative operands (abs and UsecsPerDay always
// are here, since both are UTC microseconds-since-epoch quantities).
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func abs2(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// vim: foldmethod=marker
