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

package iostream

import (
	"sync/atomic"

	"go.nidas.dev/core/stats"
)

// BadSampleFilter is the declarative rule set §4.7 requires a
// SampleInputStream to apply to every deserialized sample header before
// trusting its declared length. Rules are safe to mutate at runtime (the
// fields are stored behind atomics). Each bound is loaded separately, so a
// Check racing with a Set*Bounds call may see one old and one new bound.
type BadSampleFilter struct {
	minDsmId atomic.Int64
	maxDsmId atomic.Int64

	minLength atomic.Int64
	maxLength atomic.Int64

	minTime atomic.Int64
	maxTime atomic.Int64

	dsmEnabled    atomic.Bool
	lengthEnabled atomic.Bool
	timeEnabled   atomic.Bool

	skipNidasHeader atomic.Bool

	stats *stats.Filter
}

// BadSampleFilterOptions configures the initial rule values. A DSM-id or
// time rule whose Min and Max are both zero is disabled; the length rule
// is disabled whenever MaxLength is zero — see NewBadSampleFilter.
type BadSampleFilterOptions struct {
	MinDsmId, MaxDsmId     int
	MinLength, MaxLength   int
	MinTime, MaxTime       int64 // microseconds since epoch
	SkipNidasHeader        bool
	Stats                  *stats.Filter
}

// NewBadSampleFilter constructs a BadSampleFilter. DSM-id and time
// bounds are enforced if either Min or Max is non-zero, and then both
// bounds apply (a zero Max rejects every positive value); the length
// bound is enforced whenever MaxLength is non-zero (MinLength defaults to
// 0, meaning "any non-negative length passes the floor check").
func NewBadSampleFilter(opts BadSampleFilterOptions) *BadSampleFilter {
	f := &BadSampleFilter{stats: opts.Stats}

	f.minDsmId.Store(int64(opts.MinDsmId))
	f.maxDsmId.Store(int64(opts.MaxDsmId))
	f.dsmEnabled.Store(opts.MinDsmId != 0 || opts.MaxDsmId != 0)

	f.minLength.Store(int64(opts.MinLength))
	f.maxLength.Store(int64(opts.MaxLength))
	f.lengthEnabled.Store(opts.MaxLength != 0)

	f.minTime.Store(opts.MinTime)
	f.maxTime.Store(opts.MaxTime)
	f.timeEnabled.Store(opts.MinTime != 0 || opts.MaxTime != 0)

	f.skipNidasHeader.Store(opts.SkipNidasHeader)

	return f
}

// RejectReason names the rule that caused Check to reject a header, used
// both for the resync log line and the stats.Filter.Rejected counter
// label.
type RejectReason string

const (
	RejectNone      RejectReason = ""
	RejectType      RejectReason = "type"
	RejectLength    RejectReason = "length"
	RejectTime      RejectReason = "time"
	RejectDsmId     RejectReason = "dsmid"
)

// Check validates a decoded sample header (length in elements, dsmId, and
// time tag in microseconds) against the filter's current rules, returning
// RejectNone if it passes or the name of the first rule it failed.
func (f *BadSampleFilter) Check(length, dsmId int, timeTag int64) RejectReason {
	if f.lengthEnabled.Load() {
		if length < int(f.minLength.Load()) || length > int(f.maxLength.Load()) {
			f.bump(RejectLength)
			return RejectLength
		}
	}
	if f.dsmEnabled.Load() {
		if dsmId < int(f.minDsmId.Load()) || dsmId > int(f.maxDsmId.Load()) {
			f.bump(RejectDsmId)
			return RejectDsmId
		}
	}
	if f.timeEnabled.Load() {
		if timeTag < f.minTime.Load() || timeTag > f.maxTime.Load() {
			f.bump(RejectTime)
			return RejectTime
		}
	}
	return RejectNone
}

func (f *BadSampleFilter) bump(reason RejectReason) {
	if f.stats != nil {
		f.stats.Rejected.WithLabelValues(string(reason)).Inc()
	}
}

// SetLengthBounds updates the length rule at runtime.
func (f *BadSampleFilter) SetLengthBounds(min, max int) {
	f.minLength.Store(int64(min))
	f.maxLength.Store(int64(max))
	f.lengthEnabled.Store(max != 0)
}

// SetDsmIdBounds updates the DSM-id rule at runtime.
func (f *BadSampleFilter) SetDsmIdBounds(min, max int) {
	f.minDsmId.Store(int64(min))
	f.maxDsmId.Store(int64(max))
	f.dsmEnabled.Store(min != 0 || max != 0)
}

// SetTimeBounds updates the time rule at runtime.
func (f *BadSampleFilter) SetTimeBounds(min, max int64) {
	f.minTime.Store(min)
	f.maxTime.Store(max)
	f.timeEnabled.Store(min != 0 || max != 0)
}

// vim: foldmethod=marker
