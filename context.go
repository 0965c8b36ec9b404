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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PipelineContext bundles the process-wide collaborators a pipeline's
// components are built from: the SamplePool, the Dater, a Logger, and a
// prometheus.Registerer. Passing this one struct through constructors
// replaces the original's SamplePool/dater process singletons — a process still
// typically builds exactly one of these, but tests and multi-pipeline
// hosts are free to build more than one.
type PipelineContext struct {
	Pool     *SamplePool
	Dater    *Dater
	Logger   zerolog.Logger
	Registry prometheus.Registerer
}

// NewPipelineContext constructs a PipelineContext with default-sized pool
// and dater configuration. Callers needing non-default sizing should
// construct the Pool and Dater directly and assign them into a
// PipelineContext literal instead.
func NewPipelineContext(log zerolog.Logger, reg prometheus.Registerer) *PipelineContext {
	return &PipelineContext{
		Pool:     NewSamplePool(SamplePoolOptions{}),
		Dater:    NewDater(DaterOptions{Logger: log}),
		Logger:   log,
		Registry: reg,
	}
}

// MustRegister registers every given prometheus.Collector against the
// context's Registry, panicking on a registration error (a duplicate
// metric name), matching this repo's convention of failing fast at
// startup wiring time rather than during steady-state operation.
func (c *PipelineContext) MustRegister(collectors ...prometheus.Collector) {
	if c.Registry == nil {
		return
	}
	for _, col := range collectors {
		c.Registry.MustRegister(col)
	}
}

// vim: foldmethod=marker
