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

// Package processor holds the SampleIOProcessor family (§4.8): pluggable
// stages that sit downstream of a SampleSorter (or any SampleSource) and
// fan their own output to one or more connected outputs. This package's
// own connection discipline (Connect/Disconnect) is independent of the
// asynchronous ioc.ConnectionRequester wiring an individual output uses to
// become ready.
package processor

import (
	nidas "go.nidas.dev/core"
)

// Processor is a SampleIOProcessor: a stage that subscribes itself as a
// nidas.SampleClient of one or more sources, and owns some notion of
// "outputs" it forwards processed samples to.
type Processor interface {
	// Connect subscribes the processor to source as a SampleClient.
	Connect(source nidas.SampleSource)

	// Disconnect unsubscribes the processor from source.
	Disconnect(source nidas.SampleSource)
}

// sourceSet is a small de-duplicating set of SampleSources, shared by the
// Processor implementations in this package to track what they're
// currently connected to.
type sourceSet struct {
	sources []nidas.SampleSource
}

func (s *sourceSet) add(src nidas.SampleSource) {
	for _, existing := range s.sources {
		if existing == src {
			return
		}
	}
	s.sources = append(s.sources, src)
}

func (s *sourceSet) remove(src nidas.SampleSource) {
	for i, existing := range s.sources {
		if existing == src {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			return
		}
	}
}

// vim: foldmethod=marker
