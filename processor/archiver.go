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
	"sync"

	"github.com/rs/zerolog"

	nidas "go.nidas.dev/core"
	"go.nidas.dev/core/ioc"
	"go.nidas.dev/core/iostream"
)

// Archiver is the SampleArchiver of §4.8: it connects to one or more
// SampleSources (raw or already processed) and, for each output handed to
// AddOutput, opens it (ioc.Channel.RequestConnection) and subscribes the
// resulting iostream.OutputStream as a SampleClient of every connected
// source. RemoveOutput unsubscribes and closes an output; a failed write
// on an output does not by itself unsubscribe or close it.
type Archiver struct {
	mu      sync.Mutex
	sources sourceSet
	outputs map[ioc.Channel]*iostream.OutputStream

	header iostream.Header
	opts   iostream.IOStreamOptions

	log zerolog.Logger
}

// NewArchiver constructs an Archiver that writes header to each output it
// opens.
func NewArchiver(header iostream.Header, opts iostream.IOStreamOptions, log zerolog.Logger) *Archiver {
	return &Archiver{
		outputs: make(map[ioc.Channel]*iostream.OutputStream),
		header:  header,
		opts:    opts,
		log:     log,
	}
}

// Connect subscribes every currently open output as a SampleClient of
// source and remembers source for any output added later.
func (a *Archiver) Connect(source nidas.SampleSource) {
	a.mu.Lock()
	a.sources.add(source)
	outputs := make([]*iostream.OutputStream, 0, len(a.outputs))
	for _, o := range a.outputs {
		outputs = append(outputs, o)
	}
	a.mu.Unlock()

	for _, o := range outputs {
		source.AddSampleClient(o)
	}
}

// Disconnect unsubscribes every open output from source.
func (a *Archiver) Disconnect(source nidas.SampleSource) {
	a.mu.Lock()
	a.sources.remove(source)
	outputs := make([]*iostream.OutputStream, 0, len(a.outputs))
	for _, o := range a.outputs {
		outputs = append(outputs, o)
	}
	a.mu.Unlock()

	for _, o := range outputs {
		source.RemoveSampleClient(o)
	}
}

// AddOutput requests a connection on channel; once it's ready, an
// iostream.OutputStream is built over it, the connection header is
// written, and the output is subscribed to every currently connected
// source. AddOutput returns immediately; see Connected/Disconnected for
// the asynchronous outcome.
func (a *Archiver) AddOutput(channel ioc.Channel) error {
	return channel.RequestConnection(archiverRequester{a: a, channel: channel})
}

// archiverRequester adapts one AddOutput call's channel to
// ioc.ConnectionRequester, so the Archiver itself can field callbacks for
// any number of outputs concurrently without needing per-output state
// beyond the map key.
type archiverRequester struct {
	a       *Archiver
	channel ioc.Channel
}

// Connected implements ioc.ConnectionRequester: builds the OutputStream
// over the now-ready channel and subscribes it to every connected source.
func (r archiverRequester) Connected(c ioc.Channel) {
	stream := iostream.New(c, r.a.opts)
	out, err := iostream.NewOutputStream(stream, r.a.header)
	if err != nil {
		r.a.log.Error().Err(err).Msg("archiver: failed to write header on new output")
		c.Close()
		return
	}

	r.a.mu.Lock()
	r.a.outputs[c] = out
	sources := append([]nidas.SampleSource(nil), r.a.sources.sources...)
	r.a.mu.Unlock()

	for _, src := range sources {
		src.AddSampleClient(out)
	}
}

// Disconnected implements ioc.ConnectionRequester: logs the failed
// handshake. There is nothing subscribed yet to tear down since Connected
// never ran.
func (r archiverRequester) Disconnected(c ioc.Channel) {
	r.a.log.Warn().Msg("archiver: output failed to connect")
}

// RemoveOutput unsubscribes and closes an output previously added via
// AddOutput, by its underlying ioc.Channel.
func (a *Archiver) RemoveOutput(channel ioc.Channel) error {
	a.mu.Lock()
	out, ok := a.outputs[channel]
	if ok {
		delete(a.outputs, channel)
	}
	sources := append([]nidas.SampleSource(nil), a.sources.sources...)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	for _, src := range sources {
		src.RemoveSampleClient(out)
	}
	return out.Close()
}

// vim: foldmethod=marker
