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

// Package nidas contains the core data-plane pipeline shared by NIDAS
// data acquisition daemons: the Sample object and its pool, the
// SampleSource/SampleClient fan-out graph, the SampleSorter, and the
// SampleClock/SampleDater.
//
// Data flows in one direction: a Sample is allocated from a SamplePool by
// a producer, distributed through a fan-out graph of SampleSource and
// SampleClient, optionally re-ordered by a SampleSorter, and handed to
// the ioc/iostream subpackages for serialization to an archive or socket
// sink.
//
// Most code wiring a pipeline together will construct a PipelineContext
// once per process and pass it to the constructors in this package and its
// subpackages, rather than relying on any global state.
package nidas

// vim: foldmethod=marker
