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
	"reflect"
	"sync"
)

// SampleClient receives Samples pushed to it by a SampleSource. Receive
// returns true if the sample was accepted, false if it was rejected (an
// unrecognized id, local backpressure, and so on). The source does not act
// on the return value except to feed its own statistics.
//
// A Sample passed to Receive must not be retained past the call unless the
// client first calls s.HoldReference(); the source frees its own reference
// immediately after the fan-out completes.
type SampleClient interface {
	Receive(s *Sample) bool
}

// SampleClientFunc adapts a plain function to a SampleClient.
type SampleClientFunc func(s *Sample) bool

// Receive calls f(s).
func (f SampleClientFunc) Receive(s *Sample) bool { return f(s) }

// SampleSource is anything that fans Samples out to a set of SampleClients.
type SampleSource interface {
	AddSampleClient(c SampleClient)
	RemoveSampleClient(c SampleClient)
}

// SampleClientList is a thread-safe, ordered set of SampleClients, with
// idempotent add/remove, used by a SampleSource to hold and iterate its
// clients. Adding the same client twice is a no-op; removing a client not
// present is a no-op.
//
// Iteration never holds the list's lock: Snapshot copies the current
// clients under lock and returns a plain slice, so a client's Receive
// method may call RemoveSampleClient(itself) without deadlocking. This
// mirrors the lock/unlock-plus-unguarded-iterator contract of the original
// client list, where callers were trusted to snapshot before iterating.
type SampleClientList struct {
	mu      sync.Mutex
	clients []SampleClient
}

// NewSampleClientList returns an empty SampleClientList.
func NewSampleClientList() *SampleClientList {
	return &SampleClientList{}
}

// Add appends c to the list if it is not already present.
func (l *SampleClientList) Add(c SampleClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.clients {
		if sameClient(existing, c) {
			return
		}
	}
	l.clients = append(l.clients, c)
}

// Remove removes c from the list, if present. Removing a client not in the
// list is a no-op, matching the original's idempotent removeAll-adjacent
// semantics.
func (l *SampleClientList) Remove(c SampleClient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.clients {
		if sameClient(existing, c) {
			l.clients = append(l.clients[:i], l.clients[i+1:]...)
			return
		}
	}
}

// sameClient reports whether a and b are the same SampleClient, without
// risking the runtime panic a plain == would raise if either holds an
// uncomparable dynamic type (a SampleClientFunc closure, in particular).
// An uncomparable client is therefore never deduplicated by Add and never
// matched by Remove by identity — callers needing those to work with a
// SampleClientFunc should wrap it in a named, pointer-identity type
// instead.
func sameClient(a, b SampleClient) bool {
	t := reflect.TypeOf(a)
	if t == nil || !t.Comparable() || reflect.TypeOf(b) != t {
		return false
	}
	return a == b
}

// RemoveAll empties the list.
func (l *SampleClientList) RemoveAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = nil
}

// Len returns the number of clients currently in the list.
func (l *SampleClientList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Snapshot copies the current client set under lock and returns it as a
// plain slice, safe to range over without holding any lock — callers may
// remove themselves from the list mid-iteration.
func (l *SampleClientList) Snapshot() []SampleClient {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SampleClient, len(l.clients))
	copy(out, l.clients)
	return out
}

// Distribute snapshots the client list and calls Receive on every client in
// order, then frees the source's own reference to s exactly once,
// regardless of whether a client panics. Samples that are never handed
// to any client (an empty list) still have their reference freed, matching
// the "id unknown to any client is silently dropped" edge case in §8 — the
// caller's stats layer is expected to notice an empty snapshot if it wants
// a visible counter for that case.
func Distribute(l *SampleClientList, s *Sample) {
	defer s.FreeReference()

	for _, c := range l.Snapshot() {
		receiveOne(c, s)
	}
}

// receiveOne calls c.Receive(s), recovering from a panicking client so one
// misbehaving client cannot stop the rest of the fan-out or leak s's
// reference.
func receiveOne(c SampleClient, s *Sample) {
	defer func() { recover() }()
	c.Receive(s)
}

// vim: foldmethod=marker
