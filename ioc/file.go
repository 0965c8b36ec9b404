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

package ioc

import (
	"io"
	"os"
	"sync"
	"time"
)

// File is a Channel wrapping a plain *os.File — a local disk file, a
// pipe, or an already-open descriptor handed in by the caller (a device
// special file, for instance). RequestConnection is synchronous: it opens
// the path given to NewFile (or uses the handle given to
// NewFileFromHandle) and calls Connected inline.
type File struct {
	baseRequestType

	path string
	flag int
	perm os.FileMode

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFile constructs a File Channel that will open path with the given
// flag/perm (as os.OpenFile) when RequestConnection is called.
func NewFile(path string, flag int, perm os.FileMode) *File {
	return &File{path: path, flag: flag, perm: perm}
}

// NewFileFromHandle wraps an already-open *os.File, skipping the open
// step in RequestConnection.
func NewFileFromHandle(f *os.File) *File {
	return &File{file: f}
}

// RequestConnection opens the underlying file (if not already open via
// NewFileFromHandle) and calls r.Connected inline.
func (f *File) RequestConnection(r ConnectionRequester) error {
	f.mu.Lock()
	if f.file == nil {
		file, err := os.OpenFile(f.path, f.flag, f.perm)
		if err != nil {
			f.mu.Unlock()
			r.Disconnected(f)
			return err
		}
		f.file = file
	}
	f.mu.Unlock()

	r.Connected(f)
	return nil
}

// Read reads from the underlying file.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	file, closed := f.file, f.closed
	f.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	n, err := file.Read(p)
	if err == io.EOF {
		return n, ErrHangup
	}
	return n, err
}

// ReadTimeout reads from the underlying file, bounding the wait with
// os.File.SetReadDeadline. Plain files (as opposed to pipes or FIFOs)
// generally do not support deadlines; callers using File over such a path
// should expect ReadTimeout to behave like Read.
func (f *File) ReadTimeout(p []byte, d time.Duration) (int, error) {
	f.mu.Lock()
	file, closed := f.file, f.closed
	f.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	_ = file.SetReadDeadline(time.Now().Add(d))
	n, err := file.Read(p)
	_ = file.SetReadDeadline(time.Time{})

	if err != nil {
		if os.IsTimeout(err) {
			return n, ErrTimeout
		}
		if err == io.EOF {
			return n, ErrHangup
		}
	}
	return n, err
}

// Write writes to the underlying file.
func (f *File) Write(p []byte) (int, error) {
	f.mu.Lock()
	file, closed := f.file, f.closed
	f.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return file.Write(p)
}

// Close closes the underlying file. Idempotent.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// Clone returns a new, unconnected File with the same path/flag/perm.
// Cloning a File constructed from a bare handle (NewFileFromHandle) is
// not supported, since there is no path to reopen.
func (f *File) Clone() (Channel, error) {
	if f.path == "" {
		return nil, ErrNotCloneable
	}
	return NewFile(f.path, f.flag, f.perm), nil
}

// vim: foldmethod=marker
