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
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	dsnetbzip2 "github.com/dsnet/compress/bzip2"
)

// Compression selects whether a FileSet's files are written plain,
// gzip-compressed, or bzip2-compressed. Reading transparently decompresses
// based on the selected Compression; the wire/disk bytes in either case
// are the same sample frames described in the iostream package.
type Compression int

const (
	// CompressionNone writes files uncompressed.
	CompressionNone Compression = iota
	// CompressionGzip writes/reads files through compress/gzip.
	CompressionGzip
	// CompressionBzip2 writes files through github.com/dsnet/compress's
	// bzip2 encoder (the standard library's compress/bzip2 is read-only)
	// and reads them back through compress/bzip2.
	CompressionBzip2
)

// fileExt returns the filename suffix this Compression appends, purely
// for operator-visible naming; FileSet does not require it.
func (c Compression) fileExt() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionBzip2:
		return ".bz2"
	default:
		return ""
	}
}

// FileSetOptions configures a FileSet.
type FileSetOptions struct {
	// Dir is the directory new files are created in.
	Dir string

	// NameTemplate is a time.Time.Format-style layout (Go reference-time
	// layout, not strftime) used to generate each file's name from the
	// wall-clock time it is created at. It must sort lexicographically in
	// timestamp order, matching §6's "Persisted state layout" contract
	// (no index file; ordering is by name).
	NameTemplate string

	// RollInterval is the wall-clock duration each file covers before
	// FileSet rolls to a new one. A zero value defaults to one hour,
	// matching §4.10's "typical: 30 minutes or 1 hour".
	RollInterval time.Duration

	// Compression selects the on-disk encoding of newly created files.
	Compression Compression

	// Perm is the file mode new files are created with.
	Perm os.FileMode
}

func (o FileSetOptions) withDefaults() FileSetOptions {
	if o.RollInterval <= 0 {
		o.RollInterval = time.Hour
	}
	if o.NameTemplate == "" {
		o.NameTemplate = "20060102_150405.dat"
	}
	if o.Perm == 0 {
		o.Perm = 0644
	}
	return o
}

// FileSet is a Channel writing to (or reading from) a series of files
// whose names are generated from a time template and the wall-clock time
// each file is created at, rolling to a new file whenever the current
// one's coverage window elapses. The timetags of the samples inside the
// written bytes are not consulted for naming or rolling. See §4.10 and §6.
//
// FileSet only supports one direction per instance: construct a write-side
// FileSet for an archiver output, or a read-side one (via OpenRead) to
// replay an archive directory in name-sorted order.
type FileSet struct {
	baseRequestType

	opts FileSetOptions

	mu       sync.Mutex
	cur      io.Closer
	writer   io.Writer
	reader   io.Reader
	nextRoll time.Time
	closed   bool

	readFiles []string
	readIdx   int
	curFile   *os.File
}

// NewFileSet constructs a write-side FileSet. RequestConnection opens the
// first file (for the current wall-clock time); writes after that roll
// automatically as time crosses RollInterval boundaries.
func NewFileSet(opts FileSetOptions) *FileSet {
	return &FileSet{opts: opts.withDefaults()}
}

// RequestConnection opens the FileSet's first file and calls
// r.Connected inline — file creation is synchronous local I/O, not a
// handshake. On a read-side FileSet (see OpenRead) the first file is the
// first of the sorted sequence, opened for reading.
func (fs *FileSet) RequestConnection(r ConnectionRequester) error {
	open := func() error { return fs.createFile(time.Now()) }
	if fs.readFiles != nil {
		open = fs.openNextReadFile
	}
	if err := open(); err != nil {
		r.Disconnected(fs)
		return err
	}
	r.Connected(fs)
	return nil
}

// createFile closes the currently open file (if any), builds the new
// path from t and NameTemplate, opens it for writing, and records the
// time at which the next roll should occur. The write path calls
// createFile whenever the wall-clock time crosses nextRoll.
func (fs *FileSet) createFile(t time.Time) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cur != nil {
		fs.cur.Close()
		fs.cur = nil
	}

	name := t.UTC().Format(fs.opts.NameTemplate) + fs.opts.Compression.fileExt()
	path := filepath.Join(fs.opts.Dir, name)

	if err := os.MkdirAll(fs.opts.Dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.opts.Perm)
	if err != nil {
		return err
	}

	switch fs.opts.Compression {
	case CompressionGzip:
		gw := gzip.NewWriter(f)
		fs.cur = multiCloser{gw, f}
		fs.writer = gw
	case CompressionBzip2:
		bw, werr := dsnetbzip2.NewWriter(f, nil)
		if werr != nil {
			f.Close()
			return werr
		}
		fs.cur = multiCloser{bw, f}
		fs.writer = bw
	default:
		fs.cur = f
		fs.writer = f
	}

	fs.nextRoll = t.Add(fs.opts.RollInterval)
	return nil
}

// multiCloser closes an ordered sequence of io.Closers, stopping at (and
// returning) the first error, used to close a compressing writer before
// the file it wraps.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	for _, c := range m {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Write writes p to the currently open file, rolling to a new file first
// if wall-clock time has crossed the roll boundary.
func (fs *FileSet) Write(p []byte) (int, error) {
	now := time.Now()

	fs.mu.Lock()
	needsRoll := now.After(fs.nextRoll)
	fs.mu.Unlock()

	if needsRoll {
		if err := fs.createFile(now); err != nil {
			return 0, err
		}
	}

	fs.mu.Lock()
	w, closed := fs.writer, fs.closed
	fs.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	return w.Write(p)
}

// OpenRead constructs a read-side FileSet iterating every regular file in
// dir whose name matches glob, in lexicographic (timestamp-prefixed)
// order, transparently decompressing per Compression.
func OpenRead(dir, glob string, compression Compression) (*FileSet, error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	fs := &FileSet{
		opts:      FileSetOptions{Dir: dir, Compression: compression},
		readFiles: matches,
	}
	return fs, nil
}

// openNextReadFile closes the current read-side file (if any) and opens
// the next one in the sorted sequence, returning io.EOF once none remain.
func (fs *FileSet) openNextReadFile() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.curFile != nil {
		fs.curFile.Close()
		fs.curFile = nil
	}
	if fs.readIdx >= len(fs.readFiles) {
		return io.EOF
	}

	f, err := os.Open(fs.readFiles[fs.readIdx])
	if err != nil {
		return err
	}
	fs.readIdx++
	fs.curFile = f

	switch fs.opts.Compression {
	case CompressionGzip:
		gr, gerr := gzip.NewReader(f)
		if gerr != nil {
			f.Close()
			return gerr
		}
		fs.reader = gr
	case CompressionBzip2:
		fs.reader = bzip2.NewReader(f)
	default:
		fs.reader = f
	}
	return nil
}

// Read reads from the currently open file in the sorted sequence,
// advancing to the next file automatically when the current one is
// exhausted. Returns io.EOF only once every file has been read.
func (fs *FileSet) Read(p []byte) (int, error) {
	fs.mu.Lock()
	if fs.reader == nil {
		fs.mu.Unlock()
		if err := fs.openNextReadFile(); err != nil {
			return 0, err
		}
		fs.mu.Lock()
	}
	r := fs.reader
	fs.mu.Unlock()

	n, err := r.Read(p)
	if err == io.EOF {
		if oerr := fs.openNextReadFile(); oerr != nil {
			return n, io.EOF
		}
		if n > 0 {
			return n, nil
		}
		return fs.Read(p)
	}
	return n, err
}

// ReadTimeout is unsupported for FileSet: local file reads don't block
// indefinitely, so it behaves exactly like Read.
func (fs *FileSet) ReadTimeout(p []byte, _ time.Duration) (int, error) {
	return fs.Read(p)
}

// Close closes whichever file is currently open. Idempotent.
func (fs *FileSet) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return nil
	}
	fs.closed = true
	if fs.cur != nil {
		return fs.cur.Close()
	}
	if fs.curFile != nil {
		return fs.curFile.Close()
	}
	return nil
}

// Clone returns a new, unconnected FileSet with the same configuration,
// used when a single FileSet template backs several rolling outputs
// (for instance, one per DSM in a multi-station ground archiver).
func (fs *FileSet) Clone() (Channel, error) {
	if fs.readFiles != nil {
		return nil, ErrNotCloneable
	}
	return NewFileSet(fs.opts), nil
}

// ValidateNameTemplate reports whether two timestamps one RollInterval
// apart produce distinct, lexicographically ordered names under layout —
// a template that fails this check would violate §6's "must be
// timestamp-prefixed" persisted-state contract.
func ValidateNameTemplate(layout string, interval time.Duration) bool {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(interval)
	n0, n1 := t0.Format(layout), t1.Format(layout)
	return n0 != n1 && n0 < n1
}

// vim: foldmethod=marker
