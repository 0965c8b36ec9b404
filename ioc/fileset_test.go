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

package ioc_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.nidas.dev/core/ioc"
)

func TestFileSetRollsOnIntervalCrossing(t *testing.T) {
	dir := t.TempDir()
	fs := ioc.NewFileSet(ioc.FileSetOptions{
		Dir:          dir,
		NameTemplate: "20060102_150405.000.dat",
		RollInterval: time.Millisecond,
	})
	defer fs.Close()

	require.NoError(t, fs.RequestConnection(ioc.ConnectionRequesterFunc{}))

	_, err := fs.Write([]byte("first"))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = fs.Write([]byte("second"))
	require.NoError(t, err)

	rfs, err := ioc.OpenRead(dir, "*.dat", ioc.CompressionNone)
	require.NoError(t, err)
	defer rfs.Close()

	got, err := io.ReadAll(readerFunc(rfs.Read))
	require.NoError(t, err)
	assert.Equal(t, "firstsecond", string(got))
}

func TestFileSetGzipRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := ioc.NewFileSet(ioc.FileSetOptions{
		Dir:          dir,
		NameTemplate: "20060102_150405.dat",
		Compression:  ioc.CompressionGzip,
	})
	require.NoError(t, fs.RequestConnection(ioc.ConnectionRequesterFunc{}))
	_, err := fs.Write([]byte("compressed payload"))
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	rfs, err := ioc.OpenRead(dir, "*.dat.gz", ioc.CompressionGzip)
	require.NoError(t, err)
	defer rfs.Close()

	got, err := io.ReadAll(readerFunc(rfs.Read))
	require.NoError(t, err)
	assert.Equal(t, "compressed payload", string(got))
}

func TestFileSetCloneRejectsReadSide(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20200101_000000.dat"), []byte("x"), 0644))

	rfs, err := ioc.OpenRead(dir, "*.dat", ioc.CompressionNone)
	require.NoError(t, err)
	_, err = rfs.Clone()
	assert.ErrorIs(t, err, ioc.ErrNotCloneable)
}

func TestValidateNameTemplate(t *testing.T) {
	assert.True(t, ioc.ValidateNameTemplate("20060102_150405.dat", time.Second))
	assert.False(t, ioc.ValidateNameTemplate("15.dat", time.Millisecond))
}

type readerFunc func([]byte) (int, error)

func (r readerFunc) Read(p []byte) (int, error) { return r(p) }

// vim: foldmethod=marker
