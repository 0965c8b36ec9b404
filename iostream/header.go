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
	"bytes"
	"fmt"
	"strings"
	"time"
)

// HeaderMagic is the first line written by a SampleOutputStream and
// expected by a SampleInputStream at connection open (§6).
const HeaderMagic = "NCAR ADS3"

// headerTimeout bounds how long SampleInputStream.ReadHeader waits for
// the magic line and each subsequent tag line before giving up; a peer
// that never sends a header is a configuration error, not a transient
// condition to wait out forever.
const headerTimeout = 10 * time.Second

// Header is the text metadata exchanged once at connection open. The tag
// set is the union of spec.md's distilled list and the original
// SampleFileHeader's tags (see DESIGN.md/SPEC_FULL.md): unknown tags are
// preserved in Extra rather than rejected, and tag order as written is
// tag order as parsed.
type Header struct {
	ArchiveVersion          string
	SoftwareVersion         string
	ProjectName             string
	SiteName                string
	ObservationPeriodName   string
	XMLName                 string
	XMLVersion              string

	// Extra holds any "tag: value" lines not recognized above, in the
	// order they appeared, preserving the original's forward-compatible
	// "unknown tag is still a tag" parsing behavior for anything this
	// struct doesn't have a dedicated field for.
	Extra []HeaderTag
}

// HeaderTag is one raw "name: value" line.
type HeaderTag struct {
	Name  string
	Value string
}

// knownTagOrder lists the header tags that have a dedicated Header field.
// Order here is also the order Encode writes them in, matching §6's
// literal listing.
var knownTagOrder = []string{
	"archive version",
	"software version",
	"project name",
	"site name",
	"observation period name",
	"xml name",
	"xml version",
}

// Encode renders h as the "tag: value\n" lines §6 describes, terminated
// by "end header\n", preceded by the magic line. The full byte sequence
// this produces is exactly what ReadHeader below must recover.
func (h Header) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(HeaderMagic)
	buf.WriteByte('\n')

	values := map[string]string{
		"archive version":          h.ArchiveVersion,
		"software version":         h.SoftwareVersion,
		"project name":             h.ProjectName,
		"site name":                h.SiteName,
		"observation period name":  h.ObservationPeriodName,
		"xml name":                 h.XMLName,
		"xml version":              h.XMLVersion,
	}
	for _, tag := range knownTagOrder {
		if v := values[tag]; v != "" {
			fmt.Fprintf(&buf, "%s: %s\n", tag, v)
		}
	}
	for _, extra := range h.Extra {
		fmt.Fprintf(&buf, "%s: %s\n", extra.Name, extra.Value)
	}
	buf.WriteString("end header\n")
	return buf.Bytes()
}

// ReadHeader reads the magic line, then "tag: value\n" lines one at a
// time until "end header\n" or a line that isn't "name: value" shaped,
// which is pushed back into s for the caller (the sample reader) to
// resynchronize from. A well-formed tag whose name is not in
// knownTagOrder does not end parsing: it is appended to Extra and the
// next line is read.
func ReadHeader(s *IOStream) (Header, error) {
	line, err := readLineTimeout(s, headerTimeout)
	if err != nil {
		return Header{}, err
	}
	if strings.TrimRight(string(line), "\n") != HeaderMagic {
		return Header{}, fmt.Errorf("%w %q", ErrBadMagic, line)
	}

	var h Header
	for {
		raw, err := readLineTimeout(s, headerTimeout)
		if err != nil {
			return h, err
		}
		line := strings.TrimRight(string(raw), "\n")

		if line == "end header" {
			return h, nil
		}

		name, value, ok := splitTag(line)
		if !ok {
			s.PutBack(raw)
			return h, nil
		}

		switch name {
		case "archive version":
			h.ArchiveVersion = value
		case "software version":
			h.SoftwareVersion = value
		case "project name":
			h.ProjectName = value
		case "site name":
			h.SiteName = value
		case "observation period name":
			h.ObservationPeriodName = value
		case "xml name":
			h.XMLName = value
		case "xml version":
			h.XMLVersion = value
		default:
			h.Extra = append(h.Extra, HeaderTag{Name: name, Value: value})
		}
	}
}

// splitTag parses a "name: value" line. A line with no ": " separator is
// not a tag line at all (it's the start of binary sample data that
// happens to follow immediately, or a malformed header) and is reported
// back to the caller as such.
func splitTag(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+2:], true
}

// readLine reads up to and including the next '\n' from s, one byte at a
// time. Header lines are short and this runs exactly once per connection,
// so the per-byte Next() call overhead here is not a hot-path concern.
func readLine(s *IOStream) ([]byte, error) {
	var line []byte
	for {
		b, err := s.Next(1)
		if err != nil {
			return line, err
		}
		line = append(line, b...)
		if b[0] == '\n' {
			return line, nil
		}
	}
}

func readLineTimeout(s *IOStream, d time.Duration) ([]byte, error) {
	var line []byte
	for {
		b, err := s.NextTimeout(1, d)
		if err != nil {
			return line, err
		}
		line = append(line, b...)
		if b[0] == '\n' {
			return line, nil
		}
	}
}

// vim: foldmethod=marker
