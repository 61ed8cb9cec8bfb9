// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package frame implements the length-delimited payload framing used by the
// dispatch protocol: each item is followed by a fixed 4-byte separator.
// The framing is not escape-safe; it relies on payloads (gzip streams) never
// containing the separator sequence by coincidence.
package frame

import (
	"bufio"
	"bytes"
	"io"
)

// Sep is the 4-byte item separator.
var Sep = []byte{'\n', '\n', '\n', '\n'}

// StripSep removes a trailing Sep from b if, and only if, Sep appears as the
// complete trailing suffix. A payload that merely ends in one of Sep's bytes
// without the full run is returned unmodified.
func StripSep(b []byte) []byte {
	if bytes.HasSuffix(b, Sep) {
		return b[:len(b)-len(Sep)]
	}
	return b
}

// WriteItems writes each item followed by Sep, in order. It is the
// inverse of reading items with a Reader.
func WriteItems(w io.Writer, items [][]byte) error {
	for _, item := range items {
		if _, err := w.Write(item); err != nil {
			return err
		}
		if _, err := w.Write(Sep); err != nil {
			return err
		}
	}
	return nil
}

// halfCloser is satisfied by net.TCPConn and similar connections that
// support half-closing the write side of a duplex stream.
type halfCloser interface {
	CloseWrite() error
}

// CloseWrite half-closes w's outbound direction if it supports it. It is a
// no-op otherwise, so it is always safe to call.
func CloseWrite(w io.Writer) error {
	if hc, ok := w.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return nil
}

// Reader reads length-delimited items from an underlying byte stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader that reads items from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 64*1024)}
}

// ReadItem reads bytes up to and including Sep and returns the bytes before
// Sep. If the stream ends before a complete Sep is found — whether or not
// any bytes were pending — ReadItem returns a nil item and io.EOF; this is
// the "EOF mid-item is stream termination, not a framing error" rule from
// the protocol: callers should treat it exactly like a clean end of stream.
func (r *Reader) ReadItem() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.br.ReadBytes('\n')
		buf = append(buf, chunk...)
		if bytes.HasSuffix(buf, Sep) {
			return buf[:len(buf)-len(Sep)], nil
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// ReadItems reads exactly n items, or fewer if the stream ends early. It
// returns the items read so far along with io.EOF when the stream ends
// before n items have been read; this lets a caller distinguish "got
// everything" from "peer disconnected mid-batch" (spec.md §4.5 point 4).
func (r *Reader) ReadItems(n int) ([][]byte, error) {
	items := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		item, err := r.ReadItem()
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}
