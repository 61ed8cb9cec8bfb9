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

package frame

import (
	"bytes"
	"io"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	items := [][]byte{
		[]byte("hello"),
		[]byte("a bit longer payload with spaces"),
		[]byte{0x1f, 0x8b, 0x08, 0x00}, // looks like gzip magic
	}
	var buf bytes.Buffer
	if err := WriteItems(&buf, items); err != nil {
		t.Fatalf("WriteItems: %v", err)
	}
	r := NewReader(&buf)
	got, err := r.ReadItems(len(items))
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("got %d items, want %d", len(got), len(items))
	}
	for i := range items {
		if !bytes.Equal(got[i], items[i]) {
			t.Errorf("item %d: got %q, want %q", i, got[i], items[i])
		}
	}
}

func TestBoundary(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc\n\n\n\n", "abc"},
		{"abc\n", "abc\n"},
	}
	for _, c := range cases {
		got := StripSep([]byte(c.in))
		if string(got) != c.want {
			t.Errorf("StripSep(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestReadItemMidStreamEOF(t *testing.T) {
	// a partial item with no trailing separator at all: the connection
	// was severed mid-payload.
	r := NewReader(bytes.NewReader([]byte("partial-no-sep")))
	_, err := r.ReadItem()
	if err != io.EOF {
		t.Fatalf("got err %v, want io.EOF", err)
	}
}

func TestReadItemsShortBatch(t *testing.T) {
	var buf bytes.Buffer
	WriteItems(&buf, [][]byte{[]byte("one"), []byte("two")})
	r := NewReader(&buf)
	items, err := r.ReadItems(5)
	if err != io.EOF {
		t.Fatalf("got err %v, want io.EOF", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}

func TestReadItemEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	WriteItems(&buf, [][]byte{{}})
	r := NewReader(&buf)
	item, err := r.ReadItem()
	if err != nil {
		t.Fatalf("ReadItem: %v", err)
	}
	if len(item) != 0 {
		t.Fatalf("got %q, want empty", item)
	}
}
