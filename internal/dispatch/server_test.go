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

package dispatch

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lc0fleet/rescorer/internal/frame"
	"github.com/lc0fleet/rescorer/internal/outsink"
	"github.com/lc0fleet/rescorer/internal/workqueue"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestServeSingleClientSingleFile exercises scenario S1/S2 from spec.md
// §8: one client, one file, chunk size larger than the queue.
func TestServeSingleClientSingleFile(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(in, "A", "x.gz"), []byte("hello-x"))

	src := workqueue.New(workqueue.Options{Root: in})
	sink := outsink.New(in, out)
	srv := New(src, sink, 0)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go srv.Serve(l)

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if err := frame.WriteItems(conn, [][]byte{[]byte("ready")}); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteItems(conn, [][]byte{[]byte("worker-1 10")}); err != nil {
		t.Fatal(err)
	}

	r := frame.NewReader(conn)
	items, err := r.ReadItems(1)
	if err != nil {
		t.Fatalf("ReadItems: %v", err)
	}
	if len(items) != 1 || string(items[0]) != "hello-x" {
		t.Fatalf("got %v, want [hello-x]", items)
	}

	if err := frame.WriteItems(conn, [][]byte{[]byte("hello-x-rescored")}); err != nil {
		t.Fatal(err)
	}

	// next batch should be empty: the queue is drained.
	_, err = r.ReadItem()
	if err == nil {
		t.Fatal("expected EOF on the second batch, got an item")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sink.Exists(filepath.Join(in, "A", "x.gz")) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	outPath := filepath.Join(out, "A", "x.gz")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "hello-x-rescored" {
		t.Fatalf("output = %q, want %q", data, "hello-x-rescored")
	}
}

func TestParseIdentify(t *testing.T) {
	name, n, err := parseIdentify("worker-7 42")
	if err != nil {
		t.Fatalf("parseIdentify: %v", err)
	}
	if name != "worker-7" || n != 42 {
		t.Fatalf("got (%q, %d), want (worker-7, 42)", name, n)
	}
	if _, _, err := parseIdentify("worker-7"); err == nil {
		t.Fatal("expected error for missing chunk size")
	}
	if _, _, err := parseIdentify("worker-7 -1"); err == nil {
		t.Fatal("expected error for non-positive chunk size")
	}
}
