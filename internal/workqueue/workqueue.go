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

// Package workqueue is the single, sequentially-drained source of input
// files a dispatch server hands out to clients. It lazily walks a directory
// tree for ".gz" files, optionally filtering by a directory substring and
// skipping files whose rescored output already exists (resume mode).
package workqueue

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lc0fleet/rescorer/internal/outsink"
)

// Source is a lazy, single-reader sequence of absolute input file paths.
// Take is safe for concurrent callers: each path is delivered to exactly one
// caller.
type Source struct {
	mu sync.Mutex
	ch chan string
}

// Options configure a new Source.
type Options struct {
	// Root is the input directory to walk recursively.
	Root string
	// OutputRoot mirrors Root for resume-mode existence checks.
	OutputRoot string
	// Filter, if non-empty, keeps only files whose containing directory's
	// full path contains this substring.
	Filter string
	// Resume, if true, skips files whose mirrored output already exists.
	Resume bool
}

// New starts walking opts.Root in the background and returns a Source that
// yields matching paths as they are discovered.
func New(opts Options) *Source {
	s := &Source{ch: make(chan string, 64)}
	go s.walk(opts)
	return s
}

func (s *Source) walk(opts Options) {
	defer close(s.ch)

	sink := outsink.New(opts.Root, opts.OutputRoot)
	root := opts.Root
	fsys := os.DirFS(root)

	fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entry: skip it rather than aborting the walk
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".gz") {
			return nil
		}
		full := filepath.Join(root, p)
		if opts.Filter != "" && !strings.Contains(filepath.Dir(full), opts.Filter) {
			return nil
		}
		if opts.Resume && sink.Exists(full) {
			return nil
		}
		s.ch <- full
		return nil
	})
}

// Take removes up to n paths from the queue. The operation is atomic with
// respect to other concurrent callers of Take: each path is handed to
// exactly one caller. It returns fewer than n paths, down to zero, once the
// source is exhausted.
func (s *Source) Take(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p, ok := <-s.ch
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}
