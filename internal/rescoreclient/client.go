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

// Package rescoreclient implements the worker side of the dispatch
// protocol: connect, announce identity and chunk size, then loop
// receiving a batch of files, rescoring each one, and sending the
// results back.
package rescoreclient

import (
	"fmt"
	"log"
	"net"

	"github.com/lc0fleet/rescorer/internal/engine"
	"github.com/lc0fleet/rescorer/internal/frame"
	"github.com/lc0fleet/rescorer/internal/rescore"
)

// Options configures a Run call.
type Options struct {
	Addr      string
	Name      string
	ChunkSize int

	// Engine is the running analyzer to use for each file. Nil means
	// dry-run: every received item is echoed back unchanged, without
	// decompressing or reinterpreting it, to measure framing throughput
	// independently of the engine (spec.md §4.6).
	Engine *engine.Analyzer
	Nodes  int

	Logger *log.Logger
}

// Run connects to opts.Addr and processes batches until the server signals
// there is no more work (an empty batch) or the connection is lost.
func Run(opts Options) error {
	conn, err := net.Dial("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("rescoreclient: dial %s: %w", opts.Addr, err)
	}
	defer conn.Close()

	if err := frame.WriteItems(conn, [][]byte{[]byte("ready")}); err != nil {
		return fmt.Errorf("rescoreclient: sending ready: %w", err)
	}
	ident := fmt.Sprintf("%s %d", opts.Name, opts.ChunkSize)
	if err := frame.WriteItems(conn, [][]byte{[]byte(ident)}); err != nil {
		return fmt.Errorf("rescoreclient: sending identify: %w", err)
	}

	r := frame.NewReader(conn)
	for {
		items, err := r.ReadItems(opts.ChunkSize)
		if len(items) == 0 {
			if err != nil && opts.Logger != nil {
				opts.Logger.Printf("no more work: %v", err)
			}
			return nil
		}

		out := make([][]byte, len(items))
		for i, item := range items {
			rescored, procErr := process(item, opts)
			if procErr != nil {
				if opts.Logger != nil {
					opts.Logger.Printf("rescoring item %d: %v", i, procErr)
				}
				out[i] = nil
				continue
			}
			out[i] = rescored
		}
		if werr := frame.WriteItems(conn, out); werr != nil {
			return fmt.Errorf("rescoreclient: sending results: %w", werr)
		}

		if err != nil {
			// the server signalled this was the last batch by
			// half-closing after sending fewer than ChunkSize items.
			return nil
		}
	}
}

func process(data []byte, opts Options) ([]byte, error) {
	if opts.Engine == nil {
		return data, nil
	}
	return rescore.File(data, rescore.Options{Engine: opts.Engine, Nodes: opts.Nodes})
}
