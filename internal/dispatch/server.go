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

// Package dispatch implements the coordination server: it accepts
// connections from worker clients, hands each one bounded chunks of
// input paths from a shared work queue, collects rescored results into
// an output tree, and tracks per-client throughput.
package dispatch

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lc0fleet/rescorer/internal/clientstats"
	"github.com/lc0fleet/rescorer/internal/frame"
	"github.com/lc0fleet/rescorer/internal/outsink"
	"github.com/lc0fleet/rescorer/internal/workqueue"
)

// Server accepts worker connections and coordinates distribution of work
// pulled from a workqueue.Source, persisting results through an
// outsink.Sink and recording throughput in a clientstats.Registry.
type Server struct {
	Source *workqueue.Source
	Sink   *outsink.Sink
	Stats  *clientstats.Registry
	Logger *log.Logger

	// StatsPeriod is how often the aggregate stats line is logged. Zero
	// disables periodic reporting.
	StatsPeriod time.Duration
}

// New returns a Server ready to call Serve on.
func New(source *workqueue.Source, sink *outsink.Sink, statsPeriod time.Duration) *Server {
	return &Server{
		Source:      source,
		Sink:        sink,
		Stats:       clientstats.NewRegistry(),
		Logger:      log.New(os.Stderr, "", log.Lshortfile),
		StatsPeriod: statsPeriod,
	}
}

// Serve accepts connections on l until it returns a permanent error. Each
// connection is handled in its own goroutine. Serve always returns a
// non-nil error, including when the caller closes l.
func (s *Server) Serve(l net.Listener) error {
	if s.StatsPeriod > 0 {
		go s.reportPeriodically(s.StatsPeriod)
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		id := uuid.New()
		go s.handle(conn, id)
	}
}

func (s *Server) handle(conn net.Conn, id uuid.UUID) {
	defer conn.Close()
	r := frame.NewReader(conn)

	ready, err := r.ReadItem()
	if err != nil || string(ready) != "ready" {
		s.Logger.Printf("conn %s: bad handshake (ready): %v", id, err)
		return
	}

	ident, err := r.ReadItem()
	if err != nil {
		s.Logger.Printf("conn %s: bad handshake (identify): %v", id, err)
		return
	}
	name, chunkSize, err := parseIdentify(string(ident))
	if err != nil {
		s.Logger.Printf("conn %s: bad identify payload %q: %v", id, ident, err)
		return
	}

	s.Stats.Attach(name)
	s.Logger.Printf("conn %s: client %q attached, chunk size %d", id, name, chunkSize)

	for {
		paths := s.Source.Take(chunkSize)
		if len(paths) == 0 {
			frame.CloseWrite(conn)
			s.Logger.Printf("conn %s: client %q: no more work, closing", id, name)
			return
		}

		payloads := make([][]byte, 0, len(paths))
		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				s.Logger.Printf("conn %s: reading %s: %v", id, p, err)
				data = nil
			}
			payloads = append(payloads, data)
		}
		if err := frame.WriteItems(conn, payloads); err != nil {
			s.Logger.Printf("conn %s: client %q: write batch: %v", id, name, err)
			s.Stats.Detach(name)
			return
		}
		if len(paths) < chunkSize {
			frame.CloseWrite(conn)
		}

		start := time.Now()
		results, err := r.ReadItems(len(paths))
		if err != nil {
			s.Logger.Printf("conn %s: client %q: disconnected mid-batch after %d/%d: %v",
				id, name, len(results), len(paths), err)
			s.Stats.Detach(name)
			return
		}
		elapsed := time.Since(start)

		for i, p := range paths {
			if err := s.Sink.Write(p, results[i]); err != nil {
				s.Logger.Printf("conn %s: writing output for %s: %v", id, p, err)
				return
			}
		}
		s.Stats.Record(name, time.Now(), len(paths), elapsed)
	}
}

// parseIdentify parses the "<name> <chunk_size>" identification payload.
func parseIdentify(s string) (string, int, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("expected \"<name> <chunk_size>\", got %q", s)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("chunk size must be a positive integer, got %q", fields[1])
	}
	return fields[0], n, nil
}

func (s *Server) reportPeriodically(period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for range t.C {
		s.reportOnce()
	}
}

// statsWindowSeconds is the trailing window used for the periodic
// files-per-second report.
const statsWindowSeconds = 60

func (s *Server) reportOnce() {
	now := time.Now()
	var aggregateRate float64
	var aggregateTotal int
	for _, name := range s.Stats.Names() {
		rate := s.Stats.ComputeRate(name, now, statsWindowSeconds)
		procs := s.Stats.Attached(name)
		s.Logger.Printf("client %s: procs=%d total_files=%d rate=%.2f/s", name, procs, rate.TotalFiles, rate.FilesPerSecond)
		aggregateRate += rate.FilesPerSecond
		aggregateTotal += rate.TotalFiles
	}
	s.Logger.Printf("aggregate: total_files=%d rate=%.2f/s", aggregateTotal, aggregateRate)
}
