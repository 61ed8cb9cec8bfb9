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

// Package clientstats tracks windowed files-per-second throughput per
// client identity, along with a monotonic total and an attached-connection
// count.
package clientstats

import (
	"sync"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// maxWindow bounds how many (timestamp, n, elapsed) entries are retained
// per client; older entries are evicted.
const maxWindow = 100

// entry is one reported batch: n files processed over elapsed seconds,
// completing at t.
type entry struct {
	t       time.Time
	n       int
	elapsed time.Duration
}

// clientState is the per-client sliding window plus running totals.
type clientState struct {
	window   []entry // newest-last
	total    int
	attached int
}

// Rate is the result of a windowed throughput computation.
type Rate struct {
	FilesPerSecond float64
	TotalFiles     int
}

// Registry holds per-client stats for every client identity seen by a
// dispatch server.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientState
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*clientState)}
}

// Attach registers a new connection for name, incrementing its
// attached-connection count.
func (r *Registry) Attach(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(name).attached++
}

// Detach decrements name's attached-connection count, e.g. on disconnect.
func (r *Registry) Detach(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.state(name)
	if c.attached > 0 {
		c.attached--
	}
}

// Record appends a completed batch for name: n files produced in elapsed
// time, finishing at t.
func (r *Registry) Record(name string, t time.Time, n int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.state(name)
	c.window = append(c.window, entry{t: t, n: n, elapsed: elapsed})
	if len(c.window) > maxWindow {
		c.window = c.window[len(c.window)-maxWindow:]
	}
	c.total += n
}

func (r *Registry) state(name string) *clientState {
	c, ok := r.clients[name]
	if !ok {
		c = &clientState{}
		r.clients[name] = c
	}
	return c
}

// ComputeRate returns the windowed throughput for name as of now, over the
// trailing windowSeconds, plus the all-time total file count.
//
// Entries are scanned newest-first. An entry that completed before the
// window began is ignored and the scan stops (older entries are strictly
// older still). An entry that started before the window began but finished
// inside it contributes proportionally: n * (t - cutoff) / elapsed. Every
// other entry contributes n in full.
func (r *Registry) ComputeRate(name string, now time.Time, windowSeconds float64) Rate {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[name]
	if !ok {
		return Rate{}
	}
	cutoff := now.Add(-time.Duration(windowSeconds * float64(time.Second)))
	var sum float64
	for i := len(c.window) - 1; i >= 0; i-- {
		e := c.window[i]
		if e.t.Before(cutoff) {
			break
		}
		started := e.t.Add(-e.elapsed)
		if started.Before(cutoff) && e.elapsed > 0 {
			frac := e.t.Sub(cutoff).Seconds() / e.elapsed.Seconds()
			sum += float64(e.n) * frac
		} else {
			sum += float64(e.n)
		}
	}
	return Rate{
		FilesPerSecond: sum / windowSeconds,
		TotalFiles:     c.total,
	}
}

// Attached returns the number of currently-attached connections for name.
func (r *Registry) Attached(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[name]
	if !ok {
		return 0
	}
	return c.attached
}

// Names returns a sorted snapshot of every client name the registry has
// seen, suitable for deterministic periodic reporting.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := maps.Keys(r.clients)
	slices.Sort(names)
	return names
}
