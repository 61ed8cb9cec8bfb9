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

// Package engine drives a UCI chess engine subprocess (the analyzer
// treated as an opaque external collaborator): it starts the process,
// speaks the UCI handshake over stdin/stdout, and issues bounded-node
// searches, optionally with multiple principal variations.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// MateCentipawns is the centipawn value substituted for a reported mate
// score before normalization, matching the sign of the side to move's
// advantage: a mate is scored as ±100 before the division by 10000.
const MateCentipawns = 100

// PV is one principal variation returned by a multi-PV search: the first
// move of the line, in the engine's native UCI dialect, and the number of
// search visits spent on it.
type PV struct {
	Move   string
	Visits int
}

// Analyzer is a running UCI engine subprocess.
type Analyzer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	mu sync.Mutex
}

// Start launches path as a UCI engine, optionally loading weights and
// selecting a backend/GPU via engine-specific UCI options, and performs
// the uci/isready handshake.
func Start(path string, options map[string]string) (*Analyzer, error) {
	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("engine: start %s: %w", path, err)
	}

	a := &Analyzer{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
	}
	a.stdout.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if err := a.send("uci"); err != nil {
		return nil, err
	}
	if err := a.waitFor("uciok"); err != nil {
		return nil, err
	}
	for name, value := range options {
		if err := a.send(fmt.Sprintf("setoption name %s value %s", name, value)); err != nil {
			return nil, err
		}
	}
	if err := a.send("isready"); err != nil {
		return nil, err
	}
	if err := a.waitFor("readyok"); err != nil {
		return nil, err
	}
	if err := a.send("ucinewgame"); err != nil {
		return nil, err
	}
	return a, nil
}

// Close terminates the engine subprocess.
func (a *Analyzer) Close() error {
	a.stdin.Close()
	return a.cmd.Wait()
}

func (a *Analyzer) send(line string) error {
	_, err := io.WriteString(a.stdin, line+"\n")
	return err
}

func (a *Analyzer) waitFor(token string) error {
	for a.stdout.Scan() {
		if strings.Contains(a.stdout.Text(), token) {
			return nil
		}
	}
	if err := a.stdout.Err(); err != nil {
		return fmt.Errorf("engine: waiting for %q: %w", token, err)
	}
	return fmt.Errorf("engine: process exited before sending %q", token)
}

// Analyse evaluates fen with a node budget of nodes (default 1 when
// nodes <= 0) and returns the score, normalized to the [-1,1]-ish `q`
// scale (score_centipawns / 10000, mate scored at ±MateCentipawns first).
func (a *Analyzer) Analyse(fen string, nodes int) (float64, error) {
	lines, err := a.search(fen, nodes, 1)
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("engine: no score reported for position %s", fen)
	}
	return lines[0].centipawns / 10000, nil
}

// AnalysePV runs a node-budgeted search requesting up to multiPV
// principal variations and returns each line's first move and visit
// count, ordered by the engine's own multipv ranking.
func (a *Analyzer) AnalysePV(fen string, nodes, multiPV int) ([]PV, error) {
	lines, err := a.search(fen, nodes, multiPV)
	if err != nil {
		return nil, err
	}
	pvs := make([]PV, 0, len(lines))
	for _, l := range lines {
		if l.move == "" {
			continue
		}
		pvs = append(pvs, PV{Move: l.move, Visits: l.nodes})
	}
	return pvs, nil
}

type pvLine struct {
	centipawns float64
	move       string
	nodes      int
}

func (a *Analyzer) search(fen string, nodes, multiPV int) ([]pvLine, error) {
	if nodes <= 0 {
		nodes = 1
	}
	if multiPV <= 0 {
		multiPV = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.send(fmt.Sprintf("setoption name MultiPV value %d", multiPV)); err != nil {
		return nil, err
	}
	if err := a.send("position fen " + fen); err != nil {
		return nil, err
	}
	if err := a.send(fmt.Sprintf("go nodes %d", nodes)); err != nil {
		return nil, err
	}

	byIndex := make(map[int]pvLine)
	for a.stdout.Scan() {
		line := a.stdout.Text()
		if strings.HasPrefix(line, "bestmove") {
			break
		}
		if strings.HasPrefix(line, "info") {
			idx, pv, ok := parseInfo(line)
			if ok {
				byIndex[idx] = pv
			}
		}
	}
	if err := a.stdout.Err(); err != nil {
		return nil, fmt.Errorf("engine: reading search output: %w", err)
	}

	out := make([]pvLine, multiPV)
	for i := 1; i <= multiPV; i++ {
		out[i-1] = byIndex[i]
	}
	return out, nil
}

// parseInfo extracts the multipv index, score, move and node count from a
// UCI "info ..." line. A line without a "score" is ignored (ok == false);
// "multipv" defaults to 1 when the engine doesn't report it (single-PV
// mode).
func parseInfo(line string) (int, pvLine, bool) {
	fields := strings.Fields(line)
	var pv pvLine
	idx := 1
	sawScore := false
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "multipv":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil {
					idx = n
				}
			}
		case "score":
			if i+2 < len(fields) {
				switch fields[i+1] {
				case "cp":
					if n, err := strconv.Atoi(fields[i+2]); err == nil {
						pv.centipawns = float64(n)
						sawScore = true
					}
				case "mate":
					if n, err := strconv.Atoi(fields[i+2]); err == nil {
						if n < 0 {
							pv.centipawns = -MateCentipawns
						} else {
							pv.centipawns = MateCentipawns
						}
						sawScore = true
					}
				}
			}
		case "nodes":
			if i+1 < len(fields) {
				if n, err := strconv.Atoi(fields[i+1]); err == nil {
					pv.nodes = n
				}
			}
		case "pv":
			if i+1 < len(fields) {
				pv.move = fields[i+1]
			}
		}
	}
	return idx, pv, sawScore
}
