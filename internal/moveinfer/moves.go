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

// Package moveinfer recovers the move played between two consecutive V4
// records, either by reading it directly off a one-hot probability vector
// or by matching candidate legal moves against the next record's decoded
// board, and translates between the engine's and the chess rules
// library's UCI dialects.
package moveinfer

import "fmt"

type direction struct{ df, dr int }

var queenDirections = []direction{
	{0, 1}, {0, -1}, {1, 0}, {-1, 0},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

var knightDeltas = []direction{
	{1, 2}, {2, 1}, {2, -1}, {1, -2},
	{-1, -2}, {-2, -1}, {-2, 1}, {-1, 2},
}

// underpromotion pieces are the explicit suffixes the engine dialect
// writes; knight promotion is the implied default and never gets a
// suffix in the engine dialect (see EngineToLibrary in dialect.go).
var underpromotionPieces = []byte{'q', 'r', 'b'}

// Moves is the engine's move-index table: Moves[i] is the engine-dialect
// UCI string for policy index i. It is built once at init time rather
// than hardcoded, by enumerating every queen-like slide, every knight
// jump, and every underpromotion from every square, in a fixed order.
var Moves []string

// Lookup maps an engine-dialect UCI string back to its index in Moves.
var Lookup map[string]int

func init() {
	Moves = buildMoves()
	Lookup = make(map[string]int, len(Moves))
	for i, m := range Moves {
		Lookup[m] = i
	}
}

func buildMoves() []string {
	var moves []string

	for from := 0; from < 64; from++ {
		ff, fr := from%8, from/8
		for _, d := range queenDirections {
			for dist := 1; dist <= 7; dist++ {
				tf, tr := ff+d.df*dist, fr+d.dr*dist
				if tf < 0 || tf > 7 || tr < 0 || tr > 7 {
					break
				}
				moves = append(moves, uciMove(ff, fr, tf, tr, 0))
			}
		}
	}

	for from := 0; from < 64; from++ {
		ff, fr := from%8, from/8
		for _, d := range knightDeltas {
			tf, tr := ff+d.df, fr+d.dr
			if tf < 0 || tf > 7 || tr < 0 || tr > 7 {
				continue
			}
			moves = append(moves, uciMove(ff, fr, tf, tr, 0))
		}
	}

	// underpromotions: pawn on rank 7 (index 6) advancing to rank 8,
	// straight or capturing diagonally, promoting to q, r, or b (knight
	// promotion is implied by the plain 4-character form and belongs to
	// the queen-like enumeration above via the single-step forward or
	// diagonal slide, not listed again here).
	for ff := 0; ff < 8; ff++ {
		for _, df := range []int{-1, 0, 1} {
			tf := ff + df
			if tf < 0 || tf > 7 {
				continue
			}
			for _, pc := range underpromotionPieces {
				moves = append(moves, uciMove(ff, 6, tf, 7, pc))
			}
		}
	}

	return moves
}

func uciMove(ff, fr, tf, tr int, promo byte) string {
	s := fmt.Sprintf("%c%d%c%d", 'a'+ff, fr+1, 'a'+tf, tr+1)
	if promo != 0 {
		s += string(promo)
	}
	return s
}
