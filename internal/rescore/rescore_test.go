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

package rescore

import (
	"math"
	"testing"

	"github.com/notnil/chess"

	"github.com/lc0fleet/rescorer/internal/boarddecode"
	"github.com/lc0fleet/rescorer/internal/moveinfer"
	"github.com/lc0fleet/rescorer/internal/v4"
)

// encodePlanes is the test-local inverse of boarddecode.FromPlanes: own
// pieces on planes 0-5, opponent on planes 6-11, each in pawn, knight,
// bishop, rook, queen, king order. The bit position within a plane is
// derived independently from boarddecode's bitToSquare (per
// rescore_logic.py's convert_planes / np.unpackbits default big
// bitorder: byte k is rank k, and within that byte bits are MSB-first,
// so file f sits at LSB-first position 7-f) rather than by calling it,
// so a regression in the production formula doesn't also silently break
// the fixtures meant to catch it.
func encodePlanes(pieces map[chess.Square]chess.Piece) [104]uint64 {
	order := []chess.PieceType{chess.Pawn, chess.Knight, chess.Bishop, chess.Rook, chess.Queen, chess.King}
	var planes [104]uint64
	for sq, p := range pieces {
		var base int
		if p.Color() == chess.White {
			base = 0
		} else {
			base = 6
		}
		rank, file := int(sq)/8, int(sq)%8
		bit := rank*8 + (7 - file)
		for i, pt := range order {
			if pt == p.Type() {
				planes[base+i] |= 1 << uint(bit)
			}
		}
	}
	return planes
}

func newOneHotRecord(t *testing.T, move string, planes [104]uint64) v4.Record {
	t.Helper()
	idx, ok := moveinfer.Lookup[move]
	if !ok {
		t.Fatalf("move %q not in Moves table", move)
	}
	var rec v4.Record
	rec.Version = 4
	for i := range rec.Probs {
		rec.Probs[i] = float32(math.NaN())
	}
	rec.Probs[idx] = 1
	rec.Planes = planes
	return rec
}

// newNonOneHotRecord builds a record whose probs vector is deliberately
// not one-hot (two positive entries), forcing moveinfer.Infer down its
// board-diff fallback path instead of the one-hot argmax shortcut
// (spec §4.10.4, testable property S5).
func newNonOneHotRecord(planes [104]uint64) v4.Record {
	var rec v4.Record
	rec.Version = 4
	for i := range rec.Probs {
		rec.Probs[i] = float32(math.NaN())
	}
	rec.Probs[0] = 0.5
	rec.Probs[1] = 0.5
	rec.Planes = planes
	return rec
}

func TestFileNonOneHotProbsInfersMoveByBoardDiff(t *testing.T) {
	pos0 := chess.NewGame().Position()
	m, err := chess.UCINotation{}.Decode(pos0, "e2e4")
	if err != nil {
		t.Fatalf("decoding e2e4: %v", err)
	}
	pos1 := pos0.Update(m)

	current := newNonOneHotRecord(encodePlanes(pos0.Board().SquareMap()))
	next := newNonOneHotRecord(encodePlanes(boarddecode.Mirror(pos1.Board().SquareMap())))

	raw := append(current.Encode(), next.Encode()...)
	compressed, err := gzip2(raw)
	if err != nil {
		t.Fatalf("gzip2: %v", err)
	}

	out, err := File(compressed, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	decoded, err := gunzip(out)
	if err != nil {
		t.Fatalf("gunzip result: %v", err)
	}
	if len(decoded) != 2*v4.Bytes {
		t.Fatalf("got %d bytes, want %d (two records)", len(decoded), 2*v4.Bytes)
	}
}

func TestFileDryRunTwoRecordGame(t *testing.T) {
	pos0 := chess.NewGame().Position()
	m, err := chess.UCINotation{}.Decode(pos0, "e2e4")
	if err != nil {
		t.Fatalf("decoding e2e4: %v", err)
	}
	pos1 := pos0.Update(m)

	current := newOneHotRecord(t, "e2e4", encodePlanes(pos0.Board().SquareMap()))
	next := newOneHotRecord(t, "e7e5", encodePlanes(boarddecode.Mirror(pos1.Board().SquareMap())))

	raw := append(current.Encode(), next.Encode()...)
	compressed, err := gzip2(raw)
	if err != nil {
		t.Fatalf("gzip2: %v", err)
	}

	out, err := File(compressed, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	decoded, err := gunzip(out)
	if err != nil {
		t.Fatalf("gunzip result: %v", err)
	}
	if len(decoded) != 2*v4.Bytes {
		t.Fatalf("got %d bytes, want %d (two records)", len(decoded), 2*v4.Bytes)
	}
}

// TestMirrorGamePreservesCastlingRights guards against the regression
// where mirrorGame rebuilt the tracked position from a FEN that
// hardcoded the castling field to "-", permanently discarding rights on
// the very first mirrored ply (DESIGN.md Open Question (a)).
func TestMirrorGamePreservesCastlingRights(t *testing.T) {
	// white: kingside only. black: queenside only.
	opt, err := chess.FEN("r3k2r/8/8/8/8/8/8/R3K2R w Kq - 0 1")
	if err != nil {
		t.Fatalf("FEN: %v", err)
	}
	game := chess.NewGame(opt)

	mirrorGame(game)

	rights := game.Position().CastleRights()
	// old white kingside (K) -> new black kingside (k)
	if !rights.CanCastle(chess.Black, chess.KingSide) {
		t.Error("expected black kingside right to survive the mirror (was white K)")
	}
	if rights.CanCastle(chess.Black, chess.QueenSide) {
		t.Error("black should not have queenside rights after the mirror")
	}
	// old black queenside (q) -> new white queenside (Q)
	if !rights.CanCastle(chess.White, chess.QueenSide) {
		t.Error("expected white queenside right to survive the mirror (was black q)")
	}
	if rights.CanCastle(chess.White, chess.KingSide) {
		t.Error("white should not have kingside rights after the mirror")
	}
}

func TestFileEmptyGameYieldsEmptyOutput(t *testing.T) {
	compressed, err := gzip2(nil)
	if err != nil {
		t.Fatalf("gzip2: %v", err)
	}
	out, err := File(compressed, Options{})
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	decoded, err := gunzip(out)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("got %d bytes, want 0", len(decoded))
	}
}
