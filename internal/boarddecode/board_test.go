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

package boarddecode

import (
	"testing"

	"github.com/notnil/chess"
)

// wireBit computes the plane bit index for (rank, file) the way the
// reference decoder's wire format actually packs it: rank k occupies
// byte k of the plane (bits [8k, 8k+7] once assembled little-endian, see
// v4.Record), and within that byte np.unpackbits' default big bitorder
// reads bits MSB-first, so file f sits at LSB-first bit position 7-f.
// This is written independently of boarddecode's own bitToSquare so the
// test can catch a regression in either formula, not just agree with
// whatever FromPlanes currently does.
func wireBit(rank, file int) uint64 {
	return 1 << uint(rank*8+(7-file))
}

func startingPlanes() [104]uint64 {
	var planes [104]uint64
	// own (white) pieces: plane order pawn, knight, bishop, rook, queen, king
	// rank 0 = rank 1, file 0..7 = a..h
	for file := 0; file < 8; file++ {
		planes[0] |= wireBit(1, file) // pawns on rank 2
	}
	planes[1] = wireBit(0, 1) | wireBit(0, 6) // knights b1, g1
	planes[2] = wireBit(0, 2) | wireBit(0, 5) // bishops c1, f1
	planes[3] = wireBit(0, 0) | wireBit(0, 7) // rooks a1, h1
	planes[4] = wireBit(0, 3)                 // queen d1
	planes[5] = wireBit(0, 4)                 // king e1
	// opponent (black) pieces, on ranks 7/8
	for file := 0; file < 8; file++ {
		planes[6] |= wireBit(6, file) // pawns on rank 7
	}
	planes[7] = wireBit(7, 1) | wireBit(7, 6) // knights b8, g8
	planes[8] = wireBit(7, 2) | wireBit(7, 5) // bishops c8, f8
	planes[9] = wireBit(7, 0) | wireBit(7, 7) // rooks a8, h8
	planes[10] = wireBit(7, 3)                // queen d8
	planes[11] = wireBit(7, 4)                // king e8
	return planes
}

func TestFromPlanesStartingPosition(t *testing.T) {
	pieces := FromPlanes(startingPlanes())
	if len(pieces) != 32 {
		t.Fatalf("got %d pieces, want 32", len(pieces))
	}
	if p := pieces[chess.E1]; p.Type() != chess.King || p.Color() != chess.White {
		t.Fatalf("e1 = %v, want white king", p)
	}
	if p := pieces[chess.E8]; p.Type() != chess.King || p.Color() != chess.Black {
		t.Fatalf("e8 = %v, want black king", p)
	}
	// d1/d8 are the queen, not the king: king and queen sit on
	// asymmetric files (e vs d), so unlike the rook/bishop/knight pairs
	// this is the pair that actually catches a reversed file mapping.
	if p := pieces[chess.D1]; p.Type() != chess.Queen || p.Color() != chess.White {
		t.Fatalf("d1 = %v, want white queen", p)
	}
	if p := pieces[chess.D8]; p.Type() != chess.Queen || p.Color() != chess.Black {
		t.Fatalf("d8 = %v, want black queen", p)
	}
	if p := pieces[chess.A1]; p.Type() != chess.Rook || p.Color() != chess.White {
		t.Fatalf("a1 = %v, want white rook", p)
	}
	if p := pieces[chess.H1]; p.Type() != chess.Rook || p.Color() != chess.White {
		t.Fatalf("h1 = %v, want white rook", p)
	}
}

func TestMirrorRoundTrip(t *testing.T) {
	pieces := FromPlanes(startingPlanes())
	mirrored := Mirror(pieces)
	back := Mirror(mirrored)
	if !Equal(pieces, back) {
		t.Fatal("mirroring twice did not return to the original placement")
	}
	// e1 (white king) mirrors to e8 as a black king.
	p, ok := mirrored[chess.E8]
	if !ok || p.Type() != chess.King || p.Color() != chess.Black {
		t.Fatalf("mirrored e8 = %v, ok=%v, want black king", p, ok)
	}
}

func TestEqual(t *testing.T) {
	a := FromPlanes(startingPlanes())
	b := FromPlanes(startingPlanes())
	if !Equal(a, b) {
		t.Fatal("identical placements compared unequal")
	}
	delete(b, chess.A1)
	if Equal(a, b) {
		t.Fatal("differing placements compared equal")
	}
}
