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

// Package boarddecode rebuilds a board position from a V4 record's plane
// field and implements the color/rank mirroring that keeps the rescorer's
// tracked board always "white to move". Legal-move enumeration, FEN
// parsing, and move application are delegated to the chess rules library;
// this package is concerned only with the plane<->piece-map mapping and
// the mirror transform.
package boarddecode

import "github.com/notnil/chess"

// ownPieces and oppPieces give the piece type encoded by each of the first
// 12 planes, in order: the side-to-move's pieces first, then the
// opponent's. This matches the convention used throughout the pipeline
// that a decoded board always has the side-to-move as white, so "own"
// decodes to White and "opponent" decodes to Black.
var ownPieces = [6]chess.PieceType{
	chess.Pawn, chess.Knight, chess.Bishop, chess.Rook, chess.Queen, chess.King,
}

var oppPieces = [6]chess.PieceType{
	chess.Pawn, chess.Knight, chess.Bishop, chess.Rook, chess.Queen, chess.King,
}

// numPiecePlanes is the count of the leading planes that encode piece
// placement; the remaining planes (history, repetition counters, etc.)
// are not needed to reconstruct a single position's piece map.
const numPiecePlanes = 12

// FromPlanes decodes the leading 12 of the record's 104 bitboard planes
// into a square->piece map. Each plane is 8 raw wire bytes, byte k giving
// rank k; the reference decoder (rescore_logic.py's convert_planes, via
// np.unpackbits with its default big bitorder) reads each byte's bits
// MSB-first, so bit position p (0 = LSB .. 7 = MSB) within byte k is file
// 7-p, not file p. A plane word is assembled little-endian (see
// v4.Decode), so within the uint64 bit index i, byte k occupies
// bits [8k, 8k+7] with p = i%8 counted from that byte's LSB.
func FromPlanes(planes [104]uint64) map[chess.Square]chess.Piece {
	out := make(map[chess.Square]chess.Piece)
	for i := 0; i < numPiecePlanes; i++ {
		var pt chess.PieceType
		var color chess.Color
		if i < 6 {
			pt, color = ownPieces[i], chess.White
		} else {
			pt, color = oppPieces[i-6], chess.Black
		}
		bits := planes[i]
		for bits != 0 {
			bit := trailingZeros64(bits)
			bits &= bits - 1
			out[bitToSquare(bit)] = chess.NewPiece(pt, color)
		}
	}
	return out
}

// bitToSquare converts a plane's little-endian bit index into the square
// it encodes, reversing the bit's position within its rank byte to match
// the reference decoder's MSB-first file order.
func bitToSquare(bit int) chess.Square {
	rank := bit / 8
	p := bit % 8
	file := 7 - p
	return chess.Square(rank*8 + file)
}

func trailingZeros64(v uint64) int {
	n := 0
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}

// Mirror swaps piece colors and reflects every square across the board's
// horizontal midline (rank r -> rank 9-r, file unchanged). This is the
// transform applied after each half-move to keep the tracked board's
// side-to-move always "white" (spec: board reconstruction & mirroring).
func Mirror(m map[chess.Square]chess.Piece) map[chess.Square]chess.Piece {
	out := make(map[chess.Square]chess.Piece, len(m))
	for sq, p := range m {
		out[mirrorSquare(sq)] = mirrorPiece(p)
	}
	return out
}

func mirrorSquare(sq chess.Square) chess.Square {
	file := int(sq) % 8
	rank := int(sq) / 8
	mirroredRank := 7 - rank
	return chess.Square(mirroredRank*8 + file)
}

func mirrorPiece(p chess.Piece) chess.Piece {
	if p.Color() == chess.White {
		return chess.NewPiece(p.Type(), chess.Black)
	}
	return chess.NewPiece(p.Type(), chess.White)
}

// Board builds a *chess.Board out of a decoded piece map, suitable for
// comparison against the piece map produced by pushing a candidate move
// on a chess.Position (see package moveinfer).
func Board(pieces map[chess.Square]chess.Piece) *chess.Board {
	return chess.NewBoard(pieces)
}

// Equal reports whether two piece maps describe the same placement. Both
// notnil/chess's Board.SquareMap and FromPlanes omit empty squares, so
// this is a direct map comparison.
func Equal(a, b map[chess.Square]chess.Piece) bool {
	if len(a) != len(b) {
		return false
	}
	for sq, pa := range a {
		pb, ok := b[sq]
		if !ok || pa != pb {
			return false
		}
	}
	return true
}
