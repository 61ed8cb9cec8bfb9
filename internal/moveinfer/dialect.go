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

package moveinfer

import "github.com/notnil/chess"

// EngineToLibrary rewrites a move string from the engine's native dialect
// (castling as king-to-rook-square, knight promotion implied by an
// omitted suffix) to the chess rules library's dialect (castling as
// king-moves-two-squares, every promotion suffix explicit). board is the
// position the move is about to be played on, always from the current
// side-to-move's perspective (so "e1" always refers to the mover's own
// king square thanks to the per-ply mirroring).
//
// The rewrite is idempotent on a move that is already in the library
// dialect: none of its three conditions can match such a string, so
// calling it on a move obtained from candidate-move matching (which is
// already library dialect) is harmless.
func EngineToLibrary(move string, board *chess.Board) string {
	if len(move) == 4 && move[1] == '7' && move[3] == '8' && pieceTypeAt(board, move[0:2]) == chess.Pawn {
		move += "n"
	}
	if move == "e1h1" && pieceTypeAt(board, "e1") == chess.King {
		move = "e1g1"
	}
	if move == "e1a1" && pieceTypeAt(board, "e1") == chess.King {
		move = "e1c1"
	}
	return move
}

// LibraryToEngine is the inverse of EngineToLibrary: it is used to map a
// move already pushed on the board (library dialect) back into the
// engine's move-index space via Lookup.
func LibraryToEngine(move string, board *chess.Board) string {
	if len(move) == 5 && move[4] == 'n' {
		move = move[:4]
	}
	if move == "e1g1" && pieceTypeAt(board, "e1") == chess.King {
		move = "e1h1"
	}
	if move == "e1c1" && pieceTypeAt(board, "e1") == chess.King {
		move = "e1a1"
	}
	return move
}

func pieceTypeAt(board *chess.Board, square string) chess.PieceType {
	sq := squareFromName(square)
	p := board.Piece(sq)
	return p.Type()
}

func squareFromName(name string) chess.Square {
	file := int(name[0] - 'a')
	rank := int(name[1] - '1')
	return chess.Square(rank*8 + file)
}
