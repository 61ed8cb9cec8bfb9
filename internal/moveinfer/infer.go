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

import (
	"fmt"

	"github.com/notnil/chess"

	"github.com/lc0fleet/rescorer/internal/boarddecode"
	"github.com/lc0fleet/rescorer/internal/v4"
)

// Infer recovers the move played from the position pos to whatever
// position produced nextPieces (already mirrored to the rescorer's
// white-to-move convention, per package boarddecode).
//
// If probs is a one-hot policy vector, the move is read directly off it
// via the Moves table, in the engine's dialect. Otherwise every legal move from pos is tried in
// turn; the first one whose resulting piece map equals nextPieces is
// returned, in the chess rules library's dialect. If none matches, an
// error is returned carrying the position's FEN for diagnostics.
func Infer(probs []float32, pos *chess.Position, nextPieces map[chess.Square]chess.Piece) (string, error) {
	if v4.IsOneHot(probs) {
		idx := v4.ArgmaxIgnoringNaN(probs)
		if idx < 0 || idx >= len(Moves) {
			return "", fmt.Errorf("moveinfer: one-hot argmax index %d out of range", idx)
		}
		return Moves[idx], nil
	}

	notation := chess.UCINotation{}
	for _, mv := range pos.ValidMoves() {
		next := pos.Update(mv)
		if boarddecode.Equal(next.Board().SquareMap(), nextPieces) {
			return notation.Encode(pos, mv), nil
		}
	}
	return "", fmt.Errorf("moveinfer: could not infer move from board %s", pos.String())
}
