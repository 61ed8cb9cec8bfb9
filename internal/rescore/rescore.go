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

// Package rescore implements the worker-side rescoring pipeline: it walks
// one gzipped V4 game file record by record, reconstructs the board,
// infers the move played between consecutive records, asks the analyzer
// for a fresh evaluation, and emits a rewritten game with updated score
// fields.
package rescore

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/notnil/chess"

	"github.com/lc0fleet/rescorer/internal/boarddecode"
	"github.com/lc0fleet/rescorer/internal/engine"
	"github.com/lc0fleet/rescorer/internal/moveinfer"
	"github.com/lc0fleet/rescorer/internal/v4"
)

// tablebaseCutoff is the piece count at or below which rescoring stops:
// the Syzygy tablebase region, treated as a hard stop (spec §3, §4.10).
const tablebaseCutoff = 5

// Options configures a single File call.
type Options struct {
	// Engine is the analyzer used to evaluate each position. If nil,
	// File runs in dry-run mode: it re-encodes every record unchanged
	// without requesting any evaluation.
	Engine *engine.Analyzer
	// Nodes is the per-position search node budget (default 1).
	Nodes int
}

// File rescales one gzip-compressed V4 game: it decompresses data,
// rewrites every record's score fields up to the tablebase cutoff, and
// returns the re-compressed result. A file that cannot be rescored yields
// a nil result and a non-nil error; rescoreclient turns that into the
// dispatch protocol's empty "give up on this file" payload.
func File(data []byte, opts Options) ([]byte, error) {
	raw, err := gunzip(data)
	if err != nil {
		return nil, fmt.Errorf("rescore: decompress: %w", err)
	}
	records := v4.Split(raw)
	if len(records) == 0 {
		return gzip2(nil)
	}

	game := chess.NewGame()
	var out bytes.Buffer

	i := 0
	for ; i+1 < len(records); i++ {
		cur, next := records[i], records[i+1]
		if len(game.Position().Board().SquareMap()) <= tablebaseCutoff {
			break
		}
		rewritten, err := step(game, cur, next.Planes, opts)
		if err != nil {
			return nil, err
		}
		out.Write(rewritten.Encode())
	}
	// the pairwise loop above leaves the final record unprocessed;
	// handle it as a single trailing call, guarded by the same cutoff
	// (spec §4.10: "handle it as a single trailing call to the same
	// rewriting logic").
	if i < len(records) && len(game.Position().Board().SquareMap()) > tablebaseCutoff {
		rewritten, err := scoreOnly(game, records[i], opts)
		if err != nil {
			return nil, err
		}
		out.Write(rewritten.Encode())
	}

	return gzip2(out.Bytes())
}

// step scores cur against the engine, infers the move played to reach
// next (described by nextPlanes), pushes it onto game, and mirrors the
// board, returning the rewritten record for cur.
func step(game *chess.Game, cur v4.Record, nextPlanes [104]uint64, opts Options) (v4.Record, error) {
	rewritten, _, err := scoreRecord(game, cur, opts)
	if err != nil {
		return v4.Record{}, err
	}

	pos := game.Position()
	nextPieces := boarddecode.Mirror(boarddecode.FromPlanes(nextPlanes))
	move, err := moveinfer.Infer(cur.Probs[:], pos, nextPieces)
	if err != nil {
		return v4.Record{}, err
	}
	libMove := moveinfer.EngineToLibrary(move, pos.Board())

	m, err := chess.UCINotation{}.Decode(pos, libMove)
	if err != nil {
		return v4.Record{}, fmt.Errorf("rescore: parsing move %q: %w", libMove, err)
	}
	if err := game.Move(m); err != nil {
		return v4.Record{}, fmt.Errorf("rescore: pushing move %q: %w", libMove, err)
	}
	mirrorGame(game)

	return rewritten, nil
}

// scoreOnly rewrites the final, trailing record of a game without
// attempting to infer or push a further move.
func scoreOnly(game *chess.Game, rec v4.Record, opts Options) (v4.Record, error) {
	rewritten, _, err := scoreRecord(game, rec, opts)
	return rewritten, err
}

// scoreRecord calls the analyzer (or leaves the record untouched in
// dry-run mode) and returns the rewritten record plus its new q value.
func scoreRecord(game *chess.Game, rec v4.Record, opts Options) (v4.Record, float64, error) {
	if opts.Engine == nil {
		return rec, 0, nil
	}
	fen := game.Position().String()
	nodes := opts.Nodes
	if nodes <= 0 {
		nodes = 1
	}
	q, err := opts.Engine.Analyse(fen, nodes)
	if err != nil {
		return v4.Record{}, 0, fmt.Errorf("rescore: analyse: %w", err)
	}

	out := rec
	out.RootQ = float32(q)
	out.BestQ = float32(q)
	if nodes > 1 {
		if err := applyMultiPV(game, &out, opts.Engine, nodes); err != nil {
			return v4.Record{}, 0, err
		}
	}
	return out, q, nil
}

// applyMultiPV retrieves up to ceil(N/2) principal variations and
// rewrites probs as visits_i / (sum_visits + B), with the booster
// B = ceil(N/0.7) - N. B is added to the denominator only: the move
// played in the game is not known here, so no entry's visit count is
// boosted, and best_d is left unchanged.
func applyMultiPV(game *chess.Game, rec *v4.Record, an *engine.Analyzer, nodes int) error {
	multiPV := (nodes + 1) / 2
	fen := game.Position().String()
	pvs, err := an.AnalysePV(fen, nodes, multiPV)
	if err != nil {
		return fmt.Errorf("rescore: multipv analyse: %w", err)
	}

	boost := int(math.Ceil(float64(nodes)/0.7)) - nodes

	var probs [v4.NumMoves]float32
	for i := range probs {
		probs[i] = float32(math.NaN())
	}

	board := game.Position().Board()
	totalVisits := 0
	for _, pv := range pvs {
		idx, ok := moveinfer.Lookup[moveinfer.LibraryToEngine(pv.Move, board)]
		if !ok {
			continue
		}
		visits := pv.Visits
		totalVisits += visits
		probs[idx] = float32(visits)
	}
	totalVisits += boost

	if totalVisits > 0 {
		for i := range probs {
			if !math.IsNaN(float64(probs[i])) {
				probs[i] = probs[i] / float32(totalVisits)
			}
		}
	}
	rec.Probs = probs
	return nil
}

// mirrorGame rebuilds game's current position mirrored (swap colors,
// reflect ranks), keeping the rescorer's side-to-move-is-white
// convention. notnil/chess has no built-in mirror, so the position is
// reconstructed from its mirrored piece map and re-pushed as a fresh
// game rooted at the mirrored FEN. Castling rights are mirrored along
// with the pieces (color swapped, kingside/queenside unchanged since the
// mirror only reflects ranks, not files) rather than dropped, so a
// castling move later in the game remains legal to the rules library and
// therefore inferable.
func mirrorGame(game *chess.Game) {
	pos := game.Position()
	mirrored := boarddecode.Mirror(pos.Board().SquareMap())
	rights := mirrorCastleRights(pos.CastleRights())
	fen := placementFEN(mirrored, rights)
	opt, err := chess.FEN(fen)
	if err != nil {
		// the mirrored placement is always a valid piece arrangement;
		// a FEN parse failure here would be a programming error.
		panic(fmt.Sprintf("rescore: mirrored FEN %q rejected: %v", fen, err))
	}
	*game = *chess.NewGame(opt)
}

// mirrorCastleRights swaps the color of each castling right (white's
// rights become black's and vice versa), leaving kingside/queenside
// untouched, matching the color-swap half of boarddecode.Mirror.
func mirrorCastleRights(cr chess.CastleRights) string {
	var b strings.Builder
	if cr.CanCastle(chess.Black, chess.KingSide) {
		b.WriteByte('K')
	}
	if cr.CanCastle(chess.Black, chess.QueenSide) {
		b.WriteByte('Q')
	}
	if cr.CanCastle(chess.White, chess.KingSide) {
		b.WriteByte('k')
	}
	if cr.CanCastle(chess.White, chess.QueenSide) {
		b.WriteByte('q')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

func placementFEN(pieces map[chess.Square]chess.Piece, castleRights string) string {
	board := chess.NewBoard(pieces)
	return fmt.Sprintf("%s w %s - 0 1", board.String(), castleRights)
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzip2(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
