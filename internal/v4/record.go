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

// Package v4 packs and unpacks the fixed-size V4 training record used by
// self-play games: a policy vector, a board-plane encoding, castling and
// game-state flags, and score fields. The layout is externally defined by
// the self-play engine and must round-trip byte-identically on untouched
// fields; this package never interprets the chess semantics of a record,
// only its wire layout. See package boarddecode and moveinfer for that.
package v4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// NumMoves is the length of the policy vector: one probability per
	// entry in the engine's move-index table (package moveinfer).
	NumMoves = 1858
	// numPlaneWords is the number of uint64 bitboards packed into the
	// planes field (104 planes of 8 bytes each = 832 bytes).
	numPlaneWords = 104
)

// Bytes is the exact encoded size, in bytes, of one V4 record.
const Bytes = 4 + NumMoves*4 + numPlaneWords*8 + 4 + 1 + 1 + 1 + 1 + 4 + 4 + 4 + 4

// Record is one fixed-width training sample: a snapshot of a single
// position during a self-play game, before or after rescoring.
type Record struct {
	Version uint32
	Probs   [NumMoves]float32
	Planes  [numPlaneWords]uint64

	UsOO, UsOOO     uint8
	ThemOO, ThemOOO uint8

	STM          uint8
	Rule50Count  uint8
	MoveCount    uint8
	Winner       int8
	RootQ, BestQ float32
	RootD, BestD float32
}

// Decode unpacks exactly Bytes bytes into a Record. It returns an error if b
// is not exactly Bytes long.
func Decode(b []byte) (Record, error) {
	if len(b) != Bytes {
		return Record{}, fmt.Errorf("v4: record must be exactly %d bytes, got %d", Bytes, len(b))
	}
	var r Record
	rd := bytes.NewReader(b)
	for _, field := range []any{
		&r.Version, &r.Probs, &r.Planes,
		&r.UsOO, &r.UsOOO, &r.ThemOO, &r.ThemOOO,
		&r.STM, &r.Rule50Count, &r.MoveCount, &r.Winner,
		&r.RootQ, &r.BestQ, &r.RootD, &r.BestD,
	} {
		if err := binary.Read(rd, binary.LittleEndian, field); err != nil {
			return Record{}, fmt.Errorf("v4: decode: %w", err)
		}
	}
	return r, nil
}

// Encode packs r into exactly Bytes bytes.
func (r Record) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, Bytes))
	for _, field := range []any{
		r.Version, r.Probs, r.Planes,
		r.UsOO, r.UsOOO, r.ThemOO, r.ThemOOO,
		r.STM, r.Rule50Count, r.MoveCount, r.Winner,
		r.RootQ, r.BestQ, r.RootD, r.BestD,
	} {
		// Bytes is computed from the same field list above, so a
		// binary.Write error here (other than an unsupported type,
		// which would be a programming error) cannot happen.
		if err := binary.Write(buf, binary.LittleEndian, field); err != nil {
			panic(fmt.Sprintf("v4: encode: %v", err))
		}
	}
	out := buf.Bytes()
	if len(out) != Bytes {
		panic(fmt.Sprintf("v4: encoded %d bytes, want %d", len(out), Bytes))
	}
	return out
}

// Split decodes data into consecutive Bytes-sized records. A trailing
// partial record, if any, is silently discarded (spec.md §4.7, §7).
func Split(data []byte) []Record {
	n := len(data) / Bytes
	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := Decode(data[i*Bytes : (i+1)*Bytes])
		if err != nil {
			// Decode only fails on a length mismatch, which cannot
			// happen here since each slice is exactly Bytes long.
			continue
		}
		recs = append(recs, rec)
	}
	return recs
}
