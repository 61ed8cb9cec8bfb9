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

package v4

import (
	"bytes"
	"math"
	"testing"
)

func sampleRecord() Record {
	var r Record
	r.Version = 4
	for i := range r.Probs {
		r.Probs[i] = float32(math.NaN())
	}
	r.Probs[12] = 1
	for i := range r.Planes {
		r.Planes[i] = uint64(i) * 0x0101010101010101
	}
	r.UsOO, r.UsOOO, r.ThemOO, r.ThemOOO = 1, 0, 1, 1
	r.STM = 0
	r.Rule50Count = 3
	r.MoveCount = 21
	r.Winner = -1
	r.RootQ, r.BestQ = 0.25, 0.5
	r.RootD, r.BestD = 0.1, 0.2
	return r
}

func TestRoundTrip(t *testing.T) {
	want := sampleRecord()
	b := want.Encode()
	if len(b) != Bytes {
		t.Fatalf("Encode produced %d bytes, want %d", len(b), Bytes)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Version != want.Version || got.Planes != want.Planes ||
		got.UsOO != want.UsOO || got.UsOOO != want.UsOOO ||
		got.ThemOO != want.ThemOO || got.ThemOOO != want.ThemOOO ||
		got.STM != want.STM || got.Rule50Count != want.Rule50Count ||
		got.MoveCount != want.MoveCount || got.Winner != want.Winner ||
		got.RootQ != want.RootQ || got.BestQ != want.BestQ ||
		got.RootD != want.RootD || got.BestD != want.BestD {
		t.Fatalf("round trip mismatch on scalar fields:\ngot  %+v\nwant %+v", got, want)
	}
	for i := range want.Probs {
		gv, wv := got.Probs[i], want.Probs[i]
		if isNaN32(wv) {
			if !isNaN32(gv) {
				t.Fatalf("Probs[%d] = %v, want NaN", i, gv)
			}
			continue
		}
		if gv != wv {
			t.Fatalf("Probs[%d] = %v, want %v", i, gv, wv)
		}
	}
	// re-encoding the decoded record must reproduce the exact same bytes.
	if !bytes.Equal(got.Encode(), b) {
		t.Fatal("re-encoding the decoded record did not reproduce the original bytes")
	}
}

func TestDecodeWrongLength(t *testing.T) {
	if _, err := Decode(make([]byte, Bytes-1)); err == nil {
		t.Fatal("Decode accepted a short buffer")
	}
	if _, err := Decode(make([]byte, Bytes+1)); err == nil {
		t.Fatal("Decode accepted an over-long buffer")
	}
}

func TestSplitDiscardsTrailingPartialRecord(t *testing.T) {
	r := sampleRecord()
	b := r.Encode()
	b = append(b, r.Encode()...)
	b = append(b, make([]byte, Bytes/2)...) // trailing partial record

	recs := Split(b)
	if len(recs) != 2 {
		t.Fatalf("Split returned %d records, want 2", len(recs))
	}
}

func TestSplitEmpty(t *testing.T) {
	if recs := Split(nil); len(recs) != 0 {
		t.Fatalf("Split(nil) = %v, want empty", recs)
	}
}
