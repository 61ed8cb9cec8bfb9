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

import "math"

// ArgmaxIgnoringNaN returns the index of the largest non-NaN value in p, or
// -1 if p is empty or every entry is NaN.
func ArgmaxIgnoringNaN(p []float32) int {
	best := -1
	var bestV float32
	for i, v := range p {
		if isNaN32(v) {
			continue
		}
		if best == -1 || v > bestV {
			best, bestV = i, v
		}
	}
	return best
}

// CountNaN returns the number of NaN entries in p.
func CountNaN(p []float32) int {
	n := 0
	for _, v := range p {
		if isNaN32(v) {
			n++
		}
	}
	return n
}

// CountNonZeroTreatingNaNAsNonZero counts entries that are not exactly
// zero, where NaN is considered non-zero (NaN != 0 holds in IEEE 754, the
// same convention numpy uses for count_nonzero).
func CountNonZeroTreatingNaNAsNonZero(p []float32) int {
	n := 0
	for _, v := range p {
		if v != 0 {
			n++
		}
	}
	return n
}

// IsOneHot reports whether p is a "one-hot" policy vector: exactly one
// entry is non-NaN and non-zero, with every other entry either zero or
// NaN. This is CountNonZeroTreatingNaNAsNonZero(p) - CountNaN(p), since a
// NaN entry contributes one to both counts and cancels, leaving the count
// of non-zero, non-NaN entries (spec.md §9's suggested construction). For
// a policy vector, whose entries are never negative, that is the count of
// positive entries.
func IsOneHot(p []float32) bool {
	return CountNonZeroTreatingNaNAsNonZero(p)-CountNaN(p) == 1
}

func isNaN32(f float32) bool {
	return math.IsNaN(float64(f))
}
