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

// Package outsink materializes bytes returned by rescore clients into an
// output directory tree that mirrors the input tree by relative path.
package outsink

import (
	"log"
	"os"
	"path/filepath"

	"github.com/dchest/siphash"
)

// digest keys are fixed and arbitrary: the digest is a diagnostic log tag,
// not a security boundary (spec.md §1 Non-goals excludes cryptographic
// integrity of artifacts).
const (
	digestKey0 = 0x646f6e746c6f7365
	digestKey1 = 0x6576616c75617465
)

// Sink writes rescored files to OutputRoot at the path that mirrors their
// location under InputRoot.
type Sink struct {
	InputRoot  string
	OutputRoot string

	// Logger, if non-nil, receives one diagnostic line per file written,
	// including a siphash content digest.
	Logger *log.Logger
}

// New returns a Sink rooted at inputRoot/outputRoot.
func New(inputRoot, outputRoot string) *Sink {
	return &Sink{InputRoot: inputRoot, OutputRoot: outputRoot}
}

// OutputPath computes the output location O/relative for an input path
// I/relative, where I is s.InputRoot.
func (s *Sink) OutputPath(inputPath string) (string, error) {
	rel, err := filepath.Rel(s.InputRoot, inputPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.OutputRoot, rel), nil
}

// Exists reports whether inputPath's mirrored output file is already
// present, for resume-mode filtering.
func (s *Sink) Exists(inputPath string) bool {
	out, err := s.OutputPath(inputPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(out)
	return err == nil
}

// Write persists data at the output location mirroring inputPath, creating
// intermediate directories as needed. Empty data means the client gave up on
// this file; per spec.md §4.3 the output is not created and the file is left
// for a future run to pick back up.
func (s *Sink) Write(inputPath string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	out, err := s.OutputPath(inputPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	if s.Logger != nil {
		digest := siphash.Hash(digestKey0, digestKey1, data)
		s.Logger.Printf("wrote %s (%d bytes, digest %016x)", out, len(data), digest)
	}
	return nil
}
