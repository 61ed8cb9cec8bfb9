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

//go:build linux || darwin || freebsd || openbsd || netbsd
// +build linux darwin freebsd openbsd netbsd

// Package rlimit raises the open-file-descriptor limit at server startup,
// since a dispatch server with many concurrent worker connections can
// otherwise exhaust the default per-process limit.
package rlimit

import "golang.org/x/sys/unix"

// RaiseNoFile attempts to raise RLIMIT_NOFILE to at least want, up to the
// hard limit. It returns the resulting soft limit and any error from the
// underlying syscalls; a failure here is not fatal to the caller.
func RaiseNoFile(want uint64) (uint64, error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, err
	}
	if rl.Cur >= want {
		return rl.Cur, nil
	}
	target := want
	if rl.Max < target {
		target = rl.Max
	}
	prev := rl.Cur
	rl.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return prev, err
	}
	return target, nil
}
