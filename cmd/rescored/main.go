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

// Command rescored is the dispatch server: it walks an input directory of
// gzipped V4 game files and hands them out to connecting worker clients,
// writing their rescored results into a mirrored output tree.
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/lc0fleet/rescorer/internal/config"
	"github.com/lc0fleet/rescorer/internal/dispatch"
	"github.com/lc0fleet/rescorer/internal/outsink"
	"github.com/lc0fleet/rescorer/internal/rlimit"
	"github.com/lc0fleet/rescorer/internal/workqueue"
)

func main() {
	fs := flag.NewFlagSet("rescored", flag.ExitOnError)
	inputFolder := fs.String("input-folder", "", "root directory of input .gz game files")
	outputFolder := fs.String("output-folder", "", "root directory to mirror rescored output into")
	filterText := fs.String("filter-text", "", "only process files whose directory path contains this substring")
	statsPeriod := fs.Int("stats-period", 30, "seconds between periodic per-client throughput reports")
	resumeMode := fs.Bool("resume-mode", false, "skip input files whose output already exists")
	listenAddr := fs.String("listen", ":9090", "address to accept worker connections on")
	configPath := fs.String("config", "", "optional YAML file of flag defaults")

	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.Lshortfile)

	if *configPath != "" {
		cfg, err := config.LoadServer(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		// a flag the user actually passed on the command line always
		// wins over the config file; only unset flags are overridden.
		seen := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
		applyServerDefaults(fs, cfg, seen)
	}

	if *inputFolder == "" || *outputFolder == "" {
		logger.Fatal("--input-folder and --output-folder are required")
	}
	if *inputFolder == *outputFolder {
		logger.Fatal("--input-folder and --output-folder must differ")
	}

	if n, err := rlimit.RaiseNoFile(65536); err != nil {
		logger.Printf("warning: could not raise RLIMIT_NOFILE: %v (running with limit %d)", err, n)
	}

	src := workqueue.New(workqueue.Options{
		Root:       *inputFolder,
		OutputRoot: *outputFolder,
		Filter:     *filterText,
		Resume:     *resumeMode,
	})
	sink := outsink.New(*inputFolder, *outputFolder)
	sink.Logger = logger

	srv := dispatch.New(src, sink, time.Duration(*statsPeriod)*time.Second)
	srv.Logger = logger

	l, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Printf("rescored listening on %s", l.Addr())
	if err := srv.Serve(l); err != nil {
		logger.Fatal(err)
	}
}

// applyServerDefaults overrides any fs flag not explicitly passed on the
// command line (absent from seen) with the corresponding non-zero value
// from a loaded config file.
func applyServerDefaults(fs *flag.FlagSet, cfg config.Server, seen map[string]bool) {
	set := func(name, value string) {
		if !seen[name] {
			fs.Set(name, value)
		}
	}
	if cfg.InputFolder != "" {
		set("input-folder", cfg.InputFolder)
	}
	if cfg.OutputFolder != "" {
		set("output-folder", cfg.OutputFolder)
	}
	if cfg.FilterText != "" {
		set("filter-text", cfg.FilterText)
	}
	if cfg.StatsPeriod != 0 {
		set("stats-period", strconv.Itoa(cfg.StatsPeriod))
	}
	if cfg.ResumeMode {
		set("resume-mode", "true")
	}
	if cfg.ListenAddr != "" {
		set("listen", cfg.ListenAddr)
	}
}
