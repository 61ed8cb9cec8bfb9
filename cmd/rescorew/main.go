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

// Command rescorew is the worker client: it connects to a rescored
// dispatch server, requests chunks of gzipped V4 game files, rescores
// each one against a local UCI engine, and returns the rewritten bytes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/lc0fleet/rescorer/internal/config"
	"github.com/lc0fleet/rescorer/internal/engine"
	"github.com/lc0fleet/rescorer/internal/rescoreclient"
)

func main() {
	fs := flag.NewFlagSet("rescorew", flag.ExitOnError)
	host := fs.String("host", "127.0.0.1", "dispatch server host")
	port := fs.Int("port", 9090, "dispatch server port")
	chunkSize := fs.Int("chunk-size", 8, "number of files to request per round")
	enginePath := fs.String("engine-path", "", "path to the UCI engine binary")
	weightsPath := fs.String("weights-path", "", "path to the engine's network weights file")
	backend := fs.String("backend", "", "engine backend name (e.g. cuda, cudnn)")
	gpuID := fs.Int("gpu-id", 0, "GPU index to pass to the engine backend")
	clientName := fs.String("client-name", "", "identity announced to the dispatch server")
	numNodes := fs.Int("num-nodes", 1, "search node budget per position")
	minibatchSize := fs.Int("minibatchsize", 0, "engine minibatch size, if the backend supports it")
	dryRun := fs.Bool("dry-run", false, "skip engine startup and echo inputs unchanged")
	configPath := fs.String("config", "", "optional YAML file of flag defaults")

	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "", 0)

	if *configPath != "" {
		cfg, err := config.LoadWorker(*configPath)
		if err != nil {
			logger.Fatal(err)
		}
		seen := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
		applyWorkerDefaults(fs, cfg, seen)
	}

	if *clientName == "" {
		logger.Fatal("--client-name is required")
	}
	if !*dryRun && *enginePath == "" {
		logger.Fatal("--engine-path is required unless --dry-run is set")
	}

	var an *engine.Analyzer
	if !*dryRun {
		opts := map[string]string{}
		if *weightsPath != "" {
			opts["WeightsFile"] = *weightsPath
		}
		if *backend != "" {
			opts["Backend"] = *backend
		}
		if *gpuID != 0 {
			opts["GPU"] = strconv.Itoa(*gpuID)
		}
		if *minibatchSize != 0 {
			opts["MinibatchSize"] = strconv.Itoa(*minibatchSize)
		}
		var err error
		an, err = engine.Start(*enginePath, opts)
		if err != nil {
			logger.Fatalf("starting engine: %v", err)
		}
		defer an.Close()
	}

	addr := fmt.Sprintf("%s:%d", *host, *port)
	err := rescoreclient.Run(rescoreclient.Options{
		Addr:      addr,
		Name:      *clientName,
		ChunkSize: *chunkSize,
		Engine:    an,
		Nodes:     *numNodes,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal(err)
	}
}

func applyWorkerDefaults(fs *flag.FlagSet, cfg config.Worker, seen map[string]bool) {
	set := func(name, value string) {
		if !seen[name] {
			fs.Set(name, value)
		}
	}
	if cfg.Host != "" {
		set("host", cfg.Host)
	}
	if cfg.Port != 0 {
		set("port", strconv.Itoa(cfg.Port))
	}
	if cfg.ChunkSize != 0 {
		set("chunk-size", strconv.Itoa(cfg.ChunkSize))
	}
	if cfg.EnginePath != "" {
		set("engine-path", cfg.EnginePath)
	}
	if cfg.WeightsPath != "" {
		set("weights-path", cfg.WeightsPath)
	}
	if cfg.Backend != "" {
		set("backend", cfg.Backend)
	}
	if cfg.GPUID != 0 {
		set("gpu-id", strconv.Itoa(cfg.GPUID))
	}
	if cfg.ClientName != "" {
		set("client-name", cfg.ClientName)
	}
	if cfg.NumNodes != 0 {
		set("num-nodes", strconv.Itoa(cfg.NumNodes))
	}
	if cfg.MinibatchSize != 0 {
		set("minibatchsize", strconv.Itoa(cfg.MinibatchSize))
	}
	if cfg.DryRun {
		set("dry-run", "true")
	}
}
