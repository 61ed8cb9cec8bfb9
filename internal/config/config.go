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

// Package config loads an optional YAML file of flag defaults for the
// server and worker binaries. Values from an explicit command-line flag
// always win over the file: after flag parsing, the binaries apply the
// file's non-zero values only to flags not passed on the command line.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// Server holds the subset of server flags that may be overridden by a
// config file.
type Server struct {
	InputFolder  string `json:"inputFolder,omitempty"`
	OutputFolder string `json:"outputFolder,omitempty"`
	FilterText   string `json:"filterText,omitempty"`
	StatsPeriod  int    `json:"statsPeriod,omitempty"`
	ResumeMode   bool   `json:"resumeMode,omitempty"`
	ListenAddr   string `json:"listenAddr,omitempty"`
}

// Worker holds the subset of worker flags that may be overridden by a
// config file.
type Worker struct {
	Host          string `json:"host,omitempty"`
	Port          int    `json:"port,omitempty"`
	ChunkSize     int    `json:"chunkSize,omitempty"`
	EnginePath    string `json:"enginePath,omitempty"`
	WeightsPath   string `json:"weightsPath,omitempty"`
	Backend       string `json:"backend,omitempty"`
	GPUID         int    `json:"gpuId,omitempty"`
	ClientName    string `json:"clientName,omitempty"`
	NumNodes      int    `json:"numNodes,omitempty"`
	MinibatchSize int    `json:"minibatchSize,omitempty"`
	DryRun        bool   `json:"dryRun,omitempty"`
}

// LoadServer reads and unmarshals a YAML config file for the server
// binary. An empty path is not an error: it returns a zero Server. A path
// that cannot be read is an error.
func LoadServer(path string) (Server, error) {
	var s Server
	if path == "" {
		return s, nil
	}
	if err := load(path, &s); err != nil {
		return Server{}, err
	}
	return s, nil
}

// LoadWorker reads and unmarshals a YAML config file for the worker
// binary. An empty path is not an error: it returns a zero Worker. A path
// that cannot be read is an error.
func LoadWorker(path string) (Worker, error) {
	var w Worker
	if path == "" {
		return w, nil
	}
	if err := load(path, &w); err != nil {
		return Worker{}, err
	}
	return w, nil
}

func load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}
