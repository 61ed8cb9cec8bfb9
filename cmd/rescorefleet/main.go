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

// Command rescorefleet is a multi-GPU fan-out launcher: it detects the
// number of GPUs on the host and spawns several independent rescorew
// processes per GPU, one OS process each. While they run it logs how many
// have finished every five seconds, and once all have exited it logs each
// one's exit status. This is not part of the coordination core; it supplements
// the distilled spec with the original implementation's multi-process
// launcher (multi_client.py), adapted to spawn the Go worker binary.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

func main() {
	fs := flag.NewFlagSet("rescorefleet", flag.ExitOnError)
	workerPath := fs.String("worker-path", "rescorew", "path to the rescorew binary")
	clientsPerGPU := fs.Int("clients-per-gpu", 2, "number of worker processes to launch per GPU")
	numGPUs := fs.Int("num-gpus", 0, "override the detected GPU count; 0 autodetects via nvidia-smi")
	chunkSize := fs.Int("chunk-size", 5, "--chunk-size passed through to each worker")
	enginePath := fs.String("engine-path", "", "--engine-path passed through to each worker")
	weightsPath := fs.String("weights-path", "", "--weights-path passed through to each worker")
	host := fs.String("host", "localhost", "--host passed through to each worker")
	port := fs.Int("port", 9090, "--port passed through to each worker")

	if fs.Parse(os.Args[1:]) != nil {
		os.Exit(1)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	gpus := *numGPUs
	if gpus <= 0 {
		n, err := detectGPUCount()
		if err != nil {
			logger.Fatalf("detecting GPU count: %v (pass --num-gpus to override)", err)
		}
		gpus = n
	}
	logger.Printf("launching %d workers per GPU across %d GPUs", *clientsPerGPU, gpus)

	var wg sync.WaitGroup
	statuses := make([]string, 0, gpus**clientsPerGPU)
	var mu sync.Mutex

	for gpu := 0; gpu < gpus; gpu++ {
		for c := 0; c < *clientsPerGPU; c++ {
			name := fmt.Sprintf("worker-gpu%d-%d", gpu, c)
			args := []string{
				"--gpu-id=" + strconv.Itoa(gpu),
				"--chunk-size=" + strconv.Itoa(*chunkSize),
				"--engine-path=" + *enginePath,
				"--weights-path=" + *weightsPath,
				"--host=" + *host,
				"--port=" + strconv.Itoa(*port),
				"--client-name=" + name,
			}
			logger.Printf("spawning %s %s", *workerPath, strings.Join(args, " "))

			cmd := exec.Command(*workerPath, args...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Start(); err != nil {
				logger.Printf("failed to start %s: %v", name, err)
				continue
			}

			wg.Add(1)
			go func(name string, cmd *exec.Cmd) {
				defer wg.Done()
				err := cmd.Wait()
				mu.Lock()
				if err != nil {
					statuses = append(statuses, fmt.Sprintf("%s: %v", name, err))
				} else {
					statuses = append(statuses, fmt.Sprintf("%s: exited cleanly", name))
				}
				mu.Unlock()
			}(name, cmd)
		}
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-done:
			for _, s := range statuses {
				logger.Println(s)
			}
			return
		case <-t.C:
			mu.Lock()
			logger.Printf("%d/%d workers finished", len(statuses), gpus**clientsPerGPU)
			mu.Unlock()
		}
	}
}

// detectGPUCount shells out to nvidia-smi, counting one line per listed
// GPU, mirroring the original launcher's `nvidia-smi --list-gpus` probe.
func detectGPUCount() (int, error) {
	out, err := exec.Command("nvidia-smi", "--list-gpus").Output()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range strings.Split(string(out), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("nvidia-smi reported no GPUs")
	}
	return n, nil
}
