// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Command wordbench times a bucketmap.Map over a word list for a range of
// primary table capacities.
//
//	wordbench -words /usr/share/dict/words -capacities 1,10,587,7823,175000
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/bucketmap"
)

func main() {
	var (
		words      = flag.String("words", "/usr/share/dict/words", "newline separated word list")
		capacities = flag.String("capacities", "1,10,13,587,7823,10000,175000,174989,349999",
			"comma separated primary table capacities")
		shrink  = flag.Bool("shrink", false, "shrink buckets on delete")
		verbose = flag.Bool("v", false, "log bucket growth")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	keys, err := readWords(*words)
	if err != nil {
		logger.Error("reading word list", "path", *words, "error", err)
		os.Exit(1)
	}
	sizes, err := parseCapacities(*capacities)
	if err != nil {
		logger.Error("parsing capacities", "error", err)
		os.Exit(1)
	}

	for _, capacity := range sizes {
		if err := run(logger, keys, capacity, *shrink); err != nil {
			logger.Error("run failed", "capacity", capacity, "error", err)
			os.Exit(1)
		}
	}
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var keys []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		if w := strings.TrimSpace(s.Text()); w != "" {
			keys = append(keys, w)
		}
	}
	return keys, s.Err()
}

func parseCapacities(s string) ([]int, error) {
	var sizes []int
	for _, f := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("capacity %q: %w", f, err)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}

func run(logger *slog.Logger, keys []string, capacity int, shrink bool) error {
	options := []bucketmap.Option[string]{bucketmap.WithLogger[string](logger)}
	if shrink {
		options = append(options, bucketmap.WithShrink[string]())
	}
	m, err := bucketmap.New[string](capacity, bucketmap.XXHash, options...)
	if err != nil {
		return err
	}
	defer m.Close()

	start := time.Now()
	for _, k := range keys {
		if err := m.Set(k, k); err != nil {
			return err
		}
	}
	set := time.Since(start)

	start = time.Now()
	var found int
	for _, k := range keys {
		if v, ok := m.Get(k); ok && v == k {
			found++
		}
	}
	get := time.Since(start)
	stats := m.Stats()

	start = time.Now()
	for _, k := range keys {
		m.Delete(k)
	}
	del := time.Since(start)
	stats.Shrinks = m.Stats().Shrinks

	n := max(1, len(keys))
	fmt.Printf("capacity=%-8d items=%-8d found=%-8d set=%-10s get=%-10s delete=%-10s "+
		"buckets=%d/%d slots=%d max-bucket=%d grows=%d shrinks=%d\n",
		capacity, len(keys), found,
		set/time.Duration(n), get/time.Duration(n), del/time.Duration(n),
		stats.AllocatedBuckets, stats.Buckets, stats.SlotCapacity,
		stats.MaxBucketCapacity, stats.Grows, stats.Shrinks)
	return nil
}
