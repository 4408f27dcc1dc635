// Command zoodbbench drives random/sequential workloads against the
// paged B+-tree (package btree) and two baselines, an in-memory B+-tree
// and a github.com/cockroachdb/pebble LSM store, and plots the results.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// commitEvery bounds how often zoodbIndex flushes dirty pages during the
// load phase; see zoodb.go's Commit doc comment for why per-insert commits
// would be unrepresentative.
const commitEvery = 500

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "zoodbbench:", err)
		os.Exit(1)
	}
}

func run() error {
	outDir, err := os.MkdirTemp("", "zoodbbench-*")
	if err != nil {
		return fmt.Errorf("tempdir: %w", err)
	}

	f, err := os.Create("zoodbbench_results.csv")
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Write([]string{"Structure", "Config", "TestType", "LatencyNs", "MemMB", "HeapObjects"})

	scale := 100000
	pageSizes := []int{512, 4096, 16384}
	degrees := []int{8, 32, 128}

	var all []benchResult

	for _, ps := range pageSizes {
		name := fmt.Sprintf("zoodb-%d", ps)
		path := filepath.Join(outDir, name+".db")
		idx, err := newZoodbIndex(path)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		results := runSuite("ZooDB-BTree", strconv.Itoa(ps), idx, scale, idx.Commit)
		idx.Close()
		all = append(all, results...)
		for _, r := range results {
			recordResult(w, r)
		}
	}

	for _, d := range degrees {
		idx := newMemoryIndex(d)
		results := runSuite("InMemory-BPlusTree", strconv.Itoa(d), idx, scale, nil)
		all = append(all, results...)
		for _, r := range results {
			recordResult(w, r)
		}
	}

	pebblePath := filepath.Join(outDir, "pebble")
	pidx, err := newPebbleIndex(pebblePath)
	if err != nil {
		return fmt.Errorf("pebble: %w", err)
	}
	results := runSuite("Pebble-LSM", "default", pidx, scale, nil)
	pidx.Close()
	all = append(all, results...)
	for _, r := range results {
		recordResult(w, r)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	fmt.Println("wrote zoodbbench_results.csv")

	for _, op := range []string{"Footprint_SteadyState", "Workload_OLTP", "Workload_OLAP", "Workload_Range"} {
		path := op + ".png"
		if err := plotLatencies(path, op, all, op); err != nil {
			fmt.Fprintln(os.Stderr, "zoodbbench: plot", op, err)
			continue
		}
		fmt.Println("wrote", path)
	}
	return nil
}

// runSuite loads n keys into idx then drives the three mixed workloads,
// sampling latency and heap usage at each step. commit, when non-nil, is
// called every commitEvery inserts and once more after the load completes;
// only zoodbIndex needs this, since it is the only baseline with an
// explicit transaction boundary.
func runSuite(name, config string, idx Index, n int, commit func() error) []benchResult {
	fmt.Printf("Testing %s (Config: %s)\n", name, config)

	start := time.Now()
	for k := 0; k < n; k++ {
		_ = idx.Insert(int64(k), []byte("v"))
		if commit != nil && (k+1)%commitEvery == 0 {
			_ = commit()
		}
	}
	if commit != nil {
		_ = commit()
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	stats := getDetailedMem()
	out := []benchResult{{
		Name:      name,
		Config:    config,
		Operation: "Footprint_SteadyState",
		LatencyNs: insertLatency,
		MemMB:     stats.AllocMB,
		Objects:   stats.HeapObjects,
	}}

	start = time.Now()
	executeWorkload(idx, OLTP, n/2)
	out = append(out, benchResult{name, config, "Workload_OLTP",
		time.Since(start).Nanoseconds() / int64(n/2), getDetailedMem().AllocMB, 0})

	start = time.Now()
	executeWorkload(idx, OLAP, n/2)
	out = append(out, benchResult{name, config, "Workload_OLAP",
		time.Since(start).Nanoseconds() / int64(n/2), getDetailedMem().AllocMB, 0})

	start = time.Now()
	executeWorkload(idx, Reporting, 100)
	out = append(out, benchResult{name, config, "Workload_Range",
		time.Since(start).Nanoseconds() / 100, getDetailedMem().AllocMB, 0})

	return out
}
