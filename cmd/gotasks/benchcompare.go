package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const defaultRegressionThreshold = 0.30

// trackedBenchmarks are the hot paths gated in CI.
var trackedBenchmarks = map[string][]string{
	"BenchmarkVerifyAccessToken": {"ns/op", "allocs/op"},
	"BenchmarkValidateSession":   {"ns/op"},
	"BenchmarkVerifyCSRF":        {"ns/op", "allocs/op"},
	"BenchmarkMetricsInc":        {"ns/op"},
}

// samples maps benchmark name to unit to the values seen across -count runs.
type samples map[string]map[string][]float64

func newBenchCompareCommand() *cobra.Command {
	var (
		baseline  string
		candidate string
		threshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench-compare",
		Short: "Fail when tracked benchmarks regress against a baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if threshold < 0 {
				return fmt.Errorf("threshold must be >= 0")
			}
			base, err := parseBenchmarkFile(baseline)
			if err != nil {
				return fmt.Errorf("parse baseline: %w", err)
			}
			cand, err := parseBenchmarkFile(candidate)
			if err != nil {
				return fmt.Errorf("parse candidate: %w", err)
			}
			return compareBenchmarks(cmd.OutOrStdout(), base, cand, threshold)
		},
	}

	cmd.Flags().StringVar(&baseline, "baseline", "", "go test -bench output of the baseline")
	cmd.Flags().StringVar(&candidate, "candidate", "", "go test -bench output of the candidate")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultRegressionThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	_ = cmd.MarkFlagRequired("baseline")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func compareBenchmarks(out io.Writer, base, cand samples, threshold float64) error {
	names := make([]string, 0, len(trackedBenchmarks))
	for name := range trackedBenchmarks {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	fmt.Fprintln(out, "benchmark metric baseline candidate delta")
	for _, name := range names {
		for _, unit := range trackedBenchmarks[name] {
			b, c := base[name][unit], cand[name][unit]
			if len(b) == 0 || len(c) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}
			bm, cm := median(b), median(c)
			if bm <= 0 {
				// allocs/op of zero cannot regress by ratio; any allocation is a regression.
				if cm > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, cm))
				}
				continue
			}
			delta := (cm - bm) / bm
			fmt.Fprintf(out, "%s %s %.3f %.3f %+0.2f%%\n", name, unit, bm, cm, delta*100)
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("performance regression threshold exceeded:\n  - %s", strings.Join(failures, "\n  - "))
	}
	return nil
}

func parseBenchmarkFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchmarks(f)
}

func parseBenchmarks(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := trackedBenchmarks[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, scanner.Err()
}

// trimProcs strips the -GOMAXPROCS suffix go test appends to names.
func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
