package kv

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/fKV/cmd/util"
	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for fKV stores",
		Long:    "",
		RunE:    runWithPool(run),
		PreRunE: processPerfConfig,
	}
	perfLog              = logger.GetLogger("cli")
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

// perfResult is the outcome of one benchmark: the go benchmark result plus
// the latency distribution of the single operations
type perfResult struct {
	bench testing.BenchmarkResult
	timer gometrics.Timer
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB, at most 1023)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfLargeValueSizeKB*1024 > engine.MaxValueSize {
		return fmt.Errorf("large-value-size must be at most %d KB", engine.MaxValueSize/1024)
	}
	return nil
}

func run(_ *cobra.Command, p *store.Pool, _ []string) error {

	fmt.Println("Performance testing tool for fKV stores")

	conf, err := util.GetStoreConfig()
	if err != nil {
		return err
	}

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Pool: %s\n", p)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	smallValue, err := store.WrapValue([]byte("test"))
	if err != nil {
		return err
	}
	largeValue, err := store.WrapValue(make([]byte, perfLargeValueSizeKB*1024))
	if err != nil {
		return err
	}

	tests := []struct {
		name    string
		prefill bool
		op      func(key store.Key, counter int) error
	}{
		{"put", false, func(k store.Key, _ int) error { return p.Put(k, smallValue) }},
		{"put-large", false, func(k store.Key, _ int) error { return p.Put(k, largeValue) }},
		{"get", true, func(k store.Key, _ int) error { _, err := p.GetBytes(k); return err }},
		{"delete", true, func(k store.Key, _ int) error { _, err := p.Delete(k); return err }},
		{"has", true, func(k store.Key, _ int) error { _, err := p.Exists(k); return err }},
		{"has-not", false, func(k store.Key, _ int) error { _, err := p.Exists(k); return err }},
		{"mixed", true, func(k store.Key, counter int) error {
			var err error
			switch counter % 4 {
			case 0: // put
				err = p.Put(k, smallValue)
			case 1: // get
				_, err = p.GetBytes(k)
				if store.CodeOf(err) == store.RetCNotFound {
					err = nil
				}
			case 2: // delete
				_, err = p.Delete(k)
			case 3: // has
				_, err = p.Exists(k)
			}
			return err
		}},
	}

	// Create results map
	results := make(map[string]perfResult, len(tests))

	for _, test := range tests {
		timer := gometrics.NewTimer()
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(test.name) {
				return
			}

			// prepare keys
			getKey, iter := getKeys(test.name)

			// set keys
			if test.prefill {
				iter(func(k store.Key) {
					if err := p.Put(k, smallValue); err != nil {
						perfLog.Warningf("(%s) - error putting key: %v", test.name, err)
					}
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k store.Key) {
					if _, err := p.Delete(k); err != nil {
						perfLog.Warningf("(%s) - error deleting key: %v", test.name, err)
					}
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					start := time.Now()
					if err := test.op(getKey(counter), counter); err != nil {
						perfLog.Warningf("(%s) - error performing operation: %v", test.name, err)
					}
					timer.UpdateSince(start)
					counter++
				}
			})
		})

		results[test.name] = perfResult{bench: result, timer: timer}
		printResult(test.name, results[test.name])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) store.Key, func(func(store.Key))) {
	keys := make([]store.Key, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = store.MustKey(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) store.Key {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(store.Key)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// opsPerSec derives the throughput of a benchmark, 0 if it was skipped
func opsPerSec(result testing.BenchmarkResult) (nsPerOp, perSec float64, skipped bool) {
	if result.NsPerOp() == 0 {
		return 0, 0, true
	}
	nsPerOp = math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	return nsPerOp, 1.0 / (nsPerOp / 1e9), false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	nsPerOp, perSec, skipped := opsPerSec(result.bench)
	if skipped {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	ps := result.timer.Percentiles([]float64{0.5, 0.99})

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), perSec, time.Duration(ps[0]), time.Duration(ps[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.StoreConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"P50Ns", "P99Ns", "MaxNs",
		"Engine", "Path", "ExpiryMode", "Pool",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		nsPerOp, perSec, skipped := opsPerSec(result.bench)
		ps := result.timer.Percentiles([]float64{0.5, 0.99})

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", perSec),
			strconv.FormatBool(skipped),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			strconv.FormatInt(result.timer.Max(), 10),
			string(config.Engine),
			config.Path,
			config.ExpiryMode.String(),
			viper.GetString("pool"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
