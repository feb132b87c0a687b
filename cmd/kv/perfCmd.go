package kv

import (
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dvkv/cmd/util"
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/client"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for dvkv servers",
		Long: `Runs a set of benchmarks against the database of --uri.
Every run writes to fresh keys, old versions are kept by the server.`,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	perfTests = []string{"put", "put-large", "get", "get-miss", "exists", "version", "put-ex", "batch", "mixed"}
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString(fmt.Sprintf("Benchmarks to skip (comma separated, any of %s)", strings.Join(perfTests, ","))))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
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
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for dvkv servers")

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Serializer: %s\n", s.Name())
	fmt.Printf("Database: %s (%d shards)\n", kvClient.Database(), kvClient.Shards())
	fmt.Printf("Threads: %d\n", perfNumThreads)

	// all keys of a run share one prefix
	runPrefix := fmt.Sprintf("%s-%d", perfKeyPrefix, time.Now().UnixNano())
	if shards := kvClient.Shards(); shards > 1 {
		keys, _ := getKeys(runPrefix, "dist")
		dist := client.NewPartitioner(shards).Distribution(keys)
		fmt.Printf("Key distribution: counts=%v, quality=%.3f\n", dist.Counts, dist.DistributionQuality)
	}
	fmt.Println()

	fmt.Println("starting tests...")

	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	results["put"] = benchmark("put", runPrefix, false, func(key []byte, _ int) error {
		_, err := kvClient.Put(key, value)
		return err
	})

	results["put-large"] = benchmark("put-large", runPrefix, false, func(key []byte, _ int) error {
		_, err := kvClient.Put(key, largeValue)
		return err
	})

	results["get"] = benchmark("get", runPrefix, true, func(key []byte, _ int) error {
		_, err := kvClient.Get(key)
		return err
	})

	results["get-miss"] = benchmark("get-miss", runPrefix, false, func(key []byte, _ int) error {
		_, err := kvClient.Get(key)
		return err
	})

	results["exists"] = benchmark("exists", runPrefix, true, func(key []byte, _ int) error {
		_, err := kvClient.Exists(key)
		return err
	})

	results["version"] = benchmark("version", runPrefix, true, func(key []byte, _ int) error {
		_, err := kvClient.Version(key)
		return err
	})

	results["put-ex"] = benchmark("put-ex", runPrefix, false, func(key []byte, i int) error {
		policy := store.NOT_EXISTING
		if i%2 == 1 {
			policy = store.EXISTING
		}
		_, err := kvClient.PutEx(policy, key, value)
		return err
	})

	results["batch"] = benchmarkBatch(runPrefix, value)

	results["mixed"] = benchmark("mixed", runPrefix, true, func(key []byte, i int) error {
		var err error
		switch i % 4 {
		case 0:
			_, err = kvClient.Put(key, value)
		case 1:
			_, err = kvClient.Get(key)
		case 2:
			_, err = kvClient.Version(key)
		case 3:
			_, err = kvClient.Exists(key)
		}
		return err
	})

	for _, test := range perfTests {
		printResult(test, results[test])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config, s.Name()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// benchmark runs op in parallel on the keys of test. If prefill is set every key is written once before.
func benchmark(test, runPrefix string, prefill bool, op func(key []byte, i int) error) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip(test) {
			return
		}

		// prepare keys
		keys, getKey := getKeys(runPrefix, test)
		if prefill {
			if _, err := kvClient.PutAll(keys, slices.Repeat([][]byte{[]byte("test")}, len(keys))); err != nil {
				log.Printf("(%s) - error writing keys: %v\n", test, err)
			}
		}

		b.SetParallelism(perfNumThreads)

		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if err := op(getKey(counter), counter); err != nil {
					log.Printf("(%s) - error performing operation: %v\n", test, err)
				}
				counter++
			}
		})
	})
}

// benchmarkBatch measures begin, one put and commit. The batch lives in the session, so it runs on one thread.
func benchmarkBatch(runPrefix string, value []byte) testing.BenchmarkResult {
	return testing.Benchmark(func(b *testing.B) {
		if shouldSkip("batch") {
			return
		}

		_, getKey := getKeys(runPrefix, "batch")

		b.ResetTimer()

		for i := 0; i < b.N; i++ {
			if err := kvClient.BatchBegin(); err != nil {
				log.Printf("(batch) - error beginning batch: %v\n", err)
				continue
			}
			if _, err := kvClient.Put(getKey(i), value); err != nil {
				log.Printf("(batch) - error writing key: %v\n", err)
			}
			if err := kvClient.BatchCommit(); err != nil {
				log.Printf("(batch) - error committing batch: %v\n", err)
			}
		}
	})
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// getKeys creates the test keys of a benchmark and a function to get a key by index (with wraparound)
func getKeys(runPrefix, test string) ([][]byte, func(int) []byte) {
	keys := make([][]byte, perfKeySpread)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%s-%s-%d", runPrefix, test, i))
	}
	return keys, func(i int) []byte {
		return keys[i%perfKeySpread]
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig, serializerName string) error {
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
		"URI", "Database", "Shards", "TimeoutSec", "RetryCount", "FanOut",
		"Serializer", "Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range perfTests {
		result := results[test]

		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			viper.GetString("uri"),
			kvClient.Database(),
			strconv.Itoa(kvClient.Shards()),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			string(config.FanOut),
			serializerName,
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
