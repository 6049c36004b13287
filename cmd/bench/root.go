package bench

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/ValentinKolb/hotkv/cmd/util"
	"github.com/ValentinKolb/hotkv/lib/db/engines/hot"
	"github.com/dustin/go-humanize"
	"github.com/google/btree"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	BenchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark the engine against a B-tree baseline",
		Long: `Loads a set of keys into the HOT engine and into an in-memory B-tree and
reports per-operation latencies and the memory used by both structures.
Without --key-file, URL-like keys are generated.`,
		PreRunE: processBenchConfig,
		RunE:    run,
	}
	benchKeyCount    = 1_000_000
	benchKeyFile     = ""
	benchValueSize   = 8
	benchLookups     = 1_000_000
	benchBTreeDegree = 32
	benchSkip        = make([]string, 0)
	benchPrometheus  = false
)

func init() {
	key := "keys"
	BenchCmd.Flags().Int(key, benchKeyCount, util.WrapString("How many keys to generate (ignored with --key-file)"))
	key = "key-file"
	BenchCmd.Flags().String(key, "", util.WrapString("Read the keys from this file, one key per line (- for stdin)"))
	key = "value-size"
	BenchCmd.Flags().Int(key, benchValueSize, util.WrapString("Size of each value in bytes"))
	key = "lookups"
	BenchCmd.Flags().Int(key, benchLookups, util.WrapString("Number of random point lookups"))
	key = "btree-degree"
	BenchCmd.Flags().Int(key, benchBTreeDegree, util.WrapString("Degree of the B-tree baseline"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Structures to skip (comma separated - hot, btree)"))
	key = "prometheus"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print the engine metrics in the Prometheus text format after the run"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	benchKeyCount = viper.GetInt("keys")
	benchKeyFile = viper.GetString("key-file")
	benchValueSize = viper.GetInt("value-size")
	benchLookups = viper.GetInt("lookups")
	benchBTreeDegree = viper.GetInt("btree-degree")
	benchPrometheus = viper.GetBool("prometheus")
	benchSkip = strings.Split(viper.GetString("skip"), ",")

	if benchBTreeDegree < 2 {
		return fmt.Errorf("btree-degree must be at least 2, got %d", benchBTreeDegree)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	keys := util.GenerateKeys(benchKeyCount)
	if benchKeyFile != "" {
		var err error
		if keys, err = util.ReadKeyFile(benchKeyFile); err != nil {
			return err
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no keys to benchmark")
	}

	var keyBytes uint64
	for _, k := range keys {
		keyBytes += uint64(len(k))
	}
	value := make([]byte, benchValueSize)
	lookups := lookupOrder(len(keys), benchLookups)

	fmt.Println("Benchmark of the HOT engine")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Keys:          %s (%s raw key data)\n", humanize.Comma(int64(len(keys))), humanize.IBytes(keyBytes))
	fmt.Printf("Value size:    %s\n", humanize.IBytes(uint64(benchValueSize)))
	fmt.Printf("Lookups:       %s\n", humanize.Comma(int64(len(lookups))))
	fmt.Printf("B-tree degree: %d\n", benchBTreeDegree)
	fmt.Println()

	registry := gometrics.NewRegistry()
	var (
		results  []memoryResult
		database *hot.DB
	)

	if !shouldSkip("hot") {
		var err error
		if database, err = util.NewEngine(); err != nil {
			return err
		}
		defer database.Close()
		results = append(results, benchHot(database, registry, keys, value, lookups))
	}

	if !shouldSkip("btree") {
		results = append(results, benchBTree(registry, keys, value, lookups))
	}

	printTimers(registry)
	fmt.Println()
	printMemory(results, len(keys))
	fmt.Println()

	if benchPrometheus && database != nil {
		database.WritePrometheus(os.Stdout)
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// memoryResult is the memory used by one structure after loading all keys
type memoryResult struct {
	name      string
	heapBytes uint64 // growth of the Go heap
	selfBytes uint64 // size reported by the structure itself (0 = unknown)
}

func benchHot(database *hot.DB, registry gometrics.Registry, keys []string, value []byte, lookups []int) memoryResult {
	setTimer := gometrics.GetOrRegisterTimer("hot.set", registry)
	getTimer := gometrics.GetOrRegisterTimer("hot.get", registry)
	scanTimer := gometrics.GetOrRegisterTimer("hot.scan", registry)

	before := heapInUse()
	for i, k := range keys {
		start := time.Now()
		database.Set(k, value, uint64(i+1))
		setTimer.UpdateSince(start)
	}
	after := heapInUse()
	heap := after - min(before, after)

	for _, i := range lookups {
		start := time.Now()
		database.Get(keys[i])
		getTimer.UpdateSince(start)
	}

	scanTimer.Time(func() {
		database.Range("", "", func(string, []byte) bool { return true })
	})

	return memoryResult{name: "hot", heapBytes: heap, selfBytes: uint64(database.GetInfo().SizeBytes)}
}

// btreeEntry is the item stored in the B-tree baseline
type btreeEntry struct {
	key   string
	value []byte
}

func (e *btreeEntry) Less(than btree.Item) bool {
	return e.key < than.(*btreeEntry).key
}

func benchBTree(registry gometrics.Registry, keys []string, value []byte, lookups []int) memoryResult {
	setTimer := gometrics.GetOrRegisterTimer("btree.set", registry)
	getTimer := gometrics.GetOrRegisterTimer("btree.get", registry)
	scanTimer := gometrics.GetOrRegisterTimer("btree.scan", registry)

	before := heapInUse()
	tree := btree.New(benchBTreeDegree)
	for _, k := range keys {
		start := time.Now()
		v := make([]byte, len(value))
		copy(v, value)
		tree.ReplaceOrInsert(&btreeEntry{key: k, value: v})
		setTimer.UpdateSince(start)
	}
	after := heapInUse()
	heap := after - min(before, after)

	probe := &btreeEntry{}
	for _, i := range lookups {
		start := time.Now()
		probe.key = keys[i]
		tree.Get(probe)
		getTimer.UpdateSince(start)
	}

	scanTimer.Time(func() {
		tree.Ascend(func(btree.Item) bool { return true })
	})

	runtime.KeepAlive(tree)
	return memoryResult{name: "btree", heapBytes: heap}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(name string) bool {
	for _, skip := range benchSkip {
		if strings.TrimSpace(skip) == name {
			return true
		}
	}
	return false
}

// lookupOrder returns n random indexes into a key list of length size
func lookupOrder(size, n int) []int {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	order := make([]int, n)
	for i := range order {
		order[i] = r.Intn(size)
	}
	return order
}

// heapInUse returns the heap size after a full collection
func heapInUse() uint64 {
	runtime.GC()
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}

// printTimers prints all timers of registry sorted by name
func printTimers(registry gometrics.Registry) {
	var names []string
	registry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)

	fmt.Printf("%-12s%12s%12s%12s%12s%14s\n", "test", "ops", "mean", "p50", "p99", "ops/sec")
	for _, name := range names {
		t, ok := registry.Get(name).(gometrics.Timer)
		if !ok {
			continue
		}
		s := t.Snapshot()
		mean := time.Duration(s.Mean())
		opsPerSec := 0.0
		if s.Mean() > 0 {
			opsPerSec = 1e9 / s.Mean()
		}
		fmt.Printf("%-12s%12s%12s%12s%12s%14s\n",
			name,
			humanize.Comma(s.Count()),
			mean,
			time.Duration(s.Percentile(0.5)),
			time.Duration(s.Percentile(0.99)),
			humanize.Comma(int64(opsPerSec)),
		)
	}
}

// printMemory prints the memory used by each structure
func printMemory(results []memoryResult, keys int) {
	fmt.Printf("%-12s%14s%14s%14s\n", "structure", "heap", "reported", "heap/key")
	for _, r := range results {
		reported := "-"
		if r.selfBytes > 0 {
			reported = humanize.IBytes(r.selfBytes)
		}
		fmt.Printf("%-12s%14s%14s%14s\n",
			r.name,
			humanize.IBytes(r.heapBytes),
			reported,
			humanize.FormatFloat("#,###.#", float64(r.heapBytes)/float64(keys))+" B",
		)
	}
}
