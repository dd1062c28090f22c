package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// RunEngineBenchmarks runs all benchmarks for an engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory(b))
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory(b))
	})

	b.Run("PutLargeValue", func(b *testing.B) {
		benchmarkPutLargeValue(b, factory(b))
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory(b))
	})

	b.Run("Exists", func(b *testing.B) {
		benchmarkExists(b, factory(b))
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory(b))
	})

	b.Run("BatchPut", func(b *testing.B) {
		benchmarkBatchPut(b, factory(b))
	})

	b.Run("Iterate", func(b *testing.B) {
		benchmarkIterate(b, factory(b))
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory(b))
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Opens the instance and registers cleanup with the benchmark
func openBench(b *testing.B, inst Instance) (engine.Handle, engine.PoolID) {
	h, pool := openWithPool(b, inst, "bench")
	b.Cleanup(func() {
		inst.Engine.Close(h)
	})
	return h, pool
}

// Fills the pool with n keys
func prepare(b *testing.B, eng engine.Engine, h engine.Handle, pool engine.PoolID, n int) {
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("test-key-%d", i))
		value := []byte(fmt.Sprintf("test-value-%d", i))
		if _, err := eng.Put(h, pool, key, value, 0); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Put operation
func benchmarkPut(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	var worker atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := worker.Add(1)
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d-%d", id, counter))
			value := []byte(fmt.Sprintf("test-value-%d", counter))
			eng.Put(h, pool, key, value, 0)
			counter++
		}
	})
}

// Benchmark for Put operation with existing keys
func benchmarkPutExisting(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	numKeys := 10000
	prepare(b, eng, h, pool, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", counter%numKeys))
			eng.Put(h, pool, key, []byte("updated-value"), 0)
			counter++
		}
	})
}

// Benchmark for Put operation with values of 64 KiB
func benchmarkPutLargeValue(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	value := bytes.Repeat([]byte{0xAB}, 64*1024)

	b.SetBytes(int64(len(value)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// a bounded key set keeps the device from running full
		key := []byte(fmt.Sprintf("large-key-%d", i%256))
		eng.Put(h, pool, key, value, 0)
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	numKeys := 10000
	prepare(b, eng, h, pool, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		out := make([]byte, 64)
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", r.Intn(numKeys)))
			eng.Get(h, pool, key, out)
		}
	})
}

// Benchmark for Exists operation
func benchmarkExists(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	numKeys := 10000
	prepare(b, eng, h, pool, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			// every second lookup misses
			key := []byte(fmt.Sprintf("test-key-%d", counter%(2*numKeys)))
			eng.Exists(h, pool, key)
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	prepare(b, eng, h, pool, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.Delete(h, pool, []byte(fmt.Sprintf("test-key-%d", i)))
	}
}

// Benchmark for BatchPut operation with batches of 100 entries
func benchmarkBatchPut(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	batchSize := 100
	keys := make([][]byte, batchSize)
	values := make([][]byte, batchSize)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range keys {
			keys[j] = []byte(fmt.Sprintf("batch-key-%d-%d", i%100, j))
			values[j] = []byte(fmt.Sprintf("batch-value-%d", j))
		}
		eng.BatchPut(h, pool, keys, values, nil)
	}
}

// Benchmark for a full cursor walk over 1000 entries
func benchmarkIterate(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	prepare(b, eng, h, pool, 1000)

	keyBuf := make([]byte, engine.MaxKeySize)
	valueBuf := make([]byte, 64)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cursor, err := eng.Iterator(h, pool)
		if err != nil {
			b.Fatalf("Iterator failed: %v", err)
		}
		for {
			if _, _, err := eng.Current(h, pool, cursor, keyBuf, valueBuf); err != nil {
				break
			}
			if err := eng.Next(h, pool, cursor); err != nil {
				break
			}
		}
		eng.EndIteration(h, pool, cursor)
	}
}

// Benchmark for mixed operations (80% reads, 15% writes, 5% deletes)
func benchmarkMixedUsage(b *testing.B, inst Instance) {
	h, pool := openBench(b, inst)
	eng := inst.Engine

	numKeys := 10000
	prepare(b, eng, h, pool, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		out := make([]byte, 64)
		r := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := []byte(fmt.Sprintf("test-key-%d", r.Intn(numKeys)))
			switch op := r.Intn(100); {
			case op < 80:
				eng.Get(h, pool, key, out)
			case op < 95:
				eng.Put(h, pool, key, []byte("mixed-value"), 0)
			default:
				eng.Delete(h, pool, key)
			}
		}
	})
}
