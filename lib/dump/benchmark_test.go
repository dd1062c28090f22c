package dump

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem"
	"github.com/ValentinKolb/fKV/lib/store"
)

// benchmarkRecords returns a set of records for targeted benchmarking
func benchmarkRecords() map[string]Record {
	return map[string]Record{
		"Header": {
			Type:       RecTHeader,
			Tag:        "benchmark-pool",
			Version:    1,
			ExpiryMode: uint8(engine.ArbitraryExpiry),
		},
		"SmallEntry": {
			Type:  RecTEntry,
			Key:   []byte("k"),
			Value: []byte("v"),
		},
		"MediumEntry": {
			Type:  RecTEntry,
			Key:   []byte("medium-length-key-for-testing"),
			Value: []byte("medium length value for testing serialization"),
		},
		"LargeEntry": {
			Type:     RecTEntry,
			Key:      bytes.Repeat([]byte("k"), engine.MaxKeySize),
			Value:    make([]byte, 16*1024),
			ExpireIn: 3600,
		},
		"Trailer": {
			Type:  RecTTrailer,
			Count: 123456,
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all formats with various record types
func BenchmarkSerialize(b *testing.B) {
	for _, f := range formats {
		for recName, rec := range benchmarkRecords() {
			b.Run(f.String()+"_"+recName, func(b *testing.B) {
				ser, _ := NewSerializer(f)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := ser.Serialize(rec); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all formats with various record types
func BenchmarkDeserialize(b *testing.B) {
	for _, f := range formats {
		ser, _ := NewSerializer(f)
		for recName, rec := range benchmarkRecords() {
			data, err := ser.Serialize(rec)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", recName, f, err)
			}

			b.Run(f.String()+"_"+recName, func(b *testing.B) {
				var out Record
				for i := 0; i < b.N; i++ {
					if err := ser.Deserialize(data, &out); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")
			})
		}
	}
}

// BenchmarkDump measures dumping a pool of 1000 small entries
func BenchmarkDump(b *testing.B) {
	s, err := store.Open(mem.NewMemEngine(nil), "/dev/bench", 1, store.NoExpiry())
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
	pool, err := s.GetOrCreatePool("bench")
	if err != nil {
		b.Fatalf("GetOrCreatePool failed: %v", err)
	}
	for i := 0; i < 1000; i++ {
		v, _ := store.WrapValue([]byte(fmt.Sprintf("value-%d", i)))
		if err := pool.Put(store.KeyFromInt64(int64(i)), v); err != nil {
			b.Fatalf("Put failed: %v", err)
		}
	}

	for _, f := range formats {
		b.Run(f.String(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Dump(pool, io.Discard, f); err != nil {
					b.Fatalf("Dump failed: %v", err)
				}
			}
		})
	}
}
