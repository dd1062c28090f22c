package pebble

import (
	"testing"

	enginetesting "github.com/ValentinKolb/fKV/lib/engine/testing"
	"github.com/cockroachdb/pebble/vfs"
)

func factory(tb testing.TB) enginetesting.Instance {
	clock := enginetesting.NewClock()
	return enginetesting.Instance{
		Engine: NewPebbleEngine(&Options{
			Capacity: 4 << 30,
			Clock:    clock.Now,
			FS:       vfs.NewMem(),
		}),
		Path:  "/fkv/store",
		Clock: clock,
	}
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "PebbleEngine", factory)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "PebbleEngine", factory)
}
