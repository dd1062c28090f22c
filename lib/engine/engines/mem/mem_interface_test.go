package mem

import (
	"testing"

	enginetesting "github.com/ValentinKolb/fKV/lib/engine/testing"
)

func factory(tb testing.TB) enginetesting.Instance {
	clock := enginetesting.NewClock()
	return enginetesting.Instance{
		Engine: NewMemEngine(&Options{Capacity: 4 << 30, Clock: clock.Now}),
		Path:   "/dev/fioa",
		Clock:  clock,
	}
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "MemEngine", factory)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "MemEngine", factory)
}
