// Package testing provides standardised tests and benchmarks for
// engine implementations that satisfy the engine.Engine interface.
//
// The package contains:
//   - engine_testing: A conformance suite for the engine contract (errno values,
//     pool isolation, cursor exhaustion, expiration and reopening)
//   - engine_benchmarks: Throughput measurements for the common engine calls
//
// Engines that expire entries should run on the manual Clock of this package,
// so expiration can be tested without sleeping. Engines that only know wall
// time leave Instance.Clock nil and the expiry tests are skipped.
//
// Example usage:
//
//	factory := func(tb testing.TB) enginetesting.Instance {
//		clock := enginetesting.NewClock()
//		return enginetesting.Instance{
//			Engine: NewMyEngine(clock.Now),
//			Path:   tb.TempDir(),
//			Clock:  clock,
//		}
//	}
//
//	enginetesting.RunEngineTests(t, "MyEngine", factory)
//	enginetesting.RunEngineBenchmarks(b, "MyEngine", factory)
package testing
