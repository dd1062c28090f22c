// Package util provides utility components for engine implementations that
// satisfy the engine.Engine interface and for tools built on top of them.
//
// The package contains:
//   - expiryheap: A deadline queue with key-based access, used by engines to expire entries
//   - statistics: A SizeHistogram for tracking value size distributions and sector usage
//   - functions: Seeded hashing, seed generation and alignment helpers
package util
