// Package engine defines the boundary between the fKV client layer and a
// device-resident key/value engine. The engine owns the data; the client
// layer (package store) only holds handles, pool ids and cursor ids.
//
// The package focuses on:
//   - A single Engine interface that every backend implements
//   - Errno based failure reporting, mirroring the device SDK
//   - Shared limits (key, value and tag sizes, sector alignment)
//   - Plain descriptor types for store, pool and key metadata
//
// Key Components:
//
//   - Engine Interface: Lifecycle (Open, Close, StoreInfo), pool management
//     (GetOrCreatePool, Pools, DeletePool, DeleteAllPools, DeleteAll), buffer
//     management (Alloc, Free), point operations (Get, Put, Exists, Delete,
//     ValueLen, KeyInfo, BatchPut) and cursor iteration (Iterator, Next,
//     Current, EndIteration).
//
//   - Errno: Every failed engine call returns an Errno, the numeric error code
//     the device reports for the call. Errors are returned directly instead of
//     through a per-thread "last error" slot, so callers on different goroutines
//     can never observe each other's failures. ErrnoOf extracts the code from
//     wrapped errors and maps unknown errors to EIO.
//
//   - Implementation Identifiers: The Implementation type names the available
//     backends ("mem", "pebble", "native").
//
// Iteration Protocol:
//   - Iterator positions a new cursor on the first entry of a pool.
//   - Current copies the pair under the cursor. It reports ENODATA when the
//     cursor has no entry (empty pool or exhausted).
//   - Next moves the cursor and reports ENODATA once it moves past the last
//     entry. Further calls keep reporting ENODATA.
//   - EndIteration releases the cursor. Closing a handle ends all its cursors.
//   - The iteration order is defined by the engine and not guaranteed.
//
// Expiration:
//   - A store is opened with an ExpiryMode. For GlobalExpiry the store wide
//     ttl (seconds) applies to every write; for ArbitraryExpiry each write
//     carries its own ttl (0 = never). Expired entries behave as absent for all
//     operations.
//
// Thread-safety: All implementations must be safe for concurrent use. Calls
// on the same handle from multiple goroutines must behave as if serialized.
package engine
