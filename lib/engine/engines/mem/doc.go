// Package mem implements an in-process emulation of a flash key/value device.
// It provides a complete implementation of the engine.Engine interface and is
// the default engine for tests, demos and hosts without flash hardware.
//
// Key Components:
//
//   - memImpl: The engine. It keeps a registry of devices by path and a table
//     of open handles. A device outlives the handles pointing at it, so a store
//     can be closed and opened again with its content intact (for the lifetime
//     of the engine value).
//
//   - Device: One emulated device with its pools, open cursors, expiry queue
//     and space accounting. Every engine call locks the device, collects due
//     entries and then performs the operation, so operations on one device are
//     linearizable.
//
//   - Pool: A named key space backed by an xsync.MapOf. Pool ids are assigned
//     in creation order and are never reused within a device.
//
//   - Cursor: A snapshot of the pool's keys. Keys are ordered by a seeded hash,
//     which gives an order that is stable for one engine but unspecified to
//     callers, much like a device walking its hash table. Entries deleted or
//     expired after the snapshot are skipped.
//
// Space Accounting:
//
//   - Every entry occupies len(key)+len(value) bytes rounded up to the sector
//     size (512 bytes). A write that would exceed the configured capacity fails
//     with ENOSPC. BatchPut checks the capacity of the whole batch up front and
//     is applied completely or not at all.
//
// Expiration:
//
//   - With GLOBAL_EXPIRY every write expires after the store wide ttl. With
//     ARBITRARY_EXPIRY the per write expiry (seconds, 0 = never) is used. Due
//     entries are removed through a deadline heap at the start of each call.
//     The time source is configurable, so tests drive expiration without
//     sleeping.
//
// Buffers:
//
//   - Alloc returns sector aligned slices and tracks them until Free.
//     Outstanding reports the number of buffers not yet released, which the
//     store tests use to detect leaks.
package mem
