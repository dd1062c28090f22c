// Package pebble implements the engine.Engine interface on top of a
// cockroachdb/pebble LSM database. It gives fKV a persistent backend on hosts
// without flash hardware: every device path is a pebble database directory
// and survives process restarts.
//
// Key Layout:
//
//   - The store configuration (version, expiry mode, ttl and the next pool id)
//     is kept in a single metadata record. Opening an existing database with a
//     different version or expiry configuration fails with EINVAL.
//   - Pools are registered twice, by id (for listing in creation order) and by
//     tag (for GetOrCreatePool).
//   - Entries are stored under pool id + key, so every pool is a contiguous key
//     range. Deleting a pool is a single range deletion and cursors are plain
//     pebble iterators bounded to the pool's range. The iteration order is the
//     byte order of the keys.
//   - Every value carries an 8 byte header with the absolute expiry time and the
//     generation count of the entry.
//
// Expiration:
//
//   - Expired entries are filtered on read (Get, Exists, cursors, StoreInfo) and
//     physically replaced by the next write to the same key. There is no
//     background compaction of expired entries.
//
// Space Accounting:
//
//   - As on a flash device, every entry occupies len(key)+len(value) bytes
//     rounded up to the sector size. The sum is kept in memory (rebuilt when the
//     database is opened) and compared against the configured capacity. Writes
//     that would exceed it fail with ENOSPC.
//
// Concurrency:
//
//   - All handles on one path share one pebble.DB. Calls are serialized per
//     database by a mutex, which also protects the open pebble iterators.
//     The database is closed when its last handle is closed.
//
// Buffers:
//
//   - Alloc returns ordinary Go memory with a sector aligned capacity and Free
//     is a validation no-op, the garbage collector reclaims the buffers.
package pebble
