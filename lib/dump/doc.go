// Package dump exports the entries of a pool into a portable stream and
// replays such a stream into a pool.
//
// Stream layout:
//
//	"FKVD" | file version (1 byte) | format (1 byte) | frame*
//	frame = length (uint32, big endian) | serialized Record
//
// The first record is a header (pool tag, store version, expiry mode), the
// last one a trailer holding the number of entries. Everything in between is
// one entry record per key/value pair. A stream without trailer is reported
// as ErrCorrupt, so truncated dumps are never mistaken for complete ones.
//
// Key Components:
//
//   - ISerializer: Interface for record serializers, with three
//     implementations selected by Format:
//
//   - binarySerializerImpl: Custom flag based format that only encodes
//     present fields. Smallest and fastest, recommended for large pools.
//
//   - jsonSerializerImpl: encoding/json, human readable (keys and values are
//     base64 encoded).
//
//   - gobSerializerImpl: encoding/gob. Every record carries its own type
//     description, which makes it the largest of the three.
//
//   - Dump: Streams a pool through store.Pool.Range. On ARBITRARY_EXPIRY
//     stores the remaining ttl of every entry is recorded.
//
//   - Restore: Reads a dump and writes the entries with store.Pool.BatchPut
//     in chunks (RestoreOptions.BatchSize).
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use.
//	Dump and Restore use the pool like any other caller and must not race
//	with the deletion of that pool.
package dump
