package engine

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMem    Implementation = "mem"
	ImplPebble Implementation = "pebble"
	ImplNative Implementation = "native"
)

// Limits imposed by the device on keys, values and pools.
const (
	MaxKeySize      = 128              // Maximum key length in bytes
	MaxValueSize    = 1024*1024 - 1024 // Maximum value length in bytes (1 MiB minus one sector header)
	MaxPools        = 1024             // Maximum number of pools per store
	MaxPoolTagSize  = 16               // Maximum pool tag length in bytes
	SectorAlignment = 512              // Alignment of engine allocated buffers
)

// ExpiryMode is the key/value expiration policy of a store.
// The ordinals match the nvm_kv_expiry_t enum of the device SDK.
type ExpiryMode uint8

const (
	NoExpiry        ExpiryMode = iota // Entries never expire
	ArbitraryExpiry                   // Every entry carries its own TTL
	GlobalExpiry                      // All entries share the store TTL
)

func (m ExpiryMode) String() string {
	switch m {
	case NoExpiry:
		return "NO_EXPIRY"
	case ArbitraryExpiry:
		return "ARBITRARY_EXPIRY"
	case GlobalExpiry:
		return "GLOBAL_EXPIRY"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the known modes.
func (m ExpiryMode) Valid() bool {
	return m <= GlobalExpiry
}

// Handle identifies an open store inside an engine.
type Handle int64

// PoolID identifies a pool inside a store.
type PoolID int32

// CursorID identifies an iteration cursor inside a pool.
type CursorID int32

// PoolDesc describes a pool as reported by the engine.
type PoolDesc struct {
	ID  PoolID `json:"id"`
	Tag string `json:"tag"`
}

// StoreInfo is a snapshot of store level statistics.
type StoreInfo struct {
	Version    uint32     `json:"version"`
	NumPools   uint32     `json:"num_pools"`
	MaxPools   uint32     `json:"max_pools"`
	ExpiryMode ExpiryMode `json:"expiry_mode"`
	NumKeys    uint64     `json:"num_keys"`
	FreeSpace  uint64     `json:"free_space"`
}

// KeyInfo is a snapshot of the metadata the engine keeps for one entry.
type KeyInfo struct {
	PoolID   PoolID `json:"pool_id"`
	KeyLen   uint32 `json:"key_len"`
	ValueLen uint32 `json:"value_len"`
	Expiry   uint32 `json:"expiry"`    // Absolute expiry (unix seconds), 0 = never
	GenCount uint32 `json:"gen_count"` // Number of times the entry was written
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Engine is the boundary to the device key/value engine.
// All methods are synchronous and block until the engine call has completed.
// Failures are reported as Errno values (possibly wrapped), so callers never
// have to consult an out-of-band last-error slot.
//
// Handles, pool ids and cursor ids are only meaningful for the engine that
// produced them.
type Engine interface {

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Open binds a store on the device at path. Opening an existing store with
	// a different version fails with EINVAL. expiryTime is the TTL in seconds
	// and is only used for GlobalExpiry.
	Open(path string, version uint32, mode ExpiryMode, expiryTime uint32) (h Handle, err error)

	// Close releases the store handle. All cursors of the handle are ended.
	Close(h Handle) (err error)

	// StoreInfo returns statistics about the store.
	StoreInfo(h Handle) (info StoreInfo, err error)

	// --------------------------------------------------------------------------
	// Pool Management
	// --------------------------------------------------------------------------

	// GetOrCreatePool returns the pool with the given tag, creating it if needed.
	GetOrCreatePool(h Handle, tag string) (pool PoolID, err error)

	// Pools lists all pools of the store.
	Pools(h Handle) (pools []PoolDesc, err error)

	// DeletePool removes a pool and all of its entries.
	DeletePool(h Handle, pool PoolID) (err error)

	// DeleteAllPools removes every pool and all entries.
	DeleteAllPools(h Handle) (err error)

	// DeleteAll removes all entries of all pools but keeps the pools.
	DeleteAll(h Handle) (err error)

	// --------------------------------------------------------------------------
	// Buffer Allocation
	// --------------------------------------------------------------------------

	// Alloc returns engine memory able to hold length bytes.
	Alloc(length int) (buf []byte, err error)

	// Free releases memory obtained from Alloc.
	Free(buf []byte) (err error)

	// --------------------------------------------------------------------------
	// Point Operations
	// --------------------------------------------------------------------------

	// ValueLen returns the length of the value stored for key.
	ValueLen(h Handle, pool PoolID, key []byte) (n int, err error)

	// KeyInfo returns the metadata of the entry for key.
	KeyInfo(h Handle, pool PoolID, key []byte) (info KeyInfo, err error)

	// Get copies the value for key into out and returns the number of bytes written.
	// If out is too small, E2BIG is returned and out is left untouched.
	Get(h Handle, pool PoolID, key []byte, out []byte) (n int, err error)

	// Put inserts or replaces the entry for key and returns the number of bytes written.
	// expiry is a TTL in seconds and is only honoured in ArbitraryExpiry mode.
	Put(h Handle, pool PoolID, key []byte, value []byte, expiry uint32) (n int, err error)

	// Exists reports whether an entry for key exists and returns its metadata.
	Exists(h Handle, pool PoolID, key []byte) (info KeyInfo, ok bool, err error)

	// Delete removes the entry for key. ENOENT is returned if there was none.
	Delete(h Handle, pool PoolID, key []byte) (err error)

	// BatchPut writes all pairs. expiries may be nil.
	// Atomicity is engine defined, an error means at least one pair may not have been written.
	BatchPut(h Handle, pool PoolID, keys, values [][]byte, expiries []uint32) (err error)

	// --------------------------------------------------------------------------
	// Iteration
	// --------------------------------------------------------------------------

	// Iterator opens a cursor positioned on the first entry of the pool.
	Iterator(h Handle, pool PoolID) (cursor CursorID, err error)

	// Next moves the cursor forward. ENODATA is returned when it is exhausted.
	Next(h Handle, pool PoolID, cursor CursorID) (err error)

	// Current copies the entry under the cursor into keyOut and valueOut.
	// ENODATA is returned when the cursor is exhausted.
	Current(h Handle, pool PoolID, cursor CursorID, keyOut, valueOut []byte) (keyLen, valueLen int, err error)

	// EndIteration releases the cursor.
	EndIteration(h Handle, pool PoolID, cursor CursorID) (err error)

	// --------------------------------------------------------------------------
	// Metadata
	// --------------------------------------------------------------------------

	// Name returns the implementation identifier of the engine.
	Name() Implementation
}
