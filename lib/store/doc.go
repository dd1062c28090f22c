// Package store is the client layer over a device key/value engine (see
// package engine). It turns the handle based engine calls into a small
// resource model with explicit lifecycles and structured errors.
//
// Key Components:
//
//   - Store: An open store on a device, created with Open(engine, path,
//     version, expiry). Opening an existing store with a different version
//     fails with an OpenError. Once closed, every operation fails with a
//     NotOpenError and every derived Pool or Iterator with an
//     InvalidHandleError.
//
//   - Expiry: The expiration policy of a store. NoExpiry, ArbitraryExpiry (the
//     ttl is set per value with Value.SetExpiry) or GlobalExpiry(ttl).
//
//   - Pool: A named partition of a store (GetOrCreatePool). All key/value
//     operations are scoped to a pool: Get, GetBytes, ValueLen, Put, Exists,
//     KeyInfo, Delete, BatchPut, Iterator and Range.
//
//   - Key: A 1 to engine.MaxKeySize byte immutable key (KeyFromBytes,
//     KeyFromString, KeyFromInt64).
//
//   - Value: A fixed capacity buffer of at most engine.MaxValueSize bytes. It
//     either owns engine memory (Store.AllocValue, NewValue) or borrows caller
//     memory (WrapValue) and must be released with Free. Accessing a freed
//     value fails with a UseAfterFreeError.
//
//   - Iterator: A cursor over the entries of a pool with the states Created,
//     Active, Exhausted and Ended. It holds one engine cursor and one scratch
//     value that are released exactly once.
//
//   - Error: Every failure is an *Error carrying a RetCode and, for engine
//     failures, the engine status code. Errors match by code:
//
//     if errors.Is(err, store.ErrNotFound) { ... }
//
// Resource handling:
//
// Engine memory and cursors are scarce. The package never relies on the
// garbage collector to release them: values are freed by the caller,
// iterators release their resources when exhausted or closed, and closing a
// store ends every iterator that is still live. Close and Free are
// idempotent.
//
// Example:
//
//	s, err := store.Open(eng, "/dev/fioa", 1, store.NoExpiry())
//	if err != nil { ... }
//	defer s.Close()
//
//	pool, err := s.GetOrCreatePool("users")
//	if err != nil { ... }
//
//	v, err := s.AllocValue(64)
//	if err != nil { ... }
//	defer v.Free()
//
//	_ = v.Write([]byte("hello"))
//	err = pool.Put(store.MustKey("alice"), v)
//
// Metrics:
//
// Each operation increments fkv_ops_total{op}, failed operations also
// fkv_errors_total{op,code}, and the latency is recorded in
// fkv_op_duration_seconds{op} (VictoriaMetrics, default set unless
// WithMetricsSet is given).
package store
