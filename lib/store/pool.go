package store

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Pool is a named partition of a store. Pools with the same tag refer to the
// same partition.
//
// A Pool is valid while its store is open and the pool has not been deleted.
// Operations on an invalid pool fail with an InvalidHandleError.
type Pool struct {
	store *Store
	tag   string
	id    engine.PoolID
	gen   uint64
}

// KeyValuePair is a borrowed view of one entry. Pairs returned by an
// Iterator share the iterator's scratch value.
type KeyValuePair struct {
	Key   Key
	Value *Value
}

// Tag returns the tag of the pool.
func (p *Pool) Tag() string { return p.tag }

// ID returns the engine id of the pool.
func (p *Pool) ID() engine.PoolID { return p.id }

// Store returns the store the pool belongs to.
func (p *Pool) Store() *Store { return p.store }

// Valid reports whether the pool can still be used.
func (p *Pool) Valid() bool {
	return p.check("pool") == nil
}

func (p *Pool) String() string {
	return fmt.Sprintf("%s#%d", p.tag, p.id)
}

func (p *Pool) check(op string) error {
	if p == nil || p.store == nil {
		return NewError(op, RetCInvalidArgument, "nil pool")
	}
	if !p.store.open.Load() {
		return NewError(op, RetCInvalidHandle, fmt.Sprintf("pool %s: store is closed", p))
	}
	if !p.store.poolValid(p.id, p.gen) {
		return NewError(op, RetCInvalidHandle, fmt.Sprintf("pool %s has been deleted", p))
	}
	return nil
}

// observe records the metrics of a pool operation. Operations on a nil or
// zero Pool fail in check and are not recorded.
func (p *Pool) observe(op string, start time.Time, err *error) {
	if p == nil || p.store == nil {
		return
	}
	p.store.metrics.observe(op, start, err)
}

// checkKey rejects the zero Key before it reaches the engine
func checkKey(op string, key Key) error {
	if key.IsZero() {
		return NewError(op, RetCInvalidArgument, "empty key")
	}
	return nil
}

// entryExpiry returns the per entry ttl that is forwarded for value
func (p *Pool) entryExpiry(value *Value) uint32 {
	if p.store.expiry.Mode() != engine.ArbitraryExpiry {
		return 0
	}
	return value.expiry
}

// --------------------------------------------------------------------------
// Point Operations
// --------------------------------------------------------------------------

// Get reads the value for key into value and returns the number of bytes
// read (also available as value.Len()). value must be live and large enough
// for the stored value, otherwise a CapacityError is returned. A missing key
// yields a NotFoundError.
func (p *Pool) Get(key Key, value *Value) (n int, err error) {
	defer p.observe("get", time.Now(), &err)
	if err := p.check("get"); err != nil {
		return 0, err
	}
	if err := checkKey("get", key); err != nil {
		return 0, err
	}
	if err := value.check("get"); err != nil {
		return 0, err
	}

	n, err = p.store.eng.Get(p.store.handle, p.id, key.Bytes(), value.buf.data)
	if err != nil {
		return 0, translate("get", classIO, err)
	}
	if err := value.buf.setLen(n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetBytes returns a copy of the value for key. The transfer buffer is
// allocated through the engine and released before GetBytes returns.
func (p *Pool) GetBytes(key Key) ([]byte, error) {
	n, err := p.ValueLen(key)
	if err != nil {
		return nil, err
	}
	value, err := NewValue(p.store.eng, max(n, 1))
	if err != nil {
		return nil, err
	}
	defer value.Free()

	if _, err := p.Get(key, value); err != nil {
		return nil, err
	}
	return value.Copy()
}

// ValueLen returns the length of the value stored for key.
func (p *Pool) ValueLen(key Key) (n int, err error) {
	defer p.observe("value_len", time.Now(), &err)
	if err := p.check("value_len"); err != nil {
		return 0, err
	}
	if err := checkKey("value_len", key); err != nil {
		return 0, err
	}
	n, err = p.store.eng.ValueLen(p.store.handle, p.id, key.Bytes())
	if err != nil {
		return 0, translate("value_len", classIO, err)
	}
	return n, nil
}

// Put inserts or replaces the entry for key with the content of value. On
// ARBITRARY_EXPIRY stores the entry gets the ttl set with value.SetExpiry.
func (p *Pool) Put(key Key, value *Value) (err error) {
	defer p.observe("put", time.Now(), &err)
	if err := p.check("put"); err != nil {
		return err
	}
	if err := checkKey("put", key); err != nil {
		return err
	}
	if err := value.check("put"); err != nil {
		return err
	}

	_, err = p.store.eng.Put(p.store.handle, p.id, key.Bytes(), value.buf.bytes(), p.entryExpiry(value))
	return translate("put", classIO, err)
}

// Exists reports whether an entry for key exists.
func (p *Pool) Exists(key Key) (ok bool, err error) {
	defer p.observe("exists", time.Now(), &err)
	if err := p.check("exists"); err != nil {
		return false, err
	}
	if err := checkKey("exists", key); err != nil {
		return false, err
	}
	_, ok, err = p.store.eng.Exists(p.store.handle, p.id, key.Bytes())
	if err != nil {
		return false, translate("exists", classIO, err)
	}
	return ok, nil
}

// KeyInfo returns the metadata of the entry for key. A missing key yields a
// NotFoundError.
func (p *Pool) KeyInfo(key Key) (info KeyValueInfo, err error) {
	defer p.observe("key_info", time.Now(), &err)
	if err := p.check("key_info"); err != nil {
		return KeyValueInfo{}, err
	}
	if err := checkKey("key_info", key); err != nil {
		return KeyValueInfo{}, err
	}
	raw, err := p.store.eng.KeyInfo(p.store.handle, p.id, key.Bytes())
	if err != nil {
		return KeyValueInfo{}, translate("key_info", classQuery, err)
	}
	return keyInfoFrom(raw), nil
}

// Delete removes the entry for key. It returns true if an entry was removed
// and false if there was none.
//
// The engine reports both "no such entry" and some device failures through
// its status code. Only ENOENT is treated as absence, every other failure is
// returned as an error (an engine that cannot distinguish the two reports
// ENOENT, in which case a failed delete is indistinguishable from a miss).
func (p *Pool) Delete(key Key) (deleted bool, err error) {
	defer p.observe("delete", time.Now(), &err)
	if err := p.check("delete"); err != nil {
		return false, err
	}
	if err := checkKey("delete", key); err != nil {
		return false, err
	}

	err = p.store.eng.Delete(p.store.handle, p.id, key.Bytes())
	switch engine.ErrnoOf(err) {
	case engine.EOK:
		return true, nil
	case engine.ENOENT:
		return false, nil
	}
	e := translate("delete", classIO, err).(*Error)
	e.Code = RetCIOError
	return false, e
}

// BatchPut writes all pairs keys[i] -> values[i]. The slices must have the
// same length, an empty batch is a no-op.
//
// The batch is not atomic: on error, any subset of the pairs may have been
// written.
func (p *Pool) BatchPut(keys []Key, values []*Value) (err error) {
	defer p.observe("batch_put", time.Now(), &err)
	if err := p.check("batch_put"); err != nil {
		return err
	}
	if len(keys) != len(values) {
		return NewError("batch_put", RetCInvalidArgument,
			fmt.Sprintf("%d keys but %d values", len(keys), len(values)))
	}
	if len(keys) == 0 {
		return nil
	}

	rawKeys := make([][]byte, len(keys))
	rawValues := make([][]byte, len(values))
	var expiries []uint32
	if p.store.expiry.Mode() == engine.ArbitraryExpiry {
		expiries = make([]uint32, len(values))
	}
	for i := range keys {
		if err := checkKey("batch_put", keys[i]); err != nil {
			return err
		}
		if err := values[i].check("batch_put"); err != nil {
			return err
		}
		rawKeys[i] = keys[i].Bytes()
		rawValues[i] = values[i].buf.bytes()
		if expiries != nil {
			expiries[i] = values[i].expiry
		}
	}

	err = p.store.eng.BatchPut(p.store.handle, p.id, rawKeys, rawValues, expiries)
	return translate("batch_put", classIO, err)
}

// --------------------------------------------------------------------------
// Iteration
// --------------------------------------------------------------------------

// Iterator opens an iterator over the entries of the pool. The iterator must
// be closed (or run to exhaustion).
func (p *Pool) Iterator() (it *Iterator, err error) {
	defer p.observe("iterator", time.Now(), &err)
	if err := p.check("iterator"); err != nil {
		return nil, err
	}

	cursor, err := p.store.eng.Iterator(p.store.handle, p.id)
	if err != nil {
		return nil, translate("iterator", classIO, err)
	}
	scratch, err := NewValue(p.store.eng, engine.MaxValueSize)
	if err != nil {
		if endErr := p.store.eng.EndIteration(p.store.handle, p.id, cursor); endErr != nil {
			log.Warningf("ending cursor %d of pool %s: %v", cursor, p, endErr)
		}
		return nil, err
	}

	it = &Iterator{pool: p, cursor: cursor, scratch: scratch}
	p.store.trackIterator(it)
	return it, nil
}

// Range calls fn for every entry of the pool until fn returns false. The
// pair passed to fn is only valid during the call. The iterator is always
// ended before Range returns.
func (p *Pool) Range(fn func(pair KeyValuePair) bool) (err error) {
	it, err := p.Iterator()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := it.Close(); err == nil {
			err = closeErr
		}
	}()

	for it.Next() {
		if !fn(it.Pair()) {
			return nil
		}
	}
	return it.Err()
}
