package store

import (
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// IteratorState is the lifecycle state of an Iterator.
type IteratorState uint8

const (
	IteratorCreated   IteratorState = iota // Opened, nothing fetched yet
	IteratorActive                         // Positioned on an entry
	IteratorExhausted                      // No more entries (or a fetch failed), resources released
	IteratorEnded                          // Closed by the caller or by its store
)

func (s IteratorState) String() string {
	switch s {
	case IteratorCreated:
		return "Created"
	case IteratorActive:
		return "Active"
	case IteratorExhausted:
		return "Exhausted"
	case IteratorEnded:
		return "Ended"
	default:
		return fmt.Sprintf("IteratorState(%d)", uint8(s))
	}
}

// Iterator walks the entries of a pool in engine order:
//
//	it, err := pool.Iterator()
//	if err != nil { ... }
//	defer it.Close()
//	for it.Next() {
//	    pair := it.Pair()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
//
// The iterator owns one engine cursor and one scratch value of
// engine.MaxValueSize bytes. Both are released exactly once, either when
// Next runs past the last entry or fails, or by Close, whichever comes
// first. Closing the store or deleting the pool closes the iterator.
//
// Every pair returned by Pair shares the scratch value, so a pair's Value is
// overwritten by the next call to Next and freed when the iterator is done.
// Copy what must outlive the iteration.
//
// Thread-safety: An Iterator is not safe for concurrent use.
type Iterator struct {
	pool    *Pool
	cursor  engine.CursorID
	scratch *Value
	key     Key

	state    IteratorState
	released bool
	err      error
}

// State returns the lifecycle state of the iterator.
func (it *Iterator) State() IteratorState {
	return it.state
}

// Next advances to the next entry and reports whether there is one. The
// first call fetches the entry the cursor was opened on.
//
// When Next returns false the iterator has released its resources; Err
// tells whether the iteration ended normally.
func (it *Iterator) Next() bool {
	switch it.state {
	case IteratorExhausted, IteratorEnded:
		return false
	}

	if err := it.pool.check("iterator"); err != nil {
		it.finish(err)
		return false
	}

	eng := it.pool.store.eng
	h := it.pool.store.handle

	if it.state == IteratorActive {
		if err := eng.Next(h, it.pool.id, it.cursor); err != nil {
			it.finish(err)
			return false
		}
	}

	var keyBuf [engine.MaxKeySize]byte
	kn, vn, err := eng.Current(h, it.pool.id, it.cursor, keyBuf[:], it.scratch.buf.data)
	if err != nil {
		it.finish(err)
		return false
	}
	if err := it.scratch.buf.setLen(vn); err != nil {
		it.finish(err)
		return false
	}
	it.key.setBytes(keyBuf[:kn])
	it.state = IteratorActive
	return true
}

// Pair returns the current entry. It is the zero pair unless the last call
// to Next returned true.
func (it *Iterator) Pair() KeyValuePair {
	if it.state != IteratorActive {
		return KeyValuePair{}
	}
	return KeyValuePair{Key: it.key, Value: it.scratch}
}

// Err returns the error that stopped the iteration, nil if the iteration ran
// to its end or is still in progress.
func (it *Iterator) Err() error {
	return it.err
}

// Close ends the iterator and releases its resources. Calling Close more
// than once is a no-op.
func (it *Iterator) Close() error {
	if it.state == IteratorEnded {
		return nil
	}
	it.state = IteratorEnded
	return it.release()
}

// finish moves the iterator to Exhausted after a failed fetch. ENODATA marks
// the regular end of the iteration and is not reported.
func (it *Iterator) finish(err error) {
	if engine.ErrnoOf(err) != engine.ENODATA {
		if _, ok := err.(*Error); ok {
			it.err = err
		} else {
			it.err = translate("iterator", classIO, err)
		}
	}
	it.state = IteratorExhausted
	if relErr := it.release(); relErr != nil && it.err == nil {
		it.err = relErr
	}
}

// release ends the engine cursor and frees the scratch value, once
func (it *Iterator) release() error {
	if it.released {
		return nil
	}
	it.released = true
	it.pool.store.untrackIterator(it)

	var err error
	if it.pool.store.open.Load() {
		if endErr := it.pool.store.eng.EndIteration(it.pool.store.handle, it.pool.id, it.cursor); endErr != nil {
			// the cursor is gone with its pool or handle
			if engine.ErrnoOf(endErr) != engine.EBADF {
				err = translate("end_iteration", classIO, endErr)
			}
		}
	}
	if freeErr := it.scratch.Free(); freeErr != nil && err == nil {
		err = freeErr
	}
	return err
}
