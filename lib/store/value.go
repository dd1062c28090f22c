package store

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Value is a bounded byte payload exchanged with the engine.
//
// A Value either owns engine memory (NewValue, Store.AllocValue) or borrows
// caller memory (WrapValue). It must be released with Free exactly once;
// afterwards every accessor fails with a UseAfterFreeError and a second Free
// is a no-op. Release is the caller's job on every exit path, typically with
// defer v.Free() directly after a successful allocation.
//
// Thread-safety: A Value is not safe for concurrent use.
type Value struct {
	buf    Buffer
	eng    engine.Engine // allocator of owned memory, nil for borrowed memory
	freed  bool
	expiry uint32 // per entry ttl in seconds (ArbitraryExpiry stores only), 0 = never
}

// NewValue allocates a value with the given capacity through the engine.
// The capacity must be in (0, engine.MaxValueSize].
func NewValue(eng engine.Engine, capacity int) (*Value, error) {
	data, err := allocate(eng, capacity)
	if err != nil {
		return nil, err
	}
	return &Value{buf: newBuffer(data, 0, true), eng: eng}, nil
}

// WrapValue creates a value borrowing b. The length is len(b), the capacity
// cap(b). The memory stays owned by the caller, Free only marks the value
// as released.
func WrapValue(b []byte) (*Value, error) {
	if cap(b) > engine.MaxValueSize {
		return nil, NewError("value", RetCCapacity,
			fmt.Sprintf("capacity %d exceeds the maximum value size of %d bytes", cap(b), engine.MaxValueSize))
	}
	return &Value{buf: newBuffer(b[:cap(b)], len(b), false)}, nil
}

func allocate(eng engine.Engine, capacity int) ([]byte, error) {
	if capacity <= 0 || capacity > engine.MaxValueSize {
		return nil, NewError("alloc", RetCAllocation,
			fmt.Sprintf("capacity %d out of range (0, %d]", capacity, engine.MaxValueSize))
	}
	data, err := eng.Alloc(capacity)
	if err != nil {
		e := translate("alloc", classIO, err).(*Error)
		e.Code = RetCAllocation
		return nil, e
	}
	if len(data) < capacity {
		eng.Free(data)
		return nil, NewError("alloc", RetCAllocation, "engine returned a short buffer")
	}
	return data[:capacity], nil
}

func (v *Value) check(op string) error {
	if v == nil {
		return NewError(op, RetCInvalidArgument, "nil value")
	}
	if v.freed {
		return NewError(op, RetCUseAfterFree, "value has been freed")
	}
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Bytes returns the content of the value. The slice aliases the value's
// memory and is only valid until the value is modified or freed.
func (v *Value) Bytes() ([]byte, error) {
	if err := v.check("value"); err != nil {
		return nil, err
	}
	return v.buf.bytes(), nil
}

// Copy returns a copy of the content of the value.
func (v *Value) Copy() ([]byte, error) {
	b, err := v.Bytes()
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Len returns the logical length of the value (0 once freed).
func (v *Value) Len() int {
	if v.freed {
		return 0
	}
	return v.buf.Len()
}

// Cap returns the capacity of the value (0 once freed).
func (v *Value) Cap() int {
	if v.freed {
		return 0
	}
	return v.buf.Cap()
}

// Owned reports whether the value's memory was allocated through the engine.
func (v *Value) Owned() bool {
	return v.buf.Owned()
}

// Freed reports whether Free has been called.
func (v *Value) Freed() bool {
	return v.freed
}

// Expiry returns the per entry ttl used by Pool.Put on ARBITRARY_EXPIRY stores.
func (v *Value) Expiry() time.Duration {
	return time.Duration(v.expiry) * time.Second
}

// --------------------------------------------------------------------------
// Mutators
// --------------------------------------------------------------------------

// Write replaces the content with p. p must fit into the capacity.
func (v *Value) Write(p []byte) error {
	if err := v.check("value"); err != nil {
		return err
	}
	return v.buf.write(p)
}

// SetLen sets the logical length, e.g. after filling the slice returned by Bytes.
func (v *Value) SetLen(n int) error {
	if err := v.check("value"); err != nil {
		return err
	}
	return v.buf.setLen(n)
}

// Reset sets the logical length to 0.
func (v *Value) Reset() error {
	return v.SetLen(0)
}

// SetExpiry sets the ttl the entry gets when the value is written to a store
// with ARBITRARY_EXPIRY (whole seconds, 0 = never). Other stores ignore it.
func (v *Value) SetExpiry(ttl time.Duration) error {
	if err := v.check("value"); err != nil {
		return err
	}
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return err
	}
	v.expiry = secs
	return nil
}

// Realloc releases the memory and allocates a new region with the given
// capacity. The length is reset to 0. Borrowed values get Go memory and stay
// borrowed.
func (v *Value) Realloc(capacity int) error {
	if err := v.check("realloc"); err != nil {
		return err
	}

	if v.eng == nil {
		if capacity <= 0 || capacity > engine.MaxValueSize {
			return NewError("realloc", RetCAllocation,
				fmt.Sprintf("capacity %d out of range (0, %d]", capacity, engine.MaxValueSize))
		}
		v.buf = newBuffer(make([]byte, capacity), 0, false)
		return nil
	}

	if err := v.release(); err != nil {
		v.freed = true
		return err
	}
	data, err := allocate(v.eng, capacity)
	if err != nil {
		v.freed = true
		return err
	}
	v.buf = newBuffer(data, 0, true)
	return nil
}

// Free releases the value's memory. Calling Free more than once is a no-op.
func (v *Value) Free() error {
	if v == nil || v.freed {
		return nil
	}
	v.freed = true
	return v.release()
}

// release hands owned memory back to the engine
func (v *Value) release() error {
	data := v.buf.data
	v.buf = Buffer{}
	if v.eng == nil || data == nil {
		return nil
	}
	return translate("free", classIO, v.eng.Free(data))
}
