package store

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// Key is an immutable, fixed capacity key of 1 to engine.MaxKeySize bytes.
// Keys are plain values: they can be copied, compared with == and used as map keys.
type Key struct {
	bytes  [engine.MaxKeySize]byte
	length uint8
}

// KeyFromBytes copies b into a new key.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) == 0 {
		return Key{}, NewError("key", RetCInvalidArgument, "key must not be empty")
	}
	if len(b) > engine.MaxKeySize {
		return Key{}, NewError("key", RetCInvalidArgument,
			fmt.Sprintf("key of %d bytes exceeds the maximum of %d bytes", len(b), engine.MaxKeySize))
	}
	var k Key
	copy(k.bytes[:], b)
	k.length = uint8(len(b))
	return k, nil
}

// KeyFromString creates a key from the bytes of s.
func KeyFromString(s string) (Key, error) {
	return KeyFromBytes([]byte(s))
}

// KeyFromInt64 creates an 8 byte key holding v in big endian byte order.
// Big endian keeps the byte order of keys equal to the numeric order of non-negative values.
func KeyFromInt64(v int64) Key {
	var k Key
	binary.BigEndian.PutUint64(k.bytes[:8], uint64(v))
	k.length = 8
	return k
}

// MustKey is like KeyFromString but panics on invalid input. It simplifies
// building keys from constants.
func MustKey(s string) Key {
	k, err := KeyFromString(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Bytes returns the key content. The slice refers to a copy of the key.
func (k Key) Bytes() []byte {
	return k.bytes[:k.length]
}

// Len returns the key length in bytes.
func (k Key) Len() int {
	return int(k.length)
}

// Int64 decodes a key created with KeyFromInt64.
func (k Key) Int64() (int64, bool) {
	if k.length != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(k.bytes[:8])), true
}

// Equal reports whether both keys have the same content.
func (k Key) Equal(other Key) bool {
	return k.length == other.length && bytes.Equal(k.bytes[:k.length], other.bytes[:other.length])
}

// IsZero reports whether k is the zero Key (no content).
func (k Key) IsZero() bool {
	return k.length == 0
}

// String renders printable keys as text and everything else as hex.
func (k Key) String() string {
	b := k.bytes[:k.length]
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return "0x" + hex.EncodeToString(b)
		}
	}
	return string(b)
}

// setBytes overwrites the content with the first n bytes of b (used by iterators).
func (k *Key) setBytes(b []byte) {
	k.length = uint8(copy(k.bytes[:], b))
}
