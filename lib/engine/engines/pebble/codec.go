package pebble

import (
	"encoding/binary"
	"errors"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// --------------------------------------------------------------------------
// Key Layout
// --------------------------------------------------------------------------
//
//	0x00 "meta"                   -> store metadata (see meta)
//	0x01 | pool id (4 byte BE)    -> pool tag
//	0x02 | tag                    -> pool id (4 byte BE)
//	0x10 | pool id (4 byte BE) | key -> entry header (8 byte) | value

const (
	prefixMeta    byte = 0x00
	prefixPoolID  byte = 0x01
	prefixPoolTag byte = 0x02
	prefixEntry   byte = 0x10

	entryHeaderSize = 8
	metaSize        = 13
)

var (
	errCorruptMeta  = errors.New("pebble engine: corrupt store metadata")
	errCorruptEntry = errors.New("pebble engine: corrupt entry")

	metaKey = []byte{prefixMeta, 'm', 'e', 't', 'a'}
)

// --------------------------------------------------------------------------
// Store Metadata
// --------------------------------------------------------------------------

// meta is the persisted store configuration
type meta struct {
	Version  uint32
	Mode     engine.ExpiryMode
	TTL      uint32
	NextPool engine.PoolID
}

func (m meta) encode() []byte {
	buf := make([]byte, metaSize)
	binary.BigEndian.PutUint32(buf[0:4], m.Version)
	buf[4] = byte(m.Mode)
	binary.BigEndian.PutUint32(buf[5:9], m.TTL)
	binary.BigEndian.PutUint32(buf[9:13], uint32(m.NextPool))
	return buf
}

func decodeMeta(buf []byte) (meta, error) {
	if len(buf) != metaSize {
		return meta{}, errCorruptMeta
	}
	return meta{
		Version:  binary.BigEndian.Uint32(buf[0:4]),
		Mode:     engine.ExpiryMode(buf[4]),
		TTL:      binary.BigEndian.Uint32(buf[5:9]),
		NextPool: engine.PoolID(binary.BigEndian.Uint32(buf[9:13])),
	}, nil
}

// --------------------------------------------------------------------------
// Pool Registry Keys
// --------------------------------------------------------------------------

func poolIDKey(id engine.PoolID) []byte {
	return append([]byte{prefixPoolID}, encodePoolID(id)...)
}

func encodePoolID(id engine.PoolID) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

func decodePoolID(buf []byte) engine.PoolID {
	return engine.PoolID(binary.BigEndian.Uint32(buf))
}

func poolTagKey(tag string) []byte {
	buf := make([]byte, 1+len(tag))
	buf[0] = prefixPoolTag
	copy(buf[1:], tag)
	return buf
}

func decodePoolIDKey(key []byte) engine.PoolID {
	return decodePoolID(key[1:5])
}

// --------------------------------------------------------------------------
// Entry Keys and Values
// --------------------------------------------------------------------------

// entryKey returns the pebble key of an entry
func entryKey(pool engine.PoolID, key []byte) []byte {
	buf := make([]byte, 5+len(key))
	buf[0] = prefixEntry
	binary.BigEndian.PutUint32(buf[1:5], uint32(pool))
	copy(buf[5:], key)
	return buf
}

// poolBounds returns the key range [lower, upper) holding all entries of a pool
func poolBounds(pool engine.PoolID) (lower, upper []byte) {
	lower = entryKey(pool, nil)
	upper = entryKey(pool+1, nil)
	return lower, upper
}

// entryBounds returns the key range holding the entries of all pools
func entryBounds() (lower, upper []byte) {
	return []byte{prefixEntry}, []byte{prefixEntry + 1}
}

// userKey strips the pool prefix of an entry key
func userKey(key []byte) []byte {
	return key[5:]
}

// header is the metadata stored in front of every value
type header struct {
	ExpireAt uint32 // Absolute expiration time (unix seconds), 0 = never
	Gen      uint32 // Number of writes to this key
}

func (h header) expired(now uint32) bool {
	return h.ExpireAt != 0 && now >= h.ExpireAt
}

func encodeEntry(h header, value []byte) []byte {
	buf := make([]byte, entryHeaderSize+len(value))
	binary.BigEndian.PutUint32(buf[0:4], h.ExpireAt)
	binary.BigEndian.PutUint32(buf[4:8], h.Gen)
	copy(buf[entryHeaderSize:], value)
	return buf
}

// decodeEntry splits a stored entry. The returned value aliases buf.
func decodeEntry(buf []byte) (header, []byte, error) {
	if len(buf) < entryHeaderSize {
		return header{}, nil, errCorruptEntry
	}
	return header{
		ExpireAt: binary.BigEndian.Uint32(buf[0:4]),
		Gen:      binary.BigEndian.Uint32(buf[4:8]),
	}, buf[entryHeaderSize:], nil
}
