package dump

import (
	"encoding/binary"
	"fmt"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and size
func NewBinarySerializer() ISerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements ISerializer using a custom binary format:
//
//	type(1) | flags(1) | [tag] | [version] | [expiry mode] | [key] | [value] | [expire in] | [count]
//
// Byte fields are prefixed with their length (uint32, big endian), only the
// fields flagged as present are written.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTag        byte = 1 << 0
	hasVersion    byte = 1 << 1
	hasExpiryMode byte = 1 << 2
	hasKey        byte = 1 << 3
	hasValue      byte = 1 << 4
	hasExpireIn   byte = 1 << 5
	hasCount      byte = 1 << 6
)

// --------------------------------------------------------------------------
// Interface Methods (docu see dump.ISerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(rec Record) ([]byte, error) {
	result := make([]byte, b.sizeBytes(rec))
	result[0] = byte(rec.Type)

	var flags byte
	pos := 2 // Start after Type and flags

	putBytes := func(flag byte, data []byte) {
		flags |= flag
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(data)))
		pos += 4
		pos += copy(result[pos:], data)
	}

	if rec.Tag != "" {
		putBytes(hasTag, []byte(rec.Tag))
	}
	if rec.Version != 0 {
		flags |= hasVersion
		binary.BigEndian.PutUint32(result[pos:pos+4], rec.Version)
		pos += 4
	}
	if rec.ExpiryMode != 0 {
		flags |= hasExpiryMode
		result[pos] = rec.ExpiryMode
		pos++
	}
	if rec.Key != nil {
		putBytes(hasKey, rec.Key)
	}
	if rec.Value != nil {
		putBytes(hasValue, rec.Value)
	}
	if rec.ExpireIn != 0 {
		flags |= hasExpireIn
		binary.BigEndian.PutUint32(result[pos:pos+4], rec.ExpireIn)
		pos += 4
	}
	if rec.Count != 0 {
		flags |= hasCount
		binary.BigEndian.PutUint64(result[pos:pos+8], rec.Count)
		pos += 8
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, rec *Record) error {
	// Check minimum size (Type + flags)
	if len(data) < 2 {
		return fmt.Errorf("%w: data too short for record header", ErrCorrupt)
	}

	*rec = Record{Type: RecordType(data[0])}
	flags := data[1]
	pos := 2

	need := func(n int, field string) error {
		if pos+n > len(data) {
			return fmt.Errorf("%w: data too short for %s", ErrCorrupt, field)
		}
		return nil
	}
	getBytes := func(field string) ([]byte, error) {
		if err := need(4, field+" length"); err != nil {
			return nil, err
		}
		n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if err := need(n, field); err != nil {
			return nil, err
		}
		// create an empty slice (not nil) if length is 0
		out := make([]byte, n)
		copy(out, data[pos:pos+n])
		pos += n
		return out, nil
	}

	if flags&hasTag != 0 {
		tag, err := getBytes("tag")
		if err != nil {
			return err
		}
		rec.Tag = string(tag)
	}
	if flags&hasVersion != 0 {
		if err := need(4, "version"); err != nil {
			return err
		}
		rec.Version = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}
	if flags&hasExpiryMode != 0 {
		if err := need(1, "expiry mode"); err != nil {
			return err
		}
		rec.ExpiryMode = data[pos]
		pos++
	}
	if flags&hasKey != 0 {
		key, err := getBytes("key")
		if err != nil {
			return err
		}
		rec.Key = key
	}
	if flags&hasValue != 0 {
		value, err := getBytes("value")
		if err != nil {
			return err
		}
		rec.Value = value
	}
	if flags&hasExpireIn != 0 {
		if err := need(4, "expire in"); err != nil {
			return err
		}
		rec.ExpireIn = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	}
	if flags&hasCount != 0 {
		if err := need(8, "count"); err != nil {
			return err
		}
		rec.Count = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	if pos != len(data) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(rec Record) int {
	// 1 byte for Type + 1 byte for flags
	size := 2

	if rec.Tag != "" {
		size += 4 + len(rec.Tag)
	}
	if rec.Version != 0 {
		size += 4
	}
	if rec.ExpiryMode != 0 {
		size++
	}
	if rec.Key != nil {
		size += 4 + len(rec.Key)
	}
	if rec.Value != nil {
		size += 4 + len(rec.Value)
	}
	if rec.ExpireIn != 0 {
		size += 4
	}
	if rec.Count != 0 {
		size += 8
	}
	return size
}
