package dump

import (
	"fmt"
	"strings"
)

// ISerializer is the interface for all record serializers
type ISerializer interface {
	// Serialize serializes a Record into a byte array
	Serialize(rec Record) ([]byte, error)
	// Deserialize deserializes a byte array into the given Record.
	// Fields not present in b are reset.
	Deserialize(b []byte, rec *Record) error
}

// Format identifies a serializer inside a dump file
type Format uint8

const (
	FormatJSON   Format = iota + 1 // encoding/json
	FormatGOB                      // encoding/gob
	FormatBinary                   // custom length prefixed format
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatGOB:
		return "gob"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat converts a format name (json, gob, binary) into a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "gob":
		return FormatGOB, nil
	case "binary":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("invalid serializer %s. must be one of json, gob, binary", s)
	}
}

// NewSerializer creates the serializer for a format.
func NewSerializer(f Format) (ISerializer, error) {
	switch f {
	case FormatJSON:
		return NewJSONSerializer(), nil
	case FormatGOB:
		return NewGOBSerializer(), nil
	case FormatBinary:
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrCorrupt, uint8(f))
	}
}
