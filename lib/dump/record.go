package dump

import "fmt"

// RecordType identifies the kind of a dump record
type RecordType uint8

const (
	RecTHeader  RecordType = iota + 1 // First record, carries the pool tag
	RecTEntry                         // One key/value pair
	RecTTrailer                       // Last record, carries the number of entries
)

func (t RecordType) String() string {
	switch t {
	case RecTHeader:
		return "header"
	case RecTEntry:
		return "entry"
	case RecTTrailer:
		return "trailer"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Record is the unit a dump consists of. Which fields are set depends on the
// type:
//
//	header:  Tag, Version, ExpiryMode
//	entry:   Key, Value, ExpireIn
//	trailer: Count
type Record struct {
	Type RecordType `json:"type"`

	// header
	Tag        string `json:"tag,omitempty"`
	Version    uint32 `json:"version,omitempty"`
	ExpiryMode uint8  `json:"expiry_mode,omitempty"`

	// entry
	Key      []byte `json:"key,omitempty"`
	Value    []byte `json:"value,omitempty"`
	ExpireIn uint32 `json:"expire_in,omitempty"` // Remaining ttl in seconds, 0 = never

	// trailer
	Count uint64 `json:"count,omitempty"`
}
