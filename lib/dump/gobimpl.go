package dump

import (
	"bytes"
	"encoding/gob"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Every record is encoded with its own encoder, so records stay
// independently decodable.
func NewGOBSerializer() ISerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the ISerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see dump.ISerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, rec *Record) error {
	*rec = Record{}
	dec := gob.NewDecoder(bytes.NewReader(b))
	return dec.Decode(rec)
}
