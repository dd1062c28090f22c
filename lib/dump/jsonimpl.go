package dump

import (
	"encoding/json"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see dump.ISerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (j jsonSerializerImpl) Deserialize(b []byte, rec *Record) error {
	*rec = Record{}
	return json.Unmarshal(b, rec)
}
