package serializer

import (
	"encoding/json"

	"github.com/ValentinKolb/dvkv/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding.
// Command types are written by name, args as base64 strings.
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Name() string {
	return "json"
}

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// json merges into existing fields, a reused message must not keep old args
	*msg = common.Message{}
	return json.Unmarshal(b, msg)
}
