package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dvkv/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte  MsgType
//	1 byte  Status
//	4 bytes number of args (uint32, big endian)
//	per arg: 4 bytes length (uint32, big endian) + data
type binarySerializerImpl struct {
}

const headerSize = 6

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Name() string {
	return "binary"
}

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)
	result[1] = byte(msg.Status)
	binary.BigEndian.PutUint32(result[2:headerSize], uint32(len(msg.Args)))

	pos := headerSize
	for _, arg := range msg.Args {
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(arg)))
		pos += 4
		pos += copy(result[pos:], arg)
	}

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	msg.Status = common.Status(data[1])
	argc := binary.BigEndian.Uint32(data[2:headerSize])

	// every arg needs at least its length prefix
	if uint64(argc)*4 > uint64(len(data)-headerSize) {
		return fmt.Errorf("data too short for %d args", argc)
	}

	if argc == 0 {
		msg.Args = nil
		return nil
	}

	args := make([][]byte, argc)
	pos := headerSize
	for i := range args {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for length of arg %d", i)
		}
		argLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if argLen > len(data)-pos {
			return fmt.Errorf("data too short for arg %d", i)
		}

		// copy, data is owned by the transport
		args[i] = make([]byte, argLen)
		copy(args[i], data[pos:pos+argLen])
		pos += argLen
	}

	if pos != len(data) {
		return fmt.Errorf("unexpected %d trailing bytes", len(data)-pos)
	}

	msg.Args = args
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize
	for _, arg := range msg.Args {
		size += 4 + len(arg)
	}
	return size
}
