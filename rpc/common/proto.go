package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// A request carries the command and its parameters in Args. The response echoes
// the command, sets Status and carries the results in Args.
// The request id is not part of the message, it is carried by the transport frame.
type Message struct {
	// Command of the message
	MsgType MessageType `json:"msg_type"`

	// Status of a response (unused in requests)
	Status Status `json:"status,omitempty"`

	// Parameters (request) or results (response).
	// Error responses carry the message in Args[0] and the RetCode byte in Args[1].
	Args [][]byte `json:"args,omitempty"`
}

// Status is the outcome of a response
type Status uint8

const (
	StatusSuccess Status = iota
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the command of a message used in RPC communication.
type MessageType uint8

const (
	MsgTUnknown MessageType = iota

	// Session operations

	MsgTUse // Bind the session to a database

	// Data operations

	MsgTGet     // Get the latest values of keys
	MsgTGetAt   // Get the value of a key at a version
	MsgTVersion // Get the current versions of keys
	MsgTPut     // Write key/value pairs
	MsgTExists  // Check if keys exist
	MsgTPutEx   // Write the existence slot of a key under a policy
	MsgTGetEx   // Read the existence slots of keys

	// Batch operations

	MsgTBatchBegin  // Open a batch
	MsgTBatchAbort  // Drop the open batch
	MsgTBatchCommit // Write the open batch

	// Admin operations

	MsgTCreateDatabase  // Register a database
	MsgTEnableDatabase  // Enable a database
	MsgTDisableDatabase // Disable a database
	MsgTDropDatabase    // Remove a database and its data
	MsgTShowDatabases   // List all databases
	MsgTClusterInfo     // List all cluster topologies

	msgTCount // number of message types, keep last
)

var messageTypeNames = [...]string{
	MsgTUnknown:         "unknown",
	MsgTUse:             "use",
	MsgTGet:             "get",
	MsgTGetAt:           "getAt",
	MsgTVersion:         "version",
	MsgTPut:             "put",
	MsgTExists:          "exists",
	MsgTPutEx:           "putEx",
	MsgTGetEx:           "getEx",
	MsgTBatchBegin:      "batchBegin",
	MsgTBatchAbort:      "batchAbort",
	MsgTBatchCommit:     "batchCommit",
	MsgTCreateDatabase:  "createDatabase",
	MsgTEnableDatabase:  "enableDatabase",
	MsgTDisableDatabase: "disableDatabase",
	MsgTDropDatabase:    "dropDatabase",
	MsgTShowDatabases:   "showDatabases",
	MsgTClusterInfo:     "clusterInfo",
}

// MessageTypes returns all known message types (without MsgTUnknown)
func MessageTypes() []MessageType {
	types := make([]MessageType, 0, msgTCount-1)
	for t := MsgTUnknown + 1; t < msgTCount; t++ {
		types = append(types, t)
	}
	return types
}

// String returns the wire name of a MessageType.
func (t MessageType) String() string {
	if t < msgTCount {
		return messageTypeNames[t]
	}
	return "unknown"
}

// ParseMessageType returns the MessageType of a wire name
func ParseMessageType(s string) (MessageType, error) {
	for t := MsgTUnknown + 1; t < msgTCount; t++ {
		if messageTypeNames[t] == s {
			return t, nil
		}
	}
	return MsgTUnknown, fmt.Errorf("unknown message type: %s", s)
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
