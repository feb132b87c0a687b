package common

import (
	"encoding/binary"
	"errors"

	"github.com/ValentinKolb/dvkv/lib/store"
)

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewRequest creates a request for command with the given parameters
func NewRequest(command MessageType, args ...[]byte) *Message {
	return &Message{MsgType: command, Args: args}
}

// NewResponse creates a successful response for command
func NewResponse(command MessageType, results ...[]byte) *Message {
	return &Message{MsgType: command, Status: StatusSuccess, Args: results}
}

// NewErrorResponse creates an error response carrying the message and the RetCode of err
func NewErrorResponse(command MessageType, err error) *Message {
	msg := err.Error()
	var e *store.Error
	if errors.As(err, &e) {
		msg = e.Msg
	}
	return &Message{
		MsgType: command,
		Status:  StatusError,
		Args:    [][]byte{[]byte(msg), {byte(store.CodeOf(err))}},
	}
}

// Err rebuilds the error of an error response, nil for successful responses.
// A missing error kind is reported as RetCServerError.
func (m *Message) Err() error {
	if m.Status != StatusError {
		return nil
	}
	msg := "unknown error"
	if len(m.Args) > 0 {
		msg = string(m.Args[0])
	}
	code := store.RetCServerError
	if len(m.Args) > 1 && len(m.Args[1]) == 1 {
		code = store.RetCode(m.Args[1][0])
	}
	return store.NewError(code, msg)
}

// --------------------------------------------------------------------------
// Field Codecs
// --------------------------------------------------------------------------

const (
	cellAbsent  byte = 0x00
	cellPresent byte = 0x01
)

// EncodeInt64 encodes v as 8 bytes big endian
func EncodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// DecodeInt64 decodes 8 bytes big endian
func DecodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, store.Errorf(store.RetCMalformedRequest, "expected 8 byte integer, got %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// EncodeBool encodes v as a single byte
func EncodeBool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

// DecodeBool decodes a single byte
func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, store.Errorf(store.RetCMalformedRequest, "expected 1 byte bool, got %d bytes", len(b))
	}
	return b[0] != 0, nil
}

// EncodeCell encodes an optional value. An absent value is a single 0x00, a present
// value is 0x01 followed by the value, so an empty value stays distinguishable.
func EncodeCell(value []byte, found bool) []byte {
	if !found {
		return []byte{cellAbsent}
	}
	cell := make([]byte, 1+len(value))
	cell[0] = cellPresent
	copy(cell[1:], value)
	return cell
}

// DecodeCell decodes an optional value. The returned value aliases cell.
func DecodeCell(cell []byte) (value []byte, found bool, err error) {
	if len(cell) == 0 {
		return nil, false, store.NewError(store.RetCMalformedRequest, "empty value cell")
	}
	switch cell[0] {
	case cellAbsent:
		return nil, false, nil
	case cellPresent:
		return cell[1:], true, nil
	default:
		return nil, false, store.Errorf(store.RetCMalformedRequest, "invalid value cell marker 0x%02x", cell[0])
	}
}
