package serializer

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTBatchBegin},

		// Use request
		*common.NewRequest(common.MsgTUse, []byte("users")),

		// Put request with multiple pairs and an empty value
		*common.NewRequest(common.MsgTPut, []byte("k1"), []byte("v1"), []byte("k2"), []byte{}),

		// Get response with a present and an absent cell
		*common.NewResponse(common.MsgTGet,
			common.EncodeCell([]byte("value"), true),
			common.EncodeCell(nil, false),
		),

		// Version response
		*common.NewResponse(common.MsgTVersion, common.EncodeInt64(-1), common.EncodeInt64(42)),

		// Error response
		*common.NewErrorResponse(common.MsgTBatchCommit, store.ErrNotInBatchMode),

		// Binary data
		*common.NewRequest(common.MsgTPutEx, []byte{byte(store.NOT_EXISTING)}, []byte{0, 1, 2}, bytes.Repeat([]byte{0xff}, 1024)),
	}
}

// equalMessages compares two messages treating nil and empty byte slices as equal
func equalMessages(a, b common.Message) bool {
	if a.MsgType != b.MsgType || a.Status != b.Status || len(a.Args) != len(b.Args) {
		return false
	}
	for i := range a.Args {
		if !bytes.Equal(a.Args[i], b.Args[i]) {
			return false
		}
	}
	return true
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !equalMessages(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for _, msgType := range common.MessageTypes() {
				for _, status := range []common.Status{common.StatusSuccess, common.StatusError} {
					msg := common.Message{MsgType: msgType, Status: status}

					data, err := serializer.Serialize(msg)
					if err != nil {
						t.Errorf("Failed to serialize message type %s: %v", msgType, err)
						continue
					}

					var result common.Message
					if err := serializer.Deserialize(data, &result); err != nil {
						t.Errorf("Failed to deserialize message type %s: %v", msgType, err)
						continue
					}

					if result.MsgType != msgType || result.Status != status {
						t.Errorf("Message type doesn't match after round trip: Expected %s/%s, got %s/%s",
							msgType, status, result.MsgType, result.Status)
					}
				}
			}
		})
	}
}

// TestErrorSurvivesRoundTrip tests that the error kind is kept by every serializer
func TestErrorSurvivesRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewErrorResponse(common.MsgTUse, store.ErrDatabaseNotFound))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if code := store.CodeOf(result.Err()); code != store.RetCDatabaseNotFound {
				t.Errorf("Expected DatabaseNotFound, got %s", code)
			}
		})
	}
}

// TestBinaryDoesNotAliasInput tests that decoded args are independent of the input buffer
func TestBinaryDoesNotAliasInput(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(*common.NewRequest(common.MsgTGet, []byte("key")))
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var result common.Message
	if err := serializer.Deserialize(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}

	for i := range data {
		data[i] = 0
	}
	if string(result.Args[0]) != "key" {
		t.Errorf("Decoded arg changed with the input buffer: %q", result.Args[0])
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0, 0},
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0, 0, 0, 0},
			expectError: false,
		},
		{
			name:        "Invalid length for arg",
			data:        []byte{1, 0, 0, 0, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims arg length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Too many args",
			data:        []byte{1, 0, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0},
			expectError: true,
		},
		{
			name:        "Trailing bytes",
			data:        []byte{1, 0, 0, 0, 0, 1, 0, 0, 0, 1, 'a', 'b'},
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}

func TestByName(t *testing.T) {
	for _, name := range []string{"binary", "json", "gob", ""} {
		if _, err := ByName(name); err != nil {
			t.Errorf("ByName(%q): %v", name, err)
		}
	}
	for _, factory := range testSerializers {
		if s, err := ByName(factory().Name()); err != nil || s.Name() != factory().Name() {
			t.Errorf("ByName(%s) did not return the serializer of that name", factory().Name())
		}
	}
	if _, err := ByName("xml"); err == nil {
		t.Errorf("Expected error for unknown serializer")
	}
}

// TestDeserializeIntoReusedMessage tests that no field of a previous message survives decoding
func TestDeserializeIntoReusedMessage(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			first, err := serializer.Serialize(*common.NewErrorResponse(common.MsgTGet, store.ErrStorage))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			second, err := serializer.Serialize(*common.NewResponse(common.MsgTBatchBegin))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var msg common.Message
			if err := serializer.Deserialize(first, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if err := serializer.Deserialize(second, &msg); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if msg.MsgType != common.MsgTBatchBegin || msg.Status != common.StatusSuccess || len(msg.Args) != 0 {
				t.Errorf("Reused message kept old fields: %+v", msg)
			}
		})
	}
}
