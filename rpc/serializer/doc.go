// Package serializer provides message serialization for the dvkv RPC system.
// It defines a common interface and multiple implementations for converting
// common.Message values to bytes and back.
//
// The package focuses on:
//   - Providing a consistent interface for different serialization formats
//   - Offering multiple implementations with different performance characteristics
//   - Supporting efficient encoding of the system's message structure
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format implementation optimized for speed
//     and space efficiency. A 6 byte header (command, status, arg count) is followed
//     by the length prefixed args.
//
//   - gobSerializerImpl: Implementation using Go's built-in gob encoding, offering
//     good compatibility with Go's type system but with larger serialized sizes.
//
//   - jsonSerializerImpl: Implementation using JSON encoding, useful for debugging
//     or interoperability with other systems, but with lower performance.
//
// Empty args may be decoded as nil or as an empty slice depending on the format.
// The protocol never relies on the difference, optional values are encoded as
// cells (see common.EncodeCell).
//
// Performance Characteristics (see the benchmarks):
//
//   - Binary: Smallest payload and fastest, used by default.
//
//   - JSON: Human-readable output (commands are encoded by name), useful for debugging.
//
//   - GOB: Larger payloads and slower than both others.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the application:
//
//	  serializer, err := serializer.ByName("binary")
//	  data, err := serializer.Serialize(message)
//	  // ... send data ...
//	  var receivedMsg common.Message
//	  err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
