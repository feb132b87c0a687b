// Package common provides the data structures shared by the dvkv client and server:
// the message protocol, its field codecs, database URIs, configuration structs
// and the logger setup.
//
// Key Components:
//
//   - Message: Request and response of every command. A request carries the command
//     (MessageType) and its parameters, a response echoes the command and carries a
//     Status and the results. Error responses carry the error message and the
//     store.RetCode as a single byte, Message.Err rebuilds the typed error.
//
//   - Field codecs: Integers are 8 byte big endian (EncodeInt64), booleans a single
//     byte (EncodeBool) and optional values a "cell" (EncodeCell) of 0x00 for absent
//     or 0x01 followed by the value.
//
//   - URI: scheme://address/database addressing of a database on a server. The
//     endpoint (scheme://address) identifies the connection.
//
//   - ServerConfig / ClientConfig: Typed configuration with String() pretty printers.
//
//   - Logger: Custom logging implementation plugged into the dragonboat logger
//     registry, so every package uses logger.GetLogger("name").
package common
