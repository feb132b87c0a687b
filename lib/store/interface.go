package store

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dvkv/lib/db"
	pkgerrors "github.com/pkg/errors"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// VersionLatest as read version selects the most recent version of a key
const VersionLatest int64 = -1

// VersionNone is the version of a key that was never written
const VersionNone int64 = -1

// ExPolicy is the existence condition of IExPolicyStore.SetExisting
type ExPolicy uint8

const (
	// EXISTING writes only if the key already holds a value
	EXISTING ExPolicy = iota
	// NOT_EXISTING writes only if the key holds no value yet
	NOT_EXISTING
)

func (p ExPolicy) String() string {
	switch p {
	case EXISTING:
		return "EXISTING"
	case NOT_EXISTING:
		return "NOT_EXISTING"
	default:
		return fmt.Sprintf("ExPolicy(%d)", uint8(p))
	}
}

// IVersionedStore keeps a gapless version chain per key.
// The first write of a key is version 0, every later write increments the version by one.
type IVersionedStore interface {
	// Get returns the value of key at version. VersionLatest selects the current version.
	Get(key []byte, version int64) (value []byte, found bool, err error)
	// GetVersion returns the current version of key or VersionNone.
	GetVersion(key []byte) (version int64, err error)
	// Set stores value as version expectedVersion+1 and returns the new version.
	// expectedVersion is not checked against the stored version.
	// While a batch is open the returned version is provisional, BatchCommit appends the
	// staged writes after the version stored at commit time.
	Set(key, value []byte, expectedVersion int64) (newVersion int64, err error)
	// Exists reports whether key has at least one version.
	Exists(key []byte) (exists bool, err error)
}

// IExPolicyStore keeps a single value slot per key with existence-conditioned writes.
// The slot is the version 0 entry of the version chain: a slot write creates version 0 of an
// absent key and rewrites the version 0 entry of an existing key without moving its version.
// Outside a batch the check and the write are atomic, while batching the check is done against
// the batch view when the write is staged.
type IExPolicyStore interface {
	// GetEx returns the value of the slot.
	GetEx(key []byte) (value []byte, found bool, err error)
	// HasEx reports whether the slot holds a value.
	HasEx(key []byte) (found bool, err error)
	// SetExisting writes value if the existence of key (see IVersionedStore.Exists) matches
	// policy and reports whether it wrote. Fails with ErrBatchInProgress while a batch is open.
	SetExisting(key, value []byte, policy ExPolicy) (written bool, err error)
}

// IBatcher groups writes into one atomic byte-store write.
// Only one batch can be open at a time.
type IBatcher interface {
	// BatchBegin opens a batch. Fails with ErrBatchInProgress if one is open.
	BatchBegin() (err error)
	// BatchAbort drops the open batch. Fails with ErrNotInBatchMode if none is open.
	BatchAbort() (err error)
	// BatchCommit writes the open batch atomically. Fails with ErrNotInBatchMode if none is open.
	BatchCommit() (err error)
	// InBatch reports whether a batch is open.
	InBatch() (open bool)
}

// IStore is a handle on one database as used by a single session.
// Reads never consult the handle's own open batch, use Pending for that.
type IStore interface {
	IVersionedStore
	IExPolicyStore
	IBatcher

	// Put writes value as the next version of key and returns it.
	// Concurrent Put calls on the same key never produce the same version.
	// Fails with ErrBatchInProgress while a batch is open.
	Put(key, value []byte) (version int64, err error)
	// PutAll writes all pairs in a single byte-store write and returns the new versions.
	// Fails with ErrBatchInProgress while a batch is open.
	PutAll(keys, values [][]byte) (versions []int64, err error)
	// SetEx unconditionally writes the existence slot of key (staged while batching).
	SetEx(key, value []byte) (err error)
	// Pending returns the storage entries of the open batch as seen by the session, or nil.
	Pending() (batch *db.Batch)
}

// IArchiveStore accesses individual versions directly, bypassing the version pointer.
// Writing archived versions of a key that is also written through IVersionedStore.Set
// can leave the version pointer out of sync with the stored data.
type IArchiveStore interface {
	// ArchiveGet returns the value stored for key at version.
	ArchiveGet(key []byte, version int64) (value []byte, found bool, err error)
	// ArchiveSet stores value for key at version without touching the version pointer.
	ArchiveSet(key []byte, version int64, value []byte) (err error)
	// ArchiveRemove deletes the value stored for key at version.
	ArchiveRemove(key []byte, version int64) (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message.
	cause error   // The wrapped error (only set locally, never sent over the wire)
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is matches errors by code, so errors.Is(err, store.ErrNotInBatchMode) works
// for every Error with that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapStorage wraps a byte-store failure into a RetCStorageError.
// The cause keeps its stack trace for logging.
func WrapStorage(err error, format string, args ...interface{}) *Error {
	wrapped := pkgerrors.Wrapf(err, format, args...)
	return &Error{Code: RetCStorageError, Msg: wrapped.Error(), cause: wrapped}
}

// CodeOf returns the RetCode of err. Errors that are not an *Error map to RetCServerError.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCServerError
}

// Sentinel errors for errors.Is checks
var (
	ErrTimeout            = NewError(RetCTimeout, "timeout")
	ErrServer             = NewError(RetCServerError, "server error")
	ErrNoDatabaseSelected = NewError(RetCNoDatabaseSelected, "no database selected")
	ErrNotInBatchMode     = NewError(RetCNotInBatchMode, "not in batch mode")
	ErrBatchInProgress    = NewError(RetCBatchInProgress, "batch in progress")
	ErrMalformedRequest   = NewError(RetCMalformedRequest, "malformed request")
	ErrDatabaseNotFound   = NewError(RetCDatabaseNotFound, "database not found")
	ErrDatabaseExists     = NewError(RetCDatabaseExists, "database exists")
	ErrStorage            = NewError(RetCStorageError, "storage error")
	ErrInternal           = NewError(RetCInternalError, "internal error")
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint8

const (
	RetCSuccess            RetCode = iota // 0: Command executed successfully.
	RetCTimeout                           // 1: A request or fan-out wait timed out.
	RetCServerError                       // 2: The server reported an error without a kind.
	RetCNoDatabaseSelected                // 3: A data command was issued before use.
	RetCNotInBatchMode                    // 4: batchAbort or batchCommit without an open batch.
	RetCBatchInProgress                   // 5: batchBegin or use while a batch is open.
	RetCMalformedRequest                  // 6: Wrong parameter count or encoding.
	RetCDatabaseNotFound                  // 7: The database is unknown or disabled.
	RetCDatabaseExists                    // 8: A database with that name already exists.
	RetCStorageError                      // 9: The byte-store failed.
	RetCInternalError                     // 10: Any other failure.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCTimeout:
		return "Timeout"
	case RetCServerError:
		return "ServerError"
	case RetCNoDatabaseSelected:
		return "NoDatabaseSelected"
	case RetCNotInBatchMode:
		return "NotInBatchMode"
	case RetCBatchInProgress:
		return "BatchInProgress"
	case RetCMalformedRequest:
		return "MalformedRequest"
	case RetCDatabaseNotFound:
		return "DatabaseNotFound"
	case RetCDatabaseExists:
		return "DatabaseExists"
	case RetCStorageError:
		return "StorageError"
	case RetCInternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("RetCode(%d)", uint8(c))
	}
}
