// Package store defines the versioned storage model of dvkv and its unified
// error handling.
//
// The package focuses on:
//   - The storage contracts (IVersionedStore, IExPolicyStore, IBatcher, IArchiveStore)
//     combined into IStore, the per-session handle on one database
//   - The storage key encoding shared by every component reading the byte-store
//   - A structured error type with typed return codes
//
// Key Components:
//
//   - Versioning: Every key has a gapless version chain starting at 0. The current
//     version is stored under "V"+key, each version's value under "D"+key+be64(version).
//     VersionNone (-1) marks a key that was never written, VersionLatest (-1) as read
//     version selects the current one.
//
//   - Existence Policy: IExPolicyStore uses the data entry of version 0 as a single
//     slot per key and writes it only if the key exists (EXISTING) or does not exist
//     (NOT_EXISTING). Writing the slot of an absent key creates version 0, so Exists
//     and the policy always agree.
//
//   - Batches: IBatcher stages writes of one handle and applies them atomically.
//     Reads of a handle never see its own staged writes, the session layer overlays
//     them using IStore.Pending.
//
//   - Archive: IArchiveStore reads and writes single versions without the version
//     pointer. It is a separate interface so it can only be used deliberately.
//
//   - Error System: Error carries a RetCode and a message. Errors are compared by code
//     (errors.Is(err, ErrNotInBatchMode)) and cross the wire as message + code.
//     Byte-store failures are wrapped with WrapStorage into RetCStorageError.
//
// Implementations:
//
//	The lstore package ("github.com/ValentinKolb/dvkv/lib/store/lstore") implements the
//	engine on a local db.KVDB with an LRU cache and a bloom filter.
package store
