package client

import (
	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
)

// Value is the result of a read. Found distinguishes an absent key from an empty value.
type Value struct {
	Data  []byte
	Found bool
}

// IOperator executes the data commands of a database
type IOperator interface {
	// Get returns the latest value of every key
	Get(keys ...[]byte) ([]Value, error)
	// GetAt returns the value of key at version
	GetAt(key []byte, version int64) (Value, error)
	// Version returns the current version of every key (store.VersionNone if absent)
	Version(keys ...[]byte) ([]int64, error)
	// Put writes value as the next version of key and returns it
	Put(key, value []byte) (int64, error)
	// PutAll writes all pairs and returns the new versions
	PutAll(keys, values [][]byte) ([]int64, error)
	// Exists reports for every key whether it has a version
	Exists(keys ...[]byte) ([]bool, error)
	// PutEx writes the existence slot of key if it matches policy and reports whether it wrote
	PutEx(policy store.ExPolicy, key, value []byte) (bool, error)
	// GetEx returns the existence slot of every key
	GetEx(keys ...[]byte) ([]Value, error)
	// BatchBegin opens a batch
	BatchBegin() error
	// BatchAbort discards the open batch
	BatchAbort() error
	// BatchCommit writes the open batch
	BatchCommit() error
	// Shards returns the number of shards the operator routes to
	Shards() int
}

// --------------------------------------------------------------------------
// Single Operator
// --------------------------------------------------------------------------

// singleOperator sends every command to one connection
type singleOperator struct {
	c *conn
}

func newSingleOperator(c *conn) *singleOperator {
	return &singleOperator{c: c}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IOperator)
// --------------------------------------------------------------------------

func (o *singleOperator) Get(keys ...[]byte) ([]Value, error) {
	results, err := o.c.call(common.MsgTGet, keys...)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, len(keys)); err != nil {
		return nil, err
	}
	return decodeValues(results)
}

func (o *singleOperator) GetAt(key []byte, version int64) (Value, error) {
	results, err := o.c.call(common.MsgTGetAt, key, common.EncodeInt64(version))
	if err != nil {
		return Value{}, err
	}
	if err := expectResults(results, 1); err != nil {
		return Value{}, err
	}
	values, err := decodeValues(results)
	if err != nil {
		return Value{}, err
	}
	return values[0], nil
}

func (o *singleOperator) Version(keys ...[]byte) ([]int64, error) {
	results, err := o.c.call(common.MsgTVersion, keys...)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, len(keys)); err != nil {
		return nil, err
	}
	return decodeInt64s(results)
}

func (o *singleOperator) Put(key, value []byte) (int64, error) {
	versions, err := o.PutAll([][]byte{key}, [][]byte{value})
	if err != nil {
		return store.VersionNone, err
	}
	return versions[0], nil
}

func (o *singleOperator) PutAll(keys, values [][]byte) ([]int64, error) {
	if len(keys) != len(values) {
		return nil, store.Errorf(store.RetCMalformedRequest, "got %d keys but %d values", len(keys), len(values))
	}
	args := make([][]byte, 0, 2*len(keys))
	for i := range keys {
		args = append(args, keys[i], values[i])
	}

	results, err := o.c.call(common.MsgTPut, args...)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, len(keys)); err != nil {
		return nil, err
	}
	return decodeInt64s(results)
}

func (o *singleOperator) Exists(keys ...[]byte) ([]bool, error) {
	results, err := o.c.call(common.MsgTExists, keys...)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, len(keys)); err != nil {
		return nil, err
	}
	return decodeBools(results)
}

func (o *singleOperator) PutEx(policy store.ExPolicy, key, value []byte) (bool, error) {
	results, err := o.c.call(common.MsgTPutEx, []byte{byte(policy)}, key, value)
	if err != nil {
		return false, err
	}
	if err := expectResults(results, 1); err != nil {
		return false, err
	}
	return common.DecodeBool(results[0])
}

func (o *singleOperator) GetEx(keys ...[]byte) ([]Value, error) {
	results, err := o.c.call(common.MsgTGetEx, keys...)
	if err != nil {
		return nil, err
	}
	if err := expectResults(results, len(keys)); err != nil {
		return nil, err
	}
	return decodeValues(results)
}

func (o *singleOperator) BatchBegin() error {
	_, err := o.c.call(common.MsgTBatchBegin)
	return err
}

func (o *singleOperator) BatchAbort() error {
	_, err := o.c.call(common.MsgTBatchAbort)
	return err
}

func (o *singleOperator) BatchCommit() error {
	_, err := o.c.call(common.MsgTBatchCommit)
	return err
}

func (o *singleOperator) Shards() int {
	return 1
}
