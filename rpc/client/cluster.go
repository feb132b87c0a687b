package client

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dvkv/lib/store"
	"github.com/ValentinKolb/dvkv/rpc/common"
	"github.com/sourcegraph/conc/pool"
)

// clusterOperator routes key commands to the shard of the key and fans batch
// commands out to all shards. There is no atomicity across shards: every shard
// commits its own batch.
type clusterOperator struct {
	shards      []IOperator
	partitioner Partitioner
	mode        common.FanOutMode
	timeout     time.Duration // bounds the fan-out wait (0 = unbounded)
}

func newClusterOperator(shards []IOperator, config common.ClientConfig) *clusterOperator {
	mode := config.FanOut
	if mode == "" {
		mode = common.FanOutBestEffort
	}
	return &clusterOperator{
		shards:      shards,
		partitioner: NewPartitioner(len(shards)),
		mode:        mode,
		timeout:     time.Duration(config.FanOutTimeoutSecond) * time.Second,
	}
}

// shard returns the operator of the shard owning key
func (o *clusterOperator) shard(key []byte) IOperator {
	return o.shards[o.partitioner.Partition(key)]
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IOperator)
// --------------------------------------------------------------------------

func (o *clusterOperator) Get(keys ...[]byte) ([]Value, error) {
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCMalformedRequest, "expected at least one key")
	}
	values := make([]Value, len(keys))
	for i, key := range keys {
		v, err := o.shard(key).Get(key)
		if err != nil {
			return nil, err
		}
		values[i] = v[0]
	}
	return values, nil
}

func (o *clusterOperator) GetAt(key []byte, version int64) (Value, error) {
	return o.shard(key).GetAt(key, version)
}

func (o *clusterOperator) Version(keys ...[]byte) ([]int64, error) {
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCMalformedRequest, "expected at least one key")
	}
	versions := make([]int64, len(keys))
	for i, key := range keys {
		v, err := o.shard(key).Version(key)
		if err != nil {
			return nil, err
		}
		versions[i] = v[0]
	}
	return versions, nil
}

func (o *clusterOperator) Put(key, value []byte) (int64, error) {
	return o.shard(key).Put(key, value)
}

// PutAll groups the pairs by shard and writes every group with one request.
// Each group is atomic on its shard, the groups are not atomic with each other.
func (o *clusterOperator) PutAll(keys, values [][]byte) ([]int64, error) {
	if len(keys) != len(values) {
		return nil, store.Errorf(store.RetCMalformedRequest, "got %d keys but %d values", len(keys), len(values))
	}

	type group struct {
		index  []int
		keys   [][]byte
		values [][]byte
	}
	groups := make(map[int]*group)
	var order []int
	for i, key := range keys {
		s := o.partitioner.Partition(key)
		g, ok := groups[s]
		if !ok {
			g = &group{}
			groups[s] = g
			order = append(order, s)
		}
		g.index = append(g.index, i)
		g.keys = append(g.keys, key)
		g.values = append(g.values, values[i])
	}

	versions := make([]int64, len(keys))
	for _, s := range order {
		g := groups[s]
		written, err := o.shards[s].PutAll(g.keys, g.values)
		if err != nil {
			return nil, err
		}
		for j, i := range g.index {
			versions[i] = written[j]
		}
	}
	return versions, nil
}

func (o *clusterOperator) Exists(keys ...[]byte) ([]bool, error) {
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCMalformedRequest, "expected at least one key")
	}
	exists := make([]bool, len(keys))
	for i, key := range keys {
		v, err := o.shard(key).Exists(key)
		if err != nil {
			return nil, err
		}
		exists[i] = v[0]
	}
	return exists, nil
}

func (o *clusterOperator) PutEx(policy store.ExPolicy, key, value []byte) (bool, error) {
	return o.shard(key).PutEx(policy, key, value)
}

func (o *clusterOperator) GetEx(keys ...[]byte) ([]Value, error) {
	if len(keys) == 0 {
		return nil, store.NewError(store.RetCMalformedRequest, "expected at least one key")
	}
	values := make([]Value, len(keys))
	for i, key := range keys {
		v, err := o.shard(key).GetEx(key)
		if err != nil {
			return nil, err
		}
		values[i] = v[0]
	}
	return values, nil
}

func (o *clusterOperator) BatchBegin() error {
	return o.fanOut("batchBegin", IOperator.BatchBegin)
}

func (o *clusterOperator) BatchAbort() error {
	return o.fanOut("batchAbort", IOperator.BatchAbort)
}

func (o *clusterOperator) BatchCommit() error {
	return o.fanOut("batchCommit", IOperator.BatchCommit)
}

func (o *clusterOperator) Shards() int {
	return len(o.shards)
}

// --------------------------------------------------------------------------
// Fan-Out
// --------------------------------------------------------------------------

// fanOut runs fn on all shards in parallel and waits for all of them.
// Shard errors are always logged. In FanOutStrict mode they are returned joined,
// in FanOutBestEffort mode they are dropped. An expired wait returns RetCTimeout,
// the shard calls still running are not cancelled.
func (o *clusterOperator) fanOut(command string, fn func(IOperator) error) error {
	p := pool.New().WithMaxGoroutines(len(o.shards)).WithErrors()
	for i, shard := range o.shards {
		p.Go(func() error {
			if err := fn(shard); err != nil {
				Logger.Warningf("%s failed on shard %d: %v", command, i, err)
				return fmt.Errorf("shard %d: %w", i, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()

	var expired <-chan time.Time
	if o.timeout > 0 {
		timer := time.NewTimer(o.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-done:
		if err != nil && o.mode == common.FanOutStrict {
			return err
		}
		return nil
	case <-expired:
		return store.Errorf(store.RetCTimeout, "%s did not complete on all %d shards within %s", command, len(o.shards), o.timeout)
	}
}
