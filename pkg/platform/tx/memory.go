package tx

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	dErrors "govengine/pkg/domain-errors"
)

// numShards bounds lock contention: operations on different lock keys rarely
// share a mutex, operations on the same key always do.
const numShards = 128

type lockKeyCtx struct{}

// WithLockKey names the aggregate a transaction will mutate. ShardedRunner
// serializes transactions that carry the same key.
func WithLockKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, lockKeyCtx{}, key)
}

func lockKey(ctx context.Context) string {
	key, _ := ctx.Value(lockKeyCtx{}).(string)
	return key
}

type journalCtx struct{}

type journal struct {
	mu    sync.Mutex
	undos []func()
}

// OnRollback registers an undo step for an in-memory write. Outside a
// ShardedRunner transaction it is a no-op, so stores can call it
// unconditionally.
func OnRollback(ctx context.Context, undo func()) {
	j, ok := ctx.Value(journalCtx{}).(*journal)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undos = append(j.undos, undo)
	j.mu.Unlock()
}

func (j *journal) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undos) - 1; i >= 0; i-- {
		j.undos[i]()
	}
	j.undos = nil
}

// ShardedRunner is the in-memory counterpart of SQLRunner. It holds the
// shard mutex for the context's lock key for the whole callback and replays
// registered undo steps in reverse when the callback fails.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner(timeout time.Duration) *ShardedRunner {
	return &ShardedRunner{timeout: timeout}
}

func (r *ShardedRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, ok := ctx.Value(journalCtx{}).(*journal); ok {
		return fn(ctx)
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := r.selectShard(ctx)
	r.shards[shard].Lock()
	defer r.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalCtx{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func (r *ShardedRunner) selectShard(ctx context.Context) int {
	key := lockKey(ctx)
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}
