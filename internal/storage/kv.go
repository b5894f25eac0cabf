package storage

import (
	"context"
	"errors"
	"fmt"
)

// Keys of the logical collections. Each value is a JSON document.
const (
	KeyAccounts     = "accounts"
	KeyTransactions = "transactions"
	KeyBalanceLogs  = "balance_logs"
	KeyCycleSetting = "settings:cycle"
)

var ErrNotFound = errors.New("key not found")

// KV is the persistence contract: a single key's read and write must be
// atomic and durable.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Batcher is implemented by stores that can write several keys atomically.
type Batcher interface {
	SetMany(ctx context.Context, entries []Entry) error
}

type Entry struct {
	Key   string
	Value []byte
}

// SetAll writes every entry as one unit. Stores implementing Batcher do
// it natively; for the others the previous values are captured first and
// restored in reverse order if any write fails.
func SetAll(ctx context.Context, kv KV, entries []Entry) error {
	if b, ok := kv.(Batcher); ok {
		return b.SetMany(ctx, entries)
	}

	previous := make([]Entry, 0, len(entries))
	for _, e := range entries {
		old, err := kv.Get(ctx, e.Key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("read %s before write: %w", e.Key, err)
		}
		previous = append(previous, Entry{Key: e.Key, Value: old})
	}

	for i, e := range entries {
		if err := kv.Set(ctx, e.Key, e.Value); err != nil {
			werr := fmt.Errorf("write %s: %w", e.Key, err)
			for j := i - 1; j >= 0; j-- {
				if rerr := kv.Set(ctx, previous[j].Key, previous[j].Value); rerr != nil {
					werr = errors.Join(werr, fmt.Errorf("restore %s: %w", previous[j].Key, rerr))
				}
			}
			return werr
		}
	}
	return nil
}
