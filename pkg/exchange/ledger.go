package exchange

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
// Format: "state:{orderHash}" for per-order status,
//         "settle:{timestamp}:{orderHash}" for the settlement archive
// (zero-padded timestamp keeps the archive in admission order on scan).
const (
	prefixState      = "state:"
	prefixSettlement = "settle:"
)

func stateKey(hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixState, hash.Hex()))
}

func settlementKey(timestamp int64, hash common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixSettlement, timestamp, hash.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

type orderStateRecord struct {
	Status    OrderStatus `json:"status"`
	UpdatedAt int64       `json:"updatedAt"`
}

// OrderLedger tracks per-order-hash lifecycle state. It is the sole replay
// protection: an order that ever reaches Filled or Cancelled can never be
// settled again, regardless of whether its signature still validates.
// Backed by Pebble so replay protection survives a process restart; reads
// hit an in-memory cache warmed on first access.
type OrderLedger struct {
	mu    sync.Mutex
	db    *pebble.DB
	cache map[common.Hash]OrderStatus
}

// OpenOrderLedger opens (or creates) the ledger database at dbPath.
func OpenOrderLedger(dbPath string) (*OrderLedger, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20),
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}

	return &OrderLedger{
		db:    db,
		cache: make(map[common.Hash]OrderStatus),
	}, nil
}

// Close closes the underlying database.
func (l *OrderLedger) Close() error {
	return l.db.Close()
}

// Status returns the current state for an order hash. Unset orders are Open.
func (l *OrderLedger) Status(hash common.Hash) (OrderStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(hash)
}

func (l *OrderLedger) statusLocked(hash common.Hash) (OrderStatus, error) {
	if st, ok := l.cache[hash]; ok {
		return st, nil
	}

	data, closer, err := l.db.Get(stateKey(hash))
	if err == pebble.ErrNotFound {
		return Open, nil
	}
	if err != nil {
		return Open, fmt.Errorf("failed to get order state: %w", err)
	}
	defer closer.Close()

	var rec orderStateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Open, fmt.Errorf("failed to unmarshal order state: %w", err)
	}

	l.cache[hash] = rec.Status
	return rec.Status, nil
}

// TryTransition moves an order hash from `from` to `to`, failing with
// ErrWrongState if the current state differs from `from`. Terminal states
// are never reset.
func (l *OrderLedger) TryTransition(hash common.Hash, from, to OrderStatus, now int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.statusLocked(hash)
	if err != nil {
		return err
	}
	if current != from {
		return fmt.Errorf("%w: %s is %s", ErrWrongState, hash.Hex(), current)
	}
	if from != Open {
		// Filled and Cancelled are terminal.
		return fmt.Errorf("%w: %s is terminal", ErrWrongState, current)
	}

	data, err := json.Marshal(orderStateRecord{Status: to, UpdatedAt: now})
	if err != nil {
		return fmt.Errorf("failed to marshal order state: %w", err)
	}
	if err := l.db.Set(stateKey(hash), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist order state: %w", err)
	}

	l.cache[hash] = to
	return nil
}

// SaveSettlement archives an emitted settlement record for indexers.
func (l *OrderLedger) SaveSettlement(rec *SettlementRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement: %w", err)
	}
	if err := l.db.Set(settlementKey(rec.Timestamp, rec.OrderHash), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to persist settlement: %w", err)
	}
	return nil
}

// Settlements returns up to limit archived settlement records, oldest first.
func (l *OrderLedger) Settlements(limit int) ([]*SettlementRecord, error) {
	prefix := []byte(prefixSettlement)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open settlement iterator: %w", err)
	}
	defer iter.Close()

	var out []*SettlementRecord
	for iter.First(); iter.Valid(); iter.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var rec SettlementRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue // skip invalid entries
		}
		out = append(out, &rec)
	}

	return out, nil
}
