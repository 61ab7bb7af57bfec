// Package pebblestore is a store.Repository backed by
// github.com/cockroachdb/pebble, selected when the deployment's
// STORE_BACKEND is "pebble"; STORE_PATH names its data directory. Every entity
// is a JSON blob behind a "<table>:<id>" key; the transactional scope is
// a pebble.Batch, committed with pebble.Sync on Commit and simply
// discarded (never applied to the underlying DB) on Rollback.
package pebblestore

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/store"
)

// kv is the subset of pebble.DB's and pebble.Batch's API this store
// needs; an indexed batch satisfies it so reads within an open scope
// observe the scope's own uncommitted writes.
type kv interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// Store is the Pebble-backed Repository.
type Store struct {
	db *pebble.DB

	mu     sync.Mutex
	active *pebble.Batch // set while a scope is open; nil otherwise
}

// Open opens (creating if absent) a Pebble database at dbPath, tuned the
// same way the teacher's account store tunes its own single-purpose DB.
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(128 << 20),
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		LBaseMaxBytes:         64 << 20,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}
	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// writer returns the open scope's batch if one is active, else the DB
// itself. Nesting a second scope is not supported, matching the core's
// single-mutex-per-market concurrency model where only one scope is ever
// open at a time.
func (s *Store) writer() kv {
	if s.active != nil {
		return s.active
	}
	return s.db
}

func (s *Store) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.writer().Set(key, data, pebble.Sync)
}

func (s *Store) get(key []byte, v any) (bool, error) {
	data, closer, err := s.writer().Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) scan(prefix string, each func(data []byte) error) error {
	iter, err := s.writer().NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := each(iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) NextID(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := seqKey(table)
	var n int64
	if data, closer, err := s.writer().Get(key); err == nil {
		n = int64(decodeUint64(data))
		closer.Close()
	}
	n++
	_ = s.writer().Set(key, encodeUint64(uint64(n)), pebble.Sync)
	return n
}

func encodeUint64(n uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(n)
		n >>= 8
	}
	return b
}

func decodeUint64(b []byte) uint64 {
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n
}

func (s *Store) InsertUser(u *exch.User) error {
	if err := s.put(idKey(prefixUser, u.ID), u); err != nil {
		return err
	}
	return s.writer().Set(emailKey(u.Email), idKey(prefixUser, u.ID), pebble.Sync)
}

func (s *Store) UpdateUser(u *exch.User) error {
	return s.put(idKey(prefixUser, u.ID), u)
}

func (s *Store) GetUser(id int64) (*exch.User, bool) {
	var u exch.User
	ok, err := s.get(idKey(prefixUser, id), &u)
	if err != nil || !ok {
		return nil, false
	}
	return &u, true
}

func (s *Store) GetUserByEmail(email string) (*exch.User, bool) {
	data, closer, err := s.writer().Get(emailKey(email))
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	var u exch.User
	ok, err := s.get(data, &u)
	if err != nil || !ok {
		return nil, false
	}
	return &u, true
}

func (s *Store) InsertAccount(a *exch.Account) error {
	return s.put(idKey(prefixAccount, a.ID), a)
}

func (s *Store) UpdateAccount(a *exch.Account) error {
	return s.put(idKey(prefixAccount, a.ID), a)
}

func (s *Store) GetAccount(id int64) (*exch.Account, bool) {
	var a exch.Account
	ok, err := s.get(idKey(prefixAccount, id), &a)
	if err != nil || !ok {
		return nil, false
	}
	return &a, true
}

func (s *Store) GetAccountsByUser(userID int64) []*exch.Account {
	var out []*exch.Account
	_ = s.scan(prefixAccount, func(data []byte) error {
		var a exch.Account
		if err := json.Unmarshal(data, &a); err != nil {
			return nil
		}
		if a.UserID == userID {
			cp := a
			out = append(out, &cp)
		}
		return nil
	})
	return out
}

func (s *Store) UpsertBalance(b *exch.Balance) error {
	return s.put(balanceKey(b.AccountID, string(b.Asset)), b)
}

func (s *Store) FindBalance(accountID int64, asset exch.Asset) (*exch.Balance, bool) {
	var b exch.Balance
	ok, err := s.get(balanceKey(accountID, string(asset)), &b)
	if err != nil || !ok {
		return nil, false
	}
	return &b, true
}

func (s *Store) GetBalancesByAccount(accountID int64) []*exch.Balance {
	prefix := fmt.Sprintf("%s%020d:", prefixBalance, accountID)
	var out []*exch.Balance
	_ = s.scan(prefix, func(data []byte) error {
		var b exch.Balance
		if err := json.Unmarshal(data, &b); err != nil {
			return nil
		}
		cp := b
		out = append(out, &cp)
		return nil
	})
	return out
}

func (s *Store) InsertOrder(o *exch.Order) error {
	return s.put(idKey(prefixOrder, o.ID), o)
}

func (s *Store) UpdateOrder(o *exch.Order) error {
	return s.put(idKey(prefixOrder, o.ID), o)
}

func (s *Store) GetOrder(id int64) (*exch.Order, bool) {
	var o exch.Order
	ok, err := s.get(idKey(prefixOrder, id), &o)
	if err != nil || !ok {
		return nil, false
	}
	return &o, true
}

func (s *Store) GetOrdersByUser(userID int64) []*exch.Order {
	var out []*exch.Order
	_ = s.scan(prefixOrder, func(data []byte) error {
		var o exch.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return nil
		}
		if o.UserID == userID {
			cp := o
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) GetOrdersByAccount(accountID int64) []*exch.Order {
	var out []*exch.Order
	_ = s.scan(prefixOrder, func(data []byte) error {
		var o exch.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return nil
		}
		if o.AccountID == accountID {
			cp := o
			out = append(out, &cp)
		}
		return nil
	})
	return out
}

func (s *Store) InsertTrade(t *exch.Trade) error {
	return s.put(idKey(prefixTrade, t.ID), t)
}

func (s *Store) GetTrade(id int64) (*exch.Trade, bool) {
	var t exch.Trade
	ok, err := s.get(idKey(prefixTrade, id), &t)
	if err != nil || !ok {
		return nil, false
	}
	return &t, true
}

func (s *Store) ListRecentTrades(limit int) []*exch.Trade {
	var out []*exch.Trade
	_ = s.scan(prefixTrade, func(data []byte) error {
		var t exch.Trade
		if err := json.Unmarshal(data, &t); err != nil {
			return nil
		}
		cp := t
		out = append(out, &cp)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetTradesByUser(userID int64) []*exch.Trade {
	userOrders := make(map[int64]bool)
	for _, o := range s.GetOrdersByUser(userID) {
		userOrders[o.ID] = true
	}
	var out []*exch.Trade
	_ = s.scan(prefixTrade, func(data []byte) error {
		var t exch.Trade
		if err := json.Unmarshal(data, &t); err != nil {
			return nil
		}
		if userOrders[t.BuyOrderID] || userOrders[t.SellOrderID] {
			cp := t
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) InsertTransaction(t *exch.Transaction) error {
	return s.put(idKey(prefixTx, t.ID), t)
}

func (s *Store) UpdateTransaction(t *exch.Transaction) error {
	return s.put(idKey(prefixTx, t.ID), t)
}

func (s *Store) GetTransaction(id int64) (*exch.Transaction, bool) {
	var t exch.Transaction
	ok, err := s.get(idKey(prefixTx, id), &t)
	if err != nil || !ok {
		return nil, false
	}
	return &t, true
}

func (s *Store) GetTransactionsByUser(userID int64) []*exch.Transaction {
	var out []*exch.Transaction
	_ = s.scan(prefixTx, func(data []byte) error {
		var t exch.Transaction
		if err := json.Unmarshal(data, &t); err != nil {
			return nil
		}
		if t.UserID == userID {
			cp := t
			out = append(out, &cp)
		}
		return nil
	})
	return out
}

func (s *Store) GetPendingWithdrawals() []*exch.Transaction {
	var out []*exch.Transaction
	_ = s.scan(prefixTx, func(data []byte) error {
		var t exch.Transaction
		if err := json.Unmarshal(data, &t); err != nil {
			return nil
		}
		if t.Type == exch.TxWithdraw && t.Status == exch.TxPending {
			cp := t
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) InsertAuditLog(a *exch.AuditLog) error {
	return s.put(idKey(prefixAudit, a.ID), a)
}

func (s *Store) ListRecentAuditLogs(limit int) []*exch.AuditLog {
	var out []*exch.AuditLog
	_ = s.scan(prefixAudit, func(data []byte) error {
		var a exch.AuditLog
		if err := json.Unmarshal(data, &a); err != nil {
			return nil
		}
		cp := a
		out = append(out, &cp)
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// scope is the Pebble-backed transactional scope: an indexed batch that
// is committed with pebble.Sync on Commit, or simply closed (never
// applied) on Rollback.
type scope struct {
	db        *Store
	batch     *pebble.Batch
	committed bool
}

func (s *Store) Begin() store.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewIndexedBatch()
	s.active = b
	return &scope{db: s, batch: b}
}

func (sc *scope) Commit() {
	sc.committed = true
	_ = sc.batch.Commit(pebble.Sync)
	sc.db.mu.Lock()
	sc.db.active = nil
	sc.db.mu.Unlock()
}

func (sc *scope) Rollback() {
	if sc.committed {
		return
	}
	sc.committed = true
	_ = sc.batch.Close()
	sc.db.mu.Lock()
	sc.db.active = nil
	sc.db.mu.Unlock()
}
