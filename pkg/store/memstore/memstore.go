// Package memstore is the in-process reference implementation of
// store.Repository: plain Go maps guarded by a single mutex, with
// transactional scope achieved by snapshotting the table maps on Begin
// and restoring them on Rollback (or an uncommitted Begin falling out
// of scope). The mutex makes every individual map access safe under
// the concurrent gateway handlers; it does not serialize the several
// repository calls inside one account-service scope against each other
// across accounts — that cross-call ordering is spec §5(b)'s job for
// the matching engine's own per-market mutex, not the store's.
package memstore

import (
	"sort"
	"sync"

	"github.com/altxchange/spotcore/pkg/exch"
	"github.com/altxchange/spotcore/pkg/store"
)

type balanceKey struct {
	accountID int64
	asset     exch.Asset
}

// Store is the in-memory Repository.
type Store struct {
	mu sync.Mutex

	users        map[int64]exch.User
	accounts     map[int64]exch.Account
	balances     map[int64]exch.Balance
	balanceIndex map[balanceKey]int64
	orders       map[int64]exch.Order
	trades       map[int64]exch.Trade
	transactions map[int64]exch.Transaction
	auditLogs    map[int64]exch.AuditLog
	counters     map[string]int64
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[int64]exch.User),
		accounts:     make(map[int64]exch.Account),
		balances:     make(map[int64]exch.Balance),
		balanceIndex: make(map[balanceKey]int64),
		orders:       make(map[int64]exch.Order),
		trades:       make(map[int64]exch.Trade),
		transactions: make(map[int64]exch.Transaction),
		auditLogs:    make(map[int64]exch.AuditLog),
		counters:     make(map[string]int64),
	}
}

func (s *Store) NextID(table string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[table]++
	return s.counters[table]
}

func (s *Store) InsertUser(u *exch.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(id int64) (*exch.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (s *Store) GetUserByEmail(email string) (*exch.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := u
			return &cp, true
		}
	}
	return nil, false
}

func (s *Store) UpdateUser(u *exch.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) InsertAccount(a *exch.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) GetAccount(id int64) (*exch.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	return &a, true
}

func (s *Store) GetAccountsByUser(userID int64) []*exch.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			cp := a
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) UpdateAccount(a *exch.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = *a
	return nil
}

func (s *Store) UpsertBalance(b *exch.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey{b.AccountID, b.Asset}
	s.balanceIndex[key] = b.ID
	s.balances[b.ID] = *b
	return nil
}

func (s *Store) FindBalance(accountID int64, asset exch.Asset) (*exch.Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.balanceIndex[balanceKey{accountID, asset}]
	if !ok {
		return nil, false
	}
	b, ok := s.balances[id]
	if !ok {
		return nil, false
	}
	return &b, true
}

func (s *Store) GetBalancesByAccount(accountID int64) []*exch.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Balance
	for _, b := range s.balances {
		if b.AccountID == accountID {
			cp := b
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) InsertOrder(o *exch.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) UpdateOrder(o *exch.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) GetOrder(id int64) (*exch.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, false
	}
	return &o, true
}

func (s *Store) GetOrdersByUser(userID int64) []*exch.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			cp := o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) GetOrdersByAccount(accountID int64) []*exch.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Order
	for _, o := range s.orders {
		if o.AccountID == accountID {
			cp := o
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) InsertTrade(t *exch.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = *t
	return nil
}

func (s *Store) GetTrade(id int64) (*exch.Trade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (s *Store) ListRecentTrades(limit int) []*exch.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Trade
	for _, t := range s.trades {
		cp := t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) GetTradesByUser(userID int64) []*exch.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	userOrders := make(map[int64]bool)
	for _, o := range s.orders {
		if o.UserID == userID {
			userOrders[o.ID] = true
		}
	}
	var out []*exch.Trade
	for _, t := range s.trades {
		if userOrders[t.BuyOrderID] || userOrders[t.SellOrderID] {
			cp := t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) InsertTransaction(t *exch.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = *t
	return nil
}

func (s *Store) UpdateTransaction(t *exch.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[t.ID] = *t
	return nil
}

func (s *Store) GetTransaction(id int64) (*exch.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (s *Store) GetTransactionsByUser(userID int64) []*exch.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Transaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			cp := t
			out = append(out, &cp)
		}
	}
	return out
}

func (s *Store) GetPendingWithdrawals() []*exch.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.Transaction
	for _, t := range s.transactions {
		if t.Type == exch.TxWithdraw && t.Status == exch.TxPending {
			cp := t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) InsertAuditLog(a *exch.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs[a.ID] = *a
	return nil
}

func (s *Store) ListRecentAuditLogs(limit int) []*exch.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*exch.AuditLog
	for _, a := range s.auditLogs {
		cp := a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// clone takes an unlocked snapshot of the table maps. Callers must hold s.mu.
func (s *Store) clone() *Store {
	return &Store{
		users:        cloneMap(s.users),
		accounts:     cloneMap(s.accounts),
		balances:     cloneMap(s.balances),
		balanceIndex: cloneMap(s.balanceIndex),
		orders:       cloneMap(s.orders),
		trades:       cloneMap(s.trades),
		transactions: cloneMap(s.transactions),
		auditLogs:    cloneMap(s.auditLogs),
		counters:     cloneMap(s.counters),
	}
}

// restore swaps in a snapshot's table maps. Callers must hold s.mu.
func (s *Store) restore(snapshot *Store) {
	s.users = snapshot.users
	s.accounts = snapshot.accounts
	s.balances = snapshot.balances
	s.balanceIndex = snapshot.balanceIndex
	s.orders = snapshot.orders
	s.trades = snapshot.trades
	s.transactions = snapshot.transactions
	s.auditLogs = snapshot.auditLogs
	s.counters = snapshot.counters
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// scope is the Store's transactional scope: it snapshots the parent
// store's table maps on Begin and restores them unless Commit was
// called before the scope ends.
type scope struct {
	db        *Store
	snapshot  *Store
	committed bool
}

func (s *Store) Begin() store.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &scope{db: s, snapshot: s.clone()}
}

func (sc *scope) Commit() {
	sc.committed = true
}

func (sc *scope) Rollback() {
	if sc.committed {
		return
	}
	sc.db.mu.Lock()
	defer sc.db.mu.Unlock()
	sc.db.restore(sc.snapshot)
	sc.committed = true
}
