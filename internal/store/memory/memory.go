// Package memory is an in-process store. Units of work are serialised by one
// mutex and rolled back through an undo log.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/sales"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/internal/store"
)

type sequences struct {
	account, journal, lot, movement, entry, txn, line, ret int64
}

// Store keeps every record in memory.
type Store struct {
	mu sync.Mutex

	accounts     map[int64]ledger.Account
	journal      []ledger.JournalEntry
	lots         map[int64]inventory.Lot
	movements    []inventory.Movement
	stockEntries map[int64]inventory.StockEntry
	txns         map[int64]sales.Transaction
	returns      []sales.Return
	seq          sequences
	now          func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:     make(map[int64]ledger.Account),
		lots:         make(map[int64]inventory.Lot),
		stockEntries: make(map[int64]inventory.StockEntry),
		txns:         make(map[int64]sales.Transaction),
		now:          time.Now,
	}
}

// Run executes fn while holding the store lock. When fn fails every write it
// made is undone in reverse order.
func (s *Store) Run(ctx context.Context, fn func(context.Context, store.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &unit{s: s}
	seq := s.seq
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			s.seq = seq
			panic(r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		s.seq = seq
		return err
	}
	return nil
}

var _ store.Runner = (*Store)(nil)

type unit struct {
	s    *Store
	undo []func()
}

func (u *unit) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
}

func (u *unit) Ledger() ledger.TxRepository       { return ledgerRepo{u} }
func (u *unit) Inventory() inventory.TxRepository { return inventoryRepo{u} }
func (u *unit) Sales() sales.TxRepository         { return salesRepo{u} }

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", shared.ErrNotFound, what, id)
}

// ledger

type ledgerRepo struct{ u *unit }

func (r ledgerRepo) GetAccount(_ context.Context, id int64) (ledger.Account, error) {
	acc, ok := r.u.s.accounts[id]
	if !ok {
		return ledger.Account{}, notFound("account", id)
	}
	return acc, nil
}

func (r ledgerRepo) GetAccountByCode(_ context.Context, code string) (ledger.Account, error) {
	for _, acc := range r.u.s.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return ledger.Account{}, notFound("account code", code)
}

func (r ledgerRepo) GetAccountByName(_ context.Context, name string) (ledger.Account, error) {
	for _, acc := range r.u.s.accounts {
		if acc.Name == name {
			return acc, nil
		}
	}
	return ledger.Account{}, notFound("account", name)
}

func (r ledgerRepo) LockAccounts(_ context.Context, ids []int64) (map[int64]ledger.Account, error) {
	out := make(map[int64]ledger.Account, len(ids))
	for _, id := range ids {
		if acc, ok := r.u.s.accounts[id]; ok {
			out[id] = acc
		}
	}
	return out, nil
}

func (r ledgerRepo) CreateAccount(_ context.Context, account ledger.Account) (ledger.Account, error) {
	s := r.u.s
	for _, acc := range s.accounts {
		if acc.Code == account.Code || acc.Name == account.Name {
			return ledger.Account{}, fmt.Errorf("%w: account %q/%q already exists", shared.ErrConflict, account.Code, account.Name)
		}
	}
	s.seq.account++
	account.ID = s.seq.account
	account.Balance = decimal.Zero
	account.CreatedAt = s.now().UTC()
	s.accounts[account.ID] = account
	r.u.undo = append(r.u.undo, func() { delete(s.accounts, account.ID) })
	return account, nil
}

func (r ledgerRepo) ListAccounts(_ context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(r.u.s.accounts))
	for _, acc := range r.u.s.accounts {
		if filter.Type != "" && acc.Type != filter.Type {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ledgerRepo) InsertJournalEntries(_ context.Context, entries []ledger.JournalEntry) ([]ledger.JournalEntry, error) {
	s := r.u.s
	n := len(s.journal)
	out := make([]ledger.JournalEntry, len(entries))
	for i, entry := range entries {
		s.seq.journal++
		entry.ID = s.seq.journal
		out[i] = entry
	}
	s.journal = append(s.journal, out...)
	r.u.undo = append(r.u.undo, func() { s.journal = s.journal[:n] })
	return slices.Clone(out), nil
}

func (r ledgerRepo) ListJournal(_ context.Context, filter ledger.JournalFilter) ([]ledger.JournalEntry, error) {
	out := make([]ledger.JournalEntry, 0)
	for _, entry := range r.u.s.journal {
		if filter.AccountID != 0 && entry.Debit.AccountID != filter.AccountID && entry.Credit.AccountID != filter.AccountID {
			continue
		}
		if filter.Reference != uuid.Nil && entry.Reference != filter.Reference {
			continue
		}
		if filter.Source != "" && entry.Source != filter.Source {
			continue
		}
		out = append(out, entry)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (r ledgerRepo) AdjustBalance(_ context.Context, accountID int64, delta decimal.Decimal) error {
	s := r.u.s
	acc, ok := s.accounts[accountID]
	if !ok {
		return notFound("account", accountID)
	}
	prev := acc
	acc.Balance = acc.Balance.Add(delta)
	s.accounts[accountID] = acc
	r.u.undo = append(r.u.undo, func() { s.accounts[accountID] = prev })
	return nil
}
