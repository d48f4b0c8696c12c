package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Post appends entries under one reference and updates the cached balances of
// every touched account. It must run inside the caller's unit of work; any
// error leaves the caller obliged to roll back.
func Post(ctx context.Context, tx TxRepository, reference uuid.UUID, source string, at time.Time, entries []Entry) ([]JournalEntry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no journal entries to post", shared.ErrValidation)
	}
	if reference == uuid.Nil {
		return nil, fmt.Errorf("%w: journal reference required", shared.ErrValidation)
	}
	if err := CheckBalanced(entries); err != nil {
		return nil, err
	}

	ids := touchedAccounts(entries)
	accounts, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("%w: account %d", shared.ErrNotFound, id)
		}
	}

	deltas := make(map[int64]decimal.Decimal, len(ids))
	rows := make([]JournalEntry, 0, len(entries))
	for _, entry := range entries {
		debit := accounts[entry.Debit.AccountID]
		credit := accounts[entry.Credit.AccountID]
		deltas[debit.ID] = deltas[debit.ID].Add(signed(debit.NormalSide(), SideDebit, entry.Debit.Amount))
		deltas[credit.ID] = deltas[credit.ID].Add(signed(credit.NormalSide(), SideCredit, entry.Credit.Amount))
		rows = append(rows, JournalEntry{
			Reference:   reference,
			Source:      source,
			Description: entry.Description,
			Debit:       entry.Debit,
			Credit:      entry.Credit,
			PostedAt:    at,
		})
	}

	posted, err := tx.InsertJournalEntries(ctx, rows)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if deltas[id].IsZero() {
			continue
		}
		if err := tx.AdjustBalance(ctx, id, deltas[id]); err != nil {
			return nil, err
		}
	}
	return posted, nil
}

// CheckBalanced validates the per-entry and whole-batch double-entry rules.
func CheckBalanced(entries []Entry) error {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, entry := range entries {
		if !entry.Debit.Amount.Equal(entry.Credit.Amount) {
			return fmt.Errorf("%w: entry %d debit %s != credit %s", shared.ErrLedgerImbalance, i, entry.Debit.Amount, entry.Credit.Amount)
		}
		if !entry.Debit.Amount.IsPositive() {
			return fmt.Errorf("%w: entry %d amount must be positive", shared.ErrLedgerImbalance, i)
		}
		if entry.Debit.AccountID == 0 || entry.Credit.AccountID == 0 {
			return fmt.Errorf("%w: entry %d account required", shared.ErrValidation, i)
		}
		if entry.Debit.AccountID == entry.Credit.AccountID {
			return fmt.Errorf("%w: entry %d debits and credits account %d", shared.ErrValidation, i, entry.Debit.AccountID)
		}
		totalDebit = totalDebit.Add(entry.Debit.Amount)
		totalCredit = totalCredit.Add(entry.Credit.Amount)
	}
	if !totalDebit.Equal(totalCredit) {
		return fmt.Errorf("%w: debits %s != credits %s", shared.ErrLedgerImbalance, totalDebit, totalCredit)
	}
	return nil
}

// Replay recomputes every account balance from the journal alone.
func Replay(accounts []Account, entries []JournalEntry) map[int64]decimal.Decimal {
	sides := make(map[int64]Side, len(accounts))
	balances := make(map[int64]decimal.Decimal, len(accounts))
	for _, acc := range accounts {
		sides[acc.ID] = acc.NormalSide()
		balances[acc.ID] = decimal.Zero
	}
	for _, entry := range entries {
		if side, ok := sides[entry.Debit.AccountID]; ok {
			balances[entry.Debit.AccountID] = balances[entry.Debit.AccountID].Add(signed(side, SideDebit, entry.Debit.Amount))
		}
		if side, ok := sides[entry.Credit.AccountID]; ok {
			balances[entry.Credit.AccountID] = balances[entry.Credit.AccountID].Add(signed(side, SideCredit, entry.Credit.Amount))
		}
	}
	return balances
}

func signed(normal, posted Side, amount decimal.Decimal) decimal.Decimal {
	if normal == posted {
		return amount
	}
	return amount.Neg()
}

func touchedAccounts(entries []Entry) []int64 {
	seen := make(map[int64]struct{}, len(entries)*2)
	ids := make([]int64, 0, len(entries)*2)
	for _, entry := range entries {
		for _, id := range []int64{entry.Debit.AccountID, entry.Credit.AccountID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
