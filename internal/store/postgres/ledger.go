package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

type ledgerRepo struct {
	tx pgx.Tx
}

const accountColumns = `id, code, name, type, balance, created_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var acc ledger.Account
	var typ string
	if err := row.Scan(&acc.ID, &acc.Code, &acc.Name, &typ, &acc.Balance, &acc.CreatedAt); err != nil {
		return ledger.Account{}, err
	}
	acc.Type = ledger.AccountType(typ)
	acc.CreatedAt = utc(acc.CreatedAt)
	return acc, nil
}

func (r ledgerRepo) getAccount(ctx context.Context, where string, arg any) (ledger.Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, notFound("account", arg)
	}
	return acc, err
}

func (r ledgerRepo) GetAccount(ctx context.Context, id int64) (ledger.Account, error) {
	return r.getAccount(ctx, `id=$1`, id)
}

func (r ledgerRepo) GetAccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	return r.getAccount(ctx, `code=$1`, code)
}

func (r ledgerRepo) GetAccountByName(ctx context.Context, name string) (ledger.Account, error) {
	return r.getAccount(ctx, `name=$1`, name)
}

func (r ledgerRepo) LockAccounts(ctx context.Context, ids []int64) (map[int64]ledger.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]ledger.Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acc.ID] = acc
	}
	return out, rows.Err()
}

func (r ledgerRepo) CreateAccount(ctx context.Context, account ledger.Account) (ledger.Account, error) {
	acc, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, balance, created_at)
VALUES ($1,$2,$3,0,NOW()) RETURNING `+accountColumns, account.Code, account.Name, string(account.Type)))
	if isUniqueViolation(err) {
		return ledger.Account{}, fmt.Errorf("%w: account %q/%q already exists", shared.ErrConflict, account.Code, account.Name)
	}
	return acc, err
}

func (r ledgerRepo) ListAccounts(ctx context.Context, filter ledger.AccountFilter) ([]ledger.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE ($1::text IS NULL OR type=$1) ORDER BY id`, nullString(string(filter.Type)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r ledgerRepo) InsertJournalEntries(ctx context.Context, entries []ledger.JournalEntry) ([]ledger.JournalEntry, error) {
	out := make([]ledger.JournalEntry, len(entries))
	for i, entry := range entries {
		err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (reference, source, description, debit_account_id, credit_account_id, amount, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			entry.Reference, entry.Source, entry.Description, entry.Debit.AccountID, entry.Credit.AccountID, entry.Debit.Amount, entry.PostedAt).Scan(&entry.ID)
		if err != nil {
			return nil, err
		}
		out[i] = entry
	}
	return out, nil
}

func (r ledgerRepo) ListJournal(ctx context.Context, filter ledger.JournalFilter) ([]ledger.JournalEntry, error) {
	var reference any
	if filter.Reference != uuid.Nil {
		reference = filter.Reference
	}
	rows, err := r.tx.Query(ctx, `SELECT id, reference, source, description, debit_account_id, credit_account_id, amount, posted_at FROM (
	SELECT * FROM journal_entries
	WHERE ($1::bigint IS NULL OR debit_account_id=$1 OR credit_account_id=$1)
	  AND ($2::uuid IS NULL OR reference=$2)
	  AND ($3::text IS NULL OR source=$3)
	ORDER BY id DESC
	LIMIT $4
) recent ORDER BY id ASC`, nullInt(filter.AccountID), reference, nullString(filter.Source), nullLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []ledger.JournalEntry{}
	for rows.Next() {
		var entry ledger.JournalEntry
		var amount decimal.Decimal
		if err := rows.Scan(&entry.ID, &entry.Reference, &entry.Source, &entry.Description, &entry.Debit.AccountID, &entry.Credit.AccountID, &amount, &entry.PostedAt); err != nil {
			return nil, err
		}
		entry.Debit.Amount = amount
		entry.Credit.Amount = amount
		entry.PostedAt = utc(entry.PostedAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r ledgerRepo) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("account", accountID)
	}
	return nil
}
