package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes the chart of accounts and the journal.
type Service struct {
	uow    UnitOfWork
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the ledger service.
func NewService(uow UnitOfWork, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uow: uow, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// EnsureChart idempotently creates the system chart of accounts.
func (s *Service) EnsureChart(ctx context.Context) error {
	var created int
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = ensureChart(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}
	if created > 0 {
		s.logger.InfoContext(ctx, "chart of accounts initialised", slog.Int("created", created))
	}
	return nil
}

// Post appends a balanced set of entries under a fresh reference.
func (s *Service) Post(ctx context.Context, source string, entries []Entry) ([]JournalEntry, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: journal source required", shared.ErrValidation)
	}
	var posted []JournalEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = Post(ctx, tx, uuid.New(), source, s.now().UTC(), entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "journal.post", posted)
	return posted, nil
}

// BalanceOf returns the current balance of an account.
func (s *Service) BalanceOf(ctx context.Context, accountID int64) (Account, error) {
	var acc Account
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		acc, err = tx.GetAccount(ctx, accountID)
		return err
	})
	return acc, err
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", shared.ErrValidation, filter.Type)
	}
	var out []Account
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListAccounts(ctx, filter)
		return err
	})
	return out, err
}

// ListJournal returns journal entries in ascending id order. With a limit it
// returns the most recent N, oldest first.
func (s *Service) ListJournal(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", shared.ErrValidation)
	}
	var out []JournalEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListJournal(ctx, filter)
		return err
	})
	return out, err
}

// Reconcile replays the journal and reports accounts whose cached balance drifted.
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var out []Discrepancy
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.ListAccounts(ctx, AccountFilter{})
		if err != nil {
			return err
		}
		entries, err := tx.ListJournal(ctx, JournalFilter{})
		if err != nil {
			return err
		}
		out = Diff(accounts, entries)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		s.logger.WarnContext(ctx, "ledger reconcile found discrepancies", slog.Int("count", len(out)))
	}
	return out, nil
}

// Diff compares cached balances against a journal replay.
func Diff(accounts []Account, entries []JournalEntry) []Discrepancy {
	replayed := Replay(accounts, entries)
	var out []Discrepancy
	for _, acc := range accounts {
		if !acc.Balance.Equal(replayed[acc.ID]) {
			out = append(out, Discrepancy{AccountID: acc.ID, Code: acc.Code, Cached: acc.Balance, Replayed: replayed[acc.ID]})
		}
	}
	return out
}

// AddAsset records an owner contribution: debit the target asset, credit the source.
func (s *Service) AddAsset(ctx context.Context, input AssetInput) ([]JournalEntry, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	var posted []JournalEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := accountByNameOrCode(ctx, tx, input.Target, CodeCash)
		if err != nil {
			return err
		}
		if target.Type != AccountTypeAsset {
			return fmt.Errorf("%w: target %q is not an asset account", shared.ErrValidation, target.Name)
		}
		source, err := accountByNameOrCode(ctx, tx, input.Source, CodeOwnerCapital)
		if err != nil {
			return err
		}
		desc := strings.TrimSpace(input.Description)
		if desc == "" {
			desc = fmt.Sprintf("%s contribution to %s", source.Name, target.Name)
		}
		posted, err = Post(ctx, tx, uuid.New(), SourceAsset, s.now().UTC(), []Entry{
			NewEntry(target.ID, source.ID, input.Amount, desc),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "ledger.add_asset", posted)
	return posted, nil
}

// RecordExpense debits the expense account named by category, creating it on
// first use, and credits the account it was paid from.
func (s *Service) RecordExpense(ctx context.Context, input ExpenseInput) ([]JournalEntry, error) {
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	}
	category := strings.TrimSpace(input.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: expense category required", shared.ErrValidation)
	}
	var posted []JournalEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		expense, err := tx.GetAccountByName(ctx, category)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			expense, err = tx.CreateAccount(ctx, Account{Code: expenseCode(category), Name: category, Type: AccountTypeExpense})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}
		if expense.Type != AccountTypeExpense || expense.Code == CodeCOGS {
			return fmt.Errorf("%w: %q is not an operating expense account", shared.ErrValidation, category)
		}
		paidFrom, err := accountByNameOrCode(ctx, tx, input.PaidFrom, CodeCash)
		if err != nil {
			return err
		}
		if paidFrom.Type != AccountTypeAsset {
			return fmt.Errorf("%w: %q is not an asset account", shared.ErrValidation, paidFrom.Name)
		}
		desc := strings.TrimSpace(input.Description)
		if desc == "" {
			desc = category
		}
		posted, err = Post(ctx, tx, uuid.New(), SourceExpense, s.now().UTC(), []Entry{
			NewEntry(expense.ID, paidFrom.ID, input.Amount, desc),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, "ledger.record_expense", posted)
	return posted, nil
}

func (s *Service) record(ctx context.Context, action string, posted []JournalEntry) {
	if s.audit == nil || len(posted) == 0 {
		return
	}
	total := decimal.Zero
	for _, entry := range posted {
		total = total.Add(entry.Debit.Amount)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "journal_entry",
		EntityID: posted[0].Reference.String(),
		Meta: map[string]any{
			"source":  posted[0].Source,
			"entries": len(posted),
			"amount":  total.String(),
		},
		At: s.now(),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func accountByNameOrCode(ctx context.Context, tx TxRepository, name, fallbackCode string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return tx.GetAccountByCode(ctx, fallbackCode)
	}
	acc, err := tx.GetAccountByName(ctx, name)
	if errors.Is(err, shared.ErrNotFound) {
		if _, convErr := strconv.Atoi(name); convErr == nil {
			return tx.GetAccountByCode(ctx, name)
		}
	}
	return acc, err
}

// expenseCode derives a stable code for an on-demand expense account.
func expenseCode(category string) string {
	return "EXP-" + strings.ToUpper(strings.Join(strings.Fields(category), "-"))
}
