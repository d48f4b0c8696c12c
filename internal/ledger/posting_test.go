package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCheckBalanced(t *testing.T) {
	require.NoError(t, CheckBalanced([]Entry{NewEntry(1, 2, dec("10.50"), "ok")}))

	err := CheckBalanced([]Entry{{Debit: Leg{AccountID: 1, Amount: dec("10")}, Credit: Leg{AccountID: 2, Amount: dec("9.99")}}})
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)

	err = CheckBalanced([]Entry{NewEntry(1, 2, decimal.Zero, "zero")})
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)

	err = CheckBalanced([]Entry{NewEntry(1, 2, dec("-5"), "negative")})
	require.ErrorIs(t, err, shared.ErrLedgerImbalance)

	err = CheckBalanced([]Entry{NewEntry(3, 3, dec("5"), "self")})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReplayHonoursNormalSide(t *testing.T) {
	accounts := []Account{
		{ID: 1, Type: AccountTypeAsset},
		{ID: 2, Type: AccountTypeRevenue},
		{ID: 3, Type: AccountTypeExpense},
		{ID: 4, Type: AccountTypeAsset},
	}
	entries := []JournalEntry{
		{Debit: Leg{1, dec("100")}, Credit: Leg{2, dec("100")}},
		{Debit: Leg{3, dec("40")}, Credit: Leg{4, dec("40")}},
		{Debit: Leg{2, dec("25")}, Credit: Leg{1, dec("25")}},
	}
	got := Replay(accounts, entries)
	require.True(t, got[1].Equal(dec("75")))
	require.True(t, got[2].Equal(dec("75")))
	require.True(t, got[3].Equal(dec("40")))
	require.True(t, got[4].Equal(dec("-40")))
}

func TestDiffReportsDrift(t *testing.T) {
	accounts := []Account{
		{ID: 1, Code: CodeCash, Type: AccountTypeAsset, Balance: dec("100")},
		{ID: 2, Code: CodeSalesRevenue, Type: AccountTypeRevenue, Balance: dec("90")},
	}
	entries := []JournalEntry{{Debit: Leg{1, dec("100")}, Credit: Leg{2, dec("100")}}}
	drift := Diff(accounts, entries)
	require.Len(t, drift, 1)
	require.Equal(t, CodeSalesRevenue, drift[0].Code)
	require.True(t, drift[0].Replayed.Equal(dec("100")))
}

func TestTouchedAccountsAscending(t *testing.T) {
	ids := touchedAccounts([]Entry{NewEntry(9, 2, dec("1"), ""), NewEntry(5, 9, dec("1"), ""), NewEntry(2, 1, dec("1"), "")})
	require.Equal(t, []int64{1, 2, 5, 9}, ids)
}

func TestExpenseCode(t *testing.T) {
	require.Equal(t, "EXP-SHOP-RENT", expenseCode("  shop   rent "))
}
