package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is one of the known categories.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// Side is one side of a double entry.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// NormalSide returns the side that increases an account of this type.
func (t AccountType) NormalSide() Side {
	if t == AccountTypeAsset || t == AccountTypeExpense {
		return SideDebit
	}
	return SideCredit
}

// Journal sources.
const (
	SourceSale           = "SALE"
	SourceSaleReversal   = "SALE:REVERSAL"
	SourceReturn         = "RETURN"
	SourceStockEntry     = "STOCK_ENTRY"
	SourceStockEntryVoid = "STOCK_ENTRY:VOID"
	SourceAsset          = "ASSET"
	SourceExpense        = "EXPENSE"
)

// System chart of accounts codes.
const (
	CodeCash               = "1000"
	CodeBank               = "1010"
	CodeAccountsReceivable = "1100"
	CodeInventory          = "1200"
	CodeAccountsPayable    = "2000"
	CodeOwnerCapital       = "3000"
	CodeSalesRevenue       = "4000"
	CodeCOGS               = "5000"
)

// SystemAccount describes an account created by EnsureChart.
type SystemAccount struct {
	Code string
	Name string
	Type AccountType
}

// SystemChart lists the accounts every ledger starts with.
var SystemChart = []SystemAccount{
	{Code: CodeCash, Name: "Cash", Type: AccountTypeAsset},
	{Code: CodeBank, Name: "Bank", Type: AccountTypeAsset},
	{Code: CodeAccountsReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset},
	{Code: CodeInventory, Name: "Inventory", Type: AccountTypeAsset},
	{Code: CodeAccountsPayable, Name: "Accounts Payable", Type: AccountTypeLiability},
	{Code: CodeOwnerCapital, Name: "Owner Capital", Type: AccountTypeEquity},
	{Code: CodeSalesRevenue, Name: "Sales Revenue", Type: AccountTypeRevenue},
	{Code: CodeCOGS, Name: "Cost of Goods Sold", Type: AccountTypeExpense},
}

// Account models a chart of accounts node with its cached balance.
type Account struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NormalSide returns the account's normal side.
func (a Account) NormalSide() Side {
	return a.Type.NormalSide()
}

// Leg is one side of a journal entry.
type Leg struct {
	AccountID int64           `json:"accountId"`
	Amount    decimal.Decimal `json:"amount"`
}

// JournalEntry is an immutable two-legged posting.
type JournalEntry struct {
	ID          int64     `json:"id"`
	Reference   uuid.UUID `json:"reference"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
	Debit       Leg       `json:"debit"`
	Credit      Leg       `json:"credit"`
	PostedAt    time.Time `json:"postedAt"`
}

// Entry is a journal entry before it is posted.
type Entry struct {
	Description string
	Debit       Leg
	Credit      Leg
}

// NewEntry builds a balanced entry moving amount from credit to debit.
func NewEntry(debitAccountID, creditAccountID int64, amount decimal.Decimal, description string) Entry {
	return Entry{
		Description: description,
		Debit:       Leg{AccountID: debitAccountID, Amount: amount},
		Credit:      Leg{AccountID: creditAccountID, Amount: amount},
	}
}

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	Type AccountType
}

// JournalFilter narrows ListJournal.
type JournalFilter struct {
	AccountID int64
	Reference uuid.UUID
	Source    string
	Limit     int
}

// Discrepancy reports an account whose cached balance disagrees with the journal.
type Discrepancy struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Cached    decimal.Decimal `json:"cached"`
	Replayed  decimal.Decimal `json:"replayed"`
}

// AssetInput captures an owner contribution into an asset account.
type AssetInput struct {
	Amount      decimal.Decimal
	Source      string
	Target      string
	Description string
}

// ExpenseInput captures an operating expense paid from an asset account.
type ExpenseInput struct {
	Amount      decimal.Decimal
	Category    string
	PaidFrom    string
	Description string
}

// TxRepository exposes ledger persistence inside a unit of work.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	GetAccountByName(ctx context.Context, name string) (Account, error)
	// LockAccounts returns the accounts keyed by id, locking them in ascending id order.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	InsertJournalEntries(ctx context.Context, entries []JournalEntry) ([]JournalEntry, error)
	ListJournal(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
}

// UnitOfWork runs fn inside one transaction.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}
