package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// PaymentMethod is how the customer settled the sale.
type PaymentMethod string

const (
	PaymentCash          PaymentMethod = "Cash"
	PaymentCard          PaymentMethod = "Card"
	PaymentBankTransfer  PaymentMethod = "Bank Transfer"
	PaymentMobilePayment PaymentMethod = "Mobile Payment"
	PaymentCredit        PaymentMethod = "Credit"
)

// DebitAccount returns the id of the account a sale paid this way debits.
func (m PaymentMethod) DebitAccount(chart ledger.Chart) (int64, error) {
	switch m {
	case PaymentCash:
		return chart.Cash, nil
	case PaymentCard, PaymentBankTransfer, PaymentMobilePayment:
		return chart.Bank, nil
	case PaymentCredit:
		return chart.AccountsReceivable, nil
	}
	return 0, fmt.Errorf("%w: unknown payment method %q", shared.ErrValidation, m)
}

// LineInput is one requested sale line.
type LineInput struct {
	ProductID    string
	Size         string
	Quantity     int64
	SellingPrice decimal.Decimal
}

// SaleInput captures a sale request.
type SaleInput struct {
	Items          []LineInput
	Discount       decimal.Decimal
	PaymentMethod  PaymentMethod
	CustomerName   string
	IdempotencyKey string
}

// Line is a sold product+size with its FIFO cost attribution.
type Line struct {
	ID           int64                   `json:"id"`
	ProductID    string                  `json:"productId"`
	Size         string                  `json:"size"`
	Quantity     int64                   `json:"quantity"`
	SellingPrice decimal.Decimal         `json:"sellingPrice"`
	UnitCost     decimal.Decimal         `json:"costPrice"`
	LineCost     decimal.Decimal         `json:"lineCost"`
	Consumptions []inventory.Consumption `json:"consumptions"`
}

// Gross returns selling price times quantity.
func (l Line) Gross() decimal.Decimal {
	return l.SellingPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Transaction is a recorded sale.
type Transaction struct {
	ID            int64           `json:"id"`
	Reference     uuid.UUID       `json:"reference"`
	CustomerName  string          `json:"customerName"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Discount      decimal.Decimal `json:"discount"`
	Status        Status          `json:"status"`
	Lines         []Line          `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Gross sums selling price times quantity over every line.
func (t Transaction) Gross() decimal.Decimal {
	total := decimal.Zero
	for _, line := range t.Lines {
		total = total.Add(line.Gross())
	}
	return total
}

// Cost sums the allocated cost of every line.
func (t Transaction) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range t.Lines {
		total = total.Add(line.LineCost)
	}
	return total
}

// Line returns the line selling productID in size.
func (t Transaction) Line(productID, size string) (Line, bool) {
	for _, line := range t.Lines {
		if line.ProductID == productID && line.Size == size {
			return line, true
		}
	}
	return Line{}, false
}

// ListFilter narrows transaction listings.
type ListFilter struct {
	Status Status
	Limit  int
}

// Summary aggregates transactions for the dashboard.
type Summary struct {
	Total          int             `json:"total"`
	Pending        int             `json:"pending"`
	Completed      int             `json:"completed"`
	Cancelled      int             `json:"cancelled"`
	Returns        int             `json:"returns"`
	Revenue        decimal.Decimal `json:"revenue"`
	RealisedProfit decimal.Decimal `json:"realisedProfit"`
}

// ReturnLineInput is one requested return line.
type ReturnLineInput struct {
	ProductID string
	Size      string
	Quantity  int64
	Reason    string
}

// ReturnInput captures a return request.
type ReturnInput struct {
	TransactionID int64
	Items         []ReturnLineInput
}

// ReturnItem is one returned product+size with the lots it restored.
type ReturnItem struct {
	ProductID string                  `json:"productId"`
	Size      string                  `json:"size"`
	Quantity  int64                   `json:"quantity"`
	Reason    string                  `json:"reason"`
	Gross     decimal.Decimal         `json:"gross"`
	Cost      decimal.Decimal         `json:"cost"`
	Releases  []inventory.Consumption `json:"releases"`
}

// Return is an immutable record of goods coming back from a sale.
type Return struct {
	ID            int64           `json:"id"`
	Reference     uuid.UUID       `json:"reference"`
	TransactionID int64           `json:"transactionId"`
	ReturnedBy    string          `json:"returnedBy"`
	RefundAmount  decimal.Decimal `json:"refundAmount"`
	ReturnedCost  decimal.Decimal `json:"returnedCost"`
	Items         []ReturnItem    `json:"items"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// TxRepository exposes sales persistence inside a unit of work.
type TxRepository interface {
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	LockTransaction(ctx context.Context, id int64) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id int64, status Status, at time.Time) error
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
	InsertReturn(ctx context.Context, ret Return) (Return, error)
	// ListReturns returns returns oldest first; transactionID 0 lists all.
	ListReturns(ctx context.Context, transactionID int64) ([]Return, error)
}

// Tx is the slice of a unit of work the sales processors need.
type Tx interface {
	Inventory() inventory.TxRepository
	Ledger() ledger.TxRepository
	Sales() TxRepository
}

// UnitOfWork runs fn inside one transaction spanning lots, the ledger and sales records.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}
