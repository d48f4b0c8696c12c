package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MovementKind classifies lot quantity changes.
type MovementKind string

const (
	MovementReceive  MovementKind = "RECEIVE"
	MovementSale     MovementKind = "SALE"
	MovementReversal MovementKind = "REVERSAL"
	MovementReturn   MovementKind = "RETURN"
	MovementRemove   MovementKind = "REMOVE"
)

// StockEntryStatus enumerates stock entry lifecycle values.
type StockEntryStatus string

const (
	StockEntryActive StockEntryStatus = "ACTIVE"
	StockEntryVoid   StockEntryStatus = "VOID"
)

// Lot is a quantity of one product+size received at one unit cost.
// Lots are never deleted; a lot with nothing remaining is inert.
type Lot struct {
	ID                int64           `json:"id"`
	ProductID         string          `json:"productId"`
	Size              string          `json:"size"`
	QuantityReceived  int64           `json:"quantityReceived"`
	QuantityRemaining int64           `json:"quantityRemaining"`
	UnitCost          decimal.Decimal `json:"unitCost"`
	ReceivedAt        time.Time       `json:"receivedAt"`
	StockEntryID      int64           `json:"stockEntryId,omitempty"`
}

// Movement is an append-only change to a lot's remaining quantity.
type Movement struct {
	ID        int64        `json:"id"`
	LotID     int64        `json:"lotId"`
	Delta     int64        `json:"delta"`
	Kind      MovementKind `json:"kind"`
	Reference uuid.UUID    `json:"reference"`
	At        time.Time    `json:"at"`
}

// StockEntry records a supplier delivery; each line instantiated one lot.
type StockEntry struct {
	ID            int64            `json:"id"`
	Reference     uuid.UUID        `json:"reference"`
	Supplier      string           `json:"supplier"`
	InvoiceNumber string           `json:"invoiceNumber"`
	Location      string           `json:"location"`
	Date          time.Time        `json:"date"`
	Status        StockEntryStatus `json:"status"`
	CreatedBy     string           `json:"createdBy"`
	CreatedAt     time.Time        `json:"createdAt"`
	Lines         []StockEntryLine `json:"items"`
}

// TotalCost sums quantity times unit cost over every line.
func (e StockEntry) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range e.Lines {
		total = total.Add(line.UnitCost.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// StockEntryLine is one received product+size.
type StockEntryLine struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"costPrice"`
	LotID     int64           `json:"lotId"`
}

// StockEntryInput captures a delivery to receive.
type StockEntryInput struct {
	Supplier      string
	InvoiceNumber string
	Location      string
	Date          time.Time
	Lines         []StockEntryLineInput
}

// StockEntryLineInput is one line of a delivery.
type StockEntryLineInput struct {
	ProductID string
	Size      string
	Quantity  int64
	UnitCost  decimal.Decimal
}

// Consumption is the quantity taken from one lot.
type Consumption struct {
	LotID    int64           `json:"lotId"`
	Quantity int64           `json:"quantity"`
	UnitCost decimal.Decimal `json:"unitCost"`
}

// Cost returns quantity times unit cost.
func (c Consumption) Cost() decimal.Decimal {
	return c.UnitCost.Mul(decimal.NewFromInt(c.Quantity))
}

// Allocation is an oldest-first consumption plan for one product+size.
type Allocation struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int64           `json:"quantity"`
	Plan      []Consumption   `json:"plan"`
	UnitCost  decimal.Decimal `json:"unitCost"`
	TotalCost decimal.Decimal `json:"totalCost"`
}

// StockLevel is the quantity available for one product+size.
type StockLevel struct {
	ProductID         string `json:"productId"`
	Size              string `json:"size"`
	QuantityAvailable int64  `json:"quantityAvailable"`
}

// LotFilter narrows lot listings. Empty fields match everything.
type LotFilter struct {
	ProductID    string
	Size         string
	StockEntryID int64
}

// Discrepancy reports a lot whose cached remaining quantity disagrees with its movements.
type Discrepancy struct {
	LotID    int64 `json:"lotId"`
	Cached   int64 `json:"cached"`
	Replayed int64 `json:"replayed"`
}

// InsufficientStockError reports a product+size that cannot cover a request.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s/%s: requested %d, available %d", e.ProductID, e.Size, e.Requested, e.Available)
}

// Unwrap lets errors.Is match shared.ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// TxRepository exposes lot persistence inside a unit of work.
type TxRepository interface {
	// LockLots returns the lots of one product+size ordered by (received_at, id), locked for update.
	LockLots(ctx context.Context, productID, size string) ([]Lot, error)
	ListLots(ctx context.Context, filter LotFilter) ([]Lot, error)
	LockLot(ctx context.Context, id int64) (Lot, error)
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	UpdateLotRemaining(ctx context.Context, id, remaining int64) error
	InsertMovements(ctx context.Context, movements []Movement) error
	ListMovements(ctx context.Context) ([]Movement, error)
	StockLevels(ctx context.Context, productID, size string) ([]StockLevel, error)
	InsertStockEntry(ctx context.Context, entry StockEntry) (StockEntry, error)
	InsertStockEntryLines(ctx context.Context, entryID int64, lines []StockEntryLine) error
	GetStockEntry(ctx context.Context, id int64) (StockEntry, error)
	ListStockEntries(ctx context.Context) ([]StockEntry, error)
	UpdateStockEntryStatus(ctx context.Context, id int64, status StockEntryStatus) error
}

// Tx is the slice of a unit of work the inventory service needs.
type Tx interface {
	Inventory() TxRepository
	Ledger() ledger.TxRepository
}

// UnitOfWork runs fn inside one transaction spanning lots and the ledger.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}
