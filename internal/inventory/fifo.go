package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// SortFIFO orders lots by received-at ascending, ties broken by lot id.
func SortFIFO(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].ReceivedAt.Equal(lots[j].ReceivedAt) {
			return lots[i].ReceivedAt.Before(lots[j].ReceivedAt)
		}
		return lots[i].ID < lots[j].ID
	})
}

// Plan consumes lots oldest first until quantity is satisfied. Lots must
// belong to one product+size; they are not mutated.
func Plan(productID, size string, lots []Lot, quantity int64) (Allocation, error) {
	if quantity <= 0 {
		return Allocation{}, fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	}
	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	SortFIFO(ordered)

	var available int64
	for _, lot := range ordered {
		available += lot.QuantityRemaining
	}
	if available < quantity {
		return Allocation{}, &InsufficientStockError{ProductID: productID, Size: size, Requested: quantity, Available: available}
	}

	alloc := Allocation{ProductID: productID, Size: size, Quantity: quantity, TotalCost: decimal.Zero}
	need := quantity
	for _, lot := range ordered {
		if need == 0 {
			break
		}
		if lot.QuantityRemaining <= 0 {
			continue
		}
		take := min(need, lot.QuantityRemaining)
		c := Consumption{LotID: lot.ID, Quantity: take, UnitCost: lot.UnitCost}
		alloc.Plan = append(alloc.Plan, c)
		alloc.TotalCost = alloc.TotalCost.Add(c.Cost())
		need -= take
	}
	alloc.UnitCost = alloc.TotalCost.Div(decimal.NewFromInt(quantity))
	return alloc, nil
}

// Allocate plans and applies a FIFO consumption inside the caller's unit of
// work. On error no lot has been changed by this call.
func Allocate(ctx context.Context, tx TxRepository, productID, size string, quantity int64, reference uuid.UUID, at time.Time) (Allocation, error) {
	lots, err := tx.LockLots(ctx, productID, size)
	if err != nil {
		return Allocation{}, err
	}
	alloc, err := Plan(productID, size, lots, quantity)
	if err != nil {
		return Allocation{}, err
	}
	remaining := make(map[int64]int64, len(lots))
	for _, lot := range lots {
		remaining[lot.ID] = lot.QuantityRemaining
	}
	movements := make([]Movement, 0, len(alloc.Plan))
	for _, c := range alloc.Plan {
		if err := tx.UpdateLotRemaining(ctx, c.LotID, remaining[c.LotID]-c.Quantity); err != nil {
			return Allocation{}, err
		}
		movements = append(movements, Movement{LotID: c.LotID, Delta: -c.Quantity, Kind: MovementSale, Reference: reference, At: at})
	}
	if err := tx.InsertMovements(ctx, movements); err != nil {
		return Allocation{}, err
	}
	return alloc, nil
}

// ReleaseInput describes quantity returning to stock.
type ReleaseInput struct {
	ProductID string
	Size      string
	LotID     int64
	Quantity  int64
	UnitCost  decimal.Decimal
	Kind      MovementKind
	Reference uuid.UUID
	At        time.Time
}

// Release adds quantity back to its lot, or to a new lot dated now at the
// original cost when the lot no longer exists. It returns the lot credited.
func Release(ctx context.Context, tx TxRepository, in ReleaseInput) (Lot, error) {
	if in.Quantity <= 0 {
		return Lot{}, fmt.Errorf("%w: release quantity must be positive", shared.ErrValidation)
	}
	lot, err := tx.LockLot(ctx, in.LotID)
	switch {
	case err == nil:
		lot.QuantityRemaining += in.Quantity
		if err := tx.UpdateLotRemaining(ctx, lot.ID, lot.QuantityRemaining); err != nil {
			return Lot{}, err
		}
	case errors.Is(err, shared.ErrNotFound):
		lot, err = tx.InsertLot(ctx, Lot{
			ProductID:         in.ProductID,
			Size:              in.Size,
			QuantityReceived:  in.Quantity,
			QuantityRemaining: in.Quantity,
			UnitCost:          in.UnitCost,
			ReceivedAt:        in.At,
		})
		if err != nil {
			return Lot{}, err
		}
	default:
		return Lot{}, err
	}
	if err := tx.InsertMovements(ctx, []Movement{{LotID: lot.ID, Delta: in.Quantity, Kind: in.Kind, Reference: in.Reference, At: in.At}}); err != nil {
		return Lot{}, err
	}
	return lot, nil
}

// ReplayLots recomputes each lot's remaining quantity from its movements.
func ReplayLots(lots []Lot, movements []Movement) []Discrepancy {
	sums := make(map[int64]int64, len(lots))
	for _, m := range movements {
		sums[m.LotID] += m.Delta
	}
	var out []Discrepancy
	for _, lot := range lots {
		if sums[lot.ID] != lot.QuantityRemaining {
			out = append(out, Discrepancy{LotID: lot.ID, Cached: lot.QuantityRemaining, Replayed: sums[lot.ID]})
		}
	}
	return out
}
