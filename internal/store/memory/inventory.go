package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

type inventoryRepo struct{ u *unit }

func (r inventoryRepo) LockLots(_ context.Context, productID, size string) ([]inventory.Lot, error) {
	out := make([]inventory.Lot, 0)
	for _, lot := range r.u.s.lots {
		if lot.ProductID == productID && lot.Size == size {
			out = append(out, lot)
		}
	}
	inventory.SortFIFO(out)
	return out, nil
}

func (r inventoryRepo) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.Lot, error) {
	out := make([]inventory.Lot, 0)
	for _, lot := range r.u.s.lots {
		if filter.ProductID != "" && lot.ProductID != filter.ProductID {
			continue
		}
		if filter.Size != "" && lot.Size != filter.Size {
			continue
		}
		if filter.StockEntryID != 0 && lot.StockEntryID != filter.StockEntryID {
			continue
		}
		out = append(out, lot)
	}
	inventory.SortFIFO(out)
	return out, nil
}

func (r inventoryRepo) LockLot(_ context.Context, id int64) (inventory.Lot, error) {
	lot, ok := r.u.s.lots[id]
	if !ok {
		return inventory.Lot{}, notFound("lot", id)
	}
	return lot, nil
}

func (r inventoryRepo) InsertLot(_ context.Context, lot inventory.Lot) (inventory.Lot, error) {
	s := r.u.s
	s.seq.lot++
	lot.ID = s.seq.lot
	s.lots[lot.ID] = lot
	r.u.undo = append(r.u.undo, func() { delete(s.lots, lot.ID) })
	return lot, nil
}

func (r inventoryRepo) UpdateLotRemaining(_ context.Context, id, remaining int64) error {
	s := r.u.s
	lot, ok := s.lots[id]
	if !ok {
		return notFound("lot", id)
	}
	prev := lot
	lot.QuantityRemaining = remaining
	s.lots[id] = lot
	r.u.undo = append(r.u.undo, func() { s.lots[id] = prev })
	return nil
}

func (r inventoryRepo) InsertMovements(_ context.Context, movements []inventory.Movement) error {
	s := r.u.s
	n := len(s.movements)
	for _, m := range movements {
		s.seq.movement++
		m.ID = s.seq.movement
		s.movements = append(s.movements, m)
	}
	r.u.undo = append(r.u.undo, func() { s.movements = s.movements[:n] })
	return nil
}

func (r inventoryRepo) ListMovements(_ context.Context) ([]inventory.Movement, error) {
	return slices.Clone(r.u.s.movements), nil
}

func (r inventoryRepo) StockLevels(_ context.Context, productID, size string) ([]inventory.StockLevel, error) {
	type key struct{ product, size string }
	sums := make(map[key]int64)
	for _, lot := range r.u.s.lots {
		if productID != "" && lot.ProductID != productID {
			continue
		}
		if size != "" && lot.Size != size {
			continue
		}
		sums[key{lot.ProductID, lot.Size}] += lot.QuantityRemaining
	}
	out := make([]inventory.StockLevel, 0, len(sums))
	for k, qty := range sums {
		if qty <= 0 {
			continue
		}
		out = append(out, inventory.StockLevel{ProductID: k.product, Size: k.size, QuantityAvailable: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Size < out[j].Size
	})
	return out, nil
}

func (r inventoryRepo) InsertStockEntry(_ context.Context, entry inventory.StockEntry) (inventory.StockEntry, error) {
	s := r.u.s
	s.seq.entry++
	entry.ID = s.seq.entry
	entry.Lines = nil
	s.stockEntries[entry.ID] = entry
	r.u.undo = append(r.u.undo, func() { delete(s.stockEntries, entry.ID) })
	return entry, nil
}

func (r inventoryRepo) InsertStockEntryLines(_ context.Context, entryID int64, lines []inventory.StockEntryLine) error {
	s := r.u.s
	entry, ok := s.stockEntries[entryID]
	if !ok {
		return notFound("stock entry", entryID)
	}
	prev := entry
	entry.Lines = append(slices.Clone(entry.Lines), lines...)
	s.stockEntries[entryID] = entry
	r.u.undo = append(r.u.undo, func() { s.stockEntries[entryID] = prev })
	return nil
}

func (r inventoryRepo) GetStockEntry(_ context.Context, id int64) (inventory.StockEntry, error) {
	entry, ok := r.u.s.stockEntries[id]
	if !ok {
		return inventory.StockEntry{}, notFound("stock entry", id)
	}
	entry.Lines = slices.Clone(entry.Lines)
	return entry, nil
}

func (r inventoryRepo) ListStockEntries(_ context.Context) ([]inventory.StockEntry, error) {
	out := make([]inventory.StockEntry, 0, len(r.u.s.stockEntries))
	for _, entry := range r.u.s.stockEntries {
		entry.Lines = slices.Clone(entry.Lines)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r inventoryRepo) UpdateStockEntryStatus(_ context.Context, id int64, status inventory.StockEntryStatus) error {
	s := r.u.s
	entry, ok := s.stockEntries[id]
	if !ok {
		return notFound("stock entry", id)
	}
	prev := entry
	entry.Status = status
	s.stockEntries[id] = entry
	r.u.undo = append(r.u.undo, func() { s.stockEntries[id] = prev })
	return nil
}
