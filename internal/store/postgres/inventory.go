package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/inventory"
)

type inventoryRepo struct {
	tx pgx.Tx
}

const lotColumns = `id, product_id, size, quantity_received, quantity_remaining, unit_cost, received_at, stock_entry_id`

func scanLot(row pgx.Row) (inventory.Lot, error) {
	var lot inventory.Lot
	var entryID *int64
	if err := row.Scan(&lot.ID, &lot.ProductID, &lot.Size, &lot.QuantityReceived, &lot.QuantityRemaining, &lot.UnitCost, &lot.ReceivedAt, &entryID); err != nil {
		return inventory.Lot{}, err
	}
	if entryID != nil {
		lot.StockEntryID = *entryID
	}
	lot.ReceivedAt = utc(lot.ReceivedAt)
	return lot, nil
}

func collectLots(rows pgx.Rows) ([]inventory.Lot, error) {
	defer rows.Close()
	lots := []inventory.Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r inventoryRepo) LockLots(ctx context.Context, productID, size string) ([]inventory.Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots
WHERE product_id=$1 AND size=$2
ORDER BY received_at ASC, id ASC
FOR UPDATE`, productID, size)
	if err != nil {
		return nil, err
	}
	return collectLots(rows)
}

func (r inventoryRepo) ListLots(ctx context.Context, filter inventory.LotFilter) ([]inventory.Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM inventory_lots
WHERE ($1::text IS NULL OR product_id=$1)
  AND ($2::text IS NULL OR size=$2)
  AND ($3::bigint IS NULL OR stock_entry_id=$3)
ORDER BY received_at ASC, id ASC`, nullString(filter.ProductID), nullString(filter.Size), nullInt(filter.StockEntryID))
	if err != nil {
		return nil, err
	}
	return collectLots(rows)
}

func (r inventoryRepo) LockLot(ctx context.Context, id int64) (inventory.Lot, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+` FROM inventory_lots WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Lot{}, notFound("lot", id)
	}
	return lot, err
}

func (r inventoryRepo) InsertLot(ctx context.Context, lot inventory.Lot) (inventory.Lot, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_lots (product_id, size, quantity_received, quantity_remaining, unit_cost, received_at, stock_entry_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		lot.ProductID, lot.Size, lot.QuantityReceived, lot.QuantityRemaining, lot.UnitCost, lot.ReceivedAt, nullInt(lot.StockEntryID)).Scan(&lot.ID)
	return lot, err
}

func (r inventoryRepo) UpdateLotRemaining(ctx context.Context, id, remaining int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE inventory_lots SET quantity_remaining=$2 WHERE id=$1`, id, remaining)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("lot", id)
	}
	return nil
}

func (r inventoryRepo) InsertMovements(ctx context.Context, movements []inventory.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	_, err := r.tx.CopyFrom(ctx,
		pgx.Identifier{"lot_movements"},
		[]string{"lot_id", "delta", "kind", "reference", "moved_at"},
		pgx.CopyFromSlice(len(movements), func(i int) ([]any, error) {
			m := movements[i]
			return []any{m.LotID, m.Delta, string(m.Kind), m.Reference, m.At}, nil
		}),
	)
	return err
}

func (r inventoryRepo) ListMovements(ctx context.Context) ([]inventory.Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, lot_id, delta, kind, reference, moved_at FROM lot_movements ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.Movement{}
	for rows.Next() {
		var m inventory.Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.LotID, &m.Delta, &kind, &m.Reference, &m.At); err != nil {
			return nil, err
		}
		m.Kind = inventory.MovementKind(kind)
		m.At = utc(m.At)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r inventoryRepo) StockLevels(ctx context.Context, productID, size string) ([]inventory.StockLevel, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, size, SUM(quantity_remaining)::bigint AS available
FROM inventory_lots
WHERE ($1::text IS NULL OR product_id=$1)
  AND ($2::text IS NULL OR size=$2)
GROUP BY product_id, size
HAVING SUM(quantity_remaining) > 0
ORDER BY product_id, size`, nullString(productID), nullString(size))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []inventory.StockLevel{}
	for rows.Next() {
		var level inventory.StockLevel
		if err := rows.Scan(&level.ProductID, &level.Size, &level.QuantityAvailable); err != nil {
			return nil, err
		}
		out = append(out, level)
	}
	return out, rows.Err()
}

const stockEntryColumns = `id, reference, supplier, invoice_number, location, entry_date, status, created_by, created_at`

func scanStockEntry(row pgx.Row) (inventory.StockEntry, error) {
	var entry inventory.StockEntry
	var status string
	if err := row.Scan(&entry.ID, &entry.Reference, &entry.Supplier, &entry.InvoiceNumber, &entry.Location, &entry.Date, &status, &entry.CreatedBy, &entry.CreatedAt); err != nil {
		return inventory.StockEntry{}, err
	}
	entry.Status = inventory.StockEntryStatus(status)
	entry.Date = utc(entry.Date)
	entry.CreatedAt = utc(entry.CreatedAt)
	return entry, nil
}

func (r inventoryRepo) InsertStockEntry(ctx context.Context, entry inventory.StockEntry) (inventory.StockEntry, error) {
	entry.Lines = nil
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_entries (reference, supplier, invoice_number, location, entry_date, status, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		entry.Reference, entry.Supplier, entry.InvoiceNumber, entry.Location, entry.Date, string(entry.Status), entry.CreatedBy, entry.CreatedAt).Scan(&entry.ID)
	return entry, err
}

func (r inventoryRepo) InsertStockEntryLines(ctx context.Context, entryID int64, lines []inventory.StockEntryLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO stock_entry_lines (stock_entry_id, product_id, size, quantity, unit_cost, lot_id)
VALUES ($1,$2,$3,$4,$5,$6)`, entryID, line.ProductID, line.Size, line.Quantity, line.UnitCost, line.LotID); err != nil {
			return err
		}
	}
	return nil
}

func (r inventoryRepo) GetStockEntry(ctx context.Context, id int64) (inventory.StockEntry, error) {
	entry, err := scanStockEntry(r.tx.QueryRow(ctx, `SELECT `+stockEntryColumns+` FROM stock_entries WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.StockEntry{}, notFound("stock entry", id)
	}
	if err != nil {
		return inventory.StockEntry{}, err
	}
	lines, err := r.stockEntryLines(ctx, []int64{id})
	if err != nil {
		return inventory.StockEntry{}, err
	}
	entry.Lines = lines[id]
	return entry, nil
}

func (r inventoryRepo) ListStockEntries(ctx context.Context) ([]inventory.StockEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+stockEntryColumns+` FROM stock_entries ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	entries := []inventory.StockEntry{}
	ids := []int64{}
	for rows.Next() {
		entry, err := scanStockEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := r.stockEntryLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

func (r inventoryRepo) stockEntryLines(ctx context.Context, entryIDs []int64) (map[int64][]inventory.StockEntryLine, error) {
	out := make(map[int64][]inventory.StockEntryLine, len(entryIDs))
	if len(entryIDs) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT stock_entry_id, product_id, size, quantity, unit_cost, lot_id
FROM stock_entry_lines WHERE stock_entry_id = ANY($1) ORDER BY id`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var entryID int64
		var line inventory.StockEntryLine
		if err := rows.Scan(&entryID, &line.ProductID, &line.Size, &line.Quantity, &line.UnitCost, &line.LotID); err != nil {
			return nil, err
		}
		out[entryID] = append(out[entryID], line)
	}
	return out, rows.Err()
}

func (r inventoryRepo) UpdateStockEntryStatus(ctx context.Context, id int64, status inventory.StockEntryStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_entries SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("stock entry", id)
	}
	return nil
}
