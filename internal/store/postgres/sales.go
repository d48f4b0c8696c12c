package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/sales"
)

type salesRepo struct {
	tx pgx.Tx
}

const transactionColumns = `id, reference, customer_name, payment_method, discount, status, total_amount, total_profit, created_by, created_at, updated_at`

func scanTransaction(row pgx.Row) (sales.Transaction, error) {
	var txn sales.Transaction
	var method, status string
	if err := row.Scan(&txn.ID, &txn.Reference, &txn.CustomerName, &method, &txn.Discount, &status,
		&txn.TotalAmount, &txn.TotalProfit, &txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return sales.Transaction{}, err
	}
	txn.PaymentMethod = sales.PaymentMethod(method)
	txn.Status = sales.Status(status)
	txn.CreatedAt = utc(txn.CreatedAt)
	txn.UpdatedAt = utc(txn.UpdatedAt)
	return txn, nil
}

func (r salesRepo) InsertTransaction(ctx context.Context, txn sales.Transaction) (sales.Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_transactions (reference, customer_name, payment_method, discount, status, total_amount, total_profit, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		txn.Reference, txn.CustomerName, string(txn.PaymentMethod), txn.Discount, string(txn.Status),
		txn.TotalAmount, txn.TotalProfit, txn.CreatedBy, txn.CreatedAt, txn.UpdatedAt).Scan(&txn.ID)
	if err != nil {
		return sales.Transaction{}, err
	}
	lines := make([]sales.Line, len(txn.Lines))
	for i, line := range txn.Lines {
		if err := r.tx.QueryRow(ctx, `INSERT INTO sales_transaction_lines (transaction_id, product_id, size, quantity, selling_price, unit_cost, line_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			txn.ID, line.ProductID, line.Size, line.Quantity, line.SellingPrice, line.UnitCost, line.LineCost).Scan(&line.ID); err != nil {
			return sales.Transaction{}, err
		}
		for _, c := range line.Consumptions {
			if _, err := r.tx.Exec(ctx, `INSERT INTO sales_line_consumptions (line_id, lot_id, quantity, unit_cost) VALUES ($1,$2,$3,$4)`,
				line.ID, c.LotID, c.Quantity, c.UnitCost); err != nil {
				return sales.Transaction{}, err
			}
		}
		lines[i] = line
	}
	txn.Lines = lines
	return txn, nil
}

func (r salesRepo) GetTransaction(ctx context.Context, id int64) (sales.Transaction, error) {
	return r.loadTransaction(ctx, `SELECT `+transactionColumns+` FROM sales_transactions WHERE id=$1`, id)
}

func (r salesRepo) LockTransaction(ctx context.Context, id int64) (sales.Transaction, error) {
	return r.loadTransaction(ctx, `SELECT `+transactionColumns+` FROM sales_transactions WHERE id=$1 FOR UPDATE`, id)
}

func (r salesRepo) loadTransaction(ctx context.Context, query string, id int64) (sales.Transaction, error) {
	txn, err := scanTransaction(r.tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return sales.Transaction{}, notFound("sales transaction", id)
	}
	if err != nil {
		return sales.Transaction{}, err
	}
	lines, err := r.transactionLines(ctx, []int64{id})
	if err != nil {
		return sales.Transaction{}, err
	}
	txn.Lines = lines[id]
	return txn, nil
}

func (r salesRepo) UpdateTransactionStatus(ctx context.Context, id int64, status sales.Status, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales_transactions SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("sales transaction", id)
	}
	return nil
}

func (r salesRepo) ListTransactions(ctx context.Context, filter sales.ListFilter) ([]sales.Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transactionColumns+` FROM sales_transactions
WHERE ($1::text IS NULL OR status=$1)
ORDER BY id DESC
LIMIT $2`, nullString(string(filter.Status)), nullLimit(filter.Limit))
	if err != nil {
		return nil, err
	}
	txns := []sales.Transaction{}
	ids := []int64{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		txns = append(txns, txn)
		ids = append(ids, txn.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := r.transactionLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range txns {
		txns[i].Lines = lines[txns[i].ID]
	}
	return txns, nil
}

// transactionLines loads lines with their consumption traces keyed by transaction id.
func (r salesRepo) transactionLines(ctx context.Context, txnIDs []int64) (map[int64][]sales.Line, error) {
	out := make(map[int64][]sales.Line, len(txnIDs))
	if len(txnIDs) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT transaction_id, id, product_id, size, quantity, selling_price, unit_cost, line_cost
FROM sales_transaction_lines WHERE transaction_id = ANY($1) ORDER BY id`, txnIDs)
	if err != nil {
		return nil, err
	}
	type owned struct {
		txnID int64
		line  sales.Line
	}
	var all []owned
	lineIDs := []int64{}
	for rows.Next() {
		var o owned
		if err := rows.Scan(&o.txnID, &o.line.ID, &o.line.ProductID, &o.line.Size, &o.line.Quantity, &o.line.SellingPrice, &o.line.UnitCost, &o.line.LineCost); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, o)
		lineIDs = append(lineIDs, o.line.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	traces, err := r.consumptions(ctx, `SELECT line_id, lot_id, quantity, unit_cost FROM sales_line_consumptions WHERE line_id = ANY($1) ORDER BY id`, lineIDs)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		o.line.Consumptions = traces[o.line.ID]
		out[o.txnID] = append(out[o.txnID], o.line)
	}
	return out, nil
}

func (r salesRepo) consumptions(ctx context.Context, query string, ownerIDs []int64) (map[int64][]inventory.Consumption, error) {
	out := make(map[int64][]inventory.Consumption, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, query, ownerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var owner int64
		var c inventory.Consumption
		if err := rows.Scan(&owner, &c.LotID, &c.Quantity, &c.UnitCost); err != nil {
			return nil, err
		}
		out[owner] = append(out[owner], c)
	}
	return out, rows.Err()
}

func (r salesRepo) InsertReturn(ctx context.Context, ret sales.Return) (sales.Return, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO sales_returns (reference, transaction_id, returned_by, refund_amount, returned_cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		ret.Reference, ret.TransactionID, ret.ReturnedBy, ret.RefundAmount, ret.ReturnedCost, ret.CreatedAt).Scan(&ret.ID)
	if err != nil {
		return sales.Return{}, err
	}
	for _, item := range ret.Items {
		var itemID int64
		if err := r.tx.QueryRow(ctx, `INSERT INTO sales_return_items (return_id, product_id, size, quantity, reason, gross, cost)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			ret.ID, item.ProductID, item.Size, item.Quantity, item.Reason, item.Gross, item.Cost).Scan(&itemID); err != nil {
			return sales.Return{}, err
		}
		for _, c := range item.Releases {
			if _, err := r.tx.Exec(ctx, `INSERT INTO sales_return_releases (return_item_id, lot_id, quantity, unit_cost) VALUES ($1,$2,$3,$4)`,
				itemID, c.LotID, c.Quantity, c.UnitCost); err != nil {
				return sales.Return{}, err
			}
		}
	}
	return ret, nil
}

func (r salesRepo) ListReturns(ctx context.Context, transactionID int64) ([]sales.Return, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, reference, transaction_id, returned_by, refund_amount, returned_cost, created_at
FROM sales_returns WHERE ($1::bigint IS NULL OR transaction_id=$1) ORDER BY id`, nullInt(transactionID))
	if err != nil {
		return nil, err
	}
	returns := []sales.Return{}
	ids := []int64{}
	for rows.Next() {
		var ret sales.Return
		if err := rows.Scan(&ret.ID, &ret.Reference, &ret.TransactionID, &ret.ReturnedBy, &ret.RefundAmount, &ret.ReturnedCost, &ret.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		ret.CreatedAt = utc(ret.CreatedAt)
		returns = append(returns, ret)
		ids = append(ids, ret.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items, err := r.returnItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range returns {
		returns[i].Items = items[returns[i].ID]
	}
	return returns, nil
}

func (r salesRepo) returnItems(ctx context.Context, returnIDs []int64) (map[int64][]sales.ReturnItem, error) {
	out := make(map[int64][]sales.ReturnItem, len(returnIDs))
	if len(returnIDs) == 0 {
		return out, nil
	}
	rows, err := r.tx.Query(ctx, `SELECT return_id, id, product_id, size, quantity, reason, gross, cost
FROM sales_return_items WHERE return_id = ANY($1) ORDER BY id`, returnIDs)
	if err != nil {
		return nil, err
	}
	type owned struct {
		returnID, itemID int64
		item             sales.ReturnItem
	}
	var all []owned
	itemIDs := []int64{}
	for rows.Next() {
		var o owned
		if err := rows.Scan(&o.returnID, &o.itemID, &o.item.ProductID, &o.item.Size, &o.item.Quantity, &o.item.Reason, &o.item.Gross, &o.item.Cost); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, o)
		itemIDs = append(itemIDs, o.itemID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	releases, err := r.consumptions(ctx, `SELECT return_item_id, lot_id, quantity, unit_cost FROM sales_return_releases WHERE return_item_id = ANY($1) ORDER BY id`, itemIDs)
	if err != nil {
		return nil, err
	}
	for _, o := range all {
		o.item.Releases = releases[o.itemID]
		out[o.returnID] = append(out[o.returnID], o.item)
	}
	return out, nil
}
