package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/odyssey-erp/stockledger/internal/sales"
)

type salesRepo struct{ u *unit }

func cloneTransaction(txn sales.Transaction) sales.Transaction {
	lines := make([]sales.Line, len(txn.Lines))
	for i, line := range txn.Lines {
		line.Consumptions = slices.Clone(line.Consumptions)
		lines[i] = line
	}
	txn.Lines = lines
	return txn
}

func cloneReturn(ret sales.Return) sales.Return {
	items := make([]sales.ReturnItem, len(ret.Items))
	for i, item := range ret.Items {
		item.Releases = slices.Clone(item.Releases)
		items[i] = item
	}
	ret.Items = items
	return ret
}

func (r salesRepo) InsertTransaction(_ context.Context, txn sales.Transaction) (sales.Transaction, error) {
	s := r.u.s
	s.seq.txn++
	txn.ID = s.seq.txn
	txn = cloneTransaction(txn)
	for i := range txn.Lines {
		s.seq.line++
		txn.Lines[i].ID = s.seq.line
	}
	s.txns[txn.ID] = txn
	r.u.undo = append(r.u.undo, func() { delete(s.txns, txn.ID) })
	return cloneTransaction(txn), nil
}

func (r salesRepo) GetTransaction(_ context.Context, id int64) (sales.Transaction, error) {
	txn, ok := r.u.s.txns[id]
	if !ok {
		return sales.Transaction{}, notFound("sales transaction", id)
	}
	return cloneTransaction(txn), nil
}

func (r salesRepo) LockTransaction(ctx context.Context, id int64) (sales.Transaction, error) {
	return r.GetTransaction(ctx, id)
}

func (r salesRepo) UpdateTransactionStatus(_ context.Context, id int64, status sales.Status, at time.Time) error {
	s := r.u.s
	txn, ok := s.txns[id]
	if !ok {
		return notFound("sales transaction", id)
	}
	prev := txn
	txn.Status = status
	txn.UpdatedAt = at
	s.txns[id] = txn
	r.u.undo = append(r.u.undo, func() { s.txns[id] = prev })
	return nil
}

func (r salesRepo) ListTransactions(_ context.Context, filter sales.ListFilter) ([]sales.Transaction, error) {
	out := make([]sales.Transaction, 0, len(r.u.s.txns))
	for _, txn := range r.u.s.txns {
		if filter.Status != "" && txn.Status != filter.Status {
			continue
		}
		out = append(out, cloneTransaction(txn))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r salesRepo) InsertReturn(_ context.Context, ret sales.Return) (sales.Return, error) {
	s := r.u.s
	s.seq.ret++
	ret.ID = s.seq.ret
	ret = cloneReturn(ret)
	n := len(s.returns)
	s.returns = append(s.returns, ret)
	r.u.undo = append(r.u.undo, func() { s.returns = s.returns[:n] })
	return cloneReturn(ret), nil
}

func (r salesRepo) ListReturns(_ context.Context, transactionID int64) ([]sales.Return, error) {
	out := make([]sales.Return, 0)
	for _, ret := range r.u.s.returns {
		if transactionID != 0 && ret.TransactionID != transactionID {
			continue
		}
		out = append(out, cloneReturn(ret))
	}
	return out, nil
}
