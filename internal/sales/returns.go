package sales

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MaxReasonLength bounds a return reason, in characters.
const MaxReasonLength = 500

// CreateReturn takes goods back from a sale. Every line is validated before
// anything is applied; lots are restored oldest-consumed first and the sale's
// revenue and cost are compensated proportionally.
func (s *Service) CreateReturn(ctx context.Context, input ReturnInput) (Return, error) {
	if err := validateReturn(input); err != nil {
		return Return{}, err
	}
	now := s.now().UTC()
	var ret Return
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		txn, err := tx.Sales().LockTransaction(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.Status == StatusCancelled {
			return fmt.Errorf("%w: sale %d is cancelled", shared.ErrInvalidTransition, txn.ID)
		}
		prior, err := tx.Sales().ListReturns(ctx, txn.ID)
		if err != nil {
			return err
		}
		returned := returnedQuantities(prior)
		lines := make([]Line, len(input.Items))
		for i, item := range input.Items {
			line, ok := txn.Line(item.ProductID, item.Size)
			if !ok {
				return fmt.Errorf("%w: %s/%s was not sold in sale %d", shared.ErrValidation, item.ProductID, item.Size, txn.ID)
			}
			remaining := line.Quantity - returned[shared.NewStockKey(item.ProductID, item.Size)]
			if item.Quantity > remaining {
				return fmt.Errorf("%w: cannot return %d of %s/%s, only %d left on sale %d", shared.ErrValidation, item.Quantity, item.ProductID, item.Size, remaining, txn.ID)
			}
			lines[i] = line
		}

		chart, err := ledger.LoadChart(ctx, tx.Ledger())
		if err != nil {
			return err
		}
		paymentAccount, err := txn.PaymentMethod.DebitAccount(chart)
		if err != nil {
			return err
		}

		ret = Return{
			Reference:     uuid.New(),
			TransactionID: txn.ID,
			ReturnedBy:    shared.ActorFromContext(ctx),
			RefundAmount:  decimal.Zero,
			ReturnedCost:  decimal.Zero,
			CreatedAt:     now,
		}
		returnedGross := decimal.Zero
		for i, item := range input.Items {
			line := lines[i]
			releases := take(unreleased(line.Consumptions, returned[shared.NewStockKey(item.ProductID, item.Size)]), item.Quantity)
			cost := decimal.Zero
			for _, c := range releases {
				if _, err := inventory.Release(ctx, tx.Inventory(), inventory.ReleaseInput{
					ProductID: item.ProductID,
					Size:      item.Size,
					LotID:     c.LotID,
					Quantity:  c.Quantity,
					UnitCost:  c.UnitCost,
					Kind:      inventory.MovementReturn,
					Reference: ret.Reference,
					At:        now,
				}); err != nil {
					return err
				}
				cost = cost.Add(c.Cost())
			}
			gross := line.SellingPrice.Mul(decimal.NewFromInt(item.Quantity))
			ret.Items = append(ret.Items, ReturnItem{
				ProductID: item.ProductID,
				Size:      item.Size,
				Quantity:  item.Quantity,
				Reason:    strings.TrimSpace(item.Reason),
				Gross:     gross,
				Cost:      cost,
				Releases:  releases,
			})
			ret.ReturnedCost = ret.ReturnedCost.Add(cost)
			returnedGross = returnedGross.Add(gross)
		}

		priorGross := decimal.Zero
		for _, p := range prior {
			for _, item := range p.Items {
				priorGross = priorGross.Add(item.Gross)
			}
		}
		ret.RefundAmount = Refundable(txn, priorGross.Add(returnedGross)).Sub(Refundable(txn, priorGross))

		ret, err = tx.Sales().InsertReturn(ctx, ret)
		if err != nil {
			return err
		}
		var entries []ledger.Entry
		if ret.ReturnedCost.IsPositive() {
			entries = append(entries, ledger.NewEntry(chart.Inventory, chart.COGS, ret.ReturnedCost, fmt.Sprintf("Return %d cost for sale %d", ret.ID, txn.ID)))
		}
		if ret.RefundAmount.IsPositive() {
			entries = append(entries, ledger.NewEntry(chart.SalesRevenue, paymentAccount, ret.RefundAmount, fmt.Sprintf("Return %d refund for sale %d", ret.ID, txn.ID)))
		}
		if len(entries) == 0 {
			return nil
		}
		_, err = ledger.Post(ctx, tx.Ledger(), ret.Reference, ledger.SourceReturn, now, entries)
		return err
	})
	if err != nil {
		return Return{}, err
	}
	s.afterMutation(ctx, "sale.return", "sales_return", ret.ID, true, map[string]any{
		"transaction_id": ret.TransactionID,
		"refund_amount":  ret.RefundAmount.String(),
		"returned_cost":  ret.ReturnedCost.String(),
	})
	return ret, nil
}

// Refundable is the share of the sale's total amount owed back once
// returnedGross worth of goods (at selling price) have come back. It is
// rounded to cents and equals the total exactly when everything came back.
func Refundable(txn Transaction, returnedGross decimal.Decimal) decimal.Decimal {
	gross := txn.Gross()
	if !gross.IsPositive() || !returnedGross.IsPositive() {
		return decimal.Zero
	}
	if returnedGross.GreaterThanOrEqual(gross) {
		return txn.TotalAmount
	}
	return returnedGross.Mul(txn.TotalAmount).Div(gross).Round(2)
}

// ListReturns returns every return, oldest first.
func (s *Service) ListReturns(ctx context.Context) ([]Return, error) {
	var out []Return
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Sales().ListReturns(ctx, 0)
		return err
	})
	return out, err
}

// ReturnsByTransaction returns the return history of one sale.
func (s *Service) ReturnsByTransaction(ctx context.Context, transactionID int64) ([]Return, error) {
	var out []Return
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Sales().GetTransaction(ctx, transactionID); err != nil {
			return err
		}
		var err error
		out, err = tx.Sales().ListReturns(ctx, transactionID)
		return err
	})
	return out, err
}

func validateReturn(input ReturnInput) error {
	if input.TransactionID <= 0 {
		return fmt.Errorf("%w: transaction id required", shared.ErrValidation)
	}
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: return needs at least one item", shared.ErrValidation)
	}
	seen := make(map[shared.StockKey]struct{}, len(input.Items))
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductID) == "" || strings.TrimSpace(item.Size) == "" {
			return fmt.Errorf("%w: item %d product and size required", shared.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", shared.ErrValidation, i)
		}
		reason := strings.TrimSpace(item.Reason)
		if reason == "" {
			return fmt.Errorf("%w: item %d reason required", shared.ErrValidation, i)
		}
		if utf8.RuneCountInString(reason) > MaxReasonLength {
			return fmt.Errorf("%w: item %d reason longer than %d characters", shared.ErrValidation, i, MaxReasonLength)
		}
		key := shared.NewStockKey(item.ProductID, item.Size)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s/%s appears more than once", shared.ErrValidation, item.ProductID, item.Size)
		}
		seen[key] = struct{}{}
	}
	return nil
}
