package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

const idempotencyModule = "sales"

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventRecorder counts domain events.
type EventRecorder interface {
	RecordDomainEvent(event string)
}

// StockInvalidator is told when committed work changed lot quantities.
type StockInvalidator interface {
	Invalidate(ctx context.Context)
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Stock       StockInvalidator
	Audit       AuditPort
	Idempotency *shared.IdempotencyStore
	Events      EventRecorder
	Logger      *slog.Logger
}

// Service processes sales, their lifecycle, reversals and returns.
type Service struct {
	uow         UnitOfWork
	stock       StockInvalidator
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	events      EventRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the sales service.
func NewService(uow UnitOfWork, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:         uow,
		stock:       deps.Stock,
		audit:       deps.Audit,
		idempotency: deps.Idempotency,
		events:      deps.Events,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSale allocates every line FIFO, records the sale as Pending and posts
// revenue and cost of goods sold. Either every line is allocated or none is.
func (s *Service) CreateSale(ctx context.Context, input SaleInput) (Transaction, error) {
	gross, err := validateSale(input)
	if err != nil {
		return Transaction{}, err
	}
	total := gross.Sub(input.Discount)

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Transaction{}, err
		}
	}

	now := s.now().UTC()
	var txn Transaction
	err = s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		chart, err := ledger.LoadChart(ctx, tx.Ledger())
		if err != nil {
			return err
		}
		paymentAccount, err := input.PaymentMethod.DebitAccount(chart)
		if err != nil {
			return err
		}
		txn = Transaction{
			Reference:     uuid.New(),
			CustomerName:  strings.TrimSpace(input.CustomerName),
			PaymentMethod: input.PaymentMethod,
			Discount:      input.Discount,
			Status:        StatusPending,
			TotalAmount:   total,
			TotalProfit:   decimal.Zero,
			CreatedBy:     shared.ActorFromContext(ctx),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for _, item := range input.Items {
			alloc, err := inventory.Allocate(ctx, tx.Inventory(), item.ProductID, item.Size, item.Quantity, txn.Reference, now)
			if err != nil {
				return err
			}
			line := Line{
				ProductID:    item.ProductID,
				Size:         item.Size,
				Quantity:     item.Quantity,
				SellingPrice: item.SellingPrice,
				UnitCost:     alloc.UnitCost,
				LineCost:     alloc.TotalCost,
				Consumptions: alloc.Plan,
			}
			txn.Lines = append(txn.Lines, line)
			txn.TotalProfit = txn.TotalProfit.Add(line.Gross().Sub(line.LineCost))
		}
		txn, err = tx.Sales().InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		var entries []ledger.Entry
		if total.IsPositive() {
			entries = append(entries, ledger.NewEntry(paymentAccount, chart.SalesRevenue, total, fmt.Sprintf("Sale %d", txn.ID)))
		}
		if cost := txn.Cost(); cost.IsPositive() {
			entries = append(entries, ledger.NewEntry(chart.COGS, chart.Inventory, cost, fmt.Sprintf("Cost of sale %d", txn.ID)))
		}
		if len(entries) == 0 {
			return nil
		}
		_, err = ledger.Post(ctx, tx.Ledger(), txn.Reference, ledger.SourceSale, now, entries)
		return err
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey, idempotencyModule)
		}
		if errors.Is(err, shared.ErrConflict) {
			// Allocation kept losing the lot race; callers see the stock outcome.
			return Transaction{}, fmt.Errorf("%w: %v", shared.ErrInsufficientStock, err)
		}
		return Transaction{}, err
	}
	s.afterMutation(ctx, "sale.create", "sales_transaction", txn.ID, true, map[string]any{
		"total_amount":   txn.TotalAmount.String(),
		"total_profit":   txn.TotalProfit.String(),
		"payment_method": string(txn.PaymentMethod),
		"lines":          len(txn.Lines),
	})
	return txn, nil
}

// MarkCompleted flags a Pending sale as fulfilled. Nothing else changes.
func (s *Service) MarkCompleted(ctx context.Context, id int64) (Transaction, error) {
	now := s.now().UTC()
	var txn Transaction
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		txn, err = tx.Sales().LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		next, err := txn.Status.Transition(StatusCompleted)
		if err != nil {
			return fmt.Errorf("sale %d: %w", id, err)
		}
		if err := tx.Sales().UpdateTransactionStatus(ctx, id, next, now); err != nil {
			return err
		}
		txn.Status = next
		txn.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterMutation(ctx, "sale.complete", "sales_transaction", id, false, nil)
	return txn, nil
}

// Reverse cancels a sale: it restores exactly the lots the sale consumed and
// mirrors its ledger entries, less whatever returns already compensated.
func (s *Service) Reverse(ctx context.Context, id int64) (Transaction, error) {
	now := s.now().UTC()
	var txn Transaction
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		txn, err = tx.Sales().LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		next, err := txn.Status.Transition(StatusCancelled)
		if err != nil {
			return fmt.Errorf("sale %d: %w", id, err)
		}
		chart, err := ledger.LoadChart(ctx, tx.Ledger())
		if err != nil {
			return err
		}
		paymentAccount, err := txn.PaymentMethod.DebitAccount(chart)
		if err != nil {
			return err
		}
		prior, err := tx.Sales().ListReturns(ctx, id)
		if err != nil {
			return err
		}
		returnedQty := returnedQuantities(prior)
		refunded := decimal.Zero
		for _, ret := range prior {
			refunded = refunded.Add(ret.RefundAmount)
		}

		reference := uuid.NewSHA1(txn.Reference, []byte("REVERSAL"))
		cost := decimal.Zero
		for _, line := range txn.Lines {
			for _, c := range unreleased(line.Consumptions, returnedQty[shared.NewStockKey(line.ProductID, line.Size)]) {
				if _, err := inventory.Release(ctx, tx.Inventory(), inventory.ReleaseInput{
					ProductID: line.ProductID,
					Size:      line.Size,
					LotID:     c.LotID,
					Quantity:  c.Quantity,
					UnitCost:  c.UnitCost,
					Kind:      inventory.MovementReversal,
					Reference: reference,
					At:        now,
				}); err != nil {
					return err
				}
				cost = cost.Add(c.Cost())
			}
		}

		var entries []ledger.Entry
		if revenue := txn.TotalAmount.Sub(refunded); revenue.IsPositive() {
			entries = append(entries, ledger.NewEntry(chart.SalesRevenue, paymentAccount, revenue, fmt.Sprintf("Reversal of sale %d", id)))
		}
		if cost.IsPositive() {
			entries = append(entries, ledger.NewEntry(chart.Inventory, chart.COGS, cost, fmt.Sprintf("Cost reversal of sale %d", id)))
		}
		if len(entries) > 0 {
			if _, err := ledger.Post(ctx, tx.Ledger(), reference, ledger.SourceSaleReversal, now, entries); err != nil {
				return err
			}
		}
		if err := tx.Sales().UpdateTransactionStatus(ctx, id, next, now); err != nil {
			return err
		}
		txn.Status = next
		txn.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterMutation(ctx, "sale.reverse", "sales_transaction", id, true, map[string]any{
		"total_amount": txn.TotalAmount.String(),
	})
	return txn, nil
}

// Get returns one sale with its lines and consumption traces.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	var txn Transaction
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		txn, err = tx.Sales().GetTransaction(ctx, id)
		return err
	})
	return txn, err
}

// List returns sales, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", shared.ErrValidation)
	}
	var out []Transaction
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Sales().ListTransactions(ctx, filter)
		return err
	})
	return out, err
}

// Summary counts sales per status and reports revenue and profit still
// realised after reversals and returns.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{Revenue: decimal.Zero, RealisedProfit: decimal.Zero}
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		txns, err := tx.Sales().ListTransactions(ctx, ListFilter{})
		if err != nil {
			return err
		}
		returns, err := tx.Sales().ListReturns(ctx, 0)
		if err != nil {
			return err
		}
		live := make(map[int64]bool, len(txns))
		for _, txn := range txns {
			sum.Total++
			switch txn.Status {
			case StatusPending:
				sum.Pending++
			case StatusCompleted:
				sum.Completed++
			case StatusCancelled:
				sum.Cancelled++
				continue
			}
			live[txn.ID] = true
			sum.Revenue = sum.Revenue.Add(txn.TotalAmount)
			sum.RealisedProfit = sum.RealisedProfit.Add(txn.TotalProfit)
		}
		for _, ret := range returns {
			sum.Returns++
			if !live[ret.TransactionID] {
				continue
			}
			sum.Revenue = sum.Revenue.Sub(ret.RefundAmount)
			for _, item := range ret.Items {
				sum.RealisedProfit = sum.RealisedProfit.Sub(item.Gross.Sub(item.Cost))
			}
		}
		return nil
	})
	return sum, err
}

func (s *Service) afterMutation(ctx context.Context, action, entity string, id int64, stockChanged bool, meta map[string]any) {
	if stockChanged && s.stock != nil {
		s.stock.Invalidate(ctx)
	}
	if s.events != nil {
		s.events.RecordDomainEvent(action)
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   action,
			Entity:   entity,
			EntityID: strconv.FormatInt(id, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
}

func validateSale(input SaleInput) (decimal.Decimal, error) {
	if len(input.Items) == 0 {
		return decimal.Zero, fmt.Errorf("%w: sale needs at least one item", shared.ErrValidation)
	}
	if _, err := input.PaymentMethod.DebitAccount(ledger.Chart{}); err != nil {
		return decimal.Zero, err
	}
	if input.Discount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount must not be negative", shared.ErrValidation)
	}
	seen := make(map[shared.StockKey]struct{}, len(input.Items))
	gross := decimal.Zero
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductID) == "" || strings.TrimSpace(item.Size) == "" {
			return decimal.Zero, fmt.Errorf("%w: item %d product and size required", shared.ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return decimal.Zero, fmt.Errorf("%w: item %d quantity must be positive", shared.ErrValidation, i)
		}
		if item.SellingPrice.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: item %d selling price must not be negative", shared.ErrValidation, i)
		}
		key := shared.NewStockKey(item.ProductID, item.Size)
		if _, dup := seen[key]; dup {
			return decimal.Zero, fmt.Errorf("%w: %s/%s appears more than once", shared.ErrValidation, item.ProductID, item.Size)
		}
		seen[key] = struct{}{}
		gross = gross.Add(item.SellingPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	if gross.Sub(input.Discount).IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount %s exceeds sale value %s", shared.ErrValidation, input.Discount, gross)
	}
	return gross, nil
}

// returnedQuantities sums returned quantity per product+size.
func returnedQuantities(returns []Return) map[shared.StockKey]int64 {
	out := make(map[shared.StockKey]int64)
	for _, ret := range returns {
		for _, item := range ret.Items {
			out[shared.NewStockKey(item.ProductID, item.Size)] += item.Quantity
		}
	}
	return out
}

// unreleased drops the first skip units of an oldest-first trace.
func unreleased(trace []inventory.Consumption, skip int64) []inventory.Consumption {
	out := make([]inventory.Consumption, 0, len(trace))
	for _, c := range trace {
		if skip >= c.Quantity {
			skip -= c.Quantity
			continue
		}
		c.Quantity -= skip
		skip = 0
		out = append(out, c)
	}
	return out
}

// take returns the first quantity units of an oldest-first trace.
func take(trace []inventory.Consumption, quantity int64) []inventory.Consumption {
	out := make([]inventory.Consumption, 0, len(trace))
	for _, c := range trace {
		if quantity == 0 {
			break
		}
		if c.Quantity > quantity {
			c.Quantity = quantity
		}
		quantity -= c.Quantity
		out = append(out, c)
	}
	return out
}
