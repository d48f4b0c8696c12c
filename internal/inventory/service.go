package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/stockledger/internal/ledger"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventRecorder counts domain events.
type EventRecorder interface {
	RecordDomainEvent(event string)
}

// Service coordinates stock receiving and inventory reads.
type Service struct {
	uow         UnitOfWork
	cache       *cache.Versioned
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	events      EventRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// ServiceDeps groups optional collaborators.
type ServiceDeps struct {
	Cache       *cache.Versioned
	Audit       AuditPort
	Idempotency *shared.IdempotencyStore
	Events      EventRecorder
	Logger      *slog.Logger
}

// NewService builds Service.
func NewService(uow UnitOfWork, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:         uow,
		cache:       deps.Cache,
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

// Receive records a supplier delivery: one lot per line, and a debit to
// Inventory against Accounts Payable for the delivery cost.
func (s *Service) Receive(ctx context.Context, input StockEntryInput, idempotencyKey string) (StockEntry, error) {
	if err := validateStockEntry(input); err != nil {
		return StockEntry{}, err
	}
	if idempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "stock_entries"); err != nil {
			return StockEntry{}, err
		}
	}

	now := s.now().UTC()
	date := input.Date
	if date.IsZero() {
		date = now
	}
	var entry StockEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		chart, err := ledger.LoadChart(ctx, tx.Ledger())
		if err != nil {
			return err
		}
		inv := tx.Inventory()
		entry, err = inv.InsertStockEntry(ctx, StockEntry{
			Reference:     uuid.New(),
			Supplier:      strings.TrimSpace(input.Supplier),
			InvoiceNumber: strings.TrimSpace(input.InvoiceNumber),
			Location:      strings.TrimSpace(input.Location),
			Date:          date,
			Status:        StockEntryActive,
			CreatedBy:     shared.ActorFromContext(ctx),
			CreatedAt:     now,
		})
		if err != nil {
			return err
		}
		lines := make([]StockEntryLine, 0, len(input.Lines))
		movements := make([]Movement, 0, len(input.Lines))
		for _, in := range input.Lines {
			lot, err := inv.InsertLot(ctx, Lot{
				ProductID:         in.ProductID,
				Size:              in.Size,
				QuantityReceived:  in.Quantity,
				QuantityRemaining: in.Quantity,
				UnitCost:          in.UnitCost,
				ReceivedAt:        now,
				StockEntryID:      entry.ID,
			})
			if err != nil {
				return err
			}
			lines = append(lines, StockEntryLine{ProductID: in.ProductID, Size: in.Size, Quantity: in.Quantity, UnitCost: in.UnitCost, LotID: lot.ID})
			movements = append(movements, Movement{LotID: lot.ID, Delta: in.Quantity, Kind: MovementReceive, Reference: entry.Reference, At: now})
		}
		if err := inv.InsertStockEntryLines(ctx, entry.ID, lines); err != nil {
			return err
		}
		if err := inv.InsertMovements(ctx, movements); err != nil {
			return err
		}
		entry.Lines = lines
		total := entry.TotalCost()
		if total.IsZero() {
			return nil
		}
		_, err = ledger.Post(ctx, tx.Ledger(), entry.Reference, ledger.SourceStockEntry, now, []ledger.Entry{
			ledger.NewEntry(chart.Inventory, chart.AccountsPayable, total, fmt.Sprintf("Stock entry %d from %s", entry.ID, entry.Supplier)),
		})
		return err
	})
	if err != nil {
		if idempotencyKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, idempotencyKey, "stock_entries")
		}
		return StockEntry{}, err
	}
	s.afterMutation(ctx, "stock_entry.receive", "stock_entry", entry.ID, map[string]any{
		"supplier":   entry.Supplier,
		"invoice":    entry.InvoiceNumber,
		"lines":      len(entry.Lines),
		"total_cost": entry.TotalCost().String(),
	})
	return entry, nil
}

// VoidStockEntry withdraws a delivery whose lots are untouched. Lots are
// zeroed with REMOVE movements and the payable is reversed.
func (s *Service) VoidStockEntry(ctx context.Context, id int64) (StockEntry, error) {
	now := s.now().UTC()
	var entry StockEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inv := tx.Inventory()
		var err error
		entry, err = inv.GetStockEntry(ctx, id)
		if err != nil {
			return err
		}
		if entry.Status == StockEntryVoid {
			return fmt.Errorf("%w: stock entry %d already void", shared.ErrInvalidTransition, id)
		}
		movements := make([]Movement, 0, len(entry.Lines))
		for _, line := range entry.Lines {
			lot, err := inv.LockLot(ctx, line.LotID)
			if err != nil {
				return err
			}
			if lot.QuantityRemaining != lot.QuantityReceived {
				return fmt.Errorf("%w: lot %d of stock entry %d has been consumed", shared.ErrConflict, lot.ID, id)
			}
			if err := inv.UpdateLotRemaining(ctx, lot.ID, 0); err != nil {
				return err
			}
			movements = append(movements, Movement{LotID: lot.ID, Delta: -lot.QuantityRemaining, Kind: MovementRemove, Reference: entry.Reference, At: now})
		}
		if err := inv.InsertMovements(ctx, movements); err != nil {
			return err
		}
		if err := inv.UpdateStockEntryStatus(ctx, id, StockEntryVoid); err != nil {
			return err
		}
		entry.Status = StockEntryVoid
		total := entry.TotalCost()
		if total.IsZero() {
			return nil
		}
		chart, err := ledger.LoadChart(ctx, tx.Ledger())
		if err != nil {
			return err
		}
		_, err = ledger.Post(ctx, tx.Ledger(), uuid.NewSHA1(entry.Reference, []byte("VOID")), ledger.SourceStockEntryVoid, now, []ledger.Entry{
			ledger.NewEntry(chart.AccountsPayable, chart.Inventory, total, fmt.Sprintf("Void stock entry %d", entry.ID)),
		})
		return err
	})
	if err != nil {
		return StockEntry{}, err
	}
	s.afterMutation(ctx, "stock_entry.void", "stock_entry", entry.ID, map[string]any{"total_cost": entry.TotalCost().String()})
	return entry, nil
}

// GetStockEntry returns one stock entry with its lines.
func (s *Service) GetStockEntry(ctx context.Context, id int64) (StockEntry, error) {
	var entry StockEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entry, err = tx.Inventory().GetStockEntry(ctx, id)
		return err
	})
	return entry, err
}

// ListStockEntries returns every stock entry with its lines, newest first.
func (s *Service) ListStockEntries(ctx context.Context) ([]StockEntry, error) {
	var out []StockEntry
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.Inventory().ListStockEntries(ctx)
		return err
	})
	return out, err
}

// QueryInventory returns quantities available per product+size, served
// from the versioned cache when one is configured.
func (s *Service) QueryInventory(ctx context.Context, productID, size string) ([]StockLevel, error) {
	key, err := s.cache.BuildKey(ctx, "levels", cacheSegment(productID), cacheSegment(size))
	if err != nil {
		s.logger.WarnContext(ctx, "inventory cache unavailable", slog.Any("error", err))
		return s.loadLevels(ctx, productID, size)
	}
	var levels []StockLevel
	err = s.cache.FetchJSON(ctx, key, &levels, func(ctx context.Context) (any, error) {
		return s.loadLevels(ctx, productID, size)
	})
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = []StockLevel{}
	}
	return levels, nil
}

func (s *Service) loadLevels(ctx context.Context, productID, size string) ([]StockLevel, error) {
	var levels []StockLevel
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		levels, err = tx.Inventory().StockLevels(ctx, productID, size)
		return err
	})
	return levels, err
}

// FIFOCost previews the cost of taking quantity without mutating any lot.
func (s *Service) FIFOCost(ctx context.Context, productID, size string, quantity int64) (Allocation, error) {
	if strings.TrimSpace(productID) == "" || strings.TrimSpace(size) == "" {
		return Allocation{}, fmt.Errorf("%w: product and size required", shared.ErrValidation)
	}
	var alloc Allocation
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		lots, err := tx.Inventory().ListLots(ctx, LotFilter{ProductID: productID, Size: size})
		if err != nil {
			return err
		}
		alloc, err = Plan(productID, size, lots, quantity)
		return err
	})
	return alloc, err
}

// Reconcile replays lot movements and reports lots whose cached quantity drifted.
func (s *Service) Reconcile(ctx context.Context) ([]Discrepancy, error) {
	var out []Discrepancy
	err := s.uow.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		lots, err := tx.Inventory().ListLots(ctx, LotFilter{})
		if err != nil {
			return err
		}
		movements, err := tx.Inventory().ListMovements(ctx)
		if err != nil {
			return err
		}
		out = ReplayLots(lots, movements)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		s.logger.WarnContext(ctx, "inventory reconcile found discrepancies", slog.Int("count", len(out)))
	}
	return out, nil
}

// Invalidate drops cached inventory reads after lots changed elsewhere.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.WarnContext(ctx, "inventory cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) afterMutation(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	s.Invalidate(ctx)
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

func validateStockEntry(input StockEntryInput) error {
	if strings.TrimSpace(input.Supplier) == "" {
		return fmt.Errorf("%w: supplier required", shared.ErrValidation)
	}
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: stock entry needs at least one line", shared.ErrValidation)
	}
	for i, line := range input.Lines {
		if strings.TrimSpace(line.ProductID) == "" || strings.TrimSpace(line.Size) == "" {
			return fmt.Errorf("%w: line %d product and size required", shared.ErrValidation, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line %d quantity must be positive", shared.ErrValidation, i)
		}
		if line.UnitCost.IsNegative() {
			return fmt.Errorf("%w: line %d unit cost must not be negative", shared.ErrValidation, i)
		}
	}
	return nil
}

func cacheSegment(v string) string {
	if v == "" {
		return "*"
	}
	return url.QueryEscape(v)
}
