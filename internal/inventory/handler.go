package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountInventoryRoutes registers the /inventories routes.
func (h *Handler) MountInventoryRoutes(r chi.Router) {
	r.Get("/", h.queryInventory)
}

// MountStockRoutes registers the /stocks routes.
func (h *Handler) MountStockRoutes(r chi.Router) {
	r.Get("/fifo-cost", h.fifoCost)
	r.Post("/stock-entries", h.receive)
	r.Get("/stock-entries-detailed", h.listStockEntries)
	r.Get("/stock-entries/{id}", h.getStockEntry)
	r.Delete("/stock-entries/{id}", h.voidStockEntry)
}

type stockEntryRequest struct {
	Supplier      string                  `json:"supplier" validate:"required,max=200"`
	InvoiceNumber string                  `json:"invoiceNumber" validate:"max=100"`
	Location      string                  `json:"location" validate:"max=200"`
	Date          *time.Time              `json:"date"`
	Items         []stockEntryLineRequest `json:"items" validate:"required,min=1,dive"`
}

type stockEntryLineRequest struct {
	Product   string          `json:"productId" validate:"required"`
	Size      string          `json:"size" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	CostPrice decimal.Decimal `json:"costPrice"`
}

type fifoCostResponse struct {
	ProductID string          `json:"productId"`
	Size      string          `json:"size"`
	Quantity  int64           `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Plan      []Consumption   `json:"plan"`
}

func (h *Handler) queryInventory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	levels, err := h.service.QueryInventory(r.Context(), q.Get("productId"), q.Get("size"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, levels)
}

func (h *Handler) fifoCost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quantity, err := strconv.ParseInt(q.Get("quantity"), 10, 64)
	if err != nil {
		h.fail(w, r, httpx.ParseErrorf("quantity must be an integer"))
		return
	}
	alloc, err := h.service.FIFOCost(r.Context(), q.Get("productId"), q.Get("size"), quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, fifoCostResponse{
		ProductID: alloc.ProductID,
		Size:      alloc.Size,
		Quantity:  alloc.Quantity,
		CostPrice: alloc.UnitCost,
		TotalCost: alloc.TotalCost,
		Plan:      alloc.Plan,
	})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req stockEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	input := StockEntryInput{Supplier: req.Supplier, InvoiceNumber: req.InvoiceNumber, Location: req.Location}
	if req.Date != nil {
		input.Date = *req.Date
	}
	for _, item := range req.Items {
		input.Lines = append(input.Lines, StockEntryLineInput{ProductID: item.Product, Size: item.Size, Quantity: item.Quantity, UnitCost: item.CostPrice})
	}
	entry, err := h.service.Receive(r.Context(), input, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listStockEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListStockEntries(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) getStockEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.GetStockEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) voidStockEntry(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, err := h.service.VoidStockEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, status := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "inventory request failed", slog.String("path", r.URL.Path), slog.String("actor", shared.ActorFromContext(r.Context())), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
