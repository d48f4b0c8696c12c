package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// Handler wires HTTP endpoints for sales and returns.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the sales handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountSalesRoutes registers the /sales routes.
func (h *Handler) MountSalesRoutes(r chi.Router) {
	r.Post("/", h.createSale)
	r.Get("/", h.list)
	r.Get("/summary", h.summary)
	r.Get("/{id}", h.get)
	r.Put("/mark-completed/{id}", h.markCompleted)
	r.Put("/reverse/{id}", h.reverse)
}

// MountReturnRoutes registers the /sales-return routes.
func (h *Handler) MountReturnRoutes(r chi.Router) {
	r.Post("/", h.createReturn)
	r.Get("/", h.listReturns)
	r.Get("/by-transaction/{id}", h.returnsByTransaction)
}

type saleRequest struct {
	CustomerName  string            `json:"customerName" validate:"max=200"`
	PaymentMethod string            `json:"paymentMethod" validate:"required"`
	Discount      decimal.Decimal   `json:"discount"`
	Items         []saleLineRequest `json:"items" validate:"required,min=1,dive"`
}

type saleLineRequest struct {
	ProductID    string          `json:"productId" validate:"required"`
	Size         string          `json:"size" validate:"required"`
	Quantity     int64           `json:"quantity" validate:"gt=0"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
}

type saleResponse struct {
	TransactionID int64           `json:"transactionId"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
	Status        Status          `json:"status"`
}

type returnRequest struct {
	TransactionID int64               `json:"transactionId" validate:"gt=0"`
	Items         []returnLineRequest `json:"items" validate:"required,min=1,dive"`
}

type returnLineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Size      string `json:"size" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	input := SaleInput{
		CustomerName:   req.CustomerName,
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		Discount:       req.Discount,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, LineInput(item))
	}
	txn, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{
		TransactionID: txn.ID,
		TotalAmount:   txn.TotalAmount,
		TotalProfit:   txn.TotalProfit,
		Status:        txn.Status,
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, httpx.ParseErrorf("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	txns, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) markCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.service.MarkCompleted(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactionId": txn.ID, "status": txn.Status})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	txn, err := h.service.Reverse(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactionId": txn.ID, "status": txn.Status})
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	input := ReturnInput{TransactionID: req.TransactionID}
	for _, item := range req.Items {
		input.Items = append(input.Items, ReturnLineInput(item))
	}
	ret, err := h.service.CreateReturn(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"returnId":     ret.ID,
		"refundAmount": ret.RefundAmount,
		"returnedCost": ret.ReturnedCost,
	})
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := h.service.ListReturns(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returns)
}

func (h *Handler) returnsByTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	returns, err := h.service.ReturnsByTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, returns)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := httpx.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "sales request failed", slog.String("path", r.URL.Path), slog.String("actor", shared.ActorFromContext(r.Context())), slog.Any("error", err))
	} else {
		h.logger.DebugContext(r.Context(), "sales request rejected", slog.String("kind", kind), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
