package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes under /accounts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/all", h.listAccounts)
	r.Get("/journal-list", h.listJournal)
	r.Get("/{id}/balance", h.balance)
	r.Post("/add-asset", h.addAsset)
	r.Post("/add-expense", h.addExpense)
}

type assetRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Source      string          `json:"source" validate:"max=120"`
	Target      string          `json:"target" validate:"max=120"`
	Description string          `json:"description" validate:"max=500"`
}

type expenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category" validate:"required,max=120"`
	PaidFrom    string          `json:"paidFrom" validate:"max=120"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context(), AccountFilter{Type: AccountType(r.URL.Query().Get("type"))})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) listJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := JournalFilter{Source: q.Get("source")}
	if raw := q.Get("accountId"); raw != "" {
		id, err := httpx.ParseID(raw, "accountId")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.AccountID = id
	}
	if raw := q.Get("reference"); raw != "" {
		ref, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, httpx.ParseErrorf("reference must be a uuid"))
			return
		}
		filter.Reference = ref
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.RespondError(w, httpx.ParseErrorf("limit must be an integer"))
			return
		}
		filter.Limit = limit
	}
	entries, err := h.service.ListJournal(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"), "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	acc, err := h.service.BalanceOf(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": acc.ID, "name": acc.Name, "balance": acc.Balance})
}

func (h *Handler) addAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	posted, err := h.service.AddAsset(r.Context(), AssetInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		h.fail(w, r, err)
		return
	}
	posted, err := h.service.RecordExpense(r.Context(), ExpenseInput(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, posted)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if _, status := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
