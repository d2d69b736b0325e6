package payment

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/farmabudget/internal/catalog"
	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/toggle-status", h.toggleStatus)
}

// createPaymentRequest accepts numbers either as JSON numbers or numeric strings.
type createPaymentRequest struct {
	Pharmacy    string      `json:"pharmacy"`
	Product     string      `json:"product"`
	Quantity    json.Number `json:"quantity"`
	UnitPrice   json.Number `json:"unit_price"`
	TotalAmount json.Number `json:"total_amount,omitempty"`
	Date        string      `json:"date"`
	Status      string      `json:"status,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params, err := ledger.PaymentInput{
		Pharmacy:    req.Pharmacy,
		Product:     req.Product,
		Quantity:    req.Quantity.String(),
		UnitPrice:   req.UnitPrice.String(),
		TotalAmount: req.TotalAmount.String(),
		Date:        req.Date,
		Status:      req.Status,
		Notes:       req.Notes,
	}.Params()
	if err != nil {
		writeError(w, err)
		return
	}

	p, err := h.svc.Create(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := ledger.FetchParams{
		Cursor: q.Get("cursor"),
		Filter: ledger.Filter{
			Product:  catalog.Product(q.Get("product")),
			Status:   ledger.Status(q.Get("status")),
			Month:    q.Get("month"),
			Pharmacy: q.Get("pharmacy"),
		},
	}

	if s := q.Get("page_size"); s != "" {
		size, err := strconv.Atoi(s)
		if err != nil || size < 1 || size > ledger.MaxPageSize {
			http.Error(w, "page_size must be between 1 and 100", http.StatusBadRequest)
			return
		}

		params.PageSize = size
	}

	page, err := h.svc.Fetch(r.Context(), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPageResponse(page))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(p))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	status, err := h.svc.ToggleStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{ID: id, Status: status})
}

// Products lists the catalog.
func (h *Handler) Products(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toProductList(catalog.All()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var (
		ibe *ledger.InsufficientBudgetError
		ve  *ledger.ValidationError
	)

	switch {
	case errors.As(err, &ibe):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     "insufficient budget",
			Available: ibe.Available.String(),
			Requested: ibe.Requested.String(),
		})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "payment not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrConflict):
		http.Error(w, "concurrent update, try again", http.StatusConflict)
	default:
		slog.Error("payment request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
