package budget

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/farmabudget/internal/ledger"
)

type Handler struct {
	svc *ledger.Service
}

func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.get)
	r.Get("/reloads", h.listReloads)
	r.Post("/reloads", h.reload)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.FetchBudget(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBudgetResponse(view))
}

type reloadRequest struct {
	Amount json.Number `json:"amount"`
	Notes  string      `json:"notes,omitempty"`
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	var req reloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount.String()))
	if err != nil || !amount.IsPositive() {
		http.Error(w, "amount must be a positive number", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ReloadBudget(r.Context(), ledger.ReloadParams{Amount: amount, Notes: req.Notes})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reloadResultResponse{
		PreviousTotal: res.PreviousTotal,
		NewTotal:      res.NewTotal,
		Reload:        toReloadResponse(res.Reload),
	})
}

func (h *Handler) listReloads(w http.ResponseWriter, r *http.Request) {
	var limit int

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		limit = n
	}

	reloads, err := h.svc.ListReloads(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]reloadResponse, len(reloads))
	for i, rl := range reloads {
		resp[i] = toReloadResponse(rl)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Stats returns the aggregate summary. With verify=1 it also rescans the
// payments and reports whether the stored summary still matches.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.EnsureStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := statsResponse{
		TotalSpent:     stats.TotalSpent,
		PendingCount:   stats.PendingCount,
		ProcessedCount: stats.ProcessedCount,
		UpdatedAt:      stats.UpdatedAt,
	}

	if r.URL.Query().Get("verify") == "1" {
		scan, err := h.svc.Rescan(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		resp.Consistent = new(scan.TotalSpent.Equal(stats.TotalSpent) &&
			scan.PendingCount == stats.PendingCount &&
			scan.ProcessedCount == stats.ProcessedCount)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrConflict) {
		http.Error(w, "concurrent update, try again", http.StatusConflict)
		return
	}

	slog.Error("budget request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
