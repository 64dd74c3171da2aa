package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/marginlens/reconciler/internal/etl"
	"github.com/marginlens/reconciler/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	orderRepo  *repository.OrderRepo
	feeRepo    *repository.FeeItemRepo
	costRepo   *repository.PeriodCostRepo
	attribRepo *repository.AttributionRepo
	etlSvc     *etl.Service
	log        zerolog.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- TriggerSync ---

type syncRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TriggerSync runs a full reconciliation over the requested range (or the
// configured lookback when the body is empty). Runs synchronously: the ETL
// is single-writer and the caller wants the outcome.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.From == "" && req.To == "" {
		if err := h.etlSvc.RunLookback(r.Context()); err != nil {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	from := parseTime(req.From)
	to := parseTime(req.To)
	if from == nil || to == nil || to.Before(*from) {
		h.writeError(w, http.StatusBadRequest, "from and to must be valid dates with from <= to")
		return
	}

	if err := h.etlSvc.RunRange(r.Context(), *from, *to); err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- ListOrders ---

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.OrderFilter{
		Status: q.Get("status"),
		From:   parseTime(q.Get("from")),
		To:     parseTime(q.Get("to")),
		Page:   parseIntDefault(q.Get("page"), 1),
		Limit:  parseIntDefault(q.Get("limit"), 50),
	}

	orders, total, err := h.orderRepo.List(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"total":  total,
		"page":   filter.Page,
		"limit":  filter.Limit,
	})
}

// --- GetOrder ---

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	order, err := h.orderRepo.GetByID(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	items, err := h.feeRepo.ListByOrder(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"order":     order,
		"fee_items": items,
	})
}

// --- ListPeriodCosts ---

func (h *Handlers) ListPeriodCosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := parseTime(q.Get("from"))
	to := parseTime(q.Get("to"))
	if from == nil || to == nil {
		h.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	costs, err := h.costRepo.ListWindow(*from, *to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	totals, err := h.costRepo.TotalsByGroup(*from, *to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"costs":           costs,
		"totals_by_group": totals,
	})
}

// --- ListCampaignSpend ---

func (h *Handlers) ListCampaignSpend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := parseTime(q.Get("from"))
	to := parseTime(q.Get("to"))
	if from == nil || to == nil {
		h.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	daily, err := h.attribRepo.DailyByCampaign(*from, *to)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"campaigns": daily})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	orderCount, err := h.orderRepo.Count()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bySource, err := h.feeRepo.CountBySource()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	unresolved, err := h.feeRepo.ListUnresolved()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"orders":                orderCount,
		"fee_items_by_source":   bySource,
		"unresolved_references": len(unresolved),
	})
}
