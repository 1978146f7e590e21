package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/fraudrules/fraudrules/internal/director"
	"github.com/fraudrules/fraudrules/internal/domain"
)

// Handler holds the dependencies HTTP handlers need: the Director for
// transaction ingress and profile refresh, and the history store for
// health checks.
type Handler struct {
	director *director.Director
	history  domain.HistoryStore
	bus      domain.EventBus
	version  string
}

func NewHandler(director *director.Director, history domain.HistoryStore, bus domain.EventBus, version string) *Handler {
	return &Handler{director: director, history: history, bus: bus, version: version}
}

// ProcessTransaction handles POST /transactions: enqueue and return,
// per §6's `TransactionService.ProcessTransaction` unary contract.
func (h *Handler) ProcessTransaction(w http.ResponseWriter, r *http.Request) {
	var txn domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid transaction payload"})
		return
	}
	if txn.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "transaction_id is required"})
		return
	}

	h.director.ProcessTransaction(r.Context(), &txn)
	w.WriteHeader(http.StatusAccepted)
}

// profileSnapshotRequest is the body of POST /profiles: the whole
// stream collapses into one atomic snapshot, per §4.6.
type profileSnapshotRequest struct {
	Profiles []*domain.Profile `json:"profiles"`
}

// RefreshProfiles handles POST /profiles: wholesale-replace the active
// profile set, mirroring `ProfileService.ProcessProfileStream`'s
// "treat the whole stream as one atomic snapshot" contract over a
// unary HTTP transport.
func (h *Handler) RefreshProfiles(w http.ResponseWriter, r *http.Request) {
	var req profileSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid profile snapshot payload"})
		return
	}

	h.director.RefreshProfiles(req.Profiles)
	writeJSON(w, http.StatusOK, map[string]int{"profile_count": len(req.Profiles)})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if h.history != nil {
		if err := h.history.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]string{"status": status, "version": h.version})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":           true,
		"active_profiles": h.director.ActiveProfileCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
