// Package handlers serves the admin API for per-tenant event capture settings.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ledgerforge/ledgerforge/libs/httpx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
)

type Handler struct {
	store  eventconfig.Store
	logger *slog.Logger
}

func New(store eventconfig.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger}
}

type configurationBody struct {
	ExternalEventConfigurations map[string]bool `json:"externalEventConfigurations"`
}

// Register mounts the admin routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/externalevents/configuration", h.Configuration)
}

func (h *Handler) Configuration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPut:
		h.update(w, r)
	default:
		w.Header().Set("Allow", "GET, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	bc, ok := businessctx.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	cfg, err := h.store.List(r.Context(), bc.TenantID)
	if err != nil {
		h.logger.Error("list event configuration failed", "tenant_id", bc.TenantID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, configurationBody{ExternalEventConfigurations: cfg})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	bc, ok := businessctx.FromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	var body configurationBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if len(body.ExternalEventConfigurations) == 0 {
		http.Error(w, "externalEventConfigurations is required", http.StatusBadRequest)
		return
	}

	err := h.store.Set(r.Context(), bc.TenantID, body.ExternalEventConfigurations)
	var unknown *eventconfig.UnknownTypeError
	switch {
	case errors.As(err, &unknown):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("update event configuration failed", "tenant_id", bc.TenantID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	h.logger.Info("event configuration updated", "tenant_id", bc.TenantID, "changes", len(body.ExternalEventConfigurations))
	w.WriteHeader(http.StatusNoContent)
}
