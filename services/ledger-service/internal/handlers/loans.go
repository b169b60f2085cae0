package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ledgerforge/ledgerforge/libs/httpx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/ledger"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/uow"
)

type LoanHandler struct {
	loans  *ledger.Loans
	logger *slog.Logger
}

func NewLoanHandler(loans *ledger.Loans, logger *slog.Logger) *LoanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoanHandler{loans: loans, logger: logger}
}

func (h *LoanHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/loans/{loanId}", h.Command)
}

type commandResult struct {
	ResourceID int64          `json:"resourceId"`
	Changes    map[string]any `json:"changes"`
}

// Command runs ?command=approve against a loan.
func (h *LoanHandler) Command(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(r.PathValue("loanId"), 10, 64)
	if err != nil || loanID <= 0 {
		http.Error(w, "invalid loan id", http.StatusBadRequest)
		return
	}
	if cmd := r.URL.Query().Get("command"); cmd != "approve" {
		http.Error(w, "unsupported command", http.StatusBadRequest)
		return
	}

	loan, err := h.loans.Approve(r.Context(), loanID)
	switch {
	case errors.Is(err, ledger.ErrLoanNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ledger.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil && uow.IsCallerDefect(err):
		h.logger.Error("loan approval event capture failed", "loan_id", loanID, "err", err)
		http.Error(w, "event capture failed", http.StatusInternalServerError)
		return
	case err != nil:
		h.logger.Error("loan approval failed", "loan_id", loanID, "err", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, commandResult{
		ResourceID: loan.ID,
		Changes:    map[string]any{"status": loan.Status},
	})
}
