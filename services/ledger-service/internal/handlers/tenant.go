package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ledgerforge/ledgerforge/libs/httpx"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessctx"
)

const (
	HeaderTenantID     = "Fineract-Platform-TenantId"
	HeaderBusinessDate = "Business-Date"
)

// WithTenant binds the tenant and business date of the request. The tenant header is
// required; the business date defaults to today in UTC.
func WithTenant(now func() time.Time) httpx.Middleware {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
			if tenant == "" {
				http.Error(w, "missing "+HeaderTenantID+" header", http.StatusBadRequest)
				return
			}
			date := now().UTC()
			if raw := strings.TrimSpace(r.Header.Get(HeaderBusinessDate)); raw != "" {
				d, err := time.Parse("2006-01-02", raw)
				if err != nil {
					http.Error(w, "invalid "+HeaderBusinessDate+" header", http.StatusBadRequest)
					return
				}
				date = d
			}
			ctx := businessctx.With(r.Context(), businessctx.Context{TenantID: tenant, BusinessDate: date})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
