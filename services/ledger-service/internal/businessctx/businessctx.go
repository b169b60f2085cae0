// Package businessctx carries the tenant and its accounting date through a request.
package businessctx

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMissing is returned when no tenant has been bound to the context.
var ErrMissing = errors.New("business context missing")

type Context struct {
	TenantID string
	// BusinessDate is the tenant's accounting date, as a calendar date at UTC midnight.
	BusinessDate time.Time
}

type ctxKey struct{}

// With binds bc to ctx. The business date is truncated to a calendar date.
func With(ctx context.Context, bc Context) context.Context {
	bc.TenantID = strings.TrimSpace(bc.TenantID)
	bc.BusinessDate = Date(bc.BusinessDate)
	return context.WithValue(ctx, ctxKey{}, bc)
}

func FromContext(ctx context.Context) (Context, bool) {
	bc, ok := ctx.Value(ctxKey{}).(Context)
	return bc, ok
}

// Date drops the time-of-day and location, keeping the calendar date as seen in t's location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Provider resolves tenant and business date synchronously at capture time.
type Provider interface {
	Current(ctx context.Context) (Context, error)
}

// ContextProvider reads the values bound with With.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) (Context, error) {
	bc, ok := FromContext(ctx)
	if !ok || bc.TenantID == "" {
		return Context{}, ErrMissing
	}
	if bc.BusinessDate.IsZero() {
		return Context{}, errors.New("business date not set for tenant " + bc.TenantID)
	}
	return bc, nil
}

// Static always returns the same context. Useful for jobs that run on behalf of one tenant.
// The business date is normalised the same way With does it.
type Static Context

func (s Static) Current(context.Context) (Context, error) {
	bc := Context{TenantID: strings.TrimSpace(s.TenantID), BusinessDate: Date(s.BusinessDate)}
	if bc.TenantID == "" {
		return Context{}, ErrMissing
	}
	return bc, nil
}
