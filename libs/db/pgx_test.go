package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "uk_external_event_tenant_idempotency_key"})

	if !IsUniqueViolation(err, "") {
		t.Fatal("expected wrapped unique violation to match")
	}
	if !IsUniqueViolation(err, "uk_external_event_tenant_idempotency_key") {
		t.Fatal("expected named constraint to match")
	}
	if IsUniqueViolation(err, "pk_external_event") {
		t.Fatal("other constraint must not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation must not match")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("plain error must not match")
	}
}
