package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert referral: %w", &pq.Error{Code: "23505", Constraint: "referrals_referred_user_id_key"})

	constraint, ok := UniqueViolation(err)
	if !ok {
		t.Fatal("expected unique violation")
	}
	if constraint != "referrals_referred_user_id_key" {
		t.Fatalf("unexpected constraint %q", constraint)
	}

	if _, ok := UniqueViolation(&pq.Error{Code: "23503"}); ok {
		t.Fatal("foreign key violation must not be reported as unique")
	}
	if _, ok := UniqueViolation(errors.New("boom")); ok {
		t.Fatal("plain error must not be reported as unique")
	}
}
