package service

import (
	"context"
	"strings"
)

// mockPaymentPrefix marks identifiers the mock gateway accepts. A real
// gateway variant would verify a signature instead; the reservation
// manager only ever consumes the boolean result, so swapping the
// implementation does not touch the release flow.
const mockPaymentPrefix = "MOCK_"

// MockPayments confirms payments by identifier shape alone. It stands
// in for an external payment gateway during development and tests.
type MockPayments struct{}

func NewMockPayments() *MockPayments { return &MockPayments{} }

// Confirm reports whether the payment identified by paymentID is
// accepted for the given amount. The mock accepts any identifier
// carrying the MOCK_ prefix and rejects everything else.
func (p *MockPayments) Confirm(ctx context.Context, paymentID string, amount float64, reservationID uint64) (bool, error) {
	return strings.HasPrefix(paymentID, mockPaymentPrefix), nil
}
