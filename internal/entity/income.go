package entity

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodMobile PaymentMethod = "mobile"
)

func (p PaymentMethod) Validate() error {
	switch p {
	case PaymentMethodCash, PaymentMethodBank, PaymentMethodMobile:
		return nil
	default:
		return fmt.Errorf("%w: unknown payment method %s", ErrInvalidArgument, p)
	}
}

func (p PaymentMethod) String() string {
	return string(p)
}

// Income is one payment applied against exactly one invoice. Income records
// are append-only: after creation they are never mutated except for the
// soft-delete marker set by a reversal.
type Income struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	ClientID      uuid.UUID // Owning client of the invoice; derived when the caller omits it.
	Amount        decimal.Decimal
	PaymentMethod PaymentMethod
	ReceivedDate  time.Time
	Reference     string
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type IncomeFilter struct {
	InvoiceID    *uuid.UUID
	ClientID     *uuid.UUID
	ReceivedFrom *time.Time
	ReceivedTo   *time.Time
	Page         uint64
	Limit        uint64
}
