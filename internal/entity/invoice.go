package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusUnpaid, InvoiceStatusPartial, InvoiceStatusPaid:
		return true
	}

	return false
}

// StatusForAmounts derives the invoice status from its paid amount and total.
// The status is never set directly: unpaid iff nothing is paid, paid iff the
// total is covered, partial otherwise.
func StatusForAmounts(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case !paid.IsPositive():
		return InvoiceStatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	default:
		return InvoiceStatusPartial
	}
}

type InvoiceItem struct {
	Description string
	Qty         int64
	Rate        decimal.Decimal
	Amount      decimal.Decimal // Qty * Rate, computed by Recalculate.
}

func (it InvoiceItem) Validate() error {
	if strings.TrimSpace(it.Description) == "" {
		return fmt.Errorf("%w: item description is required", ErrInvalidArgument)
	}

	if it.Qty < 1 {
		return fmt.Errorf("%w: item %q qty %d must be at least 1", ErrInvalidArgument, it.Description, it.Qty)
	}

	if it.Rate.IsNegative() {
		return fmt.Errorf("%w: item %q rate %s cannot be negative", ErrInvalidArgument, it.Description, it.Rate)
	}

	return nil
}

type Invoice struct {
	ID          uuid.UUID
	Number      string // Human-readable unique invoice number, e.g. INV-00042.
	ClientID    uuid.UUID
	InvoiceDate time.Time
	DueDate     time.Time
	Items       []InvoiceItem
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	PaidAmount  decimal.Decimal
	Status      InvoiceStatus
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Remaining returns the balance still owed on the invoice.
func (i Invoice) Remaining() decimal.Decimal {
	return i.Total.Sub(i.PaidAmount)
}

// Recalculate validates the line items and adjustments and recomputes the
// item amounts, subtotal and total. Caller-supplied amounts are ignored.
func (i *Invoice) Recalculate() error {
	if len(i.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidArgument)
	}

	subtotal := decimal.Zero

	for idx := range i.Items {
		err := i.Items[idx].Validate()
		if err != nil {
			return err
		}

		i.Items[idx].Amount = i.Items[idx].Rate.Mul(decimal.NewFromInt(i.Items[idx].Qty))
		subtotal = subtotal.Add(i.Items[idx].Amount)
	}

	if i.Tax.IsNegative() {
		return fmt.Errorf("%w: tax %s cannot be negative", ErrInvalidArgument, i.Tax)
	}

	if i.Discount.IsNegative() {
		return fmt.Errorf("%w: discount %s cannot be negative", ErrInvalidArgument, i.Discount)
	}

	i.Subtotal = subtotal
	i.Total = subtotal.Add(i.Tax).Sub(i.Discount)

	if i.Total.IsNegative() {
		return fmt.Errorf("%w: discount %s exceeds subtotal plus tax", ErrInvalidArgument, i.Discount)
	}

	return nil
}

// ApplyPayment records a payment of amount against the invoice, keeping
// 0 <= paid_amount <= total and rederiving the status. The caller must hold
// the invoice exclusively (row lock) so the remaining-balance check and the
// write cannot interleave with a concurrent payment.
func (i *Invoice) ApplyPayment(amount decimal.Decimal, at time.Time) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: payment amount %s must be greater than 0", ErrInvalidArgument, amount)
	}

	remaining := i.Remaining()
	if !remaining.IsPositive() {
		return fmt.Errorf("invoice %s: %w", i.Number, ErrAlreadyPaid)
	}

	if amount.GreaterThan(remaining) {
		return fmt.Errorf("%w: payment amount %s exceeds remaining balance %s", ErrInvalidArgument, amount, remaining)
	}

	i.PaidAmount = i.PaidAmount.Add(amount)
	i.Status = StatusForAmounts(i.PaidAmount, i.Total)
	i.UpdatedAt = at

	return nil
}

// ReversePayment rolls a previously recorded payment back out of the invoice.
// The paid amount is clamped at zero so an out-of-order reversal can never
// drive it negative.
func (i *Invoice) ReversePayment(amount decimal.Decimal, at time.Time) {
	paid := i.PaidAmount.Sub(amount)
	if paid.IsNegative() {
		paid = decimal.Zero
	}

	i.PaidAmount = paid
	i.Status = StatusForAmounts(i.PaidAmount, i.Total)
	i.UpdatedAt = at
}

const invoiceNumberPrefix = "INV-"

// NextInvoiceNumber returns the invoice number following last,
// INV-00001 when last is empty.
func NextInvoiceNumber(last string) (string, error) {
	if last == "" {
		return invoiceNumberPrefix + "00001", nil
	}

	n, err := strconv.ParseInt(strings.TrimPrefix(last, invoiceNumberPrefix), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse invoice number %q: %w", last, err)
	}

	return fmt.Sprintf("%s%05d", invoiceNumberPrefix, n+1), nil
}

type InvoiceSortCol string

func (c InvoiceSortCol) String() string {
	return string(c)
}

const (
	InvoiceSortByNumber    InvoiceSortCol = "invoice_number"
	InvoiceSortByTotal     InvoiceSortCol = "total"
	InvoiceSortByCreatedAt InvoiceSortCol = "created_at"
)

func (c InvoiceSortCol) IsValid() bool {
	switch c {
	case InvoiceSortByNumber, InvoiceSortByTotal, InvoiceSortByCreatedAt:
		return true
	}

	return false
}

type OrderByCol string

func (o OrderByCol) String() string {
	return string(o)
}

const (
	DESC OrderByCol = "desc"
	ASC  OrderByCol = "asc"
)

func (o OrderByCol) IsValid() bool {
	switch o {
	case DESC, ASC:
		return true
	}

	return false
}

type InvoiceFilter struct {
	ClientID *uuid.UUID
	Status   *InvoiceStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Page     uint64
	Limit    uint64
	SortBy   InvoiceSortCol
	OrderBy  OrderByCol
}

// LedgerDrift reports an invoice whose paid amount disagrees with the sum of
// its non-deleted income records.
type LedgerDrift struct {
	InvoiceID  uuid.UUID
	Number     string
	PaidAmount decimal.Decimal
	IncomeSum  decimal.Decimal
}
