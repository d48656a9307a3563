package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/finance/internal/entity"
	"github.com/ledgerline/finance/pkg/broker"
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=service.go -destination=../mocks/service.go -package=mocks

type Repository interface {
	CreateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error)
	Invoice(ctx context.Context, id uuid.UUID) (entity.Invoice, error)
	Invoices(ctx context.Context, filter entity.InvoiceFilter) ([]entity.Invoice, int, error)
	UpdateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID, deletedAt time.Time) error
	ApplyPayment(ctx context.Context, inc entity.Income) (entity.Income, entity.Invoice, error)
	ReversePayment(ctx context.Context, incomeID uuid.UUID, deletedAt time.Time) (entity.Income, error)
	Income(ctx context.Context, id uuid.UUID) (entity.Income, error)
	Incomes(ctx context.Context, filter entity.IncomeFilter) ([]entity.Income, int, error)
	LedgerDrift(ctx context.Context) ([]entity.LedgerDrift, error)
}

type Producer interface {
	PaymentRecorded(ctx context.Context, event broker.PaymentEvent)
	PaymentReversed(ctx context.Context, event broker.PaymentEvent)
}

type Service struct {
	repo     Repository
	producer Producer
}

func New(repo Repository, producer Producer) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
	}
}

// ApplyPayment records a payment of amount against the invoice. The
// remaining-balance check and the invoice update happen inside one
// repository transaction; the event is published only after commit.
func (s *Service) ApplyPayment(
	ctx context.Context,
	invoiceID uuid.UUID,
	amount decimal.Decimal,
	method entity.PaymentMethod,
	receivedDate time.Time,
	reference string,
	clientID uuid.UUID,
) (entity.Income, error) {
	if !amount.IsPositive() {
		return entity.Income{}, fmt.Errorf("%w: payment amount %s must be greater than 0", entity.ErrInvalidArgument, amount)
	}

	err := method.Validate()
	if err != nil {
		return entity.Income{}, err
	}

	if receivedDate.IsZero() {
		return entity.Income{}, fmt.Errorf("%w: received date is required", entity.ErrInvalidArgument)
	}

	now := time.Now()

	inc := entity.Income{
		ID:            uuid.Must(uuid.NewV4()),
		InvoiceID:     invoiceID,
		ClientID:      clientID,
		Amount:        amount,
		PaymentMethod: method,
		ReceivedDate:  receivedDate,
		Reference:     reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	inc, inv, err := s.repo.ApplyPayment(ctx, inc)
	if err != nil {
		return entity.Income{}, fmt.Errorf("apply payment to invoice %s: %w", invoiceID, err)
	}

	s.producer.PaymentRecorded(ctx, broker.PaymentEvent{
		IncomeID:      inc.ID,
		InvoiceID:     inv.ID,
		ClientID:      inc.ClientID,
		Amount:        inc.Amount,
		PaymentMethod: inc.PaymentMethod.String(),
		OccurredAt:    now,
	})

	slog.InfoContext(ctx, "payment recorded",
		"invoice", inv.Number, "amount", inc.Amount.String(), "status", inv.Status.String())

	return inc, nil
}

// ReversePayment soft-deletes the income record and rolls the invoice's paid
// amount and status back.
func (s *Service) ReversePayment(ctx context.Context, incomeID uuid.UUID) (entity.Income, error) {
	now := time.Now()

	inc, err := s.repo.ReversePayment(ctx, incomeID, now)
	if err != nil {
		return entity.Income{}, fmt.Errorf("reverse payment %s: %w", incomeID, err)
	}

	s.producer.PaymentReversed(ctx, broker.PaymentEvent{
		IncomeID:      inc.ID,
		InvoiceID:     inc.InvoiceID,
		ClientID:      inc.ClientID,
		Amount:        inc.Amount,
		PaymentMethod: inc.PaymentMethod.String(),
		OccurredAt:    now,
	})

	slog.InfoContext(ctx, "payment reversed",
		"income", inc.ID, "invoice", inc.InvoiceID, "amount", inc.Amount.String())

	return inc, nil
}

func (s *Service) CreateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error) {
	if inv.ClientID.IsNil() {
		return entity.Invoice{}, fmt.Errorf("%w: client is required", entity.ErrInvalidArgument)
	}

	if inv.InvoiceDate.IsZero() || inv.DueDate.IsZero() {
		return entity.Invoice{}, fmt.Errorf("%w: invoice date and due date are required", entity.ErrInvalidArgument)
	}

	err := inv.Recalculate()
	if err != nil {
		return entity.Invoice{}, err
	}

	now := time.Now()

	inv.ID = uuid.Must(uuid.NewV4())
	inv.Number = "" // Fill in by CreateInvoice method.
	inv.PaidAmount = decimal.Zero
	inv.Status = entity.InvoiceStatusUnpaid
	inv.CreatedAt = now
	inv.UpdatedAt = now

	inv, err = s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("create invoice: %w", err)
	}

	slog.InfoContext(ctx, "invoice created",
		"invoice", inv.Number, "client", inv.ClientID, "total", inv.Total.String())

	return inv, nil
}

func (s *Service) Invoice(ctx context.Context, id uuid.UUID) (entity.Invoice, error) {
	inv, err := s.repo.Invoice(ctx, id)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("get invoice %s: %w", id, err)
	}

	return inv, nil
}

func (s *Service) Invoices(ctx context.Context, filter entity.InvoiceFilter) ([]entity.Invoice, int, error) {
	invoices, count, err := s.repo.Invoices(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("get invoices: %w", err)
	}

	return invoices, count, nil
}

// UpdateInvoice rewrites the invoice details while the invoice is still
// unpaid. Totals are recomputed from the submitted items; paid_amount and
// status are owned by the reconciliation operations and never updated here.
func (s *Service) UpdateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error) {
	if inv.InvoiceDate.IsZero() || inv.DueDate.IsZero() {
		return entity.Invoice{}, fmt.Errorf("%w: invoice date and due date are required", entity.ErrInvalidArgument)
	}

	err := inv.Recalculate()
	if err != nil {
		return entity.Invoice{}, err
	}

	inv.UpdatedAt = time.Now()

	inv, err = s.repo.UpdateInvoice(ctx, inv)
	if err != nil {
		return entity.Invoice{}, fmt.Errorf("update invoice %s: %w", inv.ID, err)
	}

	return inv, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	err := s.repo.DeleteInvoice(ctx, id, time.Now())
	if err != nil {
		return fmt.Errorf("delete invoice %s: %w", id, err)
	}

	slog.InfoContext(ctx, "invoice deleted", "invoice", id)

	return nil
}

func (s *Service) Income(ctx context.Context, id uuid.UUID) (entity.Income, error) {
	inc, err := s.repo.Income(ctx, id)
	if err != nil {
		return entity.Income{}, fmt.Errorf("get income %s: %w", id, err)
	}

	return inc, nil
}

func (s *Service) Incomes(ctx context.Context, filter entity.IncomeFilter) ([]entity.Income, int, error) {
	incomes, count, err := s.repo.Incomes(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("get incomes: %w", err)
	}

	return incomes, count, nil
}

// AuditLedger checks that every invoice's paid_amount equals the sum of its
// non-deleted income records and logs any invoice that has drifted.
func (s *Service) AuditLedger(ctx context.Context) error {
	drifts, err := s.repo.LedgerDrift(ctx)
	if err != nil {
		return fmt.Errorf("check ledger drift: %w", err)
	}

	for _, d := range drifts {
		slog.WarnContext(ctx, "ledger drift detected",
			"invoice", d.Number,
			"paid_amount", d.PaidAmount.String(),
			"income_sum", d.IncomeSum.String(),
		)
	}

	return nil
}
