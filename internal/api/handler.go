package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/finance/internal/entity"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type Service interface {
	ApplyPayment(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, method entity.PaymentMethod,
		receivedDate time.Time, reference string, clientID uuid.UUID) (entity.Income, error)
	ReversePayment(ctx context.Context, incomeID uuid.UUID) (entity.Income, error)
	CreateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error)
	Invoice(ctx context.Context, id uuid.UUID) (entity.Invoice, error)
	Invoices(ctx context.Context, filter entity.InvoiceFilter) ([]entity.Invoice, int, error)
	UpdateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
	Incomes(ctx context.Context, filter entity.IncomeFilter) ([]entity.Income, int, error)
}

type Handler struct {
	s Service
}

func NewHandler(s Service) *Handler {
	return &Handler{
		s: s,
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	SendJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

type InvoiceItemRequest struct {
	Description string          `json:"description"`
	Qty         int64           `json:"qty"`
	Rate        decimal.Decimal `json:"rate"`
}

type CreateInvoiceRequest struct {
	ClientID    uuid.UUID            `json:"clientId"`
	InvoiceDate time.Time            `json:"invoiceDate"`
	DueDate     time.Time            `json:"dueDate"`
	Items       []InvoiceItemRequest `json:"items"`
	Tax         decimal.Decimal      `json:"tax"`
	Discount    decimal.Decimal      `json:"discount"`
}

type InvoiceItemResponse struct {
	Description string `json:"description"`
	Qty         int64  `json:"qty"`
	Rate        string `json:"rate"`
	Amount      string `json:"amount"`
}

type InvoiceResponse struct {
	ID            uuid.UUID             `json:"id"`
	InvoiceNumber string                `json:"invoiceNumber"`
	ClientID      uuid.UUID             `json:"clientId"`
	InvoiceDate   time.Time             `json:"invoiceDate"`
	DueDate       time.Time             `json:"dueDate"`
	Items         []InvoiceItemResponse `json:"items,omitempty"`
	Subtotal      string                `json:"subtotal"`
	Tax           string                `json:"tax"`
	Discount      string                `json:"discount"`
	Total         string                `json:"total"`
	PaidAmount    string                `json:"paidAmount"`
	Remaining     string                `json:"remaining"`
	Status        string                `json:"status"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
}

func toInvoiceResponse(inv entity.Invoice) InvoiceResponse {
	items := make([]InvoiceItemResponse, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, InvoiceItemResponse{
			Description: item.Description,
			Qty:         item.Qty,
			Rate:        item.Rate.String(),
			Amount:      item.Amount.String(),
		})
	}

	return InvoiceResponse{
		ID:            inv.ID,
		InvoiceNumber: inv.Number,
		ClientID:      inv.ClientID,
		InvoiceDate:   inv.InvoiceDate,
		DueDate:       inv.DueDate,
		Items:         items,
		Subtotal:      inv.Subtotal.String(),
		Tax:           inv.Tax.String(),
		Discount:      inv.Discount.String(),
		Total:         inv.Total.String(),
		PaidAmount:    inv.PaidAmount.String(),
		Remaining:     inv.Remaining().String(),
		Status:        inv.Status.String(),
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

// CreateInvoice creates an unpaid invoice with a generated invoice number.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateInvoiceRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid JSON")
		return
	}

	items := make([]entity.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, entity.InvoiceItem{
			Description: item.Description,
			Qty:         item.Qty,
			Rate:        item.Rate,
		})
	}

	inv, err := h.s.CreateInvoice(ctx, entity.Invoice{
		ClientID:    req.ClientID,
		InvoiceDate: req.InvoiceDate,
		DueDate:     req.DueDate,
		Items:       items,
		Tax:         req.Tax,
		Discount:    req.Discount,
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrInvalidArgument):
			SendJSONErr(ctx, w, http.StatusUnprocessableEntity, err, "Invalid invoice data")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to create invoice")
		}

		return
	}

	SendJSON(ctx, w, http.StatusCreated, toInvoiceResponse(inv))
}

type InvoicesResponse struct {
	Data  []InvoiceResponse `json:"data"`
	Total int               `json:"total"`
}

// Invoices lists non-deleted invoices with optional filters.
func (h *Handler) Invoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := invoiceFilterFromQuery(r)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid filter")
		return
	}

	invoices, total, err := h.s.Invoices(ctx, filter)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to list invoices")
		return
	}

	resp := InvoicesResponse{
		Data:  make([]InvoiceResponse, 0, len(invoices)),
		Total: total,
	}

	for _, inv := range invoices {
		resp.Data = append(resp.Data, toInvoiceResponse(inv))
	}

	SendJSON(ctx, w, http.StatusOK, resp)
}

// Invoice returns one non-deleted invoice with its line items.
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid invoice id")
		return
	}

	inv, err := h.s.Invoice(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			SendJSONErr(ctx, w, http.StatusNotFound, err, "Invoice not found")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to get invoice")
		}

		return
	}

	SendJSON(ctx, w, http.StatusOK, toInvoiceResponse(inv))
}

type UpdateInvoiceRequest struct {
	InvoiceDate time.Time            `json:"invoiceDate"`
	DueDate     time.Time            `json:"dueDate"`
	Items       []InvoiceItemRequest `json:"items"`
	Tax         decimal.Decimal      `json:"tax"`
	Discount    decimal.Decimal      `json:"discount"`
}

// UpdateInvoice rewrites invoice details while the invoice is still unpaid.
// Paid amount and status are not accepted here under any circumstances.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid invoice id")
		return
	}

	var req UpdateInvoiceRequest

	err = json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid JSON")
		return
	}

	items := make([]entity.InvoiceItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, entity.InvoiceItem{
			Description: item.Description,
			Qty:         item.Qty,
			Rate:        item.Rate,
		})
	}

	inv, err := h.s.UpdateInvoice(ctx, entity.Invoice{
		ID:          id,
		InvoiceDate: req.InvoiceDate,
		DueDate:     req.DueDate,
		Items:       items,
		Tax:         req.Tax,
		Discount:    req.Discount,
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			SendJSONErr(ctx, w, http.StatusNotFound, err, "Invoice not found")
		case errors.Is(err, entity.ErrInvalidArgument):
			SendJSONErr(ctx, w, http.StatusUnprocessableEntity, err, "Invalid invoice data")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to update invoice")
		}

		return
	}

	SendJSON(ctx, w, http.StatusOK, toInvoiceResponse(inv))
}

type DeleteResponse struct {
	Message string `json:"message"`
}

// DeleteInvoice soft-deletes the invoice.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid invoice id")
		return
	}

	err = h.s.DeleteInvoice(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			SendJSONErr(ctx, w, http.StatusNotFound, err, "Invoice not found")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to delete invoice")
		}

		return
	}

	SendJSON(ctx, w, http.StatusOK, DeleteResponse{Message: "Invoice deleted"})
}

type ApplyPaymentRequest struct {
	InvoiceID     uuid.UUID       `json:"invoiceId"`
	ClientID      uuid.UUID       `json:"clientId,omitempty"` // Derived from the invoice when omitted.
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod"`
	ReceivedDate  time.Time       `json:"receivedDate"`
	Reference     string          `json:"reference,omitempty"`
}

type IncomeResponse struct {
	ID            uuid.UUID `json:"id"`
	InvoiceID     uuid.UUID `json:"invoiceId"`
	ClientID      uuid.UUID `json:"clientId"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	ReceivedDate  time.Time `json:"receivedDate"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toIncomeResponse(inc entity.Income) IncomeResponse {
	return IncomeResponse{
		ID:            inc.ID,
		InvoiceID:     inc.InvoiceID,
		ClientID:      inc.ClientID,
		Amount:        inc.Amount.String(),
		PaymentMethod: inc.PaymentMethod.String(),
		ReceivedDate:  inc.ReceivedDate,
		Reference:     inc.Reference,
		CreatedAt:     inc.CreatedAt,
	}
}

// ApplyPayment records a payment against an invoice. The whole operation is
// atomic: either the income record exists and the invoice reflects it, or
// neither change is visible.
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ApplyPaymentRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid JSON")
		return
	}

	inc, err := h.s.ApplyPayment(
		ctx,
		req.InvoiceID,
		req.Amount,
		entity.PaymentMethod(req.PaymentMethod),
		req.ReceivedDate,
		req.Reference,
		req.ClientID,
	)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			SendJSONErr(ctx, w, http.StatusNotFound, err, "Invoice not found")
		case errors.Is(err, entity.ErrInvalidArgument), errors.Is(err, entity.ErrAlreadyPaid):
			SendJSONErr(ctx, w, http.StatusUnprocessableEntity, err, "Invalid payment")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to record payment")
		}

		return
	}

	SendJSON(ctx, w, http.StatusCreated, toIncomeResponse(inc))
}

// ReversePayment soft-deletes an income record and rolls the invoice back.
func (h *Handler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid income id")
		return
	}

	_, err = h.s.ReversePayment(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrNotFound):
			SendJSONErr(ctx, w, http.StatusNotFound, err, "Income record not found")
		default:
			SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to reverse payment")
		}

		return
	}

	SendJSON(ctx, w, http.StatusOK, DeleteResponse{Message: "Income record deleted and invoice updated"})
}

type IncomesResponse struct {
	Data  []IncomeResponse `json:"data"`
	Total int              `json:"total"`
}

// Incomes lists non-deleted income records with optional filters.
func (h *Handler) Incomes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := incomeFilterFromQuery(r)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusBadRequest, err, "Invalid filter")
		return
	}

	incomes, total, err := h.s.Incomes(ctx, filter)
	if err != nil {
		SendJSONErr(ctx, w, http.StatusInternalServerError, err, "Failed to list income records")
		return
	}

	resp := IncomesResponse{
		Data:  make([]IncomeResponse, 0, len(incomes)),
		Total: total,
	}

	for _, inc := range incomes {
		resp.Data = append(resp.Data, toIncomeResponse(inc))
	}

	SendJSON(ctx, w, http.StatusOK, resp)
}

func invoiceFilterFromQuery(r *http.Request) (entity.InvoiceFilter, error) {
	q := r.URL.Query()

	f := entity.InvoiceFilter{
		Page:    1,
		Limit:   defaultPageLimit,
		SortBy:  entity.InvoiceSortByCreatedAt,
		OrderBy: entity.DESC,
	}

	var err error

	f.Page, f.Limit, err = pagination(q.Get("page"), q.Get("limit"))
	if err != nil {
		return entity.InvoiceFilter{}, err
	}

	if v := q.Get("client_id"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid client_id %q", entity.ErrInvalidArgument, v)
		}

		f.ClientID = &id
	}

	if v := q.Get("status"); v != "" {
		status := entity.InvoiceStatus(v)
		if !status.IsValid() {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid status %q", entity.ErrInvalidArgument, v)
		}

		f.Status = &status
	}

	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid date_from %q", entity.ErrInvalidArgument, v)
		}

		f.DateFrom = &t
	}

	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid date_to %q", entity.ErrInvalidArgument, v)
		}

		f.DateTo = &t
	}

	if v := q.Get("sort_by"); v != "" {
		col := entity.InvoiceSortCol(v)
		if !col.IsValid() {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid sort_by %q", entity.ErrInvalidArgument, v)
		}

		f.SortBy = col
	}

	if v := q.Get("order_by"); v != "" {
		order := entity.OrderByCol(v)
		if !order.IsValid() {
			return entity.InvoiceFilter{}, fmt.Errorf("%w: invalid order_by %q", entity.ErrInvalidArgument, v)
		}

		f.OrderBy = order
	}

	return f, nil
}

func incomeFilterFromQuery(r *http.Request) (entity.IncomeFilter, error) {
	q := r.URL.Query()

	f := entity.IncomeFilter{
		Page:  1,
		Limit: defaultPageLimit,
	}

	var err error

	f.Page, f.Limit, err = pagination(q.Get("page"), q.Get("limit"))
	if err != nil {
		return entity.IncomeFilter{}, err
	}

	if v := q.Get("invoice_id"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			return entity.IncomeFilter{}, fmt.Errorf("%w: invalid invoice_id %q", entity.ErrInvalidArgument, v)
		}

		f.InvoiceID = &id
	}

	if v := q.Get("client_id"); v != "" {
		id, err := uuid.FromString(v)
		if err != nil {
			return entity.IncomeFilter{}, fmt.Errorf("%w: invalid client_id %q", entity.ErrInvalidArgument, v)
		}

		f.ClientID = &id
	}

	if v := q.Get("received_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entity.IncomeFilter{}, fmt.Errorf("%w: invalid received_from %q", entity.ErrInvalidArgument, v)
		}

		f.ReceivedFrom = &t
	}

	if v := q.Get("received_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entity.IncomeFilter{}, fmt.Errorf("%w: invalid received_to %q", entity.ErrInvalidArgument, v)
		}

		f.ReceivedTo = &t
	}

	return f, nil
}

func pagination(pageStr, limitStr string) (page, limit uint64, err error) {
	page, limit = 1, defaultPageLimit

	if pageStr != "" {
		page, err = strconv.ParseUint(pageStr, 10, 64)
		if err != nil || page == 0 {
			return 0, 0, fmt.Errorf("%w: invalid page %q", entity.ErrInvalidArgument, pageStr)
		}
	}

	if limitStr != "" {
		limit, err = strconv.ParseUint(limitStr, 10, 64)
		if err != nil || limit == 0 || limit > maxPageLimit {
			return 0, 0, fmt.Errorf("%w: invalid limit %q", entity.ErrInvalidArgument, limitStr)
		}
	}

	return page, limit, nil
}
