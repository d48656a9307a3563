package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ledgerline/finance/internal/api"
	"github.com/ledgerline/finance/internal/entity"
	"github.com/ledgerline/finance/internal/mocks"
	"github.com/ledgerline/finance/internal/service"
)

func TestHandler_Health(t *testing.T) {
	t.Parallel()

	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_ApplyPayment(t *testing.T) {
	t.Parallel()

	srv, repo, producer := newServer(t)

	invoiceID := uuid.Must(uuid.NewV4())
	clientID := uuid.Must(uuid.NewV4())

	repo.EXPECT().ApplyPayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inc entity.Income) (entity.Income, entity.Invoice, error) {
			inc.ClientID = clientID

			return inc, entity.Invoice{
				ID:         invoiceID,
				Number:     "INV-00001",
				ClientID:   clientID,
				Total:      decimal.NewFromInt(20000),
				PaidAmount: decimal.NewFromInt(15000),
				Status:     entity.InvoiceStatusPartial,
			}, nil
		})
	producer.EXPECT().PaymentRecorded(gomock.Any(), gomock.Any())

	body := fmt.Sprintf(`{
		"invoiceId": %q,
		"amount": "15000",
		"paymentMethod": "bank",
		"receivedDate": %q,
		"reference": "wire transfer"
	}`, invoiceID, time.Now().Format(time.RFC3339))

	resp, err := http.Post(srv.URL+"/api/income", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got api.IncomeResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, invoiceID, got.InvoiceID)
	require.Equal(t, clientID, got.ClientID)
	require.Equal(t, "15000", got.Amount)
	require.Equal(t, "bank", got.PaymentMethod)
}

func TestHandler_ApplyPayment_Errors(t *testing.T) {
	t.Parallel()

	validBody := func() string {
		return fmt.Sprintf(`{
			"invoiceId": %q,
			"amount": "100",
			"paymentMethod": "cash",
			"receivedDate": %q
		}`, uuid.Must(uuid.NewV4()), time.Now().Format(time.RFC3339))
	}

	tests := []struct {
		name     string
		body     string
		repoErr  error
		wantCode int
	}{
		{
			name:     "unknown invoice",
			body:     validBody(),
			repoErr:  entity.ErrNotFound,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "overpayment",
			body:     validBody(),
			repoErr:  fmt.Errorf("%w: payment amount 100 exceeds remaining balance 40", entity.ErrInvalidArgument),
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "already paid",
			body:     validBody(),
			repoErr:  entity.ErrAlreadyPaid,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name:     "malformed JSON",
			body:     `{"invoiceId": `,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown payment method",
			body: fmt.Sprintf(`{"invoiceId": %q, "amount": "100", "paymentMethod": "crypto", "receivedDate": %q}`,
				uuid.Must(uuid.NewV4()), time.Now().Format(time.RFC3339)),
			wantCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, repo, _ := newServer(t)

			if tt.repoErr != nil {
				repo.EXPECT().ApplyPayment(gomock.Any(), gomock.Any()).
					Return(entity.Income{}, entity.Invoice{}, tt.repoErr)
			}

			resp, err := http.Post(srv.URL+"/api/income", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestHandler_ReversePayment(t *testing.T) {
	t.Parallel()

	srv, repo, producer := newServer(t)

	inc := entity.Income{
		ID:            uuid.Must(uuid.NewV4()),
		InvoiceID:     uuid.Must(uuid.NewV4()),
		ClientID:      uuid.Must(uuid.NewV4()),
		Amount:        decimal.NewFromInt(500),
		PaymentMethod: entity.PaymentMethodCash,
	}

	repo.EXPECT().ReversePayment(gomock.Any(), inc.ID, gomock.Any()).Return(inc, nil)
	producer.EXPECT().PaymentReversed(gomock.Any(), gomock.Any())

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/income/"+inc.ID.String())
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.DeleteResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "Income record deleted and invoice updated", got.Message)
}

func TestHandler_ReversePayment_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown income", func(t *testing.T) {
		t.Parallel()

		srv, repo, _ := newServer(t)

		incomeID := uuid.Must(uuid.NewV4())

		repo.EXPECT().ReversePayment(gomock.Any(), incomeID, gomock.Any()).
			Return(entity.Income{}, entity.ErrNotFound)

		resp := doRequest(t, http.MethodDelete, srv.URL+"/api/income/"+incomeID.String())
		defer resp.Body.Close()

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed id", func(t *testing.T) {
		t.Parallel()

		srv, _, _ := newServer(t)

		resp := doRequest(t, http.MethodDelete, srv.URL+"/api/income/not-a-uuid")
		defer resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_CreateInvoice(t *testing.T) {
	t.Parallel()

	srv, repo, _ := newServer(t)

	repo.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, inv entity.Invoice) (entity.Invoice, error) {
			inv.Number = "INV-00001"

			return inv, nil
		})

	body := fmt.Sprintf(`{
		"clientId": %q,
		"invoiceDate": %q,
		"dueDate": %q,
		"items": [{"description": "Logo design", "qty": 2, "rate": "150"}],
		"tax": "50",
		"discount": "0"
	}`, uuid.Must(uuid.NewV4()), time.Now().Format(time.RFC3339), time.Now().AddDate(0, 1, 0).Format(time.RFC3339))

	resp, err := http.Post(srv.URL+"/api/invoices", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var got api.InvoiceResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, "INV-00001", got.InvoiceNumber)
	require.Equal(t, "350", got.Total)
	require.Equal(t, "350", got.Remaining)
	require.Equal(t, "unpaid", got.Status)
}

func TestHandler_CreateInvoice_NoItems(t *testing.T) {
	t.Parallel()

	srv, _, _ := newServer(t)

	body := fmt.Sprintf(`{
		"clientId": %q,
		"invoiceDate": %q,
		"dueDate": %q,
		"items": []
	}`, uuid.Must(uuid.NewV4()), time.Now().Format(time.RFC3339), time.Now().Format(time.RFC3339))

	resp, err := http.Post(srv.URL+"/api/invoices", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHandler_Invoice_NotFound(t *testing.T) {
	t.Parallel()

	srv, repo, _ := newServer(t)

	id := uuid.Must(uuid.NewV4())

	repo.EXPECT().Invoice(gomock.Any(), id).Return(entity.Invoice{}, entity.ErrNotFound)

	resp, err := http.Get(srv.URL + "/api/invoices/" + id.String())
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_Invoices_InvalidFilter(t *testing.T) {
	t.Parallel()

	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/invoices/?status=overdue")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_APIKeyAuth(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)

	s := service.New(repo, mocks.NewMockProducer(ctrl))

	router := api.NewRouter(api.NewHandler(s), api.NewMiddleware(true, "secret"))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	t.Run("missing key", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/invoices/")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/invoices/", nil)
		require.NoError(t, err)
		req.Header.Set("X-Api-Key", "guess")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("valid key", func(t *testing.T) {
		repo.EXPECT().Invoices(gomock.Any(), gomock.Any()).Return(nil, 0, nil)

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/invoices/", nil)
		require.NoError(t, err)
		req.Header.Set("X-Api-Key", "secret")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("health is open", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func newServer(t *testing.T) (*httptest.Server, *mocks.MockRepository, *mocks.MockProducer) {
	t.Helper()

	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	producer := mocks.NewMockProducer(ctrl)

	s := service.New(repo, producer)

	router := api.NewRouter(api.NewHandler(s), api.NewMiddleware(false, ""))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, repo, producer
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}
