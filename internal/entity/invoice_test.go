package entity_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/finance/internal/entity"
)

func TestStatusForAmounts(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name  string
		paid  string
		total string
		want  entity.InvoiceStatus
	}{
		{name: "nothing paid", paid: "0", total: "17500", want: entity.InvoiceStatusUnpaid},
		{name: "partially paid", paid: "15000", total: "20000", want: entity.InvoiceStatusPartial},
		{name: "exactly paid", paid: "17500", total: "17500", want: entity.InvoiceStatusPaid},
		{name: "overpaid", paid: "17500.01", total: "17500", want: entity.InvoiceStatusPaid},
		{name: "zero total zero paid", paid: "0", total: "0", want: entity.InvoiceStatusUnpaid},
		{name: "small fraction paid", paid: "0.01", total: "100", want: entity.InvoiceStatusPartial},
	} {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := entity.StatusForAmounts(decimal.RequireFromString(tt.paid), decimal.RequireFromString(tt.total))
			if got != tt.want {
				t.Errorf("StatusForAmounts(%s, %s) = %s, want %s", tt.paid, tt.total, got, tt.want)
			}
		})
	}
}

func TestInvoice_ApplyPayment(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("full payment marks invoice paid", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("17500"),
			PaidAmount: decimal.Zero,
			Status:     entity.InvoiceStatusUnpaid,
		}

		err := inv.ApplyPayment(decimal.RequireFromString("17500"), now)
		require.NoError(t, err)
		require.True(t, inv.PaidAmount.Equal(decimal.RequireFromString("17500")))
		require.Equal(t, entity.InvoiceStatusPaid, inv.Status)
	})

	t.Run("partial payment", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("20000"),
			PaidAmount: decimal.Zero,
			Status:     entity.InvoiceStatusUnpaid,
		}

		err := inv.ApplyPayment(decimal.RequireFromString("15000"), now)
		require.NoError(t, err)
		require.True(t, inv.PaidAmount.Equal(decimal.RequireFromString("15000")))
		require.Equal(t, entity.InvoiceStatusPartial, inv.Status)
		require.True(t, inv.Remaining().Equal(decimal.RequireFromString("5000")))
	})

	t.Run("amount above remaining balance rejected", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("45000"),
			PaidAmount: decimal.Zero,
			Status:     entity.InvoiceStatusUnpaid,
		}

		err := inv.ApplyPayment(decimal.RequireFromString("50000"), now)
		require.ErrorIs(t, err, entity.ErrInvalidArgument)
		require.True(t, inv.PaidAmount.IsZero())
		require.Equal(t, entity.InvoiceStatusUnpaid, inv.Status)
	})

	t.Run("fully paid invoice rejects any further payment", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("10000"),
			PaidAmount: decimal.RequireFromString("10000"),
			Status:     entity.InvoiceStatusPaid,
		}

		err := inv.ApplyPayment(decimal.RequireFromString("0.01"), now)
		require.ErrorIs(t, err, entity.ErrAlreadyPaid)
	})

	t.Run("zero and negative amounts rejected", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{Total: decimal.RequireFromString("100")}

		require.ErrorIs(t, inv.ApplyPayment(decimal.Zero, now), entity.ErrInvalidArgument)
		require.ErrorIs(t, inv.ApplyPayment(decimal.RequireFromString("-5"), now), entity.ErrInvalidArgument)
	})

	t.Run("no drift over repeated fractional payments", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{Total: decimal.RequireFromString("1"), Status: entity.InvoiceStatusUnpaid}

		cent := decimal.RequireFromString("0.01")
		for i := 0; i < 100; i++ {
			require.NoError(t, inv.ApplyPayment(cent, now))
		}

		require.True(t, inv.PaidAmount.Equal(decimal.RequireFromString("1")))
		require.Equal(t, entity.InvoiceStatusPaid, inv.Status)
		require.ErrorIs(t, inv.ApplyPayment(cent, now), entity.ErrAlreadyPaid)
	})
}

func TestInvoice_ReversePayment(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("reversal of full payment returns invoice to unpaid", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("10000"),
			PaidAmount: decimal.RequireFromString("10000"),
			Status:     entity.InvoiceStatusPaid,
		}

		inv.ReversePayment(decimal.RequireFromString("10000"), now)
		require.True(t, inv.PaidAmount.IsZero())
		require.Equal(t, entity.InvoiceStatusUnpaid, inv.Status)
	})

	t.Run("reversal clamps paid amount at zero", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Total:      decimal.RequireFromString("10000"),
			PaidAmount: decimal.RequireFromString("3000"),
			Status:     entity.InvoiceStatusPartial,
		}

		inv.ReversePayment(decimal.RequireFromString("5000"), now)
		require.True(t, inv.PaidAmount.IsZero())
		require.Equal(t, entity.InvoiceStatusUnpaid, inv.Status)
	})

	t.Run("reverse then reapply restores original state", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{Total: decimal.RequireFromString("20000"), Status: entity.InvoiceStatusUnpaid}

		amount := decimal.RequireFromString("7500.50")
		require.NoError(t, inv.ApplyPayment(amount, now))
		inv.ReversePayment(amount, now)

		require.True(t, inv.PaidAmount.IsZero())
		require.Equal(t, entity.InvoiceStatusUnpaid, inv.Status)

		require.NoError(t, inv.ApplyPayment(amount, now))
		require.True(t, inv.PaidAmount.Equal(amount))
		require.Equal(t, entity.InvoiceStatusPartial, inv.Status)
	})
}

func TestInvoice_Recalculate(t *testing.T) {
	t.Parallel()

	t.Run("computes item amounts and totals", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Items: []entity.InvoiceItem{
				{Description: "Container handling", Qty: 3, Rate: decimal.RequireFromString("5000")},
				{Description: "Documentation fee", Qty: 1, Rate: decimal.RequireFromString("2500")},
			},
			Tax:      decimal.RequireFromString("875"),
			Discount: decimal.RequireFromString("375"),
		}

		require.NoError(t, inv.Recalculate())
		require.True(t, inv.Items[0].Amount.Equal(decimal.RequireFromString("15000")))
		require.True(t, inv.Subtotal.Equal(decimal.RequireFromString("17500")))
		require.True(t, inv.Total.Equal(decimal.RequireFromString("18000")))
	})

	t.Run("rejects empty items", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{}
		require.ErrorIs(t, inv.Recalculate(), entity.ErrInvalidArgument)
	})

	t.Run("rejects zero qty", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Items: []entity.InvoiceItem{{Description: "x", Qty: 0, Rate: decimal.RequireFromString("10")}},
		}
		require.ErrorIs(t, inv.Recalculate(), entity.ErrInvalidArgument)
	})

	t.Run("rejects negative rate", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Items: []entity.InvoiceItem{{Description: "x", Qty: 1, Rate: decimal.RequireFromString("-10")}},
		}
		require.ErrorIs(t, inv.Recalculate(), entity.ErrInvalidArgument)
	})

	t.Run("rejects discount above subtotal plus tax", func(t *testing.T) {
		t.Parallel()

		inv := entity.Invoice{
			Items:    []entity.InvoiceItem{{Description: "x", Qty: 1, Rate: decimal.RequireFromString("10")}},
			Discount: decimal.RequireFromString("11"),
		}
		require.ErrorIs(t, inv.Recalculate(), entity.ErrInvalidArgument)
	})
}

func TestNextInvoiceNumber(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		last    string
		want    string
		wantErr bool
	}{
		{last: "", want: "INV-00001"},
		{last: "INV-00001", want: "INV-00002"},
		{last: "INV-00099", want: "INV-00100"},
		{last: "INV-99999", want: "INV-100000"},
		{last: "garbage", wantErr: true},
	} {
		got, err := entity.NextInvoiceNumber(tt.last)
		if tt.wantErr {
			require.Error(t, err)
			continue
		}

		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}
