package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/finance/internal/entity"
)

type Repository struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{
		db: pool,
	}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// CreateInvoice inserts the invoice with the next free invoice number.
// Number generation is serialized with a transaction-scoped advisory lock,
// so two concurrent creates cannot read the same last number. The unique
// index on invoice_number backs it up.
func (r *Repository) CreateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error) {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('invoices.invoice_number'))`)
		if err != nil {
			return fmt.Errorf("acquire invoice number lock: %w", err)
		}

		var last string

		err = tx.QueryRow(ctx, `SELECT invoice_number FROM invoices ORDER BY created_at DESC, invoice_number DESC LIMIT 1`).
			Scan(&last)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("load last invoice number: %w", err)
		}

		inv.Number, err = entity.NextInvoiceNumber(last)
		if err != nil {
			return err
		}

		const q = `
		INSERT INTO invoices (
			id,
			invoice_number,
			client_id,
			invoice_date,
			due_date,
			subtotal,
			tax,
			discount,
			total,
			paid_amount,
			status,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`

		_, err = tx.Exec(
			ctx,
			q,
			inv.ID,
			inv.Number,
			inv.ClientID,
			inv.InvoiceDate,
			inv.DueDate,
			inv.Subtotal,
			inv.Tax,
			inv.Discount,
			inv.Total,
			inv.PaidAmount,
			inv.Status,
			inv.CreatedAt,
			inv.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		return insertItems(ctx, tx, inv.ID, inv.Items)
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	return inv, nil
}

func (r *Repository) Invoice(ctx context.Context, id uuid.UUID) (entity.Invoice, error) {
	q := selectInvoice + " WHERE id = $1 AND deleted_at IS NULL"

	inv, err := scanInvoice(r.db.QueryRow(ctx, q, id))
	if err != nil {
		return entity.Invoice{}, err
	}

	inv.Items, err = loadItems(ctx, r.db, inv.ID)
	if err != nil {
		return entity.Invoice{}, err
	}

	return inv, nil
}

func (r *Repository) Invoices(ctx context.Context, f entity.InvoiceFilter) ([]entity.Invoice, int, error) {
	stmt := sq.Select(
		"id",
		"invoice_number",
		"client_id",
		"invoice_date",
		"due_date",
		"subtotal",
		"tax",
		"discount",
		"total",
		"paid_amount",
		"status",
		"deleted_at",
		"created_at",
		"updated_at",
		"COUNT(*) OVER() AS total_count",
	).From("invoices").Where(sq.Eq{"deleted_at": nil}).PlaceholderFormat(sq.Dollar)

	stmt = applyInvoiceFilter(stmt, f).
		Limit(f.Limit).
		Offset(f.Page*f.Limit - f.Limit).
		OrderBy(fmt.Sprintf("%s %s", f.SortBy, f.OrderBy))

	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	invoices := make([]entity.Invoice, 0, f.Limit)

	var totalCount int

	for rows.Next() {
		var inv entity.Invoice

		var count int

		err = rows.Scan(
			&inv.ID,
			&inv.Number,
			&inv.ClientID,
			&inv.InvoiceDate,
			&inv.DueDate,
			&inv.Subtotal,
			&inv.Tax,
			&inv.Discount,
			&inv.Total,
			&inv.PaidAmount,
			&inv.Status,
			&inv.DeletedAt,
			&inv.CreatedAt,
			&inv.UpdatedAt,
			&count,
		)
		if err != nil {
			return nil, 0, err
		}

		totalCount = count

		invoices = append(invoices, inv)
	}

	return invoices, totalCount, nil
}

func applyInvoiceFilter(stmt sq.SelectBuilder, f entity.InvoiceFilter) sq.SelectBuilder {
	if f.ClientID != nil {
		stmt = stmt.Where(sq.Eq{"client_id": *f.ClientID})
	}

	if f.Status != nil {
		stmt = stmt.Where(sq.Eq{"status": *f.Status})
	}

	if f.DateFrom != nil {
		stmt = stmt.Where(sq.GtOrEq{"invoice_date": *f.DateFrom})
	}

	if f.DateTo != nil {
		stmt = stmt.Where(sq.LtOrEq{"invoice_date": *f.DateTo})
	}

	return stmt
}

// UpdateInvoice rewrites the invoice details and line items. Once a payment
// has been recorded (status is no longer unpaid) the items and totals are
// locked; paid_amount and status are never written here, only the
// reconciliation operations touch them.
func (r *Repository) UpdateInvoice(ctx context.Context, inv entity.Invoice) (entity.Invoice, error) {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		current, err := invoiceForUpdate(ctx, tx, inv.ID, true)
		if err != nil {
			return fmt.Errorf("load invoice %s: %w", inv.ID, err)
		}

		if current.Status != entity.InvoiceStatusUnpaid {
			return fmt.Errorf("%w: invoice %s items and totals cannot change after payment has been received",
				entity.ErrInvalidArgument, current.Number)
		}

		const q = `
		UPDATE invoices SET
			invoice_date = $1,
			due_date = $2,
			subtotal = $3,
			tax = $4,
			discount = $5,
			total = $6,
			updated_at = $7
		WHERE id = $8
		`

		_, err = tx.Exec(
			ctx,
			q,
			inv.InvoiceDate,
			inv.DueDate,
			inv.Subtotal,
			inv.Tax,
			inv.Discount,
			inv.Total,
			inv.UpdatedAt,
			inv.ID,
		)
		if err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		_, err = tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID)
		if err != nil {
			return fmt.Errorf("delete invoice items: %w", err)
		}

		err = insertItems(ctx, tx, inv.ID, inv.Items)
		if err != nil {
			return err
		}

		inv.Number = current.Number
		inv.ClientID = current.ClientID
		inv.PaidAmount = current.PaidAmount
		inv.Status = current.Status
		inv.CreatedAt = current.CreatedAt

		return nil
	})
	if err != nil {
		return entity.Invoice{}, err
	}

	return inv, nil
}

func (r *Repository) DeleteInvoice(ctx context.Context, id uuid.UUID, deletedAt time.Time) error {
	const q = `UPDATE invoices SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`

	result, err := r.db.Exec(ctx, q, deletedAt, id)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return entity.ErrNotFound
	}

	return nil
}

// ApplyPayment creates the income record and moves the invoice's paid amount
// and status forward as one transaction. The invoice row is locked before the
// remaining-balance check so two concurrent payments cannot both validate
// against the same stale balance and jointly overpay the invoice.
func (r *Repository) ApplyPayment(ctx context.Context, inc entity.Income) (entity.Income, entity.Invoice, error) {
	var inv entity.Invoice

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var err error

		inv, err = invoiceForUpdate(ctx, tx, inc.InvoiceID, true)
		if err != nil {
			return fmt.Errorf("load invoice %s: %w", inc.InvoiceID, err)
		}

		if inc.ClientID.IsNil() {
			inc.ClientID = inv.ClientID
		} else if inc.ClientID != inv.ClientID {
			return fmt.Errorf("%w: client %s does not own invoice %s", entity.ErrInvalidArgument, inc.ClientID, inv.Number)
		}

		err = inv.ApplyPayment(inc.Amount, inc.CreatedAt)
		if err != nil {
			return err
		}

		const q = `
		INSERT INTO incomes (
			id,
			invoice_id,
			client_id,
			amount,
			payment_method,
			received_date,
			reference,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`

		_, err = tx.Exec(
			ctx,
			q,
			inc.ID,
			inc.InvoiceID,
			inc.ClientID,
			inc.Amount,
			inc.PaymentMethod,
			inc.ReceivedDate,
			inc.Reference,
			inc.CreatedAt,
			inc.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert income: %w", err)
		}

		return updateInvoicePayment(ctx, tx, inv)
	})
	if err != nil {
		return entity.Income{}, entity.Invoice{}, err
	}

	return inc, inv, nil
}

// ReversePayment soft-deletes the income record and rolls its amount back out
// of the invoice as one transaction. A missing invoice only skips the
// invoice-side rollback; the income record is still marked deleted.
func (r *Repository) ReversePayment(ctx context.Context, incomeID uuid.UUID, deletedAt time.Time) (entity.Income, error) {
	var inc entity.Income

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		q := selectIncome + " WHERE id = $1 AND deleted_at IS NULL FOR UPDATE"

		var err error

		inc, err = scanIncome(tx.QueryRow(ctx, q, incomeID))
		if err != nil {
			return fmt.Errorf("load income %s: %w", incomeID, err)
		}

		// The invoice is rolled back even when soft-deleted, so its audit
		// history stays consistent with the income ledger.
		inv, err := invoiceForUpdate(ctx, tx, inc.InvoiceID, false)

		switch {
		case errors.Is(err, entity.ErrNotFound):

		case err != nil:
			return fmt.Errorf("load invoice %s: %w", inc.InvoiceID, err)

		default:
			inv.ReversePayment(inc.Amount, deletedAt)

			err = updateInvoicePayment(ctx, tx, inv)
			if err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `UPDATE incomes SET deleted_at = $1, updated_at = $1 WHERE id = $2`, deletedAt, incomeID)
		if err != nil {
			return fmt.Errorf("mark income deleted: %w", err)
		}

		inc.DeletedAt = &deletedAt
		inc.UpdatedAt = deletedAt

		return nil
	})
	if err != nil {
		return entity.Income{}, err
	}

	return inc, nil
}

func (r *Repository) Income(ctx context.Context, id uuid.UUID) (entity.Income, error) {
	q := selectIncome + " WHERE id = $1 AND deleted_at IS NULL"
	return scanIncome(r.db.QueryRow(ctx, q, id))
}

func (r *Repository) Incomes(ctx context.Context, f entity.IncomeFilter) ([]entity.Income, int, error) {
	stmt := sq.Select(
		"id",
		"invoice_id",
		"client_id",
		"amount",
		"payment_method",
		"received_date",
		"reference",
		"deleted_at",
		"created_at",
		"updated_at",
		"COUNT(*) OVER() AS total_count",
	).From("incomes").Where(sq.Eq{"deleted_at": nil}).PlaceholderFormat(sq.Dollar)

	stmt = applyIncomeFilter(stmt, f).
		Limit(f.Limit).
		Offset(f.Page*f.Limit - f.Limit).
		OrderBy("received_date DESC")

	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	incomes := make([]entity.Income, 0, f.Limit)

	var totalCount int

	for rows.Next() {
		var inc entity.Income

		var count int

		err = rows.Scan(
			&inc.ID,
			&inc.InvoiceID,
			&inc.ClientID,
			&inc.Amount,
			&inc.PaymentMethod,
			&inc.ReceivedDate,
			&inc.Reference,
			&inc.DeletedAt,
			&inc.CreatedAt,
			&inc.UpdatedAt,
			&count,
		)
		if err != nil {
			return nil, 0, err
		}

		totalCount = count

		incomes = append(incomes, inc)
	}

	return incomes, totalCount, nil
}

func applyIncomeFilter(stmt sq.SelectBuilder, f entity.IncomeFilter) sq.SelectBuilder {
	if f.InvoiceID != nil {
		stmt = stmt.Where(sq.Eq{"invoice_id": *f.InvoiceID})
	}

	if f.ClientID != nil {
		stmt = stmt.Where(sq.Eq{"client_id": *f.ClientID})
	}

	if f.ReceivedFrom != nil {
		stmt = stmt.Where(sq.GtOrEq{"received_date": *f.ReceivedFrom})
	}

	if f.ReceivedTo != nil {
		stmt = stmt.Where(sq.LtOrEq{"received_date": *f.ReceivedTo})
	}

	return stmt
}

// LedgerDrift returns invoices whose paid_amount disagrees with the sum of
// their non-deleted income records.
func (r *Repository) LedgerDrift(ctx context.Context) ([]entity.LedgerDrift, error) {
	const q = `
	SELECT i.id, i.invoice_number, i.paid_amount, COALESCE(SUM(inc.amount), 0) AS income_sum
	FROM invoices i
	LEFT JOIN incomes inc ON inc.invoice_id = i.id AND inc.deleted_at IS NULL
	WHERE i.deleted_at IS NULL
	GROUP BY i.id, i.invoice_number, i.paid_amount
	HAVING i.paid_amount <> COALESCE(SUM(inc.amount), 0)
	`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drifts []entity.LedgerDrift

	for rows.Next() {
		var d entity.LedgerDrift

		err = rows.Scan(&d.InvoiceID, &d.Number, &d.PaidAmount, &d.IncomeSum)
		if err != nil {
			return nil, err
		}

		drifts = append(drifts, d)
	}

	return drifts, nil
}

func invoiceForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID, excludeDeleted bool) (entity.Invoice, error) {
	q := selectInvoice + " WHERE id = $1"
	if excludeDeleted {
		q += " AND deleted_at IS NULL"
	}

	q += " FOR UPDATE"

	return scanInvoice(tx.QueryRow(ctx, q, id))
}

func updateInvoicePayment(ctx context.Context, tx pgx.Tx, inv entity.Invoice) error {
	const q = `UPDATE invoices SET paid_amount = $1, status = $2, updated_at = $3 WHERE id = $4`

	_, err := tx.Exec(ctx, q, inv.PaidAmount, inv.Status, inv.UpdatedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("update invoice payment: %w", err)
	}

	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, items []entity.InvoiceItem) error {
	const q = `
	INSERT INTO invoice_items (invoice_id, position, description, qty, rate, amount)
	VALUES ($1, $2, $3, $4, $5, $6)
	`

	for i, item := range items {
		_, err := tx.Exec(ctx, q, invoiceID, i, item.Description, item.Qty, item.Rate, item.Amount)
		if err != nil {
			return fmt.Errorf("insert invoice item %d: %w", i, err)
		}
	}

	return nil
}

func loadItems(ctx context.Context, q querier, invoiceID uuid.UUID) ([]entity.InvoiceItem, error) {
	rows, err := q.Query(ctx,
		`SELECT description, qty, rate, amount FROM invoice_items WHERE invoice_id = $1 ORDER BY position`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entity.InvoiceItem

	for rows.Next() {
		var item entity.InvoiceItem

		err = rows.Scan(&item.Description, &item.Qty, &item.Rate, &item.Amount)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

func scanInvoice(row pgx.Row) (inv entity.Invoice, err error) {
	err = row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.ClientID,
		&inv.InvoiceDate,
		&inv.DueDate,
		&inv.Subtotal,
		&inv.Tax,
		&inv.Discount,
		&inv.Total,
		&inv.PaidAmount,
		&inv.Status,
		&inv.DeletedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Invoice{}, entity.ErrNotFound
		}

		return entity.Invoice{}, err
	}

	return inv, nil
}

func scanIncome(row pgx.Row) (inc entity.Income, err error) {
	err = row.Scan(
		&inc.ID,
		&inc.InvoiceID,
		&inc.ClientID,
		&inc.Amount,
		&inc.PaymentMethod,
		&inc.ReceivedDate,
		&inc.Reference,
		&inc.DeletedAt,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return entity.Income{}, entity.ErrNotFound
		}

		return entity.Income{}, err
	}

	return inc, nil
}
