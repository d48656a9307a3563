package repository

const (
	selectInvoice = `SELECT
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
		deleted_at,
		created_at,
		updated_at
	FROM invoices`

	selectIncome = `SELECT
		id,
		invoice_id,
		client_id,
		amount,
		payment_method,
		received_date,
		reference,
		deleted_at,
		created_at,
		updated_at
	FROM incomes`
)
