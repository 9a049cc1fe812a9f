package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, tenant_id, order_id, invoice_number, items, subtotal, tax_amount,
	service_charge, discount_percent, discount_amount, total_amount, payment_method, notes,
	printed, created_at`

func scanInvoice(row interface{ Scan(...interface{}) error }) (Invoice, error) {
	var i Invoice
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.OrderID,
		&i.InvoiceNumber,
		&i.Items,
		&i.Subtotal,
		&i.TaxAmount,
		&i.ServiceCharge,
		&i.DiscountPercent,
		&i.DiscountAmount,
		&i.TotalAmount,
		&i.PaymentMethod,
		&i.Notes,
		&i.Printed,
		&i.CreatedAt,
	)
	return i, err
}

const getInvoiceByOrder = `-- name: GetInvoiceByOrder :one
SELECT ` + invoiceColumns + ` FROM invoices WHERE order_id = $1 AND tenant_id = $2`

type GetInvoiceByOrderParams struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetInvoiceByOrder(ctx context.Context, arg GetInvoiceByOrderParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, getInvoiceByOrder, arg.OrderID, arg.TenantID))
}

const createInvoice = `-- name: CreateInvoice :one
INSERT INTO invoices (
	tenant_id, order_id, invoice_number, items, subtotal, tax_amount, service_charge,
	discount_percent, discount_amount, total_amount, payment_method, notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + invoiceColumns

type CreateInvoiceParams struct {
	TenantID        uuid.UUID
	OrderID         uuid.UUID
	InvoiceNumber   string
	Items           []byte
	Subtotal        decimal.Decimal
	TaxAmount       decimal.Decimal
	ServiceCharge   decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	PaymentMethod   string
	Notes           pgtype.Text
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	row := q.db.QueryRow(ctx, createInvoice,
		arg.TenantID,
		arg.OrderID,
		arg.InvoiceNumber,
		arg.Items,
		arg.Subtotal,
		arg.TaxAmount,
		arg.ServiceCharge,
		arg.DiscountPercent,
		arg.DiscountAmount,
		arg.TotalAmount,
		arg.PaymentMethod,
		arg.Notes,
	)
	return scanInvoice(row)
}

const markInvoicePrinted = `-- name: MarkInvoicePrinted :exec
UPDATE invoices SET printed = true WHERE order_id = $1 AND tenant_id = $2`

type MarkInvoicePrintedParams struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) MarkInvoicePrinted(ctx context.Context, arg MarkInvoicePrintedParams) error {
	_, err := q.db.Exec(ctx, markInvoicePrinted, arg.OrderID, arg.TenantID)
	return err
}

const getMaxInvoiceSequence = `-- name: GetMaxInvoiceSequence :one
SELECT COALESCE(MAX(substring(invoice_number FROM '-(\d+)$')::bigint), 0)::bigint
FROM invoices
WHERE tenant_id = $1 AND invoice_number LIKE '%-' || $2::text || '-%'`

type GetMaxInvoiceSequenceParams struct {
	TenantID uuid.UUID
	Day      string
}

// GetMaxInvoiceSequence returns the highest counter used in the tenant's
// invoice numbers for Day (YYYYMMDD).
func (q *Queries) GetMaxInvoiceSequence(ctx context.Context, arg GetMaxInvoiceSequenceParams) (int64, error) {
	row := q.db.QueryRow(ctx, getMaxInvoiceSequence, arg.TenantID, arg.Day)
	var n int64
	err := row.Scan(&n)
	return n, err
}
