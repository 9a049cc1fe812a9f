package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, tenant_id, order_number, table_id, status, payment_status, payment_method,
	subtotal, tax_amount, service_charge, total_amount, customer_name, customer_phone,
	instructions, cancel_reason, started_preparing_at, ready_at, served_at, completed_at,
	cancelled_at, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.OrderNumber,
		&i.TableID,
		&i.Status,
		&i.PaymentStatus,
		&i.PaymentMethod,
		&i.Subtotal,
		&i.TaxAmount,
		&i.ServiceCharge,
		&i.TotalAmount,
		&i.CustomerName,
		&i.CustomerPhone,
		&i.Instructions,
		&i.CancelReason,
		&i.StartedPreparingAt,
		&i.ReadyAt,
		&i.ServedAt,
		&i.CompletedAt,
		&i.CancelledAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getNextOrderNumber = `-- name: GetNextOrderNumber :one
SELECT COALESCE(MAX(order_number), 0)::int + 1 FROM orders WHERE tenant_id = $1`

func (q *Queries) GetNextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, getNextOrderNumber, tenantID)
	var next int32
	err := row.Scan(&next)
	return next, err
}

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (
	tenant_id, order_number, table_id, subtotal, tax_amount, service_charge,
	total_amount, customer_name, customer_phone, instructions
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TenantID      uuid.UUID
	OrderNumber   int32
	TableID       pgtype.UUID
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	ServiceCharge decimal.Decimal
	TotalAmount   decimal.Decimal
	CustomerName  pgtype.Text
	CustomerPhone pgtype.Text
	Instructions  pgtype.Text
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.TenantID,
		arg.OrderNumber,
		arg.TableID,
		arg.Subtotal,
		arg.TaxAmount,
		arg.ServiceCharge,
		arg.TotalAmount,
		arg.CustomerName,
		arg.CustomerPhone,
		arg.Instructions,
	)
	return scanOrder(row)
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (
	order_id, menu_item_id, name, unit_price, quantity, subtotal, special_instructions, options
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, order_id, menu_item_id, name, unit_price, quantity, subtotal, status,
	special_instructions, options, created_at`

type CreateOrderItemParams struct {
	OrderID             uuid.UUID
	MenuItemID          uuid.UUID
	Name                string
	UnitPrice           decimal.Decimal
	Quantity            int32
	Subtotal            decimal.Decimal
	SpecialInstructions pgtype.Text
	Options             []byte
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	options := arg.Options
	if options == nil {
		options = []byte("[]")
	}
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Name,
		arg.UnitPrice,
		arg.Quantity,
		arg.Subtotal,
		arg.SpecialInstructions,
		options,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Name,
		&i.UnitPrice,
		&i.Quantity,
		&i.Subtotal,
		&i.Status,
		&i.SpecialInstructions,
		&i.Options,
		&i.CreatedAt,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`

type GetOrderParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, arg.ID, arg.TenantID))
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2 FOR NO KEY UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, arg GetOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, arg.ID, arg.TenantID))
}

const listOrders = `-- name: ListOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE tenant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR table_id = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5`

type ListOrdersParams struct {
	TenantID uuid.UUID
	Status   pgtype.Text
	TableID  pgtype.UUID
	Limit    int32
	Offset   int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.TenantID, arg.Status, arg.TableID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listActiveOrders = `-- name: ListActiveOrders :many
SELECT ` + orderColumns + ` FROM orders
WHERE tenant_id = $1 AND status NOT IN ('completed', 'cancelled')
ORDER BY created_at ASC`

func (q *Queries) ListActiveOrders(ctx context.Context, tenantID uuid.UUID) ([]Order, error) {
	rows, err := q.db.Query(ctx, listActiveOrders, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		i, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listOrderItemsByOrder = `-- name: ListOrderItemsByOrder :many
SELECT id, order_id, menu_item_id, name, unit_price, quantity, subtotal, status,
	special_instructions, options, created_at
FROM order_items WHERE order_id = $1 ORDER BY created_at, id`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.MenuItemID,
			&i.Name,
			&i.UnitPrice,
			&i.Quantity,
			&i.Subtotal,
			&i.Status,
			&i.SpecialInstructions,
			&i.Options,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// UpdateOrderStatus only touches the row while it is still in FromStatus.
// Stamp columns keep their first value.
const updateOrderStatus = `-- name: UpdateOrderStatus :one
UPDATE orders SET
	status               = $3,
	started_preparing_at = COALESCE(started_preparing_at, $5),
	ready_at             = COALESCE(ready_at, $6),
	served_at            = COALESCE(served_at, $7),
	cancelled_at         = COALESCE(cancelled_at, $8),
	cancel_reason        = COALESCE($9, cancel_reason),
	updated_at           = now()
WHERE id = $1 AND tenant_id = $2 AND status = $4
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID                 uuid.UUID
	TenantID           uuid.UUID
	Status             string
	FromStatus         string
	StartedPreparingAt pgtype.Timestamptz
	ReadyAt            pgtype.Timestamptz
	ServedAt           pgtype.Timestamptz
	CancelledAt        pgtype.Timestamptz
	CancelReason       pgtype.Text
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrderStatus,
		arg.ID,
		arg.TenantID,
		arg.Status,
		arg.FromStatus,
		arg.StartedPreparingAt,
		arg.ReadyAt,
		arg.ServedAt,
		arg.CancelledAt,
		arg.CancelReason,
	)
	return scanOrder(row)
}

const completeOrderPayment = `-- name: CompleteOrderPayment :one
UPDATE orders SET
	status         = 'completed',
	payment_status = 'paid',
	payment_method = $3,
	completed_at   = $4,
	updated_at     = now()
WHERE id = $1 AND tenant_id = $2 AND status IN ('served', 'ready')
RETURNING ` + orderColumns

type CompleteOrderPaymentParams struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	PaymentMethod string
	CompletedAt   pgtype.Timestamptz
}

func (q *Queries) CompleteOrderPayment(ctx context.Context, arg CompleteOrderPaymentParams) (Order, error) {
	row := q.db.QueryRow(ctx, completeOrderPayment, arg.ID, arg.TenantID, arg.PaymentMethod, arg.CompletedAt)
	return scanOrder(row)
}

const countActiveOrdersForTable = `-- name: CountActiveOrdersForTable :one
SELECT count(*) FROM orders
WHERE table_id = $1 AND status NOT IN ('completed', 'cancelled')`

func (q *Queries) CountActiveOrdersForTable(ctx context.Context, tableID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveOrdersForTable, tableID)
	var count int64
	err := row.Scan(&count)
	return count, err
}
