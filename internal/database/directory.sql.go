package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const tenantColumns = `id, name, slug, currency, tax_rate, service_charge_rate, invoice_prefix, is_active, created_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (Tenant, error) {
	var i Tenant
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Slug,
		&i.Currency,
		&i.TaxRate,
		&i.ServiceChargeRate,
		&i.InvoicePrefix,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getTenant = `-- name: GetTenant :one
SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND is_active = true`

func (q *Queries) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return scanTenant(q.db.QueryRow(ctx, getTenant, id))
}

const getTenantBySlug = `-- name: GetTenantBySlug :one
SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1 AND is_active = true`

func (q *Queries) GetTenantBySlug(ctx context.Context, slug string) (Tenant, error) {
	return scanTenant(q.db.QueryRow(ctx, getTenantBySlug, slug))
}

const createTenant = `-- name: CreateTenant :one
INSERT INTO tenants (name, slug, currency, tax_rate, service_charge_rate, invoice_prefix)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + tenantColumns

type CreateTenantParams struct {
	Name              string
	Slug              string
	Currency          string
	TaxRate           decimal.Decimal
	ServiceChargeRate decimal.Decimal
	InvoicePrefix     string
}

func (q *Queries) CreateTenant(ctx context.Context, arg CreateTenantParams) (Tenant, error) {
	row := q.db.QueryRow(ctx, createTenant,
		arg.Name,
		arg.Slug,
		arg.Currency,
		arg.TaxRate,
		arg.ServiceChargeRate,
		arg.InvoicePrefix,
	)
	return scanTenant(row)
}

const tableColumns = `id, tenant_id, label, status, is_active, updated_at`

func scanTable(row interface{ Scan(...interface{}) error }) (RestaurantTable, error) {
	var i RestaurantTable
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Label,
		&i.Status,
		&i.IsActive,
		&i.UpdatedAt,
	)
	return i, err
}

const getTable = `-- name: GetTable :one
SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE id = $1 AND tenant_id = $2 AND is_active = true`

type GetTableParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetTable(ctx context.Context, arg GetTableParams) (RestaurantTable, error) {
	return scanTable(q.db.QueryRow(ctx, getTable, arg.ID, arg.TenantID))
}

const listTables = `-- name: ListTables :many
SELECT ` + tableColumns + ` FROM restaurant_tables
WHERE tenant_id = $1 AND is_active = true
ORDER BY label`

func (q *Queries) ListTables(ctx context.Context, tenantID uuid.UUID) ([]RestaurantTable, error) {
	rows, err := q.db.Query(ctx, listTables, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RestaurantTable
	for rows.Next() {
		i, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createTable = `-- name: CreateTable :one
INSERT INTO restaurant_tables (tenant_id, label) VALUES ($1, $2)
RETURNING ` + tableColumns

type CreateTableParams struct {
	TenantID uuid.UUID
	Label    string
}

func (q *Queries) CreateTable(ctx context.Context, arg CreateTableParams) (RestaurantTable, error) {
	return scanTable(q.db.QueryRow(ctx, createTable, arg.TenantID, arg.Label))
}

const setTableStatus = `-- name: SetTableStatus :exec
UPDATE restaurant_tables SET status = $3, updated_at = now()
WHERE id = $1 AND tenant_id = $2 AND status <> $3`

type SetTableStatusParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Status   string
}

func (q *Queries) SetTableStatus(ctx context.Context, arg SetTableStatusParams) error {
	_, err := q.db.Exec(ctx, setTableStatus, arg.ID, arg.TenantID, arg.Status)
	return err
}

const menuItemColumns = `id, tenant_id, name, description, price, is_available, created_at`

func scanMenuItem(row interface{ Scan(...interface{}) error }) (MenuItem, error) {
	var i MenuItem
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.Name,
		&i.Description,
		&i.Price,
		&i.IsAvailable,
		&i.CreatedAt,
	)
	return i, err
}

const getMenuItemsForOrder = `-- name: GetMenuItemsForOrder :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE tenant_id = $1 AND id = ANY($2::uuid[])`

type GetMenuItemsForOrderParams struct {
	TenantID uuid.UUID
	IDs      []uuid.UUID
}

func (q *Queries) GetMenuItemsForOrder(ctx context.Context, arg GetMenuItemsForOrderParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getMenuItemsForOrder, arg.TenantID, arg.IDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		i, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const listAvailableMenuItems = `-- name: ListAvailableMenuItems :many
SELECT ` + menuItemColumns + ` FROM menu_items
WHERE tenant_id = $1 AND is_available = true
ORDER BY name`

func (q *Queries) ListAvailableMenuItems(ctx context.Context, tenantID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listAvailableMenuItems, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		i, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createMenuItem = `-- name: CreateMenuItem :one
INSERT INTO menu_items (tenant_id, name, description, price) VALUES ($1, $2, $3, $4)
RETURNING ` + menuItemColumns

type CreateMenuItemParams struct {
	TenantID    uuid.UUID
	Name        string
	Description pgtype.Text
	Price       decimal.Decimal
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, createMenuItem, arg.TenantID, arg.Name, arg.Description, arg.Price))
}
