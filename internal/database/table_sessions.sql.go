package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const tableSessionColumns = `id, tenant_id, table_id, order_id, status, seated_at, order_placed_at,
	food_ready_at, served_at, billing_at, completed_at`

func scanTableSession(row interface{ Scan(...interface{}) error }) (TableSession, error) {
	var i TableSession
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.TableID,
		&i.OrderID,
		&i.Status,
		&i.SeatedAt,
		&i.OrderPlacedAt,
		&i.FoodReadyAt,
		&i.ServedAt,
		&i.BillingAt,
		&i.CompletedAt,
	)
	return i, err
}

const getOpenTableSession = `-- name: GetOpenTableSession :one
SELECT ` + tableSessionColumns + ` FROM table_sessions
WHERE table_id = $1 AND tenant_id = $2 AND status = 'open'
ORDER BY seated_at DESC
LIMIT 1`

type GetOpenTableSessionParams struct {
	TableID  uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetOpenTableSession(ctx context.Context, arg GetOpenTableSessionParams) (TableSession, error) {
	return scanTableSession(q.db.QueryRow(ctx, getOpenTableSession, arg.TableID, arg.TenantID))
}

const getOpenTableSessionByOrder = `-- name: GetOpenTableSessionByOrder :one
SELECT ` + tableSessionColumns + ` FROM table_sessions
WHERE order_id = $1 AND tenant_id = $2 AND status = 'open'
LIMIT 1`

type GetOpenTableSessionByOrderParams struct {
	OrderID  uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetOpenTableSessionByOrder(ctx context.Context, arg GetOpenTableSessionByOrderParams) (TableSession, error) {
	return scanTableSession(q.db.QueryRow(ctx, getOpenTableSessionByOrder, arg.OrderID, arg.TenantID))
}

const createTableSession = `-- name: CreateTableSession :one
INSERT INTO table_sessions (tenant_id, table_id, order_id, seated_at, order_placed_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING ` + tableSessionColumns

type CreateTableSessionParams struct {
	TenantID uuid.UUID
	TableID  uuid.UUID
	OrderID  uuid.UUID
	SeatedAt time.Time
}

func (q *Queries) CreateTableSession(ctx context.Context, arg CreateTableSessionParams) (TableSession, error) {
	return scanTableSession(q.db.QueryRow(ctx, createTableSession,
		arg.TenantID, arg.TableID, arg.OrderID, arg.SeatedAt))
}

// StampTableSession repoints the session at OrderID when set and fills any
// stamp that is still empty.
const stampTableSession = `-- name: StampTableSession :one
UPDATE table_sessions SET
	order_id        = COALESCE($3, order_id),
	order_placed_at = COALESCE($4, order_placed_at),
	food_ready_at   = COALESCE(food_ready_at, $5),
	served_at       = COALESCE(served_at, $6),
	billing_at      = COALESCE(billing_at, $7)
WHERE id = $1 AND tenant_id = $2 AND status = 'open'
RETURNING ` + tableSessionColumns

type StampTableSessionParams struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	OrderID       pgtype.UUID
	OrderPlacedAt pgtype.Timestamptz
	FoodReadyAt   pgtype.Timestamptz
	ServedAt      pgtype.Timestamptz
	BillingAt     pgtype.Timestamptz
}

func (q *Queries) StampTableSession(ctx context.Context, arg StampTableSessionParams) (TableSession, error) {
	row := q.db.QueryRow(ctx, stampTableSession,
		arg.ID,
		arg.TenantID,
		arg.OrderID,
		arg.OrderPlacedAt,
		arg.FoodReadyAt,
		arg.ServedAt,
		arg.BillingAt,
	)
	return scanTableSession(row)
}

const closeTableSession = `-- name: CloseTableSession :one
UPDATE table_sessions SET status = 'completed', completed_at = $3
WHERE id = $1 AND tenant_id = $2 AND status = 'open'
RETURNING ` + tableSessionColumns

type CloseTableSessionParams struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CompletedAt time.Time
}

func (q *Queries) CloseTableSession(ctx context.Context, arg CloseTableSessionParams) (TableSession, error) {
	return scanTableSession(q.db.QueryRow(ctx, closeTableSession, arg.ID, arg.TenantID, arg.CompletedAt))
}

const listTableSessions = `-- name: ListTableSessions :many
SELECT ` + tableSessionColumns + ` FROM table_sessions
WHERE tenant_id = $1
  AND ($2::text IS NULL OR status = $2)
  AND ($3::uuid IS NULL OR table_id = $3)
ORDER BY seated_at DESC
LIMIT $4 OFFSET $5`

type ListTableSessionsParams struct {
	TenantID uuid.UUID
	Status   pgtype.Text
	TableID  pgtype.UUID
	Limit    int32
	Offset   int32
}

func (q *Queries) ListTableSessions(ctx context.Context, arg ListTableSessionsParams) ([]TableSession, error) {
	rows, err := q.db.Query(ctx, listTableSessions, arg.TenantID, arg.Status, arg.TableID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TableSession
	for rows.Next() {
		i, err := scanTableSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getWaitTimeStats = `-- name: GetWaitTimeStats :one
SELECT
	count(*)::bigint,
	COALESCE(AVG(EXTRACT(EPOCH FROM food_ready_at - order_placed_at)), 0)::float8,
	COALESCE(AVG(EXTRACT(EPOCH FROM served_at - food_ready_at)), 0)::float8,
	COALESCE(AVG(EXTRACT(EPOCH FROM billing_at - served_at)), 0)::float8,
	COALESCE(AVG(EXTRACT(EPOCH FROM completed_at - seated_at)), 0)::float8
FROM table_sessions
WHERE tenant_id = $1 AND status = 'completed'
  AND seated_at >= $2 AND seated_at < $3`

type GetWaitTimeStatsParams struct {
	TenantID uuid.UUID
	From     time.Time
	To       time.Time
}

type GetWaitTimeStatsRow struct {
	Sessions          int64   `json:"sessions"`
	AvgPlacedToReady  float64 `json:"avg_placed_to_ready_seconds"`
	AvgReadyToServed  float64 `json:"avg_ready_to_served_seconds"`
	AvgServedToBilled float64 `json:"avg_served_to_billing_seconds"`
	AvgSeatedToClosed float64 `json:"avg_seated_to_completed_seconds"`
}

func (q *Queries) GetWaitTimeStats(ctx context.Context, arg GetWaitTimeStatsParams) (GetWaitTimeStatsRow, error) {
	row := q.db.QueryRow(ctx, getWaitTimeStats, arg.TenantID, arg.From, arg.To)
	var i GetWaitTimeStatsRow
	err := row.Scan(
		&i.Sessions,
		&i.AvgPlacedToReady,
		&i.AvgReadyToServed,
		&i.AvgServedToBilled,
		&i.AvgSeatedToClosed,
	)
	return i, err
}
