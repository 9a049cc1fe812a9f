package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const waiterCallColumns = `id, tenant_id, table_id, reason, status, created_at, acknowledged_at, resolved_at`

func scanWaiterCall(row interface{ Scan(...interface{}) error }) (WaiterCall, error) {
	var i WaiterCall
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.TableID,
		&i.Reason,
		&i.Status,
		&i.CreatedAt,
		&i.AcknowledgedAt,
		&i.ResolvedAt,
	)
	return i, err
}

const createWaiterCall = `-- name: CreateWaiterCall :one
INSERT INTO waiter_calls (tenant_id, table_id, reason) VALUES ($1, $2, $3)
RETURNING ` + waiterCallColumns

type CreateWaiterCallParams struct {
	TenantID uuid.UUID
	TableID  uuid.UUID
	Reason   string
}

func (q *Queries) CreateWaiterCall(ctx context.Context, arg CreateWaiterCallParams) (WaiterCall, error) {
	return scanWaiterCall(q.db.QueryRow(ctx, createWaiterCall, arg.TenantID, arg.TableID, arg.Reason))
}

const getWaiterCall = `-- name: GetWaiterCall :one
SELECT ` + waiterCallColumns + ` FROM waiter_calls WHERE id = $1 AND tenant_id = $2`

type GetWaiterCallParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetWaiterCall(ctx context.Context, arg GetWaiterCallParams) (WaiterCall, error) {
	return scanWaiterCall(q.db.QueryRow(ctx, getWaiterCall, arg.ID, arg.TenantID))
}

const updateWaiterCallStatus = `-- name: UpdateWaiterCallStatus :one
UPDATE waiter_calls SET
	status          = $3,
	acknowledged_at = COALESCE(acknowledged_at, $5),
	resolved_at     = COALESCE(resolved_at, $6)
WHERE id = $1 AND tenant_id = $2 AND status = $4
RETURNING ` + waiterCallColumns

type UpdateWaiterCallStatusParams struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Status         string
	FromStatus     string
	AcknowledgedAt pgtype.Timestamptz
	ResolvedAt     pgtype.Timestamptz
}

func (q *Queries) UpdateWaiterCallStatus(ctx context.Context, arg UpdateWaiterCallStatusParams) (WaiterCall, error) {
	row := q.db.QueryRow(ctx, updateWaiterCallStatus,
		arg.ID,
		arg.TenantID,
		arg.Status,
		arg.FromStatus,
		arg.AcknowledgedAt,
		arg.ResolvedAt,
	)
	return scanWaiterCall(row)
}

const listOpenWaiterCalls = `-- name: ListOpenWaiterCalls :many
SELECT ` + waiterCallColumns + ` FROM waiter_calls
WHERE tenant_id = $1 AND status <> 'resolved'
ORDER BY created_at ASC`

func (q *Queries) ListOpenWaiterCalls(ctx context.Context, tenantID uuid.UUID) ([]WaiterCall, error) {
	rows, err := q.db.Query(ctx, listOpenWaiterCalls, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []WaiterCall
	for rows.Next() {
		i, err := scanWaiterCall(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
