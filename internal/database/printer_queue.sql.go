package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const printJobColumns = `id, tenant_id, order_id, receipt_type, payload, status, attempts,
	error_message, next_attempt_at, printed_at, created_at, updated_at`

func scanPrintJob(row interface{ Scan(...interface{}) error }) (PrinterQueueEntry, error) {
	var i PrinterQueueEntry
	err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.OrderID,
		&i.ReceiptType,
		&i.Payload,
		&i.Status,
		&i.Attempts,
		&i.ErrorMessage,
		&i.NextAttemptAt,
		&i.PrintedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// EnqueuePrintJob returns pgx.ErrNoRows when an active entry for the same
// order and receipt type already exists.
const enqueuePrintJob = `-- name: EnqueuePrintJob :one
INSERT INTO printer_queue (tenant_id, order_id, receipt_type, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (order_id, receipt_type) WHERE status IN ('queued', 'processing') DO NOTHING
RETURNING ` + printJobColumns

type EnqueuePrintJobParams struct {
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	ReceiptType string
	Payload     []byte
}

func (q *Queries) EnqueuePrintJob(ctx context.Context, arg EnqueuePrintJobParams) (PrinterQueueEntry, error) {
	return scanPrintJob(q.db.QueryRow(ctx, enqueuePrintJob, arg.TenantID, arg.OrderID, arg.ReceiptType, arg.Payload))
}

const getActivePrintJob = `-- name: GetActivePrintJob :one
SELECT ` + printJobColumns + ` FROM printer_queue
WHERE order_id = $1 AND receipt_type = $2 AND status IN ('queued', 'processing')`

type GetActivePrintJobParams struct {
	OrderID     uuid.UUID
	ReceiptType string
}

func (q *Queries) GetActivePrintJob(ctx context.Context, arg GetActivePrintJobParams) (PrinterQueueEntry, error) {
	return scanPrintJob(q.db.QueryRow(ctx, getActivePrintJob, arg.OrderID, arg.ReceiptType))
}

const getPrintJob = `-- name: GetPrintJob :one
SELECT ` + printJobColumns + ` FROM printer_queue WHERE id = $1 AND tenant_id = $2`

type GetPrintJobParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) GetPrintJob(ctx context.Context, arg GetPrintJobParams) (PrinterQueueEntry, error) {
	return scanPrintJob(q.db.QueryRow(ctx, getPrintJob, arg.ID, arg.TenantID))
}

// ClaimPrintJobs moves due queued entries, and processing entries whose lease
// ran out, to processing and counts the attempt.
const claimPrintJobs = `-- name: ClaimPrintJobs :many
UPDATE printer_queue SET
	status          = 'processing',
	attempts        = attempts + 1,
	next_attempt_at = $2::timestamptz + make_interval(secs => $3::float8),
	updated_at      = $2
WHERE id IN (
	SELECT id FROM printer_queue
	WHERE (status = 'queued' AND next_attempt_at <= $2)
	   OR (status = 'processing' AND next_attempt_at <= $2)
	ORDER BY next_attempt_at, created_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + printJobColumns

type ClaimPrintJobsParams struct {
	Limit int32
	Now   time.Time
	Lease time.Duration
}

func (q *Queries) ClaimPrintJobs(ctx context.Context, arg ClaimPrintJobsParams) ([]PrinterQueueEntry, error) {
	rows, err := q.db.Query(ctx, claimPrintJobs, arg.Limit, arg.Now, arg.Lease.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PrinterQueueEntry
	for rows.Next() {
		i, err := scanPrintJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const updatePrintJobResult = `-- name: UpdatePrintJobResult :one
UPDATE printer_queue SET
	status          = $2,
	error_message   = $3,
	next_attempt_at = COALESCE($4, next_attempt_at),
	printed_at      = $5,
	updated_at      = now()
WHERE id = $1 AND status = 'processing'
RETURNING ` + printJobColumns

type UpdatePrintJobResultParams struct {
	ID            uuid.UUID
	Status        string
	ErrorMessage  pgtype.Text
	NextAttemptAt pgtype.Timestamptz
	PrintedAt     pgtype.Timestamptz
}

func (q *Queries) UpdatePrintJobResult(ctx context.Context, arg UpdatePrintJobResultParams) (PrinterQueueEntry, error) {
	row := q.db.QueryRow(ctx, updatePrintJobResult,
		arg.ID,
		arg.Status,
		arg.ErrorMessage,
		arg.NextAttemptAt,
		arg.PrintedAt,
	)
	return scanPrintJob(row)
}

const retryFailedPrintJob = `-- name: RetryFailedPrintJob :one
UPDATE printer_queue SET
	status          = 'queued',
	attempts        = 0,
	error_message   = NULL,
	next_attempt_at = now(),
	updated_at      = now()
WHERE id = $1 AND tenant_id = $2 AND status = 'failed'
RETURNING ` + printJobColumns

type RetryFailedPrintJobParams struct {
	ID       uuid.UUID
	TenantID uuid.UUID
}

func (q *Queries) RetryFailedPrintJob(ctx context.Context, arg RetryFailedPrintJobParams) (PrinterQueueEntry, error) {
	return scanPrintJob(q.db.QueryRow(ctx, retryFailedPrintJob, arg.ID, arg.TenantID))
}

const listPrintJobs = `-- name: ListPrintJobs :many
SELECT ` + printJobColumns + ` FROM printer_queue
WHERE tenant_id = $1
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

type ListPrintJobsParams struct {
	TenantID uuid.UUID
	Status   pgtype.Text
	Limit    int32
	Offset   int32
}

func (q *Queries) ListPrintJobs(ctx context.Context, arg ListPrintJobsParams) ([]PrinterQueueEntry, error) {
	rows, err := q.db.Query(ctx, listPrintJobs, arg.TenantID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PrinterQueueEntry
	for rows.Next() {
		i, err := scanPrintJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
