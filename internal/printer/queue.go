// Package printer delivers kitchen tickets and billing receipts through a
// persistent retry queue.
package printer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/transport"
)

var (
	ErrEntryNotFound = errors.New("printer queue entry not found")
	ErrNotRetryable  = errors.New("only failed entries can be retried")
	ErrReceiptType   = errors.New("invalid receipt type")
)

// Store is the queue's view of the database. Satisfied by *database.Queries.
type Store interface {
	EnqueuePrintJob(ctx context.Context, arg database.EnqueuePrintJobParams) (database.PrinterQueueEntry, error)
	GetActivePrintJob(ctx context.Context, arg database.GetActivePrintJobParams) (database.PrinterQueueEntry, error)
	GetPrintJob(ctx context.Context, arg database.GetPrintJobParams) (database.PrinterQueueEntry, error)
	ClaimPrintJobs(ctx context.Context, arg database.ClaimPrintJobsParams) ([]database.PrinterQueueEntry, error)
	UpdatePrintJobResult(ctx context.Context, arg database.UpdatePrintJobResultParams) (database.PrinterQueueEntry, error)
	RetryFailedPrintJob(ctx context.Context, arg database.RetryFailedPrintJobParams) (database.PrinterQueueEntry, error)
	ListPrintJobs(ctx context.Context, arg database.ListPrintJobsParams) ([]database.PrinterQueueEntry, error)
	MarkInvoicePrinted(ctx context.Context, arg database.MarkInvoicePrintedParams) error
}

// DeliveryFailure is recorded on an entry that used up its attempts.
type DeliveryFailure struct {
	EntryID     uuid.UUID
	ReceiptType string
	Attempts    int32
	Err         error
}

func (e *DeliveryFailure) Error() string {
	return fmt.Sprintf("%s receipt %s failed after %d attempts: %v", e.ReceiptType, e.EntryID, e.Attempts, e.Err)
}

func (e *DeliveryFailure) Unwrap() error { return e.Err }

type Queue struct {
	store Store
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue adds a receipt for orderID. If a queued or processing entry for the
// same order and receipt type exists, that entry is returned with
// coalesced=true and nothing is inserted.
func (q *Queue) Enqueue(ctx context.Context, tenantID, orderID uuid.UUID, r Receipt) (entry database.PrinterQueueEntry, coalesced bool, err error) {
	if r.Type != enum.ReceiptKitchen && r.Type != enum.ReceiptBilling {
		return database.PrinterQueueEntry{}, false, ErrReceiptType
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return database.PrinterQueueEntry{}, false, fmt.Errorf("marshal receipt: %w", err)
	}

	// Two passes cover the window where the active entry finishes between the
	// conflicting insert and the lookup.
	for i := 0; i < 2; i++ {
		entry, err = q.store.EnqueuePrintJob(ctx, database.EnqueuePrintJobParams{
			TenantID:    tenantID,
			OrderID:     orderID,
			ReceiptType: r.Type,
			Payload:     payload,
		})
		if err == nil {
			return entry, false, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.PrinterQueueEntry{}, false, fmt.Errorf("enqueue %s receipt: %w", r.Type, err)
		}

		entry, err = q.store.GetActivePrintJob(ctx, database.GetActivePrintJobParams{
			OrderID:     orderID,
			ReceiptType: r.Type,
		})
		if err == nil {
			return entry, true, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return database.PrinterQueueEntry{}, false, fmt.Errorf("get active %s receipt: %w", r.Type, err)
		}
	}
	return database.PrinterQueueEntry{}, false, fmt.Errorf("enqueue %s receipt: active entry vanished", r.Type)
}

// Retry puts a failed entry back in the queue with a fresh attempt budget.
func (q *Queue) Retry(ctx context.Context, tenantID, entryID uuid.UUID) (database.PrinterQueueEntry, error) {
	entry, err := q.store.RetryFailedPrintJob(ctx, database.RetryFailedPrintJobParams{ID: entryID, TenantID: tenantID})
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return database.PrinterQueueEntry{}, fmt.Errorf("retry print job: %w", err)
	}
	if _, err := q.store.GetPrintJob(ctx, database.GetPrintJobParams{ID: entryID, TenantID: tenantID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.PrinterQueueEntry{}, ErrEntryNotFound
		}
		return database.PrinterQueueEntry{}, fmt.Errorf("get print job: %w", err)
	}
	return database.PrinterQueueEntry{}, ErrNotRetryable
}

// List returns the tenant's entries, newest first. An empty status lists all.
func (q *Queue) List(ctx context.Context, tenantID uuid.UUID, status string, limit, offset int32) ([]database.PrinterQueueEntry, error) {
	arg := database.ListPrintJobsParams{TenantID: tenantID, Limit: limit, Offset: offset}
	if status != "" {
		arg.Status = pgtype.Text{String: status, Valid: true}
	}
	return q.store.ListPrintJobs(ctx, arg)
}

// Policy is the per-entry retry budget, independent of transport retries.
type Policy struct {
	MaxAttempts  int32
	Backoff      []time.Duration
	PollInterval time.Duration
	Lease        time.Duration
	BatchSize    int32
}

// leaseMargin is added on top of a device's worst-case call time so a live
// worker always finishes before its lease can be reclaimed.
const leaseMargin = 30 * time.Second

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		Backoff:      []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		PollInterval: time.Second,
		Lease:        transport.DefaultPolicy().Budget() + leaseMargin,
		BatchSize:    10,
	}
}

// WithDeviceBudget raises the lease so it outlasts a device call that may take
// up to budget.
func (p Policy) WithDeviceBudget(budget time.Duration) Policy {
	if floor := budget + leaseMargin; p.Lease < floor {
		p.Lease = floor
	}
	return p
}

// delay is the wait before the attempt following attempt n (1-based).
func (p Policy) delay(n int32) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	i := int(n) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Backoff) {
		i = len(p.Backoff) - 1
	}
	return p.Backoff[i]
}
