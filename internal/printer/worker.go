package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
)

// Device prints one receipt. Any error counts as a failed attempt.
type Device interface {
	Print(ctx context.Context, entry database.PrinterQueueEntry, r Receipt) error
}

type Worker struct {
	store  Store
	device Device
	policy Policy
	now    func() time.Time
}

func NewWorker(store Store, device Device, policy Policy) *Worker {
	return &Worker{store: store, device: device, policy: policy, now: time.Now}
}

// Run polls the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.policy.PollInterval)
	defer ticker.Stop()

	log.Printf("printer worker started (poll %s, max attempts %d)", w.policy.PollInterval, w.policy.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			log.Printf("printer worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				log.Printf("ERROR: printer poll: %v", err)
			}
		}
	}
}

// ProcessDue claims due entries and attempts each once. It returns the number
// of entries handled.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	entries, err := w.store.ClaimPrintJobs(ctx, database.ClaimPrintJobsParams{
		Limit: w.policy.BatchSize,
		Now:   w.now(),
		Lease: w.policy.Lease,
	})
	if err != nil {
		return 0, fmt.Errorf("claim print jobs: %w", err)
	}
	for _, e := range entries {
		w.deliver(ctx, e)
	}
	return len(entries), nil
}

func (w *Worker) deliver(ctx context.Context, e database.PrinterQueueEntry) {
	var printErr error
	if e.Attempts > w.policy.MaxAttempts {
		// Reclaimed after a lease expiry on the last attempt.
		printErr = fmt.Errorf("lease expired on final attempt")
	} else {
		var r Receipt
		if err := json.Unmarshal(e.Payload, &r); err != nil {
			printErr = fmt.Errorf("decode payload: %w", err)
			e.Attempts = w.policy.MaxAttempts
		} else {
			printErr = w.device.Print(ctx, e, r)
		}
	}

	if printErr == nil {
		w.succeed(ctx, e)
		return
	}
	w.fail(ctx, e, printErr)
}

func (w *Worker) succeed(ctx context.Context, e database.PrinterQueueEntry) {
	now := w.now()
	if _, err := w.store.UpdatePrintJobResult(ctx, database.UpdatePrintJobResultParams{
		ID:        e.ID,
		Status:    enum.PrintStatusSuccess,
		PrintedAt: pgtype.Timestamptz{Time: now, Valid: true},
	}); err != nil {
		log.Printf("ERROR: mark print job %s success: %v", e.ID, err)
		return
	}
	if e.ReceiptType == enum.ReceiptBilling {
		if err := w.store.MarkInvoicePrinted(ctx, database.MarkInvoicePrintedParams{
			OrderID:  e.OrderID,
			TenantID: e.TenantID,
		}); err != nil {
			log.Printf("ERROR: mark invoice printed for order %s: %v", e.OrderID, err)
		}
	}
}

func (w *Worker) fail(ctx context.Context, e database.PrinterQueueEntry, printErr error) {
	arg := database.UpdatePrintJobResultParams{
		ID:           e.ID,
		ErrorMessage: pgtype.Text{String: printErr.Error(), Valid: true},
	}
	if e.Attempts < w.policy.MaxAttempts {
		arg.Status = enum.PrintStatusQueued
		arg.NextAttemptAt = pgtype.Timestamptz{Time: w.now().Add(w.policy.delay(e.Attempts)), Valid: true}
		log.Printf("WARNING: print job %s attempt %d/%d failed: %v", e.ID, e.Attempts, w.policy.MaxAttempts, printErr)
	} else {
		arg.Status = enum.PrintStatusFailed
		df := &DeliveryFailure{EntryID: e.ID, ReceiptType: e.ReceiptType, Attempts: e.Attempts, Err: printErr}
		arg.ErrorMessage = pgtype.Text{String: df.Error(), Valid: true}
		log.Printf("ERROR: %v", df)
	}
	if _, err := w.store.UpdatePrintJobResult(ctx, arg); err != nil {
		log.Printf("ERROR: record print job %s failure: %v", e.ID, err)
	}
}
