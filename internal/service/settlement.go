package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/billing"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/lifecycle"
	"github.com/tableflow/api/internal/printer"
	"github.com/tableflow/api/internal/sequence"
)

const maxInvoiceNumberRetries = 3

var hundred = decimal.NewFromInt(100)

// SettlementStore adds invoice access to OrderStore.
type SettlementStore interface {
	OrderStore
	GetInvoiceByOrder(ctx context.Context, arg database.GetInvoiceByOrderParams) (database.Invoice, error)
	CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
}

// NewSettlementStore creates a SettlementStore from a DBTX (pool or tx).
type NewSettlementStore func(db database.DBTX) SettlementStore

// SettleRequest is a payment for an order. Split must be set exactly when
// PaymentMethod is split.
type SettleRequest struct {
	TenantID        uuid.UUID
	OrderID         uuid.UUID
	Actor           Actor
	PaymentMethod   string
	DiscountPercent decimal.Decimal
	Split           *billing.SplitAmounts
	Notes           string
}

// SettleResult is the completed order and its invoice. AlreadySettled means
// the order had been paid before and nothing was written.
type SettleResult struct {
	Order          database.Order
	Invoice        database.Invoice
	AlreadySettled bool
	PrintNotice    string
}

// invoiceLine is the snapshot stored in invoices.items.
type invoiceLine struct {
	Name      string          `json:"name"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SettlementService turns a served order into an invoice and a completed,
// paid order in one transaction.
type SettlementService struct {
	db         DB
	newStore   NewSettlementStore
	seq        sequence.Sequencer
	printQueue PrintQueue
	sessions   SessionObserver
	now        func() time.Time
}

// NewSettlementService creates a new SettlementService. printQueue and
// sessions may be nil.
func NewSettlementService(db DB, newStore NewSettlementStore, seq sequence.Sequencer, printQueue PrintQueue, sessions SessionObserver) *SettlementService {
	return &SettlementService{
		db:         db,
		newStore:   newStore,
		seq:        seq,
		printQueue: printQueue,
		sessions:   sessions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func validPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodUPI, enum.PaymentMethodCard,
		enum.PaymentMethodWallet, enum.PaymentMethodSplit:
		return true
	}
	return false
}

// Settle records the payment. Settling an order twice returns the first
// invoice. Retries up to maxInvoiceNumberRetries times when the invoice number
// is already taken.
func (s *SettlementService) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	if err := lifecycle.Authorize(lifecycle.Completed, req.Actor.Role); err != nil {
		return nil, err
	}
	if !validPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}
	if req.DiscountPercent.IsNegative() || req.DiscountPercent.GreaterThan(hundred) {
		return nil, ErrInvalidDiscount
	}
	if req.PaymentMethod == enum.PaymentMethodSplit {
		if req.Split == nil {
			return nil, ErrSplitRequired
		}
		if req.Split.Cash.IsNegative() || req.Split.UPI.IsNegative() || req.Split.Card.IsNegative() {
			return nil, ErrInvalidSplit
		}
	} else if req.Split != nil {
		return nil, ErrSplitNotAllowed
	}

	var (
		result  *SettleResult
		lastErr error
	)
	for attempt := 0; attempt < maxInvoiceNumberRetries; attempt++ {
		res, err := s.settleTx(ctx, req)
		if err == nil {
			result = res
			break
		}
		if isInvoiceNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if result == nil {
		return nil, lastErr
	}
	if result.AlreadySettled {
		return result, nil
	}

	if s.sessions != nil {
		s.sessions.OnTransition(ctx, result.Order)
	}
	result.PrintNotice = s.enqueueReceipt(ctx, result.Order, result.Invoice)
	return result, nil
}

func (s *SettlementService) settleTx(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, database.GetOrderParams{ID: req.OrderID, TenantID: req.TenantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	existing, err := store.GetInvoiceByOrder(ctx, database.GetInvoiceByOrderParams{OrderID: order.ID, TenantID: req.TenantID})
	if err == nil {
		return &SettleResult{Order: order, Invoice: existing, AlreadySettled: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	now := s.now()
	// Fail fast on unpayable statuses before touching the sequence.
	if _, err := lifecycle.Apply(lifecycle.Status(order.Status), lifecycle.Completed, now); err != nil {
		return nil, err
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	discount, total := billing.ApplyDiscount(order.TotalAmount, req.DiscountPercent)
	notes := strings.TrimSpace(req.Notes)
	if req.Split != nil {
		if err := billing.ValidateSplit(total, *req.Split); err != nil {
			return nil, err
		}
		notes = strings.TrimSpace(req.Split.Note() + "\n" + notes)
	}

	tenant, err := store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	seq, err := s.seq.Next(ctx, req.TenantID, now)
	if err != nil {
		return nil, fmt.Errorf("next invoice sequence: %w", err)
	}

	lines := make([]invoiceLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, invoiceLine{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Subtotal: it.Subtotal})
	}
	snapshot, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal invoice items: %w", err)
	}

	invoice, err := store.CreateInvoice(ctx, database.CreateInvoiceParams{
		TenantID:        req.TenantID,
		OrderID:         order.ID,
		InvoiceNumber:   billing.InvoiceNumber(billing.InvoicePrefix(tenant.InvoicePrefix, tenant.ID), now, seq),
		Items:           snapshot,
		Subtotal:        order.Subtotal,
		TaxAmount:       order.TaxAmount,
		ServiceCharge:   order.ServiceCharge,
		DiscountPercent: req.DiscountPercent,
		DiscountAmount:  discount,
		TotalAmount:     total,
		PaymentMethod:   req.PaymentMethod,
		Notes:           text(notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	completed, err := completeAfterPayment(ctx, store, order, req.PaymentMethod, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &SettleResult{Order: completed, Invoice: invoice}, nil
}

func (s *SettlementService) enqueueReceipt(ctx context.Context, order database.Order, invoice database.Invoice) string {
	if s.printQueue == nil {
		return ""
	}
	store := s.newStore(s.db)
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		log.Printf("WARNING: billing receipt for order %s: list items: %v", order.ID, err)
		return "receipt was not queued, reprint from the printer queue"
	}
	receipt := printer.BillingReceipt(order, invoice, items, tableLabel(ctx, store, order))
	if _, _, err := s.printQueue.Enqueue(ctx, order.TenantID, order.ID, receipt); err != nil {
		log.Printf("WARNING: billing receipt for order %s: enqueue: %v", order.ID, err)
		return "receipt was not queued, reprint from the printer queue"
	}
	return ""
}

// GetInvoice returns the invoice of a settled order.
func (s *SettlementService) GetInvoice(ctx context.Context, tenantID, orderID uuid.UUID) (database.Invoice, error) {
	inv, err := s.newStore(s.db).GetInvoiceByOrder(ctx, database.GetInvoiceByOrderParams{OrderID: orderID, TenantID: tenantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Invoice{}, ErrInvoiceNotFound
		}
		return database.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}
