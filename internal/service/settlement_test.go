package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/billing"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/lifecycle"
)

type settleFixture struct {
	svc      *SettlementService
	store    *mockStore
	db       *mockDB
	seq      *fixedSequencer
	queue    *mockQueue
	sessions *mockSessions
}

func newSettleFixture() *settleFixture {
	f := &settleFixture{
		store:    newMockStore(),
		db:       &mockDB{tx: &mockTx{}},
		seq:      &fixedSequencer{next: []int64{1, 2, 3}},
		queue:    &mockQueue{},
		sessions: &mockSessions{},
	}
	newStore := func(db database.DBTX) SettlementStore { return f.store }
	f.svc = NewSettlementService(f.db, newStore, f.seq, f.queue, f.sessions)
	f.svc.now = func() time.Time { return time.Date(2026, 10, 17, 21, 30, 0, 0, time.UTC) }
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSettle_DiscountOnServedOrder(t *testing.T) {
	f := newSettleFixture()
	table := f.store.addTable("T4")
	o := f.store.addOrder(enum.OrderStatusServed, table.ID)

	res, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID:        f.store.tenant.ID,
		OrderID:         o.ID,
		Actor:           biller,
		PaymentMethod:   enum.PaymentMethodCash,
		DiscountPercent: dec("10"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inv := res.Invoice
	if !inv.DiscountAmount.Equal(dec("2.10")) {
		t.Errorf("discount = %s, want 2.10", inv.DiscountAmount)
	}
	if !inv.TotalAmount.Equal(dec("18.90")) {
		t.Errorf("total = %s, want 18.90", inv.TotalAmount)
	}
	if inv.InvoiceNumber != "INV-TRT-20261017-0001" {
		t.Errorf("invoice number = %q", inv.InvoiceNumber)
	}
	var lines []invoiceLine
	if err := json.Unmarshal(inv.Items, &lines); err != nil || len(lines) != 1 || lines[0].Name != "Pizza" {
		t.Errorf("item snapshot = %s (%v)", inv.Items, err)
	}

	if res.Order.Status != enum.OrderStatusCompleted || res.Order.PaymentStatus != enum.PaymentStatusPaid {
		t.Errorf("order = %s/%s, want completed/paid", res.Order.Status, res.Order.PaymentStatus)
	}
	if f.db.tx.commits != 1 {
		t.Errorf("commits = %d, want 1", f.db.tx.commits)
	}
	if len(f.sessions.transitions) != 1 || f.sessions.transitions[0] != enum.OrderStatusCompleted {
		t.Errorf("session tracker not told about completion: %v", f.sessions.transitions)
	}
	if len(f.queue.receipts) != 1 || f.queue.receipts[0].Type != enum.ReceiptBilling {
		t.Errorf("want one billing receipt, got %+v", f.queue.receipts)
	}
}

func TestSettle_SplitPayment(t *testing.T) {
	t.Run("exact split accepted", func(t *testing.T) {
		f := newSettleFixture()
		o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

		res, err := f.svc.Settle(context.Background(), SettleRequest{
			TenantID:        f.store.tenant.ID,
			OrderID:         o.ID,
			Actor:           biller,
			PaymentMethod:   enum.PaymentMethodSplit,
			DiscountPercent: dec("10"),
			Split:           &billing.SplitAmounts{Cash: dec("10.00"), UPI: dec("8.90"), Card: dec("0")},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(res.Invoice.Notes.String, "cash 10.00, upi 8.90, card 0.00") {
			t.Errorf("notes = %q", res.Invoice.Notes.String)
		}
	})

	t.Run("short split rejected", func(t *testing.T) {
		f := newSettleFixture()
		o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

		_, err := f.svc.Settle(context.Background(), SettleRequest{
			TenantID:        f.store.tenant.ID,
			OrderID:         o.ID,
			Actor:           biller,
			PaymentMethod:   enum.PaymentMethodSplit,
			DiscountPercent: dec("10"),
			Split:           &billing.SplitAmounts{Cash: dec("10.00"), UPI: dec("8.00")},
		})
		var sme *billing.SplitMismatchError
		if !errors.As(err, &sme) {
			t.Fatalf("err = %v, want SplitMismatchError", err)
		}
		if !strings.Contains(err.Error(), "short by 0.90") {
			t.Errorf("message = %q", err.Error())
		}
		if f.store.status(o.ID) != enum.OrderStatusServed {
			t.Error("order must stay unsettled")
		}
		if len(f.store.createdInvoices) != 0 || f.db.tx.commits != 0 {
			t.Error("rejected split must not write an invoice")
		}
		if f.seq.calls != 0 {
			t.Error("rejected split must not consume an invoice number")
		}
	})
}

func TestSettle_RequestValidation(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

	tests := []struct {
		name string
		req  SettleRequest
		want error
	}{
		{"unknown method", SettleRequest{PaymentMethod: "cheque"}, ErrInvalidPaymentMethod},
		{"discount over 100", SettleRequest{PaymentMethod: enum.PaymentMethodCash, DiscountPercent: dec("101")}, ErrInvalidDiscount},
		{"negative discount", SettleRequest{PaymentMethod: enum.PaymentMethodCash, DiscountPercent: dec("-1")}, ErrInvalidDiscount},
		{"split without amounts", SettleRequest{PaymentMethod: enum.PaymentMethodSplit}, ErrSplitRequired},
		{"amounts without split", SettleRequest{PaymentMethod: enum.PaymentMethodCard, Split: &billing.SplitAmounts{}}, ErrSplitNotAllowed},
		{"negative split", SettleRequest{PaymentMethod: enum.PaymentMethodSplit, Split: &billing.SplitAmounts{Cash: dec("-5")}}, ErrInvalidSplit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.TenantID = f.store.tenant.ID
			tt.req.OrderID = o.ID
			tt.req.Actor = biller
			if _, err := f.svc.Settle(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if f.db.begins != 0 {
		t.Error("invalid requests must not open a transaction")
	}
}

func TestSettle_OnlyBillingOrAdmin(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

	_, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: waiter, PaymentMethod: enum.PaymentMethodCash,
	})
	var fte *lifecycle.ForbiddenTransitionError
	if !errors.As(err, &fte) {
		t.Fatalf("err = %v, want ForbiddenTransitionError", err)
	}
}

func TestSettle_UnservedOrderRejected(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusPreparing, uuid.Nil)

	_, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCash,
	})
	var ite *lifecycle.InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("err = %v, want InvalidTransitionError", err)
	}
	if f.seq.calls != 0 {
		t.Error("sequence consumed for an unpayable order")
	}
}

func TestSettle_ReadyWalkInAccepted(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusReady, uuid.Nil)

	res, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodUPI,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Order.Status != enum.OrderStatusCompleted {
		t.Errorf("status = %s", res.Order.Status)
	}
}

func TestSettle_SecondSettleReturnsFirstInvoice(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)
	req := SettleRequest{TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCash}

	first, err := f.svc.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("first settle: %v", err)
	}
	second, err := f.svc.Settle(context.Background(), req)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if !second.AlreadySettled {
		t.Error("second settle should report AlreadySettled")
	}
	if second.Invoice.InvoiceNumber != first.Invoice.InvoiceNumber {
		t.Errorf("invoice changed: %s vs %s", second.Invoice.InvoiceNumber, first.Invoice.InvoiceNumber)
	}
	if len(f.store.createdInvoices) != 1 || len(f.queue.receipts) != 1 {
		t.Error("duplicate settle must not write or print again")
	}
}

func TestSettle_RetriesTakenInvoiceNumber(t *testing.T) {
	f := newSettleFixture()
	f.store.numbers[invoiceKey{tenantID: f.store.tenant.ID, number: "INV-TRT-20261017-0001"}] = true
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

	res, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Invoice.InvoiceNumber != "INV-TRT-20261017-0002" {
		t.Errorf("invoice number = %q, want the next free one", res.Invoice.InvoiceNumber)
	}
	if f.db.begins != 2 {
		t.Errorf("begins = %d, want 2", f.db.begins)
	}
}

func TestSettle_SamePrefixOtherTenantDoesNotConflict(t *testing.T) {
	f := newSettleFixture()
	// Another tenant configured the same prefix and already issued 0001 today.
	f.store.numbers[invoiceKey{tenantID: uuid.New(), number: "INV-TRT-20261017-0001"}] = true
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

	res, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Invoice.InvoiceNumber != "INV-TRT-20261017-0001" {
		t.Errorf("invoice number = %q, want INV-TRT-20261017-0001", res.Invoice.InvoiceNumber)
	}
	if f.db.begins != 1 {
		t.Errorf("begins = %d, want 1", f.db.begins)
	}
}

func TestIsInvoiceNumberConflict(t *testing.T) {
	scoped := &pgconn.PgError{Code: "23505", ConstraintName: "invoices_tenant_id_invoice_number_key"}
	if !isInvoiceNumberConflict(fmt.Errorf("create invoice: %w", scoped)) {
		t.Error("tenant-scoped invoice number violation not recognised")
	}
	if isInvoiceNumberConflict(&pgconn.PgError{Code: "23505", ConstraintName: "invoices_order_id_key"}) {
		t.Error("order uniqueness is not an invoice number conflict")
	}
}

func TestSettle_InvoiceFailureRollsBack(t *testing.T) {
	f := newSettleFixture()
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)
	f.store.createInvoiceFn = func(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
		return database.Invoice{}, errors.New("disk full")
	}

	_, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCash,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.store.status(o.ID) != enum.OrderStatusServed || len(f.store.completed) != 0 {
		t.Error("order must not complete without an invoice")
	}
	if f.db.tx.commits != 0 || f.db.tx.rollbacks == 0 {
		t.Errorf("commits = %d, rollbacks = %d", f.db.tx.commits, f.db.tx.rollbacks)
	}
	if len(f.sessions.transitions) != 0 || len(f.queue.receipts) != 0 {
		t.Error("no side effects for a failed settlement")
	}
}

func TestSettle_PrinterFailureIsANotice(t *testing.T) {
	f := newSettleFixture()
	f.queue.err = errors.New("queue down")
	o := f.store.addOrder(enum.OrderStatusServed, uuid.Nil)

	res, err := f.svc.Settle(context.Background(), SettleRequest{
		TenantID: f.store.tenant.ID, OrderID: o.ID, Actor: biller, PaymentMethod: enum.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("print failure must not fail settlement: %v", err)
	}
	if res.PrintNotice == "" {
		t.Error("expected a print notice")
	}
	if res.Order.Status != enum.OrderStatusCompleted {
		t.Errorf("status = %s", res.Order.Status)
	}
}

func TestGetInvoice_NotFound(t *testing.T) {
	f := newSettleFixture()
	if _, err := f.svc.GetInvoice(context.Background(), f.store.tenant.ID, uuid.New()); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("err = %v, want ErrInvoiceNotFound", err)
	}
}
