package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/printer"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr error
	commits   int
	rollbacks int
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits++
	return nil
}
func (m *mockTx) Rollback(ctx context.Context) error { m.rollbacks++; return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockDB implements DB. Queries go through the mock store, never the pool.
type mockDB struct {
	tx       *mockTx
	beginErr error
	begins   int
}

func (m *mockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	m.begins++
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return m.tx, nil
}
func (m *mockDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	panic("not implemented")
}

// mockStore implements SettlementStore over in-memory rows. The Fn fields
// override individual queries.
// invoiceKey mirrors the (tenant_id, invoice_number) unique constraint.
type invoiceKey struct {
	tenantID uuid.UUID
	number   string
}

type mockStore struct {
	mu sync.Mutex

	tenant   database.Tenant
	tables   map[uuid.UUID]database.RestaurantTable
	menu     map[uuid.UUID]database.MenuItem
	orders   map[uuid.UUID]*database.Order
	items    map[uuid.UUID][]database.OrderItem
	invoices map[uuid.UUID]database.Invoice
	numbers  map[invoiceKey]bool
	nextNum  int32

	createOrderFn       func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	updateOrderStatusFn func(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	createInvoiceFn     func(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error)
	listItemsFn         func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)

	createdInvoices []database.CreateInvoiceParams
	completed       []database.CompleteOrderPaymentParams
}

func newMockStore() *mockStore {
	return &mockStore{
		tenant: database.Tenant{
			ID:                uuid.New(),
			Name:              "Trattoria",
			Slug:              "trattoria",
			Currency:          "INR",
			TaxRate:           decimal.NewFromInt(5),
			ServiceChargeRate: decimal.Zero,
			InvoicePrefix:     "TRT",
			IsActive:          true,
		},
		tables:   map[uuid.UUID]database.RestaurantTable{},
		menu:     map[uuid.UUID]database.MenuItem{},
		orders:   map[uuid.UUID]*database.Order{},
		items:    map[uuid.UUID][]database.OrderItem{},
		invoices: map[uuid.UUID]database.Invoice{},
		numbers:  map[invoiceKey]bool{},
		nextNum:  1,
	}
}

func (m *mockStore) addTable(label string) database.RestaurantTable {
	t := database.RestaurantTable{ID: uuid.New(), TenantID: m.tenant.ID, Label: label, Status: enum.TableStatusIdle, IsActive: true}
	m.tables[t.ID] = t
	return t
}

func (m *mockStore) addMenuItem(name, price string, available bool) database.MenuItem {
	mi := database.MenuItem{
		ID:          uuid.New(),
		TenantID:    m.tenant.ID,
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: available,
	}
	m.menu[mi.ID] = mi
	return mi
}

// addOrder seeds an order in status with total 21.00 and one line.
func (m *mockStore) addOrder(status string, table uuid.UUID) database.Order {
	o := database.Order{
		ID:            uuid.New(),
		TenantID:      m.tenant.ID,
		OrderNumber:   m.nextNum,
		Status:        status,
		PaymentStatus: enum.PaymentStatusPending,
		Subtotal:      decimal.RequireFromString("20.00"),
		TaxAmount:     decimal.RequireFromString("1.00"),
		ServiceCharge: decimal.Zero,
		TotalAmount:   decimal.RequireFromString("21.00"),
	}
	if table != uuid.Nil {
		o.TableID = pgtype.UUID{Bytes: table, Valid: true}
	}
	m.nextNum++
	m.orders[o.ID] = &o
	m.items[o.ID] = []database.OrderItem{{
		ID:        uuid.New(),
		OrderID:   o.ID,
		Name:      "Pizza",
		UnitPrice: decimal.RequireFromString("10.00"),
		Quantity:  2,
		Subtotal:  decimal.RequireFromString("20.00"),
	}}
	return o
}

func (m *mockStore) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *mockStore) GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error) {
	if id != m.tenant.ID {
		return database.Tenant{}, pgx.ErrNoRows
	}
	return m.tenant, nil
}

func (m *mockStore) GetTable(ctx context.Context, arg database.GetTableParams) (database.RestaurantTable, error) {
	t, ok := m.tables[arg.ID]
	if !ok || t.TenantID != arg.TenantID {
		return database.RestaurantTable{}, pgx.ErrNoRows
	}
	return t, nil
}

func (m *mockStore) GetMenuItemsForOrder(ctx context.Context, arg database.GetMenuItemsForOrderParams) ([]database.MenuItem, error) {
	var out []database.MenuItem
	for _, id := range arg.IDs {
		if mi, ok := m.menu[id]; ok && mi.TenantID == arg.TenantID {
			out = append(out, mi)
		}
	}
	return out, nil
}

func (m *mockStore) GetNextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int32, error) {
	return m.nextNum, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o := database.Order{
		ID:            uuid.New(),
		TenantID:      arg.TenantID,
		OrderNumber:   arg.OrderNumber,
		TableID:       arg.TableID,
		Status:        enum.OrderStatusPending,
		PaymentStatus: enum.PaymentStatusPending,
		Subtotal:      arg.Subtotal,
		TaxAmount:     arg.TaxAmount,
		ServiceCharge: arg.ServiceCharge,
		TotalAmount:   arg.TotalAmount,
		CustomerName:  arg.CustomerName,
		CustomerPhone: arg.CustomerPhone,
		Instructions:  arg.Instructions,
	}
	m.nextNum++
	m.orders[o.ID] = &o
	return o, nil
}

func (m *mockStore) CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := database.OrderItem{
		ID:                  uuid.New(),
		OrderID:             arg.OrderID,
		MenuItemID:          arg.MenuItemID,
		Name:                arg.Name,
		UnitPrice:           arg.UnitPrice,
		Quantity:            arg.Quantity,
		Subtotal:            arg.Subtotal,
		Status:              "pending",
		SpecialInstructions: arg.SpecialInstructions,
		Options:             arg.Options,
	}
	m.items[arg.OrderID] = append(m.items[arg.OrderID], it)
	return it, nil
}

func (m *mockStore) SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) error {
	t, ok := m.tables[arg.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.Status = arg.Status
	m.tables[arg.ID] = t
	return nil
}

func (m *mockStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.TenantID != arg.TenantID {
		return database.Order{}, pgx.ErrNoRows
	}
	return *o, nil
}

func (m *mockStore) GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	return m.GetOrder(ctx, arg)
}

func (m *mockStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.Order
	for _, o := range m.orders {
		if o.TenantID != arg.TenantID {
			continue
		}
		if arg.Status.Valid && o.Status != arg.Status.String {
			continue
		}
		if arg.TableID.Valid && o.TableID != arg.TableID {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listItemsFn != nil {
		return m.listItemsFn(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID], nil
}

func (m *mockStore) UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	if m.updateOrderStatusFn != nil {
		return m.updateOrderStatusFn(ctx, arg)
	}
	return m.applyStatus(arg)
}

// applyStatus mirrors the guarded UPDATE: no row unless status = FromStatus.
func (m *mockStore) applyStatus(arg database.UpdateOrderStatusParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	if !o.StartedPreparingAt.Valid {
		o.StartedPreparingAt = arg.StartedPreparingAt
	}
	if !o.ReadyAt.Valid {
		o.ReadyAt = arg.ReadyAt
	}
	if !o.ServedAt.Valid {
		o.ServedAt = arg.ServedAt
	}
	if !o.CancelledAt.Valid {
		o.CancelledAt = arg.CancelledAt
	}
	if arg.CancelReason.Valid {
		o.CancelReason = arg.CancelReason
	}
	return *o, nil
}

func (m *mockStore) CompleteOrderPayment(ctx context.Context, arg database.CompleteOrderPaymentParams) (database.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[arg.ID]
	if !ok || (o.Status != enum.OrderStatusServed && o.Status != enum.OrderStatusReady) {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusCompleted
	o.PaymentStatus = enum.PaymentStatusPaid
	o.PaymentMethod = pgtype.Text{String: arg.PaymentMethod, Valid: true}
	o.CompletedAt = arg.CompletedAt
	m.completed = append(m.completed, arg)
	return *o, nil
}

func (m *mockStore) GetInvoiceByOrder(ctx context.Context, arg database.GetInvoiceByOrderParams) (database.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invoices[arg.OrderID]
	if !ok {
		return database.Invoice{}, pgx.ErrNoRows
	}
	return inv, nil
}

func (m *mockStore) CreateInvoice(ctx context.Context, arg database.CreateInvoiceParams) (database.Invoice, error) {
	if m.createInvoiceFn != nil {
		return m.createInvoiceFn(ctx, arg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := invoiceKey{tenantID: arg.TenantID, number: arg.InvoiceNumber}
	if m.numbers[key] {
		return database.Invoice{}, &pgconn.PgError{Code: "23505", ConstraintName: "invoices_tenant_id_invoice_number_key"}
	}
	m.numbers[key] = true
	m.createdInvoices = append(m.createdInvoices, arg)
	inv := database.Invoice{
		ID:              uuid.New(),
		TenantID:        arg.TenantID,
		OrderID:         arg.OrderID,
		InvoiceNumber:   arg.InvoiceNumber,
		Items:           arg.Items,
		Subtotal:        arg.Subtotal,
		TaxAmount:       arg.TaxAmount,
		ServiceCharge:   arg.ServiceCharge,
		DiscountPercent: arg.DiscountPercent,
		DiscountAmount:  arg.DiscountAmount,
		TotalAmount:     arg.TotalAmount,
		PaymentMethod:   arg.PaymentMethod,
		Notes:           arg.Notes,
	}
	m.invoices[arg.OrderID] = inv
	return inv, nil
}

// mockQueue records enqueued receipts.
type mockQueue struct {
	err      error
	receipts []printer.Receipt
}

func (m *mockQueue) Enqueue(ctx context.Context, tenantID, orderID uuid.UUID, r printer.Receipt) (database.PrinterQueueEntry, bool, error) {
	if m.err != nil {
		return database.PrinterQueueEntry{}, false, m.err
	}
	m.receipts = append(m.receipts, r)
	return database.PrinterQueueEntry{ID: uuid.New(), TenantID: tenantID, OrderID: orderID, ReceiptType: r.Type}, false, nil
}

// mockSessions records what the session tracker was told.
type mockSessions struct {
	placed      []database.Order
	transitions []string
}

func (m *mockSessions) OnPlaced(ctx context.Context, order database.Order) {
	m.placed = append(m.placed, order)
}

func (m *mockSessions) OnTransition(ctx context.Context, order database.Order) {
	m.transitions = append(m.transitions, order.Status)
}

// fixedSequencer hands out numbers from a list.
type fixedSequencer struct {
	next  []int64
	err   error
	calls int
}

func (f *fixedSequencer) Next(ctx context.Context, tenantID uuid.UUID, at time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	n := f.next[f.calls]
	f.calls++
	return n, nil
}

func errUniqueOrderNumber() error {
	return fmt.Errorf("create order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_tenant_id_order_number_key"})
}
