package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/billing"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/lifecycle"
	"github.com/tableflow/api/internal/printer"
)

const (
	maxOrderNumberRetries = 3
	maxTransitionRetries  = 3
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a connection pool: plain queries plus transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// PrintQueue accepts receipts for asynchronous delivery.
type PrintQueue interface {
	Enqueue(ctx context.Context, tenantID, orderID uuid.UUID, r printer.Receipt) (database.PrinterQueueEntry, bool, error)
}

// SessionObserver is told about order placement and status changes.
type SessionObserver interface {
	OnPlaced(ctx context.Context, order database.Order)
	OnTransition(ctx context.Context, order database.Order)
}

// Actor is the caller as resolved from its token.
// TableID is set only for customers who scanned a table.
type Actor struct {
	UserID  uuid.UUID
	Role    lifecycle.Role
	TableID uuid.UUID
}

func (a Actor) isCustomer() bool { return a.Role == lifecycle.RoleCustomer }

// OrderStore defines the DB methods needed by the order lifecycle.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetTenant(ctx context.Context, id uuid.UUID) (database.Tenant, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.RestaurantTable, error)
	GetMenuItemsForOrder(ctx context.Context, arg database.GetMenuItemsForOrderParams) ([]database.MenuItem, error)
	GetNextOrderNumber(ctx context.Context, tenantID uuid.UUID) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) error
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CompleteOrderPayment(ctx context.Context, arg database.CompleteOrderPaymentParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// PlaceOrderRequest is the input for placing an order.
type PlaceOrderRequest struct {
	TenantID uuid.UUID
	Actor    Actor
	// TableID is read for staff orders. Customers always order for the
	// table in their token. Empty means takeaway.
	TableID       string
	CustomerName  string
	CustomerPhone string
	Instructions  string
	Items         []PlaceOrderItem
}

// PlaceOrderItem is a single cart line.
type PlaceOrderItem struct {
	MenuItemID   string
	Quantity     int32
	Instructions string
	Options      json.RawMessage
}

// OrderResult is an order with its lines. PrintNotice is set when a receipt
// could not be queued; the order change itself succeeded.
type OrderResult struct {
	Order       database.Order
	Items       []database.OrderItem
	PrintNotice string
}

// OrderService handles the order lifecycle.
type OrderService struct {
	db         DB
	newStore   NewOrderStore
	printQueue PrintQueue
	sessions   SessionObserver
	now        func() time.Time
}

// NewOrderService creates a new OrderService. printQueue and sessions may be
// nil.
func NewOrderService(db DB, newStore NewOrderStore, printQueue PrintQueue, sessions SessionObserver) *OrderService {
	return &OrderService{
		db:         db,
		newStore:   newStore,
		printQueue: printQueue,
		sessions:   sessions,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type cartLine struct {
	menuItemID   uuid.UUID
	quantity     int32
	instructions string
	options      []byte
}

// PlaceOrder validates the cart, prices it from the menu and creates the order
// atomically. Retries up to maxOrderNumberRetries times on order_number
// unique constraint violations.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	tableID := uuid.Nil
	if req.Actor.isCustomer() {
		if req.Actor.TableID == uuid.Nil {
			return nil, ErrTableRequired
		}
		tableID = req.Actor.TableID
	} else if req.TableID != "" {
		id, err := uuid.Parse(req.TableID)
		if err != nil {
			return nil, ErrInvalidTableID
		}
		tableID = id
	}

	lines := make([]cartLine, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		id, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}
		if len(item.Options) > 0 && !json.Valid(item.Options) {
			return nil, fmt.Errorf("item[%d]: %w", i, invalid("options must be valid JSON"))
		}
		lines = append(lines, cartLine{
			menuItemID:   id,
			quantity:     item.Quantity,
			instructions: item.Instructions,
			options:      item.Options,
		})
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.placeOrderTx(ctx, req, tableID, lines)
		if err == nil {
			if s.sessions != nil {
				s.sessions.OnPlaced(ctx, result.Order)
			}
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) placeOrderTx(ctx context.Context, req PlaceOrderRequest, tableID uuid.UUID, lines []cartLine) (*OrderResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	tenant, err := store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if !tenant.IsActive {
		return nil, ErrTenantNotFound
	}

	orderTable := pgtype.UUID{}
	if tableID != uuid.Nil {
		table, err := store.GetTable(ctx, database.GetTableParams{ID: tableID, TenantID: req.TenantID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrTableNotFound
			}
			return nil, fmt.Errorf("get table: %w", err)
		}
		if !table.IsActive {
			return nil, ErrTableNotFound
		}
		orderTable = pgtype.UUID{Bytes: tableID, Valid: true}
	}

	// --- Price the cart from the menu ---
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		if !seen[l.menuItemID] {
			seen[l.menuItemID] = true
			ids = append(ids, l.menuItemID)
		}
	}
	menuItems, err := store.GetMenuItemsForOrder(ctx, database.GetMenuItemsForOrderParams{
		TenantID: req.TenantID,
		IDs:      ids,
	})
	if err != nil {
		return nil, fmt.Errorf("get menu items: %w", err)
	}
	menu := make(map[uuid.UUID]database.MenuItem, len(menuItems))
	for _, m := range menuItems {
		menu[m.ID] = m
	}

	priced := make([]billing.Line, 0, len(lines))
	itemParams := make([]database.CreateOrderItemParams, 0, len(lines))
	for i, l := range lines {
		m, ok := menu[l.menuItemID]
		if !ok {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
		}
		if !m.IsAvailable {
			return nil, fmt.Errorf("item[%d]: %s: %w", i, m.Name, ErrMenuItemUnavailable)
		}
		priced = append(priced, billing.Line{UnitPrice: m.Price, Quantity: l.quantity})
		itemParams = append(itemParams, database.CreateOrderItemParams{
			MenuItemID:          m.ID,
			Name:                m.Name,
			UnitPrice:           m.Price,
			Quantity:            l.quantity,
			Subtotal:            billing.Round(m.Price.Mul(decimal.NewFromInt32(l.quantity))),
			SpecialInstructions: text(l.instructions),
			Options:             l.options,
		})
	}
	totals := billing.ComputeTotals(priced, tenant.TaxRate, tenant.ServiceChargeRate)

	nextNum, err := store.GetNextOrderNumber(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		TenantID:      req.TenantID,
		OrderNumber:   nextNum,
		TableID:       orderTable,
		Subtotal:      totals.Subtotal,
		TaxAmount:     totals.TaxAmount,
		ServiceCharge: totals.ServiceCharge,
		TotalAmount:   totals.TotalAmount,
		CustomerName:  text(req.CustomerName),
		CustomerPhone: text(req.CustomerPhone),
		Instructions:  text(req.Instructions),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(itemParams))
	for _, p := range itemParams {
		p.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if orderTable.Valid {
		if err := store.SetTableStatus(ctx, database.SetTableStatusParams{
			ID:       tableID,
			TenantID: req.TenantID,
			Status:   enum.TableStatusOccupied,
		}); err != nil {
			return nil, fmt.Errorf("mark table occupied: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// TransitionRequest asks for an order to move to To.
type TransitionRequest struct {
	TenantID uuid.UUID
	OrderID  uuid.UUID
	To       lifecycle.Status
	Actor    Actor
	Reason   string
}

// Transition moves an order through the lifecycle. The write only lands if
// the row is still in the status the move was computed from; a lost race is
// re-read and re-applied, so a concurrent write that reached the same target
// comes back as a no-op.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*OrderResult, error) {
	if !lifecycle.Valid(req.To) {
		return nil, ErrInvalidStatus
	}
	if req.To == lifecycle.Completed {
		return nil, ErrSettlementRequired
	}
	if err := lifecycle.Authorize(req.To, req.Actor.Role); err != nil {
		return nil, err
	}

	store := s.newStore(s.db)
	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		order, err := s.loadOrder(ctx, store, req.TenantID, req.OrderID, req.Actor)
		if err != nil {
			return nil, err
		}

		res, err := lifecycle.Request(lifecycle.Status(order.Status), req.To, req.Actor.Role, s.now())
		if err != nil {
			return nil, err
		}
		if !res.Changed {
			return &OrderResult{Order: order}, nil
		}

		params := database.UpdateOrderStatusParams{
			ID:                 order.ID,
			TenantID:           order.TenantID,
			Status:             string(res.To),
			FromStatus:         string(res.From),
			StartedPreparingAt: timestamp(res.Stamps.StartedPreparingAt),
			ReadyAt:            timestamp(res.Stamps.ReadyAt),
			ServedAt:           timestamp(res.Stamps.ServedAt),
			CancelledAt:        timestamp(res.Stamps.CancelledAt),
		}
		if res.To == lifecycle.Cancelled {
			params.CancelReason = text(req.Reason)
		}
		updated, err := store.UpdateOrderStatus(ctx, params)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("update order status: %w", err)
		}
		return s.afterTransition(ctx, store, updated), nil
	}
	return nil, ErrConcurrentUpdate
}

// afterTransition runs the side effects of a changed status. None of them
// can fail the transition.
func (s *OrderService) afterTransition(ctx context.Context, store OrderStore, order database.Order) *OrderResult {
	result := &OrderResult{Order: order}
	switch lifecycle.Status(order.Status) {
	case lifecycle.Preparing:
		result.PrintNotice = s.enqueueKitchenTicket(ctx, store, order)
	case lifecycle.Ready, lifecycle.Served, lifecycle.Cancelled:
		if s.sessions != nil {
			s.sessions.OnTransition(ctx, order)
		}
	}
	return result
}

func (s *OrderService) enqueueKitchenTicket(ctx context.Context, store OrderStore, order database.Order) string {
	if s.printQueue == nil {
		return ""
	}
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		log.Printf("WARNING: kitchen ticket for order %s: list items: %v", order.ID, err)
		return "kitchen ticket was not queued, reprint from the printer queue"
	}
	ticket := printer.KitchenTicket(order, items, tableLabel(ctx, store, order))
	if _, _, err := s.printQueue.Enqueue(ctx, order.TenantID, order.ID, ticket); err != nil {
		log.Printf("WARNING: kitchen ticket for order %s: enqueue: %v", order.ID, err)
		return "kitchen ticket was not queued, reprint from the printer queue"
	}
	return ""
}

// Confirm moves an order to confirmed.
func (s *OrderService) Confirm(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor) (*OrderResult, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, To: lifecycle.Confirmed, Actor: actor})
}

// StartPreparing moves an order to preparing and queues the kitchen ticket.
func (s *OrderService) StartPreparing(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor) (*OrderResult, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, To: lifecycle.Preparing, Actor: actor})
}

// MarkReady moves an order to ready.
func (s *OrderService) MarkReady(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor) (*OrderResult, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, To: lifecycle.Ready, Actor: actor})
}

// MarkServed moves an order to served.
func (s *OrderService) MarkServed(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor) (*OrderResult, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, To: lifecycle.Served, Actor: actor})
}

// Cancel moves an order to cancelled.
func (s *OrderService) Cancel(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor, reason string) (*OrderResult, error) {
	return s.Transition(ctx, TransitionRequest{TenantID: tenantID, OrderID: orderID, To: lifecycle.Cancelled, Actor: actor, Reason: reason})
}

// GetOrder returns an order with its lines.
func (s *OrderService) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID, actor Actor) (*OrderResult, error) {
	store := s.newStore(s.db)
	order, err := s.loadOrder(ctx, store, tenantID, orderID, actor)
	if err != nil {
		return nil, err
	}
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderResult{Order: order, Items: items}, nil
}

// ListOrdersRequest filters a tenant's orders, newest first.
type ListOrdersRequest struct {
	TenantID uuid.UUID
	Actor    Actor
	Status   string
	TableID  string
	Limit    int32
	Offset   int32
}

// ListOrders lists orders. Customers only see their own table's orders.
func (s *OrderService) ListOrders(ctx context.Context, req ListOrdersRequest) ([]database.Order, error) {
	params := database.ListOrdersParams{
		TenantID: req.TenantID,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}
	if req.Status != "" {
		if !lifecycle.Valid(lifecycle.Status(req.Status)) {
			return nil, ErrInvalidStatus
		}
		params.Status = text(req.Status)
	}
	if req.TableID != "" {
		id, err := uuid.Parse(req.TableID)
		if err != nil {
			return nil, ErrInvalidTableID
		}
		params.TableID = pgtype.UUID{Bytes: id, Valid: true}
	}
	if req.Actor.isCustomer() {
		if req.Actor.TableID == uuid.Nil {
			return nil, ErrTableRequired
		}
		params.TableID = pgtype.UUID{Bytes: req.Actor.TableID, Valid: true}
	}
	if params.Limit <= 0 || params.Limit > 100 {
		params.Limit = 50
	}

	orders, err := s.newStore(s.db).ListOrders(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) loadOrder(ctx context.Context, store OrderStore, tenantID, orderID uuid.UUID, actor Actor) (database.Order, error) {
	order, err := store.GetOrder(ctx, database.GetOrderParams{ID: orderID, TenantID: tenantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if actor.isCustomer() && (!order.TableID.Valid || uuid.UUID(order.TableID.Bytes) != actor.TableID) {
		return database.Order{}, ErrNotYourTable
	}
	return order, nil
}

// completeAfterPayment is the only path to completed. Callers hold the order
// row lock inside their settlement transaction.
func completeAfterPayment(ctx context.Context, store OrderStore, order database.Order, method string, now time.Time) (database.Order, error) {
	res, err := lifecycle.Apply(lifecycle.Status(order.Status), lifecycle.Completed, now)
	if err != nil {
		return database.Order{}, err
	}
	if !res.Changed {
		return database.Order{}, &lifecycle.InvalidTransitionError{From: res.From, To: res.To}
	}
	completed, err := store.CompleteOrderPayment(ctx, database.CompleteOrderPaymentParams{
		ID:            order.ID,
		TenantID:      order.TenantID,
		PaymentMethod: method,
		CompletedAt:   timestamp(res.Stamps.CompletedAt),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, &lifecycle.InvalidTransitionError{From: res.From, To: res.To}
		}
		return database.Order{}, fmt.Errorf("complete order: %w", err)
	}
	return completed, nil
}

// --- Helpers ---

func tableLabel(ctx context.Context, store OrderStore, order database.Order) string {
	if !order.TableID.Valid {
		return "Takeaway"
	}
	table, err := store.GetTable(ctx, database.GetTableParams{
		ID:       uuid.UUID(order.TableID.Bytes),
		TenantID: order.TenantID,
	})
	if err != nil {
		return ""
	}
	return table.Label
}

func text(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func timestamp(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
