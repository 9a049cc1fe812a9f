package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/billing"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/lifecycle"
	"github.com/tableflow/api/internal/middleware"
	"github.com/tableflow/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (*service.OrderResult, error)
	Transition(ctx context.Context, req service.TransitionRequest) (*service.OrderResult, error)
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID, actor service.Actor) (*service.OrderResult, error)
	ListOrders(ctx context.Context, req service.ListOrdersRequest) ([]database.Order, error)
}

// SettlementServicer defines the service methods needed to settle orders.
// Satisfied by *service.SettlementService.
type SettlementServicer interface {
	Settle(ctx context.Context, req service.SettleRequest) (*service.SettleResult, error)
	GetInvoice(ctx context.Context, tenantID, orderID uuid.UUID) (database.Invoice, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	orders     OrderServicer
	settlement SettlementServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders OrderServicer, settlement SettlementServicer) *OrderHandler {
	return &OrderHandler{orders: orders, settlement: settlement}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted inside a tenant-scoped subrouter: /tenants/{tid}/orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireRole(enum.RoleCustomer, enum.RoleWaiter, enum.RoleBilling, enum.RoleAdmin)).Post("/", h.Place)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	// Who may request each move is decided by the lifecycle.
	r.Post("/{id}/confirm", h.transition(lifecycle.Confirmed))
	r.Post("/{id}/start-preparing", h.transition(lifecycle.Preparing))
	r.Post("/{id}/ready", h.transition(lifecycle.Ready))
	r.Post("/{id}/served", h.transition(lifecycle.Served))
	r.Post("/{id}/cancel", h.Cancel)

	r.With(middleware.RequireRole(enum.RoleBilling, enum.RoleAdmin)).Post("/{id}/settle", h.Settle)
	r.With(middleware.RequireRole(enum.RoleWaiter, enum.RoleBilling, enum.RoleAdmin)).Get("/{id}/invoice", h.Invoice)
}

// --- Request / Response types ---

type placeOrderRequest struct {
	TableID       string                  `json:"table_id"`
	CustomerName  string                  `json:"customer_name" validate:"max=100"`
	CustomerPhone string                  `json:"customer_phone" validate:"max=30"`
	Instructions  string                  `json:"instructions" validate:"max=500"`
	Items         []placeOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type placeOrderItemRequest struct {
	MenuItemID   string          `json:"menu_item_id" validate:"required"`
	Quantity     int32           `json:"quantity" validate:"gt=0"`
	Instructions string          `json:"instructions" validate:"max=500"`
	Options      json.RawMessage `json:"options"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type settleRequest struct {
	PaymentMethod   string          `json:"payment_method" validate:"required"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Split           *splitRequest   `json:"split"`
	Notes           string          `json:"notes" validate:"max=500"`
}

type splitRequest struct {
	Cash decimal.Decimal `json:"cash"`
	UPI  decimal.Decimal `json:"upi"`
	Card decimal.Decimal `json:"card"`
}

type orderItemResponse struct {
	database.OrderItem
	Options json.RawMessage `json:"options,omitempty"`
}

type orderResponse struct {
	database.Order
	Items       []orderItemResponse `json:"items,omitempty"`
	PrintNotice string              `json:"print_notice,omitempty"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []database.Order `json:"orders"`
	Limit  int32            `json:"limit"`
	Offset int32            `json:"offset"`
}

type invoiceResponse struct {
	database.Invoice
	Items json.RawMessage `json:"items"`
}

type settleResponse struct {
	Order          database.Order  `json:"order"`
	Invoice        invoiceResponse `json:"invoice"`
	AlreadySettled bool            `json:"already_settled"`
	PrintNotice    string          `json:"print_notice,omitempty"`
}

func newOrderResponse(res *service.OrderResult) orderResponse {
	out := orderResponse{Order: res.Order, PrintNotice: res.PrintNotice}
	for _, it := range res.Items {
		item := orderItemResponse{OrderItem: it}
		if len(it.Options) > 0 {
			item.Options = json.RawMessage(it.Options)
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func newInvoiceResponse(inv database.Invoice) invoiceResponse {
	items := json.RawMessage(inv.Items)
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}
	return invoiceResponse{Invoice: inv, Items: items}
}

// --- Handlers ---

// Place handles POST /tenants/{tid}/orders.
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]service.PlaceOrderItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.PlaceOrderItem{
			MenuItemID:   it.MenuItemID,
			Quantity:     it.Quantity,
			Instructions: it.Instructions,
			Options:      it.Options,
		}
	}

	res, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		TenantID:      tid,
		Actor:         actorOf(c),
		TableID:       req.TableID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		Instructions:  req.Instructions,
		Items:         items,
	})
	if err != nil {
		writeServiceError(w, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, newOrderResponse(res))
}

// List handles GET /tenants/{tid}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r)
	orders, err := h.orders.ListOrders(r.Context(), service.ListOrdersRequest{
		TenantID: tid,
		Actor:    actorOf(c),
		Status:   r.URL.Query().Get("status"),
		TableID:  r.URL.Query().Get("table_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeServiceError(w, "list orders", err)
		return
	}
	if orders == nil {
		orders = []database.Order{}
	}

	writeJSON(w, http.StatusOK, orderListResponse{Orders: orders, Limit: limit, Offset: offset})
}

// Get handles GET /tenants/{tid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order ID")
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	res, err := h.orders.GetOrder(r.Context(), tid, orderID, actorOf(c))
	if err != nil {
		writeServiceError(w, "get order", err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(res))
}

func (h *OrderHandler) transition(to lifecycle.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.move(w, r, to, "")
	}
}

// Cancel handles POST /tenants/{tid}/orders/{id}/cancel. The body is optional.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	h.move(w, r, lifecycle.Cancelled, req.Reason)
}

func (h *OrderHandler) move(w http.ResponseWriter, r *http.Request, to lifecycle.Status, reason string) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order ID")
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	res, err := h.orders.Transition(r.Context(), service.TransitionRequest{
		TenantID: tid,
		OrderID:  orderID,
		To:       to,
		Actor:    actorOf(c),
		Reason:   reason,
	})
	if err != nil {
		writeServiceError(w, "order "+string(to), err)
		return
	}

	writeJSON(w, http.StatusOK, newOrderResponse(res))
}

// Settle handles POST /tenants/{tid}/orders/{id}/settle.
func (h *OrderHandler) Settle(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order ID")
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sreq := service.SettleRequest{
		TenantID:        tid,
		OrderID:         orderID,
		Actor:           actorOf(c),
		PaymentMethod:   req.PaymentMethod,
		DiscountPercent: req.DiscountPercent,
		Notes:           req.Notes,
	}
	if req.Split != nil {
		sreq.Split = &billing.SplitAmounts{Cash: req.Split.Cash, UPI: req.Split.UPI, Card: req.Split.Card}
	}

	res, err := h.settlement.Settle(r.Context(), sreq)
	if err != nil {
		writeServiceError(w, "settle order", err)
		return
	}

	status := http.StatusCreated
	if res.AlreadySettled {
		status = http.StatusOK
	}
	writeJSON(w, status, settleResponse{
		Order:          res.Order,
		Invoice:        newInvoiceResponse(res.Invoice),
		AlreadySettled: res.AlreadySettled,
		PrintNotice:    res.PrintNotice,
	})
}

// Invoice handles GET /tenants/{tid}/orders/{id}/invoice.
func (h *OrderHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "id", "order ID")
	if !ok {
		return
	}

	inv, err := h.settlement.GetInvoice(r.Context(), tid, orderID)
	if err != nil {
		writeServiceError(w, "get invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, newInvoiceResponse(inv))
}
