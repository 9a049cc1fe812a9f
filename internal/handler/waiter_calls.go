package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/middleware"
	"github.com/tableflow/api/internal/service"
)

// WaiterCallServicer is satisfied by *service.WaiterService.
type WaiterCallServicer interface {
	Call(ctx context.Context, tenantID uuid.UUID, actor service.Actor, tableID, reason string) (database.WaiterCall, error)
	Acknowledge(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error)
	Resolve(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error)
	ListOpen(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error)
}

type WaiterCallHandler struct {
	svc WaiterCallServicer
}

func NewWaiterCallHandler(svc WaiterCallServicer) *WaiterCallHandler {
	return &WaiterCallHandler{svc: svc}
}

// RegisterRoutes mounts under /tenants/{tid}/waiter-calls.
func (h *WaiterCallHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireRole(enum.RoleCustomer, enum.RoleWaiter, enum.RoleAdmin)).Post("/", h.Create)
	r.With(middleware.RequireRole(enum.RoleWaiter, enum.RoleBilling, enum.RoleAdmin)).Get("/", h.List)
	r.Post("/{id}/acknowledge", h.Acknowledge)
	r.Post("/{id}/resolve", h.Resolve)
}

type waiterCallRequest struct {
	TableID string `json:"table_id"`
	Reason  string `json:"reason" validate:"max=200"`
}

func (h *WaiterCallHandler) Create(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	var req waiterCallRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	call, err := h.svc.Call(r.Context(), tid, actorOf(c), req.TableID, req.Reason)
	if err != nil {
		writeServiceError(w, "call waiter", err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *WaiterCallHandler) List(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	calls, err := h.svc.ListOpen(r.Context(), tid)
	if err != nil {
		writeServiceError(w, "list waiter calls", err)
		return
	}
	if calls == nil {
		calls = []database.WaiterCall{}
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *WaiterCallHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "acknowledge waiter call", h.svc.Acknowledge)
}

func (h *WaiterCallHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "resolve waiter call", h.svc.Resolve)
}

func (h *WaiterCallHandler) move(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error)) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}
	callID, ok := pathUUID(w, r, "id", "waiter call ID")
	if !ok {
		return
	}
	c, ok := claims(w, r)
	if !ok {
		return
	}

	call, err := fn(r.Context(), tid, callID, actorOf(c))
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
