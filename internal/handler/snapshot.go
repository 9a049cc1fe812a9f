package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tableflow/api/internal/database"
)

// SnapshotStore is satisfied by *database.Queries.
type SnapshotStore interface {
	ListActiveOrders(ctx context.Context, tenantID uuid.UUID) ([]database.Order, error)
	ListTables(ctx context.Context, tenantID uuid.UUID) ([]database.RestaurantTable, error)
	ListOpenWaiterCalls(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error)
}

// SeqSource reports the last change-feed seq of a tenant room. Satisfied by
// *ws.Hub.
type SeqSource interface {
	Seq(tenantID uuid.UUID) uint64
}

// SnapshotHandler serves the state a live view starts from. Clients apply
// feed events with a seq greater than the snapshot's.
type SnapshotHandler struct {
	store SnapshotStore
	seqs  SeqSource
}

func NewSnapshotHandler(store SnapshotStore, seqs SeqSource) *SnapshotHandler {
	return &SnapshotHandler{store: store, seqs: seqs}
}

func (h *SnapshotHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

type snapshotResponse struct {
	Seq         uint64                     `json:"seq"`
	Orders      []database.Order           `json:"orders"`
	Tables      []database.RestaurantTable `json:"tables"`
	WaiterCalls []database.WaiterCall      `json:"waiter_calls"`
}

// Get handles GET /tenants/{tid}/snapshot. The seq is read before the rows,
// so any change that lands during the reads is also delivered as an event
// the client will apply.
func (h *SnapshotHandler) Get(w http.ResponseWriter, r *http.Request) {
	tid, ok := tenantID(w, r)
	if !ok {
		return
	}

	resp := snapshotResponse{Seq: h.seqs.Seq(tid)}

	var err error
	if resp.Orders, err = h.store.ListActiveOrders(r.Context(), tid); err != nil {
		writeServiceError(w, "snapshot orders", err)
		return
	}
	if resp.Tables, err = h.store.ListTables(r.Context(), tid); err != nil {
		writeServiceError(w, "snapshot tables", err)
		return
	}
	if resp.WaiterCalls, err = h.store.ListOpenWaiterCalls(r.Context(), tid); err != nil {
		writeServiceError(w, "snapshot waiter calls", err)
		return
	}

	if resp.Orders == nil {
		resp.Orders = []database.Order{}
	}
	if resp.Tables == nil {
		resp.Tables = []database.RestaurantTable{}
	}
	if resp.WaiterCalls == nil {
		resp.WaiterCalls = []database.WaiterCall{}
	}
	writeJSON(w, http.StatusOK, resp)
}
