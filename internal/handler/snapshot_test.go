package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/handler"
)

type mockSnapshotStore struct {
	calls        []string
	activeOrders []database.Order
	tables       []database.RestaurantTable
	waiterCalls  []database.WaiterCall
	err          error
}

func (m *mockSnapshotStore) ListActiveOrders(ctx context.Context, tenantID uuid.UUID) ([]database.Order, error) {
	m.calls = append(m.calls, "orders")
	return m.activeOrders, m.err
}

func (m *mockSnapshotStore) ListTables(ctx context.Context, tenantID uuid.UUID) ([]database.RestaurantTable, error) {
	m.calls = append(m.calls, "tables")
	return m.tables, nil
}

func (m *mockSnapshotStore) ListOpenWaiterCalls(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error) {
	m.calls = append(m.calls, "waiter_calls")
	return m.waiterCalls, nil
}

// fakeSeqs records that it was read before the store.
type fakeSeqs struct {
	store *mockSnapshotStore
	seq   uint64
}

func (f *fakeSeqs) Seq(tenantID uuid.UUID) uint64 {
	f.store.calls = append(f.store.calls, "seq")
	return f.seq
}

func TestSnapshot(t *testing.T) {
	tenantID := uuid.New()
	store := &mockSnapshotStore{
		activeOrders: []database.Order{testOrderResult(tenantID, enum.OrderStatusPreparing).Order},
		tables:       []database.RestaurantTable{{ID: uuid.New(), TenantID: tenantID, Label: "T1", Status: enum.TableStatusOccupied, IsActive: true}},
	}
	router := tenantRouter("/snapshot", handler.NewSnapshotHandler(store, &fakeSeqs{store: store, seq: 17}).RegisterRoutes)

	rr := doAuthRequest(t, router, "GET", "/tenants/"+tenantID.String()+"/snapshot", nil, staffToken(t, tenantID, enum.RoleKitchen))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusOK, rr.Body.String())
	}

	if len(store.calls) == 0 || store.calls[0] != "seq" {
		t.Errorf("seq must be read before rows, call order %v", store.calls)
	}

	resp := decodeResponse(t, rr)
	if resp["seq"] != float64(17) {
		t.Errorf("seq: got %v", resp["seq"])
	}
	if n := len(resp["orders"].([]interface{})); n != 1 {
		t.Errorf("orders: got %d, want 1", n)
	}
	if n := len(resp["tables"].([]interface{})); n != 1 {
		t.Errorf("tables: got %d, want 1", n)
	}
	if calls, ok := resp["waiter_calls"].([]interface{}); !ok || len(calls) != 0 {
		t.Errorf("waiter_calls should be an empty array, got %v", resp["waiter_calls"])
	}
}

func TestSnapshot_StoreError(t *testing.T) {
	tenantID := uuid.New()
	store := &mockSnapshotStore{err: context.DeadlineExceeded}
	router := tenantRouter("/snapshot", handler.NewSnapshotHandler(store, &fakeSeqs{store: store}).RegisterRoutes)

	rr := doAuthRequest(t, router, "GET", "/tenants/"+tenantID.String()+"/snapshot", nil, staffToken(t, tenantID, enum.RoleWaiter))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
