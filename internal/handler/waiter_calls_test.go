package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/handler"
	"github.com/tableflow/api/internal/lifecycle"
	"github.com/tableflow/api/internal/service"
)

// --- Mock WaiterCallServicer ---

type mockWaiterService struct {
	callFn        func(ctx context.Context, tenantID uuid.UUID, actor service.Actor, tableID, reason string) (database.WaiterCall, error)
	acknowledgeFn func(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error)
	resolveFn     func(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error)
	listOpenFn    func(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error)
}

func (m *mockWaiterService) Call(ctx context.Context, tenantID uuid.UUID, actor service.Actor, tableID, reason string) (database.WaiterCall, error) {
	if m.callFn != nil {
		return m.callFn(ctx, tenantID, actor, tableID, reason)
	}
	return database.WaiterCall{}, service.ErrTableNotFound
}

func (m *mockWaiterService) Acknowledge(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error) {
	if m.acknowledgeFn != nil {
		return m.acknowledgeFn(ctx, tenantID, callID, actor)
	}
	return database.WaiterCall{}, service.ErrWaiterCallNotFound
}

func (m *mockWaiterService) Resolve(ctx context.Context, tenantID, callID uuid.UUID, actor service.Actor) (database.WaiterCall, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, tenantID, callID, actor)
	}
	return database.WaiterCall{}, service.ErrWaiterCallNotFound
}

func (m *mockWaiterService) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error) {
	if m.listOpenFn != nil {
		return m.listOpenFn(ctx, tenantID)
	}
	return nil, nil
}

func setupWaiterCallRouter(svc *mockWaiterService) http.Handler {
	h := handler.NewWaiterCallHandler(svc)
	return tenantRouter("/waiter-calls", h.RegisterRoutes)
}

func testWaiterCall(tenantID, tableID uuid.UUID, status string) database.WaiterCall {
	return database.WaiterCall{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TableID:   tableID,
		Reason:    "more water",
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// --- Tests ---

func TestWaiterCallCreate_Customer(t *testing.T) {
	tenantID, tableID := uuid.New(), uuid.New()
	var gotActor service.Actor
	var gotReason string
	svc := &mockWaiterService{
		callFn: func(ctx context.Context, tid uuid.UUID, actor service.Actor, table, reason string) (database.WaiterCall, error) {
			gotActor, gotReason = actor, reason
			return testWaiterCall(tid, actor.TableID, enum.WaiterCallPending), nil
		},
	}
	router := setupWaiterCallRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/waiter-calls",
		map[string]string{"reason": "more water"}, customerToken(t, tenantID, tableID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d (body: %s)", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if gotActor.Role != lifecycle.RoleCustomer || gotActor.TableID != tableID || gotReason != "more water" {
		t.Errorf("actor %+v reason %q", gotActor, gotReason)
	}
	if resp := decodeResponse(t, rr); resp["status"] != enum.WaiterCallPending {
		t.Errorf("status: got %v", resp["status"])
	}
}

func TestWaiterCallCreate_EmptyBody(t *testing.T) {
	tenantID, tableID := uuid.New(), uuid.New()
	called := false
	svc := &mockWaiterService{
		callFn: func(ctx context.Context, tid uuid.UUID, actor service.Actor, table, reason string) (database.WaiterCall, error) {
			called = true
			return testWaiterCall(tid, actor.TableID, enum.WaiterCallPending), nil
		},
	}
	router := setupWaiterCallRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/waiter-calls", nil, customerToken(t, tenantID, tableID))
	if rr.Code != http.StatusCreated || !called {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusCreated)
	}
}

func TestWaiterCallCreate_PreviewCustomer(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockWaiterService{
		callFn: func(ctx context.Context, tid uuid.UUID, actor service.Actor, table, reason string) (database.WaiterCall, error) {
			return database.WaiterCall{}, service.ErrTableRequired
		},
	}
	router := setupWaiterCallRouter(svc)

	rr := doAuthRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/waiter-calls", nil, customerToken(t, tenantID, uuid.Nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestWaiterCallCreate_KitchenForbidden(t *testing.T) {
	tenantID := uuid.New()
	router := setupWaiterCallRouter(&mockWaiterService{})

	rr := doAuthRequest(t, router, "POST", "/tenants/"+tenantID.String()+"/waiter-calls", nil, staffToken(t, tenantID, enum.RoleKitchen))
	if rr.Code != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestWaiterCallList(t *testing.T) {
	tenantID := uuid.New()
	svc := &mockWaiterService{
		listOpenFn: func(ctx context.Context, tid uuid.UUID) ([]database.WaiterCall, error) {
			return []database.WaiterCall{
				testWaiterCall(tid, uuid.New(), enum.WaiterCallPending),
				testWaiterCall(tid, uuid.New(), enum.WaiterCallAcknowledged),
			}, nil
		},
	}
	router := setupWaiterCallRouter(svc)

	rr := doAuthRequest(t, router, "GET", "/tenants/"+tenantID.String()+"/waiter-calls", nil, staffToken(t, tenantID, enum.RoleWaiter))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
	if list := decodeList(t, rr); len(list) != 2 {
		t.Errorf("calls: got %d, want 2", len(list))
	}

	// Customers may raise calls but not see the floor's queue.
	rr = doAuthRequest(t, router, "GET", "/tenants/"+tenantID.String()+"/waiter-calls", nil, customerToken(t, tenantID, uuid.New()))
	if rr.Code != http.StatusForbidden {
		t.Errorf("customer list: status got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestWaiterCallAcknowledgeResolve(t *testing.T) {
	tenantID, callID := uuid.New(), uuid.New()
	svc := &mockWaiterService{
		acknowledgeFn: func(ctx context.Context, tid, cid uuid.UUID, actor service.Actor) (database.WaiterCall, error) {
			if cid != callID {
				return database.WaiterCall{}, service.ErrWaiterCallNotFound
			}
			c := testWaiterCall(tid, uuid.New(), enum.WaiterCallAcknowledged)
			c.ID = cid
			return c, nil
		},
		resolveFn: func(ctx context.Context, tid, cid uuid.UUID, actor service.Actor) (database.WaiterCall, error) {
			return database.WaiterCall{}, &lifecycle.ForbiddenTransitionError{Role: actor.Role, To: enum.WaiterCallResolved}
		},
	}
	router := setupWaiterCallRouter(svc)
	base := "/tenants/" + tenantID.String() + "/waiter-calls/"

	rr := doAuthRequest(t, router, "POST", base+callID.String()+"/acknowledge", nil, staffToken(t, tenantID, enum.RoleWaiter))
	if rr.Code != http.StatusOK {
		t.Fatalf("acknowledge: status got %d, want %d", rr.Code, http.StatusOK)
	}
	if resp := decodeResponse(t, rr); resp["status"] != enum.WaiterCallAcknowledged {
		t.Errorf("status: got %v", resp["status"])
	}

	rr = doAuthRequest(t, router, "POST", base+uuid.NewString()+"/acknowledge", nil, staffToken(t, tenantID, enum.RoleWaiter))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown call: status got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = doAuthRequest(t, router, "POST", base+callID.String()+"/resolve", nil, staffToken(t, tenantID, enum.RoleBilling))
	if rr.Code != http.StatusForbidden {
		t.Errorf("billing resolve: status got %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doAuthRequest(t, router, "POST", base+"nope/resolve", nil, staffToken(t, tenantID, enum.RoleWaiter))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: status got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
