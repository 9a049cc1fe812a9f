package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
	"github.com/tableflow/api/internal/lifecycle"
)

const maxReasonLength = 200

// waiterCallEdges lists the forward moves of a waiter call.
var waiterCallEdges = map[string][]string{
	enum.WaiterCallPending:      {enum.WaiterCallAcknowledged, enum.WaiterCallResolved},
	enum.WaiterCallAcknowledged: {enum.WaiterCallResolved},
}

// WaiterStore defines the DB methods needed for waiter calls.
// Satisfied by *database.Queries.
type WaiterStore interface {
	GetTable(ctx context.Context, arg database.GetTableParams) (database.RestaurantTable, error)
	CreateWaiterCall(ctx context.Context, arg database.CreateWaiterCallParams) (database.WaiterCall, error)
	GetWaiterCall(ctx context.Context, arg database.GetWaiterCallParams) (database.WaiterCall, error)
	UpdateWaiterCallStatus(ctx context.Context, arg database.UpdateWaiterCallStatusParams) (database.WaiterCall, error)
	ListOpenWaiterCalls(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error)
}

// WaiterService handles customer requests for a waiter.
type WaiterService struct {
	store WaiterStore
	now   func() time.Time
}

// NewWaiterService creates a new WaiterService.
func NewWaiterService(store WaiterStore) *WaiterService {
	return &WaiterService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Call raises a waiter call for a table. Customers call for the table in their
// token; staff name the table.
func (s *WaiterService) Call(ctx context.Context, tenantID uuid.UUID, actor Actor, tableID, reason string) (database.WaiterCall, error) {
	var table uuid.UUID
	if actor.isCustomer() {
		if actor.TableID == uuid.Nil {
			return database.WaiterCall{}, ErrTableRequired
		}
		table = actor.TableID
	} else {
		id, err := uuid.Parse(tableID)
		if err != nil {
			return database.WaiterCall{}, ErrInvalidTableID
		}
		table = id
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return database.WaiterCall{}, invalid("reason must be at most %d characters", maxReasonLength)
	}

	t, err := s.store.GetTable(ctx, database.GetTableParams{ID: table, TenantID: tenantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.WaiterCall{}, ErrTableNotFound
		}
		return database.WaiterCall{}, fmt.Errorf("get table: %w", err)
	}
	if !t.IsActive {
		return database.WaiterCall{}, ErrTableNotFound
	}

	call, err := s.store.CreateWaiterCall(ctx, database.CreateWaiterCallParams{
		TenantID: tenantID,
		TableID:  table,
		Reason:   reason,
	})
	if err != nil {
		return database.WaiterCall{}, fmt.Errorf("create waiter call: %w", err)
	}
	return call, nil
}

// Acknowledge marks a call as seen by a waiter.
func (s *WaiterService) Acknowledge(ctx context.Context, tenantID, callID uuid.UUID, actor Actor) (database.WaiterCall, error) {
	return s.move(ctx, tenantID, callID, actor, enum.WaiterCallAcknowledged)
}

// Resolve closes a call.
func (s *WaiterService) Resolve(ctx context.Context, tenantID, callID uuid.UUID, actor Actor) (database.WaiterCall, error) {
	return s.move(ctx, tenantID, callID, actor, enum.WaiterCallResolved)
}

// ListOpen returns pending and acknowledged calls, oldest first.
func (s *WaiterService) ListOpen(ctx context.Context, tenantID uuid.UUID) ([]database.WaiterCall, error) {
	calls, err := s.store.ListOpenWaiterCalls(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list waiter calls: %w", err)
	}
	return calls, nil
}

func (s *WaiterService) move(ctx context.Context, tenantID, callID uuid.UUID, actor Actor, to string) (database.WaiterCall, error) {
	if actor.Role != lifecycle.RoleWaiter && actor.Role != lifecycle.RoleAdmin {
		return database.WaiterCall{}, &lifecycle.ForbiddenTransitionError{Role: actor.Role, To: lifecycle.Status(to)}
	}

	for attempt := 0; attempt < maxTransitionRetries; attempt++ {
		call, err := s.store.GetWaiterCall(ctx, database.GetWaiterCallParams{ID: callID, TenantID: tenantID})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return database.WaiterCall{}, ErrWaiterCallNotFound
			}
			return database.WaiterCall{}, fmt.Errorf("get waiter call: %w", err)
		}
		if call.Status == to {
			return call, nil
		}
		if !waiterCallEdge(call.Status, to) {
			return database.WaiterCall{}, &lifecycle.InvalidTransitionError{
				From: lifecycle.Status(call.Status),
				To:   lifecycle.Status(to),
			}
		}

		now := s.now()
		params := database.UpdateWaiterCallStatusParams{
			ID:         call.ID,
			TenantID:   tenantID,
			Status:     to,
			FromStatus: call.Status,
		}
		switch to {
		case enum.WaiterCallAcknowledged:
			params.AcknowledgedAt = timestamp(now)
		case enum.WaiterCallResolved:
			params.ResolvedAt = timestamp(now)
		}
		updated, err := s.store.UpdateWaiterCallStatus(ctx, params)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			return database.WaiterCall{}, fmt.Errorf("update waiter call: %w", err)
		}
		return updated, nil
	}
	return database.WaiterCall{}, ErrConcurrentUpdate
}

func waiterCallEdge(from, to string) bool {
	for _, s := range waiterCallEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}
