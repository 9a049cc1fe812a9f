// Package session keeps per-table visit timestamps in step with the orders
// placed at that table. It only observes: failures are logged, never
// returned to the order workflow.
package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
)

// Store is satisfied by *database.Queries.
type Store interface {
	GetOpenTableSession(ctx context.Context, arg database.GetOpenTableSessionParams) (database.TableSession, error)
	GetOpenTableSessionByOrder(ctx context.Context, arg database.GetOpenTableSessionByOrderParams) (database.TableSession, error)
	CreateTableSession(ctx context.Context, arg database.CreateTableSessionParams) (database.TableSession, error)
	StampTableSession(ctx context.Context, arg database.StampTableSessionParams) (database.TableSession, error)
	CloseTableSession(ctx context.Context, arg database.CloseTableSessionParams) (database.TableSession, error)
	SetTableStatus(ctx context.Context, arg database.SetTableStatusParams) error
	CountActiveOrdersForTable(ctx context.Context, tableID uuid.UUID) (int64, error)
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// OnPlaced opens a session for the order's table, or repoints the open one
// at this newer order.
func (t *Tracker) OnPlaced(ctx context.Context, order database.Order) {
	if !order.TableID.Valid {
		return
	}
	tableID := uuid.UUID(order.TableID.Bytes)
	now := t.now()

	open, err := t.store.GetOpenTableSession(ctx, database.GetOpenTableSessionParams{
		TableID:  tableID,
		TenantID: order.TenantID,
	})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if _, err := t.store.CreateTableSession(ctx, database.CreateTableSessionParams{
			TenantID: order.TenantID,
			TableID:  tableID,
			OrderID:  order.ID,
			SeatedAt: now,
		}); err != nil {
			log.Printf("ERROR: open table session for table %s: %v", tableID, err)
		}
	case err != nil:
		log.Printf("ERROR: get open table session for table %s: %v", tableID, err)
	default:
		if _, err := t.store.StampTableSession(ctx, database.StampTableSessionParams{
			ID:            open.ID,
			TenantID:      order.TenantID,
			OrderID:       pgtype.UUID{Bytes: order.ID, Valid: true},
			OrderPlacedAt: pgtype.Timestamptz{Time: now, Valid: true},
		}); err != nil {
			log.Printf("ERROR: repoint table session %s: %v", open.ID, err)
		}
	}
}

// OnTransition stamps the session whose current order is order. Sessions of
// superseded orders are left alone.
func (t *Tracker) OnTransition(ctx context.Context, order database.Order) {
	if !order.TableID.Valid {
		return
	}
	sess, err := t.store.GetOpenTableSessionByOrder(ctx, database.GetOpenTableSessionByOrderParams{
		OrderID:  order.ID,
		TenantID: order.TenantID,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("ERROR: get table session for order %s: %v", order.ID, err)
			return
		}
		if terminal(order.Status) {
			t.releaseTable(ctx, uuid.UUID(order.TableID.Bytes), order.TenantID)
		}
		return
	}

	now := pgtype.Timestamptz{Time: t.now(), Valid: true}
	arg := database.StampTableSessionParams{ID: sess.ID, TenantID: order.TenantID}
	switch order.Status {
	case enum.OrderStatusReady:
		arg.FoodReadyAt = now
	case enum.OrderStatusServed:
		arg.ServedAt = now
	case enum.OrderStatusCompleted:
		arg.BillingAt = now
	case enum.OrderStatusCancelled:
	default:
		return
	}

	if order.Status != enum.OrderStatusCancelled {
		if _, err := t.store.StampTableSession(ctx, arg); err != nil {
			log.Printf("ERROR: stamp table session %s: %v", sess.ID, err)
			return
		}
	}

	if terminal(order.Status) {
		t.close(ctx, sess, order)
	}
}

func terminal(status string) bool {
	return status == enum.OrderStatusCompleted || status == enum.OrderStatusCancelled
}

func (t *Tracker) close(ctx context.Context, sess database.TableSession, order database.Order) {
	if _, err := t.store.CloseTableSession(ctx, database.CloseTableSessionParams{
		ID:          sess.ID,
		TenantID:    order.TenantID,
		CompletedAt: t.now(),
	}); err != nil {
		log.Printf("ERROR: close table session %s: %v", sess.ID, err)
		return
	}
	t.releaseTable(ctx, sess.TableID, order.TenantID)
}

// releaseTable marks the table idle unless another order is still running
// there.
func (t *Tracker) releaseTable(ctx context.Context, tableID, tenantID uuid.UUID) {
	active, err := t.store.CountActiveOrdersForTable(ctx, tableID)
	if err != nil {
		log.Printf("ERROR: count active orders for table %s: %v", tableID, err)
		return
	}
	if active > 0 {
		return
	}
	if err := t.store.SetTableStatus(ctx, database.SetTableStatusParams{
		ID:       tableID,
		TenantID: tenantID,
		Status:   enum.TableStatusIdle,
	}); err != nil {
		log.Printf("ERROR: mark table %s idle: %v", tableID, err)
	}
}
