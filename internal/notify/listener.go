// Package notify bridges Postgres row-change notifications to the websocket
// hub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tableflow/api/internal/ws"
)

// Channel is the LISTEN channel the notify_row_change trigger publishes on.
const Channel = "row_changes"

// Change is the payload of one row_changes notification.
type Change struct {
	TenantID   uuid.UUID `json:"tenant_id"`
	Collection string    `json:"collection"`
	Op         string    `json:"op"`
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status,omitempty"`
}

// EventType is the websocket event type for c, e.g. "orders.update".
func (c Change) EventType() string {
	return c.Collection + "." + c.Op
}

// Conn is the subset of *pgx.Conn the listener needs.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Connector opens a dedicated connection. LISTEN needs a connection of its
// own, so the pool is not used.
type Connector func(ctx context.Context) (Conn, error)

// Dial returns a Connector for databaseURL.
func Dial(databaseURL string) Connector {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Publisher receives decoded events. Satisfied by *ws.Hub.
type Publisher interface {
	Broadcast(tenantID uuid.UUID, ev ws.Event)
	BroadcastAll(ev ws.Event)
}

// Listener forwards row changes to a Publisher, reconnecting on failure.
type Listener struct {
	connect Connector
	pub     Publisher
	node    *snowflake.Node

	newBackOff func() backoff.BackOff
}

func NewListener(connect Connector, pub Publisher, node *snowflake.Node) *Listener {
	return &Listener{
		connect: connect,
		pub:     pub,
		node:    node,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run listens until ctx is cancelled. After every successful (re)connect it
// broadcasts sync.required to all rooms, since notifications sent while no
// connection was listening are lost.
func (l *Listener) Run(ctx context.Context) error {
	for {
		conn, err := l.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("notify: dial: %w", err)
		}

		l.pub.BroadcastAll(ws.Event{ID: l.node.Generate(), Type: ws.TypeSyncRequired})

		err = l.listen(ctx, conn)
		conn.Close(context.Background()) //nolint:errcheck
		if ctx.Err() != nil {
			return nil
		}
		log.Printf("WARNING: notify: connection lost: %v", err)
	}
}

func (l *Listener) dial(ctx context.Context) (Conn, error) {
	var conn Conn
	op := func() error {
		c, err := l.connect(ctx)
		if err != nil {
			return err
		}
		if _, err := c.Exec(ctx, "LISTEN "+Channel); err != nil {
			c.Close(ctx) //nolint:errcheck
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, d time.Duration) {
		log.Printf("WARNING: notify: connect failed, retrying in %s: %v", d, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(l.newBackOff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *Listener) listen(ctx context.Context, conn Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(n.Payload)
	}
}

func (l *Listener) handle(payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		log.Printf("WARNING: notify: bad payload %q: %v", payload, err)
		return
	}
	if c.TenantID == uuid.Nil || c.Collection == "" || c.Op == "" {
		log.Printf("WARNING: notify: incomplete payload %q", payload)
		return
	}
	l.pub.Broadcast(c.TenantID, ws.Event{
		ID:      l.node.Generate(),
		Type:    c.EventType(),
		Payload: json.RawMessage(payload),
	})
}
