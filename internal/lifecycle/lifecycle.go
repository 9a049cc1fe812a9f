// Package lifecycle is the order status automaton shared by every role surface.
//
// The kitchen, waiter, billing and customer views all ask the same two
// questions: may this role move the order to that status, and what does the
// move stamp on the row. Both answers live here and nowhere else.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/tableflow/api/internal/enum"
)

// Status is a wire-stable order status.
type Status string

const (
	Pending   Status = enum.OrderStatusPending
	Confirmed Status = enum.OrderStatusConfirmed
	Preparing Status = enum.OrderStatusPreparing
	Ready     Status = enum.OrderStatusReady
	Served    Status = enum.OrderStatusServed
	Completed Status = enum.OrderStatusCompleted
	Cancelled Status = enum.OrderStatusCancelled
)

// Role is the acting role resolved from the caller's identity.
type Role string

const (
	RoleCustomer Role = enum.RoleCustomer
	RoleKitchen  Role = enum.RoleKitchen
	RoleWaiter   Role = enum.RoleWaiter
	RoleBilling  Role = enum.RoleBilling
	RoleAdmin    Role = enum.RoleAdmin
)

// edges lists the forward moves out of each non-terminal status.
// ready -> completed exists for counter settlement of walk-in orders that were
// never marked served.
var edges = map[Status][]Status{
	Pending:   {Confirmed, Preparing, Cancelled},
	Confirmed: {Preparing, Cancelled},
	Preparing: {Ready, Cancelled},
	Ready:     {Served, Completed, Cancelled},
	Served:    {Completed},
}

// roles lists who may request each target status.
var roles = map[Status][]Role{
	Confirmed: {RoleKitchen, RoleWaiter, RoleAdmin},
	Preparing: {RoleKitchen, RoleAdmin},
	Ready:     {RoleKitchen, RoleAdmin},
	Served:    {RoleWaiter, RoleAdmin},
	Completed: {RoleBilling, RoleAdmin},
	Cancelled: {RoleKitchen, RoleWaiter, RoleBilling, RoleAdmin, RoleCustomer},
}

// InvalidTransitionError reports a move the automaton does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// ForbiddenTransitionError reports a legal move requested by the wrong role.
type ForbiddenTransitionError struct {
	Role Role
	To   Status
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("role %s may not move to %s", e.Role, e.To)
}

// Stamps holds the lifecycle timestamps a transition sets. Zero values are
// left untouched by the store.
type Stamps struct {
	StartedPreparingAt time.Time
	ReadyAt            time.Time
	ServedAt           time.Time
	CompletedAt        time.Time
	CancelledAt        time.Time
}

// Result describes the outcome of Apply.
type Result struct {
	From    Status
	To      Status
	Changed bool
	Stamps  Stamps
}

// Valid reports whether s is one of the seven order statuses.
func Valid(s Status) bool {
	switch s {
	case Pending, Confirmed, Preparing, Ready, Served, Completed, Cancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func Terminal(s Status) bool {
	return s == Completed || s == Cancelled
}

// Active reports whether an order in s still occupies the kitchen or floor.
func Active(s Status) bool {
	return Valid(s) && !Terminal(s)
}

// HasEdge reports whether the automaton has a from -> to edge.
func HasEdge(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Authorize checks that role may request the target status at all.
func Authorize(to Status, role Role) error {
	for _, r := range roles[to] {
		if r == role {
			return nil
		}
	}
	return &ForbiddenTransitionError{Role: role, To: to}
}

// CanTransition reports whether role may move an order from -> to right now.
// Customers may only cancel an order nobody has picked up yet.
func CanTransition(from, to Status, role Role) bool {
	if !HasEdge(from, to) {
		return false
	}
	if Authorize(to, role) != nil {
		return false
	}
	if role == RoleCustomer && from != Pending {
		return false
	}
	return true
}

// Apply computes the effect of moving an order in status current to status to.
// Re-applying the current status is a no-op, not an error.
func Apply(current, to Status, now time.Time) (Result, error) {
	res := Result{From: current, To: to}
	if !Valid(to) {
		return res, &InvalidTransitionError{From: current, To: to}
	}
	if current == to {
		return res, nil
	}
	if !HasEdge(current, to) {
		return res, &InvalidTransitionError{From: current, To: to}
	}

	res.Changed = true
	switch to {
	case Preparing:
		res.Stamps.StartedPreparingAt = now
	case Ready:
		res.Stamps.ReadyAt = now
	case Served:
		res.Stamps.ServedAt = now
	case Completed:
		res.Stamps.CompletedAt = now
	case Cancelled:
		res.Stamps.CancelledAt = now
	}
	return res, nil
}

// Next returns the forward moves out of s, in automaton order.
func Next(s Status) []Status {
	out := make([]Status, len(edges[s]))
	copy(out, edges[s])
	return out
}

// Request is Apply with the caller's role enforced. No-op requests are
// authorized too.
func Request(current, to Status, role Role, now time.Time) (Result, error) {
	if err := Authorize(to, role); err != nil {
		return Result{From: current, To: to}, err
	}
	res, err := Apply(current, to, now)
	if err != nil {
		return res, err
	}
	if res.Changed && !CanTransition(current, to, role) {
		return Result{From: current, To: to}, &ForbiddenTransitionError{Role: role, To: to}
	}
	return res, nil
}
