package service

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError is a request the caller can fix by sending different input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validation errors.
var (
	ErrEmptyItems           = &ValidationError{Msg: "items are required"}
	ErrInvalidQuantity      = &ValidationError{Msg: "quantity must be > 0"}
	ErrInvalidMenuItemID    = &ValidationError{Msg: "invalid menu_item_id"}
	ErrInvalidTableID       = &ValidationError{Msg: "invalid table_id"}
	ErrTableNotFound        = &ValidationError{Msg: "table not found"}
	ErrMenuItemNotFound     = &ValidationError{Msg: "menu item not found"}
	ErrMenuItemUnavailable  = &ValidationError{Msg: "menu item is not available"}
	ErrTableRequired        = &ValidationError{Msg: "a table is required: scan the table QR code to order"}
	ErrInvalidStatus        = &ValidationError{Msg: "invalid status"}
	ErrSettlementRequired   = &ValidationError{Msg: "orders are completed by settling payment"}
	ErrInvalidPaymentMethod = &ValidationError{Msg: "invalid payment_method"}
	ErrInvalidDiscount      = &ValidationError{Msg: "discount_percent must be between 0 and 100"}
	ErrSplitRequired        = &ValidationError{Msg: "split amounts are required for split payment"}
	ErrSplitNotAllowed      = &ValidationError{Msg: "split amounts are only accepted for split payment"}
	ErrInvalidSplit         = &ValidationError{Msg: "split amounts must not be negative"}
)

// Lookup errors.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrWaiterCallNotFound = errors.New("waiter call not found")
)

// ErrNotYourTable is returned when a customer touches another table's order.
var ErrNotYourTable = errors.New("order belongs to another table")

// ErrConcurrentUpdate is returned when concurrent writers keep moving a row
// underneath a transition.
var ErrConcurrentUpdate = errors.New("record was modified concurrently, retry")

// isUniqueViolation checks for a unique constraint violation (pgconn error
// code 23505) on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// isOrderNumberConflict reports a race where concurrent transactions picked
// the same per-tenant order number.
func isOrderNumberConflict(err error) bool {
	return isUniqueViolation(err, "orders_tenant_id_order_number_key")
}

// isInvoiceNumberConflict reports an invoice number the tenant already issued.
// Numbers are unique per tenant, so tenants sharing a prefix never collide.
func isInvoiceNumberConflict(err error) bool {
	return isUniqueViolation(err, "invoices_tenant_id_invoice_number_key")
}
