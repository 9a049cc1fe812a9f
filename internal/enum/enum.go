package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusServed    = "served"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
)

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

const (
	PrintStatusQueued     = "queued"
	PrintStatusProcessing = "processing"
	PrintStatusSuccess    = "success"
	PrintStatusFailed     = "failed"
)

const (
	WaiterCallPending      = "pending"
	WaiterCallAcknowledged = "acknowledged"
	WaiterCallResolved     = "resolved"
)

const (
	TableSessionOpen      = "open"
	TableSessionCompleted = "completed"
)

const (
	TableStatusIdle     = "idle"
	TableStatusOccupied = "occupied"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	RoleCustomer = "customer"
	RoleKitchen  = "kitchen"
	RoleWaiter   = "waiter"
	RoleBilling  = "billing"
	RoleAdmin    = "admin"
)

const (
	ReceiptKitchen = "kitchen"
	ReceiptBilling = "billing"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash   = "cash"
	PaymentMethodUPI    = "upi"
	PaymentMethodCard   = "card"
	PaymentMethodWallet = "wallet"
	PaymentMethodSplit  = "split"
)

// Change-feed collections, named after the tables that raise them.
const (
	CollectionOrders       = "orders"
	CollectionTables       = "restaurant_tables"
	CollectionWaiterCalls  = "waiter_calls"
	CollectionPrinterQueue = "printer_queue"
)
