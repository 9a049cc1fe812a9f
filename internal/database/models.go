package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Tenant struct {
	ID                uuid.UUID       `json:"id"`
	Name              string          `json:"name"`
	Slug              string          `json:"slug"`
	Currency          string          `json:"currency"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	InvoicePrefix     string          `json:"invoice_prefix"`
	IsActive          bool            `json:"is_active"`
	CreatedAt         time.Time       `json:"created_at"`
}

type Staff struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashed_password"`
	FullName       string    `json:"full_name"`
	Role           string    `json:"role"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

type MenuItem struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	Name        string          `json:"name"`
	Description pgtype.Text     `json:"description"`
	Price       decimal.Decimal `json:"price"`
	IsAvailable bool            `json:"is_available"`
	CreatedAt   time.Time       `json:"created_at"`
}

type RestaurantTable struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Label     string    `json:"label"`
	Status    string    `json:"status"`
	IsActive  bool      `json:"is_active"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	OrderNumber        int32              `json:"order_number"`
	TableID            pgtype.UUID        `json:"table_id"`
	Status             string             `json:"status"`
	PaymentStatus      string             `json:"payment_status"`
	PaymentMethod      pgtype.Text        `json:"payment_method"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	TaxAmount          decimal.Decimal    `json:"tax_amount"`
	ServiceCharge      decimal.Decimal    `json:"service_charge"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	CustomerName       pgtype.Text        `json:"customer_name"`
	CustomerPhone      pgtype.Text        `json:"customer_phone"`
	Instructions       pgtype.Text        `json:"instructions"`
	CancelReason       pgtype.Text        `json:"cancel_reason"`
	StartedPreparingAt pgtype.Timestamptz `json:"started_preparing_at"`
	ReadyAt            pgtype.Timestamptz `json:"ready_at"`
	ServedAt           pgtype.Timestamptz `json:"served_at"`
	CompletedAt        pgtype.Timestamptz `json:"completed_at"`
	CancelledAt        pgtype.Timestamptz `json:"cancelled_at"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

type OrderItem struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	MenuItemID          uuid.UUID       `json:"menu_item_id"`
	Name                string          `json:"name"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	Quantity            int32           `json:"quantity"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	Status              string          `json:"status"`
	SpecialInstructions pgtype.Text     `json:"special_instructions"`
	Options             []byte          `json:"options"`
	CreatedAt           time.Time       `json:"created_at"`
}

type TableSession struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	TableID       uuid.UUID          `json:"table_id"`
	OrderID       pgtype.UUID        `json:"order_id"`
	Status        string             `json:"status"`
	SeatedAt      time.Time          `json:"seated_at"`
	OrderPlacedAt pgtype.Timestamptz `json:"order_placed_at"`
	FoodReadyAt   pgtype.Timestamptz `json:"food_ready_at"`
	ServedAt      pgtype.Timestamptz `json:"served_at"`
	BillingAt     pgtype.Timestamptz `json:"billing_at"`
	CompletedAt   pgtype.Timestamptz `json:"completed_at"`
}

type Invoice struct {
	ID              uuid.UUID       `json:"id"`
	TenantID        uuid.UUID       `json:"tenant_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	Items           []byte          `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	ServiceCharge   decimal.Decimal `json:"service_charge"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	Notes           pgtype.Text     `json:"notes"`
	Printed         bool            `json:"printed"`
	CreatedAt       time.Time       `json:"created_at"`
}

type PrinterQueueEntry struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	OrderID       uuid.UUID          `json:"order_id"`
	ReceiptType   string             `json:"receipt_type"`
	Payload       []byte             `json:"payload"`
	Status        string             `json:"status"`
	Attempts      int32              `json:"attempts"`
	ErrorMessage  pgtype.Text        `json:"error_message"`
	NextAttemptAt time.Time          `json:"next_attempt_at"`
	PrintedAt     pgtype.Timestamptz `json:"printed_at"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type WaiterCall struct {
	ID             uuid.UUID          `json:"id"`
	TenantID       uuid.UUID          `json:"tenant_id"`
	TableID        uuid.UUID          `json:"table_id"`
	Reason         string             `json:"reason"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	AcknowledgedAt pgtype.Timestamptz `json:"acknowledged_at"`
	ResolvedAt     pgtype.Timestamptz `json:"resolved_at"`
}
