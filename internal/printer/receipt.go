package printer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/enum"
)

const receiptWidth = 32

// Receipt is the payload snapshot stored with a queue entry. It is taken at
// enqueue time so a reprint matches what the kitchen or guest saw.
type Receipt struct {
	Type          string         `json:"receipt_type"`
	OrderNumber   int32          `json:"order_number"`
	Table         string         `json:"table,omitempty"`
	Lines         []ReceiptLine  `json:"lines"`
	Instructions  string         `json:"instructions,omitempty"`
	Totals        *ReceiptTotals `json:"totals,omitempty"`
	InvoiceNumber string         `json:"invoice_number,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type ReceiptLine struct {
	Name         string          `json:"name"`
	Quantity     int32           `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Instructions string          `json:"instructions,omitempty"`
}

type ReceiptTotals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ServiceCharge  decimal.Decimal `json:"service_charge"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

func receiptLines(items []database.OrderItem) []ReceiptLine {
	lines := make([]ReceiptLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, ReceiptLine{
			Name:         it.Name,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Subtotal:     it.Subtotal,
			Instructions: it.SpecialInstructions.String,
		})
	}
	return lines
}

// KitchenTicket builds the ticket sent to the kitchen when preparation starts.
func KitchenTicket(order database.Order, items []database.OrderItem, table string) Receipt {
	return Receipt{
		Type:         enum.ReceiptKitchen,
		OrderNumber:  order.OrderNumber,
		Table:        table,
		Lines:        receiptLines(items),
		Instructions: order.Instructions.String,
		CreatedAt:    time.Now().UTC(),
	}
}

// BillingReceipt builds the guest receipt for a settled order.
func BillingReceipt(order database.Order, inv database.Invoice, items []database.OrderItem, table string) Receipt {
	return Receipt{
		Type:        enum.ReceiptBilling,
		OrderNumber: order.OrderNumber,
		Table:       table,
		Lines:       receiptLines(items),
		Totals: &ReceiptTotals{
			Subtotal:       inv.Subtotal,
			TaxAmount:      inv.TaxAmount,
			ServiceCharge:  inv.ServiceCharge,
			DiscountAmount: inv.DiscountAmount,
			TotalAmount:    inv.TotalAmount,
		},
		InvoiceNumber: inv.InvoiceNumber,
		PaymentMethod: inv.PaymentMethod,
		Notes:         inv.Notes.String,
		CreatedAt:     time.Now().UTC(),
	}
}

// Render formats a receipt for a plain-text thermal printer.
func Render(r Receipt) string {
	var b strings.Builder
	rule := strings.Repeat("-", receiptWidth) + "\n"

	switch r.Type {
	case enum.ReceiptKitchen:
		b.WriteString(center("KITCHEN TICKET"))
	default:
		b.WriteString(center("RECEIPT"))
	}
	fmt.Fprintf(&b, "Order #%d\n", r.OrderNumber)
	if r.Table != "" {
		fmt.Fprintf(&b, "Table %s\n", r.Table)
	} else {
		b.WriteString("Takeaway\n")
	}
	if r.InvoiceNumber != "" {
		fmt.Fprintf(&b, "%s\n", r.InvoiceNumber)
	}
	b.WriteString(r.CreatedAt.Format("2006-01-02 15:04") + "\n")
	b.WriteString(rule)

	for _, l := range r.Lines {
		if r.Type == enum.ReceiptKitchen {
			fmt.Fprintf(&b, "%3dx %s\n", l.Quantity, l.Name)
		} else {
			b.WriteString(columns(fmt.Sprintf("%dx %s", l.Quantity, l.Name), l.Subtotal.StringFixed(2)))
		}
		if l.Instructions != "" {
			fmt.Fprintf(&b, "     > %s\n", l.Instructions)
		}
	}
	if r.Instructions != "" {
		b.WriteString(rule)
		fmt.Fprintf(&b, "NOTE: %s\n", r.Instructions)
	}

	if t := r.Totals; t != nil {
		b.WriteString(rule)
		b.WriteString(columns("Subtotal", t.Subtotal.StringFixed(2)))
		b.WriteString(columns("Tax", t.TaxAmount.StringFixed(2)))
		if !t.ServiceCharge.IsZero() {
			b.WriteString(columns("Service", t.ServiceCharge.StringFixed(2)))
		}
		if !t.DiscountAmount.IsZero() {
			b.WriteString(columns("Discount", "-"+t.DiscountAmount.StringFixed(2)))
		}
		b.WriteString(columns("TOTAL", t.TotalAmount.StringFixed(2)))
		if r.PaymentMethod != "" {
			b.WriteString(columns("Paid by", strings.ToUpper(r.PaymentMethod)))
		}
		if r.Notes != "" {
			fmt.Fprintf(&b, "%s\n", r.Notes)
		}
	}
	return b.String()
}

func center(s string) string {
	pad := (receiptWidth - len(s)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + s + "\n"
}

func columns(left, right string) string {
	gap := receiptWidth - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right + "\n"
}
