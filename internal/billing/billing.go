// Package billing holds the money math for orders and invoices.
//
// All amounts are shopspring decimals rounded to two places at the boundaries
// where a value is persisted or shown (line totals, tax, service charge,
// discount, invoice total).
package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SplitTolerance is how far declared split amounts may drift from the total.
var SplitTolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

// Line is one priced order line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int32
}

// Totals is the order-level money breakdown.
type Totals struct {
	Subtotal      decimal.Decimal
	TaxAmount     decimal.Decimal
	ServiceCharge decimal.Decimal
	TotalAmount   decimal.Decimal
}

// SplitAmounts is the per-instrument breakdown of a split payment.
type SplitAmounts struct {
	Cash decimal.Decimal
	UPI  decimal.Decimal
	Card decimal.Decimal
}

// Sum returns cash + upi + card.
func (s SplitAmounts) Sum() decimal.Decimal {
	return s.Cash.Add(s.UPI).Add(s.Card)
}

// Note renders the breakdown for the invoice notes column.
func (s SplitAmounts) Note() string {
	return fmt.Sprintf("Split payment: cash %s, upi %s, card %s",
		s.Cash.StringFixed(2), s.UPI.StringFixed(2), s.Card.StringFixed(2))
}

// SplitMismatchError reports split amounts that do not reconcile to the total.
type SplitMismatchError struct {
	Total    decimal.Decimal
	Declared decimal.Decimal
}

func (e *SplitMismatchError) Error() string {
	diff := e.Total.Sub(e.Declared)
	switch {
	case diff.IsPositive():
		return fmt.Sprintf("split amounts %s do not match total %s (short by %s)",
			e.Declared.StringFixed(2), e.Total.StringFixed(2), diff.StringFixed(2))
	default:
		return fmt.Sprintf("split amounts %s do not match total %s (over by %s)",
			e.Declared.StringFixed(2), e.Total.StringFixed(2), diff.Neg().StringFixed(2))
	}
}

// Round rounds to currency precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeTotals prices a cart. Rates are percentages (5 means 5%).
// total = subtotal + tax + service charge.
func ComputeTotals(lines []Line, taxRate, serviceRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity)))
	}
	subtotal = Round(subtotal)
	tax := Round(subtotal.Mul(taxRate).Div(hundred))
	service := Round(subtotal.Mul(serviceRate).Div(hundred))
	return Totals{
		Subtotal:      subtotal,
		TaxAmount:     tax,
		ServiceCharge: service,
		TotalAmount:   subtotal.Add(tax).Add(service),
	}
}

// ApplyDiscount takes percent off the order total and returns the discount and
// the invoice total. The total never goes below zero.
func ApplyDiscount(orderTotal, percent decimal.Decimal) (discount, total decimal.Decimal) {
	discount = Round(orderTotal.Mul(percent).Div(hundred))
	total = orderTotal.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return discount, Round(total)
}

// ValidateSplit checks that the declared instruments cover total within
// SplitTolerance.
func ValidateSplit(total decimal.Decimal, split SplitAmounts) error {
	declared := split.Sum()
	if total.Sub(declared).Abs().GreaterThan(SplitTolerance) {
		return &SplitMismatchError{Total: total, Declared: declared}
	}
	return nil
}

// InvoicePrefix derives the tenant part of an invoice number. A configured
// prefix wins; otherwise the first six hex digits of the tenant id.
func InvoicePrefix(configured string, tenantID uuid.UUID) string {
	if p := strings.TrimSpace(configured); p != "" {
		return strings.ToUpper(p)
	}
	return strings.ToUpper(strings.ReplaceAll(tenantID.String(), "-", "")[:6])
}

// InvoiceNumber formats INV-<PREFIX>-<YYYYMMDD>-<seq>.
func InvoiceNumber(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%s-%04d", prefix, at.UTC().Format("20060102"), seq)
}
