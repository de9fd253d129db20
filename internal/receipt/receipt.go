// internal/receipt/receipt.go
package receipt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cartbackend/internal/cart"
	"cartbackend/internal/payment"
)

// Precondition failures: the export refuses to render a partial order block
// until both selections are made. The UI blocks the copy action on these.
var (
	ErrNoPaymentMethod = errors.New("no payment method selected")
	ErrNoReceiptMode   = errors.New("no receipt mode selected")
	ErrEmptyCart       = errors.New("cart is empty")
)

// Render produces the human-readable order block handed off to the messaging
// channel. Pure formatting over the items, receipt mode and computed totals.
func Render(items []cart.LineItem, mode cart.ReceiptMode, method payment.Method, t cart.Totals) (string, error) {
	if !payment.Valid(method) {
		return "", ErrNoPaymentMethod
	}
	if !cart.ValidMode(mode) {
		return "", ErrNoReceiptMode
	}
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	var b strings.Builder
	b.WriteString("Order\n")
	b.WriteString("-----\n")
	for _, item := range items {
		line := item.UnitPrice(mode).Mul(decimal.NewFromInt(int64(item.Quantity)))
		fmt.Fprintf(&b, "%d x %s  %s\n", item.Quantity, item.Name, FormatAmount(line))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Delivery: %s\n", mode)
	fmt.Fprintf(&b, "Payment: %s\n", method)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", FormatCurrency(t.Subtotal))
	if t.Discount.IsPositive() {
		fmt.Fprintf(&b, "Discount: -%s\n", FormatCurrency(t.Discount))
	}
	fmt.Fprintf(&b, "Fee (%d%%): %s\n", t.FeePercent, FormatCurrency(t.FeeAmount))
	fmt.Fprintf(&b, "Total: %s\n", FormatCurrency(t.Total))

	return b.String(), nil
}

// FormatCurrency renders a money amount as two-decimal currency, zero
// included. Summary lines always show a number, item lines may show "Free".
func FormatCurrency(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// FormatAmount renders a money amount for display. Zero-valued prices show
// as "Free", everything else as two-decimal currency.
func FormatAmount(d decimal.Decimal) string {
	if d.IsZero() {
		return "Free"
	}
	return "$" + d.StringFixed(2)
}
