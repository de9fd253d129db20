// internal/cart/totals.go
package cart

import (
	"github.com/shopspring/decimal"

	"cartbackend/internal/payment"
)

// Totals is the derived order summary. It is a pure function of cart state:
// nothing here is cached, so it can never go stale after a mutation.
type Totals struct {
	Subtotal              decimal.Decimal `json:"subtotal"`
	Discount              decimal.Decimal `json:"discount"`
	SubtotalAfterDiscount decimal.Decimal `json:"subtotal_after_discount"`
	FeePercent            int64           `json:"fee_percent"`
	FeeAmount             decimal.Decimal `json:"fee_amount"`
	Total                 decimal.Decimal `json:"total"`
	TotalItemCount        int             `json:"total_item_count"`
}

// computeTotals derives the order summary from st.
//
// The fee is rounded half-up to the nearest whole currency unit. The rounding
// rule is deliberately fixed here in one place: decimal.Round rounds half away
// from zero, and every amount in the pipeline is non-negative, so round(1.5)=2
// and round(1.2)=1.
func computeTotals(st *State) Totals {
	subtotal := decimal.Zero
	for _, item := range st.Items {
		line := item.UnitPrice(st.ReceiptMode).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	// The discount never drives the subtotal negative.
	discount := nonNegative(st.Discount)
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	afterDiscount := subtotal.Sub(discount)

	feePercent := payment.FeePercent(st.PaymentMethod)
	feeAmount := afterDiscount.
		Mul(decimal.NewFromInt(feePercent)).
		Div(decimal.NewFromInt(100)).
		Round(0)

	return Totals{
		Subtotal:              subtotal,
		Discount:              discount,
		SubtotalAfterDiscount: afterDiscount,
		FeePercent:            feePercent,
		FeeAmount:             feeAmount,
		Total:                 afterDiscount.Add(feeAmount),
		TotalItemCount:        st.itemCount(),
	}
}
