// internal/cart/cart.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"

	"cartbackend/internal/payment"
)

// Quantity bounds for a line item. Decrementing below the minimum removes
// the item from the cart instead of clamping (see Store.SetQuantity).
const (
	minQuantity = 1
	maxQuantity = 999
)

// addedEventTTL bounds how long a last-added event counts as fresh. Consumers
// must ignore older events so a rehydrated cart never replays a notification.
const addedEventTTL = time.Second

// ReceiptMode selects which of the two price lists prices the cart.
type ReceiptMode string

const (
	ModeUnset    ReceiptMode = ""
	ModeIntown   ReceiptMode = "intown"
	ModeShipping ReceiptMode = "shipping"
)

// ValidMode reports whether m is a selectable receipt mode.
func ValidMode(m ReceiptMode) bool {
	return m == ModeIntown || m == ModeShipping
}

// LineItem is one product-and-quantity entry in the cart. Custom items carry
// the same entered price in both price fields.
type LineItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IntownPrice  decimal.Decimal `json:"intown_price"`
	ShippedPrice decimal.Decimal `json:"shipped_price"`
	Quantity     int             `json:"quantity"`
	Image        string          `json:"image,omitempty"`
}

// UnitPrice returns the price used for totals under the given receipt mode.
// An unset mode prices the cart in-town.
func (li LineItem) UnitPrice(mode ReceiptMode) decimal.Decimal {
	if mode == ModeShipping {
		return nonNegative(li.ShippedPrice)
	}
	return nonNegative(li.IntownPrice)
}

// AddedEvent records the most recent AddItem call. It only drives a one-shot
// UI notification and is not part of durable pricing state.
type AddedEvent struct {
	Name           string    `json:"name"`
	QuantityAdded  int       `json:"quantity_added"`
	TotalItemCount int       `json:"total_item_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// Fresh reports whether the event is still recent enough to notify on.
func (e *AddedEvent) Fresh(now time.Time) bool {
	return e != nil && now.Sub(e.Timestamp) <= addedEventTTL
}

// State is the full cart state. LastAdded is excluded from serialization so
// rehydration never resurrects a stale notification.
type State struct {
	Items         []LineItem      `json:"items"`
	PaymentMethod payment.Method  `json:"payment_method,omitempty"`
	ReceiptMode   ReceiptMode     `json:"receipt_mode,omitempty"`
	Discount      decimal.Decimal `json:"discount"`

	LastAdded *AddedEvent `json:"-"`
}

// clone returns a deep enough copy for handing outside the store's lock.
func (st *State) clone() State {
	out := *st
	out.Items = make([]LineItem, len(st.Items))
	copy(out.Items, st.Items)
	if st.LastAdded != nil {
		ev := *st.LastAdded
		out.LastAdded = &ev
	}
	return out
}

func (st *State) itemCount() int {
	count := 0
	for _, item := range st.Items {
		count += item.Quantity
	}
	return count
}

func (st *State) findItem(id string) int {
	for i := range st.Items {
		if st.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// nonNegative treats missing or invalid prices as zero instead of rejecting
// them; a zero price renders as "Free" downstream.
func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func clampQuantity(q int) int {
	if q < minQuantity {
		return minQuantity
	}
	if q > maxQuantity {
		return maxQuantity
	}
	return q
}
