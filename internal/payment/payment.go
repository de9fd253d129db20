// internal/payment/payment.go
package payment

// Method identifies one of the fixed payment channels the shop accepts.
// No gateway is integrated; the receipt is settled out of band, so a method
// only carries the surcharge applied to the order.
type Method string

const (
	MethodUnset        Method = ""
	MethodCard         Method = "card"
	MethodInstallments Method = "installments"
	MethodTransfer     Method = "transfer"
	MethodCash         Method = "cash"
)

// Info describes a payment method for catalog-style listings.
type Info struct {
	ID         Method `json:"id"`
	Label      string `json:"label"`
	FeePercent int64  `json:"fee_percent"`
}

var schedule = []Info{
	{ID: MethodCard, Label: "Credit card", FeePercent: 6},
	{ID: MethodInstallments, Label: "Installments", FeePercent: 5},
	{ID: MethodTransfer, Label: "Bank transfer", FeePercent: 4},
	{ID: MethodCash, Label: "Cash", FeePercent: 0},
}

// FeePercent returns the surcharge percentage for a method.
// Unset or unknown methods carry no fee so totals stay computable.
func FeePercent(m Method) int64 {
	for _, info := range schedule {
		if info.ID == m {
			return info.FeePercent
		}
	}
	return 0
}

// Valid reports whether m is one of the accepted payment methods.
func Valid(m Method) bool {
	for _, info := range schedule {
		if info.ID == m {
			return true
		}
	}
	return false
}

// Methods returns the full fee schedule in display order.
func Methods() []Info {
	out := make([]Info, len(schedule))
	copy(out, schedule)
	return out
}
