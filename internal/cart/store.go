// internal/cart/store.go
package cart

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cartbackend/internal/catalog"
	"cartbackend/internal/logger"
	"cartbackend/internal/payment"
)

// ErrInvalidPrice is returned by AddCustomItem when the entered price does
// not parse as a non-negative amount. It is the only mutation that rejects
// input; everything else normalizes to a safe default.
var ErrInvalidPrice = fmt.Errorf("invalid price")

// Persister is the durable storage collaborator. Save is called after every
// mutation; Load exactly once, when the store is constructed.
type Persister interface {
	Load() (*State, error)
	Save(State) error
}

// Store owns one cart and provides atomic, synchronous mutation and read
// operations. Totals are always re-derived from current state, never cached.
type Store struct {
	mu      sync.Mutex
	state   State
	persist Persister
}

// NewStore builds a store, rehydrating from p when it holds a saved cart.
// A nil persister yields a session-only cart. Rehydration is the initial
// state, not a mutation: it never regenerates a last-added event.
func NewStore(p Persister) *Store {
	s := &Store{
		state:   State{Items: []LineItem{}},
		persist: p,
	}
	if p == nil {
		return s
	}

	saved, err := p.Load()
	if err != nil {
		logger.LogError("Cart rehydration failed, starting empty: %v", err)
		return s
	}
	if saved != nil {
		s.state = saved.clone()
		s.state.LastAdded = nil
		if s.state.Items == nil {
			s.state.Items = []LineItem{}
		}
	}
	return s
}

// AddItem adds one unit of a catalog product. Adding a product already in
// the cart increments its quantity; at the 999 cap the stored quantity stays
// put but the operation still succeeds and still emits an added event.
func (s *Store) AddItem(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.state.findItem(p.ID); i >= 0 {
		if s.state.Items[i].Quantity < maxQuantity {
			s.state.Items[i].Quantity++
		}
	} else {
		s.state.Items = append(s.state.Items, LineItem{
			ID:           p.ID,
			Name:         p.Name,
			IntownPrice:  nonNegative(p.IntownPrice),
			ShippedPrice: nonNegative(p.ShippedPrice),
			Quantity:     1,
			Image:        p.Image,
		})
	}

	s.state.LastAdded = &AddedEvent{
		Name:           p.Name,
		QuantityAdded:  1,
		TotalItemCount: s.state.itemCount(),
		Timestamp:      time.Now(),
	}
	s.persistLocked()
}

// AddCustomItem appends an ad-hoc line item priced identically for in-town
// and shipping. A bad price rejects the whole operation; a bad quantity
// silently defaults to 1.
func (s *Store) AddCustomItem(name, priceText, quantityText string) error {
	price, err := decimal.NewFromString(strings.TrimSpace(priceText))
	if err != nil || price.IsNegative() {
		return ErrInvalidPrice
	}

	quantity := 1
	if q, err := strconv.Atoi(strings.TrimSpace(quantityText)); err == nil && q > 0 {
		quantity = clampQuantity(q)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Generated ids can never collide with catalog product ids.
	s.state.Items = append(s.state.Items, LineItem{
		ID:           "custom-" + uuid.NewString(),
		Name:         name,
		IntownPrice:  price,
		ShippedPrice: price,
		Quantity:     quantity,
	})
	s.persistLocked()
	return nil
}

// RemoveItem deletes the line item with the given id; no-op if absent.
func (s *Store) RemoveItem(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) {
	i := s.state.findItem(id)
	if i < 0 {
		return
	}
	s.state.Items = append(s.state.Items[:i], s.state.Items[i+1:]...)
	s.persistLocked()
}

// SetQuantity sets an item's quantity from an explicit control. Quantities
// above 999 clamp; decrementing below 1 removes the item from the cart
// rather than leaving it at zero. That removal is deliberate policy.
func (s *Store) SetQuantity(id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.findItem(id)
	if i < 0 {
		return
	}
	if quantity < minQuantity {
		s.removeLocked(id)
		return
	}
	s.state.Items[i].Quantity = clampQuantity(quantity)
	s.persistLocked()
}

// SetQuantityText sets an item's quantity from raw text input. Only digit
// characters are kept; an empty or zero result falls back to 1.
func (s *Store) SetQuantityText(id, raw string) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	quantity := 1
	if q, err := strconv.Atoi(digits); err == nil && q > 0 {
		quantity = q
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.findItem(id)
	if i < 0 {
		return
	}
	s.state.Items[i].Quantity = clampQuantity(quantity)
	s.persistLocked()
}

// SetDiscount stores the flat discount. Invalid or negative input is
// normalized to zero, never surfaced as an error.
func (s *Store) SetDiscount(amountText string) {
	amount, err := decimal.NewFromString(strings.TrimSpace(amountText))
	if err != nil || amount.IsNegative() {
		amount = decimal.Zero
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Discount = amount
	s.persistLocked()
}

// SetPaymentMethod records the payment channel used for the fee surcharge.
func (s *Store) SetPaymentMethod(m payment.Method) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.PaymentMethod = m
	s.persistLocked()
}

// SetReceiptMode selects which price list the cart is totaled against.
func (s *Store) SetReceiptMode(m ReceiptMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ReceiptMode = m
	s.persistLocked()
}

// Clear resets the cart to empty, dropping payment method, receipt mode,
// discount and any pending added event. Irreversible; the caller is expected
// to have confirmed with the user already.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Items: []LineItem{}}
	s.persistLocked()
}

// Items returns a copy of the line items in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, len(s.state.Items))
	copy(out, s.state.Items)
	return out
}

// ItemCount returns the sum of all quantities without computing totals.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.itemCount()
}

// PaymentMethod returns the selected payment method, if any.
func (s *Store) PaymentMethod() payment.Method {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.PaymentMethod
}

// ReceiptMode returns the selected receipt mode, if any.
func (s *Store) ReceiptMode() ReceiptMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ReceiptMode
}

// LastAdded returns the pending added event, or nil once it has gone stale.
func (s *Store) LastAdded() *AddedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.LastAdded.Fresh(time.Now()) {
		return nil
	}
	ev := *s.state.LastAdded
	return &ev
}

// Totals re-derives the order summary from current state.
func (s *Store) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return computeTotals(&s.state)
}

// persistLocked writes the cart through to durable storage. A failed write
// is logged and swallowed: the in-memory state stays authoritative for the
// rest of the session.
func (s *Store) persistLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist.Save(s.state.clone()); err != nil {
		logger.LogError("Failed to persist cart state: %v", err)
	}
}
