// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"cartbackend/internal/cart"
	"cartbackend/internal/catalog"
	"cartbackend/internal/logger"
	"cartbackend/internal/middleware"
	"cartbackend/internal/payment"
	"cartbackend/internal/receipt"
	"cartbackend/internal/session"
	"cartbackend/internal/storage"
)

// Handler owns the HTTP surface over the cart stores. One store per session,
// created lazily and rehydrated from storage on first touch.
type Handler struct {
	catalog *catalog.Service

	mu     sync.Mutex
	stores map[string]*cart.Store
}

func NewHandler(catalogSvc *catalog.Service) *Handler {
	return &Handler{
		catalog: catalogSvc,
		stores:  make(map[string]*cart.Store),
	}
}

// storeFor returns the session's cart store, constructing and rehydrating it
// on first use.
func (h *Handler) storeFor(sessionID string) *cart.Store {
	h.mu.Lock()
	defer h.mu.Unlock()

	if store, ok := h.stores[sessionID]; ok {
		return store
	}
	store := cart.NewStore(storage.CartPersister{SessionID: sessionID})
	h.stores[sessionID] = store
	return store
}

// cartView is the response shape for cart reads and most mutations.
type cartView struct {
	Items          []cart.LineItem  `json:"items"`
	PaymentMethod  payment.Method   `json:"payment_method,omitempty"`
	ReceiptMode    cart.ReceiptMode `json:"receipt_mode,omitempty"`
	Totals         cart.Totals      `json:"totals"`
	LastAdded      *cart.AddedEvent `json:"last_added,omitempty"`
	TotalItemCount int              `json:"total_item_count"`
}

func viewOf(store *cart.Store) cartView {
	totals := store.Totals()
	return cartView{
		Items:          store.Items(),
		PaymentMethod:  store.PaymentMethod(),
		ReceiptMode:    store.ReceiptMode(),
		Totals:         totals,
		LastAdded:      store.LastAdded(),
		TotalItemCount: totals.TotalItemCount,
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed",
			"Use POST for this endpoint", "")
		return false
	}
	return true
}

// SessionHandler issues a fresh cart session id.
func (h *Handler) SessionHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, map[string]string{"session_id": session.NewSessionID()})
}

// CatalogHandler lists the available products.
func (h *Handler) CatalogHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, h.catalog.Products())
}

// PaymentMethodsHandler lists the payment methods and their fee percentages.
func (h *Handler) PaymentMethodsHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, payment.Methods())
}

// GetCartHandler returns the cart contents plus freshly derived totals.
func (h *Handler) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	store := h.storeFor(middleware.GetSessionID(r.Context()))
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// AddItemHandler adds one unit of a catalog product to the cart.
func (h *Handler) AddItemHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	product, ok := h.catalog.Get(req.ProductID)
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "unknown_product",
			"No such product in the catalog", req.ProductID)
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.AddItem(product)
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// AddCustomItemHandler adds an ad-hoc item with a manually entered price.
func (h *Handler) AddCustomItemHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Name     string `json:"name"`
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	if err := store.AddCustomItem(req.Name, req.Price, req.Quantity); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_price",
			"Price must be a non-negative amount", req.Price)
		return
	}
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// RemoveItemHandler deletes a line item.
func (h *Handler) RemoveItemHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.RemoveItem(req.ID)
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// SetQuantityHandler updates a line item's quantity. An explicit numeric
// quantity below 1 removes the item; raw text input is normalized instead.
func (h *Handler) SetQuantityHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		ID       string  `json:"id"`
		Quantity *int    `json:"quantity,omitempty"`
		Input    *string `json:"input,omitempty"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	switch {
	case req.Quantity != nil:
		store.SetQuantity(req.ID, *req.Quantity)
	case req.Input != nil:
		store.SetQuantityText(req.ID, *req.Input)
	default:
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request",
			"Either quantity or input is required", "")
		return
	}
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// SetDiscountHandler stores the flat discount amount.
func (h *Handler) SetDiscountHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.SetDiscount(req.Amount)
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// SetPaymentMethodHandler selects the payment channel.
func (h *Handler) SetPaymentMethodHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Method payment.Method `json:"method"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	if !payment.Valid(req.Method) {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "unknown_method",
			"Not an accepted payment method", string(req.Method))
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.SetPaymentMethod(req.Method)
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// SetReceiptModeHandler selects in-town pickup or shipping pricing.
func (h *Handler) SetReceiptModeHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Mode cart.ReceiptMode `json:"mode"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}

	if !cart.ValidMode(req.Mode) {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "unknown_mode",
			"Receipt mode must be intown or shipping", string(req.Mode))
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.SetReceiptMode(req.Mode)
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// ClearCartHandler empties the cart. Destructive, so the client must send an
// explicit confirmation flag; the UI asks the user first.
func (h *Handler) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Confirm bool `json:"confirm"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "bad_request", "Invalid request body", err.Error())
		return
	}
	if !req.Confirm {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "confirmation_required",
			"Clearing the cart requires confirm=true", "")
		return
	}

	store := h.storeFor(middleware.GetSessionID(r.Context()))
	store.Clear()
	middleware.WriteAPISuccess(w, r, viewOf(store))
}

// ReceiptHandler renders the textual order block for the messaging handoff.
func (h *Handler) ReceiptHandler(w http.ResponseWriter, r *http.Request) {
	store := h.storeFor(middleware.GetSessionID(r.Context()))

	text, err := receipt.Render(store.Items(), store.ReceiptMode(), store.PaymentMethod(), store.Totals())
	if err != nil {
		if errors.Is(err, receipt.ErrNoPaymentMethod) || errors.Is(err, receipt.ErrNoReceiptMode) {
			middleware.WriteAPIError(w, r, http.StatusConflict, "incomplete_selection",
				"Select a payment method and receipt mode before exporting", err.Error())
			return
		}
		middleware.WriteAPIError(w, r, http.StatusConflict, "empty_cart",
			"Cannot export a receipt for an empty cart", err.Error())
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]string{"receipt": text})
}

// StatsHandler reports storage and catalog statistics for monitoring.
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	count, oldest, err := storage.CartStats()
	if err != nil {
		logger.LogError("Failed to read cart stats: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "stats_unavailable",
			"Could not read storage statistics", "")
		return
	}

	stats := map[string]interface{}{
		"carts_stored":    count,
		"active_sessions": session.ActiveCount(),
		"catalog":         h.catalog.GetStats(),
		"generated_at":    time.Now().UTC(),
	}
	if oldest != nil {
		stats["oldest_cart"] = humanize.Time(*oldest)
	}
	middleware.WriteAPISuccess(w, r, stats)
}
