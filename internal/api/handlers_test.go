// internal/api/handlers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"cartbackend/internal/catalog"
	"cartbackend/internal/middleware"
	"cartbackend/internal/storage"
)

// apiSuite wires a real catalog, a temp sqlite database and the full
// middleware chain behind an httptest server.
type apiSuite struct {
	server *httptest.Server
	client *http.Client
}

func newAPISuite(t *testing.T) *apiSuite {
	t.Helper()

	testDir := filepath.Join(os.TempDir(), fmt.Sprintf("apitest_%d_%d", time.Now().UnixNano(), os.Getpid()))
	if err := os.MkdirAll(testDir, 0755); err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}

	catalogPath := filepath.Join(testDir, "catalog.json")
	catalogJSON := `{
		"products": [
			{"id": "p1", "name": "Widget", "intown_price": 10, "shipped_price": 12, "available": true},
			{"id": "p2", "name": "Gadget", "intown_price": 5.5, "shipped_price": 7, "available": true},
			{"id": "p3", "name": "Retired", "intown_price": 1, "shipped_price": 1, "available": false}
		]
	}`
	if err := os.WriteFile(catalogPath, []byte(catalogJSON), 0644); err != nil {
		t.Fatalf("Failed to write test catalog: %v", err)
	}

	catalogSvc := catalog.NewService()
	if err := catalogSvc.LoadFromFile(catalogPath); err != nil {
		t.Fatalf("Failed to load test catalog: %v", err)
	}

	if err := storage.InitDB(filepath.Join(testDir, "test.db")); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	if err := storage.CreateTables(); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	handler := NewHandler(catalogSvc)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", middleware.PublicMiddleware(handler.SessionHandler))
	mux.HandleFunc("/api/catalog", middleware.PublicMiddleware(handler.CatalogHandler))
	mux.HandleFunc("/api/payment-methods", middleware.PublicMiddleware(handler.PaymentMethodsHandler))
	mux.HandleFunc("/api/stats", middleware.PublicMiddleware(handler.StatsHandler))
	mux.HandleFunc("/api/cart", middleware.APIMiddleware(handler.GetCartHandler))
	mux.HandleFunc("/api/cart/items", middleware.APIMiddleware(handler.AddItemHandler))
	mux.HandleFunc("/api/cart/custom-items", middleware.APIMiddleware(handler.AddCustomItemHandler))
	mux.HandleFunc("/api/cart/remove-item", middleware.APIMiddleware(handler.RemoveItemHandler))
	mux.HandleFunc("/api/cart/quantity", middleware.APIMiddleware(handler.SetQuantityHandler))
	mux.HandleFunc("/api/cart/discount", middleware.APIMiddleware(handler.SetDiscountHandler))
	mux.HandleFunc("/api/cart/payment-method", middleware.APIMiddleware(handler.SetPaymentMethodHandler))
	mux.HandleFunc("/api/cart/receipt-mode", middleware.APIMiddleware(handler.SetReceiptModeHandler))
	mux.HandleFunc("/api/cart/clear", middleware.APIMiddleware(handler.ClearCartHandler))
	mux.HandleFunc("/api/cart/receipt", middleware.APIMiddleware(handler.ReceiptHandler))

	suite := &apiSuite{
		server: httptest.NewServer(mux),
		client: &http.Client{Timeout: 10 * time.Second},
	}

	t.Cleanup(func() {
		suite.server.Close()
		if err := storage.CloseDB(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
		if err := os.RemoveAll(testDir); err != nil {
			t.Logf("Warning: failed to cleanup test directory: %v", err)
		}
	})

	return suite
}

// request makes an API call. Session-scoped endpoints are rate limited per
// session, so a short pause keeps sequential test calls under the limit.
func (s *apiSuite) request(t *testing.T, method, path string, body interface{}, sessionID string) *http.Response {
	t.Helper()

	if sessionID != "" {
		time.Sleep(250 * time.Millisecond)
	}

	var reqBody *bytes.Buffer
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(bodyBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decodeData(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()

	var envelope middleware.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	data, ok := envelope.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected object data, got %T", envelope.Data)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("Expected status %d, got %d", expected, resp.StatusCode)
	}
}

func (s *apiSuite) newSession(t *testing.T) string {
	t.Helper()

	resp := s.request(t, http.MethodGet, "/api/session", nil, "")
	assertStatus(t, resp, http.StatusOK)
	data := decodeData(t, resp)

	sessionID, _ := data["session_id"].(string)
	if sessionID == "" {
		t.Fatal("Expected a session id")
	}
	return sessionID
}

func TestCheckoutFlow(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	// Add the same product twice: one line, quantity 2
	for i := 0; i < 2; i++ {
		resp := suite.request(t, http.MethodPost, "/api/cart/items",
			map[string]string{"product_id": "p1"}, sessionID)
		assertStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := suite.request(t, http.MethodGet, "/api/cart", nil, sessionID)
	assertStatus(t, resp, http.StatusOK)
	view := decodeData(t, resp)
	if count := view["total_item_count"].(float64); count != 2 {
		t.Errorf("Expected item count 2, got %v", count)
	}
	items := view["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("Expected 1 line item, got %d", len(items))
	}

	// Receipt refuses until payment method and receipt mode are chosen
	resp = suite.request(t, http.MethodGet, "/api/cart/receipt", nil, sessionID)
	assertStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = suite.request(t, http.MethodPost, "/api/cart/receipt-mode",
		map[string]string{"mode": "shipping"}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = suite.request(t, http.MethodPost, "/api/cart/payment-method",
		map[string]string{"method": "installments"}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = suite.request(t, http.MethodGet, "/api/cart/receipt", nil, sessionID)
	assertStatus(t, resp, http.StatusOK)
	data := decodeData(t, resp)
	receipt := data["receipt"].(string)
	for _, want := range []string{"2 x Widget  $24.00", "Total: $25.00", "Delivery: shipping"} {
		if !strings.Contains(receipt, want) {
			t.Errorf("Receipt missing %q:\n%s", want, receipt)
		}
	}
}

func TestSessionRequired(t *testing.T) {
	suite := newAPISuite(t)

	resp := suite.request(t, http.MethodGet, "/api/cart", nil, "")
	assertStatus(t, resp, http.StatusUnauthorized)
	resp.Body.Close()

	// A malformed session id is rejected before any store is touched
	req, _ := http.NewRequest(http.MethodGet, suite.server.URL+"/api/cart", nil)
	req.Header.Set("X-Session-ID", "not-a-uuid")
	malformed, err := suite.client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	assertStatus(t, malformed, http.StatusUnauthorized)
	malformed.Body.Close()
}

func TestAddUnknownProduct(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	resp := suite.request(t, http.MethodPost, "/api/cart/items",
		map[string]string{"product_id": "nope"}, sessionID)
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	// Unavailable products are not in the served catalog either
	resp = suite.request(t, http.MethodPost, "/api/cart/items",
		map[string]string{"product_id": "p3"}, sessionID)
	assertStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestCustomItemValidation(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	resp := suite.request(t, http.MethodPost, "/api/cart/custom-items",
		map[string]string{"name": "Gift", "price": "not-a-price", "quantity": "1"}, sessionID)
	assertStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = suite.request(t, http.MethodPost, "/api/cart/custom-items",
		map[string]string{"name": "Gift", "price": "0", "quantity": "1"}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	view := decodeData(t, resp)
	if count := view["total_item_count"].(float64); count != 1 {
		t.Errorf("Expected item count 1, got %v", count)
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	resp := suite.request(t, http.MethodPost, "/api/cart/items",
		map[string]string{"product_id": "p1"}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = suite.request(t, http.MethodPost, "/api/cart/clear",
		map[string]bool{"confirm": false}, sessionID)
	assertStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = suite.request(t, http.MethodPost, "/api/cart/clear",
		map[string]bool{"confirm": true}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	view := decodeData(t, resp)
	if count := view["total_item_count"].(float64); count != 0 {
		t.Errorf("Expected empty cart after clear, got count %v", count)
	}
}

func TestCartWrittenThroughToStorage(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	resp := suite.request(t, http.MethodPost, "/api/cart/items",
		map[string]string{"product_id": "p2"}, sessionID)
	assertStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// Every mutation lands in the database, minus the ephemeral added event
	loaded, err := storage.LoadCart(sessionID)
	if err != nil {
		t.Fatalf("Failed to load cart from storage: %v", err)
	}
	if loaded == nil || len(loaded.Items) != 1 || loaded.Items[0].ID != "p2" {
		t.Fatalf("Expected persisted cart with p2, got %+v", loaded)
	}
	if loaded.LastAdded != nil {
		t.Error("Expected the added event to be excluded from storage")
	}
}

func TestSessionIDFormat(t *testing.T) {
	suite := newAPISuite(t)
	sessionID := suite.newSession(t)

	if _, err := uuid.Parse(sessionID); err != nil {
		t.Errorf("Expected a uuid session id, got %q: %v", sessionID, err)
	}
}
