// internal/catalog/catalog.go
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"cartbackend/internal/logger"
)

// Service holds the product catalog in memory. The catalog is read-only from
// the cart's perspective; it is loaded once at startup and can be reloaded.
type Service struct {
	products map[string]Product
	order    []string // insertion order for stable listings

	lastLoaded time.Time
	mutex      sync.RWMutex
}

func NewService() *Service {
	return &Service{
		products: make(map[string]Product),
	}
}

// LoadFromFile replaces the in-memory catalog with the contents of path.
func (s *Service) LoadFromFile(path string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	logger.LogInfo("Loading catalog from file: %s", path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}

	var catalog CatalogData
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	s.products = make(map[string]Product)
	s.order = s.order[:0]
	for _, p := range catalog.Products {
		if !p.Available {
			continue
		}
		if _, exists := s.products[p.ID]; exists {
			logger.LogWarn("Duplicate product id %q in catalog, keeping first entry", p.ID)
			continue
		}
		s.products[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	s.lastLoaded = time.Now()

	logger.LogInfo("Successfully loaded catalog: %d products", len(s.products))
	return nil
}

// Get returns the product with the given id, if it is available.
func (s *Service) Get(id string) (Product, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	p, exists := s.products[id]
	return p, exists
}

// Products returns all available products in catalog order.
func (s *Service) Products() []Product {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]Product, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.products[id])
	}
	return out
}

// Check if cache needs refresh (optional future enhancement)
func (s *Service) IsStale(maxAge time.Duration) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded) > maxAge
}

// Get cache age for debugging
func (s *Service) CacheAge() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return time.Since(s.lastLoaded)
}

// GetStats returns catalog statistics for debugging/monitoring
func (s *Service) GetStats() map[string]interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return map[string]interface{}{
		"products_count": len(s.products),
		"last_loaded":    s.lastLoaded,
		"cache_age":      time.Since(s.lastLoaded).String(),
	}
}
