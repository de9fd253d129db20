// internal/catalog/types.go
package catalog

import "github.com/shopspring/decimal"

// Unified catalog structure for catalog.json
type CatalogData struct {
	Products []Product `json:"products"`
}

// Product is one sellable item. Every product carries two prices: the
// in-town pickup price and the shipped price.
type Product struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IntownPrice  decimal.Decimal `json:"intown_price"`
	ShippedPrice decimal.Decimal `json:"shipped_price"`
	Image        string          `json:"image,omitempty"`
	Category     string          `json:"category,omitempty"`
	Available    bool            `json:"available"`
}
