// Package pricing resolves catalog line items, discount codes and fulfillment
// costs into checkout totals.
//
// Every function in this package is a pure function of its inputs so totals can
// be recomputed for previews as often as needed without drifting.
package pricing

import (
	"sort"
	"strings"
)

// Product is a sellable catalog entry. Prices are in the ledger's native unit.
type Product struct {
	SKU       string `yaml:"sku" json:"sku"`
	Title     string `yaml:"title" json:"title"`
	UnitPrice int64  `yaml:"unit_price" json:"unit_price"`
	// Stock caps the quantity a single session may hold. Negative means unlimited.
	Stock int64 `yaml:"stock" json:"stock"`
}

// Unlimited reports whether the product has no inventory cap.
func (p Product) Unlimited() bool {
	return p.Stock < 0
}

// Catalog is an immutable snapshot of the merchant's products.
type Catalog struct {
	products map[string]Product
}

// NewCatalog indexes the supplied products by SKU. Later duplicates win.
func NewCatalog(products ...Product) *Catalog {
	index := make(map[string]Product, len(products))
	for _, p := range products {
		index[p.SKU] = p
	}
	return &Catalog{products: index}
}

// Lookup returns the product registered under sku.
func (c *Catalog) Lookup(sku string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.products[sku]
	return p, ok
}

// Products lists the catalog sorted by SKU.
func (c *Catalog) Products() []Product {
	if c == nil {
		return nil
	}
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// FulfillmentOption is a shipping or delivery method the merchant offers.
type FulfillmentOption struct {
	ID       string `yaml:"id" json:"id"`
	Title    string `yaml:"title" json:"title"`
	Subtitle string `yaml:"subtitle" json:"subtitle,omitempty"`
	// Type is either "shipping" or "digital".
	Type string `yaml:"type" json:"type"`
	Cost int64  `yaml:"cost" json:"cost"`
	// Countries lists ISO-3166 alpha-2 destinations. Empty ships anywhere.
	Countries []string `yaml:"countries" json:"countries,omitempty"`
}

// ShipsTo reports whether the option can deliver to country.
func (o FulfillmentOption) ShipsTo(country string) bool {
	if len(o.Countries) == 0 {
		return true
	}
	for _, c := range o.Countries {
		if strings.EqualFold(c, country) {
			return true
		}
	}
	return false
}
