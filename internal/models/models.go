package models

// ProductKind classifies whether a product can be bought on its own.
type ProductKind string

const (
	ProductKindBase   ProductKind = "base"
	ProductKindAddon  ProductKind = "addon"
	ProductKindBundle ProductKind = "bundle"
)

// Valid reports whether k is one of the known kinds.
func (k ProductKind) Valid() bool {
	switch k {
	case ProductKindBase, ProductKindAddon, ProductKindBundle:
		return true
	}
	return false
}

// Standalone reports whether k may be purchased without a paired base item.
func (k ProductKind) Standalone() bool {
	return k == ProductKindBase || k == ProductKindBundle
}

// Product is the parent product of a price row
type Product struct {
	ID     string      `db:"id" json:"id"`
	Slug   string      `db:"slug" json:"slug"`
	Name   string      `db:"name" json:"name"`
	Kind   ProductKind `db:"kind" json:"kind"`
	Active bool        `db:"active" json:"active"`
}

// PriceRow is the server-side authoritative price of one purchasable unit.
// UnitAmount is in minor currency units.
type PriceRow struct {
	ID              string  `db:"id" json:"id"`
	UnitAmount      int64   `db:"unit_amount" json:"unit_amount"`
	Currency        string  `db:"currency" json:"currency"`
	Active          bool    `db:"active" json:"active"`
	ProviderPriceID string  `db:"stripe_price_id" json:"stripe_price_id"`
	Product         Product `db:"product" json:"product"`
}

// Purchasable reports whether the row can be sold right now.
func (p *PriceRow) Purchasable() bool {
	return p.Active &&
		p.Product.Active &&
		p.ProviderPriceID != "" &&
		p.Product.Kind.Valid()
}

// AddonMapping is one legal (base, addon) product pairing
type AddonMapping struct {
	BaseProductID  string `db:"base_product_id" json:"base_product_id"`
	AddonProductID string `db:"addon_product_id" json:"addon_product_id"`
}
