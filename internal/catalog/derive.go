package catalog

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/model"

	"github.com/shopspring/decimal"
)

// Deriver resolves stock and price of backend products for one active branch.
// A product without a matching branch row has zero stock.
type Deriver struct {
	BranchID int64
}

func NewDeriver(branchID int64) Deriver {
	return Deriver{BranchID: branchID}
}

// ProductStock returns the qty of the stock row for the active branch and skuID.
// A nil skuID matches the row that is not tied to any variant.
func (d Deriver) ProductStock(p *model.Product, skuID *int64) int64 {
	if p == nil {
		return 0
	}
	for _, s := range p.Stocks {
		if s.BranchID == d.BranchID && sameID(s.ProductSkuID, skuID) {
			return s.Qty
		}
	}
	return 0
}

// TotalVariantStock sums every stock row of the active branch regardless of SKU.
func (d Deriver) TotalVariantStock(p *model.Product) int64 {
	if p == nil {
		return 0
	}
	var total int64
	for _, s := range p.Stocks {
		if s.BranchID == d.BranchID {
			total += s.Qty
		}
	}
	return total
}

// ProductPrice resolves in three tiers: the price row of the active branch and variant,
// then the first product_prices row, then price_product.
func (d Deriver) ProductPrice(p *model.Product, skuID *int64) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	for _, pr := range p.Prices {
		if pr.BranchID != nil && *pr.BranchID == d.BranchID && sameID(pr.ProductSkuID, skuID) {
			return pr.Price
		}
	}
	if len(p.Prices) > 0 {
		return p.Prices[0].Price
	}
	return p.PriceProduct
}

// BundleStock is how many complete bundles the active branch can assemble from its
// children's stock.
func (d Deriver) BundleStock(p *model.Product) int64 {
	if p == nil || len(p.BundleItems) == 0 {
		return 0
	}
	var (
		least int64
		found bool
	)
	for _, item := range p.BundleItems {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		n := d.availableStock(item.Product) / qty
		if !found || n < least {
			least, found = n, true
		}
	}
	return least
}

// HasAvailableStock gates purchase: out-of-stock products are shown disabled.
func (d Deriver) HasAvailableStock(p *model.Product) bool {
	return d.availableStock(p) > 0
}

func (d Deriver) availableStock(p *model.Product) int64 {
	switch {
	case p == nil:
		return 0
	case bool(p.IsBundle):
		return d.BundleStock(p)
	case bool(p.IsVariant):
		return d.TotalVariantStock(p)
	}
	return d.ProductStock(p, nil)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ProductView is a product with its resolved stock and price for the active branch.
type ProductView struct {
	model.Product
	Stock     int64           `json:"stock"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

func (d Deriver) View(p model.Product) ProductView {
	stock := d.availableStock(&p)
	return ProductView{
		Product:   p,
		Stock:     stock,
		Price:     d.ProductPrice(&p, nil),
		Available: stock > 0,
	}
}

func (d Deriver) Views(products []model.Product) []ProductView {
	out := make([]ProductView, 0, len(products))
	for _, p := range products {
		out = append(out, d.View(p))
	}
	return out
}
