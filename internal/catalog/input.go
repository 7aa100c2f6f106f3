package catalog

import (
	"strings"

	"github.com/rembon2016/cts-merchant-sub001/pkg/formenc"
)

// ProductInput is the add/edit product form. Number fields arrive as the user typed
// them and are normalised before validation.
type ProductInput struct {
	Name          string        `json:"name" validate:"required,max=255"`
	Code          string        `json:"code,omitempty"`
	SKU           string        `json:"sku,omitempty"`
	Barcode       string        `json:"barcode,omitempty"`
	Description   string        `json:"description,omitempty"`
	CategoryID    *int64        `json:"category_id,omitempty"`
	BrandID       *int64        `json:"brand_id,omitempty"`
	UnitID        *int64        `json:"unit_id,omitempty"`
	TypeProductID *int64        `json:"type_product_id,omitempty"`
	IsVariant     bool          `json:"is_variant"`
	IsBundle      bool          `json:"is_bundle"`
	Price         string        `json:"price" validate:"required,digits_only"`
	Stock         string        `json:"stock,omitempty" validate:"omitempty,digits_only"`
	Skus          []SkuInput    `json:"skus,omitempty" validate:"required_if=IsVariant true,dive"`
	BundleItems   []BundleInput `json:"bundle_items,omitempty" validate:"required_if=IsBundle true,dive"`
	Image         *formenc.File `json:"image,omitempty"`
}

type SkuInput struct {
	Sku     string `json:"sku" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Barcode string `json:"barcode,omitempty"`
	Price   string `json:"price" validate:"required,digits_only"`
	Stock   string `json:"stock,omitempty" validate:"omitempty,digits_only"`
}

type BundleInput struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Price     string `json:"price,omitempty" validate:"omitempty,digits_only"`
}

// Normalize strips display formatting from every number field.
func (in *ProductInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Price = NormalizeNumber(in.Price)
	in.Stock = NormalizeNumber(in.Stock)
	for i := range in.Skus {
		in.Skus[i].Price = NormalizeNumber(in.Skus[i].Price)
		in.Skus[i].Stock = NormalizeNumber(in.Skus[i].Stock)
	}
	for i := range in.BundleItems {
		in.BundleItems[i].Price = NormalizeNumber(in.BundleItems[i].Price)
	}
}

type CategoryInput struct {
	Name        string        `json:"name" validate:"required,max=255"`
	Description string        `json:"description,omitempty"`
	Image       *formenc.File `json:"image,omitempty"`
}

func (in *CategoryInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
}

// NormalizeNumber turns a formatted amount such as "Rp 10.000" or "1.250,50" into its
// integer digits. A comma followed by at most two digits is a decimal separator and the
// fraction is dropped; any other separator is a thousands mark.
func NormalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ','); i >= 0 && len(s)-i-1 <= 2 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
