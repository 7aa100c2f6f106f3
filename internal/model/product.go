package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Flag decodes the backend's boolean columns, which arrive as true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	switch string(data) {
	case "", "null", "0", "false":
		*f = false
		return nil
	case "1", "true":
		*f = true
		return nil
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = n != 0
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Product mirrors the backend product resource including branch scoped stock and prices.
type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Code         string          `json:"code"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode"`
	Image        string          `json:"image"`
	Description  string          `json:"description,omitempty"`
	CategoryID   *int64          `json:"category_id"`
	IsVariant    Flag            `json:"is_variant"`
	IsBundle     Flag            `json:"is_bundle"`
	PriceProduct decimal.Decimal `json:"price_product"`
	Stocks       []ProductStock  `json:"product_stocks"`
	Prices       []ProductPrice  `json:"product_prices"`
	Skus         []ProductSku    `json:"product_skus"`
	BundleItems  []BundleItem    `json:"bundle_items"`
	Category     *Category       `json:"category,omitempty"`
}

// ProductStock is owned by the backend and read-only here.
type ProductStock struct {
	ID           int64  `json:"id"`
	BranchID     int64  `json:"branch_id"`
	ProductID    int64  `json:"product_id"`
	ProductSkuID *int64 `json:"product_sku_id"`
	Qty          int64  `json:"qty"`
}

// ProductPrice is a price row tagged by branch and optionally by variant.
type ProductPrice struct {
	ID           int64           `json:"id"`
	BranchID     *int64          `json:"branch_id"`
	ProductID    int64           `json:"product_id"`
	ProductSkuID *int64          `json:"product_sku_id"`
	Price        decimal.Decimal `json:"price"`
}

type ProductSku struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Sku       string `json:"sku"`
	Name      string `json:"name"`
	Barcode   string `json:"barcode"`
}

// BundleItem references a child product sold inside a bundle.
type BundleItem struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ChildProductID int64           `json:"child_product_id"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Product        *Product        `json:"product,omitempty"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Reference is the shape shared by brands, units and product types.
type Reference struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Page is the paginator returned inside the response "data" field of listing endpoints.
type Page[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}
