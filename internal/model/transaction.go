package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CartItem is a server-synced cart line.
type CartItem struct {
	ID           int64           `json:"id"`
	CartID       int64           `json:"cart_id"`
	ProductID    int64           `json:"product_id"`
	ProductSkuID *int64          `json:"product_sku_id"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type Cart struct {
	ID    int64      `json:"id"`
	Items []CartItem `json:"items"`
}

// SelectedCartItem is the client-only checkout projection of a cart line, keyed by product.
type SelectedCartItem struct {
	CartItemID   int64           `json:"cart_item_id"`
	ProductID    int64           `json:"product_id"`
	ProductSkuID *int64          `json:"product_sku_id"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// Select projects a cart line into its selected form.
func (c CartItem) Select() SelectedCartItem {
	return SelectedCartItem{
		CartItemID:   c.ID,
		ProductID:    c.ProductID,
		ProductSkuID: c.ProductSkuID,
		Name:         c.Name,
		Image:        c.Image,
		Quantity:     c.Quantity,
		Price:        c.Price,
		Subtotal:     c.Price.Mul(decimal.NewFromInt(c.Quantity)),
	}
}

type PaymentMethod struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code"`
	Type  string `json:"type"`
	Image string `json:"image"`
}

// PosSettings carries the tax percentage applied at checkout.
type PosSettings struct {
	ID       int64           `json:"id"`
	BranchID int64           `json:"branch_id"`
	Tax      decimal.Decimal `json:"tax"`
	IsTax    Flag            `json:"is_tax"`
}

// OrderPayload is assembled once per submit attempt and never stored.
type OrderPayload struct {
	BranchID        int64              `json:"branch_id" validate:"required,gt=0"`
	UserID          int64              `json:"user_id" validate:"required,gt=0"`
	SubTotal        decimal.Decimal    `json:"sub_total"`
	TaxAmount       decimal.Decimal    `json:"tax_amount"`
	DiscountAmount  decimal.Decimal    `json:"discount_amount"`
	PaymentMethodID int64              `json:"payment_method_id" validate:"required,gt=0"`
	PaymentAmount   decimal.Decimal    `json:"payment_amount" validate:"gte=0"`
	DiscountID      *int64             `json:"discount_id"`
	CustomerID      *int64             `json:"customer_id"`
	Items           []SelectedCartItem `json:"items" validate:"required,min=1,dive"`
}

// MarshalJSON sends the amounts as JSON numbers; the order endpoint rejects
// quoted amounts.
func (p OrderPayload) MarshalJSON() ([]byte, error) {
	type plain OrderPayload
	return json.Marshal(struct {
		plain
		SubTotal       json.Number `json:"sub_total"`
		TaxAmount      json.Number `json:"tax_amount"`
		DiscountAmount json.Number `json:"discount_amount"`
		PaymentAmount  json.Number `json:"payment_amount"`
	}{
		plain:          plain(p),
		SubTotal:       json.Number(p.SubTotal.String()),
		TaxAmount:      json.Number(p.TaxAmount.String()),
		DiscountAmount: json.Number(p.DiscountAmount.String()),
		PaymentAmount:  json.Number(p.PaymentAmount.String()),
	})
}

type TransactionItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Transaction is the order detail shown on the confirmation view.
type Transaction struct {
	ID              int64             `json:"id"`
	Invoice         string            `json:"invoice"`
	BranchID        int64             `json:"branch_id"`
	SubTotal        decimal.Decimal   `json:"sub_total"`
	TaxAmount       decimal.Decimal   `json:"tax_amount"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
	PaymentAmount   decimal.Decimal   `json:"payment_amount"`
	PaymentMethodID int64             `json:"payment_method_id"`
	Status          string            `json:"status"`
	Items           []TransactionItem `json:"items"`
	CreatedAt       time.Time         `json:"created_at"`
}
