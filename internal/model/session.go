package model

import (
	"github.com/shopspring/decimal"
)

// Session is everything a merchant UI used to keep in browser session storage.
// Checkout reads it as a one-directional snapshot at submit time.
type Session struct {
	Cart         []SelectedCartItem `json:"cart"`
	Tax          decimal.Decimal    `json:"tax"`
	Discount     decimal.Decimal    `json:"discount"`
	BranchActive int64              `json:"branchActive"`
	UserID       int64              `json:"userId"`
	AuthToken    string             `json:"authToken"`
	AuthPosToken string             `json:"authPosToken"`
}

// ClearCheckout drops the cart, tax and discount once an order went through.
func (s *Session) ClearCheckout() {
	s.Cart = nil
	s.Tax = decimal.Zero
	s.Discount = decimal.Zero
}

// SessionRecord is the gorm row backing a Session in postgres.
type SessionRecord struct {
	BaseModel
	Payload string `gorm:"type:text;not null" json:"payload"`
}

func (SessionRecord) TableName() string {
	return "merchant_sessions"
}
