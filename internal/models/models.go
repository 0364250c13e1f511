package models

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	OrderActive    OrderStatus = "active"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is one of the defined listing states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderActive, OrderFulfilled, OrderCancelled:
		return true
	}
	return false
}

// Terminal states are immutable: no transition may leave them.
func (s OrderStatus) Terminal() bool {
	return s == OrderFulfilled || s == OrderCancelled
}

// StoredOrder is one listing row. The primary key is the order hash computed
// by the settlement contract; everything else is denormalized from the signed
// parameters for querying. All uint256 values are decimal strings.
type StoredOrder struct {
	OrderHash     string          `json:"order_hash"`
	Maker         string          `json:"maker"`
	TokenContract string          `json:"token_contract"`
	TokenID       string          `json:"token_id"`
	PriceWei      string          `json:"price_wei"`
	StartTime     string          `json:"start_time"`
	EndTime       string          `json:"end_time"`
	Counter       string          `json:"counter"`
	Signature     string          `json:"signature"`
	Parameters    json.RawMessage `json:"parameters"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
