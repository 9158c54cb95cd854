package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the ledger view of a sellable item.
type Product struct {
	ID               int64           `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	CurrencyID       int64           `json:"currency_id"`
	StockQuantity    decimal.Decimal `json:"stock_quantity"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity"`
	IsActive         bool            `json:"is_active"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Available returns the stock not held by open quotes.
func (p Product) Available() decimal.Decimal {
	return p.StockQuantity.Sub(p.ReservedQuantity)
}
