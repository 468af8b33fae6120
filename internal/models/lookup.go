package models

import "github.com/shopspring/decimal"

type Truck struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

type Client struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Phone     string `json:"phone" db:"phone"`
	Address   string `json:"address" db:"address"`
	VATNumber string `json:"vat_number" db:"vat_number"`
}

type Product struct {
	ID    int64           `json:"id" db:"id"`
	SKU   string          `json:"sku" db:"sku"`
	Name  string          `json:"name" db:"name"`
	Unit  string          `json:"unit" db:"unit"`
	Price decimal.Decimal `json:"price" db:"price"`
}
