package models

import "github.com/shopspring/decimal"

// Plan is a named service tier.
type Plan struct {
	BaseModel
	Name        string          `gorm:"not null" json:"name"`
	Speed       string          `gorm:"not null" json:"speed"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	DataLimit   string          `gorm:"default:Unlimited" json:"data_limit"`
	Description string          `json:"description"`
	IsActive    bool            `gorm:"not null;index" json:"is_active"`
}
