package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Product is a catalog item scoped to one store. PhotoURL is optional;
// when present it points at a remote image the bot may attach inline.
type Product struct {
	gorm.Model

	StoreEID string  `json:"store_eid" gorm:"index;not null"`
	Name     string  `json:"name" gorm:"not null"`
	Price    float64 `json:"price"`
	PhotoURL string  `json:"photo_url"`
}

// FormattedPrice renders the price in Brazilian currency format.
func (p *Product) FormattedPrice() string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", p.Price), ".", ",", 1)
}
