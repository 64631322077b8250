package models

import "gorm.io/gorm"

// WelcomeTemplate holds the store's daily welcome message pattern.
// Pattern may contain {a|b|c} variant groups and the placeholders
// {cliente_nome}, {nome_loja} and {link_catalogo}.
type WelcomeTemplate struct {
	gorm.Model

	StoreEID string `json:"store_eid" gorm:"uniqueIndex;not null"`
	Pattern  string `json:"pattern" gorm:"type:text"`
	Active   bool   `json:"active" gorm:"default:true"`
}
