package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Store represents a Rapidex merchant ("loja"). Each store owns exactly
// one WhatsApp session, identified by EID everywhere in the system.
type Store struct {
	gorm.Model

	EID    string `json:"eid" gorm:"uniqueIndex;not null"`
	Domain string `json:"domain" gorm:"uniqueIndex"` // e.g. "pizzaria-dolivio.rapidex.app.br"
	Name   string `json:"name"`
}

// CatalogLink returns the public catalog URL for the store.
func (s *Store) CatalogLink() string {
	return fmt.Sprintf("https://%s/cardapio", s.Domain)
}

// BeforeCreate normalizes the domain so link matching in the pipeline
// is never tripped up by casing.
func (s *Store) BeforeCreate(tx *gorm.DB) error {
	s.Domain = strings.ToLower(strings.TrimSpace(s.Domain))
	return nil
}
