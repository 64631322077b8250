package models

import "gorm.io/gorm"

// Customer is a read-only projection of the panel's customer base,
// looked up by phone to personalize replies.
type Customer struct {
	gorm.Model

	Phone string `json:"phone" gorm:"uniqueIndex;not null"`
	Name  string `json:"name"`
}

// DisplayName returns the name used in rendered messages, falling back
// to a neutral greeting when the customer is unknown.
func (c *Customer) DisplayName() string {
	if c == nil || c.Name == "" {
		return "cliente"
	}
	return c.Name
}
