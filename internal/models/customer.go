package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	CustomerStatusPending  = "pending"
	CustomerStatusActive   = "active"
	CustomerStatusInactive = "inactive"
	CustomerStatusDeleted  = "deleted"
)

// Customer is a WiFi subscriber. Customers with financial history are
// soft-deleted via Status.
type Customer struct {
	BaseModel
	Name            string     `gorm:"not null" json:"name"`
	Email           string     `gorm:"not null;index:idx_customers_email_live,unique,where:status <> 'deleted'" json:"email"`
	Phone           string     `gorm:"not null" json:"phone"`
	PlanID          *uuid.UUID `gorm:"type:uuid;index" json:"plan_id"`
	Plan            *Plan      `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Address         string     `json:"address"`
	Status          string     `gorm:"not null;default:pending;index" json:"status"`
	JoinDate        time.Time  `json:"join_date"`
	LastPaymentDate *time.Time `json:"last_payment_date"`
}

// IsCustomerStatus reports whether s is a status clients may assign.
func IsCustomerStatus(s string) bool {
	switch s {
	case CustomerStatusPending, CustomerStatusActive, CustomerStatusInactive:
		return true
	}
	return false
}
