package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stored bill statuses. BillStatusOverdue is never persisted; it is the
// projection of a pending bill whose due date has passed.
const (
	BillStatusPending   = "pending"
	BillStatusPaid      = "paid"
	BillStatusOverdue   = "overdue"
	BillStatusCancelled = "cancelled"
)

// Bill is an amount owed by a customer by a due date.
type Bill struct {
	BaseModel
	CustomerID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer      *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	PlanID        *uuid.UUID      `gorm:"type:uuid" json:"plan_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Description   string          `json:"description"`
	IssueDate     time.Time       `gorm:"not null" json:"issue_date"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	Status        string          `gorm:"not null;default:pending;index" json:"status"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   *time.Time      `json:"payment_date"`
}

// EffectiveStatus projects the stored status onto the given instant.
func (b *Bill) EffectiveStatus(now time.Time) string {
	if b.Status == BillStatusPending && b.DueDate.Before(StartOfDay(now)) {
		return BillStatusOverdue
	}
	return b.Status
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBillStatus reports whether s names a bill status, including the overdue
// projection.
func IsBillStatus(s string) bool {
	switch s {
	case BillStatusPending, BillStatusPaid, BillStatusOverdue, BillStatusCancelled:
		return true
	}
	return false
}
