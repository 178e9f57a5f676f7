package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodCard         = "card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodMpesa        = "mpesa"
)

// Payment is an attempt to settle a bill, or a free-standing payment.
// For M-Pesa, TransactionID holds the gateway CheckoutRequestID.
type Payment struct {
	BaseModel
	CustomerID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer          *Customer       `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	BillID            *uuid.UUID      `gorm:"type:uuid;index" json:"bill_id"`
	Bill              *Bill           `gorm:"foreignKey:BillID" json:"bill,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaymentMethod     string          `gorm:"not null" json:"payment_method"`
	TransactionID     string          `gorm:"index" json:"transaction_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	Status            string          `gorm:"not null;default:pending;index" json:"status"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	ResultCode        string          `json:"result_code,omitempty"`
	ResultDesc        string          `json:"result_desc,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	PaymentDate       *time.Time      `json:"payment_date"`
	MpesaPhone        string          `json:"mpesa_phone,omitempty"`
	MpesaReceipt      string          `json:"mpesa_receipt,omitempty"`
}

// IsTerminal reports whether the payment may no longer change status.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusFailed
}

// IsPaymentMethod reports whether m is a supported payment method.
func IsPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodMpesa:
		return true
	}
	return false
}
