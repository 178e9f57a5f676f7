package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/legionbilling/internal/database"
	"github.com/example/legionbilling/internal/logger"
	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services/daraja"
)

var dbSeq atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLogger(zap.NewNop(), gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedPlan(t *testing.T, db *gorm.DB, name, price string) models.Plan {
	t.Helper()
	plan := models.Plan{
		Name:      name,
		Speed:     "25 Mbps",
		Price:     decimal.RequireFromString(price),
		DataLimit: "Unlimited",
		IsActive:  true,
	}
	require.NoError(t, db.Create(&plan).Error)
	return plan
}

func seedCustomer(t *testing.T, db *gorm.DB, email string, planID *uuid.UUID) models.Customer {
	t.Helper()
	customer := models.Customer{
		Name:     "Jane Wanjiku",
		Email:    email,
		Phone:    "0712345678",
		PlanID:   planID,
		Status:   models.CustomerStatusActive,
		JoinDate: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&customer).Error)
	return customer
}

func seedBill(t *testing.T, db *gorm.DB, customerID uuid.UUID, amount string, due time.Time) models.Bill {
	t.Helper()
	bill := models.Bill{
		CustomerID: customerID,
		Amount:     decimal.RequireFromString(amount),
		IssueDate:  models.StartOfDay(time.Now()),
		DueDate:    models.StartOfDay(due),
		Status:     models.BillStatusPending,
	}
	require.NoError(t, db.Create(&bill).Error)
	return bill
}

func seedPendingMpesa(t *testing.T, db *gorm.DB, customerID uuid.UUID, billID *uuid.UUID, checkoutID, amount string) models.Payment {
	t.Helper()
	payment := models.Payment{
		CustomerID:    customerID,
		BillID:        billID,
		Amount:        decimal.RequireFromString(amount),
		PaymentMethod: models.PaymentMethodMpesa,
		TransactionID: checkoutID,
		Status:        models.PaymentStatusPending,
	}
	require.NoError(t, db.Create(&payment).Error)
	return payment
}

type gatewayMock struct {
	mock.Mock
}

func (m *gatewayMock) InitiateSTKPush(ctx context.Context, req daraja.PushRequest) (*daraja.PushResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*daraja.PushResponse)
	return resp, args.Error(1)
}

func (m *gatewayMock) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*daraja.Result, error) {
	args := m.Called(ctx, checkoutRequestID)
	result, _ := args.Get(0).(*daraja.Result)
	return result, args.Error(1)
}

func newPaymentService(db *gorm.DB, gateway Gateway) *PaymentService {
	svc := NewPaymentService(db, gateway, nil, nil, zap.NewNop(), PollConfig{})
	return svc
}

func successCallback(checkoutID string, amount string, receipt string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": %s},
          {"Name": "MpesaReceiptNumber", "Value": %q},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`, checkoutID, amount, receipt))
}

func failureCallback(checkoutID string, code int, desc string) []byte {
	return []byte(fmt.Sprintf(`{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": %q,
      "ResultCode": %d,
      "ResultDesc": %q
    }
  }
}`, checkoutID, code, desc))
}
