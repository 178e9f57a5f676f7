package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBillCreateCopiesPlan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewBillService(db)

	plan := seedPlan(t, db, "Standard", "49.99")
	customer := seedCustomer(t, db, "plan@example.com", &plan.ID)

	bill, err := svc.Create(ctx, Actor{}, BillInput{
		CustomerID:  customer.ID,
		Amount:      decimal.RequireFromString("49.99"),
		Description: "March",
		DueDate:     time.Now().AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPending, bill.Status)
	require.NotNil(t, bill.PlanID)
	assert.Equal(t, plan.ID, *bill.PlanID)
	require.NotNil(t, bill.Customer)

	_, err = svc.Create(ctx, Actor{}, BillInput{CustomerID: customer.ID, Amount: decimal.NewFromInt(-1), DueDate: time.Now()})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(ctx, Actor{}, BillInput{CustomerID: customer.ID, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBillUpdateRejectsPaidStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewBillService(db)

	customer := seedCustomer(t, db, "patch@example.com", nil)
	bill := seedBill(t, db, customer.ID, "50", time.Now().AddDate(0, 0, 5))

	paid := models.BillStatusPaid
	_, err := svc.Update(ctx, Actor{}, bill.ID, BillUpdate{Status: &paid})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Bill status can only be set to pending or cancelled", err.Error())

	overdue := models.BillStatusOverdue
	_, err = svc.Update(ctx, Actor{}, bill.ID, BillUpdate{Status: &overdue})
	assert.ErrorIs(t, err, ErrValidation)

	cancelled := models.BillStatusCancelled
	updated, err := svc.Update(ctx, Actor{}, bill.ID, BillUpdate{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusCancelled, updated.Status)

	require.NoError(t, db.Model(&models.Bill{}).Where("id = ?", bill.ID).Update("status", models.BillStatusPaid).Error)
	desc := "changed"
	_, err = svc.Update(ctx, Actor{}, bill.ID, BillUpdate{Description: &desc})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCancelledBillIsNeverPaid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	bills := NewBillService(db)
	payments := newPaymentService(db, new(gatewayMock))

	customer := seedCustomer(t, db, "cancel@example.com", nil)
	bill := seedBill(t, db, customer.ID, "50", time.Now().AddDate(0, 0, 5))
	payment := seedPendingMpesa(t, db, customer.ID, &bill.ID, "ws_CO_CANCEL", "50")

	cancelled := models.BillStatusCancelled
	_, err := bills.Update(ctx, Actor{}, bill.ID, BillUpdate{Status: &cancelled})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Cannot cancel a bill with a pending payment", err.Error())

	// Cancelled out of band while the prompt was still open.
	require.NoError(t, db.Model(&models.Bill{}).Where("id = ?", bill.ID).Update("status", models.BillStatusCancelled).Error)
	require.NoError(t, payments.HandleCallback(ctx, successCallback("ws_CO_CANCEL", "50", "CNCL1")))

	var stored models.Payment
	require.NoError(t, db.First(&stored, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusCompleted, stored.Status)

	var untouched models.Bill
	require.NoError(t, db.First(&untouched, "id = ?", bill.ID).Error)
	assert.Equal(t, models.BillStatusCancelled, untouched.Status)
	assert.Nil(t, untouched.PaymentDate)
}

func TestBillDeleteGuards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewBillService(db)

	customer := seedCustomer(t, db, "del@example.com", nil)

	referenced := seedBill(t, db, customer.ID, "50", time.Now().AddDate(0, 0, 5))
	seedPendingMpesa(t, db, customer.ID, &referenced.ID, "ws_CO_BILL", "50")
	assert.ErrorIs(t, svc.Delete(ctx, Actor{}, referenced.ID), ErrConflict)

	paid := seedBill(t, db, customer.ID, "50", time.Now().AddDate(0, 0, 5))
	require.NoError(t, db.Model(&paid).Update("status", models.BillStatusPaid).Error)
	assert.ErrorIs(t, svc.Delete(ctx, Actor{}, paid.ID), ErrConflict)

	free := seedBill(t, db, customer.ID, "50", time.Now().AddDate(0, 0, 5))
	require.NoError(t, svc.Delete(ctx, Actor{}, free.ID))
	_, err := svc.Get(ctx, free.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBillOverdueProjection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewBillService(db)
	now := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	svc.now = fixedNow(now)

	customer := seedCustomer(t, db, "late@example.com", nil)
	late := seedBill(t, db, customer.ID, "50", now.AddDate(0, 0, -1))
	dueToday := seedBill(t, db, customer.ID, "30", now)
	paidLate := seedBill(t, db, customer.ID, "20", now.AddDate(0, 0, -10))
	require.NoError(t, db.Model(&paidLate).Update("status", models.BillStatusPaid).Error)

	got, err := svc.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusOverdue, got.Status)

	got, err = svc.Get(ctx, dueToday.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BillStatusPending, got.Status)

	pg := utils.Pagination{Page: 1, Limit: 10}
	bills, total, err := svc.List(ctx, BillFilter{Status: models.BillStatusOverdue}, pg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, bills, 1)
	assert.Equal(t, late.ID, bills[0].ID)
	assert.Equal(t, models.BillStatusOverdue, bills[0].Status)

	bills, total, err = svc.List(ctx, BillFilter{Status: models.BillStatusPending}, pg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, dueToday.ID, bills[0].ID)

	count, err := svc.CountOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	var stored models.Bill
	require.NoError(t, db.First(&stored, "id = ?", late.ID).Error)
	assert.Equal(t, models.BillStatusPending, stored.Status)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Total)
	assert.EqualValues(t, 1, stats.ByStatus[models.BillStatusOverdue])
	assert.EqualValues(t, 1, stats.ByStatus[models.BillStatusPending])
	assert.EqualValues(t, 1, stats.ByStatus[models.BillStatusPaid])
	assert.True(t, stats.Outstanding.Equal(decimal.NewFromInt(80)), stats.Outstanding.String())
	assert.True(t, stats.OverdueDue.Equal(decimal.NewFromInt(50)), stats.OverdueDue.String())
	assert.True(t, stats.Collected.Equal(decimal.NewFromInt(20)), stats.Collected.String())
}

func TestBillGeneratePricesFromPlan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewBillService(db)
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	svc.now = fixedNow(now)

	plan := seedPlan(t, db, "Premium", "79.99")
	withPlan := seedCustomer(t, db, "p@example.com", &plan.ID)
	withoutPlan := seedCustomer(t, db, "n@example.com", nil)
	inactive := seedCustomer(t, db, "i@example.com", &plan.ID)
	require.NoError(t, db.Model(&inactive).Update("status", models.CustomerStatusInactive).Error)

	bills, err := svc.Generate(ctx, Actor{}, time.Time{}, "")
	require.NoError(t, err)
	require.Len(t, bills, 2)

	byCustomer := map[string]models.Bill{}
	for _, b := range bills {
		byCustomer[b.CustomerID.String()] = b
	}
	planned := byCustomer[withPlan.ID.String()]
	assert.True(t, planned.Amount.Equal(plan.Price))
	assert.Equal(t, "Monthly service - Premium", planned.Description)
	assert.Equal(t, models.StartOfDay(now).AddDate(0, 0, 30), planned.DueDate)

	unplanned := byCustomer[withoutPlan.ID.String()]
	assert.True(t, unplanned.Amount.Equal(DefaultBillAmount))

	var generated int64
	require.NoError(t, db.Model(&models.Activity{}).Where("action = ?", "bill.generated").Count(&generated).Error)
	assert.EqualValues(t, 1, generated)
}
