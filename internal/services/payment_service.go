package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/legionbilling/internal/metrics"
	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/services/daraja"
	"github.com/example/legionbilling/internal/utils"
)

// Reconciliation sources, used for metrics and activity details.
const (
	SourceCallback = "callback"
	SourceQuery    = "query"
	SourceManual   = "manual"
)

// Gateway is the subset of the Daraja client the payment flow needs.
type Gateway interface {
	InitiateSTKPush(ctx context.Context, req daraja.PushRequest) (*daraja.PushResponse, error)
	QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*daraja.Result, error)
}

// Notifier receives settled payments.
type Notifier interface {
	NotifyPaymentOutcome(n PaymentNotification) error
}

// PollConfig bounds status polling for a single push request.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// PaymentService owns payment creation and reconciliation of gateway
// outcomes against payments, bills and customers.
type PaymentService struct {
	db       *gorm.DB
	gateway  Gateway
	notifier Notifier
	metrics  *metrics.Metrics
	log      *zap.Logger
	poll     PollConfig
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPaymentService(db *gorm.DB, gateway Gateway, notifier Notifier, m *metrics.Metrics, log *zap.Logger, poll PollConfig) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PaymentService{
		db:       db,
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		log:      log.With(zap.String("component", "payments")),
		poll:     poll,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close stops background status watchers and waits for them to exit.
func (s *PaymentService) Close() {
	s.cancel()
	s.wg.Wait()
}

// InitiateInput is a request to collect a payment over M-Pesa.
type InitiateInput struct {
	CustomerID  uuid.UUID
	BillID      *uuid.UUID
	Amount      decimal.Decimal
	PhoneNumber string
}

// InitiateResult is returned once the gateway accepted a push request.
type InitiateResult struct {
	PaymentID         uuid.UUID `json:"paymentId"`
	CheckoutRequestID string    `json:"checkoutRequestID"`
	MerchantRequestID string    `json:"merchantRequestID"`
	CustomerMessage   string    `json:"customerMessage"`
	IsSimulated       bool      `json:"isSimulated"`
}

// StatusResult reports where a push request stands.
type StatusResult struct {
	PaymentID          uuid.UUID       `json:"paymentId"`
	CheckoutRequestID  string          `json:"checkoutRequestID"`
	Status             string          `json:"status"`
	ResultCode         string          `json:"resultCode"`
	ResultDesc         string          `json:"resultDesc"`
	FailureReason      string          `json:"failureReason,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	MpesaReceiptNumber string          `json:"mpesaReceiptNumber"`
	PhoneNumber        string          `json:"phoneNumber"`
	IsSimulated        bool            `json:"isSimulated"`
}

// ApplyResult is the payment after an outcome was applied. Applied is false
// when the payment was already terminal.
type ApplyResult struct {
	Payment *models.Payment
	Applied bool
}

// InitiateMpesa creates a pending payment and sends an STK push for it.
func (s *PaymentService) InitiateMpesa(ctx context.Context, actor Actor, in InitiateInput) (*InitiateResult, error) {
	if in.Amount.LessThan(decimal.NewFromInt(1)) {
		return nil, invalid("Amount must be at least 1")
	}
	phone, err := daraja.NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, invalid("Invalid phone number format. Use 254XXXXXXXXX, 07XXXXXXXX or 7XXXXXXXX")
	}

	customer, err := s.liveCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if in.BillID != nil {
		if _, err := s.payableBill(ctx, *in.BillID, customer.ID); err != nil {
			return nil, err
		}
	}

	payment := models.Payment{
		CustomerID:    customer.ID,
		BillID:        in.BillID,
		Amount:        in.Amount,
		PaymentMethod: models.PaymentMethodMpesa,
		TransactionID: newTransactionID(s.now()),
		Status:        models.PaymentStatusPending,
		MpesaPhone:    phone,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "payment.initiated", "payment", payment.ID, map[string]any{
			"amount": payment.Amount.String(),
			"phone":  phone,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	resp, err := s.gateway.InitiateSTKPush(ctx, daraja.PushRequest{
		Phone:       phone,
		Amount:      in.Amount,
		Description: "Payment for " + customer.Name,
	})
	if err != nil {
		s.log.Error("stk push failed",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
		failure := daraja.Result{
			Outcome:       daraja.OutcomeFailed,
			FailureReason: daraja.FailureReasonRejected,
			ResultDesc:    err.Error(),
		}
		if _, applyErr := s.applyOutcome(ctx, "id", payment.ID, failure, SourceManual, actor); applyErr != nil {
			s.log.Error("failed to mark payment failed", zap.String("payment_id", payment.ID.String()), zap.Error(applyErr))
		}
		return nil, fmt.Errorf("%w: initiate mpesa payment: %w", ErrGateway, err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"transaction_id":      resp.CheckoutRequestID,
			"merchant_request_id": resp.MerchantRequestID,
		}).Error; err != nil {
		return nil, fmt.Errorf("store checkout request id: %w", err)
	}

	s.log.Info("stk push accepted",
		zap.String("payment_id", payment.ID.String()),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.Bool("simulated", resp.IsSimulated),
	)

	return &InitiateResult{
		PaymentID:         payment.ID,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   resp.CustomerMessage,
		IsSimulated:       resp.IsSimulated,
	}, nil
}

// Watch polls the gateway in the background until the push request settles,
// covering callbacks that never arrive. It stops on Close.
func (s *PaymentService) Watch(checkoutRequestID string) {
	if s.poll.MaxAttempts <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		// Give the callback a head start before the first query.
		timer := time.NewTimer(s.poll.Interval)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := s.AwaitOutcome(s.ctx, checkoutRequestID, s.poll.Interval, s.poll.MaxAttempts)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Warn("status watch ended with error",
					zap.String("checkout_request_id", checkoutRequestID),
					zap.Error(err),
				)
			}
			return
		}
		s.log.Info("status watch finished",
			zap.String("checkout_request_id", checkoutRequestID),
			zap.String("status", result.Status),
		)
	}()
}

// CheckStatus returns the state of a push request, querying the gateway and
// applying its answer while the payment is still pending.
func (s *PaymentService) CheckStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Where("transaction_id = ?", checkoutRequestID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Payment")
		}
		return nil, err
	}
	if payment.IsTerminal() {
		return statusFromPayment(&payment, false), nil
	}

	result, err := s.gateway.QuerySTKStatus(ctx, checkoutRequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: query payment status: %w", ErrGateway, err)
	}
	if result.Outcome == daraja.OutcomePending {
		status := statusFromPayment(&payment, result.IsSimulated)
		status.ResultCode = result.ResultCode
		status.ResultDesc = result.ResultDesc
		return status, nil
	}

	applied, err := s.Apply(ctx, checkoutRequestID, *result, SourceQuery)
	if err != nil {
		return nil, err
	}
	return statusFromPayment(applied.Payment, result.IsSimulated), nil
}

// AwaitOutcome polls CheckStatus until the payment leaves pending or
// maxAttempts is reached. Exhaustion is reported as a failed "timeout"
// outcome but not stored, so a late callback still settles the payment.
func (s *PaymentService) AwaitOutcome(ctx context.Context, checkoutRequestID string, interval time.Duration, maxAttempts int) (*StatusResult, error) {
	var last *StatusResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := s.CheckStatus(ctx, checkoutRequestID)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case err != nil:
			s.log.Warn("status poll failed",
				zap.String("checkout_request_id", checkoutRequestID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case status.Status != models.PaymentStatusPending:
			return status, nil
		default:
			last = status
		}

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if last == nil {
		last = &StatusResult{CheckoutRequestID: checkoutRequestID}
	}
	last.Status = models.PaymentStatusFailed
	last.FailureReason = daraja.FailureReasonTimeout
	last.ResultDesc = "Payment status polling timed out"
	return last, nil
}

// HandleCallback applies an asynchronous gateway notification. The returned
// error is for logging only; the gateway always gets an acknowledgement.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte) error {
	result, err := daraja.ParseCallback(body)
	if err != nil {
		return err
	}

	applied, err := s.Apply(ctx, result.CheckoutRequestID, *result, SourceCallback)
	if err != nil {
		return fmt.Errorf("apply callback for %s: %w", result.CheckoutRequestID, err)
	}
	if !applied.Applied {
		s.log.Info("callback for settled payment ignored",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.String("status", applied.Payment.Status),
		)
	}
	return nil
}

// Apply settles the payment correlated by checkoutRequestID with result.
func (s *PaymentService) Apply(ctx context.Context, checkoutRequestID string, result daraja.Result, source string) (*ApplyResult, error) {
	return s.applyOutcome(ctx, "transaction_id", checkoutRequestID, result, source, Actor{})
}

// applyOutcome locks the payment, and if it is still pending moves it and
// every dependent row to the new state in one transaction.
func (s *PaymentService) applyOutcome(ctx context.Context, column string, value any, result daraja.Result, source string, actor Actor) (*ApplyResult, error) {
	out := &ApplyResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(column+" = ?", value).
			First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Payment")
			}
			return err
		}
		out.Payment = &payment

		if payment.IsTerminal() || result.Outcome == daraja.OutcomePending {
			return nil
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":      string(result.Outcome),
			"result_code": result.ResultCode,
			"result_desc": result.ResultDesc,
		}
		if result.Outcome == daraja.OutcomeCompleted {
			updates["payment_date"] = now
			if result.ReceiptNumber != "" {
				updates["mpesa_receipt"] = result.ReceiptNumber
			}
			if result.PhoneNumber != "" {
				updates["mpesa_phone"] = result.PhoneNumber
			}
		} else {
			updates["failure_reason"] = result.FailureReason
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		details := map[string]any{
			"source":      source,
			"amount":      payment.Amount.String(),
			"result_code": result.ResultCode,
		}

		if result.Outcome == daraja.OutcomeCompleted {
			if !result.Amount.IsZero() && !result.Amount.Equal(payment.Amount) {
				s.log.Warn("gateway amount differs from payment amount",
					zap.String("payment_id", payment.ID.String()),
					zap.String("expected", payment.Amount.String()),
					zap.String("reported", result.Amount.String()),
				)
			}
			if payment.BillID != nil {
				billRes := tx.Model(&models.Bill{}).
					Where("id = ? AND status = ?", *payment.BillID, models.BillStatusPending).
					Updates(map[string]any{
						"status":         models.BillStatusPaid,
						"payment_method": payment.PaymentMethod,
						"payment_date":   now,
					})
				if billRes.Error != nil {
					return billRes.Error
				}
				if billRes.RowsAffected == 0 {
					s.log.Warn("completed payment left bill unchanged; bill is not pending",
						zap.String("payment_id", payment.ID.String()),
						zap.String("bill_id", payment.BillID.String()),
					)
					details["bill_unchanged"] = true
				}
			}
			if err := tx.Model(&models.Customer{}).
				Where("id = ?", payment.CustomerID).
				Update("last_payment_date", now).Error; err != nil {
				return err
			}
			details["receipt"] = result.ReceiptNumber
			if err := recordActivity(tx, actor, "payment.completed", "payment", payment.ID, details); err != nil {
				return err
			}
		} else {
			details["reason"] = result.FailureReason
			if err := recordActivity(tx, actor, "payment.failed", "payment", payment.ID, details); err != nil {
				return err
			}
		}

		var settled models.Payment
		if err := tx.Preload("Customer").First(&settled, "id = ?", payment.ID).Error; err != nil {
			return err
		}
		out.Payment = &settled
		out.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Applied {
		s.metrics.Reconciled(source, out.Payment.Status)
		s.log.Info("payment settled",
			zap.String("payment_id", out.Payment.ID.String()),
			zap.String("status", out.Payment.Status),
			zap.String("source", source),
		)
		s.notify(*out.Payment)
	}
	return out, nil
}

func (s *PaymentService) notify(payment models.Payment) {
	if s.notifier == nil {
		return
	}
	n := PaymentNotification{
		PaymentID:     payment.ID.String(),
		Amount:        payment.Amount,
		PaymentMethod: payment.PaymentMethod,
		Status:        payment.Status,
		Receipt:       payment.MpesaReceipt,
		FailureReason: payment.FailureReason,
	}
	if payment.Customer != nil {
		n.CustomerName = payment.Customer.Name
	}
	go func() {
		if err := s.notifier.NotifyPaymentOutcome(n); err != nil {
			s.log.Warn("payment notification failed", zap.Error(err))
		}
	}()
}

// RecordInput describes a manually recorded payment.
type RecordInput struct {
	CustomerID    uuid.UUID
	BillID        *uuid.UUID
	Amount        decimal.Decimal
	PaymentMethod string
	TransactionID string
	Notes         string
	Status        string
}

// RecordPayment stores a payment taken outside the gateway. Completed
// payments settle their bill through the same path as gateway outcomes.
func (s *PaymentService) RecordPayment(ctx context.Context, actor Actor, in RecordInput) (*models.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, invalid("Amount must be greater than 0")
	}
	if !models.IsPaymentMethod(in.PaymentMethod) {
		return nil, invalid("Invalid payment method")
	}
	if in.Status == "" {
		in.Status = models.PaymentStatusCompleted
	}
	if in.Status != models.PaymentStatusPending && in.Status != models.PaymentStatusCompleted {
		return nil, invalid("Status must be pending or completed")
	}

	customer, err := s.liveCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, err
	}
	if in.BillID != nil {
		if _, err := s.payableBill(ctx, *in.BillID, customer.ID); err != nil {
			return nil, err
		}
	}

	transactionID := in.TransactionID
	if transactionID == "" {
		transactionID = newTransactionID(s.now())
	}

	payment := models.Payment{
		CustomerID:    customer.ID,
		BillID:        in.BillID,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		TransactionID: transactionID,
		Status:        models.PaymentStatusPending,
		Notes:         in.Notes,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "payment.recorded", "payment", payment.ID, map[string]any{
			"amount": payment.Amount.String(),
			"method": payment.PaymentMethod,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if in.Status == models.PaymentStatusCompleted {
		applied, err := s.applyOutcome(ctx, "id", payment.ID, daraja.Result{
			Outcome:    daraja.OutcomeCompleted,
			ResultDesc: "Recorded manually",
		}, SourceManual, actor)
		if err != nil {
			return nil, err
		}
		return applied.Payment, nil
	}
	return &payment, nil
}

// UpdateInput patches a payment. Nil fields are left unchanged.
type UpdateInput struct {
	Amount        *decimal.Decimal
	PaymentMethod *string
	Notes         *string
	Status        *string
}

// UpdatePayment edits a payment. Amount and method may change only while
// pending; status may move pending to completed or failed.
func (s *PaymentService) UpdatePayment(ctx context.Context, actor Actor, id uuid.UUID, in UpdateInput) (*models.Payment, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	guarded := false
	if in.Amount != nil {
		if !in.Amount.IsPositive() {
			return nil, invalid("Amount must be greater than 0")
		}
		updates["amount"] = *in.Amount
	}
	if in.PaymentMethod != nil {
		if !models.IsPaymentMethod(*in.PaymentMethod) {
			return nil, invalid("Invalid payment method")
		}
		updates["payment_method"] = *in.PaymentMethod
	}
	if len(updates) > 0 {
		if payment.IsTerminal() {
			return nil, conflict("Only pending payments can be modified")
		}
		guarded = true
	}
	if in.Notes != nil {
		updates["notes"] = *in.Notes
	}

	var target string
	if in.Status != nil && *in.Status != payment.Status {
		target = *in.Status
		switch {
		case payment.IsTerminal():
			return nil, conflict("Payment is already %s", payment.Status)
		case target != models.PaymentStatusCompleted && target != models.PaymentStatusFailed:
			return nil, invalid("Status can only change from pending to completed or failed")
		}
	}

	if len(updates) > 0 {
		query := s.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id)
		if guarded {
			query = query.Where("status = ?", models.PaymentStatusPending)
		}
		if err := query.Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
	}

	if target != "" {
		result := daraja.Result{Outcome: daraja.Outcome(target), ResultDesc: "Updated manually"}
		if target == models.PaymentStatusFailed {
			result.FailureReason = daraja.FailureReasonDeclined
		}
		if _, err := s.applyOutcome(ctx, "id", id, result, SourceManual, actor); err != nil {
			return nil, err
		}
	}

	return s.Get(ctx, id)
}

// PaymentFilter narrows a payment listing.
type PaymentFilter struct {
	Status        string
	PaymentMethod string
	CustomerID    *uuid.UUID
}

// List returns payments newest first with their customer and bill.
func (s *PaymentService) List(ctx context.Context, filter PaymentFilter, pg utils.Pagination) ([]models.Payment, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Payment{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" {
		query = query.Where("payment_method = ?", filter.PaymentMethod)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	if err := query.Preload("Customer").Preload("Bill").
		Order("created_at desc").
		Offset(pg.Offset).Limit(pg.Limit).
		Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// Get loads one payment.
func (s *PaymentService) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).Preload("Customer").Preload("Bill").First(&payment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Payment")
		}
		return nil, err
	}
	return &payment, nil
}

// PaymentStats summarizes payments.
type PaymentStats struct {
	Total          int64            `json:"total"`
	ByStatus       map[string]int64 `json:"by_status"`
	TotalCollected decimal.Decimal  `json:"total_collected"`
	CollectedMonth decimal.Decimal  `json:"collected_this_month"`
	CollectedToday decimal.Decimal  `json:"collected_today"`
}

// Stats counts payments by status and sums completed amounts.
func (s *PaymentService) Stats(ctx context.Context) (*PaymentStats, error) {
	db := s.db.WithContext(ctx)
	stats := &PaymentStats{ByStatus: map[string]int64{}}

	var counts []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Payment{}).Select("status, count(*) as count").Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Total += c.Count
	}

	today := models.StartOfDay(s.now())
	month := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	var err error
	if stats.TotalCollected, err = s.sumCompleted(db, time.Time{}); err != nil {
		return nil, err
	}
	if stats.CollectedMonth, err = s.sumCompleted(db, month); err != nil {
		return nil, err
	}
	if stats.CollectedToday, err = s.sumCompleted(db, today); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *PaymentService) sumCompleted(db *gorm.DB, since time.Time) (decimal.Decimal, error) {
	query := db.Model(&models.Payment{}).Where("status = ?", models.PaymentStatusCompleted)
	if !since.IsZero() {
		query = query.Where("payment_date >= ?", since)
	}
	var row struct{ Total decimal.Decimal }
	if err := query.Select("COALESCE(SUM(amount), 0) AS total").Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (s *PaymentService) liveCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).
		Where("id = ? AND status <> ?", id, models.CustomerStatusDeleted).
		First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Customer")
		}
		return nil, err
	}
	return &customer, nil
}

func (s *PaymentService) payableBill(ctx context.Context, billID, customerID uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	if err := s.db.WithContext(ctx).First(&bill, "id = ?", billID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Bill")
		}
		return nil, err
	}
	if bill.CustomerID != customerID {
		return nil, invalid("Bill does not belong to this customer")
	}
	switch bill.Status {
	case models.BillStatusPaid:
		return nil, conflict("Bill is already paid")
	case models.BillStatusCancelled:
		return nil, conflict("Bill is cancelled")
	}
	return &bill, nil
}

func statusFromPayment(p *models.Payment, simulated bool) *StatusResult {
	desc := p.ResultDesc
	if desc == "" && p.Status == models.PaymentStatusPending {
		desc = "Payment is being processed"
	}
	return &StatusResult{
		PaymentID:          p.ID,
		CheckoutRequestID:  p.TransactionID,
		Status:             p.Status,
		ResultCode:         p.ResultCode,
		ResultDesc:         desc,
		FailureReason:      p.FailureReason,
		Amount:             p.Amount,
		MpesaReceiptNumber: p.MpesaReceipt,
		PhoneNumber:        p.MpesaPhone,
		IsSimulated:        simulated,
	}
}

func newTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN-%d-%06d", now.UnixMilli(), rand.Intn(1000000))
}
