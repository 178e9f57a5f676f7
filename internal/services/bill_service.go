package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

// DefaultBillAmount prices generated bills for customers without a plan.
var DefaultBillAmount = decimal.RequireFromString("50.00")

// BillService manages bills.
type BillService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewBillService(db *gorm.DB) *BillService {
	return &BillService{db: db, now: time.Now}
}

// BillFilter narrows a bill listing. Status may be overdue, which selects
// pending bills whose due date has passed.
type BillFilter struct {
	Status     string
	CustomerID *uuid.UUID
}

// BillInput creates a bill.
type BillInput struct {
	CustomerID  uuid.UUID
	Amount      decimal.Decimal
	Description string
	DueDate     time.Time
}

// BillUpdate patches a bill. Nil fields are left unchanged.
type BillUpdate struct {
	Amount      *decimal.Decimal
	Description *string
	DueDate     *time.Time
	Status      *string
}

// List returns bills newest first with their customer, statuses projected
// onto today.
func (s *BillService) List(ctx context.Context, filter BillFilter, pg utils.Pagination) ([]models.Bill, int64, error) {
	today := models.StartOfDay(s.now())
	query := s.db.WithContext(ctx).Model(&models.Bill{})

	switch filter.Status {
	case "":
	case models.BillStatusOverdue:
		query = query.Where("status = ? AND due_date < ?", models.BillStatusPending, today)
	case models.BillStatusPending:
		query = query.Where("status = ? AND due_date >= ?", models.BillStatusPending, today)
	default:
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var bills []models.Bill
	if err := query.Preload("Customer").
		Order("created_at desc").
		Offset(pg.Offset).Limit(pg.Limit).
		Find(&bills).Error; err != nil {
		return nil, 0, err
	}
	for i := range bills {
		bills[i].Status = bills[i].EffectiveStatus(today)
	}
	return bills, total, nil
}

// Get loads one bill with its projected status.
func (s *BillService) Get(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var bill models.Bill
	if err := s.db.WithContext(ctx).Preload("Customer").First(&bill, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Bill")
		}
		return nil, err
	}
	bill.Status = bill.EffectiveStatus(s.now())
	return &bill, nil
}

// Create issues a bill today for a live customer.
func (s *BillService) Create(ctx context.Context, actor Actor, in BillInput) (*models.Bill, error) {
	if in.CustomerID == uuid.Nil || in.DueDate.IsZero() {
		return nil, invalid("customerId, amount and dueDate are required")
	}
	if in.Amount.IsNegative() {
		return nil, invalid("Amount cannot be negative")
	}

	bill := models.Bill{
		CustomerID:  in.CustomerID,
		Amount:      in.Amount,
		Description: in.Description,
		IssueDate:   models.StartOfDay(s.now()),
		DueDate:     models.StartOfDay(in.DueDate),
		Status:      models.BillStatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.Where("id = ? AND status <> ?", in.CustomerID, models.CustomerStatusDeleted).First(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Customer")
			}
			return err
		}
		bill.PlanID = customer.PlanID

		if err := tx.Create(&bill).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "bill.created", "bill", bill.ID, map[string]any{
			"customer_id": customer.ID.String(),
			"amount":      bill.Amount.String(),
		})
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "create bill")
	}
	return s.Get(ctx, bill.ID)
}

// Update patches an unpaid bill. Status may only be set to pending or
// cancelled; paid is reached through a completed payment.
func (s *BillService) Update(ctx context.Context, actor Actor, id uuid.UUID, in BillUpdate) (*models.Bill, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill models.Bill
		if err := tx.First(&bill, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Bill")
			}
			return err
		}

		updates := map[string]any{}
		if in.Status != nil {
			switch *in.Status {
			case models.BillStatusPending, models.BillStatusCancelled:
				updates["status"] = *in.Status
			default:
				return invalid("Bill status can only be set to pending or cancelled")
			}
		}
		if in.Amount != nil {
			if in.Amount.IsNegative() {
				return invalid("Amount cannot be negative")
			}
			updates["amount"] = *in.Amount
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.DueDate != nil {
			updates["due_date"] = models.StartOfDay(*in.DueDate)
		}
		if len(updates) == 0 {
			return nil
		}
		if bill.Status == models.BillStatusPaid {
			return conflict("Paid bills cannot be modified")
		}
		if in.Status != nil && *in.Status == models.BillStatusCancelled {
			var pending int64
			if err := tx.Model(&models.Payment{}).
				Where("bill_id = ? AND status = ?", id, models.PaymentStatusPending).
				Count(&pending).Error; err != nil {
				return err
			}
			if pending > 0 {
				return conflict("Cannot cancel a bill with a pending payment")
			}
		}

		res := tx.Model(&models.Bill{}).
			Where("id = ? AND status <> ?", id, models.BillStatusPaid).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflict("Paid bills cannot be modified")
		}
		return recordActivity(tx, actor, "bill.updated", "bill", bill.ID, changedFields(updates))
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "update bill")
	}
	return s.Get(ctx, id)
}

// Delete removes a bill that is unpaid and not referenced by any payment.
func (s *BillService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bill models.Bill
		if err := tx.First(&bill, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Bill")
			}
			return err
		}
		if bill.Status == models.BillStatusPaid {
			return conflict("Cannot delete a paid bill")
		}

		var payments int64
		if err := tx.Model(&models.Payment{}).Where("bill_id = ?", id).Count(&payments).Error; err != nil {
			return err
		}
		if payments > 0 {
			return conflict("Cannot delete a bill that has payments")
		}

		if err := tx.Delete(&models.Bill{}, "id = ?", id).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "bill.deleted", "bill", bill.ID, map[string]any{
			"customer_id": bill.CustomerID.String(),
			"amount":      bill.Amount.String(),
		})
	})
	return wrapUnlessServiceError(err, "delete bill")
}

// Generate issues one bill per active customer, priced from the customer's
// plan or DefaultBillAmount.
func (s *BillService) Generate(ctx context.Context, actor Actor, dueDate time.Time, description string) ([]models.Bill, error) {
	if dueDate.IsZero() {
		dueDate = models.StartOfDay(s.now()).AddDate(0, 0, 30)
	}
	issued := models.StartOfDay(s.now())

	var bills []models.Bill
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customers []models.Customer
		if err := tx.Preload("Plan").Where("status = ?", models.CustomerStatusActive).Find(&customers).Error; err != nil {
			return err
		}

		for _, customer := range customers {
			amount := DefaultBillAmount
			desc := description
			if customer.Plan != nil {
				amount = customer.Plan.Price
				if desc == "" {
					desc = "Monthly service - " + customer.Plan.Name
				}
			}
			if desc == "" {
				desc = "Monthly service"
			}
			bills = append(bills, models.Bill{
				CustomerID:  customer.ID,
				PlanID:      customer.PlanID,
				Amount:      amount,
				Description: desc,
				IssueDate:   issued,
				DueDate:     models.StartOfDay(dueDate),
				Status:      models.BillStatusPending,
			})
		}
		if len(bills) == 0 {
			return nil
		}

		if err := tx.Create(&bills).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "bill.generated", "bill", uuid.Nil, map[string]any{
			"count":    len(bills),
			"due_date": dueDate.Format("2006-01-02"),
		})
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "generate bills")
	}
	return bills, nil
}

// BillStats summarizes bills by projected status.
type BillStats struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	Outstanding decimal.Decimal  `json:"outstanding_amount"`
	OverdueDue  decimal.Decimal  `json:"overdue_amount"`
	Collected   decimal.Decimal  `json:"paid_amount"`
}

// Stats counts bills by projected status and sums their amounts.
func (s *BillService) Stats(ctx context.Context) (*BillStats, error) {
	today := models.StartOfDay(s.now())
	db := s.db.WithContext(ctx)

	var rows []struct {
		Status  string
		Overdue bool
		Count   int64
		Total   decimal.Decimal
	}
	if err := db.Model(&models.Bill{}).
		Select("status, (status = ? AND due_date < ?) AS overdue, count(*) AS count, COALESCE(SUM(amount), 0) AS total",
			models.BillStatusPending, today).
		Group("status, overdue").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	stats := &BillStats{
		ByStatus:    map[string]int64{},
		Outstanding: decimal.Zero,
		OverdueDue:  decimal.Zero,
		Collected:   decimal.Zero,
	}
	for _, row := range rows {
		status := row.Status
		if row.Overdue {
			status = models.BillStatusOverdue
		}
		stats.ByStatus[status] += row.Count
		stats.Total += row.Count

		switch status {
		case models.BillStatusPending:
			stats.Outstanding = stats.Outstanding.Add(row.Total)
		case models.BillStatusOverdue:
			stats.Outstanding = stats.Outstanding.Add(row.Total)
			stats.OverdueDue = stats.OverdueDue.Add(row.Total)
		case models.BillStatusPaid:
			stats.Collected = stats.Collected.Add(row.Total)
		}
	}
	return stats, nil
}

// CountOverdue returns how many bills are currently projected overdue.
func (s *BillService) CountOverdue(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Bill{}).
		Where("status = ? AND due_date < ?", models.BillStatusPending, models.StartOfDay(s.now())).
		Count(&count).Error
	return count, err
}
