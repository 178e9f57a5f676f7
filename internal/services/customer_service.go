package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

// CustomerService manages subscribers.
type CustomerService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db, now: time.Now}
}

// CustomerFilter narrows a customer listing. Deleted customers are hidden
// unless Status asks for them.
type CustomerFilter struct {
	Status string
	PlanID *uuid.UUID
	Search string
}

// CustomerInput creates a customer.
type CustomerInput struct {
	Name    string
	Email   string
	Phone   string
	PlanID  *uuid.UUID
	Address string
	Status  string
}

// CustomerUpdate patches a customer. Nil fields are left unchanged.
type CustomerUpdate struct {
	Name    *string
	Email   *string
	Phone   *string
	PlanID  *uuid.UUID
	Address *string
	Status  *string
}

// List returns customers newest first with their plan.
func (s *CustomerService) List(ctx context.Context, filter CustomerFilter, pg utils.Pagination) ([]models.Customer, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Customer{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	} else {
		query = query.Where("status <> ?", models.CustomerStatusDeleted)
	}
	if filter.PlanID != nil {
		query = query.Where("plan_id = ?", *filter.PlanID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var customers []models.Customer
	if err := query.Preload("Plan").
		Order("created_at desc").
		Offset(pg.Offset).Limit(pg.Limit).
		Find(&customers).Error; err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// Get loads one customer, including soft-deleted ones.
func (s *CustomerService) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := s.db.WithContext(ctx).Preload("Plan").First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Customer")
		}
		return nil, err
	}
	return &customer, nil
}

// Create adds a customer. Status defaults to active.
func (s *CustomerService) Create(ctx context.Context, actor Actor, in CustomerInput) (*models.Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if in.Name == "" || in.Email == "" || in.Phone == "" || in.PlanID == nil {
		return nil, invalid("Name, email, phone and plan_id are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalid("Invalid email address")
	}
	if in.Status == "" {
		in.Status = models.CustomerStatusActive
	}
	if !models.IsCustomerStatus(in.Status) {
		return nil, invalid("Status must be one of pending, active, inactive")
	}

	customer := models.Customer{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		PlanID:   in.PlanID,
		Address:  in.Address,
		Status:   in.Status,
		JoinDate: s.now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePlan(tx, *in.PlanID); err != nil {
			return err
		}
		if err := ensureEmailFree(tx, in.Email, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Create(&customer).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "customer.created", "customer", customer.ID, map[string]any{
			"name":  customer.Name,
			"email": customer.Email,
		})
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "create customer")
	}
	return s.Get(ctx, customer.ID)
}

// Update patches a live customer.
func (s *CustomerService) Update(ctx context.Context, actor Actor, id uuid.UUID, in CustomerUpdate) (*models.Customer, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.Where("id = ? AND status <> ?", id, models.CustomerStatusDeleted).First(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Customer")
			}
			return err
		}

		updates := map[string]any{}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalid("Name cannot be empty")
			}
			updates["name"] = name
		}
		if in.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*in.Email))
			if _, err := mail.ParseAddress(email); err != nil {
				return invalid("Invalid email address")
			}
			if email != customer.Email {
				if err := ensureEmailFree(tx, email, customer.ID); err != nil {
					return err
				}
			}
			updates["email"] = email
		}
		if in.Phone != nil {
			phone := strings.TrimSpace(*in.Phone)
			if phone == "" {
				return invalid("Phone cannot be empty")
			}
			updates["phone"] = phone
		}
		if in.PlanID != nil {
			if err := ensurePlan(tx, *in.PlanID); err != nil {
				return err
			}
			updates["plan_id"] = *in.PlanID
		}
		if in.Address != nil {
			updates["address"] = *in.Address
		}
		if in.Status != nil {
			if !models.IsCustomerStatus(*in.Status) {
				return invalid("Status must be one of pending, active, inactive")
			}
			updates["status"] = *in.Status
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&customer).Updates(updates).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "customer.updated", "customer", customer.ID, changedFields(updates))
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "update customer")
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a customer with no outstanding payments or bills.
func (s *CustomerService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.Where("id = ? AND status <> ?", id, models.CustomerStatusDeleted).First(&customer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Customer")
			}
			return err
		}

		var pendingPayments int64
		if err := tx.Model(&models.Payment{}).
			Where("customer_id = ? AND status = ?", id, models.PaymentStatusPending).
			Count(&pendingPayments).Error; err != nil {
			return err
		}
		if pendingPayments > 0 {
			return conflict("Cannot delete customer with pending payments")
		}

		// Stored pending covers the overdue projection.
		var openBills int64
		if err := tx.Model(&models.Bill{}).
			Where("customer_id = ? AND status = ?", id, models.BillStatusPending).
			Count(&openBills).Error; err != nil {
			return err
		}
		if openBills > 0 {
			return conflict("Cannot delete customer with pending or overdue bills")
		}

		if err := tx.Model(&customer).Update("status", models.CustomerStatusDeleted).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "customer.deleted", "customer", customer.ID, map[string]any{
			"email": customer.Email,
		})
	})
	return wrapUnlessServiceError(err, "delete customer")
}

// CustomerStats summarizes the subscriber base.
type CustomerStats struct {
	Total    int64             `json:"total"`
	ByStatus map[string]int64  `json:"by_status"`
	ByPlan   []PlanCount       `json:"by_plan"`
	Recent   []models.Customer `json:"recent"`
}

// PlanCount is the number of live customers on a plan.
type PlanCount struct {
	PlanID   *uuid.UUID `json:"plan_id"`
	PlanName string     `json:"plan_name"`
	Count    int64      `json:"count"`
}

// Stats counts customers by status and plan and lists the five newest.
func (s *CustomerService) Stats(ctx context.Context) (*CustomerStats, error) {
	db := s.db.WithContext(ctx)
	stats := &CustomerStats{ByStatus: map[string]int64{}}

	var counts []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Customer{}).Select("status, count(*) as count").Group("status").Scan(&counts).Error; err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		if c.Status != models.CustomerStatusDeleted {
			stats.Total += c.Count
		}
	}

	byPlan, err := countByPlan(db)
	if err != nil {
		return nil, err
	}
	stats.ByPlan = byPlan

	if err := db.Preload("Plan").
		Where("status <> ?", models.CustomerStatusDeleted).
		Order("created_at desc").
		Limit(5).
		Find(&stats.Recent).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

func countByPlan(db *gorm.DB) ([]PlanCount, error) {
	var rows []PlanCount
	err := db.Model(&models.Customer{}).
		Select("customers.plan_id AS plan_id, COALESCE(plans.name, '') AS plan_name, count(*) AS count").
		Joins("LEFT JOIN plans ON plans.id = customers.plan_id").
		Where("customers.status <> ?", models.CustomerStatusDeleted).
		Group("customers.plan_id, plans.name").
		Order("count desc").
		Scan(&rows).Error
	return rows, err
}

func ensurePlan(tx *gorm.DB, planID uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Plan{}).Where("id = ?", planID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return invalid("Plan not found")
	}
	return nil
}

func ensureEmailFree(tx *gorm.DB, email string, self uuid.UUID) error {
	query := tx.Model(&models.Customer{}).
		Where("email = ? AND status <> ?", email, models.CustomerStatusDeleted)
	if self != uuid.Nil {
		query = query.Where("id <> ?", self)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return invalid("Customer with this email already exists")
	}
	return nil
}

func changedFields(updates map[string]any) map[string]any {
	fields := make([]string, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	return map[string]any{"fields": fields}
}

// wrapUnlessServiceError adds context to infrastructure errors and passes
// service errors through untouched so handlers can render their message.
func wrapUnlessServiceError(err error, op string) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
