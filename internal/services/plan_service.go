package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
)

// PlanService manages service tiers.
type PlanService struct {
	db *gorm.DB
}

func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{db: db}
}

// PlanInput creates a plan or, with nil-safe semantics, patches one.
type PlanInput struct {
	Name        *string
	Speed       *string
	Price       *decimal.Decimal
	DataLimit   *string
	Description *string
	IsActive    *bool
}

// List returns plans ordered by price.
func (s *PlanService) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := s.db.WithContext(ctx).Model(&models.Plan{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var plans []models.Plan
	if err := query.Order("price asc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *PlanService) Get(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := s.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("Plan")
		}
		return nil, err
	}
	return &plan, nil
}

// Create adds a plan. Name, speed and price are required; plans start
// active unless IsActive says otherwise.
func (s *PlanService) Create(ctx context.Context, actor Actor, in PlanInput) (*models.Plan, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" ||
		in.Speed == nil || strings.TrimSpace(*in.Speed) == "" ||
		in.Price == nil {
		return nil, invalid("Name, speed and price are required")
	}
	if in.Price.IsNegative() {
		return nil, invalid("Price cannot be negative")
	}

	plan := models.Plan{
		Name:      strings.TrimSpace(*in.Name),
		Speed:     strings.TrimSpace(*in.Speed),
		Price:     *in.Price,
		DataLimit: "Unlimited",
		IsActive:  true,
	}
	if in.DataLimit != nil && *in.DataLimit != "" {
		plan.DataLimit = *in.DataLimit
	}
	if in.Description != nil {
		plan.Description = *in.Description
	}
	if in.IsActive != nil {
		plan.IsActive = *in.IsActive
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&plan).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "plan.created", "plan", plan.ID, map[string]any{
			"name":  plan.Name,
			"price": plan.Price.String(),
		})
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "create plan")
	}
	return &plan, nil
}

// Update patches a plan.
func (s *PlanService) Update(ctx context.Context, actor Actor, id uuid.UUID, in PlanInput) (*models.Plan, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.Plan
		if err := tx.First(&plan, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Plan")
			}
			return err
		}

		updates := map[string]any{}
		if in.Name != nil {
			if strings.TrimSpace(*in.Name) == "" {
				return invalid("Name cannot be empty")
			}
			updates["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Speed != nil {
			if strings.TrimSpace(*in.Speed) == "" {
				return invalid("Speed cannot be empty")
			}
			updates["speed"] = strings.TrimSpace(*in.Speed)
		}
		if in.Price != nil {
			if in.Price.IsNegative() {
				return invalid("Price cannot be negative")
			}
			updates["price"] = *in.Price
		}
		if in.DataLimit != nil {
			updates["data_limit"] = *in.DataLimit
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.IsActive != nil {
			updates["is_active"] = *in.IsActive
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&plan).Updates(updates).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "plan.updated", "plan", plan.ID, changedFields(updates))
	})
	if err != nil {
		return nil, wrapUnlessServiceError(err, "update plan")
	}
	return s.Get(ctx, id)
}

// Delete removes a plan no live customer is subscribed to.
func (s *PlanService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.Plan
		if err := tx.First(&plan, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("Plan")
			}
			return err
		}

		var subscribers int64
		if err := tx.Model(&models.Customer{}).
			Where("plan_id = ? AND status <> ?", id, models.CustomerStatusDeleted).
			Count(&subscribers).Error; err != nil {
			return err
		}
		if subscribers > 0 {
			return conflict("Cannot delete a plan with %d active subscribers", subscribers)
		}

		if err := tx.Delete(&models.Plan{}, "id = ?", id).Error; err != nil {
			return err
		}
		return recordActivity(tx, actor, "plan.deleted", "plan", plan.ID, map[string]any{
			"name": plan.Name,
		})
	})
	return wrapUnlessServiceError(err, "delete plan")
}
