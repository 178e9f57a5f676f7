package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

// Actor identifies who triggered a change. The zero value is the system.
type Actor struct {
	UserID    *uuid.UUID
	IPAddress string
	UserAgent string
}

// recordActivity appends an audit entry using tx, so it commits or rolls
// back with the change it describes.
func recordActivity(tx *gorm.DB, actor Actor, action, entityType string, entityID uuid.UUID, details map[string]any) error {
	var raw datatypes.JSON
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			return err
		}
		raw = datatypes.JSON(encoded)
	}

	return tx.Create(&models.Activity{
		UserID:     actor.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		Details:    raw,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	}).Error
}

// ActivityService reads the audit log.
type ActivityService struct {
	db *gorm.DB
}

func NewActivityService(db *gorm.DB) *ActivityService {
	return &ActivityService{db: db}
}

// ActivityFilter narrows an activity listing.
type ActivityFilter struct {
	EntityType string
	EntityID   string
}

// List returns activities newest first.
func (s *ActivityService) List(ctx context.Context, filter ActivityFilter, pg utils.Pagination) ([]models.Activity, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Activity{})
	if filter.EntityType != "" {
		query = query.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.Activity
	if err := query.Order("created_at desc").Offset(pg.Offset).Limit(pg.Limit).Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}
