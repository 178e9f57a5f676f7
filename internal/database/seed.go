package database

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

const (
	defaultAdminUsername = "admin"
	defaultAdminEmail    = "admin@legionconnections.com"
	defaultAdminPassword = "admin123"
)

// Seed inserts the default plans and admin user into empty tables.
func Seed(conn *gorm.DB) error {
	var plans int64
	if err := conn.Model(&models.Plan{}).Count(&plans).Error; err != nil {
		return err
	}
	if plans == 0 {
		defaults := []models.Plan{
			{Name: "Basic Plan", Speed: "25 Mbps", Price: decimal.RequireFromString("29.99"), DataLimit: "Unlimited", Description: "Perfect for light browsing and email", IsActive: true},
			{Name: "Premium Plan", Speed: "50 Mbps", Price: decimal.RequireFromString("49.99"), DataLimit: "Unlimited", Description: "Great for streaming and gaming", IsActive: true},
			{Name: "Ultra Plan", Speed: "100 Mbps", Price: decimal.RequireFromString("79.99"), DataLimit: "Unlimited", Description: "Maximum speed for heavy users", IsActive: true},
		}
		if err := conn.Create(&defaults).Error; err != nil {
			return err
		}
	}

	var users int64
	if err := conn.Model(&models.User{}).Count(&users).Error; err != nil {
		return err
	}
	if users == 0 {
		hash, err := utils.HashPassword(defaultAdminPassword)
		if err != nil {
			return err
		}
		admin := models.User{
			Username:     defaultAdminUsername,
			Email:        defaultAdminEmail,
			PasswordHash: hash,
			Role:         models.RoleAdmin,
			IsActive:     true,
		}
		if err := conn.Create(&admin).Error; err != nil {
			return err
		}
	}

	return nil
}
