package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/legionbilling/internal/models"
	"github.com/example/legionbilling/internal/utils"
)

func TestSeedIsIdempotent(t *testing.T) {
	dsn := fmt.Sprintf("file:seed_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(conn))
	require.NoError(t, Seed(conn))
	require.NoError(t, Seed(conn))

	var plans []models.Plan
	require.NoError(t, conn.Order("price asc").Find(&plans).Error)
	require.Len(t, plans, 3)
	assert.Equal(t, "Basic Plan", plans[0].Name)
	assert.Equal(t, "29.99", plans[0].Price.StringFixed(2))

	var admin models.User
	require.NoError(t, conn.Where("username = ?", "admin").First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.Role)
	assert.True(t, utils.CheckPassword(admin.PasswordHash, "admin123"))

	var users int64
	require.NoError(t, conn.Model(&models.User{}).Count(&users).Error)
	assert.EqualValues(t, 1, users)
}

func TestEnsureDatabaseSkipsNonPostgresDSN(t *testing.T) {
	assert.NoError(t, ensureDatabase("file::memory:"))
	assert.NoError(t, ensureDatabase("host=localhost user=postgres dbname=x"))
}
