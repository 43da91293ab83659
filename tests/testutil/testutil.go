package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kendall-kelly/design-studio-api/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB opens a migrated in-memory SQLite database. The pool is pinned to
// one connection so every query sees the same memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

var profileSeq atomic.Uint64

// CreateProfile inserts a profile with the given role.
func CreateProfile(t *testing.T, db *gorm.DB, name string, role models.Role) models.Profile {
	t.Helper()

	n := profileSeq.Add(1)
	profile := models.Profile{
		Auth0ID: fmt.Sprintf("auth0|%s-%d", role, n),
		Name:    name,
		Email:   fmt.Sprintf("%s-%d@example.com", role, n),
		Phone:   "+1-555-0100",
		Role:    role,
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	return profile
}

// CreateOrder inserts a pending order owned by client.
func CreateOrder(t *testing.T, db *gorm.DB, client models.Profile) models.DesignOrder {
	t.Helper()

	order := models.DesignOrder{
		ClientID:    client.ID,
		ClientName:  client.Name,
		ClientPhone: client.Phone,
		DesignType:  "logo",
		Description: "A logo for a bakery",
		Status:      models.OrderStatusPending,
		Priority:    models.PriorityMedium,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}
	return order
}
