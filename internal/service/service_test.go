package service

import (
	"fmt"
	"testing"
	"time"

	"messenger/internal/config"
	"messenger/internal/db"
	"messenger/internal/models"

	"gorm.io/gorm"
)

// testDB 连接测试数据库，连不上就跳过（本地没起 Postgres 时不报失败）。
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.Load()
	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Skipf("skip: migrate failed: %v", err)
	}
	return gdb
}

func testConfig() config.Config {
	return config.Config{
		AccessTokenSecret:     "test-access-secret",
		RefreshTokenSecret:    "test-refresh-secret",
		AccessTokenTTLMinutes: 15,
		RefreshTokenTTLDays:   7,
	}
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func createUser(t *testing.T, gdb *gorm.DB, prefix string) models.User {
	t.Helper()
	name := uniqueName(prefix)
	user := models.User{Username: name, Email: name + "@example.com", PasswordHash: "x", Role: models.RoleUser}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
