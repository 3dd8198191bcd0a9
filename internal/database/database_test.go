package database

import (
	"testing"

	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/pkg/utils"
)

func TestConnectSQLiteMigratesSchema(t *testing.T) {
	db, err := Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("expected sqlite connect to succeed, got %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, model := range []interface{}{
		&models.User{},
		&models.TwoFactorSecret{},
		&models.RevokedToken{},
		&models.UserTokenCutoff{},
		&models.SecurityAuditEvent{},
		&models.VerificationToken{},
	} {
		if !db.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T to exist", model)
		}
	}
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	if _, err := Connect(config.DBConfig{Driver: "oracle"}); err == nil {
		t.Fatal("expected unknown driver to be rejected")
	}
}

func TestSeedAdmin(t *testing.T) {
	db, err := Connect(config.DBConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	t.Run("skips when no password configured", func(t *testing.T) {
		if err := SeedAdmin(db, config.AdminConfig{Username: "admin"}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		var count int64
		db.Model(&models.User{}).Count(&count)
		if count != 0 {
			t.Fatalf("expected no users, got %d", count)
		}
	})

	t.Run("creates enabled admin once", func(t *testing.T) {
		cfg := config.AdminConfig{Username: "admin", Email: "admin@example.test", Password: "Adm1nPass!"}
		if err := SeedAdmin(db, cfg); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		if err := SeedAdmin(db, cfg); err != nil {
			t.Fatalf("second seed failed: %v", err)
		}

		var users []models.User
		if err := db.Find(&users).Error; err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(users) != 1 {
			t.Fatalf("expected exactly one admin, got %d", len(users))
		}
		admin := users[0]
		if !admin.Enabled || !admin.HasRole(models.RoleAdmin) {
			t.Fatalf("expected enabled admin, got %+v", admin)
		}
		if !utils.CheckPassword("Adm1nPass!", admin.PasswordHash) {
			t.Fatal("expected seeded password hash to match")
		}
	})
}
