// Package testutil provides an in-memory database and fixture helpers for
// package tests.
package testutil

import (
	"testing"

	"github.com/zulandar/rollcall/internal/config"
	"github.com/zulandar/rollcall/internal/db"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite ":memory:" database. db.Connect pins SQLite
// to one connection, so concurrent callers share the same in-memory schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("testutil: open db: %v", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		t.Fatalf("testutil: migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gormDB
}
