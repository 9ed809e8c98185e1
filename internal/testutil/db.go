// Package testutil provides an in-memory database for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-inventory-ledger/internal/auth"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/pkg/database"
)

// NewDB opens a private in-memory SQLite database with every model migrated.
// The pool is capped at one connection, so code running inside a transaction
// must use only that transaction's handle.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.NewGormConfig(zap.NewNop(), "silent"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(model.All()...))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedUser inserts an active user with the given role and returns it
func SeedUser(t testing.TB, db *gorm.DB, username string, role auth.Role) *model.User {
	t.Helper()

	u := &model.User{
		Username: username,
		Email:    username + "@example.com",
		FullName: username,
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, u.SetPassword("password123"))
	require.NoError(t, db.Create(u).Error)
	return u
}
