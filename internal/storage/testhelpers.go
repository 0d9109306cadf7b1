package storage

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

// NewTestDB 建立已完成 migration 的記憶體 sqlite 資料庫，測試結束時關閉
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := NewSQLiteDB(dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
