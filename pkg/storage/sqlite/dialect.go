// Package sqlite 提供SQLite方言与Repository构造器
package sqlite

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/machshop/approval-engine/pkg/storage"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// DriverName 返回sqlx驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// UpsertSQL 返回SQLite的UPSERT语句（INSERT OR REPLACE）
func (d *SQLiteDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
	)
}

// CreateTableSQL DDL以SQLite风格书写，原样返回
func (d *SQLiteDialect) CreateTableSQL(schema string) string {
	return schema
}

// ConfigureDB 返回SQLite连接配置PRAGMA
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// NewApprovalRepo 基于现有连接创建SQLite审批Repository（对外导出）
func NewApprovalRepo(db *sqlx.DB) (*storage.SQLApprovalRepo, error) {
	for _, stmt := range NewSQLiteDialect().ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("配置SQLite失败: %w", err)
		}
	}
	return storage.NewSQLApprovalRepo(db, NewSQLiteDialect())
}

// NewApprovalRepoFromDSN 通过DSN创建SQLite审批Repository（对外导出）
func NewApprovalRepoFromDSN(dsn string) (*storage.SQLApprovalRepo, error) {
	return storage.NewSQLApprovalRepoFromDSN(dsn, NewSQLiteDialect())
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
