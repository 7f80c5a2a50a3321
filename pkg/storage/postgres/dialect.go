// Package postgres 提供PostgreSQL方言与Repository构造器
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/machshop/approval-engine/pkg/storage"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// DriverName 返回sqlx驱动名
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// UpsertSQL 返回PostgreSQL的UPSERT语句（ON CONFLICT DO UPDATE）
func (d *PostgresDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为PostgreSQL兼容格式
func (d *PostgresDialect) CreateTableSQL(schema string) string {
	result := schema

	// DATETIME转TIMESTAMP
	result = strings.ReplaceAll(result, "DATETIME", "TIMESTAMP")

	// 布尔列使用真正的BOOLEAN
	result = strings.ReplaceAll(result, "is_active INTEGER NOT NULL DEFAULT 1", "is_active BOOLEAN NOT NULL DEFAULT TRUE")

	// REAL转DOUBLE PRECISION
	result = strings.ReplaceAll(result, "REAL NOT NULL", "DOUBLE PRECISION NOT NULL")
	result = strings.ReplaceAll(result, "REAL DEFAULT", "DOUBLE PRECISION DEFAULT")

	return result
}

// ConfigureDB PostgreSQL无需额外的连接配置
func (d *PostgresDialect) ConfigureDB() []string {
	return nil
}

// NewApprovalRepoFromDSN 通过DSN创建PostgreSQL审批Repository（对外导出）
func NewApprovalRepoFromDSN(dsn string) (*storage.SQLApprovalRepo, error) {
	return storage.NewSQLApprovalRepoFromDSN(dsn, NewPostgresDialect())
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
