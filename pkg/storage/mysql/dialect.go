// Package mysql 提供MySQL方言与Repository构造器
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/machshop/approval-engine/pkg/storage"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// DriverName 返回sqlx驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// UpsertSQL 返回MySQL的UPSERT语句（使用ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为MySQL兼容格式
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	result := schema

	// TEXT主键在MySQL需有长度限制，改用VARCHAR
	result = strings.ReplaceAll(result, "TEXT PRIMARY KEY", "VARCHAR(64) PRIMARY KEY")

	// 替换REAL为DOUBLE
	result = strings.ReplaceAll(result, "REAL NOT NULL", "DOUBLE NOT NULL")
	result = strings.ReplaceAll(result, "REAL DEFAULT", "DOUBLE DEFAULT")

	// 索引列不能是无限长TEXT，这些列均为短标识
	for _, col := range []string{
		"workflow_instance_id", "stage_instance_id", "workflow_id",
		"workflow_definition_id", "assigned_to_id", "workflow_type",
		"entity_type", "entity_id",
	} {
		result = strings.ReplaceAll(result, col+" TEXT NOT NULL", col+" VARCHAR(64) NOT NULL")
	}
	result = strings.ReplaceAll(result, "status TEXT NOT NULL", "status VARCHAR(32) NOT NULL")
	result = strings.ReplaceAll(result, "action TEXT,", "action VARCHAR(32),")

	// 添加引擎声明
	if !strings.Contains(result, "ENGINE=") && strings.Contains(result, "CREATE TABLE") {
		result = strings.TrimRight(strings.TrimSpace(result), ";") + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;"
	}
	return result
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{
		"SET SESSION sql_mode='STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION';",
	}
}

// NewApprovalRepoFromDSN 通过DSN创建MySQL审批Repository（对外导出）
func NewApprovalRepoFromDSN(dsn string) (*storage.SQLApprovalRepo, error) {
	return storage.NewSQLApprovalRepoFromDSN(dsn, NewMySQLDialect())
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
