// Package storage 提供按数据库类型构造Repository的工厂（内部使用）
package storage

import (
	"fmt"

	pkgstorage "github.com/machshop/approval-engine/pkg/storage"
	"github.com/machshop/approval-engine/pkg/storage/mysql"
	"github.com/machshop/approval-engine/pkg/storage/postgres"
	"github.com/machshop/approval-engine/pkg/storage/sqlite"
)

// NewApprovalRepo 按数据库类型创建审批聚合Repository（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func NewApprovalRepo(dbType, dsn string) (pkgstorage.ApprovalAggregateRepository, error) {
	switch dbType {
	case "sqlite":
		return sqlite.NewApprovalRepoFromDSN(dsn)
	case "mysql":
		return mysql.NewApprovalRepoFromDSN(dsn)
	case "postgres", "postgresql":
		return postgres.NewApprovalRepoFromDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
