package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/machshop/approval-engine/pkg/core/rules"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage/dao"
)

// SQLApprovalRepo ApprovalAggregateRepository的sqlx实现（对外导出）
// 通过Dialect适配sqlite/mysql/postgres
type SQLApprovalRepo struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLApprovalRepo 创建审批聚合Repository实例（对外导出）
func NewSQLApprovalRepo(db *sqlx.DB, dialect Dialect) (*SQLApprovalRepo, error) {
	repo := &SQLApprovalRepo{db: db, dialect: dialect}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// NewSQLApprovalRepoFromDSN 通过DSN创建Repository实例（对外导出）
func NewSQLApprovalRepoFromDSN(dsn string, dialect Dialect) (*SQLApprovalRepo, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置数据库失败: %w", err)
		}
	}
	return NewSQLApprovalRepo(db, dialect)
}

// GetDB 获取底层数据库连接（对外导出）
func (r *SQLApprovalRepo) GetDB() *sqlx.DB {
	return r.db
}

// Close 关闭数据库连接
func (r *SQLApprovalRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (r *SQLApprovalRepo) initSchema() error {
	schemas := []string{`
	CREATE TABLE IF NOT EXISTS workflow_definition (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		workflow_type TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		metadata TEXT,
		create_time DATETIME NOT NULL
	);`, `
	CREATE TABLE IF NOT EXISTS stage_definition (
		id TEXT PRIMARY KEY,
		workflow_id TEXT NOT NULL,
		stage_number INTEGER NOT NULL,
		stage_name TEXT NOT NULL,
		approval_type TEXT NOT NULL,
		minimum_approvals INTEGER NOT NULL DEFAULT 0,
		approval_threshold REAL NOT NULL DEFAULT 0,
		assignment_strategy TEXT,
		required_roles TEXT,
		optional_roles TEXT,
		metadata TEXT,
		FOREIGN KEY (workflow_id) REFERENCES workflow_definition(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_stage_definition_workflow_id ON stage_definition(workflow_id);`, `
	CREATE TABLE IF NOT EXISTS workflow_instance (
		id TEXT PRIMARY KEY,
		workflow_definition_id TEXT NOT NULL,
		workflow_type TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		status TEXT NOT NULL,
		priority TEXT,
		progress_percentage INTEGER NOT NULL DEFAULT 0,
		started_by_id TEXT,
		cancelled_at DATETIME,
		cancelled_by_id TEXT,
		cancellation_reason TEXT,
		create_time DATETIME NOT NULL,
		FOREIGN KEY (workflow_definition_id) REFERENCES workflow_definition(id)
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_instance_status ON workflow_instance(status);
	CREATE INDEX IF NOT EXISTS idx_workflow_instance_entity ON workflow_instance(entity_type, entity_id);`, `
	CREATE TABLE IF NOT EXISTS stage_instance (
		id TEXT PRIMARY KEY,
		workflow_instance_id TEXT NOT NULL,
		stage_definition_id TEXT,
		stage_number INTEGER NOT NULL,
		stage_name TEXT NOT NULL,
		status TEXT NOT NULL,
		outcome TEXT,
		approval_type TEXT NOT NULL,
		minimum_approvals INTEGER NOT NULL DEFAULT 0,
		approval_threshold REAL NOT NULL DEFAULT 0,
		deadline DATETIME,
		metadata TEXT,
		create_time DATETIME NOT NULL,
		FOREIGN KEY (workflow_instance_id) REFERENCES workflow_instance(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_stage_instance_workflow ON stage_instance(workflow_instance_id);
	CREATE INDEX IF NOT EXISTS idx_stage_instance_status ON stage_instance(status);`, `
	CREATE TABLE IF NOT EXISTS assignment (
		id TEXT PRIMARY KEY,
		stage_instance_id TEXT NOT NULL,
		assigned_to_id TEXT NOT NULL,
		role_id TEXT,
		assignment_type TEXT NOT NULL,
		action TEXT,
		action_taken_by_id TEXT,
		action_taken_at DATETIME,
		notes TEXT,
		metadata TEXT,
		create_time DATETIME NOT NULL,
		FOREIGN KEY (stage_instance_id) REFERENCES stage_instance(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_assignment_stage ON assignment(stage_instance_id);
	CREATE INDEX IF NOT EXISTS idx_assignment_assignee ON assignment(assigned_to_id, action);`, `
	CREATE TABLE IF NOT EXISTS coordination_group (
		id TEXT PRIMARY KEY,
		stage_instance_id TEXT NOT NULL,
		parallel_group TEXT NOT NULL,
		total_assignments INTEGER NOT NULL,
		coordination_metadata TEXT NOT NULL,
		create_time DATETIME NOT NULL,
		FOREIGN KEY (stage_instance_id) REFERENCES stage_instance(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_coordination_group_stage ON coordination_group(stage_instance_id);`, `
	CREATE TABLE IF NOT EXISTS workflow_history (
		id TEXT PRIMARY KEY,
		workflow_instance_id TEXT NOT NULL,
		action TEXT NOT NULL,
		performed_by_id TEXT NOT NULL,
		notes TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_history_instance ON workflow_history(workflow_instance_id);`, `
	CREATE TABLE IF NOT EXISTS workflow_rule (
		id TEXT PRIMARY KEY,
		workflow_type TEXT NOT NULL,
		name TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		priority INTEGER NOT NULL DEFAULT 0,
		condition_json TEXT NOT NULL,
		action_json TEXT NOT NULL,
		create_time DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_rule_type ON workflow_rule(workflow_type, is_active);`,
	}

	for _, schema := range schemas {
		if _, err := r.db.Exec(r.dialect.CreateTableSQL(schema)); err != nil {
			return fmt.Errorf("执行DDL失败: %w", err)
		}
	}
	return nil
}

// ========== 定义 ==========

// SaveDefinition 保存工作流定义及其全部阶段定义（事务）
func (r *SQLApprovalRepo) SaveDefinition(ctx context.Context, def *workflow.WorkflowDefinition) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	metaJSON, err := marshalMeta(def.Metadata)
	if err != nil {
		return fmt.Errorf("序列化定义元数据失败: %w", err)
	}

	createTime := def.CreateTime
	if createTime.IsZero() {
		createTime = time.Now()
	}

	defDAO := &dao.WorkflowDefinitionDAO{
		ID:           def.ID,
		Name:         def.Name,
		WorkflowType: def.WorkflowType,
		IsActive:     def.IsActive,
		Metadata:     metaJSON,
		CreateTime:   createTime,
	}
	upsert := r.dialect.UpsertSQL("workflow_definition",
		[]string{"id", "name", "workflow_type", "is_active", "metadata", "create_time"},
		"id",
		[]string{"name", "workflow_type", "is_active", "metadata"})
	if _, err := tx.NamedExecContext(ctx, upsert, defDAO); err != nil {
		return fmt.Errorf("保存工作流定义失败: %w", err)
	}

	// 删除旧阶段定义后整体重写
	if _, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM stage_definition WHERE workflow_id = ?`), def.ID); err != nil {
		return fmt.Errorf("删除旧阶段定义失败: %w", err)
	}

	for i := range def.Stages {
		sd := &def.Stages[i]
		stageDAO, err := stageDefinitionToDAO(def.ID, sd)
		if err != nil {
			return err
		}
		insertSQL := `INSERT INTO stage_definition
		(id, workflow_id, stage_number, stage_name, approval_type, minimum_approvals,
		 approval_threshold, assignment_strategy, required_roles, optional_roles, metadata)
		VALUES (:id, :workflow_id, :stage_number, :stage_name, :approval_type, :minimum_approvals,
		 :approval_threshold, :assignment_strategy, :required_roles, :optional_roles, :metadata)`
		if _, err := tx.NamedExecContext(ctx, insertSQL, stageDAO); err != nil {
			return fmt.Errorf("保存阶段定义失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetDefinition 按ID查询定义（含阶段）
func (r *SQLApprovalRepo) GetDefinition(ctx context.Context, id string) (*workflow.WorkflowDefinition, error) {
	var defDAO dao.WorkflowDefinitionDAO
	query := r.db.Rebind(`SELECT id, name, workflow_type, is_active, metadata, create_time
	        FROM workflow_definition WHERE id = ?`)
	if err := r.db.GetContext(ctx, &defDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}

	def, err := daoToDefinition(&defDAO)
	if err != nil {
		return nil, err
	}

	var stageDAOs []dao.StageDefinitionDAO
	stageQuery := r.db.Rebind(`SELECT id, workflow_id, stage_number, stage_name, approval_type,
	        minimum_approvals, approval_threshold, assignment_strategy, required_roles,
	        optional_roles, metadata
	        FROM stage_definition WHERE workflow_id = ? ORDER BY stage_number ASC`)
	if err := r.db.SelectContext(ctx, &stageDAOs, stageQuery, id); err != nil {
		return nil, fmt.Errorf("查询阶段定义失败: %w", err)
	}
	for i := range stageDAOs {
		sd, err := daoToStageDefinition(&stageDAOs[i])
		if err != nil {
			return nil, err
		}
		def.Stages = append(def.Stages, *sd)
	}
	return def, nil
}

// ListDefinitions 列出全部定义（不含阶段）
func (r *SQLApprovalRepo) ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error) {
	var defDAOs []dao.WorkflowDefinitionDAO
	query := `SELECT id, name, workflow_type, is_active, metadata, create_time
	          FROM workflow_definition ORDER BY create_time DESC`
	if err := r.db.SelectContext(ctx, &defDAOs, query); err != nil {
		return nil, fmt.Errorf("查询工作流定义列表失败: %w", err)
	}
	defs := make([]*workflow.WorkflowDefinition, 0, len(defDAOs))
	for i := range defDAOs {
		def, err := daoToDefinition(&defDAOs[i])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ========== 实例生命周期 ==========

// CreateInstanceGraph 创建实例、全部阶段实例、首阶段分配与协调组（事务）
func (r *SQLApprovalRepo) CreateInstanceGraph(ctx context.Context, inst *workflow.WorkflowInstance,
	firstStageAssignments []workflow.Assignment,
	firstStageGroups []workflow.ParallelCoordinationGroup,
	history workflow.HistoryEntry) error {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	instDAO := instanceToDAO(inst)
	instSQL := `INSERT INTO workflow_instance
	(id, workflow_definition_id, workflow_type, entity_type, entity_id, status, priority,
	 progress_percentage, started_by_id, cancelled_at, cancelled_by_id, cancellation_reason, create_time)
	VALUES (:id, :workflow_definition_id, :workflow_type, :entity_type, :entity_id, :status, :priority,
	 :progress_percentage, :started_by_id, :cancelled_at, :cancelled_by_id, :cancellation_reason, :create_time)`
	if _, err := tx.NamedExecContext(ctx, instSQL, instDAO); err != nil {
		return fmt.Errorf("创建工作流实例失败: %w", err)
	}

	for i := range inst.Stages {
		if err := r.insertStageInTx(ctx, tx, &inst.Stages[i]); err != nil {
			return err
		}
	}

	for i := range firstStageAssignments {
		if err := r.insertAssignmentInTx(ctx, tx, &firstStageAssignments[i]); err != nil {
			return err
		}
	}
	for i := range firstStageGroups {
		if err := r.insertGroupInTx(ctx, tx, &firstStageGroups[i]); err != nil {
			return err
		}
	}

	if err := r.insertHistoryInTx(ctx, tx, &history); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetInstance 按ID查询实例，完整水合阶段、分配、协调组与历史
func (r *SQLApprovalRepo) GetInstance(ctx context.Context, id string) (*workflow.WorkflowInstance, error) {
	var instDAO dao.WorkflowInstanceDAO
	query := r.db.Rebind(`SELECT id, workflow_definition_id, workflow_type, entity_type, entity_id,
	        status, priority, progress_percentage, started_by_id, cancelled_at, cancelled_by_id,
	        cancellation_reason, create_time
	        FROM workflow_instance WHERE id = ?`)
	if err := r.db.GetContext(ctx, &instDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询工作流实例失败: %w", err)
	}
	inst := daoToInstance(&instDAO)

	var stageDAOs []dao.StageInstanceDAO
	stageQuery := r.db.Rebind(`SELECT id, workflow_instance_id, stage_definition_id, stage_number,
	        stage_name, status, outcome, approval_type, minimum_approvals, approval_threshold,
	        deadline, metadata, create_time
	        FROM stage_instance WHERE workflow_instance_id = ? ORDER BY stage_number ASC`)
	if err := r.db.SelectContext(ctx, &stageDAOs, stageQuery, id); err != nil {
		return nil, fmt.Errorf("查询阶段实例失败: %w", err)
	}

	stageIDs := make([]string, 0, len(stageDAOs))
	for i := range stageDAOs {
		st, err := daoToStageInstance(&stageDAOs[i])
		if err != nil {
			return nil, err
		}
		inst.Stages = append(inst.Stages, *st)
		stageIDs = append(stageIDs, st.ID)
	}

	if len(stageIDs) > 0 {
		assignments, groups, err := r.loadStageChildren(ctx, stageIDs)
		if err != nil {
			return nil, err
		}
		for i := range inst.Stages {
			inst.Stages[i].Assignments = assignments[inst.Stages[i].ID]
			inst.Stages[i].Groups = groups[inst.Stages[i].ID]
		}
	}

	history, err := r.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	inst.History = history
	return inst, nil
}

// CompleteInstance 置实例为COMPLETED、进度100并写历史（事务，终态守卫）
func (r *SQLApprovalRepo) CompleteInstance(ctx context.Context, id, byID string) (bool, error) {
	return r.terminalTransition(ctx, id,
		`UPDATE workflow_instance SET status = ?, progress_percentage = 100
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		[]interface{}{workflow.InstanceStatusCompleted, id,
			workflow.InstanceStatusCompleted, workflow.InstanceStatusCancelled, workflow.InstanceStatusRejected},
		workflow.NewHistoryEntry(id, workflow.HistoryActionCompleted, byID, "Workflow completed"))
}

// CancelInstance 置实例为CANCELLED并写历史（事务，终态守卫）
func (r *SQLApprovalRepo) CancelInstance(ctx context.Context, id, reason, byID string, at time.Time) (bool, error) {
	return r.terminalTransition(ctx, id,
		`UPDATE workflow_instance SET status = ?, cancelled_at = ?, cancelled_by_id = ?, cancellation_reason = ?
		 WHERE id = ? AND status NOT IN (?, ?, ?)`,
		[]interface{}{workflow.InstanceStatusCancelled, at, byID, reason, id,
			workflow.InstanceStatusCompleted, workflow.InstanceStatusCancelled, workflow.InstanceStatusRejected},
		workflow.NewHistoryEntry(id, workflow.HistoryActionCancelled, byID, reason))
}

// terminalTransition 带终态守卫的状态写入加历史（事务）
func (r *SQLApprovalRepo) terminalTransition(ctx context.Context, id, query string,
	args []interface{}, history workflow.HistoryEntry) (bool, error) {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("更新实例状态失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("读取更新行数失败: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := r.insertHistoryInTx(ctx, tx, &history); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("提交事务失败: %w", err)
	}
	return true, nil
}

// ========== 分配与审批 ==========

// CreateAssignments 为阶段追加一批分配与协调组（事务）
// updatedGroups用于同标签并组：按组ID改写分母与coordination_metadata
func (r *SQLApprovalRepo) CreateAssignments(ctx context.Context, stageInstanceID string,
	assignments []workflow.Assignment, newGroups, updatedGroups []workflow.ParallelCoordinationGroup) error {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	for i := range assignments {
		assignments[i].StageInstanceID = stageInstanceID
		if err := r.insertAssignmentInTx(ctx, tx, &assignments[i]); err != nil {
			return err
		}
	}
	for i := range newGroups {
		newGroups[i].StageInstanceID = stageInstanceID
		if err := r.insertGroupInTx(ctx, tx, &newGroups[i]); err != nil {
			return err
		}
	}
	for i := range updatedGroups {
		if err := r.updateGroupInTx(ctx, tx, &updatedGroups[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetAssignment 按ID查询分配
func (r *SQLApprovalRepo) GetAssignment(ctx context.Context, id string) (*workflow.Assignment, error) {
	var aDAO dao.AssignmentDAO
	query := r.db.Rebind(`SELECT id, stage_instance_id, assigned_to_id, role_id, assignment_type,
	        action, action_taken_by_id, action_taken_at, notes, metadata, create_time
	        FROM assignment WHERE id = ?`)
	if err := r.db.GetContext(ctx, &aDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分配失败: %w", err)
	}
	return daoToAssignment(&aDAO)
}

// RecordAssignmentAction 一次性写入审批动作（行级CAS）
func (r *SQLApprovalRepo) RecordAssignmentAction(ctx context.Context, id, action, byID, notes string, at time.Time) (bool, error) {
	query := r.db.Rebind(`UPDATE assignment
	        SET action = ?, action_taken_by_id = ?, action_taken_at = ?, notes = ?
	        WHERE id = ? AND action IS NULL`)
	res, err := r.db.ExecContext(ctx, query, action, byID, at, notes, id)
	if err != nil {
		return false, fmt.Errorf("写入审批动作失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("读取更新行数失败: %w", err)
	}
	return affected > 0, nil
}

// SetAssignmentSignature 将电子签名ID写入分配元数据
func (r *SQLApprovalRepo) SetAssignmentSignature(ctx context.Context, id, signatureID string) error {
	a, err := r.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("assignment %s not found", id)
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	a.Metadata[workflow.MetadataKeySignatureID] = signatureID
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("序列化分配元数据失败: %w", err)
	}
	query := r.db.Rebind(`UPDATE assignment SET metadata = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, string(metaJSON), id); err != nil {
		return fmt.Errorf("更新分配元数据失败: %w", err)
	}
	return nil
}

// ListSignedAssignments 列出实例下所有携带签名ID的分配
func (r *SQLApprovalRepo) ListSignedAssignments(ctx context.Context, workflowInstanceID string) ([]workflow.Assignment, error) {
	var aDAOs []dao.AssignmentDAO
	query := r.db.Rebind(`SELECT a.id, a.stage_instance_id, a.assigned_to_id, a.role_id, a.assignment_type,
	        a.action, a.action_taken_by_id, a.action_taken_at, a.notes, a.metadata, a.create_time
	        FROM assignment a
	        JOIN stage_instance s ON s.id = a.stage_instance_id
	        WHERE s.workflow_instance_id = ? AND a.metadata IS NOT NULL`)
	if err := r.db.SelectContext(ctx, &aDAOs, query, workflowInstanceID); err != nil {
		return nil, fmt.Errorf("查询签名分配失败: %w", err)
	}
	result := make([]workflow.Assignment, 0, len(aDAOs))
	for i := range aDAOs {
		a, err := daoToAssignment(&aDAOs[i])
		if err != nil {
			return nil, err
		}
		if a.SignatureID() != "" {
			result = append(result, *a)
		}
	}
	return result, nil
}

// ========== 阶段 ==========

// GetStageInstance 按ID查询阶段实例，水合分配与协调组
func (r *SQLApprovalRepo) GetStageInstance(ctx context.Context, id string) (*workflow.StageInstance, error) {
	var stDAO dao.StageInstanceDAO
	query := r.db.Rebind(`SELECT id, workflow_instance_id, stage_definition_id, stage_number, stage_name,
	        status, outcome, approval_type, minimum_approvals, approval_threshold, deadline, metadata, create_time
	        FROM stage_instance WHERE id = ?`)
	if err := r.db.GetContext(ctx, &stDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询阶段实例失败: %w", err)
	}
	st, err := daoToStageInstance(&stDAO)
	if err != nil {
		return nil, err
	}

	assignments, groups, err := r.loadStageChildren(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	st.Assignments = assignments[id]
	st.Groups = groups[id]
	return st, nil
}

// ApplyStageResolution 原子应用一次阶段解决的全部变更（事务）
func (r *SQLApprovalRepo) ApplyStageResolution(ctx context.Context, res *StageResolution) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	// 1. 解决当前阶段；已解决的阶段不允许重复解决
	result, err := tx.ExecContext(ctx, r.db.Rebind(
		`UPDATE stage_instance SET status = ?, outcome = ? WHERE id = ? AND status = ?`),
		workflow.StageStatusCompleted, res.Outcome, res.StageInstanceID, workflow.StageStatusInProgress)
	if err != nil {
		return fmt.Errorf("更新阶段状态失败: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取更新行数失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("stage instance %s is not in progress", res.StageInstanceID)
	}

	// 2. 跳过被路由越过的阶段
	for _, stageID := range res.SkippedStageIDs {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE stage_instance SET status = ?, outcome = ? WHERE id = ? AND status = ?`),
			workflow.StageStatusSkipped, workflow.OutcomeSkipped, stageID, workflow.StageStatusPending); err != nil {
			return fmt.Errorf("跳过阶段失败: %w", err)
		}
	}

	// 3. 激活下一批阶段
	for _, stageID := range res.ActivateStageIDs {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE stage_instance SET status = ? WHERE id = ? AND status = ?`),
			workflow.StageStatusInProgress, stageID, workflow.StageStatusPending); err != nil {
			return fmt.Errorf("激活阶段失败: %w", err)
		}
	}

	// 4. 为激活阶段落位分配与协调组
	for i := range res.NewAssignments {
		if err := r.insertAssignmentInTx(ctx, tx, &res.NewAssignments[i]); err != nil {
			return err
		}
	}
	for i := range res.NewGroups {
		if err := r.insertGroupInTx(ctx, tx, &res.NewGroups[i]); err != nil {
			return err
		}
	}

	// 5. 实例级更新：进度，以及可能的终态（带守卫）
	if res.InstanceStatus != "" && workflow.IsTerminalInstanceStatus(res.InstanceStatus) {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE workflow_instance SET status = ?, progress_percentage = ?
			 WHERE id = ? AND status NOT IN (?, ?, ?)`),
			res.InstanceStatus, res.Progress, res.InstanceID,
			workflow.InstanceStatusCompleted, workflow.InstanceStatusCancelled, workflow.InstanceStatusRejected); err != nil {
			return fmt.Errorf("更新实例状态失败: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`UPDATE workflow_instance SET progress_percentage = ? WHERE id = ?`),
			res.Progress, res.InstanceID); err != nil {
			return fmt.Errorf("更新实例进度失败: %w", err)
		}
	}

	// 6. 审计历史
	for i := range res.History {
		if err := r.insertHistoryInTx(ctx, tx, &res.History[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ListEscalatableStages 列出截止时间早于now的IN_PROGRESS阶段
func (r *SQLApprovalRepo) ListEscalatableStages(ctx context.Context, now time.Time) ([]workflow.StageInstance, error) {
	var stDAOs []dao.StageInstanceDAO
	query := r.db.Rebind(`SELECT id, workflow_instance_id, stage_definition_id, stage_number, stage_name,
	        status, outcome, approval_type, minimum_approvals, approval_threshold, deadline, metadata, create_time
	        FROM stage_instance WHERE status = ? AND deadline IS NOT NULL AND deadline < ?`)
	if err := r.db.SelectContext(ctx, &stDAOs, query, workflow.StageStatusInProgress, now); err != nil {
		return nil, fmt.Errorf("查询超期阶段失败: %w", err)
	}
	stages := make([]workflow.StageInstance, 0, len(stDAOs))
	for i := range stDAOs {
		st, err := daoToStageInstance(&stDAOs[i])
		if err != nil {
			return nil, err
		}
		stages = append(stages, *st)
	}
	return stages, nil
}

// MarkStageEscalated 置阶段为ESCALATED并写历史（事务）
func (r *SQLApprovalRepo) MarkStageEscalated(ctx context.Context, stageInstanceID string, history workflow.HistoryEntry) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.db.Rebind(
		`UPDATE stage_instance SET status = ? WHERE id = ? AND status = ?`),
		workflow.StageStatusEscalated, stageInstanceID, workflow.StageStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("升级阶段状态失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("读取更新行数失败: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := r.insertHistoryInTx(ctx, tx, &history); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("提交事务失败: %w", err)
	}
	return true, nil
}

// ========== 历史 ==========

// AppendHistory 追加一条审计历史
func (r *SQLApprovalRepo) AppendHistory(ctx context.Context, entry workflow.HistoryEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}
	defer tx.Rollback()
	if err := r.insertHistoryInTx(ctx, tx, &entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ListHistory 按时间升序列出实例的审计历史
func (r *SQLApprovalRepo) ListHistory(ctx context.Context, workflowInstanceID string) ([]workflow.HistoryEntry, error) {
	var hDAOs []dao.HistoryDAO
	query := r.db.Rebind(`SELECT id, workflow_instance_id, action, performed_by_id, notes, timestamp
	        FROM workflow_history WHERE workflow_instance_id = ? ORDER BY timestamp ASC, id ASC`)
	if err := r.db.SelectContext(ctx, &hDAOs, query, workflowInstanceID); err != nil {
		return nil, fmt.Errorf("查询审计历史失败: %w", err)
	}
	entries := make([]workflow.HistoryEntry, 0, len(hDAOs))
	for i := range hDAOs {
		entries = append(entries, workflow.HistoryEntry{
			ID:                 hDAOs[i].ID,
			WorkflowInstanceID: hDAOs[i].WorkflowInstanceID,
			Action:             hDAOs[i].Action,
			PerformedByID:      hDAOs[i].PerformedByID,
			Notes:              hDAOs[i].Notes.String,
			Timestamp:          hDAOs[i].Timestamp,
		})
	}
	return entries, nil
}

// ========== 规则 ==========

// SaveRule 保存条件路由规则
func (r *SQLApprovalRepo) SaveRule(ctx context.Context, rule *rules.WorkflowRule) error {
	condJSON, err := json.Marshal(rule.Condition)
	if err != nil {
		return fmt.Errorf("序列化规则条件失败: %w", err)
	}
	actionJSON, err := json.Marshal(rule.Action)
	if err != nil {
		return fmt.Errorf("序列化规则动作失败: %w", err)
	}
	ruleDAO := &dao.WorkflowRuleDAO{
		ID:           rule.ID,
		WorkflowType: rule.WorkflowType,
		Name:         rule.Name,
		IsActive:     rule.IsActive,
		Priority:     rule.Priority,
		Condition:    string(condJSON),
		Action:       string(actionJSON),
		CreateTime:   time.Now(),
	}
	upsert := r.dialect.UpsertSQL("workflow_rule",
		[]string{"id", "workflow_type", "name", "is_active", "priority", "condition_json", "action_json", "create_time"},
		"id",
		[]string{"workflow_type", "name", "is_active", "priority", "condition_json", "action_json"})
	if _, err := r.db.NamedExecContext(ctx, upsert, ruleDAO); err != nil {
		return fmt.Errorf("保存规则失败: %w", err)
	}
	return nil
}

// ListRules 列出workflowType下的启用规则（按Priority升序）
func (r *SQLApprovalRepo) ListRules(ctx context.Context, workflowType string) ([]rules.WorkflowRule, error) {
	var ruleDAOs []dao.WorkflowRuleDAO
	query := r.db.Rebind(`SELECT id, workflow_type, name, is_active, priority, condition_json, action_json, create_time
	        FROM workflow_rule WHERE workflow_type = ? AND is_active = ? ORDER BY priority ASC`)
	if err := r.db.SelectContext(ctx, &ruleDAOs, query, workflowType, true); err != nil {
		return nil, fmt.Errorf("查询规则失败: %w", err)
	}
	result := make([]rules.WorkflowRule, 0, len(ruleDAOs))
	for i := range ruleDAOs {
		rd := &ruleDAOs[i]
		cond, err := rules.ParseCondition([]byte(rd.Condition))
		if err != nil {
			return nil, fmt.Errorf("解析规则%s条件失败: %w", rd.ID, err)
		}
		var action rules.RuleAction
		if err := json.Unmarshal([]byte(rd.Action), &action); err != nil {
			return nil, fmt.Errorf("解析规则%s动作失败: %w", rd.ID, err)
		}
		result = append(result, rules.WorkflowRule{
			ID:           rd.ID,
			WorkflowType: rd.WorkflowType,
			Name:         rd.Name,
			IsActive:     rd.IsActive,
			Priority:     rd.Priority,
			Condition:    cond,
			Action:       action,
		})
	}
	return result, nil
}

// ========== 查询 ==========

// ListOpenTasks 查询用户的未处理分配（action为空），分页
func (r *SQLApprovalRepo) ListOpenTasks(ctx context.Context, userID string, filter TaskFilter) ([]TaskItem, int, error) {
	where := `a.assigned_to_id = ? AND a.action IS NULL`
	args := []interface{}{userID}
	if filter.Status != "" {
		where += ` AND w.status = ?`
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		where += ` AND w.priority = ?`
		args = append(args, filter.Priority)
	}

	countQuery := r.db.Rebind(`SELECT COUNT(*)
	        FROM assignment a
	        JOIN stage_instance s ON s.id = a.stage_instance_id
	        JOIN workflow_instance w ON w.id = s.workflow_instance_id
	        WHERE ` + where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("统计待办任务失败: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	listQuery := r.db.Rebind(`SELECT a.id, a.stage_instance_id, a.assigned_to_id, a.role_id,
	        a.assignment_type, a.notes, a.create_time,
	        s.stage_number, s.stage_name, s.deadline,
	        w.id AS workflow_id, w.status AS workflow_status, w.entity_type, w.entity_id, w.priority
	        FROM assignment a
	        JOIN stage_instance s ON s.id = a.stage_instance_id
	        JOIN workflow_instance w ON w.id = s.workflow_instance_id
	        WHERE ` + where + `
	        ORDER BY a.create_time ASC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	var itemDAOs []dao.TaskItemDAO
	if err := r.db.SelectContext(ctx, &itemDAOs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("查询待办任务失败: %w", err)
	}

	items := make([]TaskItem, 0, len(itemDAOs))
	for i := range itemDAOs {
		d := &itemDAOs[i]
		item := TaskItem{
			Assignment: workflow.Assignment{
				ID:              d.ID,
				StageInstanceID: d.StageInstanceID,
				AssignedToID:    d.AssignedToID,
				RoleID:          d.RoleID.String,
				AssignmentType:  d.AssignmentType,
				Notes:           d.Notes.String,
				CreateTime:      d.CreateTime,
			},
			StageInstanceID: d.StageInstanceID,
			StageNumber:     d.StageNumber,
			StageName:       d.StageName,
			WorkflowID:      d.WorkflowID,
			WorkflowStatus:  d.WorkflowStatus,
			EntityType:      d.EntityType,
			EntityID:        d.EntityID,
			Priority:        d.Priority.String,
		}
		if d.Deadline.Valid {
			deadline := d.Deadline.Time
			item.Deadline = &deadline
		}
		items = append(items, item)
	}
	return items, total, nil
}

// ========== 内部辅助 ==========

// loadStageChildren 批量加载一组阶段的分配与协调组
func (r *SQLApprovalRepo) loadStageChildren(ctx context.Context, stageIDs []string) (
	map[string][]workflow.Assignment, map[string][]workflow.ParallelCoordinationGroup, error) {

	assignQuery, assignArgs, err := sqlx.In(`SELECT id, stage_instance_id, assigned_to_id, role_id,
	        assignment_type, action, action_taken_by_id, action_taken_at, notes, metadata, create_time
	        FROM assignment WHERE stage_instance_id IN (?) ORDER BY create_time ASC`, stageIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("构造分配查询失败: %w", err)
	}
	var aDAOs []dao.AssignmentDAO
	if err := r.db.SelectContext(ctx, &aDAOs, r.db.Rebind(assignQuery), assignArgs...); err != nil {
		return nil, nil, fmt.Errorf("查询分配失败: %w", err)
	}
	assignments := make(map[string][]workflow.Assignment)
	for i := range aDAOs {
		a, err := daoToAssignment(&aDAOs[i])
		if err != nil {
			return nil, nil, err
		}
		assignments[a.StageInstanceID] = append(assignments[a.StageInstanceID], *a)
	}

	groupQuery, groupArgs, err := sqlx.In(`SELECT id, stage_instance_id, parallel_group,
	        total_assignments, coordination_metadata, create_time
	        FROM coordination_group WHERE stage_instance_id IN (?)`, stageIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("构造协调组查询失败: %w", err)
	}
	var gDAOs []dao.CoordinationGroupDAO
	if err := r.db.SelectContext(ctx, &gDAOs, r.db.Rebind(groupQuery), groupArgs...); err != nil {
		return nil, nil, fmt.Errorf("查询协调组失败: %w", err)
	}
	groups := make(map[string][]workflow.ParallelCoordinationGroup)
	for i := range gDAOs {
		g, err := daoToGroup(&gDAOs[i])
		if err != nil {
			return nil, nil, err
		}
		groups[g.StageInstanceID] = append(groups[g.StageInstanceID], *g)
	}
	return assignments, groups, nil
}

func (r *SQLApprovalRepo) insertStageInTx(ctx context.Context, tx *sqlx.Tx, st *workflow.StageInstance) error {
	stDAO, err := stageInstanceToDAO(st)
	if err != nil {
		return err
	}
	query := `INSERT INTO stage_instance
	(id, workflow_instance_id, stage_definition_id, stage_number, stage_name, status, outcome,
	 approval_type, minimum_approvals, approval_threshold, deadline, metadata, create_time)
	VALUES (:id, :workflow_instance_id, :stage_definition_id, :stage_number, :stage_name, :status, :outcome,
	 :approval_type, :minimum_approvals, :approval_threshold, :deadline, :metadata, :create_time)`
	if _, err := tx.NamedExecContext(ctx, query, stDAO); err != nil {
		return fmt.Errorf("创建阶段实例失败: %w", err)
	}
	return nil
}

func (r *SQLApprovalRepo) insertAssignmentInTx(ctx context.Context, tx *sqlx.Tx, a *workflow.Assignment) error {
	aDAO, err := assignmentToDAO(a)
	if err != nil {
		return err
	}
	query := `INSERT INTO assignment
	(id, stage_instance_id, assigned_to_id, role_id, assignment_type, action,
	 action_taken_by_id, action_taken_at, notes, metadata, create_time)
	VALUES (:id, :stage_instance_id, :assigned_to_id, :role_id, :assignment_type, :action,
	 :action_taken_by_id, :action_taken_at, :notes, :metadata, :create_time)`
	if _, err := tx.NamedExecContext(ctx, query, aDAO); err != nil {
		return fmt.Errorf("创建分配失败: %w", err)
	}
	return nil
}

func (r *SQLApprovalRepo) insertGroupInTx(ctx context.Context, tx *sqlx.Tx, g *workflow.ParallelCoordinationGroup) error {
	metaJSON, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("序列化协调组元数据失败: %w", err)
	}
	createTime := g.CreateTime
	if createTime.IsZero() {
		createTime = time.Now()
	}
	gDAO := &dao.CoordinationGroupDAO{
		ID:               g.ID,
		StageInstanceID:  g.StageInstanceID,
		ParallelGroup:    g.ParallelGroup,
		TotalAssignments: g.TotalAssignments,
		Metadata:         string(metaJSON),
		CreateTime:       createTime,
	}
	query := `INSERT INTO coordination_group
	(id, stage_instance_id, parallel_group, total_assignments, coordination_metadata, create_time)
	VALUES (:id, :stage_instance_id, :parallel_group, :total_assignments, :coordination_metadata, :create_time)`
	if _, err := tx.NamedExecContext(ctx, query, gDAO); err != nil {
		return fmt.Errorf("创建协调组失败: %w", err)
	}
	return nil
}

func (r *SQLApprovalRepo) updateGroupInTx(ctx context.Context, tx *sqlx.Tx, g *workflow.ParallelCoordinationGroup) error {
	metaJSON, err := json.Marshal(g.Metadata)
	if err != nil {
		return fmt.Errorf("序列化协调组元数据失败: %w", err)
	}
	query := tx.Rebind(`UPDATE coordination_group
	SET total_assignments = ?, coordination_metadata = ?
	WHERE id = ?`)
	res, err := tx.ExecContext(ctx, query, g.TotalAssignments, string(metaJSON), g.ID)
	if err != nil {
		return fmt.Errorf("更新协调组失败: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取更新行数失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("协调组 %s 不存在", g.ID)
	}
	return nil
}

func (r *SQLApprovalRepo) insertHistoryInTx(ctx context.Context, tx *sqlx.Tx, h *workflow.HistoryEntry) error {
	hDAO := &dao.HistoryDAO{
		ID:                 h.ID,
		WorkflowInstanceID: h.WorkflowInstanceID,
		Action:             h.Action,
		PerformedByID:      h.PerformedByID,
		Notes:              nullString(h.Notes),
		Timestamp:          h.Timestamp,
	}
	query := `INSERT INTO workflow_history
	(id, workflow_instance_id, action, performed_by_id, notes, timestamp)
	VALUES (:id, :workflow_instance_id, :action, :performed_by_id, :notes, :timestamp)`
	if _, err := tx.NamedExecContext(ctx, query, hDAO); err != nil {
		return fmt.Errorf("写入审计历史失败: %w", err)
	}
	return nil
}

// 确保实现接口
var _ ApprovalAggregateRepository = (*SQLApprovalRepo)(nil)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalMeta(meta map[string]any) (sql.NullString, error) {
	if len(meta) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMeta(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(ns.String), &meta); err != nil {
		return nil, fmt.Errorf("反序列化元数据失败: %w", err)
	}
	return meta, nil
}
