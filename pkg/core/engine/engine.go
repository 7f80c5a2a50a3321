// Package engine 实现多阶段审批工作流引擎的对外操作面
package engine

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/machshop/approval-engine/pkg/core/events"
	"github.com/machshop/approval-engine/pkg/core/signature"
	"github.com/machshop/approval-engine/pkg/core/workflow"
	"github.com/machshop/approval-engine/pkg/storage"
)

// DefinitionRepository 工作流定义来源（协作方，只读）
type DefinitionRepository interface {
	// GetDefinition 按ID查询定义（含阶段，按StageNumber升序）；不存在返回nil
	GetDefinition(ctx context.Context, workflowID string) (*workflow.WorkflowDefinition, error)
}

// EntityContextProvider 实体上下文提供方（协作方，只读）
// 仅供条件路由引擎构造求值上下文
type EntityContextProvider interface {
	// GetContext 返回entityType/entityId对应的上下文字段
	GetContext(ctx context.Context, entityType, entityID string) (map[string]any, error)
}

// AssignmentSpec 一条审批人分配说明
type AssignmentSpec struct {
	UserID         string `json:"user_id"`
	RoleID         string `json:"role_id,omitempty"`
	AssignmentType string `json:"assignment_type,omitempty"` // 默认REQUIRED
	ParallelGroup  string `json:"parallel_group,omitempty"`  // 默认DEFAULT
}

// AssigneeResolver 按阶段定义解析审批人（协作方）
// 默认实现从阶段定义metadata的assignees字段读取
type AssigneeResolver interface {
	ResolveStage(ctx context.Context, def *workflow.WorkflowDefinition, stage *workflow.StageDefinition) ([]AssignmentSpec, error)
}

// Config 引擎行为配置
type Config struct {
	// EnforceSignatures 为true时，签名必需的分配未携带签名即拒绝审批动作
	EnforceSignatures bool
	// EscalationCron 超期阶段升级的调度表达式（空则使用默认）
	EscalationCron string
}

// Engine 审批工作流引擎（对外导出）
// 聚合实例管理、分配审批、协调求值、条件路由与查询
type Engine struct {
	repo       storage.ApprovalAggregateRepository
	defs       DefinitionRepository
	contexts   EntityContextProvider
	resolver   AssigneeResolver
	signatures signature.Service
	bus        *events.Bus
	log        *logrus.Logger
	cfg        Config

	scheduler *DeadlineScheduler
}

// Option 引擎构造选项
type Option func(*Engine)

// WithDefinitionRepository 指定外部定义来源
func WithDefinitionRepository(defs DefinitionRepository) Option {
	return func(e *Engine) { e.defs = defs }
}

// WithContextProvider 指定实体上下文提供方
func WithContextProvider(p EntityContextProvider) Option {
	return func(e *Engine) { e.contexts = p }
}

// WithAssigneeResolver 指定审批人解析器
func WithAssigneeResolver(r AssigneeResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithSignatureService 指定电子签名协作方
func WithSignatureService(s signature.Service) Option {
	return func(e *Engine) { e.signatures = s }
}

// WithEventBus 指定事件总线
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger 指定日志器
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithConfig 指定引擎行为配置
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New 创建引擎实例（对外导出）
// 未指定的协作方使用默认实现：定义取自存储、空实体上下文、
// metadata解析审批人、内存签名服务
func New(repo storage.ApprovalAggregateRepository, opts ...Option) *Engine {
	e := &Engine{repo: repo}
	for _, opt := range opts {
		opt(e)
	}
	if e.defs == nil {
		e.defs = &storeDefinitionRepository{repo: repo}
	}
	if e.contexts == nil {
		e.contexts = emptyContextProvider{}
	}
	if e.resolver == nil {
		e.resolver = MetadataAssigneeResolver{}
	}
	if e.signatures == nil {
		e.signatures = signature.NewMemoryService()
	}
	if e.log == nil {
		e.log = logrus.New()
	}
	return e
}

// Repo 获取底层存储（供API层的定义管理等直通操作使用）
func (e *Engine) Repo() storage.ApprovalAggregateRepository {
	return e.repo
}

// Bus 获取事件总线（可能为nil）
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Start 启动引擎的后台组件（超期升级调度器）
func (e *Engine) Start(ctx context.Context) error {
	if e.scheduler != nil {
		return nil
	}
	scheduler, err := NewDeadlineScheduler(e, e.cfg.EscalationCron)
	if err != nil {
		return err
	}
	e.scheduler = scheduler
	e.scheduler.Start()
	e.log.Info("🚀 审批引擎已启动")
	return nil
}

// Stop 停止引擎后台组件
func (e *Engine) Stop() {
	if e.scheduler != nil {
		e.scheduler.Stop()
		e.scheduler = nil
	}
	if e.bus != nil {
		e.bus.Close()
	}
	e.log.Info("✅ 审批引擎已停止")
}

// publishEvent 尽力发布事件；失败只记日志不影响主流程
func (e *Engine) publishEvent(ctx context.Context, event events.WorkflowEvent) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.log.WithError(err).Warn("发布工作流事件失败")
	}
}

// storeDefinitionRepository 定义来源的默认实现：读引擎自己的存储
type storeDefinitionRepository struct {
	repo storage.ApprovalAggregateRepository
}

func (r *storeDefinitionRepository) GetDefinition(ctx context.Context, workflowID string) (*workflow.WorkflowDefinition, error) {
	return r.repo.GetDefinition(ctx, workflowID)
}

// emptyContextProvider 实体上下文的空实现
type emptyContextProvider struct{}

func (emptyContextProvider) GetContext(ctx context.Context, entityType, entityID string) (map[string]any, error) {
	return map[string]any{}, nil
}

// MetadataAssigneeResolver 默认审批人解析器（对外导出）
// 读取阶段定义metadata中的assignees字段：
// 字符串列表视为userID，对象列表支持userId/roleId/assignmentType/parallelGroup
type MetadataAssigneeResolver struct{}

// ResolveStage 解析一个阶段的审批人分配
func (MetadataAssigneeResolver) ResolveStage(ctx context.Context, def *workflow.WorkflowDefinition, stage *workflow.StageDefinition) ([]AssignmentSpec, error) {
	if stage.Metadata == nil {
		return nil, nil
	}
	raw, ok := stage.Metadata["assignees"]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, nil
	}
	specs := make([]AssignmentSpec, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case string:
			specs = append(specs, AssignmentSpec{UserID: v})
		case map[string]any:
			spec := AssignmentSpec{}
			if s, ok := v["userId"].(string); ok {
				spec.UserID = s
			}
			if s, ok := v["roleId"].(string); ok {
				spec.RoleID = s
			}
			if s, ok := v["assignmentType"].(string); ok {
				spec.AssignmentType = s
			}
			if s, ok := v["parallelGroup"].(string); ok {
				spec.ParallelGroup = s
			}
			if spec.UserID != "" {
				specs = append(specs, spec)
			}
		}
	}
	return specs, nil
}
