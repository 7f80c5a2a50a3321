package approvalengine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/machshop/approval-engine/pkg/api/dto"
	"github.com/machshop/approval-engine/pkg/core/workflow"
)

// ApprovalEngine HTTP API客户端
type ApprovalEngine struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// New 创建ApprovalEngine客户端
func New(baseURL, userID string) *ApprovalEngine {
	return &ApprovalEngine{
		baseURL: baseURL,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// StartWorkflow 启动工作流实例
func (t *ApprovalEngine) StartWorkflow(req dto.StartWorkflowRequest) (*dto.StartWorkflowResponse, error) {
	var resp dto.APIResponse[dto.StartWorkflowResponse]
	if err := t.post("/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// GetWorkflow 获取实例详情
func (t *ApprovalEngine) GetWorkflow(id string) (*workflow.WorkflowInstance, error) {
	var resp dto.APIResponse[workflow.WorkflowInstance]
	if err := t.get("/api/v1/workflows/"+id, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// GetProgress 获取实例进度
func (t *ApprovalEngine) GetProgress(id string) (map[string]interface{}, error) {
	var resp dto.APIResponse[map[string]interface{}]
	if err := t.get("/api/v1/workflows/"+id+"/progress", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data, nil
}

// GetHistory 获取实例审计历史
func (t *ApprovalEngine) GetHistory(id string) ([]workflow.HistoryEntry, error) {
	var resp dto.APIResponse[[]workflow.HistoryEntry]
	if err := t.get("/api/v1/workflows/"+id+"/history", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data, nil
}

// VerifySignatures 校验实例下全部电子签名
func (t *ApprovalEngine) VerifySignatures(id string) (*dto.SignatureVerifyResponse, error) {
	var resp dto.APIResponse[dto.SignatureVerifyResponse]
	if err := t.get("/api/v1/workflows/"+id+"/signatures/verify", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// CompleteWorkflow 完成工作流
func (t *ApprovalEngine) CompleteWorkflow(id string) error {
	var resp dto.APIResponse[any]
	if err := t.post("/api/v1/workflows/"+id+"/complete", nil, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// CancelWorkflow 取消工作流
func (t *ApprovalEngine) CancelWorkflow(id, reason string) error {
	var resp dto.APIResponse[any]
	if err := t.post("/api/v1/workflows/"+id+"/cancel", dto.CancelWorkflowRequest{Reason: reason}, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// ========== Approval API ==========

// AssignUsers 为阶段分配审批人
func (t *ApprovalEngine) AssignUsers(stageInstanceID string, req dto.AssignUsersRequest) error {
	var resp dto.APIResponse[any]
	if err := t.post("/api/v1/stages/"+stageInstanceID+"/assignments", req, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// ProcessAction 记录审批动作（携带签名时走签名端点）
func (t *ApprovalEngine) ProcessAction(assignmentID string, req dto.ApprovalActionRequest) error {
	path := "/api/v1/assignments/" + assignmentID + "/action"
	if req.Signature != nil {
		path = "/api/v1/assignments/" + assignmentID + "/action-signed"
	}
	var resp dto.APIResponse[any]
	if err := t.post(path, req, &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

// SignatureRequired 查询分配是否要求电子签名
func (t *ApprovalEngine) SignatureRequired(assignmentID string) (bool, error) {
	var resp dto.APIResponse[map[string]bool]
	if err := t.get("/api/v1/assignments/"+assignmentID+"/signature-required", &resp); err != nil {
		return false, err
	}
	if resp.Code != 0 {
		return false, fmt.Errorf("%s", resp.Message)
	}
	return resp.Data["signature_required"], nil
}

// ========== Task API ==========

// ListTasks 查询用户的待办任务
func (t *ApprovalEngine) ListTasks(userID, status, priority string, page, limit int) (*dto.TaskListResponse, error) {
	params := url.Values{}
	if userID != "" {
		params.Set("user_id", userID)
	}
	if status != "" {
		params.Set("status", status)
	}
	if priority != "" {
		params.Set("priority", priority)
	}
	if page > 0 {
		params.Set("page", fmt.Sprintf("%d", page))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	path := "/api/v1/tasks"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.TaskListResponse]
	if err := t.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// ========== Health API ==========

// Health 健康检查
func (t *ApprovalEngine) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := t.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func (t *ApprovalEngine) get(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	return t.do(req, result)
}

func (t *ApprovalEngine) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, t.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req, result)
}

func (t *ApprovalEngine) do(req *http.Request, result interface{}) error {
	if t.userID != "" {
		req.Header.Set("X-User-ID", t.userID)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return t.parseResponse(resp, result)
}

func (t *ApprovalEngine) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}

	return nil
}
