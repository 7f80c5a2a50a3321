// Package signature 定义电子签名协作方接口及开发/测试用的内存实现
package signature

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SignedEntityTypeWorkflowAssignment 审批分配的签名实体类型
const SignedEntityTypeWorkflowAssignment = "workflow_assignment"

// CreateRequest 创建签名请求
type CreateRequest struct {
	UserID           string         `json:"user_id"`
	Password         string         `json:"password"`
	SignatureType    string         `json:"signature_type"`
	SignatureLevel   string         `json:"signature_level"`
	SignedEntityType string         `json:"signed_entity_type"`
	SignedEntityID   string         `json:"signed_entity_id"`
	SignatureReason  string         `json:"signature_reason"`
	SignedDocument   map[string]any `json:"signed_document"`
}

// Signature 签名记录
type Signature struct {
	ID            string    `json:"id"`
	SignatureHash string    `json:"signature_hash"`
	Timestamp     time.Time `json:"timestamp"`
}

// VerifyRequest 验签请求
type VerifyRequest struct {
	SignatureID      string `json:"signature_id"`
	UserID           string `json:"user_id"`
	SignedEntityType string `json:"signed_entity_type"`
	SignedEntityID   string `json:"signed_entity_id"`
}

// VerifyResult 验签结果
type VerifyResult struct {
	IsValid   bool       `json:"is_valid"`
	Signature *Signature `json:"signature,omitempty"`
}

// Service 电子签名协作方接口（对外导出）
// 密码校验与加密实现在协作方内部，引擎只消费其结果
type Service interface {
	// CreateSignature 创建一条与实体绑定的电子签名
	CreateSignature(ctx context.Context, req CreateRequest) (*Signature, error)
	// VerifySignature 验证签名与实体、签名人的绑定关系
	VerifySignature(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

// memoryRecord 内存实现的签名存根
type memoryRecord struct {
	sig        Signature
	userID     string
	entityType string
	entityID   string
}

// MemoryService Service的内存实现（对外导出）
// 供开发模式与测试使用；生产部署应接入真实签名服务
type MemoryService struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

// NewMemoryService 创建内存签名服务
func NewMemoryService() *MemoryService {
	return &MemoryService{records: make(map[string]memoryRecord)}
}

// CreateSignature 创建签名：对签名文档做SHA-256摘要
func (s *MemoryService) CreateSignature(ctx context.Context, req CreateRequest) (*Signature, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("signature requires a user id")
	}
	docJSON, err := json.Marshal(req.SignedDocument)
	if err != nil {
		return nil, fmt.Errorf("序列化签名文档失败: %w", err)
	}
	digest := sha256.Sum256(append(docJSON, []byte(req.UserID+req.SignedEntityID)...))

	sig := Signature{
		ID:            uuid.NewString(),
		SignatureHash: hex.EncodeToString(digest[:]),
		Timestamp:     time.Now(),
	}

	s.mu.Lock()
	s.records[sig.ID] = memoryRecord{
		sig:        sig,
		userID:     req.UserID,
		entityType: req.SignedEntityType,
		entityID:   req.SignedEntityID,
	}
	s.mu.Unlock()

	return &sig, nil
}

// VerifySignature 校验签名存在且与用户、实体匹配
func (s *MemoryService) VerifySignature(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	s.mu.RLock()
	rec, ok := s.records[req.SignatureID]
	s.mu.RUnlock()

	if !ok {
		return &VerifyResult{IsValid: false}, nil
	}
	valid := rec.entityType == req.SignedEntityType &&
		rec.entityID == req.SignedEntityID &&
		(req.UserID == "" || rec.userID == req.UserID)
	sig := rec.sig
	return &VerifyResult{IsValid: valid, Signature: &sig}, nil
}

// 确保实现接口
var _ Service = (*MemoryService)(nil)
