package workflow

import (
	"errors"
	"fmt"
)

// 错误分类哨兵（对外导出）
// 各类型错误通过errors.Is与对应哨兵匹配
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation failed")
	ErrState            = errors.New("invalid state")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPersistence      = errors.New("persistence failure")
)

// NotFoundError 目标实体不存在
type NotFoundError struct {
	Entity string // 实体类型，如 "workflow definition"
	ID     string
	Msg    string // 完整消息（可选，覆盖默认格式）
}

func (e *NotFoundError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError 输入不合法
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StateError 当前状态下操作非法
type StateError struct {
	Entity string
	ID     string
	Msg    string
}

func (e *StateError) Error() string { return e.Msg }

func (e *StateError) Is(target error) bool { return target == ErrState }

// PermissionDeniedError 操作者无权执行该操作
type PermissionDeniedError struct {
	UserID       string
	AssignmentID string
	Msg          string
}

func (e *PermissionDeniedError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("user %s is not the assignee of assignment %s", e.UserID, e.AssignmentID)
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// PersistenceError 存储层失败，携带操作级别的包装消息
type PersistenceError struct {
	Op  string // 如 "Failed to start workflow"
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// WrapPersistence 包装存储层错误；err为nil时返回nil
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
