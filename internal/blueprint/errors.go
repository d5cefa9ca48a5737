package blueprint

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrInvalidExtraction   = errors.New("CV提取结果无效")
	ErrBlueprintNotFound   = errors.New("蓝图不存在")
	ErrStoreNotProvisioned = errors.New("蓝图存储未初始化")
	ErrStoreUnavailable    = errors.New("蓝图存储不可用")
	ErrVersionConflict     = errors.New("蓝图版本冲突")
)

// MergeError 包含详细错误信息的自定义错误
type MergeError struct {
	UserID  string
	Op      string
	BaseErr error
	Detail  string
}

func (e *MergeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 用户:%s): %s", e.BaseErr, e.Op, e.UserID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 用户:%s)", e.BaseErr, e.Op, e.UserID)
}

func (e *MergeError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *MergeError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func NewInvalidExtractionError(userID, detail string) error {
	return &MergeError{UserID: userID, Op: "validate", BaseErr: ErrInvalidExtraction, Detail: detail}
}

func NewProvisionError(userID, detail string) error {
	return &MergeError{UserID: userID, Op: "get_or_create", BaseErr: ErrStoreNotProvisioned, Detail: detail}
}

func NewStoreError(userID, op, detail string) error {
	return &MergeError{UserID: userID, Op: op, BaseErr: ErrStoreUnavailable, Detail: detail}
}

func NewConflictError(userID, detail string) error {
	return &MergeError{UserID: userID, Op: "update", BaseErr: ErrVersionConflict, Detail: detail}
}
