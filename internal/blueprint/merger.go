package blueprint

import (
	"context"
	"errors"
	"strings"
	"time"

	"cv-insight-go/internal/logger"
	"cv-insight-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var mergerTracer = otel.Tracer("cv-insight-go/blueprint")

// ChangeLogEntry 写入变更账本的单条记录，包含合并前后的完整快照
type ChangeLogEntry struct {
	BlueprintID      string
	UserID           string
	ChangeType       string
	ContentHash      string
	PreviousData     *types.BlueprintProfile
	NewData          *types.BlueprintProfile
	Summary          string
	ConfidenceImpact float64
}

// BlueprintStore 蓝图的持久化边界契约
// GetOrCreateBlueprint 必须是原子的：每个用户恰好创建一次空蓝图
// UpdateBlueprint 带乐观版本检查：expectedVersion 与存储中的版本不一致时返回 ErrVersionConflict
type BlueprintStore interface {
	GetOrCreateBlueprint(ctx context.Context, userID string) (string, error)
	FetchBlueprint(ctx context.Context, blueprintID string) (*types.BlueprintProfile, error)
	UpdateBlueprint(ctx context.Context, blueprintID string, profile *types.BlueprintProfile, expectedVersion int) error
	AppendChangeLog(ctx context.Context, entry *ChangeLogEntry) error
}

// MergeResult 一次合并调用的完整返回
type MergeResult struct {
	BlueprintID string                  `json:"blueprint_id"`
	Profile     *types.BlueprintProfile `json:"profile"`
	Changes     []types.ChangeRecord    `json:"changes"`
	Summary     types.MergeSummary      `json:"summary"`
}

// Merger 蓝图合并编排器：加载当前蓝图，逐类调和，重算评分，持久化并记录变更
type Merger struct {
	store BlueprintStore
	now   func() time.Time
}

// NewMerger 创建蓝图合并编排器
func NewMerger(store BlueprintStore) *Merger {
	return &Merger{
		store: store,
		now:   time.Now,
	}
}

// MergeCV 将一份CV提取结果合并进用户的职业蓝图
// 失败时不产生部分持久化：要么完整落库，要么保持原状
func (m *Merger) MergeCV(ctx context.Context, userID string, extraction *types.ExtractedCVInfo, contentHash string) (*MergeResult, error) {
	ctx, span := mergerTracer.Start(ctx, "Blueprint.MergeCV",
		trace.WithAttributes(
			attribute.String("blueprint.user_id", userID),
			attribute.String("blueprint.content_hash", contentHash),
		))
	defer span.End()

	if err := validateInput(userID, extraction, contentHash); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 1. 原子地获取或创建蓝图
	// 存储未初始化必须作为可区分的错误浮出，调用方据此提示补救措施
	blueprintID, err := m.store.GetOrCreateBlueprint(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrStoreNotProvisioned) {
			return nil, NewProvisionError(userID, err.Error())
		}
		return nil, NewStoreError(userID, "get_or_create", err.Error())
	}
	span.SetAttributes(attribute.String("blueprint.id", blueprintID))

	// 2. 加载当前快照；与创建竞争导致的未找到按空蓝图处理
	current, err := m.store.FetchBlueprint(ctx, blueprintID)
	if err != nil {
		if errors.Is(err, ErrBlueprintNotFound) {
			current = &types.BlueprintProfile{}
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, NewStoreError(userID, "fetch", err.Error())
		}
	}
	if current == nil {
		current = &types.BlueprintProfile{}
	}
	loadedVersion := current.BlueprintVersion

	// 3. 逐类调和字段（纯计算，不触碰存储）
	reconciled := Reconcile(*current, extraction, contentHash)

	// 4. 基于合并后的完整蓝图重算评分
	merged := reconciled.Profile
	merged.DataCompleteness = DataCompleteness(&merged)
	merged.ConfidenceScore = ConfidenceScore(&merged, reconciled.Summary.NewItems())
	reconciled.Summary.Confidence = merged.ConfidenceScore

	// 5. 持久化：版本与处理计数各自+1，时间戳取当前
	now := m.now()
	merged.TotalCVsProcessed = current.TotalCVsProcessed + 1
	merged.BlueprintVersion = loadedVersion + 1
	merged.UpdatedAt = now
	merged.LastCVProcessedAt = now

	if err := m.store.UpdateBlueprint(ctx, blueprintID, &merged, loadedVersion); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrVersionConflict) {
			return nil, NewConflictError(userID, "蓝图在合并期间被并发修改，请重试")
		}
		return nil, NewStoreError(userID, "update", err.Error())
	}

	// 6. 有实际变更时追加一条变更账本记录
	if len(reconciled.Changes) > 0 {
		entry := &ChangeLogEntry{
			BlueprintID:      blueprintID,
			UserID:           userID,
			ChangeType:       "cv_merge",
			ContentHash:      contentHash,
			PreviousData:     current,
			NewData:          &merged,
			Summary:          summarizeChanges(reconciled.Changes),
			ConfidenceImpact: ConfidenceImpact(&reconciled.Summary),
		}
		if err := m.store.AppendChangeLog(ctx, entry); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, NewStoreError(userID, "change_log", err.Error())
		}
	}

	logger.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("blueprint_id", blueprintID).
		Int("version", merged.BlueprintVersion).
		Int("new_skills", reconciled.Summary.NewSkills).
		Int("new_experience", reconciled.Summary.NewExperience).
		Int("new_education", reconciled.Summary.NewEducation).
		Float64("confidence", merged.ConfidenceScore).
		Msg("CV已合并进职业蓝图")

	span.SetAttributes(
		attribute.Int("blueprint.version", merged.BlueprintVersion),
		attribute.Int("merge.new_items", reconciled.Summary.NewItems()),
		attribute.Float64("merge.confidence", merged.ConfidenceScore),
	)
	span.SetStatus(codes.Ok, "")

	return &MergeResult{
		BlueprintID: blueprintID,
		Profile:     &merged,
		Changes:     reconciled.Changes,
		Summary:     reconciled.Summary,
	}, nil
}

// validateInput 在触碰存储之前拒绝格式不完整的输入
func validateInput(userID string, extraction *types.ExtractedCVInfo, contentHash string) error {
	if strings.TrimSpace(userID) == "" {
		return NewInvalidExtractionError(userID, "用户ID不能为空")
	}
	if extraction == nil {
		return NewInvalidExtractionError(userID, "提取结果不能为空")
	}
	if strings.TrimSpace(contentHash) == "" {
		return NewInvalidExtractionError(userID, "内容哈希不能为空")
	}
	return nil
}

// summarizeChanges 将变更描述拼接成人类可读的摘要
func summarizeChanges(changes []types.ChangeRecord) string {
	descriptions := make([]string, len(changes))
	for i, c := range changes {
		descriptions[i] = c.Description
	}
	return strings.Join(descriptions, "; ")
}
