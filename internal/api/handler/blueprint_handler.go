package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/config"
	"cv-insight-go/internal/constants"
	"cv-insight-go/internal/extractor"
	"cv-insight-go/internal/logger"
	storage2 "cv-insight-go/internal/storage"
	"cv-insight-go/internal/storage/models"
	"cv-insight-go/internal/tracing"
	"cv-insight-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var handlerTracer = otel.Tracer("cv-insight-go/api/handler")

// ErrRateLimited 上传频率超出单用户窗口限制
var ErrRateLimited = errors.New("上传频率超出限制")

// BlueprintHandler 蓝图处理器，协调CV上传到蓝图合并的完整流程
type BlueprintHandler struct {
	cfg       *config.Config
	storage   *storage2.Storage
	text      extractor.TextExtractor
	extractor extractor.CVExtractor
	merger    *blueprint.Merger
}

// NewBlueprintHandler 创建蓝图处理器
func NewBlueprintHandler(
	cfg *config.Config,
	storage *storage2.Storage,
	text extractor.TextExtractor,
	cvExtractor extractor.CVExtractor,
	merger *blueprint.Merger,
) *BlueprintHandler {
	return &BlueprintHandler{
		cfg:       cfg,
		storage:   storage,
		text:      text,
		extractor: cvExtractor,
		merger:    merger,
	}
}

// CVUploadResponse CV上传响应
type CVUploadResponse struct {
	SubmissionUUID string                  `json:"submission_uuid"`
	Status         string                  `json:"status"`
	BlueprintID    string                  `json:"blueprint_id,omitempty"`
	Profile        *types.BlueprintProfile `json:"profile,omitempty"`
	Summary        *types.MergeSummary     `json:"summary,omitempty"`
	Changes        []types.ChangeRecord    `json:"changes,omitempty"`
}

// HandleCVUpload 处理CV上传请求：去重、落盘、文本提取、LLM结构化、蓝图合并
// 同步执行整条流水线并返回合并后的蓝图快照
func (h *BlueprintHandler) HandleCVUpload(ctx context.Context, userID string, reader io.Reader,
	fileSize int64, filename string) (*CVUploadResponse, error) {

	ctx, span := handlerTracer.Start(ctx, "handler.HandleCVUpload")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("file.name", filename),
		attribute.Int64("file.size", fileSize),
	)

	if userID == "" {
		return nil, fmt.Errorf("%w: 缺少user_id", blueprint.ErrInvalidExtraction)
	}

	// 限流检查先于一切IO
	if h.cfg.RateLimit.Enabled && h.storage.Redis != nil {
		allowed, err := h.storage.Redis.AllowUpload(ctx, userID, h.cfg.RateLimit.MaxPerWindow, h.cfg.RateLimit.Window())
		if err != nil {
			// 限流器故障时放行，不让Redis抖动阻断上传
			logger.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("限流检查失败，本次放行")
		} else if !allowed {
			span.SetStatus(codes.Error, "rate limited")
			return nil, ErrRateLimited
		}
	}

	// reader只能读一次，先整体读入再计算MD5
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	if len(fileBytes) == 0 {
		return nil, fmt.Errorf("%w: 上传文件为空", blueprint.ErrInvalidExtraction)
	}

	sum := md5.Sum(fileBytes)
	contentHash := hex.EncodeToString(sum[:])
	span.SetAttributes(attribute.String("file.md5", contentHash))

	// 内容哈希去重：同一份文件重复上传时跳过整条流水线
	if h.storage.Redis != nil {
		exists, err := h.storage.Redis.CheckCVHashExists(ctx, contentHash)
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("md5", contentHash).Msg("查询CV哈希去重集合失败")
			return nil, fmt.Errorf("检查文件重复性失败: %w", err)
		}
		if exists {
			logger.Ctx(ctx).Info().Str("md5", contentHash).Str("filename", filename).Msg("检测到重复的CV文件，跳过处理")
			return &CVUploadResponse{Status: constants.StatusDuplicateSkipped}, nil
		}
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("生成提交UUID失败: %w", err)
	}
	submissionUUID := uuidV7.String()
	span.SetAttributes(attribute.String("submission.uuid", submissionUUID))

	extractorVersion := h.cfg.ActiveExtractorVersion
	if extractorVersion == "" {
		extractorVersion = constants.DefaultExtractorVer
	}

	submission := &models.CVSubmission{
		SubmissionUUID:   submissionUUID,
		UserID:           userID,
		OriginalFilename: filename,
		ContentMD5:       contentHash,
		ProcessingStatus: constants.StatusPendingExtraction,
		ExtractorVersion: extractorVersion,
	}
	if err := h.storage.MySQL.CreateCVSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("创建CV提交记录失败: %w", err)
	}

	// 原始文件落盘到对象存储（未配置MinIO时跳过，流水线仍可工作）
	var rawPath string
	if h.storage.MinIO != nil {
		ext := filepath.Ext(filename)
		if ext == "" {
			ext = ".pdf"
		}
		rawPath, err = h.storage.MinIO.UploadCVFile(ctx, submissionUUID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
		if err != nil {
			h.failSubmission(ctx, submissionUUID, fmt.Sprintf("上传原始文件失败: %v", err))
			return nil, fmt.Errorf("上传CV到MinIO失败: %w", err)
		}
	}

	result, parsedPath, err := h.processSubmission(ctx, userID, submissionUUID, fileBytes, filename, contentHash)
	if err != nil {
		h.failSubmission(ctx, submissionUUID, err.Error())
		if errors.Is(err, blueprint.ErrInvalidExtraction) {
			tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		} else {
			tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		}
		return nil, err
	}

	if rawPath != "" || parsedPath != "" {
		if err := h.storage.MySQL.UpdateCVSubmissionPaths(ctx, submissionUUID, rawPath, parsedPath); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("submission_uuid", submissionUUID).Msg("更新提交记录存储路径失败")
		}
	}
	if err := h.storage.MySQL.UpdateCVSubmissionStatus(ctx, submissionUUID, constants.StatusMerged); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("submission_uuid", submissionUUID).Msg("更新提交记录状态失败")
	}

	// 合并成功后才登记哈希，失败的上传可以原样重试
	if h.storage.Redis != nil {
		if err := h.storage.Redis.AddCVHash(ctx, contentHash); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("md5", contentHash).Msg("登记CV哈希失败，下次上传将重新处理")
		}
	}

	span.SetStatus(codes.Ok, "merged")
	return &CVUploadResponse{
		SubmissionUUID: submissionUUID,
		Status:         constants.StatusMerged,
		BlueprintID:    result.BlueprintID,
		Profile:        result.Profile,
		Summary:        &result.Summary,
		Changes:        result.Changes,
	}, nil
}

// processSubmission 执行文本提取、LLM结构化和蓝图合并
func (h *BlueprintHandler) processSubmission(ctx context.Context, userID, submissionUUID string,
	fileBytes []byte, filename, contentHash string) (*blueprint.MergeResult, string, error) {

	text, err := h.text.ExtractText(ctx, fileBytes, filename)
	if err != nil {
		return nil, "", fmt.Errorf("提取CV文本失败: %w", err)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("cv.text.length", len(text)),
		attribute.String("cv.text.preview", tracing.SafeCVContent(text)),
	)

	var parsedPath string
	if h.storage.MinIO != nil {
		parsedPath, err = h.storage.MinIO.UploadParsedText(ctx, submissionUUID, text)
		if err != nil {
			// 解析文本只是归档副本，上传失败不阻断合并
			logger.Ctx(ctx).Warn().Err(err).Str("submission_uuid", submissionUUID).Msg("归档解析文本失败")
			parsedPath = ""
		}
	}

	extraction, err := h.extractor.ExtractCVInfo(ctx, text)
	if err != nil {
		return nil, parsedPath, err
	}

	// 联系方式在进入合并前统一为结构化五字段
	contact := extractor.NormalizeContact(extraction.ContactInfo)
	extraction.ContactInfo = types.RawContactInfo{Structured: &contact}

	result, err := h.merger.MergeCV(ctx, userID, extraction, contentHash)
	if err != nil {
		return nil, parsedPath, err
	}
	return result, parsedPath, nil
}

func (h *BlueprintHandler) failSubmission(ctx context.Context, submissionUUID, detail string) {
	if err := h.storage.MySQL.MarkCVSubmissionFailed(ctx, submissionUUID, constants.StatusExtractionFailed, detail); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("submission_uuid", submissionUUID).Msg("标记提交失败状态时出错")
	}
}

// BlueprintResponse 蓝图查询响应
type BlueprintResponse struct {
	UserID  string                  `json:"user_id"`
	Profile *types.BlueprintProfile `json:"profile"`
}

// GetBlueprint 查询用户当前的职业蓝图
func (h *BlueprintHandler) GetBlueprint(ctx context.Context, userID string) (*BlueprintResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: 缺少user_id", blueprint.ErrInvalidExtraction)
	}
	profile, err := h.storage.MySQL.GetBlueprintByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BlueprintResponse{UserID: userID, Profile: profile}, nil
}

// ChangeLogItem 变更历史的单条目（对外视图）
type ChangeLogItem struct {
	LogID            uint64                  `json:"log_id"`
	ChangeType       string                  `json:"change_type"`
	ContentHash      string                  `json:"content_hash,omitempty"`
	Summary          string                  `json:"summary"`
	ConfidenceImpact float64                 `json:"confidence_impact"`
	CreatedAt        time.Time               `json:"created_at"`
	PreviousData     *types.BlueprintProfile `json:"previous_data,omitempty"`
	NewData          *types.BlueprintProfile `json:"new_data,omitempty"`
}

// BlueprintHistoryResponse 蓝图变更历史响应
type BlueprintHistoryResponse struct {
	UserID  string          `json:"user_id"`
	Entries []ChangeLogItem `json:"entries"`
}

// GetBlueprintHistory 按时间倒序返回用户蓝图的变更历史
func (h *BlueprintHandler) GetBlueprintHistory(ctx context.Context, userID string, limit, offset int, includeSnapshots bool) (*BlueprintHistoryResponse, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: 缺少user_id", blueprint.ErrInvalidExtraction)
	}

	rows, err := h.storage.MySQL.ListChangeLogs(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]ChangeLogItem, 0, len(rows))
	for _, row := range rows {
		item := ChangeLogItem{
			LogID:            row.LogID,
			ChangeType:       row.ChangeType,
			ContentHash:      row.ContentHash,
			Summary:          row.ChangeSummary,
			ConfidenceImpact: row.ConfidenceImpact,
			CreatedAt:        row.CreatedAt,
		}
		if includeSnapshots {
			item.PreviousData = decodeSnapshot(row.PreviousDataJSON)
			item.NewData = decodeSnapshot(row.NewDataJSON)
		}
		entries = append(entries, item)
	}
	return &BlueprintHistoryResponse{UserID: userID, Entries: entries}, nil
}

func decodeSnapshot(data []byte) *types.BlueprintProfile {
	if len(data) == 0 {
		return nil
	}
	var profile types.BlueprintProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil
	}
	return &profile
}
