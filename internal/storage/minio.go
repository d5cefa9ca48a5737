package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cv-insight-go/internal/config"
	"cv-insight-go/internal/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// CVFileStore CV文件对象存储接口
type CVFileStore interface {
	// UploadCVFile 上传原始CV文件，返回对象键
	UploadCVFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error)

	// UploadParsedText 上传解析后的纯文本，返回对象键
	UploadParsedText(ctx context.Context, submissionUUID, text string) (string, error)

	// GetCVFile 下载原始CV文件
	GetCVFile(ctx context.Context, objectName string) ([]byte, error)

	// GetParsedText 下载解析后的纯文本
	GetParsedText(ctx context.Context, objectName string) (string, error)
}

// 确保MinIO实现了CVFileStore接口
var _ CVFileStore = (*MinIO)(nil)

// MinIO 提供CV原始文件与解析文本的对象存储
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	parsedBucket   string
}

// NewMinIO 创建MinIO客户端并确保存储桶与生命周期规则就绪
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	originalBucket := cfg.OriginalsBucket
	if originalBucket == "" {
		originalBucket = "cv-originals"
	}
	parsedBucket := cfg.ParsedTextBucket
	if parsedBucket == "" {
		parsedBucket = "cv-parsed-text"
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: originalBucket,
		parsedBucket:   parsedBucket,
	}

	if err := m.ensureBucketExists(originalBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保原始文件存储桶 %s 存在失败: %w", originalBucket, err)
	}
	if err := m.ensureBucketExists(parsedBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保解析文本存储桶 %s 存在失败: %w", parsedBucket, err)
	}

	// 生命周期规则失败不阻塞启动，仅告警
	if cfg.OriginalFileExpireDays > 0 || cfg.ParsedTextExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("设置MinIO生命周期规则失败")
		}
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint).
		Str("originals_bucket", originalBucket).
		Str("parsed_bucket", parsedBucket).
		Msg("MinIO客户端初始化完成")
	return m, nil
}

// ensureBucketExists 存储桶不存在时创建
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	return nil
}

// setupLifecycleRules 按配置为两个存储桶设置对象过期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalBucket, "expire-cv-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalBucket, err)
		}
	}
	if m.cfg.ParsedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedBucket, "expire-cv-parsed-text", m.cfg.ParsedTextExpireDays); err != nil {
			return fmt.Errorf("为解析文本存储桶 %s 设置生命周期失败: %w", m.parsedBucket, err)
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// UploadCVFile 上传原始CV文件到originalsBucket
// 对象键格式: cv/{submissionUUID}/original{ext}
func (m *MinIO) UploadCVFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	objectName := fmt.Sprintf("cv/%s/original%s", submissionUUID, fileExt)
	contentType := contentTypeForExt(fileExt)

	_, err := m.client.PutObject(ctx, m.originalBucket, objectName, reader, fileSize,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.originalBucket, objectName, err)
	}
	return objectName, nil
}

// UploadParsedText 上传解析后的纯文本到parsedBucket
func (m *MinIO) UploadParsedText(ctx context.Context, submissionUUID, text string) (string, error) {
	objectName := fmt.Sprintf("cv/%s/parsed_text.txt", submissionUUID)

	_, err := m.client.PutObject(ctx, m.parsedBucket, objectName,
		strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本 %s 到存储桶 %s 失败: %w", objectName, m.parsedBucket, err)
	}
	return objectName, nil
}

// GetCVFile 从originalsBucket下载原始CV文件
func (m *MinIO) GetCVFile(ctx context.Context, objectName string) ([]byte, error) {
	return m.downloadObject(ctx, m.originalBucket, objectName)
}

// GetParsedText 从parsedBucket下载解析后的纯文本
func (m *MinIO) GetParsedText(ctx context.Context, objectName string) (string, error) {
	data, err := m.downloadObject(ctx, m.parsedBucket, objectName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MinIO) downloadObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectName, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectName, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj); err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 失败: %w", bucketName, objectName, err)
	}
	return buf.Bytes(), nil
}

// contentTypeForExt 按文件扩展名推断Content-Type
func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
