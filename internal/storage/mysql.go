package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"cv-insight-go/internal/blueprint"
	"cv-insight-go/internal/config"
	"cv-insight-go/internal/storage/models"
	"cv-insight-go/internal/tracing"
	"cv-insight-go/internal/types"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("cv-insight-go/storage/mysql")

// mysqlErrNoSuchTable MySQL服务端错误码：表不存在
// 用于把"存储未初始化"与一般数据库故障区分开
const mysqlErrNoSuchTable = 1146

type spanContextKey struct{}

// GormTracingPlugin 向GORM操作注入OpenTelemetry追踪点的插件
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// NewGormTracingPlugin 创建GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 为各类CRUD操作注册Before/After回调
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after())
}

// before 在GORM操作前开启span并挂到语句上下文
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}
		if sql := db.Statement.SQL.String(); sql != "" {
			opts = append(opts, trace.WithAttributes(attribute.String("db.statement", tracing.SafeSQL(sql))))
		}

		newCtx, span := p.tracer.Start(ctx, fmt.Sprintf("%s %s", operation, tableName), opts...)
		db.Statement.Context = context.WithValue(newCtx, spanContextKey{}, span)
	}
}

// after 在GORM操作后补充结果属性并结束span
// ErrRecordNotFound 属于正常业务路径，不按错误上报
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(spanContextKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		switch {
		case db.Error == nil:
			span.SetStatus(codes.Ok, "")
		case errors.Is(db.Error, gorm.ErrRecordNotFound):
			span.SetAttributes(attribute.String("error.type", "record_not_found"))
			span.SetStatus(codes.Ok, "record not found")
		default:
			span.SetAttributes(attribute.String("error.type", "database_error"))
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// MySQL 提供蓝图与CV提交台账的关系存储
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig

	outboxExchange   string
	outboxRoutingKey string
}

// 确保MySQL满足蓝图存储契约
var _ blueprint.BlueprintStore = (*MySQL)(nil)

// NewMySQL 创建MySQL客户端，完成连接池配置、追踪插件注册与表结构迁移
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	m := &MySQL{db: db, cfg: cfg}
	if err := m.autoMigrateSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// WithOutboxTarget 设置蓝图更新事件写入发件箱时的目标交换机与路由键
func (m *MySQL) WithOutboxTarget(exchange, routingKey string) *MySQL {
	m.outboxExchange = exchange
	m.outboxRoutingKey = routingKey
	return m
}

// autoMigrateSchema 静默迁移所有表结构，避免启动时打印大量DDL日志
func (m *MySQL) autoMigrateSchema() error {
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)
	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	return silentDB.AutoMigrate(
		&models.CareerBlueprint{},
		&models.BlueprintChangeLog{},
		&models.CVSubmission{},
		&models.OutboxMessage{},
	)
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// classifyStoreError 把数据库错误翻译为合并引擎可区分的类别
func classifyStoreError(err error) error {
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrNoSuchTable {
		return fmt.Errorf("%w: %s", blueprint.ErrStoreNotProvisioned, mysqlErr.Message)
	}
	return err
}

// GetOrCreateBlueprint 原子地获取或创建用户蓝图，返回蓝图ID
// 依赖user_id唯一索引：并发创建时冲突方静默忽略后重查
func (m *MySQL) GetOrCreateBlueprint(ctx context.Context, userID string) (string, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetOrCreateBlueprint", trace.WithAttributes(
		attribute.String("blueprint.user_id", userID),
	))
	defer span.End()

	newUUID, err := uuid.NewV7()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate UUIDv7")
		return "", fmt.Errorf("生成UUIDv7失败: %w", err)
	}

	row := models.CareerBlueprint{
		BlueprintID: newUUID.String(),
		UserID:      userID,
	}
	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	// 无论是否新建都重查一次，拿到权威的蓝图ID
	var existing models.CareerBlueprint
	err = m.db.WithContext(ctx).
		Select("blueprint_id").
		Where("user_id = ?", userID).
		First(&existing).Error
	if err != nil {
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.String("blueprint.id", existing.BlueprintID))
	span.SetStatus(codes.Ok, "")
	return existing.BlueprintID, nil
}

// FetchBlueprint 加载蓝图当前快照
func (m *MySQL) FetchBlueprint(ctx context.Context, blueprintID string) (*types.BlueprintProfile, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FetchBlueprint", trace.WithAttributes(
		attribute.String("blueprint.id", blueprintID),
	))
	defer span.End()

	var row models.CareerBlueprint
	err := m.db.WithContext(ctx).Where("blueprint_id = ?", blueprintID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "record not found")
			return nil, blueprint.ErrBlueprintNotFound
		}
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	profile, err := row.ToProfile()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("反序列化蓝图失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return profile, nil
}

// UpdateBlueprint 带乐观版本检查写回蓝图快照
// WHERE子句同时锁定蓝图ID与期望版本，0行受影响即为并发冲突
func (m *MySQL) UpdateBlueprint(ctx context.Context, blueprintID string, profile *types.BlueprintProfile, expectedVersion int) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.UpdateBlueprint", trace.WithAttributes(
		attribute.String("blueprint.id", blueprintID),
		attribute.Int("blueprint.expected_version", expectedVersion),
	))
	defer span.End()

	var row models.CareerBlueprint
	if err := row.ApplyProfile(profile); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("序列化蓝图失败: %w", err)
	}

	updates := map[string]interface{}{
		"personal_json":        row.PersonalJSON,
		"contact_json":         row.ContactJSON,
		"skills_json":          row.SkillsJSON,
		"experience_json":      row.ExperienceJSON,
		"education_json":       row.EducationJSON,
		"total_cvs_processed":  row.TotalCVsProcessed,
		"blueprint_version":    row.BlueprintVersion,
		"confidence_score":     row.ConfidenceScore,
		"data_completeness":    row.DataCompleteness,
		"last_cv_processed_at": row.LastCVProcessedAt,
	}

	result := m.db.WithContext(ctx).Model(&models.CareerBlueprint{}).
		Where("blueprint_id = ? AND blueprint_version = ?", blueprintID, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		err := classifyStoreError(result.Error)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if result.RowsAffected == 0 {
		span.SetAttributes(attribute.Bool("blueprint.version_conflict", true))
		span.SetStatus(codes.Error, "version conflict")
		return blueprint.ErrVersionConflict
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// AppendChangeLog 在单个事务内追加变更账本记录与发件箱消息
// 发件箱随业务写入同事务落库，由中继异步投递到RabbitMQ
func (m *MySQL) AppendChangeLog(ctx context.Context, entry *blueprint.ChangeLogEntry) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.AppendChangeLog", trace.WithAttributes(
		attribute.String("blueprint.id", entry.BlueprintID),
		attribute.String("change.type", entry.ChangeType),
	))
	defer span.End()

	prevJSON, err := json.Marshal(entry.PreviousData)
	if err != nil {
		return fmt.Errorf("序列化变更前快照失败: %w", err)
	}
	newJSON, err := json.Marshal(entry.NewData)
	if err != nil {
		return fmt.Errorf("序列化变更后快照失败: %w", err)
	}

	logRow := models.BlueprintChangeLog{
		BlueprintID:      entry.BlueprintID,
		UserID:           entry.UserID,
		ChangeType:       entry.ChangeType,
		ContentHash:      entry.ContentHash,
		PreviousDataJSON: prevJSON,
		NewDataJSON:      newJSON,
		ChangeSummary:    entry.Summary,
		ConfidenceImpact: entry.ConfidenceImpact,
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&logRow).Error; err != nil {
			return err
		}

		if m.outboxExchange == "" {
			return nil
		}
		payload, err := json.Marshal(NewBlueprintUpdatedMessage(entry))
		if err != nil {
			return fmt.Errorf("序列化蓝图更新事件失败: %w", err)
		}
		outboxRow := models.OutboxMessage{
			AggregateID:      entry.BlueprintID,
			EventType:        EventTypeBlueprintUpdated,
			Payload:          string(payload),
			TargetExchange:   m.outboxExchange,
			TargetRoutingKey: m.outboxRoutingKey,
			Status:           "PENDING",
		}
		return tx.Create(&outboxRow).Error
	})
	if err != nil {
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CreateCVSubmission 新建一条CV提交台账记录
func (m *MySQL) CreateCVSubmission(ctx context.Context, submission *models.CVSubmission) error {
	return m.db.WithContext(ctx).Create(submission).Error
}

// UpdateCVSubmissionStatus 更新CV提交的处理状态
func (m *MySQL) UpdateCVSubmissionStatus(ctx context.Context, submissionUUID, status string) error {
	return m.db.WithContext(ctx).Model(&models.CVSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Update("processing_status", status).Error
}

// MarkCVSubmissionFailed 将CV提交标记为失败并记录原因
func (m *MySQL) MarkCVSubmissionFailed(ctx context.Context, submissionUUID, status, errorMessage string) error {
	return m.db.WithContext(ctx).Model(&models.CVSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Updates(map[string]interface{}{
			"processing_status": status,
			"error_message":     errorMessage,
		}).Error
}

// UpdateCVSubmissionPaths 回填CV提交的对象存储路径
func (m *MySQL) UpdateCVSubmissionPaths(ctx context.Context, submissionUUID, rawPath, parsedPath string) error {
	updates := map[string]interface{}{}
	if rawPath != "" {
		updates["raw_file_path_oss"] = rawPath
	}
	if parsedPath != "" {
		updates["parsed_text_path"] = parsedPath
	}
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.CVSubmission{}).
		Where("submission_uuid = ?", submissionUUID).
		Updates(updates).Error
}

// ListChangeLogs 按时间倒序分页返回用户的蓝图变更历史
func (m *MySQL) ListChangeLogs(ctx context.Context, userID string, limit, offset int) ([]models.BlueprintChangeLog, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ListChangeLogs", trace.WithAttributes(
		attribute.String("blueprint.user_id", userID),
	))
	defer span.End()

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var logs []models.BlueprintChangeLog
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("change_logs.count", len(logs)))
	span.SetStatus(codes.Ok, "")
	return logs, nil
}

// GetBlueprintByUserID 按用户ID直接加载蓝图快照，供查询接口使用
func (m *MySQL) GetBlueprintByUserID(ctx context.Context, userID string) (*types.BlueprintProfile, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.GetBlueprintByUserID", trace.WithAttributes(
		attribute.String("blueprint.user_id", userID),
	))
	defer span.End()

	var row models.CareerBlueprint
	err := m.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Ok, "record not found")
			return nil, blueprint.ErrBlueprintNotFound
		}
		err = classifyStoreError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	profile, err := row.ToProfile()
	if err != nil {
		return nil, fmt.Errorf("反序列化蓝图失败: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return profile, nil
}
