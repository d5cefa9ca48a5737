// Package outbox 实现事务发件箱的消息中继
package outbox

import (
	"context"
	"time"

	"cv-insight-go/internal/logger"
	"cv-insight-go/internal/storage"
	"cv-insight-go/internal/storage/models"
	"cv-insight-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
	maxRetryCount          = 5
)

// MessageRelay 轮询outbox表并把待投递消息发布到RabbitMQ
// 多实例部署时依靠 FOR UPDATE SKIP LOCKED 避免重复投递
type MessageRelay struct {
	db              *gorm.DB
	publisher       *storage.RabbitMQ
	pollingInterval time.Duration
	batchSize       int
	done            chan struct{}
	tracer          trace.Tracer
}

// NewMessageRelay 创建消息中继
func NewMessageRelay(db *gorm.DB, publisher *storage.RabbitMQ) *MessageRelay {
	return &MessageRelay{
		db:              db,
		publisher:       publisher,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		done:            make(chan struct{}),
		tracer:          otel.Tracer("cv-insight-go/outbox"),
	}
}

// Start 启动后台轮询
func (r *MessageRelay) Start() {
	logger.Info().Dur("interval", r.pollingInterval).Msg("发件箱中继启动")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		for {
			select {
			case <-r.done:
				ticker.Stop()
				logger.Info().Msg("发件箱中继已停止")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					logger.Error().Err(err).Msg("处理发件箱消息失败")
				}
			}
		}
	}()
}

// Stop 优雅停止后台轮询
func (r *MessageRelay) Stop() {
	close(r.done)
}

// processPendingMessages 在单个事务内取一批待处理消息并逐条投递
// 空轮询不创建span，避免追踪数据被心跳淹没
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", "PENDING").
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(
			attribute.Int("messaging.batch.message_count", len(messages)),
		),
	)
	defer span.End()

	for _, msg := range messages {
		err := r.publisher.PublishMessage(
			ctx,
			msg.TargetExchange,
			msg.TargetRoutingKey,
			[]byte(msg.Payload),
			true,
		)

		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= maxRetryCount {
				msg.Status = "FAILED"
			}
			tracing.RecordErrorWithInfo(span, err, tracing.ErrorTypeRabbitMQ,
				attribute.String("messaging.destination", msg.TargetExchange),
				attribute.String("messaging.rabbitmq.routing_key", msg.TargetRoutingKey),
			)
			logger.Warn().
				Err(err).
				Uint64("message_id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Int("retry_count", msg.RetryCount).
				Msg("投递发件箱消息失败")
		} else {
			msg.Status = "SENT"
			now := time.Now()
			msg.ProcessedAt = &now
			msg.ErrorMessage = ""
		}

		// 更新失败会回滚整个事务，消息保持PENDING，下次轮询重新拾取
		if err := tx.Save(&msg).Error; err != nil {
			return err
		}
	}

	return tx.Commit().Error
}
