package storage

import (
	"time"

	"cv-insight-go/internal/blueprint"
)

// EventTypeBlueprintUpdated 蓝图更新事件类型，写入发件箱后由中继投递
const EventTypeBlueprintUpdated = "blueprint.updated"

// BlueprintUpdatedMessage 蓝图更新事件载荷
// 下游消费者据此刷新缓存或触发通知，不携带完整蓝图快照
type BlueprintUpdatedMessage struct {
	BlueprintID      string    `json:"blueprint_id"`
	UserID           string    `json:"user_id"`
	ContentHash      string    `json:"content_hash"`
	ChangeSummary    string    `json:"change_summary"`
	ConfidenceImpact float64   `json:"confidence_impact"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewBlueprintUpdatedMessage 从变更账本记录构造事件载荷
func NewBlueprintUpdatedMessage(entry *blueprint.ChangeLogEntry) *BlueprintUpdatedMessage {
	return &BlueprintUpdatedMessage{
		BlueprintID:      entry.BlueprintID,
		UserID:           entry.UserID,
		ContentHash:      entry.ContentHash,
		ChangeSummary:    entry.Summary,
		ConfidenceImpact: entry.ConfidenceImpact,
		OccurredAt:       time.Now(),
	}
}
