package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"cv-insight-go/internal/types"
)

// CareerBlueprint 职业蓝图主表，每个用户恰好一行
// 各分区以JSON列存储，计数与评分放在独立列上便于查询
type CareerBlueprint struct {
	BlueprintID       string         `gorm:"type:char(36);primaryKey"`
	UserID            string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_blueprints_user_unique"`
	PersonalJSON      datatypes.JSON `gorm:"type:json"`
	ContactJSON       datatypes.JSON `gorm:"type:json"`
	SkillsJSON        datatypes.JSON `gorm:"type:json"`
	ExperienceJSON    datatypes.JSON `gorm:"type:json"`
	EducationJSON     datatypes.JSON `gorm:"type:json"`
	TotalCVsProcessed int            `gorm:"not null;default:0"`
	BlueprintVersion  int            `gorm:"not null;default:0"`
	ConfidenceScore   float64        `gorm:"type:double;not null;default:0"`
	DataCompleteness  float64        `gorm:"type:double;not null;default:0"`
	LastCVProcessedAt *time.Time     `gorm:"type:datetime(6)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (CareerBlueprint) TableName() string {
	return "career_blueprints"
}

// ToProfile 将数据库行还原为领域蓝图值
func (b *CareerBlueprint) ToProfile() (*types.BlueprintProfile, error) {
	p := &types.BlueprintProfile{
		TotalCVsProcessed: b.TotalCVsProcessed,
		BlueprintVersion:  b.BlueprintVersion,
		ConfidenceScore:   b.ConfidenceScore,
		DataCompleteness:  b.DataCompleteness,
		UpdatedAt:         b.UpdatedAt,
	}
	if b.LastCVProcessedAt != nil {
		p.LastCVProcessedAt = *b.LastCVProcessedAt
	}

	sections := []struct {
		raw datatypes.JSON
		dst interface{}
	}{
		{b.PersonalJSON, &p.Personal},
		{b.ContactJSON, &p.Contact},
		{b.SkillsJSON, &p.Skills},
		{b.ExperienceJSON, &p.Experience},
		{b.EducationJSON, &p.Education},
	}
	for _, s := range sections {
		if len(s.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(s.raw, s.dst); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ApplyProfile 将领域蓝图值序列化回数据库行的JSON列与标量列
func (b *CareerBlueprint) ApplyProfile(p *types.BlueprintProfile) error {
	sections := []struct {
		src interface{}
		dst *datatypes.JSON
	}{
		{p.Personal, &b.PersonalJSON},
		{p.Contact, &b.ContactJSON},
		{p.Skills, &b.SkillsJSON},
		{p.Experience, &b.ExperienceJSON},
		{p.Education, &b.EducationJSON},
	}
	for _, s := range sections {
		data, err := json.Marshal(s.src)
		if err != nil {
			return err
		}
		*s.dst = data
	}

	b.TotalCVsProcessed = p.TotalCVsProcessed
	b.BlueprintVersion = p.BlueprintVersion
	b.ConfidenceScore = p.ConfidenceScore
	b.DataCompleteness = p.DataCompleteness
	if !p.LastCVProcessedAt.IsZero() {
		t := p.LastCVProcessedAt
		b.LastCVProcessedAt = &t
	}
	return nil
}

// BlueprintChangeLog 蓝图变更账本，追加写入不做更新
type BlueprintChangeLog struct {
	LogID            uint64         `gorm:"primaryKey;autoIncrement"`
	BlueprintID      string         `gorm:"type:char(36);not null;index:idx_bcl_blueprint_created,priority:1"`
	UserID           string         `gorm:"type:varchar(64);not null;index:idx_bcl_user_id"`
	ChangeType       string         `gorm:"type:varchar(50);not null"`
	ContentHash      string         `gorm:"type:char(32)"`
	PreviousDataJSON datatypes.JSON `gorm:"type:json"`
	NewDataJSON      datatypes.JSON `gorm:"type:json"`
	ChangeSummary    string         `gorm:"type:text"`
	ConfidenceImpact float64        `gorm:"type:double;not null;default:0"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_bcl_blueprint_created,priority:2,sort:desc"`
}

func (BlueprintChangeLog) TableName() string {
	return "blueprint_change_logs"
}

// CVSubmission CV上传处理台账，记录每份文件从接收到合并的状态流转
type CVSubmission struct {
	SubmissionUUID   string    `gorm:"type:char(36);primaryKey"`
	UserID           string    `gorm:"type:varchar(64);not null;index:idx_cvs_user_id"`
	OriginalFilename string    `gorm:"type:varchar(255)"`
	ContentMD5       string    `gorm:"type:char(32);not null;index:idx_cvs_content_md5"`
	RawFilePathOSS   string    `gorm:"type:varchar(1024)"`
	ParsedTextPath   string    `gorm:"type:varchar(1024)"`
	ProcessingStatus string    `gorm:"type:varchar(50);default:'PENDING_EXTRACTION';index:idx_cvs_processing_status"`
	ExtractorVersion string    `gorm:"type:varchar(50)"`
	ErrorMessage     string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (CVSubmission) TableName() string {
	return "cv_submissions"
}

// OutboxMessage 事务发件箱，蓝图更新事件与业务写入同事务落库后异步投递
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"`
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
