package types

import "time"

// PersonalInfo 蓝图中的个人基本信息
type PersonalInfo struct {
	Name    string `json:"name,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ContactInfo 标准化后的联系方式
// 五个字段相互独立，合并时每个字段单独遵循"首次写入生效"规则
type ContactInfo struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"`
}

// FieldCount 返回已填充的联系方式字段数量
func (c *ContactInfo) FieldCount() int {
	count := 0
	for _, v := range []string{c.Email, c.Phone, c.Location, c.LinkedIn, c.Website} {
		if v != "" {
			count++
		}
	}
	return count
}

// SkillEntry 蓝图中的单个技能条目
// Sources 记录支撑该技能的CV内容哈希集合（去重）
type SkillEntry struct {
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources,omitempty"`
}

// HasSource 检查指定内容哈希是否已在来源集合中
func (s *SkillEntry) HasSource(contentHash string) bool {
	for _, src := range s.Sources {
		if src == contentHash {
			return true
		}
	}
	return false
}

// ExperienceEntry 蓝图中的单段工作经历
type ExperienceEntry struct {
	Role        string  `json:"role"`
	Company     string  `json:"company"`
	Duration    string  `json:"duration"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// EducationEntry 蓝图中的单条教育经历
type EducationEntry struct {
	Degree      string  `json:"degree"`
	Institution string  `json:"institution"`
	Year        string  `json:"year"`
	Confidence  float64 `json:"confidence"`
}

// BlueprintProfile 用户的职业蓝图：所有已上传CV的累积画像
// 合并引擎每次成功合并后递增 BlueprintVersion 和 TotalCVsProcessed
type BlueprintProfile struct {
	Personal   PersonalInfo      `json:"personal"`
	Contact    ContactInfo       `json:"contact"`
	Skills     []SkillEntry      `json:"skills,omitempty"`
	Experience []ExperienceEntry `json:"experience,omitempty"`
	Education  []EducationEntry  `json:"education,omitempty"`

	TotalCVsProcessed int     `json:"total_cvs_processed"`
	BlueprintVersion  int     `json:"blueprint_version"`
	ConfidenceScore   float64 `json:"confidence_score"`
	DataCompleteness  float64 `json:"data_completeness"`

	UpdatedAt         time.Time `json:"updated_at"`
	LastCVProcessedAt time.Time `json:"last_cv_processed_at"`
}

// ChangeType 变更记录类别
type ChangeType string

const (
	ChangePersonal   ChangeType = "personal"
	ChangeContact    ChangeType = "contact"
	ChangeSkill      ChangeType = "skill"
	ChangeExperience ChangeType = "experience"
	ChangeEducation  ChangeType = "education"
)

// ChangeRecord 一次合并产生的单条变更记录，创建后不可修改
type ChangeRecord struct {
	Type        ChangeType `json:"type"`
	Description string     `json:"description"`
	Impact      float64    `json:"impact"`
}

// MergeSummary 一次合并调用效果的派生视图，不落库
type MergeSummary struct {
	NewSkills     int     `json:"new_skills"`
	NewExperience int     `json:"new_experience"`
	NewEducation  int     `json:"new_education"`
	UpdatedFields int     `json:"updated_fields"`
	Confidence    float64 `json:"confidence"`
}

// NewItems 返回本次合并新增条目总数，用于置信度的学习加成
func (s *MergeSummary) NewItems() int {
	return s.NewSkills + s.NewExperience + s.NewEducation
}
