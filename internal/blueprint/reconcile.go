package blueprint

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"cv-insight-go/internal/types"
)

// 各类变更对置信度的单条影响权重
const (
	personalImpact   = 0.05
	contactImpact    = 0.05
	skillImpact      = 0.1
	experienceImpact = 0.2
	educationImpact  = 0.15
)

// 新增技能的初始置信度与重复出现时的增量
const (
	newSkillConfidence   = 0.8
	skillReinforcement   = 0.1
	newEntryConfidence   = 0.9
	durationDedupeWindow = 0.5 // 年；同角色同公司且时长差在窗口内视为同一段经历
)

// ReconcileResult 一次字段调和的完整产出
type ReconcileResult struct {
	Profile types.BlueprintProfile
	Changes []types.ChangeRecord
	Summary types.MergeSummary
}

// Reconcile 将一份CV提取结果调和进现有蓝图，返回新的蓝图值
// 纯函数：不修改传入的profile，变更记录顺序固定为 个人信息、联系方式、技能、经历、教育
func Reconcile(current types.BlueprintProfile, extraction *types.ExtractedCVInfo, contentHash string) ReconcileResult {
	result := ReconcileResult{
		Profile: cloneProfile(current),
	}

	reconcilePersonal(&result, extraction)
	reconcileContact(&result, extraction)
	reconcileSkills(&result, extraction, contentHash)
	reconcileExperience(&result, extraction)
	reconcileEducation(&result, extraction)

	return result
}

// ConfidenceImpact 计算一次合并的总置信度影响
// 加权和: 0.1×新技能 + 0.2×新经历 + 0.15×新教育
func ConfidenceImpact(summary *types.MergeSummary) float64 {
	return 0.1*float64(summary.NewSkills) +
		0.2*float64(summary.NewExperience) +
		0.15*float64(summary.NewEducation)
}

// cloneProfile 深拷贝蓝图，切片内的来源集合也独立复制
func cloneProfile(p types.BlueprintProfile) types.BlueprintProfile {
	out := p

	if p.Skills != nil {
		out.Skills = make([]types.SkillEntry, len(p.Skills))
		for i, s := range p.Skills {
			out.Skills[i] = s
			if s.Sources != nil {
				out.Skills[i].Sources = append([]string(nil), s.Sources...)
			}
		}
	}
	if p.Experience != nil {
		out.Experience = append([]types.ExperienceEntry(nil), p.Experience...)
	}
	if p.Education != nil {
		out.Education = append([]types.EducationEntry(nil), p.Education...)
	}

	return out
}

// reconcilePersonal 姓名仅在缺失或新名字严格更长时替换，没有删除路径
// 长度按字符数比较，中文姓名等多字节输入不按字节数计
func reconcilePersonal(r *ReconcileResult, extraction *types.ExtractedCVInfo) {
	name := strings.TrimSpace(extraction.Name)
	if name == "" {
		return
	}

	existing := r.Profile.Personal.Name
	if existing != "" && utf8.RuneCountInString(name) <= utf8.RuneCountInString(existing) {
		return
	}

	r.Profile.Personal.Name = name
	r.Summary.UpdatedFields++
	r.Changes = append(r.Changes, types.ChangeRecord{
		Type:        types.ChangePersonal,
		Description: fmt.Sprintf("姓名更新为 %q", name),
		Impact:      personalImpact,
	})
}

// reconcileContact 五个联系方式字段各自独立，首次写入生效，已有值永不覆盖
func reconcileContact(r *ReconcileResult, extraction *types.ExtractedCVInfo) {
	incoming := extraction.ContactInfo.Structured
	if incoming == nil {
		return
	}

	fields := []struct {
		label    string
		existing *string
		value    string
	}{
		{"email", &r.Profile.Contact.Email, incoming.Email},
		{"phone", &r.Profile.Contact.Phone, incoming.Phone},
		{"location", &r.Profile.Contact.Location, incoming.Location},
		{"linkedin", &r.Profile.Contact.LinkedIn, incoming.LinkedIn},
		{"website", &r.Profile.Contact.Website, incoming.Website},
	}

	for _, f := range fields {
		value := strings.TrimSpace(f.value)
		if value == "" || *f.existing != "" {
			continue
		}
		*f.existing = value
		r.Summary.UpdatedFields++
		r.Changes = append(r.Changes, types.ChangeRecord{
			Type:        types.ChangeContact,
			Description: fmt.Sprintf("新增联系方式 %s", f.label),
			Impact:      contactImpact,
		})
	}
}

// reconcileSkills 技能按名称不区分大小写去重
// 已知技能重复出现属于强化而非新信息：置信度+0.1封顶1.0，不产生变更记录
func reconcileSkills(r *ReconcileResult, extraction *types.ExtractedCVInfo, contentHash string) {
	for _, raw := range extraction.Skills {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		idx := findSkill(r.Profile.Skills, name)
		if idx >= 0 {
			entry := &r.Profile.Skills[idx]
			entry.Confidence = math.Min(1.0, entry.Confidence+skillReinforcement)
			if contentHash != "" && !entry.HasSource(contentHash) {
				entry.Sources = append(entry.Sources, contentHash)
			}
			continue
		}

		entry := types.SkillEntry{
			Name:       name,
			Confidence: newSkillConfidence,
		}
		if contentHash != "" {
			entry.Sources = []string{contentHash}
		}
		r.Profile.Skills = append(r.Profile.Skills, entry)
		r.Summary.NewSkills++
		r.Changes = append(r.Changes, types.ChangeRecord{
			Type:        types.ChangeSkill,
			Description: fmt.Sprintf("新增技能 %s", name),
			Impact:      skillImpact,
		})
	}
}

// findSkill 按名称不区分大小写查找技能，未找到返回-1
func findSkill(skills []types.SkillEntry, name string) int {
	for i := range skills {
		if strings.EqualFold(skills[i].Name, name) {
			return i
		}
	}
	return -1
}

// reconcileExperience 角色与公司均不区分大小写匹配，且时长差在0.5年内视为重复
// 重复经历被静默丢弃（不做置信度强化），合并后按解析时长降序排列
func reconcileExperience(r *ReconcileResult, extraction *types.ExtractedCVInfo) {
	for _, exp := range extraction.Experience {
		role := strings.TrimSpace(exp.Role)
		company := strings.TrimSpace(exp.Company)
		if role == "" && company == "" {
			continue
		}

		if hasExperience(r.Profile.Experience, role, company, exp.Duration) {
			continue
		}

		r.Profile.Experience = append(r.Profile.Experience, types.ExperienceEntry{
			Role:        role,
			Company:     company,
			Duration:    exp.Duration,
			Description: exp.Description,
			Confidence:  newEntryConfidence,
		})
		r.Summary.NewExperience++
		r.Changes = append(r.Changes, types.ChangeRecord{
			Type:        types.ChangeExperience,
			Description: fmt.Sprintf("新增工作经历 %s @ %s", role, company),
			Impact:      experienceImpact,
		})
	}

	sort.SliceStable(r.Profile.Experience, func(i, j int) bool {
		return ParseDuration(r.Profile.Experience[i].Duration) > ParseDuration(r.Profile.Experience[j].Duration)
	})
}

// hasExperience 判断新经历是否与现有条目指向同一段真实经历
func hasExperience(existing []types.ExperienceEntry, role, company, duration string) bool {
	newYears := ParseDuration(duration)
	for i := range existing {
		if !strings.EqualFold(existing[i].Role, role) || !strings.EqualFold(existing[i].Company, company) {
			continue
		}
		if math.Abs(ParseDuration(existing[i].Duration)-newYears) < durationDedupeWindow {
			return true
		}
	}
	return false
}

// reconcileEducation 学位与院校不区分大小写精确匹配即视为重复（没有时长容差）
// 合并后按年份数字降序排列，年份解析失败按0处理排在最后
func reconcileEducation(r *ReconcileResult, extraction *types.ExtractedCVInfo) {
	for _, edu := range extraction.Education {
		degree := strings.TrimSpace(edu.Degree)
		institution := strings.TrimSpace(edu.Institution)
		if degree == "" && institution == "" {
			continue
		}

		if hasEducation(r.Profile.Education, degree, institution) {
			continue
		}

		r.Profile.Education = append(r.Profile.Education, types.EducationEntry{
			Degree:      degree,
			Institution: institution,
			Year:        edu.Year,
			Confidence:  newEntryConfidence,
		})
		r.Summary.NewEducation++
		r.Changes = append(r.Changes, types.ChangeRecord{
			Type:        types.ChangeEducation,
			Description: fmt.Sprintf("新增教育经历 %s @ %s", degree, institution),
			Impact:      educationImpact,
		})
	}

	sort.SliceStable(r.Profile.Education, func(i, j int) bool {
		return parseYear(r.Profile.Education[i].Year) > parseYear(r.Profile.Education[j].Year)
	})
}

// hasEducation 判断教育经历是否重复
func hasEducation(existing []types.EducationEntry, degree, institution string) bool {
	for i := range existing {
		if strings.EqualFold(existing[i].Degree, degree) && strings.EqualFold(existing[i].Institution, institution) {
			return true
		}
	}
	return false
}

// parseYear 年份解析失败返回0，使其在降序排列中落到末尾
func parseYear(year string) int {
	n, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return 0
	}
	return n
}
