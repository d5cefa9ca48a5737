package blueprint

import (
	"math"

	"cv-insight-go/internal/types"
)

// 完整度各分区的权重，五项合计恰好为1.0
// 工作经历权重最高，因为它是岗位匹配的首要依据
const (
	personalWeight   = 0.2
	contactWeight    = 0.2
	skillsWeight     = 0.2
	experienceWeight = 0.3
	educationWeight  = 0.1

	contactFieldTotal = 5
)

// 置信度加成的上限与单位增量
const (
	learningBonusCap    = 0.2
	learningBonusPerNew = 0.02
	experienceBonusCap  = 0.1
	experienceBonusPer  = 0.02
)

// DataCompleteness 计算蓝图的数据完整度，始终落在[0,1]
// 每次合并后基于完整蓝图重新计算，不做增量维护
func DataCompleteness(p *types.BlueprintProfile) float64 {
	score := 0.0

	if p.Personal.Name != "" {
		score += personalWeight
	}
	score += contactWeight * float64(p.Contact.FieldCount()) / contactFieldTotal
	if len(p.Skills) > 0 {
		score += skillsWeight
	}
	if len(p.Experience) > 0 {
		score += experienceWeight
	}
	if len(p.Education) > 0 {
		score += educationWeight
	}

	return score
}

// ConfidenceScore 在完整度基础上叠加证据量加成，封顶1.0
// newItems 为本次合并新增的技能、经历、教育条目总数
func ConfidenceScore(p *types.BlueprintProfile, newItems int) float64 {
	base := DataCompleteness(p)
	learningBonus := math.Min(learningBonusCap, float64(newItems)*learningBonusPerNew)
	experienceBonus := math.Min(experienceBonusCap, float64(len(p.Experience))*experienceBonusPer)

	return math.Min(1.0, base+learningBonus+experienceBonus)
}
