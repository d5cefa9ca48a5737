package blueprint

import (
	"testing"

	"cv-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestDataCompletenessEmptyProfile(t *testing.T) {
	assert.Zero(t, DataCompleteness(&types.BlueprintProfile{}))
}

func TestDataCompletenessFullProfile(t *testing.T) {
	p := &types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jane Doe"},
		Contact: types.ContactInfo{
			Email:    "jane@x.com",
			Phone:    "555-0100",
			Location: "Berlin",
			LinkedIn: "linkedin.com/in/jane",
			Website:  "jane.dev",
		},
		Skills:     []types.SkillEntry{{Name: "Go"}},
		Experience: []types.ExperienceEntry{{Role: "Engineer", Company: "Acme"}},
		Education:  []types.EducationEntry{{Degree: "BS", Institution: "State U"}},
	}

	assert.InDelta(t, 1.0, DataCompleteness(p), 1e-9)
}

func TestDataCompletenessContactProportional(t *testing.T) {
	// 联系方式按5个字段等比计分，2/5填充贡献 0.2×0.4
	p := &types.BlueprintProfile{
		Contact: types.ContactInfo{Email: "jane@x.com", Phone: "555-0100"},
	}

	assert.InDelta(t, 0.08, DataCompleteness(p), 1e-9)
}

func TestConfidenceScoreBonuses(t *testing.T) {
	p := &types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jane Doe"},
		Contact:  types.ContactInfo{Email: "jane@x.com"},
		Skills:   []types.SkillEntry{{Name: "Go"}, {Name: "SQL"}},
		Experience: []types.ExperienceEntry{
			{Role: "Engineer", Company: "Acme"},
		},
		Education: []types.EducationEntry{{Degree: "BS", Institution: "State U"}},
	}

	// 完整度0.84 + 学习加成4×0.02 + 经历加成1×0.02
	assert.InDelta(t, 0.84, DataCompleteness(p), 1e-9)
	assert.InDelta(t, 0.94, ConfidenceScore(p, 4), 1e-9)
}

func TestConfidenceScoreLearningBonusCapped(t *testing.T) {
	p := &types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jane Doe"},
	}

	// 学习加成封顶0.2，100条新项不会超额计入
	assert.InDelta(t, 0.4, ConfidenceScore(p, 100), 1e-9)
}

func TestConfidenceScoreExperienceBonusCapped(t *testing.T) {
	p := &types.BlueprintProfile{}
	for i := 0; i < 20; i++ {
		p.Experience = append(p.Experience, types.ExperienceEntry{Role: "R", Company: "C"})
	}

	// 经历加成封顶0.1
	assert.InDelta(t, 0.3+0.1, ConfidenceScore(p, 0), 1e-9)
}

func TestConfidenceScoreNeverExceedsOne(t *testing.T) {
	p := &types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jane Doe"},
		Contact: types.ContactInfo{
			Email: "a", Phone: "b", Location: "c", LinkedIn: "d", Website: "e",
		},
		Skills:     []types.SkillEntry{{Name: "Go"}},
		Experience: []types.ExperienceEntry{{Role: "R", Company: "C"}},
		Education:  []types.EducationEntry{{Degree: "D", Institution: "I"}},
	}

	assert.LessOrEqual(t, ConfidenceScore(p, 50), 1.0)
}
