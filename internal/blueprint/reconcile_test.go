package blueprint

import (
	"testing"

	"cv-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func structuredContact(c types.ContactInfo) types.RawContactInfo {
	return types.RawContactInfo{Structured: &c}
}

func TestReconcileNameExtensionRule(t *testing.T) {
	current := types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jon"},
	}

	// 更长的名字应替换
	result := Reconcile(current, &types.ExtractedCVInfo{Name: "Jonathan Smith"}, "hash-a")
	assert.Equal(t, "Jonathan Smith", result.Profile.Personal.Name)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, types.ChangePersonal, result.Changes[0].Type)

	// 更短的名字不替换
	result = Reconcile(current, &types.ExtractedCVInfo{Name: "Jo"}, "hash-b")
	assert.Equal(t, "Jon", result.Profile.Personal.Name)
	assert.Empty(t, result.Changes)

	// 等长的名字也不替换（必须严格更长）
	result = Reconcile(current, &types.ExtractedCVInfo{Name: "Bob"}, "hash-c")
	assert.Equal(t, "Jon", result.Profile.Personal.Name)
}

func TestReconcileNameLengthByCharacterCount(t *testing.T) {
	// 长度按字符数比较："安娜"是2个字符（6字节），"Anna B"是6个字符（6字节）
	current := types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "安娜"},
	}

	result := Reconcile(current, &types.ExtractedCVInfo{Name: "Anna B"}, "hash-a")
	assert.Equal(t, "Anna B", result.Profile.Personal.Name, "6个字符应替换2个字符的名字")
	require.Len(t, result.Changes, 1)

	// 反向：2个中文字符不替换6个ASCII字符
	current = types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Anna B"},
	}
	result = Reconcile(current, &types.ExtractedCVInfo{Name: "安娜"}, "hash-b")
	assert.Equal(t, "Anna B", result.Profile.Personal.Name)
	assert.Empty(t, result.Changes)

	// 字符数相同的中文名不替换
	current = types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "王小明"},
	}
	result = Reconcile(current, &types.ExtractedCVInfo{Name: "李大力"}, "hash-c")
	assert.Equal(t, "王小明", result.Profile.Personal.Name)
}

func TestReconcileContactFirstWriteWins(t *testing.T) {
	current := types.BlueprintProfile{
		Contact: types.ContactInfo{Email: "jane@x.com"},
	}

	extraction := &types.ExtractedCVInfo{
		ContactInfo: structuredContact(types.ContactInfo{
			Email: "other@y.com",
			Phone: "555-0100",
		}),
	}

	result := Reconcile(current, extraction, "hash-1")

	// 已有的email不被覆盖，新的phone被写入
	assert.Equal(t, "jane@x.com", result.Profile.Contact.Email)
	assert.Equal(t, "555-0100", result.Profile.Contact.Phone)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, types.ChangeContact, result.Changes[0].Type)
	assert.Equal(t, 1, result.Summary.UpdatedFields)
}

func TestReconcileSkillsIdempotent(t *testing.T) {
	extraction := &types.ExtractedCVInfo{
		Skills: []string{"Python", "SQL"},
	}

	first := Reconcile(types.BlueprintProfile{}, extraction, "hash-1")
	require.Len(t, first.Profile.Skills, 2)
	assert.Equal(t, 2, first.Summary.NewSkills)
	assert.InDelta(t, 0.8, first.Profile.Skills[0].Confidence, 1e-9)
	assert.Equal(t, []string{"hash-1"}, first.Profile.Skills[0].Sources)

	// 第二次合并同一份提取：不新增、置信度+0.1、来源集合去重
	second := Reconcile(first.Profile, extraction, "hash-1")
	assert.Len(t, second.Profile.Skills, 2)
	assert.Equal(t, 0, second.Summary.NewSkills)
	assert.InDelta(t, 0.9, second.Profile.Skills[0].Confidence, 1e-9)
	assert.Equal(t, []string{"hash-1"}, second.Profile.Skills[0].Sources)
	assert.Empty(t, second.Changes)
}

func TestReconcileSkillsCaseInsensitive(t *testing.T) {
	current := types.BlueprintProfile{
		Skills: []types.SkillEntry{{Name: "python", Confidence: 0.8}},
	}

	result := Reconcile(current, &types.ExtractedCVInfo{Skills: []string{"Python"}}, "hash-2")

	require.Len(t, result.Profile.Skills, 1)
	assert.Equal(t, "python", result.Profile.Skills[0].Name, "保留原始大小写")
	assert.InDelta(t, 0.9, result.Profile.Skills[0].Confidence, 1e-9)
	assert.Contains(t, result.Profile.Skills[0].Sources, "hash-2")
}

func TestReconcileSkillConfidenceCapped(t *testing.T) {
	current := types.BlueprintProfile{
		Skills: []types.SkillEntry{{Name: "Go", Confidence: 0.95}},
	}

	result := Reconcile(current, &types.ExtractedCVInfo{Skills: []string{"Go"}}, "")

	// 置信度封顶1.0，不回绕
	assert.InDelta(t, 1.0, result.Profile.Skills[0].Confidence, 1e-9)
}

func TestReconcileExperienceDedupeTolerance(t *testing.T) {
	current := types.BlueprintProfile{
		Experience: []types.ExperienceEntry{
			{Role: "Developer", Company: "Acme", Duration: "2 years", Confidence: 0.9},
		},
	}

	// 角色公司大小写不同且时长差约0.25年：视为重复，静默丢弃
	dup := Reconcile(current, &types.ExtractedCVInfo{
		Experience: []types.ExtractedExperience{
			{Role: "developer", Company: "ACME", Duration: "2 years 3 months"},
		},
	}, "h1")
	assert.Len(t, dup.Profile.Experience, 1)
	assert.Equal(t, 0, dup.Summary.NewExperience)
	// 重复经历不做置信度强化
	assert.InDelta(t, 0.9, dup.Profile.Experience[0].Confidence, 1e-9)

	// 时长差1.0年：视为新经历
	added := Reconcile(current, &types.ExtractedCVInfo{
		Experience: []types.ExtractedExperience{
			{Role: "developer", Company: "ACME", Duration: "3 years"},
		},
	}, "h2")
	assert.Len(t, added.Profile.Experience, 2)
	assert.Equal(t, 1, added.Summary.NewExperience)
}

func TestReconcileExperienceSortedByDuration(t *testing.T) {
	extraction := &types.ExtractedCVInfo{
		Experience: []types.ExtractedExperience{
			{Role: "Junior", Company: "A", Duration: "1 year"},
			{Role: "Senior", Company: "B", Duration: "5 years"},
			{Role: "Mid", Company: "C", Duration: "3 years"},
		},
	}

	result := Reconcile(types.BlueprintProfile{}, extraction, "h")

	require.Len(t, result.Profile.Experience, 3)
	assert.Equal(t, "Senior", result.Profile.Experience[0].Role)
	assert.Equal(t, "Mid", result.Profile.Experience[1].Role)
	assert.Equal(t, "Junior", result.Profile.Experience[2].Role)
}

func TestReconcileEducationDedupeAndSort(t *testing.T) {
	current := types.BlueprintProfile{
		Education: []types.EducationEntry{
			{Degree: "BS", Institution: "State U", Year: "2019", Confidence: 0.9},
		},
	}

	extraction := &types.ExtractedCVInfo{
		Education: []types.ExtractedEducation{
			{Degree: "bs", Institution: "state u", Year: "2019"},    // 重复
			{Degree: "MS", Institution: "Tech U", Year: "2023"},     // 新增
			{Degree: "Cert", Institution: "Online", Year: "无年份"}, // 年份解析失败排最后
		},
	}

	result := Reconcile(current, extraction, "h")

	require.Len(t, result.Profile.Education, 3)
	assert.Equal(t, 2, result.Summary.NewEducation)
	assert.Equal(t, "MS", result.Profile.Education[0].Degree)
	assert.Equal(t, "BS", result.Profile.Education[1].Degree)
	assert.Equal(t, "Cert", result.Profile.Education[2].Degree)
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	current := types.BlueprintProfile{
		Personal: types.PersonalInfo{Name: "Jon"},
		Skills:   []types.SkillEntry{{Name: "Go", Confidence: 0.8, Sources: []string{"h0"}}},
	}

	_ = Reconcile(current, &types.ExtractedCVInfo{
		Name:   "Jonathan Smith",
		Skills: []string{"Go", "Rust"},
	}, "h1")

	// 输入蓝图必须保持原状
	assert.Equal(t, "Jon", current.Personal.Name)
	require.Len(t, current.Skills, 1)
	assert.InDelta(t, 0.8, current.Skills[0].Confidence, 1e-9)
	assert.Equal(t, []string{"h0"}, current.Skills[0].Sources)
}

func TestReconcileHandlesMissingCollections(t *testing.T) {
	// 部分初始化的蓝图（nil切片）不应引发异常
	result := Reconcile(types.BlueprintProfile{}, &types.ExtractedCVInfo{
		Name:   "Jane Doe",
		Skills: []string{"Python"},
	}, "h")

	assert.Equal(t, 1, result.Summary.NewSkills)
	assert.Equal(t, "Jane Doe", result.Profile.Personal.Name)
}

func TestReconcileChangeOrder(t *testing.T) {
	extraction := &types.ExtractedCVInfo{
		Name:        "Jane Doe",
		ContactInfo: structuredContact(types.ContactInfo{Email: "jane@x.com"}),
		Skills:      []string{"Python"},
		Experience: []types.ExtractedExperience{
			{Role: "Analyst", Company: "Acme", Duration: "2 years"},
		},
		Education: []types.ExtractedEducation{
			{Degree: "BS", Institution: "State U", Year: "2019"},
		},
	}

	result := Reconcile(types.BlueprintProfile{}, extraction, "h")

	require.Len(t, result.Changes, 5)
	expected := []types.ChangeType{
		types.ChangePersonal,
		types.ChangeContact,
		types.ChangeSkill,
		types.ChangeExperience,
		types.ChangeEducation,
	}
	for i, want := range expected {
		assert.Equal(t, want, result.Changes[i].Type, "变更记录顺序第%d项", i)
	}
}

func TestConfidenceImpact(t *testing.T) {
	summary := &types.MergeSummary{NewSkills: 2, NewExperience: 1, NewEducation: 1}
	// 0.1×2 + 0.2×1 + 0.15×1 = 0.55
	assert.InDelta(t, 0.55, ConfidenceImpact(summary), 1e-9)
}
