package blueprint

import (
	"context"
	"testing"
	"time"

	"cv-insight-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBlueprintStore 内存蓝图存储，支持按操作注入错误
type MockBlueprintStore struct {
	profiles map[string]*types.BlueprintProfile // blueprintID -> 当前快照
	users    map[string]string                  // userID -> blueprintID
	logs     []*ChangeLogEntry

	getOrCreateErr error
	fetchErr       error
	updateErr      error
	appendErr      error
}

func newMockStore() *MockBlueprintStore {
	return &MockBlueprintStore{
		profiles: make(map[string]*types.BlueprintProfile),
		users:    make(map[string]string),
	}
}

func (m *MockBlueprintStore) GetOrCreateBlueprint(ctx context.Context, userID string) (string, error) {
	if m.getOrCreateErr != nil {
		return "", m.getOrCreateErr
	}
	if id, ok := m.users[userID]; ok {
		return id, nil
	}
	id := "bp-" + userID
	m.users[userID] = id
	return id, nil
}

func (m *MockBlueprintStore) FetchBlueprint(ctx context.Context, blueprintID string) (*types.BlueprintProfile, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	p, ok := m.profiles[blueprintID]
	if !ok {
		return nil, ErrBlueprintNotFound
	}
	clone := *p
	return &clone, nil
}

func (m *MockBlueprintStore) UpdateBlueprint(ctx context.Context, blueprintID string, profile *types.BlueprintProfile, expectedVersion int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if existing, ok := m.profiles[blueprintID]; ok && existing.BlueprintVersion != expectedVersion {
		return ErrVersionConflict
	}
	clone := *profile
	m.profiles[blueprintID] = &clone
	return nil
}

func (m *MockBlueprintStore) AppendChangeLog(ctx context.Context, entry *ChangeLogEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.logs = append(m.logs, entry)
	return nil
}

func sampleExtraction() *types.ExtractedCVInfo {
	return &types.ExtractedCVInfo{
		Name: "Jane Doe",
		ContactInfo: types.RawContactInfo{
			Structured: &types.ContactInfo{Email: "jane@x.com"},
		},
		Skills: []string{"Python", "SQL"},
		Experience: []types.ExtractedExperience{
			{Role: "Analyst", Company: "Acme", Duration: "2 years"},
		},
		Education: []types.ExtractedEducation{
			{Degree: "BS", Institution: "State U", Year: "2019"},
		},
	}
}

func TestMergeCVFirstMerge(t *testing.T) {
	store := newMockStore()
	merger := NewMerger(store)
	merger.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	result, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	require.NoError(t, err)

	assert.Equal(t, "bp-user-1", result.BlueprintID)
	assert.Equal(t, 1, result.Profile.BlueprintVersion)
	assert.Equal(t, 1, result.Profile.TotalCVsProcessed)
	assert.Equal(t, 2, result.Summary.NewSkills)
	assert.Equal(t, 1, result.Summary.NewExperience)
	assert.Equal(t, 1, result.Summary.NewEducation)
	assert.InDelta(t, 0.84, result.Profile.DataCompleteness, 1e-9)
	assert.InDelta(t, 0.94, result.Profile.ConfidenceScore, 1e-9)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), result.Profile.LastCVProcessedAt)

	// 持久化的快照与返回一致
	stored := store.profiles["bp-user-1"]
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.BlueprintVersion)

	// 有变更必须追加一条账本记录
	require.Len(t, store.logs, 1)
	entry := store.logs[0]
	assert.Equal(t, "cv_merge", entry.ChangeType)
	assert.Equal(t, "hash-1", entry.ContentHash)
	// 0.1×2技能 + 0.2×1经历 + 0.15×1教育
	assert.InDelta(t, 0.55, entry.ConfidenceImpact, 1e-9)
	assert.Zero(t, entry.PreviousData.BlueprintVersion)
	assert.Equal(t, 1, entry.NewData.BlueprintVersion)
}

func TestMergeCVRepeatIsIdempotent(t *testing.T) {
	store := newMockStore()
	merger := NewMerger(store)

	first, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	require.NoError(t, err)

	second, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	require.NoError(t, err)

	// 重复合并：无新增条目，版本与计数仍然递增
	assert.Equal(t, 0, second.Summary.NewItems())
	assert.Equal(t, 2, second.Profile.BlueprintVersion)
	assert.Equal(t, 2, second.Profile.TotalCVsProcessed)

	// 技能置信度恰好强化一次 0.8 -> 0.9
	require.Len(t, second.Profile.Skills, 2)
	assert.InDelta(t, first.Profile.Skills[0].Confidence+0.1, second.Profile.Skills[0].Confidence, 1e-9)

	// 无变更不追加账本记录
	assert.Len(t, store.logs, 1)
}

func TestMergeCVValidatesInput(t *testing.T) {
	merger := NewMerger(newMockStore())

	_, err := merger.MergeCV(context.Background(), "", sampleExtraction(), "hash-1")
	assert.ErrorIs(t, err, ErrInvalidExtraction)

	_, err = merger.MergeCV(context.Background(), "user-1", nil, "hash-1")
	assert.ErrorIs(t, err, ErrInvalidExtraction)

	_, err = merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "")
	assert.ErrorIs(t, err, ErrInvalidExtraction)
}

func TestMergeCVStoreNotProvisioned(t *testing.T) {
	store := newMockStore()
	store.getOrCreateErr = ErrStoreNotProvisioned
	merger := NewMerger(store)

	_, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")

	// 存储未初始化必须与一般存储故障可区分
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreNotProvisioned)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestMergeCVStoreUnavailable(t *testing.T) {
	store := newMockStore()
	store.fetchErr = assert.AnError
	merger := NewMerger(store)

	_, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestMergeCVVersionConflict(t *testing.T) {
	store := newMockStore()
	store.updateErr = ErrVersionConflict
	merger := NewMerger(store)

	_, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestMergeCVMissingBlueprintTreatedAsEmpty(t *testing.T) {
	store := newMockStore()
	// 预注册用户但不写入快照，模拟创建与加载之间的竞争
	store.users["user-1"] = "bp-user-1"
	merger := NewMerger(store)

	result, err := merger.MergeCV(context.Background(), "user-1", sampleExtraction(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Profile.BlueprintVersion)
	assert.Equal(t, 1, result.Profile.TotalCVsProcessed)
}

func TestMergeCVNoChangesSkipsChangeLog(t *testing.T) {
	store := newMockStore()
	merger := NewMerger(store)

	// 空提取结果：没有任何可合并的信息
	result, err := merger.MergeCV(context.Background(), "user-1", &types.ExtractedCVInfo{}, "hash-1")
	require.NoError(t, err)

	assert.Empty(t, result.Changes)
	assert.Empty(t, store.logs)
	// 即便没有变更，处理计数与版本仍然+1
	assert.Equal(t, 1, result.Profile.TotalCVsProcessed)
}
