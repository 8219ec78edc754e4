package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/goal"
)

type fakeModel struct {
	output string
	err    error
	calls  int
}

func (m *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	return m.output, m.err
}

const validModelOutput = `Here are your challenges:
[
  {"type":"SAVINGS","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Stack it up","description":"Save steadily this week.","target_amount":80000,"reward_points":110,"duration_days":7},
  {"type":"CATEGORY_BAN","difficulty":"HARD","frequency":"WEEKLY","title":"Delivery detox","description":"No delivery orders at all.","category":"delivery","reward_points":150,"duration_days":7}
]`

func TestGenerateUsesModelOutputWhenValid(t *testing.T) {
	model := &fakeModel{output: validModelOutput}
	g := NewChallengeGenerator(model)

	drafts := g.Generate(context.Background(), GeneratorContext{}, 2, GenerateOptions{})
	require.Len(t, drafts, 2)

	assert.Equal(t, challenge.TypeSavings, drafts[0].Type)
	assert.Equal(t, int64(80000), drafts[0].Rules.TargetAmount)
	assert.Equal(t, challenge.TypeCategoryBan, drafts[1].Type)
	assert.Equal(t, "delivery", drafts[1].Rules.Category)

	for _, d := range drafts {
		assert.Equal(t, challenge.ProvenanceGenerated, d.Provenance)
		assert.NotEmpty(t, d.GenerationContext)
		assert.True(t, d.EndDate.After(d.StartDate))
	}
}

func TestGenerateTruncatesOversizedModelBatch(t *testing.T) {
	model := &fakeModel{output: validModelOutput}
	g := NewChallengeGenerator(model)

	drafts := g.Generate(context.Background(), GeneratorContext{}, 1, GenerateOptions{})
	require.Len(t, drafts, 1)
	assert.Equal(t, challenge.TypeSavings, drafts[0].Type)
}

func TestGenerateFallsBackOnModelError(t *testing.T) {
	model := &fakeModel{err: fmt.Errorf("upstream 503")}
	g := NewChallengeGenerator(model)

	drafts := g.Generate(context.Background(), GeneratorContext{}, 3, GenerateOptions{})
	require.Len(t, drafts, 3)
	for _, d := range drafts {
		assert.Equal(t, challenge.ProvenanceFallback, d.Provenance)
		require.NoError(t, challenge.ValidateDraft(d))
	}
}

func TestGenerateFallsBackOnUnparseableOutput(t *testing.T) {
	for name, output := range map[string]string{
		"prose":           "I cannot produce challenges right now.",
		"truncated json":  `[{"type":"SAVINGS","difficulty":"MEDIUM"`,
		"empty array":     `[]`,
		"invalid type":    `[{"type":"LOTTERY","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Nope","target_amount":1000,"reward_points":50}]`,
		"zero reward":     `[{"type":"SAVINGS","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Nope","target_amount":1000,"reward_points":0}]`,
		"missing target":  `[{"type":"SAVINGS","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Nope","reward_points":50}]`,
		"bad difficulty":  `[{"type":"SAVINGS","difficulty":"IMPOSSIBLE","frequency":"WEEKLY","title":"Nope","target_amount":1000,"reward_points":50}]`,
	} {
		t.Run(name, func(t *testing.T) {
			g := NewChallengeGenerator(&fakeModel{output: output})
			drafts := g.Generate(context.Background(), GeneratorContext{}, 2, GenerateOptions{})
			require.Len(t, drafts, 2)
			for _, d := range drafts {
				assert.Equal(t, challenge.ProvenanceFallback, d.Provenance)
			}
		})
	}
}

// One invalid element poisons the whole batch; the caller gets templates,
// never a mix of model and template drafts.
func TestGenerateRejectsWholeBatchOnSingleBadDraft(t *testing.T) {
	output := `[
      {"type":"SAVINGS","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Fine","target_amount":1000,"reward_points":50},
      {"type":"STREAK","difficulty":"MEDIUM","frequency":"WEEKLY","title":"Broken","category":"delivery","streak_days":0,"reward_points":50}
    ]`
	g := NewChallengeGenerator(&fakeModel{output: output})

	drafts := g.Generate(context.Background(), GeneratorContext{}, 2, GenerateOptions{})
	require.Len(t, drafts, 2)
	for _, d := range drafts {
		assert.Equal(t, challenge.ProvenanceFallback, d.Provenance)
	}
}

func TestGenerateWithoutModelUsesTemplates(t *testing.T) {
	g := NewChallengeGenerator(nil)

	drafts := g.Generate(context.Background(), GeneratorContext{}, 5, GenerateOptions{})
	require.Len(t, drafts, 5)
	for _, d := range drafts {
		assert.Equal(t, challenge.ProvenanceFallback, d.Provenance)
		require.NoError(t, challenge.ValidateDraft(d))
	}
}

func TestFallbackSkipsGoalContributionWithoutGoals(t *testing.T) {
	g := NewChallengeGenerator(nil)

	// More drafts than templates forces a full cycle through every template.
	drafts := g.Generate(context.Background(), GeneratorContext{}, 10, GenerateOptions{})
	require.Len(t, drafts, 10)
	for _, d := range drafts {
		assert.NotEqual(t, challenge.TypeGoalContribution, d.Type)
	}
}

func TestFallbackTargetsTheUsersGoal(t *testing.T) {
	g := NewChallengeGenerator(nil)
	goalID := uuid.New()
	userCtx := GeneratorContext{
		Goals: []goal.Goal{{
			ID: goalID, Name: "Emergency fund",
			TargetAmount: 500000, CurrentAmount: 100000,
		}},
	}

	drafts := g.Generate(context.Background(), userCtx, 10, GenerateOptions{})
	require.Len(t, drafts, 10)

	var found *challenge.Draft
	for i := range drafts {
		if drafts[i].Type == challenge.TypeGoalContribution {
			found = &drafts[i]
			break
		}
	}
	require.NotNil(t, found, "expected a GOAL_CONTRIBUTION template when a goal exists")
	require.NotNil(t, found.Rules.GoalID)
	assert.Equal(t, goalID, *found.Rules.GoalID)
	assert.Greater(t, found.Rules.TargetAmount, int64(100000))
}

func TestFallbackHonorsRequestedDifficultyAndFrequency(t *testing.T) {
	g := NewChallengeGenerator(nil)
	hard := challenge.DifficultyHard
	daily := challenge.FrequencyDaily

	drafts := g.Generate(context.Background(), GeneratorContext{}, 4,
		GenerateOptions{Difficulty: &hard, Frequency: &daily})
	require.Len(t, drafts, 4)
	for _, d := range drafts {
		assert.Equal(t, hard, d.Difficulty)
		assert.Equal(t, daily, d.Frequency)
		assert.WithinDuration(t, d.StartDate.Add(24*time.Hour), d.EndDate, time.Second)
	}
}

func TestFallbackLeansOnUserContext(t *testing.T) {
	g := NewChallengeGenerator(nil)
	userCtx := GeneratorContext{
		MonthlyIncome:   600000,
		MonthlyExpenses: 400000,
		TopCategories:   []string{"dining", "transport"},
	}

	drafts := g.Generate(context.Background(), userCtx, 5, GenerateOptions{})
	require.Len(t, drafts, 5)

	byType := map[challenge.Type]challenge.Draft{}
	for _, d := range drafts {
		byType[d.Type] = d
	}
	assert.Equal(t, int64(60000), byType[challenge.TypeSavings].Rules.TargetAmount)
	assert.Equal(t, int64(100000), byType[challenge.TypeSpendingLimit].Rules.TargetAmount)
	assert.Equal(t, "dining", byType[challenge.TypeCategoryBan].Rules.Category)
}
