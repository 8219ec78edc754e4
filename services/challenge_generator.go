package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/goal"
)

// ContentModel is the external text generator behind the primary path.
type ContentModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeneratorContext is the opaque user bundle the caller supplies; the
// generator never fetches data itself.
type GeneratorContext struct {
	MonthlyIncome   int64
	MonthlyExpenses int64
	TopCategories   []string
	Goals           []goal.Goal
}

type GenerateOptions struct {
	Difficulty *challenge.Difficulty
	Frequency  *challenge.Frequency
}

// ChallengeGenerator produces challenge drafts, preferring the content
// model and degrading to a fixed template set on any failure. It never
// returns an error: a broken model must not break transaction processing.
type ChallengeGenerator struct {
	model        ContentModel
	modelTimeout time.Duration
}

func NewChallengeGenerator(model ContentModel) *ChallengeGenerator {
	return &ChallengeGenerator{
		model:        model,
		modelTimeout: 20 * time.Second,
	}
}

func (g *ChallengeGenerator) Generate(ctx context.Context, userCtx GeneratorContext, count int, opts GenerateOptions) []challenge.Draft {
	if count <= 0 {
		return nil
	}

	if g.model != nil {
		drafts, err := g.generateFromModel(ctx, userCtx, count, opts)
		if err == nil {
			return drafts
		}
		log.Printf("Challenge generation fell back to templates: %v", err)
	}

	generatorFallbackTotal.Inc()
	return g.fallbackDrafts(userCtx, count, opts)
}

func (g *ChallengeGenerator) generateFromModel(ctx context.Context, userCtx GeneratorContext, count int, opts GenerateOptions) ([]challenge.Draft, error) {
	ctx, cancel := context.WithTimeout(ctx, g.modelTimeout)
	defer cancel()

	prompt := buildPrompt(userCtx, count, opts)
	text, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("content model call: %w", err)
	}

	drafts, err := parseDrafts(text, count, prompt)
	if err != nil {
		return nil, fmt.Errorf("content model output rejected: %w", err)
	}
	return drafts, nil
}

// generatedDraft is the wire schema the model is asked to produce.
type generatedDraft struct {
	Type         string  `json:"type"`
	Difficulty   string  `json:"difficulty"`
	Frequency    string  `json:"frequency"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	TargetAmount int64   `json:"target_amount"`
	Category     string  `json:"category"`
	StreakDays   int     `json:"streak_days"`
	Percentage   float64 `json:"percentage"`
	RewardPoints int     `json:"reward_points"`
	DurationDays int     `json:"duration_days"`
}

func buildPrompt(userCtx GeneratorContext, count int, opts GenerateOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You design personal-finance challenges. Create exactly %d challenges as a JSON array, no prose.\n", count)
	b.WriteString("Each element: {\"type\",\"difficulty\",\"frequency\",\"title\",\"description\",\"target_amount\",\"category\",\"streak_days\",\"percentage\",\"reward_points\",\"duration_days\"}.\n")
	b.WriteString("type is one of SAVINGS, SPENDING_LIMIT, CATEGORY_BAN, STREAK, INCOME_PERCENTAGE. ")
	b.WriteString("difficulty is EASY, MEDIUM or HARD. frequency is DAILY, WEEKLY or MONTHLY. ")
	b.WriteString("Amounts are integer cents.\n")

	fmt.Fprintf(&b, "User context: monthly income %d, monthly expenses %d", userCtx.MonthlyIncome, userCtx.MonthlyExpenses)
	if len(userCtx.TopCategories) > 0 {
		fmt.Fprintf(&b, ", top spending categories: %s", strings.Join(userCtx.TopCategories, ", "))
	}
	b.WriteString(".\n")
	for _, gl := range userCtx.Goals {
		fmt.Fprintf(&b, "Savings goal %q: %d of %d saved.\n", gl.Name, gl.CurrentAmount, gl.TargetAmount)
	}

	if opts.Difficulty != nil {
		fmt.Fprintf(&b, "All challenges must be %s difficulty.\n", *opts.Difficulty)
	}
	if opts.Frequency != nil {
		fmt.Fprintf(&b, "All challenges must be %s cadence.\n", *opts.Frequency)
	}
	return b.String()
}

// parseDrafts holds the model to a strict contract: a JSON array with valid
// enums, positive numbers, and coherent rules per type. Anything else
// rejects the whole batch so the caller falls back.
func parseDrafts(text string, count int, generationContext string) ([]challenge.Draft, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in model output")
	}

	var raw []generatedDraft
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("model returned an empty array")
	}

	now := time.Now().UTC()
	drafts := make([]challenge.Draft, 0, len(raw))
	for i, gd := range raw {
		draft, err := gd.toDraft(now, generationContext)
		if err != nil {
			return nil, fmt.Errorf("draft %d: %w", i, err)
		}
		drafts = append(drafts, draft)
	}
	if len(drafts) > count {
		drafts = drafts[:count]
	}
	return drafts, nil
}

func (gd generatedDraft) toDraft(now time.Time, generationContext string) (challenge.Draft, error) {
	var d challenge.Draft

	switch challenge.Type(gd.Type) {
	case challenge.TypeSavings, challenge.TypeSpendingLimit, challenge.TypeCategoryBan,
		challenge.TypeStreak, challenge.TypeGoalContribution, challenge.TypeIncomePercentage:
		d.Type = challenge.Type(gd.Type)
	default:
		return d, fmt.Errorf("invalid type %q", gd.Type)
	}

	switch challenge.Difficulty(gd.Difficulty) {
	case challenge.DifficultyEasy, challenge.DifficultyMedium, challenge.DifficultyHard:
		d.Difficulty = challenge.Difficulty(gd.Difficulty)
	default:
		return d, fmt.Errorf("invalid difficulty %q", gd.Difficulty)
	}

	switch challenge.Frequency(gd.Frequency) {
	case challenge.FrequencyDaily, challenge.FrequencyWeekly, challenge.FrequencyMonthly:
		d.Frequency = challenge.Frequency(gd.Frequency)
	default:
		return d, fmt.Errorf("invalid frequency %q", gd.Frequency)
	}

	if gd.Title == "" {
		return d, fmt.Errorf("missing title")
	}
	if gd.RewardPoints <= 0 {
		return d, fmt.Errorf("reward_points must be positive, got %d", gd.RewardPoints)
	}

	days := gd.DurationDays
	if days <= 0 {
		days = defaultDurationDays(d.Frequency)
	}

	d.Title = gd.Title
	d.Description = gd.Description
	d.Rules = challenge.Rules{
		TargetAmount: gd.TargetAmount,
		Category:     gd.Category,
		StreakDays:   gd.StreakDays,
		Percentage:   gd.Percentage,
	}
	d.RewardPoints = gd.RewardPoints
	d.StartDate = now
	d.EndDate = now.Add(time.Duration(days) * 24 * time.Hour)
	d.Provenance = challenge.ProvenanceGenerated
	d.GenerationContext = generationContext

	if err := d.Rules.Validate(d.Type); err != nil {
		return d, err
	}
	return d, nil
}

func defaultDurationDays(f challenge.Frequency) int {
	switch f {
	case challenge.FrequencyDaily:
		return 1
	case challenge.FrequencyMonthly:
		return 30
	default:
		return 7
	}
}

// fallbackDrafts is the deterministic template set: one archetype per major
// type, cycled until count is reached. Template parameters lean on the user
// context where it is available.
func (g *ChallengeGenerator) fallbackDrafts(userCtx GeneratorContext, count int, opts GenerateOptions) []challenge.Draft {
	now := time.Now().UTC()

	difficulty := challenge.DifficultyMedium
	if opts.Difficulty != nil {
		difficulty = *opts.Difficulty
	}
	frequency := challenge.FrequencyWeekly
	if opts.Frequency != nil {
		frequency = *opts.Frequency
	}
	days := defaultDurationDays(frequency)

	banCategory := "delivery"
	if len(userCtx.TopCategories) > 0 {
		banCategory = userCtx.TopCategories[0]
	}

	spendTarget := int64(50000)
	if userCtx.MonthlyExpenses > 0 {
		spendTarget = userCtx.MonthlyExpenses / 4
	}
	saveTarget := int64(100000)
	if userCtx.MonthlyIncome > 0 {
		saveTarget = userCtx.MonthlyIncome / 10
	}

	templates := []challenge.Draft{
		{
			Type:         challenge.TypeSavings,
			Title:        "Build a buffer",
			Description:  "Bring in savings this period and watch the buffer grow.",
			Rules:        challenge.Rules{TargetAmount: saveTarget},
			RewardPoints: 100,
		},
		{
			Type:         challenge.TypeSpendingLimit,
			Title:        "Spend less, keep more",
			Description:  "Stay under your spending cap until the period ends.",
			Rules:        challenge.Rules{TargetAmount: spendTarget},
			RewardPoints: 120,
		},
		{
			Type:         challenge.TypeCategoryBan,
			Title:        fmt.Sprintf("No %s this week", banCategory),
			Description:  fmt.Sprintf("Not a single %s expense until the challenge ends.", banCategory),
			Rules:        challenge.Rules{Category: banCategory},
			RewardPoints: 150,
		},
		{
			Type:         challenge.TypeStreak,
			Title:        fmt.Sprintf("%s-free streak", banCategory),
			Description:  fmt.Sprintf("Keep a clean streak of days without %s spending.", banCategory),
			Rules:        challenge.Rules{StreakDays: days, Category: banCategory},
			RewardPoints: 180,
		},
		{
			Type:         challenge.TypeIncomePercentage,
			Title:        "Save a slice of your income",
			Description:  "Put away a tenth of what you earn this period.",
			Rules:        challenge.Rules{Percentage: 10},
			RewardPoints: 140,
		},
	}

	// GOAL_CONTRIBUTION only makes sense when the user has a goal to point
	// it at.
	if len(userCtx.Goals) > 0 {
		gl := userCtx.Goals[0]
		goalID := gl.ID
		target := gl.CurrentAmount + (gl.TargetAmount-gl.CurrentAmount)/10
		if target <= gl.CurrentAmount {
			target = gl.TargetAmount
		}
		templates = append(templates, challenge.Draft{
			Type:         challenge.TypeGoalContribution,
			Title:        fmt.Sprintf("Push %q forward", gl.Name),
			Description:  "Move your savings goal another step toward the finish line.",
			Rules:        challenge.Rules{GoalID: &goalID, TargetAmount: target},
			RewardPoints: 160,
		})
	}

	drafts := make([]challenge.Draft, 0, count)
	for i := 0; len(drafts) < count; i++ {
		d := templates[i%len(templates)]
		d.Difficulty = difficulty
		d.Frequency = frequency
		d.StartDate = now
		d.EndDate = now.Add(time.Duration(days) * 24 * time.Hour)
		d.Provenance = challenge.ProvenanceFallback
		drafts = append(drafts, d)
	}
	return drafts
}
