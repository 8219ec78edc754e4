package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/goal"
	"savquestAPI/internal/transaction"
)

// --- in-memory fakes ---

type fakeRepo struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*challenge.Challenge
	// forceConflicts makes every versioned update fail, simulating a writer
	// that always loses the race.
	forceConflicts bool
	// onList fires after each ListByUser returns, simulating work that lands
	// while an evaluation pass is in flight.
	onList func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{challenges: make(map[uuid.UUID]*challenge.Challenge)}
}

func (r *fakeRepo) Create(ctx context.Context, c *challenge.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.challenges[c.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return nil, challenge.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) ListByUser(ctx context.Context, userID uuid.UUID, status *challenge.Status) ([]*challenge.Challenge, error) {
	r.mu.Lock()
	out := []*challenge.Challenge{}
	for _, c := range r.challenges {
		if c.UserID != userID {
			continue
		}
		if status != nil && c.Status != *status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	r.mu.Unlock()
	if r.onList != nil {
		r.onList()
	}
	return out, nil
}

func (r *fakeRepo) UpdateVersioned(ctx context.Context, c *challenge.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forceConflicts {
		return challenge.ErrConcurrentModification
	}
	stored, ok := r.challenges[c.ID]
	if !ok || stored.Version != c.Version || stored.Status != challenge.StatusActive {
		return challenge.ErrConcurrentModification
	}
	cp := *c
	cp.Version++
	r.challenges[c.ID] = &cp
	c.Version++
	return nil
}

func (r *fakeRepo) ClearRewardPending(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.challenges[id]; ok {
		c.RewardPending = false
	}
	return nil
}

func (r *fakeRepo) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.challenges {
		if c.UserID == userID && c.Status == challenge.StatusActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) ListUsersWithActive(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, c := range r.challenges {
		if c.Status == challenge.StatusActive && !seen[c.UserID] {
			seen[c.UserID] = true
			out = append(out, c.UserID)
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu sync.Mutex
	// awards counts every successful AwardPoints call per idempotency key.
	// The real ledger dedupes repeats; counting raw calls here is what lets
	// the tests see a double invocation the dedupe would otherwise hide.
	awards   map[string]int
	failNext int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{awards: make(map[string]int)}
}

func (l *fakeLedger) AwardPoints(ctx context.Context, userID uuid.UUID, points int, reason, idempotencyKey string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext > 0 {
		l.failNext--
		return fmt.Errorf("ledger unavailable")
	}
	l.awards[idempotencyKey]++
	return nil
}

func (l *fakeLedger) timesAwarded(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.awards[key]
}

type fakeFeed struct {
	mu  sync.Mutex
	txs []transaction.Transaction
}

func (f *fakeFeed) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]transaction.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []transaction.Transaction{}
	for _, tx := range f.txs {
		if tx.UserID == userID && !tx.OccurredAt.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeFeed) add(tx transaction.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
}

type fakeGoals struct {
	goals map[uuid.UUID]goal.Goal
}

func (g *fakeGoals) GetGoals(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]goal.Goal, error) {
	out := map[uuid.UUID]goal.Goal{}
	for _, id := range ids {
		if gl, ok := g.goals[id]; ok {
			out[id] = gl
		}
	}
	return out, nil
}

func (g *fakeGoals) ListAll(ctx context.Context, userID uuid.UUID) ([]goal.Goal, error) {
	var out []goal.Goal
	for _, gl := range g.goals {
		out = append(out, gl)
	}
	return out, nil
}

type fakeIncome struct {
	income int64
}

func (f *fakeIncome) MonthlyIncome(ctx context.Context, userID uuid.UUID) (int64, error) {
	return f.income, nil
}

// fakeGenerator hands out valid SAVINGS drafts and records how many were
// asked for per call.
type fakeGenerator struct {
	mu        sync.Mutex
	requested []int
	disabled  bool
}

func (g *fakeGenerator) Generate(ctx context.Context, userCtx GeneratorContext, count int, opts GenerateOptions) []challenge.Draft {
	g.mu.Lock()
	g.requested = append(g.requested, count)
	disabled := g.disabled
	g.mu.Unlock()
	if disabled {
		return nil
	}
	now := time.Now().UTC()
	drafts := make([]challenge.Draft, 0, count)
	for i := 0; i < count; i++ {
		drafts = append(drafts, challenge.Draft{
			Type:         challenge.TypeSavings,
			Difficulty:   challenge.DifficultyMedium,
			Frequency:    challenge.FrequencyWeekly,
			Title:        fmt.Sprintf("Save up #%d", i+1),
			Rules:        challenge.Rules{TargetAmount: 100000},
			RewardPoints: 100,
			StartDate:    now,
			EndDate:      now.Add(7 * 24 * time.Hour),
			Provenance:   challenge.ProvenanceFallback,
		})
	}
	return drafts
}

type fixture struct {
	svc    *ChallengeService
	repo   *fakeRepo
	ledger *fakeLedger
	feed   *fakeFeed
	goals  *fakeGoals
	gen    *fakeGenerator
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	ledger := newFakeLedger()
	feed := &fakeFeed{}
	goals := &fakeGoals{goals: map[uuid.UUID]goal.Goal{}}
	gen := &fakeGenerator{disabled: true}
	svc := NewChallengeService(repo, ledger, feed, goals, &fakeIncome{income: 500000}, gen)
	return &fixture{svc: svc, repo: repo, ledger: ledger, feed: feed, goals: goals, gen: gen, userID: uuid.New()}
}

func (f *fixture) seedActive(t *testing.T, ct challenge.Type, rules challenge.Rules, start, end time.Time) *challenge.Challenge {
	t.Helper()
	c := &challenge.Challenge{
		ID:           uuid.New(),
		UserID:       f.userID,
		Type:         ct,
		Difficulty:   challenge.DifficultyMedium,
		Frequency:    challenge.FrequencyWeekly,
		Title:        string(ct),
		Rules:        rules,
		RewardPoints: 100,
		StartDate:    start,
		EndDate:      end,
		Status:       challenge.StatusActive,
		Version:      1,
	}
	require.NoError(t, f.repo.Create(context.Background(), c))
	return c
}

func (f *fixture) incomeTx(amount int64, at time.Time) transaction.Transaction {
	return transaction.Transaction{
		ID: uuid.New(), UserID: f.userID, Amount: amount,
		Type: transaction.TypeIncome, Category: "salary", OccurredAt: at,
	}
}

func (f *fixture) expenseTx(amount int64, category string, at time.Time) transaction.Transaction {
	return transaction.Transaction{
		ID: uuid.New(), UserID: f.userID, Amount: amount,
		Type: transaction.TypeExpense, Category: category, OccurredAt: at,
	}
}

// --- tests ---

func TestRewardIssuedExactlyOnceAcrossRepeatedEvaluations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 200000},
		now.Add(-48*time.Hour), now.Add(48*time.Hour))
	f.feed.add(f.incomeTx(250000, now.Add(-time.Hour)))

	for i := 0; i < 3; i++ {
		_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
		require.NoError(t, err)
	}
	_, err := f.svc.GetChallenge(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, final.Status)
	assert.False(t, final.RewardPending)
	require.NotNil(t, final.Progress.CompletedAt)
}

func TestRewardRedrivenAfterLedgerOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 200000},
		now.Add(-48*time.Hour), now.Add(48*time.Hour))
	f.feed.add(f.incomeTx(250000, now.Add(-time.Hour)))

	// The scheduled run tries twice (on transition, then on re-drive); keep
	// the ledger down for both.
	f.ledger.failNext = 2
	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	// The completion stuck even though the award did not.
	mid, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, mid.Status)
	assert.True(t, mid.RewardPending)
	assert.Equal(t, 0, f.ledger.timesAwarded(c.ID.String()))

	// Reading the challenge re-drives the pending reward.
	_, err = f.svc.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, final.RewardPending)
}

func TestRewardSettlesOnceUnderConcurrentPasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 200000},
		now.Add(-48*time.Hour), now.Add(48*time.Hour))
	f.feed.add(f.incomeTx(250000, now.Add(-time.Hour)))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, final.Status)
	assert.False(t, final.RewardPending)

	// The racing passes may each reach the ledger; the idempotency key makes
	// the extras no-ops. Once the pending flag is cleared, further passes
	// must not call the ledger at all.
	settled := f.ledger.timesAwarded(c.ID.String())
	require.GreaterOrEqual(t, settled, 1)
	_, err = f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, settled, f.ledger.timesAwarded(c.ID.String()))
}

// A challenge created while a scheduled pass is in flight must wait for the
// next pass; judging it against a transaction window loaded before it
// existed could complete a challenge that should fail.
func TestChallengeCreatedMidPassWaitsForNextPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 900000},
		now.Add(-24*time.Hour), now.Add(6*24*time.Hour))

	// Over its limit a week ago, already past its end date. A window that
	// misses the old expense would wrongly complete it.
	late := &challenge.Challenge{
		ID:           uuid.New(),
		UserID:       f.userID,
		Type:         challenge.TypeSpendingLimit,
		Difficulty:   challenge.DifficultyMedium,
		Frequency:    challenge.FrequencyWeekly,
		Title:        "late limit",
		Rules:        challenge.Rules{TargetAmount: 10000},
		RewardPoints: 100,
		StartDate:    now.Add(-10 * 24 * time.Hour),
		EndDate:      now.Add(-time.Hour),
		Status:       challenge.StatusActive,
		Version:      1,
	}
	f.feed.add(f.expenseTx(50000, "shopping", now.Add(-9*24*time.Hour)))

	injected := false
	f.repo.onList = func() {
		if injected {
			return
		}
		injected = true
		require.NoError(t, f.repo.Create(ctx, late))
	}

	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	mid, err := f.repo.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, mid.Status)
	assert.Equal(t, 0, f.ledger.timesAwarded(late.ID.String()))

	// The next pass sees the full window and fails it properly.
	_, err = f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)
	final, err := f.repo.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusFailed, final.Status)
	assert.Equal(t, 0, f.ledger.timesAwarded(late.ID.String()))
}

func TestTerminalStatusNeverChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSpendingLimit, challenge.Rules{TargetAmount: 50000},
		now.Add(-48*time.Hour), now.Add(48*time.Hour))
	f.feed.add(f.expenseTx(60000, "dining", now.Add(-2*time.Hour)))

	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)
	failed, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, challenge.StatusFailed, failed.Status)

	// More evaluations, even favorable ones, leave a FAILED challenge alone.
	for i := 0; i < 2; i++ {
		_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
		require.NoError(t, err)
	}
	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusFailed, final.Status)
	assert.Equal(t, 0, f.ledger.timesAwarded(c.ID.String()))
}

func TestCategoryBanSucceedsOnlyByExpiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Already past its end date, no banned spending ever recorded.
	c := f.seedActive(t, challenge.TypeCategoryBan, challenge.Rules{Category: "delivery"},
		now.Add(-8*24*time.Hour), now.Add(-time.Hour))

	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, final.Status)
	// Expiry is the ban's success path but it still pays nothing.
	assert.Equal(t, 0, f.ledger.timesAwarded(c.ID.String()))
}

func TestCategoryBanFailsOnBannedSpending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeCategoryBan, challenge.Rules{Category: "delivery"},
		now.Add(-24*time.Hour), now.Add(6*24*time.Hour))

	tx := f.expenseTx(1500, "delivery", now)
	f.feed.add(tx)
	_, err := f.svc.ApplyTransactionEvent(ctx, f.userID, tx)
	require.NoError(t, err)

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusFailed, final.Status)
}

func TestSpendingLimitUnderBudgetCompletesAtEndDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSpendingLimit, challenge.Rules{TargetAmount: 50000},
		now.Add(-8*24*time.Hour), now.Add(-time.Hour))
	f.feed.add(f.expenseTx(20000, "groceries", now.Add(-3*24*time.Hour)))

	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, final.Status)
	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))
}

// The incremental path must land on the same final states a from-scratch
// batch pass would produce from the same transaction history.
func TestIncrementalEvaluationMatchesBatch(t *testing.T) {
	now := time.Now().UTC()
	start := now.Add(-5 * 24 * time.Hour)
	end := now.Add(5 * 24 * time.Hour)

	seed := func(f *fixture) map[string]uuid.UUID {
		ids := map[string]uuid.UUID{}
		ids["savings"] = f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 200000}, start, end).ID
		ids["limit"] = f.seedActive(t, challenge.TypeSpendingLimit, challenge.Rules{TargetAmount: 50000}, start, end).ID
		ids["ban"] = f.seedActive(t, challenge.TypeCategoryBan, challenge.Rules{Category: "delivery"}, start, end).ID
		ids["streak"] = f.seedActive(t, challenge.TypeStreak, challenge.Rules{StreakDays: 30, Category: "delivery"}, start, end).ID
		// Matures by elapsed time alone: started 5 days ago, needs 3, and no
		// transaction in the history touches its category.
		ids["streak_matured"] = f.seedActive(t, challenge.TypeStreak, challenge.Rules{StreakDays: 3, Category: "gambling"}, start, end).ID
		return ids
	}

	history := func(f *fixture) []transaction.Transaction {
		return []transaction.Transaction{
			f.incomeTx(120000, start.Add(12*time.Hour)),
			f.expenseTx(30000, "groceries", start.Add(24*time.Hour)),
			f.expenseTx(2500, "delivery", start.Add(36*time.Hour)),
			f.incomeTx(150000, start.Add(48*time.Hour)),
			f.expenseTx(25000, "dining", start.Add(72*time.Hour)),
		}
	}

	// Incremental: one evaluation per arriving transaction.
	inc := newFixture(t)
	incIDs := seed(inc)
	ctx := context.Background()
	for _, tx := range history(inc) {
		inc.feed.add(tx)
		_, err := inc.svc.ApplyTransactionEvent(ctx, inc.userID, tx)
		require.NoError(t, err)
	}

	// Batch: all transactions land first, then one scheduled pass.
	batch := newFixture(t)
	batchIDs := seed(batch)
	for _, tx := range history(batch) {
		batch.feed.add(tx)
	}
	_, err := batch.svc.RunScheduledEvaluation(ctx, batch.userID)
	require.NoError(t, err)

	for name, incID := range incIDs {
		a, err := inc.repo.GetByID(ctx, incID)
		require.NoError(t, err)
		b, err := batch.repo.GetByID(ctx, batchIDs[name])
		require.NoError(t, err)
		assert.Equal(t, b.Status, a.Status, "status diverged for %s", name)
		assert.Equal(t, b.Progress.CurrentAmount, a.Progress.CurrentAmount, "amount diverged for %s", name)
		assert.Equal(t, b.Progress.CurrentStreak, a.Progress.CurrentStreak, "streak diverged for %s", name)
	}
}

// A streak that has already run its full day count must complete on the
// very next evaluation, even when the transaction that triggered it has
// nothing to do with the streak's category.
func TestMaturedStreakCompletesOnUnrelatedTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeStreak, challenge.Rules{StreakDays: 2, Category: "delivery"},
		now.Add(-3*24*time.Hour), now.Add(4*24*time.Hour))

	tx := f.incomeTx(100000, now)
	f.feed.add(tx)
	_, err := f.svc.ApplyTransactionEvent(ctx, f.userID, tx)
	require.NoError(t, err)

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, final.Status)
	assert.GreaterOrEqual(t, final.Progress.CurrentStreak, 2)
	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))
}

func TestPopulationToppedUpToTarget(t *testing.T) {
	f := newFixture(t)
	f.gen.disabled = false
	ctx := context.Background()
	now := time.Now().UTC()

	f.seedActive(t, challenge.TypeCategoryBan, challenge.Rules{Category: "delivery"},
		now.Add(-24*time.Hour), now.Add(6*24*time.Hour))

	require.NoError(t, f.svc.MaintainPopulation(ctx, f.userID))

	require.Len(t, f.gen.requested, 1)
	assert.Equal(t, 2, f.gen.requested[0])

	count, err := f.repo.CountActive(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, DefaultTargetActiveCount, count)

	// Already at target: no further generation.
	require.NoError(t, f.svc.MaintainPopulation(ctx, f.userID))
	assert.Len(t, f.gen.requested, 1)
}

func TestConflictedChallengeIsSkippedNotFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	c := f.seedActive(t, challenge.TypeSavings, challenge.Rules{TargetAmount: 200000},
		now.Add(-48*time.Hour), now.Add(48*time.Hour))
	f.feed.add(f.incomeTx(250000, now.Add(-time.Hour)))

	f.repo.forceConflicts = true
	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	stale, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, stale.Status)

	// Once the contention clears, the next pass completes it.
	f.repo.forceConflicts = false
	_, err = f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)
	fresh, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, fresh.Status)
	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))
}

func TestCreateChallengeRejectsInconsistentRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := f.svc.CreateChallenge(ctx, f.userID, challenge.Draft{
		Type:         challenge.TypeSavings,
		Difficulty:   challenge.DifficultyEasy,
		Frequency:    challenge.FrequencyWeekly,
		Title:        "Broken",
		Rules:        challenge.Rules{TargetAmount: 0}, // SAVINGS needs a positive target
		RewardPoints: 50,
		StartDate:    now,
		EndDate:      now.Add(7 * 24 * time.Hour),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, challenge.ErrInvalidRule))

	count, err := f.repo.CountActive(ctx, f.userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIncomePercentageTargetDerivedFromReferenceIncome(t *testing.T) {
	f := newFixture(t) // reference income is 500000
	ctx := context.Background()
	now := time.Now().UTC()

	c, err := f.svc.CreateChallenge(ctx, f.userID, challenge.Draft{
		Type:         challenge.TypeIncomePercentage,
		Difficulty:   challenge.DifficultyMedium,
		Frequency:    challenge.FrequencyMonthly,
		Title:        "Save 10% of income",
		Rules:        challenge.Rules{Percentage: 10},
		RewardPoints: 200,
		StartDate:    now,
		EndDate:      now.AddDate(0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), c.Rules.TargetAmount)
}

func TestGoalContributionCompletesWhenGoalReachesTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	goalID := uuid.New()
	f.goals.goals[goalID] = goal.Goal{
		ID: goalID, UserID: f.userID, Name: "Vacation",
		TargetAmount: 300000, CurrentAmount: 310000,
	}
	c := f.seedActive(t, challenge.TypeGoalContribution,
		challenge.Rules{GoalID: &goalID, TargetAmount: 300000},
		now.Add(-24*time.Hour), now.Add(6*24*time.Hour))

	_, err := f.svc.RunScheduledEvaluation(ctx, f.userID)
	require.NoError(t, err)

	final, err := f.repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, final.Status)
	assert.Equal(t, 1, f.ledger.timesAwarded(c.ID.String()))
}
