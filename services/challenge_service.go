package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"savquestAPI/internal/challenge"
	"savquestAPI/internal/goal"
	"savquestAPI/internal/stats"
	"savquestAPI/internal/transaction"
	"savquestAPI/utils"
)

const (
	// DefaultTargetActiveCount is how many ACTIVE challenges the engine
	// keeps per user; MaintainPopulation tops the pool up to this floor.
	DefaultTargetActiveCount = 3

	// evaluateMaxRetries bounds optimistic-update retries per challenge and
	// pass. A challenge that keeps conflicting is skipped until the next
	// trigger.
	evaluateMaxRetries = 3
)

// ChallengeRepository is the durable store for challenges, keyed by id and
// by (user, status). UpdateVersioned must persist conditioned on the stored
// version and ACTIVE status being unchanged and return
// challenge.ErrConcurrentModification otherwise.
type ChallengeRepository interface {
	Create(ctx context.Context, c *challenge.Challenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status *challenge.Status) ([]*challenge.Challenge, error)
	UpdateVersioned(ctx context.Context, c *challenge.Challenge) error
	ClearRewardPending(ctx context.Context, id uuid.UUID) error
	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
	ListUsersWithActive(ctx context.Context) ([]uuid.UUID, error)
}

// RewardLedger awards points at most once per idempotency key; calling it
// again with the same key must be a no-op.
type RewardLedger interface {
	AwardPoints(ctx context.Context, userID uuid.UUID, points int, reason string, idempotencyKey string) error
}

// TransactionFeed is the read side of the transaction log.
type TransactionFeed interface {
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]transaction.Transaction, error)
}

// GoalLookup resolves the savings goals referenced by challenge rules, and
// lists them all for generator context.
type GoalLookup interface {
	GetGoals(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]goal.Goal, error)
	ListAll(ctx context.Context, userID uuid.UUID) ([]goal.Goal, error)
}

// IncomeSource supplies the reference income INCOME_PERCENTAGE targets are
// derived from.
type IncomeSource interface {
	MonthlyIncome(ctx context.Context, userID uuid.UUID) (int64, error)
}

// DraftGenerator produces challenge drafts. It never fails hard: on any
// content-model problem it falls back to deterministic templates, so
// generation can never break transaction processing.
type DraftGenerator interface {
	Generate(ctx context.Context, userCtx GeneratorContext, count int, opts GenerateOptions) []challenge.Draft
}

// ChallengeService is the lifecycle manager: it owns every state transition
// a challenge goes through, issues rewards exactly once per challenge, and
// keeps the active pool topped up. All collaborators are injected so the
// engine runs the same against Postgres or in-memory fakes.
type ChallengeService struct {
	repo      ChallengeRepository
	ledger    RewardLedger
	feed      TransactionFeed
	goals     GoalLookup
	income    IncomeSource
	generator DraftGenerator
	notifier  utils.NotificationCreator

	targetActiveCount int
}

func NewChallengeService(
	repo ChallengeRepository,
	ledger RewardLedger,
	feed TransactionFeed,
	goals GoalLookup,
	income IncomeSource,
	generator DraftGenerator,
) *ChallengeService {
	return &ChallengeService{
		repo:              repo,
		ledger:            ledger,
		feed:              feed,
		goals:             goals,
		income:            income,
		generator:         generator,
		targetActiveCount: DefaultTargetActiveCount,
	}
}

// SetNotifier wires the notification service in; the engine works without
// one, it just stays silent.
func (s *ChallengeService) SetNotifier(n utils.NotificationCreator) {
	s.notifier = n
}

func (s *ChallengeService) SetTargetActiveCount(n int) {
	if n > 0 {
		s.targetActiveCount = n
	}
}

// CreateChallenge validates a draft and persists it as a new ACTIVE
// challenge. Drafts with rules inconsistent with their type are rejected
// and never stored.
func (s *ChallengeService) CreateChallenge(ctx context.Context, userID uuid.UUID, draft challenge.Draft) (*challenge.Challenge, error) {
	draft, err := s.deriveTarget(ctx, userID, draft)
	if err != nil {
		return nil, err
	}
	if err := challenge.ValidateDraft(draft); err != nil {
		return nil, err
	}
	if draft.Provenance == "" {
		draft.Provenance = challenge.ProvenanceManual
	}

	now := time.Now().UTC()
	c := &challenge.Challenge{
		ID:                uuid.New(),
		UserID:            userID,
		Type:              draft.Type,
		Difficulty:        draft.Difficulty,
		Frequency:         draft.Frequency,
		Title:             draft.Title,
		Description:       draft.Description,
		Rules:             draft.Rules,
		RewardPoints:      draft.RewardPoints,
		StartDate:         draft.StartDate,
		EndDate:           draft.EndDate,
		Status:            challenge.StatusActive,
		Provenance:        draft.Provenance,
		GenerationContext: draft.GenerationContext,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	return c, nil
}

// GenerateChallenges asks the generator for count drafts and persists them
// as ACTIVE.
func (s *ChallengeService) GenerateChallenges(ctx context.Context, userID uuid.UUID, count int, opts GenerateOptions) ([]*challenge.Challenge, error) {
	if count <= 0 {
		return nil, nil
	}

	userCtx, err := s.buildGeneratorContext(ctx, userID)
	if err != nil {
		log.Printf("Challenge generation: context build failed for user %s, generating blind: %v", userID, err)
	}

	drafts := s.generator.Generate(ctx, userCtx, count, opts)

	created := make([]*challenge.Challenge, 0, len(drafts))
	for _, draft := range drafts {
		c, err := s.CreateChallenge(ctx, userID, draft)
		if err != nil {
			log.Printf("Skipping generated draft (%s) for user %s: %v", draft.Type, userID, err)
			continue
		}
		created = append(created, c)
	}

	if len(created) > 0 {
		utils.NewChallengesAssigned(s.notifier, userID, len(created))
	}
	return created, nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// A crash between "mark COMPLETED" and "award points" leaves the reward
	// pending; re-drive it on access. The ledger dedupes by challenge id.
	if c.Status == challenge.StatusCompleted && c.RewardPending {
		s.ensureReward(ctx, c)
	}
	return c, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, userID uuid.UUID, status *challenge.Status) ([]*challenge.Challenge, error) {
	return s.repo.ListByUser(ctx, userID, status)
}

// RecordTransactionAndEvaluate is the reactive path: one new transaction
// just landed, re-evaluate affected challenges and top the pool back up.
// The transaction itself is persisted by the transaction service before
// this is called.
func (s *ChallengeService) RecordTransactionAndEvaluate(ctx context.Context, userID uuid.UUID, tx transaction.Transaction) ([]*challenge.Challenge, error) {
	changed, err := s.ApplyTransactionEvent(ctx, userID, tx)
	if err != nil {
		return nil, err
	}
	if err := s.MaintainPopulation(ctx, userID); err != nil {
		log.Printf("Population maintenance failed for user %s: %v", userID, err)
	}
	return changed, nil
}

// RunScheduledEvaluation is the batch path, invoked by an external
// scheduler. It re-evaluates everything the user has active, re-drives any
// pending rewards, and tops the pool back up.
func (s *ChallengeService) RunScheduledEvaluation(ctx context.Context, userID uuid.UUID) ([]*challenge.Challenge, error) {
	changed, err := s.EvaluateAll(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.redrivePendingRewards(ctx, userID)

	if err := s.MaintainPopulation(ctx, userID); err != nil {
		log.Printf("Population maintenance failed for user %s: %v", userID, err)
	}
	return changed, nil
}

// UsersWithActiveChallenges lists every user the scheduler needs to sweep.
func (s *ChallengeService) UsersWithActiveChallenges(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListUsersWithActive(ctx)
}

// EvaluateAll runs one full evaluation pass over the user's active
// challenges. The active set is loaded once and the snapshot is built for
// exactly that set; a challenge created while the pass is in flight waits
// for the next one instead of being judged against a transaction window
// loaded before it existed.
func (s *ChallengeService) EvaluateAll(ctx context.Context, userID uuid.UUID, now time.Time) ([]*challenge.Challenge, error) {
	active, err := s.repo.ListByUser(ctx, userID, statusPtr(challenge.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to load active challenges: %w", err)
	}

	snap, err := s.loadSnapshot(ctx, userID, active)
	if err != nil {
		return nil, err
	}
	return s.evaluateChallenges(ctx, active, snap, now)
}

// evaluateChallenges is the evaluation loop shared by the batch and
// incremental paths. It returns every challenge whose status or progress
// changed.
func (s *ChallengeService) evaluateChallenges(ctx context.Context, challenges []*challenge.Challenge, snap challenge.Snapshot, now time.Time) ([]*challenge.Challenge, error) {
	var changed []*challenge.Challenge
	for _, c := range challenges {
		updated, err := s.evaluateOne(ctx, c, snap, now)
		if err != nil {
			if errors.Is(err, challenge.ErrConcurrentModification) {
				// Someone else won this round; the next trigger picks it up.
				log.Printf("Skipping challenge %s after repeated conflicts", c.ID)
				continue
			}
			return nil, err
		}
		if updated != nil {
			changed = append(changed, updated)
		}
	}
	return changed, nil
}

// ApplyTransactionEvent is the incremental twin of EvaluateAll. It is an
// optimization, not an alternate algorithm: every challenge it touches goes
// through the same Evaluate over the same snapshot semantics a full pass
// would use; it merely skips challenges the new transaction cannot affect
// and that the clock alone cannot move either.
func (s *ChallengeService) ApplyTransactionEvent(ctx context.Context, userID uuid.UUID, tx transaction.Transaction) ([]*challenge.Challenge, error) {
	now := time.Now().UTC()

	active, err := s.repo.ListByUser(ctx, userID, statusPtr(challenge.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to load active challenges: %w", err)
	}

	relevant := make([]*challenge.Challenge, 0, len(active))
	for _, c := range active {
		if transactionAffects(c, tx) || dueByTime(c, now) {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		return nil, nil
	}

	snap, err := s.loadSnapshot(ctx, userID, relevant)
	if err != nil {
		return nil, err
	}
	return s.evaluateChallenges(ctx, relevant, snap, now)
}

// MaintainPopulation tops the user's ACTIVE pool up to the target count. It
// never reduces the pool.
func (s *ChallengeService) MaintainPopulation(ctx context.Context, userID uuid.UUID) error {
	activeCount, err := s.repo.CountActive(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count active challenges: %w", err)
	}
	if activeCount >= s.targetActiveCount {
		return nil
	}

	missing := s.targetActiveCount - activeCount
	created, err := s.GenerateChallenges(ctx, userID, missing, GenerateOptions{})
	if err != nil {
		return err
	}
	log.Printf("Topped up user %s with %d new challenges (wanted %d)", userID, len(created), missing)
	return nil
}

// GetStats computes challenge statistics on demand; nothing here is
// persisted.
func (s *ChallengeService) GetStats(ctx context.Context, userID uuid.UUID) (*stats.ChallengeStats, error) {
	all, err := s.repo.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}

	var st stats.ChallengeStats
	for _, c := range all {
		switch c.Status {
		case challenge.StatusActive:
			st.Active++
		case challenge.StatusCompleted:
			st.Completed++
			st.PointsEarned += c.RewardPoints
		case challenge.StatusFailed:
			st.Failed++
		case challenge.StatusExpired:
			st.Expired++
		}
	}
	if st.Completed+st.Failed > 0 {
		st.SuccessRate = float64(st.Completed) / float64(st.Completed+st.Failed)
	}
	return &st, nil
}

// evaluateOne runs the evaluator on a single challenge and applies the
// transition policy. Returns the updated challenge if its status or
// progress changed, nil otherwise. Conflicting writers are retried a
// bounded number of times.
func (s *ChallengeService) evaluateOne(ctx context.Context, c *challenge.Challenge, snap challenge.Snapshot, now time.Time) (*challenge.Challenge, error) {
	for attempt := 0; attempt < evaluateMaxRetries; attempt++ {
		if c.Status.Terminal() {
			// Terminal is final; the only thing left to do for a completed
			// challenge is re-driving a reward that never landed.
			if c.Status == challenge.StatusCompleted && c.RewardPending {
				s.ensureReward(ctx, c)
			}
			return nil, nil
		}

		progress, verdict := challenge.Evaluate(*c, snap, now)

		next := *c
		next.Progress = progress
		switch {
		case verdict == challenge.VerdictComplete:
			completedAt := now
			next.Progress.CompletedAt = &completedAt
			next.Status = challenge.StatusCompleted
			next.RewardPending = true
		case verdict == challenge.VerdictFail:
			next.Status = challenge.StatusFailed
		case !now.Before(c.EndDate):
			// Ran out of time without failing: EXPIRED, not FAILED, and no
			// reward. For CATEGORY_BAN this is the success path.
			next.Status = challenge.StatusExpired
		}

		statusChanged := next.Status != c.Status
		progressChanged := next.Progress.CurrentAmount != c.Progress.CurrentAmount ||
			next.Progress.CurrentStreak != c.Progress.CurrentStreak
		if !statusChanged && !progressChanged {
			return nil, nil
		}

		next.UpdatedAt = now
		err := s.repo.UpdateVersioned(ctx, &next)
		if err == nil {
			challengeEvaluationsTotal.WithLabelValues(string(next.Status)).Inc()
			if statusChanged {
				if next.Status == challenge.StatusCompleted {
					s.ensureReward(ctx, &next)
				}
				utils.ChallengeOutcomeChanged(s.notifier, &next)
			}
			return &next, nil
		}
		if !errors.Is(err, challenge.ErrConcurrentModification) {
			return nil, fmt.Errorf("failed to persist challenge %s: %w", c.ID, err)
		}

		// Re-read and try again with the current version.
		fresh, getErr := s.repo.GetByID(ctx, c.ID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to reload challenge %s: %w", c.ID, getErr)
		}
		c = fresh
	}
	return nil, challenge.ErrConcurrentModification
}

// ensureReward issues the points for a completed challenge. The ledger
// dedupes on the challenge id, so this is safe to call any number of times;
// the pending flag is only cleared once the award call succeeded.
func (s *ChallengeService) ensureReward(ctx context.Context, c *challenge.Challenge) {
	reason := fmt.Sprintf("challenge_completed:%s", c.Type)
	if err := s.ledger.AwardPoints(ctx, c.UserID, c.RewardPoints, reason, c.ID.String()); err != nil {
		// The COMPLETED status stays; the reward is retried on next access.
		log.Printf("Reward issuance failed for challenge %s (retry on next access): %v", c.ID, err)
		return
	}
	challengeRewardsIssuedTotal.Inc()
	if err := s.repo.ClearRewardPending(ctx, c.ID); err != nil {
		log.Printf("Failed to clear reward-pending flag for challenge %s: %v", c.ID, err)
		return
	}
	c.RewardPending = false
}

func (s *ChallengeService) redrivePendingRewards(ctx context.Context, userID uuid.UUID) {
	completed, err := s.repo.ListByUser(ctx, userID, statusPtr(challenge.StatusCompleted))
	if err != nil {
		log.Printf("Failed to list completed challenges for user %s: %v", userID, err)
		return
	}
	for _, c := range completed {
		if c.RewardPending {
			s.ensureReward(ctx, c)
		}
	}
}

// loadSnapshot gathers everything one evaluation pass needs before the pure
// evaluator runs: the transaction window from the earliest start date and
// the state of every referenced goal.
func (s *ChallengeService) loadSnapshot(ctx context.Context, userID uuid.UUID, challenges []*challenge.Challenge) (challenge.Snapshot, error) {
	if len(challenges) == 0 {
		return challenge.NewSnapshot(nil, nil), nil
	}

	earliest := challenges[0].StartDate
	var goalIDs []uuid.UUID
	for _, c := range challenges {
		if c.StartDate.Before(earliest) {
			earliest = c.StartDate
		}
		if c.Rules.GoalID != nil {
			goalIDs = append(goalIDs, *c.Rules.GoalID)
		}
	}

	txs, err := s.feed.ListSince(ctx, userID, earliest)
	if err != nil {
		return challenge.Snapshot{}, fmt.Errorf("failed to load transactions: %w", err)
	}

	goals := map[uuid.UUID]goal.Goal{}
	if len(goalIDs) > 0 {
		goals, err = s.goals.GetGoals(ctx, userID, goalIDs)
		if err != nil {
			return challenge.Snapshot{}, fmt.Errorf("failed to load goals: %w", err)
		}
	}
	return challenge.NewSnapshot(txs, goals), nil
}

// deriveTarget fills in the INCOME_PERCENTAGE absolute target from the
// user's reference income when the draft does not carry one yet.
func (s *ChallengeService) deriveTarget(ctx context.Context, userID uuid.UUID, draft challenge.Draft) (challenge.Draft, error) {
	if draft.Type != challenge.TypeIncomePercentage || draft.Rules.TargetAmount > 0 {
		return draft, nil
	}
	if draft.Rules.Percentage <= 0 {
		return draft, nil // Validate rejects it with a proper error
	}

	income, err := s.income.MonthlyIncome(ctx, userID)
	if err != nil {
		return draft, fmt.Errorf("failed to resolve reference income: %w", err)
	}

	target := decimal.NewFromInt(income).
		Mul(decimal.NewFromFloat(draft.Rules.Percentage)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
	if target <= 0 {
		return draft, fmt.Errorf("%w: derived INCOME_PERCENTAGE target is not positive (income=%d)", challenge.ErrInvalidRule, income)
	}
	draft.Rules.TargetAmount = target
	return draft, nil
}

func (s *ChallengeService) buildGeneratorContext(ctx context.Context, userID uuid.UUID) (GeneratorContext, error) {
	var userCtx GeneratorContext

	income, err := s.income.MonthlyIncome(ctx, userID)
	if err != nil {
		return userCtx, err
	}
	userCtx.MonthlyIncome = income

	since := time.Now().UTC().AddDate(0, -1, 0)
	txs, err := s.feed.ListSince(ctx, userID, since)
	if err != nil {
		return userCtx, err
	}
	categoryTotals := map[string]int64{}
	for _, tx := range txs {
		if tx.Type == transaction.TypeExpense {
			userCtx.MonthlyExpenses += tx.Amount
			categoryTotals[tx.Category] += tx.Amount
		}
	}
	userCtx.TopCategories = topCategories(categoryTotals, 3)

	goals, err := s.goals.ListAll(ctx, userID)
	if err != nil {
		return userCtx, err
	}
	userCtx.Goals = goals
	return userCtx, nil
}

// dueByTime reports whether the clock alone can move the challenge: it is
// past its end date, or its streak has already run long enough to complete.
// The incremental path must evaluate these even when the new transaction
// cannot touch them, or it would lag behind a full pass.
func dueByTime(c *challenge.Challenge, now time.Time) bool {
	if !now.Before(c.EndDate) {
		return true
	}
	return challenge.StreakMatured(*c, now)
}

// transactionAffects reports whether a new transaction can change the
// evaluation outcome of a challenge. Used only to skip work on the
// incremental path; when in doubt it must say true.
func transactionAffects(c *challenge.Challenge, tx transaction.Transaction) bool {
	if tx.OccurredAt.Before(c.StartDate) {
		return false
	}
	switch c.Type {
	case challenge.TypeSavings, challenge.TypeIncomePercentage:
		return tx.Type == transaction.TypeIncome
	case challenge.TypeSpendingLimit:
		if tx.Type != transaction.TypeExpense {
			return false
		}
		return c.Rules.Category == "" || tx.Category == c.Rules.Category
	case challenge.TypeCategoryBan, challenge.TypeStreak:
		return tx.Type == transaction.TypeExpense && tx.Category == c.Rules.Category
	case challenge.TypeGoalContribution:
		// Goal balances move through contributions, not transactions, but a
		// linked transaction may still represent one.
		return true
	}
	return true
}

func topCategories(totals map[string]int64, n int) []string {
	out := make([]string, 0, n)
	for len(out) < n {
		var best string
		var bestTotal int64 = -1
		for cat, total := range totals {
			if total > bestTotal {
				best, bestTotal = cat, total
			}
		}
		if bestTotal < 0 {
			break
		}
		out = append(out, best)
		delete(totals, best)
	}
	return out
}

func statusPtr(s challenge.Status) *challenge.Status {
	return &s
}
