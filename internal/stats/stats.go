package stats

// ChallengeStats is computed on demand from terminal challenge rows, never
// persisted.
type ChallengeStats struct {
	Active       int     `json:"active"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	Expired      int     `json:"expired"`
	PointsEarned int     `json:"points_earned"`
	SuccessRate  float64 `json:"success_rate"` // completed / (completed + failed)
}

type UserStats struct {
	PointsBalance     int   `json:"points_balance"`
	TotalSaved        int64 `json:"total_saved"`
	TotalSpent        int64 `json:"total_spent"`
	ActiveGoals       int   `json:"active_goals"`
	ChallengesWon     int   `json:"challenges_won"`
	CurrentBestStreak int   `json:"current_best_streak"`
}
