package scoring

import "habit-league/models"

// Evaluation is the outcome of a round.
type Evaluation struct {
	Ranking  []RankingEntry `json:"ranking"`
	WinnerID *string        `json:"winner_id"`
	IsTie    bool           `json:"is_tie"`
}

// EvaluateRound ranks the members over the round window and picks the winner.
//
// Nobody wins when the leader has zero points. Two leaders equal on both points
// and count make a tie, which also has no winner.
func EvaluateRound(round models.Round, members []models.Member, completions []models.Completion) Evaluation {
	window := Bounds{Start: round.StartDate, End: round.EndDate}
	ranking := ScoreUsers(members, completions, window, LevelPoints)
	SortRanking(ranking)

	eval := Evaluation{Ranking: ranking}
	if len(ranking) == 0 || ranking[0].Points == 0 {
		return eval
	}
	if len(ranking) > 1 &&
		ranking[0].Points == ranking[1].Points &&
		ranking[0].Count == ranking[1].Count {
		eval.IsTie = true
		return eval
	}
	winner := ranking[0].Member.ID
	eval.WinnerID = &winner
	return eval
}
