package scoring

import (
	"sort"

	"habit-league/models"
)

// LevelPoints maps habit level to points. Lower levels are harder and worth more.
var LevelPoints = map[int]int{
	1: 30,
	2: 20,
	3: 10,
}

// PointsForLevel returns the points a completion of a habit at level is worth.
func PointsForLevel(level int) int {
	return LevelPoints[level]
}

// RankingEntry is one member's standing in a round.
type RankingEntry struct {
	Member models.Member `json:"user"`
	Points int           `json:"points"`
	Count  int           `json:"count"`
}

// ScoreUsers totals points per member over the approved completions that fall inside
// window. Every member gets an entry, including members without completions.
//
// The result is ordered by points only; see SortRanking for the full tie-break order.
func ScoreUsers(members []models.Member, completions []models.Completion, window Bounds, levelPoints map[int]int) []RankingEntry {
	if levelPoints == nil {
		levelPoints = LevelPoints
	}

	entries := make([]RankingEntry, len(members))
	index := make(map[string]int, len(members))
	for i, m := range members {
		entries[i] = RankingEntry{Member: m}
		index[m.ID] = i
	}

	for _, c := range completions {
		if c.Status != models.StatusApproved || !window.Contains(c.Date) {
			continue
		}
		i, ok := index[c.MemberID]
		if !ok || c.Habit == nil {
			continue
		}
		entries[i].Points += levelPoints[c.Habit.Level]
		entries[i].Count++
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].Points > entries[b].Points
	})
	return entries
}

// SortRanking orders entries by points, then by completion count, keeping the
// existing order between full ties.
func SortRanking(entries []RankingEntry) {
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Points != entries[b].Points {
			return entries[a].Points > entries[b].Points
		}
		return entries[a].Count > entries[b].Count
	})
}
