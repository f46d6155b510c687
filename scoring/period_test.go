package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-league/models"
)

func TestCurrentPeriodBoundsWeekly(t *testing.T) {
	tests := []struct {
		name      string
		reference string
		want      Bounds
	}{
		{"wednesday", "2024-01-10", Bounds{"2024-01-08", "2024-01-14"}},
		{"monday", "2024-01-08", Bounds{"2024-01-08", "2024-01-14"}},
		{"sunday closes the week", "2024-01-14", Bounds{"2024-01-08", "2024-01-14"}},
		{"across month", "2024-03-01", Bounds{"2024-02-26", "2024-03-03"}},
		{"across year", "2025-01-01", Bounds{"2024-12-30", "2025-01-05"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CurrentPeriodBounds(models.PeriodWeekly, tt.reference)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentPeriodBoundsMonthly(t *testing.T) {
	tests := []struct {
		reference string
		want      Bounds
	}{
		{"2024-01-31", Bounds{"2024-01-01", "2024-01-31"}},
		{"2024-02-10", Bounds{"2024-02-01", "2024-02-29"}},
		{"2023-02-10", Bounds{"2023-02-01", "2023-02-28"}},
		{"2024-04-01", Bounds{"2024-04-01", "2024-04-30"}},
		{"2024-12-25", Bounds{"2024-12-01", "2024-12-31"}},
	}

	for _, tt := range tests {
		got, err := CurrentPeriodBounds(models.PeriodMonthly, tt.reference)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.reference)
	}
}

func TestWeeklyWindowAlwaysMondayToSunday(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 400; i++ {
		ref := FormatDate(day.AddDate(0, 0, i))
		b, err := CurrentPeriodBounds(models.PeriodWeekly, ref)
		require.NoError(t, err)

		start, _ := ParseDate(b.Start)
		end, _ := ParseDate(b.End)
		assert.Equal(t, time.Monday, start.Weekday(), ref)
		assert.Equal(t, time.Sunday, end.Weekday(), ref)
		assert.Equal(t, 6*24*time.Hour, end.Sub(start), ref)
		assert.True(t, b.Contains(ref), ref)
	}
}

func TestNextPeriodBoundsIsContiguous(t *testing.T) {
	for _, period := range []models.Period{models.PeriodWeekly, models.PeriodMonthly} {
		b, err := CurrentPeriodBounds(period, "2024-01-17")
		require.NoError(t, err)

		for i := 0; i < 30; i++ {
			next, err := NextPeriodBounds(period, b.End)
			require.NoError(t, err)

			prevEnd, _ := ParseDate(b.End)
			nextStart, _ := ParseDate(next.Start)
			assert.Equal(t, prevEnd.AddDate(0, 0, 1), nextStart, "period %s after %s", period, b.End)
			assert.Greater(t, next.End, next.Start)
			b = next
		}
	}
}

func TestNextPeriodBoundsMonthly(t *testing.T) {
	next, err := NextPeriodBounds(models.PeriodMonthly, "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, Bounds{"2024-02-01", "2024-02-29"}, next)

	next, err = NextPeriodBounds(models.PeriodMonthly, "2024-12-31")
	require.NoError(t, err)
	assert.Equal(t, Bounds{"2025-01-01", "2025-01-31"}, next)
}

func TestPeriodBoundsErrors(t *testing.T) {
	_, err := CurrentPeriodBounds("daily", "2024-01-01")
	assert.ErrorIs(t, err, ErrUnknownPeriod)

	_, err = NextPeriodBounds(models.PeriodWeekly, "2024/01/01")
	assert.Error(t, err)
}

func TestDaysRemaining(t *testing.T) {
	loc := time.FixedZone("ART", -3*3600)

	tests := []struct {
		name string
		end  string
		now  time.Time
		want int
	}{
		{"last day morning", "2024-01-14", time.Date(2024, 1, 14, 9, 0, 0, 0, loc), 1},
		{"day before", "2024-01-14", time.Date(2024, 1, 13, 9, 0, 0, 0, loc), 2},
		{"start of week", "2024-01-14", time.Date(2024, 1, 8, 0, 0, 0, 0, loc), 7},
		{"expired", "2024-01-14", time.Date(2024, 1, 15, 0, 0, 1, 0, loc), 0},
		{"garbage", "soon", time.Date(2024, 1, 15, 0, 0, 0, 0, loc), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysRemaining(tt.end, tt.now))
		})
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-14", Today(now, time.FixedZone("ART", -3*3600)))
	assert.Equal(t, "2024-01-15", Today(now, time.UTC))
}
