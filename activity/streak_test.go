package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)

// daysAgo builds records at noon n days before fixedNow.
func daysAgo(ns ...int) []Record {
	out := make([]Record, 0, len(ns))
	for _, n := range ns {
		ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC).AddDate(0, 0, -n)
		out = append(out, Record{Timestamp: ts.Format(time.RFC3339)})
	}
	return out
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    int
	}{
		{name: "empty", records: nil, want: 0},
		{name: "single today", records: daysAgo(0), want: 1},
		{name: "single yesterday", records: daysAgo(1), want: 1},
		{name: "single two days ago", records: daysAgo(2), want: 0},
		{name: "today yesterday and day before", records: daysAgo(0, 1, 2), want: 3},
		{name: "run stops at gap", records: daysAgo(1, 3), want: 1},
		{name: "duplicates collapse", records: daysAgo(0, 0, 0, 1, 1), want: 2},
		{name: "unordered input", records: daysAgo(2, 0, 1, 4, 5), want: 3},
		{name: "long old run is broken", records: daysAgo(2, 3, 4, 5, 6, 7), want: 0},
		{name: "run from yesterday", records: daysAgo(1, 2, 3, 5), want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CurrentStreak(tt.records, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentStreakFutureRecordCountsAsToday(t *testing.T) {
	records := append(daysAgo(1), Record{Timestamp: fixedNow.Add(48 * time.Hour).Format(time.RFC3339)})
	got, err := CurrentStreak(records, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestCurrentStreakUsesNowLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	// 2025-03-10 20:00 UTC is already 2025-03-11 in Tokyo, so a record made at
	// 2025-03-09 16:00 UTC (2025-03-10 in Tokyo) is "yesterday" there.
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC).In(tokyo)
	records := []Record{{Timestamp: "2025-03-09T16:00:00Z"}}
	got, err := CurrentStreak(records, now)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestCurrentStreakInvalidTimestamp(t *testing.T) {
	records := append(daysAgo(0), Record{Timestamp: "not-a-date"})
	_, err := CurrentStreak(records, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidDate))
}

func TestLongestStreak(t *testing.T) {
	got, err := LongestStreak(daysAgo(0, 5, 6, 7, 8, 10, 11), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 4, got)

	got, err = LongestStreak(nil, time.UTC)
	require.NoError(t, err)
	assert.Zero(t, got)
}

type stamped string

func (s stamped) ActivityTimestamp() string { return string(s) }

func TestRecordsOf(t *testing.T) {
	records := RecordsOf([]stamped{"2025-03-10T00:00:00Z", "2025-03-09T00:00:00Z"})
	require.Len(t, records, 2)
	assert.Equal(t, "2025-03-09T00:00:00Z", records[1].Timestamp)
}
