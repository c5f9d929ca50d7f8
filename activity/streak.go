package activity

import (
	"sort"
	"time"
)

// Record is a single timestamped activity.
type Record struct {
	Timestamp string `json:"timestamp"`
}

// Timestamped is implemented by rows that can be counted as activity.
type Timestamped interface {
	ActivityTimestamp() string
}

// RecordsOf adapts any timestamped rows to activity records.
func RecordsOf[T Timestamped](items []T) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, Record{Timestamp: it.ActivityTimestamp()})
	}
	return out
}

// distinctDays returns the distinct day keys of records in loc, newest first.
// Days after today are folded onto today.
func distinctDays(records []Record, loc *time.Location, today string) ([]string, error) {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		key, err := DateKey(r.Timestamp, loc)
		if err != nil {
			return nil, err
		}
		if today != "" && key > today {
			key = today
		}
		seen[key] = struct{}{}
	}
	days := make([]string, 0, len(seen))
	for k := range seen {
		days = append(days, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// CurrentStreak counts consecutive active days ending today or yesterday.
// When the newest active day is two or more days before today the streak is
// zero, however long the earlier run was.
func CurrentStreak(records []Record, now time.Time) (int, error) {
	loc := now.Location()
	today := KeyOf(now, loc)
	days, err := distinctDays(records, loc, today)
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}
	if gap := dayGap(days[0], today); gap > 1 {
		return 0, nil
	}
	streak := 1
	for i := 1; i < len(days); i++ {
		if dayGap(days[i], days[i-1]) != 1 {
			break
		}
		streak++
	}
	return streak, nil
}

// LongestStreak returns the longest run of consecutive active days in the history.
func LongestStreak(records []Record, loc *time.Location) (int, error) {
	days, err := distinctDays(records, loc, "")
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}
	best, run := 1, 1
	for i := 1; i < len(days); i++ {
		if dayGap(days[i], days[i-1]) == 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best, nil
}
