package activity

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidWindow is returned for non-positive histogram windows.
var ErrInvalidWindow = errors.New("window must be at least one day")

// DayBucket is one calendar day of the activity heat-map.
type DayBucket struct {
	DateKey string `json:"date"`
	Count   int    `json:"count"`
}

// Histogram buckets records into the window days ending today, oldest first.
// Every day of the window is present; records before it are ignored and
// records after today count toward today, as they do for CurrentStreak.
func Histogram(records []Record, window int, now time.Time) ([]DayBucket, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	loc := now.Location()
	today := KeyOf(now, loc)
	first := shiftKey(today, -(window - 1))

	buckets := make([]DayBucket, window)
	index := make(map[string]int, window)
	for i := range buckets {
		key := shiftKey(first, i)
		buckets[i] = DayBucket{DateKey: key}
		index[key] = i
	}
	for _, r := range records {
		key, err := DateKey(r.Timestamp, loc)
		if err != nil {
			return nil, err
		}
		if key > today {
			key = today
		}
		if i, ok := index[key]; ok {
			buckets[i].Count++
		}
	}
	return buckets, nil
}

// MaxCount returns the busiest day count of the buckets.
func MaxCount(buckets []DayBucket) int {
	m := 0
	for _, b := range buckets {
		if b.Count > m {
			m = b.Count
		}
	}
	return m
}

// Intensity maps a day count to a heat-map level 0..4. The scale never
// saturates below four recordings a day.
func Intensity(count, max int) int {
	if count <= 0 {
		return 0
	}
	if max < 4 {
		max = 4
	}
	level := int(math.Ceil(float64(count) / float64(max) * 4))
	if level > 4 {
		level = 4
	}
	return level
}
