package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

// ClockTime is a time of day in seconds since midnight.
type ClockTime int

func NewClockTime(hour, minute, second int) ClockTime {
	return ClockTime(hour*3600 + minute*60 + second)
}

// ClockTimeOf returns the time of day of t in loc.
func ClockTimeOf(t time.Time, loc *time.Location) ClockTime {
	lt := t.In(loc)
	return NewClockTime(lt.Hour(), lt.Minute(), lt.Second())
}

// Hours is the fractional hour, e.g. 21:30 -> 21.5.
func (c ClockTime) Hours() float64 {
	return float64(c) / 3600
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/3600, (int(c)%3600)/60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

// ParseClockTime reads "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	vals := [3]int{}
	limits := [3]int{24, 60, 60}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.SplitN(p, ".", 2)[0])
		if err != nil || n < 0 || n >= limits[i] {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		vals[i] = n
	}
	return NewClockTime(vals[0], vals[1], vals[2]), nil
}

// Milestone is the instant a day's cumulative transaction count crossed ThresholdCount.
type Milestone struct {
	Day            string    `json:"day"`
	ThresholdCount int       `json:"thresholdCount"`
	AchievedAt     ClockTime `json:"achievedAtClockTime"`
}

type DailyTotal struct {
	Day        string `json:"day"`
	TotalCount int    `json:"totalCount"`
}

// TimedEvent is one raw transaction instant.
type TimedEvent struct {
	Day       string
	ClockTime ClockTime
}

// DayOf formats t as a calendar day in loc.
func DayOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// dayFrom normalizes a day column: a DATE, a date string, or a timestamp.
func dayFrom(row Record, column string, loc *time.Location) (string, bool) {
	if s, ok := row[column].(string); ok && len(s) == len(dayLayout) {
		if _, err := time.Parse(dayLayout, s); err == nil {
			return s, true
		}
	}
	t, ok := row.Time(column)
	if !ok {
		return "", false
	}
	// DATE columns arrive as midnight UTC and must not shift across the zone.
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Location() == time.UTC {
		return t.Format(dayLayout), true
	}
	return DayOf(t, loc), true
}

// ParseMilestone reads a row of the milestone view (day, threshold_count, achieved_at).
// achieved_at may be a time of day or a full timestamp.
func ParseMilestone(row Record, loc *time.Location) (Milestone, error) {
	day, ok := dayFrom(row, "day", loc)
	if !ok {
		return Milestone{}, fmt.Errorf("milestone row without a valid day: %v", row["day"])
	}
	threshold, ok := row.Int("threshold_count")
	if !ok {
		return Milestone{}, fmt.Errorf("milestone row without threshold_count: %v", row["threshold_count"])
	}
	m := Milestone{Day: day, ThresholdCount: threshold}
	raw := row.String("achieved_at")
	if ct, err := ParseClockTime(raw); err == nil {
		m.AchievedAt = ct
	} else if t, ok := row.Time("achieved_at"); ok {
		m.AchievedAt = ClockTimeOf(t, loc)
	} else {
		return Milestone{}, fmt.Errorf("milestone row with invalid achieved_at %q", raw)
	}
	return m, nil
}

// ParseDailyTotal reads a row of the daily totals view (day, total_count).
func ParseDailyTotal(row Record, loc *time.Location) (DailyTotal, error) {
	day, ok := dayFrom(row, "day", loc)
	if !ok {
		return DailyTotal{}, fmt.Errorf("daily total row without a valid day: %v", row["day"])
	}
	total, _ := row.Int("total_count")
	return DailyTotal{Day: day, TotalCount: total}, nil
}

// ParseTimedEvent reads the timestamp column of a raw transaction row.
func ParseTimedEvent(row Record, column string, loc *time.Location) (TimedEvent, bool) {
	t, ok := row.Time(column)
	if !ok {
		return TimedEvent{}, false
	}
	return TimedEvent{Day: DayOf(t, loc), ClockTime: ClockTimeOf(t, loc)}, true
}
