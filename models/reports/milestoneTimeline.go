package reports

import (
	"math"
	"sort"

	"github.com/mmdatafocus/shopdash_backend/models"
)

type TimelineSortKey string

const (
	SortByDate      TimelineSortKey = "date"
	SortByTotal     TimelineSortKey = "total"
	SortByLastEvent TimelineSortKey = "last"
)

func ParseTimelineSortKey(s string) (TimelineSortKey, bool) {
	switch TimelineSortKey(s) {
	case SortByDate, SortByTotal, SortByLastEvent:
		return TimelineSortKey(s), true
	case "":
		return SortByDate, true
	}
	return "", false
}

type TimelineOptions struct {
	OpenHour  int
	CloseHour int
	SortBy    TimelineSortKey
	// Days are sorted descending unless Ascending is set.
	Ascending bool
}

// Axis is the visible span of the day, in hours.
type Axis struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// NewAxis starts at the opening hour and ends at the later of the closing hour and
// the hour after the latest observed time, never past midnight.
func NewAxis(openHour, closeHour int, observed []models.ClockTime) Axis {
	upper := float64(closeHour)
	for _, c := range observed {
		if h := math.Floor(c.Hours()) + 1; h > upper {
			upper = h
		}
	}
	if upper > 24 {
		upper = 24
	}
	return Axis{Lower: float64(openHour), Upper: upper}
}

// Position maps c linearly onto [0,100]. Times off the axis fall outside that range.
func (a Axis) Position(c models.ClockTime) float64 {
	return (c.Hours() - a.Lower) / (a.Upper - a.Lower) * 100
}

func (a Axis) Contains(c models.ClockTime) bool {
	h := c.Hours()
	return h >= a.Lower && h <= a.Upper
}

type MilestonePoint struct {
	Threshold int              `json:"threshold"`
	ClockTime models.ClockTime `json:"clockTime"`
	Position  float64          `json:"position"`
	// OnAxis is false for points that must not be drawn.
	OnAxis bool `json:"onAxis"`
}

type DayTimeline struct {
	Day                string            `json:"day"`
	TotalCount         int               `json:"totalCount"`
	Milestones         []MilestonePoint  `json:"milestones"`
	LastEventClockTime *models.ClockTime `json:"lastEventClockTime"`
	LastEventPosition  *float64          `json:"lastEventPosition"`
}

type Timeline struct {
	Axis Axis          `json:"axis"`
	Days []DayTimeline `json:"days"`
}

// AggregateMilestones groups milestone rows by day, attaching the day's total (0 when absent)
// and the time of its latest raw event.
func AggregateMilestones(milestones []models.Milestone, totals []models.DailyTotal, events []models.TimedEvent, opts TimelineOptions) Timeline {
	totalByDay := make(map[string]int, len(totals))
	for _, t := range totals {
		totalByDay[t.Day] = t.TotalCount
	}
	lastByDay := make(map[string]models.ClockTime)
	for _, e := range events {
		if cur, ok := lastByDay[e.Day]; !ok || e.ClockTime > cur {
			lastByDay[e.Day] = e.ClockTime
		}
	}

	byDay := make(map[string]*DayTimeline)
	order := make([]string, 0)
	observed := make([]models.ClockTime, 0, len(milestones))
	for _, m := range milestones {
		day, ok := byDay[m.Day]
		if !ok {
			day = &DayTimeline{Day: m.Day, TotalCount: totalByDay[m.Day], Milestones: []MilestonePoint{}}
			if last, ok := lastByDay[m.Day]; ok {
				last := last
				day.LastEventClockTime = &last
				observed = append(observed, last)
			}
			byDay[m.Day] = day
			order = append(order, m.Day)
		}
		day.Milestones = append(day.Milestones, MilestonePoint{Threshold: m.ThresholdCount, ClockTime: m.AchievedAt})
		observed = append(observed, m.AchievedAt)
	}

	axis := NewAxis(opts.OpenHour, opts.CloseHour, observed)
	days := make([]DayTimeline, 0, len(order))
	for _, d := range order {
		day := byDay[d]
		sort.SliceStable(day.Milestones, func(i, j int) bool {
			return day.Milestones[i].Threshold < day.Milestones[j].Threshold
		})
		for i := range day.Milestones {
			p := &day.Milestones[i]
			p.Position = axis.Position(p.ClockTime)
			p.OnAxis = axis.Contains(p.ClockTime)
		}
		if day.LastEventClockTime != nil && axis.Contains(*day.LastEventClockTime) {
			pos := axis.Position(*day.LastEventClockTime)
			day.LastEventPosition = &pos
		}
		days = append(days, *day)
	}

	sortDays(days, opts.SortBy, opts.Ascending)
	return Timeline{Axis: axis, Days: days}
}

func sortDays(days []DayTimeline, key TimelineSortKey, ascending bool) {
	sort.SliceStable(days, func(i, j int) bool {
		a, b := days[i], days[j]
		var c int
		switch key {
		case SortByTotal:
			c = compareInt(a.TotalCount, b.TotalCount)
		case SortByLastEvent:
			c = compareInt(lastEventValue(a), lastEventValue(b))
		}
		if c == 0 && key != SortByDate && key != "" {
			// ties always fall back to the most recent day first
			return a.Day > b.Day
		}
		if c == 0 {
			c = compareString(a.Day, b.Day)
		}
		if ascending {
			return c < 0
		}
		return c > 0
	})
}

func lastEventValue(d DayTimeline) int {
	if d.LastEventClockTime == nil {
		return -1
	}
	return int(*d.LastEventClockTime)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
