package reports

import (
	"math"
	"testing"

	"github.com/mmdatafocus/shopdash_backend/models"
)

func ct(h, m int) models.ClockTime {
	return models.NewClockTime(h, m, 0)
}

func TestAxisUpperBound(t *testing.T) {
	tests := []struct {
		name     string
		observed []models.ClockTime
		want     float64
	}{
		{"nothing observed keeps the closing hour", nil, 21},
		{"early day keeps the closing hour", []models.ClockTime{ct(9, 0), ct(19, 59)}, 21},
		{"latest at 21:00 extends one hour", []models.ClockTime{ct(9, 0), ct(21, 0)}, 22},
		{"latest at 22:40", []models.ClockTime{ct(22, 40)}, 23},
		{"clamped to midnight", []models.ClockTime{ct(23, 59)}, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAxis(8, 21, tt.observed)
			if a.Lower != 8 || a.Upper != tt.want {
				t.Fatalf("axis = %+v, want [8,%v]", a, tt.want)
			}
		})
	}
}

func TestAxisPosition(t *testing.T) {
	a := Axis{Lower: 8, Upper: 22}
	if got := a.Position(ct(21, 30)); math.Abs(got-96.4285714) > 1e-4 {
		t.Fatalf("Position(21:30) = %v, want ~96.43", got)
	}
	if got := a.Position(ct(8, 0)); got != 0 {
		t.Fatalf("Position(08:00) = %v", got)
	}
	if got := a.Position(ct(22, 0)); got != 100 {
		t.Fatalf("Position(22:00) = %v", got)
	}
	if a.Contains(ct(7, 59)) || a.Contains(ct(22, 1)) {
		t.Fatalf("off-axis times reported as contained")
	}
	if p := a.Position(ct(7, 0)); p >= 0 {
		t.Fatalf("time before opening should map below 0, got %v", p)
	}
}

func TestAggregateMilestones(t *testing.T) {
	milestones := []models.Milestone{
		{Day: "2026-02-23", ThresholdCount: 3, AchievedAt: ct(17, 5)},
		{Day: "2026-02-23", ThresholdCount: 1, AchievedAt: ct(9, 12)},
		{Day: "2026-02-24", ThresholdCount: 1, AchievedAt: ct(7, 30)},
	}
	totals := []models.DailyTotal{{Day: "2026-02-23", TotalCount: 12}}
	var events []models.TimedEvent
	for h := 9; h <= 21; h++ {
		events = append(events, models.TimedEvent{Day: "2026-02-23", ClockTime: ct(h, 0)})
	}
	events = append(events, models.TimedEvent{Day: "2026-02-25", ClockTime: ct(23, 0)})

	tl := AggregateMilestones(milestones, totals, events, TimelineOptions{OpenHour: 8, CloseHour: 21})

	if tl.Axis.Upper != 22 {
		t.Fatalf("upper bound = %v, want 22 (events of days without milestones do not count)", tl.Axis.Upper)
	}
	if len(tl.Days) != 2 {
		t.Fatalf("got %d days, want 2", len(tl.Days))
	}

	// default order is by date, newest first
	feb24, feb23 := tl.Days[0], tl.Days[1]
	if feb24.Day != "2026-02-24" || feb23.Day != "2026-02-23" {
		t.Fatalf("order = %s, %s", tl.Days[0].Day, tl.Days[1].Day)
	}
	if feb24.TotalCount != 0 || feb24.LastEventClockTime != nil || feb24.LastEventPosition != nil {
		t.Fatalf("day without totals or events = %+v", feb24)
	}
	if feb24.Milestones[0].OnAxis {
		t.Fatalf("07:30 milestone should be off-axis")
	}

	if feb23.TotalCount != 12 {
		t.Fatalf("total = %d", feb23.TotalCount)
	}
	if feb23.LastEventClockTime == nil || *feb23.LastEventClockTime != ct(21, 0) {
		t.Fatalf("last event = %v", feb23.LastEventClockTime)
	}
	if feb23.Milestones[0].Threshold != 1 || feb23.Milestones[1].Threshold != 3 {
		t.Fatalf("milestones not ordered by threshold: %+v", feb23.Milestones)
	}
	if !feb23.Milestones[1].OnAxis || math.Abs(feb23.Milestones[1].Position-tl.Axis.Position(ct(17, 5))) > 1e-9 {
		t.Fatalf("milestone position = %+v", feb23.Milestones[1])
	}
}

func TestAggregateMilestonesOrdering(t *testing.T) {
	milestones := []models.Milestone{
		{Day: "2026-02-21", ThresholdCount: 1, AchievedAt: ct(10, 0)},
		{Day: "2026-02-22", ThresholdCount: 1, AchievedAt: ct(10, 0)},
		{Day: "2026-02-23", ThresholdCount: 1, AchievedAt: ct(10, 0)},
	}
	totals := []models.DailyTotal{
		{Day: "2026-02-21", TotalCount: 5},
		{Day: "2026-02-22", TotalCount: 9},
		{Day: "2026-02-23", TotalCount: 5},
	}
	events := []models.TimedEvent{
		{Day: "2026-02-21", ClockTime: ct(20, 0)},
		{Day: "2026-02-22", ClockTime: ct(18, 0)},
		{Day: "2026-02-23", ClockTime: ct(20, 0)},
	}
	tests := []struct {
		name string
		opts TimelineOptions
		want []string
	}{
		{"date descending", TimelineOptions{SortBy: SortByDate}, []string{"2026-02-23", "2026-02-22", "2026-02-21"}},
		{"date ascending", TimelineOptions{SortBy: SortByDate, Ascending: true}, []string{"2026-02-21", "2026-02-22", "2026-02-23"}},
		{"total descending, ties newest first", TimelineOptions{SortBy: SortByTotal}, []string{"2026-02-22", "2026-02-23", "2026-02-21"}},
		{"total ascending, ties newest first", TimelineOptions{SortBy: SortByTotal, Ascending: true}, []string{"2026-02-23", "2026-02-21", "2026-02-22"}},
		{"last event descending", TimelineOptions{SortBy: SortByLastEvent}, []string{"2026-02-23", "2026-02-21", "2026-02-22"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.OpenHour, tt.opts.CloseHour = 8, 21
			tl := AggregateMilestones(milestones, totals, events, tt.opts)
			for i, d := range tl.Days {
				if d.Day != tt.want[i] {
					t.Fatalf("position %d = %s, want %v", i, d.Day, tt.want)
				}
			}
		})
	}
}

func TestAggregateMilestonesEmpty(t *testing.T) {
	tl := AggregateMilestones(nil, nil, nil, TimelineOptions{OpenHour: 8, CloseHour: 21})
	if tl.Days == nil || len(tl.Days) != 0 || tl.Axis.Upper != 21 {
		t.Fatalf("empty timeline = %+v", tl)
	}
}
