package hooks

import (
	"context"

	"github.com/mmdatafocus/shopdash_backend/cache"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/models/reports"
	"github.com/sirupsen/logrus"
)

const milestoneTimelineKind = "timeline"

// MilestoneSource is everything the timeline needs, fetched together under one cache entry.
type MilestoneSource struct {
	Milestones []models.Record `json:"milestones"`
	Totals     []models.Record `json:"totals"`
	Events     []models.Record `json:"events"`
}

type MilestoneQuery struct {
	SortBy    reports.TimelineSortKey
	Ascending bool
	// DateRange optionally limits the milestone days.
	DateRange *models.DateRange
}

type MilestoneResult struct {
	Data    reports.Timeline
	Loading bool
	Err     error
}

// UseMilestones builds the milestone timeline. Sorting happens after the cache, so every
// ordering of the same days shares one entry.
func (h *Hooks) UseMilestones(ctx context.Context, q MilestoneQuery) MilestoneResult {
	var dr *models.DateRange
	if !q.DateRange.IsZero() {
		dr = q.DateRange
	}

	var src *MilestoneSource
	key := h.gate(ctx, cache.CompositeKey(models.ResourceMilestones, milestoneTimelineKind, dr))
	if key.IsNull() {
		src = demoMilestoneSource()
	} else {
		r := cache.Fetch(ctx, h.cache, key, func(ctx context.Context) (*MilestoneSource, error) {
			return h.fetchMilestoneSource(ctx, dr)
		})
		if r.Err != nil || r.Data == nil {
			return MilestoneResult{Data: h.aggregate(&MilestoneSource{}, q), Loading: r.Loading, Err: r.Err}
		}
		src = r.Data
	}
	return MilestoneResult{Data: h.aggregate(src, q)}
}

// fetchMilestoneSource reads the milestones, then the totals and raw sales of the days they cover.
// No milestones means no further calls.
func (h *Hooks) fetchMilestoneSource(ctx context.Context, dr *models.DateRange) (*MilestoneSource, error) {
	milestoneOpts := models.QueryOptions{SortColumn: "day", SortOrder: models.SortAsc}
	if dr != nil {
		milestoneOpts.DateColumn = "day"
		milestoneOpts.DateRange = &models.DateRange{Start: dr.Start, End: dr.End}
	}
	first, err := h.builder.Query(ctx, models.ResourceMilestones, milestoneOpts)
	if err != nil {
		return nil, err
	}
	src := &MilestoneSource{Milestones: first.Rows, Totals: []models.Record{}, Events: []models.Record{}}
	if len(first.Rows) == 0 {
		return src, nil
	}

	start, end, ok := h.dayBounds(first.Rows)
	if !ok {
		return src, nil
	}

	totals, err := h.builder.Query(ctx, models.ResourceDailyTotals, models.QueryOptions{
		DateColumn: "day",
		DateRange:  &models.DateRange{Start: start, End: end},
	})
	if err != nil {
		return nil, err
	}
	src.Totals = totals.Rows

	sales := models.MustResource(models.ResourceSales)
	events, err := h.builder.Query(ctx, sales.Name, models.QueryOptions{
		DateColumn: sales.DateColumn,
		DateRange:  &models.DateRange{Start: start, End: end + " 23:59:59"},
		Select:     []string{sales.DateColumn},
	})
	if err != nil {
		return nil, err
	}
	src.Events = events.Rows
	return src, nil
}

func (h *Hooks) dayBounds(rows []models.Record) (string, string, bool) {
	var start, end string
	for _, row := range rows {
		m, err := models.ParseMilestone(row, h.location)
		if err != nil {
			continue
		}
		if start == "" || m.Day < start {
			start = m.Day
		}
		if end == "" || m.Day > end {
			end = m.Day
		}
	}
	return start, end, start != ""
}

func demoMilestoneSource() *MilestoneSource {
	return &MilestoneSource{
		Milestones: models.DemoList(models.MustResource(models.ResourceMilestones)),
		Totals:     models.DemoList(models.MustResource(models.ResourceDailyTotals)),
		Events:     models.DemoList(models.MustResource(models.ResourceSales)),
	}
}

// aggregate parses the rows and builds the timeline. Malformed rows are skipped and logged.
func (h *Hooks) aggregate(src *MilestoneSource, q MilestoneQuery) reports.Timeline {
	logger := config.GetLogger()

	milestones := make([]models.Milestone, 0, len(src.Milestones))
	for _, row := range src.Milestones {
		m, err := models.ParseMilestone(row, h.location)
		if err != nil {
			logger.WithFields(logrus.Fields{"module": "hooks", "funcName": "aggregate"}).Warn(err.Error())
			continue
		}
		milestones = append(milestones, m)
	}
	totals := make([]models.DailyTotal, 0, len(src.Totals))
	for _, row := range src.Totals {
		t, err := models.ParseDailyTotal(row, h.location)
		if err != nil {
			logger.WithFields(logrus.Fields{"module": "hooks", "funcName": "aggregate"}).Warn(err.Error())
			continue
		}
		totals = append(totals, t)
	}
	column := models.MustResource(models.ResourceSales).DateColumn
	events := make([]models.TimedEvent, 0, len(src.Events))
	for _, row := range src.Events {
		if e, ok := models.ParseTimedEvent(row, column, h.location); ok {
			events = append(events, e)
		}
	}

	return reports.AggregateMilestones(milestones, totals, events, reports.TimelineOptions{
		OpenHour:  h.openHour,
		CloseHour: h.closeHour,
		SortBy:    q.SortBy,
		Ascending: q.Ascending,
	})
}
