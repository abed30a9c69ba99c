package hooks

import (
	"context"
	"testing"

	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/models/reports"
)

func TestUseMilestonesShortCircuits(t *testing.T) {
	tables := models.DemoTables()
	tables["sales_milestones_view"] = []models.Record{}
	h, cb := newTestHooks(tables)

	r := h.UseMilestones(context.Background(), MilestoneQuery{})
	if r.Err != nil || len(r.Data.Days) != 0 {
		t.Fatalf("empty milestones = %+v", r)
	}
	if q := cb.queries(); len(q) != 1 || q[0] != "sales_milestones_view" {
		t.Fatalf("queries = %v, want only the milestone view", q)
	}
}

func TestUseMilestonesCompositeFetch(t *testing.T) {
	h, cb := newTestHooks(nil)

	r := h.UseMilestones(context.Background(), MilestoneQuery{SortBy: reports.SortByDate})
	if r.Err != nil {
		t.Fatalf("UseMilestones: %v", r.Err)
	}
	q := cb.queries()
	if len(q) != 3 || q[0] != "sales_milestones_view" || q[1] != "daily_sales_totals_view" || q[2] != "sales_view" {
		t.Fatalf("queries = %v", q)
	}
	if len(r.Data.Days) != 2 || r.Data.Days[0].Day != "2026-02-24" {
		t.Fatalf("days = %+v", r.Data.Days)
	}
	feb23 := r.Data.Days[1]
	if feb23.TotalCount != 4 || feb23.LastEventClockTime == nil || *feb23.LastEventClockTime != models.NewClockTime(21, 30, 0) {
		t.Fatalf("2026-02-23 = %+v", feb23)
	}
	if r.Data.Axis.Upper != 22 {
		t.Fatalf("axis = %+v", r.Data.Axis)
	}

	// another ordering reuses the same entry
	again := h.UseMilestones(context.Background(), MilestoneQuery{SortBy: reports.SortByTotal, Ascending: true})
	if again.Err != nil || len(cb.queries()) != 3 {
		t.Fatalf("re-sorting refetched: %v", cb.queries())
	}
	if again.Data.Days[0].Day != "2026-02-24" {
		t.Fatalf("ascending by total = %+v", again.Data.Days)
	}
}
