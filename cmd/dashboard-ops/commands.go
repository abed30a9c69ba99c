package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmdatafocus/shopdash_backend/audit"
	"github.com/mmdatafocus/shopdash_backend/hooks"
	"github.com/mmdatafocus/shopdash_backend/models"
	"github.com/mmdatafocus/shopdash_backend/models/reports"
	"github.com/mmdatafocus/shopdash_backend/utils"
	"github.com/mmdatafocus/shopdash_backend/workflow"
	"github.com/spf13/cobra"
)

const rollbackConfirmation = "ROLLBACK"

// --- diff ---

var diffCmd = &cobra.Command{
	Use:   "diff <audit-id>",
	Short: "Print the meaningful changes of one audit entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		return runDiff(cmd.Context(), e, args[0])
	},
}

func loadAuditRecord(ctx context.Context, e *env, id string) (*models.AuditRecord, error) {
	d := e.hooks.UseDetails(ctx, models.ResourceAuditLog, id)
	if d.Err != nil {
		return nil, d.Err
	}
	if len(d.Data) == 0 {
		return nil, fmt.Errorf("audit entry %s: %w", id, utils.ErrorRecordNotFound)
	}
	return models.ParseAuditRecord(d.Data[0])
}

func runDiff(ctx context.Context, e *env, id string) error {
	rec, err := loadAuditRecord(ctx, e, id)
	if err != nil {
		return err
	}
	s := audit.Summarize(rec)
	fmt.Fprintf(e.out, "#%d %s %s by %s at %s\n", rec.ID, rec.Action, rec.TableName, rec.Actor, rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(e.out, "%s (%s)\n", s.Headline(2), s.Kind)
	for _, c := range s.Changes {
		fmt.Fprintf(e.out, "  %-24s %v -> %v\n", c.Field, c.From, c.To)
	}
	return nil
}

// --- rollback ---

var rollbackConfirm string

var rollbackCmd = &cobra.Command{
	Use:   "rollback <audit-id>",
	Short: "Revert one audit entry",
	Long: `Revert one audit entry through the backend procedure.

Without --confirm=ROLLBACK the entry is only printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		return runRollback(cmd.Context(), e, args[0], rollbackConfirm)
	},
}

func init() {
	rollbackCmd.Flags().StringVar(&rollbackConfirm, "confirm", "", "type ROLLBACK to proceed")
}

func runRollback(ctx context.Context, e *env, id string, confirm string) error {
	auditID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid audit id %q", id)
	}
	if err := runDiff(ctx, e, id); err != nil {
		return err
	}
	if strings.TrimSpace(confirm) != rollbackConfirmation {
		fmt.Fprintln(e.out, "dry run; set --confirm=ROLLBACK to proceed")
		return nil
	}
	rec, err := loadAuditRecord(ctx, e, id)
	if err != nil {
		return err
	}

	result, err := e.rollback.Rollback(ctx, auditID)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("rollback rejected: %s", result.Error)
	}
	e.cache.Apply(ctx, workflow.RollbackInvalidation(rec.TableName, result))
	msg := result.Message
	if msg == "" {
		msg = "reverted"
	}
	fmt.Fprintf(e.out, "audit entry %d: %s\n", auditID, msg)
	return nil
}

// --- timeline ---

var (
	timelineSort string
	timelineAsc  bool
	timelineFrom string
	timelineTo   string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the sales milestone timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		sortBy, ok := reports.ParseTimelineSortKey(timelineSort)
		if !ok {
			return fmt.Errorf("invalid --sort %q (date, total or last)", timelineSort)
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		q := hooks.MilestoneQuery{SortBy: sortBy, Ascending: timelineAsc}
		if timelineFrom != "" || timelineTo != "" {
			q.DateRange = &models.DateRange{Start: timelineFrom, End: timelineTo}
		}
		return runTimeline(cmd.Context(), e, q)
	},
}

func init() {
	timelineCmd.Flags().StringVar(&timelineSort, "sort", "date", "sort key: date, total or last")
	timelineCmd.Flags().BoolVar(&timelineAsc, "asc", false, "sort ascending")
	timelineCmd.Flags().StringVar(&timelineFrom, "from", "", "first day (YYYY-MM-DD)")
	timelineCmd.Flags().StringVar(&timelineTo, "to", "", "last day (YYYY-MM-DD)")
}

func runTimeline(ctx context.Context, e *env, q hooks.MilestoneQuery) error {
	r := e.hooks.UseMilestones(ctx, q)
	if r.Err != nil {
		return r.Err
	}
	fmt.Fprintf(e.out, "axis %02.0f:00-%02.0f:00\n", r.Data.Axis.Lower, r.Data.Axis.Upper)
	for _, d := range r.Data.Days {
		last := "-"
		if d.LastEventClockTime != nil {
			last = d.LastEventClockTime.String()
		}
		points := make([]string, 0, len(d.Milestones))
		for _, m := range d.Milestones {
			p := fmt.Sprintf("#%d@%s", m.Threshold, m.ClockTime)
			if !m.OnAxis {
				p += "(off-axis)"
			}
			points = append(points, p)
		}
		fmt.Fprintf(e.out, "%s  total=%-4d last=%s  %s\n", d.Day, d.TotalCount, last, strings.Join(points, " "))
	}
	return nil
}
