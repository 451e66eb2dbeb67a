package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// DeadlineSweepService moves SENT reports past their deadline to OVERDUE and
// rejects their projects.
type DeadlineSweepService struct {
	*core
}

type DeadlineSweepInput struct {
	TriggerSource string
	// LockName guards against concurrent runners; empty disables the lock.
	LockName string
	DryRun   bool
}

type DeadlineSweepSummary struct {
	Checked          int `json:"checked"`
	Overdue          int `json:"overdue"`
	ProjectsRejected int `json:"projects_rejected"`
	Skipped          int `json:"skipped"`
	Failed           int `json:"failed"`
}

type overdueAction struct {
	ReportID  uint
	ProjectID uint
	Deadline  time.Time
}

// planDeadlineSweep selects the SENT reports whose deadline is before now.
// It reads nothing but its arguments.
func planDeadlineSweep(now time.Time, reports []models.Report) []overdueAction {
	var actions []overdueAction
	for _, r := range reports {
		if r.Status != models.ReportSent || r.ResponseAt != nil || !r.DeadlinePassed(now) {
			continue
		}
		actions = append(actions, overdueAction{ReportID: r.ReportID, ProjectID: r.ProjectID, Deadline: *r.ResponseDeadline})
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].ReportID < actions[j].ReportID })
	return actions
}

// Run applies one sweep. Each report is handled in its own transaction; a
// failure is counted and logged and the sweep moves on.
func (s *DeadlineSweepService) Run(ctx context.Context, input *DeadlineSweepInput) (*DeadlineSweepSummary, error) {
	if input == nil {
		return nil, errors.New("input is nil")
	}

	if input.LockName != "" {
		release, err := s.store.AcquireLock(ctx, input.LockName)
		if err != nil {
			if errors.Is(err, store.ErrLockHeld) {
				deadlineSweepRuns.WithLabelValues("skipped").Inc()
				return nil, ErrDeadlineSweepAlreadyRunning
			}
			deadlineSweepRuns.WithLabelValues("error").Inc()
			return nil, err
		}
		defer func() {
			if relErr := release(); relErr != nil {
				log.Printf("failed to release deadline sweep lock: %v", relErr)
			}
		}()
	}

	now := s.now()
	sent, err := s.store.ListReportsByStatus(ctx, models.ReportSent)
	if err != nil {
		deadlineSweepRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	summary := &DeadlineSweepSummary{Checked: len(sent)}
	actions := planDeadlineSweep(now, sent)
	for _, a := range actions {
		if input.DryRun {
			log.Printf("[dry-run] report %d of project %d is overdue since %s", a.ReportID, a.ProjectID, a.Deadline.Format(time.RFC3339))
			summary.Overdue++
			continue
		}
		applied, rejected, err := s.apply(ctx, now, a)
		if err != nil {
			summary.Failed++
			log.Printf("deadline sweep failed for report %d (project %d): %v", a.ReportID, a.ProjectID, err)
			continue
		}
		if !applied {
			summary.Skipped++
			continue
		}
		summary.Overdue++
		reportsOverdue.Inc()
		if rejected {
			summary.ProjectsRejected++
		}
	}

	result := "success"
	if summary.Failed > 0 {
		result = "partial"
	}
	deadlineSweepRuns.WithLabelValues(result).Inc()
	log.Printf("deadline sweep (%s) checked=%d overdue=%d rejected=%d skipped=%d failed=%d",
		input.TriggerSource, summary.Checked, summary.Overdue, summary.ProjectsRejected, summary.Skipped, summary.Failed)
	return summary, nil
}

// apply re-checks the report with its project and report rows locked, in
// that order, so a response or another runner that got there first wins.
// It notifies only when it moved the report.
func (s *DeadlineSweepService) apply(ctx context.Context, now time.Time, a overdueAction) (applied, rejected bool, err error) {
	err = s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, a.ProjectID)
		if err != nil {
			return err
		}
		r, err := s.lockReport(ctx, tx, a.ReportID)
		if err != nil {
			return err
		}
		if r.Status != models.ReportSent || !r.DeadlinePassed(now) {
			return nil
		}
		if err := r.Transition(models.ReportOverdue); err != nil {
			return transitionErr(err)
		}
		if err := tx.SaveReport(ctx, r); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: r.ReportID, ProjectID: r.ProjectID, From: string(models.ReportSent), To: string(r.Status), At: now})

		if p.Status != models.ProjectRejected && p.Status.CanTransitionTo(models.ProjectRejected) {
			if err := s.transitionProject(ctx, tx, box, p, models.ProjectRejected, 0, "response deadline passed"); err != nil {
				return err
			}
			rejected = true
		}
		box.notify("Délai de réponse dépassé",
			fmt.Sprintf("Le délai de réponse au rapport du projet %s « %s » a expiré le %s. Le projet est refusé.",
				p.ReferenceCode, p.Title, utils.FormatFrenchDate(*r.ResponseDeadline, s.settings.BoardLocation)),
			p.InvestigatorID)
		applied = true
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return applied, rejected, nil
}
