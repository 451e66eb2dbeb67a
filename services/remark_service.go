package services

import (
	"context"
	"fmt"
	"strings"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// RemarkService curates project-level remarks distilled from reviews.
type RemarkService struct {
	*core
}

// Promote merges reviews of one project into a PENDING remark.
func (s *RemarkService) Promote(ctx context.Context, actor Actor, reviewIDs []uint) (*models.Remark, error) {
	if err := Authorize(actor, OpPromoteRemark, Target{}); err != nil {
		return nil, err
	}
	ids := dedupeIDs(reviewIDs)
	if len(ids) == 0 {
		return nil, invalidArgument("at least one review is required")
	}

	var projectID uint
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		r, err := s.store.GetReview(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "review", id)
		}
		if projectID == 0 {
			projectID = r.ProjectID
		} else if r.ProjectID != projectID {
			return nil, invalidArgument("reviews belong to different projects")
		}
		if text := strings.TrimSpace(r.Content); text != "" {
			parts = append(parts, text)
		}
	}
	if _, err := s.loadProject(ctx, s.store, projectID); err != nil {
		return nil, err
	}

	content := SummarizeOrIdentity(ctx, s.summarizer, strings.Join(parts, "\n\n"))
	now := s.now()
	remark := &models.Remark{
		ProjectID:       projectID,
		Content:         content,
		Status:          models.RemarkPending,
		SourceReviewIDs: models.EncodeReviewIDs(ids),
		CreatedAt:       now,
	}
	if err := s.store.SaveRemark(ctx, remark); err != nil {
		return nil, err
	}
	return remark, nil
}

// SetStatus applies a curation decision. A remark inside a dispatched report
// is frozen; one inside a draft that stops being VALIDATED leaves the draft.
func (s *RemarkService) SetStatus(ctx context.Context, actor Actor, remarkID uint, status models.RemarkStatus, comment *string) (*models.Remark, error) {
	if err := Authorize(actor, OpSetRemarkStatus, Target{}); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, invalidArgument("unknown remark status %q", status)
	}

	var remark *models.Remark
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		r, err := tx.GetRemark(ctx, remarkID)
		if err != nil {
			return lookupErr(err, "remark", remarkID)
		}
		if r.ReportID != nil {
			report, err := tx.LockReport(ctx, *r.ReportID)
			if err != nil && !isStoreMiss(err) {
				return err
			}
			if err == nil && report.Status != models.ReportNotSent {
				return conflict("remark %d belongs to report %d which is %s", r.RemarkID, report.ReportID, report.Status)
			}
		}

		old := r.Status
		r.SetStatus(status, actor.ID, s.now())
		if comment != nil {
			c := utils.SanitizeInput(*comment)
			r.AdminComment = &c
		}
		if err := tx.SaveRemark(ctx, r); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventRemarkStatus, EntityID: r.RemarkID, ProjectID: r.ProjectID, ActorID: actor.ID, From: string(old), To: string(status), At: s.now()})
		remark = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remark, nil
}

// UpdateContent lets an admin reword a remark that is not yet dispatched.
func (s *RemarkService) UpdateContent(ctx context.Context, actor Actor, remarkID uint, content string) (*models.Remark, error) {
	if err := Authorize(actor, OpSetRemarkStatus, Target{}); err != nil {
		return nil, err
	}
	content = utils.SanitizeInput(content)
	if content == "" {
		return nil, invalidArgument("remark content is required")
	}

	var remark *models.Remark
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		r, err := tx.GetRemark(ctx, remarkID)
		if err != nil {
			return lookupErr(err, "remark", remarkID)
		}
		if r.ReportID != nil {
			if report, err := tx.LockReport(ctx, *r.ReportID); err == nil && report.Status != models.ReportNotSent {
				return conflict("remark %d belongs to report %d which is %s", r.RemarkID, report.ReportID, report.Status)
			}
		}
		now := s.now()
		r.Content = content
		r.UpdatedAt = &now
		if err := tx.SaveRemark(ctx, r); err != nil {
			return err
		}
		remark = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return remark, nil
}

func (s *RemarkService) List(ctx context.Context, actor Actor, projectID uint) ([]models.Remark, error) {
	p, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	remarks, err := s.store.ListRemarks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list remarks: %w", err)
	}
	if actor.IsAdmin() {
		return remarks, nil
	}
	// Outside the board only remarks that reached a report are shown.
	shown := make([]models.Remark, 0, len(remarks))
	for _, r := range remarks {
		if r.IncludedInReport() {
			shown = append(shown, r)
		}
	}
	return shown, nil
}
