package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// ReportService drives reports from draft to archive.
type ReportService struct {
	*core
}

type BuildReportInput struct {
	ProjectID uint
	RemarkIDs []uint
	Category  models.ReportCategory
}

type RespondInput struct {
	ReportID     uint
	ResponseText string
	// RemarkResponses optionally answers individual remarks of the report.
	RemarkResponses map[uint]string
}

// Build creates a NON_ENVOYE report from the project's validated remarks
// among remarkIDs. Other ids are ignored.
func (s *ReportService) Build(ctx context.Context, actor Actor, input BuildReportInput) (*models.Report, error) {
	if err := Authorize(actor, OpBuildReport, Target{}); err != nil {
		return nil, err
	}
	category := models.ReportCategory(strings.ToLower(strings.TrimSpace(string(input.Category))))
	if category == "" {
		category = models.ReportCategoryStandard
	}
	if _, ok := s.settings.DeadlineFor(string(category)); !ok {
		return nil, invalidArgument("unknown report category %q", category)
	}

	var report *models.Report
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, input.ProjectID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return conflict("project %s is closed (%s)", p.ReferenceCode, p.Status)
		}
		existing, err := tx.ListReports(ctx, p.ProjectID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Status.Live() {
				return conflict("project %s already has report %d in status %s", p.ReferenceCode, r.ReportID, r.Status)
			}
		}

		var selected []*models.Remark
		for _, id := range dedupeIDs(input.RemarkIDs) {
			r, err := tx.GetRemark(ctx, id)
			if isStoreMiss(err) {
				continue
			}
			if err != nil {
				return err
			}
			if r.ProjectID != p.ProjectID || r.Status != models.RemarkValidated || r.ReportID != nil {
				continue
			}
			selected = append(selected, r)
		}
		if len(selected) == 0 {
			return ErrNoValidRemarks
		}

		now := s.now()
		report = &models.Report{
			ProjectID: p.ProjectID,
			Category:  category,
			Status:    models.ReportNotSent,
			CreatedBy: actor.ID,
			CreatedAt: now,
		}
		if err := tx.SaveReport(ctx, report); err != nil {
			return err
		}
		for _, r := range selected {
			if err := r.AttachTo(report.ReportID); err != nil {
				return transitionErr(err)
			}
			r.UpdatedAt = &now
			if err := tx.SaveRemark(ctx, r); err != nil {
				return err
			}
		}
		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: report.ReportID, ProjectID: p.ProjectID, ActorID: actor.ID, To: string(report.Status), At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Dispatch renders and stores the report, then sends it. Rendering or
// storage failure leaves the report NON_ENVOYE.
func (s *ReportService) Dispatch(ctx context.Context, actor Actor, reportID uint) (*models.Report, error) {
	if err := Authorize(actor, OpDispatchReport, Target{}); err != nil {
		return nil, err
	}
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, lookupErr(err, "report", reportID)
	}
	if report.Status != models.ReportNotSent {
		return nil, conflict("report %d is already %s", report.ReportID, report.Status)
	}
	project, err := s.loadProject(ctx, s.store, report.ProjectID)
	if err != nil {
		return nil, err
	}
	if !project.Status.CanTransitionTo(models.ProjectAwaitingResponse) {
		return nil, conflict("project %s cannot await a response from %s", project.ReferenceCode, project.Status)
	}
	window, ok := s.settings.DeadlineFor(string(report.Category))
	if !ok {
		return nil, invalidArgument("unknown report category %q", report.Category)
	}

	remarks, err := s.reportRemarks(ctx, s.store, report)
	if err != nil {
		return nil, err
	}
	if len(remarks) == 0 {
		return nil, ErrNoValidRemarks
	}

	now := s.now()
	deadline := now.Add(window)
	doc := ReportDocument{
		ReportID:         report.ReportID,
		ReferenceCode:    project.ReferenceCode,
		ProjectTitle:     project.Title,
		InvestigatorName: s.displayName(ctx, project.InvestigatorID),
		Category:         string(report.Category),
		SentAt:           now,
		ResponseDeadline: deadline,
	}
	for _, r := range remarks {
		line := ReportRemarkLine{RemarkID: r.RemarkID, Content: r.Content}
		if r.AdminComment != nil {
			line.AdminComment = *r.AdminComment
		}
		doc.Remarks = append(doc.Remarks, line)
	}

	renderCtx, cancel := context.WithTimeout(ctx, s.settings.RenderTimeout)
	data, err := s.renderer.RenderReport(renderCtx, doc)
	cancel()
	if err != nil {
		renderFailures.WithLabelValues("report").Inc()
		return nil, &DependencyError{Collaborator: "renderer", Err: err}
	}
	ref, err := s.files.Store(ctx, fmt.Sprintf("%s-rapport-%d.pdf", project.ReferenceCode, report.ReportID), data)
	if err != nil {
		return nil, &DependencyError{Collaborator: "storage", Err: err}
	}
	hash := ContentHash(data)

	var sent *models.Report
	err = s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, report.ProjectID)
		if err != nil {
			return err
		}
		r, err := s.lockReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if err := r.Transition(models.ReportSent); err != nil {
			return transitionErr(err)
		}
		r.SentAt = &now
		r.ResponseDeadline = &deadline
		r.DocumentRef = &ref
		r.DocumentHash = &hash
		if err := tx.SaveReport(ctx, r); err != nil {
			return err
		}

		p.ResponseDeadline = &deadline
		if err := s.transitionProject(ctx, tx, box, p, models.ProjectAwaitingResponse, actor.ID, "report dispatched"); err != nil {
			return err
		}

		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: r.ReportID, ProjectID: p.ProjectID, ActorID: actor.ID, From: string(models.ReportNotSent), To: string(r.Status), At: now})
		box.notify("Rapport d'évaluation disponible",
			fmt.Sprintf("Le rapport d'évaluation du projet %s « %s » est disponible.\nMerci de répondre avant le %s.",
				p.ReferenceCode, p.Title, utils.FormatFrenchDate(deadline, s.settings.BoardLocation)),
			p.InvestigatorID)
		sent = r
		return nil
	})
	if err != nil {
		if delErr := s.files.Delete(ctx, ref); delErr != nil {
			log.Printf("failed to remove rendered report %s: %v", ref, delErr)
		}
		return nil, err
	}
	reportsDispatched.WithLabelValues(string(sent.Category)).Inc()
	return sent, nil
}

func (s *ReportService) reportRemarks(ctx context.Context, repo store.Repository, report *models.Report) ([]models.Remark, error) {
	all, err := repo.ListRemarks(ctx, report.ProjectID)
	if err != nil {
		return nil, err
	}
	var out []models.Remark
	for _, r := range all {
		if r.IncludedInReport() && *r.ReportID == report.ReportID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *ReportService) displayName(ctx context.Context, userID uint) string {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.User{UserID: userID}.DisplayName()
	}
	return u.DisplayName()
}

// Respond records the investigator's answer. Any report that is not SENT,
// or whose deadline is past, is refused with ErrDeadlinePassed.
func (s *ReportService) Respond(ctx context.Context, actor Actor, input RespondInput) (*models.Report, error) {
	report, err := s.store.GetReport(ctx, input.ReportID)
	if err != nil {
		return nil, lookupErr(err, "report", input.ReportID)
	}
	project, err := s.loadProject(ctx, s.store, report.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpRespondReport, Target{Project: project}); err != nil {
		return nil, err
	}
	text := utils.SanitizeInput(input.ResponseText)
	if text == "" {
		return nil, invalidArgument("response text is required")
	}

	var responded *models.Report
	err = s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, report.ProjectID)
		if err != nil {
			return err
		}
		r, err := s.lockReport(ctx, tx, input.ReportID)
		if err != nil {
			return err
		}
		now := s.now()
		if r.Status != models.ReportSent || r.DeadlinePassed(now) {
			return fmt.Errorf("report %d (%s): %w", r.ReportID, r.Status, ErrDeadlinePassed)
		}
		if err := r.Transition(models.ReportResponded); err != nil {
			return transitionErr(err)
		}
		r.ResponseAt = &now
		r.ResponseText = &text
		if err := tx.SaveReport(ctx, r); err != nil {
			return err
		}

		if len(input.RemarkResponses) > 0 {
			remarks, err := s.reportRemarks(ctx, tx, r)
			if err != nil {
				return err
			}
			for i := range remarks {
				answer, ok := input.RemarkResponses[remarks[i].RemarkID]
				if !ok {
					continue
				}
				answer = utils.SanitizeInput(answer)
				remarks[i].InvestigatorResponse = &answer
				remarks[i].UpdatedAt = &now
				if err := tx.SaveRemark(ctx, &remarks[i]); err != nil {
					return err
				}
			}
		}

		if err := s.transitionProject(ctx, tx, box, p, models.ProjectResponded, actor.ID, "investigator responded"); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: r.ReportID, ProjectID: p.ProjectID, ActorID: actor.ID, From: string(models.ReportSent), To: string(r.Status), At: now})
		box.notifyAdmins("Réponse du chercheur reçue",
			fmt.Sprintf("Le chercheur principal a répondu au rapport du projet %s « %s ».", p.ReferenceCode, p.Title))
		responded = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return responded, nil
}

// Archive closes a RESPONDED or OVERDUE report.
func (s *ReportService) Archive(ctx context.Context, actor Actor, reportID uint) (*models.Report, error) {
	if err := Authorize(actor, OpArchiveReport, Target{}); err != nil {
		return nil, err
	}
	var archived *models.Report
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		r, err := s.lockReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		old := r.Status
		if err := r.Transition(models.ReportArchived); err != nil {
			return transitionErr(err)
		}
		now := s.now()
		r.ArchivedAt = &now
		if err := tx.SaveReport(ctx, r); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: r.ReportID, ProjectID: r.ProjectID, ActorID: actor.ID, From: string(old), To: string(r.Status), At: now})
		archived = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

// DiscardDraft deletes a NON_ENVOYE report and frees its remarks.
func (s *ReportService) DiscardDraft(ctx context.Context, actor Actor, reportID uint) error {
	if err := Authorize(actor, OpDiscardReport, Target{}); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		r, err := s.lockReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if r.Status != models.ReportNotSent {
			return conflict("report %d is %s and cannot be discarded", r.ReportID, r.Status)
		}
		remarks, err := tx.ListRemarks(ctx, r.ProjectID)
		if err != nil {
			return err
		}
		now := s.now()
		for i := range remarks {
			if remarks[i].ReportID == nil || *remarks[i].ReportID != r.ReportID {
				continue
			}
			remarks[i].Detach()
			remarks[i].UpdatedAt = &now
			if err := tx.SaveRemark(ctx, &remarks[i]); err != nil {
				return err
			}
		}
		if err := tx.DeleteReport(ctx, r.ReportID); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventReportStatus, EntityID: r.ReportID, ProjectID: r.ProjectID, ActorID: actor.ID, From: string(r.Status), To: "DISCARDED", At: now})
		return nil
	})
}

func (s *ReportService) Get(ctx context.Context, actor Actor, reportID uint) (*models.Report, error) {
	r, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, lookupErr(err, "report", reportID)
	}
	p, err := s.loadProject(ctx, s.store, r.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ReportService) List(ctx context.Context, actor Actor, projectID uint) ([]models.Report, error) {
	p, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	return s.store.ListReports(ctx, projectID)
}

// Download returns the rendered document of a dispatched report.
func (s *ReportService) Download(ctx context.Context, actor Actor, reportID uint) ([]byte, error) {
	r, err := s.Get(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}
	if r.DocumentRef == nil {
		return nil, fmt.Errorf("rendered document of report %d: %w", reportID, ErrNotFound)
	}
	data, err := s.files.Load(ctx, *r.DocumentRef)
	if err != nil {
		return nil, &DependencyError{Collaborator: "storage", Err: err}
	}
	return data, nil
}
