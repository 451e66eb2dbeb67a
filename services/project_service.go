package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"

	"github.com/google/uuid"
)

// ProjectService handles intake: submission, documents, reviewer assignment
// and the final board decision.
type ProjectService struct {
	*core
}

type SubmitProjectInput struct {
	Title             string
	CoInvestigatorIDs []uint
}

type AddDocumentInput struct {
	ProjectID uint
	Filename  string
	MimeType  string
	Data      []byte
}

func newReferenceCode(year int) string {
	return fmt.Sprintf("CERBO-%d-%s", year, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (s *ProjectService) Submit(ctx context.Context, actor Actor, input SubmitProjectInput) (*models.Project, error) {
	if err := Authorize(actor, OpSubmitProject, Target{}); err != nil {
		return nil, err
	}
	title := utils.SanitizeInput(input.Title)
	if title == "" {
		return nil, invalidArgument("title is required")
	}

	now := s.now()
	project := &models.Project{
		ReferenceCode:  newReferenceCode(now.Year()),
		Title:          title,
		SubmittedAt:    now,
		Status:         models.ProjectSubmitted,
		InvestigatorID: actor.ID,
		CreatedAt:      now,
	}
	for _, id := range dedupeIDs(input.CoInvestigatorIDs) {
		if id == actor.ID {
			continue
		}
		if _, err := s.store.GetUser(ctx, id); err != nil {
			return nil, lookupErr(err, "user", id)
		}
		project.Members = append(project.Members, models.ProjectMember{
			UserID:    id,
			Role:      models.MemberCoInvestigator,
			CreatedAt: now,
		})
	}

	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		if err := tx.CreateProject(ctx, project); err != nil {
			return err
		}
		if err := tx.AppendStatusHistory(ctx, &models.ProjectStatusHistory{
			ProjectID: project.ProjectID,
			NewStatus: models.ProjectSubmitted,
			ChangedBy: &actor.ID,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventProjectStatus, EntityID: project.ProjectID, ProjectID: project.ProjectID, ActorID: actor.ID, To: string(project.Status), At: now})
		box.notifyAdmins("Nouveau projet soumis",
			fmt.Sprintf("Le projet %s « %s » a été soumis au comité.", project.ReferenceCode, project.Title))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) AddDocument(ctx context.Context, actor Actor, input AddDocumentInput) (*models.Document, error) {
	project, err := s.loadProject(ctx, s.store, input.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpAddDocument, Target{Project: project}); err != nil {
		return nil, err
	}
	if err := acceptsDocuments(project); err != nil {
		return nil, err
	}
	name := utils.SanitizeFilename(input.Filename)
	if name == "" {
		return nil, invalidArgument("filename is required")
	}
	if len(input.Data) == 0 {
		return nil, invalidArgument("document %q is empty", name)
	}

	ref, err := s.files.Store(ctx, name, input.Data)
	if err != nil {
		return nil, &DependencyError{Collaborator: "storage", Err: err}
	}

	doc := &models.Document{
		ProjectID:    project.ProjectID,
		OriginalName: name,
		MimeType:     strings.TrimSpace(input.MimeType),
		FileSize:     int64(len(input.Data)),
		StoredRef:    ref,
		FileHash:     ContentHash(input.Data),
		UploadedBy:   actor.ID,
		UploadedAt:   s.now(),
	}
	err = s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		p, err := s.lockProject(ctx, tx, project.ProjectID)
		if err != nil {
			return err
		}
		if err := acceptsDocuments(p); err != nil {
			return err
		}
		return tx.CreateDocument(ctx, doc)
	})
	if err != nil {
		if delErr := s.files.Delete(ctx, ref); delErr != nil {
			log.Printf("failed to remove orphan file %s: %v", ref, delErr)
		}
		return nil, err
	}
	return doc, nil
}

// acceptsDocuments refuses uploads once every reviewer has submitted.
func acceptsDocuments(p *models.Project) error {
	switch p.Status {
	case models.ProjectSubmitted, models.ProjectUnderEvaluation:
		return nil
	}
	return conflict("project %s no longer accepts documents (%s)", p.ReferenceCode, p.Status)
}

// AssignReviewers adds reviewers to a project and opens its evaluation.
func (s *ProjectService) AssignReviewers(ctx context.Context, actor Actor, projectID uint, reviewerIDs []uint) (*models.Project, error) {
	if err := Authorize(actor, OpAssignReviewers, Target{}); err != nil {
		return nil, err
	}
	ids := dedupeIDs(reviewerIDs)
	if len(ids) == 0 {
		return nil, invalidArgument("at least one reviewer is required")
	}
	for _, id := range ids {
		u, err := s.store.GetUser(ctx, id)
		if err != nil {
			return nil, lookupErr(err, "reviewer", id)
		}
		if u.Role != models.RoleReviewer {
			return nil, notFound("reviewer", id)
		}
	}

	var project *models.Project
	var added []uint
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return conflict("project %s is closed (%s)", p.ReferenceCode, p.Status)
		}

		now := s.now()
		var members []models.ProjectMember
		for _, id := range ids {
			if p.HasMember(id, models.MemberReviewer) {
				continue
			}
			members = append(members, models.ProjectMember{ProjectID: p.ProjectID, UserID: id, Role: models.MemberReviewer, CreatedAt: now})
			added = append(added, id)
		}
		if err := tx.AddProjectMembers(ctx, members); err != nil {
			return err
		}
		p.Members = append(p.Members, members...)

		if p.Status == models.ProjectSubmitted {
			if err := s.transitionProject(ctx, tx, box, p, models.ProjectUnderEvaluation, actor.ID, "reviewers assigned"); err != nil {
				return err
			}
		}
		if len(added) > 0 {
			box.notify("Nouveau projet à évaluer",
				fmt.Sprintf("Le projet %s « %s » vous a été confié pour évaluation.", p.ReferenceCode, p.Title), added...)
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Decide records the board's final decision.
func (s *ProjectService) Decide(ctx context.Context, actor Actor, projectID uint, decision models.ProjectStatus, reason string) (*models.Project, error) {
	if err := Authorize(actor, OpDecideProject, Target{}); err != nil {
		return nil, err
	}
	if decision != models.ProjectApproved && decision != models.ProjectRejected {
		return nil, invalidArgument("decision must be %s or %s", models.ProjectApproved, models.ProjectRejected)
	}
	reason = utils.SanitizeInput(reason)

	var project *models.Project
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if err := s.transitionProject(ctx, tx, box, p, decision, actor.ID, reason); err != nil {
			return err
		}
		title := "Projet approuvé"
		body := fmt.Sprintf("Le comité a approuvé le projet %s « %s ».", p.ReferenceCode, p.Title)
		if decision == models.ProjectRejected {
			title = "Projet refusé"
			body = fmt.Sprintf("Le comité a refusé le projet %s « %s ».", p.ReferenceCode, p.Title)
		}
		if reason != "" {
			body += "\n\nMotif : " + reason
		}
		box.notify(title, body, p.InvestigatorID)
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Delete removes a project that has not reached a meeting or a dispatched
// report, with its documents, reviews, remarks and draft reports.
func (s *ProjectService) Delete(ctx context.Context, actor Actor, projectID uint) error {
	if err := Authorize(actor, OpDeleteProject, Target{}); err != nil {
		return err
	}

	var refs []string
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		entries, err := tx.ListAgendaByProject(ctx, projectID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return conflict("project %s is on a meeting agenda", p.ReferenceCode)
		}
		reports, err := tx.ListReports(ctx, projectID)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if r.Status != models.ReportNotSent {
				return conflict("project %s has a dispatched report", p.ReferenceCode)
			}
		}

		for _, r := range reports {
			if err := tx.DeleteReport(ctx, r.ReportID); err != nil {
				return err
			}
		}
		remarks, err := tx.ListRemarks(ctx, projectID)
		if err != nil {
			return err
		}
		for _, r := range remarks {
			if err := tx.DeleteRemark(ctx, r.RemarkID); err != nil {
				return err
			}
		}
		reviews, err := tx.ListReviews(ctx, projectID)
		if err != nil {
			return err
		}
		for _, r := range reviews {
			if err := tx.DeleteReview(ctx, r.ReviewID); err != nil {
				return err
			}
		}
		docs, err := tx.ListDocuments(ctx, projectID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := tx.DeleteDocument(ctx, d.DocumentID); err != nil {
				return err
			}
			refs = append(refs, d.StoredRef)
		}
		if err := tx.DeleteProject(ctx, projectID); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventProjectStatus, EntityID: projectID, ProjectID: projectID, ActorID: actor.ID, From: string(p.Status), To: "DELETED", At: s.now()})
		return nil
	})
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if err := s.files.Delete(ctx, ref); err != nil {
			log.Printf("failed to remove stored document %s: %v", ref, err)
		}
	}
	return nil
}

func (s *ProjectService) Get(ctx context.Context, actor Actor, projectID uint) (*models.Project, error) {
	p, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns the projects the actor may see, optionally filtered by status.
func (s *ProjectService) List(ctx context.Context, actor Actor, status models.ProjectStatus) ([]models.Project, error) {
	if status != "" && !status.Valid() {
		return nil, invalidArgument("unknown project status %q", status)
	}
	all, err := s.store.ListProjects(ctx, status)
	if err != nil {
		return nil, err
	}
	visible := make([]models.Project, 0, len(all))
	for i := range all {
		if Authorize(actor, OpViewProject, Target{Project: &all[i]}) == nil {
			visible = append(visible, all[i])
		}
	}
	return visible, nil
}

func (s *ProjectService) ListDocuments(ctx context.Context, actor Actor, projectID uint) ([]models.Document, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, projectID)
}

// DownloadDocument returns the document record and its stored bytes.
func (s *ProjectService) DownloadDocument(ctx context.Context, actor Actor, documentID uint) (*models.Document, []byte, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, lookupErr(err, "document", documentID)
	}
	if _, err := s.Get(ctx, actor, doc.ProjectID); err != nil {
		return nil, nil, err
	}
	data, err := s.files.Load(ctx, doc.StoredRef)
	if err != nil {
		return nil, nil, &DependencyError{Collaborator: "storage", Err: err}
	}
	return doc, data, nil
}

func (s *ProjectService) History(ctx context.Context, actor Actor, projectID uint) ([]models.ProjectStatusHistory, error) {
	if _, err := s.Get(ctx, actor, projectID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListStatusHistory(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].HistoryID < rows[j].HistoryID })
	return rows, nil
}

// isStoreMiss is used where a missing row is an expected outcome.
func isStoreMiss(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
