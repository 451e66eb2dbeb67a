package services

import (
	"context"
	"fmt"
	"sort"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// ReviewService records per-document reviews and reviewer submissions.
type ReviewService struct {
	*core
}

type RecordReviewInput struct {
	DocumentID   uint
	ReviewerID   uint
	Content      string
	RemarkStatus models.RemarkStatus
}

// ReviewerProgress is one reviewer's completion on a project.
type ReviewerProgress struct {
	ReviewerID uint   `json:"reviewer_id"`
	Name       string `json:"name"`
	Reviewed   int    `json:"reviewed"`
	Total      int    `json:"total"`
	Submitted  bool   `json:"submitted"`
}

// RecordReview creates or overwrites the reviewer's draft for a document.
func (s *ReviewService) RecordReview(ctx context.Context, actor Actor, input RecordReviewInput) (*models.DocumentReview, error) {
	doc, err := s.store.GetDocument(ctx, input.DocumentID)
	if err != nil {
		return nil, lookupErr(err, "document", input.DocumentID)
	}
	if _, err := s.store.GetUser(ctx, input.ReviewerID); err != nil {
		return nil, lookupErr(err, "reviewer", input.ReviewerID)
	}
	project, err := s.loadProject(ctx, s.store, doc.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpRecordReview, Target{Project: project, ReviewerID: input.ReviewerID}); err != nil {
		return nil, err
	}
	content := utils.SanitizeInput(input.Content)
	if content == "" {
		return nil, invalidArgument("review content is required")
	}
	if input.RemarkStatus != "" && !input.RemarkStatus.Valid() {
		return nil, invalidArgument("unknown remark status %q", input.RemarkStatus)
	}

	var review *models.DocumentReview
	err = s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		p, err := s.lockProject(ctx, tx, doc.ProjectID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return conflict("project %s is closed (%s)", p.ReferenceCode, p.Status)
		}

		now := s.now()
		existing, err := tx.FindReview(ctx, doc.DocumentID, input.ReviewerID)
		switch {
		case err == nil:
			if existing.Finalized() {
				return conflict("review %d is already finalized", existing.ReviewID)
			}
			existing.UpdatedAt = &now
		case isStoreMiss(err):
			existing = &models.DocumentReview{
				DocumentID: doc.DocumentID,
				ReviewerID: input.ReviewerID,
				ProjectID:  doc.ProjectID,
				State:      models.ReviewDraft,
				CreatedAt:  now,
			}
		default:
			return err
		}
		existing.Content = content
		if input.RemarkStatus != "" {
			existing.RemarkStatus = input.RemarkStatus
		}
		if err := tx.SaveReview(ctx, existing); err != nil {
			return err
		}
		review = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// FinalizeReview locks a single draft without submitting it.
func (s *ReviewService) FinalizeReview(ctx context.Context, actor Actor, documentID, reviewerID uint) (*models.DocumentReview, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, lookupErr(err, "document", documentID)
	}
	project, err := s.loadProject(ctx, s.store, doc.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpFinalizeReview, Target{Project: project, ReviewerID: reviewerID}); err != nil {
		return nil, err
	}

	var review *models.DocumentReview
	err = s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		r, err := tx.FindReview(ctx, documentID, reviewerID)
		if err != nil {
			if isStoreMiss(err) {
				return fmt.Errorf("review of document %d by reviewer %d: %w", documentID, reviewerID, ErrNotFound)
			}
			return err
		}
		if err := r.Advance(models.ReviewFinalized); err != nil {
			return transitionErr(err)
		}
		now := s.now()
		r.UpdatedAt = &now
		if err := tx.SaveReview(ctx, r); err != nil {
			return err
		}
		review = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return review, nil
}

// FinalizeReviewerSubmission submits every review of the reviewer on the
// project. When the last assigned reviewer submits, the project moves to
// EVALUE and admins are told once.
func (s *ReviewService) FinalizeReviewerSubmission(ctx context.Context, actor Actor, projectID, reviewerID uint) error {
	project, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return err
	}
	if err := Authorize(actor, OpSubmitReviews, Target{Project: project, ReviewerID: reviewerID}); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		p, err := s.lockProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return conflict("project %s is closed (%s)", p.ReferenceCode, p.Status)
		}
		docs, err := tx.ListDocuments(ctx, projectID)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("%w: project %s has no documents", ErrIncompleteSubmission, p.ReferenceCode)
		}
		reviews, err := tx.ListReviews(ctx, projectID)
		if err != nil {
			return err
		}

		mine := reviewsByDocument(reviews, reviewerID)
		missing := 0
		for _, d := range docs {
			if _, ok := mine[d.DocumentID]; !ok {
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("%w: %d of %d documents not reviewed", ErrIncompleteSubmission, missing, len(docs))
		}

		now := s.now()
		for _, d := range docs {
			r := mine[d.DocumentID]
			if r.FinalSubmission() {
				continue
			}
			if err := r.Advance(models.ReviewSubmitted); err != nil {
				return transitionErr(err)
			}
			r.SubmittedAt = &now
			r.UpdatedAt = &now
			if err := tx.SaveReview(ctx, r); err != nil {
				return err
			}
			updated := *r
			replaceReview(reviews, updated)
		}
		box.event(LifecycleEvent{Type: EventReviewSubmit, EntityID: reviewerID, ProjectID: projectID, ActorID: actor.ID, To: string(models.ReviewSubmitted), At: now})

		if p.Status != models.ProjectUnderEvaluation || !allReviewersSubmitted(p.ReviewerIDs(), docs, reviews) {
			return nil
		}
		if err := s.transitionProject(ctx, tx, box, p, models.ProjectEvaluated, actor.ID, "all reviewers submitted"); err != nil {
			return err
		}
		box.notifyAdmins("Évaluation terminée",
			fmt.Sprintf("Tous les évaluateurs ont soumis leur évaluation du projet %s « %s ».", p.ReferenceCode, p.Title))
		return nil
	})
}

func reviewsByDocument(reviews []models.DocumentReview, reviewerID uint) map[uint]*models.DocumentReview {
	out := make(map[uint]*models.DocumentReview)
	for i := range reviews {
		if reviews[i].ReviewerID == reviewerID {
			r := reviews[i]
			out[r.DocumentID] = &r
		}
	}
	return out
}

func replaceReview(reviews []models.DocumentReview, r models.DocumentReview) {
	for i := range reviews {
		if reviews[i].ReviewID == r.ReviewID {
			reviews[i] = r
			return
		}
	}
}

func reviewerSubmitted(reviewerID uint, docs []models.Document, reviews []models.DocumentReview) bool {
	mine := reviewsByDocument(reviews, reviewerID)
	for _, d := range docs {
		r, ok := mine[d.DocumentID]
		if !ok || !r.FinalSubmission() {
			return false
		}
	}
	return len(docs) > 0
}

func allReviewersSubmitted(reviewerIDs []uint, docs []models.Document, reviews []models.DocumentReview) bool {
	if len(reviewerIDs) == 0 {
		return false
	}
	for _, id := range reviewerIDs {
		if !reviewerSubmitted(id, docs, reviews) {
			return false
		}
	}
	return true
}

// Progress reports per-reviewer completion on a project.
func (s *ReviewService) Progress(ctx context.Context, actor Actor, projectID uint) ([]ReviewerProgress, error) {
	p, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	docs, err := s.store.ListDocuments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	reviews, err := s.store.ListReviews(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ids := p.ReviewerIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]ReviewerProgress, 0, len(ids))
	for _, id := range ids {
		row := ReviewerProgress{ReviewerID: id, Total: len(docs), Name: fmt.Sprintf("Utilisateur #%d", id)}
		if u, err := s.store.GetUser(ctx, id); err == nil {
			row.Name = u.DisplayName()
		}
		mine := reviewsByDocument(reviews, id)
		for _, d := range docs {
			if _, ok := mine[d.DocumentID]; ok {
				row.Reviewed++
			}
		}
		row.Submitted = reviewerSubmitted(id, docs, reviews)
		out = append(out, row)
	}
	return out, nil
}

// List returns the project's reviews. Reviewers only see their own.
func (s *ReviewService) List(ctx context.Context, actor Actor, projectID uint) ([]models.DocumentReview, error) {
	p, err := s.loadProject(ctx, s.store, projectID)
	if err != nil {
		return nil, err
	}
	if err := Authorize(actor, OpViewProject, Target{Project: p}); err != nil {
		return nil, err
	}
	reviews, err := s.store.ListReviews(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return reviews, nil
	}
	own := make([]models.DocumentReview, 0, len(reviews))
	for _, r := range reviews {
		if r.ReviewerID == actor.ID {
			own = append(own, r)
		}
	}
	return own, nil
}
