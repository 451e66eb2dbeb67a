package services

import (
	"testing"

	"cerbo-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitProjectNotifiesAdminsAndRecordsHistory(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Projects.Submit(f.ctx, actorOf(f.pi), SubmitProjectInput{Title: "  Essai clinique  ", CoInvestigatorIDs: []uint{f.coInv.UserID, f.coInv.UserID, f.pi.UserID}})
	require.NoError(t, err)
	assert.Equal(t, "Essai clinique", p.Title)
	assert.Equal(t, models.ProjectSubmitted, p.Status)
	assert.Regexp(t, `^CERBO-2026-[0-9a-f]{8}$`, p.ReferenceCode)
	assert.Equal(t, []uint{f.coInv.UserID}, p.CoInvestigatorIDs())
	assert.Equal(t, 1, f.notifier.count(f.admin.UserID, "Nouveau projet soumis"))

	history, err := f.svc.Projects.History(f.ctx, actorOf(f.coInv), p.ProjectID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ProjectSubmitted, history[0].NewStatus)
}

func TestSubmitProjectValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Projects.Submit(f.ctx, actorOf(f.r1), SubmitProjectInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Projects.Submit(f.ctx, actorOf(f.pi), SubmitProjectInput{Title: " "})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Projects.Submit(f.ctx, actorOf(f.pi), SubmitProjectInput{Title: "x", CoInvestigatorIDs: []uint{404}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddDocumentStoresContent(t *testing.T) {
	f := newFixture(t)
	p, docs := f.projectUnderEvaluation(1)
	require.Len(t, docs, 1)
	assert.Equal(t, "annexe-1.pdf", docs[0].OriginalName)
	assert.Equal(t, ContentHash([]byte("document 1")), docs[0].FileHash)
	assert.Equal(t, 1, f.files.Len())

	doc, data, err := f.svc.Projects.DownloadDocument(f.ctx, actorOf(f.coInv), docs[0].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, docs[0].DocumentID, doc.DocumentID)
	assert.Equal(t, []byte("document 1"), data)

	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.coInv), AddDocumentInput{ProjectID: p.ProjectID, Filename: "a.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{ProjectID: p.ProjectID, Filename: "../", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{ProjectID: p.ProjectID, Filename: "vide.pdf"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAddDocumentRefusedOnceEvaluated(t *testing.T) {
	f := newFixture(t)
	p, docs := f.projectUnderEvaluation(1, f.r1)

	// Still under evaluation: the reviewer now has one more document to review.
	_, err := f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{ProjectID: p.ProjectID, Filename: "avenant.pdf", Data: []byte("avenant")})
	require.NoError(t, err)
	all, err := f.store.ListDocuments(f.ctx, p.ProjectID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, d := range all {
		_, err := f.svc.Reviews.RecordReview(f.ctx, actorOf(f.r1), RecordReviewInput{DocumentID: d.DocumentID, ReviewerID: f.r1.UserID, Content: "Rien à signaler"})
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Reviews.FinalizeReviewerSubmission(f.ctx, actorOf(f.r1), p.ProjectID, f.r1.UserID))
	require.Equal(t, models.ProjectEvaluated, f.project(p.ProjectID).Status)

	stored := f.files.Len()
	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{ProjectID: p.ProjectID, Filename: "tardif.pdf", Data: []byte("tardif")})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.admin), AddDocumentInput{ProjectID: p.ProjectID, Filename: "tardif.pdf", Data: []byte("tardif")})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, stored, f.files.Len())
	all, err = f.store.ListDocuments(f.ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Len(t, all, len(docs)+1)
	assert.Equal(t, models.ProjectEvaluated, f.project(p.ProjectID).Status)
}

func TestAssignReviewers(t *testing.T) {
	f := newFixture(t)
	p, _ := f.projectUnderEvaluation(1)
	require.Equal(t, models.ProjectSubmitted, p.Status)

	_, err := f.svc.Projects.AssignReviewers(f.ctx, actorOf(f.pi), p.ProjectID, []uint{f.r1.UserID})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.Projects.AssignReviewers(f.ctx, actorOf(f.admin), p.ProjectID, []uint{f.coInv.UserID})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.Projects.AssignReviewers(f.ctx, actorOf(f.admin), p.ProjectID, []uint{f.r1.UserID})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectUnderEvaluation, got.Status)

	got, err = f.svc.Projects.AssignReviewers(f.ctx, actorOf(f.admin), p.ProjectID, []uint{f.r1.UserID, f.r2.UserID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{f.r1.UserID, f.r2.UserID}, got.ReviewerIDs())
	assert.Equal(t, 1, f.notifier.count(f.r1.UserID, "Nouveau projet à évaluer"))
	assert.Equal(t, 1, f.notifier.count(f.r2.UserID, "Nouveau projet à évaluer"))

	stored := f.project(p.ProjectID)
	assert.Len(t, stored.ReviewerIDs(), 2)
}

func TestDecideProject(t *testing.T) {
	f := newFixture(t)
	p, _ := f.projectUnderEvaluation(1, f.r1)

	_, err := f.svc.Projects.Decide(f.ctx, actorOf(f.admin), p.ProjectID, models.ProjectEvaluated, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// EN_EVALUATION cannot be approved directly.
	_, err = f.svc.Projects.Decide(f.ctx, actorOf(f.admin), p.ProjectID, models.ProjectApproved, "")
	assert.ErrorIs(t, err, ErrConflict)

	got, err := f.svc.Projects.Decide(f.ctx, actorOf(f.admin), p.ProjectID, models.ProjectRejected, "Hors périmètre")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectRejected, got.Status)
	assert.Equal(t, 1, f.notifier.count(f.pi.UserID, "Projet refusé"))

	_, err = f.svc.Projects.Decide(f.ctx, actorOf(f.admin), p.ProjectID, models.ProjectApproved, "")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{ProjectID: p.ProjectID, Filename: "a.pdf", Data: []byte("x")})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDeleteProjectCascades(t *testing.T) {
	f := newFixture(t)
	p, docs := f.projectUnderEvaluation(2, f.r1)
	_, err := f.svc.Reviews.RecordReview(f.ctx, actorOf(f.r1), RecordReviewInput{DocumentID: docs[0].DocumentID, ReviewerID: f.r1.UserID, Content: "avis"})
	require.NoError(t, err)
	remarks := f.validatedRemarks(p.ProjectID, 1)
	_, err = f.svc.Reports.Build(f.ctx, actorOf(f.admin), BuildReportInput{ProjectID: p.ProjectID, RemarkIDs: remarkIDs(remarks)})
	require.NoError(t, err)

	require.NoError(t, f.svc.Projects.Delete(f.ctx, actorOf(f.admin), p.ProjectID))

	_, err = f.svc.Projects.Get(f.ctx, actorOf(f.admin), p.ProjectID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.files.Len())
	reviews, err := f.store.ListReviews(f.ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
	reports, err := f.store.ListReports(f.ctx, p.ProjectID)
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestDeleteProjectRefusedOnceDispatchedOrScheduled(t *testing.T) {
	f := newFixture(t)
	p, _ := f.projectUnderEvaluation(1, f.r1)
	f.dispatchedReport(p)

	err := f.svc.Projects.Delete(f.ctx, actorOf(f.admin), p.ProjectID)
	assert.ErrorIs(t, err, ErrConflict)

	other, _ := f.projectUnderEvaluation(1, f.r1)
	meetings, err := f.svc.Meetings.GenerateYearSchedule(f.ctx, actorOf(f.admin), 2026, true)
	require.NoError(t, err)
	_, err = f.svc.Agenda.Add(f.ctx, actorOf(f.admin), meetings[len(meetings)-1].MeetingID, other.ProjectID)
	require.NoError(t, err)

	err = f.svc.Projects.Delete(f.ctx, actorOf(f.admin), other.ProjectID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestListProjectsFiltersByVisibility(t *testing.T) {
	f := newFixture(t)
	p, _ := f.projectUnderEvaluation(0, f.r1)
	f.projectUnderEvaluation(0)

	all, err := f.svc.Projects.List(f.ctx, actorOf(f.admin), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.Projects.List(f.ctx, actorOf(f.r1), "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ProjectID, mine[0].ProjectID)

	none, err := f.svc.Projects.List(f.ctx, actorOf(f.r2), "")
	require.NoError(t, err)
	assert.Empty(t, none)

	submitted, err := f.svc.Projects.List(f.ctx, actorOf(f.admin), models.ProjectSubmitted)
	require.NoError(t, err)
	assert.Len(t, submitted, 1)

	_, err = f.svc.Projects.List(f.ctx, actorOf(f.admin), "UNKNOWN")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.Projects.Get(f.ctx, actorOf(f.r2), p.ProjectID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
