package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cerbo-api/config"
	"cerbo-api/models"
	"cerbo-api/store"

	"github.com/stretchr/testify/require"
)

type sentNotice struct {
	RecipientID uint
	Title       string
	Body        string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
}

func (n *recordingNotifier) Notify(_ context.Context, recipientID uint, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotice{RecipientID: recipientID, Title: title, Body: body})
	return nil
}

func (n *recordingNotifier) count(recipientID uint, title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.RecipientID == recipientID && s.Title == title {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) countTitle(title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Title == title {
			c++
		}
	}
	return c
}

type stubRenderer struct {
	mu      sync.Mutex
	err     error
	reports []ReportDocument
	minutes []MinutesRecord
}

func (r *stubRenderer) RenderReport(_ context.Context, doc ReportDocument) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.reports = append(r.reports, doc)
	return []byte(fmt.Sprintf("%%PDF report %d", doc.ReportID)), nil
}

func (r *stubRenderer) RenderMinutes(_ context.Context, rec MinutesRecord) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.minutes = append(r.minutes, rec)
	return []byte("%PDF minutes " + rec.Meeting.Label), nil
}

type recordingAudit struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (a *recordingAudit) Record(_ context.Context, e LifecycleEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, string) (string, error) {
	return "", errors.New("model unavailable")
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *store.MemoryStore
	files    *MemoryFileStore
	notifier *recordingNotifier
	renderer *stubRenderer
	audit    *recordingAudit
	clock    *fakeClock
	settings config.Settings
	svc      *Services

	admin, pi, coInv, r1, r2, r3 models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewMemoryStore()
	require.NoError(t, err)

	settings := config.DefaultSettings()
	settings.BoardLocation = time.UTC

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    s,
		files:    NewMemoryFileStore(),
		notifier: &recordingNotifier{},
		renderer: &stubRenderer{},
		audit:    &recordingAudit{},
		clock:    &fakeClock{now: time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)},
		settings: settings,
	}
	f.svc = f.servicesOn(s)

	f.admin = f.user("Alice", "Admin", models.RoleAdmin)
	f.pi = f.user("Paul", "Investigateur", models.RoleInvestigator)
	f.coInv = f.user("Chloé", "Co", models.RoleInvestigator)
	f.r1 = f.user("Rémi", "Un", models.RoleReviewer)
	f.r2 = f.user("Rose", "Deux", models.RoleReviewer)
	f.r3 = f.user("Raoul", "Trois", models.RoleReviewer)
	return f
}

// servicesOn builds services sharing the fixture's collaborators over st.
func (f *fixture) servicesOn(st store.Store) *Services {
	return New(Deps{
		Store:      st,
		Files:      f.files,
		Notifier:   f.notifier,
		Renderer:   f.renderer,
		Summarizer: failingSummarizer{},
		Audit:      f.audit,
		Settings:   f.settings,
		Now:        f.clock.Now,
		Async:      func(fn func()) { fn() },
	})
}

func (f *fixture) user(first, last, role string) models.User {
	f.t.Helper()
	u := &models.User{FirstName: first, LastName: last, Email: fmt.Sprintf("%s.%s@univ.example.org", first, last), Role: role}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u))
	return *u
}

func actorOf(u models.User) Actor {
	return Actor{ID: u.UserID, Email: u.Email, Roles: []string{u.Role}}
}

// projectUnderEvaluation submits a project with docs documents and assigns
// the given reviewers.
func (f *fixture) projectUnderEvaluation(docs int, reviewers ...models.User) (*models.Project, []models.Document) {
	f.t.Helper()
	p, err := f.svc.Projects.Submit(f.ctx, actorOf(f.pi), SubmitProjectInput{Title: "Étude de cohorte", CoInvestigatorIDs: []uint{f.coInv.UserID}})
	require.NoError(f.t, err)

	var out []models.Document
	for i := 0; i < docs; i++ {
		d, err := f.svc.Projects.AddDocument(f.ctx, actorOf(f.pi), AddDocumentInput{
			ProjectID: p.ProjectID,
			Filename:  fmt.Sprintf("annexe-%d.pdf", i+1),
			MimeType:  "application/pdf",
			Data:      []byte(fmt.Sprintf("document %d", i+1)),
		})
		require.NoError(f.t, err)
		out = append(out, *d)
	}

	if len(reviewers) > 0 {
		ids := make([]uint, 0, len(reviewers))
		for _, r := range reviewers {
			ids = append(ids, r.UserID)
		}
		p, err = f.svc.Projects.AssignReviewers(f.ctx, actorOf(f.admin), p.ProjectID, ids)
		require.NoError(f.t, err)
	}
	return p, out
}

// validatedRemarks stores n remarks on the project and validates them.
func (f *fixture) validatedRemarks(projectID uint, n int) []models.Remark {
	f.t.Helper()
	var out []models.Remark
	for i := 0; i < n; i++ {
		r := &models.Remark{ProjectID: projectID, Content: fmt.Sprintf("remarque %d", i+1), Status: models.RemarkPending, CreatedAt: f.clock.Now()}
		require.NoError(f.t, f.store.SaveRemark(f.ctx, r))
		validated, err := f.svc.Remarks.SetStatus(f.ctx, actorOf(f.admin), r.RemarkID, models.RemarkValidated, nil)
		require.NoError(f.t, err)
		out = append(out, *validated)
	}
	return out
}

func remarkIDs(remarks []models.Remark) []uint {
	ids := make([]uint, 0, len(remarks))
	for _, r := range remarks {
		ids = append(ids, r.RemarkID)
	}
	return ids
}

// dispatchedReport builds and dispatches a standard report on a project
// under evaluation.
func (f *fixture) dispatchedReport(p *models.Project) (*models.Report, []models.Remark) {
	f.t.Helper()
	remarks := f.validatedRemarks(p.ProjectID, 2)
	report, err := f.svc.Reports.Build(f.ctx, actorOf(f.admin), BuildReportInput{ProjectID: p.ProjectID, RemarkIDs: remarkIDs(remarks)})
	require.NoError(f.t, err)
	sent, err := f.svc.Reports.Dispatch(f.ctx, actorOf(f.admin), report.ReportID)
	require.NoError(f.t, err)
	return sent, remarks
}

func (f *fixture) project(id uint) *models.Project {
	f.t.Helper()
	p, err := f.store.GetProject(f.ctx, id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) report(id uint) *models.Report {
	f.t.Helper()
	r, err := f.store.GetReport(f.ctx, id)
	require.NoError(f.t, err)
	return r
}

// tracingStore records, per transaction, the loads and writes of projects
// and reports in call order.
type tracingStore struct {
	store.Store
	mu  sync.Mutex
	txs [][]string
}

func (s *tracingStore) Transaction(ctx context.Context, fn func(tx store.Repository) error) error {
	s.mu.Lock()
	s.txs = append(s.txs, nil)
	n := len(s.txs) - 1
	s.mu.Unlock()
	return s.Store.Transaction(ctx, func(tx store.Repository) error {
		return fn(&tracingRepo{Repository: tx, record: func(call string) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.txs[n] = append(s.txs[n], call)
		}})
	})
}

// last returns the calls of the most recent transaction.
func (s *tracingStore) last() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) == 0 {
		return nil
	}
	return append([]string(nil), s.txs[len(s.txs)-1]...)
}

type tracingRepo struct {
	store.Repository
	record func(call string)
}

func (r *tracingRepo) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	r.record("GetProject")
	return r.Repository.GetProject(ctx, id)
}

func (r *tracingRepo) LockProject(ctx context.Context, id uint) (*models.Project, error) {
	r.record("LockProject")
	return r.Repository.LockProject(ctx, id)
}

func (r *tracingRepo) UpdateProject(ctx context.Context, p *models.Project) error {
	r.record("UpdateProject")
	return r.Repository.UpdateProject(ctx, p)
}

func (r *tracingRepo) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	r.record("GetReport")
	return r.Repository.GetReport(ctx, id)
}

func (r *tracingRepo) LockReport(ctx context.Context, id uint) (*models.Report, error) {
	r.record("LockReport")
	return r.Repository.LockReport(ctx, id)
}

func (r *tracingRepo) SaveReport(ctx context.Context, report *models.Report) error {
	r.record("SaveReport")
	return r.Repository.SaveReport(ctx, report)
}

// brokenReportStore fails every transactional load of one report.
type brokenReportStore struct {
	store.Store
	reportID uint
}

func (s brokenReportStore) Transaction(ctx context.Context, fn func(tx store.Repository) error) error {
	return s.Store.Transaction(ctx, func(tx store.Repository) error {
		return fn(brokenReportRepo{Repository: tx, reportID: s.reportID})
	})
}

type brokenReportRepo struct {
	store.Repository
	reportID uint
}

func (r brokenReportRepo) LockReport(ctx context.Context, id uint) (*models.Report, error) {
	if id == r.reportID {
		return nil, errors.New("connection reset by peer")
	}
	return r.Repository.LockReport(ctx, id)
}
