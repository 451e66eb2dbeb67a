package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"cerbo-api/models"
	"cerbo-api/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	admin := Actor{ID: 1, Roles: []string{models.RoleAdmin}}
	pi := Actor{ID: 2, Roles: []string{models.RoleInvestigator}}
	coInv := Actor{ID: 3, Roles: []string{models.RoleInvestigator}}
	reviewer := Actor{ID: 4, Roles: []string{models.RoleReviewer}}
	outsider := Actor{ID: 5, Roles: []string{models.RoleReviewer}}

	project := &models.Project{
		ProjectID:      10,
		InvestigatorID: pi.ID,
		Members: []models.ProjectMember{
			{UserID: coInv.ID, Role: models.MemberCoInvestigator},
			{UserID: reviewer.ID, Role: models.MemberReviewer},
		},
	}

	cases := []struct {
		name   string
		actor  Actor
		op     Operation
		target Target
		allow  bool
	}{
		{"admin assigns", admin, OpAssignReviewers, Target{}, true},
		{"investigator cannot assign", pi, OpAssignReviewers, Target{}, false},
		{"system actor sweeps", SystemActor(), OpRunDeadlineSweep, Target{}, true},
		{"reviewer cannot sweep", reviewer, OpRunDeadlineSweep, Target{}, false},
		{"investigator submits", pi, OpSubmitProject, Target{}, true},
		{"reviewer cannot submit", reviewer, OpSubmitProject, Target{}, false},
		{"pi adds document", pi, OpAddDocument, Target{Project: project}, true},
		{"co-investigator cannot add document", coInv, OpAddDocument, Target{Project: project}, false},
		{"assigned reviewer records own review", reviewer, OpRecordReview, Target{Project: project, ReviewerID: reviewer.ID}, true},
		{"reviewer cannot record for another", reviewer, OpRecordReview, Target{Project: project, ReviewerID: outsider.ID}, false},
		{"unassigned reviewer cannot record", outsider, OpRecordReview, Target{Project: project, ReviewerID: outsider.ID}, false},
		{"admin cannot record a review", admin, OpSubmitReviews, Target{Project: project, ReviewerID: admin.ID}, false},
		{"pi responds", pi, OpRespondReport, Target{Project: project}, true},
		{"co-investigator cannot respond", coInv, OpRespondReport, Target{Project: project}, false},
		{"admin cannot respond", admin, OpRespondReport, Target{Project: project}, false},
		{"co-investigator views", coInv, OpViewProject, Target{Project: project}, true},
		{"assigned reviewer views", reviewer, OpViewProject, Target{Project: project}, true},
		{"outsider cannot view", outsider, OpViewProject, Target{Project: project}, false},
		{"view without project", pi, OpViewProject, Target{}, false},
		{"reviewer views meetings", reviewer, OpViewMeetings, Target{}, true},
		{"investigator cannot view meetings", pi, OpViewMeetings, Target{}, false},
		{"unknown operation", admin, Operation("project.teleport"), Target{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(tc.actor, tc.op, tc.target)
			if tc.allow {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestDiskFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewDiskFileStore(t.TempDir())
	require.NoError(t, err)

	ref, err := fs.Store(ctx, "../../Protocole.PDF", []byte("contenu"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(ref, ".pdf"))
	assert.NotContains(t, ref, "/")

	data, err := fs.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("contenu"), data)

	require.NoError(t, fs.Delete(ctx, ref))
	require.NoError(t, fs.Delete(ctx, ref))
	_, err = fs.Load(ctx, ref)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, bad := range []string{"", "..", "../etc/passwd", "a/b.pdf"} {
		_, err := fs.Load(ctx, bad)
		assert.Error(t, err, bad)
	}

	_, err = NewDiskFileStore(" ")
	assert.Error(t, err)
}

func TestMemoryFileStore(t *testing.T) {
	ctx := context.Background()
	fs := NewMemoryFileStore()
	ref, err := fs.Store(ctx, "a.txt", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, fs.Len())

	_, err = fs.Load(ctx, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, fs.Delete(ctx, ref))
	assert.Zero(t, fs.Len())
}

func TestContentHash(t *testing.T) {
	h := ContentHash([]byte("abc"))
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash([]byte("abc")))
	assert.NotEqual(t, h, ContentHash([]byte("abd")))
}

type stubSummarizer struct {
	out string
	err error
}

func (s stubSummarizer) Summarize(context.Context, string) (string, error) {
	return s.out, s.err
}

func TestSummarizeOrIdentity(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "texte", SummarizeOrIdentity(ctx, nil, "texte"))
	assert.Equal(t, "texte", SummarizeOrIdentity(ctx, stubSummarizer{err: errors.New("boom")}, "texte"))
	assert.Equal(t, "texte", SummarizeOrIdentity(ctx, stubSummarizer{out: "  "}, "texte"))
	assert.Equal(t, "résumé", SummarizeOrIdentity(ctx, stubSummarizer{out: "résumé"}, "texte"))
}

func TestOpenAISummarizer(t *testing.T) {
	assert.Nil(t, NewOpenAISummarizer("", "", ""))

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":" Préciser le consentement. "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	s := NewOpenAISummarizer("sk-test", srv.URL+"/v1/", "")
	require.NotNil(t, s)
	out, err := s.Summarize(context.Background(), "avis 1\n\navis 2")
	require.NoError(t, err)
	assert.Equal(t, "Préciser le consentement.", out)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "avis 1\n\navis 2", got.Messages[1].Content)
}

func TestHTTPRenderer(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		switch r.URL.Path {
		case "/reports":
			var doc ReportDocument
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
			_, _ = io.WriteString(w, "%PDF-"+doc.ReferenceCode)
		case "/minutes":
			http.Error(w, "template missing", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	r := NewHTTPRenderer(srv.URL+"/", nil)
	data, err := r.RenderReport(context.Background(), ReportDocument{ReferenceCode: "CERBO-2026-abcd1234"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-CERBO-2026-abcd1234", string(data))

	_, err = r.RenderMinutes(context.Background(), MinutesRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Equal(t, []string{"/reports", "/minutes"}, paths)
}

func TestHTMLRenderer(t *testing.T) {
	r := NewHTMLRenderer(time.UTC)
	sent := time.Date(2026, time.March, 26, 15, 0, 0, 0, time.UTC)
	data, err := r.RenderReport(context.Background(), ReportDocument{
		ReferenceCode:    "CERBO-2026-abcd1234",
		ProjectTitle:     "Cohorte <pilote>",
		InvestigatorName: "Paul Investigateur",
		SentAt:           sent,
		ResponseDeadline: sent.AddDate(0, 0, 7),
		Remarks:          []ReportRemarkLine{{RemarkID: 1, Content: "Préciser", AdminComment: "Prioritaire"}},
	})
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "Cohorte &lt;pilote&gt;")
	assert.Contains(t, html, "26 mars 2026")
	assert.Contains(t, html, "2 avril 2026")
	assert.Contains(t, html, "Prioritaire")

	data, err = r.RenderMinutes(context.Background(), MinutesRecord{
		Meeting: MinutesMeeting{Label: "Mars 2026", ScheduledAt: sent},
		Absent:  []MinutesAttendee{{MinutesPerson: MinutesPerson{Name: "Rose Deux"}, Justified: true, Justification: "Mission"}},
	})
	require.NoError(t, err)
	html = string(data)
	assert.Contains(t, html, "séance de Mars 2026")
	assert.Contains(t, html, "26 mars 2026 à 15h00")
	assert.Contains(t, html, "Rose Deux (excusé : Mission)")
}

func TestMultiAuditSink(t *testing.T) {
	a, b := &recordingAudit{}, &recordingAudit{}
	failing := auditFunc(func(context.Context, LifecycleEvent) error { return errors.New("broker down") })
	sink := MultiAuditSink{a, nil, failing, b}

	err := sink.Record(context.Background(), LifecycleEvent{Type: EventReportStatus, EntityID: 7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

type auditFunc func(context.Context, LifecycleEvent) error

func (f auditFunc) Record(ctx context.Context, e LifecycleEvent) error { return f(ctx, e) }

type fakeMailer struct {
	to      []string
	subject string
	html    string
	err     error
}

func (m *fakeMailer) SendMail(to []string, subject, html string) error {
	m.to, m.subject, m.html = to, subject, html
	return m.err
}

func TestStoreNotifier(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewMemoryStore()
	require.NoError(t, err)
	u := &models.User{FirstName: "Paul", LastName: "Durand", Email: "paul.durand@univ.example.org", Role: models.RoleInvestigator}
	require.NoError(t, s.CreateUser(ctx, u))
	noMail := &models.User{FirstName: "Sans", LastName: "Adresse", Email: "pas-une-adresse", Role: models.RoleReviewer}
	require.NoError(t, s.CreateUser(ctx, noMail))

	mailer := &fakeMailer{err: errors.New("smtp down")}
	n := NewStoreNotifier(s, mailer)

	require.NoError(t, n.Notify(ctx, u.UserID, "Rapport disponible", "Ligne 1\nLigne <2>"))
	assert.Equal(t, []string{u.Email}, mailer.to)
	assert.Equal(t, "Rapport disponible", mailer.subject)
	assert.Contains(t, mailer.html, "Bonjour Paul Durand,")
	assert.Contains(t, mailer.html, "Ligne 1<br />Ligne &lt;2&gt;")

	mailer.to = nil
	require.NoError(t, n.Notify(ctx, noMail.UserID, "Info", "x"))
	assert.Nil(t, mailer.to)

	err = n.Notify(ctx, 999, "Info", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	rows, err := s.ListNotifications(ctx, u.UserID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Rapport disponible", rows[0].Title)
	assert.False(t, rows[0].IsRead)
}

func TestNotificationServiceScopesToOwner(t *testing.T) {
	f := newFixture(t)
	n := NewStoreNotifier(f.store, nil)
	require.NoError(t, n.Notify(f.ctx, f.pi.UserID, "Bienvenue", "x"))

	rows, err := f.svc.Notifications.List(f.ctx, actorOf(f.pi))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	err = f.svc.Notifications.MarkRead(f.ctx, actorOf(f.r1), rows[0].NotificationID)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, f.svc.Notifications.MarkRead(f.ctx, actorOf(f.pi), rows[0].NotificationID))

	rows, err = f.svc.Notifications.List(f.ctx, actorOf(f.pi))
	require.NoError(t, err)
	assert.True(t, rows[0].IsRead)
}
