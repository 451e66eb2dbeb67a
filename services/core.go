package services

import (
	"context"
	"log"
	"time"

	"cerbo-api/config"
	"cerbo-api/models"
	"cerbo-api/store"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Store      store.Store
	Files      FileStore
	Notifier   Notifier
	Renderer   Renderer
	Summarizer Summarizer
	Audit      AuditSink
	Settings   config.Settings
	// Now defaults to time.Now.
	Now func() time.Time
	// Async runs best-effort work such as notifications. It defaults to a
	// new goroutine per call.
	Async func(func())
}

// Services groups the review-board services built from one Deps.
type Services struct {
	Projects      *ProjectService
	Reviews       *ReviewService
	Remarks       *RemarkService
	Reports       *ReportService
	Sweep         *DeadlineSweepService
	Meetings      *MeetingService
	Agenda        *AgendaService
	Notifications *NotificationService
}

func New(d Deps) *Services {
	c := &core{
		store:      d.Store,
		files:      d.Files,
		notifier:   d.Notifier,
		renderer:   d.Renderer,
		summarizer: d.Summarizer,
		audit:      d.Audit,
		settings:   d.Settings,
		now:        d.Now,
		async:      d.Async,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.async == nil {
		c.async = func(f func()) { go f() }
	}
	if c.audit == nil {
		c.audit = LogAuditSink{}
	}
	if c.files == nil {
		c.files = NewMemoryFileStore()
	}
	if c.renderer == nil {
		c.renderer = NewHTMLRenderer(d.Settings.BoardLocation)
	}
	if c.settings.Categories == nil {
		c.settings = config.DefaultSettings()
	}
	if c.settings.BoardLocation == nil {
		c.settings.BoardLocation = time.Local
	}
	if c.settings.RenderTimeout <= 0 {
		c.settings.RenderTimeout = 30 * time.Second
	}

	return &Services{
		Projects:      &ProjectService{c},
		Reviews:       &ReviewService{c},
		Remarks:       &RemarkService{c},
		Reports:       &ReportService{c},
		Sweep:         &DeadlineSweepService{c},
		Meetings:      &MeetingService{c},
		Agenda:        &AgendaService{c},
		Notifications: &NotificationService{c},
	}
}

type core struct {
	store      store.Store
	files      FileStore
	notifier   Notifier
	renderer   Renderer
	summarizer Summarizer
	audit      AuditSink
	settings   config.Settings
	now        func() time.Time
	async      func(func())
}

type notice struct {
	recipients []uint
	toAdmins   bool
	title      string
	body       string
}

// outbox collects side effects inside a transaction. They are released only
// after the transaction commits, so a rolled-back change never notifies.
type outbox struct {
	events  []LifecycleEvent
	notices []notice
}

func (o *outbox) event(e LifecycleEvent) {
	o.events = append(o.events, e)
}

func (o *outbox) notify(title, body string, recipients ...uint) {
	o.notices = append(o.notices, notice{recipients: recipients, title: title, body: body})
}

func (o *outbox) notifyAdmins(title, body string) {
	o.notices = append(o.notices, notice{toAdmins: true, title: title, body: body})
}

// inTx runs fn in a store transaction and flushes its outbox on commit.
func (c *core) inTx(ctx context.Context, fn func(tx store.Repository, box *outbox) error) error {
	box := &outbox{}
	if err := c.store.Transaction(ctx, func(tx store.Repository) error {
		return fn(tx, box)
	}); err != nil {
		return err
	}
	c.flush(ctx, box)
	return nil
}

func (c *core) flush(ctx context.Context, box *outbox) {
	for _, e := range box.events {
		if err := c.audit.Record(ctx, e); err != nil {
			log.Printf("failed to record lifecycle event %s for %d: %v", e.Type, e.EntityID, err)
		}
	}
	for _, n := range box.notices {
		recipients := n.recipients
		if n.toAdmins {
			recipients = c.adminIDs(ctx)
		}
		for _, id := range recipients {
			c.notify(ctx, id, n.title, n.body)
		}
	}
}

func (c *core) adminIDs(ctx context.Context) []uint {
	admins, err := c.store.ListUsersByRole(ctx, models.RoleAdmin)
	if err != nil {
		log.Printf("failed to resolve admin recipients: %v", err)
		return nil
	}
	ids := make([]uint, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.UserID)
	}
	return ids
}

// notify delivers a notification in the background. Failures are logged
// and never reach the caller.
func (c *core) notify(ctx context.Context, recipientID uint, title, body string) {
	if c.notifier == nil || recipientID == 0 {
		return
	}
	bg := persistentContext(ctx)
	c.async(func() {
		if err := c.notifier.Notify(bg, recipientID, title, body); err != nil {
			notificationFailures.Inc()
			log.Printf("notification to user %d failed (title=%q): %v", recipientID, title, err)
		}
	})
}

func (c *core) loadProject(ctx context.Context, repo store.Repository, id uint) (*models.Project, error) {
	p, err := repo.GetProject(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "project", id)
	}
	return p, nil
}

// lockProject loads the project inside tx and holds its row so concurrent
// status checks on it run one after the other.
func (c *core) lockProject(ctx context.Context, tx store.Repository, id uint) (*models.Project, error) {
	p, err := tx.LockProject(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "project", id)
	}
	return p, nil
}

func (c *core) lockReport(ctx context.Context, tx store.Repository, id uint) (*models.Report, error) {
	r, err := tx.LockReport(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "report", id)
	}
	return r, nil
}

// transitionProject moves p to next, persists it and appends a history row.
// An edge outside the status table is reported as ErrConflict.
func (c *core) transitionProject(ctx context.Context, tx store.Repository, box *outbox, p *models.Project, next models.ProjectStatus, actorID uint, reason string) error {
	old := p.Status
	if err := p.Transition(next); err != nil {
		return transitionErr(err)
	}
	now := c.now()
	p.UpdatedAt = &now
	if err := tx.UpdateProject(ctx, p); err != nil {
		return err
	}

	entry := &models.ProjectStatusHistory{
		ProjectID: p.ProjectID,
		OldStatus: old,
		NewStatus: next,
		CreatedAt: now,
	}
	if actorID != 0 {
		id := actorID
		entry.ChangedBy = &id
	}
	if reason != "" {
		r := reason
		entry.Reason = &r
	}
	if err := tx.AppendStatusHistory(ctx, entry); err != nil {
		return err
	}

	box.event(LifecycleEvent{
		Type:      EventProjectStatus,
		EntityID:  p.ProjectID,
		ProjectID: p.ProjectID,
		ActorID:   actorID,
		From:      string(old),
		To:        string(next),
		At:        now,
	})
	return nil
}
