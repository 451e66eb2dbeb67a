package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cerbo-api/models"

	"github.com/hashicorp/go-memdb"
)

const (
	tableUsers         = "users"
	tableProjects      = "projects"
	tableMembers       = "project_members"
	tableHistory       = "project_status_history"
	tableDocuments     = "project_documents"
	tableReviews       = "document_reviews"
	tableRemarks       = "remarks"
	tableReports       = "reports"
	tableMeetings      = "meetings"
	tableAgenda        = "agenda_entries"
	tableAttendance    = "meeting_attendance"
	tableNotifications = "notifications"
)

func uintIndex(name, field string, unique bool) *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: name, Unique: unique, Indexer: &memdb.UintFieldIndex{Field: field}}
}

func stringIndex(name, field string) *memdb.IndexSchema {
	return &memdb.IndexSchema{Name: name, AllowMissing: true, Indexer: &memdb.StringFieldIndex{Field: field}}
}

func pairIndex(name, left, right string) *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:   name,
		Unique: true,
		Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
			&memdb.UintFieldIndex{Field: left},
			&memdb.UintFieldIndex{Field: right},
		}},
	}
}

func table(name, idField string, extra ...*memdb.IndexSchema) *memdb.TableSchema {
	indexes := map[string]*memdb.IndexSchema{"id": uintIndex("id", idField, true)}
	for _, idx := range extra {
		indexes[idx.Name] = idx
	}
	return &memdb.TableSchema{Name: name, Indexes: indexes}
}

func memorySchema() *memdb.DBSchema {
	tables := []*memdb.TableSchema{
		table(tableUsers, "UserID", stringIndex("role", "Role")),
		table(tableProjects, "ProjectID", stringIndex("status", "Status")),
		table(tableMembers, "MemberID", uintIndex("project", "ProjectID", false)),
		table(tableHistory, "HistoryID", uintIndex("project", "ProjectID", false)),
		table(tableDocuments, "DocumentID", uintIndex("project", "ProjectID", false)),
		table(tableReviews, "ReviewID",
			uintIndex("project", "ProjectID", false),
			pairIndex("document_reviewer", "DocumentID", "ReviewerID")),
		table(tableRemarks, "RemarkID", uintIndex("project", "ProjectID", false)),
		table(tableReports, "ReportID",
			uintIndex("project", "ProjectID", false),
			stringIndex("status", "Status")),
		table(tableMeetings, "MeetingID",
			&memdb.IndexSchema{Name: "year", Indexer: &memdb.IntFieldIndex{Field: "Year"}}),
		table(tableAgenda, "EntryID",
			uintIndex("meeting", "MeetingID", false),
			uintIndex("project", "ProjectID", false),
			pairIndex("meeting_project", "MeetingID", "ProjectID")),
		table(tableAttendance, "AttendanceID",
			uintIndex("meeting", "MeetingID", false),
			pairIndex("meeting_reviewer", "MeetingID", "ReviewerID")),
		table(tableNotifications, "NotificationID", uintIndex("user", "UserID", false)),
	}
	schema := &memdb.DBSchema{Tables: make(map[string]*memdb.TableSchema, len(tables))}
	for _, t := range tables {
		schema.Tables[t.Name] = t
	}
	return schema
}

// MemoryStore keeps every record in go-memdb tables. Write transactions are
// serialized by memdb, which also serializes agenda writers per meeting.
type MemoryStore struct {
	*memRepo

	seqMu sync.Mutex
	seq   map[string]uint

	locksMu sync.Mutex
	locks   map[string]bool
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, fmt.Errorf("failed to build memdb schema: %w", err)
	}
	s := &MemoryStore{seq: make(map[string]uint), locks: make(map[string]bool)}
	s.memRepo = &memRepo{db: db, store: s}
	return s, nil
}

func (s *MemoryStore) nextID(table string) uint {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	s.seq[table]++
	return s.seq[table]
}

// Transaction runs fn inside one memdb write transaction.
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	if err := fn(&memRepo{db: s.db, store: s, txn: txn}); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

// AcquireLock takes a process-local named lock.
func (s *MemoryStore) AcquireLock(_ context.Context, name string) (func() error, error) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if s.locks[name] {
		return nil, ErrLockHeld
	}
	s.locks[name] = true
	return func() error {
		s.locksMu.Lock()
		defer s.locksMu.Unlock()
		delete(s.locks, name)
		return nil
	}, nil
}

type memRepo struct {
	db    *memdb.MemDB
	store *MemoryStore
	txn   *memdb.Txn
}

// begin reuses the surrounding transaction or opens a short-lived one.
func (r *memRepo) begin(write bool) (*memdb.Txn, func(*error)) {
	if r.txn != nil {
		return r.txn, func(*error) {}
	}
	txn := r.db.Txn(write)
	return txn, func(errp *error) {
		if write && *errp == nil {
			txn.Commit()
			return
		}
		txn.Abort()
	}
}

func first[T any](txn *memdb.Txn, table, index string, args ...interface{}) (*T, error) {
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	v := *(raw.(*T))
	return &v, nil
}

func all[T any](txn *memdb.Txn, table, index string, args ...interface{}) ([]T, error) {
	it, err := txn.Get(table, index, args...)
	if err != nil {
		return nil, err
	}
	var out []T
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, *(obj.(*T)))
	}
	return out, nil
}

func put[T any](txn *memdb.Txn, table string, v *T) error {
	cp := *v
	return txn.Insert(table, &cp)
}

func remove(txn *memdb.Txn, table string, id uint) error {
	n, err := txn.DeleteAll(table, "id", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *memRepo) CreateUser(_ context.Context, user *models.User) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if user.UserID == 0 {
		user.UserID = r.store.nextID(tableUsers)
	}
	return put(txn, tableUsers, user)
}

func (r *memRepo) GetUser(_ context.Context, id uint) (u *models.User, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	u, err = first[models.User](txn, tableUsers, "id", id)
	if err == nil && u.DeleteAt != nil {
		return nil, ErrNotFound
	}
	return u, err
}

func (r *memRepo) ListUsersByRole(_ context.Context, role string) (users []models.User, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err := all[models.User](txn, tableUsers, "role", role)
	if err != nil {
		return nil, err
	}
	for _, u := range rows {
		if u.DeleteAt == nil {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

func (r *memRepo) CreateProject(_ context.Context, project *models.Project) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if project.ProjectID == 0 {
		project.ProjectID = r.store.nextID(tableProjects)
	}
	for i := range project.Members {
		project.Members[i].ProjectID = project.ProjectID
		if err = r.insertMember(txn, &project.Members[i]); err != nil {
			return err
		}
	}
	row := *project
	row.Members = nil
	return put(txn, tableProjects, &row)
}

func (r *memRepo) insertMember(txn *memdb.Txn, m *models.ProjectMember) error {
	if m.MemberID == 0 {
		m.MemberID = r.store.nextID(tableMembers)
	}
	return put(txn, tableMembers, m)
}

func (r *memRepo) loadMembers(txn *memdb.Txn, p *models.Project) error {
	members, err := all[models.ProjectMember](txn, tableMembers, "project", p.ProjectID)
	if err != nil {
		return err
	}
	sort.Slice(members, func(i, j int) bool { return members[i].MemberID < members[j].MemberID })
	p.Members = members
	return nil
}

func (r *memRepo) GetProject(_ context.Context, id uint) (p *models.Project, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	p, err = first[models.Project](txn, tableProjects, "id", id)
	if err != nil {
		return nil, err
	}
	if err = r.loadMembers(txn, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LockProject is a plain read: memdb admits one writer at a time.
func (r *memRepo) LockProject(ctx context.Context, id uint) (*models.Project, error) {
	return r.GetProject(ctx, id)
}

func (r *memRepo) ListProjects(_ context.Context, status models.ProjectStatus) (projects []models.Project, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	if status != "" {
		projects, err = all[models.Project](txn, tableProjects, "status", string(status))
	} else {
		projects, err = all[models.Project](txn, tableProjects, "id")
	}
	if err != nil {
		return nil, err
	}
	for i := range projects {
		if err = r.loadMembers(txn, &projects[i]); err != nil {
			return nil, err
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ProjectID < projects[j].ProjectID })
	return projects, nil
}

func (r *memRepo) UpdateProject(_ context.Context, project *models.Project) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if _, err = first[models.Project](txn, tableProjects, "id", project.ProjectID); err != nil {
		return err
	}
	row := *project
	row.Members = nil
	return put(txn, tableProjects, &row)
}

func (r *memRepo) AddProjectMembers(_ context.Context, members []models.ProjectMember) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	for i := range members {
		if err = r.insertMember(txn, &members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRepo) DeleteProject(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if _, err = txn.DeleteAll(tableMembers, "project", id); err != nil {
		return err
	}
	return remove(txn, tableProjects, id)
}

func (r *memRepo) AppendStatusHistory(_ context.Context, entry *models.ProjectStatusHistory) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	entry.HistoryID = r.store.nextID(tableHistory)
	return put(txn, tableHistory, entry)
}

func (r *memRepo) ListStatusHistory(_ context.Context, projectID uint) (rows []models.ProjectStatusHistory, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.ProjectStatusHistory](txn, tableHistory, "project", projectID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].HistoryID < rows[j].HistoryID })
	return rows, err
}

func (r *memRepo) CreateDocument(_ context.Context, doc *models.Document) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if doc.DocumentID == 0 {
		doc.DocumentID = r.store.nextID(tableDocuments)
	}
	return put(txn, tableDocuments, doc)
}

func (r *memRepo) GetDocument(_ context.Context, id uint) (d *models.Document, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.Document](txn, tableDocuments, "id", id)
}

func (r *memRepo) ListDocuments(_ context.Context, projectID uint) (docs []models.Document, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	docs, err = all[models.Document](txn, tableDocuments, "project", projectID)
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocumentID < docs[j].DocumentID })
	return docs, err
}

func (r *memRepo) DeleteDocument(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableDocuments, id)
}

func (r *memRepo) GetReview(_ context.Context, id uint) (rv *models.DocumentReview, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.DocumentReview](txn, tableReviews, "id", id)
}

func (r *memRepo) FindReview(_ context.Context, documentID, reviewerID uint) (rv *models.DocumentReview, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.DocumentReview](txn, tableReviews, "document_reviewer", documentID, reviewerID)
}

func (r *memRepo) SaveReview(_ context.Context, review *models.DocumentReview) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if review.ReviewID == 0 {
		review.ReviewID = r.store.nextID(tableReviews)
	}
	return put(txn, tableReviews, review)
}

func (r *memRepo) ListReviews(_ context.Context, projectID uint) (rows []models.DocumentReview, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.DocumentReview](txn, tableReviews, "project", projectID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReviewID < rows[j].ReviewID })
	return rows, err
}

func (r *memRepo) DeleteReview(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableReviews, id)
}

func (r *memRepo) GetRemark(_ context.Context, id uint) (rm *models.Remark, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.Remark](txn, tableRemarks, "id", id)
}

func (r *memRepo) SaveRemark(_ context.Context, remark *models.Remark) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if remark.RemarkID == 0 {
		remark.RemarkID = r.store.nextID(tableRemarks)
	}
	return put(txn, tableRemarks, remark)
}

func (r *memRepo) ListRemarks(_ context.Context, projectID uint) (rows []models.Remark, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Remark](txn, tableRemarks, "project", projectID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].RemarkID < rows[j].RemarkID })
	return rows, err
}

func (r *memRepo) DeleteRemark(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableRemarks, id)
}

func (r *memRepo) GetReport(_ context.Context, id uint) (rp *models.Report, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.Report](txn, tableReports, "id", id)
}

func (r *memRepo) LockReport(ctx context.Context, id uint) (*models.Report, error) {
	return r.GetReport(ctx, id)
}

func (r *memRepo) SaveReport(_ context.Context, report *models.Report) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if report.ReportID == 0 {
		report.ReportID = r.store.nextID(tableReports)
	}
	return put(txn, tableReports, report)
}

func (r *memRepo) ListReports(_ context.Context, projectID uint) (rows []models.Report, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Report](txn, tableReports, "project", projectID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReportID < rows[j].ReportID })
	return rows, err
}

func (r *memRepo) ListReportsByStatus(_ context.Context, status models.ReportStatus) (rows []models.Report, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Report](txn, tableReports, "status", string(status))
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReportID < rows[j].ReportID })
	return rows, err
}

func (r *memRepo) DeleteReport(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableReports, id)
}

func (r *memRepo) GetMeeting(_ context.Context, id uint) (m *models.Meeting, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.Meeting](txn, tableMeetings, "id", id)
}

// LockMeeting needs no extra work: memdb admits one writer at a time.
func (r *memRepo) LockMeeting(ctx context.Context, id uint) (*models.Meeting, error) {
	return r.GetMeeting(ctx, id)
}

func (r *memRepo) SaveMeeting(_ context.Context, meeting *models.Meeting) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if meeting.MeetingID == 0 {
		meeting.MeetingID = r.store.nextID(tableMeetings)
	}
	return put(txn, tableMeetings, meeting)
}

func (r *memRepo) ListMeetings(_ context.Context, year int) (rows []models.Meeting, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Meeting](txn, tableMeetings, "year", year)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ScheduledAt.Before(rows[j].ScheduledAt) })
	return rows, err
}

func (r *memRepo) DeleteMeeting(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableMeetings, id)
}

func (r *memRepo) ListAgenda(_ context.Context, meetingID uint) (rows []models.AgendaEntry, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.AgendaEntry](txn, tableAgenda, "meeting", meetingID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderIndex < rows[j].OrderIndex })
	return rows, err
}

func (r *memRepo) ListAgendaByProject(_ context.Context, projectID uint) (rows []models.AgendaEntry, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.AgendaEntry](txn, tableAgenda, "project", projectID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].EntryID < rows[j].EntryID })
	return rows, err
}

func (r *memRepo) SaveAgendaEntry(_ context.Context, entry *models.AgendaEntry) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if entry.EntryID == 0 {
		entry.EntryID = r.store.nextID(tableAgenda)
	}
	return put(txn, tableAgenda, entry)
}

func (r *memRepo) DeleteAgendaEntry(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableAgenda, id)
}

func (r *memRepo) ListAttendance(_ context.Context, meetingID uint) (rows []models.Attendance, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Attendance](txn, tableAttendance, "meeting", meetingID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ReviewerID < rows[j].ReviewerID })
	return rows, err
}

func (r *memRepo) FindAttendance(_ context.Context, meetingID, reviewerID uint) (a *models.Attendance, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	return first[models.Attendance](txn, tableAttendance, "meeting_reviewer", meetingID, reviewerID)
}

func (r *memRepo) SaveAttendance(_ context.Context, attendance *models.Attendance) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	if attendance.AttendanceID == 0 {
		attendance.AttendanceID = r.store.nextID(tableAttendance)
	}
	return put(txn, tableAttendance, attendance)
}

func (r *memRepo) DeleteAttendance(_ context.Context, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	return remove(txn, tableAttendance, id)
}

func (r *memRepo) CreateNotification(_ context.Context, n *models.Notification) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	n.NotificationID = r.store.nextID(tableNotifications)
	return put(txn, tableNotifications, n)
}

func (r *memRepo) ListNotifications(_ context.Context, userID uint) (rows []models.Notification, err error) {
	txn, done := r.begin(false)
	defer done(&err)
	rows, err = all[models.Notification](txn, tableNotifications, "user", userID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].NotificationID > rows[j].NotificationID })
	return rows, err
}

func (r *memRepo) MarkNotificationRead(_ context.Context, userID, id uint) (err error) {
	txn, done := r.begin(true)
	defer done(&err)
	n, err := first[models.Notification](txn, tableNotifications, "id", id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotFound
	}
	n.IsRead = true
	return put(txn, tableNotifications, n)
}
