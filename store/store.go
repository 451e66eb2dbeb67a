// Package store persists the review-board records. Two backends implement
// Store: a gorm backend for MySQL/PostgreSQL and a go-memdb backend used for
// local runs and tests. Relationships are id references; cascades are walked
// explicitly by the services, never delegated to the engine.
package store

import (
	"context"
	"errors"

	"cerbo-api/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrLockHeld is returned by AcquireLock when another runner owns the lock.
	ErrLockHeld = errors.New("lock already held")
)

// Repository is the record-level API shared by a Store and its transactions.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	ListUsersByRole(ctx context.Context, role string) ([]models.User, error)

	// CreateProject inserts the project and its members.
	CreateProject(ctx context.Context, project *models.Project) error
	// GetProject loads the project with its members.
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	// LockProject loads the project like GetProject and holds its row until
	// the surrounding transaction ends. Status checks that lead to a write
	// go through it.
	LockProject(ctx context.Context, id uint) (*models.Project, error)
	// ListProjects returns every project, or those in status when non-empty.
	ListProjects(ctx context.Context, status models.ProjectStatus) ([]models.Project, error)
	// UpdateProject writes the project row only; members are left untouched.
	UpdateProject(ctx context.Context, project *models.Project) error
	AddProjectMembers(ctx context.Context, members []models.ProjectMember) error
	// DeleteProject removes the project row and its member links.
	DeleteProject(ctx context.Context, id uint) error
	AppendStatusHistory(ctx context.Context, entry *models.ProjectStatusHistory) error
	ListStatusHistory(ctx context.Context, projectID uint) ([]models.ProjectStatusHistory, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uint) (*models.Document, error)
	ListDocuments(ctx context.Context, projectID uint) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id uint) error

	GetReview(ctx context.Context, id uint) (*models.DocumentReview, error)
	FindReview(ctx context.Context, documentID, reviewerID uint) (*models.DocumentReview, error)
	// SaveReview inserts when ReviewID is zero and overwrites otherwise.
	SaveReview(ctx context.Context, review *models.DocumentReview) error
	ListReviews(ctx context.Context, projectID uint) ([]models.DocumentReview, error)
	DeleteReview(ctx context.Context, id uint) error

	GetRemark(ctx context.Context, id uint) (*models.Remark, error)
	SaveRemark(ctx context.Context, remark *models.Remark) error
	ListRemarks(ctx context.Context, projectID uint) ([]models.Remark, error)
	DeleteRemark(ctx context.Context, id uint) error

	GetReport(ctx context.Context, id uint) (*models.Report, error)
	// LockReport loads the report and holds its row until the surrounding
	// transaction ends.
	LockReport(ctx context.Context, id uint) (*models.Report, error)
	SaveReport(ctx context.Context, report *models.Report) error
	ListReports(ctx context.Context, projectID uint) ([]models.Report, error)
	ListReportsByStatus(ctx context.Context, status models.ReportStatus) ([]models.Report, error)
	DeleteReport(ctx context.Context, id uint) error

	GetMeeting(ctx context.Context, id uint) (*models.Meeting, error)
	// LockMeeting loads the meeting and serializes agenda writers on it until
	// the surrounding transaction ends.
	LockMeeting(ctx context.Context, id uint) (*models.Meeting, error)
	SaveMeeting(ctx context.Context, meeting *models.Meeting) error
	ListMeetings(ctx context.Context, year int) ([]models.Meeting, error)
	DeleteMeeting(ctx context.Context, id uint) error

	// ListAgenda returns the meeting's entries ordered by OrderIndex.
	ListAgenda(ctx context.Context, meetingID uint) ([]models.AgendaEntry, error)
	ListAgendaByProject(ctx context.Context, projectID uint) ([]models.AgendaEntry, error)
	SaveAgendaEntry(ctx context.Context, entry *models.AgendaEntry) error
	DeleteAgendaEntry(ctx context.Context, id uint) error

	ListAttendance(ctx context.Context, meetingID uint) ([]models.Attendance, error)
	FindAttendance(ctx context.Context, meetingID, reviewerID uint) (*models.Attendance, error)
	SaveAttendance(ctx context.Context, attendance *models.Attendance) error
	DeleteAttendance(ctx context.Context, id uint) error

	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uint) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uint) error
}

// Store is the single authoritative data store.
type Store interface {
	Repository
	// Transaction runs fn atomically; a returned error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	// AcquireLock takes a named non-blocking lock. It returns ErrLockHeld
	// when another runner owns it.
	AcquireLock(ctx context.Context, name string) (release func() error, err error)
}
