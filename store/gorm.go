package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cerbo-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists records through gorm (MySQL or PostgreSQL).
type GormStore struct {
	*gormRepo
	db *gorm.DB

	localMu    sync.Mutex
	localLocks map[string]bool
}

// NewGormStore wraps an open gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{gormRepo: &gormRepo{db: db}, db: db, localLocks: make(map[string]bool)}
}

// AutoMigrate creates or updates every table owned by the service.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(models.All()...)
}

// Transaction runs fn inside a database transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepo{db: tx})
	})
}

// AcquireLock takes a MySQL advisory lock so only one process runs a job at
// a time. Other dialects fall back to a process-local lock.
func (s *GormStore) AcquireLock(ctx context.Context, name string) (func() error, error) {
	if strings.TrimSpace(name) == "" {
		return func() error { return nil }, nil
	}
	if s.db.Dialector.Name() != "mysql" {
		return s.acquireLocal(name)
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	// MySQL ties an advisory lock to the session that took it, so GET_LOCK
	// and RELEASE_LOCK must run on the same pooled connection.
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var ok int
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if ok != 1 {
		_ = conn.Close()
		return nil, ErrLockHeld
	}

	// The release must run even when the caller's context was cancelled.
	releaseCtx := context.WithoutCancel(ctx)
	return func() error {
		defer conn.Close()
		var released int
		if err := conn.QueryRowContext(releaseCtx, "SELECT RELEASE_LOCK(?)", name).Scan(&released); err != nil {
			return err
		}
		if released != 1 {
			return fmt.Errorf("release lock %q returned %d", name, released)
		}
		return nil
	}, nil
}

func (s *GormStore) acquireLocal(name string) (func() error, error) {
	s.localMu.Lock()
	defer s.localMu.Unlock()
	if s.localLocks[name] {
		return nil, ErrLockHeld
	}
	s.localLocks[name] = true
	return func() error {
		s.localMu.Lock()
		defer s.localMu.Unlock()
		delete(s.localLocks, name)
		return nil
	}, nil
}

type gormRepo struct {
	db *gorm.DB
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func deleteByID(db *gorm.DB, model interface{}, column string, id uint) error {
	res := db.Where(column+" = ?", id).Delete(model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepo) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormRepo) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("user_id = ? AND delete_at IS NULL", id).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormRepo) ListUsersByRole(ctx context.Context, role string) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND delete_at IS NULL", role).
		Order("user_id ASC").
		Find(&users).Error
	return users, err
}

func (r *gormRepo) CreateProject(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *gormRepo) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("member_id ASC") }).
		Where("project_id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

func (r *gormRepo) LockProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, translate(err)
	}
	// Locking reads see the latest committed rows, not the snapshot of a
	// REPEATABLE READ transaction.
	err = r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "SHARE"}).
		Where("project_id = ?", id).
		Order("member_id ASC").
		Find(&project.Members).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *gormRepo) ListProjects(ctx context.Context, status models.ProjectStatus) ([]models.Project, error) {
	var projects []models.Project
	query := r.db.WithContext(ctx).Preload("Members")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("project_id ASC").Find(&projects).Error
	return projects, err
}

func (r *gormRepo) UpdateProject(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(project).Error
}

func (r *gormRepo) AddProjectMembers(ctx context.Context, members []models.ProjectMember) error {
	if len(members) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&members).Error
}

func (r *gormRepo) DeleteProject(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("project_id = ?", id).Delete(&models.ProjectMember{}).Error; err != nil {
		return err
	}
	return deleteByID(db, &models.Project{}, "project_id", id)
}

func (r *gormRepo) AppendStatusHistory(ctx context.Context, entry *models.ProjectStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepo) ListStatusHistory(ctx context.Context, projectID uint) ([]models.ProjectStatusHistory, error) {
	var rows []models.ProjectStatusHistory
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("history_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) CreateDocument(ctx context.Context, doc *models.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *gormRepo) GetDocument(ctx context.Context, id uint) (*models.Document, error) {
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("document_id = ?", id).First(&doc).Error; err != nil {
		return nil, translate(err)
	}
	return &doc, nil
}

func (r *gormRepo) ListDocuments(ctx context.Context, projectID uint) ([]models.Document, error) {
	var docs []models.Document
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("document_id ASC").Find(&docs).Error
	return docs, err
}

func (r *gormRepo) DeleteDocument(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.Document{}, "document_id", id)
}

func (r *gormRepo) GetReview(ctx context.Context, id uint) (*models.DocumentReview, error) {
	var review models.DocumentReview
	if err := r.db.WithContext(ctx).Where("review_id = ?", id).First(&review).Error; err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

func (r *gormRepo) FindReview(ctx context.Context, documentID, reviewerID uint) (*models.DocumentReview, error) {
	var review models.DocumentReview
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND reviewer_id = ?", documentID, reviewerID).
		First(&review).Error
	if err != nil {
		return nil, translate(err)
	}
	return &review, nil
}

func (r *gormRepo) SaveReview(ctx context.Context, review *models.DocumentReview) error {
	return r.db.WithContext(ctx).Save(review).Error
}

func (r *gormRepo) ListReviews(ctx context.Context, projectID uint) ([]models.DocumentReview, error) {
	var rows []models.DocumentReview
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("review_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) DeleteReview(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.DocumentReview{}, "review_id", id)
}

func (r *gormRepo) GetRemark(ctx context.Context, id uint) (*models.Remark, error) {
	var remark models.Remark
	if err := r.db.WithContext(ctx).Where("remark_id = ?", id).First(&remark).Error; err != nil {
		return nil, translate(err)
	}
	return &remark, nil
}

func (r *gormRepo) SaveRemark(ctx context.Context, remark *models.Remark) error {
	return r.db.WithContext(ctx).Save(remark).Error
}

func (r *gormRepo) ListRemarks(ctx context.Context, projectID uint) ([]models.Remark, error) {
	var rows []models.Remark
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("remark_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) DeleteRemark(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.Remark{}, "remark_id", id)
}

func (r *gormRepo) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).Where("report_id = ?", id).First(&report).Error; err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

func (r *gormRepo) LockReport(ctx context.Context, id uint) (*models.Report, error) {
	var report models.Report
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("report_id = ?", id).
		First(&report).Error
	if err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

func (r *gormRepo) SaveReport(ctx context.Context, report *models.Report) error {
	return r.db.WithContext(ctx).Save(report).Error
}

func (r *gormRepo) ListReports(ctx context.Context, projectID uint) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("report_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) ListReportsByStatus(ctx context.Context, status models.ReportStatus) ([]models.Report, error) {
	var rows []models.Report
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("report_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) DeleteReport(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.Report{}, "report_id", id)
}

func (r *gormRepo) GetMeeting(ctx context.Context, id uint) (*models.Meeting, error) {
	var meeting models.Meeting
	if err := r.db.WithContext(ctx).Where("meeting_id = ?", id).First(&meeting).Error; err != nil {
		return nil, translate(err)
	}
	return &meeting, nil
}

func (r *gormRepo) LockMeeting(ctx context.Context, id uint) (*models.Meeting, error) {
	var meeting models.Meeting
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("meeting_id = ?", id).
		First(&meeting).Error
	if err != nil {
		return nil, translate(err)
	}
	return &meeting, nil
}

func (r *gormRepo) SaveMeeting(ctx context.Context, meeting *models.Meeting) error {
	return r.db.WithContext(ctx).Save(meeting).Error
}

func (r *gormRepo) ListMeetings(ctx context.Context, year int) ([]models.Meeting, error) {
	var rows []models.Meeting
	err := r.db.WithContext(ctx).Where("year = ?", year).Order("scheduled_at ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) DeleteMeeting(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.Meeting{}, "meeting_id", id)
}

func (r *gormRepo) ListAgenda(ctx context.Context, meetingID uint) ([]models.AgendaEntry, error) {
	var rows []models.AgendaEntry
	err := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Order("order_index ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) ListAgendaByProject(ctx context.Context, projectID uint) ([]models.AgendaEntry, error) {
	var rows []models.AgendaEntry
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("entry_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) SaveAgendaEntry(ctx context.Context, entry *models.AgendaEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *gormRepo) DeleteAgendaEntry(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.AgendaEntry{}, "entry_id", id)
}

func (r *gormRepo) ListAttendance(ctx context.Context, meetingID uint) ([]models.Attendance, error) {
	var rows []models.Attendance
	err := r.db.WithContext(ctx).Where("meeting_id = ?", meetingID).Order("reviewer_id ASC").Find(&rows).Error
	return rows, err
}

func (r *gormRepo) FindAttendance(ctx context.Context, meetingID, reviewerID uint) (*models.Attendance, error) {
	var attendance models.Attendance
	err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND reviewer_id = ?", meetingID, reviewerID).
		First(&attendance).Error
	if err != nil {
		return nil, translate(err)
	}
	return &attendance, nil
}

func (r *gormRepo) SaveAttendance(ctx context.Context, attendance *models.Attendance) error {
	return r.db.WithContext(ctx).Save(attendance).Error
}

func (r *gormRepo) DeleteAttendance(ctx context.Context, id uint) error {
	return deleteByID(r.db.WithContext(ctx), &models.Attendance{}, "attendance_id", id)
}

func (r *gormRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *gormRepo) ListNotifications(ctx context.Context, userID uint) ([]models.Notification, error) {
	var rows []models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("create_at DESC, notification_id DESC").
		Limit(100).
		Find(&rows).Error
	return rows, err
}

func (r *gormRepo) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("notification_id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
