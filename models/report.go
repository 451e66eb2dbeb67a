package models

import "time"

// ReportStatus is the dispatch state of a report.
type ReportStatus string

const (
	ReportNotSent   ReportStatus = "NON_ENVOYE"
	ReportSent      ReportStatus = "SENT"
	ReportResponded ReportStatus = "RESPONDED"
	ReportArchived  ReportStatus = "ARCHIVED"
	ReportOverdue   ReportStatus = "OVERDUE"
)

// ReportStatuses lists every report status in lifecycle order.
var ReportStatuses = []ReportStatus{ReportNotSent, ReportSent, ReportResponded, ReportOverdue, ReportArchived}

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportNotSent:   {ReportSent},
	ReportSent:      {ReportResponded, ReportOverdue},
	ReportResponded: {ReportArchived},
	ReportOverdue:   {ReportArchived},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	return allowed(reportTransitions, s, next)
}

// Live reports whether the report still counts as the project's current report.
func (s ReportStatus) Live() bool {
	return s != ReportArchived
}

// ReportCategory selects the response window applied at dispatch.
type ReportCategory string

const (
	ReportCategoryStandard ReportCategory = "standard"
	ReportCategoryFinal    ReportCategory = "final"
)

// Report is the formal dispatch of validated remarks to the investigator.
type Report struct {
	ReportID         uint           `gorm:"primaryKey;column:report_id" json:"report_id"`
	ProjectID        uint           `gorm:"column:project_id;index" json:"project_id"`
	Category         ReportCategory `gorm:"column:category;size:32" json:"category"`
	Status           ReportStatus   `gorm:"column:status;size:16;index" json:"status"`
	CreatedBy        uint           `gorm:"column:created_by" json:"created_by"`
	CreatedAt        time.Time      `gorm:"column:created_at" json:"created_at"`
	ResponseDeadline *time.Time     `gorm:"column:response_deadline" json:"response_deadline"`
	SentAt           *time.Time     `gorm:"column:sent_at" json:"sent_at"`
	ResponseAt       *time.Time     `gorm:"column:response_at" json:"response_at"`
	ResponseText     *string        `gorm:"column:response_text;type:text" json:"response_text"`
	DocumentRef      *string        `gorm:"column:document_ref" json:"-"`
	DocumentHash     *string        `gorm:"column:document_hash;size:64" json:"document_hash"`
	ArchivedAt       *time.Time     `gorm:"column:archived_at" json:"archived_at"`
}

// TableName overrides
func (Report) TableName() string {
	return "reports"
}

// Transition moves the report to next along the dispatch lifecycle.
func (r *Report) Transition(next ReportStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "report", From: string(r.Status), To: string(next)}
	}
	r.Status = next
	return nil
}

// DeadlinePassed reports whether now is after the response deadline.
func (r Report) DeadlinePassed(now time.Time) bool {
	return r.ResponseDeadline != nil && now.After(*r.ResponseDeadline)
}
