package models

import "time"

// MeetingStatus is the state of a board session.
type MeetingStatus string

const (
	MeetingPlanned   MeetingStatus = "Planifiée"
	MeetingCancelled MeetingStatus = "Annulée"
	MeetingFinished  MeetingStatus = "Terminée"
)

// Meeting is a scheduled board session and the root of its agenda and attendance.
type Meeting struct {
	MeetingID   uint          `gorm:"primaryKey;column:meeting_id" json:"meeting_id"`
	Year        int           `gorm:"column:year;index" json:"year"`
	Month       int           `gorm:"column:month" json:"month"`
	Label       string        `gorm:"column:label" json:"label"`
	ScheduledAt time.Time     `gorm:"column:scheduled_at" json:"scheduled_at"`
	Status      MeetingStatus `gorm:"column:status;size:16" json:"status"`
	CreatedAt   time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   *time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides
func (Meeting) TableName() string {
	return "meetings"
}

// Settle marks the meeting finished once its date is past. It returns true
// when the status changed.
func (m *Meeting) Settle(now time.Time) bool {
	if m.Status == MeetingFinished || !m.ScheduledAt.Before(now) {
		return false
	}
	m.Status = MeetingFinished
	return true
}

// Toggle flips between planned and cancelled. Finished meetings are frozen.
func (m *Meeting) Toggle() error {
	switch m.Status {
	case MeetingPlanned:
		m.Status = MeetingCancelled
	case MeetingCancelled:
		m.Status = MeetingPlanned
	default:
		return &TransitionError{Entity: "meeting", From: string(m.Status), To: "toggle"}
	}
	return nil
}

// AgendaEntry places a project on a meeting agenda.
type AgendaEntry struct {
	EntryID    uint      `gorm:"primaryKey;column:entry_id" json:"entry_id"`
	MeetingID  uint      `gorm:"column:meeting_id;uniqueIndex:idx_agenda_meeting_project" json:"meeting_id"`
	ProjectID  uint      `gorm:"column:project_id;uniqueIndex:idx_agenda_meeting_project" json:"project_id"`
	OrderIndex int       `gorm:"column:order_index" json:"order_index"`
	Decision   *string   `gorm:"column:decision;type:text" json:"decision"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides
func (AgendaEntry) TableName() string {
	return "agenda_entries"
}

// AttendanceOrigin records how an attendee was added.
type AttendanceOrigin string

const (
	AttendanceManual    AttendanceOrigin = "MANUAL"
	AttendanceAutomatic AttendanceOrigin = "AUTOMATIC"
)

// Attendance is a reviewer's presence record for one meeting.
type Attendance struct {
	AttendanceID  uint             `gorm:"primaryKey;column:attendance_id" json:"attendance_id"`
	MeetingID     uint             `gorm:"column:meeting_id;uniqueIndex:idx_attendance_meeting_reviewer" json:"meeting_id"`
	ReviewerID    uint             `gorm:"column:reviewer_id;uniqueIndex:idx_attendance_meeting_reviewer" json:"reviewer_id"`
	Present       bool             `gorm:"column:present" json:"present"`
	Justification *string          `gorm:"column:justification" json:"justification"`
	Justified     bool             `gorm:"column:justified" json:"justified"`
	Origin        AttendanceOrigin `gorm:"column:origin;size:16" json:"origin"`
	MarkedAt      *time.Time       `gorm:"column:marked_at" json:"marked_at"`
	CreatedAt     time.Time        `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides
func (Attendance) TableName() string {
	return "meeting_attendance"
}

// Mark records presence. An absence counts as justified only with a reason.
func (a *Attendance) Mark(present bool, justification string, at time.Time) {
	a.Present = present
	a.Justification = nil
	if justification != "" {
		j := justification
		a.Justification = &j
	}
	a.Justified = !present && justification != ""
	a.MarkedAt = &at
}
