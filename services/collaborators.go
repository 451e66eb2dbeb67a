package services

import (
	"context"
	"log"
	"strings"
	"time"
)

// FileStore keeps document and rendered-report bytes outside the database.
type FileStore interface {
	Store(ctx context.Context, name string, data []byte) (ref string, err error)
	Load(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// Notifier delivers a best-effort message to a user.
type Notifier interface {
	Notify(ctx context.Context, recipientID uint, title, body string) error
}

// Renderer turns structured report and minutes data into a document.
type Renderer interface {
	RenderReport(ctx context.Context, doc ReportDocument) ([]byte, error)
	RenderMinutes(ctx context.Context, minutes MinutesRecord) ([]byte, error)
}

// Summarizer condenses reviewer text into a remark.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// AuditSink receives lifecycle events after they are committed.
type AuditSink interface {
	Record(ctx context.Context, event LifecycleEvent) error
}

// LifecycleEvent describes one committed state change.
type LifecycleEvent struct {
	Type      string    `json:"type"`
	EntityID  uint      `json:"entity_id"`
	ProjectID uint      `json:"project_id,omitempty"`
	ActorID   uint      `json:"actor_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventProjectStatus = "project.status"
	EventReviewSubmit  = "review.submitted"
	EventRemarkStatus  = "remark.status"
	EventReportStatus  = "report.status"
	EventMeetingStatus = "meeting.status"
	EventSchedule      = "meeting.schedule"
)

// ReportDocument is the data handed to the renderer for a report.
type ReportDocument struct {
	ReportID         uint               `json:"report_id"`
	ReferenceCode    string             `json:"reference_code"`
	ProjectTitle     string             `json:"project_title"`
	InvestigatorName string             `json:"investigator_name"`
	Category         string             `json:"category"`
	SentAt           time.Time          `json:"sent_at"`
	ResponseDeadline time.Time          `json:"response_deadline"`
	Remarks          []ReportRemarkLine `json:"remarks"`
}

// ReportRemarkLine is one validated remark in a rendered report.
type ReportRemarkLine struct {
	RemarkID     uint   `json:"remark_id"`
	Content      string `json:"content"`
	AdminComment string `json:"admin_comment,omitempty"`
}

// SummarizeOrIdentity returns the summary, or text unchanged on any failure.
func SummarizeOrIdentity(ctx context.Context, s Summarizer, text string) string {
	if s == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := s.Summarize(ctx, text)
	if err != nil {
		log.Printf("summarizer failed, keeping original text: %v", err)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}
