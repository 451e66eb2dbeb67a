package models

import "time"

// ProjectStatus is the review state of a submission.
type ProjectStatus string

const (
	ProjectSubmitted        ProjectStatus = "SOUMIS"
	ProjectUnderEvaluation  ProjectStatus = "EN_EVALUATION"
	ProjectEvaluated        ProjectStatus = "EVALUE"
	ProjectAwaitingResponse ProjectStatus = "EN_ATTENTE_REPONSE"
	ProjectResponded        ProjectStatus = "REPONDU"
	ProjectApproved         ProjectStatus = "APPROUVE"
	ProjectRejected         ProjectStatus = "REJETE"
)

var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectSubmitted:        {ProjectUnderEvaluation, ProjectRejected},
	ProjectUnderEvaluation:  {ProjectEvaluated, ProjectAwaitingResponse, ProjectRejected},
	ProjectEvaluated:        {ProjectAwaitingResponse, ProjectApproved, ProjectRejected},
	ProjectAwaitingResponse: {ProjectResponded, ProjectRejected},
	ProjectResponded:        {ProjectAwaitingResponse, ProjectApproved, ProjectRejected},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	return allowed(projectTransitions, s, next)
}

// IsTerminal reports whether no further transition is possible.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectApproved || s == ProjectRejected
}

// Valid reports whether s is a known project status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectSubmitted, ProjectUnderEvaluation, ProjectEvaluated,
		ProjectAwaitingResponse, ProjectResponded, ProjectApproved, ProjectRejected:
		return true
	}
	return false
}

const (
	MemberCoInvestigator = "CO_INVESTIGATOR"
	MemberReviewer       = "REVIEWER"
)

// Project is the aggregate root of a submission under review.
type Project struct {
	ProjectID        uint          `gorm:"primaryKey;column:project_id" json:"project_id"`
	ReferenceCode    string        `gorm:"column:reference_code;uniqueIndex;size:32" json:"reference_code"`
	Title            string        `gorm:"column:title" json:"title"`
	SubmittedAt      time.Time     `gorm:"column:submitted_at" json:"submitted_at"`
	Status           ProjectStatus `gorm:"column:status;size:32;index" json:"status"`
	ResponseDeadline *time.Time    `gorm:"column:response_deadline" json:"response_deadline"`
	InvestigatorID   uint          `gorm:"column:investigator_id;index" json:"investigator_id"`
	CreatedAt        time.Time     `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        *time.Time    `gorm:"column:updated_at" json:"updated_at"`

	Members []ProjectMember `gorm:"foreignKey:ProjectID;references:ProjectID" json:"members"`
}

// TableName overrides the table name for Project
func (Project) TableName() string {
	return "projects"
}

// Transition moves the project to next, refusing edges outside the status table.
func (p *Project) Transition(next ProjectStatus) error {
	if !p.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "project", From: string(p.Status), To: string(next)}
	}
	p.Status = next
	return nil
}

func (p *Project) memberIDs(role string) []uint {
	var ids []uint
	for _, m := range p.Members {
		if m.Role == role {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// ReviewerIDs lists the assigned reviewers.
func (p *Project) ReviewerIDs() []uint {
	return p.memberIDs(MemberReviewer)
}

// CoInvestigatorIDs lists the co-investigators.
func (p *Project) CoInvestigatorIDs() []uint {
	return p.memberIDs(MemberCoInvestigator)
}

// HasMember reports whether userID holds role on the project.
func (p *Project) HasMember(userID uint, role string) bool {
	for _, m := range p.Members {
		if m.UserID == userID && m.Role == role {
			return true
		}
	}
	return false
}

// ProjectMember links a user to a project as reviewer or co-investigator.
type ProjectMember struct {
	MemberID  uint      `gorm:"primaryKey;column:member_id" json:"member_id"`
	ProjectID uint      `gorm:"column:project_id;uniqueIndex:idx_project_member" json:"project_id"`
	UserID    uint      `gorm:"column:user_id;uniqueIndex:idx_project_member" json:"user_id"`
	Role      string    `gorm:"column:role;size:32;uniqueIndex:idx_project_member" json:"role"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the table name for ProjectMember
func (ProjectMember) TableName() string {
	return "project_members"
}

// ProjectStatusHistory tracks historical status changes for projects.
type ProjectStatusHistory struct {
	HistoryID uint          `gorm:"primaryKey;column:history_id" json:"history_id"`
	ProjectID uint          `gorm:"column:project_id;index" json:"project_id"`
	OldStatus ProjectStatus `gorm:"column:old_status;size:32" json:"old_status"`
	NewStatus ProjectStatus `gorm:"column:new_status;size:32" json:"new_status"`
	ChangedBy *uint         `gorm:"column:changed_by" json:"changed_by"`
	Reason    *string       `gorm:"column:reason" json:"reason"`
	CreatedAt time.Time     `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table for ProjectStatusHistory.
func (ProjectStatusHistory) TableName() string {
	return "project_status_history"
}

// Document is a file attached to a project.
type Document struct {
	DocumentID   uint      `gorm:"primaryKey;column:document_id" json:"document_id"`
	ProjectID    uint      `gorm:"column:project_id;index" json:"project_id"`
	OriginalName string    `gorm:"column:original_name" json:"original_name"`
	MimeType     string    `gorm:"column:mime_type" json:"mime_type"`
	FileSize     int64     `gorm:"column:file_size" json:"file_size"`
	StoredRef    string    `gorm:"column:stored_ref" json:"-"`
	FileHash     string    `gorm:"column:file_hash;size:64" json:"file_hash"`
	UploadedBy   uint      `gorm:"column:uploaded_by" json:"uploaded_by"`
	UploadedAt   time.Time `gorm:"column:uploaded_at" json:"uploaded_at"`
}

// TableName overrides
func (Document) TableName() string {
	return "project_documents"
}
