package models

import "time"

// ReviewState replaces the finalized/final-submission flag pair.
//
//	DRAFT      editable by the reviewer
//	FINALIZED  locked, not yet part of a full submission
//	SUBMITTED  locked and counted towards the reviewer's final submission
type ReviewState string

const (
	ReviewDraft     ReviewState = "DRAFT"
	ReviewFinalized ReviewState = "FINALIZED"
	ReviewSubmitted ReviewState = "SUBMITTED"
)

var reviewTransitions = map[ReviewState][]ReviewState{
	ReviewDraft:     {ReviewFinalized, ReviewSubmitted},
	ReviewFinalized: {ReviewSubmitted},
}

// DocumentReview is one reviewer's evaluation of one document.
type DocumentReview struct {
	ReviewID     uint         `gorm:"primaryKey;column:review_id" json:"review_id"`
	DocumentID   uint         `gorm:"column:document_id;uniqueIndex:idx_review_document_reviewer" json:"document_id"`
	ReviewerID   uint         `gorm:"column:reviewer_id;uniqueIndex:idx_review_document_reviewer" json:"reviewer_id"`
	ProjectID    uint         `gorm:"column:project_id;index" json:"project_id"`
	Content      string       `gorm:"column:content;type:text" json:"content"`
	RemarkStatus RemarkStatus `gorm:"column:remark_status;size:16" json:"remark_status"`
	State        ReviewState  `gorm:"column:state;size:16" json:"state"`
	SubmittedAt  *time.Time   `gorm:"column:submitted_at" json:"submitted_at"`
	CreatedAt    time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    *time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for DocumentReview.
func (DocumentReview) TableName() string {
	return "document_reviews"
}

// Finalized reports whether the reviewer can no longer edit the content.
func (r DocumentReview) Finalized() bool {
	return r.State == ReviewFinalized || r.State == ReviewSubmitted
}

// FinalSubmission reports whether the review is part of a completed submission.
func (r DocumentReview) FinalSubmission() bool {
	return r.State == ReviewSubmitted
}

// Advance moves the review to next.
func (r *DocumentReview) Advance(next ReviewState) error {
	if !allowed(reviewTransitions, r.State, next) {
		return &TransitionError{Entity: "document review", From: string(r.State), To: string(next)}
	}
	r.State = next
	return nil
}
