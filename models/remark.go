package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// RemarkStatus is the curation state of a remark.
type RemarkStatus string

const (
	RemarkPending   RemarkStatus = "PENDING"
	RemarkValidated RemarkStatus = "VALIDATED"
	RemarkRejected  RemarkStatus = "REJECTED"
	RemarkModified  RemarkStatus = "MODIFIED"
)

// Valid reports whether s is a known remark status.
func (s RemarkStatus) Valid() bool {
	switch s {
	case RemarkPending, RemarkValidated, RemarkRejected, RemarkModified:
		return true
	}
	return false
}

// Remark is an admin-curated, project-level item distilled from reviews.
// Report inclusion is derived from ReportID and Status, never stored as a flag.
type Remark struct {
	RemarkID             uint           `gorm:"primaryKey;column:remark_id" json:"remark_id"`
	ProjectID            uint           `gorm:"column:project_id;index" json:"project_id"`
	Content              string         `gorm:"column:content;type:text" json:"content"`
	Status               RemarkStatus   `gorm:"column:status;size:16" json:"status"`
	SourceReviewIDs      datatypes.JSON `gorm:"column:source_review_ids" json:"source_review_ids"`
	ReportID             *uint          `gorm:"column:report_id;index" json:"report_id"`
	AdminComment         *string        `gorm:"column:admin_comment;type:text" json:"admin_comment"`
	InvestigatorResponse *string        `gorm:"column:investigator_response;type:text" json:"investigator_response"`
	ValidationDate       *time.Time     `gorm:"column:validation_date" json:"validation_date"`
	ValidatedBy          *uint          `gorm:"column:validated_by" json:"validated_by"`
	CreatedAt            time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt            *time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides
func (Remark) TableName() string {
	return "remarks"
}

// IncludedInReport reports whether the remark is part of a report.
func (r Remark) IncludedInReport() bool {
	return r.ReportID != nil && r.Status == RemarkValidated
}

// SetStatus applies an admin curation decision. Leaving VALIDATED detaches
// the remark from its report so inclusion can never outlive validation.
func (r *Remark) SetStatus(next RemarkStatus, adminID uint, at time.Time) {
	r.Status = next
	r.ValidationDate = &at
	r.ValidatedBy = &adminID
	r.UpdatedAt = &at
	if next != RemarkValidated {
		r.ReportID = nil
	}
}

// AttachTo includes the remark in reportID.
func (r *Remark) AttachTo(reportID uint) error {
	if r.Status != RemarkValidated {
		return &TransitionError{Entity: "remark", From: string(r.Status), To: "INCLUDED"}
	}
	id := reportID
	r.ReportID = &id
	return nil
}

// Detach removes the remark from its report.
func (r *Remark) Detach() {
	r.ReportID = nil
}

// SourceIDs decodes the review ids the remark was built from.
func (r Remark) SourceIDs() []uint {
	var ids []uint
	if len(r.SourceReviewIDs) == 0 {
		return ids
	}
	_ = json.Unmarshal(r.SourceReviewIDs, &ids)
	return ids
}

// EncodeReviewIDs builds the JSON column value for SourceReviewIDs.
func EncodeReviewIDs(ids []uint) datatypes.JSON {
	if ids == nil {
		ids = []uint{}
	}
	b, _ := json.Marshal(ids)
	return datatypes.JSON(b)
}

func (r Remark) MarshalJSON() ([]byte, error) {
	type alias Remark
	return json.Marshal(struct {
		alias
		IncludedInReport bool `json:"included_in_report"`
	}{alias(r), r.IncludedInReport()})
}
