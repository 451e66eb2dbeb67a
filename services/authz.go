package services

import (
	"fmt"

	"cerbo-api/models"
)

// Actor is the authenticated caller as resolved by the identity gate.
type Actor struct {
	ID    uint
	Email string
	Roles []string
}

// SystemActor is used by unattended jobs and the operator CLI.
func SystemActor() Actor {
	return Actor{Email: "system", Roles: []string{models.RoleAdmin}}
}

// HasRole reports whether the actor carries role.
func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the actor may run board-management operations.
func (a Actor) IsAdmin() bool {
	return a.HasRole(models.RoleAdmin)
}

// Operation names an authorized action.
type Operation string

const (
	OpSubmitProject    Operation = "project.submit"
	OpAddDocument      Operation = "project.add_document"
	OpAssignReviewers  Operation = "project.assign_reviewers"
	OpDecideProject    Operation = "project.decide"
	OpDeleteProject    Operation = "project.delete"
	OpViewProject      Operation = "project.view"
	OpRecordReview     Operation = "review.record"
	OpFinalizeReview   Operation = "review.finalize"
	OpSubmitReviews    Operation = "review.submit"
	OpPromoteRemark    Operation = "remark.promote"
	OpSetRemarkStatus  Operation = "remark.set_status"
	OpBuildReport      Operation = "report.build"
	OpDispatchReport   Operation = "report.dispatch"
	OpRespondReport    Operation = "report.respond"
	OpArchiveReport    Operation = "report.archive"
	OpDiscardReport    Operation = "report.discard"
	OpManageMeetings   Operation = "meeting.manage"
	OpViewMeetings     Operation = "meeting.view"
	OpRunDeadlineSweep Operation = "sweep.run"
)

// Target is the entity an operation acts on. Fields are optional and depend
// on the operation.
type Target struct {
	Project    *models.Project
	ReviewerID uint
}

var adminOnly = map[Operation]bool{
	OpAssignReviewers:  true,
	OpDecideProject:    true,
	OpDeleteProject:    true,
	OpPromoteRemark:    true,
	OpSetRemarkStatus:  true,
	OpBuildReport:      true,
	OpDispatchReport:   true,
	OpArchiveReport:    true,
	OpDiscardReport:    true,
	OpManageMeetings:   true,
	OpRunDeadlineSweep: true,
}

// Authorize is the single allow/deny decision for every operation.
func Authorize(actor Actor, op Operation, target Target) error {
	if adminOnly[op] {
		if actor.IsAdmin() {
			return nil
		}
		return deny(actor, op)
	}

	p := target.Project
	switch op {
	case OpSubmitProject:
		if actor.HasRole(models.RoleInvestigator) {
			return nil
		}
	case OpAddDocument:
		if actor.IsAdmin() || (p != nil && p.InvestigatorID == actor.ID) {
			return nil
		}
	case OpRecordReview, OpFinalizeReview, OpSubmitReviews:
		// Reviewers act only on their own reviews for projects they are assigned to.
		if p != nil && actor.ID != 0 && actor.ID == target.ReviewerID &&
			actor.HasRole(models.RoleReviewer) && p.HasMember(actor.ID, models.MemberReviewer) {
			return nil
		}
	case OpRespondReport:
		if p != nil && actor.ID != 0 && p.InvestigatorID == actor.ID {
			return nil
		}
	case OpViewProject:
		if actor.IsAdmin() {
			return nil
		}
		if p != nil && actor.ID != 0 && (p.InvestigatorID == actor.ID ||
			p.HasMember(actor.ID, models.MemberCoInvestigator) ||
			p.HasMember(actor.ID, models.MemberReviewer)) {
			return nil
		}
	case OpViewMeetings:
		if actor.IsAdmin() || actor.HasRole(models.RoleReviewer) {
			return nil
		}
	}
	return deny(actor, op)
}

func deny(actor Actor, op Operation) error {
	return fmt.Errorf("%w: user %d may not %s", ErrUnauthorized, actor.ID, op)
}
