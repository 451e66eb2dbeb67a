package services

import (
	"context"
	"fmt"
	"sort"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// AgendaService manages meeting agendas and attendance. Every agenda write
// holds the meeting lock so order indices stay contiguous.
type AgendaService struct {
	*core
}

type MarkAttendanceInput struct {
	MeetingID     uint
	ReviewerID    uint
	Present       bool
	Justification string
}

// SyncResult counts attendees added and pruned by SyncAttendees.
type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// lockOpenMeeting locks the meeting and refuses agenda edits once it is held.
func (s *AgendaService) lockOpenMeeting(ctx context.Context, tx store.Repository, meetingID uint) (*models.Meeting, error) {
	m, err := tx.LockMeeting(ctx, meetingID)
	if err != nil {
		return nil, lookupErr(err, "meeting", meetingID)
	}
	if err := s.settle(ctx, tx, m); err != nil {
		return nil, err
	}
	if m.Status == models.MeetingFinished {
		return nil, conflict("meeting %s has already taken place", m.Label)
	}
	return m, nil
}

// Add appends a project to the agenda at index max+1, or 0 when empty.
func (s *AgendaService) Add(ctx context.Context, actor Actor, meetingID, projectID uint) (*models.AgendaEntry, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	var entry *models.AgendaEntry
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := s.lockOpenMeeting(ctx, tx, meetingID); err != nil {
			return err
		}
		if _, err := s.loadProject(ctx, tx, projectID); err != nil {
			return err
		}
		entries, err := tx.ListAgenda(ctx, meetingID)
		if err != nil {
			return err
		}
		next := 0
		for _, e := range entries {
			if e.ProjectID == projectID {
				return conflict("project %d is already on the agenda of meeting %d", projectID, meetingID)
			}
			if e.OrderIndex >= next {
				next = e.OrderIndex + 1
			}
		}
		entry = &models.AgendaEntry{MeetingID: meetingID, ProjectID: projectID, OrderIndex: next, CreatedAt: s.now()}
		return tx.SaveAgendaEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Reorder sets the agenda to exactly orderedProjectIDs.
func (s *AgendaService) Reorder(ctx context.Context, actor Actor, meetingID uint, orderedProjectIDs []uint) ([]models.AgendaEntry, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	var out []models.AgendaEntry
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := s.lockOpenMeeting(ctx, tx, meetingID); err != nil {
			return err
		}
		entries, err := tx.ListAgenda(ctx, meetingID)
		if err != nil {
			return err
		}
		if len(orderedProjectIDs) != len(entries) {
			return invalidArgument("agenda has %d projects, got %d", len(entries), len(orderedProjectIDs))
		}
		byProject := make(map[uint]models.AgendaEntry, len(entries))
		for _, e := range entries {
			byProject[e.ProjectID] = e
		}
		seen := make(map[uint]bool, len(orderedProjectIDs))
		for _, id := range orderedProjectIDs {
			if _, ok := byProject[id]; !ok || seen[id] {
				return invalidArgument("project %d does not match the agenda", id)
			}
			seen[id] = true
		}

		out = make([]models.AgendaEntry, 0, len(orderedProjectIDs))
		for i, id := range orderedProjectIDs {
			e := byProject[id]
			e.OrderIndex = i
			if err := tx.SaveAgendaEntry(ctx, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove takes a project off the agenda and closes the gap in the order.
func (s *AgendaService) Remove(ctx context.Context, actor Actor, meetingID, projectID uint) error {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := s.lockOpenMeeting(ctx, tx, meetingID); err != nil {
			return err
		}
		entries, err := tx.ListAgenda(ctx, meetingID)
		if err != nil {
			return err
		}
		found := false
		idx := 0
		for _, e := range entries {
			if e.ProjectID == projectID {
				found = true
				if err := tx.DeleteAgendaEntry(ctx, e.EntryID); err != nil {
					return err
				}
				continue
			}
			if e.OrderIndex != idx {
				e.OrderIndex = idx
				if err := tx.SaveAgendaEntry(ctx, &e); err != nil {
					return err
				}
			}
			idx++
		}
		if !found {
			return fmt.Errorf("project %d on agenda of meeting %d: %w", projectID, meetingID, ErrNotFound)
		}
		return nil
	})
}

// RecordDecision stores the board's decision text for an agenda project.
func (s *AgendaService) RecordDecision(ctx context.Context, actor Actor, meetingID, projectID uint, decision string) (*models.AgendaEntry, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	decision = utils.SanitizeInput(decision)
	var entry *models.AgendaEntry
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := tx.LockMeeting(ctx, meetingID); err != nil {
			return lookupErr(err, "meeting", meetingID)
		}
		entries, err := tx.ListAgenda(ctx, meetingID)
		if err != nil {
			return err
		}
		for i := range entries {
			if entries[i].ProjectID != projectID {
				continue
			}
			e := entries[i]
			e.Decision = nil
			if decision != "" {
				e.Decision = &decision
			}
			entry = &e
			return tx.SaveAgendaEntry(ctx, entry)
		}
		return fmt.Errorf("project %d on agenda of meeting %d: %w", projectID, meetingID, ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *AgendaService) List(ctx context.Context, actor Actor, meetingID uint) ([]models.AgendaEntry, error) {
	if err := Authorize(actor, OpViewMeetings, Target{}); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, lookupErr(err, "meeting", meetingID)
	}
	return s.store.ListAgenda(ctx, meetingID)
}

// agendaReviewers returns the reviewers of every project on the agenda.
func agendaReviewers(ctx context.Context, tx store.Repository, meetingID uint) (map[uint]bool, error) {
	entries, err := tx.ListAgenda(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	linked := make(map[uint]bool)
	for _, e := range entries {
		p, err := tx.GetProject(ctx, e.ProjectID)
		if isStoreMiss(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, id := range p.ReviewerIDs() {
			linked[id] = true
		}
	}
	return linked, nil
}

// SyncAttendees adds an AUTOMATIC attendee for each reviewer of an agenda
// project. With prune, unmarked AUTOMATIC attendees no longer linked to the
// agenda are removed. MANUAL attendees are never removed here.
func (s *AgendaService) SyncAttendees(ctx context.Context, actor Actor, meetingID uint, prune bool) (*SyncResult, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	result := &SyncResult{}
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := tx.LockMeeting(ctx, meetingID); err != nil {
			return lookupErr(err, "meeting", meetingID)
		}
		linked, err := agendaReviewers(ctx, tx, meetingID)
		if err != nil {
			return err
		}
		current, err := tx.ListAttendance(ctx, meetingID)
		if err != nil {
			return err
		}
		have := make(map[uint]bool, len(current))
		for _, a := range current {
			have[a.ReviewerID] = true
		}

		ids := make([]uint, 0, len(linked))
		for id := range linked {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		now := s.now()
		for _, id := range ids {
			if have[id] {
				continue
			}
			a := &models.Attendance{MeetingID: meetingID, ReviewerID: id, Origin: models.AttendanceAutomatic, CreatedAt: now}
			if err := tx.SaveAttendance(ctx, a); err != nil {
				return err
			}
			result.Added++
		}

		if !prune {
			return nil
		}
		for _, a := range current {
			if a.Origin != models.AttendanceAutomatic || linked[a.ReviewerID] || a.MarkedAt != nil {
				continue
			}
			if err := tx.DeleteAttendance(ctx, a.AttendanceID); err != nil {
				return err
			}
			result.Removed++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddAttendee adds a reviewer to a meeting by hand.
func (s *AgendaService) AddAttendee(ctx context.Context, actor Actor, meetingID, reviewerID uint) (*models.Attendance, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, reviewerID); err != nil {
		return nil, lookupErr(err, "reviewer", reviewerID)
	}
	var attendance *models.Attendance
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := tx.LockMeeting(ctx, meetingID); err != nil {
			return lookupErr(err, "meeting", meetingID)
		}
		if _, err := tx.FindAttendance(ctx, meetingID, reviewerID); err == nil {
			return conflict("reviewer %d already attends meeting %d", reviewerID, meetingID)
		} else if !isStoreMiss(err) {
			return err
		}
		attendance = &models.Attendance{MeetingID: meetingID, ReviewerID: reviewerID, Origin: models.AttendanceManual, CreatedAt: s.now()}
		return tx.SaveAttendance(ctx, attendance)
	})
	if err != nil {
		return nil, err
	}
	return attendance, nil
}

// RemoveAttendee is the explicit removal path for any attendee.
func (s *AgendaService) RemoveAttendee(ctx context.Context, actor Actor, meetingID, reviewerID uint) error {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		a, err := tx.FindAttendance(ctx, meetingID, reviewerID)
		if err != nil {
			if isStoreMiss(err) {
				return fmt.Errorf("attendee %d of meeting %d: %w", reviewerID, meetingID, ErrNotFound)
			}
			return err
		}
		return tx.DeleteAttendance(ctx, a.AttendanceID)
	})
}

// MarkAttendance upserts a presence record. New records are MANUAL.
func (s *AgendaService) MarkAttendance(ctx context.Context, actor Actor, input MarkAttendanceInput) (*models.Attendance, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, input.ReviewerID); err != nil {
		return nil, lookupErr(err, "reviewer", input.ReviewerID)
	}
	justification := utils.SanitizeInput(input.Justification)

	var attendance *models.Attendance
	err := s.inTx(ctx, func(tx store.Repository, _ *outbox) error {
		if _, err := tx.LockMeeting(ctx, input.MeetingID); err != nil {
			return lookupErr(err, "meeting", input.MeetingID)
		}
		now := s.now()
		a, err := tx.FindAttendance(ctx, input.MeetingID, input.ReviewerID)
		if isStoreMiss(err) {
			a = &models.Attendance{MeetingID: input.MeetingID, ReviewerID: input.ReviewerID, Origin: models.AttendanceManual, CreatedAt: now}
		} else if err != nil {
			return err
		}
		a.Mark(input.Present, justification, now)
		if err := tx.SaveAttendance(ctx, a); err != nil {
			return err
		}
		attendance = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return attendance, nil
}

func (s *AgendaService) ListAttendance(ctx context.Context, actor Actor, meetingID uint) ([]models.Attendance, error) {
	if err := Authorize(actor, OpViewMeetings, Target{}); err != nil {
		return nil, err
	}
	if _, err := s.store.GetMeeting(ctx, meetingID); err != nil {
		return nil, lookupErr(err, "meeting", meetingID)
	}
	return s.store.ListAttendance(ctx, meetingID)
}
