package services

import (
	"context"
	"time"

	"cerbo-api/models"
	"cerbo-api/store"
	"cerbo-api/utils"
)

// MeetingService owns the yearly session calendar and meeting status.
type MeetingService struct {
	*core
}

const meetingHour = 15

// sessionAnchors gives, per month, the day from which the session falls on
// the next Thursday. January's anchor makes its session the last Thursday of
// the month. August has no session.
var sessionAnchors = map[time.Month]int{
	time.January:   25,
	time.February:  21,
	time.March:     21,
	time.April:     18,
	time.May:       23,
	time.June:      20,
	time.July:      18,
	time.September: 19,
	time.October:   17,
	time.November:  21,
	time.December:  12,
}

// SessionDates returns the board sessions of year in loc, in calendar order.
func SessionDates(year int, loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.Local
	}
	dates := make([]time.Time, 0, len(sessionAnchors))
	for m := time.January; m <= time.December; m++ {
		day, ok := sessionAnchors[m]
		if !ok {
			continue
		}
		d := time.Date(year, m, day, meetingHour, 0, 0, 0, loc)
		for d.Weekday() != time.Thursday {
			d = d.AddDate(0, 0, 1)
		}
		dates = append(dates, d)
	}
	return dates
}

// GenerateYearSchedule replaces every meeting of year, with their agenda and
// attendance, by the computed calendar. It requires confirm.
func (s *MeetingService) GenerateYearSchedule(ctx context.Context, actor Actor, year int, confirm bool) ([]models.Meeting, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	if !confirm {
		return nil, invalidArgument("regenerating the %d schedule deletes its meetings and must be confirmed", year)
	}
	if year < 2000 || year > 2100 {
		return nil, invalidArgument("year %d out of range", year)
	}

	var created []models.Meeting
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		existing, err := tx.ListMeetings(ctx, year)
		if err != nil {
			return err
		}
		for _, m := range existing {
			if err := deleteMeetingCascade(ctx, tx, m.MeetingID); err != nil {
				return err
			}
		}

		now := s.now()
		for _, at := range SessionDates(year, s.settings.BoardLocation) {
			m := models.Meeting{
				Year:        year,
				Month:       int(at.Month()),
				Label:       utils.MonthLabel(year, at.Month()),
				ScheduledAt: at,
				Status:      models.MeetingPlanned,
				CreatedAt:   now,
			}
			m.Settle(now)
			if err := tx.SaveMeeting(ctx, &m); err != nil {
				return err
			}
			created = append(created, m)
		}
		box.event(LifecycleEvent{Type: EventSchedule, EntityID: uint(year), ActorID: actor.ID, To: "generated", At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func deleteMeetingCascade(ctx context.Context, tx store.Repository, meetingID uint) error {
	entries, err := tx.ListAgenda(ctx, meetingID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := tx.DeleteAgendaEntry(ctx, e.EntryID); err != nil {
			return err
		}
	}
	attendance, err := tx.ListAttendance(ctx, meetingID)
	if err != nil {
		return err
	}
	for _, a := range attendance {
		if err := tx.DeleteAttendance(ctx, a.AttendanceID); err != nil {
			return err
		}
	}
	return tx.DeleteMeeting(ctx, meetingID)
}

// settle applies the Terminée rule and persists it when it changed.
func (c *core) settle(ctx context.Context, repo store.Repository, m *models.Meeting) error {
	now := c.now()
	if !m.Settle(now) {
		return nil
	}
	m.UpdatedAt = &now
	return repo.SaveMeeting(ctx, m)
}

func (s *MeetingService) Get(ctx context.Context, actor Actor, meetingID uint) (*models.Meeting, error) {
	if err := Authorize(actor, OpViewMeetings, Target{}); err != nil {
		return nil, err
	}
	m, err := s.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, lookupErr(err, "meeting", meetingID)
	}
	if err := s.settle(ctx, s.store, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MeetingService) List(ctx context.Context, actor Actor, year int) ([]models.Meeting, error) {
	if err := Authorize(actor, OpViewMeetings, Target{}); err != nil {
		return nil, err
	}
	meetings, err := s.store.ListMeetings(ctx, year)
	if err != nil {
		return nil, err
	}
	for i := range meetings {
		if err := s.settle(ctx, s.store, &meetings[i]); err != nil {
			return nil, err
		}
	}
	return meetings, nil
}

// ToggleStatus flips a meeting between Planifiée and Annulée.
func (s *MeetingService) ToggleStatus(ctx context.Context, actor Actor, meetingID uint) (*models.Meeting, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	var meeting *models.Meeting
	err := s.inTx(ctx, func(tx store.Repository, box *outbox) error {
		m, err := tx.LockMeeting(ctx, meetingID)
		if err != nil {
			return lookupErr(err, "meeting", meetingID)
		}
		if err := s.settle(ctx, tx, m); err != nil {
			return err
		}
		old := m.Status
		if err := m.Toggle(); err != nil {
			return transitionErr(err)
		}
		now := s.now()
		m.UpdatedAt = &now
		if err := tx.SaveMeeting(ctx, m); err != nil {
			return err
		}
		box.event(LifecycleEvent{Type: EventMeetingStatus, EntityID: m.MeetingID, ActorID: actor.ID, From: string(old), To: string(m.Status), At: now})
		meeting = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meeting, nil
}
