package services

import (
	"sync"
	"testing"
	"time"

	"cerbo-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) openMeeting() models.Meeting {
	f.t.Helper()
	meetings, err := f.svc.Meetings.GenerateYearSchedule(f.ctx, actorOf(f.admin), 2026, true)
	require.NoError(f.t, err)
	return meetings[len(meetings)-1]
}

func agendaOrder(entries []models.AgendaEntry) []uint {
	out := make([]uint, 0, len(entries))
	for i, e := range entries {
		if e.OrderIndex != i {
			return nil
		}
		out = append(out, e.ProjectID)
	}
	return out
}

func TestAgendaAddKeepsContiguousOrder(t *testing.T) {
	f := newFixture(t)
	m := f.openMeeting()
	a, _ := f.projectUnderEvaluation(0)
	b, _ := f.projectUnderEvaluation(0)
	c, _ := f.projectUnderEvaluation(0)

	for i, p := range []*models.Project{a, b, c} {
		e, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, p.ProjectID)
		require.NoError(t, err)
		assert.Equal(t, i, e.OrderIndex)
	}

	_, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, b.ProjectID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Agenda.Add(f.ctx, actorOf(f.r1), m.MeetingID, a.ProjectID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.Agenda.Remove(f.ctx, actorOf(f.admin), m.MeetingID, a.ProjectID))
	entries, err := f.svc.Agenda.List(f.ctx, actorOf(f.admin), m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, []uint{b.ProjectID, c.ProjectID}, agendaOrder(entries))

	err = f.svc.Agenda.Remove(f.ctx, actorOf(f.admin), m.MeetingID, a.ProjectID)
	assert.ErrorIs(t, err, ErrNotFound)

	e, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, a.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, 2, e.OrderIndex)
}

func TestAgendaReorder(t *testing.T) {
	f := newFixture(t)
	m := f.openMeeting()
	a, _ := f.projectUnderEvaluation(0)
	b, _ := f.projectUnderEvaluation(0)
	c, _ := f.projectUnderEvaluation(0)
	for _, p := range []*models.Project{a, b, c} {
		_, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, p.ProjectID)
		require.NoError(t, err)
	}

	for _, bad := range [][]uint{
		{c.ProjectID, a.ProjectID},
		{c.ProjectID, a.ProjectID, a.ProjectID},
		{c.ProjectID, a.ProjectID, 9999},
	} {
		_, err := f.svc.Agenda.Reorder(f.ctx, actorOf(f.admin), m.MeetingID, bad)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
	entries, err := f.svc.Agenda.List(f.ctx, actorOf(f.admin), m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, []uint{a.ProjectID, b.ProjectID, c.ProjectID}, agendaOrder(entries))

	_, err = f.svc.Agenda.Reorder(f.ctx, actorOf(f.admin), m.MeetingID, []uint{c.ProjectID, a.ProjectID, b.ProjectID})
	require.NoError(t, err)
	entries, err = f.svc.Agenda.List(f.ctx, actorOf(f.admin), m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, []uint{c.ProjectID, a.ProjectID, b.ProjectID}, agendaOrder(entries))
}

func TestAgendaFrozenOnceMeetingHeld(t *testing.T) {
	f := newFixture(t)
	meetings, err := f.svc.Meetings.GenerateYearSchedule(f.ctx, actorOf(f.admin), 2026, true)
	require.NoError(t, err)
	p, _ := f.projectUnderEvaluation(0)
	_, err = f.svc.Agenda.Add(f.ctx, actorOf(f.admin), meetings[0].MeetingID, p.ProjectID)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	q, _ := f.projectUnderEvaluation(0)
	_, err = f.svc.Agenda.Add(f.ctx, actorOf(f.admin), meetings[0].MeetingID, q.ProjectID)
	assert.ErrorIs(t, err, ErrConflict)

	// Decisions are still recorded after the session.
	e, err := f.svc.Agenda.RecordDecision(f.ctx, actorOf(f.admin), meetings[0].MeetingID, p.ProjectID, "Ajourné")
	require.NoError(t, err)
	require.NotNil(t, e.Decision)
	assert.Equal(t, "Ajourné", *e.Decision)
}

func TestSyncAttendeesNeverPrunesManualOrMarked(t *testing.T) {
	f := newFixture(t)
	m := f.openMeeting()
	p, _ := f.projectUnderEvaluation(0, f.r1, f.r2)
	_, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, p.ProjectID)
	require.NoError(t, err)
	_, err = f.svc.Agenda.AddAttendee(f.ctx, actorOf(f.admin), m.MeetingID, f.r3.UserID)
	require.NoError(t, err)
	_, err = f.svc.Agenda.AddAttendee(f.ctx, actorOf(f.admin), m.MeetingID, f.r3.UserID)
	assert.ErrorIs(t, err, ErrConflict)

	res, err := f.svc.Agenda.SyncAttendees(f.ctx, actorOf(f.admin), m.MeetingID, false)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Added: 2}, *res)

	res, err = f.svc.Agenda.SyncAttendees(f.ctx, actorOf(f.admin), m.MeetingID, false)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, *res)

	// r2 is marked, r1 is not; both become unlinked.
	_, err = f.svc.Agenda.MarkAttendance(f.ctx, actorOf(f.admin), MarkAttendanceInput{MeetingID: m.MeetingID, ReviewerID: f.r2.UserID, Present: true})
	require.NoError(t, err)
	require.NoError(t, f.svc.Agenda.Remove(f.ctx, actorOf(f.admin), m.MeetingID, p.ProjectID))

	res, err = f.svc.Agenda.SyncAttendees(f.ctx, actorOf(f.admin), m.MeetingID, false)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{}, *res)

	res, err = f.svc.Agenda.SyncAttendees(f.ctx, actorOf(f.admin), m.MeetingID, true)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Removed: 1}, *res)

	attendance, err := f.svc.Agenda.ListAttendance(f.ctx, actorOf(f.r1), m.MeetingID)
	require.NoError(t, err)
	got := map[uint]models.AttendanceOrigin{}
	for _, a := range attendance {
		got[a.ReviewerID] = a.Origin
	}
	assert.Equal(t, map[uint]models.AttendanceOrigin{
		f.r2.UserID: models.AttendanceAutomatic,
		f.r3.UserID: models.AttendanceManual,
	}, got)

	require.NoError(t, f.svc.Agenda.RemoveAttendee(f.ctx, actorOf(f.admin), m.MeetingID, f.r3.UserID))
	err = f.svc.Agenda.RemoveAttendee(f.ctx, actorOf(f.admin), m.MeetingID, f.r3.UserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkAttendanceJustification(t *testing.T) {
	f := newFixture(t)
	m := f.openMeeting()

	a, err := f.svc.Agenda.MarkAttendance(f.ctx, actorOf(f.admin), MarkAttendanceInput{MeetingID: m.MeetingID, ReviewerID: f.r1.UserID})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceManual, a.Origin)
	assert.False(t, a.Present)
	assert.False(t, a.Justified)

	a, err = f.svc.Agenda.MarkAttendance(f.ctx, actorOf(f.admin), MarkAttendanceInput{MeetingID: m.MeetingID, ReviewerID: f.r1.UserID, Justification: "Mission"})
	require.NoError(t, err)
	assert.True(t, a.Justified)

	a, err = f.svc.Agenda.MarkAttendance(f.ctx, actorOf(f.admin), MarkAttendanceInput{MeetingID: m.MeetingID, ReviewerID: f.r1.UserID, Present: true, Justification: "Mission"})
	require.NoError(t, err)
	assert.True(t, a.Present)
	assert.False(t, a.Justified)

	attendance, err := f.store.ListAttendance(f.ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Len(t, attendance, 1)

	_, err = f.svc.Agenda.MarkAttendance(f.ctx, actorOf(f.admin), MarkAttendanceInput{MeetingID: 9999, ReviewerID: f.r1.UserID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgendaConcurrentAddsGetDistinctIndices(t *testing.T) {
	f := newFixture(t)
	m := f.openMeeting()
	const n = 8
	projects := make([]*models.Project, n)
	for i := range projects {
		projects[i], _ = f.projectUnderEvaluation(0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, p := range projects {
		wg.Add(1)
		go func(projectID uint) {
			defer wg.Done()
			_, err := f.svc.Agenda.Add(f.ctx, actorOf(f.admin), m.MeetingID, projectID)
			errs <- err
		}(p.ProjectID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := f.svc.Agenda.List(f.ctx, actorOf(f.admin), m.MeetingID)
	require.NoError(t, err)
	require.Len(t, entries, n)
	seen := make(map[int]bool, n)
	for _, e := range entries {
		assert.False(t, seen[e.OrderIndex], "duplicate order index %d", e.OrderIndex)
		seen[e.OrderIndex] = true
	}
	for i := 0; i < n; i++ {
		assert.True(t, seen[i], "missing order index %d", i)
	}
}
