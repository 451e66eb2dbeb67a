package services

import (
	"context"
	"sort"
	"time"

	"cerbo-api/models"
)

// MinutesRecord is the read-only projection of a meeting handed to the
// renderer.
type MinutesRecord struct {
	Meeting   MinutesMeeting    `json:"meeting"`
	Present   []MinutesAttendee `json:"present"`
	Absent    []MinutesAttendee `json:"absent"`
	Examiners []MinutesPerson   `json:"examiners"`
	Projects  []MinutesProject  `json:"projects"`
}

type MinutesMeeting struct {
	MeetingID   uint                 `json:"meeting_id"`
	Label       string               `json:"label"`
	ScheduledAt time.Time            `json:"scheduled_at"`
	Status      models.MeetingStatus `json:"status"`
}

type MinutesPerson struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
}

type MinutesAttendee struct {
	MinutesPerson
	Justified     bool   `json:"justified"`
	Justification string `json:"justification,omitempty"`
}

type MinutesProject struct {
	ProjectID     uint              `json:"project_id"`
	ReferenceCode string            `json:"reference_code"`
	Title         string            `json:"title"`
	OrderIndex    int               `json:"order_index"`
	Decision      string            `json:"decision,omitempty"`
	Responses     []MinutesResponse `json:"responses,omitempty"`
}

type MinutesResponse struct {
	ReportID     uint      `json:"report_id"`
	RespondedAt  time.Time `json:"responded_at"`
	ResponseText string    `json:"response_text"`
}

func (c *core) person(ctx context.Context, userID uint) MinutesPerson {
	p := MinutesPerson{UserID: userID, Name: models.User{UserID: userID}.DisplayName()}
	if u, err := c.store.GetUser(ctx, userID); err == nil {
		p.Name = u.DisplayName()
	}
	return p
}

// AssembleMinutes joins attendance, examiners, agenda decisions and
// investigator responses for one meeting.
func (s *MeetingService) AssembleMinutes(ctx context.Context, actor Actor, meetingID uint) (*MinutesRecord, error) {
	m, err := s.Get(ctx, actor, meetingID)
	if err != nil {
		return nil, err
	}
	rec := &MinutesRecord{
		Meeting:   MinutesMeeting{MeetingID: m.MeetingID, Label: m.Label, ScheduledAt: m.ScheduledAt, Status: m.Status},
		Present:   []MinutesAttendee{},
		Absent:    []MinutesAttendee{},
		Examiners: []MinutesPerson{},
		Projects:  []MinutesProject{},
	}

	attendance, err := s.store.ListAttendance(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	for _, a := range attendance {
		row := MinutesAttendee{MinutesPerson: s.person(ctx, a.ReviewerID), Justified: a.Justified}
		if a.Justification != nil {
			row.Justification = *a.Justification
		}
		if a.Present {
			rec.Present = append(rec.Present, row)
		} else {
			rec.Absent = append(rec.Absent, row)
		}
	}

	entries, err := s.store.ListAgenda(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	examiners := make(map[uint]bool)
	for _, e := range entries {
		p, err := s.store.GetProject(ctx, e.ProjectID)
		if err != nil {
			if isStoreMiss(err) {
				continue
			}
			return nil, err
		}
		row := MinutesProject{ProjectID: p.ProjectID, ReferenceCode: p.ReferenceCode, Title: p.Title, OrderIndex: e.OrderIndex}
		if e.Decision != nil {
			row.Decision = *e.Decision
		}

		reviews, err := s.store.ListReviews(ctx, p.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews {
			if r.FinalSubmission() {
				examiners[r.ReviewerID] = true
			}
		}

		reports, err := s.store.ListReports(ctx, p.ProjectID)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			if r.ResponseText == nil || r.ResponseAt == nil {
				continue
			}
			row.Responses = append(row.Responses, MinutesResponse{ReportID: r.ReportID, RespondedAt: *r.ResponseAt, ResponseText: *r.ResponseText})
		}
		rec.Projects = append(rec.Projects, row)
	}

	ids := make([]uint, 0, len(examiners))
	for id := range examiners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rec.Examiners = append(rec.Examiners, s.person(ctx, id))
	}
	return rec, nil
}

// RenderMinutes assembles the minutes and hands them to the renderer.
func (s *MeetingService) RenderMinutes(ctx context.Context, actor Actor, meetingID uint) ([]byte, error) {
	if err := Authorize(actor, OpManageMeetings, Target{}); err != nil {
		return nil, err
	}
	rec, err := s.AssembleMinutes(ctx, actor, meetingID)
	if err != nil {
		return nil, err
	}
	renderCtx, cancel := context.WithTimeout(ctx, s.settings.RenderTimeout)
	defer cancel()
	data, err := s.renderer.RenderMinutes(renderCtx, *rec)
	if err != nil {
		renderFailures.WithLabelValues("minutes").Inc()
		return nil, &DependencyError{Collaborator: "renderer", Err: err}
	}
	return data, nil
}
