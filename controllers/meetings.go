package controllers

import (
	"net/http"
	"strconv"
	"time"

	"cerbo-api/services"

	"github.com/gin-gonic/gin"
)

type generateScheduleReq struct {
	Year    int  `json:"year" binding:"required"`
	Confirm bool `json:"confirm"`
}

type agendaProjectReq struct {
	ProjectID uint `json:"project_id" binding:"required"`
}

type agendaOrderReq struct {
	ProjectIDs []uint `json:"project_ids" binding:"required"`
}

type agendaDecisionReq struct {
	Decision string `json:"decision"`
}

type syncAttendeesReq struct {
	Prune bool `json:"prune"`
}

type attendeeReq struct {
	ReviewerID uint `json:"reviewer_id" binding:"required"`
}

type attendanceReq struct {
	ReviewerID    uint   `json:"reviewer_id" binding:"required"`
	Present       bool   `json:"present"`
	Justification string `json:"justification"`
}

func GenerateSchedule(c *gin.Context) {
	var req generateScheduleReq
	if !bindJSON(c, &req) {
		return
	}
	meetings, err := svc.Meetings.GenerateYearSchedule(c.Request.Context(), currentActor(c), req.Year, req.Confirm)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, meetings)
}

func ListMeetings(c *gin.Context) {
	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		year = y
	}
	meetings, err := svc.Meetings.List(c.Request.Context(), currentActor(c), year)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, meetings)
}

func GetMeeting(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	m, err := svc.Meetings.Get(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func ToggleMeeting(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	m, err := svc.Meetings.ToggleStatus(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, m)
}

func GetAgenda(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	entries, err := svc.Agenda.List(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

func AddAgendaProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req agendaProjectReq
	if !bindJSON(c, &req) {
		return
	}
	entry, err := svc.Agenda.Add(c.Request.Context(), currentActor(c), id, req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, entry)
}

func ReorderAgenda(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req agendaOrderReq
	if !bindJSON(c, &req) {
		return
	}
	entries, err := svc.Agenda.Reorder(c.Request.Context(), currentActor(c), id, req.ProjectIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

func RemoveAgendaProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	projectID, ok := paramID(c, "project_id")
	if !ok {
		return
	}
	if err := svc.Agenda.Remove(c.Request.Context(), currentActor(c), id, projectID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "project removed from agenda"})
}

func RecordAgendaDecision(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	projectID, ok := paramID(c, "project_id")
	if !ok {
		return
	}
	var req agendaDecisionReq
	if !bindJSON(c, &req) {
		return
	}
	entry, err := svc.Agenda.RecordDecision(c.Request.Context(), currentActor(c), id, projectID, req.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entry)
}

func SyncAttendees(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req syncAttendeesReq
	_ = c.ShouldBindJSON(&req)
	res, err := svc.Agenda.SyncAttendees(c.Request.Context(), currentActor(c), id, req.Prune)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res)
}

func AddAttendee(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req attendeeReq
	if !bindJSON(c, &req) {
		return
	}
	a, err := svc.Agenda.AddAttendee(c.Request.Context(), currentActor(c), id, req.ReviewerID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, a)
}

func RemoveAttendee(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	reviewerID, ok := paramID(c, "reviewer_id")
	if !ok {
		return
	}
	if err := svc.Agenda.RemoveAttendee(c.Request.Context(), currentActor(c), id, reviewerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "attendee removed"})
}

func MarkAttendance(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req attendanceReq
	if !bindJSON(c, &req) {
		return
	}
	a, err := svc.Agenda.MarkAttendance(c.Request.Context(), currentActor(c), services.MarkAttendanceInput{
		MeetingID:     id,
		ReviewerID:    req.ReviewerID,
		Present:       req.Present,
		Justification: req.Justification,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, a)
}

func ListAttendance(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rows, err := svc.Agenda.ListAttendance(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rows)
}

func GetMinutes(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rec, err := svc.Meetings.AssembleMinutes(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rec)
}

func DownloadMinutes(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	data, err := svc.Meetings.RenderMinutes(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, "proces-verbal-"+strconv.FormatUint(uint64(id), 10)+".pdf", "", data)
}
