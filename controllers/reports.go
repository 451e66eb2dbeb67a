package controllers

import (
	"fmt"
	"net/http"

	"cerbo-api/models"
	"cerbo-api/services"

	"github.com/gin-gonic/gin"
)

type buildReportReq struct {
	RemarkIDs []uint `json:"remark_ids" binding:"required"`
	Category  string `json:"category"`
}

type respondReportReq struct {
	ResponseText    string          `json:"response_text" binding:"required"`
	RemarkResponses map[uint]string `json:"remark_responses"`
}

type deadlineSweepReq struct {
	DryRun bool `json:"dry_run"`
}

func BuildReport(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req buildReportReq
	if !bindJSON(c, &req) {
		return
	}
	report, err := svc.Reports.Build(c.Request.Context(), currentActor(c), services.BuildReportInput{
		ProjectID: projectID,
		RemarkIDs: req.RemarkIDs,
		Category:  models.ReportCategory(req.Category),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, report)
}

func ListReports(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	reports, err := svc.Reports.List(c.Request.Context(), currentActor(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reports)
}

func GetReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := svc.Reports.Get(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func DispatchReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := svc.Reports.Dispatch(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func RespondReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req respondReportReq
	if !bindJSON(c, &req) {
		return
	}
	report, err := svc.Reports.Respond(c.Request.Context(), currentActor(c), services.RespondInput{
		ReportID:        id,
		ResponseText:    req.ResponseText,
		RemarkResponses: req.RemarkResponses,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func ArchiveReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	report, err := svc.Reports.Archive(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

func DiscardReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := svc.Reports.DiscardDraft(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "report discarded"})
}

func DownloadReport(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	data, err := svc.Reports.Download(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, fmt.Sprintf("rapport-%d.pdf", id), "", data)
}

// RunDeadlineSweep triggers a sweep from the admin console.
func RunDeadlineSweep(c *gin.Context) {
	actor := currentActor(c)
	if err := services.Authorize(actor, services.OpRunDeadlineSweep, services.Target{}); err != nil {
		respondError(c, err)
		return
	}
	var req deadlineSweepReq
	_ = c.ShouldBindJSON(&req)
	summary, err := svc.Sweep.Run(c.Request.Context(), &services.DeadlineSweepInput{
		TriggerSource: fmt.Sprintf("api:user:%d", actor.ID),
		LockName:      sweepLock,
		DryRun:        req.DryRun,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, summary)
}
