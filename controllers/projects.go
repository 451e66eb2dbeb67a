package controllers

import (
	"io"
	"net/http"

	"cerbo-api/models"
	"cerbo-api/services"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 20 << 20

type submitProjectReq struct {
	Title             string `json:"title" binding:"required"`
	CoInvestigatorIDs []uint `json:"co_investigator_ids"`
}

type assignReviewersReq struct {
	ReviewerIDs []uint `json:"reviewer_ids" binding:"required"`
}

type decisionReq struct {
	Decision string `json:"decision" binding:"required"`
	Reason   string `json:"reason"`
}

func SubmitProject(c *gin.Context) {
	var req submitProjectReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := svc.Projects.Submit(c.Request.Context(), currentActor(c), services.SubmitProjectInput{
		Title:             req.Title,
		CoInvestigatorIDs: req.CoInvestigatorIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, p)
}

func ListProjects(c *gin.Context) {
	projects, err := svc.Projects.List(c.Request.Context(), currentActor(c), models.ProjectStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, projects)
}

func GetProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := svc.Projects.Get(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func DeleteProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := svc.Projects.Delete(c.Request.Context(), currentActor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "project deleted"})
}

func AssignReviewers(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req assignReviewersReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := svc.Projects.AssignReviewers(c.Request.Context(), currentActor(c), id, req.ReviewerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func DecideProject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req decisionReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := svc.Projects.Decide(c.Request.Context(), currentActor(c), id, models.ProjectStatus(req.Decision), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func GetProjectHistory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	rows, err := svc.Projects.History(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rows)
}

// UploadDocument accepts a multipart "file" field.
func UploadDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	doc, err := svc.Projects.AddDocument(c.Request.Context(), currentActor(c), services.AddDocumentInput{
		ProjectID: id,
		Filename:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, doc)
}

func ListDocuments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	docs, err := svc.Projects.ListDocuments(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, docs)
}

func DownloadDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	doc, data, err := svc.Projects.DownloadDocument(c.Request.Context(), currentActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	sendFile(c, doc.OriginalName, doc.MimeType, data)
}
