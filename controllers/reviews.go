package controllers

import (
	"net/http"

	"cerbo-api/models"
	"cerbo-api/services"

	"github.com/gin-gonic/gin"
)

type recordReviewReq struct {
	// ReviewerID defaults to the caller.
	ReviewerID   uint   `json:"reviewer_id"`
	Content      string `json:"content" binding:"required"`
	RemarkStatus string `json:"remark_status"`
}

type reviewerReq struct {
	ReviewerID uint `json:"reviewer_id"`
}

type promoteRemarkReq struct {
	ReviewIDs []uint `json:"review_ids" binding:"required"`
}

type remarkStatusReq struct {
	Status       string  `json:"status" binding:"required"`
	AdminComment *string `json:"admin_comment"`
}

type remarkContentReq struct {
	Content string `json:"content" binding:"required"`
}

func reviewerOrSelf(c *gin.Context, id uint) uint {
	if id != 0 {
		return id
	}
	return currentActor(c).ID
}

func RecordReview(c *gin.Context) {
	docID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req recordReviewReq
	if !bindJSON(c, &req) {
		return
	}
	review, err := svc.Reviews.RecordReview(c.Request.Context(), currentActor(c), services.RecordReviewInput{
		DocumentID:   docID,
		ReviewerID:   reviewerOrSelf(c, req.ReviewerID),
		Content:      req.Content,
		RemarkStatus: models.RemarkStatus(req.RemarkStatus),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, review)
}

func FinalizeReview(c *gin.Context) {
	docID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reviewerReq
	_ = c.ShouldBindJSON(&req)
	review, err := svc.Reviews.FinalizeReview(c.Request.Context(), currentActor(c), docID, reviewerOrSelf(c, req.ReviewerID))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, review)
}

// SubmitReviews finalizes the caller's submission for a project.
func SubmitReviews(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reviewerReq
	_ = c.ShouldBindJSON(&req)
	if err := svc.Reviews.FinalizeReviewerSubmission(c.Request.Context(), currentActor(c), projectID, reviewerOrSelf(c, req.ReviewerID)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "reviews submitted"})
}

func ListReviews(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	reviews, err := svc.Reviews.List(c.Request.Context(), currentActor(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, reviews)
}

func GetReviewProgress(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	rows, err := svc.Reviews.Progress(c.Request.Context(), currentActor(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rows)
}

func PromoteRemark(c *gin.Context) {
	var req promoteRemarkReq
	if !bindJSON(c, &req) {
		return
	}
	remark, err := svc.Remarks.Promote(c.Request.Context(), currentActor(c), req.ReviewIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, remark)
}

func SetRemarkStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req remarkStatusReq
	if !bindJSON(c, &req) {
		return
	}
	remark, err := svc.Remarks.SetStatus(c.Request.Context(), currentActor(c), id, models.RemarkStatus(req.Status), req.AdminComment)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, remark)
}

func UpdateRemarkContent(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req remarkContentReq
	if !bindJSON(c, &req) {
		return
	}
	remark, err := svc.Remarks.UpdateContent(c.Request.Context(), currentActor(c), id, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, remark)
}

func ListRemarks(c *gin.Context) {
	projectID, ok := paramID(c, "id")
	if !ok {
		return
	}
	remarks, err := svc.Remarks.List(c.Request.Context(), currentActor(c), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, remarks)
}
