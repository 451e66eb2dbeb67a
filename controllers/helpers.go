package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"cerbo-api/middleware"
	"cerbo-api/services"

	"github.com/gin-gonic/gin"
)

var (
	svc       *services.Services
	sweepLock string
)

// Configure installs the services the handlers delegate to. lockName guards
// deadline sweeps started over HTTP.
func Configure(s *services.Services, lockName string) {
	svc = s
	sweepLock = lockName
}

func currentActor(c *gin.Context) services.Actor {
	return services.Actor{
		ID:    c.GetUint(middleware.ContextUserID),
		Email: c.GetString(middleware.ContextEmail),
		Roles: c.GetStringSlice(middleware.ContextRoles),
	}
}

func paramID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload", "details": err.Error()})
		return false
	}
	return true
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError maps a service error onto an HTTP status.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrIncompleteSubmission), errors.Is(err, services.ErrNoValidRemarks):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrDeadlinePassed):
		status = http.StatusGone
	case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrDeadlineSweepAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, services.ErrDependency):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func sendFile(c *gin.Context, name, contentType string, data []byte) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
		if strings.HasPrefix(contentType, "text/html") {
			name = strings.TrimSuffix(name, ".pdf") + ".html"
		}
	}
	name = strings.ReplaceAll(name, `"`, "")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Data(http.StatusOK, contentType, data)
}
