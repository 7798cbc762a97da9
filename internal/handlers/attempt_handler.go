package handlers

import (
	"net/http"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AttemptHandler struct {
	BaseHandler
	timerService services.AttemptTimerService
}

func NewAttemptHandler(timerService services.AttemptTimerService, logger utils.Logger) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:  NewBaseHandler(logger),
		timerService: timerService,
	}
}

// StartAttempt starts a new timed attempt for a candidate
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	attempt, err := h.timerService.Start(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// SubmitAttempt ends an attempt normally
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	candidateID := h.actorID(c)
	if candidateID == "" {
		return
	}

	attempt, err := h.timerService.Submit(c.Request.Context(), id, candidateID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

// PauseAttempt suspends the countdown for an in-progress attempt
func (h *AttemptHandler) PauseAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	adminID := h.actorID(c)
	if adminID == "" {
		return
	}

	var req pauseRequest
	_ = c.ShouldBindJSON(&req)

	attempt, err := h.timerService.Pause(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ResumeAttempt restarts the countdown of a paused attempt
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	adminID := h.actorID(c)
	if adminID == "" {
		return
	}

	attempt, err := h.timerService.Resume(c.Request.Context(), id, adminID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

type forceEndRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ForceEndAttempt terminates an attempt by admin action
func (h *AttemptHandler) ForceEndAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	adminID := h.actorID(c)
	if adminID == "" {
		return
	}

	var req forceEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	attempt, err := h.timerService.ForceEnd(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

type addTimeRequest struct {
	ExtraMinutes int    `json:"extra_minutes" binding:"required"`
	Reason       string `json:"reason"`
}

// AddTime grants extra minutes to a running attempt
func (h *AttemptHandler) AddTime(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	adminID := h.actorID(c)
	if adminID == "" {
		return
	}

	var req addTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	attempt, err := h.timerService.AddTime(c.Request.Context(), id, adminID, req.ExtraMinutes, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetTimer returns the countdown view with action flags
func (h *AttemptHandler) GetTimer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	view, err := h.timerService.GetTimer(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
