package handlers

import (
	"net/http"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type AppealHandler struct {
	BaseHandler
	appealService services.AppealService
}

func NewAppealHandler(appealService services.AppealService, logger utils.Logger) *AppealHandler {
	return &AppealHandler{
		BaseHandler:   NewBaseHandler(logger),
		appealService: appealService,
	}
}

// SubmitAppeal opens a dispute against a decided case
func (h *AppealHandler) SubmitAppeal(c *gin.Context) {
	candidateID := h.actorID(c)
	if candidateID == "" {
		return
	}

	var req services.SubmitAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CandidateID = candidateID

	appeal, err := h.appealService.Submit(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, appeal)
}

// GetAppeal returns one appeal
func (h *AppealHandler) GetAppeal(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	appeal, err := h.appealService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, appeal)
}

// ListAppeals lists appeals with filters
func (h *AppealHandler) ListAppeals(c *gin.Context) {
	var filters repositories.AppealFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	appeals, total, err := h.appealService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": appeals,
		"total": total,
	})
}

// ListAppealsByCase lists every appeal raised against one case
func (h *AppealHandler) ListAppealsByCase(c *gin.Context) {
	caseID := h.parseIDParam(c, "id")
	if caseID == 0 {
		return
	}

	appeals, err := h.appealService.ListByCase(c.Request.Context(), caseID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, appeals)
}

// StartReview claims a submitted appeal for review
func (h *AppealHandler) StartReview(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	reviewerID := h.actorID(c)
	if reviewerID == "" {
		return
	}

	appeal, err := h.appealService.StartReview(c.Request.Context(), id, reviewerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, appeal)
}

// ReviewAppeal approves or rejects an open appeal
func (h *AppealHandler) ReviewAppeal(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	reviewerID := h.actorID(c)
	if reviewerID == "" {
		return
	}

	var req services.ReviewAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.AppealID = id
	req.ReviewerID = reviewerID

	appeal, err := h.appealService.Review(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, appeal)
}
