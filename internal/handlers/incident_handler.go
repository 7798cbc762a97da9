package handlers

import (
	"fmt"
	"net/http"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/reports"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type IncidentHandler struct {
	BaseHandler
	incidentService services.IncidentService
	exporter        *reports.CaseExporter
}

func NewIncidentHandler(
	incidentService services.IncidentService,
	exporter *reports.CaseExporter,
	logger utils.Logger,
) *IncidentHandler {
	return &IncidentHandler{
		BaseHandler:     NewBaseHandler(logger),
		incidentService: incidentService,
		exporter:        exporter,
	}
}

// CreateIncident opens a manually reported case
func (h *IncidentHandler) CreateIncident(c *gin.Context) {
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.CreateIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CreatedBy = actorID
	if req.Source == "" {
		req.Source = models.SourceManualReport
	}

	created, err := h.incidentService.Create(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetIncident returns a case header
func (h *IncidentHandler) GetIncident(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	incident, err := h.incidentService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

// GetIncidentWithDetails returns a case with its timeline and decision history
func (h *IncidentHandler) GetIncidentWithDetails(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	incident, err := h.incidentService.GetWithTimeline(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

// ListIncidents lists cases with filters
func (h *IncidentHandler) ListIncidents(c *gin.Context) {
	var filters repositories.IncidentFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid query parameters",
			Details: err.Error(),
		})
		return
	}

	incidents, total, err := h.incidentService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": incidents,
		"total": total,
	})
}

type assignRequest struct {
	AssigneeID string `json:"assignee_id" binding:"required"`
}

// AssignIncident assigns the case to a reviewer
func (h *IncidentHandler) AssignIncident(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	incident, err := h.incidentService.Assign(c.Request.Context(), id, req.AssigneeID, actorID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

type changeStatusRequest struct {
	Status models.IncidentStatus `json:"status" binding:"required"`
	Note   string                `json:"note"`
}

// ChangeIncidentStatus moves the case along its workflow
func (h *IncidentHandler) ChangeIncidentStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	incident, err := h.incidentService.ChangeStatus(c.Request.Context(), id, req.Status, actorID, req.Note)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

type linkEvidenceRequest struct {
	EvidenceRef string `json:"evidence_ref" binding:"required"`
}

// LinkEvidence associates proctor evidence with the case
func (h *IncidentHandler) LinkEvidence(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req linkEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	link, err := h.incidentService.LinkEvidence(c.Request.Context(), id, req.EvidenceRef, actorID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// RecordDecision records a case outcome
func (h *IncidentHandler) RecordDecision(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.RecordDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CaseID = id
	req.DecidedBy = actorID

	incident, err := h.incidentService.RecordDecision(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

type reopenRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReopenIncident reopens a resolved or closed case
func (h *IncidentHandler) ReopenIncident(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req reopenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	incident, err := h.incidentService.Reopen(c.Request.Context(), id, actorID, req.Reason)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, incident)
}

type commentRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddComment attaches a comment to the case
func (h *IncidentHandler) AddComment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	comment, err := h.incidentService.AddComment(c.Request.Context(), id, actorID, req.Body)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, comment)
}

// EditComment updates a comment's body; only the author may edit
func (h *IncidentHandler) EditComment(c *gin.Context) {
	commentID := h.parseIDParam(c, "comment_id")
	if commentID == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	comment, err := h.incidentService.EditComment(c.Request.Context(), commentID, actorID, req.Body)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, comment)
}

// ExportIncident streams the case review packet as a spreadsheet
func (h *IncidentHandler) ExportIncident(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=case-%d.xlsx", id))

	if err := h.exporter.Export(c.Request.Context(), id, c.Writer); err != nil {
		h.LogError(c, err, "case export failed", "case_id", id)
		c.Status(http.StatusInternalServerError)
		return
	}
}
