package handlers

import (
	"net/http"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type ProctorHandler struct {
	BaseHandler
	sessionService services.ProctorSessionService
	riskEngine     services.RiskEngine
}

func NewProctorHandler(
	sessionService services.ProctorSessionService,
	riskEngine services.RiskEngine,
	logger utils.Logger,
) *ProctorHandler {
	return &ProctorHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		riskEngine:     riskEngine,
	}
}

// OpenSession opens a proctor session for an attempt
func (h *ProctorHandler) OpenSession(c *gin.Context) {
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.OpenedBy = actorID

	session, err := h.sessionService.OpenSession(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession returns a session with its current counters and score
func (h *ProctorHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	session, err := h.sessionService.GetSession(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// IngestEvent records a behavioral event and scores it synchronously
func (h *ProctorHandler) IngestEvent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionID = id
	if req.Severity == 0 {
		req.Severity = 1
	}

	event, err := h.sessionService.IngestEvent(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

// Heartbeat marks the session as live
func (h *ProctorHandler) Heartbeat(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	if err := h.sessionService.Heartbeat(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "heartbeat recorded"})
}

type closeSessionRequest struct {
	Status models.ProctorSessionStatus `json:"status"`
}

// CloseSession moves a session to Completed or Cancelled
func (h *ProctorHandler) CloseSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	req := closeSessionRequest{Status: models.SessionCompleted}
	_ = c.ShouldBindJSON(&req)

	session, err := h.sessionService.CloseSession(c.Request.Context(), id, actorID, req.Status)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// AttachEvidence stores a reference to captured evidence
func (h *ProctorHandler) AttachEvidence(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.AttachEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionID = id
	req.AttachedBy = actorID

	evidence, err := h.sessionService.AttachEvidence(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, evidence)
}

// ListEvents returns the session's event trail in occurrence order
func (h *ProctorHandler) ListEvents(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	events, err := h.sessionService.ListEvents(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, events)
}

// ListEvidence returns the session's attached evidence references
func (h *ProctorHandler) ListEvidence(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	evidence, err := h.sessionService.ListEvidence(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, evidence)
}

// RecordDecision records or updates the session verdict
func (h *ProctorHandler) RecordDecision(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.RecordProctorDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.SessionID = id
	req.DecidedBy = actorID

	decision, err := h.sessionService.RecordDecision(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// ReplayScore recomputes the session score from its snapshot chain
func (h *ProctorHandler) ReplayScore(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	result, err := h.riskEngine.ReplayScore(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// AddRule creates a new active risk rule
func (h *ProctorHandler) AddRule(c *gin.Context) {
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	var req services.AddRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.CreatedBy = actorID

	rule, err := h.riskEngine.AddRule(c.Request.Context(), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// ListRules returns all active risk rules
func (h *ProctorHandler) ListRules(c *gin.Context) {
	rules, err := h.riskEngine.ListActiveRules(c.Request.Context())
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, rules)
}

// DeactivateRule retires a risk rule without affecting stored snapshots
func (h *ProctorHandler) DeactivateRule(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	actorID := h.actorID(c)
	if actorID == "" {
		return
	}

	if err := h.riskEngine.DeactivateRule(c.Request.Context(), id, actorID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "rule deactivated"})
}
