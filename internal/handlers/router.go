package handlers

import (
	"github.com/OrbitXSolutions/exam-integrity-service/internal/reports"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	attemptHandler  *AttemptHandler
	proctorHandler  *ProctorHandler
	incidentHandler *IncidentHandler
	appealHandler   *AppealHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	exporter *reports.CaseExporter,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		attemptHandler:  NewAttemptHandler(serviceManager.AttemptTimer(), logger),
		proctorHandler:  NewProctorHandler(serviceManager.ProctorSession(), serviceManager.RiskEngine(), logger),
		incidentHandler: NewIncidentHandler(serviceManager.Incident(), exporter, logger),
		appealHandler:   NewAppealHandler(serviceManager.Appeal(), logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Attempt timer routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/:id/submit", hm.attemptHandler.SubmitAttempt)
			attempts.POST("/:id/pause", hm.attemptHandler.PauseAttempt)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.POST("/:id/force-end", hm.attemptHandler.ForceEndAttempt)
			attempts.POST("/:id/add-time", hm.attemptHandler.AddTime)
			attempts.GET("/:id/timer", hm.attemptHandler.GetTimer)
		}

		// Proctor session routes
		sessions := v1.Group("/proctor/sessions")
		{
			sessions.POST("", hm.proctorHandler.OpenSession)
			sessions.GET("/:id", hm.proctorHandler.GetSession)
			sessions.POST("/:id/events", hm.proctorHandler.IngestEvent)
			sessions.GET("/:id/events", hm.proctorHandler.ListEvents)
			sessions.POST("/:id/heartbeat", hm.proctorHandler.Heartbeat)
			sessions.POST("/:id/close", hm.proctorHandler.CloseSession)
			sessions.POST("/:id/evidence", hm.proctorHandler.AttachEvidence)
			sessions.GET("/:id/evidence", hm.proctorHandler.ListEvidence)
			sessions.POST("/:id/decision", hm.proctorHandler.RecordDecision)
			sessions.GET("/:id/replay-score", hm.proctorHandler.ReplayScore)
		}

		// Risk rule routes
		rules := v1.Group("/proctor/rules")
		{
			rules.POST("", hm.proctorHandler.AddRule)
			rules.GET("", hm.proctorHandler.ListRules)
			rules.DELETE("/:id", hm.proctorHandler.DeactivateRule)
		}

		// Incident case routes
		incidents := v1.Group("/incidents")
		{
			incidents.POST("", hm.incidentHandler.CreateIncident)
			incidents.GET("", hm.incidentHandler.ListIncidents)
			incidents.GET("/:id", hm.incidentHandler.GetIncident)
			incidents.GET("/:id/details", hm.incidentHandler.GetIncidentWithDetails)
			incidents.GET("/:id/export", hm.incidentHandler.ExportIncident)
			incidents.POST("/:id/assign", hm.incidentHandler.AssignIncident)
			incidents.PUT("/:id/status", hm.incidentHandler.ChangeIncidentStatus)
			incidents.POST("/:id/evidence", hm.incidentHandler.LinkEvidence)
			incidents.POST("/:id/decision", hm.incidentHandler.RecordDecision)
			incidents.POST("/:id/reopen", hm.incidentHandler.ReopenIncident)
			incidents.POST("/:id/comments", hm.incidentHandler.AddComment)
			incidents.PUT("/comments/:comment_id", hm.incidentHandler.EditComment)
			incidents.GET("/:id/appeals", hm.appealHandler.ListAppealsByCase)
		}

		// Appeal routes
		appeals := v1.Group("/appeals")
		{
			appeals.POST("", hm.appealHandler.SubmitAppeal)
			appeals.GET("", hm.appealHandler.ListAppeals)
			appeals.GET("/:id", hm.appealHandler.GetAppeal)
			appeals.POST("/:id/review/start", hm.appealHandler.StartReview)
			appeals.POST("/:id/review", hm.appealHandler.ReviewAppeal)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "exam-integrity-service",
		})
	})
}

// IdentityMiddleware resolves the caller identity from the gateway-provided
// header. Upstream auth terminates at the gateway; this service trusts it.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	}
}
