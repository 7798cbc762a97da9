package services

import (
	"log/slog"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
)

// ServiceManager exposes the five integrity components behind one wiring
// point. All components share the repository, clock and per-entity locks so
// cross-component invariants hold.
type ServiceManager interface {
	AttemptTimer() AttemptTimerService
	ProctorSession() ProctorSessionService
	RiskEngine() RiskEngine
	Incident() IncidentService
	Appeal() AppealService
}

// ManagerConfig carries the knobs and collaborators the components need.
type ManagerConfig struct {
	RiskHighThreshold float64
	HeartbeatTimeout  time.Duration

	Audit     AuditSink
	Notifier  NotificationChannel
	Directory CandidateDirectory
	RuleCache RuleCache
	Clock     Clock
}

type serviceManager struct {
	attemptTimer   AttemptTimerService
	proctorSession ProctorSessionService
	riskEngine     RiskEngine
	incident       IncidentService
	appeal         AppealService
}

func NewServiceManager(
	repo repositories.Repository,
	cfg ManagerConfig,
	logger *slog.Logger,
	v *validator.Validator,
) ServiceManager {
	clock := cfg.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	locks := newKeyedMutex()

	riskEngine := NewRiskEngine(repo, cfg.RuleCache, cfg.RiskHighThreshold, logger)
	incident := NewIncidentService(repo, clock, locks, cfg.Audit, cfg.Directory, logger, v)
	proctorSession := NewProctorSessionService(repo, riskEngine, incident, clock, locks, cfg.Audit, cfg.HeartbeatTimeout, logger, v)
	attemptTimer := NewAttemptTimerService(repo, clock, locks, cfg.Audit, cfg.Notifier, logger, v)
	appeal := NewAppealService(repo, clock, locks, cfg.Audit, cfg.Notifier, logger, v)

	return &serviceManager{
		attemptTimer:   attemptTimer,
		proctorSession: proctorSession,
		riskEngine:     riskEngine,
		incident:       incident,
		appeal:         appeal,
	}
}

func (m *serviceManager) AttemptTimer() AttemptTimerService     { return m.attemptTimer }
func (m *serviceManager) ProctorSession() ProctorSessionService { return m.proctorSession }
func (m *serviceManager) RiskEngine() RiskEngine                { return m.riskEngine }
func (m *serviceManager) Incident() IncidentService             { return m.incident }
func (m *serviceManager) Appeal() AppealService                 { return m.appeal }
