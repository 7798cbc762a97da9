package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/validator"
	"gorm.io/gorm"
)

// In-memory repository fake shared by the service tests. Write semantics
// mirror the postgres implementation closely enough for workflow tests:
// IDs are assigned on create, reads of absent rows return
// gorm.ErrRecordNotFound, soft-deleted rows disappear from reads.

type memoryRepository struct {
	mu sync.Mutex

	attempts  map[uint]*models.Attempt
	sessions  map[uint]*models.ProctorSession
	events    map[uint]*models.ProctorEvent
	evidence  map[uint]*models.ProctorEvidence
	rules     map[uint]*models.ProctorRiskRule
	snapshots map[uint]*models.ProctorRiskSnapshot
	decisions map[uint]*models.ProctorDecision

	cases         map[uint]*models.IncidentCase
	timeline      map[uint]*models.IncidentTimelineEntry
	caseDecisions map[uint]*models.IncidentDecision
	evidenceLinks map[uint]*models.IncidentEvidenceLink
	comments      map[uint]*models.IncidentComment

	appeals  map[uint]*models.AppealRequest
	counters map[string]int64

	// now stands in for the database clock on soft-delete timestamps.
	now func() time.Time

	nextID uint
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		attempts:      make(map[uint]*models.Attempt),
		sessions:      make(map[uint]*models.ProctorSession),
		events:        make(map[uint]*models.ProctorEvent),
		evidence:      make(map[uint]*models.ProctorEvidence),
		rules:         make(map[uint]*models.ProctorRiskRule),
		snapshots:     make(map[uint]*models.ProctorRiskSnapshot),
		decisions:     make(map[uint]*models.ProctorDecision),
		cases:         make(map[uint]*models.IncidentCase),
		timeline:      make(map[uint]*models.IncidentTimelineEntry),
		caseDecisions: make(map[uint]*models.IncidentDecision),
		evidenceLinks: make(map[uint]*models.IncidentEvidenceLink),
		comments:      make(map[uint]*models.IncidentComment),
		appeals:       make(map[uint]*models.AppealRequest),
		counters:      make(map[string]int64),
		now:           time.Now,
	}
}

func (m *memoryRepository) allocID() uint {
	m.nextID++
	return m.nextID
}

func (m *memoryRepository) Attempt() repositories.AttemptRepository   { return (*memAttemptRepo)(m) }
func (m *memoryRepository) Proctor() repositories.ProctorRepository   { return (*memProctorRepo)(m) }
func (m *memoryRepository) Incident() repositories.IncidentRepository { return (*memIncidentRepo)(m) }
func (m *memoryRepository) Appeal() repositories.AppealRepository     { return (*memAppealRepo)(m) }
func (m *memoryRepository) Counter() repositories.CounterRepository   { return (*memCounterRepo)(m) }

func (m *memoryRepository) WithTx(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

// ===== ATTEMPTS =====

type memAttemptRepo memoryRepository

func (r *memAttemptRepo) Create(ctx context.Context, attempt *models.Attempt) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt.ID = m.allocID()
	m.attempts[attempt.ID] = attempt
	return nil
}

func (r *memAttemptRepo) GetByID(ctx context.Context, id uint) (*models.Attempt, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok || attempt.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *memAttemptRepo) Update(ctx context.Context, attempt *models.Attempt) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.ID] = attempt
	return nil
}

func (r *memAttemptRepo) SoftDelete(ctx context.Context, id uint, deletedBy string) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	attempt, ok := m.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.DeletedBy = &deletedBy
	attempt.DeletedAt = gorm.DeletedAt{Time: m.now(), Valid: true}
	return nil
}

func (r *memAttemptRepo) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.attempts {
		if a.DeletedAt.Valid {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		if filters.CandidateID != nil && a.CandidateID != *filters.CandidateID {
			continue
		}
		out = append(out, a)
	}
	sortByID(out, func(a *models.Attempt) uint { return a.ID })
	return out, int64(len(out)), nil
}

func (r *memAttemptRepo) GetByCandidateAndExam(ctx context.Context, candidateID string, examID uint) ([]*models.Attempt, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.attempts {
		if a.DeletedAt.Valid || a.CandidateID != candidateID || a.ExamID != examID {
			continue
		}
		out = append(out, a)
	}
	sortByID(out, func(a *models.Attempt) uint { return a.ID })
	return out, nil
}

func (r *memAttemptRepo) NextAttemptNumber(ctx context.Context, candidateID string, examID uint) (int, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, a := range m.attempts {
		if a.CandidateID == candidateID && a.ExamID == examID && a.AttemptNumber > max {
			max = a.AttemptNumber
		}
	}
	return max + 1, nil
}

func (r *memAttemptRepo) GetExpiredRunning(ctx context.Context, now time.Time) ([]*models.Attempt, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Attempt
	for _, a := range m.attempts {
		if a.DeletedAt.Valid || a.Status.IsTerminal() || a.ExpiresAt == nil {
			continue
		}
		if a.ExpiresAt.Before(now) {
			out = append(out, a)
		}
	}
	sortByID(out, func(a *models.Attempt) uint { return a.ID })
	return out, nil
}

// ===== PROCTOR =====

type memProctorRepo memoryRepository

func (r *memProctorRepo) CreateSession(ctx context.Context, session *models.ProctorSession) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = m.allocID()
	m.sessions[session.ID] = session
	return nil
}

func (r *memProctorRepo) GetSessionByID(ctx context.Context, id uint) (*models.ProctorSession, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (r *memProctorRepo) UpdateSession(ctx context.Context, session *models.ProctorSession) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (r *memProctorRepo) GetActiveSession(ctx context.Context, attemptID uint, mode models.ProctorMode) (*models.ProctorSession, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AttemptID == attemptID && s.Mode == mode && s.Status == models.SessionActive && !s.DeletedAt.Valid {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memProctorRepo) GetActiveSessionsByAttempt(ctx context.Context, attemptID uint) ([]*models.ProctorSession, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorSession
	for _, s := range m.sessions {
		if s.AttemptID == attemptID && s.Status == models.SessionActive && !s.DeletedAt.Valid {
			out = append(out, s)
		}
	}
	sortByID(out, func(s *models.ProctorSession) uint { return s.ID })
	return out, nil
}

func (r *memProctorRepo) ListStaleSessions(ctx context.Context, heartbeatBefore time.Time) ([]*models.ProctorSession, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorSession
	for _, s := range m.sessions {
		if s.Status != models.SessionActive || s.DeletedAt.Valid {
			continue
		}
		if s.LastHeartbeatAt == nil || s.LastHeartbeatAt.Before(heartbeatBefore) {
			out = append(out, s)
		}
	}
	sortByID(out, func(s *models.ProctorSession) uint { return s.ID })
	return out, nil
}

func (r *memProctorRepo) CreateEvent(ctx context.Context, event *models.ProctorEvent) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.allocID()
	m.events[event.ID] = event
	return nil
}

func (r *memProctorRepo) ListEventsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvent, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorEvent
	for _, e := range m.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *memProctorRepo) CreateEvidence(ctx context.Context, evidence *models.ProctorEvidence) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	evidence.ID = m.allocID()
	m.evidence[evidence.ID] = evidence
	return nil
}

func (r *memProctorRepo) ListEvidenceBySession(ctx context.Context, sessionID uint) ([]*models.ProctorEvidence, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorEvidence
	for _, e := range m.evidence {
		if e.SessionID == sessionID && !e.DeletedAt.Valid {
			out = append(out, e)
		}
	}
	sortByID(out, func(e *models.ProctorEvidence) uint { return e.ID })
	return out, nil
}

func (r *memProctorRepo) ListActiveRules(ctx context.Context, eventType *models.ProctorEventType) ([]*models.ProctorRiskRule, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorRiskRule
	for _, rule := range m.rules {
		if !rule.IsActive || rule.DeletedAt.Valid {
			continue
		}
		if eventType != nil && rule.EventType != *eventType {
			continue
		}
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r *memProctorRepo) GetRulesByIDs(ctx context.Context, ids []uint) ([]*models.ProctorRiskRule, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorRiskRule
	for _, id := range ids {
		// Unscoped: deactivated and soft-deleted rules still resolve.
		if rule, ok := m.rules[id]; ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *memProctorRepo) CreateRule(ctx context.Context, rule *models.ProctorRiskRule) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	rule.ID = m.allocID()
	m.rules[rule.ID] = rule
	return nil
}

func (r *memProctorRepo) DeactivateRule(ctx context.Context, id uint, updatedBy string) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	rule.IsActive = false
	rule.UpdatedBy = updatedBy
	return nil
}

func (r *memProctorRepo) CreateSnapshot(ctx context.Context, snapshot *models.ProctorRiskSnapshot) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot.ID = m.allocID()
	m.snapshots[snapshot.ID] = snapshot
	return nil
}

func (r *memProctorRepo) GetLatestSnapshot(ctx context.Context, sessionID uint) (*models.ProctorRiskSnapshot, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.ProctorRiskSnapshot
	for _, s := range m.snapshots {
		if s.SessionID != sessionID {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *memProctorRepo) ListSnapshotsBySession(ctx context.Context, sessionID uint) ([]*models.ProctorRiskSnapshot, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ProctorRiskSnapshot
	for _, s := range m.snapshots {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	sortByID(out, func(s *models.ProctorRiskSnapshot) uint { return s.ID })
	return out, nil
}

func (r *memProctorRepo) GetDecisionBySession(ctx context.Context, sessionID uint) (*models.ProctorDecision, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.decisions {
		if d.SessionID == sessionID {
			return d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memProctorRepo) SaveDecision(ctx context.Context, decision *models.ProctorDecision) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if decision.ID == 0 {
		decision.ID = m.allocID()
	}
	m.decisions[decision.ID] = decision
	return nil
}

// ===== INCIDENTS =====

type memIncidentRepo memoryRepository

func (r *memIncidentRepo) Create(ctx context.Context, c *models.IncidentCase) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.allocID()
	m.cases[c.ID] = c
	return nil
}

func (r *memIncidentRepo) GetByID(ctx context.Context, id uint) (*models.IncidentCase, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok || c.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *memIncidentRepo) GetByIDWithDetails(ctx context.Context, id uint) (*models.IncidentCase, error) {
	c, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Timeline = nil
	c.Decisions = nil
	for _, e := range m.timeline {
		if e.CaseID == id {
			c.Timeline = append(c.Timeline, *e)
		}
	}
	sort.Slice(c.Timeline, func(i, j int) bool { return c.Timeline[i].ID < c.Timeline[j].ID })
	for _, d := range m.caseDecisions {
		if d.CaseID == id {
			c.Decisions = append(c.Decisions, *d)
		}
	}
	sort.Slice(c.Decisions, func(i, j int) bool { return c.Decisions[i].ID < c.Decisions[j].ID })
	return c, nil
}

func (r *memIncidentRepo) Update(ctx context.Context, c *models.IncidentCase) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[c.ID] = c
	return nil
}

func (r *memIncidentRepo) List(ctx context.Context, filters repositories.IncidentFilters) ([]*models.IncidentCase, int64, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IncidentCase
	for _, c := range m.cases {
		if c.DeletedAt.Valid {
			continue
		}
		if filters.Status != nil && c.Status != *filters.Status {
			continue
		}
		if filters.Severity != nil && c.Severity != *filters.Severity {
			continue
		}
		out = append(out, c)
	}
	sortByID(out, func(c *models.IncidentCase) uint { return c.ID })
	return out, int64(len(out)), nil
}

func (r *memIncidentRepo) HasOpenCaseForAttempt(ctx context.Context, attemptID uint) (bool, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cases {
		if c.DeletedAt.Valid || c.AttemptID != attemptID {
			continue
		}
		if c.Status == models.IncidentOpen || c.Status == models.IncidentInReview {
			return true, nil
		}
	}
	return false, nil
}

func (r *memIncidentRepo) AppendTimeline(ctx context.Context, entry *models.IncidentTimelineEntry) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = m.allocID()
	m.timeline[entry.ID] = entry
	return nil
}

func (r *memIncidentRepo) ListTimeline(ctx context.Context, caseID uint) ([]*models.IncidentTimelineEntry, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IncidentTimelineEntry
	for _, e := range m.timeline {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	sortByID(out, func(e *models.IncidentTimelineEntry) uint { return e.ID })
	return out, nil
}

func (r *memIncidentRepo) CreateDecision(ctx context.Context, decision *models.IncidentDecision) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	decision.ID = m.allocID()
	m.caseDecisions[decision.ID] = decision
	return nil
}

func (r *memIncidentRepo) ListDecisions(ctx context.Context, caseID uint) ([]*models.IncidentDecision, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IncidentDecision
	for _, d := range m.caseDecisions {
		if d.CaseID == caseID {
			out = append(out, d)
		}
	}
	sortByID(out, func(d *models.IncidentDecision) uint { return d.ID })
	return out, nil
}

func (r *memIncidentRepo) CreateEvidenceLink(ctx context.Context, link *models.IncidentEvidenceLink) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	link.ID = m.allocID()
	m.evidenceLinks[link.ID] = link
	return nil
}

func (r *memIncidentRepo) ListEvidenceLinks(ctx context.Context, caseID uint) ([]*models.IncidentEvidenceLink, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.IncidentEvidenceLink
	for _, l := range m.evidenceLinks {
		if l.CaseID == caseID {
			out = append(out, l)
		}
	}
	sortByID(out, func(l *models.IncidentEvidenceLink) uint { return l.ID })
	return out, nil
}

func (r *memIncidentRepo) CreateComment(ctx context.Context, comment *models.IncidentComment) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	comment.ID = m.allocID()
	m.comments[comment.ID] = comment
	return nil
}

func (r *memIncidentRepo) GetCommentByID(ctx context.Context, id uint) (*models.IncidentComment, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	comment, ok := m.comments[id]
	if !ok || comment.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return comment, nil
}

func (r *memIncidentRepo) UpdateComment(ctx context.Context, comment *models.IncidentComment) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[comment.ID] = comment
	return nil
}

// ===== APPEALS =====

type memAppealRepo memoryRepository

func (r *memAppealRepo) Create(ctx context.Context, appeal *models.AppealRequest) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	appeal.ID = m.allocID()
	m.appeals[appeal.ID] = appeal
	return nil
}

func (r *memAppealRepo) GetByID(ctx context.Context, id uint) (*models.AppealRequest, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	appeal, ok := m.appeals[id]
	if !ok || appeal.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	return appeal, nil
}

func (r *memAppealRepo) Update(ctx context.Context, appeal *models.AppealRequest) error {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appeals[appeal.ID] = appeal
	return nil
}

func (r *memAppealRepo) ListByCase(ctx context.Context, caseID uint) ([]*models.AppealRequest, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AppealRequest
	for _, a := range m.appeals {
		if a.IncidentCaseID == caseID && !a.DeletedAt.Valid {
			out = append(out, a)
		}
	}
	sortByID(out, func(a *models.AppealRequest) uint { return a.ID })
	return out, nil
}

func (r *memAppealRepo) List(ctx context.Context, filters repositories.AppealFilters) ([]*models.AppealRequest, int64, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AppealRequest
	for _, a := range m.appeals {
		if a.DeletedAt.Valid {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		out = append(out, a)
	}
	sortByID(out, func(a *models.AppealRequest) uint { return a.ID })
	return out, int64(len(out)), nil
}

func (r *memAppealRepo) HasOpenAppealForCase(ctx context.Context, caseID uint) (bool, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appeals {
		if a.IncidentCaseID == caseID && a.Status.IsOpen() && !a.DeletedAt.Valid {
			return true, nil
		}
	}
	return false, nil
}

// ===== COUNTERS =====

type memCounterRepo memoryRepository

func (r *memCounterRepo) Next(ctx context.Context, name string) (int64, error) {
	m := (*memoryRepository)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return m.counters[name], nil
}

func sortByID[T any](items []T, id func(T) uint) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}

// ===== COLLABORATOR FAKES =====

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditRecord struct {
	Action     string
	EntityName string
	EntityID   uint
	ActorID    string
}

type fakeAuditSink struct {
	mu      sync.Mutex
	records []auditRecord
}

func (s *fakeAuditSink) Record(ctx context.Context, action, entityName string, entityID uint, actorID string, metadata map[string]interface{}, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, auditRecord{Action: action, EntityName: entityName, EntityID: entityID, ActorID: actorID})
}

func (s *fakeAuditSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = r.Action
	}
	return out
}

type pushedMessage struct {
	AttemptID uint
	EventName string
	Payload   interface{}
}

type fakeNotifier struct {
	mu     sync.Mutex
	pushes []pushedMessage
	fail   bool
}

func (n *fakeNotifier) PushToAttempt(ctx context.Context, attemptID uint, eventName string, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return context.DeadlineExceeded
	}
	n.pushes = append(n.pushes, pushedMessage{AttemptID: attemptID, EventName: eventName, Payload: payload})
	return nil
}

type fakeDirectory struct {
	unknown map[string]bool
}

func (d *fakeDirectory) Resolve(ctx context.Context, candidateID string) (string, error) {
	if d.unknown[candidateID] {
		return "", gorm.ErrRecordNotFound
	}
	return "Name of " + candidateID, nil
}

// noopRuleCache always misses; the engine falls through to the repository.
type noopRuleCache struct{}

func (noopRuleCache) GetRules(ctx context.Context, eventType models.ProctorEventType) ([]*models.ProctorRiskRule, bool) {
	return nil, false
}
func (noopRuleCache) SetRules(ctx context.Context, eventType models.ProctorEventType, rules []*models.ProctorRiskRule) {
}
func (noopRuleCache) Invalidate(ctx context.Context) {}

// ===== TEST ENVIRONMENT =====

type testEnv struct {
	repo      *memoryRepository
	clock     *fakeClock
	locks     *keyedMutex
	audit     *fakeAuditSink
	notifier  *fakeNotifier
	directory *fakeDirectory
	v         *validator.Validator
	logger    *slog.Logger
}

func newTestEnv() *testEnv {
	clock := newFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	repo := newMemoryRepository()
	repo.now = clock.Now
	return &testEnv{
		repo:      repo,
		clock:     clock,
		locks:     newKeyedMutex(),
		audit:     &fakeAuditSink{},
		notifier:  &fakeNotifier{},
		directory: &fakeDirectory{unknown: make(map[string]bool)},
		v:         validator.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) attemptTimer() AttemptTimerService {
	return NewAttemptTimerService(e.repo, e.clock, e.locks, e.audit, e.notifier, e.logger, e.v)
}

func (e *testEnv) riskEngine(threshold float64) RiskEngine {
	return NewRiskEngine(e.repo, noopRuleCache{}, threshold, e.logger)
}

func (e *testEnv) incidentService() *incidentService {
	return NewIncidentService(e.repo, e.clock, e.locks, e.audit, e.directory, e.logger, e.v)
}

func (e *testEnv) proctorStack(threshold float64, heartbeatTimeout time.Duration) (ProctorSessionService, RiskEngine, *incidentService) {
	engine := e.riskEngine(threshold)
	incidents := e.incidentService()
	sessions := NewProctorSessionService(e.repo, engine, incidents, e.clock, e.locks, e.audit, heartbeatTimeout, e.logger, e.v)
	return sessions, engine, incidents
}

func (e *testEnv) appealService() AppealService {
	return NewAppealService(e.repo, e.clock, e.locks, e.audit, e.notifier, e.logger, e.v)
}

func listAllIncidents() repositories.IncidentFilters {
	return repositories.IncidentFilters{}
}

// startAttempt seeds one running attempt through the real service path.
func (e *testEnv) startAttempt(t *testing.T, candidateID string, examID uint, durationSeconds int) *models.Attempt {
	t.Helper()
	attempt, err := e.attemptTimer().Start(context.Background(), &StartAttemptRequest{
		CandidateID:     candidateID,
		ExamID:          examID,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		t.Fatalf("failed to seed attempt: %v", err)
	}
	return attempt
}
