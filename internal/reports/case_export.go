package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/OrbitXSolutions/exam-integrity-service/internal/models"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/repositories"
	"github.com/OrbitXSolutions/exam-integrity-service/internal/services"
	"github.com/xuri/excelize/v2"
)

// CaseExporter renders an incident case review packet as a spreadsheet: one
// sheet with the case summary, one per append-only trail (timeline, decisions,
// evidence links). Evidence refs are resolved to preview URLs so reviewers can
// open the stored object straight from the sheet.
type CaseExporter struct {
	repo     repositories.Repository
	evidence services.EvidenceStore
}

func NewCaseExporter(repo repositories.Repository, evidence services.EvidenceStore) *CaseExporter {
	return &CaseExporter{repo: repo, evidence: evidence}
}

func (e *CaseExporter) Export(ctx context.Context, caseID uint, w io.Writer) error {
	c, err := e.repo.Incident().GetByIDWithDetails(ctx, caseID)
	if err != nil {
		return fmt.Errorf("failed to load case %d: %w", caseID, err)
	}
	links, err := e.repo.Incident().ListEvidenceLinks(ctx, caseID)
	if err != nil {
		return fmt.Errorf("failed to load evidence links: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeSummary(f, c); err != nil {
		return err
	}
	if err := e.writeTimeline(f, c.Timeline); err != nil {
		return err
	}
	if err := e.writeDecisions(f, c.Decisions); err != nil {
		return err
	}
	if err := e.writeEvidence(ctx, f, links); err != nil {
		return err
	}

	// The default sheet is replaced by Summary.
	f.DeleteSheet("Sheet1")
	return f.Write(w)
}

func (e *CaseExporter) writeSummary(f *excelize.File, c *models.IncidentCase) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Case Number", c.CaseNumber},
		{"Status", string(c.Status)},
		{"Severity", string(c.Severity)},
		{"Source", string(c.Source)},
		{"Title", c.Title},
		{"Summary", c.Summary},
		{"Exam ID", c.ExamID},
		{"Attempt ID", c.AttemptID},
		{"Candidate ID", c.CandidateID},
		{"Risk Score At Create", c.RiskScoreAtCreate},
		{"Violations At Create", c.TotalViolationsAtCreate},
		{"Created At", formatTime(&c.CreatedAt)},
	}
	if c.AssignedTo != nil {
		rows = append(rows, []interface{}{"Assigned To", *c.AssignedTo})
	}
	if c.Outcome != nil {
		rows = append(rows, []interface{}{"Outcome", string(*c.Outcome)})
	}
	if c.ResolvedAt != nil {
		rows = append(rows, []interface{}{"Resolved At", formatTime(c.ResolvedAt)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func (e *CaseExporter) writeTimeline(f *excelize.File, entries []models.IncidentTimelineEntry) error {
	const sheet = "Timeline"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []interface{}{"Time", "Type", "Actor", "Note", "Detail"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, entry := range entries {
		row := []interface{}{
			formatTime(&entry.CreatedAt),
			string(entry.Type),
			entry.ActorID,
			entry.Note,
			string(entry.Detail),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func (e *CaseExporter) writeDecisions(f *excelize.File, decisions []models.IncidentDecision) error {
	const sheet = "Decisions"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []interface{}{"Decided At", "Outcome", "Reason", "Decided By", "Closed Case"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, d := range decisions {
		row := []interface{}{
			formatTime(&d.DecidedAt),
			string(d.Outcome),
			d.Reason,
			d.DecidedBy,
			d.ClosedCase,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func (e *CaseExporter) writeEvidence(ctx context.Context, f *excelize.File, links []*models.IncidentEvidenceLink) error {
	const sheet = "Evidence"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	header := []interface{}{"Linked At", "Evidence Ref", "Linked By", "Preview URL"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, link := range links {
		// A ref the store cannot resolve still exports; the reviewer sees the
		// raw ref with an empty preview column.
		preview := ""
		if info, err := e.evidence.Resolve(ctx, link.EvidenceRef); err == nil {
			preview = info.PreviewURL
		}
		row := []interface{}{
			formatTime(&link.CreatedAt),
			link.EvidenceRef,
			link.LinkedBy,
			preview,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
