package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunReview drives the interactive review: the item-by-item review screen
// first, then the summary. The returned session carries the reviewer's
// decisions.
func RunReview(session *ReviewSession) (*ReviewSession, error) {
	p := tea.NewProgram(NewReviewModel(session), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("TUI error: %w", err)
	}
	final := finalModel.(ReviewModel)

	sp := tea.NewProgram(NewSummaryModel(final.session), tea.WithAltScreen())
	if _, err := sp.Run(); err != nil {
		return nil, fmt.Errorf("summary error: %w", err)
	}
	return final.session, nil
}

// ReviewReport is the JSON record of one review pass.
type ReviewReport struct {
	Timestamp  string              `json:"timestamp"`
	Source     string              `json:"source"`
	SessionID  string              `json:"session_id,omitempty"`
	GateStatus string              `json:"gate_status,omitempty"`
	Items      []ReviewReportItem  `json:"items"`
	Summary    ReviewReportSummary `json:"summary"`
}

type ReviewReportItem struct {
	Activity string `json:"activity"`
	Handler  string `json:"handler"`
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
}

type ReviewReportSummary struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Flagged  int `json:"flagged"`
	Pending  int `json:"pending"`
}

// BuildReviewReport collects the session's decisions into a report.
func BuildReviewReport(session *ReviewSession) ReviewReport {
	items := make([]ReviewReportItem, 0, len(session.Items))
	for _, item := range session.Items {
		items = append(items, ReviewReportItem{
			Activity: item.Activity,
			Handler:  item.Handler,
			Status:   item.Status.String(),
			Note:     item.Note,
		})
	}

	tally := session.Tally()
	return ReviewReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Source:     session.Source,
		SessionID:  session.SessionID,
		GateStatus: session.GateStatus,
		Items:      items,
		Summary: ReviewReportSummary{
			Total:    tally.Total,
			Approved: tally.Approved,
			Flagged:  tally.Flagged,
			Pending:  tally.Pending,
		},
	}
}

// SaveReviewReport writes the review report as indented JSON.
func SaveReviewReport(session *ReviewSession, outputPath string) error {
	report := BuildReviewReport(session)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
