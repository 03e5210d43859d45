package regress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReportPack is the evidence bundle of one regression run, written next to
// the fixtures so a run can be archived and reviewed.
type ReportPack struct {
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Pass      bool      `json:"pass"`

	CaseCount int `json:"case_count"`
	PassCount int `json:"pass_count"`
	FailCount int `json:"fail_count"`

	Results []CaseResult `json:"results"`
}

func NewReportPack() *ReportPack {
	return &ReportPack{StartedAt: time.Now()}
}

func (p *ReportPack) AddResult(res CaseResult) {
	p.Results = append(p.Results, res)
}

func (p *ReportPack) Finish() {
	p.EndedAt = time.Now()
	p.CaseCount = len(p.Results)
	p.PassCount = 0
	for _, r := range p.Results {
		if r.Pass {
			p.PassCount++
		}
	}
	p.FailCount = p.CaseCount - p.PassCount
	p.Pass = p.FailCount == 0
}

// Failures returns the failing results.
func (p *ReportPack) Failures() []CaseResult {
	var out []CaseResult
	for _, r := range p.Results {
		if !r.Pass {
			out = append(out, r)
		}
	}
	return out
}

// Write stores the pack as summary.json in dir.
func (p *ReportPack) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(dir, "summary.json")
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

func (p *ReportPack) String() string {
	return fmt.Sprintf("regress: %d cases, %d pass, %d fail", p.CaseCount, p.PassCount, p.FailCount)
}
