// Package report aggregates conformance results across suites into a single
// run report that can be summarized or exported as JSON.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/jsonutil"
)

// SuiteReport holds the results of one suite.
type SuiteReport struct {
	Name    string               `json:"name"`
	Results []conformance.Result `json:"results"`
	Passed  int                  `json:"passed"`
	Failed  int                  `json:"failed"`
}

// Report is one harness run.
type Report struct {
	RunID      string        `json:"run_id"`
	Target     string        `json:"target"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitzero"`
	Suites     []SuiteReport `json:"suites"`
}

// New creates a report with a fresh run id.
func New(target string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Target:    target,
		StartedAt: time.Now().UTC(),
	}
}

// AddSuite records a suite's results and its pass/fail tally.
func (r *Report) AddSuite(name string, results []conformance.Result) {
	sr := SuiteReport{Name: name, Results: results}
	for _, res := range results {
		if res.Passed {
			sr.Passed++
		} else {
			sr.Failed++
		}
	}
	r.Suites = append(r.Suites, sr)
}

// Merge appends another report's suites. The receiver's run id and start
// time win; the earliest start and latest finish are kept.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Suites = append(r.Suites, other.Suites...)
	if !other.StartedAt.IsZero() && other.StartedAt.Before(r.StartedAt) {
		r.StartedAt = other.StartedAt
	}
	if other.FinishedAt.After(r.FinishedAt) {
		r.FinishedAt = other.FinishedAt
	}
}

// Finish stamps the end of the run.
func (r *Report) Finish() {
	r.FinishedAt = time.Now().UTC()
}

// Totals returns the run-wide tally.
func (r *Report) Totals() (passed, failed, total int) {
	for _, s := range r.Suites {
		passed += s.Passed
		failed += s.Failed
	}
	return passed, failed, passed + failed
}

// Passed reports whether every case in every suite passed. An empty report
// has nothing failing and counts as passed.
func (r *Report) Passed() bool {
	_, failed, _ := r.Totals()
	return failed == 0
}

// Failures returns every failing result, tagged with its suite name.
func (r *Report) Failures() []conformance.Result {
	var out []conformance.Result
	for _, s := range r.Suites {
		for _, res := range s.Results {
			if !res.Passed {
				tagged := res
				tagged.Name = s.Name + "/" + res.Name
				out = append(out, tagged)
			}
		}
	}
	return out
}

// WriteJSON writes the indented JSON encoding of the report.
func (r *Report) WriteJSON(w io.Writer) error {
	data, err := jsonutil.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
