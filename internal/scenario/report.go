package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/rovshanmuradov/reflex/internal/types"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index   int
	Action  Action
	Passed  bool
	Detail  string
	Error   string
	At      time.Time
	Receipt *types.Receipt
}

// Report collects the results of a scenario run.
type Report struct {
	Name      string
	StartedAt time.Time
	EndedAt   time.Time
	Steps     []StepResult
	Passed    int
	Failed    int
}

func (r *Report) add(res StepResult) {
	r.Steps = append(r.Steps, res)
	if res.Passed {
		r.Passed++
	} else {
		r.Failed++
	}
}

// OK reports whether every step passed.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// Failures returns the failed steps.
func (r *Report) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if !s.Passed {
			out = append(out, s)
		}
	}
	return out
}

// FormatText renders the report for a terminal.
func (r *Report) FormatText() string {
	var sb strings.Builder

	sb.WriteString(strings.Repeat("=", 50) + "\n")
	sb.WriteString(fmt.Sprintf("SCENARIO: %s\n", r.Name))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Virtual time: %s -> %s\n",
		r.StartedAt.Format(time.RFC3339), r.EndedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Steps: %d passed, %d failed\n\n", r.Passed, r.Failed))

	sb.WriteString("STEPS\n")
	sb.WriteString(strings.Repeat("-", 50) + "\n")
	for _, s := range r.Steps {
		status := "PASS"
		if !s.Passed {
			status = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("%3d %s %-22s", s.Index, status, s.Action))
		switch {
		case s.Error != "":
			sb.WriteString(" " + s.Error)
		case s.Detail != "":
			sb.WriteString(" " + s.Detail)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n" + strings.Repeat("=", 50) + "\n")
	if r.OK() {
		sb.WriteString("RESULT: OK\n")
	} else {
		sb.WriteString("RESULT: FAILED\n")
	}
	return sb.String()
}
