package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mcptester/mcptester/pkg/conformance"
	"github.com/mcptester/mcptester/pkg/report"
)

// Formatter renders results. With color disabled it emits plain text, which
// also covers non-TTY output.
type Formatter struct {
	verbose bool
	color   bool
}

// NewFormatter creates a formatter.
func NewFormatter(verbose, color bool) *Formatter {
	return &Formatter{verbose: verbose, color: color}
}

// SuiteHeader renders the banner line that precedes a suite's cases. A
// non-positive count omits the case tally, for suites whose case list is
// only known after they run.
func (f *Formatter) SuiteHeader(name string, caseCount int) string {
	label := "suite " + name
	if caseCount > 0 {
		label = fmt.Sprintf("suite %s (%d cases)", name, caseCount)
	}
	if !f.color {
		return "== " + label + " =="
	}
	return SectionStyle.Render("== " + label + " ==")
}

// SuiteSkipped renders the line for a suite left out of this run's
// selection.
func (f *Formatter) SuiteSkipped(name string) string {
	if !f.color {
		return "[skip] suite " + name
	}
	return bracket(SkipStyle.Render("skip")) + " " + StatLabelStyle.Render("suite "+name)
}

// Result renders one case line: [pass|fail] name [status] [latency] with the
// failure detail on a second line.
func (f *Formatter) Result(res conformance.Result) string {
	outcome := "pass"
	style := PassStyle
	if !res.Passed {
		outcome = "fail"
		style = FailStyle
	}

	latency := res.Duration.Round(time.Millisecond).String()

	var line string
	if f.color {
		parts := []string{
			bracket(style.Render(outcome)),
			StatValueStyle.Render(res.Name),
		}
		if res.Status != 0 {
			parts = append(parts, bracket(StatusCodeStyle(res.Status).Render(fmt.Sprintf("%d", res.Status))))
		}
		parts = append(parts, bracket(StatLabelStyle.Render(latency)))
		line = strings.Join(parts, " ")
	} else {
		parts := []string{"[" + outcome + "]", res.Name}
		if res.Status != 0 {
			parts = append(parts, fmt.Sprintf("[%d]", res.Status))
		}
		parts = append(parts, "["+latency+"]")
		line = strings.Join(parts, " ")
	}

	if res.Detail != "" && (!res.Passed || f.verbose) {
		detail := "      -> " + res.Detail
		if f.color {
			detail = "      " + DetailStyle.Render("-> "+res.Detail)
		}
		line += "\n" + detail
	}
	return line
}

// Summary renders the run-wide tally and the failure list.
func (f *Formatter) Summary(r *report.Report) string {
	passed, failed, total := r.Totals()

	var b strings.Builder
	b.WriteString("\n")
	if f.color {
		b.WriteString(SectionStyle.Render("Results"))
	} else {
		b.WriteString("Results")
	}
	b.WriteString("\n")

	line := fmt.Sprintf("%d passed, %d failed, %d total", passed, failed, total)
	if f.color {
		style := PassStyle
		if failed > 0 {
			style = FailStyle
		}
		line = style.Render(line)
	}
	b.WriteString(line)
	b.WriteString("\n")

	if failed > 0 {
		b.WriteString("\n")
		for _, res := range r.Failures() {
			name := res.Name
			if f.color {
				name = FailStyle.Render(name)
			}
			b.WriteString(fmt.Sprintf("  FAIL %s: %s\n", name, res.Detail))
		}
	}

	b.WriteString(fmt.Sprintf("\nrun id: %s\n", r.RunID))
	return b.String()
}

// Banner renders the startup header.
func (f *Formatter) Banner(version, target string) string {
	if !f.color {
		return fmt.Sprintf("mcptester %s -> %s", version, target)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		TitleStyle.Render("mcptester"),
		" ",
		VersionStyle.Render(version),
		"  ",
		URLStyle.Render(target),
	)
}

func bracket(inner string) string {
	return BracketStyle.Render("[") + inner + BracketStyle.Render("]")
}
