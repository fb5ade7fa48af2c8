// Package validator implements the two independent rule engines spec.md
// §4.2 requires (RFC 8216 and Apple Authoring), plus the LL-HLS engine
// that only activates when LL-HLS tags are present. Each engine is a
// pure function of a manifest.Manifest; none of them mutate the input
// or throw — violations are returned as findings in a report.
package validator

import (
	"fmt"
	"sort"

	"github.com/atelier-socle/hlskit/pkg/manifest"
)

// Severity ranks a ValidationResult.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	default:
		return "error"
	}
}

// ValidationResult is one finding from a rule engine.
type ValidationResult struct {
	Severity  Severity
	Message   string
	FieldPath string
	RuleSetID string
	RuleID    string
}

// ValidationReport collects findings from every engine that ran,
// sorted by descending severity.
type ValidationReport struct {
	Results []ValidationResult
}

// Valid reports whether the report contains no error-severity finding.
func (r *ValidationReport) Valid() bool {
	for _, res := range r.Results {
		if res.Severity == SeverityError {
			return false
		}
	}
	return true
}

func (r *ValidationReport) add(sev Severity, ruleSet, ruleID, fieldPath, format string, args ...interface{}) {
	r.Results = append(r.Results, ValidationResult{
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
		FieldPath: fieldPath,
		RuleSetID: ruleSet,
		RuleID:    ruleID,
	})
}

func (r *ValidationReport) sort() {
	sort.SliceStable(r.Results, func(i, j int) bool {
		return r.Results[i].Severity > r.Results[j].Severity
	})
}

// Validate runs the RFC 8216 engine, the LL-HLS engine (when
// applicable), and the Apple Authoring advisory engine, concatenating
// their findings into one report.
func Validate(m manifest.Manifest) *ValidationReport {
	report := &ValidationReport{}
	runRFC8216(m, report)
	runLLHLS(m, report)
	runAppleAuthoring(m, report)
	report.sort()
	return report
}
