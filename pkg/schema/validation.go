package schema

import "fmt"

// Warning codes produced by the chain validator. Codes in the hard set
// block run submission; everything else is advisory.
const (
	WarnNoSingleStart     = "NO_SINGLE_START"
	WarnNoSingleEnd       = "NO_SINGLE_END"
	WarnIsland            = "ISLAND"
	WarnBucketMismatch    = "BUCKET_MISMATCH"
	WarnStageOrder        = "STAGE_ORDER"
	WarnBrokenChain       = "BROKEN_CHAIN"
	WarnMissingMetadata   = "MISSING_METADATA"
	WarnUnknownGlobal     = "UNKNOWN_GLOBAL"
	WarnDanglingEdge      = "DANGLING_EDGE"
	WarnMalformedSnapshot = "MALFORMED_SNAPSHOT"
)

// ValidationSeverity indicates whether an issue blocks run submission.
type ValidationSeverity string

const (
	SeverityHard     ValidationSeverity = "hard"
	SeverityAdvisory ValidationSeverity = "advisory"
)

// ValidationIssue is a single validation problem with location context.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult aggregates all issues from a validation pass.
// Hard issues block run submission; advisories only surface in the UI.
type ValidationResult struct {
	Hard       []ValidationIssue `json:"hard,omitempty"`
	Advisories []ValidationIssue `json:"advisories,omitempty"`
}

// RunnableOK returns true if there are no hard issues.
func (r *ValidationResult) RunnableOK() bool {
	return len(r.Hard) == 0
}

// AddHard appends a submission-blocking issue.
func (r *ValidationResult) AddHard(path, code, message string) {
	r.Hard = append(r.Hard, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityHard,
	})
}

// AddAdvisory appends an advisory issue.
func (r *ValidationResult) AddAdvisory(path, code, message string) {
	r.Advisories = append(r.Advisories, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityAdvisory,
	})
}

// Merge combines another ValidationResult into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Hard = append(r.Hard, other.Hard...)
	r.Advisories = append(r.Advisories, other.Advisories...)
}

// Messages flattens all issues into ordered human-readable strings,
// hard issues first.
func (r *ValidationResult) Messages() []string {
	out := make([]string, 0, len(r.Hard)+len(r.Advisories))
	for _, i := range r.Hard {
		out = append(out, i.Message)
	}
	for _, i := range r.Advisories {
		out = append(out, i.Message)
	}
	return out
}

// ToError converts the result to a ReconError if any hard issue exists.
func (r *ValidationResult) ToError() error {
	if r.RunnableOK() {
		return nil
	}

	msg := r.Hard[0].Message
	if len(r.Hard) > 1 {
		msg = fmt.Sprintf("validation failed with %d blocking issues", len(r.Hard))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"hard_count":     len(r.Hard),
			"advisory_count": len(r.Advisories),
			"hard":           r.Hard,
			"advisories":     r.Advisories,
		})
}
