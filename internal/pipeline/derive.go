package pipeline

import (
	"time"

	"github.com/pipemetric/insights-api/internal/domain"
)

// effectiveCloseDate prefers the expected close date, falling back to the
// confirmed close date; nil when neither is present.
func effectiveCloseDate(expected, closed *time.Time) *time.Time {
	if expected != nil {
		return expected
	}
	return closed
}

// failureReason keeps the consolidated reason only for deals classified
// Lost; open and won deals never carry one.
func failureReason(raw string, stage string, classifier domain.StageClassifier) *string {
	if raw == "" || !classifier.IsLost(stage) {
		return nil
	}
	return &raw
}

// daysInStage prefers the explicit stage-duration counter, then falls back
// to elapsed time since the deal entered its current stage. With neither
// source the value is absent, never zero: a defaulted zero would mark every
// deal as freshly moved.
func daysInStage(counter any, hasCounter bool, unit string, entered *time.Time, now time.Time) *float64 {
	if hasCounter {
		if days, ok := durationDays(counter, unit); ok {
			return &days
		}
	}
	if entered != nil {
		days := now.Sub(*entered).Hours() / 24
		return &days
	}
	return nil
}
