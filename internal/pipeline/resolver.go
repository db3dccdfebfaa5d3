package pipeline

import (
	"strings"

	"github.com/pipemetric/insights-api/internal/domain"
)

// resolutionPlan binds canonical fields to raw column names for one batch.
// Binding is decided once against the union of keys seen anywhere in the
// batch, so a column that is blank in one row but present in another still
// resolves for the whole dataset.
type resolutionPlan struct {
	bindings map[string]string
	// nameFallback is set when the display-name column exists but the
	// company-name column also exists: blank names are backfilled from it
	// row by row.
	nameFallback string
}

// buildPlan scans the batch once and binds, for each canonical field, the
// first candidate raw key present in any record.
func buildPlan(records []domain.RawRecord, candidates map[string][]string) *resolutionPlan {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[strings.TrimSpace(k)] = struct{}{}
		}
	}

	plan := &resolutionPlan{bindings: make(map[string]string, len(candidates))}
	for field, keys := range candidates {
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				plan.bindings[field] = key
				break
			}
		}
	}

	// Display name falls back to the company column only when no name
	// candidate exists anywhere in the batch; when both exist the company
	// column backfills blank names per row instead.
	company, hasCompany := plan.bindings[domain.FieldCompanyName]
	if _, hasName := plan.bindings[domain.FieldName]; !hasName && hasCompany {
		plan.bindings[domain.FieldName] = company
	} else if hasName && hasCompany {
		plan.nameFallback = company
	}

	return plan
}

// value returns the raw value for a canonical field in one record. Absent
// keys and nil values report false; blank handling is the coercer's job.
func (p *resolutionPlan) value(rec domain.RawRecord, field string) (any, bool) {
	key, ok := p.bindings[field]
	if !ok {
		return nil, false
	}
	v, ok := lookup(rec, key)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// lookup tolerates untrimmed keys in individual records.
func lookup(rec domain.RawRecord, key string) (any, bool) {
	if v, ok := rec[key]; ok {
		return v, true
	}
	for k, v := range rec {
		if strings.TrimSpace(k) == key {
			return v, true
		}
	}
	return nil, false
}

// failureReasonSource consolidates the raw failure reason for one record:
// lost-reason candidates in priority order, with the drop remark overriding
// for rows in the dropped stage only.
func (p *resolutionPlan) failureReasonSource(rec domain.RawRecord, stage, droppedStage string) (any, bool) {
	if stage == droppedStage {
		if v, ok := p.value(rec, domain.FieldDroppedRemark); ok {
			return v, true
		}
	}
	return p.value(rec, domain.FieldLostReason)
}
