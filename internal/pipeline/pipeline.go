// Package pipeline normalizes heterogeneous raw deal records into the
// canonical dataset: field resolution, type coercion and derived fields run
// as pure passes, so the same input always produces the same output.
package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/domain"
)

// Pipeline turns raw records into canonical deals. It holds no mutable
// state between runs; concurrent runs are isolated.
type Pipeline struct {
	cfg        config.PipelineConfig
	loc        *time.Location
	classifier domain.StageClassifier
	owners     personMapper
	bdrs       personMapper
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock injects the time source used for elapsed-days derivation.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a Pipeline from the pipeline configuration.
func New(cfg config.PipelineConfig, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:        cfg,
		loc:        loc,
		classifier: domain.NewStageClassifier(cfg.WonStages, cfg.LostStages),
		owners:     newPersonMapper(cfg.OwnerIDToName),
		bdrs:       newPersonMapper(cfg.BDRIDToName),
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Classifier exposes the stage classifier built from configuration so that
// reporting classifies stages exactly the way the pipeline does.
func (p *Pipeline) Classifier() domain.StageClassifier {
	return p.classifier
}

// Run resolves, coerces and derives one batch of raw records into the
// canonical dataset. Output order follows input order. Per-field problems
// degrade that field to absent; the only error is an unusable batch.
func (p *Pipeline) Run(records []domain.RawRecord) ([]domain.Deal, error) {
	if records == nil {
		return nil, fmt.Errorf("raw record batch is nil")
	}

	plan := buildPlan(records, p.cfg.FieldCandidates)
	now := p.now().In(p.loc)

	deals := make([]domain.Deal, 0, len(records))
	for _, rec := range records {
		deals = append(deals, p.buildDeal(rec, plan, now))
	}

	p.logger.Debug("pipeline run complete",
		zap.Int("raw_records", len(records)),
		zap.Int("deals", len(deals)),
	)
	return deals, nil
}

func (p *Pipeline) buildDeal(rec domain.RawRecord, plan *resolutionPlan, now time.Time) domain.Deal {
	deal := domain.Deal{
		Owner: domain.UnassignedOwner,
		BDR:   domain.UnassignedOwner,
		Stage: domain.UnknownStage,
	}

	if v, ok := plan.value(rec, domain.FieldID); ok {
		deal.ID, _ = asString(v)
	}
	deal.Name = p.resolveName(rec, plan)

	if v, ok := plan.value(rec, domain.FieldOwner); ok {
		deal.Owner = p.owners.resolve(v, domain.UnassignedOwner)
	}
	if v, ok := plan.value(rec, domain.FieldBDR); ok {
		deal.BDR = p.bdrs.resolve(v, domain.UnassignedOwner)
	}
	if v, ok := plan.value(rec, domain.FieldStage); ok {
		deal.Stage = resolveStage(v, p.cfg.StageIDToName, domain.UnknownStage)
	}

	// Amount defaults to 0 on anything unparsable and is never negative.
	if v, ok := plan.value(rec, domain.FieldAmount); ok {
		if amount, ok := asFloat(v); ok && amount > 0 {
			deal.Amount = amount
		}
	}

	deal.CreateDate = p.timestamp(rec, plan, domain.FieldCreateDate)
	deal.CloseDate = p.timestamp(rec, plan, domain.FieldCloseDate)
	deal.LastModifiedDate = p.timestamp(rec, plan, domain.FieldLastModifiedDate)
	deal.ExpectedCloseDate = p.timestamp(rec, plan, domain.FieldExpectedCloseDate)

	for _, field := range domain.MilestoneFields {
		if ts := p.timestamp(rec, plan, field); ts != nil {
			if deal.Milestones == nil {
				deal.Milestones = make(map[string]time.Time)
			}
			deal.Milestones[field] = *ts
		}
	}

	deal.EffectiveCloseDate = effectiveCloseDate(deal.ExpectedCloseDate, deal.CloseDate)

	var rawReason string
	if v, ok := plan.failureReasonSource(rec, deal.Stage, p.cfg.DroppedStage); ok {
		rawReason, _ = asString(v)
	}
	deal.FailureReason = failureReason(rawReason, deal.Stage, p.classifier)

	counter, hasCounter := plan.value(rec, domain.FieldStageDuration)
	entered := p.timestamp(rec, plan, domain.FieldDateEnteredStage)
	deal.DaysInStage = daysInStage(counter, hasCounter, p.cfg.StageDurationUnit, entered, now)

	return deal
}

// resolveName reads the bound display-name column and backfills blank
// names from the company column when the batch carries both.
func (p *Pipeline) resolveName(rec domain.RawRecord, plan *resolutionPlan) string {
	if v, ok := plan.value(rec, domain.FieldName); ok {
		if name, ok := asString(v); ok {
			return name
		}
	}
	if plan.nameFallback != "" {
		if v, ok := lookup(rec, plan.nameFallback); ok {
			if name, ok := asString(v); ok {
				return name
			}
		}
	}
	return ""
}

func (p *Pipeline) timestamp(rec domain.RawRecord, plan *resolutionPlan, field string) *time.Time {
	v, ok := plan.value(rec, field)
	if !ok {
		return nil
	}
	ts, ok := asTime(v, p.loc)
	if !ok {
		return nil
	}
	return &ts
}
