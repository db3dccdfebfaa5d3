// Package report computes the derived views served to dashboards: funnel
// counts, stage-transition durations, KPI summaries, leaderboards and the
// risk/opportunity tables. Everything here is a pure function of one
// canonical dataset.
package report

import (
	"sort"
	"time"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/domain"
)

// Aggregator computes cross-deal statistics. It never mutates the dataset
// it is handed.
type Aggregator struct {
	cfg        config.PipelineConfig
	classifier domain.StageClassifier
	now        func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithClock injects the time source used by the closing-soon and
// contract-sent views.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator builds an Aggregator sharing the pipeline's classifier so
// both layers agree on what Won means.
func NewAggregator(cfg config.PipelineConfig, classifier domain.StageClassifier, opts ...Option) *Aggregator {
	a := &Aggregator{cfg: cfg, classifier: classifier, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Funnel counts deals carrying each configured milestone timestamp, in
// configured order. Steps restricted to won deals count only those. Counts
// are reported as observed; a later milestone may legitimately exceed an
// earlier one when source data is incomplete, and nothing here clamps that.
func (a *Aggregator) Funnel(deals []domain.Deal) []domain.FunnelStep {
	steps := make([]domain.FunnelStep, 0, len(a.cfg.FunnelStages))
	for _, stage := range a.cfg.FunnelStages {
		count := 0
		for i := range deals {
			if stage.WonOnly && !a.classifier.IsWon(deals[i].Stage) {
				continue
			}
			if deals[i].Timestamp(stage.DateField) != nil {
				count++
			}
		}
		steps = append(steps, domain.FunnelStep{Stage: stage.Label, Count: count})
	}
	return steps
}

// Transitions computes the average duration of each configured stage
// transition in fractional days. Deals missing either endpoint are skipped,
// negative diffs (timestamp disorder from manual entry) are discarded, and
// a transition with no qualifying deals reports a nil average.
func (a *Aggregator) Transitions(deals []domain.Deal) []domain.TransitionDuration {
	out := make([]domain.TransitionDuration, 0, len(a.cfg.StageTransitions))
	for _, tr := range a.cfg.StageTransitions {
		var sum float64
		samples := 0
		for i := range deals {
			if tr.WonOnly && !a.classifier.IsWon(deals[i].Stage) {
				continue
			}
			start := deals[i].Timestamp(tr.StartField)
			end := deals[i].Timestamp(tr.EndField)
			if start == nil || end == nil {
				continue
			}
			days := end.Sub(*start).Hours() / 24
			if days < 0 {
				continue
			}
			sum += days
			samples++
		}
		row := domain.TransitionDuration{Label: tr.Label, Samples: samples}
		if samples > 0 {
			avg := sum / float64(samples)
			row.AvgDays = &avg
		}
		out = append(out, row)
	}
	return out
}

// KPIs computes the team-level headline metrics. Win rate and average deal
// value floor to 0 on an empty denominator: an empty pipeline has a 0% win
// rate, not missing data.
func (a *Aggregator) KPIs(deals []domain.Deal) domain.KPISummary {
	var kpi domain.KPISummary
	var cycleSum float64
	cycleSamples := 0

	for i := range deals {
		d := &deals[i]
		switch a.classifier.Classify(d.Stage) {
		case domain.StageClassWon:
			kpi.WonCount++
			kpi.TotalRevenue += d.Amount
			if d.CreateDate != nil && d.CloseDate != nil {
				cycleSum += d.CloseDate.Sub(*d.CreateDate).Hours() / 24
				cycleSamples++
			}
		case domain.StageClassLost:
			kpi.LostCount++
		default:
			kpi.OpenCount++
			kpi.OpenPipeline += d.Amount
		}
	}

	if decided := kpi.WonCount + kpi.LostCount; decided > 0 {
		kpi.WinRate = float64(kpi.WonCount) / float64(decided)
	}
	if kpi.WonCount > 0 {
		kpi.AvgDealValue = kpi.TotalRevenue / float64(kpi.WonCount)
	}
	if cycleSamples > 0 {
		avg := cycleSum / float64(cycleSamples)
		kpi.AvgSalesCycle = &avg
	}
	if a.cfg.SalesQuota > 0 {
		kpi.PipelineCoverage = kpi.OpenPipeline / a.cfg.SalesQuota
	}
	return kpi
}

// AELeaderboard aggregates performance per deal owner, left-joined against
// the configured AE roster: a name with no deals in the dataset still gets
// a row with all-zero metrics. Rows sort by won revenue, highest first.
func (a *Aggregator) AELeaderboard(deals []domain.Deal) []domain.AELeaderboardRow {
	names := a.cfg.AERoster
	if len(names) == 0 {
		names = observedNames(deals, func(d *domain.Deal) string { return d.Owner })
	}

	rows := make([]domain.AELeaderboardRow, 0, len(names))
	for _, name := range names {
		row := domain.AELeaderboardRow{Owner: name}
		var cycleSum float64
		cycleSamples := 0

		for i := range deals {
			d := &deals[i]
			if d.Owner != name {
				continue
			}
			switch a.classifier.Classify(d.Stage) {
			case domain.StageClassWon:
				row.DealsWon++
				row.TotalRevenue += d.Amount
				if d.CreateDate != nil && d.CloseDate != nil {
					cycleSum += d.CloseDate.Sub(*d.CreateDate).Hours() / 24
					cycleSamples++
				}
			case domain.StageClassLost:
				row.DealsLost++
			}
			if d.Milestone(domain.FieldMeetingDoneDate) != nil {
				row.MeetingsDone++
			}
		}

		if decided := row.DealsWon + row.DealsLost; decided > 0 {
			row.WinRate = float64(row.DealsWon) / float64(decided)
		}
		if row.MeetingsDone > 0 {
			row.ConversionRate = float64(row.DealsWon) / float64(row.MeetingsDone)
		}
		if cycleSamples > 0 {
			avg := cycleSum / float64(cycleSamples)
			row.AvgSalesCycle = &avg
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalRevenue > rows[j].TotalRevenue
	})
	return rows
}

// BDRLeaderboard aggregates deal creation and meeting bookings per BDR,
// left-joined against the configured roster. Rows sort by meetings booked,
// highest first.
func (a *Aggregator) BDRLeaderboard(deals []domain.Deal) []domain.BDRLeaderboardRow {
	names := a.cfg.BDRRoster
	if len(names) == 0 {
		names = observedNames(deals, func(d *domain.Deal) string { return d.BDR })
	}

	rows := make([]domain.BDRLeaderboardRow, 0, len(names))
	for _, name := range names {
		row := domain.BDRLeaderboardRow{BDR: name}
		for i := range deals {
			d := &deals[i]
			if d.BDR != name {
				continue
			}
			row.DealsCreated++
			if d.Milestone(domain.FieldMeetingBookedDate) != nil {
				row.MeetingsBooked++
			}
		}
		if row.DealsCreated > 0 {
			row.ConversionRate = float64(row.MeetingsBooked) / float64(row.DealsCreated)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MeetingsBooked > rows[j].MeetingsBooked
	})
	return rows
}

// StaleDeals lists open deals stuck in their current stage beyond the
// configured threshold, longest first. Open deals with no duration data go
// into an explicit unknown bucket instead of passing as fresh.
func (a *Aggregator) StaleDeals(deals []domain.Deal) domain.StaleDealReport {
	rep := domain.StaleDealReport{ThresholdDays: a.cfg.StaleThresholdDays}
	for i := range deals {
		d := &deals[i]
		if !a.classifier.IsOpen(d.Stage) {
			continue
		}
		if d.DaysInStage == nil {
			rep.UnknownDuration++
			continue
		}
		if *d.DaysInStage > a.cfg.StaleThresholdDays {
			rep.Stale = append(rep.Stale, domain.StaleDeal{
				ID:          d.ID,
				Name:        d.Name,
				Owner:       d.Owner,
				Stage:       d.Stage,
				Amount:      d.Amount,
				DaysInStage: *d.DaysInStage,
			})
		}
	}
	sort.SliceStable(rep.Stale, func(i, j int) bool {
		return rep.Stale[i].DaysInStage > rep.Stale[j].DaysInStage
	})
	return rep
}

// ClosingSoon lists open deals whose effective close date falls within the
// configured focus window from now, largest amount first.
func (a *Aggregator) ClosingSoon(deals []domain.Deal) []domain.ClosingDeal {
	now := a.now()
	windowEnd := now.AddDate(0, 0, a.cfg.ClosingWindowDays)

	var out []domain.ClosingDeal
	for i := range deals {
		d := &deals[i]
		if !a.classifier.IsOpen(d.Stage) || d.EffectiveCloseDate == nil {
			continue
		}
		ecd := *d.EffectiveCloseDate
		if ecd.Before(startOfDay(now)) || ecd.After(windowEnd) {
			continue
		}
		out = append(out, domain.ClosingDeal{
			ID:                 d.ID,
			Name:               d.Name,
			Owner:              d.Owner,
			Amount:             d.Amount,
			EffectiveCloseDate: ecd,
			DaysToClose:        int(ecd.Sub(now).Hours() / 24),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out
}

// TopOpenDeals returns the largest open deals by amount, up to the
// configured limit.
func (a *Aggregator) TopOpenDeals(deals []domain.Deal) []domain.Deal {
	var open []domain.Deal
	for i := range deals {
		if a.classifier.IsOpen(deals[i].Stage) {
			open = append(open, deals[i])
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Amount > open[j].Amount })
	if limit := a.cfg.TopOpenDealLimit; limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open
}

// ContractSent lists open deals whose contract went out but remain
// undecided, with how long they have been waiting, largest amount first.
func (a *Aggregator) ContractSent(deals []domain.Deal) []domain.SentDeal {
	now := a.now()

	var out []domain.SentDeal
	for i := range deals {
		d := &deals[i]
		if !a.classifier.IsOpen(d.Stage) {
			continue
		}
		sent := d.Milestone(domain.FieldContractSentDate)
		if sent == nil {
			continue
		}
		out = append(out, domain.SentDeal{
			ID:            d.ID,
			Name:          d.Name,
			Owner:         d.Owner,
			Amount:        d.Amount,
			ContractSent:  *sent,
			DaysSinceSent: int(now.Sub(*sent).Hours() / 24),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out
}

func observedNames(deals []domain.Deal, key func(*domain.Deal) string) []string {
	seen := make(map[string]struct{})
	var names []string
	for i := range deals {
		name := key(&deals[i])
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
