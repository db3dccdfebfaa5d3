package report_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipemetric/insights-api/internal/config"
	"github.com/pipemetric/insights-api/internal/domain"
	"github.com/pipemetric/insights-api/internal/report"
)

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		WonStages:          []string{"Closed Won", "Payment Complete", "Contract Signed"},
		LostStages:         []string{"Closed Lost", "Dropped"},
		DroppedStage:       "Dropped",
		AERoster:           []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"},
		BDRRoster:          []string{"Linus Pauling", "Marie Curie"},
		ReferenceTimezone:  "UTC",
		StageDurationUnit:  "hhmmss",
		StaleThresholdDays: 30,
		SalesQuota:         500000,
		ClosingWindowDays:  30,
		TopOpenDealLimit:   10,
		FunnelStages: []config.FunnelStageConfig{
			{Label: "Meeting Booked", DateField: domain.FieldMeetingBookedDate},
			{Label: "Meeting Done", DateField: domain.FieldMeetingDoneDate},
			{Label: "Closed Won", DateField: domain.FieldCloseDate, WonOnly: true},
		},
		StageTransitions: []config.TransitionConfig{
			{Label: "Create to Booked", StartField: domain.FieldCreateDate, EndField: domain.FieldMeetingBookedDate},
			{Label: "Sent to Done", StartField: domain.FieldContractSentDate, EndField: domain.FieldDealWonDate, WonOnly: true},
		},
	}
}

func newTestAggregator(now time.Time) *report.Aggregator {
	cfg := testConfig()
	classifier := domain.NewStageClassifier(cfg.WonStages, cfg.LostStages)
	return report.NewAggregator(cfg, classifier, report.WithClock(func() time.Time { return now }))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func floatPtr(f float64) *float64 { return &f }

func TestFunnelCountsAndWonOnlyStep(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{
			ID: "1", Stage: "Qualified",
			Milestones: map[string]time.Time{
				domain.FieldMeetingBookedDate: date(2024, 1, 5),
				domain.FieldMeetingDoneDate:   date(2024, 1, 10),
			},
		},
		{
			ID: "2", Stage: "Closed Won", CloseDate: datePtr(2024, 2, 1),
			Milestones: map[string]time.Time{
				domain.FieldMeetingBookedDate: date(2024, 1, 6),
			},
		},
		// closed but not Won: has a close date, must not count in the
		// won-only terminal step
		{ID: "3", Stage: "Closed Lost", CloseDate: datePtr(2024, 2, 2)},
	}

	funnel := agg.Funnel(deals)
	require.Len(t, funnel, 3)
	assert.Equal(t, domain.FunnelStep{Stage: "Meeting Booked", Count: 2}, funnel[0])
	assert.Equal(t, domain.FunnelStep{Stage: "Meeting Done", Count: 1}, funnel[1])
	assert.Equal(t, domain.FunnelStep{Stage: "Closed Won", Count: 1}, funnel[2])
}

func TestFunnelDoesNotClampNonMonotonicCounts(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	// A deal can carry a later milestone without the earlier one.
	deals := []domain.Deal{
		{ID: "1", Stage: "Qualified", Milestones: map[string]time.Time{
			domain.FieldMeetingDoneDate: date(2024, 1, 10),
		}},
	}

	funnel := agg.Funnel(deals)
	assert.Equal(t, 0, funnel[0].Count)
	assert.Equal(t, 1, funnel[1].Count)
}

func TestTransitionsAverageAndNegativeDiscard(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		// 9 days
		{ID: "1", Stage: "Qualified", CreateDate: datePtr(2024, 1, 1), Milestones: map[string]time.Time{
			domain.FieldMeetingBookedDate: date(2024, 1, 10),
		}},
		// negative: discarded
		{ID: "2", Stage: "Qualified", CreateDate: datePtr(2024, 2, 1), Milestones: map[string]time.Time{
			domain.FieldMeetingBookedDate: date(2024, 1, 20),
		}},
		// missing end: skipped
		{ID: "3", Stage: "Qualified", CreateDate: datePtr(2024, 1, 1)},
	}

	out := agg.Transitions(deals)
	require.Len(t, out, 2)

	createToBooked := out[0]
	require.NotNil(t, createToBooked.AvgDays)
	assert.InDelta(t, 9.0, *createToBooked.AvgDays, 1e-9)
	assert.Equal(t, 1, createToBooked.Samples)
}

func TestTransitionsAbsentWhenNoQualifyingDeals(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	out := agg.Transitions([]domain.Deal{
		{ID: "1", Stage: "Qualified"},
	})
	require.Len(t, out, 2)
	assert.Nil(t, out[0].AvgDays)
	assert.Zero(t, out[0].Samples)
	assert.Nil(t, out[1].AvgDays)
}

func TestTransitionsDealWonDateUsesEarliestDoneDate(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{
			ID: "1", Stage: "Closed Won",
			CloseDate: datePtr(2024, 2, 20),
			Milestones: map[string]time.Time{
				domain.FieldContractSentDate:   date(2024, 2, 1),
				domain.FieldContractSignedDate: date(2024, 2, 11),
			},
		},
		// open deal with a sent date: excluded by the won-only flag
		{
			ID: "2", Stage: "Qualified",
			Milestones: map[string]time.Time{
				domain.FieldContractSentDate: date(2024, 2, 1),
			},
		},
	}

	out := agg.Transitions(deals)
	sentToDone := out[1]
	require.NotNil(t, sentToDone.AvgDays)
	// earliest of close (20th) and signed (11th) is the 11th: 10 days
	assert.InDelta(t, 10.0, *sentToDone.AvgDays, 1e-9)
	assert.Equal(t, 1, sentToDone.Samples)
}

func TestKPIs(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{ID: "1", Stage: "Closed Won", Amount: 60000, CreateDate: datePtr(2024, 1, 1), CloseDate: datePtr(2024, 1, 31)},
		{ID: "2", Stage: "Payment Complete", Amount: 40000},
		{ID: "3", Stage: "Closed Lost", Amount: 25000},
		{ID: "4", Stage: "Qualified", Amount: 100000},
		{ID: "5", Stage: "Negotiation", Amount: 150000},
	}

	kpi := agg.KPIs(deals)
	assert.Equal(t, 2, kpi.WonCount)
	assert.Equal(t, 1, kpi.LostCount)
	assert.Equal(t, 2, kpi.OpenCount)
	assert.Equal(t, 100000.0, kpi.TotalRevenue)
	assert.InDelta(t, 2.0/3.0, kpi.WinRate, 1e-9)
	assert.Equal(t, 50000.0, kpi.AvgDealValue)
	require.NotNil(t, kpi.AvgSalesCycle)
	assert.InDelta(t, 30.0, *kpi.AvgSalesCycle, 1e-9)
	assert.Equal(t, 250000.0, kpi.OpenPipeline)
	assert.InDelta(t, 0.5, kpi.PipelineCoverage, 1e-9)
}

func TestKPIsEmptyPipelineFloorsToZero(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	kpi := agg.KPIs(nil)
	assert.Zero(t, kpi.WinRate)
	assert.Zero(t, kpi.AvgDealValue)
	assert.Nil(t, kpi.AvgSalesCycle)
	assert.Zero(t, kpi.TotalRevenue)
}

func TestAELeaderboardCompleteness(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{ID: "1", Owner: "Ada Lovelace", Stage: "Closed Won", Amount: 80000,
			CreateDate: datePtr(2024, 1, 1), CloseDate: datePtr(2024, 1, 21),
			Milestones: map[string]time.Time{domain.FieldMeetingDoneDate: date(2024, 1, 10)}},
		{ID: "2", Owner: "Ada Lovelace", Stage: "Closed Lost",
			Milestones: map[string]time.Time{domain.FieldMeetingDoneDate: date(2024, 1, 12)}},
		{ID: "3", Owner: "Grace Hopper", Stage: "Qualified", Amount: 30000},
		// not on the roster: ignored entirely
		{ID: "4", Owner: "Unassigned", Stage: "Closed Won", Amount: 999999},
	}

	rows := agg.AELeaderboard(deals)
	require.Len(t, rows, 3, "every roster name gets a row")

	byName := make(map[string]domain.AELeaderboardRow, len(rows))
	for _, r := range rows {
		byName[r.Owner] = r
	}

	ada := byName["Ada Lovelace"]
	assert.Equal(t, 1, ada.DealsWon)
	assert.Equal(t, 1, ada.DealsLost)
	assert.Equal(t, 2, ada.MeetingsDone)
	assert.Equal(t, 80000.0, ada.TotalRevenue)
	assert.InDelta(t, 0.5, ada.WinRate, 1e-9)
	assert.InDelta(t, 0.5, ada.ConversionRate, 1e-9)
	require.NotNil(t, ada.AvgSalesCycle)
	assert.InDelta(t, 20.0, *ada.AvgSalesCycle, 1e-9)

	// roster name with zero activity still appears, all zero
	alan := byName["Alan Turing"]
	assert.Zero(t, alan.DealsWon)
	assert.Zero(t, alan.DealsLost)
	assert.Zero(t, alan.TotalRevenue)
	assert.Zero(t, alan.WinRate)
	assert.Nil(t, alan.AvgSalesCycle)

	// sorted by revenue, highest first
	assert.Equal(t, "Ada Lovelace", rows[0].Owner)
}

func TestBDRLeaderboard(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{ID: "1", BDR: "Marie Curie", Stage: "Qualified",
			Milestones: map[string]time.Time{domain.FieldMeetingBookedDate: date(2024, 1, 5)}},
		{ID: "2", BDR: "Marie Curie", Stage: "Qualified"},
	}

	rows := agg.BDRLeaderboard(deals)
	require.Len(t, rows, 2)

	assert.Equal(t, "Marie Curie", rows[0].BDR)
	assert.Equal(t, 2, rows[0].DealsCreated)
	assert.Equal(t, 1, rows[0].MeetingsBooked)
	assert.InDelta(t, 0.5, rows[0].ConversionRate, 1e-9)

	assert.Equal(t, "Linus Pauling", rows[1].BDR)
	assert.Zero(t, rows[1].DealsCreated)
	assert.Zero(t, rows[1].ConversionRate)
}

func TestStaleDealsSeparatesUnknownDuration(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := []domain.Deal{
		{ID: "1", Stage: "Qualified", DaysInStage: floatPtr(45)},
		{ID: "2", Stage: "Qualified", DaysInStage: floatPtr(10)},
		{ID: "3", Stage: "Qualified"}, // no duration data
		{ID: "4", Stage: "Closed Won", DaysInStage: floatPtr(90)}, // not open
		{ID: "5", Stage: "Negotiation", DaysInStage: floatPtr(60)},
	}

	rep := agg.StaleDeals(deals)
	assert.Equal(t, 30.0, rep.ThresholdDays)
	require.Len(t, rep.Stale, 2)
	assert.Equal(t, "5", rep.Stale[0].ID, "longest stay first")
	assert.Equal(t, "1", rep.Stale[1].ID)
	assert.Equal(t, 1, rep.UnknownDuration)
}

func TestClosingSoonWindow(t *testing.T) {
	now := date(2024, 3, 1)
	agg := newTestAggregator(now)

	deals := []domain.Deal{
		{ID: "in-window", Stage: "Qualified", Amount: 100, EffectiveCloseDate: datePtr(2024, 3, 15)},
		{ID: "bigger", Stage: "Qualified", Amount: 500, EffectiveCloseDate: datePtr(2024, 3, 20)},
		{ID: "past", Stage: "Qualified", Amount: 900, EffectiveCloseDate: datePtr(2024, 2, 1)},
		{ID: "too-far", Stage: "Qualified", Amount: 900, EffectiveCloseDate: datePtr(2024, 6, 1)},
		{ID: "no-date", Stage: "Qualified", Amount: 900},
		{ID: "won", Stage: "Closed Won", Amount: 900, EffectiveCloseDate: datePtr(2024, 3, 10)},
	}

	out := agg.ClosingSoon(deals)
	require.Len(t, out, 2)
	assert.Equal(t, "bigger", out[0].ID)
	assert.Equal(t, 19, out[0].DaysToClose)
	assert.Equal(t, "in-window", out[1].ID)
	assert.Equal(t, 14, out[1].DaysToClose)
}

func TestTopOpenDealsLimitAndOrder(t *testing.T) {
	agg := newTestAggregator(date(2024, 3, 1))

	deals := make([]domain.Deal, 0, 15)
	for i := 0; i < 15; i++ {
		deals = append(deals, domain.Deal{
			ID:     string(rune('a' + i)),
			Stage:  "Qualified",
			Amount: float64((i + 1) * 1000),
		})
	}
	deals = append(deals, domain.Deal{ID: "won", Stage: "Closed Won", Amount: 1e9})

	top := agg.TopOpenDeals(deals)
	require.Len(t, top, 10)
	assert.Equal(t, 15000.0, top[0].Amount)
	assert.Equal(t, 6000.0, top[9].Amount)
}

func TestContractSentUndecided(t *testing.T) {
	now := date(2024, 3, 1)
	agg := newTestAggregator(now)

	deals := []domain.Deal{
		{ID: "1", Stage: "Negotiation", Amount: 100, Milestones: map[string]time.Time{
			domain.FieldContractSentDate: date(2024, 2, 20),
		}},
		{ID: "2", Stage: "Closed Won", Milestones: map[string]time.Time{
			domain.FieldContractSentDate: date(2024, 2, 20),
		}},
		{ID: "3", Stage: "Negotiation"},
	}

	out := agg.ContractSent(deals)
	require.Len(t, out, 1)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, 10, out[0].DaysSinceSent)
}
