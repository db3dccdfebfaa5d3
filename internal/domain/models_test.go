package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipemetric/insights-api/internal/domain"
)

func ts(day int) time.Time {
	return time.Date(2024, 2, day, 0, 0, 0, 0, time.UTC)
}

func TestStageClassifier_Classify(t *testing.T) {
	c := domain.NewStageClassifier(
		[]string{"Closed Won", "Payment Complete"},
		[]string{"Closed Lost", "Dropped"},
	)

	tests := []struct {
		name     string
		stage    string
		expected domain.StageClass
	}{
		{name: "won stage", stage: "Closed Won", expected: domain.StageClassWon},
		{name: "second won stage", stage: "Payment Complete", expected: domain.StageClassWon},
		{name: "lost stage", stage: "Dropped", expected: domain.StageClassLost},
		{name: "unlisted stage is open", stage: "Qualified", expected: domain.StageClassOpen},
		{name: "empty stage is open", stage: "", expected: domain.StageClassOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.stage))
		})
	}
}

func TestStageClassifier_Predicates(t *testing.T) {
	c := domain.NewStageClassifier([]string{"Closed Won"}, []string{"Closed Lost"})

	assert.True(t, c.IsWon("Closed Won"))
	assert.False(t, c.IsWon("Closed Lost"))
	assert.True(t, c.IsLost("Closed Lost"))
	assert.True(t, c.IsOpen("Negotiation"))
	assert.False(t, c.IsOpen("Closed Won"))
}

func TestDeal_Timestamp(t *testing.T) {
	create := ts(1)
	booked := ts(5)
	deal := domain.Deal{
		CreateDate: &create,
		Milestones: map[string]time.Time{
			domain.FieldMeetingBookedDate: booked,
		},
	}

	assert.Equal(t, &create, deal.Timestamp(domain.FieldCreateDate))
	assert.Equal(t, booked, *deal.Timestamp(domain.FieldMeetingBookedDate))
	assert.Nil(t, deal.Timestamp(domain.FieldCloseDate))
	assert.Nil(t, deal.Timestamp("noSuchField"))
}

func TestDeal_WonDateIsEarliestCloseRelatedDate(t *testing.T) {
	closed := ts(20)
	signed := ts(11)
	paid := ts(15)

	deal := domain.Deal{
		CloseDate: &closed,
		Milestones: map[string]time.Time{
			domain.FieldContractSignedDate:  signed,
			domain.FieldPaymentCompleteDate: paid,
		},
	}

	won := deal.Timestamp(domain.FieldDealWonDate)
	assert.NotNil(t, won)
	assert.Equal(t, signed, *won)
}

func TestDeal_WonDateAbsentWithoutCloseDates(t *testing.T) {
	create := ts(1)
	deal := domain.Deal{CreateDate: &create}

	assert.Nil(t, deal.Timestamp(domain.FieldDealWonDate))
}

func TestDeal_MilestoneOnNilMap(t *testing.T) {
	deal := domain.Deal{}
	assert.Nil(t, deal.Milestone(domain.FieldMeetingBookedDate))
}
