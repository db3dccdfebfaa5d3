package mapper_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipemetric/insights-api/internal/domain"
	"github.com/pipemetric/insights-api/internal/mapper"
)

func TestToDealDTO(t *testing.T) {
	classifier := domain.NewStageClassifier([]string{"Closed Won"}, []string{"Closed Lost"})
	closeDate := time.Date(2024, 2, 1, 10, 30, 0, 0, time.UTC)
	reason := "Budget"
	days := 12.5

	deal := &domain.Deal{
		ID:        "42",
		Name:      "Acme Co",
		Owner:     "Ada Lovelace",
		BDR:       "Grace Hopper",
		Stage:     "Closed Lost",
		Amount:    1500,
		CloseDate: &closeDate,
		Milestones: map[string]time.Time{
			domain.FieldMeetingDoneDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		EffectiveCloseDate: &closeDate,
		FailureReason:      &reason,
		DaysInStage:        &days,
	}

	dto := mapper.ToDealDTO(deal, classifier)

	assert.Equal(t, "42", dto.ID)
	assert.Equal(t, "Acme Co", dto.Name)
	assert.Equal(t, domain.StageClassLost, dto.Classification)
	require.NotNil(t, dto.CloseDate)
	assert.Equal(t, "2024-02-01T10:30:00Z", *dto.CloseDate)
	assert.Nil(t, dto.CreateDate)
	assert.Equal(t, "2024-01-10T00:00:00Z", dto.Milestones[domain.FieldMeetingDoneDate])
	require.NotNil(t, dto.FailureReason)
	assert.Equal(t, "Budget", *dto.FailureReason)
	require.NotNil(t, dto.DaysInStage)
	assert.Equal(t, 12.5, *dto.DaysInStage)
}

func TestToDealDTOsPreservesOrder(t *testing.T) {
	classifier := domain.NewStageClassifier(nil, nil)
	deals := []domain.Deal{{ID: "b"}, {ID: "a"}}

	dtos := mapper.ToDealDTOs(deals, classifier)
	require.Len(t, dtos, 2)
	assert.Equal(t, "b", dtos[0].ID)
	assert.Equal(t, "a", dtos[1].ID)
}
