package mapper

import (
	"time"

	"github.com/pipemetric/insights-api/internal/domain"
)

const dateFormat = "2006-01-02T15:04:05Z"

// ToDealDTO converts a canonical Deal to its render-ready DTO. The
// classification is computed here, at map time, from the current stage.
func ToDealDTO(deal *domain.Deal, classifier domain.StageClassifier) domain.DealDTO {
	dto := domain.DealDTO{
		ID:                 deal.ID,
		Name:               deal.Name,
		Owner:              deal.Owner,
		BDR:                deal.BDR,
		Stage:              deal.Stage,
		Classification:     classifier.Classify(deal.Stage),
		Amount:             deal.Amount,
		CreateDate:         formatTime(deal.CreateDate),
		CloseDate:          formatTime(deal.CloseDate),
		LastModifiedDate:   formatTime(deal.LastModifiedDate),
		ExpectedCloseDate:  formatTime(deal.ExpectedCloseDate),
		EffectiveCloseDate: formatTime(deal.EffectiveCloseDate),
		FailureReason:      deal.FailureReason,
		DaysInStage:        deal.DaysInStage,
	}

	if len(deal.Milestones) > 0 {
		dto.Milestones = make(map[string]string, len(deal.Milestones))
		for field, ts := range deal.Milestones {
			dto.Milestones[field] = ts.UTC().Format(dateFormat)
		}
	}

	return dto
}

// ToDealDTOs converts a dataset, preserving order.
func ToDealDTOs(deals []domain.Deal, classifier domain.StageClassifier) []domain.DealDTO {
	dtos := make([]domain.DealDTO, 0, len(deals))
	for i := range deals {
		dtos = append(dtos, ToDealDTO(&deals[i], classifier))
	}
	return dtos
}

// ToRefreshResponseDTO converts a refresh run record to its response shape.
func ToRefreshResponseDTO(record *domain.RefreshRecord) domain.RefreshResponseDTO {
	return domain.RefreshResponseDTO{
		ID:        record.ID.String(),
		Source:    string(record.Source),
		RawCount:  record.RawCount,
		DealCount: record.DealCount,
		WonCount:  record.WonCount,
		LostCount: record.LostCount,
		OpenCount: record.OpenCount,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateFormat)
	return &s
}
