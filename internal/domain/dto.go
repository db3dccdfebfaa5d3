package domain

// DTOs for API responses

// DealDTO is the render-ready shape of one canonical deal. Date fields are
// ISO 8601 strings; absent values serialize as null so the reporting layer
// can distinguish "no data" from zero.
type DealDTO struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Owner              string            `json:"owner"`
	BDR                string            `json:"bdr"`
	Stage              string            `json:"stage"`
	Classification     StageClass        `json:"classification"`
	Amount             float64           `json:"amount"`
	CreateDate         *string           `json:"createDate"`
	CloseDate          *string           `json:"closeDate"`
	LastModifiedDate   *string           `json:"lastModifiedDate"`
	ExpectedCloseDate  *string           `json:"expectedCloseDate"`
	EffectiveCloseDate *string           `json:"effectiveCloseDate"`
	Milestones         map[string]string `json:"milestones,omitempty"`
	FailureReason      *string           `json:"failureReason,omitempty"`
	DaysInStage        *float64          `json:"daysInStage"`
}

// SummaryReportDTO bundles the headline views of the latest refresh.
type SummaryReportDTO struct {
	KPIs        KPISummary   `json:"kpis"`
	Funnel      []FunnelStep `json:"funnel"`
	RefreshedAt string       `json:"refreshedAt"`
	DealCount   int          `json:"dealCount"`
}

// RefreshResponseDTO is returned after a successful refresh.
type RefreshResponseDTO struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	RawCount  int    `json:"rawCount"`
	DealCount int    `json:"dealCount"`
	WonCount  int    `json:"wonCount"`
	LostCount int    `json:"lostCount"`
	OpenCount int    `json:"openCount"`
}
