package domain

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is one row of source data before normalization: a mapping of
// arbitrary field names to primitive values. Keys vary by export format and
// CRM schema version; any key may be missing or nil in any record.
type RawRecord map[string]any

// Canonical field names. The field resolver maps the heterogeneous raw keys
// of a batch onto these; configuration supplies the candidate raw keys per
// canonical field.
const (
	FieldID                  = "id"
	FieldName                = "name"
	FieldCompanyName         = "companyName"
	FieldOwner               = "owner"
	FieldBDR                 = "bdr"
	FieldStage               = "stage"
	FieldAmount              = "amount"
	FieldCreateDate          = "createDate"
	FieldCloseDate           = "closeDate"
	FieldLastModifiedDate    = "lastModifiedDate"
	FieldExpectedCloseDate   = "expectedCloseDate"
	FieldMeetingBookedDate   = "meetingBookedDate"
	FieldMeetingDoneDate     = "meetingDoneDate"
	FieldContractSentDate    = "contractSentDate"
	FieldContractSignedDate  = "contractSignedDate"
	FieldPaymentCompleteDate = "paymentCompleteDate"
	FieldLostReason          = "lostReason"
	FieldDroppedRemark       = "droppedRemark"
	FieldStageDuration       = "stageDuration"
	FieldDateEnteredStage    = "dateEnteredStage"
)

// MilestoneFields lists the canonical timestamp fields that mark funnel
// milestones. Funnel and stage-transition configuration refers to these
// names (plus the core date fields and the virtual "dealWonDate").
var MilestoneFields = []string{
	FieldMeetingBookedDate,
	FieldMeetingDoneDate,
	FieldContractSentDate,
	FieldContractSignedDate,
	FieldPaymentCompleteDate,
}

// FieldDealWonDate is a virtual transition end field: the earliest of
// closeDate, contractSignedDate and paymentCompleteDate.
const FieldDealWonDate = "dealWonDate"

// FieldEffectiveCloseDate names the derived close date for configuration
// that wants to reference it (closing-soon windows, date filters).
const FieldEffectiveCloseDate = "effectiveCloseDate"

// UnassignedOwner is the display value for deals whose owner or BDR could
// not be resolved to a known person.
const UnassignedOwner = "Unassigned"

// UnknownStage is the display value for deals whose source record carries
// no stage at all. Unknown stage *codes* are passed through verbatim
// instead, so gaps in the stage mapping stay visible.
const UnknownStage = "Unknown Stage"

// Deal is one row of the canonical dataset. Optional fields use pointers
// (or map absence for milestones) so that "missing" stays distinct from
// zero values all the way to the reporting layer.
type Deal struct {
	ID                 string
	Name               string
	Owner              string
	BDR                string
	Stage              string
	Amount             float64
	CreateDate         *time.Time
	CloseDate          *time.Time
	LastModifiedDate   *time.Time
	ExpectedCloseDate  *time.Time
	Milestones         map[string]time.Time
	EffectiveCloseDate *time.Time
	FailureReason      *string
	DaysInStage        *float64
}

// Milestone returns the named milestone timestamp, or nil when absent.
func (d *Deal) Milestone(field string) *time.Time {
	if d.Milestones == nil {
		return nil
	}
	if ts, ok := d.Milestones[field]; ok {
		return &ts
	}
	return nil
}

// Timestamp resolves a canonical date field name (core dates, milestones,
// effectiveCloseDate) against the deal. Unknown names return nil.
func (d *Deal) Timestamp(field string) *time.Time {
	switch field {
	case FieldCreateDate:
		return d.CreateDate
	case FieldCloseDate:
		return d.CloseDate
	case FieldLastModifiedDate:
		return d.LastModifiedDate
	case FieldExpectedCloseDate:
		return d.ExpectedCloseDate
	case FieldEffectiveCloseDate:
		return d.EffectiveCloseDate
	case FieldDealWonDate:
		return d.wonDate()
	default:
		return d.Milestone(field)
	}
}

// wonDate returns the earliest of the close-related dates, mirroring how
// the sales team records a deal as done: whichever of close, contract
// signed or payment complete happened first.
func (d *Deal) wonDate() *time.Time {
	var won *time.Time
	for _, ts := range []*time.Time{
		d.CloseDate,
		d.Milestone(FieldContractSignedDate),
		d.Milestone(FieldPaymentCompleteDate),
	} {
		if ts == nil {
			continue
		}
		if won == nil || ts.Before(*won) {
			won = ts
		}
	}
	return won
}

// StageClass is the mutually exclusive classification of a deal's stage.
type StageClass string

const (
	StageClassWon  StageClass = "won"
	StageClassLost StageClass = "lost"
	StageClassOpen StageClass = "open"
)

// StageClassifier classifies stage display names into Won/Lost/Open from
// externally configured membership sets. Classification is always computed
// from the deal's stage at read time; it is never stored on the deal where
// it could drift.
type StageClassifier struct {
	won  map[string]struct{}
	lost map[string]struct{}
}

// NewStageClassifier builds a classifier from the configured won and lost
// stage sets. A stage in neither set is Open.
func NewStageClassifier(wonStages, lostStages []string) StageClassifier {
	c := StageClassifier{
		won:  make(map[string]struct{}, len(wonStages)),
		lost: make(map[string]struct{}, len(lostStages)),
	}
	for _, s := range wonStages {
		c.won[s] = struct{}{}
	}
	for _, s := range lostStages {
		c.lost[s] = struct{}{}
	}
	return c
}

// Classify returns the class of a stage display name.
func (c StageClassifier) Classify(stage string) StageClass {
	if _, ok := c.won[stage]; ok {
		return StageClassWon
	}
	if _, ok := c.lost[stage]; ok {
		return StageClassLost
	}
	return StageClassOpen
}

// IsWon reports whether the stage is in the configured won set.
func (c StageClassifier) IsWon(stage string) bool { return c.Classify(stage) == StageClassWon }

// IsLost reports whether the stage is in the configured lost set.
func (c StageClassifier) IsLost(stage string) bool { return c.Classify(stage) == StageClassLost }

// IsOpen reports whether the stage is in neither configured set.
func (c StageClassifier) IsOpen(stage string) bool { return c.Classify(stage) == StageClassOpen }

// FunnelStep is one row of the funnel-count series.
type FunnelStep struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// TransitionDuration is one row of the stage-transition-duration series.
// AvgDays is nil when no deal qualified for the transition, which reporting
// must render as "no data" rather than zero.
type TransitionDuration struct {
	Label   string   `json:"label"`
	AvgDays *float64 `json:"avgDays"`
	Samples int      `json:"samples"`
}

// KPISummary holds the team-level headline metrics for one refresh.
type KPISummary struct {
	TotalRevenue     float64  `json:"totalRevenue"`
	WonCount         int      `json:"wonCount"`
	LostCount        int      `json:"lostCount"`
	OpenCount        int      `json:"openCount"`
	WinRate          float64  `json:"winRate"`
	AvgDealValue     float64  `json:"avgDealValue"`
	AvgSalesCycle    *float64 `json:"avgSalesCycle"`
	OpenPipeline     float64  `json:"openPipeline"`
	PipelineCoverage float64  `json:"pipelineCoverage"`
}

// AELeaderboardRow aggregates account-executive performance by deal owner.
type AELeaderboardRow struct {
	Owner          string   `json:"owner"`
	DealsWon       int      `json:"dealsWon"`
	DealsLost      int      `json:"dealsLost"`
	MeetingsDone   int      `json:"meetingsDone"`
	TotalRevenue   float64  `json:"totalRevenue"`
	AvgSalesCycle  *float64 `json:"avgSalesCycle"`
	WinRate        float64  `json:"winRate"`
	ConversionRate float64  `json:"conversionRate"`
}

// BDRLeaderboardRow aggregates development-rep performance by BDR.
type BDRLeaderboardRow struct {
	BDR            string  `json:"bdr"`
	DealsCreated   int     `json:"dealsCreated"`
	MeetingsBooked int     `json:"meetingsBooked"`
	ConversionRate float64 `json:"conversionRate"`
}

// StaleDeal is one open deal that has sat in its current stage beyond the
// configured threshold.
type StaleDeal struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Owner       string  `json:"owner"`
	Stage       string  `json:"stage"`
	Amount      float64 `json:"amount"`
	DaysInStage float64 `json:"daysInStage"`
}

// StaleDealReport separates deals known to be stale from open deals whose
// stage duration is unknown. The unknown bucket is reported explicitly so
// missing duration data never masquerades as "fresh".
type StaleDealReport struct {
	ThresholdDays   float64     `json:"thresholdDays"`
	Stale           []StaleDeal `json:"stale"`
	UnknownDuration int         `json:"unknownDuration"`
}

// ClosingDeal is one open deal expected to close within the focus window.
type ClosingDeal struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Owner              string    `json:"owner"`
	Amount             float64   `json:"amount"`
	EffectiveCloseDate time.Time `json:"effectiveCloseDate"`
	DaysToClose        int       `json:"daysToClose"`
}

// SentDeal is one open deal whose contract went out but has not been
// decided, with the number of days it has been waiting.
type SentDeal struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Owner         string    `json:"owner"`
	Amount        float64   `json:"amount"`
	ContractSent  time.Time `json:"contractSent"`
	DaysSinceSent int       `json:"daysSinceSent"`
}

// RefreshSource identifies where a refresh pulled its raw records from.
type RefreshSource string

const (
	RefreshSourceUpload    RefreshSource = "upload"
	RefreshSourceRecords   RefreshSource = "records"
	RefreshSourceWarehouse RefreshSource = "warehouse"
)

// RefreshRecord is the persisted summary of one pipeline run.
type RefreshRecord struct {
	ID          uuid.UUID     `gorm:"type:uuid;primary_key" json:"id"`
	Source      RefreshSource `gorm:"type:varchar(50);not null;index" json:"source"`
	RawCount    int           `gorm:"not null" json:"rawCount"`
	DealCount   int           `gorm:"not null" json:"dealCount"`
	WonCount    int           `gorm:"not null;column:won_count" json:"wonCount"`
	LostCount   int           `gorm:"not null;column:lost_count" json:"lostCount"`
	OpenCount   int           `gorm:"not null;column:open_count" json:"openCount"`
	DurationMs  int64         `gorm:"not null;column:duration_ms" json:"durationMs"`
	Error       string        `gorm:"type:text" json:"error,omitempty"`
	StartedAt   time.Time     `gorm:"not null;index;column:started_at" json:"startedAt"`
	CompletedAt time.Time     `gorm:"not null;column:completed_at" json:"completedAt"`
}

// TableName overrides the default table name.
func (RefreshRecord) TableName() string {
	return "refresh_history"
}
