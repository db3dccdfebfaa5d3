package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Warehouse WarehouseConfig
	Pipeline  PipelineConfig
	Logging   LoggingConfig
	Server    ServerConfig
	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
}

// WarehouseConfig holds configuration for the MS SQL Server deal warehouse.
// This connection is optional and read-only.
type WarehouseConfig struct {
	// Enabled controls whether the warehouse connection is attempted
	Enabled bool
	// URL is the connection URL in format host:port/database
	URL string
	// User is the database username
	User string
	// Password is the database password
	Password string
	// DealQuery is the SELECT statement producing one row per deal
	DealQuery string
	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused (seconds)
	ConnMaxLifetime int
	// QueryTimeout is the default timeout for queries (seconds)
	QueryTimeout int
}

// PipelineConfig drives field resolution, coercion, classification and
// aggregation. Nothing in here is hard-coded elsewhere: rosters, stage sets
// and column candidates all come from this section.
type PipelineConfig struct {
	// FieldCandidates maps each canonical field name to an ordered list of
	// raw column names; the first candidate present in a batch wins.
	FieldCandidates map[string][]string

	// WonStages and LostStages classify deals; any other stage is open.
	WonStages  []string `validate:"min=1"`
	LostStages []string `validate:"min=1"`
	// DroppedStage is the stage whose rows take the drop remark as their
	// failure reason instead of the generic lost reason.
	DroppedStage string

	// Optional id -> display-name maps applied during coercion. An empty
	// map passes values through untouched.
	StageIDToName map[string]string
	OwnerIDToName map[string]string
	BDRIDToName   map[string]string

	// Rosters drive leaderboard completeness: every roster name appears in
	// its leaderboard even with zero activity.
	AERoster  []string
	BDRRoster []string

	// ReferenceTimezone is the IANA zone timestamps are interpreted in.
	ReferenceTimezone string `validate:"required"`

	// StageDurationUnit says how the stage-duration column is encoded:
	// "hhmmss" (HH:MM:SS text), "seconds" or "millis" (epoch counters).
	StageDurationUnit string `validate:"oneof=hhmmss seconds millis"`

	// StaleThresholdDays marks open deals as stale above this many days in
	// their current stage.
	StaleThresholdDays float64 `validate:"gt=0"`

	// SalesQuota is the revenue target pipeline coverage is measured against.
	SalesQuota float64

	// ClosingWindowDays bounds the closing-soon report (effective close date
	// within N days of now).
	ClosingWindowDays int `validate:"gt=0"`

	// TopOpenDealLimit caps the top-open-deals opportunity view.
	TopOpenDealLimit int `validate:"gt=0"`

	FunnelStages     []FunnelStageConfig
	StageTransitions []TransitionConfig
}

// FunnelStageConfig is one step of the milestone funnel. WonOnly restricts
// the count to deals classified Won (used for terminal milestones).
type FunnelStageConfig struct {
	Label     string
	DateField string
	WonOnly   bool
}

// TransitionConfig is one (start, end) pair for average stage-transition
// durations. EndField may name the virtual dealWonDate field.
type TransitionConfig struct {
	Label      string
	StartField string
	EndField   string
	WonOnly    bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout     int
	WriteTimeout    int
	RequestTimeout  int
	MaxUploadSizeMB int64
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// SecurityConfig holds security header configuration
type SecurityConfig struct {
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	FrameOptions          string
	ContentTypeNosniff    bool
	XSSProtection         string
	ReferrerPolicy        string
	PermissionsPolicy     string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	WhitelistIPs      []string
	WhitelistPaths    []string
}

// JobsConfig holds background job scheduling configuration
type JobsConfig struct {
	// WarehouseRefreshCron is the cron expression for periodic warehouse
	// refreshes; empty disables the job.
	WarehouseRefreshCron string
}

// ConnectionString builds PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (d *DatabaseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(d.ConnMaxLifetime) * time.Second
}

// ConnMaxLifetimeDuration returns connection max lifetime as duration
func (w *WarehouseConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(w.ConnMaxLifetime) * time.Second
}

// QueryTimeoutDuration returns query timeout as duration
func (w *WarehouseConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(w.QueryTimeout) * time.Second
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// RequestTimeoutDuration returns request timeout as duration
func (s *ServerConfig) RequestTimeoutDuration() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// Location resolves the configured reference timezone.
func (p *PipelineConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(p.ReferenceTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid reference timezone %q: %w", p.ReferenceTimezone, err)
	}
	return loc, nil
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Warehouse credentials can come from plain env vars
	if cfg.Warehouse.URL == "" {
		cfg.Warehouse.URL = v.GetString("WAREHOUSE_URL")
	}
	if cfg.Warehouse.User == "" {
		cfg.Warehouse.User = v.GetString("WAREHOUSE_USER")
	}
	if cfg.Warehouse.Password == "" {
		cfg.Warehouse.Password = v.GetString("WAREHOUSE_PASSWORD")
	}
	if v.GetBool("WAREHOUSE_ENABLED") {
		cfg.Warehouse.Enabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints on the pipeline section.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(&c.Pipeline); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	if _, err := c.Pipeline.Location(); err != nil {
		return err
	}
	for _, t := range c.Pipeline.StageTransitions {
		if t.StartField == "" || t.EndField == "" {
			return fmt.Errorf("stage transition %q needs both start and end fields", t.Label)
		}
	}
	for _, f := range c.Pipeline.FunnelStages {
		if f.DateField == "" {
			return fmt.Errorf("funnel stage %q needs a date field", f.Label)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "PipeMetric Insights API")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "insights")
	v.SetDefault("database.user", "insights_user")
	v.SetDefault("database.password", "insights_password")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 300)

	// Warehouse defaults (MS SQL Server - optional, read-only)
	v.SetDefault("warehouse.enabled", false)
	v.SetDefault("warehouse.dealQuery", "SELECT * FROM dbo.Deals")
	v.SetDefault("warehouse.maxOpenConns", 10)
	v.SetDefault("warehouse.maxIdleConns", 2)
	v.SetDefault("warehouse.connMaxLifetime", 300)
	v.SetDefault("warehouse.queryTimeout", 30)

	// Pipeline defaults mirror a HubSpot deal export
	v.SetDefault("pipeline.fieldCandidates", map[string][]string{
		"id":                  {"Record ID", "record_id"},
		"name":                {"Deal Name", "deal name", "Deal name"},
		"companyName":         {"Contract: Company Name"},
		"owner":               {"Deal owner", "Deal Owner"},
		"bdr":                 {"BDR"},
		"stage":               {"Deal Stage"},
		"amount":              {"Amount"},
		"createDate":          {"Create Date"},
		"closeDate":           {"Close Date"},
		"lastModifiedDate":    {"Last Modified Date"},
		"expectedCloseDate":   {"Expected Closing Date", "Expected Close Date"},
		"meetingBookedDate":   {"Meeting Booked Date"},
		"meetingDoneDate":     {"Meeting Done Date"},
		"contractSentDate":    {"Contract Sent Date"},
		"contractSignedDate":  {"Contract Signed Date"},
		"paymentCompleteDate": {"Payment Complete Date"},
		"lostReason":          {"hs_lost_reason", "Close Lost Reason", "close_lost_reason"},
		"droppedRemark":       {"Dropped Reason (Remark)", "Dropped Reason"},
		"stageDuration":       {"Time in current stage (HH:mm:ss)"},
		"dateEnteredStage":    {"Date entered current stage"},
	})
	v.SetDefault("pipeline.wonStages", []string{"Closed Won", "Payment Complete", "Contract Signed"})
	v.SetDefault("pipeline.lostStages", []string{"Closed Lost", "Dropped"})
	v.SetDefault("pipeline.droppedStage", "Dropped")
	v.SetDefault("pipeline.stageIDToName", map[string]string{})
	v.SetDefault("pipeline.ownerIDToName", map[string]string{})
	v.SetDefault("pipeline.bdrIDToName", map[string]string{})
	v.SetDefault("pipeline.aeRoster", []string{})
	v.SetDefault("pipeline.bdrRoster", []string{})
	v.SetDefault("pipeline.referenceTimezone", "UTC")
	v.SetDefault("pipeline.stageDurationUnit", "hhmmss")
	v.SetDefault("pipeline.staleThresholdDays", 30)
	v.SetDefault("pipeline.salesQuota", 500000)
	v.SetDefault("pipeline.closingWindowDays", 30)
	v.SetDefault("pipeline.topOpenDealLimit", 10)
	v.SetDefault("pipeline.funnelStages", []map[string]any{
		{"label": "Meeting Booked", "dateField": "meetingBookedDate"},
		{"label": "Meeting Done", "dateField": "meetingDoneDate"},
		{"label": "Contract Sent", "dateField": "contractSentDate"},
		{"label": "Closed Won", "dateField": "closeDate", "wonOnly": true},
	})
	v.SetDefault("pipeline.stageTransitions", []map[string]any{
		{"label": "Deal Create → Meeting Booked", "startField": "createDate", "endField": "meetingBookedDate"},
		{"label": "Meeting Booked → Meeting Done", "startField": "meetingBookedDate", "endField": "meetingDoneDate"},
		{"label": "Meeting Done → Contract Sent", "startField": "meetingDoneDate", "endField": "contractSentDate"},
		{"label": "Contract Sent → Deal Done", "startField": "contractSentDate", "endField": "dealWonDate", "wonOnly": true},
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)
	v.SetDefault("server.requestTimeout", 60)
	v.SetDefault("server.maxUploadSizeMB", 50)

	// CORS defaults - restrictive by default
	v.SetDefault("cors.allowedOrigins", []string{})
	v.SetDefault("cors.allowedMethods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowedHeaders", []string{"Accept", "Content-Type", "X-Request-ID"})
	v.SetDefault("cors.exposedHeaders", []string{"Location", "X-Request-ID"})
	v.SetDefault("cors.allowCredentials", true)
	v.SetDefault("cors.maxAge", 300)

	// Security header defaults - secure by default
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000)
	v.SetDefault("security.hstsIncludeSubdomains", true)
	v.SetDefault("security.hstsPreload", false)
	v.SetDefault("security.contentSecurityPolicy", "default-src 'self'")
	v.SetDefault("security.frameOptions", "DENY")
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.xssProtection", "1; mode=block")
	v.SetDefault("security.referrerPolicy", "strict-origin-when-cross-origin")
	v.SetDefault("security.permissionsPolicy", "geolocation=(), microphone=(), camera=()")

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 60)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/db"})

	// Jobs defaults - warehouse refresh at the top of every hour when
	// enabled (6-field cron expression, seconds first)
	v.SetDefault("jobs.warehouseRefreshCron", "0 0 * * * *")
}
