package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"nobat/internal/models"
	"nobat/internal/normalize"
	"nobat/internal/validation"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendAppScript = "appscript"
	BackendRedis     = "redis"
	BackendDynamoDB  = "dynamodb"
	BackendMemory    = "memory"
	BackendSheets    = "sheets"
	BackendSQLite    = "sqlite"

	ModeWebhook = "webhook"
	ModePolling = "polling"

	secretPrefix = "ssm:"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	HTTP       HTTPConfig       `yaml:"http"`
	AppScript  AppScriptConfig  `yaml:"appscript"`
	Redis      RedisConfig      `yaml:"redis"`
	DynamoDB   DynamoDBConfig   `yaml:"dynamodb"`
	Database   DatabaseConfig   `yaml:"database"`
	Google     GoogleConfig     `yaml:"google"`
	State      StateConfig      `yaml:"state"`
	Dedupe     DedupeConfig     `yaml:"dedupe"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	Bot        BotConfig        `yaml:"bot"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	// StaffChatID is a numeric chat id or a public @channel username.
	StaffChatID string `yaml:"staff_chat_id"`
	Mode        string `yaml:"mode"`
	Debug       bool   `yaml:"debug"`
}

type HTTPConfig struct {
	Address      string `yaml:"address"`
	Path         string `yaml:"path"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type AppScriptConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig schedules VACUUM INTO copies of the SQLite journal.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	StoragePath   string        `yaml:"storage_path"`
	RetentionDays int           `yaml:"retention_days"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
}

type StateConfig struct {
	Backend         string        `yaml:"backend"`
	Failover        bool          `yaml:"failover"`
	TTL             time.Duration `yaml:"ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type DedupeConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

type LedgerConfig struct {
	Backend string `yaml:"backend"`
	// Journal keeps a local SQLite copy of every appointment next to a remote ledger.
	Journal bool `yaml:"journal"`
}

type DialogueConfig struct {
	Fields         []string   `yaml:"fields"`
	BrandOptions   [][]string `yaml:"brand_options"`
	ServiceOptions [][]string `yaml:"service_options"`
	Calendar       string     `yaml:"calendar"`
	DayOff         string     `yaml:"day_off"`
	DateCount      int        `yaml:"date_count"`
	TimeZone       string     `yaml:"time_zone"`
	PhonePattern   string     `yaml:"phone_pattern"`
	MinNameLength  int        `yaml:"min_name_length"`
	MinPlateLength int        `yaml:"min_plate_length"`
}

type BotConfig struct {
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
	PollTimeout       int           `yaml:"poll_timeout"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `yaml:"prometheus_enabled"`
	MetricsPath       string `yaml:"metrics_path"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Load reads an optional .env file, then the YAML file at configPath (may be empty),
// then fills unset values from the environment and defaults.
func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var config Config
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		// Предварительная замена переменных окружения в YAML
		expandedData := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expandedData, &config); err != nil {
			return nil, err
		}
	}

	config.applyEnv(os.LookupEnv)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv fills empty values from the plain environment variables used by serverless deployments.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.Telegram.BotToken, "BOT_TOKEN")
	set(&c.Telegram.WebhookSecret, "WEBHOOK_SECRET")
	set(&c.Telegram.StaffChatID, "STAFF_CHAT_ID")
	set(&c.AppScript.URL, "APPSCRIPT_URL")
	set(&c.AppScript.Secret, "SECRET_TOKEN")
	set(&c.Redis.Address, "REDIS_ADDR")
	set(&c.DynamoDB.Table, "DYNAMODB_TABLE")
	set(&c.Logging.Level, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "nobat"
	}
	if c.App.Environment == "" {
		c.App.Environment = "production"
	}
	if c.App.Version == "" {
		c.App.Version = "dev"
	}
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = ModeWebhook
	}

	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.Path == "" {
		c.HTTP.Path = "/telegram"
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}

	remote := BackendMemory
	if c.AppScript.URL != "" {
		remote = BackendAppScript
	}
	if c.State.Backend == "" {
		c.State.Backend = remote
	}
	if c.Dedupe.Backend == "" {
		c.Dedupe.Backend = c.State.Backend
	}
	if c.State.TTL == 0 {
		c.State.TTL = models.DefaultStateTTL * time.Second
	}
	if c.State.JanitorInterval == 0 {
		c.State.JanitorInterval = 10 * time.Minute
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = models.DefaultDedupeTTL * time.Second
	}

	if c.Ledger.Backend == "" {
		switch {
		case c.AppScript.URL != "":
			c.Ledger.Backend = BackendAppScript
		case c.Google.SpreadsheetID != "":
			c.Ledger.Backend = BackendSheets
		default:
			c.Ledger.Backend = BackendSQLite
		}
	}
	if c.Database.Path == "" && (c.Ledger.Backend == BackendSQLite || c.Ledger.Journal) {
		c.Database.Path = "data/appointments.db"
	}
	if c.Database.Backup.Enabled {
		if c.Database.Backup.Interval == 0 {
			c.Database.Backup.Interval = 24 * time.Hour
		}
		if c.Database.Backup.StoragePath == "" {
			c.Database.Backup.StoragePath = "data/backups"
		}
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}

	if len(c.Dialogue.Fields) == 0 {
		c.Dialogue.Fields = append([]string(nil), models.DefaultFields...)
	}
	if c.Dialogue.Calendar == "" {
		c.Dialogue.Calendar = "jalali"
	}
	if c.Dialogue.DayOff == "" {
		c.Dialogue.DayOff = "friday"
	}
	if c.Dialogue.DateCount == 0 {
		c.Dialogue.DateCount = models.DefaultDateCount
	}
	if c.Dialogue.TimeZone == "" {
		c.Dialogue.TimeZone = "Asia/Tehran"
	}
	if c.Dialogue.PhonePattern == "" {
		c.Dialogue.PhonePattern = validation.DefaultPhonePattern
	}

	if c.Bot.RemoteTimeout == 0 {
		c.Bot.RemoteTimeout = models.DefaultRemoteTimeout * time.Second
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = 20
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = time.Minute
	}
	if c.Bot.PollTimeout == 0 {
		c.Bot.PollTimeout = 60
	}

	if c.Monitoring.MetricsPath == "" {
		c.Monitoring.MetricsPath = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	if c.Telegram.Mode != ModeWebhook && c.Telegram.Mode != ModePolling {
		return fmt.Errorf("unknown telegram mode %q", c.Telegram.Mode)
	}
	if !strings.HasPrefix(c.HTTP.Path, "/") {
		return fmt.Errorf("http path %q must start with /", c.HTTP.Path)
	}

	if err := c.validateStoreBackend("state", c.State.Backend); err != nil {
		return err
	}
	if err := c.validateStoreBackend("dedupe", c.Dedupe.Backend); err != nil {
		return err
	}

	switch c.Ledger.Backend {
	case BackendAppScript:
		if c.AppScript.URL == "" {
			return errors.New("appscript url is required for the appscript ledger")
		}
	case BackendSheets:
		if c.Google.CredentialsFile == "" || c.Google.SpreadsheetID == "" {
			return errors.New("google credentials_file and spreadsheet_id are required for the sheets ledger")
		}
	case BackendSQLite:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if (c.Ledger.Backend == BackendSQLite || c.Ledger.Journal) && c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return c.Dialogue.Validate()
}

func (c *Config) validateStoreBackend(name, backend string) error {
	switch backend {
	case BackendMemory:
	case BackendAppScript:
		if c.AppScript.URL == "" {
			return fmt.Errorf("%s backend appscript requires appscript url", name)
		}
	case BackendRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("%s backend redis requires redis address", name)
		}
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("%s backend dynamodb requires dynamodb table", name)
		}
	default:
		return fmt.Errorf("unknown %s backend %q", name, backend)
	}
	return nil
}

func (d DialogueConfig) Validate() error {
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if _, ok := models.StepForField[f]; !ok {
			return fmt.Errorf("unknown dialogue field %q", f)
		}
		if seen[f] {
			return fmt.Errorf("duplicate dialogue field %q", f)
		}
		seen[f] = true
	}
	if d.DateCount < 0 {
		return errors.New("dialogue date_count must be positive")
	}
	if _, err := normalize.ParseCalendar(d.Calendar); err != nil {
		return err
	}
	if _, err := d.Weekday(); err != nil {
		return err
	}
	if _, err := d.Location(); err != nil {
		return err
	}
	if _, err := validation.CompilePhonePattern(d.PhonePattern); err != nil {
		return err
	}
	return nil
}

// Weekday parses DayOff as an English weekday name.
func (d DialogueConfig) Weekday() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(d.DayOff))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) == name {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown day_off %q", d.DayOff)
}

func (d DialogueConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", d.TimeZone, err)
	}
	return loc, nil
}

// SecretGetter resolves a parameter store name to its value.
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

func (c *Config) secretFields() []*string {
	return []*string{
		&c.Telegram.BotToken,
		&c.Telegram.WebhookSecret,
		&c.AppScript.Secret,
		&c.Redis.Password,
	}
}

// HasSecretRefs reports whether any secret is given as an ssm:/name reference.
func (c *Config) HasSecretRefs() bool {
	for _, f := range c.secretFields() {
		if strings.HasPrefix(*f, secretPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every ssm:/name reference with the parameter value.
func (c *Config) ResolveSecrets(ctx context.Context, getter SecretGetter) error {
	for _, f := range c.secretFields() {
		if !strings.HasPrefix(*f, secretPrefix) {
			continue
		}
		value, err := getter.GetParameter(ctx, strings.TrimPrefix(*f, secretPrefix))
		if err != nil {
			return fmt.Errorf("resolve secret: %w", err)
		}
		*f = value
	}
	return nil
}
