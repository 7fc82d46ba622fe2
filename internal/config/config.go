package config

import (
	"fmt"
	"os"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Compute engine names
const (
	EngineSimulated = "simulated"
	EngineDocker    = "docker"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Worker    WorkerConfig    `yaml:"worker"`
	Compute   ComputeConfig   `yaml:"compute"`
	Relay     RelayConfig     `yaml:"relay"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectRetries  int           `yaml:"connect_retries"`
	ConnectInterval time.Duration `yaml:"connect_interval"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	User        string           `yaml:"user"`
	Password    string           `yaml:"password"`
	VHost       string           `yaml:"vhost"`
	Exchange    ExchangeConfig   `yaml:"exchange"`
	Queue       QueueConfig      `yaml:"queue"`
	BindingKeys []string         `yaml:"binding_keys"`
	Connection  ConnectionConfig `yaml:"connection"`
	Publish     PublishConfig    `yaml:"publish"`
	Consumer    ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Confirm           bool          `yaml:"confirm"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// LedgerConfig holds the platform parameters fixed at deployment. Only the
// api service reads it; the first start records it in the database and
// workers load it from there. Amounts are base-10 strings in the smallest unit.
type LedgerConfig struct {
	Owner               string `yaml:"owner"`
	MinStake            string `yaml:"min_stake"`
	FeeBasisPoints      *int64 `yaml:"fee_bps"`
	ReputationIncrement int64  `yaml:"reputation_increment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	Address           string        `yaml:"address"`
	Name              string        `yaml:"name"`
	Stake             string        `yaml:"stake"`
	AutoRegister      bool          `yaml:"auto_register"`
	Concurrency       int           `yaml:"concurrency"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	PageSize          int           `yaml:"page_size"`
	Kinds             []string      `yaml:"kinds"`
	MinReward         string        `yaml:"min_reward"`
	ResumeAssigned    bool          `yaml:"resume_assigned"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// ParamsTimeout bounds the wait for the api service to record ledger parameters
	ParamsTimeout time.Duration `yaml:"params_timeout"`
}

// ComputeConfig selects and tunes the computation engine
type ComputeConfig struct {
	Engine               string                   `yaml:"engine"`
	BudgetFactor         float64                  `yaml:"budget_factor"`
	Budgets              map[string]time.Duration `yaml:"budgets"`
	SimulatedDelayFactor *float64                 `yaml:"simulated_delay_factor"`
	Docker               DockerConfig             `yaml:"docker"`
}

// DockerConfig holds container engine settings
type DockerConfig struct {
	Image    string            `yaml:"image"`
	Images   map[string]string `yaml:"images"`
	MemoryMB int64             `yaml:"memory_mb"`
	NanoCPUs int64             `yaml:"nano_cpus"`
}

// RelayConfig holds outbox relay settings
type RelayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// MetricsConfig holds Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// RateLimitConfig holds per-caller API throttling. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the fields the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(false); err != nil {
		return err
	}

	if err := c.validateLedger(); err != nil {
		return err
	}

	if c.Relay.PollInterval < 0 {
		return fmt.Errorf("relay poll_interval must not be negative")
	}

	if c.Relay.BatchSize < 0 {
		return fmt.Errorf("relay batch_size must not be negative")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit requests_per_second must not be negative")
	}

	return nil
}

// ValidateWorkerConfig checks the fields the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(true); err != nil {
		return err
	}

	if c.Worker.Address == "" {
		return fmt.Errorf("worker address is required")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ReconcileInterval < 0 {
		return fmt.Errorf("worker reconcile_interval must not be negative")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.ParamsTimeout < 0 {
		return fmt.Errorf("worker params_timeout must not be negative")
	}

	if c.Worker.AutoRegister {
		if _, err := c.Worker.StakeAmount(); err != nil {
			return fmt.Errorf("invalid worker stake: %w", err)
		}
	}

	if _, err := c.Worker.MinRewardAmount(); err != nil {
		return fmt.Errorf("invalid worker min_reward: %w", err)
	}

	if _, err := c.Worker.ComputationKinds(); err != nil {
		return fmt.Errorf("invalid worker kinds: %w", err)
	}

	switch c.Compute.Engine {
	case "", EngineSimulated:
	case EngineDocker:
		if c.Compute.Docker.Image == "" && len(c.Compute.Docker.Images) == 0 {
			return fmt.Errorf("compute docker image is required")
		}
	default:
		return fmt.Errorf("unknown compute engine: %q", c.Compute.Engine)
	}

	if _, err := c.Compute.BudgetOverrides(); err != nil {
		return fmt.Errorf("invalid compute budgets: %w", err)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ(needQueue bool) error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if needQueue && c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

func (c *Config) validateLedger() error {
	if c.Ledger.Owner == "" {
		return fmt.Errorf("ledger owner is required")
	}

	if _, err := c.Ledger.MinStakeAmount(); err != nil {
		return fmt.Errorf("invalid ledger min_stake: %w", err)
	}

	if err := c.Ledger.FeeSchedule().Validate(); err != nil {
		return fmt.Errorf("invalid ledger fee_bps: %w", err)
	}

	return nil
}

// MinStakeAmount parses min_stake; empty means no minimum
func (l LedgerConfig) MinStakeAmount() (domain.Amount, error) {
	return parseOptionalAmount(l.MinStake)
}

// FeeSchedule returns the configured fee, or the default when fee_bps is unset
func (l LedgerConfig) FeeSchedule() domain.FeeSchedule {
	if l.FeeBasisPoints == nil {
		return domain.DefaultFeeSchedule()
	}
	return domain.FeeSchedule{BasisPoints: *l.FeeBasisPoints}
}

// Params assembles the ledger parameters the api service records
func (l LedgerConfig) Params() (domain.Params, error) {
	minStake, err := l.MinStakeAmount()
	if err != nil {
		return domain.Params{}, err
	}
	p := domain.Params{
		Owner:               l.Owner,
		MinStake:            minStake,
		Fees:                l.FeeSchedule(),
		ReputationIncrement: l.ReputationIncrement,
	}
	return p.Normalize(), nil
}

// ParamsWait returns params_timeout, defaulting to one minute
func (w WorkerConfig) ParamsWait() time.Duration {
	if w.ParamsTimeout <= 0 {
		return time.Minute
	}
	return w.ParamsTimeout
}

// StakeAmount parses the stake used for auto-registration
func (w WorkerConfig) StakeAmount() (domain.Amount, error) {
	if w.Stake == "" {
		return domain.Amount{}, fmt.Errorf("%w: stake is required", domain.ErrInvalidArgument)
	}
	return domain.ParseAmount(w.Stake)
}

// MinRewardAmount parses min_reward; empty accepts any payout
func (w WorkerConfig) MinRewardAmount() (domain.Amount, error) {
	return parseOptionalAmount(w.MinReward)
}

// ComputationKinds parses the kinds filter; empty accepts every kind
func (w WorkerConfig) ComputationKinds() ([]domain.ComputationKind, error) {
	kinds := make([]domain.ComputationKind, 0, len(w.Kinds))
	for _, s := range w.Kinds {
		kind, err := domain.ParseComputationKind(s)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// BudgetOverrides parses the per-kind budget map
func (c ComputeConfig) BudgetOverrides() (map[domain.ComputationKind]time.Duration, error) {
	out := make(map[domain.ComputationKind]time.Duration, len(c.Budgets))
	for name, d := range c.Budgets {
		kind, err := domain.ParseComputationKind(name)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("budget for %s must be greater than 0", kind)
		}
		out[kind] = d
	}
	return out, nil
}

// DockerImages parses the per-kind image map
func (c ComputeConfig) DockerImages() (map[domain.ComputationKind]string, error) {
	out := make(map[domain.ComputationKind]string, len(c.Docker.Images))
	for name, image := range c.Docker.Images {
		kind, err := domain.ParseComputationKind(name)
		if err != nil {
			return nil, err
		}
		out[kind] = image
	}
	return out, nil
}

// DelayFactor returns simulated_delay_factor, defaulting to real-time delays
func (c ComputeConfig) DelayFactor() float64 {
	if c.SimulatedDelayFactor == nil {
		return 1
	}
	return *c.SimulatedDelayFactor
}

func parseOptionalAmount(s string) (domain.Amount, error) {
	if s == "" {
		return domain.ZeroAmount(), nil
	}
	return domain.ParseAmount(s)
}
