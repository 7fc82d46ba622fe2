package config

import (
	"testing"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/api_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "obscura_db", cfg.Database.Database)
				assert.Equal(t, "obscura.events", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "topic", cfg.RabbitMQ.Exchange.Type)
				assert.Empty(t, cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "obscura-api-service", cfg.App.Name)
				assert.Equal(t, "0xowner", cfg.Ledger.Owner)
				assert.Equal(t, 500*time.Millisecond, cfg.Relay.PollInterval)
				assert.Equal(t, 40, cfg.RateLimit.Burst)
				assert.True(t, cfg.RabbitMQ.Publish.Confirm)
			}
		})
	}
}

func TestLoad_WorkerConfig(t *testing.T) {
	cfg, err := Load("testdata/worker_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0xworker", cfg.Worker.Address)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.True(t, cfg.Worker.AutoRegister)
	assert.Equal(t, []string{"job.created"}, cfg.RabbitMQ.BindingKeys)
	assert.Equal(t, 4, cfg.RabbitMQ.Consumer.PrefetchCount)
	assert.Empty(t, cfg.Ledger.Owner)
	assert.Equal(t, 2*time.Minute, cfg.Worker.ParamsWait())

	stake, err := cfg.Worker.StakeAmount()
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000", stake.String())

	minReward, err := cfg.Worker.MinRewardAmount()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), minReward.Int64())

	kinds, err := cfg.Worker.ComputationKinds()
	require.NoError(t, err)
	assert.Equal(t, []domain.ComputationKind{domain.KindSum, domain.KindAverage, domain.KindLinearRegression}, kinds)

	budgets, err := cfg.Compute.BudgetOverrides()
	require.NoError(t, err)
	assert.Equal(t, map[domain.ComputationKind]time.Duration{domain.KindDecisionTree: 12 * time.Second}, budgets)
	assert.InDelta(t, 2.5, cfg.Compute.BudgetFactor, 1e-9)
	assert.InDelta(t, 0.5, cfg.Compute.DelayFactor(), 1e-9)

	require.NoError(t, cfg.ValidateWorkerConfig())
}

func TestLedgerConfig(t *testing.T) {
	t.Run("fee defaults when unset", func(t *testing.T) {
		l := LedgerConfig{}
		assert.Equal(t, domain.DefaultFeeSchedule(), l.FeeSchedule())
	})

	t.Run("explicit zero fee is kept", func(t *testing.T) {
		zero := int64(0)
		l := LedgerConfig{FeeBasisPoints: &zero}
		assert.Equal(t, int64(0), l.FeeSchedule().BasisPoints)
	})

	t.Run("empty min stake is zero", func(t *testing.T) {
		amount, err := LedgerConfig{}.MinStakeAmount()
		require.NoError(t, err)
		assert.True(t, amount.IsZero())
	})

	t.Run("params are normalized", func(t *testing.T) {
		p, err := LedgerConfig{Owner: "0xowner", MinStake: "100"}.Params()
		require.NoError(t, err)
		assert.Equal(t, "0xowner", p.Owner)
		assert.Equal(t, int64(100), p.MinStake.Int64())
		assert.Equal(t, domain.DefaultFeeSchedule(), p.Fees)
		assert.Equal(t, int64(domain.DefaultReputationIncrement), p.ReputationIncrement)
	})

	t.Run("malformed min stake", func(t *testing.T) {
		_, err := LedgerConfig{MinStake: "1e18"}.MinStakeAmount()
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})
}

func validAPIConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "obscura_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			Exchange: ExchangeConfig{
				Name: "obscura.events",
			},
		},
		Ledger: LedgerConfig{
			Owner:    "0xowner",
			MinStake: "100",
		},
	}
}

func validWorkerConfig() *Config {
	cfg := validAPIConfig()
	cfg.RabbitMQ.Queue.Name = "obscura.worker"
	cfg.Worker = WorkerConfig{
		Address:         "0xworker",
		Concurrency:     2,
		ShutdownTimeout: 10 * time.Second,
	}
	return cfg
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty ledger owner",
			mutate:    func(c *Config) { c.Ledger.Owner = "" },
			wantErr:   true,
			errString: "ledger owner is required",
		},
		{
			name:      "negative min stake",
			mutate:    func(c *Config) { c.Ledger.MinStake = "-1" },
			wantErr:   true,
			errString: "invalid ledger min_stake",
		},
		{
			name: "fee above 100 percent",
			mutate: func(c *Config) {
				bps := int64(10001)
				c.Ledger.FeeBasisPoints = &bps
			},
			wantErr:   true,
			errString: "invalid ledger fee_bps",
		},
		{
			name:      "negative rate limit",
			mutate:    func(c *Config) { c.RateLimit.RequestsPerSecond = -1 },
			wantErr:   true,
			errString: "rate_limit requests_per_second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)
			err := cfg.ValidateAPIConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "empty queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "empty worker address",
			mutate:    func(c *Config) { c.Worker.Address = "" },
			wantErr:   true,
			errString: "worker address is required",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:    "ledger section not needed",
			mutate:  func(c *Config) { c.Ledger = LedgerConfig{} },
			wantErr: false,
		},
		{
			name:      "negative params timeout",
			mutate:    func(c *Config) { c.Worker.ParamsTimeout = -time.Second },
			wantErr:   true,
			errString: "worker params_timeout must not be negative",
		},
		{
			name:      "zero shutdown timeout",
			mutate:    func(c *Config) { c.Worker.ShutdownTimeout = 0 },
			wantErr:   true,
			errString: "worker shutdown_timeout must be greater than 0",
		},
		{
			name:      "auto register without stake",
			mutate:    func(c *Config) { c.Worker.AutoRegister = true },
			wantErr:   true,
			errString: "invalid worker stake",
		},
		{
			name:      "unknown kind",
			mutate:    func(c *Config) { c.Worker.Kinds = []string{"median"} },
			wantErr:   true,
			errString: "invalid worker kinds",
		},
		{
			name:      "malformed min reward",
			mutate:    func(c *Config) { c.Worker.MinReward = "ten" },
			wantErr:   true,
			errString: "invalid worker min_reward",
		},
		{
			name:      "unknown engine",
			mutate:    func(c *Config) { c.Compute.Engine = "fpga" },
			wantErr:   true,
			errString: "unknown compute engine",
		},
		{
			name:      "docker without image",
			mutate:    func(c *Config) { c.Compute.Engine = EngineDocker },
			wantErr:   true,
			errString: "compute docker image is required",
		},
		{
			name: "docker with image",
			mutate: func(c *Config) {
				c.Compute.Engine = EngineDocker
				c.Compute.Docker.Image = "obscura/fhe-kernel:latest"
			},
			wantErr: false,
		},
		{
			name: "zero budget",
			mutate: func(c *Config) {
				c.Compute.Budgets = map[string]time.Duration{"sum": 0}
			},
			wantErr:   true,
			errString: "invalid compute budgets",
		},
		{
			name: "metrics enabled without port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
			},
			wantErr:   true,
			errString: "invalid metrics port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validWorkerConfig()
			tt.mutate(cfg)
			err := cfg.ValidateWorkerConfig()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate api config", func(t *testing.T) {
		cfg, err := Load("testdata/api_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.ValidateAPIConfig())
	})

	t.Run("api config is not a worker config", func(t *testing.T) {
		cfg, err := Load("testdata/api_config.yaml")
		require.NoError(t, err)

		err = cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq queue name is required")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
