package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

const (
	NetworkMainnet = "casper"
	NetworkTestnet = "casper-test"

	StorageCSV      = "csv"
	StoragePostgres = "postgres"
)

func ReadFile(filepath string, cfg interface{}) error {
	_, err := toml.DecodeFile(filepath, cfg)
	return err
}

// Load returns the default configuration, overlaid with the TOML file at
// filepath (if any) and then with environment variables.
func Load(filepath string) (*BaseConfig, error) {
	cfg := DefaultBaseConfig()

	if filepath != "" {
		if err := ReadFile(filepath, cfg); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", filepath)
		}
	}

	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type BaseConfig struct {
	Logger   logger.Config      `toml:"logger"`
	Timeout  Timeout            `toml:"timeout" envPrefix:"TIMEOUT_"`
	Era      Era                `toml:"era" envPrefix:"ERA_"`
	Gate     Gate               `toml:"gate" envPrefix:"GATE_"`
	Deploy   Deploy             `toml:"deploy" envPrefix:"DEPLOY_"`
	Networks map[string]Network `toml:"networks"`
	Scanner  Scanner            `toml:"scanner" envPrefix:"SCANNER_"`
	DB       DB                 `toml:"db" envPrefix:"DB_"`

	// RPCURL overrides the endpoint of every network.
	RPCURL string `toml:"rpc_url" env:"CASPER_RPC_URL"`
}

func DefaultBaseConfig() *BaseConfig {
	networks := make(map[string]Network, len(defaultNetworks))
	for name, n := range defaultNetworks {
		networks[name] = n
	}

	return &BaseConfig{
		Logger:   defaultLogger,
		Timeout:  defaultTimeout,
		Era:      defaultEra,
		Gate:     defaultGate,
		Deploy:   defaultDeploy,
		Networks: networks,
		Scanner:  defaultScanner,
		DB:       defaultDB,
	}
}

func (cfg *BaseConfig) ApplyEnvOverrides() error {
	return errors.Wrap(env.Parse(cfg), "applying env overrides")
}

func (cfg *BaseConfig) Validate() error {
	if cfg.Era.AvgBlocksPerEra == 0 {
		return errors.New("era.avg_blocks_per_era must be positive")
	}
	if cfg.Gate.PollInterval <= 0 {
		return errors.New("gate.poll_interval must be positive")
	}
	if cfg.Scanner.MinCost >= cfg.Scanner.MaxCost {
		return errors.Errorf("scanner.min_cost %d must be below scanner.max_cost %d", cfg.Scanner.MinCost, cfg.Scanner.MaxCost)
	}
	if cfg.Scanner.Storage != StorageCSV && cfg.Scanner.Storage != StoragePostgres {
		return errors.Errorf("unknown scanner.storage %q", cfg.Scanner.Storage)
	}

	return nil
}

// Network resolves a chain name to its endpoint and staking contract.
func (cfg *BaseConfig) Network(name string) (Network, error) {
	n, ok := cfg.Networks[name]
	if !ok {
		return Network{}, errors.Errorf("unknown network %q", name)
	}

	if cfg.RPCURL != "" {
		n.RPC = cfg.RPCURL
	}

	return n, nil
}

var defaultLogger = logger.Config{
	Level:   "INFO",
	Console: true,
}

type Timeout struct {
	BackoffMaxElapsedTimeSeconds int `toml:"backoff_max_elapsed_time_seconds" env:"BACKOFF_MAX_ELAPSED_TIME_SECONDS"`
	RequestTimeoutMillis         int `toml:"request_timeout_millis" env:"REQUEST_TIMEOUT_MILLIS"`
}

func (t Timeout) BackoffMaxElapsedTime() time.Duration {
	return time.Duration(t.BackoffMaxElapsedTimeSeconds) * time.Second
}

func (t Timeout) RequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeoutMillis) * time.Millisecond
}

var defaultTimeout = Timeout{
	BackoffMaxElapsedTimeSeconds: 300,
	RequestTimeoutMillis:         30000,
}

// Era holds the network timing estimates used to find and wait out eras.
// Neither value is authoritative: they only shape the search and decide how
// long to sleep before polling.
type Era struct {
	AvgBlocksPerEra uint64        `toml:"avg_blocks_per_era" env:"AVG_BLOCKS_PER_ERA"`
	Duration        time.Duration `toml:"duration" env:"DURATION"`
}

var defaultEra = Era{
	AvgBlocksPerEra: 109,
	Duration:        2*time.Hour + time.Minute + 10*time.Second,
}

type Gate struct {
	PollInterval    time.Duration `toml:"poll_interval" env:"POLL_INTERVAL"`
	TimestampBuffer time.Duration `toml:"timestamp_buffer" env:"TIMESTAMP_BUFFER"`
	// Zero waits without bound.
	WaitTimeout time.Duration `toml:"wait_timeout" env:"WAIT_TIMEOUT"`
}

var defaultGate = Gate{
	PollInterval:    time.Minute,
	TimestampBuffer: 5 * time.Second,
}

type Deploy struct {
	TTL               time.Duration `toml:"ttl" env:"TTL"`
	GasPrice          uint64        `toml:"gas_price" env:"GAS_PRICE"`
	TransferPayment   uint64        `toml:"transfer_payment" env:"TRANSFER_PAYMENT"`
	UndelegatePayment uint64        `toml:"undelegate_payment" env:"UNDELEGATE_PAYMENT"`
}

var defaultDeploy = Deploy{
	TTL:               6 * time.Hour,
	GasPrice:          1,
	TransferPayment:   10_000,
	UndelegatePayment: 500_000_000,
}

type Network struct {
	RPC             string `toml:"rpc"`
	StakingContract string `toml:"staking_contract"`
}

var defaultNetworks = map[string]Network{
	NetworkMainnet: {
		RPC:             "http://134.209.243.124:7777/rpc",
		StakingContract: "ccb576d6ce6dec84a551e48f0d0b7af89ddba44c7390b690036257a04a3ae9ea",
	},
	NetworkTestnet: {
		RPC:             "https://node-clarity-testnet.make.services/rpc",
		StakingContract: "68e15f19eb37e6062c1a73d26acf3793bf39027713db6c4ff2baad6e7a5054f1",
	},
}

type Scanner struct {
	Network          string `toml:"network" env:"NETWORK"`
	OutputFile       string `toml:"output_file" env:"OUTPUT_FILE"`
	FloorHeight      uint64 `toml:"floor_height" env:"FLOOR_HEIGHT"`
	MinCost          uint64 `toml:"min_cost" env:"MIN_COST"`
	MaxCost          uint64 `toml:"max_cost" env:"MAX_COST"`
	Storage          string `toml:"storage" env:"STORAGE"`
	FlushEveryBlocks uint64 `toml:"flush_every_blocks" env:"FLUSH_EVERY_BLOCKS"`
}

var defaultScanner = Scanner{
	Network:     NetworkMainnet,
	OutputFile:  "undelegations.csv",
	FloorHeight: 116858,
	MinCost:     400_000_000,
	MaxCost:     500_000_000,
	Storage:     StorageCSV,
}

type DB struct {
	Host       string `toml:"host" env:"HOST"`
	Port       int    `toml:"port" env:"PORT"`
	Username   string `toml:"username" env:"USERNAME"`
	Password   string `toml:"password" env:"PASSWORD"`
	DBName     string `toml:"db_name" env:"NAME"`
	LogQueries bool   `toml:"log_queries" env:"LOG_QUERIES"`
}

var defaultDB = DB{
	Host: "localhost",
	Port: 5432,
}
