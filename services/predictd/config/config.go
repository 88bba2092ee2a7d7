package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"stakeoracle/core"
	"stakeoracle/native/params"
)

const (
	defaultListen      = ":8085"
	defaultStakeSymbol = "STAKE"

	OracleStatic = "static"
	OracleEVM    = "evm"

	// SecretEnv overrides auth.hmac_secret so the secret can stay out of the
	// config file.
	SecretEnv = "PREDICT_HMAC_SECRET"
)

// Config captures the runtime settings for the prediction daemon.
type Config struct {
	ListenAddress   string                     `yaml:"listen"`
	DataDir         string                     `yaml:"data_dir"`
	Admin           string                     `yaml:"admin"`
	Custody         string                     `yaml:"custody"`
	StakeToken      string                     `yaml:"stake_token"`
	SettlementToken string                     `yaml:"settlement_token"`
	Tokens          []TokenConfig              `yaml:"tokens"`
	Genesis         []AllocationConfig         `yaml:"genesis"`
	Params          ParamsConfig               `yaml:"params"`
	Oracle          OracleConfig               `yaml:"oracle"`
	Journal         JournalConfig              `yaml:"journal"`
	Auth            AuthConfig                 `yaml:"auth"`
	RateLimits      map[string]RateLimitConfig `yaml:"rate_limits"`
	CORSOrigins     []string                   `yaml:"cors_origins"`
	Log             LogConfig                  `yaml:"log"`
	StreamBuffer    int                        `yaml:"stream_buffer"`
	ShutdownTimeout time.Duration              `yaml:"shutdown_timeout"`
	LogRequests     bool                       `yaml:"log_requests"`
	DisableTracing  bool                       `yaml:"disable_tracing"`
}

// TokenConfig declares a token registered at genesis.
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// AllocationConfig mints an initial balance at genesis. Amount is a base-10
// integer in the token's smallest unit.
type AllocationConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// ParamsConfig seeds the redistribution factors at genesis. Unset values use
// the module defaults.
type ParamsConfig struct {
	LossFactorBps *uint32 `yaml:"loss_factor_bps"`
	BurnFactorBps *uint32 `yaml:"burn_factor_bps"`
}

// OracleConfig selects where loan status is read from.
type OracleConfig struct {
	Mode          string        `yaml:"mode"`
	RPCURL        string        `yaml:"rpc_url"`
	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// JournalConfig configures the relational event journal. An empty driver
// disables it.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig describes bearer token verification.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig is a token bucket applied per caller to a route group.
type RateLimitConfig struct {
	RatePerSecond float64        `yaml:"rps"`
	Burst         int            `yaml:"burst"`
	DefaultTokens int            `yaml:"default_tokens"`
	Tokens        map[string]int `yaml:"tokens"`
}

// LogConfig controls log level and optional file rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Admin = strings.TrimSpace(cfg.Admin)
	cfg.Custody = strings.TrimSpace(cfg.Custody)
	cfg.StakeToken = strings.ToUpper(strings.TrimSpace(cfg.StakeToken))
	if cfg.StakeToken == "" {
		cfg.StakeToken = defaultStakeSymbol
	}
	cfg.SettlementToken = strings.ToUpper(strings.TrimSpace(cfg.SettlementToken))
	if cfg.SettlementToken == "" {
		cfg.SettlementToken = cfg.StakeToken
	}
	for i := range cfg.Tokens {
		cfg.Tokens[i].Symbol = strings.ToUpper(strings.TrimSpace(cfg.Tokens[i].Symbol))
		cfg.Tokens[i].Name = strings.TrimSpace(cfg.Tokens[i].Name)
	}
	for i := range cfg.Genesis {
		cfg.Genesis[i].Address = strings.TrimSpace(cfg.Genesis[i].Address)
		cfg.Genesis[i].Token = strings.ToUpper(strings.TrimSpace(cfg.Genesis[i].Token))
		cfg.Genesis[i].Amount = strings.TrimSpace(cfg.Genesis[i].Amount)
	}
	cfg.Oracle.Mode = strings.ToLower(strings.TrimSpace(cfg.Oracle.Mode))
	if cfg.Oracle.Mode == "" {
		cfg.Oracle.Mode = OracleStatic
	}
	cfg.Oracle.RPCURL = strings.TrimSpace(cfg.Oracle.RPCURL)
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	if secret := strings.TrimSpace(os.Getenv(SecretEnv)); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	cfg.Auth.HMACSecret = strings.TrimSpace(cfg.Auth.HMACSecret)
	cfg.Auth.Issuer = strings.TrimSpace(cfg.Auth.Issuer)
	cfg.Auth.Audience = strings.TrimSpace(cfg.Auth.Audience)
	origins := make([]string, 0, len(cfg.CORSOrigins))
	for _, origin := range cfg.CORSOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.CORSOrigins = origins
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	admin, err := parseAddress(cfg.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	custody, err := parseAddress(cfg.Custody)
	if err != nil {
		return fmt.Errorf("custody: %w", err)
	}
	if admin == custody {
		return fmt.Errorf("admin and custody must differ")
	}
	if _, err := cfg.GenesisSpec(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	switch cfg.Oracle.Mode {
	case OracleStatic:
	case OracleEVM:
		if cfg.Oracle.RPCURL == "" {
			return fmt.Errorf("oracle: rpc_url is required in evm mode")
		}
	default:
		return fmt.Errorf("oracle: unsupported mode %q", cfg.Oracle.Mode)
	}
	switch cfg.Journal.Driver {
	case "", "sqlite":
	case "postgres":
		if cfg.Journal.DSN == "" {
			return fmt.Errorf("journal: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth: hmac_secret is required (or set %s)", SecretEnv)
	}
	for name, limit := range cfg.RateLimits {
		if limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rate_limits.%s: rps and burst must not be negative", name)
		}
	}
	return nil
}

// AdminAddress returns the parsed administrator address.
func (cfg Config) AdminAddress() [20]byte {
	addr, _ := parseAddress(cfg.Admin)
	return addr
}

// CustodyAddress returns the parsed custody address.
func (cfg Config) CustodyAddress() [20]byte {
	addr, _ := parseAddress(cfg.Custody)
	return addr
}

// GenesisSpec converts the token and allocation sections into the ledger's
// genesis record. The stake token is declared implicitly when omitted.
func (cfg Config) GenesisSpec() (core.Genesis, error) {
	var g core.Genesis
	declared := make(map[string]bool, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		g.Tokens = append(g.Tokens, core.GenesisToken{Symbol: token.Symbol, Name: token.Name, Decimals: token.Decimals})
		declared[token.Symbol] = true
	}
	for _, symbol := range []string{cfg.StakeToken, cfg.SettlementToken} {
		if !declared[symbol] {
			g.Tokens = append(g.Tokens, core.GenesisToken{Symbol: symbol, Name: symbol, Decimals: 18})
			declared[symbol] = true
		}
	}
	for i, alloc := range cfg.Genesis {
		addr, err := parseAddress(alloc.Address)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("allocation %d: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(alloc.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return core.Genesis{}, fmt.Errorf("allocation %d: invalid amount %q", i, alloc.Amount)
		}
		token := alloc.Token
		if token == "" {
			token = cfg.StakeToken
		}
		g.Allocations = append(g.Allocations, core.GenesisAllocation{Address: addr, Symbol: token, Amount: amount})
	}
	if cfg.Params.LossFactorBps != nil || cfg.Params.BurnFactorBps != nil {
		p := params.DefaultRedistribution()
		if cfg.Params.LossFactorBps != nil {
			p.LossFactorBps = *cfg.Params.LossFactorBps
		}
		if cfg.Params.BurnFactorBps != nil {
			p.BurnFactorBps = *cfg.Params.BurnFactorBps
		}
		if err := p.Validate(); err != nil {
			return core.Genesis{}, err
		}
		g.Params = &p
	}
	return g, nil
}

func parseAddress(raw string) ([20]byte, error) {
	if !common.IsHexAddress(raw) {
		return [20]byte{}, fmt.Errorf("invalid address %q", raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return [20]byte{}, fmt.Errorf("zero address not allowed")
	}
	return addr, nil
}
