package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	API struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"api"`
	Chain struct {
		ChainID              int64    `yaml:"chain_id"`
		RPCEndpoints         []string `yaml:"rpc_endpoints"`
		WSEndpoint           string   `yaml:"ws_endpoint"`
		SettlementContract   string   `yaml:"settlement_contract"`
		GoldContract         string   `yaml:"gold_contract"`
		RequestTimeoutSecs   int      `yaml:"request_timeout_seconds"`
		RPCFailoverThreshold int      `yaml:"rpc_failover_threshold"`
	} `yaml:"chain"`
	Wallet struct {
		PrivateKey string `yaml:"private_key"`
	} `yaml:"wallet"`
	Reconciler struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
	} `yaml:"reconciler"`
}

func (c *Config) RequestTimeout() time.Duration {
	if c.Chain.RequestTimeoutSecs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Chain.RequestTimeoutSecs) * time.Second
}

func (c *Config) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func (c *Config) ReconcileInterval() time.Duration {
	if c.Reconciler.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Reconciler.IntervalSeconds) * time.Second
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.Addr == "" {
		return nil, errors.New("server.addr is required")
	}
	if cfg.DB.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	if cfg.Chain.ChainID <= 0 || len(cfg.Chain.RPCEndpoints) == 0 {
		return nil, errors.New("chain config is incomplete")
	}
	if cfg.Chain.SettlementContract == "" || cfg.Chain.GoldContract == "" {
		return nil, errors.New("contract addresses are required")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		cfg.Chain.ChainID = atoi64Or(cfg.Chain.ChainID, v)
	}
	if v := os.Getenv("RPC_ENDPOINTS"); v != "" {
		cfg.Chain.RPCEndpoints = splitCommaList(v)
	}
	if v := os.Getenv("WS_ENDPOINT"); v != "" {
		cfg.Chain.WSEndpoint = v
	}
	if v := os.Getenv("SETTLEMENT_CONTRACT"); v != "" {
		cfg.Chain.SettlementContract = v
	}
	if v := os.Getenv("GOLD_CONTRACT"); v != "" {
		cfg.Chain.GoldContract = v
	}
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("RECONCILE_INTERVAL_SECONDS"); v != "" {
		cfg.Reconciler.IntervalSeconds = atoi64Or(cfg.Reconciler.IntervalSeconds, v)
	}
	if v := os.Getenv("RPC_FAILOVER_THRESHOLD"); v != "" {
		cfg.Chain.RPCFailoverThreshold = atoiOr(cfg.Chain.RPCFailoverThreshold, v)
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
