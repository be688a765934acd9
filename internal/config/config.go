package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the node configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	P2P    P2PConfig    `yaml:"p2p"`
	Ledger LedgerConfig `yaml:"ledger"`
	Miner  MinerConfig  `yaml:"miner"`
	Pebble PebbleConfig `yaml:"pebble"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig represents the HTTP API configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// P2PConfig represents the peer-to-peer listener and the peers dialed at startup
type P2PConfig struct {
	Port  int      `yaml:"port"`
	Host  string   `yaml:"host"`
	Peers []string `yaml:"peers"`
}

// Addr returns host:port.
func (p P2PConfig) Addr() string {
	return p.Host + ":" + strconv.Itoa(p.Port)
}

// LedgerConfig represents the consensus constants
type LedgerConfig struct {
	Difficulty   int     `yaml:"difficulty"`
	MiningReward float64 `yaml:"mining_reward"`
}

// MinerConfig represents the background miner
type MinerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
}

// PebbleConfig represents the explorer index database
type PebbleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig represents logging options
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from a YAML file and environment variables
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 3001,
			Host: "0.0.0.0",
		},
		P2P: P2PConfig{
			Port: 6001,
			Host: "0.0.0.0",
		},
		Ledger: LedgerConfig{
			Difficulty:   2,
			MiningReward: 100,
		},
		Miner: MinerConfig{
			Interval: 10 * time.Second,
		},
		Pebble: PebbleConfig{
			Path: "./data/index",
		},
		Log: LogConfig{
			Level: "info",
		},
	}

	// Load from YAML file if it exists
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, "failed to parse config file")
			}
		}
	}

	// Override with environment variables
	cfg.loadEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ledger.Difficulty < 1 || c.Ledger.Difficulty > 64 {
		return errors.Newf("ledger.difficulty must be between 1 and 64, got %d", c.Ledger.Difficulty)
	}
	if c.Ledger.MiningReward <= 0 {
		return errors.Newf("ledger.mining_reward must be positive, got %v", c.Ledger.MiningReward)
	}
	if c.Miner.Enabled && c.Miner.Address == "" {
		return errors.New("miner.address is required when the miner is enabled")
	}
	return nil
}

func (c *Config) loadEnv() {
	// Server config
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("HTTP_HOST"); host != "" {
		c.Server.Host = host
	}

	// P2P config
	if port := os.Getenv("P2P_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.P2P.Port = p
		}
	}
	if host := os.Getenv("P2P_HOST"); host != "" {
		c.P2P.Host = host
	}
	if peers := os.Getenv("PEERS"); peers != "" {
		c.P2P.Peers = splitList(peers)
	}

	// Ledger config
	if difficulty := os.Getenv("DIFFICULTY"); difficulty != "" {
		if d, err := strconv.Atoi(difficulty); err == nil {
			c.Ledger.Difficulty = d
		}
	}
	if reward := os.Getenv("MINING_REWARD"); reward != "" {
		if r, err := strconv.ParseFloat(reward, 64); err == nil {
			c.Ledger.MiningReward = r
		}
	}

	// Miner config
	if enabled := os.Getenv("MINER_ENABLED"); enabled != "" {
		c.Miner.Enabled = enabled == "true" || enabled == "1"
	}
	if address := os.Getenv("MINER_ADDRESS"); address != "" {
		c.Miner.Address = address
	}
	if interval := os.Getenv("MINER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			c.Miner.Interval = d
		}
	}

	// Pebble config
	if enabled := os.Getenv("PEBBLE_ENABLED"); enabled != "" {
		c.Pebble.Enabled = enabled == "true" || enabled == "1"
	}
	if path := os.Getenv("PEBBLE_PATH"); path != "" {
		c.Pebble.Path = path
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
