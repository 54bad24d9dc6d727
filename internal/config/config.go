// Package config loads relay configuration from a TOML file, applying
// the documented defaults for any key the file omits.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable named by the relay's external contract.
type Config struct {
	InpollTimeout    time.Duration `toml:"inpoll_timeout"`
	OutpollTimeout   time.Duration `toml:"outpoll_timeout"`
	BroadcastPeriod  time.Duration `toml:"broadcast_period"`
	PromoteTimeout   time.Duration `toml:"promote_timeout"`
	NegotiatePeriod  time.Duration `toml:"negotiate_period"`
	NegotiateTimeout time.Duration `toml:"negotiation_timeout"`
	MaxSendAttempts  int           `toml:"max_send_attempts"`
	WarnLimit        int           `toml:"warn_limit"`
	DropLimit        int           `toml:"drop_limit"`
	CachePeriod      time.Duration `toml:"cache_period"`
	StatsPeriod      time.Duration `toml:"stats_period"`
	MMWarnTimeout    time.Duration `toml:"mm_warn_timeout"`

	DontPromote            bool `toml:"dont_promote"`
	WarnNoStandby          bool `toml:"warn_no_standby"`
	HandleUnexpectedWrites bool `toml:"handle_unexpected_writes"`

	CltSubPort int `toml:"clt_sub_port"`
	LogSubPort int `toml:"log_sub_port"`
	LogPubPort int `toml:"log_pub_port"`
	MMSndPort  int `toml:"mm_snd_port"`

	RelayID    string `toml:"relay_id"`
	Header     string `toml:"header"` // stable negotiation tiebreak header; defaults to hostname if unset
	JWTSecret  string `toml:"jwt_secret"`
	NATSURL    string `toml:"nats_url"`
	RunDSN     string `toml:"run_dsn"`
	MonURI     string `toml:"mon_uri"`
	MonDB      string `toml:"mon_db"`
	MonColl    string `toml:"mon_collection"`
	RedisURL   string `toml:"redis_url"`

	LastUpdateTable  string `toml:"last_update_table"`
	LastUpdateColumn string `toml:"last_update_column"`

	Secrets SecretsConfig `toml:"secrets"`
	HTTP    HTTPConfig    `toml:"http"`
}

// SecretsConfig selects and parameterizes a secrets backend.
type SecretsConfig struct {
	Backend   string `toml:"backend"` // "vault", "awssm", or "" (none — use inline DSNs)
	VaultAddr string `toml:"vault_addr"`
	VaultPath string `toml:"vault_path"`
	AWSRegion string `toml:"aws_region"`
	AWSSecret string `toml:"aws_secret_id"`
}

// HTTPConfig parameterizes the admin HTTP surface.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the documented defaults. Durations are stored as
// time.Duration directly so the rest of the codebase never re-derives
// units from a raw millisecond count.
func Default() Config {
	return Config{
		InpollTimeout:          100 * time.Millisecond,
		OutpollTimeout:         100 * time.Millisecond,
		BroadcastPeriod:        2 * time.Second,
		PromoteTimeout:         6 * time.Second,
		NegotiatePeriod:        1 * time.Second,
		NegotiateTimeout:       3 * time.Second,
		MaxSendAttempts:        5,
		WarnLimit:              1000,
		DropLimit:              5000,
		CachePeriod:            5 * time.Minute,
		StatsPeriod:            10 * time.Second,
		MMWarnTimeout:          30 * time.Second,
		DontPromote:            false,
		WarnNoStandby:          true,
		HandleUnexpectedWrites: false,
		CltSubPort:             5561,
		LogSubPort:             5562,
		LogPubPort:             5563,
		MMSndPort:              5564,
		NATSURL:                "nats://127.0.0.1:4222",
		MonColl:                "relay_logs",
		LastUpdateTable:        "transactions",
		LastUpdateColumn:       "committed_at",
		HTTP:                   HTTPConfig{Addr: ":8080"},
	}
}

// Load reads path, starting from Default and overriding with whatever
// keys are present in the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first structural problem found, matching the
// error-handling design's "config: invalid config at startup refuses
// to start" rule.
func (c Config) Validate() error {
	if c.RelayID == "" {
		return fmt.Errorf("config: relay_id must be set")
	}
	if c.MaxSendAttempts <= 0 {
		return fmt.Errorf("config: max_send_attempts must be positive")
	}
	if c.DropLimit <= c.WarnLimit {
		return fmt.Errorf("config: drop_limit must exceed warn_limit")
	}
	if c.NATSURL == "" {
		return fmt.Errorf("config: nats_url must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: jwt_secret must be set")
	}
	return nil
}
