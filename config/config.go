// Package config loads the global and per-coin settings shared by every
// command (extract, coincli, trace, apiserver). It is the Go analogue of the
// original settings.py: a JSON settings file supplies defaults, and
// command-line flags (parsed with go-flags by each cmd/ package) override
// them.
package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// DatabaseConfig holds the connection parameters for the key-value store.
type DatabaseConfig struct {
	User     string `json:"user"`
	Password string `json:"passwd"`
	Host     string `json:"host"`
	Database string `json:"db"`
}

// CoinConfig describes one supported coin/chain.
type CoinConfig struct {
	// Server is the host:port of the node's REST/JSON-RPC endpoint.
	Server string `json:"server"`
	// RPCAuth is "user:password" used for JSON-RPC calls.
	RPCAuth string `json:"rpcauth"`
	// Symbol is the coin's ticker, echoed back in API responses.
	Symbol string `json:"symbol"`
	// GenesisHash is the block hash the extractor starts walking from.
	GenesisHash string `json:"genesis_hash,omitempty"`
	// Database optionally overrides the global Database settings for this coin.
	Database *DatabaseConfig `json:"database,omitempty"`
}

// ExtractLogConfig configures the extractor's file logger.
type ExtractLogConfig struct {
	File            string `json:"file"`
	Append          bool   `json:"append"`
	Level           string `json:"level"`
	SnapshotMemory  bool   `json:"snapshot_memory"`
	SnapshotTimerS  int    `json:"snapshot_timer"`
}

// Settings is the full contents of the JSON settings file.
type Settings struct {
	Coins               map[string]CoinConfig `json:"coins"`
	Database            DatabaseConfig        `json:"database"`
	SystemSortCommand   string                `json:"system_sort_command"`
	NewBlockNotification string               `json:"new_block_notification"`
	ExtractLog          ExtractLogConfig      `json:"extract_log"`
	Debug               int                   `json:"debug"`
}

// Load reads and parses a JSON settings file.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening settings file %q", path)
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrapf(err, "parsing settings file %q", path)
	}
	return &s, nil
}

// CoinNames returns the configured coin types in no particular order, used
// to build "must be one of: [...]" error messages for the -t/--type flag.
func (s *Settings) CoinNames() []string {
	names := make([]string, 0, len(s.Coins))
	for name := range s.Coins {
		names = append(names, name)
	}
	return names
}

// Coin looks up a coin's configuration, returning ok=false if unconfigured.
func (s *Settings) Coin(coinType string) (CoinConfig, bool) {
	c, ok := s.Coins[coinType]
	return c, ok
}

// DatabaseFor resolves the database settings for a coin, falling back to the
// global defaults, and substitutes "{coin}" in each field with coinType —
// mirroring get_database_settings() in the original Python.
func (s *Settings) DatabaseFor(coinType string) DatabaseConfig {
	db := s.Database
	if coin, ok := s.Coins[coinType]; ok && coin.Database != nil {
		db = *coin.Database
	}
	return DatabaseConfig{
		User:     substituteCoin(db.User, coinType),
		Password: substituteCoin(db.Password, coinType),
		Host:     substituteCoin(db.Host, coinType),
		Database: substituteCoin(db.Database, coinType),
	}
}

func substituteCoin(s, coinType string) string {
	return strings.ReplaceAll(s, "{coin}", coinType)
}
