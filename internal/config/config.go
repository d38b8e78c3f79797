// Package config loads the gateway's TOML configuration file, adapted
// from dsmmcken-dh-cli's config package (src/internal/config/config.go)
// which uses the same github.com/pelletier/go-toml/v2 marshal/unmarshal
// pair; generalized here from a CLI's user-preferences file to a
// cluster node's startup configuration.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Peer is one statically-configured cluster member to seed membership
// with at startup.
type Peer struct {
	ID      string `toml:"id"`
	Address string `toml:"address"`
}

// Config is the gateway node's startup configuration, normally loaded
// from a config.toml passed via --config.
type Config struct {
	NodeID      string `toml:"node_id"`
	ListenAddr  string `toml:"listen_addr"`
	AdminAddr   string `toml:"admin_addr"`
	DataDir     string `toml:"data_dir"`
	VnodesCount int    `toml:"vnodes_count,omitempty"`

	CacheEnabled  bool `toml:"cache_enabled,omitempty"`
	CacheCapacity int  `toml:"cache_capacity,omitempty"`

	Peers []Peer `toml:"peers,omitempty"`
}

// Default returns a Config with the gateway's baseline defaults, the
// same role dh-cli's zero-value Config plays when no file exists.
func Default() *Config {
	return &Config{
		NodeID:        "node1",
		ListenAddr:    ":7000",
		AdminAddr:     ":8080",
		DataDir:       "/tmp/sheepgate",
		VnodesCount:   150,
		CacheEnabled:  false,
		CacheCapacity: 1024,
	}
}

// Load reads and parses a TOML file at path, falling back to Default
// when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}
