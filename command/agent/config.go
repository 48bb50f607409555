package agent

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/mecaplan/mecaplan/scheduler"
)

// Config is the agent configuration, loaded from an HCL file and merged over
// the defaults.
type Config struct {
	// BindAddr and Port form the HTTP listen address.
	BindAddr string `hcl:"bind_addr"`
	Port     int    `hcl:"port"`

	LogLevel string `hcl:"log_level"`
	LogJSON  bool   `hcl:"log_json"`

	// Timezone is the display timezone of planning clients. Task instants
	// cross it on every upstream read and write.
	Timezone string `hcl:"timezone"`

	// HalfDayHours is the working length of one slot.
	HalfDayHours float64 `hcl:"half_day_hours"`

	MinHorizon    int `hcl:"min_horizon"`
	HorizonMargin int `hcl:"horizon_margin"`
	ChainCap      int `hcl:"chain_cap"`
	SweepCap      int `hcl:"sweep_cap"`

	// Dev replaces the configured databases with one seeded in-memory
	// database.
	Dev bool `hcl:"dev"`

	Databases []*DatabaseConfig `hcl:"database"`
}

// DatabaseConfig names one upstream database.
type DatabaseConfig struct {
	Name string `hcl:",key"`
	DSN  string `hcl:"dsn"`
}

// DefaultConfig matches the legacy workshop deployment.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:      "127.0.0.1",
		Port:          5000,
		LogLevel:      "INFO",
		Timezone:      "Europe/Paris",
		HalfDayHours:  3.5,
		MinHorizon:    60,
		HorizonMargin: 14,
		ChainCap:      20,
		SweepCap:      50,
	}
}

// LoadConfigFile parses one HCL configuration file.
func LoadConfigFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := new(Config)
	if err := hcl.Decode(config, string(raw)); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return config, nil
}

// Merge overlays b onto c, returning a new config. Zero values in b keep the
// value from c.
func (c *Config) Merge(b *Config) *Config {
	result := *c

	if b.BindAddr != "" {
		result.BindAddr = b.BindAddr
	}
	if b.Port != 0 {
		result.Port = b.Port
	}
	if b.LogLevel != "" {
		result.LogLevel = b.LogLevel
	}
	if b.LogJSON {
		result.LogJSON = true
	}
	if b.Timezone != "" {
		result.Timezone = b.Timezone
	}
	if b.HalfDayHours != 0 {
		result.HalfDayHours = b.HalfDayHours
	}
	if b.MinHorizon != 0 {
		result.MinHorizon = b.MinHorizon
	}
	if b.HorizonMargin != 0 {
		result.HorizonMargin = b.HorizonMargin
	}
	if b.ChainCap != 0 {
		result.ChainCap = b.ChainCap
	}
	if b.SweepCap != 0 {
		result.SweepCap = b.SweepCap
	}
	if b.Dev {
		result.Dev = true
	}
	result.Databases = append(result.Databases[:len(result.Databases):len(result.Databases)], b.Databases...)

	return &result
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.HalfDayHours <= 0 {
		return fmt.Errorf("half_day_hours must be positive, got %v", c.HalfDayHours)
	}
	if c.MinHorizon <= 0 {
		return fmt.Errorf("min_horizon must be positive, got %d", c.MinHorizon)
	}
	if c.HorizonMargin < 0 {
		return fmt.Errorf("horizon_margin must not be negative, got %d", c.HorizonMargin)
	}
	if c.ChainCap <= 0 || c.SweepCap <= 0 {
		return fmt.Errorf("chain_cap and sweep_cap must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	if !c.Dev && len(c.Databases) == 0 {
		return fmt.Errorf("at least one database block is required outside dev mode")
	}
	seen := make(map[string]bool)
	for _, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("database block is missing its name")
		}
		if db.DSN == "" {
			return fmt.Errorf("database %q is missing its dsn", db.Name)
		}
		if seen[db.Name] {
			return fmt.Errorf("duplicate database %q", db.Name)
		}
		seen[db.Name] = true
	}
	return nil
}

// HTTPAddr is the listen address for the HTTP server.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.BindAddr, strconv.Itoa(c.Port))
}

// SchedulerConfig projects the tunables onto the edit coordinator.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		ChainCap:      c.ChainCap,
		SweepCap:      c.SweepCap,
		MinHorizon:    c.MinHorizon,
		HorizonMargin: c.HorizonMargin,
	}
}
