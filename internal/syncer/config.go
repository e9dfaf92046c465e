package syncer

import (
	"fmt"
	"time"
)

// Config holds the sync workflow configuration.
type Config struct {
	// BatchSize is the number of source records fetched per full-resync
	// page. Bounded to keep memory flat on large catalogs.
	BatchSize int `yaml:"batch_size"`

	// BatchDelay is the cooperative yield between pages so the host stays
	// responsive during a long scan.
	BatchDelay time.Duration `yaml:"batch_delay"`

	// RunTimeout bounds one full resync end to end.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Tolerance is the freshness window the drift check allows between
	// source and index timestamps. It absorbs index ingestion lag, not
	// network latency.
	Tolerance time.Duration `yaml:"tolerance"`

	// Interval is the recurring drift-check period.
	Interval time.Duration `yaml:"interval"`

	// WaitForDurability makes full resyncs block on the final index task
	// before reporting success, giving read-after-write consistency to the
	// caller that triggered them.
	WaitForDurability bool `yaml:"wait_for_durability"`

	// Filters maps an entity kind to a CEL eligibility expression over the
	// transformed document (variable "doc"). Records whose document does
	// not match are kept out of the index.
	Filters map[string]string `yaml:"filters"`
}

// DefaultConfig returns the default sync configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         1000,
		BatchDelay:        10 * time.Millisecond,
		RunTimeout:        10 * time.Minute,
		Tolerance:         5 * time.Second,
		Interval:          5 * time.Minute,
		WaitForDurability: true,
	}
}

// Validate checks the configuration for values the workflows cannot run with.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("tolerance must not be negative, got %s", c.Tolerance)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	return nil
}
