package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config models batchline.yml. Only the planning policy lives here; all
// scheduling data (orders, reactors, holidays) is in the database.
type Config struct {
	Planning Planning `yaml:"planning"`
}

// Planning holds the scalar policy constants the scheduler consumes.
type Planning struct {
	// MinLeadDays is the earliest start offset relative to the order date.
	MinLeadDays int `yaml:"min_lead_days"`
	// BufferDays is the mandatory slack between the planned start and the
	// deadline.
	BufferDays int `yaml:"buffer_days"`
	// MaxWindowDays bounds how early the search window may open relative
	// to the deadline.
	MaxWindowDays int `yaml:"max_window_days"`
	// BatchSizeLimitKg is the maximum quantity a single slot may host;
	// larger orders are split.
	BatchSizeLimitKg float64 `yaml:"batch_size_limit_kg"`
	// Shifts are the working-day shifts in the order slot search tries
	// them.
	Shifts []string `yaml:"shifts"`
}

const (
	defaultMinLeadDays   = 2
	defaultBufferDays    = 15
	defaultMaxWindowDays = 35
)

const defaultBatchSizeLimitKg = 2000

var defaultShifts = []string{"morning", "afternoon"}

// Default returns the policy used when batchline.yml is absent.
func Default() *Config {
	return &Config{Planning: Planning{
		MinLeadDays:      defaultMinLeadDays,
		BufferDays:       defaultBufferDays,
		MaxWindowDays:    defaultMaxWindowDays,
		BatchSizeLimitKg: defaultBatchSizeLimitKg,
		Shifts:           append([]string(nil), defaultShifts...),
	}}
}

// BatchLimit returns the batch size limit as an exact decimal for the
// splitter.
func (p Planning) BatchLimit() decimal.Decimal {
	return decimal.NewFromFloat(p.BatchSizeLimitKg)
}

// Validate ensures the policy is internally consistent.
func (c *Config) Validate() error {
	p := c.Planning
	if p.MinLeadDays < 0 {
		return fmt.Errorf("planning.min_lead_days must be >= 0")
	}
	if p.BufferDays < 0 {
		return fmt.Errorf("planning.buffer_days must be >= 0")
	}
	if p.MaxWindowDays <= 0 {
		return fmt.Errorf("planning.max_window_days must be > 0")
	}
	if p.BatchSizeLimitKg <= 0 {
		return fmt.Errorf("planning.batch_size_limit_kg must be > 0")
	}
	if len(p.Shifts) == 0 {
		return fmt.Errorf("planning.shifts must not be empty")
	}
	seen := map[string]bool{}
	for _, s := range p.Shifts {
		if s == "" {
			return fmt.Errorf("planning.shifts contains an empty shift name")
		}
		if seen[s] {
			return fmt.Errorf("planning.shifts contains duplicate shift %q", s)
		}
		seen[s] = true
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "batchline.yml")
}

// Load reads config from the workspace, falling back to defaults for a
// missing file and for any absent value. Missing configuration is never
// fatal.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config from raw YAML bytes, filling unset values with
// defaults, then validates.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	p := &cfg.Planning
	if p.MinLeadDays == 0 {
		p.MinLeadDays = defaultMinLeadDays
	}
	if p.BufferDays == 0 {
		p.BufferDays = defaultBufferDays
	}
	if p.MaxWindowDays == 0 {
		p.MaxWindowDays = defaultMaxWindowDays
	}
	if p.BatchSizeLimitKg == 0 {
		p.BatchSizeLimitKg = defaultBatchSizeLimitKg
	}
	if len(p.Shifts) == 0 {
		p.Shifts = append([]string(nil), defaultShifts...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns default config YAML for `bl config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `planning:
  # Earliest start offset, in days, relative to the order date.
  min_lead_days: 2

  # Mandatory slack, in days, between planned start and deadline.
  buffer_days: 15

  # How early the search window may open relative to the deadline.
  max_window_days: 35

  # Maximum quantity one slot may host; larger orders are split.
  batch_size_limit_kg: 2000

  # Shifts per working day, in the order the planner tries them.
  shifts: [morning, afternoon]
`
