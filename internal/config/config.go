package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"calbrowse/internal/model"
)

// CategoryConfig describes a single category data source.
type CategoryConfig struct {
	// Tag is the stable identifier used by clients ("conferences", "jobs", ...).
	Tag string `yaml:"tag" json:"tag"`
	// Label is the human-friendly name.
	Label string `yaml:"label" json:"label"`
	// File is the data file locator, resolved against DataBase.
	File string `yaml:"file" json:"file"`
}

// PopularConfig is one curated popular-conference entry. At least one of ID
// and Title must be set. Title is a regular expression matched case-insensitively.
type PopularConfig struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	ID    string `yaml:"id,omitempty" json:"id,omitempty"`
	Title string `yaml:"title,omitempty" json:"title,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// DataBase is where category files live: an http(s) base URL or a local
	// directory.
	DataBase string `yaml:"data_base" json:"data_base"`

	// FetchTimeoutSeconds bounds a single data file request.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	// SessionIdleMinutes is how long a browse session survives without requests.
	SessionIdleMinutes int `yaml:"session_idle_minutes" json:"session_idle_minutes"`

	// SessionSweep is a cron-style schedule for dropping idle sessions.
	SessionSweep string `yaml:"session_sweep" json:"session_sweep"`

	Categories []CategoryConfig `yaml:"categories" json:"categories"`

	// Popular is the curated popular-conference table. It needs manual
	// updates as new conference ids are assigned.
	Popular []PopularConfig `yaml:"popular" json:"popular"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

var (
	ErrEmptyPath      = errors.New("config path is empty")
	ErrNilConfig      = errors.New("config is nil")
	ErrNoCategories   = errors.New("no categories configured")
	ErrPopularNoMatch = errors.New("popular entry has neither id nor title pattern")
)

// DefaultCategories is the stock category set.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Tag: model.ConferencesTag, Label: "Conferences", File: "conferences.json"},
		{Tag: "online", Label: "Online Seminars/Clubs", File: "online_seminars_clubs.json"},
		{Tag: "special-issue", Label: "Special Features/Issues", File: "special_features_issues.json"},
		{Tag: "education", Label: "Education", File: "education.json"},
		{Tag: "grad-program", Label: "Grad Programs", File: "grad_programs.json"},
		{Tag: "jobs", Label: "Jobs", File: "jobs.json"},
		{Tag: "funding", Label: "Funding", File: "funding.json"},
		{Tag: "competitions", Label: "Competitions", File: "competitions.json"},
	}
}

// DefaultPopular is the curated popular-conference table.
func DefaultPopular() []PopularConfig {
	return []PopularConfig{
		{Key: "apa", Label: "APA", ID: "american-psychological-association-apa-2026", Title: `\bamerican psychological association\b|\bapa\b`},
		{Key: "apcv", Label: "APCV", ID: "epc-apcv-2026", Title: `\bapcv\b|\bepc\b`},
		{Key: "aps", Label: "APS", Title: `\bassociation for psychological science\b|\baps\b`},
		{Key: "arvo", Label: "ARVO", Title: `\bassociation for research in vision and ophthalmology\b|\barvo\b`},
		{Key: "ava", Label: "AVA", ID: "applied-vision-association-ava-2026", Title: `\bapplied vision association\b|\bava\b`},
		{Key: "bavrd", Label: "BAVRD", Title: `\bbay area vision research day\b|\bbavrd\b`},
		{Key: "ecvp", Label: "ECVP", ID: "european-conference-on-visual-perception-ecvp-2026", Title: `\beuropean conference on visual perception\b|\becvp\b`},
		{Key: "gruppo-del-colore", Label: "Gruppo del Colore", ID: "gruppo-del-colore-annual-meeting-2026", Title: `\bgruppo del colore\b`},
		{Key: "hvei", Label: "HVEI", ID: "human-vision-and-electronic-imaging-hvei-2026", Title: `\bhuman vision and electronic imaging\b|\bhvei\b`},
		{Key: "icvs", Label: "ICVS", ID: "international-colour-vision-society-icvs-2026", Title: `\binternational (colour|color) vision society\b|\bicvs\b`},
		{Key: "modvis", Label: "MODVIS", Title: `\bmodvis\b|\bmodels in vision science\b`},
		{Key: "optica-fall-vision", Label: "Optica Fall Vision", ID: "optica-fall-vision-meeting-2026", Title: `\boptica\b.*\bfall\b.*\bvision\b`},
		{Key: "psychonomics", Label: "Psychonomics", ID: "psychonomic-society-annual-meeting-2026", Title: `\bpsychonomic\b|\bpsychonomics\b`},
		{Key: "sfn", Label: "SfN", ID: "society-for-neuroscience-sfn-2026", Title: `\bsociety for neuroscience\b|\bsfn\b`},
		{Key: "vsac", Label: "VSAC", ID: "visual-science-art-conference-vsac-2026", Title: `\bvisual science art conference\b|\bvsac\b`},
		{Key: "vss", Label: "VSS", ID: "vision-sciences-society-vss-2026", Title: `\bvision sciences society\b|\bvss\b`},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              "127.0.0.1:8080",
		LogLevel:            "info",
		DataBase:            "./data",
		FetchTimeoutSeconds: 15,
		SessionIdleMinutes:  60,
		SessionSweep:        "*/5 * * * *",
		Categories:          DefaultCategories(),
		Popular:             DefaultPopular(),
		BasicAuth:           nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataBase == "" {
		c.DataBase = "./data"
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = 15
	}
	if c.SessionIdleMinutes <= 0 {
		c.SessionIdleMinutes = 60
	}
	if c.SessionSweep == "" {
		c.SessionSweep = "*/5 * * * *"
	}
	if c.Categories == nil {
		c.Categories = DefaultCategories()
	}
	// An explicit empty list disables the popular sub-view; only nil gets defaults.
	if c.Popular == nil {
		c.Popular = DefaultPopular()
	}
	for i := range c.Categories {
		cat := &c.Categories[i]
		cat.Tag = strings.TrimSpace(cat.Tag)
		if cat.Label == "" {
			cat.Label = cat.Tag
		}
	}
}

// Validate reports configuration problems that Normalize cannot repair.
func (c *Config) Validate() error {
	if len(c.Categories) == 0 {
		return ErrNoCategories
	}
	for i, cat := range c.Categories {
		if cat.Tag == "" {
			return fmt.Errorf("categories[%d]: empty tag", i)
		}
		if cat.File == "" {
			return fmt.Errorf("categories[%d] (%s): empty file", i, cat.Tag)
		}
	}
	for i, p := range c.Popular {
		if p.ID == "" && p.Title == "" {
			return fmt.Errorf("popular[%d] (%s): %w", i, p.Label, ErrPopularNoMatch)
		}
	}
	return nil
}

// CategoryModels converts the configured categories to model.Category values.
func (c *Config) CategoryModels() []model.Category {
	out := make([]model.Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, model.Category{Tag: cat.Tag, Label: cat.Label, Locator: cat.File})
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calbrowse-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
