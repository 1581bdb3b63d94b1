package properties

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func RootPath() string {
	return os.Getenv("ROOT_PATH")
}

// Fixed 1-based band layout of the multispectral products we consume.
const (
	GreenBand = 3
	NIRBand   = 8
	RedBand   = 4
	BlueBand  = 2
)

const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"

	SummaryText = "text"
	SummaryCSV  = "csv"
)

type Config struct {
	InputDir     string `env:"POSEIDON_INPUT_DIR" envDefault:"zips"`
	WorkspaceDir string `env:"POSEIDON_WORKSPACE_DIR" envDefault:"temp_unzip"`
	OutputDir    string `env:"POSEIDON_OUTPUT_DIR" envDefault:"water_patches"`

	PatchSize         int     `env:"POSEIDON_PATCH_SIZE" envDefault:"128"`
	NDWIThreshold     float64 `env:"POSEIDON_NDWI_THRESHOLD" envDefault:"0.2"`
	BatchSize         int     `env:"POSEIDON_BATCH_SIZE" envDefault:"3"`
	CoverageThreshold float64 `env:"POSEIDON_COVERAGE_THRESHOLD" envDefault:"0.5"`
	Epsilon           float64 `env:"POSEIDON_EPSILON" envDefault:"1e-5"`
	MinBands          int     `env:"POSEIDON_MIN_BANDS" envDefault:"8"`

	ArchiveSuffix  string   `env:"POSEIDON_ARCHIVE_SUFFIX" envDefault:".zip"`
	RasterSuffixes []string `env:"POSEIDON_RASTER_SUFFIXES" envDefault:".tif" envSeparator:","`
	PatchFormat    string   `env:"POSEIDON_PATCH_FORMAT" envDefault:"jpg"`

	LogLevel      logrus.Level `env:"POSEIDON_LOG_LEVEL" envDefault:"info"`
	SummaryFormat string       `env:"POSEIDON_SUMMARY_FORMAT" envDefault:"text"`
}

// DefaultConfig returns the tag defaults without looking at the process
// environment.
func DefaultConfig() Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("invalid config defaults: %v", err))
	}
	cfg.normalize()
	return cfg
}

// LoadEnvFile looks for a .env file the same way the CLI always has: two
// levels up first, then one, then the working directory.
func LoadEnvFile() string {
	for _, path := range []string{"../../.env", "../.env", ".env"} {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load builds a Config from the process environment, falling back to the
// tag defaults for unset variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	cfg.normalize()
	cfg.InputDir = resolve(cfg.InputDir)
	cfg.WorkspaceDir = resolve(cfg.WorkspaceDir)
	cfg.OutputDir = resolve(cfg.OutputDir)
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	c.ArchiveSuffix = strings.ToLower(strings.TrimSpace(c.ArchiveSuffix))
	c.RasterSuffixes = normalizeSuffixes(c.RasterSuffixes)
	c.PatchFormat = strings.ToLower(strings.TrimSpace(c.PatchFormat))
	if c.PatchFormat == "jpeg" {
		c.PatchFormat = FormatJPEG
	}
	c.SummaryFormat = strings.ToLower(strings.TrimSpace(c.SummaryFormat))
}

func (c Config) Validate() error {
	switch {
	case c.InputDir == "" || c.WorkspaceDir == "" || c.OutputDir == "":
		return fmt.Errorf("input, workspace and output directories must be set")
	case c.PatchSize <= 0:
		return fmt.Errorf("patch size must be positive, got %d", c.PatchSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	case c.MinBands < NIRBand:
		return fmt.Errorf("minimum band count must be at least %d, got %d", NIRBand, c.MinBands)
	case c.CoverageThreshold < 0 || c.CoverageThreshold > 1:
		return fmt.Errorf("coverage threshold must be within [0, 1], got %v", c.CoverageThreshold)
	case c.Epsilon <= 0:
		return fmt.Errorf("epsilon must be positive, got %v", c.Epsilon)
	case c.ArchiveSuffix == "":
		return fmt.Errorf("archive suffix must be set")
	case len(c.RasterSuffixes) == 0:
		return fmt.Errorf("at least one raster suffix is required")
	}
	if c.PatchFormat != FormatJPEG && c.PatchFormat != FormatPNG {
		return fmt.Errorf("unsupported patch format %q", c.PatchFormat)
	}
	if c.SummaryFormat != SummaryText && c.SummaryFormat != SummaryCSV {
		return fmt.Errorf("unsupported summary format %q", c.SummaryFormat)
	}
	if filepath.Clean(c.WorkspaceDir) == filepath.Clean(c.OutputDir) || filepath.Clean(c.WorkspaceDir) == filepath.Clean(c.InputDir) {
		return fmt.Errorf("workspace %s must not be the input or output directory", c.WorkspaceDir)
	}
	return nil
}

func resolve(path string) string {
	if root := RootPath(); root != "" && !filepath.IsAbs(path) {
		return filepath.Join(root, path)
	}
	return path
}

func normalizeSuffixes(raw []string) []string {
	var suffixes []string
	for _, s := range raw {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		suffixes = append(suffixes, s)
	}
	return suffixes
}
