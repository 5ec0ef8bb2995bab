package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrConfiguration marks settings the run cannot start with
	ErrConfiguration = errors.New("invalid configuration")
	// ErrDriverNotFound is returned when the resolved browser executable does not exist
	ErrDriverNotFound = errors.New("browser driver not found")
)

// Defaults for the B3 listed companies site
const (
	DefaultIndexURL       = "http://bvmf.bmfbovespa.com.br/cias-listadas/empresas-listadas/BuscaEmpresaListada.aspx?idioma=pt-br"
	DefaultIndexFrameID   = "bvmf_iframe"
	DefaultLetterClass    = "letra"
	DefaultBulletClass    = "itemBullet"
	DefaultProfileFrameID = "ctl00_contentPlaceHolderConteudo_iframeCarregadorPaginaExterna"
	DefaultCodeClass      = "LinkCodNeg"
)

// driverNames maps a browser to the executable expected inside a driver directory
var driverNames = map[string]string{
	"chrome":  "google-chrome",
	"firefox": "firefox",
}

// Configuration holds all the settings for a crawl
type Configuration struct {
	Browser    string `yaml:"browser"`
	DriverPath string `yaml:"driver_path"`
	Headless   bool   `yaml:"headless"`
	UserAgent  string `yaml:"user_agent"`

	OutputDir string `yaml:"output_dir"`
	Format    string `yaml:"format"`
	Input     string `yaml:"input"`

	IndexURL       string `yaml:"index_url"`
	IndexFrameID   string `yaml:"index_frame_id"`
	LetterClass    string `yaml:"letter_class"`
	BulletClass    string `yaml:"bullet_class"`
	ProfileFrameID string `yaml:"profile_frame_id"`
	CodeClass      string `yaml:"code_class"`

	IndexTimeout     time.Duration `yaml:"index_timeout"`
	ProfileTimeout   time.Duration `yaml:"profile_timeout"`
	SettleTimeout    time.Duration `yaml:"settle_timeout"`
	SettlePoll       time.Duration `yaml:"settle_poll"`
	MaxIndexAttempts int           `yaml:"max_index_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`

	Letters   []string `yaml:"letters"`
	SkipCodes bool     `yaml:"skip_codes"`

	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	Debug bool `yaml:"debug"`
}

// Default returns the settings used when neither file nor flags say otherwise
func Default() Configuration {
	return Configuration{
		Browser:          "chrome",
		Headless:         true,
		Format:           "csv",
		IndexURL:         DefaultIndexURL,
		IndexFrameID:     DefaultIndexFrameID,
		LetterClass:      DefaultLetterClass,
		BulletClass:      DefaultBulletClass,
		ProfileFrameID:   DefaultProfileFrameID,
		CodeClass:        DefaultCodeClass,
		IndexTimeout:     10 * time.Second,
		ProfileTimeout:   30 * time.Second,
		SettleTimeout:    15 * time.Second,
		SettlePoll:       500 * time.Millisecond,
		MaxIndexAttempts: 5,
		BackoffBase:      time.Second,
		BackoffMax:       30 * time.Second,
		CacheTTL:         24 * time.Hour,
	}
}

// Load reads a YAML file over the defaults. A missing file yields the defaults.
func Load(path string) (Configuration, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}
	return cfg, nil
}

// Validate checks the settings and resolves the driver path in place
func (c *Configuration) Validate() error {
	c.Browser = strings.ToLower(c.Browser)
	switch c.Browser {
	case "chrome", "firefox", "http":
	default:
		return fmt.Errorf("%w: browser %q not supported, use chrome, firefox or http", ErrConfiguration, c.Browser)
	}

	c.Format = strings.ToLower(c.Format)
	if c.Format != "csv" && c.Format != "xlsx" {
		return fmt.Errorf("%w: output format %q not supported", ErrConfiguration, c.Format)
	}

	if c.IndexTimeout <= 0 || c.ProfileTimeout <= 0 || c.SettleTimeout <= 0 || c.SettlePoll <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrConfiguration)
	}
	if c.MaxIndexAttempts < 1 {
		return fmt.Errorf("%w: max index attempts must be at least 1", ErrConfiguration)
	}
	if c.IndexURL == "" {
		return fmt.Errorf("%w: index url is required", ErrConfiguration)
	}

	if c.DriverPath != "" && c.Browser != "http" {
		path, err := ResolveDriverPath(c.Browser, c.DriverPath)
		if err != nil {
			return err
		}
		c.DriverPath = path
	}
	return nil
}

// DriverName returns the executable name expected for browser
func DriverName(browser string) (string, bool) {
	name, ok := driverNames[strings.ToLower(browser)]
	return name, ok
}

// ResolveDriverPath accepts either the directory holding the driver or a file
// path that mentions the driver name anywhere, such as an install directory.
func ResolveDriverPath(browser, path string) (string, error) {
	name, ok := DriverName(browser)
	if !ok {
		return "", fmt.Errorf("%w: browser %q has no driver", ErrConfiguration, browser)
	}

	info, err := os.Stat(path)
	isDir := err == nil && info.IsDir()

	if !isDir && !strings.Contains(path, name) {
		return "", fmt.Errorf("%w: %s not found in %s", ErrConfiguration, name, path)
	}
	if isDir {
		path = filepath.Join(path, name)
	}

	info, err = os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrDriverNotFound, path)
	}
	return path, nil
}
