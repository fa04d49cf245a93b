// Package config loads and validates imagesync configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configuration knob, resolved once at startup.
// Values come from an optional config file with IMAGESYNC_* environment
// variable overrides; nothing mutates it afterwards.
type Config struct {
	Vendor   VendorConfig   `mapstructure:"vendor"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Report   ReportConfig   `mapstructure:"report"`
	DB       DBConfig       `mapstructure:"db"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// VendorConfig describes the catalog API endpoint and credentials.
type VendorConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	DomainKey         string `mapstructure:"domain_key"`
	AuthToken         string `mapstructure:"auth_token"`
	StartDate         string `mapstructure:"start_date"`
	EndDate           string `mapstructure:"end_date"`
	RequestsPerSecond int    `mapstructure:"requests_per_second"`
	FetchWorkers      int    `mapstructure:"fetch_workers"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// PipelineConfig governs the two resolution stages.
type PipelineConfig struct {
	FastWorkers            int `mapstructure:"fast_workers"`
	BrowserWorkers         int `mapstructure:"browser_workers"`
	PageTimeoutSeconds     int `mapstructure:"page_timeout_seconds"`
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds"`
	RenderTimeoutSeconds   int `mapstructure:"render_timeout_seconds"`
	CookieTimeoutSeconds   int `mapstructure:"cookie_timeout_seconds"`
}

// BrowserConfig configures the headless Chrome workers.
type BrowserConfig struct {
	ExecPath   string `mapstructure:"exec_path"`
	Visible    bool   `mapstructure:"visible"`
	LoadImages bool   `mapstructure:"load_images"`
}

// PathsConfig sets local filesystem locations.
type PathsConfig struct {
	ImagesDir string `mapstructure:"images_dir"`
	TasksFile string `mapstructure:"tasks_file"`
}

// StorageConfig sets the GCS upload destination.
type StorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Overwrite bool   `mapstructure:"overwrite"`
}

// ReportConfig holds the optional Pub/Sub destination for run reports.
type ReportConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// DBConfig holds the optional run-history database.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// OpsConfig controls the health/metrics listener.
type OpsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IMAGESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vendor.requests_per_second", 5)
	v.SetDefault("vendor.fetch_workers", runtime.NumCPU())
	v.SetDefault("vendor.timeout_seconds", 30)
	v.SetDefault("pipeline.fast_workers", 0) // 0 = scale with CPU, capped at 32
	v.SetDefault("pipeline.browser_workers", runtime.NumCPU())
	v.SetDefault("pipeline.page_timeout_seconds", 8)
	v.SetDefault("pipeline.download_timeout_seconds", 20)
	v.SetDefault("pipeline.render_timeout_seconds", 15)
	v.SetDefault("pipeline.cookie_timeout_seconds", 3)
	v.SetDefault("browser.visible", false)
	v.SetDefault("browser.load_images", false)
	v.SetDefault("paths.images_dir", "data/raw_images")
	v.SetDefault("paths.tasks_file", "data/product_map.json")
	v.SetDefault("storage.prefix", "product_images")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits. A missing vendor
// base URL is fatal before any stage starts.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Vendor.BaseURL) == "" {
		return fmt.Errorf("vendor.base_url must be set")
	}
	if c.Vendor.RequestsPerSecond <= 0 {
		return fmt.Errorf("vendor.requests_per_second must be > 0")
	}
	if c.Vendor.FetchWorkers <= 0 {
		return fmt.Errorf("vendor.fetch_workers must be > 0")
	}
	if c.Pipeline.FastWorkers < 0 {
		return fmt.Errorf("pipeline.fast_workers must be >= 0")
	}
	if c.Pipeline.BrowserWorkers <= 0 {
		return fmt.Errorf("pipeline.browser_workers must be > 0")
	}
	if c.Pipeline.PageTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.page_timeout_seconds must be > 0")
	}
	if c.Pipeline.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.download_timeout_seconds must be > 0")
	}
	if c.Pipeline.RenderTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.render_timeout_seconds must be > 0")
	}
	if c.Pipeline.CookieTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.cookie_timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Paths.ImagesDir) == "" {
		return fmt.Errorf("paths.images_dir must be set")
	}
	if strings.TrimSpace(c.Paths.TasksFile) == "" {
		return fmt.Errorf("paths.tasks_file must be set")
	}
	if (c.Report.ProjectID == "") != (c.Report.TopicID == "") {
		return fmt.Errorf("report.project_id and report.topic_id must be set together")
	}
	return nil
}

// PageTimeout returns the fast-path per-candidate fetch budget.
func (c Config) PageTimeout() time.Duration {
	return time.Duration(c.Pipeline.PageTimeoutSeconds) * time.Second
}

// DownloadTimeout returns the image byte download budget.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Pipeline.DownloadTimeoutSeconds) * time.Second
}

// RenderTimeout returns the browser-stage per-candidate render budget.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Pipeline.RenderTimeoutSeconds) * time.Second
}

// CookieTimeout returns the window for dismissing the consent overlay.
func (c Config) CookieTimeout() time.Duration {
	return time.Duration(c.Pipeline.CookieTimeoutSeconds) * time.Second
}

// VendorTimeout returns the catalog API request budget.
func (c Config) VendorTimeout() time.Duration {
	return time.Duration(c.Vendor.TimeoutSeconds) * time.Second
}
