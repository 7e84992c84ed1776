// Package config loads and validates scan configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported device engines.
const (
	EngineChromium = "chromium"
	EngineRemote   = "remote"
)

// Config captures all scan configuration knobs loaded via Viper.
type Config struct {
	Scan     ScanConfig     `mapstructure:"scan" json:"scan"`
	HTTP     HTTPConfig     `mapstructure:"http" json:"http"`
	Devices  []DeviceConfig `mapstructure:"devices" json:"devices"`
	Logging  LoggingConfig  `mapstructure:"logging" json:"logging"`
	Progress ProgressConfig `mapstructure:"progress" json:"progress"`
	Report   ReportConfig   `mapstructure:"report" json:"report"`
	DB       DBConfig       `mapstructure:"db" json:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub" json:"pubsub"`
}

// ScanConfig controls where scan artifacts land.
type ScanConfig struct {
	ReportPath string `mapstructure:"report_path" json:"report_path"`
}

// HTTPConfig configures the metadata fetcher used for assets and externals.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent" json:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes" json:"max_body_bytes"`
}

// DeviceConfig is one rendering profile. Every navigable page is rendered once
// per device.
type DeviceConfig struct {
	ID                string         `mapstructure:"id" json:"id"`
	Name              string         `mapstructure:"name" json:"name"`
	Engine            string         `mapstructure:"engine" json:"engine"`
	RemoteURL         string         `mapstructure:"remote_url" json:"remote_url,omitempty"`
	ExecPath          string         `mapstructure:"exec_path" json:"exec_path,omitempty"`
	Headless          *bool          `mapstructure:"headless" json:"headless,omitempty"`
	UserAgent         string         `mapstructure:"user_agent" json:"user_agent,omitempty"`
	NavTimeoutSeconds int            `mapstructure:"nav_timeout_seconds" json:"nav_timeout_seconds"`
	WriteBodyToDisk   bool           `mapstructure:"write_body_to_disk" json:"write_body_to_disk"`
	Viewport          ViewportConfig `mapstructure:"viewport" json:"viewport"`
}

// ViewportConfig is the emulated screen of a device.
type ViewportConfig struct {
	Width             int     `mapstructure:"width" json:"width"`
	Height            int     `mapstructure:"height" json:"height"`
	DeviceScaleFactor float64 `mapstructure:"device_scale_factor" json:"device_scale_factor"`
	Mobile            bool    `mapstructure:"mobile" json:"mobile"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development" json:"development"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size" json:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events" json:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms" json:"max_batch_wait_ms"`
}

// ReportConfig controls optional report artifacts.
type ReportConfig struct {
	MetricsFile bool   `mapstructure:"metrics_file" json:"metrics_file"`
	GCSBucket   string `mapstructure:"gcs_bucket" json:"gcs_bucket,omitempty"`
	GCSPrefix   string `mapstructure:"gcs_prefix" json:"gcs_prefix,omitempty"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn" json:"-"`
	ScansTable   string `mapstructure:"scans_table" json:"scans_table,omitempty"`
	RecordsTable string `mapstructure:"records_table" json:"records_table,omitempty"`
	MaxConns     int    `mapstructure:"max_conns" json:"max_conns,omitempty"`
}

// PubSubConfig holds metadata for scan-completed notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" json:"project_id,omitempty"`
	TopicName string `mapstructure:"topic_name" json:"topic_name,omitempty"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEPOKE")
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
	cfg.applyDeviceDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scan.report_path", ".")
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("logging.development", true)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 1)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("report.metrics_file", true)
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("report.gcs_prefix", "sitepoke")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.scans_table", "scans")
	v.SetDefault("db.records_table", "scan_records")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// applyDeviceDefaults fills per-device fields viper cannot default inside a
// list.
func (c *Config) applyDeviceDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Engine == "" {
			d.Engine = EngineChromium
		}
		if d.NavTimeoutSeconds == 0 {
			d.NavTimeoutSeconds = 30
		}
		if d.Name == "" {
			d.Name = fmt.Sprintf("device-%d", i+1)
		}
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateReportPath(c.Scan.ReportPath); err != nil {
		return err
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	if c.Progress.MaxBatchEvents <= 0 {
		return fmt.Errorf("progress.max_batch_events must be > 0")
	}
	if c.Progress.MaxBatchWaitMs < 0 {
		return fmt.Errorf("progress.max_batch_wait_ms must be >= 0")
	}
	if c.DB.DSN != "" && (c.DB.ScansTable == "" || c.DB.RecordsTable == "") {
		return fmt.Errorf("db.scans_table and db.records_table must be set when db.dsn is set")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	names := make(map[string]struct{}, len(c.Devices))
	for i, d := range c.Devices {
		if err := d.validate(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name)
		}
		names[d.Name] = struct{}{}
	}
	return nil
}

func (d DeviceConfig) validate() error {
	switch d.Engine {
	case EngineChromium:
	case EngineRemote:
		if strings.TrimSpace(d.RemoteURL) == "" {
			return errors.New("remote_url must be set for the remote engine")
		}
	default:
		return fmt.Errorf("unsupported engine %q", d.Engine)
	}
	if d.NavTimeoutSeconds <= 0 {
		return errors.New("nav_timeout_seconds must be > 0")
	}
	if d.Viewport.Width < 0 || d.Viewport.Height < 0 || d.Viewport.DeviceScaleFactor < 0 {
		return errors.New("viewport values must be >= 0")
	}
	return nil
}

func validateReportPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("scan.report_path must be set")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("scan.report_path %q is invalid: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan.report_path %q is not a directory", path)
	}
	scratch, err := os.CreateTemp(path, ".sitepoke-*")
	if err != nil {
		return fmt.Errorf("scan.report_path %q is not writable: %w", path, err)
	}
	name := scratch.Name()
	_ = scratch.Close()
	_ = os.Remove(name)
	return nil
}

// HTTPTimeout converts the metadata fetch timeout into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// IsHeadless reports whether the browser runs without a window. Unset means
// headless.
func (d DeviceConfig) IsHeadless() bool {
	return d.Headless == nil || *d.Headless
}

// NavTimeout converts the device navigation timeout into a duration.
func (d DeviceConfig) NavTimeout() time.Duration {
	return time.Duration(d.NavTimeoutSeconds) * time.Second
}

// BatchWait converts the progress batch window into a duration.
func (c Config) BatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
