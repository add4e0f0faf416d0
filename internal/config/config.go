// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Cutout  CutoutConfig  `mapstructure:"cutout"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Social  SocialConfig  `mapstructure:"social"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ScrapeConfig governs the resolver strategy chain.
type ScrapeConfig struct {
	UserAgent          string        `mapstructure:"user_agent"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	BrowserTimeout     time.Duration `mapstructure:"browser_timeout"`
	StealthTimeout     time.Duration `mapstructure:"stealth_timeout"`
	MobileTimeout      time.Duration `mapstructure:"mobile_timeout"`
	OverallBudget      time.Duration `mapstructure:"overall_budget"`
	BrowserMaxParallel int           `mapstructure:"browser_max_parallel"`
	WarmupURL          string        `mapstructure:"warmup_url"`
}

// CutoutConfig configures local and remote background removal.
type CutoutConfig struct {
	ModelDir       string `mapstructure:"model_dir"`
	Quality        string `mapstructure:"quality"`
	PostProcess    bool   `mapstructure:"post_process"`
	OnnxLibrary    string `mapstructure:"onnx_library"`
	RemoteEndpoint string `mapstructure:"remote_endpoint"`
}

// GeminiConfig names the generative models used by the synthesizer.
type GeminiConfig struct {
	AnalysisModel      string `mapstructure:"analysis_model"`
	ImageModel         string `mapstructure:"image_model"`
	ImageFallbackModel string `mapstructure:"image_fallback_model"`
}

// JobsConfig controls the job queue and worker pool.
type JobsConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
	Workers    int `mapstructure:"workers"`
	CPUWorkers int `mapstructure:"cpu_workers"`
}

// SocialConfig sets JSON-file persistence paths and OAuth app registrations
// for the SNS subsystem. App credentials are optional; platforms without
// them simply refuse to start their auth flow.
type SocialConfig struct {
	ConnectionsPath    string        `mapstructure:"connections_path"`
	SchedulePath       string        `mapstructure:"schedule_path"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	FacebookAppID      string        `mapstructure:"facebook_app_id"`
	FacebookAppSecret  string        `mapstructure:"facebook_app_secret"`
	ThreadsAppID       string        `mapstructure:"threads_app_id"`
	ThreadsAppSecret   string        `mapstructure:"threads_app_secret"`
	GoogleClientID     string        `mapstructure:"google_client_id"`
	GoogleClientSecret string        `mapstructure:"google_client_secret"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("THUMBFORGE")
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
	v.SetDefault("server.port", 8000)
	v.SetDefault("scrape.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("scrape.http_timeout", 8*time.Second)
	v.SetDefault("scrape.browser_timeout", 20*time.Second)
	v.SetDefault("scrape.stealth_timeout", 25*time.Second)
	v.SetDefault("scrape.mobile_timeout", 12*time.Second)
	v.SetDefault("scrape.overall_budget", 50*time.Second)
	v.SetDefault("scrape.browser_max_parallel", 2)
	v.SetDefault("scrape.warmup_url", "https://www.naver.com")
	v.SetDefault("cutout.model_dir", "models")
	v.SetDefault("cutout.quality", "high")
	v.SetDefault("cutout.post_process", false)
	v.SetDefault("cutout.remote_endpoint", "https://api.replicate.com/v1/predictions")
	v.SetDefault("gemini.analysis_model", "gemini-2.0-flash")
	v.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.image_fallback_model", "gemini-3-pro-image-preview")
	v.SetDefault("jobs.queue_depth", 64)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.cpu_workers", 2)
	v.SetDefault("social.connections_path", "data/sns_connections.json")
	v.SetDefault("social.schedule_path", "data/sns_schedule.json")
	v.SetDefault("social.poll_interval", time.Minute)
	v.SetDefault("social.facebook_app_id", "")
	v.SetDefault("social.facebook_app_secret", "")
	v.SetDefault("social.threads_app_id", "")
	v.SetDefault("social.threads_app_secret", "")
	v.SetDefault("social.google_client_id", "")
	v.SetDefault("social.google_client_secret", "")
	v.SetDefault("logging.development", false)
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Scrape.UserAgent == "" {
		return fmt.Errorf("scrape.user_agent must be set")
	}
	if c.Scrape.HTTPTimeout <= 0 {
		return fmt.Errorf("scrape.http_timeout must be > 0")
	}
	if c.Scrape.BrowserTimeout <= 0 {
		return fmt.Errorf("scrape.browser_timeout must be > 0")
	}
	if c.Scrape.OverallBudget <= 0 {
		return fmt.Errorf("scrape.overall_budget must be > 0")
	}
	switch c.Cutout.Quality {
	case "low", "balanced", "high", "ultra":
	default:
		return fmt.Errorf("cutout.quality must be one of low, balanced, high, ultra")
	}
	if c.Gemini.AnalysisModel == "" {
		return fmt.Errorf("gemini.analysis_model must be set")
	}
	if c.Gemini.ImageModel == "" {
		return fmt.Errorf("gemini.image_model must be set")
	}
	if c.Jobs.QueueDepth <= 0 {
		return fmt.Errorf("jobs.queue_depth must be > 0")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be > 0")
	}
	if c.Jobs.CPUWorkers <= 0 {
		return fmt.Errorf("jobs.cpu_workers must be > 0")
	}
	if c.Social.PollInterval <= 0 {
		return fmt.Errorf("social.poll_interval must be > 0")
	}
	return nil
}
