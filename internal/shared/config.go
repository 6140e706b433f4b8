package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix is the prefix for environment variables that override file configuration.
const EnvPrefix = "YTPLAY"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Cache       CacheConfig       `toml:"cache"`
	Search      SearchConfig      `toml:"search"`
	Imports     ImportsConfig     `toml:"imports"`
	Library     LibraryConfig     `toml:"library"`
	Tools       ToolsConfig       `toml:"tools"`
	Credentials CredentialsConfig `toml:"credentials"`
	Notify      NotifyConfig      `toml:"notify"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Log         LogConfig         `toml:"log"`
}

// CacheConfig controls the download cache and its fetch pool.
type CacheConfig struct {
	Dir                 string `toml:"dir"`
	Format              string `toml:"format"`
	Quality             string `toml:"quality"`
	Workers             int    `toml:"workers"`
	MinDelayMS          int    `toml:"min_delay_ms"`
	MaxSize             string `toml:"max_size"`
	TempMaxAgeMinutes   int    `toml:"temp_max_age_minutes"`
	FetchTimeoutSeconds int    `toml:"fetch_timeout_seconds"`
}

// SearchConfig controls the search provider and its result cache.
type SearchConfig struct {
	Provider        string `toml:"provider"`
	Limit           int    `toml:"limit"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	CacheCapacity   int    `toml:"cache_capacity"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

// ImportsConfig controls the background import task manager.
type ImportsConfig struct {
	Store                  string `toml:"store"`
	JSONPath               string `toml:"json_path"`
	TrackDelayMS           int    `toml:"track_delay_ms"`
	ResumeDelaySeconds     int    `toml:"resume_delay_seconds"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
	BatchToleranceMS       int64  `toml:"batch_tolerance_ms"`
	TaskToleranceMS        int64  `toml:"task_tolerance_ms"`
	DialogToleranceMS      int64  `toml:"dialog_tolerance_ms"`
}

// LibraryConfig locates the playlist store.
type LibraryConfig struct {
	Dir string `toml:"dir"`
}

// ToolsConfig names the external extraction and transcode binaries.
type ToolsConfig struct {
	YtDlp   string `toml:"ytdlp"`
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

// YouTubeConfig points at the YouTube Music search proxy.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// NotifyConfig configures completion notices.
type NotifyConfig struct {
	DiscordWebhookURL string `toml:"discord_webhook_url"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// envOverrides lists the settings that may be replaced from the environment.
type envOverrides struct {
	CacheDir       string `envconfig:"CACHE_DIR"`
	Quality        string `envconfig:"QUALITY"`
	Workers        int    `envconfig:"WORKERS"`
	LibraryDir     string `envconfig:"LIBRARY_DIR"`
	DBPath         string `envconfig:"DB_PATH"`
	ProxyURL       string `envconfig:"PROXY_URL"`
	SearchProvider string `envconfig:"SEARCH_PROVIDER"`
	DiscordWebhook string `envconfig:"DISCORD_WEBHOOK"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	ServerPort     int    `envconfig:"SERVER_PORT"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
// Fields missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes c to path as TOML. The file may hold credentials, so it is created owner-only.
func SaveConfig(path string, c *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Map returns the credentials in the form accepted by the Spotify service constructor.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
	}
}

// SetTokens stores a new token pair. An empty refresh token keeps the previous one.
func (s *SpotifyConfig) SetTokens(access, refresh string) {
	s.AccessToken = access
	if refresh != "" {
		s.RefreshToken = refresh
	}
}

// ApplyEnv overlays YTPLAY_* environment variables onto c.
func (c *Config) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	setString(&c.Cache.Dir, env.CacheDir)
	setString(&c.Cache.Quality, env.Quality)
	setString(&c.Library.Dir, env.LibraryDir)
	setString(&c.Database.Path, env.DBPath)
	setString(&c.Credentials.YouTube.ProxyURL, env.ProxyURL)
	setString(&c.Search.Provider, env.SearchProvider)
	setString(&c.Notify.DiscordWebhookURL, env.DiscordWebhook)
	setString(&c.Log.Level, env.LogLevel)
	if env.Workers > 0 {
		c.Cache.Workers = env.Workers
	}
	if env.ServerPort > 0 {
		c.Server.Port = env.ServerPort
	}
	return nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Cache.Dir == "" {
		return fmt.Errorf("%w: cache.dir is required", ErrInvalidConfig)
	}
	if c.Library.Dir == "" {
		return fmt.Errorf("%w: library.dir is required", ErrInvalidConfig)
	}
	if c.Cache.Workers < 1 {
		return fmt.Errorf("%w: cache.workers must be at least 1", ErrInvalidConfig)
	}
	if _, err := c.Cache.MaxBytes(); err != nil {
		return err
	}
	switch c.Search.Provider {
	case "proxy", "ytdlp":
	default:
		return fmt.Errorf("%w: unknown search provider %q", ErrInvalidConfig, c.Search.Provider)
	}
	switch c.Imports.Store {
	case "sqlite", "json":
	default:
		return fmt.Errorf("%w: unknown import store %q", ErrInvalidConfig, c.Imports.Store)
	}
	return nil
}

// MaxBytes parses the human readable cache ceiling. Empty means unbounded (0).
func (c CacheConfig) MaxBytes() (uint64, error) {
	if strings.TrimSpace(c.MaxSize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("%w: cache.max_size: %v", ErrInvalidConfig, err)
	}
	return n, nil
}

// MinDelay returns the spacing between fetch starts.
func (c CacheConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMS) * time.Millisecond
}

// TempMaxAge returns the age after which partial files are swept.
func (c CacheConfig) TempMaxAge() time.Duration {
	return time.Duration(c.TempMaxAgeMinutes) * time.Minute
}

// FetchTimeout bounds a single physical fetch.
func (c CacheConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Timeout bounds a single search call.
func (c SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheTTL is the lifetime of a memoized search.
func (c SearchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// TrackDelay is the pause between consecutive tracks of an import.
func (c ImportsConfig) TrackDelay() time.Duration {
	return time.Duration(c.TrackDelayMS) * time.Millisecond
}

// ResumeDelay is the wait before restarted tasks resume.
func (c ImportsConfig) ResumeDelay() time.Duration {
	return time.Duration(c.ResumeDelaySeconds) * time.Second
}

// DownloadTimeout bounds materializing one matched track.
func (c ImportsConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// Addr returns host:port for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
