package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/fusionn-srt/pkg/logger"
)

const envPrefix = "FUSIONN_SRT"

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Subtitle   SubtitleConfig   `mapstructure:"subtitle"`
	Transcribe TranscribeConfig `mapstructure:"transcribe"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Apprise    AppriseConfig    `mapstructure:"apprise"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	UploadRPM   int      `mapstructure:"upload_rpm"` // Upload requests per minute (0 = no limit)
}

type UploadConfig struct {
	MaxSizeMB   int64    `mapstructure:"max_size_mb"`
	AllowedExts []string `mapstructure:"allowed_exts"` // e.g. [".m4a"]
	DataDir     string   `mapstructure:"data_dir"`     // Per-job working directories live here
}

// MaxBytes returns the upload ceiling in bytes.
func (u UploadConfig) MaxBytes() int64 {
	return u.MaxSizeMB * 1024 * 1024
}

type SubtitleConfig struct {
	DefaultMaxWords int  `mapstructure:"default_max_words"`
	MaxWordsLimit   int  `mapstructure:"max_words_limit"`
	SplitOnSegments bool `mapstructure:"split_on_segments"` // Force a cue break at every segment boundary
}

type TranscribeConfig struct {
	// Chain: adapters tried in order, e.g. ["local", "openai"]
	Chain      []string      `mapstructure:"chain"`
	Language   string        `mapstructure:"language"` // "auto" for auto-detect
	FFmpegPath string        `mapstructure:"ffmpeg_path"`
	FFprobe    string        `mapstructure:"ffprobe_path"`
	Local      LocalConfig   `mapstructure:"local"`
	OpenAI     OpenAIConfig  `mapstructure:"openai"`
	Timeout    time.Duration `mapstructure:"timeout"` // Per adapter call (0 = job watchdog only)
}

type LocalConfig struct {
	Binary string `mapstructure:"binary"` // whisper CLI
	Model  string `mapstructure:"model"`  // "tiny", "base", "small", ...
}

type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Model        string `mapstructure:"model"`
	RateLimitRPM int    `mapstructure:"rate_limit_rpm"`
}

type JobsConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`        // Watchdog ceiling per job
	Retention     time.Duration `mapstructure:"retention"`      // Terminal jobs older than this are swept
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // How often the sweeper runs
	MaxConcurrent int           `mapstructure:"max_concurrent"` // Jobs transcribing at once
}

type AppriseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"` // Apprise API URL
	Key     string `mapstructure:"key"`      // Apprise config key
	Tag     string `mapstructure:"tag"`      // Tag to filter services
}

// setDefaults registers a default for every key so the service runs without a
// config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.upload_rpm", 0)

	v.SetDefault("upload.max_size_mb", 50)
	v.SetDefault("upload.allowed_exts", []string{".m4a"})
	v.SetDefault("upload.data_dir", filepath.Join(os.TempDir(), "fusionn-srt"))

	v.SetDefault("subtitle.default_max_words", 8)
	v.SetDefault("subtitle.max_words_limit", 20)
	v.SetDefault("subtitle.split_on_segments", false)

	v.SetDefault("transcribe.chain", []string{"local", "openai"})
	v.SetDefault("transcribe.language", "auto")
	v.SetDefault("transcribe.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcribe.ffprobe_path", "ffprobe")
	v.SetDefault("transcribe.timeout", 0)
	v.SetDefault("transcribe.local.binary", "whisper")
	v.SetDefault("transcribe.local.model", "base")
	v.SetDefault("transcribe.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("transcribe.openai.model", "whisper-1")
	v.SetDefault("transcribe.openai.rate_limit_rpm", 0)

	v.SetDefault("jobs.timeout", 30*time.Minute)
	v.SetDefault("jobs.retention", time.Hour)
	v.SetDefault("jobs.sweep_interval", 30*time.Minute)
	v.SetDefault("jobs.max_concurrent", 2)

	v.SetDefault("apprise.enabled", false)
	v.SetDefault("apprise.tag", "all")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// read loads the file if it exists. A missing file leaves defaults and env in
// effect.
func read(v *viper.Viper, path string) error {
	if path != "" && !fileExists(path) {
		logger.Warnf("⚠️ Config file %s not found, using defaults", path)
		return nil
	}
	return v.ReadInConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("upload.max_size_mb must be positive")
	}
	if len(c.Upload.AllowedExts) == 0 {
		return fmt.Errorf("upload.allowed_exts must not be empty")
	}
	if c.Upload.DataDir == "" {
		return fmt.Errorf("upload.data_dir must be set")
	}
	if c.Subtitle.MaxWordsLimit < 1 {
		return fmt.Errorf("subtitle.max_words_limit must be positive")
	}
	if c.Subtitle.DefaultMaxWords < 1 || c.Subtitle.DefaultMaxWords > c.Subtitle.MaxWordsLimit {
		return fmt.Errorf("subtitle.default_max_words must be between 1 and %d", c.Subtitle.MaxWordsLimit)
	}
	if len(c.Transcribe.Chain) == 0 {
		return fmt.Errorf("transcribe.chain must name at least one adapter")
	}
	if c.Jobs.Timeout <= 0 {
		return fmt.Errorf("jobs.timeout must be positive")
	}
	if c.Jobs.Retention <= 0 || c.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("jobs.retention and jobs.sweep_interval must be positive")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1")
	}
	return nil
}

// ChangeCallback is called when config changes.
type ChangeCallback func(old, new *Config)

// Manager handles config loading and hot-reload.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	cfg       *Config
	callbacks []ChangeCallback
	stop      chan struct{}
	stopOnce  sync.Once

	path        string
	lastModTime time.Time
}

// NewManager creates a config manager with hot-reload support via polling.
func NewManager(path string) (*Manager, error) {
	return newManager(path, 10*time.Second)
}

func newManager(path string, interval time.Duration) (*Manager, error) {
	v := newViper(path)
	if err := read(v, path); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	var lastMod time.Time
	if stat, err := os.Stat(path); err == nil {
		lastMod = stat.ModTime()
	}

	m := &Manager{
		v:           v,
		cfg:         cfg,
		stop:        make(chan struct{}),
		path:        path,
		lastModTime: lastMod,
	}

	go m.pollForChanges(interval)

	logger.Infof("📋 Config loaded (polling every %v for changes)", interval)

	return m, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) OnChange(cb ChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) pollForChanges(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			stat, err := os.Stat(m.path)
			if err != nil {
				continue
			}

			m.mu.RLock()
			lastMod := m.lastModTime
			m.mu.RUnlock()

			if stat.ModTime().After(lastMod) {
				logger.Infof("🔄 Config file changed, reloading...")

				m.mu.Lock()
				m.lastModTime = stat.ModTime()
				m.mu.Unlock()

				m.reload()
			}
		}
	}
}

func (m *Manager) reload() {
	if err := m.v.ReadInConfig(); err != nil {
		logger.Errorf("❌ Failed to re-read config: %v", err)
		return
	}

	newCfg, err := decode(m.v)
	if err != nil {
		logger.Errorf("❌ Failed to reload config: %v", err)
		return
	}

	m.mu.Lock()
	oldCfg := m.cfg
	m.cfg = newCfg
	callbacks := m.callbacks
	m.mu.Unlock()

	logChanges(oldCfg, newCfg, "")

	for _, cb := range callbacks {
		cb(oldCfg, newCfg)
	}
}

func logChanges(old, cur any, prefix string) {
	oldVal := reflect.ValueOf(old)
	newVal := reflect.ValueOf(cur)

	if oldVal.Kind() == reflect.Ptr {
		oldVal = oldVal.Elem()
	}
	if newVal.Kind() == reflect.Ptr {
		newVal = newVal.Elem()
	}

	if oldVal.Kind() != reflect.Struct {
		return
	}

	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		oldField := oldVal.Field(i)
		newField := newVal.Field(i)

		fieldName := field.Name
		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		if oldField.Kind() == reflect.Struct {
			logChanges(oldField.Interface(), newField.Interface(), fieldName)
			continue
		}

		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			if isSecret(field.Name) {
				logger.Infof("  📝 %s: (changed)", fieldName)
				continue
			}
			logger.Infof("  📝 %s: %v → %v", fieldName, oldField.Interface(), newField.Interface())
		}
	}
}

func isSecret(name string) bool {
	return strings.Contains(strings.ToLower(name), "key")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load is a convenience function for one-time loading.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if err := read(v, path); err != nil {
		return nil, err
	}
	return decode(v)
}
