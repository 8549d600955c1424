// Package config loads orca's TOML configuration and resolves the paths of
// the stores it reads (agent-deck state, Claude transcripts, orca's own db).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"
)

const (
	// AppDirName is the orca home directory under $HOME
	AppDirName = ".orca"

	// ConfigFileName is the TOML config file inside the orca home
	ConfigFileName = "config.toml"

	// LocalDBFileName is orca's own SQLite store
	LocalDBFileName = "orca.db"

	// DefaultProfile is the agent-deck profile used when none is selected
	DefaultProfile = "default"

	// StateDBFileName is agent-deck's per-profile session store
	StateDBFileName = "state.db"
)

// Attention defaults.
const (
	DefaultStaleAfterSeconds = 3600
	DefaultTailBytes         = 256 * 1024
	DefaultHeadBytes         = 32 * 1024
	DefaultPaneLines         = 20
	DefaultStrategy          = "interactive-tools"
	DefaultMaxParallel       = 8
)

var (
	DefaultPromptMarkers    = []string{"Do you want to proceed?"}
	DefaultInteractiveTools = []string{"AskUserQuestion", "EnterPlanMode", "ExitPlanMode"}
)

// Config is the root of config.toml.
type Config struct {
	Attention AttentionSettings `toml:"attention"`
	Paths     PathSettings      `toml:"paths"`
	Logs      LogSettings       `toml:"logs"`
	Web       WebSettings       `toml:"web"`
	UI        UISettings        `toml:"ui"`
}

// AttentionSettings tunes the classifier.
type AttentionSettings struct {
	// StaleAfterSeconds marks a transcript stale when its last entry is older
	StaleAfterSeconds int `toml:"stale_after_seconds"`

	// TailBytes and HeadBytes bound transcript reads
	TailBytes int64 `toml:"tail_bytes"`
	HeadBytes int64 `toml:"head_bytes"`

	// PaneLines is how many trailing pane lines the probe inspects
	PaneLines int `toml:"pane_lines"`

	// PromptMarkers are substrings (or "re:" regexes) meaning a permission
	// prompt is on screen
	PromptMarkers []string `toml:"prompt_markers"`

	// InteractiveTools are tool names whose invocation blocks on the user
	InteractiveTools []string `toml:"interactive_tools"`

	// Strategy selects the rule set: "interactive-tools" or "pending-tool"
	Strategy string `toml:"strategy"`

	// MaxParallel bounds concurrent classification in bulk scans
	MaxParallel int `toml:"max_parallel"`
}

// PathSettings overrides where orca looks for external state.
type PathSettings struct {
	ClaudeDir    string `toml:"claude_dir"`
	AgentDeckDir string `toml:"agent_deck_dir"`
	Profile      string `toml:"profile"`
}

// LogSettings maps onto logging.Config.
type LogSettings struct {
	Debug                    bool   `toml:"debug"`
	Level                    string `toml:"level"`
	Format                   string `toml:"format"`
	MaxSizeMB                int    `toml:"max_size_mb"`
	MaxBackups               int    `toml:"max_backups"`
	MaxAgeDays               int    `toml:"max_age_days"`
	Compress                 bool   `toml:"compress"`
	RingBufferMB             int    `toml:"ring_buffer_mb"`
	AggregateIntervalSeconds int    `toml:"aggregate_interval_seconds"`
	PprofAddr                string `toml:"pprof_addr"`
}

// WebSettings configures `orca serve`.
type WebSettings struct {
	Listen      string `toml:"listen"`
	Token       string `toml:"token"`
	PushSubject string `toml:"push_subject"`
	PollSeconds int    `toml:"poll_seconds"`
}

// UISettings configures the terminal dashboard.
type UISettings struct {
	// Theme is "dark", "light" or "system"
	Theme           string  `toml:"theme"`
	RefreshSeconds  int     `toml:"refresh_seconds"`
	ProbesPerSecond float64 `toml:"probes_per_second"`
}

var defaultConfig = Config{}

var (
	configCache    *Config
	configCacheMu  sync.RWMutex
	configPathOver string
)

// GetOrcaDir returns the orca home: $ORCA_HOME, else ~/.orca.
func GetOrcaDir() (string, error) {
	if dir := os.Getenv("ORCA_HOME"); dir != "" {
		return expandHome(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, AppDirName), nil
}

// SetConfigPath points Load at an explicit file (the --config flag) and
// drops the cache.
func SetConfigPath(path string) {
	configCacheMu.Lock()
	configPathOver = path
	configCache = nil
	configCacheMu.Unlock()
}

// GetConfigPath returns the config file path.
func GetConfigPath() (string, error) {
	configCacheMu.RLock()
	over := configPathOver
	configCacheMu.RUnlock()
	if over != "" {
		return expandHome(over), nil
	}
	dir, err := GetOrcaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// Load reads config.toml once and caches it. A missing file yields the
// defaults. On a parse error the defaults are cached and the error returned
// so the caller can show it.
func Load() (*Config, error) {
	configCacheMu.RLock()
	if configCache != nil {
		defer configCacheMu.RUnlock()
		return configCache, nil
	}
	configCacheMu.RUnlock()

	path, pathErr := GetConfigPath()

	configCacheMu.Lock()
	defer configCacheMu.Unlock()

	if configCache != nil {
		return configCache, nil
	}

	if pathErr != nil {
		configCache = &defaultConfig
		return configCache, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		configCache = &defaultConfig
		return configCache, nil
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		configCache = &defaultConfig
		return configCache, fmt.Errorf("config.toml parse error: %w", err)
	}
	configCache = &cfg
	return configCache, nil
}

// Reload drops the cache and reads the file again.
func Reload() (*Config, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the loaded config; the next Load reads from disk.
func ClearCache() {
	configCacheMu.Lock()
	configCache = nil
	configCacheMu.Unlock()
}

// GetAttentionSettings returns classifier settings with defaults applied.
func GetAttentionSettings() AttentionSettings {
	cfg, _ := Load()
	s := cfg.Attention

	if s.StaleAfterSeconds <= 0 {
		s.StaleAfterSeconds = DefaultStaleAfterSeconds
	}
	if s.TailBytes <= 0 {
		s.TailBytes = DefaultTailBytes
	}
	if s.HeadBytes <= 0 {
		s.HeadBytes = DefaultHeadBytes
	}
	if s.PaneLines <= 0 {
		s.PaneLines = DefaultPaneLines
	}
	if len(s.PromptMarkers) == 0 {
		s.PromptMarkers = append([]string(nil), DefaultPromptMarkers...)
	}
	if len(s.InteractiveTools) == 0 {
		s.InteractiveTools = append([]string(nil), DefaultInteractiveTools...)
	}
	if s.Strategy == "" {
		s.Strategy = DefaultStrategy
	}
	if s.MaxParallel <= 0 {
		s.MaxParallel = DefaultMaxParallel
	}
	return s
}

// GetLogSettings returns log settings with defaults applied. ORCA_DEBUG=1
// turns on file logging regardless of the file.
func GetLogSettings() LogSettings {
	cfg, _ := Load()
	s := cfg.Logs

	if v := os.Getenv("ORCA_DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		s.Debug = true
	}
	if s.Level == "" {
		s.Level = "info"
	}
	if s.Format == "" {
		s.Format = "json"
	}
	if s.MaxSizeMB <= 0 {
		s.MaxSizeMB = 10
	}
	if s.MaxBackups <= 0 {
		s.MaxBackups = 3
	}
	if s.MaxAgeDays <= 0 {
		s.MaxAgeDays = 7
	}
	if s.RingBufferMB <= 0 {
		s.RingBufferMB = 4
	}
	if s.AggregateIntervalSeconds <= 0 {
		s.AggregateIntervalSeconds = 30
	}
	return s
}

// GetWebSettings returns server settings with defaults applied.
func GetWebSettings() WebSettings {
	cfg, _ := Load()
	s := cfg.Web

	if s.Listen == "" {
		s.Listen = "127.0.0.1:8787"
	}
	if s.PushSubject == "" {
		s.PushSubject = "mailto:orca@localhost"
	}
	if s.PollSeconds <= 0 {
		s.PollSeconds = 5
	}
	return s
}

// GetUISettings returns dashboard settings with defaults applied.
func GetUISettings() UISettings {
	cfg, _ := Load()
	s := cfg.UI

	switch s.Theme {
	case "dark", "light", "system":
	default:
		s.Theme = "dark"
	}
	if s.RefreshSeconds <= 0 {
		s.RefreshSeconds = 2
	}
	if s.ProbesPerSecond <= 0 {
		s.ProbesPerSecond = 4
	}
	return s
}

// ResolveTheme turns the configured theme into "dark" or "light", asking
// the OS when the theme is "system". Detection failures fall back to dark.
func ResolveTheme() string {
	theme := GetUISettings().Theme
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
