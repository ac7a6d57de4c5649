// Package config implements AgentWatch's declarative YAML configuration:
// scan intervals, roots, matchers, port range, web listen address, and
// privacy/masking. It follows the teacher's config.go almost verbatim in
// spirit: one Config struct with nested section structs, an XDG-aware
// default path resolver, LoadOrDefault, and a Diff helper for hot-reload
// change description. Unknown keys are ignored by yaml.v3 by default,
// satisfying §4.M's forward-compat requirement.
package config

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentwatch/agentwatch/internal/scanport"
	"github.com/agentwatch/agentwatch/internal/scanprocess"
	"github.com/agentwatch/agentwatch/internal/scanrepo"
)

// Config is AgentWatch's top-level configuration document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Process ProcessConfig `yaml:"process"`
	Repo    RepoConfig    `yaml:"repo"`
	Port    PortConfig    `yaml:"port"`
	Hook    HookConfig    `yaml:"hook"`
	Cost    CostConfig    `yaml:"cost"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

// ServerConfig controls the HTTP+WebSocket listener (§4.K).
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

// ProcessConfig mirrors scanprocess.Config's declarative knobs (§4.E).
type ProcessConfig struct {
	RefreshPeriod    time.Duration                 `yaml:"refresh_period"`
	Matchers         []scanprocess.Matcher         `yaml:"matchers"`
	ActiveCPUPercent float64                       `yaml:"active_cpu_percent"`
	StalledSeconds   int                           `yaml:"stalled_seconds"`
	CwdResolution    scanprocess.CwdResolutionMode `yaml:"cwd_resolution"`
	MaxRepoRootDepth int                           `yaml:"max_repo_root_depth"`
}

func (p ProcessConfig) toScannerConfig() scanprocess.Config {
	return scanprocess.Config{
		RefreshPeriod:    p.RefreshPeriod,
		Matchers:         p.Matchers,
		ActiveCPUPercent: p.ActiveCPUPercent,
		StalledSeconds:   p.StalledSeconds,
		CwdResolution:    p.CwdResolution,
		MaxRepoRootDepth: p.MaxRepoRootDepth,
	}
}

// RepoConfig mirrors scanrepo.Config's declarative knobs (§4.F).
type RepoConfig struct {
	Roots         []string             `yaml:"roots"`
	IgnoreDirs    []string             `yaml:"ignore_dirs"`
	FastInterval  time.Duration        `yaml:"fast_interval"`
	SlowInterval  time.Duration        `yaml:"slow_interval"`
	ShowClean     bool                 `yaml:"show_clean"`
	Fetch         scanrepo.FetchPolicy `yaml:"fetch"`
	StatusTimeout time.Duration        `yaml:"status_timeout"`
	DiffTimeout   time.Duration        `yaml:"diff_timeout"`
}

func (r RepoConfig) toScannerConfig() scanrepo.Config {
	return scanrepo.Config{
		Roots:         r.Roots,
		IgnoreDirs:    r.IgnoreDirs,
		FastInterval:  r.FastInterval,
		SlowInterval:  r.SlowInterval,
		ShowClean:     r.ShowClean,
		Fetch:         r.Fetch,
		StatusTimeout: r.StatusTimeout,
		DiffTimeout:   r.DiffTimeout,
	}
}

// PortConfig mirrors scanport.Config's declarative knobs (§4.G).
type PortConfig struct {
	RefreshPeriod time.Duration `yaml:"refresh_period"`
	LowPortGuard  int           `yaml:"low_port_guard"`
}

func (p PortConfig) toScannerConfig() scanport.Config {
	return scanport.Config{
		RefreshPeriod: p.RefreshPeriod,
		LowPortGuard:  p.LowPortGuard,
	}
}

// HookConfig controls the hook store's retention policy (§4.H "Cleanup").
type HookConfig struct {
	MaxSessionDays int `yaml:"max_session_days"`
	MaxToolUsages  int `yaml:"max_tool_usages"`
}

// CostConfig controls the cost estimator's budget alerting.
type CostConfig struct {
	// DailyBudgetUSD is an optional soft ceiling. It is parsed and
	// reported by Diff; no other part of the daemon reads it.
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`
}

// PrivacyConfig holds masking settings in the shape of the teacher's
// session.PrivacyFilter. They are parsed and reported by Diff; no
// component applies them to the data served to clients.
type PrivacyConfig struct {
	MaskWorkingDirs bool     `yaml:"mask_working_dirs"`
	MaskSessionIDs  bool     `yaml:"mask_session_ids"`
	MaskPIDs        bool     `yaml:"mask_pids"`
	AllowedPaths    []string `yaml:"allowed_paths"`
	BlockedPaths    []string `yaml:"blocked_paths"`
}

// ScanProcessConfig returns the scanprocess.Config derived from this
// document, with matchers compiled.
func (c *Config) ScanProcessConfig() (scanprocess.Config, error) {
	cfg := c.Process.toScannerConfig()
	compiled, err := scanprocess.Compile(cfg.Matchers)
	if err != nil {
		return scanprocess.Config{}, err
	}
	cfg.Matchers = compiled
	return cfg, nil
}

// ScanRepoConfig returns the scanrepo.Config derived from this document.
func (c *Config) ScanRepoConfig() scanrepo.Config { return c.Repo.toScannerConfig() }

// ScanPortConfig returns the scanport.Config derived from this document.
func (c *Config) ScanPortConfig() scanport.Config { return c.Port.toScannerConfig() }

// Load reads and parses the YAML document at path, starting from
// defaultConfig() so unset fields retain their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads config from path, or returns the default config if
// the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return Load(path)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 7890,
		},
		Process: ProcessConfig{
			RefreshPeriod:    3 * time.Second,
			Matchers:         scanprocess.DefaultMatchers(),
			ActiveCPUPercent: 5.0,
			StalledSeconds:   120,
			CwdResolution:    scanprocess.CwdBestEffort,
			MaxRepoRootDepth: 40,
		},
		Repo: RepoConfig{
			FastInterval:  2 * time.Second,
			SlowInterval:  15 * time.Second,
			Fetch:         scanrepo.FetchOff,
			StatusTimeout: 5 * time.Second,
			DiffTimeout:   10 * time.Second,
		},
		Port: PortConfig{
			RefreshPeriod: 3 * time.Second,
			LowPortGuard:  1024,
		},
		Hook: HookConfig{
			MaxSessionDays: 30,
			MaxToolUsages:  10000,
		},
	}
}

func defaultConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config")
}

func defaultStateDir() string {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state")
}

// DefaultConfigPath returns the default XDG-compliant config file path.
func DefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "agentwatch", "config.yaml")
}

// DefaultStateDir returns the default XDG-compliant state directory
// (where the daemon keeps its record logs, stores, index, and pid file).
func DefaultStateDir() string {
	return filepath.Join(defaultStateDir(), "agentwatch")
}

// Diff compares two configs and returns human-readable descriptions of
// what changed, for the SIGHUP reload audit log entry.
func Diff(old, new *Config) []string {
	var changes []string

	if old.Server.Port != new.Server.Port {
		changes = append(changes, fmt.Sprintf("server.port: %d → %d", old.Server.Port, new.Server.Port))
	}
	if old.Server.Host != new.Server.Host {
		changes = append(changes, fmt.Sprintf("server.host: %s → %s", old.Server.Host, new.Server.Host))
	}
	if old.Server.AuthToken != new.Server.AuthToken {
		changes = append(changes, "server.auth_token: changed")
	}
	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		changes = append(changes, fmt.Sprintf("server.allowed_origins: %v → %v", old.Server.AllowedOrigins, new.Server.AllowedOrigins))
	}

	if old.Process.RefreshPeriod != new.Process.RefreshPeriod {
		changes = append(changes, fmt.Sprintf("process.refresh_period: %s → %s", old.Process.RefreshPeriod, new.Process.RefreshPeriod))
	}
	if old.Process.ActiveCPUPercent != new.Process.ActiveCPUPercent {
		changes = append(changes, fmt.Sprintf("process.active_cpu_percent: %.1f → %.1f", old.Process.ActiveCPUPercent, new.Process.ActiveCPUPercent))
	}
	if old.Process.StalledSeconds != new.Process.StalledSeconds {
		changes = append(changes, fmt.Sprintf("process.stalled_seconds: %d → %d", old.Process.StalledSeconds, new.Process.StalledSeconds))
	}
	if len(old.Process.Matchers) != len(new.Process.Matchers) {
		changes = append(changes, fmt.Sprintf("process.matchers: %d → %d entries", len(old.Process.Matchers), len(new.Process.Matchers)))
	}

	if !slices.Equal(old.Repo.Roots, new.Repo.Roots) {
		changes = append(changes, fmt.Sprintf("repo.roots: %v → %v", old.Repo.Roots, new.Repo.Roots))
	}
	if old.Repo.Fetch != new.Repo.Fetch {
		changes = append(changes, fmt.Sprintf("repo.fetch: %s → %s", old.Repo.Fetch, new.Repo.Fetch))
	}

	if old.Port.LowPortGuard != new.Port.LowPortGuard {
		changes = append(changes, fmt.Sprintf("port.low_port_guard: %d → %d", old.Port.LowPortGuard, new.Port.LowPortGuard))
	}

	if old.Hook.MaxSessionDays != new.Hook.MaxSessionDays {
		changes = append(changes, fmt.Sprintf("hook.max_session_days: %d → %d", old.Hook.MaxSessionDays, new.Hook.MaxSessionDays))
	}
	if old.Hook.MaxToolUsages != new.Hook.MaxToolUsages {
		changes = append(changes, fmt.Sprintf("hook.max_tool_usages: %d → %d", old.Hook.MaxToolUsages, new.Hook.MaxToolUsages))
	}

	if old.Cost.DailyBudgetUSD != new.Cost.DailyBudgetUSD {
		changes = append(changes, fmt.Sprintf("cost.daily_budget_usd: %.2f → %.2f", old.Cost.DailyBudgetUSD, new.Cost.DailyBudgetUSD))
	}

	if old.Privacy.MaskWorkingDirs != new.Privacy.MaskWorkingDirs ||
		old.Privacy.MaskSessionIDs != new.Privacy.MaskSessionIDs ||
		old.Privacy.MaskPIDs != new.Privacy.MaskPIDs ||
		!slices.Equal(old.Privacy.AllowedPaths, new.Privacy.AllowedPaths) ||
		!slices.Equal(old.Privacy.BlockedPaths, new.Privacy.BlockedPaths) {
		changes = append(changes, "privacy: configuration changed")
	}

	return changes
}

// Watch re-reads the config file from path whenever the process receives
// SIGHUP, passing the new config and its diff against the previously
// loaded one to onReload. The watching goroutine has no stop mechanism and
// runs until process exit, matching the teacher's fire-and-forget
// signal-handling style.
func Watch(path string, onReload func(cfg *Config, changes []string)) {
	prev, err := LoadOrDefault(path)
	if err != nil {
		prev = defaultConfig()
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	go func() {
		for range sig {
			next, err := Load(path)
			if err != nil {
				continue
			}
			onReload(next, Diff(prev, next))
			prev = next
		}
	}()
}
