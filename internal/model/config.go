// Package model defines voxplan's identifier formats, planning tree
// structures, error taxonomy, and configuration.
package model

type Config struct {
	Project ProjectConfig `yaml:"project"`
	Planner PlannerConfig `yaml:"planner"`
	Session SessionConfig `yaml:"session"`
	Watcher WatcherConfig `yaml:"watcher"`
	Limits  LimitsConfig  `yaml:"limits"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

type ProjectConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type PlannerConfig struct {
	// InboxDir is where the upstream planning service drops raw tree
	// documents, relative to the .voxplan directory.
	InboxDir string `yaml:"inbox_dir"`
	// RejectedDir receives inbox documents whose normalization failed.
	RejectedDir string `yaml:"rejected_dir"`
}

type SessionConfig struct {
	// MaxHistoryMessages bounds the per-session message history; older
	// entries are trimmed first.
	MaxHistoryMessages int `yaml:"max_history_messages"`
}

type WatcherConfig struct {
	DebounceSec     float64 `yaml:"debounce_sec"`
	ScanIntervalSec int     `yaml:"scan_interval_sec"`
}

type LimitsConfig struct {
	MaxGoalsPerTree  int `yaml:"max_goals_per_tree"`
	MaxPlansPerGoal  int `yaml:"max_plans_per_goal"`
	MaxYAMLFileBytes int `yaml:"max_yaml_file_bytes"`
	MaxSessions      int `yaml:"max_sessions"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration written by voxplan setup.
func DefaultConfig(projectName string) Config {
	return Config{
		Project: ProjectConfig{Name: projectName},
		Planner: PlannerConfig{
			InboxDir:    "plans/inbox",
			RejectedDir: "rejected",
		},
		Session: SessionConfig{MaxHistoryMessages: 50},
		Watcher: WatcherConfig{
			DebounceSec:     0.5,
			ScanIntervalSec: 10,
		},
		Limits: LimitsConfig{
			MaxGoalsPerTree:  100,
			MaxPlansPerGoal:  100,
			MaxYAMLFileBytes: 1 * 1024 * 1024,
			MaxSessions:      1000,
		},
		Daemon:  DaemonConfig{ShutdownTimeoutSec: 30},
		Logging: LoggingConfig{Level: "info"},
	}
}
