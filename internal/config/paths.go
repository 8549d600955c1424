package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetAgentDeckDir returns agent-deck's base directory: [paths].agent_deck_dir,
// else ~/.agent-deck.
func GetAgentDeckDir() (string, error) {
	cfg, _ := Load()
	if cfg.Paths.AgentDeckDir != "" {
		return expandHome(cfg.Paths.AgentDeckDir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".agent-deck"), nil
}

// GetEffectiveProfile picks the agent-deck profile, in order: explicit
// (the --profile flag), AGENTDECK_PROFILE, [paths].profile, "default".
func GetEffectiveProfile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("AGENTDECK_PROFILE"); env != "" {
		return env
	}
	if cfg, _ := Load(); cfg.Paths.Profile != "" {
		return cfg.Paths.Profile
	}
	return DefaultProfile
}

// GetStateDBPath returns agent-deck's state.db for a profile.
func GetStateDBPath(profile string) (string, error) {
	profile = filepath.Base(GetEffectiveProfile(profile))
	if profile == "." || profile == ".." || profile == string(filepath.Separator) {
		return "", fmt.Errorf("invalid profile name: %s", profile)
	}
	dir, err := GetAgentDeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles", profile, StateDBFileName), nil
}

// GetClaudeConfigDir returns Claude's config directory: $CLAUDE_CONFIG_DIR,
// else [paths].claude_dir, else ~/.claude.
func GetClaudeConfigDir() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return expandHome(dir)
	}
	if cfg, _ := Load(); cfg.Paths.ClaudeDir != "" {
		return expandHome(cfg.Paths.ClaudeDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude"
	}
	return filepath.Join(home, ".claude")
}

// GetClaudeProjectsDir returns the transcripts root.
func GetClaudeProjectsDir() string {
	return filepath.Join(GetClaudeConfigDir(), "projects")
}

// GetLocalDBPath returns orca's own SQLite file.
func GetLocalDBPath() (string, error) {
	dir, err := GetOrcaDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LocalDBFileName), nil
}
