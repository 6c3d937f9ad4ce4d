package userconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	configDirName  = "chatdesk"
	configFileName = "config.json"
)

// UserConfig represents the user's local state stored in ~/.config/chatdesk/config.json
type UserConfig struct {
	SelectedContext string `json:"selected_context,omitempty"`
	CurrentChatID   string `json:"current_chat_id,omitempty"`
}

// GetConfigPath returns the path to the user config file
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", configDirName, configFileName), nil
}

// Load reads the user configuration file. A missing file is an empty config.
func Load() (*UserConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return &UserConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var cfg UserConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the user configuration to a file
func Save(cfg *UserConfig) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal user config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write user config file: %w", err)
	}

	return nil
}

// Update loads the config, applies fn and saves the result
func Update(fn func(cfg *UserConfig)) error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	fn(cfg)
	return Save(cfg)
}

// SetSelectedContext updates the agent context new chats are bound to
func SetSelectedContext(name string) error {
	return Update(func(cfg *UserConfig) { cfg.SelectedContext = name })
}

// GetSelectedContext returns the selected agent context, or empty string if not set
func GetSelectedContext() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return cfg.SelectedContext, nil
}

// SetCurrentChat records the chat `chatdesk chat` resumes by default
func SetCurrentChat(chatID string) error {
	return Update(func(cfg *UserConfig) { cfg.CurrentChatID = chatID })
}

// GetCurrentChat returns the current chat ID, or empty string if not set
func GetCurrentChat() (string, error) {
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	return cfg.CurrentChatID, nil
}
