package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type Config struct {
	OAuth         OAuthConfig        `mapstructure:"oauth"`
	Sync          SyncConfig         `mapstructure:"sync"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackPort int    `mapstructure:"callback_port"`
	CallbackPath string `mapstructure:"callback_path"`
}

type SyncConfig struct {
	CalendarID      string `mapstructure:"calendar_id"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	WindowDays      int    `mapstructure:"window_days"`
	MaxResults      int    `mapstructure:"max_results"`
}

type NotificationConfig struct {
	Enabled     bool  `mapstructure:"enabled"`
	LeadTimes   []int `mapstructure:"lead_times"` // minutes before event start
	PollSeconds int   `mapstructure:"poll_seconds"`
}

var defaultConfig = Config{
	OAuth: OAuthConfig{
		CallbackPort: 8417,
		CallbackPath: "/oauth/callback",
	},
	Sync: SyncConfig{
		CalendarID:      "primary",
		IntervalSeconds: 60,
		WindowDays:      2,
		MaxResults:      50,
	},
	Notifications: NotificationConfig{
		Enabled:     true,
		LeadTimes:   []int{25, 5},
		PollSeconds: 20,
	},
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigName("config")

	if configPath == "" {
		configDir, err := getDefaultConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configPath = configDir
	}

	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment overrides for client credentials (loaded from .env by main)
	v.SetEnvPrefix("NOTCHD")
	_ = v.BindEnv("oauth.client_id", "NOTCHD_CLIENT_ID")
	_ = v.BindEnv("oauth.client_secret", "NOTCHD_CLIENT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		// If config file doesn't exist, create it with defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createDefaultConfig(configPath); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			if err := v.ReadInConfig(); err != nil {
				// If it still fails, just use defaults
				cfg := defaultConfig
				return &cfg, nil
			}
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("oauth.client_id", defaultConfig.OAuth.ClientID)
	v.SetDefault("oauth.client_secret", defaultConfig.OAuth.ClientSecret)
	v.SetDefault("oauth.callback_port", defaultConfig.OAuth.CallbackPort)
	v.SetDefault("oauth.callback_path", defaultConfig.OAuth.CallbackPath)

	v.SetDefault("sync.calendar_id", defaultConfig.Sync.CalendarID)
	v.SetDefault("sync.interval_seconds", defaultConfig.Sync.IntervalSeconds)
	v.SetDefault("sync.window_days", defaultConfig.Sync.WindowDays)
	v.SetDefault("sync.max_results", defaultConfig.Sync.MaxResults)

	v.SetDefault("notifications.enabled", defaultConfig.Notifications.Enabled)
	v.SetDefault("notifications.lead_times", defaultConfig.Notifications.LeadTimes)
	v.SetDefault("notifications.poll_seconds", defaultConfig.Notifications.PollSeconds)
}

func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.toml")

	if _, err := os.Stat(configFile); err == nil {
		return nil // Already exists
	}

	configContent := `# notchd configuration

[oauth]
client_id = ""      # or set NOTCHD_CLIENT_ID in .env
client_secret = ""  # or set NOTCHD_CLIENT_SECRET in .env
callback_port = 8417
callback_path = "/oauth/callback"

[sync]
calendar_id = "primary"
interval_seconds = 60
window_days = 2
max_results = 50

[notifications]
enabled = true
lead_times = [25, 5]  # minutes before event start
poll_seconds = 20
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func getDefaultConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "notchd"), nil
}

func GetDefaultConfigDir() (string, error) {
	return getDefaultConfigDir()
}

// GetDefaultCacheDir returns the directory used for the secret store and salt.
func GetDefaultCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".cache", "notchd"), nil
}
