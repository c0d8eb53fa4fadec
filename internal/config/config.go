package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all terminal agent configuration
type Config struct {
	Env string `yaml:"env" env:"APP_ENV" env-default:"production"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	Backend struct {
		BaseURL string `yaml:"base_url" env:"BACKEND_BASE_URL" env-required:"true"`
		APIKey  string `yaml:"api_key" env:"BACKEND_API_KEY"`
		Timeout int    `yaml:"timeout" env:"BACKEND_TIMEOUT" env-default:"10"` // seconds
	} `yaml:"backend"`

	Reader struct {
		Name      string `yaml:"name" env:"READER_NAME" env-required:"true"`
		SessionID string `yaml:"session_id" env:"READER_SESSION_ID"`
	} `yaml:"reader"`

	Channel struct {
		ReconnectDelay int `yaml:"reconnect_delay" env:"CHANNEL_RECONNECT_DELAY" env-default:"5"` // seconds
	} `yaml:"channel"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"SERVER_PORT" env-default:"8422"`
	} `yaml:"server"`

	Display struct {
		ResultWindow     int `yaml:"result_window" env:"DISPLAY_RESULT_WINDOW" env-default:"2"`          // seconds in success/failed before ready
		PanelClearWindow int `yaml:"panel_clear_window" env:"DISPLAY_PANEL_CLEAR_WINDOW" env-default:"5"` // seconds before attendance panel clears
		FetchDebounce    int `yaml:"fetch_debounce" env:"DISPLAY_FETCH_DEBOUNCE" env-default:"300"`       // milliseconds
	} `yaml:"display"`

	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"checador.db"`
}

// LoadConfig loads configuration from a YAML file with env overrides
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return &cfg, nil
}
