package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/allenguarnes/givetray/internal/logsink"
)

// DefaultCommand is used until the user configures a real command, so a fresh
// profile still produces visible output when started.
const DefaultCommand = "echo configure command"

// HistoryConfig selects the run-history backend.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Driver  string `toml:"driver" mapstructure:"driver"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// RotationConfig tunes log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int  `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool `toml:"compress" mapstructure:"compress"`
}

// ProfileConfig is one profile's persisted settings. There is deliberately no
// password field; credentials are never written to disk.
type ProfileConfig struct {
	Profile     string         `toml:"-" mapstructure:"-"`
	Command     string         `toml:"command" mapstructure:"command"`
	WorkDir     string         `toml:"workdir" mapstructure:"workdir"`
	Env         []string       `toml:"env" mapstructure:"env"`
	Autostart   bool           `toml:"autostart" mapstructure:"autostart"`
	IconPath    string         `toml:"icon_path" mapstructure:"icon_path"`
	LogToFile   bool           `toml:"log_to_file" mapstructure:"log_to_file"`
	LogFilePath string         `toml:"log_file_path" mapstructure:"log_file_path"`
	Listen      string         `toml:"listen" mapstructure:"listen"`
	Log         RotationConfig `toml:"log" mapstructure:"log"`
	History     HistoryConfig  `toml:"history" mapstructure:"history"`
}

// SinkConfig assembles the file sink settings from the profile fields.
func (c ProfileConfig) SinkConfig() logsink.Config {
	return logsink.Config{
		Path:       c.LogFilePath,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// SanitizeProfileName maps a profile name onto the safe character set used in
// file names: ASCII letters, digits, '-' and '_'. Anything else becomes '_'
// and an empty result becomes "default".
func SanitizeProfileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "default"
	}
	return out
}

// Dir returns the directory holding per-profile config files.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "givetray", "configs"), nil
}

// DataDir returns the directory for logs and the sqlite history file.
func DataDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "givetray"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		return filepath.Join(home, ".local", "share", "givetray"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return filepath.Join(base, "givetray", "data"), nil
}

// PathFor returns the config file path for a (sanitized) profile name.
func PathFor(profile string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SanitizeProfileName(profile)+".toml"), nil
}

// Default returns the settings a brand-new profile gets.
func Default(profile string) ProfileConfig {
	profile = SanitizeProfileName(profile)
	cfg := ProfileConfig{
		Profile: profile,
		Command: DefaultCommand,
		Listen:  "127.0.0.1:8181",
		History: HistoryConfig{Enabled: true, Driver: "sqlite"},
	}
	if dataDir, err := DataDir(); err == nil {
		cfg.LogFilePath = filepath.Join(dataDir, "logs", profile+".log")
		cfg.History.DSN = filepath.Join(dataDir, "history.db")
	}
	return cfg
}

// LoadPath reads one profile config file. A corrupt file returns the profile
// defaults together with the parse error so callers can warn and keep going,
// the same recovery the desktop app uses.
func LoadPath(profile, path string) (ProfileConfig, error) {
	cfg := Default(profile)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(profile), fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Profile = SanitizeProfileName(profile)
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = DefaultCommand
	}
	return cfg, nil
}

// LoadOrCreate loads the profile config, writing the defaults to disk when no
// file exists yet.
func LoadOrCreate(profile string) (ProfileConfig, error) {
	path, err := PathFor(profile)
	if err != nil {
		return Default(profile), err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		cfg := Default(profile)
		if saveErr := SavePath(cfg, path); saveErr != nil {
			return cfg, saveErr
		}
		return cfg, nil
	}
	return LoadPath(profile, path)
}

// Save persists the profile config to its default location.
func Save(cfg ProfileConfig) error {
	path, err := PathFor(cfg.Profile)
	if err != nil {
		return err
	}
	return SavePath(cfg, path)
}

// SavePath writes cfg as TOML to path, creating parent directories.
func SavePath(cfg ProfileConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.Set("command", cfg.Command)
	v.Set("workdir", cfg.WorkDir)
	v.Set("env", cfg.Env)
	v.Set("autostart", cfg.Autostart)
	v.Set("icon_path", cfg.IconPath)
	v.Set("log_to_file", cfg.LogToFile)
	v.Set("log_file_path", cfg.LogFilePath)
	v.Set("listen", cfg.Listen)
	v.Set("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.Set("log.max_backups", cfg.Log.MaxBackups)
	v.Set("log.max_age_days", cfg.Log.MaxAgeDays)
	v.Set("log.compress", cfg.Log.Compress)
	v.Set("history.enabled", cfg.History.Enabled)
	v.Set("history.driver", cfg.History.Driver)
	v.Set("history.dsn", cfg.History.DSN)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
