package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// QueueConfig holds settings for the filesystem job queue and the
// native-messaging bridge host.
type QueueConfig struct {
	// Root is the queue directory holding pending/, in-flight/,
	// resolved/, dead-letter/, lock and host.log.
	Root string `mapstructure:"root" yaml:"root"`

	// PollIntervalMS is how often (in milliseconds) the host scans
	// pending/ for claimable jobs.
	PollIntervalMS int `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`

	// ResponseTimeoutSec is how long (in seconds) the host waits for
	// the extension's verdict before resolving a job as timed out.
	ResponseTimeoutSec int `mapstructure:"response_timeout_sec" yaml:"response_timeout_sec"`

	// MaxFrameBytes caps the size of a single IPC frame payload.
	MaxFrameBytes int `mapstructure:"max_frame_bytes" yaml:"max_frame_bytes"`
}

// SMTPConfig holds the direct-SMTP fallback sender settings.
// The password is never stored here; it lives in the OS keyring.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	UseTLS   bool   `mapstructure:"use_tls" yaml:"use_tls"`
}

// MonitorConfig holds the drop-folder monitoring settings.
type MonitorConfig struct {
	// Folder is the directory watched for new outgoing files.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// KeyPattern is a regexp extracting the supplier key from a
	// filename; the first capture group wins, else the whole match.
	KeyPattern string `mapstructure:"key_pattern" yaml:"key_pattern"`

	// Extensions restricts which file extensions are processed.
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// TemplateConfig holds email template settings.
type TemplateConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Body    string `mapstructure:"body" yaml:"body"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	SMTP     SMTPConfig     `mapstructure:"smtp" yaml:"smtp"`
	Monitor  MonitorConfig  `mapstructure:"monitor" yaml:"monitor"`
	Template TemplateConfig `mapstructure:"template" yaml:"template"`

	// AuditDBPath is the SQLite database for suppliers and email logs.
	AuditDBPath string `mapstructure:"audit_db_path" yaml:"audit_db_path"`

	// UseBridge selects delivery through the mail-client bridge; when
	// false the direct SMTP sender is used instead.
	UseBridge bool `mapstructure:"use_bridge" yaml:"use_bridge"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/massmailer/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "massmailer", "config.yaml")
}

// DefaultQueueRoot returns the per-user queue directory, honoring the
// TB_QUEUE_DIR environment override used by the native host.
func DefaultQueueRoot() string {
	if dir := os.Getenv("TB_QUEUE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "tb_queue")
	}
	return filepath.Join(home, ".config", "massmailer", "tb_queue")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	return &AppConfig{
		Queue: QueueConfig{
			Root:               DefaultQueueRoot(),
			PollIntervalMS:     500,
			ResponseTimeoutSec: 30,
			MaxFrameBytes:      1 << 20,
		},
		SMTP: SMTPConfig{
			Port:   587,
			UseTLS: true,
		},
		Monitor: MonitorConfig{
			KeyPattern: `^([A-Z0-9]+)_`,
			Extensions: []string{".pdf", ".xlsx", ".docx", ".txt"},
		},
		Template: TemplateConfig{
			Subject: "Document [filename] for [supplier_name]",
			Body:    "<p>Dear [contact_name],</p><p>Please find attached [filename].</p>",
		},
		AuditDBPath: filepath.Join(home, ".config", "massmailer", "massmailer.db"),
		UseBridge:   true,
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("queue.root", DefaultQueueRoot())
	v.SetDefault("queue.poll_interval_ms", 500)
	v.SetDefault("queue.response_timeout_sec", 30)
	v.SetDefault("queue.max_frame_bytes", 1<<20)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.use_tls", true)
	v.SetDefault("use_bridge", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("queue", cfg.Queue)
	v.Set("smtp", cfg.SMTP)
	v.Set("monitor", cfg.Monitor)
	v.Set("template", cfg.Template)
	v.Set("audit_db_path", cfg.AuditDBPath)
	v.Set("use_bridge", cfg.UseBridge)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
