package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Analyzer AnalyzerConfig `toml:"analyzer"`
	Helpdesk HelpdeskConfig `toml:"helpdesk"`
	Oracle   OracleConfig   `toml:"oracle"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
}

type AnalyzerConfig struct {
	Name                 string  `toml:"name"`
	Environment          string  `toml:"environment"`
	Port                 int     `toml:"port"`
	DefaultWindowMinutes int     `toml:"default_window_minutes"`
	SubjectMaxLength     int     `toml:"subject_max_length"`
	RateLimitPerSecond   float64 `toml:"rate_limit_per_second"`
	RateLimitBurst       int     `toml:"rate_limit_burst"`
}

// HelpdeskConfig contains helpdesk connection and filter settings.
// Either an API key or email/password credentials must be present before
// the first fetch; cookies can also be injected manually at runtime.
type HelpdeskConfig struct {
	Domain                  string `toml:"domain"`
	APIKey                  string `toml:"api_key"`
	Email                   string `toml:"email"`
	Password                string `toml:"password"`
	GroupID                 int64  `toml:"group_id"`
	WorkspaceID             int64  `toml:"workspace_id"`
	IncludeWorkspaceInQuery bool   `toml:"include_workspace_in_query"`
	PageSize                int    `toml:"page_size"`
	TimeoutSeconds          int    `toml:"timeout_seconds"`
	SessionTTLMinutes       int    `toml:"session_ttl_minutes"`
	RetryAttempts           int    `toml:"retry_attempts"`
	RemoteDebugPort         int    `toml:"remote_debug_port"`
	LoginWaitMillis         int    `toml:"login_wait_millis"`
}

// OracleConfig controls the optional external analyzer used by the
// report command. Disabled by default.
type OracleConfig struct {
	Enabled                 bool   `toml:"enabled"`
	BaseURL                 string `toml:"base_url"`
	TimeoutSeconds          int    `toml:"timeout_seconds"`
	ChallengeTimeoutSeconds int    `toml:"challenge_timeout_seconds"`
	RemoteDebugPort         int    `toml:"remote_debug_port"`
}

type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	BackupDir    string `toml:"backup_dir"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Output     string `toml:"output"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
}

func DefaultConfig() *Config {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)
	execName := filepath.Base(execPath)
	execName = execName[:len(execName)-len(filepath.Ext(execName))]

	defaultDBPath := filepath.Join(execDir, "data", execName+".db")

	return &Config{
		Analyzer: AnalyzerConfig{
			Name:                 execName,
			Environment:          "development",
			Port:                 8080,
			DefaultWindowMinutes: 60,
			SubjectMaxLength:     100,
			RateLimitPerSecond:   10,
			RateLimitBurst:       20,
		},
		Helpdesk: HelpdeskConfig{
			IncludeWorkspaceInQuery: true,
			PageSize:                100,
			TimeoutSeconds:          30,
			SessionTTLMinutes:       30,
			RetryAttempts:           0,
			LoginWaitMillis:         3000,
		},
		Oracle: OracleConfig{
			Enabled:                 false,
			TimeoutSeconds:          60,
			ChallengeTimeoutSeconds: 60,
		},
		Storage: StorageConfig{
			DatabasePath: defaultDBPath,
			BackupDir:    "./backups",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "both",
			MaxSize:    100,
			MaxBackups: 3,
		},
	}
}

func LoadConfig(configFile string) (*Config, error) {
	// Pick up a local .env before reading overrides; missing files are fine
	_ = godotenv.Load()

	config := DefaultConfig()

	if configFile == "" {
		// Auto-detect config file
		execPath, _ := os.Executable()
		execDir := filepath.Dir(execPath)
		execName := filepath.Base(execPath)
		execName = execName[:len(execName)-len(filepath.Ext(execName))]

		possiblePaths := []string{
			filepath.Join(execDir, execName+".toml"),
			filepath.Join(execDir, "config.toml"),
			"config.toml",
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			applyEnvOverrides(config)
			if err := config.Validate(); err != nil {
				return nil, fmt.Errorf("invalid configuration: %w", err)
			}
			return config, nil
		}
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if domain := os.Getenv("FRESHSERVICE_DOMAIN"); domain != "" {
		config.Helpdesk.Domain = domain
	}
	if apiKey := os.Getenv("FRESHSERVICE_API_KEY"); apiKey != "" {
		config.Helpdesk.APIKey = apiKey
	}
	if email := os.Getenv("FRESHSERVICE_EMAIL"); email != "" {
		config.Helpdesk.Email = email
	}
	if password := os.Getenv("FRESHSERVICE_PASSWORD"); password != "" {
		config.Helpdesk.Password = password
	}
	if groupID := os.Getenv("FRESHSERVICE_GROUP_ID"); groupID != "" {
		if id, err := strconv.ParseInt(groupID, 10, 64); err == nil {
			config.Helpdesk.GroupID = id
		}
	}
	if workspaceID := os.Getenv("FRESHSERVICE_WORKSPACE_ID"); workspaceID != "" {
		if id, err := strconv.ParseInt(workspaceID, 10, 64); err == nil {
			config.Helpdesk.WorkspaceID = id
		}
	}
	if minutes := os.Getenv("DEFAULT_WINDOW_MINUTES"); minutes != "" {
		if m, err := strconv.Atoi(minutes); err == nil && m > 0 {
			config.Analyzer.DefaultWindowMinutes = m
		}
	}
	if oracleURL := os.Getenv("ORACLE_BASE_URL"); oracleURL != "" {
		config.Oracle.BaseURL = oracleURL
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}
	if backupDir := os.Getenv("BACKUP_DIR"); backupDir != "" {
		config.Storage.BackupDir = backupDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
	if logOutput := os.Getenv("LOG_OUTPUT"); logOutput != "" {
		config.Logging.Output = logOutput
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if portNum, err := strconv.Atoi(port); err == nil {
			config.Analyzer.Port = portNum
		}
	}
}

func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path is required")
	}

	if c.Analyzer.Port <= 0 {
		c.Analyzer.Port = 8080
	}
	if c.Analyzer.DefaultWindowMinutes <= 0 {
		c.Analyzer.DefaultWindowMinutes = 60
	}
	if c.Analyzer.SubjectMaxLength <= 0 {
		c.Analyzer.SubjectMaxLength = 100
	}

	if c.Helpdesk.PageSize <= 0 {
		c.Helpdesk.PageSize = 100
	}
	if c.Helpdesk.TimeoutSeconds <= 0 {
		c.Helpdesk.TimeoutSeconds = 30
	}
	if c.Helpdesk.SessionTTLMinutes <= 0 {
		c.Helpdesk.SessionTTLMinutes = 30
	}
	if c.Helpdesk.RetryAttempts < 0 {
		return fmt.Errorf("helpdesk retry_attempts must not be negative")
	}

	if c.Oracle.Enabled && c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle base_url is required when the oracle is enabled")
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLogLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validOutputs := []string{"console", "file", "both"}
	validOutput := false
	for _, output := range validOutputs {
		if c.Logging.Output == output {
			validOutput = true
			break
		}
	}
	if !validOutput {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

// BaseURL returns the helpdesk domain as a full URL. A bare domain gets
// the https scheme.
func (h *HelpdeskConfig) BaseURL() string {
	domain := strings.TrimSuffix(h.Domain, "/")
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

// AuthMode reports which session mode the configuration selects: a
// configured API key wins over credentials.
func (h *HelpdeskConfig) AuthMode() string {
	if h.APIKey != "" {
		return "apikey"
	}
	return "cookie"
}

// HasCredentials reports whether browser login credentials are configured.
func (h *HelpdeskConfig) HasCredentials() bool {
	return h.Email != "" && h.Password != ""
}

func (c *Config) IsProduction() bool {
	return c.Logging.Level == "warn" || c.Logging.Level == "error" || c.Logging.Level == "fatal"
}
