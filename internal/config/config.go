package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration, loaded from environment variables
// with the ADMINHUB_ prefix.
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
	Audit  AuditConfig
	Menu   MenuConfig

	// PostgresDSN is the database connection string. Empty means the service
	// starts without persistence (health endpoints only), matching how the
	// migrate CLI is the only required consumer.
	PostgresDSN string

	// Debug enables the development bypass token and verbose logging. Must be
	// false in production deployments.
	Debug bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Transport-level burst limiter (token bucket per client IP). Zero
	// disables it; the session guard's fixed-window limiter is configured
	// separately under Auth.
	BurstPerSecond int
	Burst          int
}

// AuthConfig holds token and session-guard settings.
type AuthConfig struct {
	SigningSecret    string
	SigningAlgorithm string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	Audience         string
	Issuer           string

	// IPWhitelist is the parsed allow-list. Empty means no restriction.
	IPWhitelist []string

	RateLimitEnabled bool
	RateLimitMax     int
	RateLimitWindow  time.Duration

	// Permission-resolver cache.
	PermCacheTTL        time.Duration
	PermCacheMaxEntries int

	PasswordMinLength int
}

// AuditConfig holds audit-middleware settings.
type AuditConfig struct {
	// Methods is the HTTP method allow-list for auditing.
	Methods []string
	// ExcludePatterns are case-insensitive regexes matched against the
	// request path; a match silences auditing for that request.
	ExcludePatterns []string
	// MaxBodyBytes caps captured response bodies.
	MaxBodyBytes int64
	// QueueSize bounds the background sink.
	QueueSize int
}

// MenuConfig drives permission auto-provisioning display names.
type MenuConfig struct {
	// ModuleToParentMenu maps an API module (first path segment after
	// /api/v1/) to a parent menu bucket. Unknown modules fall back to
	// "system".
	ModuleToParentMenu map[string]string
	// ParentMenuInfo maps a parent menu bucket to its display name and
	// description.
	ParentMenuInfo map[string]MenuInfo
	// SubMenuNames maps a module to its submenu display name. Unknown
	// modules fall back to "<Module>管理".
	SubMenuNames map[string]string
}

// MenuInfo is the display metadata of a parent menu.
type MenuInfo struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADMINHUB_ADDR", ":8080"),
			ReadTimeout:     getEnvDuration("ADMINHUB_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ADMINHUB_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ADMINHUB_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ADMINHUB_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    getEnvInt64("ADMINHUB_MAX_BODY_BYTES", 4<<20),
			BurstPerSecond:  getEnvInt("ADMINHUB_BURST_PER_SECOND", 0),
			Burst:           getEnvInt("ADMINHUB_BURST", 20),
		},
		Auth: AuthConfig{
			SigningSecret:       os.Getenv("ADMINHUB_SIGNING_SECRET"),
			SigningAlgorithm:    getEnv("ADMINHUB_SIGNING_ALGORITHM", "HS256"),
			AccessTokenTTL:      time.Duration(getEnvInt("ADMINHUB_ACCESS_TOKEN_TTL_MINUTES", 60*24*7)) * time.Minute,
			RefreshTokenTTL:     time.Duration(getEnvInt("ADMINHUB_REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
			Audience:            os.Getenv("ADMINHUB_JWT_AUDIENCE"),
			Issuer:              os.Getenv("ADMINHUB_JWT_ISSUER"),
			IPWhitelist:         splitList(os.Getenv("ADMINHUB_IP_WHITELIST")),
			RateLimitEnabled:    getEnvBool("ADMINHUB_RATE_LIMIT_ENABLED", true),
			RateLimitMax:        getEnvInt("ADMINHUB_RATE_LIMIT_MAX_REQUESTS", 60),
			RateLimitWindow:     time.Duration(getEnvInt("ADMINHUB_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			PermCacheTTL:        getEnvDuration("ADMINHUB_PERM_CACHE_TTL", time.Hour),
			PermCacheMaxEntries: getEnvInt("ADMINHUB_PERM_CACHE_MAX_ENTRIES", 1000),
			PasswordMinLength:   getEnvInt("ADMINHUB_PASSWORD_MIN_LENGTH", 8),
		},
		Audit: AuditConfig{
			Methods:         splitList(getEnv("ADMINHUB_AUDIT_METHODS", "GET,POST,PUT,DELETE")),
			ExcludePatterns: splitList(getEnv("ADMINHUB_AUDIT_EXCLUDE", `/docs,/openapi,/metrics,/healthz,/readyz,/api/v1/auditlog/list`)),
			MaxBodyBytes:    getEnvInt64("ADMINHUB_AUDIT_MAX_BODY_BYTES", 1<<20),
			QueueSize:       getEnvInt("ADMINHUB_AUDIT_QUEUE_SIZE", 1024),
		},
		Menu:        defaultMenuConfig(),
		PostgresDSN: os.Getenv("ADMINHUB_PG_DSN"),
		Debug:       getEnvBool("ADMINHUB_DEBUG", false),
	}

	if err := applyMenuOverrides(&cfg.Menu); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Auth.SigningSecret == "" && !c.Debug {
		return errors.New("config: ADMINHUB_SIGNING_SECRET is required outside debug mode")
	}
	switch c.Auth.SigningAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("config: unsupported signing algorithm %q", c.Auth.SigningAlgorithm)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Auth.RateLimitEnabled && (c.Auth.RateLimitMax <= 0 || c.Auth.RateLimitWindow <= 0) {
		return errors.New("config: rate limit window and max must be positive when enabled")
	}
	if c.Audit.MaxBodyBytes <= 0 {
		return errors.New("config: audit body cap must be positive")
	}
	return nil
}

func defaultMenuConfig() MenuConfig {
	return MenuConfig{
		ModuleToParentMenu: map[string]string{
			"base":     "personal",
			"user":     "system",
			"role":     "system",
			"menu":     "system",
			"api":      "system",
			"dept":     "system",
			"auditlog": "system",
			"upload":   "system",
		},
		ParentMenuInfo: map[string]MenuInfo{
			"personal": {Name: "个人中心", Desc: "个人信息和设置相关功能"},
			"system":   {Name: "系统管理", Desc: "系统配置和管理功能"},
			"monitor":  {Name: "监控管理", Desc: "系统监控和日志管理"},
			"resource": {Name: "资源管理", Desc: "文件和资源管理功能"},
		},
		SubMenuNames: map[string]string{
			"base":     "个人设置",
			"user":     "用户管理",
			"role":     "角色管理",
			"menu":     "菜单管理",
			"api":      "API管理",
			"dept":     "部门管理",
			"auditlog": "审计日志",
			"upload":   "文件管理",
		},
	}
}

// applyMenuOverrides merges JSON-valued env overrides over the defaults so a
// deployment can rename buckets without a rebuild.
func applyMenuOverrides(m *MenuConfig) error {
	if raw := os.Getenv("ADMINHUB_MODULE_PARENT_MENU"); raw != "" {
		var override map[string]string
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			return fmt.Errorf("config: ADMINHUB_MODULE_PARENT_MENU: %w", err)
		}
		for k, v := range override {
			m.ModuleToParentMenu[k] = v
		}
	}
	if raw := os.Getenv("ADMINHUB_PARENT_MENU_INFO"); raw != "" {
		var override map[string]MenuInfo
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			return fmt.Errorf("config: ADMINHUB_PARENT_MENU_INFO: %w", err)
		}
		for k, v := range override {
			m.ParentMenuInfo[k] = v
		}
	}
	if raw := os.Getenv("ADMINHUB_SUBMENU_NAMES"); raw != "" {
		var override map[string]string
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			return fmt.Errorf("config: ADMINHUB_SUBMENU_NAMES: %w", err)
		}
		for k, v := range override {
			m.SubMenuNames[k] = v
		}
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
