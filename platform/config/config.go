// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetDatabaseMaxConns() int
}

// JWTConfig provides JWT validation settings for the admin middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides Redis/asynq settings for background audits.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetAuditCron() string
}

// WhatsAppConfig provides settings for the outbound WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// LeadPolicyConfig provides the qualification policy knobs.
type LeadPolicyConfig interface {
	GetMessageThreshold() int
	GetConversationThreshold() int
	GetSkipOpeningMessage() bool
	GetAuditDefaultDays() int
	GetDefaultPhoneRegion() string
}

// CRMConfig provides settings for the CRM sink and property catalog.
type CRMConfig interface {
	GetLassoBaseURL() string
	GetCRMTimeout() time.Duration
	GetDispatchConcurrency() int
	GetPropertiesFile() string
}

// AMQPConfig provides settings for publishing integration events.
type AMQPConfig interface {
	GetAMQPURL() string
	GetAMQPExchange() string
	IsAMQPEnabled() bool
}

// OpenAIConfig provides settings for the conversation summariser.
type OpenAIConfig interface {
	GetOpenAIAPIKey() string
	GetOpenAIModel() string
	IsOpenAIEnabled() bool
}

// BlocklistConfig provides the Redis settings for blocked numbers.
type BlocklistConfig interface {
	GetRedisURL() string
	GetBlocklistKey() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	DatabaseMaxConns      int
	JWTAccessSecret       string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	AuditCron             string
	WhatsAppURL           string
	WhatsAppKey           string
	WhatsAppDeviceID      string
	MessageThreshold      int
	ConversationThreshold int
	SkipOpeningMessage    bool
	AuditDefaultDays      int
	DefaultPhoneRegion    string
	LassoBaseURL          string
	CRMTimeout            time.Duration
	DispatchConcurrency   int
	PropertiesFile        string
	AMQPURL               string
	AMQPExchange          string
	OpenAIAPIKey          string
	OpenAIModel           string
	BlocklistKey          string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int { return c.DatabaseMaxConns }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetAuditCron() string      { return c.AuditCron }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// LeadPolicyConfig implementation
func (c *Config) GetMessageThreshold() int      { return c.MessageThreshold }
func (c *Config) GetConversationThreshold() int { return c.ConversationThreshold }
func (c *Config) GetSkipOpeningMessage() bool   { return c.SkipOpeningMessage }
func (c *Config) GetAuditDefaultDays() int      { return c.AuditDefaultDays }
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// CRMConfig implementation
func (c *Config) GetLassoBaseURL() string      { return c.LassoBaseURL }
func (c *Config) GetCRMTimeout() time.Duration { return c.CRMTimeout }
func (c *Config) GetDispatchConcurrency() int  { return c.DispatchConcurrency }
func (c *Config) GetPropertiesFile() string    { return c.PropertiesFile }

// AMQPConfig implementation
func (c *Config) GetAMQPURL() string      { return c.AMQPURL }
func (c *Config) GetAMQPExchange() string { return c.AMQPExchange }
func (c *Config) IsAMQPEnabled() bool     { return c.AMQPURL != "" }

// OpenAIConfig implementation
func (c *Config) GetOpenAIAPIKey() string { return c.OpenAIAPIKey }
func (c *Config) GetOpenAIModel() string  { return c.OpenAIModel }
func (c *Config) IsOpenAIEnabled() bool   { return c.OpenAIAPIKey != "" }

// BlocklistConfig implementation
func (c *Config) GetBlocklistKey() string { return c.BlocklistKey }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                   getEnv("APP_ENV", "development"),
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:      mustInt(getEnv("DATABASE_MAX_CONNS", "10")),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "leads"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		AuditCron:             getEnv("LEAD_AUDIT_CRON", "@every 6h"),
		WhatsAppURL:           getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:           getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:      getEnv("WHATSAPP_DEVICE_ID", ""),
		MessageThreshold:      mustInt(getEnv("LEAD_MESSAGE_THRESHOLD", "50")),
		ConversationThreshold: mustInt(getEnv("LEAD_CONVERSATION_THRESHOLD", "60")),
		SkipOpeningMessage:    strings.EqualFold(getEnv("LEAD_SKIP_OPENING_MESSAGE", "false"), "true"),
		AuditDefaultDays:      mustInt(getEnv("LEAD_AUDIT_DEFAULT_DAYS", "7")),
		DefaultPhoneRegion:    getEnv("DEFAULT_PHONE_REGION", "MX"),
		LassoBaseURL:          getEnv("LASSO_BASE_URL", "https://api.lasso.com"),
		CRMTimeout:            mustDuration(getEnv("CRM_TIMEOUT", "15s")),
		DispatchConcurrency:   mustInt(getEnv("CRM_DISPATCH_CONCURRENCY", "4")),
		PropertiesFile:        getEnv("PROPERTIES_FILE", "config/properties.yaml"),
		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "leads"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		BlocklistKey:          getEnv("BLOCKLIST_KEY", "leads:blocked_numbers"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.MessageThreshold < 0 || c.MessageThreshold > 100 {
		return fmt.Errorf("LEAD_MESSAGE_THRESHOLD must be within 0-100")
	}
	if c.ConversationThreshold < 0 || c.ConversationThreshold > 100 {
		return fmt.Errorf("LEAD_CONVERSATION_THRESHOLD must be within 0-100")
	}
	if c.CRMTimeout <= 0 {
		return fmt.Errorf("CRM_TIMEOUT must be a positive duration")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
