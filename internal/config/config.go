package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Anchor backends.
const (
	AnchorBackendFile   = "file"
	AnchorBackendDynamo = "dynamo"
)

// Config holds all runtime configuration loaded from environment variables,
// optionally layered over a YAML file named by SUPPORTCHAT_CONFIG.
type Config struct {
	AppPort        string   `yaml:"app_port"`
	AppEnv         string   `yaml:"app_env"`
	LogLevel       string   `yaml:"log_level"`
	AllowedOrigins []string `yaml:"allowed_origins"` // CORS allowed origins for the bridge

	APIBaseURL       string        `yaml:"api_url"`
	GatewayURL       string        `yaml:"gateway_url"`
	BearerToken      string        `yaml:"token"`
	JWTPublicKeyPath string        `yaml:"jwt_public_key_path"` // empty: claims are read without signature check
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	SendRate         float64       `yaml:"send_rate"` // REST calls per second, 0 disables throttling
	SendBurst        int           `yaml:"send_burst"`

	AnchorBackend string `yaml:"anchor_backend"`
	AnchorPath    string `yaml:"anchor_path"`
	AnchorKey     string `yaml:"anchor_key"`
	ClientID      string `yaml:"client_id"`

	AWSRegion      string       `yaml:"aws_region"`
	AWSEndpointURL string       `yaml:"aws_endpoint_url"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string       `yaml:"-"`
	AWSSecretKey   string       `yaml:"-"`
	DynamoTables   DynamoTables `yaml:"dynamo_tables"`

	TranscriptBucket string `yaml:"transcript_bucket"` // empty disables transcript archiving

	PinTimeout           time.Duration `yaml:"pin_timeout"`
	SuccessFlash         time.Duration `yaml:"success_flash"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Anchors string `yaml:"anchors"`
}

// Load reads all configuration. Environment variables win over the YAML file.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("SUPPORTCHAT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		AppPort:              "3000",
		AppEnv:               "development",
		LogLevel:             "info",
		AllowedOrigins:       []string{"*"},
		APIBaseURL:           "http://localhost:8080/customer/portal",
		GatewayURL:           "ws://localhost:8080/chat",
		HTTPTimeout:          10 * time.Second,
		SendRate:             5,
		SendBurst:            10,
		AnchorBackend:        AnchorBackendFile,
		AnchorPath:           defaultAnchorPath(),
		AnchorKey:            "active_chat_ticket",
		ClientID:             defaultClientID(),
		AWSRegion:            "us-east-1",
		DynamoTables:         DynamoTables{Anchors: "chat_anchors"},
		PinTimeout:           30 * time.Second,
		SuccessFlash:         2 * time.Second,
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: 30 * time.Second,
	}
}

func applyEnv(c *Config) {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	c.APIBaseURL = strings.TrimRight(getEnv("SUPPORT_API_URL", c.APIBaseURL), "/")
	c.GatewayURL = getEnv("SUPPORT_GATEWAY_URL", c.GatewayURL)
	c.BearerToken = getEnv("SUPPORT_TOKEN", c.BearerToken)
	c.JWTPublicKeyPath = getEnv("JWT_PUBLIC_KEY_PATH", c.JWTPublicKeyPath)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.SendRate = getEnvFloat("SEND_RATE", c.SendRate)
	c.SendBurst = getEnvInt("SEND_BURST", c.SendBurst)
	c.AnchorBackend = getEnv("ANCHOR_BACKEND", c.AnchorBackend)
	c.AnchorPath = getEnv("ANCHOR_PATH", c.AnchorPath)
	c.AnchorKey = getEnv("ANCHOR_KEY", c.AnchorKey)
	c.ClientID = getEnv("CLIENT_ID", c.ClientID)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.AWSEndpointURL = getEnv("AWS_ENDPOINT_URL", c.AWSEndpointURL)
	c.AWSAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", c.AWSAccessKeyID)
	c.AWSSecretKey = getEnv("AWS_SECRET_ACCESS_KEY", c.AWSSecretKey)
	c.DynamoTables.Anchors = getEnv("DYNAMO_TABLE_ANCHORS", c.DynamoTables.Anchors)
	c.TranscriptBucket = getEnv("TRANSCRIPT_BUCKET", c.TranscriptBucket)
	c.PinTimeout = getEnvDuration("PIN_TIMEOUT", c.PinTimeout)
	c.SuccessFlash = getEnvDuration("SUCCESS_FLASH", c.SuccessFlash)
	c.ReconnectInterval = getEnvDuration("RECONNECT_INTERVAL", c.ReconnectInterval)
	c.MaxReconnectInterval = getEnvDuration("MAX_RECONNECT_INTERVAL", c.MaxReconnectInterval)
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: SUPPORT_API_URL is required")
	}
	switch c.AnchorBackend {
	case AnchorBackendFile:
		if c.AnchorPath == "" {
			return errors.New("config: ANCHOR_PATH is required for the file anchor backend")
		}
	case AnchorBackendDynamo:
		if c.DynamoTables.Anchors == "" || c.ClientID == "" {
			return errors.New("config: DYNAMO_TABLE_ANCHORS and CLIENT_ID are required for the dynamo anchor backend")
		}
	default:
		return fmt.Errorf("config: unknown ANCHOR_BACKEND %q", c.AnchorBackend)
	}
	if c.AnchorKey == "" {
		return errors.New("config: ANCHOR_KEY is required")
	}
	return nil
}

// Addr is the bridge listen address.
func (c *Config) Addr() string {
	return ":" + c.AppPort
}

func defaultAnchorPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "supportchat", "anchor.json")
}

func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "local"
	}
	return host
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

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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
