package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the mailnotify process. Notification
// options (channels, routing, redaction) are not part of it; they live in the
// option store and are read per event.
type Config struct {
	// HTTP listener for event ingestion, the test action and remote management
	Listen string `json:"listen" yaml:"listen"`

	// Site identity rendered into every notification
	SiteName string `json:"site_name" yaml:"site_name"`
	SiteURL  string `json:"site_url" yaml:"site_url"`
	Timezone string `json:"timezone" yaml:"timezone"`

	// DispatchTimeout bounds each outbound channel request.
	DispatchTimeout time.Duration `json:"dispatch_timeout" yaml:"dispatch_timeout"`

	// Option store backend: "file", "redis", "postgres" or "memory"
	StoreDriver    string `json:"store_driver" yaml:"store_driver"`
	StorePath      string `json:"store_path" yaml:"store_path"`
	RedisAddr      string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string `json:"redis_password" yaml:"redis_password"`
	RedisDB        int    `json:"redis_db" yaml:"redis_db"`
	RedisKeyPrefix string `json:"redis_key_prefix" yaml:"redis_key_prefix"`
	PostgresDSN    string `json:"postgres_dsn" yaml:"postgres_dsn"`
	PostgresTable  string `json:"postgres_table" yaml:"postgres_table"`

	// Kafka: mail events in, automation payloads out
	KafkaBrokers          []string `json:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaGroupID          string   `json:"kafka_group_id" yaml:"kafka_group_id"`
	KafkaEventsTopic      string   `json:"kafka_events_topic" yaml:"kafka_events_topic"`
	AutomationTopicPrefix string   `json:"automation_topic_prefix" yaml:"automation_topic_prefix"`

	// MQTT mail event subscription
	MQTTBrokerURL string `json:"mqtt_broker_url" yaml:"mqtt_broker_url"`
	MQTTClientID  string `json:"mqtt_client_id" yaml:"mqtt_client_id"`
	MQTTTopic     string `json:"mqtt_topic" yaml:"mqtt_topic"`
	MQTTQoS       byte   `json:"mqtt_qos" yaml:"mqtt_qos"`
	MQTTUsername  string `json:"mqtt_username" yaml:"mqtt_username"`
	MQTTPassword  string `json:"mqtt_password" yaml:"mqtt_password"`

	// Remote management
	RemoteSignature string `json:"remote_signature" yaml:"remote_signature"`
	RemoteJWTSecret string `json:"remote_jwt_secret" yaml:"remote_jwt_secret"`

	// Outbound mail connections used by the remote test_email action
	DefaultConnectionID string       `json:"default_connection_id" yaml:"default_connection_id"`
	Connections         []Connection `json:"connections" yaml:"connections"`

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`

	// Options seeds the option store on first start when it holds nothing.
	// Keys missing from the file keep their defaults.
	Options *Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// Connection describes one outbound mail connection.
type Connection struct {
	ID        string `json:"id" yaml:"id"`
	Type      string `json:"type" yaml:"type"` // "ses" or "smtp"
	Title     string `json:"connection_title" yaml:"title"`
	FromEmail string `json:"from_email" yaml:"from_email"`
	FromName  string `json:"from_name" yaml:"from_name"`

	// SES
	Region          string `json:"region,omitempty" yaml:"region"`
	AccessKeyID     string `json:"-" yaml:"access_key_id"`
	SecretAccessKey string `json:"-" yaml:"secret_access_key"`

	// SMTP
	Host     string `json:"host,omitempty" yaml:"host"`
	Port     int    `json:"port,omitempty" yaml:"port"`
	Username string `json:"-" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}

// DefaultRemoteSignature is the signature dashboards send with remote requests.
const DefaultRemoteSignature = "rup_suremail_v1"

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8025",
		SiteName:        "My Site",
		SiteURL:         "http://localhost/",
		Timezone:        "UTC",
		DispatchTimeout: 8 * time.Second,

		StoreDriver:    "file",
		StorePath:      "/var/lib/mailnotify",
		RedisKeyPrefix: "mailnotify:",
		PostgresTable:  "mailnotify_options",

		KafkaGroupID:          "mailnotify",
		KafkaEventsTopic:      "mail.events",
		AutomationTopicPrefix: "suremail_notify_",

		MQTTClientID: "mailnotify",
		MQTTTopic:    "mail/events",
		MQTTQoS:      1,

		RemoteSignature: DefaultRemoteSignature,

		MetricsEnabled: false,
		MetricsPort:    9090,

		InfluxInterval: 1 * time.Minute,
	}
}

// Location resolves the configured site timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Connection looks up an outbound connection by ID.
func (c *Config) Connection(id string) (Connection, bool) {
	for _, conn := range c.Connections {
		if conn.ID == id {
			return conn, true
		}
	}
	return Connection{}, false
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{len(c.KafkaBrokers) > 0 && c.KafkaEventsTopic == "", "kafka brokers configured but events topic is empty"},
		{c.MQTTBrokerURL != "" && c.MQTTTopic == "", "mqtt broker configured but topic is empty"},
		{c.InfluxURL != "" && c.InfluxBucket == "", "influx URL provided but bucket is missing"},
		{c.StoreDriver == "redis" && c.RedisAddr == "", "redis store selected but redis address is empty"},
		{c.StoreDriver == "postgres" && c.PostgresDSN == "", "postgres store selected but DSN is empty"},
		{c.RemoteSignature == "", "remote signature is empty; remote management requests will be ignored"},
		{c.DispatchTimeout <= 0, "dispatch timeout must be positive"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	switch c.StoreDriver {
	case "file", "redis", "postgres", "memory":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown store driver %q", c.StoreDriver))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid timezone %q, using UTC", c.Timezone))
		}
	}
	for i, conn := range c.Connections {
		if conn.ID == "" {
			warnings = append(warnings, fmt.Sprintf("connection #%d has no id", i))
		}
		if conn.Type != "ses" && conn.Type != "smtp" {
			warnings = append(warnings, fmt.Sprintf("connection %q has unsupported type %q", conn.ID, conn.Type))
		}
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML/JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	seed := DefaultOptions()
	cfg.Options = &seed
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
