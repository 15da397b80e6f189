package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
//   - MAILNOTIFY_LISTEN (string, e.g. ":8025")
//   - MAILNOTIFY_SITE_NAME, MAILNOTIFY_SITE_URL, MAILNOTIFY_TIMEZONE
//   - MAILNOTIFY_DISPATCH_TIMEOUT (duration, e.g. "8s")
//   - MAILNOTIFY_STORE_DRIVER, MAILNOTIFY_STORE_PATH
//   - MAILNOTIFY_REDIS_ADDR, MAILNOTIFY_REDIS_PASSWORD, MAILNOTIFY_REDIS_DB
//   - MAILNOTIFY_POSTGRES_DSN
//   - MAILNOTIFY_KAFKA_BROKERS (comma separated), MAILNOTIFY_KAFKA_GROUP_ID,
//     MAILNOTIFY_KAFKA_EVENTS_TOPIC, MAILNOTIFY_AUTOMATION_TOPIC_PREFIX
//   - MAILNOTIFY_MQTT_BROKER, MAILNOTIFY_MQTT_TOPIC, MAILNOTIFY_MQTT_CLIENT_ID,
//     MAILNOTIFY_MQTT_USERNAME, MAILNOTIFY_MQTT_PASSWORD
//   - MAILNOTIFY_REMOTE_SIGNATURE, MAILNOTIFY_REMOTE_JWT_SECRET
//   - MAILNOTIFY_METRICS_ENABLED (bool), MAILNOTIFY_METRICS_PORT (int)
//   - MAILNOTIFY_INFLUX_URL, MAILNOTIFY_INFLUX_TOKEN, MAILNOTIFY_INFLUX_ORG,
//     MAILNOTIFY_INFLUX_BUCKET, MAILNOTIFY_INFLUX_INTERVAL (duration)
func ApplyEnvOverrides(cfg *Config) error {
	if err := applySiteEnv(cfg); err != nil {
		return err
	}
	if err := applyStoreEnv(cfg); err != nil {
		return err
	}
	applyBrokerEnv(cfg)
	applyRemoteEnv(cfg)
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	if err := applyInfluxEnv(cfg); err != nil {
		return err
	}
	return nil
}

func applySiteEnv(cfg *Config) error {
	setStringEnv("MAILNOTIFY_LISTEN", &cfg.Listen)
	setStringEnv("MAILNOTIFY_SITE_NAME", &cfg.SiteName)
	setStringEnv("MAILNOTIFY_SITE_URL", &cfg.SiteURL)
	setStringEnv("MAILNOTIFY_TIMEZONE", &cfg.Timezone)
	if v := os.Getenv("MAILNOTIFY_DISPATCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAILNOTIFY_DISPATCH_TIMEOUT: %w", err)
		}
		cfg.DispatchTimeout = d
	}
	return nil
}

func applyStoreEnv(cfg *Config) error {
	setStringEnv("MAILNOTIFY_STORE_DRIVER", &cfg.StoreDriver)
	setStringEnv("MAILNOTIFY_STORE_PATH", &cfg.StorePath)
	setStringEnv("MAILNOTIFY_REDIS_ADDR", &cfg.RedisAddr)
	setStringEnv("MAILNOTIFY_REDIS_PASSWORD", &cfg.RedisPassword)
	setStringEnv("MAILNOTIFY_POSTGRES_DSN", &cfg.PostgresDSN)
	if v := os.Getenv("MAILNOTIFY_REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAILNOTIFY_REDIS_DB: %w", err)
		}
		cfg.RedisDB = n
	}
	return nil
}

func applyBrokerEnv(cfg *Config) {
	if v := os.Getenv("MAILNOTIFY_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	setStringEnv("MAILNOTIFY_KAFKA_GROUP_ID", &cfg.KafkaGroupID)
	setStringEnv("MAILNOTIFY_KAFKA_EVENTS_TOPIC", &cfg.KafkaEventsTopic)
	setStringEnv("MAILNOTIFY_AUTOMATION_TOPIC_PREFIX", &cfg.AutomationTopicPrefix)
	setStringEnv("MAILNOTIFY_MQTT_BROKER", &cfg.MQTTBrokerURL)
	setStringEnv("MAILNOTIFY_MQTT_TOPIC", &cfg.MQTTTopic)
	setStringEnv("MAILNOTIFY_MQTT_CLIENT_ID", &cfg.MQTTClientID)
	setStringEnv("MAILNOTIFY_MQTT_USERNAME", &cfg.MQTTUsername)
	setStringEnv("MAILNOTIFY_MQTT_PASSWORD", &cfg.MQTTPassword)
}

func applyRemoteEnv(cfg *Config) {
	setStringEnv("MAILNOTIFY_REMOTE_SIGNATURE", &cfg.RemoteSignature)
	setStringEnv("MAILNOTIFY_REMOTE_JWT_SECRET", &cfg.RemoteJWTSecret)
}

func applyMetricsEnv(cfg *Config) error {
	if err := setBoolEnv("MAILNOTIFY_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	if v := os.Getenv("MAILNOTIFY_METRICS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAILNOTIFY_METRICS_PORT: %w", err)
		}
		cfg.MetricsPort = p
	}
	return nil
}

func applyInfluxEnv(cfg *Config) error {
	setStringEnv("MAILNOTIFY_INFLUX_URL", &cfg.InfluxURL)
	setStringEnv("MAILNOTIFY_INFLUX_TOKEN", &cfg.InfluxToken)
	setStringEnv("MAILNOTIFY_INFLUX_ORG", &cfg.InfluxOrg)
	setStringEnv("MAILNOTIFY_INFLUX_BUCKET", &cfg.InfluxBucket)
	if v := os.Getenv("MAILNOTIFY_INFLUX_INTERVAL"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MAILNOTIFY_INFLUX_INTERVAL: %w", err)
		}
		cfg.InfluxInterval = dur
	}
	return nil
}

func setStringEnv(env string, dst *string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
