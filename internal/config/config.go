package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                  string        `mapstructure:"ENV"`
	Port                 string        `mapstructure:"PORT"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	AdminKey             string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed          string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DefaultJobLimit      int           `mapstructure:"DEFAULT_JOB_LIMIT"`
	OverrideSLASeconds   int           `mapstructure:"OVERRIDE_SLA_SECONDS"`
	NotifyAttemptTimeout time.Duration `mapstructure:"NOTIFY_ATTEMPT_TIMEOUT"`
	NotifyChannelOrder   string        `mapstructure:"NOTIFY_CHANNEL_ORDER"`
	SMSGatewayURL        string        `mapstructure:"SMS_GATEWAY_URL"`
	CallGatewayURL       string        `mapstructure:"CALL_GATEWAY_URL"`
	MQTTBroker           string        `mapstructure:"MQTT_BROKER"`
	MQTTClientID         string        `mapstructure:"MQTT_CLIENT_ID"`
	MQTTUsername         string        `mapstructure:"MQTT_USERNAME"`
	MQTTPassword         string        `mapstructure:"MQTT_PASSWORD"`
	MQTTTopicPrefix      string        `mapstructure:"MQTT_TOPIC_PREFIX"`
	FrequentThreshold    int           `mapstructure:"FREQUENT_ISSUE_THRESHOLD"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DEFAULT_JOB_LIMIT", 6)
	v.SetDefault("OVERRIDE_SLA_SECONDS", 30)
	v.SetDefault("NOTIFY_ATTEMPT_TIMEOUT", "5s")
	v.SetDefault("NOTIFY_CHANNEL_ORDER", "sms,push,call")
	v.SetDefault("SMS_GATEWAY_URL", "")
	v.SetDefault("CALL_GATEWAY_URL", "")
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_CLIENT_ID", "tophand-backend")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_TOPIC_PREFIX", "notifications")
	v.SetDefault("FREQUENT_ISSUE_THRESHOLD", 3)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DefaultJobLimit <= 0 {
		errs = append(errs, errors.New("DEFAULT_JOB_LIMIT must be positive"))
	}
	if c.OverrideSLASeconds <= 0 {
		errs = append(errs, errors.New("OVERRIDE_SLA_SECONDS must be positive"))
	}
	if c.FrequentThreshold <= 0 {
		errs = append(errs, errors.New("FREQUENT_ISSUE_THRESHOLD must be positive"))
	}
	if c.NotifyAttemptTimeout < 0 {
		errs = append(errs, errors.New("NOTIFY_ATTEMPT_TIMEOUT must not be negative"))
	}
	if len(c.ChannelOrder()) == 0 {
		errs = append(errs, errors.New("NOTIFY_CHANNEL_ORDER must name at least one channel"))
	}
	return errors.Join(errs...)
}

// ChannelOrder splits NOTIFY_CHANNEL_ORDER into lower-cased channel names.
func (c Config) ChannelOrder() []string {
	var out []string
	for _, name := range strings.Split(c.NotifyChannelOrder, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
