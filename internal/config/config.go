/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables (plus an
 * optional .env file), providing a centralized way to manage settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the renewal service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	NotificationQueue      string `mapstructure:"NOTIFICATION_QUEUE"`
	WhatsAppGatewayURL     string `mapstructure:"WHATSAPP_GATEWAY_URL"`
	WhatsAppGatewayAPIKey  string `mapstructure:"WHATSAPP_GATEWAY_API_KEY"`
	AIProviderURL          string `mapstructure:"AI_PROVIDER_URL"`
	AIProviderAPIKey       string `mapstructure:"AI_PROVIDER_API_KEY"`
	Timezone               string `mapstructure:"TIMEZONE"`
	SchedulerCronSpec      string `mapstructure:"SCHEDULER_CRON_SPEC"`
	RetryScanCronSpec      string `mapstructure:"RETRY_SCAN_CRON_SPEC"`
	LeadDays               int    `mapstructure:"LEAD_DAYS"`
	DunningEnabled         bool   `mapstructure:"DUNNING_ENABLED"`
	DunningIntervalDays    int    `mapstructure:"DUNNING_INTERVAL_DAYS"`
	RetryIntervalMinutes   int    `mapstructure:"RETRY_INTERVAL_MINUTES"`
	MaxDeliveryAttempts    int    `mapstructure:"MAX_DELIVERY_ATTEMPTS"`
	DeliveryWorkers        int    `mapstructure:"DELIVERY_WORKERS"`
	DeliveryTimeoutSeconds int    `mapstructure:"DELIVERY_TIMEOUT_SECONDS"`
	MaxPageSize            int    `mapstructure:"MAX_PAGE_SIZE"`
}

// DeliveryTimeout returns the per-attempt gateway timeout as a duration.
func (c Config) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

// RetryInterval returns the base backoff interval as a duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMinutes) * time.Minute
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("NOTIFICATION_QUEUE", "renewal_service.notification_events")
	viper.SetDefault("TIMEZONE", "America/Sao_Paulo")
	viper.SetDefault("SCHEDULER_CRON_SPEC", "* * * * *")
	viper.SetDefault("RETRY_SCAN_CRON_SPEC", "* * * * *")
	viper.SetDefault("LEAD_DAYS", 7)
	viper.SetDefault("DUNNING_ENABLED", false)
	viper.SetDefault("DUNNING_INTERVAL_DAYS", 3)
	viper.SetDefault("RETRY_INTERVAL_MINUTES", 30)
	viper.SetDefault("MAX_DELIVERY_ATTEMPTS", 3)
	viper.SetDefault("DELIVERY_WORKERS", 5)
	viper.SetDefault("DELIVERY_TIMEOUT_SECONDS", 20)
	viper.SetDefault("MAX_PAGE_SIZE", 100)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_QUEUE")
	_ = viper.BindEnv("WHATSAPP_GATEWAY_URL")
	_ = viper.BindEnv("WHATSAPP_GATEWAY_API_KEY")
	_ = viper.BindEnv("AI_PROVIDER_URL")
	_ = viper.BindEnv("AI_PROVIDER_API_KEY")
	_ = viper.BindEnv("TIMEZONE")
	_ = viper.BindEnv("SCHEDULER_CRON_SPEC")
	_ = viper.BindEnv("RETRY_SCAN_CRON_SPEC")
	_ = viper.BindEnv("LEAD_DAYS")
	_ = viper.BindEnv("DUNNING_ENABLED")
	_ = viper.BindEnv("DUNNING_INTERVAL_DAYS")
	_ = viper.BindEnv("RETRY_INTERVAL_MINUTES")
	_ = viper.BindEnv("MAX_DELIVERY_ATTEMPTS")
	_ = viper.BindEnv("DELIVERY_WORKERS")
	_ = viper.BindEnv("DELIVERY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("MAX_PAGE_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	// Unmarshal the configuration into the Config struct.
	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// Sanity clamps so a bad environment never produces a stuck engine.
	if config.LeadDays < 0 {
		log.Printf("level=warn component=config msg=\"negative lead days configured; coercing to zero\" lead_days=%d", config.LeadDays)
		config.LeadDays = 0
	}
	if config.DunningIntervalDays <= 0 {
		config.DunningIntervalDays = 3
	}
	if config.RetryIntervalMinutes <= 0 {
		config.RetryIntervalMinutes = 30
	}
	if config.MaxDeliveryAttempts <= 0 {
		config.MaxDeliveryAttempts = 3
	}
	if config.DeliveryWorkers <= 0 {
		config.DeliveryWorkers = 5
	}
	if config.DeliveryTimeoutSeconds <= 0 {
		config.DeliveryTimeoutSeconds = 20
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	if strings.TrimSpace(config.Timezone) == "" {
		config.Timezone = "America/Sao_Paulo"
	}

	return
}
