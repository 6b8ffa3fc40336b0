/**
 * @description
 * This file handles the configuration management for the wallet-service.
 * It uses the Viper library to read settings from environment variables or a
 * .env file.
 *
 * @notes
 * - The KMS API key is a startup precondition: its absence is a fatal
 *   configuration error, not a runtime retryable condition.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"errors"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// ErrMissingKMSAPIKey is returned when no KMS credential is configured.
var ErrMissingKMSAPIKey = errors.New("KMS_API_KEY is required")

// Config stores all configuration for the application.
type Config struct {
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	KMSAPIKey               string `mapstructure:"KMS_API_KEY"`
	KMSAPIBaseURL           string `mapstructure:"KMS_API_BASE_URL"`
	ServerPort              string `mapstructure:"SERVER_PORT"`
	JWTSecret               string `mapstructure:"JWT_SECRET"`
	AllowHeaderAuth         bool   `mapstructure:"ALLOW_HEADER_AUTH"`
	MaxConcurrentProvisions int    `mapstructure:"MAX_CONCURRENT_PROVISIONS"`
	AuditLogPath            string `mapstructure:"AUDIT_LOG_PATH"`
	PINVerifyRateLimit      int    `mapstructure:"PIN_VERIFY_RATE_LIMIT"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8083")
	viper.SetDefault("KMS_API_BASE_URL", "http://localhost:8090")
	viper.SetDefault("MAX_CONCURRENT_PROVISIONS", 4)
	viper.SetDefault("PIN_VERIFY_RATE_LIMIT", 30)
	viper.SetDefault("ALLOW_HEADER_AUTH", false)

	// Bind envs explicitly so containers pick them up reliably
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("KMS_API_KEY")
	_ = viper.BindEnv("KMS_API_BASE_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("ALLOW_HEADER_AUTH")
	_ = viper.BindEnv("MAX_CONCURRENT_PROVISIONS")
	_ = viper.BindEnv("AUDIT_LOG_PATH")
	_ = viper.BindEnv("PIN_VERIFY_RATE_LIMIT")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if strings.TrimSpace(config.KMSAPIKey) == "" {
		return nil, ErrMissingKMSAPIKey
	}

	return &config, nil
}
