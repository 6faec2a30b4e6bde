/**
 * @description
 * This package handles configuration management for the commerce service.
 * It uses the Viper library to read configuration from environment variables
 * (with an optional .env file), providing a centralized way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the commerce service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	SessionSecret string `mapstructure:"SESSION_SECRET"`

	// Payment widget bridge. The client key and visual-variant keys are
	// opaque strings issued by the payment provider.
	TossClientKey         string `mapstructure:"TOSS_CLIENT_KEY"`
	TossWidgetBaseURL     string `mapstructure:"TOSS_WIDGET_BASE_URL"`
	WidgetVariantKeyDark  string `mapstructure:"WIDGET_VARIANT_KEY_DARK"`
	WidgetVariantKeyLight string `mapstructure:"WIDGET_VARIANT_KEY_LIGHT"`
	CheckoutSuccessURL    string `mapstructure:"CHECKOUT_SUCCESS_URL"`
	CheckoutFailURL       string `mapstructure:"CHECKOUT_FAIL_URL"`

	// Kakao login. An empty base URL uses the production API host.
	KakaoAPIBaseURL string `mapstructure:"KAKAO_API_BASE_URL"`

	OrderEventExchange string `mapstructure:"ORDER_EVENT_EXCHANGE"`

	SMSSendLimitPerMinute int    `mapstructure:"SMS_SEND_LIMIT_PER_MINUTE"`
	RateLimitPrefix       string `mapstructure:"RATE_LIMIT_PREFIX"`

	SubscriptionJobSchedule string `mapstructure:"SUBSCRIPTION_JOB_SCHEDULE"`
	CodeSweepJobSchedule    string `mapstructure:"CODE_SWEEP_JOB_SCHEDULE"`
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
	viper.SetDefault("TOSS_WIDGET_BASE_URL", "https://widget-bridge.tosspayments.com")
	viper.SetDefault("CHECKOUT_SUCCESS_URL", "https://mealstack.kr/checkout/success")
	viper.SetDefault("CHECKOUT_FAIL_URL", "https://mealstack.kr/checkout/fail")
	viper.SetDefault("ORDER_EVENT_EXCHANGE", "mealstack.orders")
	viper.SetDefault("SMS_SEND_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("RATE_LIMIT_PREFIX", "mealstack:rate_limit")
	// Hourly billing/auto-resume sweep; code sweep every ten minutes.
	viper.SetDefault("SUBSCRIPTION_JOB_SCHEDULE", "0 * * * *")
	viper.SetDefault("CODE_SWEEP_JOB_SCHEDULE", "*/10 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SESSION_SECRET")
	_ = viper.BindEnv("TOSS_CLIENT_KEY")
	_ = viper.BindEnv("TOSS_WIDGET_BASE_URL")
	_ = viper.BindEnv("WIDGET_VARIANT_KEY_DARK")
	_ = viper.BindEnv("WIDGET_VARIANT_KEY_LIGHT")
	_ = viper.BindEnv("CHECKOUT_SUCCESS_URL")
	_ = viper.BindEnv("CHECKOUT_FAIL_URL")
	_ = viper.BindEnv("KAKAO_API_BASE_URL")
	_ = viper.BindEnv("ORDER_EVENT_EXCHANGE")
	_ = viper.BindEnv("SMS_SEND_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SUBSCRIPTION_JOB_SCHEDULE")
	_ = viper.BindEnv("CODE_SWEEP_JOB_SCHEDULE")

	// Attempt to read the .env file. It's okay if it doesn't exist, as
	// variables can be set directly in the environment.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}
