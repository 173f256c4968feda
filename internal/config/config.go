// Package config содержит логику чтения конфигурации сервиса.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса оформления заказов.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`

	AuthSecret string `env:"AUTH_SECRET"`

	// FreeKassa: подпись создания платежа считается от SecretKey,
	// подпись webhook проверяется по SecretKey2.
	FreeKassaMerchantID string `env:"FREEKASSA_MERCHANT_ID"`
	FreeKassaSecretKey  string `env:"FREEKASSA_SECRET_KEY"`
	FreeKassaSecretKey2 string `env:"FREEKASSA_SECRET_KEY2"`

	PaypalychAPIURL string `env:"PAYPALYCH_API_URL"`
	PaypalychToken  string `env:"PAYPALYCH_TOKEN"`
	PaypalychShopID string `env:"PAYPALYCH_SHOP_ID"`

	// Адрес бота для исходящих уведомлений. Пустое значение отключает уведомления.
	NotifyBotAddress string `env:"NOTIFY_BOT_ADDRESS"`
	NotifyBotToken   string `env:"NOTIFY_BOT_TOKEN"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifyAddress := cfg.NotifyBotAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifyBotAddress, "n", "", "notification bot address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifyAddress != "" {
		cfg.NotifyBotAddress = envNotifyAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "teleshop-secret"
	}
	if cfg.PaypalychAPIURL == "" {
		cfg.PaypalychAPIURL = "https://pally.info/merchant/api"
	}

	return cfg, nil
}
